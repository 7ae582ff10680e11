// Command panel opens one market's discussion panel against a running
// comments server and keeps it synchronized. Lines typed on stdin are posted
// as root comments, which makes the optimistic insert → broadcast → reconcile
// round trip observable from two terminals.
package main

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"marketboard.app/commentsync/common/logger"
	"marketboard.app/commentsync/common/otel"
	"marketboard.app/commentsync/core/config"
	"marketboard.app/commentsync/internal/api"
	"marketboard.app/commentsync/internal/model"
	"marketboard.app/commentsync/internal/panel"
	"marketboard.app/commentsync/internal/transport"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypePanel)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)
	slog.InfoContext(ctx, "panel starting",
		"env", cfg.Env,
		"market_id", cfg.Panel.MarketID,
		"viewer_id", cfg.Panel.ViewerID)

	policy, err := model.ParseInsertPolicy(cfg.Panel.InsertionPolicy)
	if err != nil {
		slog.ErrorContext(ctx, "invalid insertion policy", "error", err)
		os.Exit(1)
	}

	conn, err := transport.Dial(ctx, cfg.Transport)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect transport", "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	slog.InfoContext(ctx, "transport connected")

	client := api.NewClient(cfg.Comments)

	p, err := panel.Open(ctx, conn, client, panel.Config{
		MarketID:   cfg.Panel.MarketID,
		ViewerID:   cfg.Panel.ViewerID,
		ViewerName: cfg.Panel.ViewerName,
		Policy:     policy,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to open panel", "error", err)
		os.Exit(1)
	}

	// Post stdin lines as root comments until EOF.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			tempID, err := p.Post(ctx, text, nil)
			if err != nil {
				slog.ErrorContext(ctx, "post failed", "error", err)
				continue
			}
			slog.InfoContext(ctx, "posted", "temp_id", tempID, "roots", len(p.Roots()))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "closing panel...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := p.Close(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "panel close error", "error", err)
	}
	if err := conn.Close(); err != nil {
		slog.ErrorContext(shutdownCtx, "transport close error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "panel closed")
}
