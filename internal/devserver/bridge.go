package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"marketboard.app/commentsync/common/logger"
	"marketboard.app/commentsync/core/config"
	"marketboard.app/commentsync/internal/model"
)

// Publisher broadcasts a confirmed comment to its room. Split out so tests
// can capture events without redis.
type Publisher interface {
	Publish(ctx context.Context, ev model.Event) error
}

type redisPublisher struct {
	client *redis.Client
	prefix string
}

func NewRedisPublisher(client *redis.Client, cfg config.TransportConfig) Publisher {
	return &redisPublisher{client: client, prefix: cfg.RoomChannelPrefix}
}

func (p *redisPublisher) Publish(ctx context.Context, ev model.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := p.client.Publish(ctx, p.prefix+ev.MarketID, payload).Err(); err != nil {
		return fmt.Errorf("publishing to room %s: %w", ev.MarketID, err)
	}
	return nil
}

// Bridge consumes the submit stream, persists each submission under a
// confirmed id, and broadcasts the result to the room. This is the half of
// the external service the engine's fire-and-forget send talks to.
type Bridge struct {
	server   *Server
	client   *redis.Client
	pub      Publisher
	stream   string
	group    string
	consumer string

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewBridge(server *Server, client *redis.Client, pub Publisher, cfg config.TransportConfig) (*Bridge, error) {
	b := &Bridge{
		server:    server,
		client:    client,
		pub:       pub,
		stream:    cfg.SubmitStream,
		group:     "comments-dev",
		consumer:  "dev-server",
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}

	// Start from "0" so submissions sent before a restart are not lost.
	if err := client.XGroupCreateMkStream(context.Background(), b.stream, b.group, "0").Err(); err != nil &&
		err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}
	return b, nil
}

func (b *Bridge) Run(ctx context.Context) error {
	defer close(b.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "commentsync.devserver.bridge",
	})
	slog.InfoContext(ctx, "submit bridge started", "stream", b.stream)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.stopCh:
			slog.InfoContext(ctx, "submit bridge stopping")
			return nil
		default:
			if err := b.readBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "submit batch failed", "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

func (b *Bridge) Stop() {
	close(b.stopCh)
	<-b.stoppedCh
}

func (b *Bridge) readBatch(ctx context.Context) error {
	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.group,
		Consumer: b.consumer,
		Streams:  []string{b.stream, ">"},
		Count:    16,
		Block:    5 * time.Second,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("reading submit stream: %w", err)
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			b.handle(ctx, msg)
			if err := b.client.XAck(ctx, b.stream, b.group, msg.ID).Err(); err != nil {
				slog.WarnContext(ctx, "failed to ack submission", "error", err, "message_id", msg.ID)
			}
		}
	}
	return nil
}

func (b *Bridge) handle(ctx context.Context, msg redis.XMessage) {
	raw, ok := msg.Values["payload"]
	if !ok {
		slog.ErrorContext(ctx, "submission missing payload", "message_id", msg.ID)
		return
	}

	var sub model.Submission
	if err := json.Unmarshal([]byte(fmt.Sprint(raw)), &sub); err != nil {
		slog.ErrorContext(ctx, "dropping malformed submission", "error", err, "message_id", msg.ID)
		return
	}

	c, err := b.server.Create(sub)
	if err != nil {
		slog.ErrorContext(ctx, "rejecting submission", "error", err, "market_id", sub.MarketID)
		return
	}

	ev := model.Event{Type: model.EventNewComment, MarketID: sub.MarketID, Comment: c}
	if err := b.pub.Publish(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "broadcast failed", "error", err, "comment_id", c.ID)
		return
	}

	slog.DebugContext(ctx, "submission confirmed",
		"comment_id", c.ID,
		"client_ref", c.ClientRef,
		"market_id", sub.MarketID)
}
