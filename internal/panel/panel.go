// Package panel binds one market's discussion together: the room channel,
// the comment store and the optimistic controllers. Every mutation runs as a
// task on one goroutine, so state transitions interleave but never race.
package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"marketboard.app/commentsync/common/id"
	"marketboard.app/commentsync/common/logger"
	"marketboard.app/commentsync/internal/model"
	"marketboard.app/commentsync/internal/service"
	"marketboard.app/commentsync/internal/store"
	"marketboard.app/commentsync/internal/transport"
)

// ErrClosed is returned by user actions issued against a closed panel.
var ErrClosed = errors.New("panel closed")

// CommentsAPI is the slice of the external comments service a panel needs.
// Satisfied by api.Client.
type CommentsAPI interface {
	ListComments(ctx context.Context, marketID, viewerID string) ([]*model.Comment, error)
	ListReplies(ctx context.Context, commentID, viewerID string) ([]*model.Comment, error)
	SubmitVote(ctx context.Context, commentID, viewerID string, vote model.Vote) error
}

type Config struct {
	MarketID   string
	ViewerID   string
	ViewerName string
	AvatarURL  string
	Policy     model.InsertPolicy
}

type Panel struct {
	cfg   Config
	store *store.CommentStore
	room  *transport.RoomChannel
	api   CommentsAPI

	votes   *service.VoteController
	replies *service.ReplyLoader

	tasks     chan func()
	stopCh    chan struct{}
	stoppedCh chan struct{}
	closed    atomic.Bool

	// Touched only on the task loop. Broadcasts that beat the initial root
	// load are parked here so LoadRoots cannot wipe them.
	loaded  bool
	pending []*model.Comment
}

// Open joins the market's room and loads the initial root listing. A failed
// root fetch is not fatal: the panel opens empty and is retried only by
// reopening.
func Open(ctx context.Context, conn transport.Conn, commentsAPI CommentsAPI, cfg Config) (*Panel, error) {
	p := &Panel{
		cfg:       cfg,
		store:     store.New(cfg.Policy),
		room:      transport.NewRoomChannel(conn, cfg.MarketID),
		api:       commentsAPI,
		tasks:     make(chan func(), 64),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	p.votes = service.NewVoteController(p.store, commentsAPI, cfg.ViewerID, p.post)
	p.replies = service.NewReplyLoader(p.store, commentsAPI, cfg.ViewerID, p.post)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "commentsync.panel",
		MarketID:  logger.Ptr(cfg.MarketID),
		ViewerID:  logger.Ptr(cfg.ViewerID),
	})

	go p.run()

	p.room.OnComment(func(evCtx context.Context, c *model.Comment) {
		p.post(func() { p.admit(evCtx, c) })
	})
	if err := p.room.Join(ctx); err != nil {
		p.shutdown()
		return nil, fmt.Errorf("joining room %s: %w", cfg.MarketID, err)
	}

	roots, err := commentsAPI.ListComments(ctx, cfg.MarketID, cfg.ViewerID)
	if err != nil {
		slog.WarnContext(ctx, "initial comment fetch failed, opening empty", "error", err)
		roots = nil
	}
	p.post(func() {
		p.store.LoadRoots(roots)
		p.loaded = true
		// Broadcasts that arrived while the fetch was in flight were parked;
		// replay them now so the fetch snapshot cannot shadow them.
		for _, c := range p.pending {
			p.apply(ctx, c)
		}
		p.pending = nil
	})

	slog.InfoContext(ctx, "panel opened", "root_count", len(roots))
	return p, nil
}

// Post submits a new comment. The optimistic node is visible before this
// returns; the confirmed counterpart arrives later on the room channel and
// replaces it in place. Returns the temp id.
func (p *Panel) Post(ctx context.Context, text string, parentID *string) (string, error) {
	if p.closed.Load() {
		return "", ErrClosed
	}

	c := &model.Comment{
		ID:             id.NewTemp(),
		Text:           text,
		CreatedAt:      time.Now().UTC(),
		AuthorName:     p.cfg.ViewerName,
		AuthorIdentity: p.cfg.ViewerID,
		AvatarURL:      p.cfg.AvatarURL,
		ParentID:       parentID,
	}
	if err := c.Validate(); err != nil {
		return "", err
	}

	errCh := make(chan error, 1)
	p.post(func() { errCh <- p.store.InsertOptimistic(c) })
	select {
	case err := <-errCh:
		if err != nil {
			return "", err
		}
	case <-p.stopCh:
		return "", ErrClosed
	}

	// Fire-and-forget: the confirmation comes back as an ordinary broadcast.
	sub := model.Submission{
		Text:           text,
		AuthorIdentity: p.cfg.ViewerID,
		AuthorName:     p.cfg.ViewerName,
		AvatarURL:      p.cfg.AvatarURL,
		ParentID:       parentID,
		ClientRef:      c.ID,
	}
	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := p.room.Send(sendCtx, sub); err != nil {
			slog.ErrorContext(sendCtx, "comment submission failed",
				"error", err,
				"client_ref", sub.ClientRef)
		}
	}()

	return c.ID, nil
}

// Toggle applies a like/dislike optimistically and confirms asynchronously.
func (p *Panel) Toggle(ctx context.Context, commentID string, vote model.Vote) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return p.votes.Toggle(ctx, commentID, vote)
}

// Expand loads a comment's replies on first use; Collapse only hides them.
func (p *Panel) Expand(ctx context.Context, commentID string) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return p.replies.Expand(ctx, commentID)
}

func (p *Panel) Collapse(commentID string) error {
	return p.replies.Collapse(commentID)
}

// Roots returns the current read model: ordered roots with loaded children.
func (p *Panel) Roots() []*model.Comment {
	return p.store.Roots()
}

// Get returns a copy of a single node.
func (p *Panel) Get(commentID string) (*model.Comment, bool) {
	return p.store.Get(commentID)
}

// Close leaves the room and stops the task loop. In-flight fetch results
// arriving afterwards are dropped, never applied to a closed panel.
func (p *Panel) Close(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.room.Leave(ctx)
	p.shutdown()
	slog.InfoContext(ctx, "panel closed", "market_id", p.cfg.MarketID)
	return err
}

func (p *Panel) shutdown() {
	close(p.stopCh)
	<-p.stoppedCh
}

func (p *Panel) run() {
	defer close(p.stoppedCh)
	for {
		select {
		case <-p.stopCh:
			return
		case task := <-p.tasks:
			task()
		}
	}
}

// post schedules a mutation on the panel loop. Posting to a closed panel is
// a deliberate no-op: late completions have nowhere to land.
func (p *Panel) post(task func()) {
	if p.closed.Load() {
		return
	}
	select {
	case p.tasks <- task:
	case <-p.stopCh:
	}
}

func (p *Panel) admit(ctx context.Context, c *model.Comment) {
	if !p.loaded {
		p.pending = append(p.pending, c)
		return
	}
	p.apply(ctx, c)
}

func (p *Panel) apply(ctx context.Context, c *model.Comment) {
	outcome, err := p.store.AdmitIncoming(ctx, c)
	if err != nil {
		slog.WarnContext(ctx, "dropping inbound comment", "error", err, "comment_id", c.ID)
		return
	}
	slog.DebugContext(ctx, "inbound comment admitted",
		"comment_id", c.ID,
		"outcome", outcome.String())
}
