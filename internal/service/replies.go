package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"marketboard.app/commentsync/common/logger"
	"marketboard.app/commentsync/internal/model"
	"marketboard.app/commentsync/internal/store"
)

// ReplyFetcher fetches the direct children of a comment. Satisfied by
// api.Client.
type ReplyFetcher interface {
	ListReplies(ctx context.Context, commentID, viewerID string) ([]*model.Comment, error)
}

// ReplyLoader loads a comment's children on first expansion only. Concurrent
// expansions of the same comment share one in-flight fetch; a failed fetch
// leaves the node unloaded so the next expansion can retry.
type ReplyLoader struct {
	store    *store.CommentStore
	fetcher  ReplyFetcher
	viewerID string
	schedule Scheduler
	timeout  time.Duration

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewReplyLoader(s *store.CommentStore, fetcher ReplyFetcher, viewerID string, schedule Scheduler) *ReplyLoader {
	if schedule == nil {
		schedule = func(task func()) { task() }
	}
	return &ReplyLoader{
		store:    s,
		fetcher:  fetcher,
		viewerID: viewerID,
		schedule: schedule,
		timeout:  10 * time.Second,
		inFlight: make(map[string]struct{}),
	}
}

// Expand marks the comment expanded and fetches its children unless they are
// already loaded, there is nothing to load, or a fetch is already on the
// wire.
func (l *ReplyLoader) Expand(ctx context.Context, commentID string) error {
	node, ok := l.store.Get(commentID)
	if !ok {
		return store.ErrNotFound
	}

	if err := l.store.SetExpanded(commentID, true); err != nil {
		return err
	}
	if node.ChildrenLoaded || node.ReplyCount == 0 {
		return nil
	}

	l.mu.Lock()
	if _, pending := l.inFlight[commentID]; pending {
		l.mu.Unlock()
		return nil
	}
	l.inFlight[commentID] = struct{}{}
	l.mu.Unlock()

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "commentsync.replies",
		CommentID: logger.Ptr(commentID),
	})

	go func() {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()

		children, err := l.fetcher.ListReplies(callCtx, commentID, l.viewerID)

		l.mu.Lock()
		delete(l.inFlight, commentID)
		l.mu.Unlock()

		if err != nil {
			// Collapse back so a later expand retries; no automatic retry loop.
			slog.WarnContext(callCtx, "reply fetch failed", "error", err)
			l.schedule(func() {
				_ = l.store.SetExpanded(commentID, false)
			})
			return
		}

		l.schedule(func() {
			if err := l.store.AttachChildren(commentID, children); err != nil {
				slog.ErrorContext(callCtx, "attaching fetched replies failed", "error", err)
			}
		})
	}()

	return nil
}

// Collapse hides the children without discarding them; re-expanding a loaded
// node never refetches.
func (l *ReplyLoader) Collapse(commentID string) error {
	return l.store.SetExpanded(commentID, false)
}
