package panel_test

import (
	"context"
	"sync"

	"marketboard.app/commentsync/internal/model"
	"marketboard.app/commentsync/internal/transport"
)

// fakeConn is an in-process transport: joins are recorded, sends are
// captured, and tests push broadcasts straight into the room handlers.
type fakeConn struct {
	mu       sync.Mutex
	handlers map[string]map[int]transport.Handler
	sent     []model.Submission
	joins    int
	leaves   int
	next     int
}

func newFakeConn() *fakeConn {
	return &fakeConn{handlers: make(map[string]map[int]transport.Handler)}
}

func (f *fakeConn) Join(_ context.Context, roomID string, h transport.Handler) (transport.Leave, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins++
	f.next++
	key := f.next
	if f.handlers[roomID] == nil {
		f.handlers[roomID] = make(map[int]transport.Handler)
	}
	f.handlers[roomID][key] = h
	return func(context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.handlers[roomID][key]; !ok {
			return nil
		}
		delete(f.handlers[roomID], key)
		f.leaves++
		return nil
	}, nil
}

func (f *fakeConn) Send(_ context.Context, sub model.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sub)
	return nil
}

func (f *fakeConn) Close() error { return nil }

func (f *fakeConn) Sent() []model.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Submission, len(f.sent))
	copy(out, f.sent)
	return out
}

// Deliver pushes a broadcast to every handler joined to the event's room,
// exactly as the redis dispatch loop would.
func (f *fakeConn) Deliver(ctx context.Context, ev model.Event) {
	f.mu.Lock()
	var handlers []transport.Handler
	for _, h := range f.handlers[ev.MarketID] {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(ctx, ev)
	}
}

type fakeCommentsAPI struct {
	mu             sync.Mutex
	listCommentsFn func(ctx context.Context, marketID, viewerID string) ([]*model.Comment, error)
	listRepliesFn  func(ctx context.Context, commentID, viewerID string) ([]*model.Comment, error)
	submitVoteFn   func(ctx context.Context, commentID, viewerID string, vote model.Vote) error
}

func (f *fakeCommentsAPI) ListComments(ctx context.Context, marketID, viewerID string) ([]*model.Comment, error) {
	f.mu.Lock()
	fn := f.listCommentsFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, marketID, viewerID)
	}
	return nil, nil
}

func (f *fakeCommentsAPI) ListReplies(ctx context.Context, commentID, viewerID string) ([]*model.Comment, error) {
	f.mu.Lock()
	fn := f.listRepliesFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, commentID, viewerID)
	}
	return nil, nil
}

func (f *fakeCommentsAPI) SubmitVote(ctx context.Context, commentID, viewerID string, vote model.Vote) error {
	f.mu.Lock()
	fn := f.submitVoteFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, commentID, viewerID, vote)
	}
	return nil
}
