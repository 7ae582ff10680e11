package transport

import (
	"context"
	"sync"

	"marketboard.app/commentsync/internal/model"
)

// RoomChannel scopes the shared transport to a single market's room. A panel
// registers its comment handler once, joins on open, and leaves on close;
// re-joining after a reconnect is the transport's job, not the panel's.
type RoomChannel struct {
	conn   Conn
	roomID string

	mu      sync.Mutex
	leave   Leave
	handler func(ctx context.Context, c *model.Comment)
}

func NewRoomChannel(conn Conn, marketID string) *RoomChannel {
	return &RoomChannel{conn: conn, roomID: marketID}
}

// OnComment registers the single inbound-comment handler for this panel
// lifetime. Must be called before Join; later calls replace the handler.
func (r *RoomChannel) OnComment(h func(ctx context.Context, c *model.Comment)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

func (r *RoomChannel) Join(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.leave != nil {
		return nil
	}
	leave, err := r.conn.Join(ctx, r.roomID, r.dispatch)
	if err != nil {
		return err
	}
	r.leave = leave
	return nil
}

// Leave detaches this panel's membership and is safe to call multiple times.
// After it returns, the panel's handler receives no further events for this
// room.
func (r *RoomChannel) Leave(ctx context.Context) error {
	r.mu.Lock()
	leave := r.leave
	r.leave = nil
	r.mu.Unlock()
	if leave == nil {
		return nil
	}
	return leave(ctx)
}

// Send submits a new comment for this room, fire-and-forget.
func (r *RoomChannel) Send(ctx context.Context, sub model.Submission) error {
	sub.MarketID = r.roomID
	return r.conn.Send(ctx, sub)
}

func (r *RoomChannel) dispatch(ctx context.Context, ev model.Event) {
	r.mu.Lock()
	h := r.handler
	joined := r.leave != nil
	r.mu.Unlock()

	// A left room keeps no claim on events that were already in flight.
	if !joined || h == nil {
		return
	}
	if ev.Type != model.EventNewComment || ev.Comment == nil {
		return
	}
	h(ctx, ev.Comment)
}
