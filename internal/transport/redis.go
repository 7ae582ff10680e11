package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"marketboard.app/commentsync/common/logger"
	"marketboard.app/commentsync/core/config"
	"marketboard.app/commentsync/internal/model"
)

// Handler receives every decoded event broadcast to a joined room.
type Handler func(ctx context.Context, ev model.Event)

// Conn is the process-wide transport shared by all open panels. One
// connection multiplexes any number of rooms; joining is cheap. Join returns
// a Leave handle scoped to that membership: leaving removes exactly the
// caller's handler, other panels joined to the same room keep theirs.
type Conn interface {
	Join(ctx context.Context, roomID string, h Handler) (Leave, error)
	Send(ctx context.Context, sub model.Submission) error
	Close() error
}

// Leave detaches one room membership. Idempotent.
type Leave func(ctx context.Context) error

// roomMemberships tracks which handler belongs to which join, per room.
// Callers synchronize access; RedisConn holds it under its mutex.
type roomMemberships struct {
	rooms map[string]map[int]Handler
	next  int
}

func newRoomMemberships() *roomMemberships {
	return &roomMemberships{rooms: make(map[string]map[int]Handler)}
}

// add registers a handler and reports whether this is the room's first member.
func (m *roomMemberships) add(roomID string, h Handler) (key int, first bool) {
	members, ok := m.rooms[roomID]
	if !ok {
		members = make(map[int]Handler)
		m.rooms[roomID] = members
	}
	m.next++
	members[m.next] = h
	return m.next, !ok
}

// remove detaches one membership and reports whether the room is now empty.
// Removing an unknown key is a no-op.
func (m *roomMemberships) remove(roomID string, key int) (last bool) {
	members, ok := m.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := members[key]; !ok {
		return false
	}
	delete(members, key)
	if len(members) > 0 {
		return false
	}
	delete(m.rooms, roomID)
	return true
}

func (m *roomMemberships) handlers(roomID string) []Handler {
	members := m.rooms[roomID]
	out := make([]Handler, 0, len(members))
	for _, h := range members {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

func (m *roomMemberships) size(roomID string) int {
	return len(m.rooms[roomID])
}

// RedisConn implements Conn over redis pub/sub for inbound broadcasts and a
// redis stream for fire-and-forget submissions. The pub/sub connection keeps
// its channel set across reconnects, so every joined room is re-issued
// automatically when the link comes back.
type RedisConn struct {
	client *redis.Client
	cfg    config.TransportConfig

	mu     sync.Mutex
	rooms  *roomMemberships
	pubsub *redis.PubSub
	closed bool

	stoppedCh chan struct{}
}

// Dial connects the shared transport. The returned Conn must be closed by
// the owner that constructed it; panels only join and leave.
func Dial(ctx context.Context, cfg config.TransportConfig) (*RedisConn, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewRedisConn(client, cfg), nil
}

// NewRedisConn wraps an existing client. Used directly by tests and by the
// dev server, which shares its client with the broadcast bridge.
func NewRedisConn(client *redis.Client, cfg config.TransportConfig) *RedisConn {
	c := &RedisConn{
		client:    client,
		cfg:       cfg,
		rooms:     newRoomMemberships(),
		stoppedCh: make(chan struct{}),
	}
	// Subscribe to nothing yet; rooms attach dynamically.
	c.pubsub = client.Subscribe(context.Background())
	go c.dispatch()
	return c
}

func (c *RedisConn) channelName(roomID string) string {
	return c.cfg.RoomChannelPrefix + roomID
}

func (c *RedisConn) Join(ctx context.Context, roomID string, h Handler) (Leave, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("transport closed")
	}

	key, first := c.rooms.add(roomID, h)
	if first {
		if err := c.pubsub.Subscribe(ctx, c.channelName(roomID)); err != nil {
			c.rooms.remove(roomID, key)
			return nil, fmt.Errorf("subscribing to room %s: %w", roomID, err)
		}
	}

	slog.DebugContext(ctx, "joined room", "room_id", roomID, "members", c.rooms.size(roomID))
	return func(ctx context.Context) error {
		return c.leave(ctx, roomID, key)
	}, nil
}

// leave removes one membership. The room's channel is unsubscribed only when
// its last member leaves; calling the handle twice is a no-op.
func (c *RedisConn) leave(ctx context.Context, roomID string, key int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.rooms.remove(roomID, key) {
		return nil
	}
	if c.closed {
		return nil
	}
	if err := c.pubsub.Unsubscribe(ctx, c.channelName(roomID)); err != nil {
		return fmt.Errorf("unsubscribing from room %s: %w", roomID, err)
	}

	slog.DebugContext(ctx, "left room", "room_id", roomID)
	return nil
}

// Send emits a submission to the comments service. Fire-and-forget: no
// confirmation comes back here, the confirmed comment arrives later as an
// ordinary broadcast to the whole room, sender included.
func (c *RedisConn) Send(ctx context.Context, sub model.Submission) error {
	payload, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encoding submission: %w", err)
	}

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.SubmitStream,
		Values: map[string]any{"payload": payload},
	}).Err(); err != nil {
		return fmt.Errorf("sending submission: %w", err)
	}

	slog.DebugContext(ctx, "submission sent",
		"market_id", sub.MarketID,
		"client_ref", sub.ClientRef)
	return nil
}

func (c *RedisConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.pubsub.Close()
	<-c.stoppedCh
	return err
}

// dispatch fans inbound broadcasts out to the handlers of their room. It
// runs until the pub/sub connection is closed for good; transient drops are
// reconnected (and channels re-subscribed) by the client underneath.
func (c *RedisConn) dispatch() {
	defer close(c.stoppedCh)

	ctx := logger.WithLogFields(context.Background(), logger.LogFields{
		Component: "commentsync.transport",
	})

	for msg := range c.pubsub.Channel() {
		ev, err := model.DecodeEvent([]byte(msg.Payload))
		if err != nil {
			slog.ErrorContext(ctx, "dropping malformed event",
				"error", err,
				"channel", msg.Channel,
				"payload", logger.Truncate(msg.Payload, 200))
			continue
		}
		if ev.Type == model.EventNewComment {
			if err := ev.Comment.Validate(); err != nil {
				slog.ErrorContext(ctx, "dropping invalid comment event", "error", err)
				continue
			}
		}

		c.mu.Lock()
		handlers := c.rooms.handlers(ev.MarketID)
		c.mu.Unlock()

		evCtx := logger.WithLogFields(ctx, logger.LogFields{
			MarketID:  logger.Ptr(ev.MarketID),
			EventType: logger.Ptr(ev.Type),
		})
		for _, h := range handlers {
			h(evCtx, ev)
		}
	}
}
