package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/storefront-pos/internal/redisx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type EventType string

const (
	EventSignedIn  EventType = "signed_in"
	EventSignedOut EventType = "signed_out"
)

type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	At        time.Time `json:"at"`
}

// Sessions is the process-wide session holder. A session expires after TTL
// without activity; every Touch slides the expiry.
type Sessions struct {
	Redis *redis.Client
	TTL   time.Duration
}

func sessionKey(sid string) string { return fmt.Sprintf(redisx.KeySession, sid) }

// Open stores a new session for id and announces it.
func (s *Sessions) Open(ctx context.Context, id Identity) (Identity, error) {
	id.SessionID = uuid.NewString()
	b, err := json.Marshal(id)
	if err != nil {
		return Identity{}, err
	}
	if err := s.Redis.Set(ctx, sessionKey(id.SessionID), b, s.TTL).Err(); err != nil {
		return Identity{}, fmt.Errorf("open session: %w", err)
	}
	s.publish(ctx, Event{Type: EventSignedIn, SessionID: id.SessionID, UserID: id.UserID})
	return id, nil
}

// Touch returns the session's identity and extends its expiry.
func (s *Sessions) Touch(ctx context.Context, sid string) (Identity, error) {
	raw, err := s.Redis.GetEx(ctx, sessionKey(sid), s.TTL).Result()
	if errors.Is(err, redis.Nil) {
		return Identity{}, ErrSessionExpired
	}
	if err != nil {
		return Identity{}, fmt.Errorf("touch session: %w", err)
	}
	var id Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		return Identity{}, fmt.Errorf("decode session: %w", err)
	}
	return id, nil
}

// Close deletes the session and notifies subscribers. Closing an unknown session is a no-op.
func (s *Sessions) Close(ctx context.Context, sid string) error {
	raw, err := s.Redis.GetDel(ctx, sessionKey(sid)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	var id Identity
	_ = json.Unmarshal([]byte(raw), &id)
	s.publish(ctx, Event{Type: EventSignedOut, SessionID: sid, UserID: id.UserID})
	return nil
}

func (s *Sessions) publish(ctx context.Context, ev Event) {
	ev.At = time.Now().UTC()
	b, _ := json.Marshal(ev)
	_ = s.Redis.Publish(ctx, redisx.ChannelSessionEvents, b).Err()
}

// Subscribe calls fn for every session event until ctx ends or the returned
// stop func is called. Subscription is confirmed before Subscribe returns.
func (s *Sessions) Subscribe(ctx context.Context, fn func(Event)) (stop func() error, err error) {
	ps := s.Redis.Subscribe(ctx, redisx.ChannelSessionEvents)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe sessions: %w", err)
	}
	ch := ps.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = ps.Close()
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					continue
				}
				fn(ev)
			}
		}
	}()
	return ps.Close, nil
}
