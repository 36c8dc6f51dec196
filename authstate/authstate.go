// Package authstate keeps the current user and their profile in sync with a
// live profile subscription and fans snapshots out to subscribers.
package authstate

import (
	"context"
	"sync"

	"github.com/upb/academy-hub/models"
	"go.uber.org/zap"
)

// User is the signed-in identity
type User struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// State is a snapshot of the auth context
type State struct {
	User    *User           `json:"user"`
	Profile *models.Profile `json:"profile"`
	Loading bool            `json:"loading"`
}

// ProfileEvent is delivered by a profile subscription. Profile is nil when the
// record does not exist.
type ProfileEvent struct {
	Profile *models.Profile
	Err     error
}

// Subscription is a live view of one profile record
type Subscription interface {
	Updates() <-chan ProfileEvent
	Close() error
}

// ProfileSource opens live profile subscriptions
type ProfileSource interface {
	Subscribe(ctx context.Context, uid string) (Subscription, error)
}

// Context owns the auth state. All mutation happens in Run.
type Context struct {
	source ProfileSource
	logger *zap.Logger

	mu        sync.RWMutex
	state     State
	listeners map[int]chan State
	nextID    int
}

// New creates a Context in the loading state
func New(source ProfileSource, logger *zap.Logger) *Context {
	return &Context{
		source:    source,
		logger:    logger,
		state:     State{Loading: true},
		listeners: make(map[int]chan State),
	}
}

// Snapshot returns the current state
func (c *Context) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Subscribe returns a channel receiving the current snapshot and every later
// one. Slow receivers only see the latest snapshot. Call cancel to release it.
func (c *Context) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = ch
	ch <- c.state
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			close(ch)
			c.mu.Unlock()
		})
	}
	return ch, cancel
}

// Run consumes identity changes until ctx is done or identities is closed.
// A nil *User means signed out. The profile subscription for the previous
// identity is always closed before the next one is opened, and on return.
func (c *Context) Run(ctx context.Context, identities <-chan *User) error {
	var (
		sub     Subscription
		updates <-chan ProfileEvent
	)

	closeSub := func() {
		if sub == nil {
			return
		}
		if err := sub.Close(); err != nil {
			c.logger.Warn("failed to close profile subscription", zap.Error(err))
		}
		sub = nil
		updates = nil
	}
	defer closeSub()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case user, ok := <-identities:
			if !ok {
				return nil
			}
			closeSub()

			if user == nil {
				c.set(State{})
				continue
			}

			c.set(State{User: user, Loading: true})

			s, err := c.source.Subscribe(ctx, user.UID)
			if err != nil {
				c.logger.Warn("profile subscription failed", zap.String("uid", user.UID), zap.Error(err))
				c.set(State{User: user})
				continue
			}
			sub = s
			updates = s.Updates()

		case ev, ok := <-updates:
			current := c.Snapshot()
			if !ok || ev.Err != nil {
				if ev.Err != nil {
					c.logger.Warn("profile subscription error", zap.Error(ev.Err))
				}
				closeSub()
				c.set(State{User: current.User})
				continue
			}
			c.set(State{User: current.User, Profile: ev.Profile})
		}
	}
}

func (c *Context) set(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = s
	for _, ch := range c.listeners {
		select {
		case ch <- s:
		default:
			// drop the stale snapshot so the newest one fits
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}
