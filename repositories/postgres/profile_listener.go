package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/upb/academy-hub/authstate"
	"github.com/upb/academy-hub/repositories"
	"go.uber.org/zap"
)

// ProfileListener serves live profile subscriptions from LISTEN/NOTIFY on
// ProfileChangesChannel. It implements authstate.ProfileSource.
type ProfileListener struct {
	listener *pq.Listener
	profiles repositories.ProfileRepository
	logger   *zap.Logger

	mu   sync.Mutex
	subs map[string]map[*profileSubscription]struct{}
}

// NewProfileListener connects a dedicated listener connection
func NewProfileListener(dsn string, profiles repositories.ProfileRepository, logger *zap.Logger) (*ProfileListener, error) {
	l := newProfileHub(profiles, logger)
	l.listener = pq.NewListener(dsn, 10*time.Second, time.Minute, l.onListenerEvent)

	if err := l.listener.Listen(ProfileChangesChannel); err != nil {
		l.listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", ProfileChangesChannel, err)
	}
	return l, nil
}

func newProfileHub(profiles repositories.ProfileRepository, logger *zap.Logger) *ProfileListener {
	return &ProfileListener{
		profiles: profiles,
		logger:   logger,
		subs:     make(map[string]map[*profileSubscription]struct{}),
	}
}

// listenerPingInterval is how often an idle listener connection is checked
const listenerPingInterval = 90 * time.Second

// Run dispatches notifications until ctx is done or the listener is closed
func (l *ProfileListener) Run(ctx context.Context) error {
	return l.dispatch(ctx, l.listener.Notify, listenerPingInterval, l.listener.Ping)
}

func (l *ProfileListener) dispatch(ctx context.Context, notify <-chan *pq.Notification, pingEvery time.Duration, ping func() error) error {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-notify:
			if !ok {
				return nil
			}
			l.handleNotification(ctx, n)
		case <-ticker.C:
			go func() {
				if err := ping(); err != nil {
					l.logger.Warn("profile listener ping failed", zap.Error(err))
				}
			}()
		}
	}
}

// Close closes the listener connection and every open subscription
func (l *ProfileListener) Close() error {
	l.mu.Lock()
	all := l.subs
	l.subs = make(map[string]map[*profileSubscription]struct{})
	l.mu.Unlock()

	for _, set := range all {
		for sub := range set {
			sub.close()
		}
	}
	if l.listener == nil {
		return nil
	}
	return l.listener.Close()
}

// Subscribe opens a live view of the profile for uid. The current record is
// delivered first.
func (l *ProfileListener) Subscribe(ctx context.Context, uid string) (authstate.Subscription, error) {
	sub := &profileSubscription{
		uid:    uid,
		ch:     make(chan authstate.ProfileEvent, 1),
		parent: l,
	}

	l.mu.Lock()
	if l.subs[uid] == nil {
		l.subs[uid] = make(map[*profileSubscription]struct{})
	}
	l.subs[uid][sub] = struct{}{}
	l.mu.Unlock()

	sub.send(l.load(ctx, uid))
	return sub, nil
}

// handleNotification refreshes subscribers of the notified uid. A nil
// notification means the connection was re-established and anything may
// have been missed.
func (l *ProfileListener) handleNotification(ctx context.Context, n *pq.Notification) {
	if n == nil {
		l.logger.Info("profile listener reconnected, refreshing all subscriptions")
		for _, uid := range l.subscribedUIDs() {
			l.refresh(ctx, uid)
		}
		return
	}
	l.refresh(ctx, n.Extra)
}

func (l *ProfileListener) refresh(ctx context.Context, uid string) {
	l.mu.Lock()
	set := l.subs[uid]
	targets := make([]*profileSubscription, 0, len(set))
	for sub := range set {
		targets = append(targets, sub)
	}
	l.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	ev := l.load(ctx, uid)
	for _, sub := range targets {
		sub.send(ev)
	}
}

func (l *ProfileListener) load(ctx context.Context, uid string) authstate.ProfileEvent {
	profile, err := l.profiles.GetByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return authstate.ProfileEvent{}
		}
		return authstate.ProfileEvent{Err: err}
	}
	return authstate.ProfileEvent{Profile: profile}
}

func (l *ProfileListener) subscribedUIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	uids := make([]string, 0, len(l.subs))
	for uid := range l.subs {
		uids = append(uids, uid)
	}
	return uids
}

func (l *ProfileListener) remove(sub *profileSubscription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if set, ok := l.subs[sub.uid]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(l.subs, sub.uid)
		}
	}
}

func (l *ProfileListener) onListenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected:
		l.logger.Info("profile listener connected")
	case pq.ListenerEventDisconnected:
		l.logger.Warn("profile listener disconnected", zap.Error(err))
	case pq.ListenerEventReconnected:
		l.logger.Info("profile listener reconnected")
	case pq.ListenerEventConnectionAttemptFailed:
		l.logger.Warn("profile listener connection attempt failed", zap.Error(err))
	}
}

type profileSubscription struct {
	uid    string
	ch     chan authstate.ProfileEvent
	parent *ProfileListener

	mu     sync.Mutex
	closed bool
}

func (s *profileSubscription) Updates() <-chan authstate.ProfileEvent {
	return s.ch
}

func (s *profileSubscription) Close() error {
	s.parent.remove(s)
	s.close()
	return nil
}

func (s *profileSubscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// send delivers ev, replacing an undelivered older event
func (s *profileSubscription) send(ev authstate.ProfileEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	default:
		select {
		case <-s.ch:
		default:
		}
		s.ch <- ev
	}
}
