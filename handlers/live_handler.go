package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/upb/academy-hub/auth"
	"github.com/upb/academy-hub/authstate"
	"github.com/upb/academy-hub/guard"
	"github.com/upb/academy-hub/internal/observability"
	"github.com/upb/academy-hub/models"
	"github.com/upb/academy-hub/utils"
	"go.uber.org/zap"
)

const (
	liveWriteTimeout = 10 * time.Second
	livePingInterval = 30 * time.Second
	livePongTimeout  = 60 * time.Second

	// defaultConfirmDelay is how long a pending redirect waits before it is re-evaluated
	defaultConfirmDelay = 250 * time.Millisecond
)

// LiveMessage is pushed to the browser for every auth-context change
type LiveMessage struct {
	State    authstate.State `json:"state"`
	Decision guard.Decision  `json:"decision"`
}

// LiveHandler streams the auth context of the caller over a WebSocket
type LiveHandler struct {
	authn        *auth.Authenticator
	profiles     authstate.ProfileSource
	metrics      *observability.Metrics
	logger       *zap.Logger
	upgrader     websocket.Upgrader
	confirmDelay time.Duration
}

// NewLiveHandler creates a LiveHandler. Upgrades are accepted from the same
// host or from allowedOrigins.
func NewLiveHandler(
	authn *auth.Authenticator,
	profiles authstate.ProfileSource,
	allowedOrigins []string,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *LiveHandler {
	return &LiveHandler{
		authn:    authn,
		profiles: profiles,
		metrics:  metrics,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		confirmDelay: defaultConfirmDelay,
	}
}

// HandleLive handles GET /api/session/live?role=<role>
func (h *LiveHandler) HandleLive(w http.ResponseWriter, r *http.Request) {
	required, err := models.ParseRole(r.URL.Query().Get("role"))
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	var user *authstate.User
	if principal, err := h.authn.Authenticate(r); err == nil {
		user = &authstate.User{UID: principal.UID(), Email: principal.Claims.Email}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.LiveConnectionOpened()
	defer h.metrics.LiveConnectionClosed()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	state := authstate.New(h.profiles, h.logger)
	snapshots, unsubscribe := state.Subscribe()
	defer unsubscribe()

	identities := make(chan *authstate.User, 1)
	identities <- user

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = state.Run(ctx, identities)
	}()
	defer func() {
		cancel()
		<-runDone
	}()

	go h.readPump(conn, cancel)

	h.writePump(ctx, conn, snapshots, required)
}

// readPump discards client messages and cancels the stream when the client goes away
func (h *LiveHandler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(livePongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(livePongTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *LiveHandler) writePump(ctx context.Context, conn *websocket.Conn, snapshots <-chan authstate.State, required models.Role) {
	ping := time.NewTicker(livePingInterval)
	defer ping.Stop()

	stabilizer := guard.NewStabilizer()
	var (
		latest  authstate.State
		confirm <-chan time.Time
	)

	send := func(d guard.Decision) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		if err := conn.WriteJSON(LiveMessage{State: latest, Decision: d}); err != nil {
			h.logger.Debug("live feed write failed", zap.Error(err))
			return false
		}
		return true
	}

	// observe evaluates the latest state and schedules a re-evaluation while a
	// redirect is waiting for confirmation
	observe := func() (guard.Decision, bool) {
		candidate := guard.Evaluate(latest, required)
		d, changed := stabilizer.Observe(candidate)
		confirm = nil
		if candidate.IsRedirect() && d != candidate {
			confirm = time.After(h.confirmDelay)
		}
		if changed {
			h.metrics.GuardDecision(string(required), string(d.Outcome))
		}
		return d, changed
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return

		case s, ok := <-snapshots:
			if !ok {
				return
			}
			latest = s
			d, _ := observe()
			if !send(d) {
				return
			}

		case <-confirm:
			if d, changed := observe(); changed && !send(d) {
				return
			}

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteTimeout)); err != nil {
				return
			}
		}
	}
}

// originChecker accepts requests without an Origin header, from the request's
// own host, or from one of allowed
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(strings.TrimSuffix(a, "/"), origin) {
				return true
			}
		}
		return false
	}
}
