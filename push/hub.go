package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSession/internal/metrics"
	"github.com/MrEthical07/goSession/token"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const (
	maxFrameBytes  = 4 << 10
	sendQueueSize  = 8
	defaultTimeout = 5 * time.Second
)

// Verifier authenticates a subscriber's access token.
type Verifier func(raw string) (*token.Claims, error)

// HubOptions tune a [Hub].
type HubOptions struct {
	// Verify authenticates subscribers. Default: decode-only, rejecting
	// expired or malformed tokens.
	Verify Verifier
	// OriginPatterns are passed to websocket.Accept.
	OriginPatterns []string
	// InsecureSkipVerify disables the origin check.
	InsecureSkipVerify bool
	// HeartbeatEvery is the ping interval. Zero disables heartbeats.
	HeartbeatEvery time.Duration
	WriteTimeout   time.Duration
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
}

type subscriber struct {
	userID string
	send   chan Message
	kick   chan struct{}
	kicked sync.Once
}

// Hub fans push signals out to connected clients.
type Hub struct {
	opts HubOptions
	log  *zap.Logger

	mu     sync.RWMutex
	users  map[string]map[*subscriber]struct{}
	count  atomic.Int64
	done   chan struct{}
	closed sync.Once
}

// NewHub creates an empty hub.
func NewHub(opts HubOptions) *Hub {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultTimeout
	}
	if opts.Verify == nil {
		opts.Verify = func(raw string) (*token.Claims, error) {
			claims, ok := token.Live(raw, token.Now(nil))
			if !ok {
				return nil, errors.New("access token expired or malformed")
			}
			return claims, nil
		}
	}
	return &Hub{
		opts:  opts,
		log:   opts.Logger,
		users: make(map[string]map[*subscriber]struct{}),
		done:  make(chan struct{}),
	}
}

// Connections returns the number of live subscribers.
func (h *Hub) Connections() int {
	return int(h.count.Load())
}

// Publish sends sig to every connection of userID and returns how many
// connections accepted it.
func (h *Hub) Publish(userID string, sig Signal, reason string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.deliver(h.users[userID], Message{Type: string(sig), Reason: reason})
}

// Broadcast sends sig to every connection.
func (h *Hub) Broadcast(sig Signal, reason string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	msg := Message{Type: string(sig), Reason: reason}
	n := 0
	for _, subs := range h.users {
		n += h.deliver(subs, msg)
	}
	return n
}

func (h *Hub) deliver(subs map[*subscriber]struct{}, msg Message) int {
	n := 0
	for s := range subs {
		select {
		case s.send <- msg:
			n++
		default:
			h.log.Warn("push queue full, dropping signal", zap.String("user_id", s.userID), zap.String("type", msg.Type))
		}
	}
	return n
}

// Disconnect drops every connection of userID without a signal and returns
// how many were dropped. Clients that subscribed with [Subscribe] redial.
func (h *Hub) Disconnect(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for s := range h.users[userID] {
		s.kicked.Do(func() { close(s.kick) })
		n++
	}
	return n
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.closed.Do(func() { close(h.done) })
}

func (h *Hub) register(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.users[s.userID]
	if !ok {
		subs = make(map[*subscriber]struct{})
		h.users[s.userID] = subs
	}
	subs[s] = struct{}{}
	h.count.Add(1)
}

func (h *Hub) unregister(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.users[s.userID]; ok {
		if _, present := subs[s]; present {
			delete(subs, s)
			h.count.Add(-1)
		}
		if len(subs) == 0 {
			delete(h.users, s.userID)
		}
	}
}

// ServeHTTP authenticates the request and runs one subscriber connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "hub closed", http.StatusServiceUnavailable)
		return
	default:
	}

	claims, err := h.opts.Verify(accessToken(r))
	if err != nil {
		h.log.Debug("push subscriber rejected", zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.opts.OriginPatterns,
		InsecureSkipVerify: h.opts.InsecureSkipVerify,
	})
	if err != nil {
		h.log.Warn("push accept failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	sub := &subscriber{userID: claims.UserID, send: make(chan Message, sendQueueSize), kick: make(chan struct{})}
	h.register(sub)
	defer h.unregister(sub)
	h.log.Debug("push subscriber connected", zap.String("user_id", sub.userID))

	// Incoming frames are ignored; CloseRead keeps the connection serviced
	// and cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	var tick <-chan time.Time
	if h.opts.HeartbeatEvery > 0 {
		t := time.NewTicker(h.opts.HeartbeatEvery)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "bye")
			return
		case <-h.done:
			_ = conn.Close(websocket.StatusGoingAway, "hub closed")
			return
		case <-sub.kick:
			_ = conn.Close(websocket.StatusGoingAway, "disconnected")
			return
		case <-tick:
			pingCtx, cancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				h.opts.Metrics.Inc(metrics.PushDisconnect)
				_ = conn.Close(websocket.StatusGoingAway, "heartbeat failed")
				return
			}
		case msg := <-sub.send:
			if err := h.write(ctx, conn, msg); err != nil {
				h.opts.Metrics.Inc(metrics.PushDisconnect)
				h.log.Debug("push write failed", zap.String("user_id", sub.userID), zap.Error(err))
				_ = conn.Close(websocket.StatusAbnormalClosure, "write failed")
				return
			}
			switch Signal(msg.Type) {
			case ForceRefresh:
				h.opts.Metrics.Inc(metrics.PushForceRefresh)
			case ForceLogout:
				h.opts.Metrics.Inc(metrics.PushForceLogout)
			}
		}
	}
}

func (h *Hub) write(parent context.Context, conn *websocket.Conn, msg Message) error {
	ctx, cancel := context.WithTimeout(parent, h.opts.WriteTimeout)
	defer cancel()
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

func accessToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if c, err := r.Cookie("accessToken"); err == nil {
		return c.Value
	}
	return ""
}
