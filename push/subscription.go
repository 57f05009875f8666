package push

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// ErrNoAccessToken is returned when the token source holds no access token
// to subscribe with.
var ErrNoAccessToken = errors.New("push: no access token to subscribe with")

// TokenSource yields the access token for each (re)connection.
type TokenSource func(ctx context.Context) (string, bool)

// SubscribeOptions tune [Subscribe].
type SubscribeOptions struct {
	DialOptions
	// MinBackoff and MaxBackoff bound the redial delay. Defaults 250ms and 30s.
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// DialTimeout bounds one redial attempt. Default 10s.
	DialTimeout time.Duration
	// OnDisconnect runs each time an established connection drops.
	OnDisconnect func(err error)
	// OnReconnect runs each time a redial succeeds.
	OnReconnect func()
}

// Subscription is a push subscription that survives connection loss: when
// the connection drops it redials with the current access token until Close.
// Signals is closed only by Close.
type Subscription struct {
	url    string
	tokens TokenSource
	opts   SubscribeOptions
	log    *zap.Logger

	signals chan Signal
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	reconnects atomic.Uint64
	closeOnce  sync.Once
}

// Subscribe dials url with the token from tokens and keeps the subscription
// alive. The first dial is synchronous and its error is returned.
func Subscribe(ctx context.Context, url string, tokens TokenSource, opts SubscribeOptions) (*Subscription, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 8
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 250 * time.Millisecond
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = max(30*time.Second, opts.MinBackoff)
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Subscription{
		url:     url,
		tokens:  tokens,
		opts:    opts,
		log:     opts.Logger,
		signals: make(chan Signal, opts.Buffer),
		ctx:     runCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	first, err := s.dial(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	go s.run(first)
	return s, nil
}

// Signals returns the received signals across reconnections.
func (s *Subscription) Signals() <-chan Signal { return s.signals }

// Reconnects returns how many times the subscription redialled successfully.
func (s *Subscription) Reconnects() uint64 { return s.reconnects.Load() }

// Close ends the subscription and waits for the current connection to close.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

func (s *Subscription) dial(ctx context.Context) (*Client, error) {
	tok, ok := s.tokens(ctx)
	if !ok || tok == "" {
		return nil, ErrNoAccessToken
	}
	return Dial(ctx, s.url, tok, s.opts.DialOptions)
}

func (s *Subscription) run(c *Client) {
	defer close(s.done)
	defer close(s.signals)
	for {
		s.forward(c)
		_ = c.Close()
		if s.ctx.Err() != nil {
			return
		}
		if s.opts.OnDisconnect != nil {
			s.opts.OnDisconnect(errors.New("push connection lost"))
		}
		s.log.Info("push connection lost, reconnecting")

		if c = s.redial(); c == nil {
			return
		}
		s.reconnects.Add(1)
		if s.opts.OnReconnect != nil {
			s.opts.OnReconnect()
		}
		s.log.Info("push connection restored", zap.Uint64("reconnects", s.reconnects.Load()))
	}
}

// forward relays c's signals until c ends or the subscription is closed.
func (s *Subscription) forward(c *Client) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case sig, ok := <-c.Signals():
			if !ok {
				return
			}
			select {
			case s.signals <- sig:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

// redial retries with capped exponential backoff. It returns nil once the
// subscription is closed.
func (s *Subscription) redial() *Client {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.MinBackoff
	b.MaxInterval = s.opts.MaxBackoff

	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(b.NextBackOff())
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(s.ctx, s.opts.DialTimeout)
		c, err := s.dial(ctx)
		cancel()
		if err == nil {
			return c
		}
		if s.ctx.Err() != nil {
			return nil
		}
		s.log.Debug("push redial failed", zap.Int("attempt", attempt), zap.Error(err))
	}
}
