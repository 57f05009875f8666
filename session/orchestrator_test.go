package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/guard"
	"github.com/MrEthical07/goSession/internal/metrics"
	"github.com/MrEthical07/goSession/push"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct {
	ensure atomic.Int64
	force  atomic.Int64

	mu        sync.Mutex
	ensureErr func(n int64) error
}

func (f *fakeRefresher) EnsureFresh(context.Context) error {
	n := f.ensure.Add(1)
	f.mu.Lock()
	fn := f.ensureErr
	f.mu.Unlock()
	if fn != nil {
		return fn(n)
	}
	return nil
}

func (f *fakeRefresher) ForceRefresh(context.Context) error {
	f.force.Add(1)
	return nil
}

type fakeSource struct {
	ch     chan push.Signal
	closed atomic.Int64
	once   sync.Once
}

func newFakeSource() *fakeSource { return &fakeSource{ch: make(chan push.Signal, 4)} }

func (s *fakeSource) Signals() <-chan push.Signal { return s.ch }

func (s *fakeSource) Close() error {
	s.closed.Add(1)
	return nil
}

type fakeLogout struct{ calls atomic.Int64 }

func (f *fakeLogout) ForceLogout(context.Context) { f.calls.Add(1) }

type navCounter struct {
	calls  atomic.Int64
	target atomic.Value
}

func (n *navCounter) Navigate(_ context.Context, target string) {
	n.calls.Add(1)
	n.target.Store(target)
}

func waitDone(t *testing.T, o *Orchestrator) {
	t.Helper()
	select {
	case <-o.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("orchestrator did not stop")
	}
}

func TestStartChecksImmediately(t *testing.T) {
	r := &fakeRefresher{}
	o := New(Config{Interval: time.Hour}, r)
	o.Start(context.Background())
	defer o.Stop()

	require.Eventually(t, func() bool { return r.ensure.Load() == 1 }, time.Second, time.Millisecond)
}

func TestTicksOnInterval(t *testing.T) {
	r := &fakeRefresher{}
	o := New(Config{Interval: 5 * time.Millisecond}, r)
	o.Start(context.Background())

	require.Eventually(t, func() bool { return r.ensure.Load() >= 4 }, 2*time.Second, time.Millisecond)
	o.Stop()
	assert.NoError(t, o.Err())

	after := r.ensure.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, r.ensure.Load(), "no tick after Stop")
}

func TestSessionExpiredIsTerminal(t *testing.T) {
	r := &fakeRefresher{ensureErr: func(n int64) error {
		if n >= 3 {
			return refresh.ErrSessionExpired
		}
		return nil
	}}
	src := newFakeSource()
	nav := &navCounter{}
	m := metrics.New(metrics.Config{Enabled: true})
	o := New(Config{Interval: 2 * time.Millisecond}, r, WithSignals(src), WithNavigator(nav), WithMetrics(m))
	o.Start(context.Background())

	waitDone(t, o)
	assert.ErrorIs(t, o.Err(), refresh.ErrSessionExpired)
	assert.Equal(t, int64(3), r.ensure.Load())
	assert.Equal(t, int64(1), src.closed.Load())
	assert.Equal(t, int64(1), nav.calls.Load())
	assert.Equal(t, "/login", nav.target.Load())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(3), r.ensure.Load(), "no tick after teardown")

	// Terminal: starting again does nothing.
	o.Start(context.Background())
	assert.Error(t, o.Run(context.Background()))
}

func TestExpiredOnFirstCheck(t *testing.T) {
	r := &fakeRefresher{ensureErr: func(int64) error { return refresh.ErrSessionExpired }}
	nav := &navCounter{}
	o := New(Config{Interval: time.Hour, LoginRoute: "/vi/login"}, r, WithNavigator(nav))

	err := o.Run(context.Background())
	require.ErrorIs(t, err, refresh.ErrSessionExpired)
	assert.Equal(t, "/vi/login", nav.target.Load())
	assert.ErrorIs(t, o.Err(), refresh.ErrSessionExpired)
}

func TestForceRefreshSignal(t *testing.T) {
	r := &fakeRefresher{}
	src := newFakeSource()
	o := New(Config{Interval: time.Hour}, r, WithSignals(src))
	o.Start(context.Background())
	defer o.Stop()

	src.ch <- push.ForceRefresh
	require.Eventually(t, func() bool { return r.force.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int64(1), r.ensure.Load())
}

func TestForceLogoutSignal(t *testing.T) {
	r := &fakeRefresher{}
	src := newFakeSource()
	lo := &fakeLogout{}
	o := New(Config{Interval: time.Hour}, r, WithSignals(src), WithLogouter(lo))
	o.Start(context.Background())

	src.ch <- push.ForceLogout
	waitDone(t, o)
	assert.ErrorIs(t, o.Err(), ErrLoggedOut)
	assert.Equal(t, int64(1), lo.calls.Load())
	assert.Equal(t, int64(1), src.closed.Load())
}

func TestClosedSignalChannelKeepsTicking(t *testing.T) {
	r := &fakeRefresher{}
	src := newFakeSource()
	m := metrics.New(metrics.Config{Enabled: true})
	o := New(Config{Interval: 5 * time.Millisecond}, r, WithSignals(src), WithMetrics(m))
	o.Start(context.Background())
	defer o.Stop()

	close(src.ch)
	require.Eventually(t, func() bool { return m.Value(metrics.PushDisconnect) == 1 }, time.Second, time.Millisecond)
	before := r.ensure.Load()
	require.Eventually(t, func() bool { return r.ensure.Load() > before+2 }, 2*time.Second, time.Millisecond)
}

func TestStopTearsDownAndReportsNil(t *testing.T) {
	src := newFakeSource()
	o := New(Config{Interval: time.Hour}, &fakeRefresher{}, WithSignals(src))
	o.Start(context.Background())
	o.Stop()
	o.Stop()

	assert.NoError(t, o.Err())
	assert.Equal(t, int64(1), src.closed.Load())
}

func TestParentCancellationIsReported(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	o := New(Config{Interval: time.Hour}, &fakeRefresher{})
	o.Start(ctx)
	cancel()
	waitDone(t, o)
	assert.ErrorIs(t, o.Err(), context.Canceled)
}

func TestExchangeFailuresAreRetried(t *testing.T) {
	fail := errors.New("authority down")
	r := &fakeRefresher{ensureErr: func(int64) error { return &refresh.ExchangeError{Err: fail} }}
	o := New(Config{Interval: time.Millisecond, MaxBackoff: 4 * time.Millisecond}, r)
	o.Start(context.Background())
	defer o.Stop()

	require.Eventually(t, func() bool { return r.ensure.Load() >= 3 }, 2*time.Second, time.Millisecond)
	select {
	case <-o.Done():
		t.Fatal("exchange failures must not end the session")
	default:
	}
}

func TestNextDelay(t *testing.T) {
	sec := time.Second
	assert.Equal(t, sec, nextDelay(sec, 0, 5))
	assert.Equal(t, sec, nextDelay(sec, 30*sec, 0))
	assert.Equal(t, 2*sec, nextDelay(sec, 30*sec, 1))
	assert.Equal(t, 8*sec, nextDelay(sec, 30*sec, 3))
	assert.Equal(t, 30*sec, nextDelay(sec, 30*sec, 10))
	assert.Equal(t, 30*sec, nextDelay(sec, 30*sec, 1000))
	assert.Equal(t, sec, nextDelay(sec, sec/2, 3))
}

func TestShouldRun(t *testing.T) {
	o := New(Config{}, &fakeRefresher{})
	assert.False(t, o.ShouldRun("/login"))
	assert.False(t, o.ShouldRun("/refresh-token"))
	assert.False(t, o.ShouldRun("/logout/confirm"))
	assert.True(t, o.ShouldRun("/manage/dishes"))
	assert.True(t, o.ShouldRun("/loginx"))

	cfg := guard.DefaultConfig()
	cfg.Locales = []string{"en"}
	tbl, err := guard.NewTable(cfg)
	require.NoError(t, err)
	o = New(Config{}, &fakeRefresher{}, WithRoutes(tbl))
	assert.False(t, o.ShouldRun("/en/login"))
	assert.True(t, o.ShouldRun("/en/manage"))
}
