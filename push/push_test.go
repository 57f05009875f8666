package push

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/internal/metrics"
	"github.com/MrEthical07/goSession/internal/testauthority"
	"github.com/MrEthical07/goSession/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hubFixture struct {
	hub     *Hub
	url     string
	auth    *testauthority.Authority
	metrics *metrics.Metrics
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	auth, err := testauthority.New(testauthority.Config{})
	require.NoError(t, err)
	m := metrics.New(metrics.Config{Enabled: true})
	hub := NewHub(HubOptions{
		Verify:  func(raw string) (*token.Claims, error) { return auth.Issuer().Verify(raw, token.TypeAccess) },
		Metrics: m,
	})
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &hubFixture{hub: hub, url: "ws" + strings.TrimPrefix(srv.URL, "http"), auth: auth, metrics: m}
}

func (f *hubFixture) dial(t *testing.T, userID string) *Client {
	t.Helper()
	access, err := f.auth.Issuer().Issue(token.TypeAccess, userID, "Owner", time.Minute)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, f.url, access, DialOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func receive(t *testing.T, c *Client) Signal {
	t.Helper()
	select {
	case sig, ok := <-c.Signals():
		require.True(t, ok, "signal channel closed")
		return sig
	case <-time.After(5 * time.Second):
		t.Fatal("no signal received")
		return ""
	}
}

func TestPublishReachesOnlyTheUser(t *testing.T) {
	f := newHubFixture(t)
	alice := f.dial(t, "1")
	bob := f.dial(t, "2")
	require.Eventually(t, func() bool { return f.hub.Connections() == 2 }, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, f.hub.Publish("1", ForceRefresh, ""))
	assert.Equal(t, ForceRefresh, receive(t, alice))

	assert.Equal(t, 0, f.hub.Publish("nobody", ForceLogout, ""))

	assert.Equal(t, 2, f.hub.Broadcast(ForceLogout, "maintenance"))
	assert.Equal(t, ForceLogout, receive(t, alice))
	assert.Equal(t, ForceLogout, receive(t, bob))

	require.Eventually(t, func() bool {
		return f.metrics.Value(metrics.PushForceLogout) == 2 && f.metrics.Value(metrics.PushForceRefresh) == 1
	}, 5*time.Second, 5*time.Millisecond)
}

func TestDialRejectsInvalidToken(t *testing.T) {
	f := newHubFixture(t)
	_, err := Dial(context.Background(), f.url, "not-a-token", DialOptions{})
	assert.Error(t, err)

	_, err = Dial(context.Background(), f.url, "", DialOptions{})
	assert.Error(t, err)
	assert.Zero(t, f.hub.Connections())
}

func TestClientCloseUnregisters(t *testing.T) {
	f := newHubFixture(t)
	c := f.dial(t, "1")
	require.Eventually(t, func() bool { return f.hub.Connections() == 1 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.Eventually(t, func() bool { return f.hub.Connections() == 0 }, 5*time.Second, 5*time.Millisecond)

	_, open := <-c.Signals()
	assert.False(t, open)
}

func TestHubCloseEndsClientStream(t *testing.T) {
	f := newHubFixture(t)
	c := f.dial(t, "1")
	require.Eventually(t, func() bool { return f.hub.Connections() == 1 }, 5*time.Second, 5*time.Millisecond)

	f.hub.Close()
	select {
	case _, open := <-c.Signals():
		assert.False(t, open)
	case <-time.After(5 * time.Second):
		t.Fatal("client stream not closed")
	}
}

func TestParseSignalAliases(t *testing.T) {
	cases := map[string]Signal{
		"force-refresh": ForceRefresh,
		"refresh-token": ForceRefresh,
		"force-logout":  ForceLogout,
		" Logout ":      ForceLogout,
	}
	for in, want := range cases {
		got, ok := ParseSignal(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseSignal("new-order")
	assert.False(t, ok)
}

func (f *hubFixture) subscribe(t *testing.T, userID string, opts SubscribeOptions) *Subscription {
	t.Helper()
	access, err := f.auth.Issuer().Issue(token.TypeAccess, userID, "Owner", time.Minute)
	require.NoError(t, err)
	tokens := func(context.Context) (string, bool) { return access, true }
	sub, err := Subscribe(context.Background(), f.url, tokens, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	return sub
}

func TestSubscriptionRedialsAfterDisconnect(t *testing.T) {
	f := newHubFixture(t)
	var drops atomic.Int64
	sub := f.subscribe(t, "1", SubscribeOptions{
		MinBackoff:   10 * time.Millisecond,
		MaxBackoff:   50 * time.Millisecond,
		OnDisconnect: func(error) { drops.Add(1) },
	})
	require.Eventually(t, func() bool { return f.hub.Connections() == 1 }, 5*time.Second, 5*time.Millisecond)

	require.Equal(t, 1, f.hub.Disconnect("1"))
	require.Eventually(t, func() bool {
		return sub.Reconnects() == 1 && f.hub.Connections() == 1
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), drops.Load())

	require.Equal(t, 1, f.hub.Publish("1", ForceLogout, "revoked"))
	select {
	case sig, ok := <-sub.Signals():
		require.True(t, ok)
		assert.Equal(t, ForceLogout, sig)
	case <-time.After(5 * time.Second):
		t.Fatal("no signal after reconnect")
	}
}

func TestSubscriptionCloseStopsRedialing(t *testing.T) {
	f := newHubFixture(t)
	sub := f.subscribe(t, "1", SubscribeOptions{MinBackoff: 10 * time.Millisecond, MaxBackoff: 20 * time.Millisecond})
	require.Eventually(t, func() bool { return f.hub.Connections() == 1 }, 5*time.Second, 5*time.Millisecond)

	// A closed hub refuses every redial.
	f.hub.Close()
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	_, open := <-sub.Signals()
	assert.False(t, open)
	assert.Zero(t, sub.Reconnects())
}

func TestSubscribeRequiresAccessToken(t *testing.T) {
	f := newHubFixture(t)
	_, err := Subscribe(context.Background(), f.url, func(context.Context) (string, bool) { return "", false }, SubscribeOptions{})
	assert.ErrorIs(t, err, ErrNoAccessToken)
	assert.Zero(t, f.hub.Connections())
}
