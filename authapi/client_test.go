package authapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrEthical07/goSession/pipeline"
	"github.com/MrEthical07/goSession/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBFF struct {
	*httptest.Server
	mux         *http.ServeMux
	logoutCalls atomic.Int64
	lastBody    atomic.Value
}

func newFakeBFF(t *testing.T) *fakeBFF {
	t.Helper()
	f := &fakeBFF{mux: http.NewServeMux()}
	f.mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"message":"ok","data":{"accessToken":"a1","refreshToken":"r1","account":{"id":1,"role":"Owner"}}}`)
	})
	logout := func(w http.ResponseWriter, r *http.Request) {
		f.logoutCalls.Add(1)
		raw, _ := io.ReadAll(r.Body)
		f.lastBody.Store(string(raw))
		_, _ = io.WriteString(w, `{"message":"Logout successful"}`)
	}
	f.mux.HandleFunc("POST /api/auth/logout", logout)
	f.mux.HandleFunc("POST /api/guest/auth/logout", logout)
	f.mux.HandleFunc("POST /api/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		var body RefreshBody
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.RefreshToken != "r1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"message":"refresh token is invalid"}`)
			return
		}
		_, _ = io.WriteString(w, `{"message":"ok","data":{"accessToken":"a2","refreshToken":"r2"}}`)
	})
	f.mux.HandleFunc("POST /api/auth/token", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		f.lastBody.Store(string(raw))
		_, _ = io.WriteString(w, `{"message":"ok"}`)
	})
	f.mux.HandleFunc("PUT /api/accounts/change-password-v2", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"message":"ok","data":{"accessToken":"a3","refreshToken":"r3"}}`)
	})
	f.Server = httptest.NewServer(f.mux)
	t.Cleanup(f.Close)
	return f
}

func newTestClient(t *testing.T, f *fakeBFF) (*Client, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	cfg := pipeline.DefaultConfig()
	cfg.Mode = pipeline.ClientMode
	cfg.BaseURL = f.URL + "/remote"
	cfg.OriginURL = f.URL
	p, err := pipeline.New(cfg, pipeline.WithStore(mem))
	require.NoError(t, err)
	c, err := NewClient(p, nil)
	require.NoError(t, err)
	return c, mem
}

func TestNewClientRejectsServerPipeline(t *testing.T) {
	p, err := pipeline.New(pipeline.Config{Mode: pipeline.ServerMode})
	require.NoError(t, err)
	_, err = NewClient(p, nil)
	assert.Error(t, err)
}

func TestClientLoginStoresPair(t *testing.T) {
	f := newFakeBFF(t)
	c, mem := newTestClient(t, f)

	env, err := c.Login(context.Background(), LoginBody{Email: "admin@order.com", Password: "123456"})
	require.NoError(t, err)
	assert.Equal(t, "Owner", env.Data.Account.Role)
	assert.Equal(t, store.Pair{AccessToken: "a1", RefreshToken: "r1"}, store.Snapshot(context.Background(), mem))
}

func TestClientLogoutClearsAndSendsRefreshToken(t *testing.T) {
	f := newFakeBFF(t)
	c, mem := newTestClient(t, f)
	mem.SetPair(context.Background(), store.Pair{AccessToken: "a1", RefreshToken: "r1"})

	c.Logout(context.Background())

	assert.EqualValues(t, 1, f.logoutCalls.Load())
	assert.JSONEq(t, `{"refreshToken":"r1"}`, f.lastBody.Load().(string))
	assert.True(t, store.Snapshot(context.Background(), mem).Empty())
}

func TestClientLogoutClearsWhenRemoteFails(t *testing.T) {
	f := newFakeBFF(t)
	c, mem := newTestClient(t, f)
	mem.SetPair(context.Background(), store.Pair{AccessToken: "a1", RefreshToken: "r1"})
	f.Close()

	c.Logout(context.Background())
	assert.True(t, store.Snapshot(context.Background(), mem).Empty())
}

func TestClientGuestLogout(t *testing.T) {
	f := newFakeBFF(t)
	c, mem := newTestClient(t, f)
	mem.SetPair(context.Background(), store.Pair{AccessToken: "a1", RefreshToken: "r1"})

	c.GuestLogout(context.Background())
	assert.EqualValues(t, 1, f.logoutCalls.Load())
	assert.True(t, store.Snapshot(context.Background(), mem).Empty())
}

func TestClientRefresh(t *testing.T) {
	f := newFakeBFF(t)
	c, _ := newTestClient(t, f)

	pair, err := c.Refresh(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, store.Pair{AccessToken: "a2", RefreshToken: "r2"}, pair)
}

func TestClientRefreshUnauthorizedForcesLogout(t *testing.T) {
	f := newFakeBFF(t)
	c, mem := newTestClient(t, f)
	mem.SetPair(context.Background(), store.Pair{AccessToken: "a1", RefreshToken: "stale"})

	_, err := c.Refresh(context.Background(), "stale")
	assert.ErrorIs(t, err, pipeline.ErrUnauthorized)
	assert.EqualValues(t, 1, f.logoutCalls.Load())
	assert.True(t, store.Snapshot(context.Background(), mem).Empty())
}

func TestClientSetTokenCookies(t *testing.T) {
	f := newFakeBFF(t)
	c, _ := newTestClient(t, f)

	require.NoError(t, c.SetTokenCookies(context.Background(), store.Pair{AccessToken: "a", RefreshToken: "r"}))
	assert.JSONEq(t, `{"accessToken":"a","refreshToken":"r"}`, f.lastBody.Load().(string))
}

func TestClientChangePasswordStoresPair(t *testing.T) {
	f := newFakeBFF(t)
	c, mem := newTestClient(t, f)
	mem.SetPair(context.Background(), store.Pair{AccessToken: "a1", RefreshToken: "r1"})

	_, err := c.ChangePassword(context.Background(), ChangePasswordBody{OldPassword: "123456", Password: "abcdef", ConfirmPassword: "abcdef"})
	require.NoError(t, err)
	assert.Equal(t, store.Pair{AccessToken: "a3", RefreshToken: "r3"}, store.Snapshot(context.Background(), mem))
}
