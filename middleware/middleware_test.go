package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/MrEthical07/goSession/guard"
	"github.com/MrEthical07/goSession/internal/metrics"
	"github.com/MrEthical07/goSession/internal/testauthority"
	"github.com/MrEthical07/goSession/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wall = 10_001 // token.Now = 10_000

type guardFixture struct {
	auth    *testauthority.Authority
	handler http.Handler
	metrics *metrics.Metrics
	seen    *guard.State
}

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()
	auth, err := testauthority.New(testauthority.Config{})
	require.NoError(t, err)
	tbl, err := guard.NewTable(guard.DefaultConfig())
	require.NoError(t, err)

	f := &guardFixture{auth: auth, metrics: metrics.New(metrics.Config{Enabled: true})}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := StateFromContext(r.Context())
		require.True(t, ok)
		f.seen = &s
		w.WriteHeader(http.StatusNoContent)
	})
	f.handler = Guard(tbl, GuardOptions{Clock: token.FixedClock(wall), Metrics: f.metrics})(next)
	return f
}

func (f *guardFixture) serve(path string, access, refresh string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if access != "" {
		req.AddCookie(&http.Cookie{Name: "accessToken", Value: access})
	}
	if refresh != "" {
		req.AddCookie(&http.Cookie{Name: "refreshToken", Value: refresh})
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestGuardRedirectsAnonymousToLoginAndClears(t *testing.T) {
	f := newGuardFixture(t)
	stale := f.auth.TokenAt(token.TypeAccess, guard.RoleOwner, 0, 100)

	rec := f.serve("/manage/accounts", stale, "")

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/login?clearTokens=true", rec.Header().Get("Location"))
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 2)
	for _, c := range cleared {
		assert.Equal(t, -1, c.MaxAge)
	}
	assert.Equal(t, uint64(1), f.metrics.Value(metrics.GuardRedirectLogin))
}

func TestGuardSendsStaleAccessToRefresh(t *testing.T) {
	f := newGuardFixture(t)
	refresh := f.auth.TokenAt(token.TypeRefresh, guard.RoleOwner, 0, 20_000)
	expiredAccess := f.auth.TokenAt(token.TypeAccess, guard.RoleOwner, 0, 9_000)

	rec := f.serve("/manage/dashboard", expiredAccess, refresh)

	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/refresh-token", loc.Path)
	assert.Equal(t, "/manage/dashboard", loc.Query().Get("redirect"))
	assert.Equal(t, refresh, loc.Query().Get("refreshToken"))
	assert.Empty(t, rec.Result().Cookies())
}

func TestGuardLoginWithSessionGoesHome(t *testing.T) {
	f := newGuardFixture(t)
	refresh := f.auth.TokenAt(token.TypeRefresh, guard.RoleOwner, 0, 20_000)

	rec := f.serve("/login", "", refresh)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, uint64(1), f.metrics.Value(metrics.GuardRedirectHome))
}

func TestGuardAllowsWithState(t *testing.T) {
	f := newGuardFixture(t)
	access := f.auth.TokenAt(token.TypeAccess, guard.RoleEmployee, 9_900, 10_200)
	refresh := f.auth.TokenAt(token.TypeRefresh, guard.RoleEmployee, 0, 20_000)

	rec := f.serve("/manage/orders", access, refresh)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, f.seen)
	assert.Equal(t, guard.RoleEmployee, f.seen.Role)
	assert.Equal(t, uint64(1), f.metrics.Value(metrics.GuardAllow))

	rec = f.serve("/manage/accounts", access, refresh)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestRequireAccessToken(t *testing.T) {
	auth, err := testauthority.New(testauthority.Config{})
	require.NoError(t, err)
	live := auth.TokenAt(token.TypeAccess, guard.RoleOwner, 9_900, 10_200)
	dead := auth.TokenAt(token.TypeAccess, guard.RoleOwner, 0, 10_000)

	var gotRaw string
	h := RequireAccessToken(token.FixedClock(wall))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, raw, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, guard.RoleOwner, claims.Role)
		gotRaw = raw
	}))

	cases := []struct {
		name   string
		setup  func(*http.Request)
		status int
	}{
		{"missing", func(*http.Request) {}, http.StatusUnauthorized},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+live) }, http.StatusOK},
		{"lowercase bearer", func(r *http.Request) { r.Header.Set("Authorization", "bearer "+live) }, http.StatusOK},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "accessToken", Value: live}) }, http.StatusOK},
		{"expired", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+dead) }, http.StatusUnauthorized},
		{"malformed", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotRaw = ""
			req := httptest.NewRequest(http.MethodPut, "/api/accounts/change-password-v2", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, live, gotRaw)
			} else {
				assert.Contains(t, rec.Body.String(), "message")
			}
		})
	}
}
