package guard

import (
	"testing"

	"github.com/MrEthical07/goSession/internal/testauthority"
	"github.com/MrEthical07/goSession/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultTable(t *testing.T) *Table {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Locales = []string{"en", "vi"}
	tbl, err := NewTable(cfg)
	require.NoError(t, err)
	return tbl
}

func TestDecideNoSessionRedirectsToLogin(t *testing.T) {
	d := defaultTable(t).Decide("/manage/accounts", State{})

	assert.Equal(t, Redirect, d.Action)
	assert.Equal(t, ReasonNoSession, d.Reason)
	assert.Equal(t, "/login", d.Target)
	assert.True(t, d.ClearTokens())
	assert.Equal(t, "/login?clearTokens=true", d.Location())
}

func TestDecideResolvesDotSegments(t *testing.T) {
	tbl := defaultTable(t)
	for _, p := range []string{
		"/x/../manage/accounts",
		"/manage/./accounts",
		"/en/../manage/accounts",
		"//manage//accounts/",
		"/%2e%2e/manage/accounts",
		"/login/../manage/accounts",
	} {
		d := tbl.Decide(p, State{})
		assert.Equal(t, Redirect, d.Action, p)
		assert.Equal(t, ReasonNoSession, d.Reason, p)
		assert.Equal(t, "/login?clearTokens=true", d.Location(), p)
	}
	assert.False(t, tbl.IsExempt("/manage/../manage/accounts"))
	assert.True(t, tbl.IsExempt("/manage/../login"))
}

func TestDecideNoSessionIgnoresAccessToken(t *testing.T) {
	d := defaultTable(t).Decide("/manage/dishes", State{AccessToken: "a", Role: RoleOwner})
	assert.Equal(t, ReasonNoSession, d.Reason)
}

func TestDecideLoginWithSessionGoesHome(t *testing.T) {
	d := defaultTable(t).Decide("/login", State{RefreshToken: "r", Role: RoleOwner})

	assert.Equal(t, Redirect, d.Action)
	assert.Equal(t, ReasonAlreadyLogged, d.Reason)
	assert.Equal(t, "/", d.Location())
	assert.False(t, d.ClearTokens())
}

func TestDecideStaleAccessRedirectsToRefresh(t *testing.T) {
	d := defaultTable(t).Decide("/manage/dashboard", State{RefreshToken: "rt-1", Role: RoleEmployee})

	assert.Equal(t, Redirect, d.Action)
	assert.Equal(t, ReasonStaleAccess, d.Reason)
	assert.Equal(t, "/refresh-token", d.Target)
	assert.Equal(t, "/manage/dashboard", d.Params.Get(ParamRedirect))
	assert.Equal(t, "rt-1", d.Params.Get(ParamRefreshToken))
}

func TestDecideStaleAccessBeforeRole(t *testing.T) {
	// A guest with a stale access token is sent to refresh first.
	d := defaultTable(t).Decide("/manage/accounts", State{RefreshToken: "r", Role: RoleGuest})
	assert.Equal(t, ReasonStaleAccess, d.Reason)
}

func TestDecideRoleOutsideSetGoesHome(t *testing.T) {
	tbl := defaultTable(t)
	full := State{AccessToken: "a", RefreshToken: "r"}

	employee := full
	employee.Role = RoleEmployee
	d := tbl.Decide("/manage/accounts", employee)
	assert.Equal(t, ReasonForbiddenRole, d.Reason)
	assert.Equal(t, "/", d.Target)

	assert.Equal(t, Allow, tbl.Decide("/manage/orders", employee).Action)

	owner := full
	owner.Role = RoleOwner
	assert.Equal(t, Allow, tbl.Decide("/manage/accounts/42", owner).Action)

	guest := full
	guest.Role = RoleGuest
	assert.Equal(t, ReasonForbiddenRole, tbl.Decide("/manage", guest).Reason)
	assert.Equal(t, Allow, tbl.Decide("/guest/menu", guest).Action)
}

func TestDecidePublicPathsAllow(t *testing.T) {
	tbl := defaultTable(t)
	for _, path := range []string{"/", "/menu", "/management", "/tables/1", "/login", "/logout", "/refresh-token"} {
		d := tbl.Decide(path, State{})
		assert.Equal(t, Allow, d.Action, path)
		assert.Empty(t, d.Location(), path)
	}
}

func TestExemptPathsNeverRequireAuth(t *testing.T) {
	cfg := DefaultConfig()
	// Even a catch-all protected rule cannot capture the exempt routes.
	cfg.Rules = append(cfg.Rules, Rule{Prefix: "/", RequiresAuth: true})
	tbl, err := NewTable(cfg)
	require.NoError(t, err)

	for _, path := range []string{"/logout", "/refresh-token", "/login"} {
		assert.True(t, tbl.IsExempt(path))
		assert.Equal(t, Allow, tbl.Decide(path, State{}).Action, path)
	}
	assert.Equal(t, ReasonNoSession, tbl.Decide("/menu", State{}).Reason)
}

func TestDecideLocalePrefixes(t *testing.T) {
	tbl := defaultTable(t)

	d := tbl.Decide("/vi/manage/accounts", State{})
	assert.Equal(t, "/vi/login", d.Target)

	d = tbl.Decide("/en/login", State{RefreshToken: "r"})
	assert.Equal(t, "/en", d.Target)

	d = tbl.Decide("/en/manage/dishes", State{RefreshToken: "r", Role: RoleOwner})
	assert.Equal(t, "/en/refresh-token", d.Target)
	assert.Equal(t, "/en/manage/dishes", d.Params.Get(ParamRedirect))

	// Unknown locales are ordinary segments.
	assert.Equal(t, Allow, tbl.Decide("/fr/manage", State{}).Action)
}

func TestDecideIsDeterministic(t *testing.T) {
	tbl := defaultTable(t)
	states := []State{
		{},
		{RefreshToken: "r"},
		{AccessToken: "a", RefreshToken: "r", Role: RoleOwner},
		{AccessToken: "a", RefreshToken: "r", Role: RoleGuest},
	}
	paths := []string{"/", "/login", "/manage", "/manage/accounts", "/guest/orders", "/en/manage"}
	for _, s := range states {
		for _, p := range paths {
			first := tbl.Decide(p, s)
			for i := 0; i < 5; i++ {
				assert.Equal(t, first, tbl.Decide(p, s), "%s %+v", p, s)
			}
		}
	}
}

func TestNewTableValidation(t *testing.T) {
	_, err := NewTable(Config{Rules: []Rule{{Prefix: ""}}})
	assert.Error(t, err)

	_, err = NewTable(Config{Rules: []Rule{{Prefix: "/a"}, {Prefix: "/a/"}}})
	assert.Error(t, err)

	_, err = NewTable(Config{Locales: []string{"en/us"}})
	assert.Error(t, err)
}

func TestMatchLongestPrefixWins(t *testing.T) {
	tbl := defaultTable(t)
	assert.Equal(t, []string{RoleOwner}, tbl.Match("/manage/accounts/7").Roles)
	assert.Equal(t, []string{RoleOwner, RoleEmployee}, tbl.Match("/manage/accountsx").Roles)
	assert.False(t, tbl.Match("/menu").RequiresAuth)
}

func TestStateFromTokens(t *testing.T) {
	auth, err := testauthority.New(testauthority.Config{})
	require.NoError(t, err)
	clock := token.FixedClock(1001) // now = 1000

	access := auth.TokenAt(token.TypeAccess, RoleEmployee, 900, 1200)
	refresh := auth.TokenAt(token.TypeRefresh, RoleOwner, 0, 5000)
	s := StateFromTokens(access, refresh, clock)
	assert.Equal(t, State{AccessToken: access, RefreshToken: refresh, Role: RoleOwner}, s)

	expiredAccess := auth.TokenAt(token.TypeAccess, RoleOwner, 0, 1000)
	s = StateFromTokens(expiredAccess, refresh, clock)
	assert.Empty(t, s.AccessToken)
	assert.Equal(t, RoleOwner, s.Role)

	expiredRefresh := auth.TokenAt(token.TypeRefresh, RoleOwner, 0, 999)
	s = StateFromTokens(access, expiredRefresh, clock)
	assert.Empty(t, s.RefreshToken)
	assert.Empty(t, s.Role)

	s = StateFromTokens("garbage", "garbage", clock)
	assert.Equal(t, State{}, s)
}
