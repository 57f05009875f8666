package guard

import (
	"net/url"
	"slices"

	"github.com/MrEthical07/goSession/token"
)

// Action is the outcome kind of a decision.
type Action int

const (
	Allow Action = iota
	Redirect
)

func (a Action) String() string {
	if a == Redirect {
		return "redirect"
	}
	return "allow"
}

// Reason names the rule that produced a decision.
type Reason string

const (
	ReasonAllowed       Reason = "allowed"
	ReasonNoSession     Reason = "no_session"
	ReasonAlreadyLogged Reason = "already_logged_in"
	ReasonStaleAccess   Reason = "stale_access_token"
	ReasonForbiddenRole Reason = "forbidden_role"
)

// Redirect parameters.
const (
	ParamClearTokens  = "clearTokens"
	ParamRefreshToken = "refreshToken"
	ParamRedirect     = "redirect"
)

// State is what the guard knows about the caller. Empty strings mean absent.
type State struct {
	AccessToken  string
	RefreshToken string
	Role         string
}

// StateFromTokens builds a State from raw tokens. Expired and malformed
// tokens count as absent; the role is taken from the refresh token only.
func StateFromTokens(access, refresh string, clock token.Clock) State {
	now := token.Now(clock)
	var s State
	if _, ok := token.Live(access, now); ok {
		s.AccessToken = access
	}
	if claims, ok := token.Live(refresh, now); ok {
		s.RefreshToken = refresh
		s.Role = claims.Role
	}
	return s
}

// Decision is the guard's verdict for one navigation.
type Decision struct {
	Action Action
	Reason Reason
	// Target is the redirect path, locale prefix included.
	Target string
	Params url.Values
}

// Location renders Target with its query parameters.
func (d Decision) Location() string {
	if d.Action != Redirect {
		return ""
	}
	if len(d.Params) == 0 {
		return d.Target
	}
	return d.Target + "?" + d.Params.Encode()
}

// ClearTokens reports whether the caller should drop any stored tokens.
func (d Decision) ClearTokens() bool {
	return d.Params.Get(ParamClearTokens) == "true"
}

// Decide applies the guard rules to path.
func (t *Table) Decide(path string, s State) Decision {
	path = cleanPath(path)
	locale, rest := t.splitLocale(path)
	rule := t.match(rest)

	switch {
	case rule.RequiresAuth && s.RefreshToken == "":
		return Decision{
			Action: Redirect,
			Reason: ReasonNoSession,
			Target: withLocale(locale, t.loginPath),
			Params: url.Values{ParamClearTokens: {"true"}},
		}

	case hasSegmentPrefix(rest, t.loginPath) && s.RefreshToken != "":
		return Decision{Action: Redirect, Reason: ReasonAlreadyLogged, Target: withLocale(locale, t.homePath)}

	case rule.RequiresAuth && s.AccessToken == "":
		return Decision{
			Action: Redirect,
			Reason: ReasonStaleAccess,
			Target: withLocale(locale, t.refreshPath),
			Params: url.Values{
				ParamRefreshToken: {s.RefreshToken},
				ParamRedirect:     {path},
			},
		}

	case rule.RequiresAuth && len(rule.Roles) > 0 && !slices.Contains(rule.Roles, s.Role):
		return Decision{Action: Redirect, Reason: ReasonForbiddenRole, Target: withLocale(locale, t.homePath)}
	}
	return Decision{Action: Allow, Reason: ReasonAllowed}
}
