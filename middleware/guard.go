package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/goSession/guard"
	"github.com/MrEthical07/goSession/internal/metrics"
	"github.com/MrEthical07/goSession/store"
	"github.com/MrEthical07/goSession/token"
	"go.uber.org/zap"
)

type stateContextKey struct{}

// StateFromContext returns the guard state of an allowed request.
func StateFromContext(ctx context.Context) (guard.State, bool) {
	s, ok := ctx.Value(stateContextKey{}).(guard.State)
	return s, ok
}

// GuardOptions tune [Guard].
type GuardOptions struct {
	Clock   token.Clock
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Cookies are the attributes used when a redirect clears the session.
	Cookies store.CookieOptions
}

// Guard runs [guard.Table.Decide] for every request using the accessToken and
// refreshToken cookies. Redirect decisions are answered with 307; allowed
// requests continue with the state available via [StateFromContext].
func Guard(table *guard.Table, opts GuardOptions) func(http.Handler) http.Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Cookies.Path == "" {
		opts.Cookies = store.DefaultCookieOptions()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if table == nil {
				http.Error(w, "route table not configured", http.StatusInternalServerError)
				return
			}

			cookies := store.NewCookieStore(w, r, opts.Cookies).WithLogger(log)
			pair := store.Snapshot(r.Context(), cookies)
			state := guard.StateFromTokens(pair.AccessToken, pair.RefreshToken, opts.Clock)

			d := table.Decide(r.URL.Path, state)
			if d.Action == guard.Allow {
				opts.Metrics.Inc(metrics.GuardAllow)
				ctx := context.WithValue(r.Context(), stateContextKey{}, state)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			switch d.Reason {
			case guard.ReasonNoSession:
				opts.Metrics.Inc(metrics.GuardRedirectLogin)
			case guard.ReasonStaleAccess:
				opts.Metrics.Inc(metrics.GuardRedirectRefresh)
			default:
				opts.Metrics.Inc(metrics.GuardRedirectHome)
			}
			if d.ClearTokens() {
				cookies.Clear(r.Context())
			}
			log.Debug("guard redirect",
				zap.String("path", r.URL.Path),
				zap.String("reason", string(d.Reason)),
				zap.String("target", d.Target))
			http.Redirect(w, r, d.Location(), http.StatusTemporaryRedirect)
		})
	}
}
