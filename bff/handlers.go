package bff

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/guard"
	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/metrics"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/MrEthical07/goSession/pipeline"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/store"
	"github.com/MrEthical07/goSession/token"
	"go.uber.org/zap"
)

func (s *Server) cookieStore(w http.ResponseWriter, r *http.Request) *store.CookieStore {
	return store.NewCookieStore(w, r, s.cookies).WithLogger(s.log)
}

// coordinator renews the pair held in one request's cookies.
func (s *Server) coordinator(cookies store.Store) *refresh.Coordinator {
	return refresh.New(cookies, s.auth,
		refresh.WithClock(s.clock),
		refresh.WithLogger(s.log),
		refresh.WithMetrics(s.metrics),
		refresh.WithAudit(s.audit),
	)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body authapi.LoginBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ip := clientIP(r)
	if err := s.limiter.Allow(ctx, body.Email, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			s.rejectThrottled(w, r)
			return
		}
		s.log.Warn("login throttle unavailable", zap.Error(err))
	}

	env, err := s.auth.Login(ctx, body)
	if err != nil {
		var entity *pipeline.EntityError
		if errors.As(err, &entity) {
			if ferr := s.limiter.Fail(ctx, body.Email, ip); ferr != nil && !errors.Is(ferr, rate.ErrRateLimited) {
				s.log.Warn("login throttle unavailable", zap.Error(ferr))
			}
		}
		s.metrics.Inc(metrics.LoginFailure)
		audit.Emit(ctx, s.audit, audit.Event{
			EventType: audit.EventLogin,
			RequestID: RequestID(ctx),
			Error:     err.Error(),
		})
		s.log.Info("login rejected", zap.String("request_id", RequestID(ctx)), zap.Error(err))
		writeUpstreamError(w, err)
		return
	}

	if err := s.limiter.Reset(ctx, body.Email, ip); err != nil {
		s.log.Warn("login throttle reset failed", zap.Error(err))
	}
	s.cookieStore(w, r).SetPair(ctx, env.Data.Pair())
	s.metrics.Inc(metrics.LoginSuccess)
	ev := audit.Event{EventType: audit.EventLogin, RequestID: RequestID(ctx), Success: true}
	if acc := env.Data.Account; acc != nil {
		ev.UserID, ev.Role = strconv.Itoa(acc.ID), acc.Role
	}
	audit.Emit(ctx, s.audit, ev)
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) rejectThrottled(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.metrics.Inc(metrics.LoginThrottled)
	audit.Emit(ctx, s.audit, audit.Event{
		EventType: audit.EventLogin,
		RequestID: RequestID(ctx),
		Error:     rate.ErrRateLimited.Error(),
	})
	w.Header().Set("Retry-After", strconv.Itoa(int(s.limiter.RetryAfter().Seconds())))
	writeMessage(w, http.StatusTooManyRequests, "Too many failed logins, try again later")
}

// clientIP is the peer address. Forwarding headers are not trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type logoutCall func(ctx context.Context, accessToken, refreshToken string) (*authapi.MessageResponse, error)

// handleLogout always answers 200 and always deletes the cookies. Tokens come
// from the cookies first, then from the Authorization header and body.
func (s *Server) handleLogout(call logoutCall) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		cookies := s.cookieStore(w, r)

		access, ok := cookies.Get(ctx, store.AccessToken)
		if !ok {
			access = middleware.AccessToken(r)
		}
		refreshToken, ok := cookies.Get(ctx, store.RefreshToken)
		if !ok {
			var body authapi.RefreshBody
			_ = json.NewDecoder(r.Body).Decode(&body)
			refreshToken = body.RefreshToken
		}

		cookies.Clear(ctx)
		s.metrics.Inc(metrics.Logout)

		if access == "" || refreshToken == "" {
			writeMessage(w, http.StatusOK, "No session to revoke, cookies cleared")
			return
		}

		ev := audit.Event{EventType: audit.EventLogout, RequestID: RequestID(ctx), Success: true}
		if claims, err := token.Decode(refreshToken); err == nil {
			ev.UserID, ev.Role = claims.UserID, claims.Role
		}
		if _, err := call(ctx, access, refreshToken); err != nil {
			ev.Success, ev.Error = false, err.Error()
			audit.Emit(ctx, s.audit, ev)
			s.log.Warn("authority logout failed, cookies cleared anyway",
				zap.String("request_id", RequestID(ctx)), zap.Error(err))
			writeMessage(w, http.StatusOK, "Logout failed at the authority, cookies cleared")
			return
		}
		audit.Emit(ctx, s.audit, ev)
		writeMessage(w, http.StatusOK, "Logout successful")
	}
}

// handleRefresh renews the pair from the refresh cookie, or from the body when
// the caller has no cookie jar. Any failure is a 401.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	refreshToken := ""
	if c, err := r.Cookie(string(store.RefreshToken)); err == nil {
		refreshToken = c.Value
	}
	if refreshToken == "" {
		var body authapi.RefreshBody
		_ = json.NewDecoder(r.Body).Decode(&body)
		refreshToken = body.RefreshToken
		if refreshToken != "" {
			r = r.Clone(ctx)
			r.AddCookie(&http.Cookie{Name: string(store.RefreshToken), Value: refreshToken})
		}
	}
	if refreshToken == "" {
		writeMessage(w, http.StatusUnauthorized, "refresh token not found")
		return
	}
	if _, err := token.Decode(refreshToken); err != nil {
		writeMessage(w, http.StatusUnauthorized, "refresh token is malformed")
		return
	}

	cookies := s.cookieStore(w, r)
	if err := s.coordinator(cookies).ForceRefresh(ctx); err != nil {
		s.log.Info("refresh rejected", zap.String("request_id", RequestID(ctx)), zap.Error(err))
		writeMessage(w, http.StatusUnauthorized, refreshFailureMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, authapi.Envelope[store.Pair]{
		Message: "Refresh token successful",
		Data:    store.Snapshot(ctx, cookies),
	})
}

func refreshFailureMessage(err error) string {
	if errors.Is(err, refresh.ErrSessionExpired) {
		return "refresh token expired"
	}
	if msg := pipeline.ErrorMessage(err); msg != pipeline.UnknownErrorMessage {
		return msg
	}
	return "refresh failed"
}

// handleSetToken mirrors a pair obtained outside the BFF into cookies.
func (s *Server) handleSetToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var pair store.Pair
	if err := json.NewDecoder(r.Body).Decode(&pair); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		writeMessage(w, http.StatusBadRequest, "accessToken and refreshToken are required")
		return
	}
	for _, raw := range []string{pair.AccessToken, pair.RefreshToken} {
		if _, err := token.Decode(raw); err != nil {
			writeMessage(w, http.StatusBadRequest, "token is malformed")
			return
		}
	}
	s.cookieStore(w, r).SetPair(ctx, pair)
	writeJSON(w, http.StatusOK, authapi.Envelope[store.Pair]{Message: "Tokens stored", Data: pair})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, access, _ := middleware.ClaimsFromContext(ctx)

	var body authapi.ChangePasswordBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ev := audit.Event{EventType: audit.EventPasswordChange, RequestID: RequestID(ctx)}
	if claims != nil {
		ev.UserID, ev.Role = claims.UserID, claims.Role
	}
	env, err := s.auth.ChangePassword(ctx, access, body)
	if err != nil {
		ev.Error = err.Error()
		audit.Emit(ctx, s.audit, ev)
		writeUpstreamError(w, err)
		return
	}

	s.cookieStore(w, r).SetPair(ctx, env.Data.Pair())
	s.metrics.Inc(metrics.PasswordChange)
	ev.Success = true
	audit.Emit(ctx, s.audit, ev)
	writeJSON(w, http.StatusOK, env)
}

// handleLogoutConfirm logs out only when a token in the query matches the
// caller's cookie, so a foreign link cannot end someone's session.
func (s *Server) handleLogoutConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	cookies := s.cookieStore(w, r)
	pair := store.Snapshot(ctx, cookies)

	matches := func(param, current string) bool {
		v := q.Get(param)
		return v != "" && v == current
	}
	if !matches(guard.ParamRefreshToken, pair.RefreshToken) && !matches("accessToken", pair.AccessToken) {
		http.Redirect(w, r, s.table.HomePath(), http.StatusTemporaryRedirect)
		return
	}

	if pair.AccessToken != "" && pair.RefreshToken != "" {
		if _, err := s.auth.Logout(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
			s.log.Warn("authority logout failed during confirmation", zap.Error(err))
		}
	}
	cookies.Clear(ctx)
	s.metrics.Inc(metrics.Logout)
	audit.Emit(ctx, s.audit, audit.Event{EventType: audit.EventLogout, RequestID: RequestID(ctx), Success: true})
	http.Redirect(w, r, s.table.LoginPath(), http.StatusTemporaryRedirect)
}

// handleRefreshConfirm renews the pair when the query's refresh token matches
// the cookie, then returns to the local redirect path.
func (s *Server) handleRefreshConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	cookies := s.cookieStore(w, r)

	current, ok := cookies.Get(ctx, store.RefreshToken)
	if want := q.Get(guard.ParamRefreshToken); !ok || want == "" || want != current {
		http.Redirect(w, r, s.table.LoginPath(), http.StatusTemporaryRedirect)
		return
	}

	if err := s.coordinator(cookies).ForceRefresh(ctx); err != nil {
		s.log.Info("refresh confirmation failed", zap.Error(err))
		cookies.Clear(ctx)
		http.Redirect(w, r, s.table.LoginPath(), http.StatusTemporaryRedirect)
		return
	}
	http.Redirect(w, r, localRedirect(q.Get(guard.ParamRedirect), s.table.HomePath()), http.StatusTemporaryRedirect)
}

// localRedirect returns target when it is a path on this origin, fallback
// otherwise.
func localRedirect(target, fallback string) string {
	if target == "" || !strings.HasPrefix(target, "/") ||
		strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return target
}

// writeUpstreamError relays an authority failure: validation errors and other
// HTTP failures keep their status and payload, everything else is a 500.
func writeUpstreamError(w http.ResponseWriter, err error) {
	var (
		entity  *pipeline.EntityError
		httpErr *pipeline.HTTPError
	)
	switch {
	case errors.As(err, &entity):
		writeJSON(w, entity.Status, map[string]any{"message": entity.Message, "errors": entity.Fields})
	case errors.As(err, &httpErr):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpErr.Status)
		if len(httpErr.Payload) > 0 {
			_, _ = w.Write(httpErr.Payload)
		}
	case errors.Is(err, pipeline.ErrUnauthorized):
		writeMessage(w, http.StatusUnauthorized, "access token rejected by the authority")
	default:
		writeMessage(w, http.StatusInternalServerError, pipeline.UnknownErrorMessage)
	}
}
