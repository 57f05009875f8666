// Package testauthority is an in-process stand-in for the remote
// authentication authority. It issues real HS256 token pairs, keeps a small
// account table, and counts calls per endpoint so tests can assert
// single-flight behaviour. sessiond uses it in mock mode.
package testauthority

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSession/token"
	"go.uber.org/zap"
)

// Endpoint identifies one authority route for call counting.
type Endpoint string

const (
	Login          Endpoint = "auth/login"
	Refresh        Endpoint = "auth/refresh-token"
	Logout         Endpoint = "auth/logout"
	GuestLogout    Endpoint = "guest/auth/logout"
	ChangePassword Endpoint = "accounts/change-password-v2"
	Me             Endpoint = "accounts/me"
)

// Account is one user known to the authority.
type Account struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Password string `json:"-"`

	passwordHash string
}

// Config configures an Authority. Zero values fall back to the defaults
// documented on each field.
type Config struct {
	// Secret signs tokens with HS256. Default: a fixed development secret.
	Secret []byte
	// AccessTTL defaults to 5 minutes.
	AccessTTL time.Duration
	// RefreshTTL defaults to 24 hours.
	RefreshTTL time.Duration
	// Clock defaults to time.Now.
	Clock token.Clock
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// Accounts defaults to DefaultAccounts().
	Accounts []Account
}

// DefaultAccounts returns the seed accounts used when none are configured.
func DefaultAccounts() []Account {
	return []Account{
		{ID: 1, Name: "Owner", Email: "admin@order.com", Role: "Owner", Password: "123456"},
		{ID: 2, Name: "Employee", Email: "employee@order.com", Role: "Employee", Password: "123456"},
	}
}

// Authority serves the remote authority API over HTTP.
type Authority struct {
	issuer *token.Issuer
	log    *zap.Logger

	mu       sync.Mutex
	accounts map[string]*Account
	revoked  map[string]struct{}

	calls        sync.Map // Endpoint -> *atomic.Int64
	refreshDelay atomic.Int64
	refreshFail  atomic.Int32
}

// New builds an Authority from cfg.
func New(cfg Config) (*Authority, error) {
	if len(cfg.Secret) == 0 {
		cfg.Secret = []byte("gosession-development-secret")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 5 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 24 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Accounts == nil {
		cfg.Accounts = DefaultAccounts()
	}

	issuer, err := token.NewIssuer(token.IssuerConfig{
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		SigningMethod: token.MethodHS256,
		PrivateKey:    cfg.Secret,
		Issuer:        "goSession-testauthority",
	})
	if err != nil {
		return nil, err
	}
	if cfg.Clock != nil {
		issuer.WithClock(cfg.Clock)
	}

	a := &Authority{
		issuer:   issuer,
		log:      cfg.Logger,
		accounts: make(map[string]*Account, len(cfg.Accounts)),
		revoked:  make(map[string]struct{}),
	}
	for i := range cfg.Accounts {
		acc := cfg.Accounts[i]
		if acc.passwordHash, err = hashPassword(acc.Password); err != nil {
			return nil, err
		}
		acc.Password = ""
		a.accounts[strings.ToLower(acc.Email)] = &acc
	}
	return a, nil
}

// Issuer exposes the signer so tests can mint tokens with exact windows.
func (a *Authority) Issuer() *token.Issuer { return a.issuer }

// TokenAt mints a token of tokenType for role valid over [iat, exp].
func (a *Authority) TokenAt(tokenType, role string, iat, exp int64) string {
	raw, err := a.issuer.IssueAt(tokenType, "1", role, time.Unix(iat, 0), time.Duration(exp-iat)*time.Second)
	if err != nil {
		panic(err)
	}
	return raw
}

// Calls returns how many requests ep has served.
func (a *Authority) Calls(ep Endpoint) int64 {
	return a.counter(ep).Load()
}

// SetRefreshDelay makes every refresh exchange sleep for d before answering.
func (a *Authority) SetRefreshDelay(d time.Duration) { a.refreshDelay.Store(int64(d)) }

// SetRefreshFailure makes refresh exchanges answer with status until reset
// with 0.
func (a *Authority) SetRefreshFailure(status int) { a.refreshFail.Store(int32(status)) }

func (a *Authority) counter(ep Endpoint) *atomic.Int64 {
	v, _ := a.calls.LoadOrStore(ep, new(atomic.Int64))
	return v.(*atomic.Int64)
}

// Handler returns the authority's routes, rooted at "/".
func (a *Authority) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /"+string(Login), a.handleLogin)
	mux.HandleFunc("POST /"+string(Refresh), a.handleRefresh)
	mux.HandleFunc("POST /"+string(Logout), a.handleLogout(Logout))
	mux.HandleFunc("POST /"+string(GuestLogout), a.handleLogout(GuestLogout))
	mux.HandleFunc("PUT /"+string(ChangePassword), a.handleChangePassword)
	mux.HandleFunc("GET /"+string(Me), a.handleMe)
	return mux
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type pairData struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	Account      *Account `json:"account,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func writeEntity(w http.ResponseWriter, errs ...fieldError) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"message": "Validation error",
		"errors":  errs,
	})
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func (a *Authority) issuePair(acc *Account) (pairData, error) {
	access, refresh, err := a.issuer.IssuePair(strconv.Itoa(acc.ID), acc.Role)
	if err != nil {
		return pairData{}, err
	}
	return pairData{AccessToken: access, RefreshToken: refresh, Account: acc}, nil
}

func (a *Authority) handleLogin(w http.ResponseWriter, r *http.Request) {
	a.counter(Login).Add(1)

	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid body")
		return
	}

	var errs []fieldError
	if strings.TrimSpace(body.Email) == "" {
		errs = append(errs, fieldError{Field: "email", Message: "Email is required"})
	}
	if len(body.Password) < 6 {
		errs = append(errs, fieldError{Field: "password", Message: "Password must be at least 6 characters"})
	}
	if len(errs) > 0 {
		writeEntity(w, errs...)
		return
	}

	a.mu.Lock()
	acc, ok := a.accounts[strings.ToLower(body.Email)]
	var stored string
	if ok {
		stored = acc.passwordHash
	}
	a.mu.Unlock()
	if ok {
		ok, _ = verifyPassword(body.Password, stored)
	}
	if !ok {
		writeEntity(w, fieldError{Field: "email", Message: "Email or password is incorrect"})
		return
	}

	pair, err := a.issuePair(acc)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.log.Debug("login", zap.String("email", acc.Email))
	writeJSON(w, http.StatusOK, map[string]any{"message": "Login successful", "data": pair})
}

func (a *Authority) handleRefresh(w http.ResponseWriter, r *http.Request) {
	a.counter(Refresh).Add(1)

	if d := time.Duration(a.refreshDelay.Load()); d > 0 {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
	}
	if status := int(a.refreshFail.Load()); status != 0 {
		writeMessage(w, status, "refresh unavailable")
		return
	}

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		writeMessage(w, http.StatusUnauthorized, "refresh token is required")
		return
	}
	claims, err := a.issuer.Verify(body.RefreshToken, token.TypeRefresh)
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "refresh token is invalid")
		return
	}

	a.mu.Lock()
	if _, gone := a.revoked[body.RefreshToken]; gone {
		a.mu.Unlock()
		writeMessage(w, http.StatusUnauthorized, "refresh token was revoked")
		return
	}
	a.revoked[body.RefreshToken] = struct{}{}
	a.mu.Unlock()

	access, refresh, err := a.issuer.IssuePair(claims.UserID, claims.Role)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Refresh token successful",
		"data":    pairData{AccessToken: access, RefreshToken: refresh},
	})
}

func (a *Authority) handleLogout(ep Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.counter(ep).Add(1)
		if _, err := a.issuer.Verify(bearer(r), token.TypeAccess); err != nil {
			writeMessage(w, http.StatusUnauthorized, "access token is invalid")
			return
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.RefreshToken != "" {
			a.mu.Lock()
			a.revoked[body.RefreshToken] = struct{}{}
			a.mu.Unlock()
		}
		writeMessage(w, http.StatusOK, "Logout successful")
	}
}

func (a *Authority) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	a.counter(ChangePassword).Add(1)

	acc, err := a.accountFor(r)
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, err.Error())
		return
	}
	var body struct {
		OldPassword     string `json:"oldPassword"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid body")
		return
	}

	a.mu.Lock()
	stored := acc.passwordHash
	a.mu.Unlock()
	if ok, _ := verifyPassword(body.OldPassword, stored); !ok {
		writeEntity(w, fieldError{Field: "oldPassword", Message: "Old password is incorrect"})
		return
	}
	switch {
	case len(body.Password) < 6:
		writeEntity(w, fieldError{Field: "password", Message: "Password must be at least 6 characters"})
		return
	case body.Password != body.ConfirmPassword:
		writeEntity(w, fieldError{Field: "confirmPassword", Message: "Passwords do not match"})
		return
	}
	next, err := hashPassword(body.Password)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.mu.Lock()
	acc.passwordHash = next
	a.mu.Unlock()

	pair, err := a.issuePair(acc)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Password changed", "data": pair})
}

func (a *Authority) handleMe(w http.ResponseWriter, r *http.Request) {
	a.counter(Me).Add(1)
	acc, err := a.accountFor(r)
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "OK", "data": acc})
}

func (a *Authority) accountFor(r *http.Request) (*Account, error) {
	claims, err := a.issuer.Verify(bearer(r), token.TypeAccess)
	if err != nil {
		return nil, errors.New("access token is invalid")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, acc := range a.accounts {
		if strconv.Itoa(acc.ID) == claims.UserID {
			return acc, nil
		}
	}
	return nil, errors.New("account not found")
}
