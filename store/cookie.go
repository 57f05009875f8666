package store

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/token"
	"go.uber.org/zap"
)

// CookieOptions are the attributes written on every token cookie.
type CookieOptions struct {
	Path     string
	Domain   string
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
}

// DefaultCookieOptions returns Path=/, HttpOnly, SameSite=Lax, Secure.
func DefaultCookieOptions() CookieOptions {
	return CookieOptions{
		Path:     "/",
		Secure:   true,
		HTTPOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// CookieStore is the server-side store of one HTTP request. Reads see the
// request cookies overlaid with writes made earlier in the same request; writes
// only become visible to the client through the response's Set-Cookie headers.
type CookieStore struct {
	w    http.ResponseWriter
	r    *http.Request
	opts CookieOptions
	log  *zap.Logger

	mu      sync.Mutex
	pending map[Kind]string
}

// NewCookieStore binds a store to one request/response exchange.
func NewCookieStore(w http.ResponseWriter, r *http.Request, opts CookieOptions) *CookieStore {
	if opts.Path == "" {
		opts.Path = "/"
	}
	return &CookieStore{
		w:       w,
		r:       r,
		opts:    opts,
		log:     zap.NewNop(),
		pending: make(map[Kind]string, len(Kinds)),
	}
}

// WithLogger sets the logger used to report undecodable tokens.
func (c *CookieStore) WithLogger(log *zap.Logger) *CookieStore {
	if log != nil {
		c.log = log
	}
	return c
}

func (c *CookieStore) Get(_ context.Context, kind Kind) (string, bool) {
	c.mu.Lock()
	v, touched := c.pending[kind]
	c.mu.Unlock()
	if touched {
		return v, v != ""
	}
	if c.r == nil {
		return "", false
	}
	cookie, err := c.r.Cookie(string(kind))
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func (c *CookieStore) Set(_ context.Context, kind Kind, tok string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.write(kind, tok)
}

func (c *CookieStore) SetPair(_ context.Context, pair Pair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.write(AccessToken, pair.AccessToken)
	c.write(RefreshToken, pair.RefreshToken)
}

func (c *CookieStore) Clear(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.write(AccessToken, "")
	c.write(RefreshToken, "")
}

func (c *CookieStore) write(kind Kind, tok string) {
	c.pending[kind] = tok
	if c.w == nil {
		return
	}
	http.SetCookie(c.w, c.cookie(kind, tok))
}

func (c *CookieStore) cookie(kind Kind, tok string) *http.Cookie {
	cookie := &http.Cookie{
		Name:     string(kind),
		Value:    tok,
		Path:     c.opts.Path,
		Domain:   c.opts.Domain,
		Secure:   c.opts.Secure,
		HttpOnly: c.opts.HTTPOnly,
		SameSite: c.opts.SameSite,
	}
	if tok == "" {
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0)
		return cookie
	}
	claims, err := token.Decode(tok)
	if err != nil {
		c.log.Warn("token cookie written without expiry", zap.String("kind", string(kind)), zap.Error(err))
		return cookie
	}
	cookie.Expires = claims.ExpiresTime()
	return cookie
}
