package token

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformedToken is returned when a token cannot be decoded into the expected claim shape.
// Consumers treat a malformed token exactly like an absent one.
var ErrMalformedToken = errors.New("malformed token")

// Token types carried in the tokenType claim.
const (
	TypeAccess  = "AccessToken"
	TypeRefresh = "RefreshToken"
)

// Claims is the decoded, unverified view of a token.
type Claims struct {
	UserID    string
	Role      string
	TokenType string
	IssuedAt  int64
	ExpiresAt int64
}

// Expired reports whether the token is expired at now (see [Now]).
func (c *Claims) Expired(now int64) bool {
	return c == nil || c.ExpiresAt <= now
}

// Lifetime is the total validity window in seconds.
func (c *Claims) Lifetime() int64 {
	if c == nil {
		return 0
	}
	return c.ExpiresAt - c.IssuedAt
}

// Remaining is the number of seconds left before expiry at now.
func (c *Claims) Remaining(now int64) int64 {
	if c == nil {
		return 0
	}
	return c.ExpiresAt - now
}

// ExpiresTime returns the expiry as wall time.
func (c *Claims) ExpiresTime() time.Time {
	if c == nil {
		return time.Time{}
	}
	return time.Unix(c.ExpiresAt, 0)
}

// wireClaims is the JSON shape issued by the remote authority.
type wireClaims struct {
	UserID    flexibleID `json:"userId,omitempty"`
	Role      string     `json:"role,omitempty"`
	TokenType string     `json:"tokenType,omitempty"`
	jwt.RegisteredClaims
}

// flexibleID accepts numeric and string identifiers.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("userId must be a string or number")
	}
	*f = flexibleID(n.String())
	return nil
}

var parser = jwt.NewParser()

// Decode extracts the claims of raw without verifying its signature.
func Decode(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMalformedToken
	}

	var wc wireClaims
	if _, _, err := parser.ParseUnverified(raw, &wc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if wc.ExpiresAt == nil || wc.IssuedAt == nil {
		return nil, fmt.Errorf("%w: exp and iat are required", ErrMalformedToken)
	}

	claims := &Claims{
		UserID:    string(wc.UserID),
		Role:      wc.Role,
		TokenType: wc.TokenType,
		IssuedAt:  wc.IssuedAt.Unix(),
		ExpiresAt: wc.ExpiresAt.Unix(),
	}
	if claims.ExpiresAt < claims.IssuedAt {
		return nil, fmt.Errorf("%w: exp before iat", ErrMalformedToken)
	}
	if claims.UserID == "" {
		claims.UserID = wc.Subject
	}
	return claims, nil
}

// Live decodes raw and reports whether it is present, well formed and unexpired at now.
func Live(raw string, now int64) (*Claims, bool) {
	if raw == "" {
		return nil, false
	}
	claims, err := Decode(raw)
	if err != nil || claims.Expired(now) {
		return nil, false
	}
	return claims, true
}
