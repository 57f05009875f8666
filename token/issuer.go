package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the algorithm used by an [Issuer].
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256.
	MethodHS256 SigningMethod = "hs256"
)

// IssuerConfig configures an [Issuer].
type IssuerConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	KeyID         string
}

// Issuer mints and verifies signed token pairs. The session core never calls
// it; remote authorities, the demo binary and tests do.
type Issuer struct {
	config IssuerConfig
	clock  Clock
}

// NewIssuer validates cfg and returns an Issuer.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL must not be shorter than access TTL")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	return &Issuer{config: cfg, clock: time.Now}, nil
}

// WithClock replaces the issuing clock. It is meant for tests that need
// deterministic iat/exp values.
func (i *Issuer) WithClock(clock Clock) *Issuer {
	if clock != nil {
		i.clock = clock
	}
	return i
}

// Issue signs a single token of the given type.
func (i *Issuer) Issue(tokenType, userID, role string, ttl time.Duration) (string, error) {
	return i.IssueAt(tokenType, userID, role, i.clock(), ttl)
}

// IssueAt signs a token whose validity window starts at now.
func (i *Issuer) IssueAt(tokenType, userID, role string, now time.Time, ttl time.Duration) (string, error) {
	claims := wireClaims{
		UserID:    flexibleID(userID),
		Role:      role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    i.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	tok := jwt.NewWithClaims(i.method(), claims)
	if i.config.KeyID != "" {
		tok.Header["kid"] = i.config.KeyID
	}
	key, err := i.signKey()
	if err != nil {
		return "", err
	}
	return tok.SignedString(key)
}

// IssuePair signs an access token and a refresh token for the same subject.
func (i *Issuer) IssuePair(userID, role string) (access, refresh string, err error) {
	access, err = i.Issue(TypeAccess, userID, role, i.config.AccessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = i.Issue(TypeRefresh, userID, role, i.config.RefreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Verify checks the signature and expiry of raw and returns its claims.
// wantType, when non-empty, must match the tokenType claim.
func (i *Issuer) Verify(raw, wantType string) (*Claims, error) {
	p := jwt.NewParser(
		jwt.WithValidMethods([]string{i.method().Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.clock),
	)
	var wc wireClaims
	tok, err := p.ParseWithClaims(raw, &wc, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != i.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if i.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != i.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return i.verifyKey()
	})
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if wantType != "" && wc.TokenType != wantType {
		return nil, fmt.Errorf("unexpected token type %q", wc.TokenType)
	}
	return Decode(raw)
}

func (i *Issuer) method() jwt.SigningMethod {
	switch i.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (i *Issuer) signKey() (interface{}, error) {
	switch i.config.SigningMethod {
	case MethodHS256:
		return i.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(i.config.PrivateKey)
	}
}

func (i *Issuer) verifyKey() (interface{}, error) {
	switch i.config.SigningMethod {
	case MethodHS256:
		return i.config.PrivateKey, nil
	default:
		if len(i.config.PublicKey) > 0 {
			return parseEdPublicKey(i.config.PublicKey)
		}
		priv, err := parseEdPrivateKey(i.config.PrivateKey)
		if err != nil {
			return nil, err
		}
		return priv.Public(), nil
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
