package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "slotbase"

// TokenKind selects the secret and lifetime used for signing/verification.
type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// CodecConfig carries the signing material. Secrets must be distinct so that
// possession of one kind can never forge the other.
type CodecConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Claims are the verified token claims used across the service.
type Claims struct {
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	TokenKind string `json:"token_kind"`
	jwt.RegisteredClaims
}

// Identity converts claims back into a request identity.
func (c *Claims) Identity() Identity {
	return Identity{UserID: c.Subject, Email: c.Email, Role: c.Role}
}

// Codec signs and verifies access and refresh tokens with HS256.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// CodecOption configures Codec behavior.
type CodecOption func(*Codec)

// WithCodecClock overrides the time source (useful for tests).
func WithCodecClock(fn func() time.Time) CodecOption {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec validates the signing configuration. Missing or shared secrets are
// a fatal misconfiguration, not something to limp along with.
func NewCodec(cfg CodecConfig, opts ...CodecOption) (*Codec, error) {
	access := strings.TrimSpace(cfg.AccessSecret)
	refresh := strings.TrimSpace(cfg.RefreshSecret)
	if access == "" || refresh == "" {
		return nil, errors.New("auth: both access and refresh secrets are required")
	}
	if access == refresh {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	c := &Codec{
		accessSecret:  []byte(access),
		refreshSecret: []byte(refresh),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}
	if c.accessTTL <= 0 {
		c.accessTTL = defaultAccessTTL
	}
	if c.refreshTTL <= 0 {
		c.refreshTTL = defaultRefreshTTL
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the configured lifetime for the token kind.
func (c *Codec) TTL(kind TokenKind) time.Duration {
	if kind == RefreshToken {
		return c.refreshTTL
	}
	return c.accessTTL
}

func (c *Codec) secret(kind TokenKind) []byte {
	if kind == RefreshToken {
		return c.refreshSecret
	}
	return c.accessSecret
}

// Sign issues a token of the given kind for the identity.
func (c *Codec) Sign(kind TokenKind, id Identity) (string, error) {
	if strings.TrimSpace(id.UserID) == "" {
		return "", errors.New("auth: subject is required")
	}
	now := c.now().UTC()
	claims := Claims{
		Email:     id.Email,
		Role:      id.Role,
		TokenKind: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.TTL(kind))),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret(kind))
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Verify checks signature, structure and expiry for the given kind. Every
// failure collapses into ErrInvalidToken; callers do not need to distinguish.
func (c *Codec) Verify(kind TokenKind, token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.secret(kind), nil
	}, jwt.WithTimeFunc(func() time.Time { return c.now().UTC() }))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != tokenIssuer {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	// Belt and braces on top of distinct secrets: a refresh token carries its
	// kind claim and will not verify as access even if secrets were ever
	// misconfigured to match.
	if claims.TokenKind != string(kind) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashToken derives the stored lookup hash for a refresh token. Only the hash
// is persisted; a database leak does not yield usable tokens.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
