package security

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

var (
	// ErrInvalidSessionToken indicates the bearer token failed validation.
	ErrInvalidSessionToken = errors.New("session token: invalid")
	// ErrExpiredSessionToken indicates the bearer token lifetime elapsed.
	ErrExpiredSessionToken = errors.New("session token: expired")
	// ErrRevokedSessionToken indicates the account was deactivated or its security stamp rotated
	// after the token was issued.
	ErrRevokedSessionToken = errors.New("session token: revoked")
)

// SessionClaims carries the authenticated account and its roles for the HTTP surface.
// StampHash binds the token to the security stamp the account had at login.
type SessionClaims struct {
	UserName  string   `json:"unm"`
	Roles     []string `json:"roles,omitempty"`
	StampHash string   `json:"stp"`
	jwt.RegisteredClaims
}

// MatchesStamp reports whether the token was issued under securityStamp.
func (c *SessionClaims) MatchesStamp(securityStamp string) bool {
	if c.StampHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.StampHash), []byte(HashToken(securityStamp))) == 1
}

// HasRole reports whether the session carries the role, ignoring case.
func (c *SessionClaims) HasRole(role string) bool {
	for _, held := range c.Roles {
		if strings.EqualFold(held, role) {
			return true
		}
	}
	return false
}

// SessionTokenIssuer signs and parses HS256 bearer tokens returned by login.
type SessionTokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

// NewSessionTokenIssuer constructs an issuer. audience defaults to issuer when empty.
func NewSessionTokenIssuer(secret []byte, issuer, audience string) (*SessionTokenIssuer, error) {
	if len(secret) == 0 {
		return nil, ErrSecretMissing
	}
	if audience == "" {
		audience = issuer
	}
	return &SessionTokenIssuer{
		secret:   secret,
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}, nil
}

// WithClock overrides the time source (primarily for tests).
func (s *SessionTokenIssuer) WithClock(now func() time.Time) *SessionTokenIssuer {
	if now != nil {
		s.now = now
	}
	return s
}

// Issue signs a session token valid for ttl. Only the hash of securityStamp enters the token.
func (s *SessionTokenIssuer) Issue(accountID, userName, securityStamp string, roles []string, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(ttl)

	claims := SessionClaims{
		UserName:  userName,
		Roles:     roles,
		StampHash: HashToken(securityStamp),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}

	return signed, expiresAt, nil
}

// Parse validates a session token and returns its claims.
func (s *SessionTokenIssuer) Parse(token string) (*SessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidSessionToken
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithTimeFunc(s.now),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredSessionToken
		}
		return nil, ErrInvalidSessionToken
	}

	if parsed == nil || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidSessionToken
	}

	return claims, nil
}
