package security

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/hugopriorizen/Base/internal/core/domain"
	"github.com/hugopriorizen/Base/internal/core/port"
)

var (
	// ErrTokenInvalid indicates a malformed token, wrong purpose or subject, or a stamp mismatch.
	ErrTokenInvalid = errors.New("action token: invalid")
	// ErrTokenExpired indicates a well-formed token whose lifetime has elapsed.
	ErrTokenExpired = errors.New("action token: expired")
	// ErrSecretMissing indicates the signing secret was not configured.
	ErrSecretMissing = errors.New("action token: signing secret not configured")
)

// ActionTokenConfig configures stateless password-reset and email-confirmation tokens.
type ActionTokenConfig struct {
	Secret          []byte
	Issuer          string
	ResetTTL        time.Duration
	ConfirmationTTL time.Duration
}

// ActionTokenClaims binds a token to one purpose, one account and one security stamp.
type ActionTokenClaims struct {
	StampHash string `json:"stp"`
	jwt.RegisteredClaims
}

// ActionTokenCodec signs action tokens with HS256. Nothing is persisted: rotating the account
// security stamp invalidates every outstanding token at once.
type ActionTokenCodec struct {
	cfg ActionTokenConfig
}

// NewActionTokenCodec validates configuration and returns a codec.
func NewActionTokenCodec(cfg ActionTokenConfig) (*ActionTokenCodec, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrSecretMissing
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	if cfg.ConfirmationTTL <= 0 {
		cfg.ConfirmationTTL = 24 * time.Hour
	}
	return &ActionTokenCodec{cfg: cfg}, nil
}

func (c *ActionTokenCodec) ttl(purpose domain.TokenPurpose) (time.Duration, error) {
	switch purpose {
	case domain.TokenPurposePasswordReset:
		return c.cfg.ResetTTL, nil
	case domain.TokenPurposeEmailConfirmation:
		return c.cfg.ConfirmationTTL, nil
	default:
		return 0, fmt.Errorf("unknown token purpose %q", purpose)
	}
}

// Issue signs a token for the purpose and account, bound to the current security stamp.
func (c *ActionTokenCodec) Issue(purpose domain.TokenPurpose, accountID, securityStamp string, issuedAt time.Time) (domain.IssuedToken, error) {
	ttl, err := c.ttl(purpose)
	if err != nil {
		return domain.IssuedToken{}, err
	}
	if strings.TrimSpace(accountID) == "" || securityStamp == "" {
		return domain.IssuedToken{}, fmt.Errorf("account id and security stamp are required")
	}

	expiresAt := issuedAt.Add(ttl)
	claims := ActionTokenClaims{
		StampHash: HashToken(securityStamp),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    c.cfg.Issuer,
			Audience:  jwt.ClaimStrings{string(purpose)},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.cfg.Secret)
	if err != nil {
		return domain.IssuedToken{}, fmt.Errorf("sign action token: %w", err)
	}

	return domain.IssuedToken{
		Value:     signed,
		Purpose:   purpose,
		AccountID: accountID,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks signature, purpose, subject, expiry and stamp binding.
func (c *ActionTokenCodec) Verify(purpose domain.TokenPurpose, accountID, securityStamp, token string, at time.Time) error {
	token = strings.TrimSpace(token)
	if token == "" || accountID == "" {
		return ErrTokenInvalid
	}

	options := []jwt.ParserOption{
		jwt.WithTimeFunc(func() time.Time { return at }),
		jwt.WithAudience(string(purpose)),
		jwt.WithSubject(accountID),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if c.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.cfg.Issuer))
	}

	claims := &ActionTokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.cfg.Secret, nil
	}, options...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if parsed == nil || !parsed.Valid {
		return ErrTokenInvalid
	}

	expected := HashToken(securityStamp)
	if subtle.ConstantTimeCompare([]byte(claims.StampHash), []byte(expected)) != 1 {
		return ErrTokenInvalid
	}

	return nil
}

var _ port.ActionTokenCodec = (*ActionTokenCodec)(nil)
