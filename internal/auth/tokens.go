package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Token defaults for operator access.
const (
	DefaultIssuer   = "trustflowpay"
	DefaultAudience = "trustflowpay-admin"
	RoleAdmin       = "admin"
)

var (
	// ErrInvalidToken covers malformed, unsigned, expired or foreign tokens.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrMissingRole is returned for a valid token lacking the required role.
	ErrMissingRole = errors.New("auth: required role missing")
)

// Tokens issues and verifies HS256 operator tokens.
type Tokens struct {
	secret    []byte
	ttl       time.Duration
	validator TokenValidator
	now       func() time.Time
}

// NewTokens builds a token service keyed by secret.
func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if len(strings.TrimSpace(secret)) < 16 {
		return nil, errors.New("auth: jwt secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Tokens{
		secret: []byte(secret),
		ttl:    ttl,
		validator: TokenValidator{
			Issuer:    DefaultIssuer,
			Audience:  DefaultAudience,
			ClockSkew: 30 * time.Second,
			Algorithm: jwa.HS256,
			Role:      RoleAdmin,
		},
		now: time.Now,
	}, nil
}

// WithNow overrides the clock.
func (t *Tokens) WithNow(now func() time.Time) {
	if now != nil {
		t.now = now
	}
}

// Issue signs a token for subject carrying roles.
func (t *Tokens) Issue(subject string, roles ...string) (string, error) {
	now := t.now()
	tok, err := jwt.NewBuilder().
		Issuer(t.validator.Issuer).
		Audience([]string{t.validator.Audience}).
		Subject(subject).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(t.ttl)).
		Claim(RolesClaim, roles).
		Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, t.secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return string(signed), nil
}

// Verify checks token and returns its subject. A well-formed token without
// the admin role yields ErrMissingRole; everything else is ErrInvalidToken.
func (t *Tokens) Verify(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	algorithm, err := tokenAlgorithm(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if algorithm != t.validator.Algorithm {
		return "", fmt.Errorf("%w: unexpected algorithm %s", ErrInvalidToken, algorithm)
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, t.secret), jwt.WithValidate(false))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := t.validator.Validate(parsed, algorithm, t.now()); err != nil {
		if errors.Is(err, ErrMissingRole) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return parsed.Subject(), nil
}

func tokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) != 1 {
		return "", errors.New("token must carry exactly one signature")
	}
	headers := signatures[0].ProtectedHeaders()
	if headers == nil {
		return "", errors.New("token missing protected headers")
	}
	alg := headers.Algorithm()
	if alg == "" || alg == jwa.NoSignature {
		return "", errors.New("token missing algorithm")
	}
	return alg, nil
}
