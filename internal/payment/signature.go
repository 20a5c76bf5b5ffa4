package payment

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/rs/zerolog"
)

// ErrInvalidSignature marks a message whose HASH does not match its fields.
var ErrInvalidSignature = errors.New("payment: invalid hash signature")

// Signer computes and checks gateway HASH values for one merchant secret.
type Signer struct {
	secret string
	log    zerolog.Logger
}

// NewSigner returns a Signer for the given secret. The secret is lower-cased
// when appended, so its stored case does not matter.
func NewSigner(secret string, logger zerolog.Logger) Signer {
	return Signer{secret: secret, log: logger}
}

// Canonical returns the string that is hashed, minus the secret: every field
// except HASH as key=value, ascending by key, joined with "~".
func (s Signer) Canonical(params Params) string {
	keys := params.Without(FieldHash).Keys()
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('~')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

// Sign returns the upper-case hex SHA-512 of the canonical string followed by
// the lower-cased secret.
func (s Signer) Sign(params Params) string {
	canonical := s.Canonical(params)
	s.log.Debug().
		Strs("fields", params.Without(FieldHash).Keys()).
		Str("hash_string", canonical).
		Msg("hash string (without secret)")
	sum := sha512.Sum512([]byte(canonical + strings.ToLower(s.secret)))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Verify recomputes the signature over params and compares it to claimed in
// constant time. An empty claim never verifies.
func (s Signer) Verify(params Params, claimed string) bool {
	claimed = strings.TrimSpace(claimed)
	if claimed == "" {
		return false
	}
	expected := s.Sign(params)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(claimed)) == 1 {
		s.log.Debug().Msg("hash validation successful")
		return true
	}
	s.log.Error().
		Str("calculated", prefix(expected, 20)).
		Str("received", prefix(claimed, 20)).
		Msg("hash validation failed")
	return false
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
