package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/trustflowpay/internal/common"
)

// APIKeyHeader carries the shared operator key.
const APIKeyHeader = "X-Admin-Key"

// apiKeySubject names callers authenticated by the shared key.
const apiKeySubject = "api-key"

// AdminGuard admits operators presenting either a bearer token with the admin
// role or the shared API key.
type AdminGuard struct {
	Tokens     *Tokens
	APIKeyHash string
}

// Middleware rejects requests without operator credentials and records the
// operator on the context and the request logger.
func (g AdminGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := g.authenticate(r)
		if err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("admin authentication failed")
			common.WriteError(w, err)
			return
		}
		ctx := common.WithAdminSubject(r.Context(), subject)
		zerolog.Ctx(ctx).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("admin", subject)
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g AdminGuard) authenticate(r *http.Request) (string, error) {
	if token := bearerToken(r); token != "" {
		if g.Tokens == nil {
			return "", unauthorized(errors.New("token auth not configured"))
		}
		subject, err := g.Tokens.Verify(token)
		if errors.Is(err, ErrMissingRole) {
			return "", common.NewAppError("FORBIDDEN", "admin role required", http.StatusForbidden, err)
		}
		if err != nil {
			return "", unauthorized(err)
		}
		return subject, nil
	}
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		ok, err := CheckAPIKey(key, g.APIKeyHash)
		if err != nil {
			return "", unauthorized(err)
		}
		if !ok {
			return "", unauthorized(errors.New("api key mismatch"))
		}
		return apiKeySubject, nil
	}
	return "", unauthorized(errors.New("no credentials"))
}

func unauthorized(err error) error {
	return common.NewAppError("UNAUTHORIZED", "admin credentials required", http.StatusUnauthorized, err)
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
