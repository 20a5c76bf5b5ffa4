package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRequestLoggerWritesOneLinePerRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "info")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger{Logger: logger}.Middleware)
	r.Post("/webhooks/trustflowpay", func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("order_id", "42")
		})
		w.WriteHeader(http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/trustflowpay", nil)
	req.Header.Set("User-Agent", "gateway/1.0")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "http_request", line["message"])
	require.Equal(t, "error", line["level"])
	require.Equal(t, "/webhooks/trustflowpay", line["route"])
	require.Equal(t, float64(500), line["status"])
	require.Equal(t, "42", line["order_id"])
	require.Equal(t, "gateway/1.0", line["user_agent"])
	require.NotEmpty(t, line["request_id"])
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "warn")
	logger.Info().Msg("hidden")
	require.Zero(t, buf.Len())

	component := Component(logger, "trustflowpay", true)
	component.Debug().Msg("shown")
	require.Contains(t, buf.String(), `"component":"trustflowpay"`)

	require.Equal(t, zerolog.InfoLevel, newLogger(&buf, "", "bogus").GetLevel())
}
