package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	internalauth "github.com/sproutmarket/guard/internal/auth"
	"github.com/sproutmarket/guard/internal/models"
	"github.com/sproutmarket/guard/internal/ratelimit"
	pkghttp "github.com/sproutmarket/guard/pkg/http"
)

// newJSONRequest builds a request with the given body marshaled as JSON
func newJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// withClaims attaches session claims the way the auth middleware would
func withClaims(r *http.Request, accountID, email, role string) *http.Request {
	claims := &models.TokenClaims{
		Type:      "access",
		AccountID: accountID,
		Email:     email,
		Role:      role,
	}
	return r.WithContext(context.WithValue(r.Context(), internalauth.ClaimsContextKey, claims))
}

// newTestLimiter returns a permissive limiter for handlers that only read
// Retry-After from it
func newTestLimiter() *ratelimit.Limiter {
	return ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.Config{
		Limit:         100,
		Window:        time.Minute,
		BlockDuration: time.Minute,
	})
}

func testIPConfig() *pkghttp.IPConfig {
	return &pkghttp.IPConfig{}
}

// decodeErrorResponse parses the standard error envelope
func decodeErrorResponse(t *testing.T, rec *httptest.ResponseRecorder) pkghttp.ErrorResponse {
	t.Helper()
	var resp pkghttp.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}
