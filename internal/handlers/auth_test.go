package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sproutmarket/guard/internal/models"
	"github.com/sproutmarket/guard/internal/services"
)

// MockAuthService returns canned results
type MockAuthService struct {
	loginResp   *services.AuthResponse
	loginErr    error
	refreshResp *services.AuthResponse
	refreshErr  error

	lastEmail string
	lastIP    string
}

func (m *MockAuthService) Login(ctx context.Context, email, password, ip string) (*services.AuthResponse, error) {
	m.lastEmail = email
	m.lastIP = ip
	return m.loginResp, m.loginErr
}

func (m *MockAuthService) RefreshToken(ctx context.Context, refreshToken string) (*services.AuthResponse, error) {
	return m.refreshResp, m.refreshErr
}

func TestLoginHandler_Success(t *testing.T) {
	svc := &MockAuthService{loginResp: &services.AuthResponse{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Account:      &services.AccountResponse{ID: "acct-1", Role: models.RoleParent},
	}}
	h := NewAuthHandler(svc, newTestLimiter(), testIPConfig())

	req := newJSONRequest(t, http.MethodPost, "/auth/login", LoginRequest{
		Email:    "Parent@Example.com",
		Password: "Sufficient1!",
	})
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "parent@example.com", svc.lastEmail)
	assert.NotEmpty(t, svc.lastIP)
}

func TestLoginHandler_InvalidCredentials(t *testing.T) {
	svc := &MockAuthService{loginErr: models.ErrInvalidCredentials}
	h := NewAuthHandler(svc, newTestLimiter(), testIPConfig())

	req := newJSONRequest(t, http.MethodPost, "/auth/login", LoginRequest{
		Email:    "parent@example.com",
		Password: "wrong",
	})
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeErrorResponse(t, rec)
	assert.Equal(t, "Authentication failed", resp.Message)
}

func TestLoginHandler_RateLimited(t *testing.T) {
	svc := &MockAuthService{loginErr: models.ErrRateLimited}
	h := NewAuthHandler(svc, newTestLimiter(), testIPConfig())

	req := newJSONRequest(t, http.MethodPost, "/auth/login", LoginRequest{
		Email:    "parent@example.com",
		Password: "Sufficient1!",
	})
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decodeErrorResponse(t, rec).Error)
}

func TestLoginHandler_ValidationFailures(t *testing.T) {
	h := NewAuthHandler(&MockAuthService{}, newTestLimiter(), testIPConfig())

	tests := []struct {
		name string
		body LoginRequest
	}{
		{"missing email", LoginRequest{Password: "Sufficient1!"}},
		{"malformed email", LoginRequest{Email: "not-an-email", Password: "Sufficient1!"}},
		{"missing password", LoginRequest{Email: "parent@example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Login(rec, newJSONRequest(t, http.MethodPost, "/auth/login", tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRefreshTokenHandler_Unauthorized(t *testing.T) {
	svc := &MockAuthService{refreshErr: models.ErrUnauthorized}
	h := NewAuthHandler(svc, newTestLimiter(), testIPConfig())

	req := newJSONRequest(t, http.MethodPost, "/auth/refresh", RefreshTokenRequest{RefreshToken: "stale"})
	rec := httptest.NewRecorder()
	h.RefreshToken(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
