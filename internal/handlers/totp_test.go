package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	internalauth "github.com/sproutmarket/guard/internal/auth"
	"github.com/sproutmarket/guard/internal/models"
)

// MockTotpService returns canned results
type MockTotpService struct {
	enrollResp *internalauth.Enrollment
	enrollErr  error
	verifyErr  error
	revokeErr  error

	lastAccountID string
}

func (m *MockTotpService) Enroll(ctx context.Context, accountID, accountName string) (*internalauth.Enrollment, error) {
	m.lastAccountID = accountID
	return m.enrollResp, m.enrollErr
}

func (m *MockTotpService) Verify(ctx context.Context, accountID, code string) error {
	m.lastAccountID = accountID
	return m.verifyErr
}

func (m *MockTotpService) Revoke(ctx context.Context, accountID string) error {
	m.lastAccountID = accountID
	return m.revokeErr
}

func TestTotpEnrollHandler_Success(t *testing.T) {
	svc := &MockTotpService{enrollResp: &internalauth.Enrollment{
		Secret:          "JBSWY3DPEHPK3PXP",
		ProvisioningURI: "otpauth://totp/Sprout%20Market:kid@example.com?secret=JBSWY3DPEHPK3PXP",
		QRCodeDataURL:   "data:image/png;base64,abc",
	}}
	h := NewTotpHandler(svc)

	req := withClaims(httptest.NewRequest(http.MethodPost, "/auth/totp/enroll", nil),
		"acct-1", "kid@example.com", models.RoleChild)
	rec := httptest.NewRecorder()
	h.Enroll(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "acct-1", svc.lastAccountID)
}

func TestTotpEnrollHandler_RequiresSession(t *testing.T) {
	h := NewTotpHandler(&MockTotpService{})

	rec := httptest.NewRecorder()
	h.Enroll(rec, httptest.NewRequest(http.MethodPost, "/auth/totp/enroll", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTotpEnrollHandler_Conflict(t *testing.T) {
	h := NewTotpHandler(&MockTotpService{enrollErr: models.ErrConflict})

	req := withClaims(httptest.NewRequest(http.MethodPost, "/auth/totp/enroll", nil),
		"acct-1", "kid@example.com", models.RoleChild)
	rec := httptest.NewRecorder()
	h.Enroll(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTotpVerifyHandler_Outcomes(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{"success", nil, http.StatusOK},
		{"not enrolled", models.ErrTotpNotEnrolled, http.StatusBadRequest},
		{"mismatch", models.ErrTotpMismatch, http.StatusUnauthorized},
		{"rate limited", models.ErrRateLimited, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewTotpHandler(&MockTotpService{verifyErr: tt.serviceErr})

			req := withClaims(
				newJSONRequest(t, http.MethodPost, "/auth/totp/verify", VerifyTotpRequest{Code: "123456"}),
				"acct-1", "kid@example.com", models.RoleChild)
			rec := httptest.NewRecorder()
			h.Verify(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestTotpVerifyHandler_RejectsShortCode(t *testing.T) {
	h := NewTotpHandler(&MockTotpService{})

	req := withClaims(
		newJSONRequest(t, http.MethodPost, "/auth/totp/verify", VerifyTotpRequest{Code: "1234"}),
		"acct-1", "kid@example.com", models.RoleChild)
	rec := httptest.NewRecorder()
	h.Verify(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTotpRevokeHandler(t *testing.T) {
	h := NewTotpHandler(&MockTotpService{})

	req := withClaims(httptest.NewRequest(http.MethodDelete, "/auth/totp", nil),
		"acct-1", "kid@example.com", models.RoleChild)
	rec := httptest.NewRecorder()
	h.Revoke(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}
