package services

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sproutmarket/guard/internal/auth"
	"github.com/sproutmarket/guard/internal/models"
	"github.com/sproutmarket/guard/internal/ratelimit"
)

// MockTotpSecretStore keeps secrets in memory
type MockTotpSecretStore struct {
	secrets map[string]*models.TotpSecret
}

func NewMockTotpSecretStore() *MockTotpSecretStore {
	return &MockTotpSecretStore{secrets: make(map[string]*models.TotpSecret)}
}

func (m *MockTotpSecretStore) Create(ctx context.Context, secret *models.TotpSecret) error {
	if _, ok := m.secrets[secret.AccountID]; ok {
		return models.ErrConflict
	}
	stored := *secret
	stored.CreatedAt = time.Now()
	m.secrets[secret.AccountID] = &stored
	return nil
}

func (m *MockTotpSecretStore) GetByAccountID(ctx context.Context, accountID string) (*models.TotpSecret, error) {
	if s, ok := m.secrets[accountID]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, models.ErrNotFound
}

func (m *MockTotpSecretStore) MarkConfirmed(ctx context.Context, accountID string) error {
	s, ok := m.secrets[accountID]
	if !ok || s.Confirmed {
		return models.ErrNotFound
	}
	now := time.Now()
	s.Confirmed = true
	s.ConfirmedAt = &now
	return nil
}

func (m *MockTotpSecretStore) Delete(ctx context.Context, accountID string) error {
	if _, ok := m.secrets[accountID]; !ok {
		return models.ErrNotFound
	}
	delete(m.secrets, accountID)
	return nil
}

func newTestTotpService(t *testing.T, store *MockTotpSecretStore, limit int) *TotpService {
	t.Helper()
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.Config{
		Limit:         limit,
		Window:        time.Minute,
		BlockDuration: time.Minute,
	})
	return NewTotpService(
		store,
		auth.NewTOTPManager("Sprout Market", 1),
		limiter,
		newTestLogger(),
		newTestAuditLogger(),
	)
}

func TestTotpEnroll_NewAccount(t *testing.T) {
	store := NewMockTotpSecretStore()
	svc := newTestTotpService(t, store, 5)

	enrollment, err := svc.Enroll(context.Background(), "acct-1", "kid@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.Secret)
	assert.Contains(t, enrollment.ProvisioningURI, "otpauth://totp/")
	assert.Contains(t, enrollment.QRCodeDataURL, "data:image/png;base64,")

	stored, err := store.GetByAccountID(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.False(t, stored.Confirmed)
	assert.Equal(t, enrollment.Secret, stored.Secret)
}

func TestTotpEnroll_ConfirmedEnrollmentConflicts(t *testing.T) {
	store := NewMockTotpSecretStore()
	svc := newTestTotpService(t, store, 5)
	ctx := context.Background()

	enrollment, err := svc.Enroll(ctx, "acct-1", "kid@example.com")
	require.NoError(t, err)

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.Verify(ctx, "acct-1", code))

	_, err = svc.Enroll(ctx, "acct-1", "kid@example.com")
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestTotpEnroll_PendingEnrollmentReplaced(t *testing.T) {
	store := NewMockTotpSecretStore()
	svc := newTestTotpService(t, store, 5)
	ctx := context.Background()

	first, err := svc.Enroll(ctx, "acct-1", "kid@example.com")
	require.NoError(t, err)

	second, err := svc.Enroll(ctx, "acct-1", "kid@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, first.Secret, second.Secret)

	// The discarded secret no longer verifies.
	staleCode, err := totp.GenerateCode(first.Secret, time.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Verify(ctx, "acct-1", staleCode), models.ErrTotpMismatch)
}

func TestTotpVerify_ConfirmsPendingEnrollment(t *testing.T) {
	store := NewMockTotpSecretStore()
	svc := newTestTotpService(t, store, 5)
	ctx := context.Background()

	enrollment, err := svc.Enroll(ctx, "acct-1", "kid@example.com")
	require.NoError(t, err)

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.Verify(ctx, "acct-1", code))

	stored, err := store.GetByAccountID(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, stored.Confirmed)
	assert.NotNil(t, stored.ConfirmedAt)
}

func TestTotpVerify_NotEnrolled(t *testing.T) {
	svc := newTestTotpService(t, NewMockTotpSecretStore(), 5)

	err := svc.Verify(context.Background(), "acct-1", "123456")
	assert.ErrorIs(t, err, models.ErrTotpNotEnrolled)
}

func TestTotpVerify_WrongCode(t *testing.T) {
	store := NewMockTotpSecretStore()
	svc := newTestTotpService(t, store, 5)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, "acct-1", "kid@example.com")
	require.NoError(t, err)

	err = svc.Verify(ctx, "acct-1", "000000")
	assert.ErrorIs(t, err, models.ErrTotpMismatch)

	stored, err := store.GetByAccountID(ctx, "acct-1")
	require.NoError(t, err)
	assert.False(t, stored.Confirmed)
}

func TestTotpVerify_RateLimited(t *testing.T) {
	store := NewMockTotpSecretStore()
	svc := newTestTotpService(t, store, 3)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, "acct-1", "kid@example.com")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, svc.Verify(ctx, "acct-1", "000000"), models.ErrTotpMismatch)
	}
	assert.ErrorIs(t, svc.Verify(ctx, "acct-1", "000000"), models.ErrRateLimited)
}

func TestTotpRevoke(t *testing.T) {
	store := NewMockTotpSecretStore()
	svc := newTestTotpService(t, store, 5)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, "acct-1", "kid@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, "acct-1"))
	assert.ErrorIs(t, svc.Revoke(ctx, "acct-1"), models.ErrTotpNotEnrolled)
	assert.ErrorIs(t, svc.Verify(ctx, "acct-1", "123456"), models.ErrTotpNotEnrolled)
}
