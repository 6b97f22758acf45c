package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateCodeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestTOTPManager_GenerateEnrollment(t *testing.T) {
	tm := NewTOTPManager("Sprout Market", 1)

	enrollment, err := tm.GenerateEnrollment("child@example.com")
	require.NoError(t, err)

	assert.NotEmpty(t, enrollment.Secret)
	assert.True(t, strings.HasPrefix(enrollment.ProvisioningURI, "otpauth://totp/"))
	assert.Contains(t, enrollment.ProvisioningURI, "Sprout%20Market")
	assert.True(t, strings.HasPrefix(enrollment.QRCodeDataURL, "data:image/png;base64,"))
}

func TestTOTPManager_EnrollmentSecretsAreUnique(t *testing.T) {
	tm := NewTOTPManager("Sprout Market", 1)

	e1, err := tm.GenerateEnrollment("a@example.com")
	require.NoError(t, err)
	e2, err := tm.GenerateEnrollment("a@example.com")
	require.NoError(t, err)

	assert.NotEqual(t, e1.Secret, e2.Secret)
}

func TestTOTPManager_ValidateCurrentStep(t *testing.T) {
	tm := NewTOTPManager("Sprout Market", 1)
	enrollment, err := tm.GenerateEnrollment("child@example.com")
	require.NoError(t, err)

	now := time.Now()
	code := generateCodeAt(t, enrollment.Secret, now)

	valid, err := tm.validateAt(enrollment.Secret, code, now)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestTOTPManager_ValidateAdjacentSteps(t *testing.T) {
	tm := NewTOTPManager("Sprout Market", 1)
	enrollment, err := tm.GenerateEnrollment("child@example.com")
	require.NoError(t, err)

	now := time.Now()

	tests := []struct {
		name   string
		offset time.Duration
		valid  bool
	}{
		{"previous step accepted", -totpPeriod * time.Second, true},
		{"next step accepted", totpPeriod * time.Second, true},
		{"two steps behind rejected", -2 * totpPeriod * time.Second, false},
		{"two steps ahead rejected", 2 * totpPeriod * time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := generateCodeAt(t, enrollment.Secret, now.Add(tt.offset))
			valid, err := tm.validateAt(enrollment.Secret, code, now)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, valid)
		})
	}
}

func TestTOTPManager_RejectsMalformedCode(t *testing.T) {
	tm := NewTOTPManager("Sprout Market", 1)
	enrollment, err := tm.GenerateEnrollment("child@example.com")
	require.NoError(t, err)

	valid, _ := tm.Validate(enrollment.Secret, "not-a-code")
	assert.False(t, valid)
}
