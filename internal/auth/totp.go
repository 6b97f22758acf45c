package auth

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const totpPeriod = 30 // seconds per time step

// TOTPManager generates authenticator-app secrets and validates submitted
// codes against them.
type TOTPManager struct {
	issuer string
	skew   uint // accepted adjacent time steps on each side of now
}

// NewTOTPManager creates a TOTP manager. skew is the clock-drift tolerance in
// time steps; 1 accepts codes from the step before and after the current one.
func NewTOTPManager(issuer string, skew uint) *TOTPManager {
	return &TOTPManager{issuer: issuer, skew: skew}
}

// Enrollment is the material handed to the user exactly once at enrollment.
type Enrollment struct {
	Secret          string // base32-encoded
	ProvisioningURI string
	QRCodeDataURL   string // PNG data URL for display
}

// GenerateEnrollment creates a fresh random secret plus the provisioning URI
// and QR image for adding it to an authenticator app.
func (tm *TOTPManager) GenerateEnrollment(accountName string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountName,
		SecretSize:  32,
		Period:      totpPeriod,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate totp key: %w", err)
	}

	qr, err := qrcode.New(key.URL(), qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to create qr code: %w", err)
	}

	png, err := qr.PNG(200)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}

	return &Enrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		QRCodeDataURL:   "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}, nil
}

// Validate checks a submitted code against the base32 secret, tolerating the
// configured clock skew. Only the boolean result leaves this function; the
// code is never logged.
func (tm *TOTPManager) Validate(secret, code string) (bool, error) {
	return tm.validateAt(secret, code, time.Now())
}

func (tm *TOTPManager) validateAt(secret, code string, at time.Time) (bool, error) {
	valid, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      tm.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false, fmt.Errorf("failed to validate totp code: %w", err)
	}
	return valid, nil
}
