package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sproutmarket/guard/internal/guard"
	"github.com/sproutmarket/guard/internal/models"
	"github.com/sproutmarket/guard/pkg/logger"
)

// fixedControlsSource returns the same controls for every child
type fixedControlsSource struct {
	controls *models.ParentalControls
}

func (f *fixedControlsSource) GetByChildID(ctx context.Context, childID string) (*models.ParentalControls, error) {
	if f.controls == nil {
		return nil, models.ErrNotFound
	}
	c := *f.controls
	c.ChildID = childID
	return &c, nil
}

func newCheckoutHandler(t *testing.T, controls *models.ParentalControls) *CheckoutHandler {
	t.Helper()
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	defaults := models.ParentalControls{
		DailySpendLimit: 2500,
		TimeRestrictions: models.TimeRestrictions{
			Start: models.TimeOfDay(0),
			End:   models.TimeOfDay(23*60 + 59),
		},
	}
	g := guard.New(&fixedControlsSource{controls: controls}, guard.NewMemorySpendTracker(),
		defaults, log, logger.NewAuditLogger(log))
	return NewCheckoutHandler(g)
}

// allDayControls permits any hour so tests are not wall-clock dependent
func allDayControls(limit int64, categories ...string) *models.ParentalControls {
	return &models.ParentalControls{
		DailySpendLimit:   limit,
		AllowedCategories: categories,
		TimeRestrictions: models.TimeRestrictions{
			Start: models.TimeOfDay(0),
			End:   models.TimeOfDay(23*60 + 59),
		},
		UpdatedAt: time.Now(),
	}
}

func TestCheckoutHandler_AdultPassesThrough(t *testing.T) {
	// Zero spend limit would deny any child purchase; adults skip the guard.
	h := newCheckoutHandler(t, allDayControls(0))

	req := withClaims(
		newJSONRequest(t, http.MethodPost, "/market/checkout", CheckoutRequest{AmountCents: 9999}),
		"acct-1", "parent@example.com", models.RoleParent)
	rec := httptest.NewRecorder()
	h.Checkout(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckoutHandler_ChildWithinLimits(t *testing.T) {
	h := newCheckoutHandler(t, allDayControls(1000))

	req := withClaims(
		newJSONRequest(t, http.MethodPost, "/market/checkout", CheckoutRequest{AmountCents: 500, Category: "books"}),
		"child-1", "kid@example.com", models.RoleChild)
	rec := httptest.NewRecorder()
	h.Checkout(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckoutHandler_ChildDenials(t *testing.T) {
	tests := []struct {
		name     string
		controls *models.ParentalControls
		body     CheckoutRequest
		wantCode string
	}{
		{
			"spend limit exceeded",
			allDayControls(1000),
			CheckoutRequest{AmountCents: 1001},
			"spend_limit_exceeded",
		},
		{
			"category not allowed",
			allDayControls(1000, "books"),
			CheckoutRequest{AmountCents: 100, Category: "video-games"},
			"category_not_allowed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newCheckoutHandler(t, tt.controls)

			req := withClaims(
				newJSONRequest(t, http.MethodPost, "/market/checkout", tt.body),
				"child-1", "kid@example.com", models.RoleChild)
			rec := httptest.NewRecorder()
			h.Checkout(rec, req)

			require.Equal(t, http.StatusForbidden, rec.Code)
			assert.Equal(t, tt.wantCode, decodeErrorResponse(t, rec).Error)
		})
	}
}

func TestCheckoutHandler_ChildOutsideAllowedHours(t *testing.T) {
	controls := allDayControls(1000)
	// A window that can never contain the current time of day.
	now := models.TimeOfDayFrom(time.Now())
	controls.TimeRestrictions = models.TimeRestrictions{
		Start: now + 2,
		End:   now + 3,
	}
	h := newCheckoutHandler(t, controls)

	req := withClaims(
		newJSONRequest(t, http.MethodPost, "/market/checkout", CheckoutRequest{AmountCents: 100}),
		"child-1", "kid@example.com", models.RoleChild)
	rec := httptest.NewRecorder()
	h.Checkout(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "outside_allowed_hours", decodeErrorResponse(t, rec).Error)
}

func TestCheckoutHandler_RequiresPositiveAmount(t *testing.T) {
	h := newCheckoutHandler(t, allDayControls(1000))

	req := withClaims(
		newJSONRequest(t, http.MethodPost, "/market/checkout", CheckoutRequest{AmountCents: 0}),
		"child-1", "kid@example.com", models.RoleChild)
	rec := httptest.NewRecorder()
	h.Checkout(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
