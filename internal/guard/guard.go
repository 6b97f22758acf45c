package guard

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sproutmarket/guard/internal/models"
	"github.com/sproutmarket/guard/pkg/logger"
)

// ControlsSource provides the parent-configured constraints for a child
// account. The guard only reads controls, never writes them.
type ControlsSource interface {
	GetByChildID(ctx context.Context, childID string) (*models.ParentalControls, error)
}

// SpendTracker owns the cumulative per-day spend counter. ReserveSpend must
// be an atomic increment-and-check: of two concurrent reservations that would
// together exceed the limit, at most one may succeed.
type SpendTracker interface {
	// ReserveSpend adds amount to the child's spend for day when the result
	// stays within limit. Returns whether the reservation was admitted and
	// the cumulative spend after the call.
	ReserveSpend(ctx context.Context, childID string, day time.Time, amount, limit int64) (bool, int64, error)

	// ReleaseSpend undoes a prior reservation, for callers whose downstream
	// mutation failed after the guard admitted it.
	ReleaseSpend(ctx context.Context, childID string, day time.Time, amount int64) error
}

// Action is an in-flight state-changing request by a child-role actor.
type Action struct {
	ChildID     string
	AmountCents int64  // zero for non-spending actions
	Category    string // empty when the action has no category
	At          time.Time
}

// ChildSafetyGuard evaluates whether an action by a child-role actor is
// permitted under the parent-configured time-of-day window and daily spend
// ceiling. It is invoked as a precondition before cart/order mutation
// handlers run, not as part of them.
type ChildSafetyGuard struct {
	controls ControlsSource
	spend    SpendTracker
	defaults models.ParentalControls
	logger   *slog.Logger
	audit    *logger.AuditLogger
}

// New creates a guard. defaults apply to children whose parent has not
// configured explicit controls yet.
func New(controls ControlsSource, spend SpendTracker, defaults models.ParentalControls, log *slog.Logger, audit *logger.AuditLogger) *ChildSafetyGuard {
	return &ChildSafetyGuard{
		controls: controls,
		spend:    spend,
		defaults: defaults,
		logger:   log,
		audit:    audit,
	}
}

// Evaluate returns nil when the action may proceed. Denials are
// models.ErrOutsideAllowedHours, models.ErrCategoryNotAllowed, or
// models.ErrSpendLimitExceeded. Lookup failures deny the action (fail
// closed): a child must never gain access because the controls could not be
// read.
func (g *ChildSafetyGuard) Evaluate(ctx context.Context, action Action) error {
	at := action.At
	if at.IsZero() {
		at = time.Now()
	}

	controls, err := g.controls.GetByChildID(ctx, action.ChildID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			defaults := g.defaults
			defaults.ChildID = action.ChildID
			controls = &defaults
		} else {
			g.logger.Error("failed to load parental controls",
				slog.String("child_id", action.ChildID),
				slog.Any("error", err))
			return models.ErrInternalServer
		}
	}

	if !controls.TimeRestrictions.Contains(models.TimeOfDayFrom(at)) {
		g.deny(action, "outside_allowed_hours")
		return models.ErrOutsideAllowedHours
	}

	if action.Category != "" && !controls.AllowsCategory(action.Category) {
		g.deny(action, "category_not_allowed")
		return models.ErrCategoryNotAllowed
	}

	if action.AmountCents > 0 {
		admitted, total, err := g.spend.ReserveSpend(ctx, action.ChildID, at, action.AmountCents, controls.DailySpendLimit)
		if err != nil {
			g.logger.Error("failed to reserve spend",
				slog.String("child_id", action.ChildID),
				slog.Any("error", err))
			return models.ErrInternalServer
		}
		if !admitted {
			g.deny(action, "spend_limit_exceeded")
			return models.ErrSpendLimitExceeded
		}

		g.logger.Debug("spend reserved",
			slog.String("child_id", action.ChildID),
			slog.Int64("amount_cents", action.AmountCents),
			slog.Int64("spent_today_cents", total))
	}

	return nil
}

// Release undoes the spend reservation of a previously admitted action.
func (g *ChildSafetyGuard) Release(ctx context.Context, action Action) error {
	if action.AmountCents <= 0 {
		return nil
	}
	at := action.At
	if at.IsZero() {
		at = time.Now()
	}
	return g.spend.ReleaseSpend(ctx, action.ChildID, at, action.AmountCents)
}

func (g *ChildSafetyGuard) deny(action Action, reason string) {
	g.audit.Emit(logger.AuditEvent{
		Type:          logger.EventGuardDenied,
		Key:           action.ChildID,
		Outcome:       "denied",
		FailureReason: reason,
	})
}
