package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time expressed as minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay parses an "HH:MM" string into a TimeOfDay.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time of day %q: expected HH:MM", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}

	return TimeOfDay(hour*60 + minute), nil
}

// TimeOfDayFrom extracts the wall-clock component of t in its own location.
func TimeOfDayFrom(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// TimeRestrictions is the parent-configured window in which a child account
// may act. Both bounds are inclusive. A window whose End precedes Start is an
// overnight window (e.g. 21:00-07:00) and wraps past midnight.
type TimeRestrictions struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// Contains reports whether the given wall-clock time falls inside the window.
func (tr TimeRestrictions) Contains(t TimeOfDay) bool {
	if tr.Start <= tr.End {
		return t >= tr.Start && t <= tr.End
	}
	// Overnight window
	return t >= tr.Start || t <= tr.End
}

// ParentalControls holds the constraints a parent has configured for a child
// account. The guard only reads these; they are owned and mutated by the
// parent-facing account handlers.
type ParentalControls struct {
	ChildID           string           `json:"child_id"`
	DailySpendLimit   int64            `json:"daily_spend_limit_cents"`
	AllowedCategories []string         `json:"allowed_categories"`
	TimeRestrictions  TimeRestrictions `json:"time_restrictions"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// AllowsCategory reports whether the category may be purchased. An empty
// allow-list means no category restriction is configured.
func (pc *ParentalControls) AllowsCategory(category string) bool {
	if len(pc.AllowedCategories) == 0 {
		return true
	}
	for _, c := range pc.AllowedCategories {
		if c == category {
			return true
		}
	}
	return false
}
