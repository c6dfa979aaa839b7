package command

import (
	"context"
	"fmt"
	"time"

	"github.com/cardquest/progression/internal/domain/progression"
	"github.com/cardquest/progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH PROFILE COMMAND
// Creates a missing profile and stores the daily/weekly rollover. Used by the
// profile read path when what it loaded is missing or out of date.
// ══════════════════════════════════════════════════════════════════════════════

// RefreshProfileResult contains the stored profile.
type RefreshProfileResult struct {
	Profile *progression.Profile
	Created bool
}

// RefreshProfile loads or creates the profile, runs the rollover and stores it.
func (w *ProfileWriter) RefreshProfile(ctx context.Context, userID, timezone string) (*RefreshProfileResult, error) {
	c, err := write(ctx, w, "refresh_profile", userID,
		func(p *progression.Profile, now time.Time) (struct{}, []shared.Event, error) {
			applyTimezone(p, timezone)
			_, err := w.engine.Refresh(p, now)
			return struct{}{}, nil, err
		})
	if err != nil {
		return nil, fmt.Errorf("refresh_profile: %w", err)
	}
	return &RefreshProfileResult{Profile: c.Profile, Created: c.Created}, nil
}
