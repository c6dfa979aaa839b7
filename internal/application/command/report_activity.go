package command

import (
	"context"
	"fmt"
	"time"

	"github.com/cardquest/progression/internal/domain/progression"
	"github.com/cardquest/progression/internal/domain/shared"
	"github.com/cardquest/progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPORT ACTIVITY COMMAND
// Applies one batch of learning activity: stats, streak, rollover,
// achievements, quests, weekly challenge and XP in a single stored update.
// ══════════════════════════════════════════════════════════════════════════════

// ReportActivityCommand contains one activity report.
type ReportActivityCommand struct {
	UserID   string
	Activity progression.Activity

	// Timezone optionally (re)sets the profile's IANA zone before the
	// report is applied.
	Timezone string
}

// ReportActivityResult contains the stored profile and what the report changed.
type ReportActivityResult struct {
	Profile *progression.Profile
	Summary *progression.ActivitySummary
}

// ReportActivityHandler handles ReportActivityCommand.
type ReportActivityHandler struct {
	writer *ProfileWriter
}

// NewReportActivityHandler creates a new ReportActivityHandler.
func NewReportActivityHandler(writer *ProfileWriter) *ReportActivityHandler {
	return &ReportActivityHandler{writer: writer}
}

// Handle executes the report activity command.
func (h *ReportActivityHandler) Handle(ctx context.Context, cmd ReportActivityCommand) (*ReportActivityResult, error) {
	if err := cmd.Activity.Validate(); err != nil {
		return nil, err
	}

	c, err := write(ctx, h.writer, "report_activity", cmd.UserID,
		func(p *progression.Profile, now time.Time) (*progression.ActivitySummary, []shared.Event, error) {
			applyTimezone(p, cmd.Timezone)
			summary, err := h.writer.engine.ReportActivity(p, cmd.Activity, now)
			if err != nil {
				return nil, nil, err
			}
			return summary, summary.Events, nil
		})
	if err != nil {
		return nil, fmt.Errorf("report_activity: %w", err)
	}

	h.warnOnSkew(c.Profile, c.Result)
	return &ReportActivityResult{Profile: c.Profile, Summary: c.Result}, nil
}

func (h *ReportActivityHandler) warnOnSkew(p *progression.Profile, s *progression.ActivitySummary) {
	if s.StreakOutcome != progression.StreakOutcomeSkewed || !h.writer.enabled(FeatureStreakSkewWarning, p.UserID) {
		return
	}
	last := ""
	if p.Streak.LastActiveDay != nil {
		last = p.Streak.LastActiveDay.String()
	}
	h.writer.log.Warn("activity reported for a day before the last active day; streak left unchanged",
		logger.UserID(p.UserID),
		logger.String("last_active_day", last),
	)
}
