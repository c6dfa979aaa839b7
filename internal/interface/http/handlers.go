package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cardquest/progression/internal/application/command"
	"github.com/cardquest/progression/internal/application/query"
	"github.com/cardquest/progression/internal/domain/progression"
	"github.com/cardquest/progression/internal/domain/shared"
	"github.com/cardquest/progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth reports every check; a failed optional check still answers 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]string{
			"status": "healthy",
			"uptime": s.Uptime().Round(time.Second).String(),
		})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// handleReady handles the readiness check: ready while storage answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		if status := s.deps.HealthChecker.Check(r.Context()); !status.Healthy {
			writeJSONError(w, r, http.StatusServiceUnavailable, "not_ready", status.Message)
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness check.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetProfile handles GET /api/v1/users/{id}/progression?timezone=
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.GetProfile.Handle(r.Context(), query.GetProfileQuery{
		UserID:   r.PathValue("id"),
		Timezone: r.URL.Query().Get("timezone"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// ActivityRequest is the body of POST /api/v1/users/{id}/activity.
type ActivityRequest struct {
	progression.Activity
	Timezone string `json:"timezone,omitempty"`
}

// handleReportActivity handles POST /api/v1/users/{id}/activity
func (s *Server) handleReportActivity(w http.ResponseWriter, r *http.Request) {
	var req ActivityRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	res, err := s.deps.ReportActivity.Handle(r.Context(), command.ReportActivityCommand{
		UserID:   r.PathValue("id"),
		Activity: req.Activity,
		Timezone: req.Timezone,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"profile": res.Profile,
		"summary": res.Summary,
	})
}

// GrantXPRequest is the body of POST /api/v1/users/{id}/xp.
type GrantXPRequest struct {
	Amount int    `json:"amount"`
	Action string `json:"action,omitempty"`
}

// handleGrantXP handles POST /api/v1/users/{id}/xp
func (s *Server) handleGrantXP(w http.ResponseWriter, r *http.Request) {
	var req GrantXPRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	res, err := s.deps.GrantXP.Handle(r.Context(), command.GrantXPCommand{
		UserID: r.PathValue("id"),
		Amount: req.Amount,
		Action: req.Action,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"profile":   res.Profile,
		"xp_result": res.XPResult,
	})
}

// handleListAchievements handles GET /api/v1/users/{id}/achievements
func (s *Server) handleListAchievements(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.ListAchievements.Handle(r.Context(), query.ListAchievementsQuery{UserID: r.PathValue("id")})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// handleCompleteQuest handles POST /api/v1/users/{id}/quests/{questID}/complete
func (s *Server) handleCompleteQuest(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if !s.enabled(FeatureQuestManualComplete, userID) {
		writeJSONError(w, r, http.StatusForbidden, "feature_disabled", "Manual quest completion is disabled")
		return
	}

	res, err := s.deps.CompleteQuest.Handle(r.Context(), command.CompleteQuestCommand{
		UserID:  userID,
		QuestID: r.PathValue("questID"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"profile":    res.Profile,
		"completion": res.Completion,
	})
}

// handleUnlockAchievement handles POST /api/v1/users/{id}/achievements/{achievementID} (admin)
func (s *Server) handleUnlockAchievement(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if !s.enabled(FeatureAchievementAdmin, userID) {
		writeJSONError(w, r, http.StatusForbidden, "feature_disabled", "Achievement administration is disabled")
		return
	}

	res, err := s.deps.UnlockAchievement.Handle(r.Context(), command.UnlockAchievementCommand{
		UserID:        userID,
		AchievementID: r.PathValue("achievementID"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Info("achievement granted by admin",
		logger.UserID(userID),
		logger.AchievementID(res.Grant.Achievement.ID),
		logger.Bool("already_unlocked", res.Grant.AlreadyUnlocked),
	)
	writeJSON(w, r, http.StatusOK, map[string]any{
		"profile": res.Profile,
		"grant":   res.Grant,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetLeaderboard handles GET /api/v1/leaderboard?limit=
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSONError(w, r, http.StatusBadRequest, "validation_error", "limit must be an integer")
			return
		}
		limit = n
	}

	view, err := s.deps.GetLeaderboard.Handle(r.Context(), query.GetLeaderboardQuery{Limit: limit})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) enabled(feature, userID string) bool {
	return s.deps.Features == nil || s.deps.Features.IsEnabled(feature, userID)
}

// decodeBody decodes a JSON body into dst, rejecting unknown fields. It writes
// the error response itself and returns false on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeJSONError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
		case errors.Is(err, io.EOF):
			writeJSONError(w, r, http.StatusBadRequest, "invalid_body", "Request body is required")
		default:
			writeJSONError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		}
		return false
	}
	return true
}

// writeDomainError maps domain error kinds to HTTP statuses. Errors the
// client may retry as-is carry a Retry-After hint.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if shared.IsRetryable(err) {
		w.Header().Set("Retry-After", "1")
	}

	switch {
	case shared.IsValidation(err):
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", errorMessage(err))
	case shared.IsNotFound(err):
		writeJSONError(w, r, http.StatusNotFound, "not_found", errorMessage(err))
	case shared.IsConflict(err), errors.Is(err, shared.ErrLockNotHeld):
		writeJSONError(w, r, http.StatusConflict, "conflict", "Profile is being updated, please retry")
	case errors.Is(err, shared.ErrServiceUnavailable), errors.Is(err, shared.ErrTimeout):
		writeJSONError(w, r, http.StatusServiceUnavailable, "unavailable", "Service temporarily unavailable")
	default:
		logger.FromContext(r.Context()).Error("request failed",
			logger.String("path", r.URL.Path),
			logger.Err(err),
		)
		writeJSONError(w, r, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
	}
}

// errorMessage prefers the domain message over the wrapped chain.
func errorMessage(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return err.Error()
}
