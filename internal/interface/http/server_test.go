package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cardquest/progression/internal/application/command"
	"github.com/cardquest/progression/internal/application/query"
	"github.com/cardquest/progression/internal/domain/progression"
	"github.com/cardquest/progression/internal/domain/shared"
	"github.com/cardquest/progression/internal/infrastructure/persistence/memory"
	"github.com/cardquest/progression/internal/interface/http/handlers"
	"github.com/cardquest/progression/pkg/logger"
	"github.com/cardquest/progression/pkg/timeutil"
)

type flags map[string]bool

func (f flags) IsEnabled(feature, _ string) bool {
	v, ok := f[feature]
	return !ok || v
}

type testServer struct {
	*Server
	repo *memory.ProfileRepository
}

func newTestServer(t *testing.T, cfg Config, features FeatureGate) *testServer {
	t.Helper()

	log := logger.New(logger.Options{Output: &bytes.Buffer{}})
	repo := memory.NewProfileRepository()
	engine := progression.NewEngine(timeutil.NewCalendar(time.UTC), progression.FixedSampler{2, 0, 4})
	writer := command.NewProfileWriter(repo, engine, command.Options{Locker: memory.NewLocker(), Logger: log})

	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("storage", handlers.NewPingCheck(repo))

	s := NewServer(cfg, Dependencies{
		ReportActivity:    command.NewReportActivityHandler(writer),
		GrantXP:           command.NewGrantXPHandler(writer),
		CompleteQuest:     command.NewCompleteQuestHandler(writer),
		UnlockAchievement: command.NewUnlockAchievementHandler(writer),
		GetProfile:        query.NewGetProfileHandler(repo, engine, writer),
		ListAchievements:  query.NewListAchievementsHandler(repo),
		GetLeaderboard:    query.NewGetLeaderboardHandler(repo, query.GetLeaderboardOptions{Logger: log}),
		HealthChecker:     checker,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
		Features: features,
		Logger:   log,
	})
	t.Cleanup(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
	})
	return &testServer{Server: s, repo: repo}
}

func baseConfig() Config {
	cfg := DefaultConfig()
	cfg.RateLimitRPS = 0
	return cfg
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers ...string) (*httptest.ResponseRecorder, JSONResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)

	var resp JSONResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func dataOf(t *testing.T, resp JSONResponse) map[string]any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return m
}

// ══════════════════════════════════════════════════════════════════════════════
// API
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_ProfileLifecycle(t *testing.T) {
	ts := newTestServer(t, baseConfig(), nil)

	rec, resp := ts.do(t, http.MethodGet, "/api/v1/users/u1/progression", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, true, dataOf(t, resp)["created"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, 1, ts.repo.Len())

	rec, resp = ts.do(t, http.MethodPost, "/api/v1/users/u1/activity", `{"tests_passed":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := dataOf(t, resp)["profile"].(map[string]any)
	assert.EqualValues(t, 2, profile["level"])
	assert.EqualValues(t, 100, profile["total_xp"])

	rec, resp = ts.do(t, http.MethodPost, "/api/v1/users/u1/xp", `{"amount":50,"action":"bonus"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	xp := dataOf(t, resp)["xp_result"].(map[string]any)
	assert.Equal(t, "bonus", xp["action"])
	assert.EqualValues(t, 150, xp["total_xp"])

	rec, resp = ts.do(t, http.MethodGet, "/api/v1/users/u1/achievements", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, len(progression.Catalog()), dataOf(t, resp)["total"])

	rec, resp = ts.do(t, http.MethodPost, "/api/v1/users/u1/quests/win_game/complete", "")
	require.Equal(t, http.StatusOK, rec.Code)
	completion := dataOf(t, resp)["completion"].(map[string]any)
	assert.Equal(t, false, completion["already_completed"])
}

func TestServer_ErrorMapping(t *testing.T) {
	ts := newTestServer(t, baseConfig(), nil)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"negative activity", http.MethodPost, "/api/v1/users/u1/activity", `{"cards_studied":-1}`, http.StatusBadRequest, "validation_error"},
		{"unknown field", http.MethodPost, "/api/v1/users/u1/activity", `{"cards":1}`, http.StatusBadRequest, "invalid_body"},
		{"empty body", http.MethodPost, "/api/v1/users/u1/xp", "", http.StatusBadRequest, "invalid_body"},
		{"zero xp", http.MethodPost, "/api/v1/users/u1/xp", `{"amount":0}`, http.StatusBadRequest, "validation_error"},
		{"xp above grant limit", http.MethodPost, "/api/v1/users/u1/xp", `{"amount":1000001}`, http.StatusBadRequest, "validation_error"},
		{"xp overflowing int", http.MethodPost, "/api/v1/users/u1/xp", `{"amount":9223372036854775807}`, http.StatusBadRequest, "validation_error"},
		{"activity above report limit", http.MethodPost, "/api/v1/users/u1/activity", `{"cards_studied":10001}`, http.StatusBadRequest, "validation_error"},
		{"bad timezone", http.MethodGet, "/api/v1/users/u1/progression?timezone=Nowhere/City", "", http.StatusBadRequest, "validation_error"},
		{"unknown quest", http.MethodPost, "/api/v1/users/u1/quests/nope/complete", "", http.StatusBadRequest, "validation_error"},
		{"inactive quest", http.MethodPost, "/api/v1/users/u1/quests/win_3/complete", "", http.StatusNotFound, "not_found"},
		{"limit too large", http.MethodGet, "/api/v1/leaderboard?limit=101", "", http.StatusBadRequest, "validation_error"},
		{"limit not a number", http.MethodGet, "/api/v1/leaderboard?limit=ten", "", http.StatusBadRequest, "validation_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, resp := ts.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, rec.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.code, resp.Error.Code)
		})
	}
}

func TestServer_RetryableErrorsCarryRetryAfter(t *testing.T) {
	ts := newTestServer(t, baseConfig(), nil)

	cases := []struct {
		name       string
		err        error
		status     int
		retryAfter string
	}{
		{"conflict", shared.ErrProfileConflict, http.StatusConflict, "1"},
		{"unavailable", shared.ErrServiceUnavailable, http.StatusServiceUnavailable, "1"},
		{"validation", shared.ErrGrantTooLarge, http.StatusBadRequest, ""},
		{"not found", shared.ErrProfileNotFound, http.StatusNotFound, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/users/u1/progression", nil)
			ts.writeDomainError(rec, req, tc.err)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.retryAfter, rec.Header().Get("Retry-After"))
		})
	}
}

func TestServer_Leaderboard(t *testing.T) {
	ts := newTestServer(t, baseConfig(), nil)
	for _, u := range []struct{ id, amount string }{{"a", "300"}, {"b", "500"}, {"c", "300"}} {
		rec, _ := ts.do(t, http.MethodPost, "/api/v1/users/"+u.id+"/xp", `{"amount":`+u.amount+`}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, resp := ts.do(t, http.MethodGet, "/api/v1/leaderboard?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := dataOf(t, resp)
	assert.Equal(t, query.SourceRepository, data["source"])
	entries := data["entries"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].(map[string]any)["user_id"])
	assert.Equal(t, "a", entries[1].(map[string]any)["user_id"])
}

func TestServer_FeatureFlags(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("admin"), bcrypt.MinCost)
	require.NoError(t, err)
	cfg := baseConfig()
	cfg.AdminKeyHashes = []string{string(hash)}

	ts := newTestServer(t, cfg, flags{FeatureQuestManualComplete: false})

	rec, _ := ts.do(t, http.MethodPost, "/api/v1/users/u1/quests/win_game/complete", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/users/u1/achievements/streak_week", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, resp := ts.do(t, http.MethodPost, "/api/v1/users/u1/achievements/streak_week", "", handlers.AdminKeyHeader, "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	grant := dataOf(t, resp)["grant"].(map[string]any)
	assert.Equal(t, false, grant["already_unlocked"])
}

func TestServer_AdminRouteAbsentWithoutKeys(t *testing.T) {
	ts := newTestServer(t, baseConfig(), nil)
	rec, _ := ts.do(t, http.MethodPost, "/api/v1/users/u1/achievements/streak_week", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_APIKeyRequired(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("client"), bcrypt.MinCost)
	require.NoError(t, err)
	cfg := baseConfig()
	cfg.APIKeyHashes = []string{string(hash)}
	ts := newTestServer(t, cfg, nil)

	rec, _ := ts.do(t, http.MethodGet, "/api/v1/leaderboard", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/leaderboard", "", handlers.APIKeyHeader, "client")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health checks stay open.
	rec, _ = ts.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RateLimit(t *testing.T) {
	cfg := baseConfig()
	cfg.RateLimitRPS = 1
	cfg.RateLimitBurst = 2
	ts := newTestServer(t, cfg, nil)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec, _ := ts.do(t, http.MethodGet, "/livez", "")
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, baseConfig(), nil)

	rec, resp := ts.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, dataOf(t, resp)["healthy"])

	rec, _ = ts.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")
}

func TestServer_CORSPreflight(t *testing.T) {
	ts := newTestServer(t, baseConfig(), nil)
	rec, _ := ts.do(t, http.MethodOptions, "/api/v1/leaderboard", "", "Origin", "https://app.example")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter_Refills(t *testing.T) {
	rl := newRateLimiter(2, 1)
	defer rl.Stop()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	ok, _ := rl.Allow("ip")
	assert.True(t, ok)
	ok, wait := rl.Allow("ip")
	assert.False(t, ok)
	assert.Equal(t, 500*time.Millisecond, wait)

	now = now.Add(500 * time.Millisecond)
	ok, _ = rl.Allow("ip")
	assert.True(t, ok)

	now = now.Add(time.Hour)
	rl.evictIdle()
	assert.Empty(t, rl.buckets)
}
