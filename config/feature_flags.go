package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags toggles optional progression surfaces.
// Supports gradual rollout by user and per-user overrides.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// userID -> feature -> enabled
	userOverrides map[string]map[string]bool
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Users are assigned based on hash of their ID
	RolloutPercent int
}

// Predefined feature flag names.
const (
	FeatureLeaderboardCache    = "leaderboard.cache"       // Serve leaderboard from Redis
	FeatureQuestManualComplete = "quests.manual_complete"  // POST .../quests/{id}/complete
	FeatureAchievementAdmin    = "achievements.admin"      // POST .../achievements/{id}
	FeatureEventsPublish       = "events.publish"          // Publish progression events
	FeatureStreakSkewWarning   = "streak.clock_skew_alert" // Warn on replayed/skewed reports
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
	}
	ff.initializeDefaults()
	ff.loadFromEnvironment()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	defaults := []Feature{
		{Name: FeatureLeaderboardCache, Description: "Serve the leaderboard from the Redis cache", Enabled: true, RolloutPercent: 100},
		{Name: FeatureQuestManualComplete, Description: "Allow clients to complete a daily quest directly", Enabled: true, RolloutPercent: 100},
		{Name: FeatureAchievementAdmin, Description: "Admin achievement unlock endpoint", Enabled: true, RolloutPercent: 100},
		{Name: FeatureEventsPublish, Description: "Publish progression domain events", Enabled: true, RolloutPercent: 100},
		{Name: FeatureStreakSkewWarning, Description: "Log a warning when a report predates the last active day", Enabled: true, RolloutPercent: 100},
	}
	for i := range defaults {
		f := defaults[i]
		ff.features[f.Name] = &f
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_LEADERBOARD_CACHE=false
// Example: FEATURE_QUESTS_MANUAL_COMPLETE=25 (25% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			if b {
				feature.RolloutPercent = 100
			} else {
				feature.RolloutPercent = 0
			}
			continue
		}
		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "leaderboard.cache" -> "FEATURE_LEADERBOARD_CACHE"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks a feature globally (userID == "") or for one user.
// A nil receiver means every feature is on.
func (ff *FeatureFlags) IsEnabled(featureName, userID string) bool {
	if ff == nil {
		return true
	}
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if userID != "" {
		if overrides, ok := ff.userOverrides[userID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}
	if feature.RolloutPercent < 100 && userID != "" {
		return isInRollout(userID, featureName, feature.RolloutPercent)
	}
	return feature.RolloutPercent > 0
}

// isInRollout uses consistent hashing so users stay in their bucket.
func isInRollout(userID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(userID))
	return int(h.Sum32()%100) < percent
}

// Set changes a feature at runtime.
func (ff *FeatureFlags) Set(featureName string, enabled bool, rolloutPercent int) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	f, ok := ff.features[featureName]
	if !ok {
		f = &Feature{Name: featureName}
		ff.features[featureName] = f
	}
	f.Enabled = enabled
	f.RolloutPercent = max(0, min(rolloutPercent, 100))
}

// SetUserOverride sets a feature override for a specific user.
func (ff *FeatureFlags) SetUserOverride(userID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if ff.userOverrides[userID] == nil {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// Snapshot returns the current flag states for diagnostics.
func (ff *FeatureFlags) Snapshot() map[string]int {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	out := make(map[string]int, len(ff.features))
	for name, f := range ff.features {
		if f.Enabled {
			out[name] = f.RolloutPercent
		} else {
			out[name] = 0
		}
	}
	return out
}
