// Package sqlite implements progression.Repository on an embedded SQLite file,
// for single-node deployments without PostgreSQL.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cardquest/progression/internal/domain/progression"
	"github.com/cardquest/progression/internal/domain/shared"
	"github.com/cardquest/progression/internal/infrastructure/persistence/record"
	"github.com/cardquest/progression/pkg/timeutil"
)

const schema = `
CREATE TABLE IF NOT EXISTS progression_profiles (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL UNIQUE,
    version INTEGER NOT NULL,
    level INTEGER NOT NULL,
    current_xp INTEGER NOT NULL,
    total_xp INTEGER NOT NULL,
    achievements TEXT NOT NULL,
    daily_quests TEXT NOT NULL,
    weekly_challenge TEXT,
    streak_current INTEGER NOT NULL,
    streak_longest INTEGER NOT NULL,
    last_active_day TEXT,
    cards_studied INTEGER NOT NULL,
    tests_passed INTEGER NOT NULL,
    games_won INTEGER NOT NULL,
    perfect_scores INTEGER NOT NULL,
    timezone TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_progression_profiles_leaderboard
    ON progression_profiles(total_xp DESC, seq ASC);
`

// ProfileRepository provides SQLite-backed profile storage.
type ProfileRepository struct {
	sqlDB *sql.DB
}

// Open opens the database at path and creates the schema when missing.
func Open(path string) (*ProfileRepository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite has a single writer.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &ProfileRepository{sqlDB: sqlDB}, nil
}

// Close releases the underlying SQLite connection.
func (r *ProfileRepository) Close() error {
	if r == nil || r.sqlDB == nil {
		return nil
	}
	return r.sqlDB.Close()
}

// Get implements progression.Repository.
func (r *ProfileRepository) Get(ctx context.Context, userID string) (*progression.Profile, error) {
	row := r.sqlDB.QueryRowContext(ctx,
		`SELECT user_id, seq, version, level, current_xp, total_xp,
		        achievements, daily_quests, weekly_challenge,
		        streak_current, streak_longest, last_active_day,
		        cards_studied, tests_passed, games_won, perfect_scores,
		        timezone, created_at, updated_at
		 FROM progression_profiles
		 WHERE user_id = ?`,
		userID,
	)

	var (
		rec        record.Profile
		lastActive sql.NullString
		createdAt  int64
		updatedAt  int64
	)
	err := row.Scan(
		&rec.UserID, &rec.Seq, &rec.Version, &rec.Level, &rec.CurrentXP, &rec.TotalXP,
		&rec.Achievements, &rec.DailyQuests, &rec.WeeklyChallenge,
		&rec.StreakCurrent, &rec.StreakLongest, &lastActive,
		&rec.CardsStudied, &rec.TestsPassed, &rec.GamesWon, &rec.PerfectScores,
		&rec.Timezone, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrProfileNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	if lastActive.Valid {
		d, err := timeutil.ParseDayKey(lastActive.String)
		if err != nil {
			return nil, fmt.Errorf("get profile: %w", err)
		}
		rec.LastActiveDay = &d
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return rec.ToProfile()
}

// Save implements progression.Repository.
func (r *ProfileRepository) Save(ctx context.Context, p *progression.Profile) error {
	rec, err := record.FromProfile(p)
	if err != nil {
		return err
	}

	var lastActive sql.NullString
	if rec.LastActiveDay != nil {
		lastActive = sql.NullString{String: rec.LastActiveDay.String(), Valid: true}
	}
	var challenge any
	if rec.WeeklyChallenge != nil {
		challenge = string(rec.WeeklyChallenge)
	}

	var res sql.Result
	if p.Version == 0 {
		res, err = r.sqlDB.ExecContext(ctx,
			`INSERT INTO progression_profiles (
			    user_id, version, level, current_xp, total_xp,
			    achievements, daily_quests, weekly_challenge,
			    streak_current, streak_longest, last_active_day,
			    cards_studied, tests_passed, games_won, perfect_scores,
			    timezone, created_at, updated_at
			 ) VALUES (?, 1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(user_id) DO NOTHING`,
			rec.UserID, rec.Level, rec.CurrentXP, rec.TotalXP,
			string(rec.Achievements), string(rec.DailyQuests), challenge,
			rec.StreakCurrent, rec.StreakLongest, lastActive,
			rec.CardsStudied, rec.TestsPassed, rec.GamesWon, rec.PerfectScores,
			rec.Timezone, rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano(),
		)
	} else {
		res, err = r.sqlDB.ExecContext(ctx,
			`UPDATE progression_profiles SET
			    version = version + 1,
			    level = ?, current_xp = ?, total_xp = ?,
			    achievements = ?, daily_quests = ?, weekly_challenge = ?,
			    streak_current = ?, streak_longest = ?, last_active_day = ?,
			    cards_studied = ?, tests_passed = ?, games_won = ?, perfect_scores = ?,
			    timezone = ?, updated_at = ?
			 WHERE user_id = ? AND version = ?`,
			rec.Level, rec.CurrentXP, rec.TotalXP,
			string(rec.Achievements), string(rec.DailyQuests), challenge,
			rec.StreakCurrent, rec.StreakLongest, lastActive,
			rec.CardsStudied, rec.TestsPassed, rec.GamesWon, rec.PerfectScores,
			rec.Timezone, rec.UpdatedAt.UnixNano(),
			rec.UserID, rec.Version,
		)
	}
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	if affected == 0 {
		return shared.ErrProfileConflict
	}

	if p.Version == 0 {
		seq, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("save profile: %w", err)
		}
		p.Seq = seq
	}
	p.Version++
	return nil
}

// Leaderboard implements progression.Repository.
func (r *ProfileRepository) Leaderboard(ctx context.Context, limit int) ([]progression.LeaderboardEntry, error) {
	rows, err := r.sqlDB.QueryContext(ctx,
		`SELECT user_id, level, total_xp, seq
		 FROM progression_profiles
		 ORDER BY total_xp DESC, seq ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]progression.LeaderboardEntry, 0, limit)
	for rows.Next() {
		var e progression.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Level, &e.TotalXP, &e.Seq); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaderboard: %w", err)
	}
	return progression.Rank(entries), nil
}

// Ping implements progression.Repository.
func (r *ProfileRepository) Ping(ctx context.Context) error {
	return r.sqlDB.PingContext(ctx)
}
