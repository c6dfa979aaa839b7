package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cardquest/progression/internal/domain/progression"
	"github.com/cardquest/progression/internal/domain/shared"
	"github.com/cardquest/progression/internal/infrastructure/persistence/record"
	"github.com/cardquest/progression/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProfileRepository implements progression.Repository for PostgreSQL.
type ProfileRepository struct {
	conn *Connection
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(conn *Connection) *ProfileRepository {
	return &ProfileRepository{conn: conn}
}

const profileColumns = `
	user_id, seq, version, level, current_xp, total_xp,
	achievements, daily_quests, weekly_challenge,
	streak_current, streak_longest, last_active_day,
	cards_studied, tests_passed, games_won, perfect_scores,
	timezone, created_at, updated_at`

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// Get implements progression.Repository.
func (r *ProfileRepository) Get(ctx context.Context, userID string) (*progression.Profile, error) {
	ctx, cancel := r.conn.statementContext(ctx)
	defer cancel()

	query := `SELECT ` + profileColumns + ` FROM progression_profiles WHERE user_id = $1`

	rec, err := scanProfile(r.conn.QueryRow(ctx, query, userID))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return rec.ToProfile()
}

// Leaderboard implements progression.Repository.
func (r *ProfileRepository) Leaderboard(ctx context.Context, limit int) ([]progression.LeaderboardEntry, error) {
	query := `
		SELECT user_id, level, total_xp, seq
		FROM progression_profiles
		ORDER BY total_xp DESC, seq ASC
		LIMIT $1
	`

	ctx, cancel := r.conn.statementContext(ctx)
	defer cancel()

	rows, err := r.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]progression.LeaderboardEntry, 0, limit)
	for rows.Next() {
		var (
			e       progression.LeaderboardEntry
			totalXP int64
		)
		if err := rows.Scan(&e.UserID, &e.Level, &totalXP, &e.Seq); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		e.TotalXP = int(totalXP)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate leaderboard: %w", err)
	}
	return progression.Rank(entries), nil
}

// Ping implements progression.Repository.
func (r *ProfileRepository) Ping(ctx context.Context) error {
	return r.conn.Ping(ctx)
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// Save implements progression.Repository. A zero version inserts; any other
// version updates only the row still carrying that version.
func (r *ProfileRepository) Save(ctx context.Context, p *progression.Profile) error {
	rec, err := record.FromProfile(p)
	if err != nil {
		return err
	}

	ctx, cancel := r.conn.statementContext(ctx)
	defer cancel()

	if p.Version == 0 {
		seq, err := r.insert(ctx, rec)
		if err != nil {
			if IsNoRows(err) || IsUniqueViolation(err) {
				return shared.ErrProfileConflict
			}
			return fmt.Errorf("failed to insert profile: %w", err)
		}
		p.Seq = seq
		p.Version = 1
		return nil
	}

	affected, err := r.update(ctx, rec)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if affected == 0 {
		return shared.ErrProfileConflict
	}
	p.Version++
	return nil
}

// insert returns the assigned seq. A row that already exists yields
// pgx.ErrNoRows.
func (r *ProfileRepository) insert(ctx context.Context, rec record.Profile) (int64, error) {
	query := `
		INSERT INTO progression_profiles (
			user_id, version, level, current_xp, total_xp,
			achievements, daily_quests, weekly_challenge,
			streak_current, streak_longest, last_active_day,
			cards_studied, tests_passed, games_won, perfect_scores,
			timezone, created_at, updated_at
		) VALUES ($1, 1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING seq
	`

	var seq int64
	err := r.conn.QueryRow(ctx, query,
		rec.UserID,
		rec.Level,
		rec.CurrentXP,
		rec.TotalXP,
		rec.Achievements,
		rec.DailyQuests,
		rec.WeeklyChallenge,
		rec.StreakCurrent,
		rec.StreakLongest,
		dayToDate(rec.LastActiveDay),
		rec.CardsStudied,
		rec.TestsPassed,
		rec.GamesWon,
		rec.PerfectScores,
		rec.Timezone,
		rec.CreatedAt,
		rec.UpdatedAt,
	).Scan(&seq)
	return seq, err
}

func (r *ProfileRepository) update(ctx context.Context, rec record.Profile) (int64, error) {
	query := `
		UPDATE progression_profiles SET
			version = version + 1,
			level = $3,
			current_xp = $4,
			total_xp = $5,
			achievements = $6,
			daily_quests = $7,
			weekly_challenge = $8,
			streak_current = $9,
			streak_longest = $10,
			last_active_day = $11,
			cards_studied = $12,
			tests_passed = $13,
			games_won = $14,
			perfect_scores = $15,
			timezone = $16,
			updated_at = $17
		WHERE user_id = $1 AND version = $2
	`

	tag, err := r.conn.Exec(ctx, query,
		rec.UserID,
		rec.Version,
		rec.Level,
		rec.CurrentXP,
		rec.TotalXP,
		rec.Achievements,
		rec.DailyQuests,
		rec.WeeklyChallenge,
		rec.StreakCurrent,
		rec.StreakLongest,
		dayToDate(rec.LastActiveDay),
		rec.CardsStudied,
		rec.TestsPassed,
		rec.GamesWon,
		rec.PerfectScores,
		rec.Timezone,
		rec.UpdatedAt,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helper Functions
// ─────────────────────────────────────────────────────────────────────────────

func scanProfile(row pgx.Row) (record.Profile, error) {
	var (
		rec        record.Profile
		lastActive *time.Time
	)
	err := row.Scan(
		&rec.UserID,
		&rec.Seq,
		&rec.Version,
		&rec.Level,
		&rec.CurrentXP,
		&rec.TotalXP,
		&rec.Achievements,
		&rec.DailyQuests,
		&rec.WeeklyChallenge,
		&rec.StreakCurrent,
		&rec.StreakLongest,
		&lastActive,
		&rec.CardsStudied,
		&rec.TestsPassed,
		&rec.GamesWon,
		&rec.PerfectScores,
		&rec.Timezone,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return record.Profile{}, err
	}
	if lastActive != nil {
		d := timeutil.DayKeyOf(lastActive.UTC())
		rec.LastActiveDay = &d
	}
	return rec, nil
}

func dayToDate(d *timeutil.DayKey) *time.Time {
	if d == nil {
		return nil
	}
	t := d.In(time.UTC)
	return &t
}
