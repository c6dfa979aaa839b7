package progression

import (
	"math"

	"github.com/cardquest/progression/internal/domain/shared"
)

// Level tier boundaries. The step function is coarse on purpose and the
// breakpoints must stay stable for stored profiles.
const (
	tierOneMaxLevel   = 10
	tierTwoMaxLevel   = 20
	tierThreeMaxLevel = 50

	tierOneThreshold   = 100
	tierTwoThreshold   = 200
	tierThreeThreshold = 500
	tierFourThreshold  = 1000
)

// LevelThreshold returns the XP required to advance from level to level+1.
func LevelThreshold(level int) int {
	switch {
	case level <= tierOneMaxLevel:
		return tierOneThreshold
	case level <= tierTwoMaxLevel:
		return tierTwoThreshold
	case level <= tierThreeMaxLevel:
		return tierThreeThreshold
	default:
		return tierFourThreshold
	}
}

// XPResult describes the outcome of one XP grant.
type XPResult struct {
	Action         string `json:"action"`
	Amount         int    `json:"amount"`
	LeveledUp      bool   `json:"leveled_up"`
	LevelsGained   int    `json:"levels_gained"`
	NewLevel       int    `json:"new_level"`
	CurrentXP      int    `json:"current_xp"`
	XPForNextLevel int    `json:"xp_for_next_level"`
	TotalXP        int    `json:"total_xp"`
}

// AddXP grants amount XP and levels up as far as the new balance allows.
// Non-positive amounts and grants that would overflow the lifetime total are
// rejected without touching the profile.
func AddXP(p *Profile, amount int, action string) (XPResult, error) {
	if amount <= 0 {
		return XPResult{}, shared.ErrNonPositiveXP
	}
	if amount > math.MaxInt-p.TotalXP {
		return XPResult{}, shared.ErrXPOverflow
	}

	p.CurrentXP += amount
	p.TotalXP += amount

	gained := levelUp(p)

	return XPResult{
		Action:         action,
		Amount:         amount,
		LeveledUp:      gained > 0,
		LevelsGained:   gained,
		NewLevel:       p.Level,
		CurrentXP:      p.CurrentXP,
		XPForNextLevel: LevelThreshold(p.Level),
		TotalXP:        p.TotalXP,
	}, nil
}

// levelUp consumes thresholds from CurrentXP and returns the levels gained.
// The tiered levels are walked one by one; past the last breakpoint the
// threshold is flat and the jump is computed in one step.
func levelUp(p *Profile) int {
	gained := 0
	for p.Level <= tierThreeMaxLevel && p.CurrentXP >= LevelThreshold(p.Level) {
		p.CurrentXP -= LevelThreshold(p.Level)
		p.Level++
		gained++
	}
	if p.Level > tierThreeMaxLevel && p.CurrentXP >= tierFourThreshold {
		levels := p.CurrentXP / tierFourThreshold
		p.CurrentXP %= tierFourThreshold
		p.Level += levels
		gained += levels
	}
	return gained
}

// LevelProgress returns a snapshot of the ledger without granting anything.
func LevelProgress(p *Profile) XPResult {
	return XPResult{
		NewLevel:       p.Level,
		CurrentXP:      p.CurrentXP,
		XPForNextLevel: LevelThreshold(p.Level),
		TotalXP:        p.TotalXP,
	}
}
