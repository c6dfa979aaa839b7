package progression

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cardquest/progression/internal/domain/shared"
)

func TestActivity_Validate(t *testing.T) {
	cases := []struct {
		name string
		a    Activity
		want error
	}{
		{"empty", Activity{}, nil},
		{"at limit", Activity{CardsStudied: MaxActivityCount, TestsPassed: MaxActivityCount, GamesWon: MaxActivityCount}, nil},
		{"negative", Activity{TestsPassed: -1}, shared.ErrNegativeActivity},
		{"cards above limit", Activity{CardsStudied: MaxActivityCount + 1}, shared.ErrActivityTooLarge},
		{"games above limit", Activity{GamesWon: math.MaxInt}, shared.ErrActivityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.a.Validate()
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, shared.IsValidation(err))
		})
	}
}

func TestStats_ApplySaturates(t *testing.T) {
	s := Stats{CardsStudied: math.MaxInt - 5, TestsPassed: 1, PerfectScores: math.MaxInt}

	s = s.apply(Activity{CardsStudied: 10, TestsPassed: 2, PerfectScore: true})
	assert.Equal(t, math.MaxInt, s.CardsStudied)
	assert.Equal(t, 3, s.TestsPassed)
	assert.Equal(t, math.MaxInt, s.PerfectScores)
	assert.Zero(t, s.GamesWon)
}
