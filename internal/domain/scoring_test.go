package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-battle-service/internal/domain"
)

func TestTimeBonusTiers(t *testing.T) {
	limit := 10 * time.Second

	tests := []struct {
		name    string
		elapsed time.Duration
		want    int
	}{
		{"instant answer", 0, 3},
		{"seventy percent remaining", 3 * time.Second, 3},
		{"fifty percent remaining", 5 * time.Second, 2},
		{"thirty percent remaining", 7 * time.Second, 1},
		{"twenty percent remaining", 8 * time.Second, 0},
		{"at the deadline", 10 * time.Second, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.TimeBonus(tt.elapsed, limit))
		})
	}
}

func TestTimeBonusZeroLimit(t *testing.T) {
	assert.Equal(t, 0, domain.TimeBonus(0, 0))
}

func TestStreakBonus(t *testing.T) {
	assert.Equal(t, 0, domain.StreakBonus(0))
	assert.Equal(t, 0, domain.StreakBonus(2))
	assert.Equal(t, 3, domain.StreakBonus(3))
	assert.Equal(t, 3, domain.StreakBonus(4))
	assert.Equal(t, 5, domain.StreakBonus(5))
	assert.Equal(t, 5, domain.StreakBonus(9))
}

func TestMatchesAnswer(t *testing.T) {
	q := domain.QuestionRef{Answer: "Mars"}

	assert.True(t, domain.MatchesAnswer(q, "Mars"))
	assert.True(t, domain.MatchesAnswer(q, "  Mars \n"))
	assert.False(t, domain.MatchesAnswer(q, "mars"))
	assert.False(t, domain.MatchesAnswer(q, "Venus"))
}

func TestDetermineWinnerTieBreaksByJoinOrder(t *testing.T) {
	participants := []*domain.Participant{
		{UserID: "u1", JoinOrder: 0, Score: 20},
		{UserID: "u2", JoinOrder: 1, Score: 30},
		{UserID: "u3", JoinOrder: 2, Score: 30},
	}

	winner, ok := domain.DetermineWinner(participants)
	require.True(t, ok)
	assert.Equal(t, "u2", winner.UserID, "earliest joiner wins a tie")

	_, ok = domain.DetermineWinner(nil)
	assert.False(t, ok)
}

func TestWinnerBonus(t *testing.T) {
	fast := func(correct bool) domain.Answer {
		return domain.Answer{Correct: correct, Elapsed: 5 * time.Second}
	}
	slow := func(correct bool) domain.Answer {
		return domain.Answer{Correct: correct, Elapsed: 40 * time.Second}
	}

	perfect := &domain.Participant{Answers: []domain.Answer{fast(true), fast(true)}}
	assert.Equal(t, 100, domain.WinnerBonus(perfect))

	slowPerfect := &domain.Participant{Answers: []domain.Answer{slow(true), slow(true)}}
	assert.Equal(t, 80, domain.WinnerBonus(slowPerfect))

	fastImperfect := &domain.Participant{Answers: []domain.Answer{fast(true), fast(false)}}
	assert.Equal(t, 70, domain.WinnerBonus(fastImperfect))

	empty := &domain.Participant{}
	assert.Equal(t, 50, domain.WinnerBonus(empty))
}

func TestRankIsDense(t *testing.T) {
	participants := []*domain.Participant{
		{UserID: "u1", DisplayName: "Alice", Score: 10},
		{UserID: "u2", DisplayName: "Bob", Score: 30},
		{UserID: "u3", DisplayName: "Cara", Score: 30},
		{UserID: "u4", DisplayName: "Dan", Score: 5},
	}

	entries := domain.Rank(participants)
	require.Len(t, entries, 4)

	assert.Equal(t, "u2", entries[0].UserID)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "u3", entries[1].UserID)
	assert.Equal(t, 1, entries[1].Rank, "equal scores share a rank")
	assert.Equal(t, "u1", entries[2].UserID)
	assert.Equal(t, 2, entries[2].Rank, "dense rank after a tie")
	assert.Equal(t, "u4", entries[3].UserID)
	assert.Equal(t, 3, entries[3].Rank)
}
