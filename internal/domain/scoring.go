package domain

import (
	"sort"
	"strings"
	"time"
)

// Scoring constants.
const (
	winnerBonusBase        = 50
	winnerBonusAllCorrect  = 30
	winnerBonusFastAnswers = 20

	fastAnswerAverage = 30 * time.Second
)

// MatchesAnswer checks a submission against the canonical answer: exact
// match, case-sensitive, ignoring surrounding whitespace only.
func MatchesAnswer(q QuestionRef, text string) bool {
	return strings.TrimSpace(text) == strings.TrimSpace(q.Answer)
}

// BasePoints returns the question's points, defaulting to 1.
func BasePoints(q QuestionRef) int {
	if q.Points > 0 {
		return q.Points
	}
	return 1
}

// TimeBonus tiers by the fraction of time remaining when the answer landed:
// >=70% -> 3, >=50% -> 2, >=30% -> 1, else 0.
func TimeBonus(elapsed, limit time.Duration) int {
	if limit <= 0 {
		return 0
	}
	remaining := limit - elapsed
	if remaining < 0 {
		remaining = 0
	}
	switch {
	case remaining*10 >= limit*7:
		return 3
	case remaining*2 >= limit:
		return 2
	case remaining*10 >= limit*3:
		return 1
	default:
		return 0
	}
}

// StreakBonus rewards a run of consecutive correct answers. The streak value
// is the one held before the current answer increments it.
func StreakBonus(streak int) int {
	switch {
	case streak >= 5:
		return 5
	case streak >= 3:
		return 3
	default:
		return 0
	}
}

// DetermineWinner picks the participant with the strictly greatest score.
// Equal top scores resolve to the earliest join order, which makes the result
// deterministic regardless of map or goroutine ordering upstream.
func DetermineWinner(participants []*Participant) (*Participant, bool) {
	var winner *Participant
	for _, p := range participants {
		if winner == nil || p.Score > winner.Score ||
			(p.Score == winner.Score && p.JoinOrder < winner.JoinOrder) {
			winner = p
		}
	}
	return winner, winner != nil
}

// WinnerBonus is awarded on top of the winner's log score: 50 base, +30 for a
// fully correct answer log, +20 when the average answer time beat 30s. The
// bonus is reported with the final result and never folded into Score, so the
// score always stays recomputable from the answer log.
func WinnerBonus(p *Participant) int {
	bonus := winnerBonusBase
	if len(p.Answers) == 0 {
		return bonus
	}
	allCorrect := true
	var total time.Duration
	for i := range p.Answers {
		if !p.Answers[i].Correct {
			allCorrect = false
		}
		total += p.Answers[i].Elapsed
	}
	if allCorrect {
		bonus += winnerBonusAllCorrect
	}
	if total/time.Duration(len(p.Answers)) < fastAnswerAverage {
		bonus += winnerBonusFastAnswers
	}
	return bonus
}

// RankEntry is one row of the final (or live) standings.
type RankEntry struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
	Rank        int    `json:"rank"`
}

// Rank produces dense rankings: stable descending sort by score, ties share a
// rank and the next distinct score takes rank+1.
func Rank(participants []*Participant) []RankEntry {
	ordered := make([]*Participant, len(participants))
	copy(ordered, participants)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})

	entries := make([]RankEntry, 0, len(ordered))
	rank := 0
	prevScore := 0
	for i, p := range ordered {
		if i == 0 || p.Score != prevScore {
			rank++
			prevScore = p.Score
		}
		entries = append(entries, RankEntry{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Score:       p.Score,
			Rank:        rank,
		})
	}
	return entries
}
