package domain

import "time"

// CurrentQuestion returns the question at the current index. There is no
// current question outside IN_PROGRESS or past the end of the list.
func (r *Room) CurrentQuestion() (QuestionRef, bool) {
	if r.Status != RoomInProgress {
		return QuestionRef{}, false
	}
	if r.CurrentQuestionIndex < 0 || r.CurrentQuestionIndex >= len(r.Questions) {
		return QuestionRef{}, false
	}
	return r.Questions[r.CurrentQuestionIndex], true
}

// Advance moves the room to the next question and restarts the question
// clock. When the list is exhausted it reports finished and parks the index
// at len(Questions); the index never regresses or goes negative.
func (r *Room) Advance(now time.Time) (QuestionRef, bool) {
	r.CurrentQuestionIndex++
	if r.CurrentQuestionIndex >= len(r.Questions) {
		r.CurrentQuestionIndex = len(r.Questions)
		return QuestionRef{}, true
	}
	r.QuestionStartedAt = now
	return r.Questions[r.CurrentQuestionIndex], false
}

// QuestionLimit resolves the time limit for a question, falling back to the
// room default when the question carries none.
func (r *Room) QuestionLimit(q QuestionRef) time.Duration {
	seconds := q.TimeLimitSeconds
	if seconds <= 0 {
		seconds = r.QuestionSeconds
	}
	return time.Duration(seconds) * time.Second
}

// RemainingTime is the wall-clock time left for the current question, floored
// at zero. Pure and non-blocking.
func (r *Room) RemainingTime(now time.Time) time.Duration {
	q, ok := r.CurrentQuestion()
	if !ok {
		return 0
	}
	remaining := r.QuestionStartedAt.Add(r.QuestionLimit(q)).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports whether the current question's deadline has passed.
func (r *Room) Expired(now time.Time) bool {
	if _, ok := r.CurrentQuestion(); !ok {
		return false
	}
	return r.RemainingTime(now) <= 0
}
