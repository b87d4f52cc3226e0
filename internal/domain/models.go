package domain

import "time"

// RoomStatus is the lifecycle state of a battle room. Transitions only move
// forward: WAITING -> IN_PROGRESS -> FINISHED.
type RoomStatus string

const (
	RoomWaiting    RoomStatus = "WAITING"
	RoomInProgress RoomStatus = "IN_PROGRESS"
	RoomFinished   RoomStatus = "FINISHED"
)

// Option represents a possible answer for a question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuestionRef is the read-only view of a quiz question captured at battle
// creation. The snapshot is never refreshed mid-battle.
type QuestionRef struct {
	ID               string   `json:"id"`
	Text             string   `json:"text"`
	Options          []Option `json:"options"`
	Answer           string   `json:"answer"`
	Explanation      string   `json:"explanation,omitempty"`
	Points           int      `json:"points"` // defaults to 1 if zero
	TimeLimitSeconds int      `json:"timeLimitSeconds"`
}

// Quiz is the immutable question snapshot for one battle.
type Quiz struct {
	ID        string        `json:"id"`
	Questions []QuestionRef `json:"questions"`
}

// Answer records one participant's submission (or forfeit) for one question.
// Immutable once appended to the participant's log.
type Answer struct {
	ParticipantID string        `json:"participantId"`
	QuestionID    string        `json:"questionId"`
	Text          string        `json:"text"`
	Correct       bool          `json:"correct"`
	EarnedPoints  int           `json:"earnedPoints"`
	TimeBonus     int           `json:"timeBonus"`
	Timeout       bool          `json:"timeout"`
	Disconnect    bool          `json:"disconnect"`
	Elapsed       time.Duration `json:"elapsed"`
	SubmittedAt   time.Time     `json:"submittedAt"`
}

// Participant is a user's live membership in one room. It references its room
// by id only; the answer log is append-only and is the single source of truth
// for both the score and the already-answered check.
type Participant struct {
	ID           string    `json:"id"`
	RoomID       string    `json:"roomId"`
	UserID       string    `json:"userId"`
	DisplayName  string    `json:"displayName"`
	JoinOrder    int       `json:"joinOrder"`
	Score        int       `json:"score"`
	Streak       int       `json:"streak"`
	Ready        bool      `json:"ready"`
	Active       bool      `json:"active"`
	Answers      []Answer  `json:"answers"`
	LastActivity time.Time `json:"lastActivity"`
}

// AnswerFor returns the participant's answer for a question, if any. The log
// scan is deliberate: a cached "has answered" flag could drift from the log.
func (p *Participant) AnswerFor(questionID string) (Answer, bool) {
	for i := range p.Answers {
		if p.Answers[i].QuestionID == questionID {
			return p.Answers[i], true
		}
	}
	return Answer{}, false
}

// RecomputeScore sums earned points over the answer log. It must always equal
// the Score field.
func (p *Participant) RecomputeScore() int {
	total := 0
	for i := range p.Answers {
		total += p.Answers[i].EarnedPoints
	}
	return total
}

// Room holds all mutable battle state. It is not safe for concurrent use;
// callers serialize access per room (see the app layer).
type Room struct {
	ID                   string         `json:"id"`
	QuizID               string         `json:"quizId"`
	Status               RoomStatus     `json:"status"`
	Questions            []QuestionRef  `json:"questions"`
	MaxParticipants      int            `json:"maxParticipants"`
	CreatorID            string         `json:"creatorId"`
	CurrentQuestionIndex int            `json:"currentQuestionIndex"`
	NextJoinOrder        int            `json:"nextJoinOrder"`
	QuestionStartedAt    time.Time      `json:"questionStartedAt"`
	QuestionSeconds      int            `json:"questionSeconds"` // default per-question limit
	StartedAt            time.Time      `json:"startedAt"`
	EndedAt              time.Time      `json:"endedAt"`
	Participants         []*Participant `json:"participants"`
}

// NewRoom creates a WAITING room around an immutable question snapshot.
func NewRoom(id string, quiz Quiz, creatorID string, maxParticipants, questionSeconds int) *Room {
	return &Room{
		ID:              id,
		QuizID:          quiz.ID,
		Status:          RoomWaiting,
		Questions:       quiz.Questions,
		MaxParticipants: maxParticipants,
		CreatorID:       creatorID,
		QuestionSeconds: questionSeconds,
	}
}

// Participant finds a participant by user id.
func (r *Room) Participant(userID string) (*Participant, bool) {
	for _, p := range r.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return nil, false
}

// ActiveCount counts participants that have not left or been disconnected.
func (r *Room) ActiveCount() int {
	n := 0
	for _, p := range r.Participants {
		if p.Active {
			n++
		}
	}
	return n
}

// ActiveParticipants returns active participants in join order.
func (r *Room) ActiveParticipants() []*Participant {
	out := make([]*Participant, 0, len(r.Participants))
	for _, p := range r.Participants {
		if p.Active {
			out = append(out, p)
		}
	}
	return out
}

// Join admits a user into a WAITING room.
func (r *Room) Join(participantID, userID, displayName string, now time.Time) (*Participant, error) {
	if r.Status != RoomWaiting {
		return nil, ErrBattleAlreadyStarted
	}
	if _, ok := r.Participant(userID); ok {
		return nil, ErrAlreadyParticipating
	}
	if len(r.Participants) >= r.MaxParticipants {
		return nil, ErrBattleRoomFull
	}
	// Join order comes from a monotonic counter, not the slice length: after
	// a leave-and-rejoin the length would hand out a duplicate order and the
	// winner tie-break must stay unambiguous.
	p := &Participant{
		ID:           participantID,
		RoomID:       r.ID,
		UserID:       userID,
		DisplayName:  displayName,
		JoinOrder:    r.NextJoinOrder,
		Active:       true,
		LastActivity: now,
	}
	r.NextJoinOrder++
	r.Participants = append(r.Participants, p)
	return p, nil
}

// ToggleReady flips a participant's ready flag while the room is WAITING.
func (r *Room) ToggleReady(userID string, now time.Time) (bool, error) {
	if r.Status != RoomWaiting {
		return false, ErrBattleAlreadyStarted
	}
	p, ok := r.Participant(userID)
	if !ok {
		return false, ErrParticipantNotFound
	}
	if !p.Active {
		return false, ErrParticipantInactive
	}
	p.Ready = !p.Ready
	p.LastActivity = now
	return p.Ready, nil
}

// ReadyToStart reports whether the start guard holds: WAITING, at least two
// active participants, every active participant ready.
func (r *Room) ReadyToStart() bool {
	if r.Status != RoomWaiting {
		return false
	}
	active := 0
	for _, p := range r.Participants {
		if !p.Active {
			continue
		}
		active++
		if !p.Ready {
			return false
		}
	}
	return active >= 2
}

// Start transitions the room to IN_PROGRESS. Every participant's score and
// streak is reset, even when the room is reused after a previous battle.
func (r *Room) Start(now time.Time) error {
	if !r.ReadyToStart() {
		return ErrNotReadyToStart
	}
	for _, p := range r.Participants {
		p.Score = 0
		p.Streak = 0
		p.Answers = nil
	}
	r.Status = RoomInProgress
	r.CurrentQuestionIndex = 0
	r.QuestionStartedAt = now
	r.StartedAt = now
	return nil
}

// SubmitAnswer validates and scores a submission for the current question.
func (r *Room) SubmitAnswer(userID, questionID, text string, questionIndex int, now time.Time) (Answer, error) {
	if r.Status != RoomInProgress {
		return Answer{}, ErrBattleNotInProgress
	}
	p, ok := r.Participant(userID)
	if !ok {
		return Answer{}, ErrParticipantNotFound
	}
	if !p.Active {
		return Answer{}, ErrParticipantInactive
	}
	if questionIndex != r.CurrentQuestionIndex {
		return Answer{}, ErrInvalidQuestionSequence
	}
	q, ok := r.CurrentQuestion()
	if !ok || q.ID != questionID {
		return Answer{}, ErrInvalidQuestionSequence
	}
	if _, answered := p.AnswerFor(q.ID); answered {
		return Answer{}, ErrAnswerAlreadySubmitted
	}

	limit := r.QuestionLimit(q)
	elapsed := now.Sub(r.QuestionStartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > limit {
		elapsed = limit
	}

	answer := Answer{
		ParticipantID: p.ID,
		QuestionID:    q.ID,
		Text:          text,
		Elapsed:       elapsed,
		SubmittedAt:   now,
	}
	if MatchesAnswer(q, text) {
		bonus := TimeBonus(elapsed, limit)
		answer.Correct = true
		answer.TimeBonus = bonus
		answer.EarnedPoints = BasePoints(q) + bonus + StreakBonus(p.Streak)
		p.Streak++
	} else {
		p.Streak = 0
	}
	p.Answers = append(p.Answers, answer)
	p.Score += answer.EarnedPoints
	p.LastActivity = now
	return answer, nil
}

// ForfeitTimeout synthesizes a zero-score answer for an active participant
// that missed the current question's deadline.
func (r *Room) ForfeitTimeout(userID string, now time.Time) (Answer, error) {
	return r.forfeit(userID, now, true, false)
}

// ForfeitDisconnect synthesizes a zero-score answer for a participant that
// disconnected mid-question, then marks it inactive.
func (r *Room) ForfeitDisconnect(userID string, now time.Time) (Answer, error) {
	return r.forfeit(userID, now, false, true)
}

func (r *Room) forfeit(userID string, now time.Time, timeout, disconnect bool) (Answer, error) {
	if r.Status != RoomInProgress {
		return Answer{}, ErrBattleNotInProgress
	}
	p, ok := r.Participant(userID)
	if !ok {
		return Answer{}, ErrParticipantNotFound
	}
	q, ok := r.CurrentQuestion()
	if !ok {
		return Answer{}, ErrQuestionNotFound
	}
	if _, answered := p.AnswerFor(q.ID); answered {
		if disconnect {
			p.Active = false
		}
		return Answer{}, ErrAnswerAlreadySubmitted
	}
	answer := Answer{
		ParticipantID: p.ID,
		QuestionID:    q.ID,
		Correct:       false,
		Timeout:       timeout,
		Disconnect:    disconnect,
		Elapsed:       r.QuestionLimit(q),
		SubmittedAt:   now,
	}
	p.Answers = append(p.Answers, answer)
	p.Streak = 0
	p.LastActivity = now
	if disconnect {
		p.Active = false
	}
	return answer, nil
}

// Leave removes a participant from a WAITING room, or marks it inactive and
// forfeits the current question while IN_PROGRESS.
func (r *Room) Leave(userID string, now time.Time) error {
	switch r.Status {
	case RoomWaiting:
		for i, p := range r.Participants {
			if p.UserID == userID {
				r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
				return nil
			}
		}
		return ErrParticipantNotFound
	case RoomInProgress:
		p, ok := r.Participant(userID)
		if !ok {
			return ErrParticipantNotFound
		}
		if !p.Active {
			return ErrParticipantInactive
		}
		if _, err := r.ForfeitDisconnect(userID, now); err != nil && err != ErrAnswerAlreadySubmitted {
			return err
		}
		return nil
	default:
		return ErrBattleFinished
	}
}

// AllAnswered reports whether every active participant has an answer (real or
// synthesized) for the current question. Vacuously false with no question.
func (r *Room) AllAnswered() bool {
	q, ok := r.CurrentQuestion()
	if !ok {
		return false
	}
	for _, p := range r.Participants {
		if !p.Active {
			continue
		}
		if _, answered := p.AnswerFor(q.ID); !answered {
			return false
		}
	}
	return true
}

// Finish transitions the room to its terminal state.
func (r *Room) Finish(now time.Time) {
	if r.Status == RoomFinished {
		return
	}
	r.Status = RoomFinished
	r.EndedAt = now
}

// Clone deep-copies the room so snapshots can be persisted or serialized
// outside the per-room lock.
func (r *Room) Clone() *Room {
	clone := *r
	clone.Participants = make([]*Participant, len(r.Participants))
	for i, p := range r.Participants {
		cp := *p
		cp.Answers = make([]Answer, len(p.Answers))
		copy(cp.Answers, p.Answers)
		clone.Participants[i] = &cp
	}
	return &clone
}
