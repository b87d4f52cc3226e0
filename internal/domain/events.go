package domain

import "time"

// Event is a battle lifecycle event published to the messaging collaborator.
// Delivery is at-least-once; consumers must be idempotent.
type Event interface {
	EventName() string
}

// BattleStarted is published once when a room transitions to IN_PROGRESS.
type BattleStarted struct {
	RoomID          string    `json:"roomId"`
	ParticipantIDs  []string  `json:"participantIds"`
	FirstQuestionID string    `json:"firstQuestionId"`
	StartedAt       time.Time `json:"startedAt"`
}

func (BattleStarted) EventName() string { return "battle.started" }

// QuestionAdvanced is published when a room moves to its next question.
type QuestionAdvanced struct {
	RoomID     string `json:"roomId"`
	Index      int    `json:"index"`
	QuestionID string `json:"questionId"`
	IsLast     bool   `json:"isLast"`
}

func (QuestionAdvanced) EventName() string { return "battle.question_advanced" }

// ParticipantAnswered is published for every recorded answer, forfeits
// included.
type ParticipantAnswered struct {
	RoomID     string `json:"roomId"`
	UserID     string `json:"userId"`
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
	Earned     int    `json:"earned"`
	Timeout    bool   `json:"timeout,omitempty"`
	Disconnect bool   `json:"disconnect,omitempty"`
}

func (ParticipantAnswered) EventName() string { return "battle.participant_answered" }

// BattleEnded is published once when a room reaches FINISHED.
type BattleEnded struct {
	RoomID      string      `json:"roomId"`
	WinnerID    string      `json:"winnerId,omitempty"`
	WinnerBonus int         `json:"winnerBonus,omitempty"`
	Rankings    []RankEntry `json:"rankings"`
	EndedAt     time.Time   `json:"endedAt"`
}

func (BattleEnded) EventName() string { return "battle.ended" }
