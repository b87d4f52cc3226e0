package domain

import "errors"

var (
	// ErrRoomNotFound is returned when a battle room does not exist.
	ErrRoomNotFound = errors.New("battle room not found")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in battle")
	// ErrQuizNotFound indicates the quiz snapshot could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates the referenced question does not exist.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrUserNotFound indicates the user directory does not know the user.
	ErrUserNotFound = errors.New("user not found")

	// ErrBattleRoomFull rejects a join when the room hit maxParticipants.
	ErrBattleRoomFull = errors.New("battle room is full")
	// ErrAlreadyParticipating rejects a second join by the same user.
	ErrAlreadyParticipating = errors.New("user already participating in battle")
	// ErrBattleAlreadyStarted rejects WAITING-only operations after start.
	ErrBattleAlreadyStarted = errors.New("battle has already started")
	// ErrAnswerAlreadySubmitted rejects a second answer for the same question.
	ErrAnswerAlreadySubmitted = errors.New("answer already submitted for this question")

	// ErrInvalidQuestionSequence rejects answers for any index other than the
	// current question.
	ErrInvalidQuestionSequence = errors.New("invalid question sequence")

	// ErrBattleNotInProgress rejects IN_PROGRESS-only operations.
	ErrBattleNotInProgress = errors.New("battle is not in progress")
	// ErrBattleFinished rejects any mutation of a finished room.
	ErrBattleFinished = errors.New("battle already finished")
	// ErrNotReadyToStart indicates the start guard does not hold.
	ErrNotReadyToStart = errors.New("battle is not ready to start")
	// ErrParticipantInactive rejects actions from a forfeited participant.
	ErrParticipantInactive = errors.New("participant is no longer active")

	// ErrUnauthorized rejects acting on behalf of someone else's membership.
	ErrUnauthorized = errors.New("not allowed to perform this action")
)

// ErrorKind buckets domain errors for transports and logging.
type ErrorKind string

const (
	KindNotFound        ErrorKind = "not_found"
	KindConflict        ErrorKind = "conflict"
	KindInvalidSequence ErrorKind = "invalid_sequence"
	KindInvalidState    ErrorKind = "invalid_state"
	KindUnauthorized    ErrorKind = "unauthorized"
	KindInternal        ErrorKind = "internal"
)

// Kind classifies a domain error. Unknown errors are internal.
func Kind(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrRoomNotFound),
		errors.Is(err, ErrParticipantNotFound),
		errors.Is(err, ErrQuizNotFound),
		errors.Is(err, ErrQuestionNotFound),
		errors.Is(err, ErrUserNotFound):
		return KindNotFound
	case errors.Is(err, ErrBattleRoomFull),
		errors.Is(err, ErrAlreadyParticipating),
		errors.Is(err, ErrBattleAlreadyStarted),
		errors.Is(err, ErrAnswerAlreadySubmitted):
		return KindConflict
	case errors.Is(err, ErrInvalidQuestionSequence):
		return KindInvalidSequence
	case errors.Is(err, ErrBattleNotInProgress),
		errors.Is(err, ErrBattleFinished),
		errors.Is(err, ErrNotReadyToStart),
		errors.Is(err, ErrParticipantInactive):
		return KindInvalidState
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	default:
		return KindInternal
	}
}
