package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiz-battle-service/internal/domain"
)

// BattleStore persists room state durably. SaveRoom is called synchronously
// at every state transition so a restart can resume from storage.
type BattleStore interface {
	SaveRoom(ctx context.Context, room *domain.Room) error
	LoadRoom(ctx context.Context, roomID string) (*domain.Room, error)
}

// QuizRepository loads quiz content (from cache/backing store). The snapshot
// is captured once at battle creation and never refreshed mid-battle.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// UserDirectory resolves user ids to display names. Display names are for UI
// only, never authoritative for scoring or ordering.
type UserDirectory interface {
	Lookup(ctx context.Context, userID string) (string, error)
}

// Session binds a live connection to a participant identity.
type Session struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// SessionDirectory is the ephemeral, TTL-based connection mapping. Entries
// are fully disposable; only the BattleStore is authoritative for membership.
type SessionDirectory interface {
	Put(ctx context.Context, connID string, session Session) error
	Get(ctx context.Context, connID string) (Session, bool, error)
	Touch(ctx context.Context, connID string) (bool, error)
	Delete(ctx context.Context, connID string) error
}

// EventPublisher delivers battle events to the messaging collaborator,
// at-least-once.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Settings carries battle defaults from configuration.
type Settings struct {
	MaxParticipants int
	QuestionSeconds int
}

const (
	defaultMaxParticipants = 8
	defaultQuestionSeconds = 30
)

// Room-topic broadcast types.
const (
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventReadyChanged      = "ready_changed"
	EventBattleStarted     = "battle_started"
	EventQuestion          = "question"
	EventProgress          = "progress"
	EventBattleEnded       = "battle_ended"
)

// ParticipantJoined is broadcast to the room topic on join.
type ParticipantJoined struct {
	RoomID           string `json:"roomId"`
	UserID           string `json:"userId"`
	DisplayName      string `json:"displayName"`
	ParticipantCount int    `json:"participantCount"`
}

// ParticipantLeft is broadcast when a participant leaves or disconnects.
type ParticipantLeft struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// ReadyChanged is broadcast on every ready toggle.
type ReadyChanged struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Ready  bool   `json:"ready"`
}

// QuestionPrompt is broadcast when a question opens. It never carries the
// canonical answer.
type QuestionPrompt struct {
	RoomID  string          `json:"roomId"`
	Index   int             `json:"index"`
	ID      string          `json:"id"`
	Text    string          `json:"text"`
	Options []domain.Option `json:"options"`
	Seconds int             `json:"seconds"`
}

// ProgressUpdate is broadcast after every recorded answer, forfeits included.
type ProgressUpdate struct {
	RoomID     string             `json:"roomId"`
	UserID     string             `json:"userId"`
	QuestionID string             `json:"questionId"`
	Correct    bool               `json:"correct"`
	Earned     int                `json:"earned"`
	TotalScore int                `json:"totalScore"`
	Timeout    bool               `json:"timeout,omitempty"`
	Disconnect bool               `json:"disconnect,omitempty"`
	Rankings   []domain.RankEntry `json:"rankings"`
}

// AnswerReveal is the private payload sent only to the connection that just
// answered; it is the one place the canonical answer leaves the engine.
type AnswerReveal struct {
	QuestionID  string `json:"questionId"`
	Answer      string `json:"answer"`
	Explanation string `json:"explanation,omitempty"`
	Correct     bool   `json:"correct"`
	Earned      int    `json:"earned"`
	TimeBonus   int    `json:"timeBonus"`
	TotalScore  int    `json:"totalScore"`
}

// AnswerSubmission models a client's answer for one question.
type AnswerSubmission struct {
	QuestionID    string
	QuestionIndex int
	Text          string
}

// SubmitResult summarizes an accepted submission for the caller.
type SubmitResult struct {
	Answer     domain.Answer
	TotalScore int
	Reveal     AnswerReveal
}

// BattleService is the orchestrator: it owns the arena of room handles,
// serializes mutations per room, persists every transition, and emits
// events and room broadcasts.
type BattleService struct {
	store     BattleStore
	quizzes   QuizRepository
	users     UserDirectory
	sessions  SessionDirectory
	publisher EventPublisher
	settings  Settings
	log       *slog.Logger
	clock     func() time.Time

	mu    sync.RWMutex
	rooms map[string]*roomHandle
}

func NewBattleService(store BattleStore, quizzes QuizRepository, users UserDirectory, sessions SessionDirectory, publisher EventPublisher, settings Settings, log *slog.Logger) *BattleService {
	return newBattleServiceWithClock(store, quizzes, users, sessions, publisher, settings, log, time.Now)
}

// NewBattleServiceWithClock is test-only for deterministic timestamps.
func NewBattleServiceWithClock(store BattleStore, quizzes QuizRepository, users UserDirectory, sessions SessionDirectory, publisher EventPublisher, settings Settings, log *slog.Logger, now func() time.Time) *BattleService {
	return newBattleServiceWithClock(store, quizzes, users, sessions, publisher, settings, log, now)
}

func newBattleServiceWithClock(store BattleStore, quizzes QuizRepository, users UserDirectory, sessions SessionDirectory, publisher EventPublisher, settings Settings, log *slog.Logger, now func() time.Time) *BattleService {
	if settings.MaxParticipants <= 0 {
		settings.MaxParticipants = defaultMaxParticipants
	}
	if settings.QuestionSeconds <= 0 {
		settings.QuestionSeconds = defaultQuestionSeconds
	}
	if log == nil {
		log = slog.Default()
	}
	return &BattleService{
		store:     store,
		quizzes:   quizzes,
		users:     users,
		sessions:  sessions,
		publisher: publisher,
		settings:  settings,
		log:       log,
		clock:     now,
		rooms:     make(map[string]*roomHandle),
	}
}

// CreateRoom captures the quiz snapshot and opens a WAITING room. The
// creator joins implicitly.
func (s *BattleService) CreateRoom(ctx context.Context, creatorID, quizID string, maxParticipants int) (*domain.Room, error) {
	displayName, err := s.users.Lookup(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if len(quiz.Questions) == 0 {
		return nil, domain.ErrQuestionNotFound
	}
	if maxParticipants <= 0 {
		maxParticipants = s.settings.MaxParticipants
	}

	room := domain.NewRoom(uuid.NewString(), quiz, creatorID, maxParticipants, s.settings.QuestionSeconds)
	if _, err := room.Join(uuid.NewString(), creatorID, displayName, s.clock()); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.rooms[room.ID] = newRoomHandle(room)
	s.mu.Unlock()

	if err := s.persist(ctx, room.Clone()); err != nil {
		return nil, err
	}
	s.log.Info("room created", "room", room.ID, "quiz", quizID, "creator", creatorID)
	return room.Clone(), nil
}

// Join admits a user into a WAITING room.
func (s *BattleService) Join(ctx context.Context, roomID, userID string) (*domain.Room, error) {
	displayName, err := s.users.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	h, err := s.handle(ctx, roomID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	p, err := h.room.Join(uuid.NewString(), userID, displayName, s.clock())
	if err != nil {
		h.mu.Unlock()
		return nil, err
	}
	h.broadcastLocked(RoomEvent{Type: EventParticipantJoined, Payload: ParticipantJoined{
		RoomID:           roomID,
		UserID:           p.UserID,
		DisplayName:      p.DisplayName,
		ParticipantCount: len(h.room.Participants),
	}})
	snapshot := h.room.Clone()
	h.mu.Unlock()

	if err := s.persist(ctx, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// ToggleReady flips the ready flag and, when the guard holds afterwards,
// starts the battle in the same critical section. Concurrent toggles can
// never double-trigger the start.
func (s *BattleService) ToggleReady(ctx context.Context, roomID, userID string) (ready, started bool, err error) {
	h, err := s.handle(ctx, roomID)
	if err != nil {
		return false, false, err
	}
	now := s.clock()

	h.mu.Lock()
	ready, err = h.room.ToggleReady(userID, now)
	if err != nil {
		h.mu.Unlock()
		return false, false, err
	}
	h.broadcastLocked(RoomEvent{Type: EventReadyChanged, Payload: ReadyChanged{RoomID: roomID, UserID: userID, Ready: ready}})

	events, started := s.startIfReadyLocked(h, now)
	snapshot := h.room.Clone()
	h.mu.Unlock()

	if err := s.persist(ctx, snapshot); err != nil {
		return false, false, err
	}
	s.publish(ctx, events)
	return ready, started, nil
}

// SubmitAnswer records and scores an answer for the current question. The
// submission, the already-answered check, and a possible advance/finish all
// happen in one critical section, so double submissions and double advances
// cannot race.
func (s *BattleService) SubmitAnswer(ctx context.Context, roomID, userID string, sub AnswerSubmission) (SubmitResult, error) {
	h, err := s.handle(ctx, roomID)
	if err != nil {
		return SubmitResult{}, err
	}
	now := s.clock()

	h.mu.Lock()
	// Lazy sweep: overdue forfeits are recorded before this submission is
	// validated, so a stale client observes the same outcome the periodic
	// sweeper would have produced.
	events := s.sweepRoomLocked(h, now)

	answer, err := h.room.SubmitAnswer(userID, sub.QuestionID, sub.Text, sub.QuestionIndex, now)
	if err != nil {
		swept := len(events) > 0
		var snapshot *domain.Room
		if swept {
			snapshot = h.room.Clone()
		}
		h.mu.Unlock()
		if swept {
			if perr := s.persist(ctx, snapshot); perr != nil {
				s.log.Error("persist after sweep", "room", roomID, "error", perr)
			} else {
				s.evictIfDone(snapshot)
			}
			s.publish(ctx, events)
		}
		return SubmitResult{}, err
	}

	p, _ := h.room.Participant(userID)
	total := p.Score
	var question domain.QuestionRef
	for i := range h.room.Questions {
		if h.room.Questions[i].ID == sub.QuestionID {
			question = h.room.Questions[i]
			break
		}
	}

	events = append(events, domain.ParticipantAnswered{
		RoomID:     roomID,
		UserID:     userID,
		QuestionID: answer.QuestionID,
		Correct:    answer.Correct,
		Earned:     answer.EarnedPoints,
	})
	h.broadcastLocked(RoomEvent{Type: EventProgress, Payload: ProgressUpdate{
		RoomID:     roomID,
		UserID:     userID,
		QuestionID: answer.QuestionID,
		Correct:    answer.Correct,
		Earned:     answer.EarnedPoints,
		TotalScore: total,
		Rankings:   domain.Rank(h.room.Participants),
	}})
	events = append(events, s.advanceIfReadyLocked(h, now)...)
	snapshot := h.room.Clone()
	h.mu.Unlock()

	if err := s.persist(ctx, snapshot); err != nil {
		return SubmitResult{}, err
	}
	s.evictIfDone(snapshot)
	s.publish(ctx, events)

	return SubmitResult{
		Answer:     answer,
		TotalScore: total,
		Reveal: AnswerReveal{
			QuestionID:  question.ID,
			Answer:      question.Answer,
			Explanation: question.Explanation,
			Correct:     answer.Correct,
			Earned:      answer.EarnedPoints,
			TimeBonus:   answer.TimeBonus,
			TotalScore:  total,
		},
	}, nil
}

// Leave removes a participant (WAITING) or forfeits and deactivates it
// (IN_PROGRESS). The battle finishes immediately when the last active
// participant leaves.
func (s *BattleService) Leave(ctx context.Context, roomID, userID string) error {
	h, err := s.handle(ctx, roomID)
	if err != nil {
		return err
	}
	now := s.clock()

	h.mu.Lock()
	current, hadQuestion := h.room.CurrentQuestion()
	if err := h.room.Leave(userID, now); err != nil {
		h.mu.Unlock()
		return err
	}
	h.broadcastLocked(RoomEvent{Type: EventParticipantLeft, Payload: ParticipantLeft{RoomID: roomID, UserID: userID}})

	var events []domain.Event
	if hadQuestion {
		if p, ok := h.room.Participant(userID); ok {
			if a, recorded := p.AnswerFor(current.ID); recorded && a.Disconnect {
				events = append(events, domain.ParticipantAnswered{
					RoomID:     roomID,
					UserID:     userID,
					QuestionID: a.QuestionID,
					Correct:    false,
					Earned:     0,
					Disconnect: true,
				})
				h.broadcastLocked(RoomEvent{Type: EventProgress, Payload: ProgressUpdate{
					RoomID:     roomID,
					UserID:     userID,
					QuestionID: a.QuestionID,
					Disconnect: true,
					Rankings:   domain.Rank(h.room.Participants),
				}})
			}
		}
	}
	switch h.room.Status {
	case domain.RoomWaiting:
		// The departed participant may have been the only one holding the
		// start guard back.
		startEvents, _ := s.startIfReadyLocked(h, now)
		events = append(events, startEvents...)
	case domain.RoomInProgress:
		if h.room.ActiveCount() == 0 {
			events = append(events, s.finishLocked(h, now))
		} else {
			events = append(events, s.advanceIfReadyLocked(h, now)...)
		}
	}
	snapshot := h.room.Clone()
	h.mu.Unlock()

	if err := s.persist(ctx, snapshot); err != nil {
		return err
	}
	s.evictIfDone(snapshot)
	s.publish(ctx, events)
	return nil
}

// EndBattle finishes a battle explicitly. Only the room creator may do so.
func (s *BattleService) EndBattle(ctx context.Context, roomID, userID string) error {
	h, err := s.handle(ctx, roomID)
	if err != nil {
		return err
	}
	now := s.clock()

	h.mu.Lock()
	if h.room.CreatorID != userID {
		h.mu.Unlock()
		return domain.ErrUnauthorized
	}
	if h.room.Status == domain.RoomFinished {
		h.mu.Unlock()
		return domain.ErrBattleFinished
	}
	event := s.finishLocked(h, now)
	snapshot := h.room.Clone()
	h.mu.Unlock()

	if err := s.persist(ctx, snapshot); err != nil {
		return err
	}
	s.evictIfDone(snapshot)
	s.publish(ctx, []domain.Event{event})
	return nil
}

// GetRoom returns a point-in-time copy of the room.
func (s *BattleService) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	h, err := s.handle(ctx, roomID)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.room.Clone(), nil
}

// Subscribe returns a channel of room-topic broadcasts. The caller must
// invoke the returned cancel function to avoid leaks.
func (s *BattleService) Subscribe(_ context.Context, roomID string) (<-chan RoomEvent, func(), error) {
	s.mu.RLock()
	h, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, domain.ErrRoomNotFound
	}
	ch, cancel := h.subscribe()
	return ch, cancel, nil
}

// RegisterConnection binds a live connection to a participant identity in
// the session directory, after verifying membership against room state.
func (s *BattleService) RegisterConnection(ctx context.Context, connID, roomID, userID string) error {
	h, err := s.handle(ctx, roomID)
	if err != nil {
		return err
	}
	h.mu.Lock()
	_, member := h.room.Participant(userID)
	h.mu.Unlock()
	if !member {
		return domain.ErrParticipantNotFound
	}
	return s.sessions.Put(ctx, connID, Session{RoomID: roomID, UserID: userID})
}

// TouchConnection refreshes the session TTL on a state-changing interaction.
// A directory miss means "no record for this connection", never proof of
// removal: membership is re-checked against the durable room state and the
// entry rebuilt.
func (s *BattleService) TouchConnection(ctx context.Context, connID, roomID, userID string) error {
	ok, err := s.sessions.Touch(ctx, connID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return s.RegisterConnection(ctx, connID, roomID, userID)
}

// DisconnectConnection handles a dropped connection: the session entry is
// discarded and the participant leaves the battle (forfeiting the current
// question if unanswered).
func (s *BattleService) DisconnectConnection(ctx context.Context, connID string) error {
	session, ok, err := s.sessions.Get(ctx, connID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	_ = s.sessions.Delete(ctx, connID)
	return s.Leave(ctx, session.RoomID, session.UserID)
}

// handle returns the cached room handle, rehydrating it from the durable
// store when absent (process restart, or invalidation after a storage
// failure).
func (s *BattleService) handle(ctx context.Context, roomID string) (*roomHandle, error) {
	s.mu.RLock()
	h, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if ok {
		return h, nil
	}

	room, err := s.store.LoadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.rooms[roomID]; ok {
		return h, nil
	}
	h = newRoomHandle(room)
	s.rooms[roomID] = h
	return h, nil
}

// persist writes a snapshot synchronously. On failure the cached room is
// invalidated so the next operation re-derives state from storage instead of
// trusting memory that may no longer match.
func (s *BattleService) persist(ctx context.Context, snapshot *domain.Room) error {
	if err := s.store.SaveRoom(ctx, snapshot); err != nil {
		s.mu.Lock()
		delete(s.rooms, snapshot.ID)
		s.mu.Unlock()
		return fmt.Errorf("persist room %s: %w", snapshot.ID, err)
	}
	return nil
}

func (s *BattleService) publish(ctx context.Context, events []domain.Event) {
	for _, event := range events {
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.log.Error("publish event", "event", event.EventName(), "error", err)
		}
	}
}

// startIfReadyLocked runs the atomic ready-guard check and start. Callers
// hold the room lock, so two triggers (a racing toggle, or a leave that
// removes the last unready participant) can never double-start.
func (s *BattleService) startIfReadyLocked(h *roomHandle, now time.Time) ([]domain.Event, bool) {
	if !h.room.ReadyToStart() {
		return nil, false
	}
	if err := h.room.Start(now); err != nil {
		return nil, false
	}
	first := h.room.Questions[0]
	ids := make([]string, 0, len(h.room.Participants))
	for _, p := range h.room.Participants {
		ids = append(ids, p.ID)
	}
	event := domain.BattleStarted{
		RoomID:          h.room.ID,
		ParticipantIDs:  ids,
		FirstQuestionID: first.ID,
		StartedAt:       now,
	}
	h.broadcastLocked(RoomEvent{Type: EventBattleStarted, Payload: event})
	s.broadcastQuestionLocked(h)
	return []domain.Event{event}, true
}

// evictIfDone drops the cached handle once a room can no longer change:
// finished battles and WAITING rooms emptied out by leaves. A late read
// rehydrates from the durable store, so eviction loses nothing, and the
// sweeper stops re-scanning dead rooms.
func (s *BattleService) evictIfDone(snapshot *domain.Room) {
	if snapshot.Status != domain.RoomFinished && len(snapshot.Participants) > 0 {
		return
	}
	s.mu.Lock()
	delete(s.rooms, snapshot.ID)
	s.mu.Unlock()
}

// advanceIfReadyLocked runs the "all active answered -> advance or finish"
// transition. Caller holds the room lock.
func (s *BattleService) advanceIfReadyLocked(h *roomHandle, now time.Time) []domain.Event {
	room := h.room
	if room.Status != domain.RoomInProgress || !room.AllAnswered() {
		return nil
	}
	next, finished := room.Advance(now)
	if finished {
		return []domain.Event{s.finishLocked(h, now)}
	}
	event := domain.QuestionAdvanced{
		RoomID:     room.ID,
		Index:      room.CurrentQuestionIndex,
		QuestionID: next.ID,
		IsLast:     room.CurrentQuestionIndex == len(room.Questions)-1,
	}
	s.broadcastQuestionLocked(h)
	return []domain.Event{event}
}

// finishLocked computes the final result and moves the room to FINISHED.
// Caller holds the room lock.
func (s *BattleService) finishLocked(h *roomHandle, now time.Time) domain.Event {
	room := h.room
	var winnerID string
	var bonus int
	if winner, ok := domain.DetermineWinner(room.Participants); ok {
		winnerID = winner.UserID
		bonus = domain.WinnerBonus(winner)
	}
	rankings := domain.Rank(room.Participants)
	room.Finish(now)

	event := domain.BattleEnded{
		RoomID:      room.ID,
		WinnerID:    winnerID,
		WinnerBonus: bonus,
		Rankings:    rankings,
		EndedAt:     now,
	}
	h.broadcastLocked(RoomEvent{Type: EventBattleEnded, Payload: event})
	s.log.Info("battle ended", "room", room.ID, "winner", winnerID)
	return event
}

func (s *BattleService) broadcastQuestionLocked(h *roomHandle) {
	room := h.room
	q, ok := room.CurrentQuestion()
	if !ok {
		return
	}
	h.broadcastLocked(RoomEvent{Type: EventQuestion, Payload: QuestionPrompt{
		RoomID:  room.ID,
		Index:   room.CurrentQuestionIndex,
		ID:      q.ID,
		Text:    q.Text,
		Options: q.Options,
		Seconds: int(room.QuestionLimit(q) / time.Second),
	}})
}
