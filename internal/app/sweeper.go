package app

import (
	"context"
	"log/slog"
	"time"

	"quiz-battle-service/internal/domain"
)

// Sweep forfeits every active participant who missed the current question's
// deadline, across all cached rooms, then runs the usual advance/finish
// aggregate. It is invoked periodically by the Sweeper and lazily before
// answer submissions.
func (s *BattleService) Sweep(ctx context.Context) {
	now := s.clock()

	s.mu.RLock()
	handles := make([]*roomHandle, 0, len(s.rooms))
	for _, h := range s.rooms {
		handles = append(handles, h)
	}
	s.mu.RUnlock()

	for _, h := range handles {
		h.mu.Lock()
		events := s.sweepRoomLocked(h, now)
		if len(events) == 0 {
			h.mu.Unlock()
			continue
		}
		snapshot := h.room.Clone()
		h.mu.Unlock()

		if err := s.persist(ctx, snapshot); err != nil {
			s.log.Error("persist swept room", "room", snapshot.ID, "error", err)
			continue
		}
		s.evictIfDone(snapshot)
		s.publish(ctx, events)
	}
}

// sweepRoomLocked synthesizes timeout answers for active participants
// lacking one past the deadline. A single participant's failure is logged
// and skipped so the rest of the room still gets swept. Caller holds h.mu.
func (s *BattleService) sweepRoomLocked(h *roomHandle, now time.Time) []domain.Event {
	room := h.room
	if room.Status != domain.RoomInProgress || !room.Expired(now) {
		return nil
	}
	q, ok := room.CurrentQuestion()
	if !ok {
		return nil
	}

	var events []domain.Event
	for _, p := range room.ActiveParticipants() {
		if _, answered := p.AnswerFor(q.ID); answered {
			continue
		}
		answer, err := room.ForfeitTimeout(p.UserID, now)
		if err != nil {
			s.log.Warn("timeout forfeit failed", "room", room.ID, "user", p.UserID, "error", err)
			continue
		}
		events = append(events, domain.ParticipantAnswered{
			RoomID:     room.ID,
			UserID:     p.UserID,
			QuestionID: answer.QuestionID,
			Correct:    false,
			Earned:     0,
			Timeout:    true,
		})
		h.broadcastLocked(RoomEvent{Type: EventProgress, Payload: ProgressUpdate{
			RoomID:     room.ID,
			UserID:     p.UserID,
			QuestionID: answer.QuestionID,
			Timeout:    true,
			TotalScore: p.Score,
			Rankings:   domain.Rank(room.Participants),
		}})
	}
	events = append(events, s.advanceIfReadyLocked(h, now)...)
	return events
}

// Sweeper drives the periodic deadline scan. Deadlines themselves are plain
// wall-clock comparisons, so a stalled client can never block a room.
type Sweeper struct {
	service  *BattleService
	interval time.Duration
	log      *slog.Logger
}

func NewSweeper(service *BattleService, interval time.Duration, log *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{service: service, interval: interval, log: log}
}

// Run blocks until the context is canceled.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("sweeper started", "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			w.service.Sweep(ctx)
		}
	}
}
