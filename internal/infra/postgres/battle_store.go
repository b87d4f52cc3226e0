package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
)

// BattleStore persists rooms durably. The full snapshot lives as JSONB on
// the room row (authoritative for crash recovery); participant rows are
// upserted alongside so status, index, scores and flags stay queryable
// without unpacking the blob.
type BattleStore struct {
	pool *pgxpool.Pool
}

var _ app.BattleStore = (*BattleStore)(nil)

func NewBattleStore(pool *pgxpool.Pool) *BattleStore {
	return &BattleStore{pool: pool}
}

func (s *BattleStore) SaveRoom(ctx context.Context, room *domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save room: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO battle_rooms (id, quiz_id, status, current_question_index, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE
		SET status=EXCLUDED.status,
		    current_question_index=EXCLUDED.current_question_index,
		    data=EXCLUDED.data,
		    updated_at=now()`,
		room.ID, room.QuizID, string(room.Status), room.CurrentQuestionIndex, data)
	if err != nil {
		return fmt.Errorf("upsert room: %w", err)
	}

	for _, p := range room.Participants {
		answers, err := json.Marshal(p.Answers)
		if err != nil {
			return fmt.Errorf("marshal answers: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO battle_participants (id, room_id, user_id, join_order, score, streak, ready, active, answers)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (room_id, user_id) DO UPDATE
			SET score=EXCLUDED.score,
			    streak=EXCLUDED.streak,
			    ready=EXCLUDED.ready,
			    active=EXCLUDED.active,
			    answers=EXCLUDED.answers`,
			p.ID, p.RoomID, p.UserID, p.JoinOrder, p.Score, p.Streak, p.Ready, p.Active, answers)
		if err != nil {
			return fmt.Errorf("upsert participant: %w", err)
		}
	}

	// Participants removed while WAITING must not linger in storage.
	ids := make([]string, 0, len(room.Participants))
	for _, p := range room.Participants {
		ids = append(ids, p.UserID)
	}
	_, err = tx.Exec(ctx, `DELETE FROM battle_participants WHERE room_id=$1 AND user_id != ALL($2)`, room.ID, ids)
	if err != nil {
		return fmt.Errorf("prune participants: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save room: %w", err)
	}
	return nil
}

func (s *BattleStore) LoadRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM battle_rooms WHERE id=$1`, roomID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load room: %w", err)
	}
	var room domain.Room
	if err := json.Unmarshal(raw, &room); err != nil {
		return nil, fmt.Errorf("unmarshal room: %w", err)
	}
	return &room, nil
}
