package sqlstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/cricket-auction/internal/clock"
	"github.com/jensholdgaard/cricket-auction/internal/store"
)

// ChatRepo implements store.ChatRepository with sqlx.
type ChatRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewChatRepo returns a new ChatRepo.
func NewChatRepo(db *sqlx.DB, clk clock.Clock) *ChatRepo {
	return &ChatRepo{db: db, clock: clk}
}

func (r *ChatRepo) Append(ctx context.Context, m *store.ChatMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = r.clock.Now().UTC()
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO chat_messages (id, room_id, sender, message, created_at)
		VALUES (:id, :room_id, :sender, :message, :created_at)`, m)
	if err != nil {
		return fmt.Errorf("appending chat message: %w", err)
	}
	return nil
}

func (r *ChatRepo) ListByRoom(ctx context.Context, roomID string, limit int) ([]store.ChatMessage, error) {
	var msgs []store.ChatMessage
	err := r.db.SelectContext(ctx, &msgs, r.db.Rebind(`SELECT id, room_id, sender, message, created_at FROM (
		SELECT seq, id, room_id, sender, message, created_at FROM chat_messages
		WHERE room_id = ? ORDER BY seq DESC LIMIT ?) recent ORDER BY seq ASC`), roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing chat messages: %w", err)
	}
	return msgs, nil
}
