package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/cricket-auction/internal/clock"
	"github.com/jensholdgaard/cricket-auction/internal/store"
)

const roomColumns = `id, code, host_name, is_public, created_at, version, status, is_live, is_paused,
	current_player_id, current_bid, highest_bidder, default_timer, timer_seconds, timer_anchor,
	resolution_status, resolution_at, resolution_team, resolution_price`

// RoomRepo implements store.RoomRepository with sqlx.
type RoomRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewRoomRepo returns a new RoomRepo.
func NewRoomRepo(db *sqlx.DB, clk clock.Clock) *RoomRepo {
	return &RoomRepo{db: db, clock: clk}
}

func (r *RoomRepo) Create(ctx context.Context, room *store.Room) error {
	room.CreatedAt = r.clock.Now().UTC()
	room.Version = 1
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO rooms (`+roomColumns+`) VALUES (
		:id, :code, :host_name, :is_public, :created_at, :version, :status, :is_live, :is_paused,
		:current_player_id, :current_bid, :highest_bidder, :default_timer, :timer_seconds, :timer_anchor,
		:resolution_status, :resolution_at, :resolution_team, :resolution_price)`, room)
	if isUniqueViolation(err) {
		return fmt.Errorf("creating room %s: %w", room.Code, store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("creating room: %w", err)
	}
	return nil
}

func (r *RoomRepo) GetByCode(ctx context.Context, code string) (*store.Room, error) {
	var room store.Room
	err := r.db.GetContext(ctx, &room, r.db.Rebind(`SELECT `+roomColumns+` FROM rooms WHERE code = ?`), code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting room: %w", err)
	}
	return &room, nil
}

func (r *RoomRepo) Update(ctx context.Context, room *store.Room) error {
	return updateRoom(ctx, r.db, room)
}

func (r *RoomRepo) ListPublic(ctx context.Context) ([]store.Room, error) {
	var rooms []store.Room
	err := r.db.SelectContext(ctx, &rooms, r.db.Rebind(`SELECT `+roomColumns+` FROM rooms
		WHERE is_public = ? AND status = ? ORDER BY created_at DESC`), true, store.StatusLive)
	if err != nil {
		return nil, fmt.Errorf("listing public rooms: %w", err)
	}
	return rooms, nil
}

func (r *RoomRepo) ListLive(ctx context.Context) ([]store.Room, error) {
	var rooms []store.Room
	err := r.db.SelectContext(ctx, &rooms, r.db.Rebind(`SELECT `+roomColumns+` FROM rooms
		WHERE is_live = ? ORDER BY created_at ASC`), true)
	if err != nil {
		return nil, fmt.Errorf("listing live rooms: %w", err)
	}
	return rooms, nil
}

// updateRoom saves the mutable room fields if the stored version still
// matches room.Version, then bumps room.Version.
func updateRoom(ctx context.Context, db sqlx.ExtContext, room *store.Room) error {
	query, args, err := sqlx.Named(`UPDATE rooms SET
		version = version + 1,
		status = :status, is_live = :is_live, is_paused = :is_paused,
		current_player_id = :current_player_id, current_bid = :current_bid, highest_bidder = :highest_bidder,
		default_timer = :default_timer, timer_seconds = :timer_seconds, timer_anchor = :timer_anchor,
		resolution_status = :resolution_status, resolution_at = :resolution_at,
		resolution_team = :resolution_team, resolution_price = :resolution_price
		WHERE id = :id AND version = :version`, room)
	if err != nil {
		return fmt.Errorf("binding room update: %w", err)
	}

	result, err := db.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("updating room: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating room: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("updating room %s at version %d: %w", room.Code, room.Version, store.ErrStale)
	}
	room.Version++
	return nil
}
