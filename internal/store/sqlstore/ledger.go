package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/cricket-auction/internal/clock"
	"github.com/jensholdgaard/cricket-auction/internal/store"
)

const ledgerColumns = `id, room_id, player_id, team, price, outcome, overseas, finalized, created_at`

// LedgerRepo implements store.LedgerRepository with sqlx.
type LedgerRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewLedgerRepo returns a new LedgerRepo.
func NewLedgerRepo(db *sqlx.DB, clk clock.Clock) *LedgerRepo {
	return &LedgerRepo{db: db, clock: clk}
}

func (r *LedgerRepo) Finalize(ctx context.Context, e *store.LedgerEntry, room *store.Room) error {
	if e.Outcome == store.OutcomeSold && (e.Team == nil || e.Price == nil) {
		return fmt.Errorf("finalizing SOLD entry without team and price")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := r.clock.Now().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.RoomID = room.ID
	e.Finalized = true
	e.CreatedAt = now

	if e.Outcome == store.OutcomeSold {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO teams (name, created_at) VALUES (?, ?)
			ON CONFLICT (name) DO NOTHING`), *e.Team, now); err != nil {
			return fmt.Errorf("ensuring team %s: %w", *e.Team, err)
		}
	}

	_, err = tx.NamedExecContext(ctx, `INSERT INTO ledger (`+ledgerColumns+`) VALUES (
		:id, :room_id, :player_id, :team, :price, :outcome, :overseas, :finalized, :created_at)`, e)
	if isUniqueViolation(err) {
		return fmt.Errorf("player %d in room %s: %w", e.PlayerID, room.Code, store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("inserting ledger entry: %w", err)
	}

	if e.Outcome == store.OutcomeSold {
		if err := debit(ctx, tx, r.db, room.ID, *e.Team, *e.Price); err != nil {
			return err
		}
	}

	version := room.Version
	if err := updateRoom(ctx, tx, room); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		room.Version = version
		return fmt.Errorf("committing finalize: %w", err)
	}
	return nil
}

// debit charges the buyer price/100 Crores and adds one to their squad.
// The arithmetic is done with decimal so SQLite's TEXT budgets stay exact.
func debit(ctx context.Context, tx *sqlx.Tx, db *sqlx.DB, roomID, team string, price int) error {
	var budget decimal.Decimal
	err := tx.GetContext(ctx, &budget, tx.Rebind(`SELECT budget FROM participants
		WHERE room_id = ? AND team = ?`+forUpdate(db)), roomID, team)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("buyer %s: %w", team, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("loading buyer budget: %w", err)
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE participants
		SET budget = ?, squad_count = squad_count + 1 WHERE room_id = ? AND team = ?`),
		store.Debit(budget, price), roomID, team)
	if err != nil {
		return fmt.Errorf("debiting buyer: %w", err)
	}
	return nil
}

func (r *LedgerRepo) ListByRoom(ctx context.Context, roomID string) ([]store.LedgerEntry, error) {
	var entries []store.LedgerEntry
	err := r.db.SelectContext(ctx, &entries, r.db.Rebind(`SELECT `+ledgerColumns+`
		FROM ledger WHERE room_id = ? ORDER BY seq ASC`), roomID)
	if err != nil {
		return nil, fmt.Errorf("listing ledger: %w", err)
	}
	return entries, nil
}
