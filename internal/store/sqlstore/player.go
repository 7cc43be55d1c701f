package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/cricket-auction/internal/store"
)

const playerColumns = `id, name, role, country, base_price, set_no, age, hand, bowling,
	batting_runs, batting_avg, strike_rate, wickets, economy`

// PlayerRepo implements store.PlayerRepository with sqlx.
type PlayerRepo struct {
	db *sqlx.DB
}

// NewPlayerRepo returns a new PlayerRepo.
func NewPlayerRepo(db *sqlx.DB) *PlayerRepo {
	return &PlayerRepo{db: db}
}

func (r *PlayerRepo) Import(ctx context.Context, players []store.Player) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	withID := r.db.Rebind(`INSERT INTO players (` + playerColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	withoutID := r.db.Rebind(`INSERT INTO players (name, role, country, base_price, set_no, age, hand, bowling,
		batting_runs, batting_avg, strike_rate, wickets, economy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)

	for i := range players {
		p := &players[i]
		if p.ID != 0 {
			_, err = tx.ExecContext(ctx, withID, p.ID, p.Name, p.Role, p.Country, p.BasePrice, p.SetNo,
				p.Age, p.Hand, p.Bowling, p.BattingRuns, p.BattingAvg, p.StrikeRate, p.Wickets, p.Economy)
		} else {
			err = tx.QueryRowxContext(ctx, withoutID, p.Name, p.Role, p.Country, p.BasePrice, p.SetNo,
				p.Age, p.Hand, p.Bowling, p.BattingRuns, p.BattingAvg, p.StrikeRate, p.Wickets, p.Economy).Scan(&p.ID)
		}
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("importing player %d: %w", p.ID, store.ErrConflict)
			}
			return fmt.Errorf("importing player %q: %w", p.Name, err)
		}
	}

	if r.db.DriverName() == driverPostgres {
		// Explicit IDs do not advance the serial sequence.
		if _, err := tx.ExecContext(ctx,
			`SELECT setval(pg_get_serial_sequence('players', 'id'), COALESCE((SELECT MAX(id) FROM players), 0) + 1, false)`); err != nil {
			return fmt.Errorf("resetting player sequence: %w", err)
		}
	}

	return tx.Commit()
}

func (r *PlayerRepo) GetByID(ctx context.Context, id int64) (*store.Player, error) {
	var p store.Player
	err := r.db.GetContext(ctx, &p, r.db.Rebind(`SELECT `+playerColumns+` FROM players WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting player: %w", err)
	}
	return &p, nil
}

func (r *PlayerRepo) List(ctx context.Context) ([]store.Player, error) {
	var players []store.Player
	err := r.db.SelectContext(ctx, &players, `SELECT `+playerColumns+` FROM players ORDER BY set_no ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	return players, nil
}
