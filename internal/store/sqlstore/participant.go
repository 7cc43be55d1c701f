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

const participantColumns = `id, room_id, username, team, is_host, budget, squad_count,
	is_qualified, lineup_submitted, final_score, joined_at`

// ParticipantRepo implements store.ParticipantRepository with sqlx.
type ParticipantRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewParticipantRepo returns a new ParticipantRepo.
func NewParticipantRepo(db *sqlx.DB, clk clock.Clock) *ParticipantRepo {
	return &ParticipantRepo{db: db, clock: clk}
}

func (r *ParticipantRepo) Create(ctx context.Context, p *store.Participant) error {
	p.JoinedAt = r.clock.Now().UTC()
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO participants (`+participantColumns+`) VALUES (
		:id, :room_id, :username, :team, :is_host, :budget, :squad_count,
		:is_qualified, :lineup_submitted, :final_score, :joined_at)`, p)
	if isUniqueViolation(err) {
		return fmt.Errorf("team %s: %w", p.Team, store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("creating participant: %w", err)
	}
	return nil
}

func (r *ParticipantRepo) Get(ctx context.Context, roomID, team string) (*store.Participant, error) {
	var p store.Participant
	err := r.db.GetContext(ctx, &p, r.db.Rebind(`SELECT `+participantColumns+`
		FROM participants WHERE room_id = ? AND team = ?`), roomID, team)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting participant: %w", err)
	}
	if p.Lineup, err = r.lineup(ctx, p.ID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ParticipantRepo) ListByRoom(ctx context.Context, roomID string) ([]store.Participant, error) {
	var ps []store.Participant
	err := r.db.SelectContext(ctx, &ps, r.db.Rebind(`SELECT `+participantColumns+`
		FROM participants WHERE room_id = ? ORDER BY joined_at ASC, team ASC`), roomID)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	for i := range ps {
		if ps[i].Lineup, err = r.lineup(ctx, ps[i].ID); err != nil {
			return nil, err
		}
	}
	return ps, nil
}

func (r *ParticipantRepo) Count(ctx context.Context, roomID string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, r.db.Rebind(`SELECT COUNT(*) FROM participants WHERE room_id = ?`), roomID)
	if err != nil {
		return 0, fmt.Errorf("counting participants: %w", err)
	}
	return n, nil
}

func (r *ParticipantRepo) UpdateStanding(ctx context.Context, p *store.Participant) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE participants
		SET squad_count = ?, is_qualified = ? WHERE id = ?`), p.SquadCount, p.IsQualified, p.ID)
	if err != nil {
		return fmt.Errorf("updating participant standing: %w", err)
	}
	return requireRow(result, p.ID)
}

func (r *ParticipantRepo) SaveLineup(ctx context.Context, p *store.Participant) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM lineup_picks WHERE participant_id = ?`), p.ID); err != nil {
		return fmt.Errorf("clearing lineup: %w", err)
	}
	insert := tx.Rebind(`INSERT INTO lineup_picks (participant_id, player_id, position) VALUES (?, ?, ?)`)
	for i, id := range p.Lineup {
		if _, err := tx.ExecContext(ctx, insert, p.ID, id, i); err != nil {
			return fmt.Errorf("saving lineup pick %d: %w", id, err)
		}
	}

	result, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE participants
		SET lineup_submitted = ?, final_score = ? WHERE id = ?`), true, p.FinalScore, p.ID)
	if err != nil {
		return fmt.Errorf("saving lineup score: %w", err)
	}
	if err := requireRow(result, p.ID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing lineup: %w", err)
	}
	p.Submitted = true
	return nil
}

func (r *ParticipantRepo) lineup(ctx context.Context, participantID string) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, r.db.Rebind(`SELECT player_id FROM lineup_picks
		WHERE participant_id = ? ORDER BY position ASC`), participantID)
	if err != nil {
		return nil, fmt.Errorf("loading lineup: %w", err)
	}
	return ids, nil
}

func requireRow(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("participant %s: %w", id, store.ErrNotFound)
	}
	return nil
}
