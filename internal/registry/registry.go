// Package registry manages the teams seated in a room: joining, budgets,
// end-of-auction qualification and lineup submission. Budgets and squad
// counts only change through ledger finalization.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/cricket-auction/internal/auctionerrors"
	"github.com/jensholdgaard/cricket-auction/internal/catalog"
	"github.com/jensholdgaard/cricket-auction/internal/config"
	"github.com/jensholdgaard/cricket-auction/internal/evaluator"
	"github.com/jensholdgaard/cricket-auction/internal/ledger"
	"github.com/jensholdgaard/cricket-auction/internal/store"
)

// Registry handles participant operations.
type Registry struct {
	participants store.ParticipantRepository
	ledger       store.LedgerRepository
	catalog      *catalog.Catalog
	rules        config.AuctionConfig
	logger       *slog.Logger
	tracer       trace.Tracer
}

// New returns a new Registry.
func New(participants store.ParticipantRepository, ledgerRepo store.LedgerRepository, cat *catalog.Catalog, rules config.AuctionConfig, logger *slog.Logger, tp trace.TracerProvider) *Registry {
	return &Registry{
		participants: participants,
		ledger:       ledgerRepo,
		catalog:      cat,
		rules:        rules,
		logger:       logger,
		tracer:       tp.Tracer("github.com/jensholdgaard/cricket-auction/internal/registry"),
	}
}

// Join seats a team in room with the starting budget.
func (r *Registry) Join(ctx context.Context, room *store.Room, username, team string, isHost bool) (*store.Participant, error) {
	ctx, span := r.tracer.Start(ctx, "Registry.Join",
		trace.WithAttributes(
			attribute.String("room", room.Code),
			attribute.String("team", team),
		),
	)
	defer span.End()

	username, team = strings.TrimSpace(username), strings.TrimSpace(team)
	if username == "" || team == "" {
		return nil, auctionerrors.Validation("Missing data")
	}

	n, err := r.participants.Count(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("counting participants: %w", err)
	}
	if n >= r.rules.MaxParticipants {
		return nil, auctionerrors.ErrRoomFull.WithMessage("Room is full (%d/%d)", n, r.rules.MaxParticipants)
	}

	p := &store.Participant{
		ID:       uuid.NewString(),
		RoomID:   room.ID,
		Username: username,
		Team:     team,
		IsHost:   isHost,
		Budget:   r.rules.Budget(),
	}
	if err := r.participants.Create(ctx, p); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, auctionerrors.ErrTeamTaken
		}
		return nil, fmt.Errorf("creating participant: %w", err)
	}

	r.logger.InfoContext(ctx, "participant joined",
		slog.String("room", room.Code),
		slog.String("team", team),
		slog.Bool("host", isHost),
	)
	return p, nil
}

// Get returns team's seat in a room.
func (r *Registry) Get(ctx context.Context, roomID, team string) (*store.Participant, error) {
	p, err := r.participants.Get(ctx, roomID, team)
	if errors.Is(err, store.ErrNotFound) {
		return nil, auctionerrors.ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting participant: %w", err)
	}
	return p, nil
}

// Count returns how many teams have joined a room.
func (r *Registry) Count(ctx context.Context, roomID string) (int, error) {
	return r.participants.Count(ctx, roomID)
}

// Budget returns team's remaining purse in Crores.
func (r *Registry) Budget(ctx context.Context, roomID, team string) (decimal.Decimal, error) {
	p, err := r.Get(ctx, roomID, team)
	if err != nil {
		return decimal.Zero, err
	}
	return p.Budget, nil
}

// Reconcile recounts every squad from the ledger and freezes
// qualification. It returns the number of qualified teams.
//
// A participant whose stored aggregates disagree with the ledger is logged
// as an error before being recounted.
func (r *Registry) Reconcile(ctx context.Context, room *store.Room) (int, error) {
	ctx, span := r.tracer.Start(ctx, "Registry.Reconcile",
		trace.WithAttributes(attribute.String("room", room.Code)),
	)
	defer span.End()

	ps, err := r.participants.ListByRoom(ctx, room.ID)
	if err != nil {
		return 0, fmt.Errorf("listing participants: %w", err)
	}
	entries, err := r.ledger.ListByRoom(ctx, room.ID)
	if err != nil {
		return 0, fmt.Errorf("listing ledger: %w", err)
	}

	if err := ledger.Verify(r.rules.Budget(), ps, entries); err != nil {
		r.logger.ErrorContext(ctx, "participant aggregates disagree with ledger",
			slog.String("room", room.Code),
			slog.Any("error", err),
		)
	}

	tallies := ledger.Fold(entries)
	qualified := 0
	for i := range ps {
		p := &ps[i]
		p.SquadCount = 0
		if t, ok := tallies[p.Team]; ok {
			p.SquadCount = t.Sold()
		}
		p.IsQualified = p.SquadCount >= r.rules.QualifySquad
		if p.IsQualified {
			qualified++
		}
		if err := r.participants.UpdateStanding(ctx, p); err != nil {
			return 0, fmt.Errorf("updating %s: %w", p.Team, err)
		}
	}

	r.logger.InfoContext(ctx, "squads reconciled",
		slog.String("room", room.Code),
		slog.Int("teams", len(ps)),
		slog.Int("qualified", qualified),
	)
	return qualified, nil
}

// SubmitLineup validates and scores team's playing XI. allSubmitted reports
// whether every qualified team has now submitted.
func (r *Registry) SubmitLineup(ctx context.Context, room *store.Room, team string, playerIDs []int64) (res evaluator.Result, allSubmitted bool, err error) {
	ctx, span := r.tracer.Start(ctx, "Registry.SubmitLineup",
		trace.WithAttributes(
			attribute.String("room", room.Code),
			attribute.String("team", team),
			attribute.Int("players", len(playerIDs)),
		),
	)
	defer span.End()

	p, err := r.Get(ctx, room.ID, team)
	if err != nil {
		return evaluator.Result{}, false, err
	}
	if !p.IsQualified {
		return evaluator.Result{}, false, auctionerrors.ErrNotQualified
	}
	if len(playerIDs) != r.rules.LineupSize {
		return evaluator.Result{}, false, auctionerrors.ErrLineupSize.WithMessage(
			"You MUST select exactly %d players (Selected: %d)", r.rules.LineupSize, len(playerIDs))
	}

	players, err := r.catalog.GetMany(ctx, playerIDs)
	if err != nil {
		return evaluator.Result{}, false, fmt.Errorf("loading lineup players: %w", err)
	}
	if len(players) != r.rules.LineupSize {
		return evaluator.Result{}, false, auctionerrors.ErrInvalidPlayers
	}

	res = evaluator.Evaluate(players)
	p.Lineup = playerIDs
	p.FinalScore = res.Score
	if err := r.participants.SaveLineup(ctx, p); err != nil {
		return evaluator.Result{}, false, fmt.Errorf("saving lineup: %w", err)
	}

	r.logger.InfoContext(ctx, "lineup submitted",
		slog.String("room", room.Code),
		slog.String("team", team),
		slog.Float64("score", res.Score),
	)

	allSubmitted, err = r.AllSubmitted(ctx, room.ID)
	if err != nil {
		return res, false, err
	}
	return res, allSubmitted, nil
}

// AllSubmitted reports whether every qualified team has submitted a lineup.
func (r *Registry) AllSubmitted(ctx context.Context, roomID string) (bool, error) {
	ps, err := r.participants.ListByRoom(ctx, roomID)
	if err != nil {
		return false, fmt.Errorf("listing participants: %w", err)
	}
	for _, p := range ps {
		if p.IsQualified && !p.Submitted {
			return false, nil
		}
	}
	return true, nil
}

// Standing is one row of the final leaderboard.
type Standing struct {
	Rank     int     `json:"rank"`
	Team     string  `json:"team"`
	Score    float64 `json:"score"`
	Username string  `json:"username"`
}

// Leaderboard ranks the qualified teams by score, highest first.
func (r *Registry) Leaderboard(ctx context.Context, roomID string) ([]Standing, error) {
	ps, err := r.participants.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	var out []Standing
	for _, p := range ps {
		if p.IsQualified {
			out = append(out, Standing{Team: p.Team, Score: p.FinalScore, Username: p.Username})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

// Purchase is a player a team bought.
type Purchase struct {
	ID      int64      `json:"id"`
	Name    string     `json:"name"`
	Price   int        `json:"price"`
	Role    store.Role `json:"role"`
	Country string     `json:"country"`
}

// Squad returns the players team has bought in a room, in purchase order.
func (r *Registry) Squad(ctx context.Context, roomID, team string) ([]Purchase, error) {
	entries, err := r.ledger.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("listing ledger: %w", err)
	}
	return r.purchases(ctx, entries, team)
}

// TeamSummary is one team's standing during or after the auction.
type TeamSummary struct {
	Team            string     `json:"team"`
	BudgetRemaining float64    `json:"budget_remaining"`
	PlayersCount    int        `json:"players_count"`
	Players         []Purchase `json:"players"`
}

// Summary returns every team's remaining budget and purchases.
func (r *Registry) Summary(ctx context.Context, roomID string) ([]TeamSummary, error) {
	ps, err := r.participants.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	entries, err := r.ledger.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("listing ledger: %w", err)
	}

	out := make([]TeamSummary, 0, len(ps))
	for _, p := range ps {
		bought, err := r.purchases(ctx, entries, p.Team)
		if err != nil {
			return nil, err
		}
		out = append(out, TeamSummary{
			Team:            p.Team,
			BudgetRemaining: p.Budget.InexactFloat64(),
			PlayersCount:    len(bought),
			Players:         bought,
		})
	}
	return out, nil
}

// QualificationRow reports whether a team has enough players.
type QualificationRow struct {
	Team    string `json:"team"`
	Players int    `json:"players"`
	Status  string `json:"status"`
}

// Qualification returns each team's squad size against the threshold.
func (r *Registry) Qualification(ctx context.Context, roomID string) ([]QualificationRow, error) {
	ps, err := r.participants.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	out := make([]QualificationRow, 0, len(ps))
	for _, p := range ps {
		status := "DISQUALIFIED"
		if p.SquadCount >= r.rules.QualifySquad {
			status = "QUALIFIED"
		}
		out = append(out, QualificationRow{Team: p.Team, Players: p.SquadCount, Status: status})
	}
	return out, nil
}

func (r *Registry) purchases(ctx context.Context, entries []store.LedgerEntry, team string) ([]Purchase, error) {
	t := ledger.TallyFor(entries, team)
	players, err := r.catalog.GetMany(ctx, t.Players)
	if err != nil {
		return nil, fmt.Errorf("loading squad players: %w", err)
	}
	prices := make(map[int64]int, len(entries))
	for _, e := range entries {
		if e.Price != nil {
			prices[e.PlayerID] = *e.Price
		}
	}
	out := make([]Purchase, 0, len(players))
	for _, p := range players {
		out = append(out, Purchase{ID: p.ID, Name: p.Name, Price: prices[p.ID], Role: p.Role, Country: p.Country})
	}
	return out, nil
}
