package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/cricket-auction/internal/auctionerrors"
	"github.com/jensholdgaard/cricket-auction/internal/event"
	"github.com/jensholdgaard/cricket-auction/internal/ledger"
	"github.com/jensholdgaard/cricket-auction/internal/registry"
	"github.com/jensholdgaard/cricket-auction/internal/store"
)

// State is what a polling client sees of a room.
type State struct {
	RoomCode      string        `json:"room_code"`
	IsLive        bool          `json:"is_live"`
	IsPaused      bool          `json:"is_paused"`
	Timer         int           `json:"timer"`
	DefaultTimer  int           `json:"default_timer"`
	CurrentBid    int           `json:"current_bid"`
	HighestBidder *string       `json:"highest_bidder"`
	CurrentPlayer *store.Player `json:"current_player"`
	BidIncrement  int           `json:"bid_increment"`
	// UserBudget is the requesting team's purse in Crores.
	UserBudget        *decimal.Decimal `json:"user_budget"`
	SoldStatus        *store.Outcome   `json:"sold_status"`
	SoldTeam          *string          `json:"sold_team"`
	SoldPrice         *int             `json:"sold_price"`
	Status            store.Status     `json:"status"`
	PlayersJoined     int              `json:"players_joined"`
	TotalPlayersLimit int              `json:"total_players_limit"`
}

// State advances the room's timer and returns what clients see. team, when
// set, fills in that team's remaining budget.
func (m *Manager) State(ctx context.Context, code, team string) (*State, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.State",
		trace.WithAttributes(attribute.String("room", code)),
	)
	defer span.End()

	unlock := m.lock(code)
	defer unlock()

	r, err := m.load(ctx, code)
	if err != nil {
		return nil, err
	}
	if _, err := m.advanceTime(ctx, r, m.clock.Now().UTC()); err != nil {
		if !errors.Is(err, auctionerrors.ErrConcurrency) {
			return nil, err
		}
		// Another replica moved the room on; show its version.
		if r, err = m.load(ctx, code); err != nil {
			return nil, err
		}
	}
	return m.snapshot(ctx, r, team)
}

func (m *Manager) snapshot(ctx context.Context, r *store.Room, team string) (*State, error) {
	s := &State{
		RoomCode:          r.Code,
		IsLive:            r.IsLive,
		IsPaused:          r.IsPaused,
		Timer:             Remaining(r, m.clock.Now().UTC()),
		DefaultTimer:      r.DefaultTimer,
		CurrentBid:        r.CurrentBid,
		HighestBidder:     r.HighestBidder,
		BidIncrement:      BidIncrement(0),
		SoldStatus:        r.Resolution,
		SoldTeam:          r.ResolutionTeam,
		SoldPrice:         r.ResolutionPrice,
		Status:            r.Status,
		TotalPlayersLimit: m.rules.MaxParticipants,
	}

	if r.CurrentPlayerID != nil {
		p, err := m.catalog.Get(ctx, *r.CurrentPlayerID)
		if err != nil {
			return nil, err
		}
		s.CurrentPlayer = p
		current := r.CurrentBid
		if current <= 0 {
			current = p.BasePrice
		}
		s.BidIncrement = BidIncrement(current)
	}

	if team != "" {
		budget, err := m.registry.Budget(ctx, r.ID, team)
		switch {
		case err == nil:
			s.UserBudget = &budget
		case !errors.Is(err, auctionerrors.ErrTeamNotFound):
			return nil, err
		}
	}

	n, err := m.registry.Count(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("counting participants: %w", err)
	}
	s.PlayersJoined = n
	return s, nil
}

// RunTimers drives the timers of every live room until ctx is cancelled.
// Only one replica should run it; see the leader package.
func (m *Manager) RunTimers(ctx context.Context) error {
	m.logger.InfoContext(ctx, "driving room timers",
		slog.Duration("tick", m.rules.TickInterval),
		slog.Duration("rescan", m.rules.RescanInterval),
	)
	return m.scheduler.Run(ctx, m.liveCodes)
}

// liveCodes lists every live room in the store, including rooms started by
// other replicas.
func (m *Manager) liveCodes(ctx context.Context) ([]string, error) {
	live, err := m.rooms.ListLive(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing live rooms: %w", err)
	}
	codes := make([]string, 0, len(live))
	for _, r := range live {
		codes = append(codes, r.Code)
	}
	return codes, nil
}

// Upcoming returns the players still to come after the current one.
func (m *Manager) Upcoming(ctx context.Context, code string) ([]store.Player, error) {
	r, err := m.load(ctx, code)
	if err != nil {
		return nil, err
	}
	var current *store.Player
	if r.CurrentPlayerID != nil {
		if current, err = m.catalog.Get(ctx, *r.CurrentPlayerID); err != nil {
			return nil, err
		}
	}
	return m.catalog.Upcoming(ctx, current)
}

// PassedPlayer is a player that went unsold or was skipped.
type PassedPlayer struct {
	store.Player
	Status store.Outcome `json:"status"`
}

// Unsold returns the players passed on in a room, in the order they left
// the block.
func (m *Manager) Unsold(ctx context.Context, code string) ([]PassedPlayer, error) {
	r, err := m.load(ctx, code)
	if err != nil {
		return nil, err
	}
	entries, err := m.ledger.ListByRoom(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("listing ledger: %w", err)
	}
	passed := ledger.Passed(entries)
	out := make([]PassedPlayer, 0, len(passed))
	for _, e := range passed {
		p, err := m.catalog.Get(ctx, e.PlayerID)
		if err != nil {
			return nil, err
		}
		out = append(out, PassedPlayer{Player: *p, Status: e.Outcome})
	}
	return out, nil
}

// LogLine is one audit-log entry.
type LogLine struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Logs returns the room's audit log, oldest first.
func (m *Manager) Logs(ctx context.Context, code string) ([]LogLine, error) {
	r, err := m.load(ctx, code)
	if err != nil {
		return nil, err
	}
	events, err := m.events.Load(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}
	out := make([]LogLine, 0, len(events))
	for _, e := range events {
		out = append(out, LogLine{Time: e.CreatedAt, Message: event.Describe(e)})
	}
	return out, nil
}

// Room returns the stored room for code.
func (m *Manager) Room(ctx context.Context, code string) (*store.Room, error) {
	return m.load(ctx, code)
}

// Summary returns every team's budget and purchases in a room.
func (m *Manager) Summary(ctx context.Context, code string) ([]registry.TeamSummary, error) {
	r, err := m.load(ctx, code)
	if err != nil {
		return nil, err
	}
	return m.registry.Summary(ctx, r.ID)
}

// Squad returns what team bought in a room.
func (m *Manager) Squad(ctx context.Context, code, team string) ([]registry.Purchase, error) {
	r, err := m.load(ctx, code)
	if err != nil {
		return nil, err
	}
	return m.registry.Squad(ctx, r.ID, team)
}

// Qualification returns each team's squad size against the threshold.
func (m *Manager) Qualification(ctx context.Context, code string) ([]registry.QualificationRow, error) {
	r, err := m.load(ctx, code)
	if err != nil {
		return nil, err
	}
	return m.registry.Qualification(ctx, r.ID)
}
