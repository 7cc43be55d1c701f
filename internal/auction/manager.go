// Package auction runs the per-room auction state machine: the player on
// the block, the standing bid, the bidding timer and the pending
// resolution that is finalized into the ledger.
package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.opentelemetry.io/otel/attribute"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/cricket-auction/internal/auctionerrors"
	"github.com/jensholdgaard/cricket-auction/internal/catalog"
	"github.com/jensholdgaard/cricket-auction/internal/clock"
	"github.com/jensholdgaard/cricket-auction/internal/config"
	"github.com/jensholdgaard/cricket-auction/internal/event"
	"github.com/jensholdgaard/cricket-auction/internal/ledger"
	"github.com/jensholdgaard/cricket-auction/internal/registry"
	"github.com/jensholdgaard/cricket-auction/internal/store"
	"github.com/jensholdgaard/cricket-auction/internal/telemetry"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Deps holds the collaborators a Manager needs.
type Deps struct {
	Rooms     store.RoomRepository
	Ledger    store.LedgerRepository
	Catalog   *catalog.Catalog
	Registry  *registry.Registry
	Events    event.Store
	Publisher event.Publisher
	Metrics   *telemetry.AuctionMetrics
}

// Manager serializes operations per room and persists every transition.
type Manager struct {
	mu    sync.Mutex
	locks map[string]*roomLock

	rooms     store.RoomRepository
	ledger    store.LedgerRepository
	catalog   *catalog.Catalog
	registry  *registry.Registry
	events    event.Store
	publisher event.Publisher
	metrics   *telemetry.AuctionMetrics
	scheduler *Scheduler

	rules  config.AuctionConfig
	logger *slog.Logger
	tracer trace.Tracer
	clock  clock.Clock
}

// NewManager creates a new auction Manager.
func NewManager(deps Deps, rules config.AuctionConfig, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Manager {
	pub := deps.Publisher
	if pub == nil {
		pub = event.NopPublisher{}
	}
	metrics := deps.Metrics
	if metrics == nil {
		// The noop provider never fails to create instruments.
		metrics, _ = telemetry.NewAuctionMetrics(metricnoop.NewMeterProvider())
	}
	m := &Manager{
		locks:     make(map[string]*roomLock),
		rooms:     deps.Rooms,
		ledger:    deps.Ledger,
		catalog:   deps.Catalog,
		registry:  deps.Registry,
		events:    deps.Events,
		publisher: pub,
		metrics:   metrics,
		rules:     rules,
		logger:    logger,
		tracer:    tp.Tracer("github.com/jensholdgaard/cricket-auction/internal/auction"),
		clock:     clk,
	}
	m.scheduler = NewScheduler(rules.TickInterval, rules.RescanInterval, m.Tick, logger)
	return m
}

// Scheduler returns the scheduler that drives room timers.
func (m *Manager) Scheduler() *Scheduler { return m.scheduler }

// roomLock serializes operations on one room. refs counts holders and
// waiters; the entry is dropped when it reaches zero. outbox holds events
// recorded under the lock, published once it is released.
type roomLock struct {
	mu     sync.Mutex
	refs   int
	outbox []outgoing
}

type outgoing struct {
	ctx  context.Context
	code string
	e    event.Event
}

// lock serializes operations on one room. Rooms never share a lock. The
// returned func releases it and then publishes what was recorded.
func (m *Manager) lock(code string) func() {
	m.mu.Lock()
	l, ok := m.locks[code]
	if !ok {
		l = &roomLock{}
		m.locks[code] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		pending := l.outbox
		l.outbox = nil
		l.mu.Unlock()

		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, code)
		}
		m.mu.Unlock()

		for _, o := range pending {
			m.publish(o.ctx, o.code, o.e)
		}
	}
}

func (m *Manager) load(ctx context.Context, code string) (*store.Room, error) {
	r, err := m.rooms.GetByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, auctionerrors.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading room %s: %w", code, err)
	}
	return r, nil
}

func (m *Manager) save(ctx context.Context, r *store.Room) error {
	if err := m.rooms.Update(ctx, r); err != nil {
		if errors.Is(err, store.ErrStale) {
			return fmt.Errorf("saving room %s: %w", r.Code, auctionerrors.ErrConcurrency)
		}
		return fmt.Errorf("saving room %s: %w", r.Code, err)
	}
	return nil
}

// record appends a domain event for r and queues it for publishing when the
// room lock is released. It must be called with r's lock held. Failures are
// logged; the transition itself is already committed.
func (m *Manager) record(ctx context.Context, r *store.Room, t event.Type, data any) {
	e, err := event.New(r.ID, t, r.Version, m.clock.Now().UTC(), data)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to build event", slog.String("type", string(t)), slog.Any("error", err))
		return
	}
	if err := m.events.Append(ctx, e); err != nil {
		m.logger.ErrorContext(ctx, "failed to persist event",
			slog.String("room", r.Code),
			slog.String("type", string(t)),
			slog.Any("error", err),
		)
		return
	}

	m.mu.Lock()
	l := m.locks[r.Code]
	m.mu.Unlock()
	if l == nil {
		m.publish(ctx, r.Code, e)
		return
	}
	l.outbox = append(l.outbox, outgoing{ctx: ctx, code: r.Code, e: e})
}

func (m *Manager) publish(ctx context.Context, code string, e event.Event) {
	if err := m.publisher.Publish(ctx, e); err != nil {
		m.logger.WarnContext(ctx, "failed to publish event",
			slog.String("room", code),
			slog.String("type", string(e.Type)),
			slog.Any("error", err),
		)
	}
}

// liveChanged keeps the scheduler and the live-room gauge in step with
// r.IsLive after a transition was saved.
func (m *Manager) liveChanged(ctx context.Context, r *store.Room, wasLive bool) {
	switch {
	case r.IsLive && !wasLive:
		m.metrics.RoomLive(ctx, 1)
		m.scheduler.Watch(r.Code)
	case !r.IsLive && wasLive:
		m.metrics.RoomLive(ctx, -1)
		m.scheduler.Unwatch(r.Code)
	}
}

func playerData(p *store.Player) event.PlayerData {
	return event.PlayerData{PlayerID: p.ID, PlayerName: p.Name, BasePrice: p.BasePrice}
}

// CreateRoom opens a room under a fresh join code and seats the host.
func (m *Manager) CreateRoom(ctx context.Context, hostName, team string, isPublic bool) (*store.Room, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.CreateRoom",
		trace.WithAttributes(
			attribute.String("host", hostName),
			attribute.String("team", team),
		),
	)
	defer span.End()

	if hostName == "" || team == "" {
		return nil, auctionerrors.Validation("Missing data")
	}

	r := &store.Room{
		ID:           uuid.NewString(),
		HostName:     hostName,
		IsPublic:     isPublic,
		Status:       store.StatusLive,
		DefaultTimer: m.rules.DefaultTimerSeconds,
		TimerSeconds: m.rules.DefaultTimerSeconds,
	}

	const attempts = 5
	var err error
	for range attempts {
		r.Code, err = gonanoid.Generate(codeAlphabet, m.rules.RoomCodeLength)
		if err != nil {
			return nil, fmt.Errorf("generating room code: %w", err)
		}
		err = m.rooms.Create(ctx, r)
		if !errors.Is(err, store.ErrConflict) {
			break
		}
	}
	if errors.Is(err, store.ErrConflict) {
		return nil, auctionerrors.ErrCodeInUse
	}
	if err != nil {
		return nil, fmt.Errorf("creating room: %w", err)
	}

	if _, err := m.registry.Join(ctx, r, hostName, team, true); err != nil {
		return nil, fmt.Errorf("seating host: %w", err)
	}

	unlock := m.lock(r.Code)
	m.record(ctx, r, event.RoomCreated, event.RoomCreatedData{
		Code: r.Code, HostName: hostName, Team: team, IsPublic: isPublic,
	})
	unlock()
	m.logger.InfoContext(ctx, "room created",
		slog.String("room", r.Code),
		slog.String("host", hostName),
	)
	return r, nil
}

// JoinRoom seats team in the room with the starting budget.
func (m *Manager) JoinRoom(ctx context.Context, code, username, team string) error {
	ctx, span := m.tracer.Start(ctx, "Manager.JoinRoom",
		trace.WithAttributes(
			attribute.String("room", code),
			attribute.String("team", team),
		),
	)
	defer span.End()

	unlock := m.lock(code)
	defer unlock()

	r, err := m.load(ctx, code)
	if err != nil {
		return err
	}
	if r.Status != store.StatusLive {
		return auctionerrors.ErrWrongPhase.WithMessage("Room is no longer accepting teams")
	}
	p, err := m.registry.Join(ctx, r, username, team, false)
	if err != nil {
		return err
	}
	m.record(ctx, r, event.ParticipantJoined, event.ParticipantJoinedData{Username: p.Username, Team: p.Team})
	return nil
}

// RoomListing is a public room as shown in the lobby.
type RoomListing struct {
	Code          string    `json:"code"`
	HostName      string    `json:"host_name"`
	CreatedAt     time.Time `json:"created_at"`
	PlayersJoined int       `json:"players_joined"`
}

// ListRooms returns public rooms still in the live phase.
func (m *Manager) ListRooms(ctx context.Context) ([]RoomListing, error) {
	rooms, err := m.rooms.ListPublic(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	out := make([]RoomListing, 0, len(rooms))
	for _, r := range rooms {
		n, err := m.registry.Count(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, RoomListing{Code: r.Code, HostName: r.HostName, CreatedAt: r.CreatedAt, PlayersJoined: n})
	}
	return out, nil
}

// Start puts the first catalog player on the block if there is none and
// starts the timer. Calling Start on a live room changes nothing, paused
// or not; resuming is TogglePause's job.
func (m *Manager) Start(ctx context.Context, code string) (*State, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Start",
		trace.WithAttributes(attribute.String("room", code)),
	)
	defer span.End()

	unlock := m.lock(code)
	defer unlock()

	r, err := m.load(ctx, code)
	if err != nil {
		return nil, err
	}
	if r.Status != store.StatusLive {
		return nil, auctionerrors.ErrWrongPhase.WithMessage("Auction has already ended")
	}
	if r.IsLive {
		return m.snapshot(ctx, r, "")
	}

	now := m.clock.Now().UTC()
	var first *store.Player
	if r.CurrentPlayerID == nil {
		first, err = m.catalog.First(ctx)
		if err != nil {
			return nil, err
		}
		present(r, first, now)
	} else if r.Resolution == nil {
		done, err := m.finalized(ctx, r, *r.CurrentPlayerID)
		if err != nil {
			return nil, err
		}
		if done {
			return nil, auctionerrors.ErrEmptyCatalog.WithMessage("No more players to auction")
		}
	}

	r.IsLive = true
	r.IsPaused = false
	rearm(r, now)
	if err := m.save(ctx, r); err != nil {
		return nil, err
	}
	m.liveChanged(ctx, r, false)

	cur, err := m.catalog.Get(ctx, *r.CurrentPlayerID)
	if err != nil {
		return nil, err
	}
	m.record(ctx, r, event.AuctionStarted, playerData(cur))
	m.logger.InfoContext(ctx, "auction started",
		slog.String("room", code),
		slog.String("player", cur.Name),
	)
	return m.snapshot(ctx, r, "")
}

// finalized reports whether the ledger already has playerID for r.
func (m *Manager) finalized(ctx context.Context, r *store.Room, playerID int64) (bool, error) {
	entries, err := m.ledger.ListByRoom(ctx, r.ID)
	if err != nil {
		return false, fmt.Errorf("listing ledger: %w", err)
	}
	for _, e := range entries {
		if e.PlayerID == playerID {
			return true, nil
		}
	}
	return false, nil
}

// TogglePause pauses or resumes the bidding timer and returns the new pause
// state with the frozen or resumed seconds.
func (m *Manager) TogglePause(ctx context.Context, code string) (paused bool, timer int, err error) {
	ctx, span := m.tracer.Start(ctx, "Manager.TogglePause",
		trace.WithAttributes(attribute.String("room", code)),
	)
	defer span.End()

	unlock := m.lock(code)
	defer unlock()

	r, err := m.load(ctx, code)
	if err != nil {
		return false, 0, err
	}
	if r.Status != store.StatusLive {
		return false, 0, auctionerrors.ErrWrongPhase.WithMessage("Auction has already ended")
	}
	if !r.IsLive {
		return false, 0, auctionerrors.ErrNotLive
	}
	togglePause(r, m.clock.Now().UTC())
	if err := m.save(ctx, r); err != nil {
		return false, 0, err
	}

	t := event.AuctionResumed
	if r.IsPaused {
		t = event.AuctionPaused
	}
	m.record(ctx, r, t, event.PauseData{TimerSeconds: r.TimerSeconds})
	m.logger.InfoContext(ctx, "auction pause toggled",
		slog.String("room", code),
		slog.Bool("paused", r.IsPaused),
		slog.Int("timer", r.TimerSeconds),
	)
	return r.IsPaused, r.TimerSeconds, nil
}

// UpdateSettings sets the timer used for each new player and each new bid.
func (m *Manager) UpdateSettings(ctx context.Context, code string, timerSeconds int) (int, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.UpdateSettings",
		trace.WithAttributes(
			attribute.String("room", code),
			attribute.Int("timer", timerSeconds),
		),
	)
	defer span.End()

	if timerSeconds <= 0 {
		return 0, auctionerrors.Validation("Invalid timer value")
	}

	unlock := m.lock(code)
	defer unlock()

	r, err := m.load(ctx, code)
	if err != nil {
		return 0, err
	}
	r.DefaultTimer = timerSeconds
	if err := m.save(ctx, r); err != nil {
		return 0, err
	}
	m.record(ctx, r, event.SettingsUpdated, event.SettingsUpdatedData{TimerSeconds: timerSeconds})
	return r.DefaultTimer, nil
}

// PlaceBid places a provisional bid for team on the current player and
// returns the restarted timer. Nothing is written to the ledger.
func (m *Manager) PlaceBid(ctx context.Context, code, team string, amount int) (int, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.PlaceBid",
		trace.WithAttributes(
			attribute.String("room", code),
			attribute.String("team", team),
			attribute.Int("amount", amount),
		),
	)
	defer span.End()

	timer, err := m.placeBid(ctx, code, team, amount)
	if err != nil {
		m.metrics.BidRejected(ctx, auctionerrors.ReasonOf(err))
		return 0, err
	}
	m.metrics.BidAccepted(ctx)
	return timer, nil
}

func (m *Manager) placeBid(ctx context.Context, code, team string, amount int) (int, error) {
	if team == "" || amount <= 0 {
		return 0, auctionerrors.Validation("Invalid bid amount")
	}

	unlock := m.lock(code)
	defer unlock()

	r, err := m.load(ctx, code)
	if err != nil {
		return 0, err
	}
	now := m.clock.Now().UTC()
	st, err := m.advanceTime(ctx, r, now)
	if err != nil {
		return 0, err
	}
	if st == stepFinalize {
		// The bidder saw the previous player.
		return 0, auctionerrors.ErrResolutionPending
	}

	b := bid{team: team, amount: amount}
	if r.CurrentPlayerID != nil && r.IsLive && !r.IsPaused && r.Resolution == nil {
		if b.bidder, err = m.registry.Get(ctx, r.ID, team); err != nil && !errors.Is(err, auctionerrors.ErrTeamNotFound) {
			return 0, err
		}
		if b.player, err = m.catalog.Get(ctx, *r.CurrentPlayerID); err != nil {
			return 0, err
		}
		b.overseas = ledger.IsOverseas(b.player.Country, m.rules.HomeCountry)
		entries, err := m.ledger.ListByRoom(ctx, r.ID)
		if err != nil {
			return 0, fmt.Errorf("listing ledger: %w", err)
		}
		b.tally = ledger.TallyFor(entries, team)
	}
	if err := checkBid(r, b, m.rules); err != nil {
		m.logger.InfoContext(ctx, "bid rejected",
			slog.String("room", code),
			slog.String("team", team),
			slog.Int("amount", amount),
			slog.String("reason", auctionerrors.ReasonOf(err)),
		)
		return 0, err
	}

	acceptBid(r, team, amount, now)
	if err := m.save(ctx, r); err != nil {
		return 0, err
	}
	m.record(ctx, r, event.BidPlaced, event.BidPlacedData{PlayerData: playerData(b.player), Team: team, Amount: amount})
	m.logger.InfoContext(ctx, "bid accepted",
		slog.String("room", code),
		slog.String("team", team),
		slog.Int("amount", amount),
	)
	return r.DefaultTimer, nil
}

// Sell finalizes the current player immediately: SOLD to the standing
// bidder, or UNSOLD when nobody bid. A resolution that is already pending
// is finalized as it stands. hasNext is false when the catalog ran out.
func (m *Manager) Sell(ctx context.Context, code string) (hasNext bool, err error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Sell",
		trace.WithAttributes(attribute.String("room", code)),
	)
	defer span.End()

	unlock := m.lock(code)
	defer unlock()

	r, err := m.load(ctx, code)
	if err != nil {
		return false, err
	}
	if r.CurrentPlayerID == nil {
		return false, auctionerrors.ErrNoCurrentPlayer.WithMessage("No player on the block")
	}
	if r.Resolution == nil {
		if !r.IsLive {
			return false, auctionerrors.ErrNotLive
		}
		now := m.clock.Now().UTC()
		if r.HighestBidder != nil {
			resolve(r, store.OutcomeSold, now)
		} else {
			resolve(r, store.OutcomeUnsold, now)
		}
	}
	if err := m.finalize(ctx, r); err != nil {
		return false, err
	}
	return r.IsLive, nil
}

// Skip passes on the current player. The SKIPPED banner shows for the
// settle delay like any other resolution.
func (m *Manager) Skip(ctx context.Context, code string) error {
	ctx, span := m.tracer.Start(ctx, "Manager.Skip",
		trace.WithAttributes(attribute.String("room", code)),
	)
	defer span.End()

	unlock := m.lock(code)
	defer unlock()

	r, err := m.load(ctx, code)
	if err != nil {
		return err
	}
	if r.CurrentPlayerID == nil {
		return auctionerrors.ErrNoCurrentPlayer
	}
	if r.Resolution != nil {
		return auctionerrors.ErrResolutionPending
	}
	if !r.IsLive {
		return auctionerrors.ErrNotLive
	}

	resolve(r, store.OutcomeSkipped, m.clock.Now().UTC())
	if err := m.save(ctx, r); err != nil {
		return err
	}
	m.recordPending(ctx, r)
	return nil
}

// Tick advances a room's timer. The scheduler calls it on an interval;
// reads call it too so rooms advance when no scheduler is running.
func (m *Manager) Tick(ctx context.Context, code string) error {
	unlock := m.lock(code)
	defer unlock()

	r, err := m.load(ctx, code)
	if err != nil {
		return err
	}
	if _, err := m.advanceTime(ctx, r, m.clock.Now().UTC()); err != nil {
		return err
	}
	if !r.IsLive && r.Resolution == nil {
		m.scheduler.Unwatch(code)
	}
	return nil
}

// advanceTime applies tick to r and persists what it decided. It must be
// called with the room lock held.
func (m *Manager) advanceTime(ctx context.Context, r *store.Room, now time.Time) (step, error) {
	st := tick(r, now)
	switch st {
	case stepPending:
		if err := m.save(ctx, r); err != nil {
			return st, err
		}
		m.recordPending(ctx, r)
	case stepFinalize:
		return st, m.finalize(ctx, r)
	}
	return st, nil
}

func (m *Manager) recordPending(ctx context.Context, r *store.Room) {
	p, err := m.catalog.Get(ctx, *r.CurrentPlayerID)
	if err != nil {
		m.logger.ErrorContext(ctx, "current player missing from catalog", slog.Any("error", err))
		return
	}
	m.record(ctx, r, event.ResolutionPending, event.ResolutionData{
		PlayerData: playerData(p),
		Outcome:    string(*r.Resolution),
		Team:       r.ResolutionTeam,
		Price:      r.ResolutionPrice,
	})
}

// finalize writes the pending resolution to the ledger, applies its budget
// effects and moves to the next player in one store transaction. The room
// version check makes it exactly-once across pollers and replicas.
func (m *Manager) finalize(ctx context.Context, r *store.Room) error {
	ctx, span := m.tracer.Start(ctx, "Manager.finalize",
		trace.WithAttributes(attribute.String("room", r.Code)),
	)
	defer span.End()

	player, err := m.catalog.Get(ctx, *r.CurrentPlayerID)
	if err != nil {
		return err
	}
	entry := ledgerEntry(r, player, m.rules.HomeCountry)
	outcome := *r.Resolution
	wasLive := r.IsLive

	next, ok, err := m.catalog.Next(ctx, *player)
	if err != nil {
		return fmt.Errorf("finding next player: %w", err)
	}
	now := m.clock.Now().UTC()
	clearResolution(r)
	if ok {
		present(r, next, now)
	} else {
		r.IsLive = false
	}

	if err := m.ledger.Finalize(ctx, entry, r); err != nil {
		if errors.Is(err, store.ErrStale) || errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("finalizing player %d: %w", player.ID, auctionerrors.ErrConcurrency)
		}
		return fmt.Errorf("finalizing player %d: %w", player.ID, err)
	}
	m.metrics.PlayerFinalized(ctx, string(outcome))

	m.record(ctx, r, event.PlayerFinalized, event.ResolutionData{
		PlayerData: playerData(player),
		Outcome:    string(outcome),
		Team:       entry.Team,
		Price:      entry.Price,
	})
	if ok {
		m.record(ctx, r, event.PlayerUp, playerData(next))
	} else {
		m.record(ctx, r, event.CatalogExhausted, nil)
	}
	m.liveChanged(ctx, r, wasLive)

	attrs := []any{
		slog.String("room", r.Code),
		slog.String("player", player.Name),
		slog.String("outcome", string(outcome)),
	}
	if entry.Team != nil {
		attrs = append(attrs, slog.String("team", *entry.Team), slog.Int("price", *entry.Price))
	}
	m.logger.InfoContext(ctx, "player finalized", attrs...)
	return nil
}

// EndAuction closes bidding, recounts every squad from the ledger and
// freezes qualification. A resolution still pending is finalized first.
func (m *Manager) EndAuction(ctx context.Context, code string) (int, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.EndAuction",
		trace.WithAttributes(attribute.String("room", code)),
	)
	defer span.End()

	unlock := m.lock(code)
	defer unlock()

	r, err := m.load(ctx, code)
	if err != nil {
		return 0, err
	}
	if r.Status != store.StatusLive {
		return 0, auctionerrors.ErrWrongPhase.WithMessage("Auction has already ended")
	}
	if r.Resolution != nil {
		if err := m.finalize(ctx, r); err != nil {
			return 0, err
		}
	}

	m.scheduler.Unwatch(code)
	wasLive := r.IsLive
	r.Status = store.StatusSelection
	r.IsLive = false
	r.IsPaused = false
	if err := m.save(ctx, r); err != nil {
		return 0, err
	}
	if wasLive {
		m.metrics.RoomLive(ctx, -1)
	}

	qualified, err := m.registry.Reconcile(ctx, r)
	if err != nil {
		return 0, err
	}
	m.record(ctx, r, event.AuctionEnded, event.AuctionEndedData{QualifiedCount: qualified})
	m.logger.InfoContext(ctx, "auction ended",
		slog.String("room", code),
		slog.Int("qualified", qualified),
	)
	return qualified, nil
}

// SubmitLineup scores team's playing XI. The room completes once every
// qualified team has submitted.
func (m *Manager) SubmitLineup(ctx context.Context, code, team string, playerIDs []int64) (store.Status, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.SubmitLineup",
		trace.WithAttributes(
			attribute.String("room", code),
			attribute.String("team", team),
		),
	)
	defer span.End()

	unlock := m.lock(code)
	defer unlock()

	r, err := m.load(ctx, code)
	if err != nil {
		return "", err
	}
	if r.Status != store.StatusSelection {
		return "", auctionerrors.ErrWrongPhase.WithMessage("Lineups are accepted after the auction ends")
	}

	res, all, err := m.registry.SubmitLineup(ctx, r, team, playerIDs)
	if err != nil {
		return "", err
	}
	m.record(ctx, r, event.LineupSubmitted, event.LineupSubmittedData{Team: team, Score: res.Score})
	if !all {
		return r.Status, nil
	}

	r.Status = store.StatusCompleted
	if err := m.save(ctx, r); err != nil {
		return "", err
	}
	m.record(ctx, r, event.RoomCompleted, nil)
	m.logger.InfoContext(ctx, "room completed", slog.String("room", code))
	return r.Status, nil
}

// Winner returns the final leaderboard once the room is completed.
func (m *Manager) Winner(ctx context.Context, code string) ([]registry.Standing, error) {
	r, err := m.load(ctx, code)
	if err != nil {
		return nil, err
	}
	if r.Status != store.StatusCompleted {
		return nil, auctionerrors.ErrNotCompleted
	}
	return m.registry.Leaderboard(ctx, r.ID)
}
