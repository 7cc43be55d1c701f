package auction_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/cricket-auction/internal/auction"
	"github.com/jensholdgaard/cricket-auction/internal/auctionerrors"
	"github.com/jensholdgaard/cricket-auction/internal/catalog"
	"github.com/jensholdgaard/cricket-auction/internal/clock"
	"github.com/jensholdgaard/cricket-auction/internal/config"
	"github.com/jensholdgaard/cricket-auction/internal/event"
	"github.com/jensholdgaard/cricket-auction/internal/registry"
	"github.com/jensholdgaard/cricket-auction/internal/store"
	"github.com/jensholdgaard/cricket-auction/internal/store/memstore"
)

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *recordingPublisher) Publish(_ context.Context, events ...event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []event.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]event.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// failingEventStore rejects every append.
type failingEventStore struct{ event.Store }

func (failingEventStore) Append(context.Context, ...event.Event) error {
	return fmt.Errorf("db write error")
}

type harness struct {
	mgr   *auction.Manager
	repos *store.Repositories
	cat   *catalog.Catalog
	rules config.AuctionConfig
	clk   *clock.Fake
	pub   *recordingPublisher
}

func testPlayers() []store.Player {
	return []store.Player{
		{ID: 1, Name: "Virat Kohli", Role: store.RoleBatsman, Country: "India", BasePrice: 200, SetNo: 1},
		{ID: 2, Name: "Jasprit Bumrah", Role: store.RoleBowler, Country: "India", BasePrice: 150, SetNo: 1},
		{ID: 3, Name: "Jos Buttler", Role: store.RoleWicketKeeper, Country: "England", BasePrice: 100, SetNo: 2},
		{ID: 4, Name: "Rashid Khan", Role: store.RoleAllRounder, Country: "Afghanistan", BasePrice: 50, SetNo: 2},
	}
}

func newHarness(t *testing.T, players []store.Player, mutate func(*config.AuctionConfig)) *harness {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
	repos := memstore.New(clk).Repositories()

	cat := catalog.New(repos.Players)
	if len(players) > 0 {
		if err := cat.Import(context.Background(), players); err != nil {
			t.Fatalf("Import() error = %v", err)
		}
	}

	rules := config.Defaults().Auction
	if mutate != nil {
		mutate(&rules)
	}
	h := &harness{repos: repos, cat: cat, rules: rules, clk: clk, pub: &recordingPublisher{}}
	h.mgr = h.replica(h.pub)
	return h
}

// replica returns another Manager over the same store and clock, as a
// second server process would run.
func (h *harness) replica(pub event.Publisher) *auction.Manager {
	logger := slog.Default()
	tp := noop.NewTracerProvider()
	return auction.NewManager(auction.Deps{
		Rooms:     h.repos.Rooms,
		Ledger:    h.repos.Ledger,
		Catalog:   h.cat,
		Registry:  registry.New(h.repos.Participants, h.repos.Ledger, h.cat, h.rules, logger, tp),
		Events:    h.repos.Events,
		Publisher: pub,
	}, h.rules, logger, tp, h.clk)
}

// room creates a room hosted by MI and seats the other teams.
func (h *harness) room(t *testing.T, teams ...string) string {
	t.Helper()
	ctx := context.Background()
	r, err := h.mgr.CreateRoom(ctx, "alice", "MI", true)
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	for _, team := range teams {
		if err := h.mgr.JoinRoom(ctx, r.Code, "user-"+team, team); err != nil {
			t.Fatalf("JoinRoom(%s) error = %v", team, err)
		}
	}
	return r.Code
}

func (h *harness) start(t *testing.T, code string) *auction.State {
	t.Helper()
	s, err := h.mgr.Start(context.Background(), code)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return s
}

func (h *harness) state(t *testing.T, code string) *auction.State {
	t.Helper()
	s, err := h.mgr.State(context.Background(), code, "")
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	return s
}

func (h *harness) ledger(t *testing.T, code string) []store.LedgerEntry {
	t.Helper()
	r, err := h.mgr.Room(context.Background(), code)
	if err != nil {
		t.Fatalf("Room() error = %v", err)
	}
	entries, err := h.repos.Ledger.ListByRoom(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("ListByRoom() error = %v", err)
	}
	return entries
}

func (h *harness) budget(t *testing.T, code, team string) string {
	t.Helper()
	r, err := h.mgr.Room(context.Background(), code)
	if err != nil {
		t.Fatalf("Room() error = %v", err)
	}
	p, err := h.repos.Participants.Get(context.Background(), r.ID, team)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", team, err)
	}
	return p.Budget.StringFixed(2)
}

func currentID(s *auction.State) int64 {
	if s.CurrentPlayer == nil {
		return 0
	}
	return s.CurrentPlayer.ID
}

func TestManager_CreateRoom(t *testing.T) {
	h := newHarness(t, testPlayers(), nil)
	ctx := context.Background()

	r, err := h.mgr.CreateRoom(ctx, "alice", "MI", true)
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	if len(r.Code) != 5 || strings.Trim(r.Code, "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789") != "" {
		t.Errorf("Code = %q, want 5 upper-case alphanumerics", r.Code)
	}
	if r.Status != store.StatusLive || r.DefaultTimer != 15 {
		t.Errorf("room = %+v", r)
	}

	host, err := h.repos.Participants.Get(ctx, r.ID, "MI")
	if err != nil {
		t.Fatalf("host not seated: %v", err)
	}
	if !host.IsHost || host.Budget.StringFixed(2) != "120.00" {
		t.Errorf("host = %+v", host)
	}

	rooms, err := h.mgr.ListRooms(ctx)
	if err != nil {
		t.Fatalf("ListRooms() error = %v", err)
	}
	if len(rooms) != 1 || rooms[0].Code != r.Code || rooms[0].PlayersJoined != 1 {
		t.Errorf("ListRooms() = %+v", rooms)
	}

	if _, err := h.mgr.CreateRoom(ctx, "", "MI", false); !errors.Is(err, auctionerrors.ErrValidation) {
		t.Errorf("CreateRoom() without host error = %v, want validation", err)
	}
}

// Scenario A.
func TestManager_BidAndSell(t *testing.T) {
	h := newHarness(t, testPlayers(), nil)
	ctx := context.Background()
	code := h.room(t, "CSK")

	s := h.start(t, code)
	if currentID(s) != 1 || s.CurrentBid != 200 || s.HighestBidder != nil {
		t.Fatalf("after start: player=%d bid=%d bidder=%v", currentID(s), s.CurrentBid, s.HighestBidder)
	}
	if s.BidIncrement != 20 || s.Timer != 15 || !s.IsLive {
		t.Errorf("after start: %+v", s)
	}

	h.clk.Advance(3 * time.Second)
	timer, err := h.mgr.PlaceBid(ctx, code, "MI", 220)
	if err != nil {
		t.Fatalf("PlaceBid() error = %v", err)
	}
	if timer != 15 {
		t.Errorf("new timer = %d, want 15", timer)
	}
	if s := h.state(t, code); s.Timer != 15 || *s.HighestBidder != "MI" || s.CurrentBid != 220 {
		t.Errorf("after bid: timer=%d bidder=%v bid=%d", s.Timer, s.HighestBidder, s.CurrentBid)
	}
	if len(h.ledger(t, code)) != 0 {
		t.Fatal("bid wrote to the ledger")
	}

	hasNext, err := h.mgr.Sell(ctx, code)
	if err != nil {
		t.Fatalf("Sell() error = %v", err)
	}
	if !hasNext {
		t.Error("Sell() hasNext = false")
	}

	entries := h.ledger(t, code)
	if len(entries) != 1 {
		t.Fatalf("ledger has %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Outcome != store.OutcomeSold || *e.Team != "MI" || *e.Price != 220 || e.PlayerID != 1 || !e.Finalized {
		t.Errorf("entry = %+v", e)
	}
	if got := h.budget(t, code, "MI"); got != "117.80" {
		t.Errorf("MI budget = %s, want 117.80", got)
	}
	if got := h.budget(t, code, "CSK"); got != "120.00" {
		t.Errorf("CSK budget = %s, want 120.00", got)
	}

	s = h.state(t, code)
	if currentID(s) != 2 || s.CurrentBid != 150 || s.HighestBidder != nil || s.SoldStatus != nil {
		t.Errorf("after sell: player=%d bid=%d bidder=%v sold=%v", currentID(s), s.CurrentBid, s.HighestBidder, s.SoldStatus)
	}

	logs, err := h.mgr.Logs(ctx, code)
	if err != nil {
		t.Fatalf("Logs() error = %v", err)
	}
	var found bool
	for _, l := range logs {
		if l.Message == "SOLD: Virat Kohli to MI for 220L" {
			found = true
		}
	}
	if !found {
		t.Errorf("audit log missing sale: %+v", logs)
	}
}

// Scenario B.
func TestManager_PlaceBid_InsufficientFunds(t *testing.T) {
	h := newHarness(t, testPlayers(), func(a *config.AuctionConfig) { a.StartingBudget = "1.00" })
	ctx := context.Background()
	code := h.room(t)
	h.start(t, code)
	before := h.state(t, code)

	_, err := h.mgr.PlaceBid(ctx, code, "MI", 200)
	if !errors.Is(err, auctionerrors.ErrInsufficientFunds) {
		t.Fatalf("PlaceBid() error = %v, want ErrInsufficientFunds", err)
	}
	if auctionerrors.KindOf(err) != auctionerrors.KindBusinessRule {
		t.Errorf("kind = %v, want business rule", auctionerrors.KindOf(err))
	}

	after := h.state(t, code)
	if after.CurrentBid != before.CurrentBid || after.HighestBidder != nil || after.Timer != before.Timer {
		t.Errorf("state changed: before=%+v after=%+v", before, after)
	}
}

// Scenario C.
func TestManager_TimerExpiryUnsold(t *testing.T) {
	h := newHarness(t, testPlayers(), nil)
	code := h.room(t)
	h.start(t, code)

	h.clk.Advance(14500 * time.Millisecond)
	if s := h.state(t, code); s.Timer != 1 || s.SoldStatus != nil {
		t.Fatalf("before expiry: timer=%d sold=%v", s.Timer, s.SoldStatus)
	}

	h.clk.Advance(500 * time.Millisecond)
	s := h.state(t, code)
	if s.SoldStatus == nil || *s.SoldStatus != store.OutcomeUnsold {
		t.Fatalf("sold status = %v, want UNSOLD", s.SoldStatus)
	}
	if s.Timer != 0 || currentID(s) != 1 {
		t.Errorf("pending: timer=%d player=%d", s.Timer, currentID(s))
	}
	if len(h.ledger(t, code)) != 0 {
		t.Fatal("ledger written before settle delay")
	}

	h.clk.Advance(999 * time.Millisecond)
	h.state(t, code)
	if len(h.ledger(t, code)) != 0 {
		t.Fatal("ledger written before settle delay")
	}

	h.clk.Advance(time.Millisecond)
	s = h.state(t, code)
	entries := h.ledger(t, code)
	if len(entries) != 1 {
		t.Fatalf("ledger has %d entries, want 1", len(entries))
	}
	if e := entries[0]; e.Outcome != store.OutcomeUnsold || e.Team != nil || e.Price != nil {
		t.Errorf("entry = %+v", e)
	}
	if currentID(s) != 2 || s.SoldStatus != nil || s.Timer != 15 {
		t.Errorf("after finalize: player=%d sold=%v timer=%d", currentID(s), s.SoldStatus, s.Timer)
	}

	unsold, err := h.mgr.Unsold(context.Background(), code)
	if err != nil {
		t.Fatalf("Unsold() error = %v", err)
	}
	if len(unsold) != 1 || unsold[0].ID != 1 || unsold[0].Status != store.OutcomeUnsold {
		t.Errorf("Unsold() = %+v", unsold)
	}
}

func TestManager_TimerExpirySold(t *testing.T) {
	h := newHarness(t, testPlayers(), nil)
	code := h.room(t, "CSK")
	h.start(t, code)

	if _, err := h.mgr.PlaceBid(context.Background(), code, "CSK", 200); err != nil {
		t.Fatalf("PlaceBid() error = %v", err)
	}
	h.clk.Advance(15 * time.Second)
	s := h.state(t, code)
	if s.SoldStatus == nil || *s.SoldStatus != store.OutcomeSold || *s.SoldTeam != "CSK" || *s.SoldPrice != 200 {
		t.Fatalf("pending = %v %v %v", s.SoldStatus, s.SoldTeam, s.SoldPrice)
	}

	// Bidding is closed while the banner shows.
	if _, err := h.mgr.PlaceBid(context.Background(), code, "MI", 300); !errors.Is(err, auctionerrors.ErrResolutionPending) {
		t.Errorf("PlaceBid() during settle error = %v, want ErrResolutionPending", err)
	}

	h.clk.Advance(auction.SettleDelay)
	h.state(t, code)
	if got := h.budget(t, code, "CSK"); got != "118.00" {
		t.Errorf("CSK budget = %s, want 118.00", got)
	}
}

// Scenario D.
func TestManager_Skip(t *testing.T) {
	h := newHarness(t, testPlayers(), nil)
	ctx := context.Background()
	code := h.room(t, "CSK")
	h.start(t, code)
	if _, err := h.mgr.PlaceBid(ctx, code, "CSK", 200); err != nil {
		t.Fatalf("PlaceBid() error = %v", err)
	}

	if err := h.mgr.Skip(ctx, code); err != nil {
		t.Fatalf("Skip() error = %v", err)
	}
	s := h.state(t, code)
	if s.SoldStatus == nil || *s.SoldStatus != store.OutcomeSkipped || s.SoldTeam != nil {
		t.Fatalf("sold status = %v team=%v, want SKIPPED", s.SoldStatus, s.SoldTeam)
	}
	if err := h.mgr.Skip(ctx, code); !errors.Is(err, auctionerrors.ErrResolutionPending) {
		t.Errorf("second Skip() error = %v, want ErrResolutionPending", err)
	}

	h.clk.Advance(auction.SettleDelay)
	if err := h.mgr.Tick(ctx, code); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	entries := h.ledger(t, code)
	if len(entries) != 1 || entries[0].Outcome != store.OutcomeSkipped || entries[0].Team != nil {
		t.Fatalf("ledger = %+v", entries)
	}
	if got := h.budget(t, code, "CSK"); got != "120.00" {
		t.Errorf("CSK budget = %s, skipped player must not be charged", got)
	}
	if s := h.state(t, code); currentID(s) != 2 {
		t.Errorf("current player = %d, want 2", currentID(s))
	}
}

func TestManager_Skip_NoCurrentPlayer(t *testing.T) {
	h := newHarness(t, testPlayers(), nil)
	code := h.room(t)
	if err := h.mgr.Skip(context.Background(), code); !errors.Is(err, auctionerrors.ErrNoCurrentPlayer) {
		t.Errorf("Skip() error = %v, want ErrNoCurrentPlayer", err)
	}
}

// Scenario E.
func TestManager_JoinRoom_TeamTaken(t *testing.T) {
	h := newHarness(t, testPlayers(), nil)
	code := h.room(t, "CSK")

	err := h.mgr.JoinRoom(context.Background(), code, "mallory", "CSK")
	if !errors.Is(err, auctionerrors.ErrTeamTaken) {
		t.Fatalf("JoinRoom() error = %v, want ErrTeamTaken", err)
	}
	if auctionerrors.KindOf(err) != auctionerrors.KindConflict {
		t.Errorf("kind = %v, want conflict", auctionerrors.KindOf(err))
	}
	if err := h.mgr.JoinRoom(context.Background(), "ZZZZZ", "bob", "RCB"); !errors.Is(err, auctionerrors.ErrRoomNotFound) {
		t.Errorf("JoinRoom() unknown room error = %v", err)
	}
}

func TestManager_PlaceBid_Rules(t *testing.T) {
	tests := []struct {
		name    string
		rules   func(*config.AuctionConfig)
		setup   func(t *testing.T, h *harness, code string)
		team    string
		amount  int
		wantErr error
	}{
		{name: "unknown team", team: "KKR", amount: 200, wantErr: auctionerrors.ErrTeamNotFound},
		{name: "zero amount", team: "CSK", amount: 0, wantErr: auctionerrors.ErrValidation},
		{name: "below base price", team: "CSK", amount: 190, wantErr: auctionerrors.ErrBidTooLow},
		{
			name: "self outbid",
			setup: func(t *testing.T, h *harness, code string) {
				if _, err := h.mgr.PlaceBid(context.Background(), code, "CSK", 200); err != nil {
					t.Fatalf("PlaceBid() error = %v", err)
				}
			},
			team: "CSK", amount: 240, wantErr: auctionerrors.ErrSelfOutbid,
		},
		{
			name: "not above standing bid",
			setup: func(t *testing.T, h *harness, code string) {
				if _, err := h.mgr.PlaceBid(context.Background(), code, "MI", 240); err != nil {
					t.Fatalf("PlaceBid() error = %v", err)
				}
			},
			team: "CSK", amount: 240, wantErr: auctionerrors.ErrBidTooLow,
		},
		{
			name: "paused",
			setup: func(t *testing.T, h *harness, code string) {
				if _, _, err := h.mgr.TogglePause(context.Background(), code); err != nil {
					t.Fatalf("TogglePause() error = %v", err)
				}
			},
			team: "CSK", amount: 200, wantErr: auctionerrors.ErrPaused,
		},
		{
			name:  "squad full",
			rules: func(a *config.AuctionConfig) { a.MaxSquad = 1 },
			setup: func(t *testing.T, h *harness, code string) {
				ctx := context.Background()
				if _, err := h.mgr.PlaceBid(ctx, code, "CSK", 200); err != nil {
					t.Fatalf("PlaceBid() error = %v", err)
				}
				if _, err := h.mgr.Sell(ctx, code); err != nil {
					t.Fatalf("Sell() error = %v", err)
				}
			},
			team: "CSK", amount: 150, wantErr: auctionerrors.ErrCapacityExceeded,
		},
		{
			name:  "overseas quota",
			rules: func(a *config.AuctionConfig) { a.MaxOverseas = 1 },
			setup: func(t *testing.T, h *harness, code string) {
				ctx := context.Background()
				// Pass on the two domestic players, buy Buttler, reach Rashid.
				for range 2 {
					if _, err := h.mgr.Sell(ctx, code); err != nil {
						t.Fatalf("Sell() error = %v", err)
					}
				}
				if _, err := h.mgr.PlaceBid(ctx, code, "CSK", 100); err != nil {
					t.Fatalf("PlaceBid() error = %v", err)
				}
				if _, err := h.mgr.Sell(ctx, code); err != nil {
					t.Fatalf("Sell() error = %v", err)
				}
			},
			team: "CSK", amount: 50, wantErr: auctionerrors.ErrQuotaExceeded,
		},
		{name: "accepted", team: "CSK", amount: 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testPlayers(), tt.rules)
			code := h.room(t, "CSK")
			h.start(t, code)
			if tt.setup != nil {
				tt.setup(t, h, code)
			}
			_, err := h.mgr.PlaceBid(context.Background(), code, tt.team, tt.amount)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("PlaceBid() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("PlaceBid() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestManager_PlaceBid_NotStarted(t *testing.T) {
	h := newHarness(t, testPlayers(), nil)
	code := h.room(t)
	if _, err := h.mgr.PlaceBid(context.Background(), code, "MI", 200); !errors.Is(err, auctionerrors.ErrNotLive) {
		t.Errorf("PlaceBid() error = %v, want ErrNotLive", err)
	}
}

func TestManager_PauseFreezesTimer(t *testing.T) {
	h := newHarness(t, testPlayers(), nil)
	ctx := context.Background()
	code := h.room(t)
	h.start(t, code)

	h.clk.Advance(5 * time.Second)
	paused, timer, err := h.mgr.TogglePause(ctx, code)
	if err != nil {
		t.Fatalf("TogglePause() error = %v", err)
	}
	if !paused || timer != 10 {
		t.Fatalf("TogglePause() = %v, %d, want true, 10", paused, timer)
	}

	h.clk.Advance(time.Hour)
	if s := h.state(t, code); s.Timer != 10 || s.SoldStatus != nil {
		t.Fatalf("while paused: timer=%d sold=%v", s.Timer, s.SoldStatus)
	}

	paused, timer, err = h.mgr.TogglePause(ctx, code)
	if err != nil {
		t.Fatalf("TogglePause() error = %v", err)
	}
	if paused || timer != 10 {
		t.Fatalf("resume = %v, %d, want false, 10", paused, timer)
	}

	h.clk.Advance(9 * time.Second)
	if s := h.state(t, code); s.Timer != 1 {
		t.Errorf("after resume timer = %d, want 1", s.Timer)
	}
	h.clk.Advance(time.Second)
	if s := h.state(t, code); s.SoldStatus == nil {
		t.Error("timer did not expire after resume")
	}
}

func TestManager_SettleDelayIgnoresPause(t *testing.T) {
	h := newHarness(t, testPlayers(), nil)
	ctx := context.Background()
	code := h.room(t)
	h.start(t, code)

	h.clk.Advance(15 * time.Second)
	h.state(t, code)
	if _, _, err := h.mgr.TogglePause(ctx, code); err != nil {
		t.Fatalf("TogglePause() error = %v", err)
	}
	h.clk.Advance(auction.SettleDelay)
	h.state(t, code)

	if n := len(h.ledger(t, code)); n != 1 {
		t.Fatalf("ledger has %d entries, want 1", n)
	}
}

func TestManager_UpdateSettings(t *testing.T) {
	h := newHarness(t, testPlayers(), nil)
	ctx := context.Background()
	code := h.room(t, "CSK")

	if _, err := h.mgr.UpdateSettings(ctx, code, 0); !errors.Is(err, auctionerrors.ErrValidation) {
		t.Errorf("UpdateSettings(0) error = %v, want validation", err)
	}
	got, err := h.mgr.UpdateSettings(ctx, code, 30)
	if err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	if got != 30 {
		t.Errorf("UpdateSettings() = %d, want 30", got)
	}

	s := h.start(t, code)
	if s.Timer != 30 || s.DefaultTimer != 30 {
		t.Errorf("timer = %d default = %d, want 30", s.Timer, s.DefaultTimer)
	}
	timer, err := h.mgr.PlaceBid(ctx, code, "CSK", 200)
	if err != nil {
		t.Fatalf("PlaceBid() error = %v", err)
	}
	if timer != 30 {
		t.Errorf("new timer = %d, want 30", timer)
	}
}

func TestManager_StartIsIdempotent(t *testing.T) {
	h := newHarness(t, testPlayers(), nil)
	code := h.room(t)
	h.start(t, code)

	h.clk.Advance(4 * time.Second)
	s := h.start(t, code)
	if s.Timer != 11 || currentID(s) != 1 {
		t.Errorf("second start: timer=%d player=%d, want 11 and 1", s.Timer, currentID(s))
	}
}

func TestManager_Start_EmptyCatalog(t *testing.T) {
	h := newHarness(t, nil, nil)
	code := h.room(t)
	if _, err := h.mgr.Start(context.Background(), code); !errors.Is(err, auctionerrors.ErrEmptyCatalog) {
		t.Errorf("Start() error = %v, want ErrEmptyCatalog", err)
	}
}

func TestManager_CatalogExhausted(t *testing.T) {
	h := newHarness(t, testPlayers()[:1], nil)
	ctx := context.Background()
	code := h.room(t)
	h.start(t, code)

	hasNext, err := h.mgr.Sell(ctx, code)
	if err != nil {
		t.Fatalf("Sell() error = %v", err)
	}
	if hasNext {
		t.Error("Sell() hasNext = true on the last player")
	}
	s := h.state(t, code)
	if s.IsLive || currentID(s) != 1 {
		t.Errorf("after last player: live=%v player=%d", s.IsLive, currentID(s))
	}
	if _, err := h.mgr.Start(ctx, code); !errors.Is(err, auctionerrors.ErrEmptyCatalog) {
		t.Errorf("Start() error = %v, want ErrEmptyCatalog", err)
	}
	if _, err := h.mgr.Sell(ctx, code); !errors.Is(err, auctionerrors.ErrNotLive) {
		t.Errorf("Sell() error = %v, want ErrNotLive", err)
	}
	if got := h.pub.types(); got[len(got)-1] != event.CatalogExhausted {
		t.Errorf("last event = %s, want %s", got[len(got)-1], event.CatalogExhausted)
	}
}

func TestManager_FinalizeExactlyOnce(t *testing.T) {
	h := newHarness(t, testPlayers(), nil)
	ctx := context.Background()
	code := h.room(t, "CSK")
	h.start(t, code)
	if _, err := h.mgr.PlaceBid(ctx, code, "CSK", 250); err != nil {
		t.Fatalf("PlaceBid() error = %v", err)
	}
	h.clk.Advance(15 * time.Second)
	h.state(t, code)
	h.clk.Advance(auction.SettleDelay)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.mgr.State(ctx, code, "CSK"); err != nil {
				t.Errorf("State() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if n := len(h.ledger(t, code)); n != 1 {
		t.Fatalf("ledger has %d entries, want 1", n)
	}
	if got := h.budget(t, code, "CSK"); got != "117.50" {
		t.Errorf("CSK budget = %s, want 117.50", got)
	}
}

func TestManager_ConcurrentBids(t *testing.T) {
	h := newHarness(t, testPlayers(), nil)
	ctx := context.Background()
	teams := []string{"CSK", "RCB", "KKR", "DC", "PBKS", "RR", "SRH", "GT", "LSG"}
	code := h.room(t, teams...)
	h.start(t, code)

	var wg sync.WaitGroup
	for i, team := range teams {
		wg.Add(1)
		go func(team string, amount int) {
			defer wg.Done()
			_, err := h.mgr.PlaceBid(ctx, code, team, amount)
			if err != nil && !errors.Is(err, auctionerrors.ErrBidTooLow) {
				t.Errorf("PlaceBid(%s, %d) error = %v", team, amount, err)
			}
		}(team, 200+10*i)
	}
	wg.Wait()

	s := h.state(t, code)
	if s.CurrentBid != 280 || *s.HighestBidder != "LSG" {
		t.Errorf("standing bid = %d by %v, want 280 by LSG", s.CurrentBid, *s.HighestBidder)
	}
}

func TestManager_EndAuctionAndSelection(t *testing.T) {
	h := newHarness(t, testPlayers(), func(a *config.AuctionConfig) {
		a.QualifySquad = 1
		a.LineupSize = 2
	})
	ctx := context.Background()
	code := h.room(t, "CSK")
	h.start(t, code)

	if _, err := h.mgr.PlaceBid(ctx, code, "MI", 200); err != nil {
		t.Fatalf("PlaceBid() error = %v", err)
	}
	if _, err := h.mgr.Sell(ctx, code); err != nil {
		t.Fatalf("Sell() error = %v", err)
	}
	if err := h.mgr.Skip(ctx, code); err != nil {
		t.Fatalf("Skip() error = %v", err)
	}

	if _, err := h.mgr.SubmitLineup(ctx, code, "MI", []int64{1, 3}); !errors.Is(err, auctionerrors.ErrWrongPhase) {
		t.Errorf("SubmitLineup() before end error = %v, want ErrWrongPhase", err)
	}

	qualified, err := h.mgr.EndAuction(ctx, code)
	if err != nil {
		t.Fatalf("EndAuction() error = %v", err)
	}
	if qualified != 1 {
		t.Errorf("qualified = %d, want 1", qualified)
	}
	entries := h.ledger(t, code)
	if len(entries) != 2 || entries[1].Outcome != store.OutcomeSkipped {
		t.Errorf("pending skip was not finalized: %+v", entries)
	}

	s := h.state(t, code)
	if s.Status != store.StatusSelection || s.IsLive || s.IsPaused {
		t.Errorf("after end: %+v", s)
	}
	if _, err := h.mgr.PlaceBid(ctx, code, "CSK", 500); !errors.Is(err, auctionerrors.ErrNotLive) {
		t.Errorf("PlaceBid() after end error = %v, want ErrNotLive", err)
	}
	if _, err := h.mgr.EndAuction(ctx, code); !errors.Is(err, auctionerrors.ErrWrongPhase) {
		t.Errorf("second EndAuction() error = %v, want ErrWrongPhase", err)
	}
	if _, err := h.mgr.Winner(ctx, code); !errors.Is(err, auctionerrors.ErrNotCompleted) {
		t.Errorf("Winner() error = %v, want ErrNotCompleted", err)
	}

	if _, err := h.mgr.SubmitLineup(ctx, code, "CSK", []int64{1, 3}); !errors.Is(err, auctionerrors.ErrNotQualified) {
		t.Errorf("SubmitLineup(CSK) error = %v, want ErrNotQualified", err)
	}
	status, err := h.mgr.SubmitLineup(ctx, code, "MI", []int64{1, 3})
	if err != nil {
		t.Fatalf("SubmitLineup() error = %v", err)
	}
	if status != store.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", status)
	}

	board, err := h.mgr.Winner(ctx, code)
	if err != nil {
		t.Fatalf("Winner() error = %v", err)
	}
	if len(board) != 1 {
		t.Fatalf("Winner() = %+v, want one standing", board)
	}
	want := registry.Standing{Rank: 1, Team: "MI", Score: board[0].Score, Username: "alice"}
	if board[0] != want {
		t.Errorf("Winner() = %+v, want %+v", board[0], want)
	}
}

func TestManager_EventStoreFailureDoesNotFailBid(t *testing.T) {
	h := newHarness(t, testPlayers(), nil)
	code := h.room(t, "CSK")
	h.start(t, code)

	rules := config.Defaults().Auction
	cat := catalog.New(h.repos.Players)
	tp := noop.NewTracerProvider()
	mgr := auction.NewManager(auction.Deps{
		Rooms:    h.repos.Rooms,
		Ledger:   h.repos.Ledger,
		Catalog:  cat,
		Registry: registry.New(h.repos.Participants, h.repos.Ledger, cat, rules, slog.Default(), tp),
		Events:   failingEventStore{h.repos.Events},
	}, rules, slog.Default(), tp, h.clk)

	if _, err := mgr.PlaceBid(context.Background(), code, "CSK", 200); err != nil {
		t.Fatalf("PlaceBid() error = %v", err)
	}
}

func TestManager_Upcoming(t *testing.T) {
	h := newHarness(t, testPlayers(), nil)
	ctx := context.Background()
	code := h.room(t)

	all, err := h.mgr.Upcoming(ctx, code)
	if err != nil {
		t.Fatalf("Upcoming() error = %v", err)
	}
	if len(all) != 4 {
		t.Errorf("before start Upcoming() = %d players, want 4", len(all))
	}

	h.start(t, code)
	rest, err := h.mgr.Upcoming(ctx, code)
	if err != nil {
		t.Fatalf("Upcoming() error = %v", err)
	}
	if len(rest) != 3 || rest[0].ID != 2 {
		t.Errorf("Upcoming() = %+v", rest)
	}
}

func TestManager_StateUserBudget(t *testing.T) {
	h := newHarness(t, testPlayers(), nil)
	code := h.room(t, "CSK")

	s, err := h.mgr.State(context.Background(), code, "CSK")
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if s.UserBudget == nil || s.UserBudget.StringFixed(2) != "120.00" {
		t.Errorf("UserBudget = %v", s.UserBudget)
	}
	if s.PlayersJoined != 2 || s.TotalPlayersLimit != 10 {
		t.Errorf("joined = %d limit = %d", s.PlayersJoined, s.TotalPlayersLimit)
	}

	s, err = h.mgr.State(context.Background(), code, "nobody")
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if s.UserBudget != nil {
		t.Errorf("UserBudget for unknown team = %v, want nil", s.UserBudget)
	}

	if _, err := h.mgr.State(context.Background(), "NOPE1", ""); !errors.Is(err, auctionerrors.ErrRoomNotFound) {
		t.Errorf("State() error = %v, want ErrRoomNotFound", err)
	}
}

func TestManager_StartWhilePausedKeepsFrozenTimer(t *testing.T) {
	h := newHarness(t, testPlayers(), nil)
	ctx := context.Background()
	code := h.room(t)
	h.start(t, code)

	h.clk.Advance(5 * time.Second)
	if _, _, err := h.mgr.TogglePause(ctx, code); err != nil {
		t.Fatalf("TogglePause() error = %v", err)
	}
	h.clk.Advance(time.Minute)

	s := h.start(t, code)
	if !s.IsPaused || s.Timer != 10 {
		t.Fatalf("Start() on paused room: paused=%v timer=%d, want true, 10", s.IsPaused, s.Timer)
	}
	if got := h.pub.types(); got[len(got)-1] != event.AuctionPaused {
		t.Errorf("last event = %s, want %s", got[len(got)-1], event.AuctionPaused)
	}
}

func TestManager_TogglePauseOutsideLiveBidding(t *testing.T) {
	h := newHarness(t, testPlayers(), nil)
	ctx := context.Background()

	idle := h.room(t)
	if _, _, err := h.mgr.TogglePause(ctx, idle); !errors.Is(err, auctionerrors.ErrNotLive) {
		t.Errorf("TogglePause() before start error = %v, want ErrNotLive", err)
	}

	ended := h.room(t)
	h.start(t, ended)
	if _, err := h.mgr.EndAuction(ctx, ended); err != nil {
		t.Fatalf("EndAuction() error = %v", err)
	}
	if _, _, err := h.mgr.TogglePause(ctx, ended); !errors.Is(err, auctionerrors.ErrWrongPhase) {
		t.Errorf("TogglePause() after end error = %v, want ErrWrongPhase", err)
	}
	r, err := h.mgr.Room(ctx, ended)
	if err != nil {
		t.Fatalf("Room() error = %v", err)
	}
	if r.IsPaused {
		t.Error("ended room was marked paused")
	}
}

// readingPublisher reads the room it publishes for, which only succeeds
// once the room lock has been released.
type readingPublisher struct {
	mgr *auction.Manager

	mu      sync.Mutex
	code    string
	blocked int
}

func (p *readingPublisher) Publish(ctx context.Context, _ ...event.Event) error {
	p.mu.Lock()
	code := p.code
	p.mu.Unlock()
	if code == "" {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.mgr.State(context.WithoutCancel(ctx), code, "")
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		p.mu.Lock()
		p.blocked++
		p.mu.Unlock()
	}
	return nil
}

func TestManager_PublishesAfterReleasingRoom(t *testing.T) {
	h := newHarness(t, testPlayers(), nil)
	pub := &readingPublisher{}
	mgr := h.replica(pub)
	pub.mgr = mgr

	ctx := context.Background()
	r, err := mgr.CreateRoom(ctx, "alice", "MI", true)
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}
	if _, err := mgr.Start(ctx, r.Code); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	pub.mu.Lock()
	pub.code = r.Code
	pub.mu.Unlock()

	if _, err := mgr.PlaceBid(ctx, r.Code, "MI", 200); err != nil {
		t.Fatalf("PlaceBid() error = %v", err)
	}
	if _, err := mgr.Sell(ctx, r.Code); err != nil {
		t.Fatalf("Sell() error = %v", err)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.blocked != 0 {
		t.Errorf("%d publishes ran while the room was locked", pub.blocked)
	}
}

func TestManager_TimerDriverPicksUpRoomStartedOnAnotherReplica(t *testing.T) {
	h := newHarness(t, testPlayers(), func(a *config.AuctionConfig) {
		a.TickInterval = 2 * time.Millisecond
		a.RescanInterval = 10 * time.Millisecond
	})
	follower := h.replica(&recordingPublisher{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.mgr.RunTimers(ctx) }()

	code := h.room(t, "CSK")
	if _, err := follower.Start(context.Background(), code); err != nil {
		t.Fatalf("Start() on follower error = %v", err)
	}

	sched := h.mgr.Scheduler()
	waitFor(t, "leader to watch the room", func() bool { return sched.Watching(code) })

	h.clk.Advance(15 * time.Second)
	waitFor(t, "pending resolution", func() bool {
		r, err := h.mgr.Room(context.Background(), code)
		return err == nil && r.Resolution != nil
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunTimers() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunTimers() did not return after cancel")
	}
}
