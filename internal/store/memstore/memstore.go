// Package memstore provides an in-memory store.Driver. It enforces the same
// uniqueness, version and finalize rules as the SQL drivers and is used for
// single-process deployments and engine tests.
package memstore

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jensholdgaard/cricket-auction/internal/clock"
	"github.com/jensholdgaard/cricket-auction/internal/config"
	"github.com/jensholdgaard/cricket-auction/internal/event"
	"github.com/jensholdgaard/cricket-auction/internal/store"
)

func init() {
	store.Register("memory", func(_ context.Context, _ config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
		return New(clk).Repositories(), nil
	})
}

type ledgerKey struct {
	roomID   string
	playerID int64
}

// Store holds every table in memory behind a single mutex.
type Store struct {
	mu    sync.Mutex
	clock clock.Clock

	players      map[int64]store.Player
	nextPlayerID int64
	rooms        map[string]*store.Room // by code
	participants map[string][]*store.Participant
	ledger       []store.LedgerEntry
	ledgerIndex  map[ledgerKey]struct{}
	teams        map[string]store.Team
	chat         map[string][]store.ChatMessage
	events       []event.Event
}

// New returns an empty Store.
func New(clk clock.Clock) *Store {
	return &Store{
		clock:        clk,
		players:      make(map[int64]store.Player),
		rooms:        make(map[string]*store.Room),
		participants: make(map[string][]*store.Participant),
		ledgerIndex:  make(map[ledgerKey]struct{}),
		teams:        make(map[string]store.Team),
		chat:         make(map[string][]store.ChatMessage),
	}
}

// Repositories returns repository views over s.
func (s *Store) Repositories() *store.Repositories {
	return &store.Repositories{
		Players:      playerRepo{s},
		Rooms:        roomRepo{s},
		Participants: participantRepo{s},
		Ledger:       ledgerRepo{s},
		Chat:         chatRepo{s},
		Events:       eventStore{s},
		Closer:       io.NopCloser(nil),
		Ping:         func(context.Context) error { return nil },
	}
}

// Teams returns the team names created by SOLD entries.
func (s *Store) Teams() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.teams))
	for n := range s.teams {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type playerRepo struct{ s *Store }

func (r playerRepo) Import(_ context.Context, players []store.Player) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range players {
		p := &players[i]
		if p.ID == 0 {
			r.s.nextPlayerID++
			p.ID = r.s.nextPlayerID
		} else if _, ok := r.s.players[p.ID]; ok {
			return fmt.Errorf("importing player %d: %w", p.ID, store.ErrConflict)
		}
		if p.ID > r.s.nextPlayerID {
			r.s.nextPlayerID = p.ID
		}
		r.s.players[p.ID] = *p
	}
	return nil
}

func (r playerRepo) GetByID(_ context.Context, id int64) (*store.Player, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.players[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (r playerRepo) List(_ context.Context) ([]store.Player, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]store.Player, 0, len(r.s.players))
	for _, p := range r.s.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SetNo != out[j].SetNo {
			return out[i].SetNo < out[j].SetNo
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type roomRepo struct{ s *Store }

func (r roomRepo) Create(_ context.Context, room *store.Room) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rooms[room.Code]; ok {
		return fmt.Errorf("creating room %s: %w", room.Code, store.ErrConflict)
	}
	room.CreatedAt = r.s.clock.Now().UTC()
	room.Version = 1
	cp := *room
	r.s.rooms[room.Code] = &cp
	return nil
}

func (r roomRepo) GetByCode(_ context.Context, code string) (*store.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	room, ok := r.s.rooms[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *room
	return &cp, nil
}

func (r roomRepo) Update(_ context.Context, room *store.Room) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.updateRoom(room)
}

// updateRoom must be called with s.mu held.
func (s *Store) updateRoom(room *store.Room) error {
	cur, ok := s.rooms[room.Code]
	if !ok || cur.ID != room.ID || cur.Version != room.Version {
		return fmt.Errorf("updating room %s at version %d: %w", room.Code, room.Version, store.ErrStale)
	}
	room.Version++
	cp := *room
	s.rooms[room.Code] = &cp
	return nil
}

func (r roomRepo) ListPublic(_ context.Context) ([]store.Room, error) {
	return r.list(func(room *store.Room) bool {
		return room.IsPublic && room.Status == store.StatusLive
	}, true), nil
}

func (r roomRepo) ListLive(_ context.Context) ([]store.Room, error) {
	return r.list(func(room *store.Room) bool { return room.IsLive }, false), nil
}

func (r roomRepo) list(keep func(*store.Room) bool, newestFirst bool) []store.Room {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []store.Room
	for _, room := range r.s.rooms {
		if keep(room) {
			out = append(out, *room)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt) != newestFirst
		}
		return out[i].Code < out[j].Code
	})
	return out
}

type participantRepo struct{ s *Store }

func (r participantRepo) Create(_ context.Context, p *store.Participant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.participants[p.RoomID] {
		if existing.Team == p.Team {
			return fmt.Errorf("team %s: %w", p.Team, store.ErrConflict)
		}
	}
	p.JoinedAt = r.s.clock.Now().UTC()
	r.s.participants[p.RoomID] = append(r.s.participants[p.RoomID], cloneParticipant(p))
	return nil
}

func (r participantRepo) Get(_ context.Context, roomID, team string) (*store.Participant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p := r.s.findParticipant(roomID, team)
	if p == nil {
		return nil, store.ErrNotFound
	}
	return cloneParticipant(p), nil
}

func (r participantRepo) ListByRoom(_ context.Context, roomID string) ([]store.Participant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ps := r.s.participants[roomID]
	out := make([]store.Participant, 0, len(ps))
	for _, p := range ps {
		out = append(out, *cloneParticipant(p))
	}
	return out, nil
}

func (r participantRepo) Count(_ context.Context, roomID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.participants[roomID]), nil
}

func (r participantRepo) UpdateStanding(_ context.Context, p *store.Participant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur := r.s.findParticipant(p.RoomID, p.Team)
	if cur == nil || cur.ID != p.ID {
		return fmt.Errorf("participant %s: %w", p.ID, store.ErrNotFound)
	}
	cur.SquadCount = p.SquadCount
	cur.IsQualified = p.IsQualified
	return nil
}

func (r participantRepo) SaveLineup(_ context.Context, p *store.Participant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur := r.s.findParticipant(p.RoomID, p.Team)
	if cur == nil || cur.ID != p.ID {
		return fmt.Errorf("participant %s: %w", p.ID, store.ErrNotFound)
	}
	cur.Lineup = slices.Clone(p.Lineup)
	cur.FinalScore = p.FinalScore
	cur.Submitted = true
	p.Submitted = true
	return nil
}

// findParticipant must be called with s.mu held.
func (s *Store) findParticipant(roomID, team string) *store.Participant {
	for _, p := range s.participants[roomID] {
		if p.Team == team {
			return p
		}
	}
	return nil
}

func cloneParticipant(p *store.Participant) *store.Participant {
	cp := *p
	cp.Lineup = slices.Clone(p.Lineup)
	return &cp
}

type ledgerRepo struct{ s *Store }

func (r ledgerRepo) Finalize(_ context.Context, e *store.LedgerEntry, room *store.Room) error {
	if e.Outcome == store.OutcomeSold && (e.Team == nil || e.Price == nil) {
		return fmt.Errorf("finalizing SOLD entry without team and price")
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := ledgerKey{roomID: room.ID, playerID: e.PlayerID}
	if _, ok := r.s.ledgerIndex[key]; ok {
		return fmt.Errorf("player %d in room %s: %w", e.PlayerID, room.Code, store.ErrConflict)
	}

	var buyer *store.Participant
	if e.Outcome == store.OutcomeSold {
		buyer = r.s.findParticipant(room.ID, *e.Team)
		if buyer == nil {
			return fmt.Errorf("buyer %s: %w", *e.Team, store.ErrNotFound)
		}
		if store.Debit(buyer.Budget, *e.Price).IsNegative() {
			return fmt.Errorf("buyer %s cannot afford %dL", *e.Team, *e.Price)
		}
	}

	// The room check goes last among the fallible steps so a failure leaves
	// nothing half-written.
	if err := r.s.updateRoom(room); err != nil {
		return err
	}

	now := r.s.clock.Now().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.RoomID = room.ID
	e.Finalized = true
	e.CreatedAt = now

	if buyer != nil {
		if _, ok := r.s.teams[*e.Team]; !ok {
			r.s.teams[*e.Team] = store.Team{Name: *e.Team, CreatedAt: now}
		}
		buyer.Budget = store.Debit(buyer.Budget, *e.Price)
		buyer.SquadCount++
	}

	r.s.ledger = append(r.s.ledger, *e)
	r.s.ledgerIndex[key] = struct{}{}
	return nil
}

func (r ledgerRepo) ListByRoom(_ context.Context, roomID string) ([]store.LedgerEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []store.LedgerEntry
	for _, e := range r.s.ledger {
		if e.RoomID == roomID {
			out = append(out, e)
		}
	}
	return out, nil
}

type chatRepo struct{ s *Store }

func (r chatRepo) Append(_ context.Context, m *store.ChatMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = r.s.clock.Now().UTC()
	r.s.chat[m.RoomID] = append(r.s.chat[m.RoomID], *m)
	return nil
}

func (r chatRepo) ListByRoom(_ context.Context, roomID string, limit int) ([]store.ChatMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	msgs := r.s.chat[roomID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return slices.Clone(msgs), nil
}

type eventStore struct{ s *Store }

func (es eventStore) Append(_ context.Context, events ...event.Event) error {
	es.s.mu.Lock()
	defer es.s.mu.Unlock()
	es.s.events = append(es.s.events, events...)
	return nil
}

func (es eventStore) Load(_ context.Context, aggregateID string) ([]event.Event, error) {
	es.s.mu.Lock()
	defer es.s.mu.Unlock()
	var out []event.Event
	for _, e := range es.s.events {
		if e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (es eventStore) LoadByType(_ context.Context, eventType event.Type) ([]event.Event, error) {
	es.s.mu.Lock()
	defer es.s.mu.Unlock()
	var out []event.Event
	for _, e := range es.s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out, nil
}
