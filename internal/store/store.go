package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Errors returned by every driver.
var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint rejects a write.
	ErrConflict = errors.New("already exists")
	// ErrStale is returned when a room was saved by someone else since it
	// was loaded.
	ErrStale = errors.New("stale room version")
)

// Player is an auctionable catalog item. Base prices are in Lakhs.
type Player struct {
	ID        int64   `db:"id" json:"id"`
	Name      string  `db:"name" json:"name"`
	Role      Role    `db:"role" json:"role"`
	Country   string  `db:"country" json:"country"`
	BasePrice int     `db:"base_price" json:"base_price"`
	SetNo     int     `db:"set_no" json:"set_no"`
	Age       *int    `db:"age" json:"age"`
	Hand      *string `db:"hand" json:"hand"`
	Bowling   *string `db:"bowling" json:"bowling"`

	BattingRuns int     `db:"batting_runs" json:"-"`
	BattingAvg  float64 `db:"batting_avg" json:"-"`
	StrikeRate  float64 `db:"strike_rate" json:"-"`
	Wickets     int     `db:"wickets" json:"-"`
	Economy     float64 `db:"economy" json:"-"`
}

// Status is a room's workflow phase.
type Status string

const (
	StatusLive        Status = "LIVE"
	StatusSelection   Status = "SELECTION"
	StatusCalculating Status = "CALCULATING"
	StatusCompleted   Status = "COMPLETED"
)

// Outcome is how a player left the block.
type Outcome string

const (
	OutcomeSold    Outcome = "SOLD"
	OutcomeUnsold  Outcome = "UNSOLD"
	OutcomeSkipped Outcome = "SKIPPED"
)

// Room is one auction session. The fields below Version are only changed
// through the auction package.
type Room struct {
	ID        string    `db:"id"`
	Code      string    `db:"code"`
	HostName  string    `db:"host_name"`
	IsPublic  bool      `db:"is_public"`
	CreatedAt time.Time `db:"created_at"`
	Version   int       `db:"version"`

	Status          Status     `db:"status"`
	IsLive          bool       `db:"is_live"`
	IsPaused        bool       `db:"is_paused"`
	CurrentPlayerID *int64     `db:"current_player_id"`
	CurrentBid      int        `db:"current_bid"`
	HighestBidder   *string    `db:"highest_bidder"`
	DefaultTimer    int        `db:"default_timer"`
	TimerSeconds    int        `db:"timer_seconds"`
	TimerAnchor     *time.Time `db:"timer_anchor"`

	Resolution      *Outcome   `db:"resolution_status"`
	ResolutionAt    *time.Time `db:"resolution_at"`
	ResolutionTeam  *string    `db:"resolution_team"`
	ResolutionPrice *int       `db:"resolution_price"`
}

// Participant is a team's seat in a room. Budget is in Crores.
type Participant struct {
	ID          string          `db:"id"`
	RoomID      string          `db:"room_id"`
	Username    string          `db:"username"`
	Team        string          `db:"team"`
	IsHost      bool            `db:"is_host"`
	Budget      decimal.Decimal `db:"budget"`
	SquadCount  int             `db:"squad_count"`
	IsQualified bool            `db:"is_qualified"`
	Submitted   bool            `db:"lineup_submitted"`
	FinalScore  float64         `db:"final_score"`
	JoinedAt    time.Time       `db:"joined_at"`

	// Lineup holds the submitted player ids. Drivers load it separately.
	Lineup []int64 `db:"-"`
}

// LedgerEntry is an immutable finalized outcome for one player in one room.
type LedgerEntry struct {
	ID       string  `db:"id"`
	RoomID   string  `db:"room_id"`
	PlayerID int64   `db:"player_id"`
	Team     *string `db:"team"`
	Price    *int    `db:"price"`
	Outcome  Outcome `db:"outcome"`
	// Overseas records whether the player counted against the buyer's
	// overseas quota when the entry was written.
	Overseas  bool      `db:"overseas"`
	Finalized bool      `db:"finalized"`
	CreatedAt time.Time `db:"created_at"`
}

// Team is the cross-room name a ledger entry is sold to.
type Team struct {
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

// ChatMessage is a line of room chat.
type ChatMessage struct {
	ID        string    `db:"id"`
	RoomID    string    `db:"room_id"`
	Sender    string    `db:"sender"`
	Message   string    `db:"message"`
	CreatedAt time.Time `db:"created_at"`
}

// PlayerRepository defines catalog persistence operations.
type PlayerRepository interface {
	// Import inserts players, assigning IDs to those without one.
	Import(ctx context.Context, players []Player) error
	GetByID(ctx context.Context, id int64) (*Player, error)
	// List returns every player ordered by (set_no, id).
	List(ctx context.Context) ([]Player, error)
}

// RoomRepository defines room persistence operations.
type RoomRepository interface {
	Create(ctx context.Context, r *Room) error
	GetByCode(ctx context.Context, code string) (*Room, error)
	// Update saves r if its version is unchanged and bumps r.Version.
	Update(ctx context.Context, r *Room) error
	// ListPublic returns public rooms that are still in the live phase,
	// newest first.
	ListPublic(ctx context.Context) ([]Room, error)
	// ListLive returns rooms whose auction is running.
	ListLive(ctx context.Context) ([]Room, error)
}

// ParticipantRepository defines participant persistence operations.
type ParticipantRepository interface {
	Create(ctx context.Context, p *Participant) error
	Get(ctx context.Context, roomID, team string) (*Participant, error)
	// ListByRoom returns a room's participants in join order.
	ListByRoom(ctx context.Context, roomID string) ([]Participant, error)
	Count(ctx context.Context, roomID string) (int, error)
	// UpdateStanding saves squad count and qualification.
	UpdateStanding(ctx context.Context, p *Participant) error
	// SaveLineup stores the lineup and score and marks it submitted.
	SaveLineup(ctx context.Context, p *Participant) error
}

// LedgerRepository defines ledger persistence operations.
type LedgerRepository interface {
	// Finalize writes e and saves room in one transaction. A SOLD entry
	// also creates its team if needed and debits the buyer by
	// price/100 Crores while incrementing their squad count. A second entry
	// for the same (room, player) fails with ErrConflict.
	Finalize(ctx context.Context, e *LedgerEntry, room *Room) error
	// ListByRoom returns a room's entries in the order they were written.
	ListByRoom(ctx context.Context, roomID string) ([]LedgerEntry, error)
}

// ChatRepository defines chat persistence operations.
type ChatRepository interface {
	Append(ctx context.Context, m *ChatMessage) error
	// ListByRoom returns the newest limit messages in chronological order.
	ListByRoom(ctx context.Context, roomID string, limit int) ([]ChatMessage, error)
}

// LakhsPerCrore converts between bid and budget units.
var LakhsPerCrore = decimal.NewFromInt(100)

// Debit returns budget reduced by a price in Lakhs.
func Debit(budget decimal.Decimal, priceLakhs int) decimal.Decimal {
	return budget.Sub(decimal.NewFromInt(int64(priceLakhs)).Div(LakhsPerCrore))
}
