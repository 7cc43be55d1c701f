package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type identifies an event kind.
type Type string

const (
	RoomCreated       Type = "room.created"
	ParticipantJoined Type = "room.participant_joined"
	SettingsUpdated   Type = "room.settings_updated"

	AuctionStarted Type = "auction.started"
	AuctionPaused  Type = "auction.paused"
	AuctionResumed Type = "auction.resumed"
	AuctionEnded   Type = "auction.ended"

	BidPlaced         Type = "auction.bid_placed"
	ResolutionPending Type = "auction.resolution_pending"
	PlayerFinalized   Type = "auction.player_finalized"
	PlayerUp          Type = "auction.player_up"
	CatalogExhausted  Type = "auction.catalog_exhausted"

	LineupSubmitted Type = "selection.lineup_submitted"
	RoomCompleted   Type = "selection.completed"
)

// Event represents a single domain event. AggregateID is the room ID and
// Version the room version the event was recorded against.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	Version     int             `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// New builds an event with a fresh ID, marshalling data as its payload.
func New(aggregateID string, t Type, version int, at time.Time, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshalling %s payload: %w", t, err)
	}
	return Event{
		ID:          uuid.NewString(),
		AggregateID: aggregateID,
		Type:        t,
		Data:        raw,
		Version:     version,
		CreatedAt:   at,
	}, nil
}

// RoomCreatedData is the payload for RoomCreated events.
type RoomCreatedData struct {
	Code     string `json:"code"`
	HostName string `json:"host_name"`
	Team     string `json:"team"`
	IsPublic bool   `json:"is_public"`
}

// ParticipantJoinedData is the payload for ParticipantJoined events.
type ParticipantJoinedData struct {
	Username string `json:"username"`
	Team     string `json:"team"`
}

// SettingsUpdatedData is the payload for SettingsUpdated events.
type SettingsUpdatedData struct {
	TimerSeconds int `json:"timer_seconds"`
}

// PlayerData identifies the player an event is about.
type PlayerData struct {
	PlayerID   int64  `json:"player_id"`
	PlayerName string `json:"player_name"`
	BasePrice  int    `json:"base_price,omitempty"`
}

// PauseData is the payload for AuctionPaused and AuctionResumed events.
type PauseData struct {
	TimerSeconds int `json:"timer_seconds"`
}

// BidPlacedData is the payload for BidPlaced events.
type BidPlacedData struct {
	PlayerData
	Team   string `json:"team"`
	Amount int    `json:"amount"`
}

// ResolutionData is the payload for ResolutionPending and PlayerFinalized
// events. Team and Price are only set for SOLD.
type ResolutionData struct {
	PlayerData
	Outcome string  `json:"outcome"`
	Team    *string `json:"team,omitempty"`
	Price   *int    `json:"price,omitempty"`
}

// AuctionEndedData is the payload for AuctionEnded events.
type AuctionEndedData struct {
	QualifiedCount int `json:"qualified_count"`
}

// LineupSubmittedData is the payload for LineupSubmitted events.
type LineupSubmittedData struct {
	Team  string  `json:"team"`
	Score float64 `json:"score"`
}
