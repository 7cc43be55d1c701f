package event

import (
	"encoding/json"
	"fmt"
)

// Describe renders an event as an audit-log line. Unknown or undecodable
// events fall back to their type.
func Describe(e Event) string {
	switch e.Type {
	case RoomCreated:
		var d RoomCreatedData
		if json.Unmarshal(e.Data, &d) == nil {
			return fmt.Sprintf("Room %s created by %s (%s)", d.Code, d.HostName, d.Team)
		}
	case ParticipantJoined:
		var d ParticipantJoinedData
		if json.Unmarshal(e.Data, &d) == nil {
			return fmt.Sprintf("%s joined as %s", d.Username, d.Team)
		}
	case SettingsUpdated:
		var d SettingsUpdatedData
		if json.Unmarshal(e.Data, &d) == nil {
			return fmt.Sprintf("Timer set to %ds", d.TimerSeconds)
		}
	case AuctionStarted:
		var d PlayerData
		if json.Unmarshal(e.Data, &d) == nil && d.PlayerName != "" {
			return fmt.Sprintf("Auction Started with %s", d.PlayerName)
		}
		return "Auction Started"
	case AuctionPaused:
		return "Auction Paused"
	case AuctionResumed:
		return "Auction Resumed"
	case BidPlaced:
		var d BidPlacedData
		if json.Unmarshal(e.Data, &d) == nil {
			return fmt.Sprintf("%s bid %dL for %s", d.Team, d.Amount, d.PlayerName)
		}
	case ResolutionPending:
		var d ResolutionData
		if json.Unmarshal(e.Data, &d) == nil {
			return fmt.Sprintf("%s: %s (pending)", d.Outcome, d.PlayerName)
		}
	case PlayerFinalized:
		var d ResolutionData
		if json.Unmarshal(e.Data, &d) == nil {
			if d.Team != nil && d.Price != nil {
				return fmt.Sprintf("%s: %s to %s for %dL", d.Outcome, d.PlayerName, *d.Team, *d.Price)
			}
			return fmt.Sprintf("%s: %s", d.Outcome, d.PlayerName)
		}
	case PlayerUp:
		var d PlayerData
		if json.Unmarshal(e.Data, &d) == nil {
			return fmt.Sprintf("Now bidding: %s (base %dL)", d.PlayerName, d.BasePrice)
		}
	case CatalogExhausted:
		return "No more players - auction complete"
	case AuctionEnded:
		var d AuctionEndedData
		if json.Unmarshal(e.Data, &d) == nil {
			return fmt.Sprintf("Auction Ended: %d teams qualified", d.QualifiedCount)
		}
	case LineupSubmitted:
		var d LineupSubmittedData
		if json.Unmarshal(e.Data, &d) == nil {
			return fmt.Sprintf("%s submitted their playing XI", d.Team)
		}
	case RoomCompleted:
		return "Winner Declared"
	}
	return string(e.Type)
}
