package auction

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/cricket-auction/internal/auctionerrors"
	"github.com/jensholdgaard/cricket-auction/internal/config"
	"github.com/jensholdgaard/cricket-auction/internal/ledger"
	"github.com/jensholdgaard/cricket-auction/internal/store"
)

// SettleDelay is how long a SOLD, UNSOLD or SKIPPED banner stays up before
// the outcome is written to the ledger. It keeps running while paused.
const SettleDelay = time.Second

// Remaining returns the seconds left on the bidding timer at now. The timer
// is reconstructed from the anchor rather than ticked, and only runs while
// the room is live and unpaused.
func Remaining(r *store.Room, now time.Time) int {
	if !r.IsLive || r.IsPaused || r.TimerAnchor == nil {
		return r.TimerSeconds
	}
	elapsed := int(now.Sub(*r.TimerAnchor) / time.Second)
	return max(0, r.TimerSeconds-elapsed)
}

// BidIncrement returns the suggested raise in Lakhs for a bid of amount.
// Clients use it for their bid buttons; bids are not required to land on it.
func BidIncrement(amount int) int {
	switch {
	case amount >= 200:
		return 20
	case amount >= 100:
		return 10
	default:
		return 5
	}
}

type step int

const (
	stepIdle step = iota
	stepPending
	stepFinalize
)

// tick advances r to now. A live timer that has run out enters its pending
// resolution; a pending resolution older than SettleDelay is due for
// finalize, which the caller performs.
func tick(r *store.Room, now time.Time) step {
	if r.Resolution != nil {
		if r.ResolutionAt == nil || now.Sub(*r.ResolutionAt) >= SettleDelay {
			return stepFinalize
		}
		return stepIdle
	}
	if !r.IsLive || r.IsPaused || r.CurrentPlayerID == nil || Remaining(r, now) > 0 {
		return stepIdle
	}
	if r.HighestBidder != nil {
		resolve(r, store.OutcomeSold, now)
	} else {
		resolve(r, store.OutcomeUnsold, now)
	}
	return stepPending
}

// resolve fills the pending-resolution slot. SOLD takes the standing bid.
func resolve(r *store.Room, outcome store.Outcome, now time.Time) {
	r.Resolution = &outcome
	r.ResolutionAt = &now
	r.ResolutionTeam = nil
	r.ResolutionPrice = nil
	if outcome == store.OutcomeSold {
		team, price := *r.HighestBidder, r.CurrentBid
		r.ResolutionTeam = &team
		r.ResolutionPrice = &price
	}
}

func clearResolution(r *store.Room) {
	r.Resolution = nil
	r.ResolutionAt = nil
	r.ResolutionTeam = nil
	r.ResolutionPrice = nil
}

// ledgerEntry builds the entry for the current player's pending resolution.
func ledgerEntry(r *store.Room, p *store.Player, home string) *store.LedgerEntry {
	e := &store.LedgerEntry{
		RoomID:   r.ID,
		PlayerID: p.ID,
		Outcome:  *r.Resolution,
		Overseas: ledger.IsOverseas(p.Country, home),
	}
	if *r.Resolution == store.OutcomeSold {
		team, price := *r.ResolutionTeam, *r.ResolutionPrice
		e.Team = &team
		e.Price = &price
	}
	return e
}

func rearm(r *store.Room, now time.Time) {
	r.TimerSeconds = r.DefaultTimer
	r.TimerAnchor = &now
}

// present puts p on the block with its base price as the opening bid.
func present(r *store.Room, p *store.Player, now time.Time) {
	id := p.ID
	r.CurrentPlayerID = &id
	r.CurrentBid = p.BasePrice
	r.HighestBidder = nil
	rearm(r, now)
}

// togglePause freezes the remaining time on pause and re-anchors on resume.
func togglePause(r *store.Room, now time.Time) {
	if !r.IsPaused {
		r.TimerSeconds = Remaining(r, now)
		r.IsPaused = true
		return
	}
	r.IsPaused = false
	r.TimerAnchor = &now
}

// bid is a bid under consideration together with what the bidder owns.
type bid struct {
	team     string
	amount   int
	bidder   *store.Participant
	tally    ledger.Tally
	player   *store.Player
	overseas bool
}

// checkBid applies the bidding rules in order. It never mutates r.
func checkBid(r *store.Room, b bid, rules config.AuctionConfig) error {
	switch {
	case r.IsPaused:
		return auctionerrors.ErrPaused
	case !r.IsLive || r.Status != store.StatusLive || r.CurrentPlayerID == nil:
		return auctionerrors.ErrNotLive
	case r.Resolution != nil:
		return auctionerrors.ErrResolutionPending
	case b.bidder == nil:
		return auctionerrors.ErrTeamNotFound
	case b.bidder.SquadCount >= rules.MaxSquad:
		return auctionerrors.ErrCapacityExceeded.WithMessage("Squad Limit (%d) Reached!", rules.MaxSquad)
	case r.HighestBidder != nil && *r.HighestBidder == b.team:
		return auctionerrors.ErrSelfOutbid
	case b.overseas && b.tally.Overseas >= rules.MaxOverseas:
		return auctionerrors.ErrQuotaExceeded.WithMessage("Overseas Player Limit (%d) Reached!", rules.MaxOverseas)
	case decimal.NewFromInt(int64(b.amount)).GreaterThan(b.bidder.Budget.Mul(store.LakhsPerCrore)):
		return auctionerrors.ErrInsufficientFunds
	}

	if r.HighestBidder != nil {
		if b.amount <= r.CurrentBid {
			return auctionerrors.ErrBidTooLow.WithMessage("Bid must be higher than %dL", r.CurrentBid)
		}
		return nil
	}
	if opening := max(r.CurrentBid, b.player.BasePrice); b.amount < opening {
		return auctionerrors.ErrBidTooLow.WithMessage("Opening bid must be at least %dL", opening)
	}
	return nil
}

func acceptBid(r *store.Room, team string, amount int, now time.Time) {
	r.CurrentBid = amount
	r.HighestBidder = &team
	rearm(r, now)
}
