// Package evaluator scores a submitted playing XI. The weights are part of
// the game and must not be tuned.
package evaluator

import (
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/jensholdgaard/cricket-auction/internal/store"
)

const (
	priceCeiling = 200.0 // Lakhs; base prices at or above score 100
	minIndex     = 10.0
	maxIndex     = 99.0

	noKeeperPenalty    = 50.0
	bowlingDepth       = 5
	bowlingSlotPenalty = 10.0
	battingDepth       = 5
	shallowBatPenalty  = 20.0
	varianceLow        = -10
	varianceHigh       = 20
)

// Composition counts the lineup by role. Players without a recognised role
// count as batsmen.
type Composition struct {
	Batsmen       int `json:"batsmen"`
	Bowlers       int `json:"bowlers"`
	AllRounders   int `json:"all_rounders"`
	WicketKeepers int `json:"wicket_keepers"`
}

// BowlingOptions is bowlers plus all-rounders.
func (c Composition) BowlingOptions() int { return c.Bowlers + c.AllRounders }

// BattingOptions is batsmen, keepers and all-rounders.
func (c Composition) BattingOptions() int { return c.Batsmen + c.WicketKeepers + c.AllRounders }

// Result is the outcome of Evaluate.
type Result struct {
	Score       float64     `json:"score"`
	RawIndex    float64     `json:"raw_index"`
	Penalty     float64     `json:"penalty"`
	Composition Composition `json:"composition"`
}

// PowerIndex rates one player in [10, 99] to one decimal place.
func PowerIndex(p store.Player) float64 {
	price := math.Min(float64(p.BasePrice)/priceCeiling, 1.0) * 100
	bonus := roleBonus(p.Role)

	var index float64
	if p.BattingRuns > 0 || p.Wickets > 0 {
		bat := p.BattingAvg*0.4 + p.StrikeRate*0.2
		bowl := float64(p.Wickets)*2.0 + (10-p.Economy)*2
		index = math.Max(bat, bowl)*0.7 + bonus*0.3
	} else {
		index = price*0.6 + bonus*0.2 + float64(HiddenVariance(p.Name))
	}

	return round1(math.Max(minIndex, math.Min(maxIndex, index)))
}

// HiddenVariance maps a player's name onto [-10, 20]. It depends only on
// the bytes of the name.
func HiddenVariance(name string) int {
	span := uint64(varianceHigh - varianceLow + 1)
	return varianceLow + int(xxhash.Sum64String(name)%span)
}

// Evaluate scores a lineup: the sum of power indices less composition
// penalties, rounded to one decimal place.
func Evaluate(lineup []store.Player) Result {
	var (
		raw  float64
		comp Composition
	)
	for _, p := range lineup {
		raw += PowerIndex(p)
		switch p.Role {
		case store.RoleWicketKeeper:
			comp.WicketKeepers++
		case store.RoleAllRounder:
			comp.AllRounders++
		case store.RoleBowler:
			comp.Bowlers++
		default:
			comp.Batsmen++
		}
	}

	var penalty float64
	if comp.WicketKeepers == 0 {
		penalty += noKeeperPenalty
	}
	if n := comp.BowlingOptions(); n < bowlingDepth {
		penalty += float64(bowlingDepth-n) * bowlingSlotPenalty
	}
	if comp.BattingOptions() < battingDepth {
		penalty += shallowBatPenalty
	}

	return Result{
		Score:       round1(raw - penalty),
		RawIndex:    raw,
		Penalty:     penalty,
		Composition: comp,
	}
}

func roleBonus(r store.Role) float64 {
	switch r {
	case store.RoleAllRounder:
		return 15
	case store.RoleWicketKeeper:
		return 10
	case store.RoleBowler, store.RoleBatsman:
		return 5
	default:
		return 0
	}
}

// round1 rounds to one decimal place, ties to even.
func round1(x float64) float64 {
	return math.RoundToEven(x*10) / 10
}
