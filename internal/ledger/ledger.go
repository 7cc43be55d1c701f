// Package ledger folds finalized auction outcomes into per-team tallies.
// The ledger is the source of truth that participant budgets and squad
// counts are checked against.
package ledger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/cricket-auction/internal/auctionerrors"
	"github.com/jensholdgaard/cricket-auction/internal/store"
)

// Tally is what a team has bought in one room.
type Tally struct {
	Team     string
	Players  []int64
	Overseas int
	// Spent is in Lakhs.
	Spent int
}

// Sold returns the number of players bought.
func (t Tally) Sold() int { return len(t.Players) }

// Fold tallies the finalized SOLD entries by team.
func Fold(entries []store.LedgerEntry) map[string]*Tally {
	out := make(map[string]*Tally)
	for _, e := range entries {
		if !e.Finalized || e.Outcome != store.OutcomeSold || e.Team == nil || e.Price == nil {
			continue
		}
		t, ok := out[*e.Team]
		if !ok {
			t = &Tally{Team: *e.Team}
			out[*e.Team] = t
		}
		t.Players = append(t.Players, e.PlayerID)
		t.Spent += *e.Price
		if e.Overseas {
			t.Overseas++
		}
	}
	return out
}

// TallyFor returns team's tally, empty if it has bought nothing.
func TallyFor(entries []store.LedgerEntry, team string) Tally {
	if t, ok := Fold(entries)[team]; ok {
		return *t
	}
	return Tally{Team: team}
}

// Passed returns the UNSOLD and SKIPPED entries in ledger order.
func Passed(entries []store.LedgerEntry) []store.LedgerEntry {
	var out []store.LedgerEntry
	for _, e := range entries {
		if e.Outcome == store.OutcomeUnsold || e.Outcome == store.OutcomeSkipped {
			out = append(out, e)
		}
	}
	return out
}

// IsOverseas reports whether a player from country counts against the
// overseas quota of a league based in home.
func IsOverseas(country, home string) bool {
	return !strings.EqualFold(strings.TrimSpace(country), strings.TrimSpace(home))
}

// Verify checks that every participant's squad count and budget equal the
// fold of the ledger. A mismatch means a finalize was lost or repeated.
func Verify(initial decimal.Decimal, participants []store.Participant, entries []store.LedgerEntry) error {
	tallies := Fold(entries)
	for _, p := range participants {
		t := Tally{Team: p.Team}
		if got, ok := tallies[p.Team]; ok {
			t = *got
		}
		if p.SquadCount != t.Sold() {
			return fmt.Errorf("team %s squad_count %d, ledger has %d: %w", p.Team, p.SquadCount, t.Sold(), auctionerrors.ErrInconsistent)
		}
		want := store.Debit(initial, t.Spent)
		if !p.Budget.Equal(want) {
			return fmt.Errorf("team %s budget %s, ledger implies %s: %w", p.Team, p.Budget.StringFixed(2), want.StringFixed(2), auctionerrors.ErrInconsistent)
		}
		delete(tallies, p.Team)
	}
	if len(tallies) > 0 {
		unknown := make([]string, 0, len(tallies))
		for team := range tallies {
			unknown = append(unknown, team)
		}
		sort.Strings(unknown)
		return fmt.Errorf("ledger has purchases for unknown teams %v: %w", unknown, auctionerrors.ErrInconsistent)
	}
	return nil
}
