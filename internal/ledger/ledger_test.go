package ledger_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/cricket-auction/internal/auctionerrors"
	"github.com/jensholdgaard/cricket-auction/internal/ledger"
	"github.com/jensholdgaard/cricket-auction/internal/store"
)

func ptr[T any](v T) *T { return &v }

func sold(player int64, team string, price int, overseas bool) store.LedgerEntry {
	return store.LedgerEntry{PlayerID: player, Team: ptr(team), Price: ptr(price), Outcome: store.OutcomeSold, Overseas: overseas, Finalized: true}
}

func passed(player int64, outcome store.Outcome) store.LedgerEntry {
	return store.LedgerEntry{PlayerID: player, Outcome: outcome, Finalized: true}
}

var entries = []store.LedgerEntry{
	sold(1, "MI", 220, false),
	passed(2, store.OutcomeUnsold),
	sold(3, "MI", 100, true),
	sold(4, "CSK", 50, true),
	passed(5, store.OutcomeSkipped),
}

func TestFold(t *testing.T) {
	tallies := ledger.Fold(entries)

	mi := tallies["MI"]
	if mi == nil || mi.Sold() != 2 || mi.Spent != 320 || mi.Overseas != 1 {
		t.Errorf("MI tally = %+v", mi)
	}
	csk := tallies["CSK"]
	if csk == nil || csk.Sold() != 1 || csk.Overseas != 1 {
		t.Errorf("CSK tally = %+v", csk)
	}
	if _, ok := tallies["RCB"]; ok {
		t.Error("unexpected tally for a team with no purchases")
	}

	if got := ledger.TallyFor(entries, "RCB"); got.Sold() != 0 || got.Team != "RCB" {
		t.Errorf("TallyFor(RCB) = %+v", got)
	}
}

func TestPassed(t *testing.T) {
	got := ledger.Passed(entries)
	if len(got) != 2 || got[0].PlayerID != 2 || got[1].Outcome != store.OutcomeSkipped {
		t.Errorf("Passed = %+v", got)
	}
}

func TestIsOverseas(t *testing.T) {
	tests := []struct {
		country string
		want    bool
	}{
		{"India", false},
		{"india", false},
		{" INDIA ", false},
		{"Australia", true},
		{"", true},
	}
	for _, tt := range tests {
		if got := ledger.IsOverseas(tt.country, "India"); got != tt.want {
			t.Errorf("IsOverseas(%q) = %v, want %v", tt.country, got, tt.want)
		}
	}
}

func TestVerify(t *testing.T) {
	initial := decimal.RequireFromString("120.00")
	consistent := []store.Participant{
		{Team: "MI", SquadCount: 2, Budget: decimal.RequireFromString("116.80")},
		{Team: "CSK", SquadCount: 1, Budget: decimal.RequireFromString("119.50")},
		{Team: "RCB", SquadCount: 0, Budget: initial},
	}

	tests := []struct {
		name    string
		mutate  func(ps []store.Participant)
		wantErr bool
	}{
		{name: "consistent", mutate: func([]store.Participant) {}},
		{name: "squad drift", mutate: func(ps []store.Participant) { ps[0].SquadCount = 3 }, wantErr: true},
		{name: "double debit", mutate: func(ps []store.Participant) { ps[1].Budget = decimal.RequireFromString("119.00") }, wantErr: true},
		{name: "buyer missing", mutate: func(ps []store.Participant) { ps[1].Team = "KKR" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps := append([]store.Participant(nil), consistent...)
			tt.mutate(ps)
			err := ledger.Verify(initial, ps, entries)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, auctionerrors.ErrInconsistent) {
				t.Errorf("expected ErrInconsistent, got %v", err)
			}
		})
	}
}
