package event

import (
	"testing"

	"github.com/SandroAugusto/school-of-solana/internal/domain"

	"github.com/shopspring/decimal"
)

func TestEventEntry(t *testing.T) {
	m := domain.Market{Key: domain.Identity{1}, Question: "q", TotalYes: 10, Status: domain.StatusResolved, Outcome: domain.OutcomeYes}
	b := domain.Bet{Key: domain.Identity{2}, Market: m.Key, Bettor: domain.Identity{3}, Side: domain.SideYes, Amount: 10, Withdrawn: true}
	q := decimal.NewFromInt(10)

	e := New(TypeWinningsWithdrawn, 500, b.Bettor, m)
	e.Seq = 7
	e.Bet = &b
	e.Quote = &q

	entry, err := e.Entry()
	if err != nil {
		t.Fatalf("Entry failed: %v", err)
	}
	if entry.Seq != 7 || entry.Type != "winnings_withdrawn" || entry.Market != m.Key || entry.ID != e.ID {
		t.Errorf("unexpected journal entry: %+v", entry)
	}

	entry.Seq = 8
	got, err := FromEntry(entry)
	if err != nil {
		t.Fatalf("FromEntry failed: %v", err)
	}
	if got.Seq != 8 {
		t.Errorf("expected entry seq to win, got %d", got.Seq)
	}
	if got.Market != m || got.Bet == nil || *got.Bet != b {
		t.Errorf("records not preserved: %+v", got)
	}
	if got.Quote == nil || !got.Quote.Equal(q) {
		t.Errorf("expected quote %s, got %v", q, got.Quote)
	}
}

func TestNewEventIDsAreUnique(t *testing.T) {
	a := New(TypeBetPlaced, 1, domain.Identity{}, domain.Market{})
	b := New(TypeBetPlaced, 1, domain.Identity{}, domain.Market{})
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected distinct ids, got %q and %q", a.ID, b.ID)
	}
}

func TestReleaseCommandResets(t *testing.T) {
	cmd := AcquireCommand()
	cmd.Kind = CmdPlaceBet
	cmd.Amount = 99
	cmd.Reply <- Result{}
	reply := cmd.Reply

	ReleaseCommand(cmd)

	if cmd.Kind != 0 || cmd.Amount != 0 {
		t.Errorf("command not reset: %+v", cmd)
	}
	if cmd.Reply != reply {
		t.Error("reply channel should be kept")
	}
	if len(cmd.Reply) != 0 {
		t.Error("pending reply should be drained")
	}
}

func TestCommandKindString(t *testing.T) {
	if CmdWithdraw.String() != "withdraw" || CommandKind(0).String() != "unknown" {
		t.Error("unexpected command kind names")
	}
}
