package service

import (
	"context"
	"testing"
	"time"

	"github.com/SandroAugusto/school-of-solana/internal/domain"
	"github.com/SandroAugusto/school-of-solana/internal/event"

	"github.com/shopspring/decimal"
)

func boardEvent(seq uint64, typ event.Type, m domain.Market) event.Event {
	ev := event.New(typ, int64(seq)*10, domain.Identity{}, m)
	ev.Seq = seq
	return ev
}

func TestMarketBoard_Apply(t *testing.T) {
	board := NewMarketBoard()
	m := domain.Market{Key: domain.Identity{1}, EndTime: 100}

	board.Apply(boardEvent(1, event.TypeMarketCreated, m))
	m.TotalYes = 30
	board.Apply(boardEvent(2, event.TypeBetPlaced, m))
	m.TotalNo = 10
	board.Apply(boardEvent(3, event.TypeBetPlaced, m))

	s, ok := board.Get(m.Key)
	if !ok {
		t.Fatal("market should exist")
	}
	if s.Bets != 2 || s.LastSeq != 3 {
		t.Errorf("Expected 2 bets at seq 3, got %d at %d", s.Bets, s.LastSeq)
	}
	if s.YesProbability == nil || !s.YesProbability.Equal(decimal.RequireFromString("0.75")) {
		t.Errorf("Expected probability 0.75, got %v", s.YesProbability)
	}

	// replayed events are ignored
	board.Apply(boardEvent(2, event.TypeBetPlaced, m))
	if s, _ := board.Get(m.Key); s.Bets != 2 {
		t.Errorf("Replay should not double count, got %d bets", s.Bets)
	}
}

func TestMarketBoard_GetAllSorted(t *testing.T) {
	board := NewMarketBoard()
	board.Apply(boardEvent(1, event.TypeMarketCreated, domain.Market{Key: domain.Identity{1}, EndTime: 300}))
	board.Apply(boardEvent(2, event.TypeMarketCreated, domain.Market{Key: domain.Identity{2}, EndTime: 100}))
	board.Apply(boardEvent(3, event.TypeMarketCreated, domain.Market{Key: domain.Identity{3}, EndTime: 200}))

	all := board.GetAll()
	if len(all) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(all))
	}
	if all[0].Market.EndTime != 100 || all[2].Market.EndTime != 300 {
		t.Errorf("Unexpected order: %d, %d, %d", all[0].Market.EndTime, all[1].Market.EndTime, all[2].Market.EndTime)
	}
	if all[0].YesProbability != nil {
		t.Error("Empty pool should have no probability")
	}
}

func TestImpliedYesProbability(t *testing.T) {
	const top = ^uint64(0)
	p := ImpliedYesProbability(domain.Market{TotalYes: top, TotalNo: top})
	if p == nil || !p.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("Expected 0.5 for equal max pools, got %v", p)
	}
}

func TestMarketBoard_EventProcessor(t *testing.T) {
	board := NewMarketBoard()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	board.StartEventProcessor(ctx)

	m := domain.Market{Key: domain.Identity{7}, EndTime: 100, Status: domain.StatusResolving}
	board.Publish(boardEvent(1, event.TypeMarketClosed, m))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s, ok := board.Get(m.Key); ok {
			if s.Market.Status != domain.StatusResolving {
				t.Errorf("Expected resolving, got %s", s.Market.Status)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("event was not applied")
}
