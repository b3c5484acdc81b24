package service

import (
	"context"
	"sort"
	"sync"

	"github.com/SandroAugusto/school-of-solana/internal/domain"
	"github.com/SandroAugusto/school-of-solana/internal/event"

	"github.com/shopspring/decimal"
)

// MarketSummary is the board's view of one market.
type MarketSummary struct {
	Market         domain.Market    `json:"market"`
	Bets           int              `json:"bets"`
	Withdrawals    int              `json:"withdrawals"`
	YesProbability *decimal.Decimal `json:"yes_probability,omitempty"`
	LastSeq        uint64           `json:"last_seq"`
	UpdatedAt      int64            `json:"updated_at"`
}

// MarketBoard is the in-memory read model of all markets, fed by lifecycle events.
type MarketBoard struct {
	mu        sync.RWMutex
	markets   map[domain.Identity]*MarketSummary
	eventChan chan event.Event
}

// NewMarketBoard creates a new MarketBoard instance
func NewMarketBoard() *MarketBoard {
	return &MarketBoard{
		markets:   make(map[domain.Identity]*MarketSummary),
		eventChan: make(chan event.Event, 1000), // buffer for bursts
	}
}

// GetAll returns every market summary ordered by end time, then key.
func (b *MarketBoard) GetAll() []MarketSummary {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]MarketSummary, 0, len(b.markets))
	for _, s := range b.markets {
		result = append(result, *s)
	}

	// Sort for consistent ordering
	sort.Slice(result, func(i, j int) bool {
		if result[i].Market.EndTime != result[j].Market.EndTime {
			return result[i].Market.EndTime < result[j].Market.EndTime
		}
		return result[i].Market.Key.String() < result[j].Market.Key.String()
	})

	return result
}

// Get returns the summary of one market.
func (b *MarketBoard) Get(key domain.Identity) (MarketSummary, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, ok := b.markets[key]
	if !ok {
		return MarketSummary{}, false
	}
	return *s, true
}

// Publish queues ev for the processor. It blocks when the buffer is full.
func (b *MarketBoard) Publish(ev event.Event) {
	b.eventChan <- ev
}

// StartEventProcessor starts a background goroutine to apply events from the channel
func (b *MarketBoard) StartEventProcessor(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-b.eventChan:
				b.Apply(ev)
			}
		}
	}()
}

// Apply folds ev into the board. Events at or below a market's last applied
// sequence are ignored, so replaying a journal twice is harmless.
func (b *MarketBoard) Apply(ev event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := ev.Market.Key
	s, exists := b.markets[key]
	if !exists {
		s = &MarketSummary{}
		b.markets[key] = s
	}
	if ev.Seq != 0 && ev.Seq <= s.LastSeq {
		return
	}

	s.Market = ev.Market
	s.LastSeq = ev.Seq
	s.UpdatedAt = ev.At
	switch ev.Type {
	case event.TypeBetPlaced:
		s.Bets++
	case event.TypeWinningsWithdrawn:
		s.Withdrawals++
	}
	s.YesProbability = ImpliedYesProbability(s.Market)
}

// ImpliedYesProbability is total_yes / (total_yes + total_no), nil for an empty pool.
func ImpliedYesProbability(m domain.Market) *decimal.Decimal {
	yes := decimal.NewFromUint64(m.TotalYes)
	total := yes.Add(decimal.NewFromUint64(m.TotalNo))
	if total.IsZero() {
		return nil
	}
	p := yes.DivRound(total, 6)
	return &p
}
