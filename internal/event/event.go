package event

import (
	"encoding/json"
	"fmt"

	"github.com/SandroAugusto/school-of-solana/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type names a committed lifecycle transition.
type Type string

const (
	TypeMarketCreated     Type = "market_created"
	TypeBetPlaced         Type = "bet_placed"
	TypeMarketClosed      Type = "market_closed"
	TypeMarketResolved    Type = "market_resolved"
	TypeWinningsWithdrawn Type = "winnings_withdrawn"
)

// Event is one committed lifecycle transition, as journaled and broadcast.
// Market is the market state after the transition.
type Event struct {
	Seq        uint64           `json:"seq"`
	ID         string           `json:"id"`
	Type       Type             `json:"type"`
	At         int64            `json:"at"`
	Actor      domain.Identity  `json:"actor"`
	Market     domain.Market    `json:"market"`
	Bet        *domain.Bet      `json:"bet,omitempty"`
	AutoClosed bool             `json:"auto_closed,omitempty"`
	Quote      *decimal.Decimal `json:"quote,omitempty"`
}

// New creates an unsequenced event with a fresh ID.
func New(typ Type, at int64, actor domain.Identity, market domain.Market) Event {
	return Event{
		ID:     uuid.NewString(),
		Type:   typ,
		At:     at,
		Actor:  actor,
		Market: market,
	}
}

// Entry encodes e for the journal.
func (e Event) Entry() (domain.JournalEntry, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return domain.JournalEntry{}, fmt.Errorf("encode event %d: %w", e.Seq, err)
	}
	return domain.JournalEntry{
		Seq:     e.Seq,
		ID:      e.ID,
		Type:    string(e.Type),
		Market:  e.Market.Key,
		At:      e.At,
		Payload: payload,
	}, nil
}

// FromEntry decodes a journal entry. The entry's Seq wins over the payload's.
func FromEntry(entry domain.JournalEntry) (Event, error) {
	var e Event
	if err := json.Unmarshal(entry.Payload, &e); err != nil {
		return Event{}, fmt.Errorf("decode event %d: %w", entry.Seq, err)
	}
	e.Seq = entry.Seq
	return e, nil
}
