package domain

import "context"

// Clock supplies the current time in unix seconds. Implementations never go backwards.
type Clock interface {
	Now() int64
}

// RecordTx is the view of the record store inside one atomic unit of work.
// Get* return ErrMarketNotFound / ErrBetNotFound; Insert* return ErrAlreadyExists
// when the key (or, for bets, the market/bettor pair) is already allocated.
type RecordTx interface {
	GetMarket(key Identity) (Market, error)
	InsertMarket(m Market) error
	SaveMarket(m Market) error

	GetBet(key Identity) (Bet, error)
	InsertBet(b Bet) error
	SaveBet(b Bet) error
}

// RecordStore persists markets and bets with all-or-nothing updates.
// A non-nil error from the Update callback discards every write made through tx.
type RecordStore interface {
	Update(ctx context.Context, fn func(tx RecordTx) error) error
	View(ctx context.Context, fn func(tx RecordTx) error) error

	ListMarkets(ctx context.Context) ([]Market, error)
	ListBets(ctx context.Context, market Identity) ([]Bet, error)
}

// Journal is the append-only, gap-free log of lifecycle events.
type Journal interface {
	AppendEvent(ctx context.Context, e JournalEntry) error
	ListEvents(ctx context.Context, afterSeq uint64, limit int) ([]JournalEntry, error)
	LastSeq(ctx context.Context) (uint64, error)
}
