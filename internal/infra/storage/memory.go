package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/SandroAugusto/school-of-solana/internal/domain"
)

type betPair struct {
	market domain.Identity
	bettor domain.Identity
}

// MemoryStore is a map-backed RecordStore and Journal.
// Update stages writes and applies them only when the callback succeeds.
type MemoryStore struct {
	mu      sync.Mutex
	markets map[domain.Identity]domain.Market
	bets    map[domain.Identity]domain.Bet
	pairs   map[betPair]domain.Identity
	events  []domain.JournalEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets: make(map[domain.Identity]domain.Market),
		bets:    make(map[domain.Identity]domain.Bet),
		pairs:   make(map[betPair]domain.Identity),
	}
}

// Update runs fn atomically.
func (s *MemoryStore) Update(ctx context.Context, fn func(tx domain.RecordTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:   s,
		markets: make(map[domain.Identity]domain.Market),
		bets:    make(map[domain.Identity]domain.Bet),
	}
	if err := fn(tx); err != nil {
		return err
	}

	for k, m := range tx.markets {
		s.markets[k] = m
	}
	for k, b := range tx.bets {
		s.bets[k] = b
		s.pairs[betPair{b.Market, b.Bettor}] = k
	}
	return nil
}

// View runs fn against a read-only transaction.
func (s *MemoryStore) View(ctx context.Context, fn func(tx domain.RecordTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return fn(&memTx{store: s, readOnly: true})
}

// ListMarkets returns all markets ordered by end time, then key.
func (s *MemoryStore) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].EndTime != result[j].EndTime {
			return result[i].EndTime < result[j].EndTime
		}
		return result[i].Key.String() < result[j].Key.String()
	})
	return result, nil
}

// ListBets returns the bets of one market ordered by bettor.
func (s *MemoryStore) ListBets(ctx context.Context, market domain.Identity) ([]domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.Bet
	for _, b := range s.bets {
		if b.Market == market {
			result = append(result, b)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Bettor.String() < result[j].Bettor.String()
	})
	return result, nil
}

// AppendEvent appends e. Its sequence must directly follow the last one.
func (s *MemoryStore) AppendEvent(ctx context.Context, e domain.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last uint64
	if n := len(s.events); n > 0 {
		last = s.events[n-1].Seq
	}
	if e.Seq != last+1 {
		return errJournalGap(last, e.Seq)
	}
	s.events = append(s.events, e)
	return nil
}

// ListEvents returns up to limit entries with Seq > afterSeq. limit <= 0 means all.
func (s *MemoryStore) ListEvents(ctx context.Context, afterSeq uint64, limit int) ([]domain.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.JournalEntry
	for _, e := range s.events {
		if e.Seq <= afterSeq {
			continue
		}
		result = append(result, e)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// LastSeq returns the highest journal sequence, 0 when empty.
func (s *MemoryStore) LastSeq(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.events); n > 0 {
		return s.events[n-1].Seq, nil
	}
	return 0, nil
}

// memTx reads through staged writes to the committed maps. Must be used with store.mu held.
type memTx struct {
	store    *MemoryStore
	markets  map[domain.Identity]domain.Market
	bets     map[domain.Identity]domain.Bet
	readOnly bool
}

func (tx *memTx) GetMarket(key domain.Identity) (domain.Market, error) {
	if m, ok := tx.markets[key]; ok {
		return m, nil
	}
	if m, ok := tx.store.markets[key]; ok {
		return m, nil
	}
	return domain.Market{}, domain.ErrMarketNotFound
}

func (tx *memTx) InsertMarket(m domain.Market) error {
	if tx.readOnly {
		return domain.ErrReadOnly
	}
	if _, err := tx.GetMarket(m.Key); err == nil {
		return domain.ErrAlreadyExists
	}
	tx.markets[m.Key] = m
	return nil
}

func (tx *memTx) SaveMarket(m domain.Market) error {
	if tx.readOnly {
		return domain.ErrReadOnly
	}
	if _, err := tx.GetMarket(m.Key); err != nil {
		return err
	}
	tx.markets[m.Key] = m
	return nil
}

func (tx *memTx) GetBet(key domain.Identity) (domain.Bet, error) {
	if b, ok := tx.bets[key]; ok {
		return b, nil
	}
	if b, ok := tx.store.bets[key]; ok {
		return b, nil
	}
	return domain.Bet{}, domain.ErrBetNotFound
}

func (tx *memTx) InsertBet(b domain.Bet) error {
	if tx.readOnly {
		return domain.ErrReadOnly
	}
	if _, err := tx.GetBet(b.Key); err == nil {
		return domain.ErrAlreadyExists
	}
	if _, ok := tx.store.pairs[betPair{b.Market, b.Bettor}]; ok {
		return domain.ErrAlreadyExists
	}
	for _, staged := range tx.bets {
		if staged.Market == b.Market && staged.Bettor == b.Bettor {
			return domain.ErrAlreadyExists
		}
	}
	tx.bets[b.Key] = b
	return nil
}

func (tx *memTx) SaveBet(b domain.Bet) error {
	if tx.readOnly {
		return domain.ErrReadOnly
	}
	if _, err := tx.GetBet(b.Key); err != nil {
		return err
	}
	tx.bets[b.Key] = b
	return nil
}
