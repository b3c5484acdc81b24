package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/SandroAugusto/school-of-solana/internal/address"
	"github.com/SandroAugusto/school-of-solana/internal/domain"
	"github.com/SandroAugusto/school-of-solana/pkg/safe"
)

// Operation names used in MarketError.Op, metrics and logs.
const (
	OpCreate   = "create"
	OpPlaceBet = "place_bet"
	OpClose    = "close"
	OpResolve  = "resolve"
	OpWithdraw = "withdraw"
)

// Engine validates and applies the five market lifecycle operations.
// Each operation runs in a single store transaction: every precondition is
// checked before the first write, and a failure discards all writes.
// The one exception is the late-bet latch in PlaceBet, which commits.
type Engine struct {
	store domain.RecordStore
	clock domain.Clock
}

// NewEngine creates a lifecycle engine over store, reading time from clock.
func NewEngine(store domain.RecordStore, clock domain.Clock) *Engine {
	return &Engine{store: store, clock: clock}
}

// CreateParams are the inputs of Create. Creator becomes the market authority.
type CreateParams struct {
	Question  string
	EndTime   int64
	Oracle    domain.Identity
	IsCurated bool
	Creator   domain.Identity
}

// Create allocates a new Open market.
func (e *Engine) Create(ctx context.Context, p CreateParams) (domain.Market, error) {
	if len(p.Question) > domain.QuestionMaxLen {
		return domain.Market{}, fail(OpCreate, domain.KindQuestionTooLong, domain.Identity{})
	}
	now := e.clock.Now()
	if p.EndTime <= now {
		return domain.Market{}, fail(OpCreate, domain.KindEndTimeInPast, domain.Identity{})
	}

	m := domain.Market{
		Key:       address.MarketKey(p.Creator, p.Question, p.EndTime),
		Authority: p.Creator,
		Oracle:    p.Oracle,
		Question:  p.Question,
		Status:    domain.StatusOpen,
		Outcome:   domain.OutcomeUndetermined,
		EndTime:   p.EndTime,
		IsCurated: p.IsCurated,
	}

	err := e.store.Update(ctx, func(tx domain.RecordTx) error {
		return tx.InsertMarket(m)
	})
	if err != nil {
		return domain.Market{}, wrap(OpCreate, m.Key, err)
	}

	slog.Info("market created",
		slog.String("market", m.Key.String()),
		slog.String("authority", m.Authority.String()),
		slog.Int64("end_time", m.EndTime))
	return m, nil
}

// PlaceBet stakes amount on side for bettor.
//
// A bet arriving at or after the end time latches the market into Resolving
// (see latchResolving), commits that transition, and fails with MarketClosed.
// The latched market is returned only when this call moved it; a market that
// was already past Open comes back as the zero Market. A Resolved market
// stays Resolved: status never moves backwards.
func (e *Engine) PlaceBet(ctx context.Context, marketKey, bettor domain.Identity, side domain.Side, amount uint64) (domain.Market, domain.Bet, error) {
	if !side.Valid() {
		return domain.Market{}, domain.Bet{}, fail(OpPlaceBet, domain.KindInvalidSide, marketKey)
	}
	if amount == 0 {
		return domain.Market{}, domain.Bet{}, fail(OpPlaceBet, domain.KindInvalidAmount, marketKey)
	}

	var (
		market domain.Market
		bet    domain.Bet
		late   bool
	)
	err := e.store.Update(ctx, func(tx domain.RecordTx) error {
		m, err := tx.GetMarket(marketKey)
		if err != nil {
			return err
		}

		if m.Ended(e.clock.Now()) {
			late = true
			if latchResolving(&m) {
				if err := tx.SaveMarket(m); err != nil {
					return err
				}
				market = m
			}
			return nil
		}
		if m.Status != domain.StatusOpen {
			return domain.ErrMarketNotOpen
		}

		var ok bool
		switch side {
		case domain.SideYes:
			m.TotalYes, ok = safe.AddUint64(m.TotalYes, amount)
		case domain.SideNo:
			m.TotalNo, ok = safe.AddUint64(m.TotalNo, amount)
		}
		if !ok {
			return domain.ErrOverflow
		}

		b := domain.Bet{
			Key:    address.BetKey(m.Key, bettor),
			Bettor: bettor,
			Market: m.Key,
			Side:   side,
			Amount: amount,
		}
		if err := tx.InsertBet(b); err != nil {
			return err
		}
		if err := tx.SaveMarket(m); err != nil {
			return err
		}
		market, bet = m, b
		return nil
	})
	if err != nil {
		return domain.Market{}, domain.Bet{}, wrap(OpPlaceBet, marketKey, err)
	}
	if late {
		slog.Warn("late bet rejected",
			slog.String("market", marketKey.String()),
			slog.String("bettor", bettor.String()),
			slog.Bool("latched", !market.Key.IsZero()))
		return market, domain.Bet{}, fail(OpPlaceBet, domain.KindMarketClosed, marketKey)
	}

	slog.Info("bet placed",
		slog.String("market", marketKey.String()),
		slog.String("bettor", bettor.String()),
		slog.String("side", side.String()),
		slog.Uint64("amount", amount))
	return market, bet, nil
}

// latchResolving moves an Open market to Resolving. It reports whether the
// market changed; markets already past Open are left untouched.
func latchResolving(m *domain.Market) bool {
	if m.Status != domain.StatusOpen {
		return false
	}
	m.Status = domain.StatusResolving
	return true
}

// Close moves an ended Open market to Resolving on behalf of its authority or oracle.
func (e *Engine) Close(ctx context.Context, marketKey, caller domain.Identity) (domain.Market, error) {
	var market domain.Market
	err := e.store.Update(ctx, func(tx domain.RecordTx) error {
		m, err := tx.GetMarket(marketKey)
		if err != nil {
			return err
		}
		if m.Status != domain.StatusOpen {
			return domain.ErrMarketNotOpen
		}
		if !m.Ended(e.clock.Now()) {
			return domain.ErrMarketStillActive
		}
		if !m.CanClose(caller) {
			return domain.ErrUnauthorized
		}

		latchResolving(&m)
		if err := tx.SaveMarket(m); err != nil {
			return err
		}
		market = m
		return nil
	})
	if err != nil {
		return domain.Market{}, wrap(OpClose, marketKey, err)
	}

	slog.Info("market closed",
		slog.String("market", marketKey.String()),
		slog.String("by", caller.String()))
	return market, nil
}

// Resolve fixes the outcome of a Resolving market. Only the market's oracle may call it.
func (e *Engine) Resolve(ctx context.Context, marketKey, caller domain.Identity, outcome domain.Outcome) (domain.Market, error) {
	var market domain.Market
	err := e.store.Update(ctx, func(tx domain.RecordTx) error {
		m, err := tx.GetMarket(marketKey)
		if err != nil {
			return err
		}
		// oracle binding is part of loading the record
		if m.Oracle != caller {
			return domain.ErrOracleMismatch
		}
		if !outcome.Decided() {
			return domain.ErrInvalidSide
		}
		if m.Status != domain.StatusResolving {
			return domain.ErrMarketNotResolving
		}
		if !m.Ended(e.clock.Now()) {
			return domain.ErrMarketStillActive
		}

		m.Outcome = outcome
		m.Status = domain.StatusResolved
		if err := tx.SaveMarket(m); err != nil {
			return err
		}
		market = m
		return nil
	})
	if err != nil {
		return domain.Market{}, wrap(OpResolve, marketKey, err)
	}

	slog.Info("market resolved",
		slog.String("market", marketKey.String()),
		slog.String("outcome", outcome.String()))
	return market, nil
}

// Withdraw marks a winning bet as claimed. It moves no value; paying out is
// left to a settlement collaborator.
func (e *Engine) Withdraw(ctx context.Context, marketKey, betKey, caller domain.Identity) (domain.Market, domain.Bet, error) {
	var (
		market domain.Market
		bet    domain.Bet
	)
	err := e.store.Update(ctx, func(tx domain.RecordTx) error {
		m, err := tx.GetMarket(marketKey)
		if err != nil {
			return err
		}
		b, err := tx.GetBet(betKey)
		if err != nil {
			return err
		}
		if b.Market != m.Key || b.Bettor != caller || betKey != address.BetKey(m.Key, caller) {
			return domain.ErrBetMismatch
		}

		if m.Status != domain.StatusResolved {
			return domain.ErrMarketNotResolved
		}
		if b.Withdrawn {
			return domain.ErrAlreadyWithdrawn
		}
		if !b.Side.Wins(m.Outcome) {
			return domain.ErrNotAWinner
		}

		b.Withdrawn = true
		if err := tx.SaveBet(b); err != nil {
			return err
		}
		market, bet = m, b
		return nil
	})
	if err != nil {
		return domain.Market{}, domain.Bet{}, wrap(OpWithdraw, marketKey, err)
	}

	slog.Info("winnings withdrawn",
		slog.String("market", marketKey.String()),
		slog.String("bettor", caller.String()),
		slog.Uint64("amount", bet.Amount))
	return market, bet, nil
}

// GetMarket reads a market outside any operation.
func (e *Engine) GetMarket(ctx context.Context, key domain.Identity) (domain.Market, error) {
	var m domain.Market
	err := e.store.View(ctx, func(tx domain.RecordTx) error {
		var err error
		m, err = tx.GetMarket(key)
		return err
	})
	return m, err
}

// GetBet reads the bet of bettor in market.
func (e *Engine) GetBet(ctx context.Context, market, bettor domain.Identity) (domain.Bet, error) {
	var b domain.Bet
	err := e.store.View(ctx, func(tx domain.RecordTx) error {
		var err error
		b, err = tx.GetBet(address.BetKey(market, bettor))
		return err
	})
	return b, err
}

// Markets lists every market.
func (e *Engine) Markets(ctx context.Context) ([]domain.Market, error) {
	return e.store.ListMarkets(ctx)
}

// Bets lists the bets of one market.
func (e *Engine) Bets(ctx context.Context, market domain.Identity) ([]domain.Bet, error) {
	return e.store.ListBets(ctx, market)
}

func fail(op string, kind domain.Kind, market domain.Identity) error {
	return domain.NewMarketError(op, kind, market)
}

// wrap attributes lifecycle kinds to op; infrastructure errors pass through untouched.
func wrap(op string, market domain.Identity, err error) error {
	var me *domain.MarketError
	if errors.As(err, &me) {
		return err
	}
	if kind, ok := domain.KindOf(err); ok {
		slog.Warn("operation rejected",
			slog.String("op", op),
			slog.String("market", market.String()),
			slog.String("kind", kind.String()))
		return domain.NewMarketError(op, kind, market)
	}
	return err
}
