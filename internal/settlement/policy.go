// Package settlement quotes what a winning bet is worth. Quotes are
// informational; the engine only marks bets as withdrawn.
package settlement

import (
	"fmt"

	"github.com/SandroAugusto/school-of-solana/internal/domain"

	"github.com/shopspring/decimal"
)

// OpQuote is the operation name attached to quoting failures.
const OpQuote = "quote"

// Policy prices a winning bet of a resolved market.
type Policy interface {
	Name() string
	Quote(m domain.Market, b domain.Bet) (decimal.Decimal, error)
}

// None reports eligibility only; every quote is zero.
type None struct{}

func (None) Name() string { return "none" }

func (None) Quote(domain.Market, domain.Bet) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

// StakeReturn pays back the stake 1:1.
type StakeReturn struct{}

func (StakeReturn) Name() string { return "stake" }

func (StakeReturn) Quote(_ domain.Market, b domain.Bet) (decimal.Decimal, error) {
	return decimal.NewFromUint64(b.Amount), nil
}

// ProRata returns the stake plus a share of the losing pool proportional
// to the stake's share of the winning pool.
type ProRata struct{}

func (ProRata) Name() string { return "pro_rata" }

func (ProRata) Quote(m domain.Market, b domain.Bet) (decimal.Decimal, error) {
	winning := decimal.NewFromUint64(m.Pool(b.Side))
	if winning.IsZero() {
		return decimal.Zero, domain.ErrDivisionByZero
	}
	total := decimal.NewFromUint64(m.TotalYes).Add(decimal.NewFromUint64(m.TotalNo))
	losing := total.Sub(winning)

	stake := decimal.NewFromUint64(b.Amount)
	share := stake.Mul(losing).DivRound(winning, 9)
	return stake.Add(share), nil
}

// PolicyByName resolves the configured policy name.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "none":
		return None{}, nil
	case "stake":
		return StakeReturn{}, nil
	case "pro_rata":
		return ProRata{}, nil
	default:
		return nil, fmt.Errorf("unknown settlement policy %q", name)
	}
}

// QuoteBet checks that b is a winning bet of resolved market m and prices it with p.
func QuoteBet(p Policy, m domain.Market, b domain.Bet) (decimal.Decimal, error) {
	if b.Market != m.Key {
		return decimal.Zero, domain.NewMarketError(OpQuote, domain.KindBetMismatch, m.Key)
	}
	if m.Status != domain.StatusResolved {
		return decimal.Zero, domain.NewMarketError(OpQuote, domain.KindMarketNotResolved, m.Key)
	}
	if !b.Side.Wins(m.Outcome) {
		return decimal.Zero, domain.NewMarketError(OpQuote, domain.KindNotAWinner, m.Key)
	}

	q, err := p.Quote(m, b)
	if err != nil {
		if kind, ok := domain.KindOf(err); ok {
			return decimal.Zero, domain.NewMarketError(OpQuote, kind, m.Key)
		}
		return decimal.Zero, err
	}
	return q, nil
}
