package domain

import (
	"errors"
	"fmt"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// Category groups failure kinds by how a caller should react to them.
type Category uint8

const (
	// CategoryValidation is malformed input. Never retried.
	CategoryValidation Category = iota + 1
	// CategoryStateConflict means the operation is inapplicable right now; retry after the state changes.
	CategoryStateConflict
	// CategoryAuthorization is fatal to the call.
	CategoryAuthorization
	// CategoryArithmetic is an overflow or division failure detected before any mutation.
	CategoryArithmetic
)

func (c Category) String() string {
	switch c {
	case CategoryValidation:
		return "validation"
	case CategoryStateConflict:
		return "state_conflict"
	case CategoryAuthorization:
		return "authorization"
	case CategoryArithmetic:
		return "arithmetic"
	default:
		return "unknown"
	}
}

// Kind is a typed lifecycle failure. Kinds are comparable sentinels: errors.Is(err, ErrNotAWinner).
type Kind uint8

const (
	KindQuestionTooLong Kind = iota + 1
	KindEndTimeInPast
	KindInvalidSide
	KindInvalidAmount
	KindMarketNotOpen
	KindMarketClosed
	KindMarketStillActive
	KindMarketNotResolving
	KindMarketNotResolved
	KindAlreadyWithdrawn
	KindNotAWinner
	KindMarketNotFound
	KindBetNotFound
	KindAlreadyExists
	KindUnauthorized
	KindOracleMismatch
	KindBetMismatch
	KindOverflow
	KindDivisionByZero
)

type kindInfo struct {
	name     string
	msg      string
	category Category
}

var kinds = map[Kind]kindInfo{
	KindQuestionTooLong:    {"QuestionTooLong", "question too long", CategoryValidation},
	KindEndTimeInPast:      {"EndTimeInPast", "end time must be in the future", CategoryValidation},
	KindInvalidSide:        {"InvalidSide", "invalid side", CategoryValidation},
	KindInvalidAmount:      {"InvalidAmount", "invalid bet amount", CategoryValidation},
	KindMarketNotOpen:      {"MarketNotOpen", "market is not open", CategoryStateConflict},
	KindMarketClosed:       {"MarketClosed", "market is closed for new bets", CategoryStateConflict},
	KindMarketStillActive:  {"MarketStillActive", "market is still active", CategoryStateConflict},
	KindMarketNotResolving: {"MarketNotResolving", "market must be in resolving state", CategoryStateConflict},
	KindMarketNotResolved:  {"MarketNotResolved", "market not resolved yet", CategoryStateConflict},
	KindAlreadyWithdrawn:   {"AlreadyWithdrawn", "already withdrawn", CategoryStateConflict},
	KindNotAWinner:         {"NotAWinner", "bet did not win this market", CategoryStateConflict},
	KindMarketNotFound:     {"MarketNotFound", "market not found", CategoryStateConflict},
	KindBetNotFound:        {"BetNotFound", "bet not found", CategoryStateConflict},
	KindAlreadyExists:      {"AlreadyExists", "record already exists", CategoryStateConflict},
	KindUnauthorized:       {"Unauthorized", "unauthorized to close market", CategoryAuthorization},
	KindOracleMismatch:     {"OracleMismatch", "caller is not the market oracle", CategoryAuthorization},
	KindBetMismatch:        {"BetMismatch", "bet does not belong to caller and market", CategoryAuthorization},
	KindOverflow:           {"Overflow", "overflow", CategoryArithmetic},
	KindDivisionByZero:     {"DivisionByZero", "division by zero", CategoryArithmetic},
}

// Error returns the human message.
func (k Kind) Error() string {
	if info, ok := kinds[k]; ok {
		return info.msg
	}
	return fmt.Sprintf("unknown failure kind %d", uint8(k))
}

// String returns the kind name, e.g. "NotAWinner".
func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Category returns the kind's category, 0 for unknown kinds.
func (k Kind) Category() Category {
	return kinds[k].category
}

// IsRetriable is true only for state conflicts.
func (k Kind) IsRetriable() bool {
	return k.Category() == CategoryStateConflict
}

var (
	ErrQuestionTooLong    error = KindQuestionTooLong
	ErrEndTimeInPast      error = KindEndTimeInPast
	ErrInvalidSide        error = KindInvalidSide
	ErrInvalidAmount      error = KindInvalidAmount
	ErrMarketNotOpen      error = KindMarketNotOpen
	ErrMarketClosed       error = KindMarketClosed
	ErrMarketStillActive  error = KindMarketStillActive
	ErrMarketNotResolving error = KindMarketNotResolving
	ErrMarketNotResolved  error = KindMarketNotResolved
	ErrAlreadyWithdrawn   error = KindAlreadyWithdrawn
	ErrNotAWinner         error = KindNotAWinner
	ErrMarketNotFound     error = KindMarketNotFound
	ErrBetNotFound        error = KindBetNotFound
	ErrAlreadyExists      error = KindAlreadyExists
	ErrUnauthorized       error = KindUnauthorized
	ErrOracleMismatch     error = KindOracleMismatch
	ErrBetMismatch        error = KindBetMismatch
	ErrOverflow           error = KindOverflow
	// ErrDivisionByZero is reserved for payout-share computation.
	ErrDivisionByZero error = KindDivisionByZero
)

// MarketError is a lifecycle failure attributed to an operation.
type MarketError struct {
	Op     string   // "create", "place_bet", "close", "resolve", "withdraw", "quote"
	Kind   Kind
	Market Identity // zero when the market key is not known yet
}

func (e *MarketError) Error() string {
	if e.Market.IsZero() {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + " " + e.Market.String() + ": " + e.Kind.Error()
}

func (e *MarketError) Unwrap() error {
	return e.Kind
}

func (e *MarketError) IsRetriable() bool {
	return e.Kind.IsRetriable()
}

// NewMarketError builds a MarketError.
func NewMarketError(op string, kind Kind, market Identity) *MarketError {
	return &MarketError{Op: op, Kind: kind, Market: market}
}

// KindOf extracts the failure kind from err.
func KindOf(err error) (Kind, bool) {
	var k Kind
	if errors.As(err, &k) {
		return k, true
	}
	return 0, false
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")

	// ErrReadOnly is returned when a write is attempted inside a read-only store view.
	ErrReadOnly = errors.New("read-only transaction")
)
