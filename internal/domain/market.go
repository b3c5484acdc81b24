package domain

import (
	"fmt"
	"strings"
)

// QuestionMaxLen is the maximum question length in bytes.
const QuestionMaxLen = 100

// Side is the outcome a bet backs. Wire values: 1 yes, 2 no.
type Side uint8

const (
	SideYes Side = 1
	SideNo  Side = 2
)

// Valid reports whether s is Yes or No.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// String returns "yes", "no", or "side(N)" for malformed values.
func (s Side) String() string {
	switch s {
	case SideYes:
		return "yes"
	case SideNo:
		return "no"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// Wins reports whether a bet on s is paid by outcome o.
func (s Side) Wins(o Outcome) bool {
	return s.Valid() && uint8(s) == uint8(o)
}

// MarshalText implements encoding.TextMarshaler.
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts "yes"/"no" (any case) and the numeric wire values.
// Unknown values decode to an invalid Side so the engine can report InvalidSide.
func (s *Side) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "yes", "1":
		*s = SideYes
	case "no", "2":
		*s = SideNo
	default:
		*s = 0
	}
	return nil
}

// Outcome is the resolved answer to a market question. Wire values: 0 none, 1 yes, 2 no.
type Outcome uint8

const (
	OutcomeUndetermined Outcome = 0
	OutcomeYes          Outcome = 1
	OutcomeNo           Outcome = 2
)

// Decided reports whether o is Yes or No.
func (o Outcome) Decided() bool {
	return o == OutcomeYes || o == OutcomeNo
}

func (o Outcome) String() string {
	switch o {
	case OutcomeUndetermined:
		return "undetermined"
	case OutcomeYes:
		return "yes"
	case OutcomeNo:
		return "no"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText mirrors Side.UnmarshalText; anything unknown becomes an invalid outcome.
func (o *Outcome) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "undetermined", "0":
		*o = OutcomeUndetermined
	case "yes", "1":
		*o = OutcomeYes
	case "no", "2":
		*o = OutcomeNo
	default:
		*o = 0xff
	}
	return nil
}

// Status is the lifecycle stage of a market. It only ever advances.
type Status uint8

const (
	StatusOpen      Status = 0
	StatusResolving Status = 1
	StatusResolved  Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusResolving:
		return "resolving"
	case StatusResolved:
		return "resolved"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "open":
		*s = StatusOpen
	case "resolving":
		*s = StatusResolving
	case "resolved":
		*s = StatusResolved
	default:
		return fmt.Errorf("unknown market status %q", text)
	}
	return nil
}

// Market is the durable state of one yes/no question.
// Key is the derived record address; it is not part of the fixed layout.
type Market struct {
	Key       Identity `json:"key"`
	Authority Identity `json:"authority"`
	Oracle    Identity `json:"oracle"`
	Question  string   `json:"question"`
	TotalYes  uint64   `json:"total_yes"`
	TotalNo   uint64   `json:"total_no"`
	Outcome   Outcome  `json:"outcome"`
	Status    Status   `json:"status"`
	EndTime   int64    `json:"end_time"` // unix seconds
	IsCurated bool     `json:"is_curated"`
}

// CanClose reports whether caller may close the market.
func (m *Market) CanClose(caller Identity) bool {
	return caller == m.Authority || caller == m.Oracle
}

// Ended reports whether bets are no longer accepted at now.
func (m *Market) Ended(now int64) bool {
	return now >= m.EndTime
}

// Pool returns the stake on the given side.
func (m *Market) Pool(side Side) uint64 {
	if side == SideYes {
		return m.TotalYes
	}
	return m.TotalNo
}

// Bet is one participant's stake in one market. At most one exists per (market, bettor).
type Bet struct {
	Key       Identity `json:"key"`
	Bettor    Identity `json:"bettor"`
	Market    Identity `json:"market"`
	Side      Side     `json:"side"`
	Amount    uint64   `json:"amount"`
	Withdrawn bool     `json:"withdrawn"`
}
