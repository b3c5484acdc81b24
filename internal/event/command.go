package event

import "github.com/SandroAugusto/school-of-solana/internal/domain"

// CommandKind selects the lifecycle operation a Command requests.
type CommandKind uint8

const (
	CmdCreate CommandKind = iota + 1
	CmdPlaceBet
	CmdClose
	CmdResolve
	CmdWithdraw
)

func (k CommandKind) String() string {
	switch k {
	case CmdCreate:
		return "create"
	case CmdPlaceBet:
		return "place_bet"
	case CmdClose:
		return "close"
	case CmdResolve:
		return "resolve"
	case CmdWithdraw:
		return "withdraw"
	default:
		return "unknown"
	}
}

// Command is a request for the sequencer. Only the fields of its Kind are read.
// Caller is the verified identity issuing the request.
type Command struct {
	Kind   CommandKind
	Caller domain.Identity
	Market domain.Identity

	// create
	Question  string
	EndTime   int64
	Oracle    domain.Identity
	IsCurated bool

	// place_bet
	Side   domain.Side
	Amount uint64

	// resolve
	Outcome domain.Outcome

	// withdraw
	Bet domain.Identity

	Reply chan Result
}

// Result is the sequencer's answer to a Command.
// On a latched late bet Market holds the latched state and Err is MarketClosed.
type Result struct {
	Market domain.Market
	Bet    domain.Bet
	Events []Event
	Err    error
}
