package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/SandroAugusto/school-of-solana/internal/domain"
	"github.com/SandroAugusto/school-of-solana/internal/event"
	"github.com/SandroAugusto/school-of-solana/internal/infra"
	"github.com/SandroAugusto/school-of-solana/internal/settlement"
	"github.com/SandroAugusto/school-of-solana/pkg/safe"
)

// ErrSequencerStopped is returned by Submit once Run has exited.
var ErrSequencerStopped = errors.New("sequencer stopped")

const defaultDumpPath = "panic_dump.json"

// Sequencer is the single-threaded command processor. It serializes every
// lifecycle mutation, journals the resulting events in order and fans them out.
type Sequencer struct {
	inbox   chan *event.Command
	done    chan struct{}
	engine  *Engine
	journal domain.Journal
	policy  settlement.Policy
	metrics *infra.Metrics

	nextSeq   atomic.Uint64
	lastEvent *event.Event

	dumpPath string

	// Boundary: used to notify the board, the feed or other systems of committed events
	onEvent func(event.Event)
}

// NewSequencer creates a new sequencer instance. journal may be nil, in which
// case events are sequenced and published but not persisted.
func NewSequencer(inboxSize int, eng *Engine, journal domain.Journal, policy settlement.Policy, onEvent func(event.Event)) *Sequencer {
	if policy == nil {
		policy = settlement.None{}
	}
	s := &Sequencer{
		inbox:    make(chan *event.Command, inboxSize),
		done:     make(chan struct{}),
		engine:   eng,
		journal:  journal,
		policy:   policy,
		metrics:  infra.GlobalMetrics,
		dumpPath: defaultDumpPath,
		onEvent:  onEvent,
	}
	s.nextSeq.Store(1)
	return s
}

// SetDumpPath sets where DumpState writes on panic.
func (s *Sequencer) SetDumpPath(path string) {
	if path != "" {
		s.dumpPath = path
	}
}

// Inbox returns the command channel.
func (s *Sequencer) Inbox() chan<- *event.Command {
	return s.inbox
}

// LastSeq returns the sequence of the last committed event.
func (s *Sequencer) LastSeq() uint64 {
	return s.nextSeq.Load() - 1
}

// Run starts the main command loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	slog.Info("Sequencer started", slog.Uint64("next_seq", s.nextSeq.Load()))
	defer close(s.done)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState(s.dumpPath)
			// Halt after dump.
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sequencer stopping...")
			return
		case cmd := <-s.inbox:
			s.process(ctx, cmd)
		}
	}
}

// Submit hands cmd to the loop and waits for its result.
// cmd.Reply must be a buffered channel with room for one result.
func (s *Sequencer) Submit(ctx context.Context, cmd *event.Command) (event.Result, error) {
	select {
	case s.inbox <- cmd:
	case <-s.done:
		return event.Result{}, ErrSequencerStopped
	case <-ctx.Done():
		return event.Result{}, ctx.Err()
	}

	select {
	case res := <-cmd.Reply:
		return res, nil
	case <-s.done:
		return event.Result{}, ErrSequencerStopped
	case <-ctx.Done():
		return event.Result{}, ctx.Err()
	}
}

func (s *Sequencer) process(ctx context.Context, cmd *event.Command) {
	start := time.Now()

	// 1. Logic Dispatch
	res := s.dispatch(ctx, cmd)

	// 2. Journal and publish committed transitions
	for i := range res.Events {
		s.commit(&res.Events[i])
	}

	s.metrics.RecordOp(cmd.Kind.String(), res.Err == nil, time.Since(start).Nanoseconds())
	cmd.Reply <- res
}

func (s *Sequencer) dispatch(ctx context.Context, cmd *event.Command) event.Result {
	now := s.engine.clock.Now()

	switch cmd.Kind {
	case event.CmdCreate:
		m, err := s.engine.Create(ctx, CreateParams{
			Question:  cmd.Question,
			EndTime:   cmd.EndTime,
			Oracle:    cmd.Oracle,
			IsCurated: cmd.IsCurated,
			Creator:   cmd.Caller,
		})
		if err != nil {
			return event.Result{Err: err}
		}
		return event.Result{Market: m, Events: []event.Event{event.New(event.TypeMarketCreated, now, cmd.Caller, m)}}

	case event.CmdPlaceBet:
		m, b, err := s.engine.PlaceBet(ctx, cmd.Market, cmd.Caller, cmd.Side, cmd.Amount)
		if errors.Is(err, domain.ErrMarketClosed) && !m.Key.IsZero() {
			s.metrics.RecordLatch()
			ev := event.New(event.TypeMarketClosed, now, cmd.Caller, m)
			ev.AutoClosed = true
			return event.Result{Market: m, Events: []event.Event{ev}, Err: err}
		}
		if err != nil {
			return event.Result{Err: err}
		}
		ev := event.New(event.TypeBetPlaced, now, cmd.Caller, m)
		ev.Bet = &b
		return event.Result{Market: m, Bet: b, Events: []event.Event{ev}}

	case event.CmdClose:
		m, err := s.engine.Close(ctx, cmd.Market, cmd.Caller)
		if err != nil {
			return event.Result{Err: err}
		}
		return event.Result{Market: m, Events: []event.Event{event.New(event.TypeMarketClosed, now, cmd.Caller, m)}}

	case event.CmdResolve:
		m, err := s.engine.Resolve(ctx, cmd.Market, cmd.Caller, cmd.Outcome)
		if err != nil {
			return event.Result{Err: err}
		}
		return event.Result{Market: m, Events: []event.Event{event.New(event.TypeMarketResolved, now, cmd.Caller, m)}}

	case event.CmdWithdraw:
		m, b, err := s.engine.Withdraw(ctx, cmd.Market, cmd.Bet, cmd.Caller)
		if err != nil {
			return event.Result{Err: err}
		}
		ev := event.New(event.TypeWinningsWithdrawn, now, cmd.Caller, m)
		ev.Bet = &b
		if q, err := settlement.QuoteBet(s.policy, m, b); err != nil {
			slog.Warn("payout quote failed",
				slog.String("market", m.Key.String()),
				slog.String("policy", s.policy.Name()),
				slog.Any("error", err))
		} else {
			ev.Quote = &q
		}
		return event.Result{Market: m, Bet: b, Events: []event.Event{ev}}

	default:
		slog.Warn("Unknown command kind", slog.Any("kind", cmd.Kind))
		return event.Result{Err: fmt.Errorf("unknown command kind %d", cmd.Kind)}
	}
}

// commit assigns the next sequence to ev, persists it and publishes it.
// The records are already committed at this point, so a journal failure halts.
func (s *Sequencer) commit(ev *event.Event) {
	ev.Seq = s.nextSeq.Load()

	// WAL: Persistence
	if s.journal != nil {
		entry, err := ev.Entry()
		if err != nil {
			panic(fmt.Sprintf("PERSISTENCE_FAILURE: %v", err))
		}
		if err := s.journal.AppendEvent(context.Background(), entry); err != nil {
			panic(fmt.Sprintf("PERSISTENCE_FAILURE: %v", err))
		}
		s.metrics.RecordEventJournaled()
	}

	s.nextSeq.Store(safe.MustAddUint64(ev.Seq, 1))
	s.lastEvent = ev

	if s.onEvent != nil {
		s.onEvent(*ev)
	}
}

// Replay walks the journal in order, passing each event to apply, and
// positions the sequencer after the last entry. It must run before Run.
func (s *Sequencer) Replay(ctx context.Context, apply func(event.Event)) error {
	if s.journal == nil {
		return nil
	}
	entries, err := s.journal.ListEvents(ctx, 0, 0)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	for _, entry := range entries {
		// Replay must still respect sequence order
		if entry.Seq != s.nextSeq.Load() {
			panic(fmt.Sprintf("REPLAY_GAP_DETECTED: expected %d, got %d", s.nextSeq.Load(), entry.Seq))
		}
		ev, err := event.FromEntry(entry)
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		if apply != nil {
			apply(ev)
		}
		s.nextSeq.Add(1)
	}

	slog.Info("Journal replayed", slog.Int("events", len(entries)), slog.Uint64("last_seq", s.LastSeq()))
	return nil
}

// DumpState writes the sequencer position and every market to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	markets, err := s.engine.Markets(ctx)
	if err != nil {
		slog.Error("Failed to list markets for dump", slog.Any("error", err))
	}

	data := struct {
		NextSeq   uint64          `json:"next_seq"`
		LastEvent *event.Event    `json:"last_event,omitempty"`
		Markets   []domain.Market `json:"markets"`
	}{
		NextSeq:   s.nextSeq.Load(),
		LastEvent: s.lastEvent,
		Markets:   markets,
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	err = os.WriteFile(filename, b, 0644)
	if err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}

// ======================================================================================
// Command helpers
// ======================================================================================

func (s *Sequencer) do(ctx context.Context, fill func(cmd *event.Command)) (event.Result, error) {
	cmd := event.AcquireCommand()
	fill(cmd)

	res, err := s.Submit(ctx, cmd)
	if err != nil {
		// the loop may still answer; leave the command to the GC
		return event.Result{}, err
	}
	event.ReleaseCommand(cmd)
	return res, res.Err
}

// CreateMarket submits a create command on behalf of caller.
func (s *Sequencer) CreateMarket(ctx context.Context, caller domain.Identity, question string, endTime int64, oracle domain.Identity, curated bool) (event.Result, error) {
	return s.do(ctx, func(cmd *event.Command) {
		cmd.Kind = event.CmdCreate
		cmd.Caller = caller
		cmd.Question = question
		cmd.EndTime = endTime
		cmd.Oracle = oracle
		cmd.IsCurated = curated
	})
}

// PlaceBet submits a bet of caller.
func (s *Sequencer) PlaceBet(ctx context.Context, caller, market domain.Identity, side domain.Side, amount uint64) (event.Result, error) {
	return s.do(ctx, func(cmd *event.Command) {
		cmd.Kind = event.CmdPlaceBet
		cmd.Caller = caller
		cmd.Market = market
		cmd.Side = side
		cmd.Amount = amount
	})
}

// CloseMarket submits a close command.
func (s *Sequencer) CloseMarket(ctx context.Context, caller, market domain.Identity) (event.Result, error) {
	return s.do(ctx, func(cmd *event.Command) {
		cmd.Kind = event.CmdClose
		cmd.Caller = caller
		cmd.Market = market
	})
}

// ResolveMarket submits the oracle's outcome.
func (s *Sequencer) ResolveMarket(ctx context.Context, caller, market domain.Identity, outcome domain.Outcome) (event.Result, error) {
	return s.do(ctx, func(cmd *event.Command) {
		cmd.Kind = event.CmdResolve
		cmd.Caller = caller
		cmd.Market = market
		cmd.Outcome = outcome
	})
}

// Withdraw submits a claim of bet by caller.
func (s *Sequencer) Withdraw(ctx context.Context, caller, market, bet domain.Identity) (event.Result, error) {
	return s.do(ctx, func(cmd *event.Command) {
		cmd.Kind = event.CmdWithdraw
		cmd.Caller = caller
		cmd.Market = market
		cmd.Bet = bet
	})
}
