package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/SandroAugusto/school-of-solana/internal/domain"
	"github.com/SandroAugusto/school-of-solana/internal/engine"
	"github.com/SandroAugusto/school-of-solana/internal/event"
	"github.com/SandroAugusto/school-of-solana/internal/infra"
	"github.com/SandroAugusto/school-of-solana/internal/infra/auth"
	"github.com/SandroAugusto/school-of-solana/internal/infra/storage"
	"github.com/SandroAugusto/school-of-solana/internal/server"
	"github.com/SandroAugusto/school-of-solana/internal/server/handler"
	"github.com/SandroAugusto/school-of-solana/internal/server/ws"
	"github.com/SandroAugusto/school-of-solana/internal/service"
	"github.com/SandroAugusto/school-of-solana/internal/settlement"
)

// Store is what the application needs from a storage driver.
type Store interface {
	domain.RecordStore
	domain.Journal
}

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config    *infra.Config
	Logger    *slog.Logger
	Store     Store
	Engine    *engine.Engine
	Sequencer *engine.Sequencer
	Board     *service.MarketBoard
	Hub       *ws.Hub
	Server    *server.Server

	closeStore func() error
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads the config at path and builds every component.
// Nothing is started; see Replay and the Run methods of each component.
func (b *Bootstrap) Initialize(path string) error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(path)
	if err != nil {
		return err
	}
	b.Config = cfg

	// 2. Setup Logger
	b.Logger = infra.NewLogger(cfg)
	slog.SetDefault(b.Logger)
	slog.Info("Bootstrapping prediction market",
		slog.String("version", cfg.App.Version),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("policy", cfg.Settlement.Policy))

	// 3. Initialize Storage
	if err := b.openStore(); err != nil {
		return err
	}

	// 4. Lifecycle engine and sequencer
	policy, err := settlement.PolicyByName(cfg.Settlement.Policy)
	if err != nil {
		return err
	}
	b.Engine = engine.NewEngine(b.Store, &infra.SystemClock{})
	b.Board = service.NewMarketBoard()
	b.Hub = ws.NewHub(b.Logger, infra.GlobalMetrics, b.lastSeq, cfg.Server.CORSOrigins)
	b.Sequencer = engine.NewSequencer(cfg.Sequencer.InboxSize, b.Engine, b.Store, policy, b.fanOut)
	b.Sequencer.SetDumpPath(cfg.Sequencer.DumpPath)

	// 5. HTTP API
	signer := auth.NewSigner(cfg.Auth.Secret)
	b.Server = server.NewServer(
		server.Config{Addr: cfg.Server.Addr, CORSOrigins: cfg.Server.CORSOrigins},
		server.Handlers{
			Health:  handler.NewHealthHandler(b.lastSeq),
			Markets: handler.NewMarketHandler(b.Sequencer, b.Engine, b.Board, policy, b.Logger),
			Events:  handler.NewEventHandler(b.Store, b.Logger),
			Metrics: handler.NewMetricsHandler(infra.GlobalMetrics),
		},
		b.Hub, signer, b.Logger,
	)

	slog.Info("Bootstrap complete", slog.String("addr", cfg.Server.Addr))
	return nil
}

func (b *Bootstrap) openStore() error {
	switch b.Config.Storage.Driver {
	case "memory":
		b.Store = storage.NewMemoryStore()
		b.closeStore = func() error { return nil }
	default:
		store, err := storage.NewStorage(b.Config.Storage.Path)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		b.Store = store
		b.closeStore = store.Close
	}
	slog.Info("Storage initialized", slog.String("driver", b.Config.Storage.Driver))
	return nil
}

// IssueToken returns the capability token for the base58 identity under the
// auth secret of the config at path. Operators hand it to the identity's owner.
func IssueToken(path, identity string) (string, error) {
	cfg, err := infra.LoadConfig(path)
	if err != nil {
		return "", err
	}
	id, err := domain.ParseIdentity(identity)
	if err != nil {
		return "", fmt.Errorf("invalid identity: %w", err)
	}
	if id.IsZero() {
		return "", errors.New("invalid identity: zero key")
	}
	return auth.NewSigner(cfg.Auth.Secret).Token(id), nil
}

// Replay rebuilds the board from the journal and positions the sequencer
// after the last journaled event. Call it before starting the sequencer.
func (b *Bootstrap) Replay(ctx context.Context) error {
	return b.Sequencer.Replay(ctx, b.Board.Apply)
}

// Close releases the store.
func (b *Bootstrap) Close() error {
	if b.closeStore == nil {
		return nil
	}
	return b.closeStore()
}

// fanOut hands every committed event to the board and the live feed.
func (b *Bootstrap) fanOut(ev event.Event) {
	b.Board.Publish(ev)
	b.Hub.Publish(ev)
}

func (b *Bootstrap) lastSeq() uint64 {
	if b.Sequencer == nil {
		return 0
	}
	return b.Sequencer.LastSeq()
}
