package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SandroAugusto/school-of-solana/internal/app"
	"github.com/SandroAugusto/school-of-solana/internal/event"

	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	issueToken := flag.String("issue-token", "", "print the capability token for a base58 identity and exit")
	flag.Parse()

	if *issueToken != "" {
		token, err := app.IssueToken(*configPath, *issueToken)
		if err != nil {
			fmt.Fprintln(os.Stderr, "issue token:", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Rebuild read model from the journal
	if err := bootstrap.Replay(ctx); err != nil {
		slog.Error("Journal replay failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 4. Board, feed, sequencer and HTTP API
	event.Warmup()
	bootstrap.Board.StartEventProcessor(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bootstrap.Hub.Run(gctx)
	})
	g.Go(func() error {
		bootstrap.Sequencer.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return bootstrap.Server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return bootstrap.Server.Shutdown(shutdownCtx)
	})
	slog.InfoContext(ctx, "Prediction market running", slog.Uint64("last_seq", bootstrap.Sequencer.LastSeq()))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Shutdown with error", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("Shut down gracefully")
}
