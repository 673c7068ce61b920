package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/annel0/world-observer/internal/capture"
	"github.com/annel0/world-observer/internal/logging"
	"github.com/annel0/world-observer/internal/network"
	"github.com/annel0/world-observer/internal/protocol"
)

func replayCommand() *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "decode capture files in order",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "raw",
				Usage: "files are raw streams of one direction (clientbound|serverbound), not capture records",
			},
			&cli.StringFlag{
				Name:  "start-phase",
				Usage: "override protocol.start_phase (handshake|status|login|play)",
			},
			&cli.BoolFlag{
				Name:  "serve",
				Usage: "keep REST API running after replay until interrupted",
			},
		},
		Action: runReplay,
	}
}

func runReplay(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("need at least one capture file")
	}
	cfg := loadedConfig(c)
	if p := c.String("start-phase"); p != "" {
		cfg.Protocol.StartPhase = p
	}

	var rawDir *protocol.Direction
	if raw := c.String("raw"); raw != "" {
		dir, err := protocol.ParseDirection(raw)
		if err != nil {
			return err
		}
		rawDir = &dir
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := newObserver(ctx, cfg, c.Bool("serve"))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		obs.close(shutdownCtx)
	}()

	for _, path := range c.Args().Slice() {
		if err := replayFile(ctx, obs, path, rawDir); err != nil {
			return err
		}
	}

	if c.Bool("serve") {
		logging.Info("✅ Replay finished, serving state until interrupted")
		<-ctx.Done()
		logging.Info("📡 Получен сигнал завершения")
	}
	return nil
}

func replayFile(ctx context.Context, obs *observer, path string, rawDir *protocol.Direction) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sess, err := obs.newSession()
	if err != nil {
		return err
	}
	logging.Info("▶️ Replaying %s as session %s", path, sess.ID())

	segments := make(chan network.Segment, 64)
	pumpErr := make(chan error, 1)
	if rawDir != nil {
		go func() { pumpErr <- capture.PumpRaw(ctx, f, *rawDir, 0, segments) }()
	} else {
		cr, err := capture.NewReader(f)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		go func() { pumpErr <- capture.Pump(ctx, cr, segments) }()
	}

	summary, runErr := sess.Run(ctx, segments)
	// Сессия может завершиться раньше записи (disconnect): дочитываем канал, чтобы pump вышел
	go func() {
		for range segments {
		}
	}()
	logSummary(summary)

	if runErr != nil {
		return fmt.Errorf("%s: %w", path, runErr)
	}
	if err := <-pumpErr; err != nil && ctx.Err() == nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
