package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/annel0/world-observer/internal/capture"
	"github.com/annel0/world-observer/internal/logging"
	"github.com/annel0/world-observer/internal/network"
)

func tapCommand() *cli.Command {
	return &cli.Command{
		Name:  "tap",
		Usage: "accept a TCP tee of capture records (one connection per observed session)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "listen address (default: server.tap_addr)",
			},
		},
		Action: runTap,
	}
}

func runTap(c *cli.Context) error {
	cfg := loadedConfig(c)
	addr := c.String("listen")
	if addr == "" {
		addr = cfg.Server.TapAddr
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := newObserver(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		obs.close(shutdownCtx)
	}()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	logging.Info("🔌 Tap listening on %s", addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logging.Info("👋 Tap stopped")
				return nil
			}
			logging.Error("accept: %v", err)
			continue
		}
		// Сессии обрабатываются по очереди: состояние мира одно на процесс
		serveTap(ctx, obs, conn)
	}
}

func serveTap(ctx context.Context, obs *observer, conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()

	cr, err := capture.NewReader(conn)
	if err != nil {
		logging.Warn("tap %s: %v", remote, err)
		return
	}

	sess, err := obs.newSession()
	if err != nil {
		logging.Error("tap %s: %v", remote, err)
		return
	}
	logging.Info("🔗 Tap connection %s -> session %s", remote, sess.ID())

	segments := make(chan network.Segment, 64)
	go func() {
		if err := capture.Pump(ctx, cr, segments); err != nil && ctx.Err() == nil {
			logging.Warn("tap %s: %v", remote, err)
		}
	}()

	summary, err := sess.Run(ctx, segments)
	conn.Close()
	for range segments {
	}
	logSummary(summary)
	if err != nil && ctx.Err() == nil {
		logging.Error("tap %s: %v", remote, err)
	}
}
