package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/annel0/world-observer/internal/capture"
	"github.com/annel0/world-observer/internal/logging"
	"github.com/annel0/world-observer/internal/vec"
)

func synthCommand() *cli.Command {
	return &cli.Command{
		Name:      "synth",
		Usage:     "write a synthetic capture (login, spawn, columns around spawn)",
		ArgsUsage: "OUTFILE",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "radius", Value: 2, Usage: "columns around spawn"},
			&cli.IntFlag{Name: "threshold", Value: 256, Usage: "compression threshold, -1 disables set_compression"},
			&cli.Int64Flag{Name: "seed", Value: 1},
			&cli.IntFlag{Name: "segment-size", Value: 1400, Usage: "re-slice stream into segments of N bytes, 0 keeps frames"},
			&cli.Float64Flag{Name: "x", Value: 8},
			&cli.Float64Flag{Name: "y", Value: 70},
			&cli.Float64Flag{Name: "z", Value: 8},
		},
		Action: runSynth,
	}
}

func runSynth(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("need an output file")
	}
	cfg := loadedConfig(c)
	table, err := cfg.Protocol.PacketTable()
	if err != nil {
		return err
	}

	segs, err := capture.Synthesize(capture.SynthOptions{
		Table:       table,
		World:       cfg.World.DecoderConfig(),
		Version:     int32(cfg.Protocol.Version),
		Threshold:   c.Int("threshold"),
		Radius:      c.Int("radius"),
		Seed:        c.Int64("seed"),
		SegmentSize: c.Int("segment-size"),
		Spawn:       vec.Coord3D{X: c.Float64("x"), Y: c.Float64("y"), Z: c.Float64("z")},
	})
	if err != nil {
		return err
	}

	f, err := os.Create(c.Args().First())
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	w, err := capture.NewWriter(bw)
	if err != nil {
		return err
	}
	for _, s := range segs {
		if err := w.Write(s); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	logging.Info("🧪 Wrote %d segments to %s", len(segs), c.Args().First())
	return nil
}
