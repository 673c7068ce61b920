package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/annel0/world-observer/internal/config"
	"github.com/annel0/world-observer/internal/logging"
)

func main() {
	app := &cli.App{
		Name:    "observer",
		Usage:   "passively reconstructs world state from a decrypted game protocol stream",
		Version: config.AppVersion,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to YAML config (default: $OBSERVER_CONFIG or built-in defaults)",
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if err := logging.InitDefaultLogger(cfg.Logging.LoggingOptions()); err != nil {
				return err
			}
			c.App.Metadata = map[string]interface{}{"config": cfg}
			return nil
		},
		After: func(c *cli.Context) error {
			logging.GetLoggerManager().CloseAll()
			logging.CloseDefaultLogger()
			return nil
		},
		Commands: []*cli.Command{
			replayCommand(),
			tapCommand(),
			synthCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func loadedConfig(c *cli.Context) *config.Config {
	return c.App.Metadata["config"].(*config.Config)
}
