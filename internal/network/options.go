package network

import (
	"github.com/annel0/world-observer/internal/config"
)

// OptionsFromConfig собирает параметры сессии из конфигурации.
// State, Listener, Logger, Metrics и Tracer заполняет вызывающий.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	table, err := cfg.Protocol.PacketTable()
	if err != nil {
		return Options{}, err
	}
	start, err := cfg.Protocol.Start()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Table:          table,
		Frame:          cfg.Protocol.FrameConfig(),
		World:          cfg.World.DecoderConfig(),
		PositionOffset: cfg.World.PositionOffset,
		StartPhase:     start,
	}, nil
}
