package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/annel0/world-observer/internal/logging"
	"github.com/annel0/world-observer/internal/protocol"
	"github.com/annel0/world-observer/internal/vec"
	"github.com/annel0/world-observer/internal/world"
)

// AppVersion подставляется при сборке: -ldflags "-X .../config.AppVersion=..."
var AppVersion = "dev"

// Config корневая структура конфигурации наблюдателя.
// Load накладывает YAML поверх Default(): отсутствующие ключи сохраняют значения по умолчанию.
type Config struct {
	Protocol  ProtocolConfig  `yaml:"protocol"`
	World     WorldConfig     `yaml:"world"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// PacketIDs - таблица "фаза -> направление -> семантический тип -> ID".
// Переопределение фазы в YAML заменяет таблицу этой фазы целиком.
type PacketIDs map[string]map[string]map[string]int32

type ProtocolConfig struct {
	Version        int               `yaml:"version"`
	StartPhase     string            `yaml:"start_phase"` // handshake, если запись начинается с рукопожатия
	Compression    CompressionConfig `yaml:"compression"`
	MaxFrameSize   int               `yaml:"max_frame_size"`
	MaxPayloadSize int               `yaml:"max_payload_size"`
	Packets        PacketIDs         `yaml:"packets"`
}

// CompressionConfig - сжатие, уже согласованное до начала записи.
// Обычно выключено: set_compression включит его по ходу сессии.
type CompressionConfig struct {
	Enabled   bool `yaml:"enabled"`
	Threshold int  `yaml:"threshold"`
}

type WorldConfig struct {
	SectionCount   int                 `yaml:"section_count"`
	HasSkyLight    bool                `yaml:"has_sky_light"`
	PositionOffset vec.Coord3D         `yaml:"position_offset"`
	BlockStates    world.PaletteFormat `yaml:"block_states"`
	Biomes         world.PaletteFormat `yaml:"biomes"`
}

type StorageConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Path         string `yaml:"path"`
	InMemory     bool   `yaml:"in_memory"`
	PersistEvery int    `yaml:"persist_every_seconds"`
}

type RedisConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	KeyPrefix  string `yaml:"key_prefix"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

type EventBusConfig struct {
	URL       string `yaml:"url"` // Пусто - шина в памяти
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

type ServerConfig struct {
	Enabled     bool   `yaml:"enabled"`
	RESTPort    int    `yaml:"rest_port"`
	MetricsPort int    `yaml:"metrics_port"`
	TapAddr     string `yaml:"tap_addr"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

type LoggingConfig struct {
	Dir          string `yaml:"dir"`
	ConsoleLevel string `yaml:"console_level"`
	FileLevel    string `yaml:"file_level"`
}

// Default возвращает конфигурацию для протокола 340
func Default() *Config {
	return &Config{
		Protocol: ProtocolConfig{
			Version:        340,
			StartPhase:     protocol.PhaseHandshake.String(),
			Compression:    CompressionConfig{Enabled: false, Threshold: 256},
			MaxFrameSize:   protocol.DefaultMaxFrameSize,
			MaxPayloadSize: protocol.DefaultMaxPayloadSize,
			Packets: PacketIDs{
				"handshake": {
					"serverbound": {protocol.PacketHandshake: 0x00},
				},
				"status": {
					"clientbound": {
						protocol.PacketStatusResponse: 0x00,
						protocol.PacketStatusPong:     0x01,
					},
				},
				"login": {
					"clientbound": {
						protocol.PacketLoginDisconnect:        0x00,
						protocol.PacketLoginEncryptionRequest: 0x01,
						protocol.PacketLoginSuccess:           0x02,
						protocol.PacketLoginSetCompression:    0x03,
					},
				},
				"play": {
					"clientbound": {
						protocol.PacketPlayDisconnect:     0x1A,
						protocol.PacketPlayChunkData:      0x20,
						protocol.PacketPlayPlayerPosition: 0x2F,
					},
				},
			},
		},
		World: WorldConfig{
			SectionCount: 16,
			HasSkyLight:  true,
			BlockStates:  world.DefaultBlockStateFormat(),
			Biomes:       world.DefaultBiomeFormat(),
		},
		Storage: StorageConfig{
			Path:         "data/columns",
			PersistEvery: 30,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			KeyPrefix:  "observer:",
			TTLSeconds: 3600,
		},
		EventBus: EventBusConfig{
			Stream:    "OBSERVER",
			Retention: 24,
		},
		Server: ServerConfig{
			Enabled: true,
			TapAddr: ":25566",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4318",
			ServiceName: "world-observer",
		},
		Logging: LoggingConfig{
			ConsoleLevel: "INFO",
			FileLevel:    "DEBUG",
		},
	}
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать из ENV OBSERVER_CONFIG или возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("OBSERVER_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate проверяет конфигурацию целиком
func (c *Config) Validate() error {
	if _, err := c.Protocol.PacketTable(); err != nil {
		return err
	}
	if _, err := c.Protocol.Start(); err != nil {
		return err
	}
	if c.Protocol.MaxFrameSize <= 0 || c.Protocol.MaxPayloadSize <= 0 {
		return fmt.Errorf("protocol: max sizes must be positive")
	}
	if c.Protocol.Compression.Enabled && c.Protocol.Compression.Threshold < 0 {
		return fmt.Errorf("protocol: compression threshold %d is negative", c.Protocol.Compression.Threshold)
	}
	if err := c.World.DecoderConfig().Validate(); err != nil {
		return fmt.Errorf("world: %w", err)
	}
	if c.Storage.Enabled && c.Storage.PersistEvery <= 0 {
		return fmt.Errorf("storage: persist_every_seconds must be positive")
	}
	if _, err := logging.ParseLevel(c.Logging.ConsoleLevel); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if _, err := logging.ParseLevel(c.Logging.FileLevel); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// PacketTable разбирает таблицу ID пакетов. Имена фаз и направлений проверяются здесь;
// имена типов пакетов проверяет диспетчер при построении.
func (p ProtocolConfig) PacketTable() (protocol.PacketTable, error) {
	table := make(protocol.PacketTable)
	for phaseName, dirs := range p.Packets {
		phase, err := protocol.ParsePhase(phaseName)
		if err != nil {
			return nil, fmt.Errorf("protocol.packets: %w", err)
		}
		if table[phase] == nil {
			table[phase] = make(map[protocol.Direction]map[string]int32)
		}
		for dirName, names := range dirs {
			dir, err := protocol.ParseDirection(dirName)
			if err != nil {
				return nil, fmt.Errorf("protocol.packets.%s: %w", phaseName, err)
			}
			ids := make(map[string]int32, len(names))
			seen := make(map[int32]string, len(names))
			for name, id := range names {
				if id < 0 {
					return nil, fmt.Errorf("protocol.packets.%s.%s.%s: negative id %d", phaseName, dirName, name, id)
				}
				if other, dup := seen[id]; dup {
					return nil, fmt.Errorf("protocol.packets.%s.%s: id 0x%02X used by %s and %s", phaseName, dirName, id, other, name)
				}
				seen[id] = name
				ids[name] = id
			}
			table[phase][dir] = ids
		}
	}
	return table, nil
}

// Start возвращает фазу, с которой начинается запись
func (p ProtocolConfig) Start() (protocol.Phase, error) {
	if p.StartPhase == "" {
		return protocol.PhaseHandshake, nil
	}
	phase, err := protocol.ParsePhase(p.StartPhase)
	if err != nil {
		return 0, fmt.Errorf("protocol.start_phase: %w", err)
	}
	return phase, nil
}

// FrameConfig возвращает параметры декодера кадров
func (p ProtocolConfig) FrameConfig() protocol.FrameConfig {
	threshold := protocol.CompressionDisabled
	if p.Compression.Enabled {
		threshold = p.Compression.Threshold
	}
	return protocol.FrameConfig{
		CompressionThreshold: threshold,
		MaxFrameSize:         p.MaxFrameSize,
		MaxPayloadSize:       p.MaxPayloadSize,
	}
}

// DecoderConfig возвращает параметры декодера колонн
func (w WorldConfig) DecoderConfig() world.DecoderConfig {
	return world.DecoderConfig{
		SectionCount: w.SectionCount,
		HasSkyLight:  w.HasSkyLight,
		BlockStates:  w.BlockStates,
		Biomes:       w.Biomes,
	}
}

// LoggingOptions возвращает параметры логгеров; неверные уровни заменяются INFO
func (l LoggingConfig) LoggingOptions() logging.Options {
	opts := logging.DefaultOptions()
	opts.Dir = l.Dir
	if lvl, err := logging.ParseLevel(l.ConsoleLevel); err == nil {
		opts.ConsoleLevel = lvl
	}
	if lvl, err := logging.ParseLevel(l.FileLevel); err == nil {
		opts.FileLevel = lvl
	}
	return opts
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "OBSERVER_HTTP_PORT", 8088)
}

// GetMetricsPort возвращает порт Prometheus метрик с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "OBSERVER_METRICS_PORT", 2112)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}
