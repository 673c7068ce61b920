package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/annel0/world-observer/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "observer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	table, err := cfg.Protocol.PacketTable()
	require.NoError(t, err)

	id, ok := table.Lookup(protocol.PhasePlay, protocol.Clientbound, protocol.PacketPlayChunkData)
	require.True(t, ok)
	assert.Equal(t, int32(0x20), id)

	id, ok = table.Lookup(protocol.PhasePlay, protocol.Clientbound, protocol.PacketPlayPlayerPosition)
	require.True(t, ok)
	assert.Equal(t, int32(0x2F), id)

	assert.Equal(t, protocol.CompressionDisabled, cfg.Protocol.FrameConfig().CompressionThreshold)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
protocol:
  start_phase: play
  compression:
    enabled: true
    threshold: 64
  packets:
    play:
      clientbound:
        chunk_data: 0x22
        player_position: 0x32
world:
  section_count: 24
  has_sky_light: false
  position_offset: {x: 0.5, y: 0, z: -0.5}
server:
  rest_port: 9000
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	start, err := cfg.Protocol.Start()
	require.NoError(t, err)
	assert.Equal(t, protocol.PhasePlay, start)
	assert.Equal(t, 64, cfg.Protocol.FrameConfig().CompressionThreshold)

	table, err := cfg.Protocol.PacketTable()
	require.NoError(t, err)
	id, _ := table.Lookup(protocol.PhasePlay, protocol.Clientbound, protocol.PacketPlayChunkData)
	assert.Equal(t, int32(0x22), id)
	_, ok := table.Lookup(protocol.PhaseLogin, protocol.Clientbound, protocol.PacketLoginSuccess)
	assert.True(t, ok, "фазы, которых нет в файле, остаются по умолчанию")

	assert.Equal(t, 24, cfg.World.SectionCount)
	assert.False(t, cfg.World.HasSkyLight)
	assert.Equal(t, 0.5, cfg.World.PositionOffset.X)
	assert.Equal(t, -0.5, cfg.World.PositionOffset.Z)
	assert.Equal(t, 8, cfg.World.BlockStates.MaxPaletteBits, "не заданные поля сохраняются")
	assert.Equal(t, 9000, cfg.Server.GetRESTPort())
}

func TestLoadFromEnv(t *testing.T) {
	path := writeConfig(t, "storage:\n  enabled: true\n  persist_every_seconds: 5\n")
	t.Setenv("OBSERVER_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Storage.Enabled)
	assert.Equal(t, 5, cfg.Storage.PersistEvery)
}

func TestLoadWithoutPath(t *testing.T) {
	t.Setenv("OBSERVER_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 340, cfg.Protocol.Version)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"phase":     "protocol:\n  packets:\n    config:\n      clientbound:\n        chunk_data: 1\n",
		"direction": "protocol:\n  packets:\n    play:\n      sideways:\n        chunk_data: 1\n",
		"dup id":    "protocol:\n  packets:\n    play:\n      clientbound:\n        chunk_data: 1\n        player_position: 1\n",
		"start":     "protocol:\n  start_phase: configuration\n",
		"sections":  "world:\n  section_count: 0\n",
		"palette":   "world:\n  block_states: {min_bits: 4, max_palette_bits: 8, direct_bits: 8}\n",
		"level":     "logging:\n  console_level: chatty\n",
		"yaml":      "protocol: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPortFallbacks(t *testing.T) {
	s := ServerConfig{}
	t.Setenv("OBSERVER_HTTP_PORT", "")
	t.Setenv("OBSERVER_METRICS_PORT", "9100")

	assert.Equal(t, 8088, s.GetRESTPort())
	assert.Equal(t, 9100, s.GetMetricsPort())

	s.MetricsPort = 9200
	assert.Equal(t, 9200, s.GetMetricsPort())
}
