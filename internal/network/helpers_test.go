package network

import (
	"bytes"
	"io"
	"testing"

	"github.com/annel0/world-observer/internal/config"
	"github.com/annel0/world-observer/internal/logging"
	"github.com/annel0/world-observer/internal/protocol"
	"github.com/annel0/world-observer/internal/vec"
	"github.com/annel0/world-observer/internal/world"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logging.Logger {
	return logging.NewWriterLogger("network-test", io.Discard, logging.ERROR)
}

func testOptions(t *testing.T) Options {
	t.Helper()
	opts, err := OptionsFromConfig(config.Default())
	require.NoError(t, err)
	opts.Logger = quietLogger()
	return opts
}

func frame(t *testing.T, id int32, payload []byte, threshold int) []byte {
	t.Helper()
	f, err := protocol.EncodeFrame(id, payload, threshold)
	require.NoError(t, err)
	return f
}

func handshakePayload(next int32) []byte {
	return protocol.NewWriter().
		WriteVarInt(340).
		WriteString("mc.example.org").
		WriteUint16(25565).
		WriteVarInt(next).
		Bytes()
}

func loginSuccessPayload() []byte {
	return protocol.NewWriter().
		WriteString("069a79f4-44e9-4726-a5be-fca90e38aaf5").
		WriteString("Notch").
		Bytes()
}

func positionPayload(x, y, z float64) []byte {
	return protocol.NewWriter().
		WriteDouble(x).WriteDouble(y).WriteDouble(z).
		Bytes()
}

func stringPayload(s string) []byte {
	return protocol.NewWriter().WriteString(s).Bytes()
}

// testColumn - колонна с одной заполненной секцией
func testColumn(x, z int, fill uint32) *world.Column {
	cfg := world.DefaultDecoderConfig()
	col := world.NewColumn(vec.Coord2D{X: x, Z: z}, cfg.SectionCount)
	col.FullChunk = true
	states := make([]uint32, world.SectionVolume)
	for i := range states {
		states[i] = fill + uint32(i%3)
	}
	col.Sections[2] = &world.Section{
		Y:          2,
		States:     states,
		Biomes:     make([]uint32, world.BiomeVolume),
		BlockLight: make([]byte, world.LightArraySize),
		SkyLight:   bytes.Repeat([]byte{0xFF}, world.LightArraySize),
	}
	return col
}

func chunkPayload(col *world.Column) []byte {
	return world.EncodeColumn(col, world.DefaultDecoderConfig())
}
