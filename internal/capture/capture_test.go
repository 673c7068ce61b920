package capture

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/world-observer/internal/config"
	"github.com/annel0/world-observer/internal/network"
	"github.com/annel0/world-observer/internal/protocol"
	"github.com/annel0/world-observer/internal/vec"
)

func TestWriteThenRead(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)

	in := []network.Segment{
		{Direction: protocol.Serverbound, Data: []byte{1, 2, 3}},
		{Direction: protocol.Clientbound, Data: []byte{}},
		{Direction: protocol.Clientbound, Data: bytes.Repeat([]byte{7}, 1000)},
	}
	for _, s := range in {
		require.NoError(t, w.Write(s))
	}

	r, err := NewReader(&buf)
	require.NoError(t, err)
	for _, want := range in {
		got, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, want.Direction, got.Direction)
		assert.Equal(t, want.Data, got.Data)
	}
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 3, r.Records())
}

func TestReaderErrors(t *testing.T) {
	t.Run("BadMagic", func(t *testing.T) {
		_, err := NewReader(bytes.NewReader([]byte("NOTACAPTURE")))
		assert.ErrorIs(t, err, ErrBadMagic)
	})

	t.Run("ShortMagic", func(t *testing.T) {
		_, err := NewReader(bytes.NewReader([]byte("OBS")))
		assert.ErrorIs(t, err, ErrBadMagic)
	})

	t.Run("TruncatedHeader", func(t *testing.T) {
		r, err := NewReader(bytes.NewReader([]byte(Magic + "\x00\x00")))
		require.NoError(t, err)
		_, err = r.Next()
		assert.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("TruncatedBody", func(t *testing.T) {
		r, err := NewReader(bytes.NewReader([]byte(Magic + "\x00\x00\x00\x00\x05ab")))
		require.NoError(t, err)
		_, err = r.Next()
		assert.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("BadDirection", func(t *testing.T) {
		r, err := NewReader(bytes.NewReader([]byte(Magic + "\x07\x00\x00\x00\x00")))
		require.NoError(t, err)
		_, err = r.Next()
		assert.ErrorIs(t, err, ErrBadDirection)
	})

	t.Run("TooLarge", func(t *testing.T) {
		r, err := NewReader(bytes.NewReader([]byte(Magic + "\x00\xff\xff\xff\xff")))
		require.NoError(t, err)
		_, err = r.Next()
		assert.ErrorIs(t, err, ErrRecordTooLarge)
	})
}

func TestPumpRaw(t *testing.T) {
	out := make(chan network.Segment, 16)
	data := bytes.Repeat([]byte{1}, 25)
	require.NoError(t, PumpRaw(context.Background(), bytes.NewReader(data), protocol.Clientbound, 10, out))

	var total int
	for seg := range out {
		assert.Equal(t, protocol.Clientbound, seg.Direction)
		total += len(seg.Data)
	}
	assert.Equal(t, 25, total)
}

func synthOptions(t *testing.T) SynthOptions {
	t.Helper()
	cfg := config.Default()
	table, err := cfg.Protocol.PacketTable()
	require.NoError(t, err)
	return SynthOptions{
		Table:     table,
		World:     cfg.World.DecoderConfig(),
		Version:   int32(cfg.Protocol.Version),
		Threshold: 256,
		Radius:    1,
		Seed:      42,
		Spawn:     vec.Coord3D{X: 8, Y: 70, Z: 8},
	}
}

// Синтетическая запись, прогнанная через файл и сессию, восстанавливает мир
func TestSynthesizeDecodes(t *testing.T) {
	for _, segSize := range []int{0, 777} {
		opts := synthOptions(t)
		opts.SegmentSize = segSize

		segs, err := Synthesize(opts)
		require.NoError(t, err)

		var buf bytes.Buffer
		w, err := NewWriter(&buf)
		require.NoError(t, err)
		for _, s := range segs {
			require.NoError(t, w.Write(s))
		}

		r, err := NewReader(&buf)
		require.NoError(t, err)

		sessOpts, err := network.OptionsFromConfig(config.Default())
		require.NoError(t, err)
		sess, err := network.NewSession(sessOpts)
		require.NoError(t, err)

		ch := make(chan network.Segment, 8)
		errc := make(chan error, 1)
		go func() { errc <- Pump(context.Background(), r, ch) }()

		summary, err := sess.Run(context.Background(), ch)
		require.NoError(t, err)
		require.NoError(t, <-errc)

		assert.Equal(t, protocol.PhasePlay, summary.Phase)
		assert.Equal(t, 9, summary.Columns, "segment size %d", segSize)
		assert.True(t, summary.HasPosition)
		assert.Equal(t, vec.Coord3D{X: 8, Y: 70, Z: 8}, summary.LastPosition)
		assert.Zero(t, summary.Dispatch.HandlerErrors)

		col, ok := sess.State().Column(vec.Coord2D{X: 1, Z: -1})
		require.True(t, ok)
		assert.Equal(t, 4, col.PresentSections())
		assert.Equal(t, uint32(1), col.Sections[0].States[0])
	}
}

func TestSynthesizeMissingPacket(t *testing.T) {
	opts := synthOptions(t)
	delete(opts.Table[protocol.PhasePlay][protocol.Clientbound], protocol.PacketPlayChunkData)
	_, err := Synthesize(opts)
	assert.Error(t, err)
}

func TestResegmentKeepsDirectionOrder(t *testing.T) {
	in := []network.Segment{
		{Direction: protocol.Serverbound, Data: []byte("abc")},
		{Direction: protocol.Clientbound, Data: []byte("defg")},
		{Direction: protocol.Clientbound, Data: []byte("hi")},
	}
	out := resegment(in, 4)
	require.Len(t, out, 3)
	assert.Equal(t, []byte("abc"), out[0].Data)
	assert.Equal(t, []byte("defg"), out[1].Data)
	assert.Equal(t, []byte("hi"), out[2].Data)
}
