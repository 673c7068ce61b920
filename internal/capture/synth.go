package capture

import (
	"fmt"
	"math/rand"

	"github.com/annel0/world-observer/internal/network"
	"github.com/annel0/world-observer/internal/protocol"
	"github.com/annel0/world-observer/internal/vec"
	"github.com/annel0/world-observer/internal/world"
)

// SynthOptions описывает синтетическую сессию для демо и тестов
type SynthOptions struct {
	Table       protocol.PacketTable
	World       world.DecoderConfig
	Version     int32
	Threshold   int   // Порог сжатия после set_compression; <0 - без сжатия
	Radius      int   // Колонны от -Radius до Radius вокруг (0, 0)
	Seed        int64 // Для содержимого секций
	SegmentSize int   // Нарезка потока на сегменты; 0 - кадр на сегмент
	Spawn       vec.Coord3D
}

// Synthesize строит поток логина и загрузки колонн
func Synthesize(opts SynthOptions) ([]network.Segment, error) {
	id := func(phase protocol.Phase, dir protocol.Direction, name string) (int32, error) {
		if v, ok := opts.Table[phase][dir][name]; ok {
			return v, nil
		}
		return 0, fmt.Errorf("synth: packet %s/%s/%s not in table", phase, dir, name)
	}

	var segs []network.Segment
	threshold := -1
	add := func(dir protocol.Direction, phase protocol.Phase, name string, payload []byte) error {
		pid, err := id(phase, dir, name)
		if err != nil {
			return err
		}
		f, err := protocol.EncodeFrame(pid, payload, threshold)
		if err != nil {
			return err
		}
		segs = append(segs, network.Segment{Direction: dir, Data: f})
		return nil
	}

	handshake := protocol.NewWriter().
		WriteVarInt(opts.Version).
		WriteString("localhost").
		WriteUint16(25565).
		WriteVarInt(2).
		Bytes()
	if err := add(protocol.Serverbound, protocol.PhaseHandshake, protocol.PacketHandshake, handshake); err != nil {
		return nil, err
	}

	if opts.Threshold >= 0 {
		payload := protocol.NewWriter().WriteVarInt(int32(opts.Threshold)).Bytes()
		if err := add(protocol.Clientbound, protocol.PhaseLogin, protocol.PacketLoginSetCompression, payload); err != nil {
			return nil, err
		}
		threshold = opts.Threshold
	}

	success := protocol.NewWriter().
		WriteString("00000000-0000-0000-0000-000000000000").
		WriteString("observer").
		Bytes()
	if err := add(protocol.Clientbound, protocol.PhaseLogin, protocol.PacketLoginSuccess, success); err != nil {
		return nil, err
	}

	pos := protocol.NewWriter().
		WriteDouble(opts.Spawn.X).WriteDouble(opts.Spawn.Y).WriteDouble(opts.Spawn.Z).
		WriteUint8(0).
		Bytes()
	if err := add(protocol.Clientbound, protocol.PhasePlay, protocol.PacketPlayPlayerPosition, pos); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	center := opts.Spawn.ChunkPos()
	for x := center.X - opts.Radius; x <= center.X+opts.Radius; x++ {
		for z := center.Z - opts.Radius; z <= center.Z+opts.Radius; z++ {
			col := synthColumn(vec.Coord2D{X: x, Z: z}, opts.World, rng)
			if err := add(protocol.Clientbound, protocol.PhasePlay, protocol.PacketPlayChunkData, world.EncodeColumn(col, opts.World)); err != nil {
				return nil, err
			}
		}
	}

	if opts.SegmentSize > 0 {
		segs = resegment(segs, opts.SegmentSize)
	}
	return segs, nil
}

// synthColumn - земля до высоты 4 секций с шумом сверху
func synthColumn(c vec.Coord2D, cfg world.DecoderConfig, rng *rand.Rand) *world.Column {
	col := world.NewColumn(c, cfg.SectionCount)
	col.FullChunk = true
	ground := 4
	if ground > cfg.SectionCount {
		ground = cfg.SectionCount
	}
	for y := 0; y < ground; y++ {
		states := make([]uint32, world.SectionVolume)
		for i := range states {
			switch {
			case y < ground-1:
				states[i] = 1 // камень
			case rng.Intn(8) == 0:
				states[i] = 0
			default:
				states[i] = uint32(2 + rng.Intn(3))
			}
		}
		sec := &world.Section{
			Y:          y,
			States:     states,
			Biomes:     make([]uint32, world.BiomeVolume),
			BlockLight: make([]byte, world.LightArraySize),
		}
		if cfg.HasSkyLight {
			sec.SkyLight = make([]byte, world.LightArraySize)
		}
		col.Sections[y] = sec
	}
	return col
}

// resegment склеивает кадры одного направления и режет их на части size байт
func resegment(in []network.Segment, size int) []network.Segment {
	var out []network.Segment
	for i := 0; i < len(in); {
		dir := in[i].Direction
		var buf []byte
		for ; i < len(in) && in[i].Direction == dir; i++ {
			buf = append(buf, in[i].Data...)
		}
		for len(buf) > 0 {
			n := size
			if n > len(buf) {
				n = len(buf)
			}
			out = append(out, network.Segment{Direction: dir, Data: buf[:n]})
			buf = buf[n:]
		}
	}
	return out
}
