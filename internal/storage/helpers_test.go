package storage

import (
	"bytes"
	"time"

	"github.com/annel0/world-observer/internal/vec"
	"github.com/annel0/world-observer/internal/world"
)

func testColumn(x, z int, fill uint32) *world.Column {
	col := world.NewColumn(vec.Coord2D{X: x, Z: z}, world.DefaultDecoderConfig().SectionCount)
	col.FullChunk = true
	col.DecodedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	states := make([]uint32, world.SectionVolume)
	for i := range states {
		states[i] = fill + uint32(i%5)
	}
	col.Sections[3] = &world.Section{
		Y:          3,
		Palette:    []uint32{fill, fill + 1, fill + 2, fill + 3, fill + 4},
		States:     states,
		Biomes:     make([]uint32, world.BiomeVolume),
		BlockLight: make([]byte, world.LightArraySize),
		SkyLight:   bytes.Repeat([]byte{0xF0}, world.LightArraySize),
	}
	return col
}
