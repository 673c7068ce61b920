package world

import (
	"testing"

	"github.com/annel0/world-observer/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSectionAccessors(t *testing.T) {
	s := &Section{
		States:     make([]uint32, SectionVolume),
		Biomes:     make([]uint32, BiomeVolume),
		BlockLight: make([]byte, LightArraySize),
	}
	s.States[blockIndex(3, 5, 7)] = 42
	s.Biomes[1*16+1*4+0] = 9
	s.BlockLight[blockIndex(2, 0, 0)>>1] = 0x0C // чётный индекс - младший полубайт
	s.BlockLight[blockIndex(3, 0, 0)>>1] |= 0xB0

	assert.Equal(t, uint32(42), s.BlockAt(3, 5, 7))
	assert.Equal(t, uint32(0), s.BlockAt(3, 5, 8))
	assert.Equal(t, uint32(9), s.BiomeAt(2, 6, 5))
	assert.Equal(t, uint8(0x0C), s.BlockLightAt(2, 0, 0))
	assert.Equal(t, uint8(0x0B), s.BlockLightAt(3, 0, 0))
	assert.Equal(t, uint8(0), s.SkyLightAt(3, 0, 0), "без неба освещение нулевое")
	assert.Equal(t, 1, s.NonAirCount())
}

func TestColumnSections(t *testing.T) {
	col := NewColumn(vec.Coord2D{X: -2, Z: 3}, 16)
	assert.Equal(t, 0, col.PresentSections())
	assert.Equal(t, uint32(0), col.SectionMask())

	s := &Section{Y: 4, States: make([]uint32, SectionVolume)}
	s.States[blockIndex(1, 2, 3)] = 7
	col.Sections[4] = s

	assert.Equal(t, 1, col.PresentSections())
	assert.Equal(t, uint32(1<<4), col.SectionMask())
	assert.Nil(t, col.Section(-1))
	assert.Nil(t, col.Section(16))

	state, ok := col.BlockAt(1, 4*16+2, 3)
	require.True(t, ok)
	assert.Equal(t, uint32(7), state)

	_, ok = col.BlockAt(1, 2, 3)
	assert.False(t, ok, "секция 0 отсутствует")
}

func TestPaletteFormat(t *testing.T) {
	f := DefaultBlockStateFormat()
	require.NoError(t, f.Validate())

	bits, indirect := f.entryBits(0)
	assert.Equal(t, 0, bits)
	assert.False(t, indirect)

	bits, indirect = f.entryBits(2)
	assert.Equal(t, 4, bits, "ширина поднимается до минимальной")
	assert.True(t, indirect)

	bits, indirect = f.entryBits(8)
	assert.Equal(t, 8, bits)
	assert.True(t, indirect)

	bits, indirect = f.entryBits(9)
	assert.Equal(t, 15, bits)
	assert.False(t, indirect)

	assert.Equal(t, 256, longsFor(4096, 4))
	assert.Equal(t, 820, longsFor(4096, 12), "5 записей по 12 бит в слове, остаток пропускается")
	assert.Equal(t, 1024, longsFor(4096, 15))
	assert.Equal(t, 1, longsFor(64, 1))

	assert.Error(t, PaletteFormat{MinBits: 0, MaxPaletteBits: 3, DirectBits: 6}.Validate())
	assert.Error(t, PaletteFormat{MinBits: 4, MaxPaletteBits: 8, DirectBits: 8}.Validate())
	assert.Error(t, PaletteFormat{MinBits: 4, MaxPaletteBits: 8, DirectBits: 33}.Validate())
}
