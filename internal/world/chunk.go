package world

import (
	"time"

	"github.com/annel0/world-observer/internal/vec"
)

// Размеры секции
const (
	SectionWidth   = 16
	SectionVolume  = SectionWidth * SectionWidth * SectionWidth // 4096 блоков
	BiomeCellSize  = 4                                          // Биомы хранятся ячейками 4x4x4
	BiomeVolume    = SectionVolume / (BiomeCellSize * BiomeCellSize * BiomeCellSize)
	LightArraySize = SectionVolume / 2 // Полубайт на блок
)

// Section - одна вертикальная секция 16x16x16 колонны
type Section struct {
	Y int // Номер секции снизу вверх

	Palette []uint32 // Палитра состояний блоков; nil при прямом кодировании
	States  []uint32 // ID состояний блоков, индекс y*256 + z*16 + x
	Biomes  []uint32 // ID биомов, индекс (y/4)*16 + (z/4)*4 + x/4

	BlockLight []byte // 2048 байт, по полубайту на блок
	SkyLight   []byte // nil, если в измерении нет неба
}

func blockIndex(x, y, z int) int {
	return (y&0xF)<<8 | (z&0xF)<<4 | x&0xF
}

// BlockAt возвращает состояние блока по локальным координатам секции
func (s *Section) BlockAt(x, y, z int) uint32 {
	return s.States[blockIndex(x, y, z)]
}

// BiomeAt возвращает биом по локальным координатам секции
func (s *Section) BiomeAt(x, y, z int) uint32 {
	cx, cy, cz := (x&0xF)/BiomeCellSize, (y&0xF)/BiomeCellSize, (z&0xF)/BiomeCellSize
	return s.Biomes[cy*16+cz*4+cx]
}

// BlockLightAt возвращает уровень освещения от блоков (0-15)
func (s *Section) BlockLightAt(x, y, z int) uint8 {
	return nibble(s.BlockLight, blockIndex(x, y, z))
}

// SkyLightAt возвращает уровень небесного освещения (0-15); 0 без неба
func (s *Section) SkyLightAt(x, y, z int) uint8 {
	return nibble(s.SkyLight, blockIndex(x, y, z))
}

// NonAirCount считает блоки с ненулевым состоянием
func (s *Section) NonAirCount() int {
	n := 0
	for _, st := range s.States {
		if st != 0 {
			n++
		}
	}
	return n
}

func nibble(arr []byte, idx int) uint8 {
	if len(arr) == 0 {
		return 0
	}
	b := arr[idx>>1]
	if idx&1 == 0 {
		return b & 0x0F
	}
	return b >> 4
}

// Column - колонна чанка, восстановленная из одного пакета.
// После публикации в состоянии сессии колонна не изменяется:
// новый пакет для тех же координат заменяет её целиком.
type Column struct {
	Coords    vec.Coord2D
	FullChunk bool
	Sections  []*Section // Длина равна числу секций мира; nil - секция отсутствует
	DecodedAt time.Time
}

// NewColumn создает пустую колонну с заданным числом секций
func NewColumn(coords vec.Coord2D, sectionCount int) *Column {
	return &Column{
		Coords:   coords,
		Sections: make([]*Section, sectionCount),
	}
}

// Section возвращает секцию по номеру или nil
func (c *Column) Section(y int) *Section {
	if y < 0 || y >= len(c.Sections) {
		return nil
	}
	return c.Sections[y]
}

// PresentSections возвращает количество присутствующих секций
func (c *Column) PresentSections() int {
	n := 0
	for _, s := range c.Sections {
		if s != nil {
			n++
		}
	}
	return n
}

// BlockAt возвращает состояние блока по локальным X/Z и абсолютной высоте Y.
// Второй результат false, если секция отсутствует.
func (c *Column) BlockAt(x, y, z int) (uint32, bool) {
	s := c.Section(y >> 4)
	if s == nil {
		return 0, false
	}
	return s.BlockAt(x, y, z), true
}

// SectionMask возвращает битовую маску присутствующих секций
func (c *Column) SectionMask() uint32 {
	var mask uint32
	for y, s := range c.Sections {
		if s != nil {
			mask |= 1 << uint(y)
		}
	}
	return mask
}
