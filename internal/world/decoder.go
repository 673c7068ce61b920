package world

import (
	"errors"
	"fmt"
	"time"

	"github.com/annel0/world-observer/internal/protocol"
	"github.com/annel0/world-observer/internal/vec"
	"github.com/willf/bitset"
)

// ErrMalformedChunkData - данные колонны не соответствуют формату.
// Ошибка фатальна только для одной колонны, но не для сессии.
var ErrMalformedChunkData = errors.New("world: malformed chunk data")

// MaxSectionCount ограничен шириной маски секций (VarInt)
const MaxSectionCount = 32

// DecoderConfig - параметры мира, нужные для разбора колонн
type DecoderConfig struct {
	SectionCount int
	HasSkyLight  bool
	BlockStates  PaletteFormat
	Biomes       PaletteFormat
}

// DefaultDecoderConfig возвращает параметры обычного мира с небом
func DefaultDecoderConfig() DecoderConfig {
	return DecoderConfig{
		SectionCount: 16,
		HasSkyLight:  true,
		BlockStates:  DefaultBlockStateFormat(),
		Biomes:       DefaultBiomeFormat(),
	}
}

// Validate проверяет параметры мира
func (c DecoderConfig) Validate() error {
	if c.SectionCount < 1 || c.SectionCount > MaxSectionCount {
		return fmt.Errorf("section count %d must be in [1, %d]", c.SectionCount, MaxSectionCount)
	}
	if err := c.BlockStates.Validate(); err != nil {
		return fmt.Errorf("block states: %w", err)
	}
	if err := c.Biomes.Validate(); err != nil {
		return fmt.Errorf("biomes: %w", err)
	}
	return nil
}

// Decoder разбирает нагрузку пакета данных чанка в Column
type Decoder struct {
	cfg DecoderConfig
	now func() time.Time
}

// NewDecoder создает декодер колонн
func NewDecoder(cfg DecoderConfig) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Decoder{cfg: cfg, now: time.Now}, nil
}

// Config возвращает параметры декодера
func (d *Decoder) Config() DecoderConfig {
	return d.cfg
}

// Decode читает колонну. Любая ошибка оборачивает ErrMalformedChunkData
// и исходную причину (например, protocol.ErrOutOfBounds).
func (d *Decoder) Decode(r *protocol.Reader) (*Column, error) {
	x, err := r.ReadInt32()
	if err != nil {
		return nil, malformed("chunk x", err)
	}
	z, err := r.ReadInt32()
	if err != nil {
		return nil, malformed("chunk z", err)
	}
	coords := vec.Coord2D{X: int(x), Z: int(z)}

	full, err := r.ReadBool()
	if err != nil {
		return nil, malformed("full chunk flag", err)
	}

	mask, err := r.ReadVarInt()
	if err != nil {
		return nil, malformed("section mask", err)
	}
	present := bitset.From([]uint64{uint64(uint32(mask))})

	dataSize, err := r.ReadVarInt()
	if err != nil {
		return nil, malformed("data size", err)
	}
	if dataSize < 0 {
		return nil, fmt.Errorf("%w: column %s: negative data size %d", ErrMalformedChunkData, coords, dataSize)
	}
	data, err := r.ReadBytes(int(dataSize))
	if err != nil {
		return nil, malformed(fmt.Sprintf("column %s data", coords), err)
	}
	// Оставшиеся поля пакета (блок-сущности) не нужны для восстановления геометрии

	col := NewColumn(coords, d.cfg.SectionCount)
	col.FullChunk = full

	sr := protocol.NewReader(data)
	for y, ok := present.NextSet(0); ok; y, ok = present.NextSet(y + 1) {
		if int(y) >= d.cfg.SectionCount {
			return nil, fmt.Errorf("%w: column %s: section %d outside world height (%d sections)",
				ErrMalformedChunkData, coords, y, d.cfg.SectionCount)
		}
		section, err := d.decodeSection(sr, int(y))
		if err != nil {
			return nil, malformed(fmt.Sprintf("column %s section %d", coords, y), err)
		}
		col.Sections[y] = section
	}

	if sr.Remaining() != 0 {
		return nil, fmt.Errorf("%w: column %s: %d trailing bytes in section data",
			ErrMalformedChunkData, coords, sr.Remaining())
	}

	col.DecodedAt = d.now()
	return col, nil
}

func (d *Decoder) decodeSection(r *protocol.Reader, y int) (*Section, error) {
	palette, states, err := readContainer(r, d.cfg.BlockStates, SectionVolume)
	if err != nil {
		return nil, fmt.Errorf("block states: %w", err)
	}
	_, biomes, err := readContainer(r, d.cfg.Biomes, BiomeVolume)
	if err != nil {
		return nil, fmt.Errorf("biomes: %w", err)
	}

	section := &Section{
		Y:       y,
		Palette: palette,
		States:  states,
		Biomes:  biomes,
	}

	if section.BlockLight, err = r.ReadBytes(LightArraySize); err != nil {
		return nil, fmt.Errorf("block light: %w", err)
	}
	if d.cfg.HasSkyLight {
		if section.SkyLight, err = r.ReadBytes(LightArraySize); err != nil {
			return nil, fmt.Errorf("sky light: %w", err)
		}
	}
	return section, nil
}

// readContainer читает палитровый контейнер из entries записей.
// Возвращает палитру (nil при прямом кодировании) и значения с уже применённой палитрой.
func readContainer(r *protocol.Reader, f PaletteFormat, entries int) ([]uint32, []uint32, error) {
	declared, err := r.ReadByte()
	if err != nil {
		return nil, nil, fmt.Errorf("bits per entry: %w", err)
	}

	bits, indirect := f.entryBits(int(declared))
	if bits == 0 {
		return readSingleValue(r, entries)
	}

	var palette []uint32
	if indirect {
		length, err := r.ReadVarInt()
		if err != nil {
			return nil, nil, fmt.Errorf("palette length: %w", err)
		}
		if length <= 0 || int(length) > 1<<uint(bits) {
			return nil, nil, fmt.Errorf("palette length %d invalid for %d bits", length, bits)
		}
		palette = make([]uint32, length)
		for i := range palette {
			v, err := r.ReadVarInt()
			if err != nil {
				return nil, nil, fmt.Errorf("palette entry %d: %w", i, err)
			}
			if v < 0 {
				return nil, nil, fmt.Errorf("palette entry %d is negative (%d)", i, v)
			}
			palette[i] = uint32(v)
		}
	}

	count, err := r.ReadVarInt()
	if err != nil {
		return nil, nil, fmt.Errorf("data array length: %w", err)
	}
	need := longsFor(entries, bits)
	if int(count) != need {
		return nil, nil, fmt.Errorf("data array of %d longs, %d-bit entries need %d", count, bits, need)
	}
	if need*8 > r.Remaining() {
		return nil, nil, fmt.Errorf("data array needs %d bytes, %d left: %w", need*8, r.Remaining(), protocol.ErrOutOfBounds)
	}

	perLong := 64 / bits
	mask := uint64(1)<<uint(bits) - 1
	values := make([]uint32, entries)
	idx := 0
	for i := 0; i < need; i++ {
		word, err := r.ReadUint64()
		if err != nil {
			return nil, nil, err
		}
		for j := 0; j < perLong && idx < entries; j++ {
			v := uint32((word >> uint(j*bits)) & mask)
			if palette != nil {
				if int(v) >= len(palette) {
					return nil, nil, fmt.Errorf("entry %d references palette index %d of %d", idx, v, len(palette))
				}
				v = palette[v]
			}
			values[idx] = v
			idx++
		}
	}
	return palette, values, nil
}

func readSingleValue(r *protocol.Reader, entries int) ([]uint32, []uint32, error) {
	v, err := r.ReadVarInt()
	if err != nil {
		return nil, nil, fmt.Errorf("single value: %w", err)
	}
	if v < 0 {
		return nil, nil, fmt.Errorf("single value is negative (%d)", v)
	}
	count, err := r.ReadVarInt()
	if err != nil {
		return nil, nil, fmt.Errorf("data array length: %w", err)
	}
	if count != 0 {
		return nil, nil, fmt.Errorf("single-valued container declares %d longs", count)
	}

	values := make([]uint32, entries)
	for i := range values {
		values[i] = uint32(v)
	}
	return []uint32{uint32(v)}, values, nil
}

func malformed(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrMalformedChunkData, what, err)
}
