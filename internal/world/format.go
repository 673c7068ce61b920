package world

import "fmt"

// PaletteFormat - таблица ширины записей палитрового контейнера.
// Значения берутся из конфигурации версии протокола, а не вычисляются.
type PaletteFormat struct {
	MinBits        int `yaml:"min_bits"`         // Ширина косвенных записей не меньше этого значения
	MaxPaletteBits int `yaml:"max_palette_bits"` // Выше - прямое кодирование без палитры
	DirectBits     int `yaml:"direct_bits"`      // Ширина записи при прямом кодировании
}

// DefaultBlockStateFormat - формат состояний блоков по умолчанию
func DefaultBlockStateFormat() PaletteFormat {
	return PaletteFormat{MinBits: 4, MaxPaletteBits: 8, DirectBits: 15}
}

// DefaultBiomeFormat - формат биомов по умолчанию
func DefaultBiomeFormat() PaletteFormat {
	return PaletteFormat{MinBits: 1, MaxPaletteBits: 3, DirectBits: 6}
}

// Validate проверяет согласованность таблицы
func (f PaletteFormat) Validate() error {
	if f.MinBits < 1 || f.MinBits > f.MaxPaletteBits {
		return fmt.Errorf("min_bits %d must be in [1, max_palette_bits=%d]", f.MinBits, f.MaxPaletteBits)
	}
	if f.DirectBits <= f.MaxPaletteBits || f.DirectBits > 32 {
		return fmt.Errorf("direct_bits %d must be in (max_palette_bits=%d, 32]", f.DirectBits, f.MaxPaletteBits)
	}
	return nil
}

// entryBits возвращает фактическую ширину записи и признак наличия палитры
// для объявленной ширины. Объявленная ширина 0 означает одно значение на контейнер.
func (f PaletteFormat) entryBits(declared int) (bits int, indirect bool) {
	switch {
	case declared == 0:
		return 0, false
	case declared <= f.MaxPaletteBits:
		if declared < f.MinBits {
			return f.MinBits, true
		}
		return declared, true
	default:
		return f.DirectBits, false
	}
}

// longsFor возвращает число 64-битных слов для entries записей шириной bits.
// Записи не пересекают границу слова: остаток слова пропускается.
func longsFor(entries, bits int) int {
	perLong := 64 / bits
	return (entries + perLong - 1) / perLong
}
