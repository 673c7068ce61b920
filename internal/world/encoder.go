package world

import (
	"math/bits"

	"github.com/annel0/world-observer/internal/protocol"
)

// EncodeColumn кодирует колонну в нагрузку пакета данных чанка (без ID пакета).
// Нужен инструментам генерации записей и тестам; обратен Decoder.Decode.
func EncodeColumn(col *Column, cfg DecoderConfig) []byte {
	data := protocol.NewWriter()
	for _, s := range col.Sections {
		if s == nil {
			continue
		}
		writeContainer(data, cfg.BlockStates, s.States)
		writeContainer(data, cfg.Biomes, s.Biomes)
		data.WriteBytes(lightOrDark(s.BlockLight))
		if cfg.HasSkyLight {
			data.WriteBytes(lightOrDark(s.SkyLight))
		}
	}

	w := protocol.NewWriter()
	w.WriteInt32(int32(col.Coords.X)).
		WriteInt32(int32(col.Coords.Z)).
		WriteBool(col.FullChunk).
		WriteVarInt(int32(col.SectionMask())).
		WriteVarInt(int32(data.Len())).
		WriteBytes(data.Bytes()).
		WriteVarInt(0) // Блок-сущности
	return w.Bytes()
}

func lightOrDark(arr []byte) []byte {
	if len(arr) == LightArraySize {
		return arr
	}
	return make([]byte, LightArraySize)
}

// writeContainer выбирает самое компактное представление значений
func writeContainer(w *protocol.Writer, f PaletteFormat, values []uint32) {
	var palette []uint32
	index := make(map[uint32]int)
	for _, v := range values {
		if _, ok := index[v]; !ok {
			index[v] = len(palette)
			palette = append(palette, v)
		}
	}

	if len(palette) <= 1 {
		var v uint32
		if len(palette) == 1 {
			v = palette[0]
		}
		_ = w.WriteByte(0)
		w.WriteVarInt(int32(v)).WriteVarInt(0)
		return
	}

	need := bits.Len(uint(len(palette) - 1))
	if need < f.MinBits {
		need = f.MinBits
	}

	if need <= f.MaxPaletteBits {
		_ = w.WriteByte(byte(need))
		w.WriteVarInt(int32(len(palette)))
		for _, v := range palette {
			w.WriteVarInt(int32(v))
		}
		indices := make([]uint32, len(values))
		for i, v := range values {
			indices[i] = uint32(index[v])
		}
		writeLongs(w, indices, need)
		return
	}

	_ = w.WriteByte(byte(f.DirectBits))
	writeLongs(w, values, f.DirectBits)
}

func writeLongs(w *protocol.Writer, values []uint32, width int) {
	perLong := 64 / width
	count := longsFor(len(values), width)
	mask := uint64(1)<<uint(width) - 1

	w.WriteVarInt(int32(count))
	for i := 0; i < count; i++ {
		var word uint64
		for j := 0; j < perLong; j++ {
			idx := i*perLong + j
			if idx >= len(values) {
				break
			}
			word |= (uint64(values[idx]) & mask) << uint(j*width)
		}
		w.WriteUint64(word)
	}
}
