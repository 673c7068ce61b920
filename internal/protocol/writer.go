package protocol

import (
	"encoding/binary"
	"math"
)

// Writer кодирует примитивы протокола. Используется тестами и инструментами
// для подготовки кадров; наблюдатель сам в поток ничего не пишет.
type Writer struct {
	buf []byte
}

// NewWriter создает пустой Writer
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes возвращает накопленные байты
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len возвращает количество накопленных байт
func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) WriteByte(b byte) error {
	w.buf = append(w.buf, b)
	return nil
}

func (w *Writer) WriteBool(v bool) *Writer {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
	return w
}

func (w *Writer) WriteBytes(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

func (w *Writer) WriteUint8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

func (w *Writer) WriteUint16(v uint16) *Writer {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
	return w
}

func (w *Writer) WriteInt32(v int32) *Writer {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
	return w
}

func (w *Writer) WriteInt64(v int64) *Writer {
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v))
	return w
}

func (w *Writer) WriteUint64(v uint64) *Writer {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
	return w
}

func (w *Writer) WriteDouble(v float64) *Writer {
	w.buf = binary.BigEndian.AppendUint64(w.buf, math.Float64bits(v))
	return w
}

func (w *Writer) WriteVarInt(v int32) *Writer {
	w.buf = AppendVarInt(w.buf, v)
	return w
}

func (w *Writer) WriteVarLong(v int64) *Writer {
	w.buf = AppendVarLong(w.buf, v)
	return w
}

func (w *Writer) WriteString(s string) *Writer {
	w.buf = AppendVarInt(w.buf, int32(len(s)))
	w.buf = append(w.buf, s...)
	return w
}

// AppendVarInt дописывает VarInt; отрицательные значения всегда занимают 5 байт
func AppendVarInt(dst []byte, v int32) []byte {
	return appendVarUint(dst, uint64(uint32(v)))
}

// AppendVarLong дописывает VarLong; отрицательные значения всегда занимают 10 байт
func AppendVarLong(dst []byte, v int64) []byte {
	return appendVarUint(dst, uint64(v))
}

func appendVarUint(dst []byte, u uint64) []byte {
	for u >= 0x80 {
		dst = append(dst, byte(u)|0x80)
		u >>= 7
	}
	return append(dst, byte(u))
}

// VarIntSize возвращает длину VarInt в байтах
func VarIntSize(v int32) int {
	u := uint32(v)
	n := 1
	for u >= 0x80 {
		u >>= 7
		n++
	}
	return n
}
