package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

const (
	maxVarIntBytes  = 5
	maxVarLongBytes = 10
)

// Reader - ограниченный курсор по полезной нагрузке одного пакета.
// Любое чтение либо продвигает курсор, либо возвращает ErrOutOfBounds,
// и никогда не выходит за объявленный размер. Reader одноразовый.
type Reader struct {
	data []byte
	pos  int
}

// NewReader создает Reader поверх полезной нагрузки. Срез не копируется и не изменяется.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Size возвращает объявленный размер полезной нагрузки
func (r *Reader) Size() int {
	return len(r.data)
}

// Offset возвращает текущую позицию курсора
func (r *Reader) Offset() int {
	return r.pos
}

// Remaining возвращает количество непрочитанных байт
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Bytes возвращает всю полезную нагрузку (для hex-дампов в логах)
func (r *Reader) Bytes() []byte {
	return r.data
}

func (r *Reader) take(n int, what string) ([]byte, error) {
	if n < 0 || n > r.Remaining() {
		return nil, fmt.Errorf("%s: need %d bytes at offset %d, have %d: %w",
			what, n, r.pos, r.Remaining(), ErrOutOfBounds)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadByte читает один байт
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.take(1, "byte")
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadBool читает булево значение (любой ненулевой байт - true)
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	return b != 0, err
}

// ReadBytes читает ровно n байт. Возвращается копия.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	b, err := r.take(n, "bytes")
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// Skip пропускает n байт
func (r *Reader) Skip(n int) error {
	_, err := r.take(n, "skip")
	return err
}

// ReadUint16 читает беззнаковое 16-битное число (big-endian)
func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.take(2, "uint16")
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// ReadInt32 читает знаковое 32-битное число (big-endian)
func (r *Reader) ReadInt32() (int32, error) {
	b, err := r.take(4, "int32")
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// ReadInt64 читает знаковое 64-битное число (big-endian)
func (r *Reader) ReadInt64() (int64, error) {
	b, err := r.take(8, "int64")
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// ReadUint64 читает беззнаковое 64-битное число (big-endian)
func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.take(8, "uint64")
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadDouble читает IEEE 754 double (big-endian)
func (r *Reader) ReadDouble() (float64, error) {
	b, err := r.take(8, "double")
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

// ReadVarInt читает VarInt длиной до 5 байт.
// Первый байт несёт младшие 7 бит, старший бит байта - признак продолжения.
func (r *Reader) ReadVarInt() (int32, error) {
	v, err := r.readVarUint(maxVarIntBytes, "varint")
	return int32(uint32(v)), err
}

// ReadVarLong читает VarLong длиной до 10 байт
func (r *Reader) ReadVarLong() (int64, error) {
	v, err := r.readVarUint(maxVarLongBytes, "varlong")
	return int64(v), err
}

func (r *Reader) readVarUint(maxBytes int, what string) (uint64, error) {
	var result uint64
	start := r.pos
	for i := 0; i < maxBytes; i++ {
		if r.pos >= len(r.data) {
			// Курсор не сдвигается, если значение не удалось прочитать целиком
			r.pos = start
			return 0, fmt.Errorf("%s truncated after %d bytes at offset %d: %w", what, i, start, ErrOutOfBounds)
		}
		b := r.data[r.pos]
		r.pos++
		result |= uint64(b&0x7F) << (7 * uint(i))
		if b&0x80 == 0 {
			return result, nil
		}
	}
	r.pos = start
	return 0, fmt.Errorf("%s longer than %d bytes at offset %d: %w", what, maxBytes, start, ErrMalformedVarInt)
}

// ReadString читает строку: VarInt длина в байтах, затем UTF-8
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadVarInt()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", fmt.Errorf("negative string length %d: %w", n, ErrMalformedString)
	}
	b, err := r.take(int(n), "string")
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("string of %d bytes is not valid UTF-8: %w", n, ErrMalformedString)
	}
	return string(b), nil
}
