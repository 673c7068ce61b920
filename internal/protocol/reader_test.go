package protocol

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarIntRoundTrip(t *testing.T) {
	values := []int32{0, 1, 2, 127, 128, 255, 300, 2097151, 2097152, 25565,
		math.MaxInt32, -1, -2, math.MinInt32, -2097152}

	for _, v := range values {
		buf := AppendVarInt(nil, v)
		assert.Equal(t, VarIntSize(v), len(buf), "длина VarInt для %d", v)

		r := NewReader(buf)
		got, err := r.ReadVarInt()
		require.NoError(t, err, "значение %d", v)
		assert.Equal(t, v, got)
		assert.Equal(t, 0, r.Remaining())
	}
}

func TestVarIntKnownEncodings(t *testing.T) {
	cases := map[int32][]byte{
		0:             {0x00},
		127:           {0x7f},
		128:           {0x80, 0x01},
		25565:         {0xdd, 0xc7, 0x01},
		math.MaxInt32: {0xff, 0xff, 0xff, 0xff, 0x07},
		-1:            {0xff, 0xff, 0xff, 0xff, 0x0f},
		math.MinInt32: {0x80, 0x80, 0x80, 0x80, 0x08},
	}
	for v, enc := range cases {
		assert.Equal(t, enc, AppendVarInt(nil, v), "кодирование %d", v)
	}
}

func TestVarIntFifthByteContinuation(t *testing.T) {
	r := NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0x8f, 0x01})
	_, err := r.ReadVarInt()
	assert.ErrorIs(t, err, ErrMalformedVarInt)
	assert.Equal(t, 0, r.Offset(), "курсор не должен сдвигаться при ошибке")
}

func TestVarIntTruncated(t *testing.T) {
	r := NewReader([]byte{0x80, 0x80})
	_, err := r.ReadVarInt()
	assert.ErrorIs(t, err, ErrOutOfBounds)
	assert.Equal(t, 2, r.Remaining())
}

func TestVarLongRoundTrip(t *testing.T) {
	values := []int64{0, 1, 127, 128, math.MaxInt32, math.MaxInt32 + 1,
		1 << 56, math.MaxInt64, -1, math.MinInt64}

	for _, v := range values {
		buf := AppendVarLong(nil, v)
		assert.LessOrEqual(t, len(buf), maxVarLongBytes)

		got, err := NewReader(buf).ReadVarLong()
		require.NoError(t, err, "значение %d", v)
		assert.Equal(t, v, got)
	}

	assert.Len(t, AppendVarLong(nil, -1), 10)
}

func TestVarLongTenthByteContinuation(t *testing.T) {
	enc := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x81, 0x00}
	_, err := NewReader(enc).ReadVarLong()
	assert.ErrorIs(t, err, ErrMalformedVarInt)
}

func TestReadString(t *testing.T) {
	payload := append([]byte{0x05}, []byte("hello")...)
	r := NewReader(payload)

	s, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "hello", s)
	assert.Equal(t, 0, r.Remaining())

	multi := NewWriter().WriteString("привет").Bytes()
	s, err = NewReader(multi).ReadString()
	require.NoError(t, err)
	assert.Equal(t, "привет", s)
}

func TestReadStringErrors(t *testing.T) {
	t.Run("length beyond remaining", func(t *testing.T) {
		r := NewReader(append([]byte{0x06}, []byte("hello")...))
		_, err := r.ReadString()
		assert.ErrorIs(t, err, ErrOutOfBounds)
	})

	t.Run("invalid utf8", func(t *testing.T) {
		r := NewReader([]byte{0x02, 0xc3, 0x28})
		_, err := r.ReadString()
		assert.ErrorIs(t, err, ErrMalformedString)
	})

	t.Run("negative length", func(t *testing.T) {
		r := NewReader(AppendVarInt(nil, -3))
		_, err := r.ReadString()
		assert.ErrorIs(t, err, ErrMalformedString)
	})
}

func TestFixedWidthReads(t *testing.T) {
	w := NewWriter().
		WriteDouble(8.5).
		WriteInt32(-7).
		WriteInt64(1 << 40).
		WriteUint16(25565).
		WriteBool(true)
	_ = w.WriteByte(0xAB)

	r := NewReader(w.Bytes())
	d, err := r.ReadDouble()
	require.NoError(t, err)
	assert.Equal(t, 8.5, d)

	i32, err := r.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(-7), i32)

	i64, err := r.ReadInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(1<<40), i64)

	u16, err := r.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(25565), u16)

	b, err := r.ReadBool()
	require.NoError(t, err)
	assert.True(t, b)

	raw, err := r.ReadBytes(1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAB}, raw)

	_, err = r.ReadDouble()
	assert.ErrorIs(t, err, ErrOutOfBounds)
	_, err = r.ReadBytes(-1)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	assert.Equal(t, r.Size(), r.Offset())
}
