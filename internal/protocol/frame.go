package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

const (
	// DefaultMaxFrameSize - предельная длина кадра (3-байтный VarInt)
	DefaultMaxFrameSize = 2097151
	// DefaultMaxPayloadSize - предельный размер распакованной нагрузки
	DefaultMaxPayloadSize = 8388608
)

// CompressionDisabled - значение порога, при котором сжатие не используется
const CompressionDisabled = -1

// Frame - один пакет, выделенный из потока
type Frame struct {
	ID      int32
	Payload []byte // Полезная нагрузка без ID пакета
	Offset  int64  // Смещение начала кадра от начала потока
	Length  int    // Длина кадра на проводе, включая префикс длины
}

// Reader возвращает новый Reader поверх полезной нагрузки кадра
func (f Frame) Reader() *Reader {
	return NewReader(f.Payload)
}

// FrameConfig - параметры разбора кадров
type FrameConfig struct {
	CompressionThreshold int // CompressionDisabled, если сжатие не согласовано
	MaxFrameSize         int
	MaxPayloadSize       int
}

// DefaultFrameConfig возвращает параметры по умолчанию (без сжатия)
func DefaultFrameConfig() FrameConfig {
	return FrameConfig{
		CompressionThreshold: CompressionDisabled,
		MaxFrameSize:         DefaultMaxFrameSize,
		MaxPayloadSize:       DefaultMaxPayloadSize,
	}
}

// FrameDecoder превращает непрерывный поток байт в последовательность кадров.
// Не потокобезопасен: принадлежит единственной горутине декодирования.
type FrameDecoder struct {
	dir       Direction
	cfg       FrameConfig
	buf       []byte
	start     int   // Начало непрочитанных данных в buf
	streamPos int64 // Смещение buf[start] от начала потока
}

// NewFrameDecoder создает декодер кадров для одного направления
func NewFrameDecoder(dir Direction, cfg FrameConfig) *FrameDecoder {
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = DefaultMaxFrameSize
	}
	if cfg.MaxPayloadSize <= 0 {
		cfg.MaxPayloadSize = DefaultMaxPayloadSize
	}
	return &FrameDecoder{dir: dir, cfg: cfg}
}

// SetCompression включает сжатие для последующих кадров; отрицательный порог выключает его
func (d *FrameDecoder) SetCompression(threshold int) {
	if threshold < 0 {
		threshold = CompressionDisabled
	}
	d.cfg.CompressionThreshold = threshold
}

// CompressionEnabled сообщает, ожидаются ли кадры в сжатом формате
func (d *FrameDecoder) CompressionEnabled() bool {
	return d.cfg.CompressionThreshold >= 0
}

// Buffered возвращает количество байт, ожидающих завершения кадра
func (d *FrameDecoder) Buffered() int {
	return len(d.buf) - d.start
}

// StreamOffset возвращает смещение первого непрочитанного байта от начала потока
func (d *FrameDecoder) StreamOffset() int64 {
	return d.streamPos
}

// Feed добавляет очередную порцию байт потока
func (d *FrameDecoder) Feed(p []byte) {
	if d.start > 0 {
		// Сдвигаем хвост в начало, чтобы буфер не рос бесконечно
		n := copy(d.buf, d.buf[d.start:])
		d.buf = d.buf[:n]
		d.start = 0
	}
	d.buf = append(d.buf, p...)
}

// Next возвращает следующий кадр.
// ErrNeedMoreData означает, что кадр пришёл не целиком; ничего не потреблено.
// Любая другая ошибка имеет тип *FrameError: поток дальше разбирать нельзя.
func (d *FrameDecoder) Next() (Frame, error) {
	pending := d.buf[d.start:]
	if len(pending) == 0 {
		return Frame{}, ErrNeedMoreData
	}

	length, n, err := peekVarInt(pending)
	if err != nil {
		if errors.Is(err, ErrNeedMoreData) {
			return Frame{}, err
		}
		return Frame{}, d.frameError(err)
	}
	if length < 0 || int(length) > d.cfg.MaxFrameSize {
		return Frame{}, d.frameError(fmt.Errorf("declared length %d, max %d: %w", length, d.cfg.MaxFrameSize, ErrFrameTooLarge))
	}
	if len(pending)-n < int(length) {
		return Frame{}, ErrNeedMoreData
	}

	offset := d.streamPos
	total := n + int(length)
	body := pending[n:total]

	// Кадр потреблён в любом случае: после ошибки ниже поток всё равно прекращается
	d.start += total
	d.streamPos += int64(total)

	payload, err := d.unwrap(body)
	if err != nil {
		return Frame{}, &FrameError{Direction: d.dir, Offset: offset, Err: err}
	}

	r := NewReader(payload)
	id, err := r.ReadVarInt()
	if err != nil {
		return Frame{}, &FrameError{Direction: d.dir, Offset: offset, Err: fmt.Errorf("packet id: %w", err)}
	}

	return Frame{
		ID:      id,
		Payload: payload[r.Offset():],
		Offset:  offset,
		Length:  total,
	}, nil
}

func (d *FrameDecoder) frameError(err error) error {
	return &FrameError{Direction: d.dir, Offset: d.streamPos, Err: err}
}

// unwrap снимает слой сжатия и возвращает собственную копию нагрузки
func (d *FrameDecoder) unwrap(body []byte) ([]byte, error) {
	if !d.CompressionEnabled() {
		return append([]byte(nil), body...), nil
	}

	r := NewReader(body)
	dataLength, err := r.ReadVarInt()
	if err != nil {
		return nil, fmt.Errorf("uncompressed length: %w", err)
	}
	rest := body[r.Offset():]

	if dataLength == 0 {
		// Пакет меньше порога: отправлен без сжатия
		return append([]byte(nil), rest...), nil
	}
	if dataLength < 0 || int(dataLength) > d.cfg.MaxPayloadSize {
		return nil, fmt.Errorf("uncompressed length %d out of range: %w", dataLength, ErrDecompression)
	}

	return inflate(rest, int(dataLength))
}

// inflate распаковывает zlib-поток, который должен дать ровно expected байт
func inflate(compressed []byte, expected int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("zlib header: %v: %w", err, ErrDecompression)
	}
	defer zr.Close()

	out := make([]byte, expected)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("inflated less than %d bytes: %v: %w", expected, err, ErrDecompression)
	}

	// Лишние байты после объявленной длины - тоже несоответствие
	var probe [1]byte
	n, err := zr.Read(probe[:])
	if n > 0 {
		return nil, fmt.Errorf("inflated more than %d bytes: %w", expected, ErrDecompression)
	}
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("zlib trailer: %v: %w", err, ErrDecompression)
	}
	return out, nil
}

// peekVarInt читает VarInt из начала buf, не изменяя состояние.
// Незавершённый VarInt - это ErrNeedMoreData, а не повреждение.
func peekVarInt(buf []byte) (int32, int, error) {
	var result uint32
	for i := 0; i < maxVarIntBytes; i++ {
		if i >= len(buf) {
			return 0, 0, ErrNeedMoreData
		}
		b := buf[i]
		result |= uint32(b&0x7F) << (7 * uint(i))
		if b&0x80 == 0 {
			return int32(result), i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("frame length: %w", ErrMalformedVarInt)
}

// EncodeFrame собирает кадр из ID и нагрузки.
// threshold < 0 - без сжатия; иначе нагрузки не короче порога сжимаются zlib.
func EncodeFrame(id int32, payload []byte, threshold int) ([]byte, error) {
	packet := AppendVarInt(nil, id)
	packet = append(packet, payload...)

	var body []byte
	switch {
	case threshold < 0:
		body = packet
	case len(packet) < threshold:
		body = AppendVarInt(nil, 0)
		body = append(body, packet...)
	default:
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(packet); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		body = AppendVarInt(nil, int32(len(packet)))
		body = append(body, buf.Bytes()...)
	}

	frame := AppendVarInt(nil, int32(len(body)))
	return append(frame, body...), nil
}
