// Package capture читает и пишет записи потока наблюдения.
//
// Формат файла (и TCP-потока команды tap): 8 байт заголовка "OBSCAP01",
// затем записи [направление u8][длина u32 BE][байты]. Направление 0 -
// clientbound, 1 - serverbound. Записи идут в порядке перехвата.
package capture

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/annel0/world-observer/internal/network"
	"github.com/annel0/world-observer/internal/protocol"
)

// Magic - заголовок файла записи
const Magic = "OBSCAP01"

// MaxRecordSize - предел длины одной записи
const MaxRecordSize = 16 << 20

var (
	ErrBadMagic       = errors.New("capture: bad magic")
	ErrTruncated      = errors.New("capture: truncated record")
	ErrRecordTooLarge = errors.New("capture: record too large")
	ErrBadDirection   = errors.New("capture: bad direction")
)

// Reader последовательно читает сегменты записи
type Reader struct {
	r       *bufio.Reader
	records int
	bytes   int64
}

// NewReader проверяет заголовок и возвращает Reader
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReaderSize(r, 64<<10)
	head := make([]byte, len(Magic))
	if _, err := io.ReadFull(br, head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if string(head) != Magic {
		return nil, fmt.Errorf("%w: %q", ErrBadMagic, head)
	}
	return &Reader{r: br}, nil
}

// Next возвращает следующий сегмент или io.EOF на границе записи
func (cr *Reader) Next() (network.Segment, error) {
	var hdr [5]byte
	n, err := io.ReadFull(cr.r, hdr[:])
	if err == io.EOF && n == 0 {
		return network.Segment{}, io.EOF
	}
	if err != nil {
		return network.Segment{}, fmt.Errorf("%w: header of record %d", ErrTruncated, cr.records)
	}

	dir := protocol.Direction(hdr[0])
	if dir != protocol.Clientbound && dir != protocol.Serverbound {
		return network.Segment{}, fmt.Errorf("%w: %d in record %d", ErrBadDirection, hdr[0], cr.records)
	}
	size := binary.BigEndian.Uint32(hdr[1:])
	if size > MaxRecordSize {
		return network.Segment{}, fmt.Errorf("%w: %d bytes in record %d", ErrRecordTooLarge, size, cr.records)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(cr.r, data); err != nil {
		return network.Segment{}, fmt.Errorf("%w: body of record %d", ErrTruncated, cr.records)
	}
	cr.records++
	cr.bytes += int64(size)
	return network.Segment{Direction: dir, Data: data}, nil
}

// Records - число прочитанных записей
func (cr *Reader) Records() int { return cr.records }

// Writer пишет сегменты в формате записи
type Writer struct {
	w io.Writer
}

// NewWriter пишет заголовок
func NewWriter(w io.Writer) (*Writer, error) {
	if _, err := io.WriteString(w, Magic); err != nil {
		return nil, err
	}
	return &Writer{w: w}, nil
}

// Write пишет один сегмент
func (cw *Writer) Write(seg network.Segment) error {
	if len(seg.Data) > MaxRecordSize {
		return ErrRecordTooLarge
	}
	var hdr [5]byte
	hdr[0] = byte(seg.Direction)
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(seg.Data)))
	if _, err := cw.w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := cw.w.Write(seg.Data)
	return err
}

// Pump передает сегменты записи в out до EOF, ошибки или отмены ctx.
// out закрывается при выходе.
func Pump(ctx context.Context, cr *Reader, out chan<- network.Segment) error {
	defer close(out)
	for {
		seg, err := cr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		select {
		case out <- seg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// PumpRaw нарезает сырой поток одного направления на сегменты по chunkSize байт.
// out закрывается при выходе.
func PumpRaw(ctx context.Context, r io.Reader, dir protocol.Direction, chunkSize int, out chan<- network.Segment) error {
	defer close(out)
	if chunkSize <= 0 {
		chunkSize = 32 << 10
	}
	for {
		buf := make([]byte, chunkSize)
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case out <- network.Segment{Direction: dir, Data: buf[:n]}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
