package protocol

import (
	"errors"
	"fmt"
)

// Ошибки уровня примитивов и кадров.
// Ошибки примитивов фатальны только для одного пакета, ошибки кадров - для всего потока.
var (
	ErrOutOfBounds     = errors.New("protocol: read out of bounds")
	ErrMalformedVarInt = errors.New("protocol: malformed varint")
	ErrMalformedString = errors.New("protocol: malformed string")
	ErrDecompression   = errors.New("protocol: decompression error")
	ErrFrameTooLarge   = errors.New("protocol: frame length out of range")

	// ErrNeedMoreData не является повреждением: кадр ещё не пришёл целиком
	ErrNeedMoreData = errors.New("protocol: need more data")
)

// FrameError описывает ошибку разбора кадра, после которой поток рассинхронизирован
type FrameError struct {
	Direction Direction
	Offset    int64 // Смещение начала кадра от начала потока
	Err       error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame error (%s, offset %d): %v", e.Direction, e.Offset, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFrameLevel сообщает, что ошибка требует завершения сессии
func IsFrameLevel(err error) bool {
	var fe *FrameError
	return errors.As(err, &fe)
}
