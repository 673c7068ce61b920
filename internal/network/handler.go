package network

import (
	"fmt"

	"github.com/annel0/world-observer/internal/logging"
	"github.com/annel0/world-observer/internal/protocol"
	"github.com/annel0/world-observer/internal/session"
)

// Result - итог обработки пакета
type Result int

const (
	Continue   Result = iota // Продолжать разбор потока
	Disconnect               // Сессия завершена, дальнейшие байты игнорируются
)

func (r Result) String() string {
	if r == Disconnect {
		return "disconnect"
	}
	return "continue"
}

// Handler разбирает нагрузку одного пакета. Ошибка не прерывает сессию:
// диспетчер логирует ее с дампом пакета и продолжает работу.
type Handler func(ctx *Context, r *protocol.Reader) (Result, error)

// Context передается обработчику вместе с пакетом
type Context struct {
	Phase     protocol.Phase
	Direction protocol.Direction
	Packet    string // Семантический тип пакета
	ID        int32
	Offset    int64 // Смещение кадра в потоке; -1, если неизвестно

	State    *session.State
	Listener session.Listener
	Log      *logging.Logger

	d *Dispatcher
}

// SwitchPhase переводит соединение в другую фазу.
// Допустимы только переходы handshake->status, handshake->login и login->play.
func (c *Context) SwitchPhase(to protocol.Phase) error {
	return c.d.switchPhase(to)
}

// EnableCompression включает сжатие для следующих кадров в обоих направлениях
func (c *Context) EnableCompression(threshold int) {
	if c.d.onCompression != nil {
		c.d.onCompression(threshold)
	}
}

func legalTransition(from, to protocol.Phase) bool {
	switch from {
	case protocol.PhaseHandshake:
		return to == protocol.PhaseStatus || to == protocol.PhaseLogin
	case protocol.PhaseLogin:
		return to == protocol.PhasePlay
	}
	// status и play - конечные фазы
	return false
}

func transitionError(from, to protocol.Phase) error {
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}
