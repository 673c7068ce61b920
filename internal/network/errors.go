package network

import "errors"

var (
	// ErrIllegalTransition - обработчик запросил недопустимую смену фазы
	ErrIllegalTransition = errors.New("network: illegal phase transition")
	// ErrUnknownPacketType - таблица ID ссылается на тип пакета без обработчика
	ErrUnknownPacketType = errors.New("network: unknown packet type")
)
