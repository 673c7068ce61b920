package protocol

import "fmt"

// Phase - фаза соединения; у каждой фазы своё пространство ID пакетов
type Phase int

const (
	PhaseHandshake Phase = iota
	PhaseStatus
	PhaseLogin
	PhasePlay
)

func (p Phase) String() string {
	switch p {
	case PhaseHandshake:
		return "handshake"
	case PhaseStatus:
		return "status"
	case PhaseLogin:
		return "login"
	case PhasePlay:
		return "play"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// ParsePhase разбирает название фазы из конфигурации
func ParsePhase(s string) (Phase, error) {
	for _, p := range []Phase{PhaseHandshake, PhaseStatus, PhaseLogin, PhasePlay} {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown connection phase %q", s)
}

// Direction - направление потока относительно клиента
type Direction int

const (
	Clientbound Direction = iota // Сервер -> клиент
	Serverbound                  // Клиент -> сервер
)

func (d Direction) String() string {
	switch d {
	case Clientbound:
		return "clientbound"
	case Serverbound:
		return "serverbound"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection разбирает направление из конфигурации
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "clientbound":
		return Clientbound, nil
	case "serverbound":
		return Serverbound, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// Семантические типы пакетов. Таблицы ID для конкретной версии протокола
// задаются конфигурацией и ссылаются на эти имена.
const (
	PacketHandshake = "handshake"

	PacketStatusResponse = "response"
	PacketStatusPong     = "pong"

	PacketLoginDisconnect        = "disconnect"
	PacketLoginEncryptionRequest = "encryption_request"
	PacketLoginSuccess           = "login_success"
	PacketLoginSetCompression    = "set_compression"

	PacketPlayChunkData      = "chunk_data"
	PacketPlayPlayerPosition = "player_position"
	PacketPlayDisconnect     = "disconnect"
)

// PacketTable - соответствие "фаза -> направление -> семантический тип -> ID"
type PacketTable map[Phase]map[Direction]map[string]int32

// Lookup возвращает ID пакета для семантического типа
func (t PacketTable) Lookup(phase Phase, dir Direction, name string) (int32, bool) {
	id, ok := t[phase][dir][name]
	return id, ok
}
