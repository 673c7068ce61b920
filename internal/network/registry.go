package network

import "github.com/annel0/world-observer/internal/protocol"

// Registry сопоставляет семантические типы пакетов обработчикам.
// ID пакетов берутся отдельно, из таблицы версии протокола.
type Registry map[protocol.Phase]map[protocol.Direction]map[string]Handler

// Register добавляет обработчик, заменяя существующий
func (r Registry) Register(phase protocol.Phase, dir protocol.Direction, name string, h Handler) {
	if r[phase] == nil {
		r[phase] = make(map[protocol.Direction]map[string]Handler)
	}
	if r[phase][dir] == nil {
		r[phase][dir] = make(map[string]Handler)
	}
	r[phase][dir][name] = h
}

// Lookup возвращает обработчик семантического типа
func (r Registry) Lookup(phase protocol.Phase, dir protocol.Direction, name string) (Handler, bool) {
	h, ok := r[phase][dir][name]
	return h, ok
}

// NewRegistry возвращает реестр со стандартными обработчиками всех фаз
func NewRegistry(h *Handlers) Registry {
	r := make(Registry)

	r.Register(protocol.PhaseHandshake, protocol.Serverbound, protocol.PacketHandshake, h.Handshake)

	r.Register(protocol.PhaseStatus, protocol.Clientbound, protocol.PacketStatusResponse, h.StatusResponse)
	r.Register(protocol.PhaseStatus, protocol.Clientbound, protocol.PacketStatusPong, h.StatusPong)

	r.Register(protocol.PhaseLogin, protocol.Clientbound, protocol.PacketLoginDisconnect, h.Disconnect)
	r.Register(protocol.PhaseLogin, protocol.Clientbound, protocol.PacketLoginEncryptionRequest, h.EncryptionRequest)
	r.Register(protocol.PhaseLogin, protocol.Clientbound, protocol.PacketLoginSuccess, h.LoginSuccess)
	r.Register(protocol.PhaseLogin, protocol.Clientbound, protocol.PacketLoginSetCompression, h.SetCompression)

	r.Register(protocol.PhasePlay, protocol.Clientbound, protocol.PacketPlayChunkData, h.ChunkData)
	r.Register(protocol.PhasePlay, protocol.Clientbound, protocol.PacketPlayPlayerPosition, h.PlayerPosition)
	r.Register(protocol.PhasePlay, protocol.Clientbound, protocol.PacketPlayDisconnect, h.Disconnect)

	return r
}
