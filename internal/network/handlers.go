package network

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/annel0/world-observer/internal/protocol"
	"github.com/annel0/world-observer/internal/vec"
	"github.com/annel0/world-observer/internal/world"
)

var timeNow = time.Now

// Handlers - стандартные обработчики пакетов наблюдателя
type Handlers struct {
	chunks  *world.Decoder
	offset  vec.Coord3D
	metrics *Metrics
}

// NewHandlers создает обработчики. offset применяется к каждой позиции игрока ровно один раз.
func NewHandlers(chunks *world.Decoder, offset vec.Coord3D, metrics *Metrics) *Handlers {
	return &Handlers{chunks: chunks, offset: offset, metrics: metrics}
}

// Handshake: VarInt версия, String адрес, uint16 порт, VarInt следующее состояние
func (h *Handlers) Handshake(ctx *Context, r *protocol.Reader) (Result, error) {
	version, err := r.ReadVarInt()
	if err != nil {
		return Continue, fmt.Errorf("protocol version: %w", err)
	}
	addr, err := r.ReadString()
	if err != nil {
		return Continue, fmt.Errorf("server address: %w", err)
	}
	port, err := r.ReadUint16()
	if err != nil {
		return Continue, fmt.Errorf("server port: %w", err)
	}
	next, err := r.ReadVarInt()
	if err != nil {
		return Continue, fmt.Errorf("next state: %w", err)
	}

	ctx.Log.Info("🤝 Handshake: protocol %d, %s:%d, next state %d", version, addr, port, next)

	switch next {
	case 1:
		return Continue, ctx.SwitchPhase(protocol.PhaseStatus)
	case 2:
		return Continue, ctx.SwitchPhase(protocol.PhaseLogin)
	}
	return Continue, fmt.Errorf("handshake requests unknown state %d", next)
}

// statusDescription - интересующая часть ответа статуса
type statusDescription struct {
	Version struct {
		Name     string `json:"name"`
		Protocol int    `json:"protocol"`
	} `json:"version"`
	Players struct {
		Max    int `json:"max"`
		Online int `json:"online"`
	} `json:"players"`
}

// StatusResponse логирует JSON-описание сервера
func (h *Handlers) StatusResponse(ctx *Context, r *protocol.Reader) (Result, error) {
	raw, err := r.ReadString()
	if err != nil {
		return Continue, fmt.Errorf("status json: %w", err)
	}

	var desc statusDescription
	if err := json.Unmarshal([]byte(raw), &desc); err != nil {
		ctx.Log.Warn("📋 Server status (unparsed): %s", raw)
		return Continue, nil
	}
	ctx.Log.Info("📋 Server status: %s (protocol %d), players %d/%d",
		desc.Version.Name, desc.Version.Protocol, desc.Players.Online, desc.Players.Max)
	ctx.Log.Debug("Server status JSON: %s", raw)
	return Continue, nil
}

// StatusPong завершает запрос статуса
func (h *Handlers) StatusPong(ctx *Context, r *protocol.Reader) (Result, error) {
	payload, err := r.ReadVarLong()
	if err != nil {
		return Disconnect, fmt.Errorf("pong payload: %w", err)
	}
	ctx.Log.Info("🏓 Pong: %d", payload)
	return Disconnect, nil
}

// Disconnect обрабатывает отключение в фазах login и play
func (h *Handlers) Disconnect(ctx *Context, r *protocol.Reader) (Result, error) {
	reason, err := r.ReadString()
	if err != nil {
		return Disconnect, fmt.Errorf("disconnect reason: %w", err)
	}
	ctx.Log.Warn("⛔ Disconnected by server in %s phase: %s", ctx.Phase, reason)
	return Disconnect, nil
}

// EncryptionRequest только логируется: поток должен расшифровываться до наблюдателя
func (h *Handlers) EncryptionRequest(ctx *Context, r *protocol.Reader) (Result, error) {
	serverID, err := r.ReadString()
	if err != nil {
		return Continue, fmt.Errorf("server id: %w", err)
	}
	ctx.Log.Warn("🔐 Encryption requested (server id %q); stream must be decrypted upstream", serverID)
	return Continue, nil
}

// LoginSuccess: String UUID, String имя; переводит соединение в play
func (h *Handlers) LoginSuccess(ctx *Context, r *protocol.Reader) (Result, error) {
	uuid, err := r.ReadString()
	if err != nil {
		return Continue, fmt.Errorf("player uuid: %w", err)
	}
	name, err := r.ReadString()
	if err != nil {
		return Continue, fmt.Errorf("player name: %w", err)
	}
	ctx.Log.Info("✅ Login success: %s (%s)", name, uuid)
	return Continue, ctx.SwitchPhase(protocol.PhasePlay)
}

// SetCompression включает сжатие для последующих кадров
func (h *Handlers) SetCompression(ctx *Context, r *protocol.Reader) (Result, error) {
	threshold, err := r.ReadVarInt()
	if err != nil {
		return Continue, fmt.Errorf("compression threshold: %w", err)
	}
	ctx.Log.Info("🗜️ Compression enabled, threshold %d", threshold)
	ctx.EnableCompression(int(threshold))
	return Continue, nil
}

// ChunkData разбирает колонну и публикует ее в состоянии сессии.
// Поврежденная колонна отбрасывается, состояние не меняется.
func (h *Handlers) ChunkData(ctx *Context, r *protocol.Reader) (Result, error) {
	start := timeNow()
	col, err := h.chunks.Decode(r)
	if err != nil {
		h.metrics.column(false, 0)
		return Continue, err
	}
	h.metrics.column(true, timeNow().Sub(start))

	replaced := ctx.State.PutColumn(col)
	ctx.Log.Debug("🧱 Column %s: %d sections, replaced=%v", col.Coords, col.PresentSections(), replaced)
	ctx.Listener.ChunkUpdated(col.Coords)
	return Continue, nil
}

// PlayerPosition: double x, y, z; остальные поля пакета не нужны
func (h *Handlers) PlayerPosition(ctx *Context, r *protocol.Reader) (Result, error) {
	x, err := r.ReadDouble()
	if err != nil {
		return Continue, fmt.Errorf("position x: %w", err)
	}
	y, err := r.ReadDouble()
	if err != nil {
		return Continue, fmt.Errorf("position y: %w", err)
	}
	z, err := r.ReadDouble()
	if err != nil {
		return Continue, fmt.Errorf("position z: %w", err)
	}

	pos := vec.NewPosition(x, y, z, h.offset)
	ctx.State.SetPosition(pos)
	ctx.Log.Debug("📍 Player at %s (chunk %s)", pos, pos.ChunkPos())
	ctx.Listener.PlayerMoved(pos)
	return Continue, nil
}
