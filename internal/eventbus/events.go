package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Типы событий наблюдателя
const (
	EventChunkUpdated = "ChunkUpdated"
	EventPlayerMoved  = "PlayerMoved"
)

// SchemaVersion - версия JSON-схем полезной нагрузки
const SchemaVersion = 1

// ChunkUpdatedPayload - колонна загружена или заменена
type ChunkUpdatedPayload struct {
	X         int    `json:"x"`
	Z         int    `json:"z"`
	FullChunk bool   `json:"full_chunk"`
	Sections  int    `json:"sections"`
	Mask      uint32 `json:"section_mask"`
}

// PlayerMovedPayload - новая позиция игрока (смещение уже применено)
type PlayerMovedPayload struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
	ChunkX int     `json:"chunk_x"`
	ChunkZ int     `json:"chunk_z"`
}

// NewEnvelope сериализует payload в JSON и заворачивает его в Envelope
func NewEnvelope(eventType, source string, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: eventType,
		Version:   SchemaVersion,
		Payload:   data,
	}, nil
}

// DecodePayload разбирает JSON полезной нагрузки в v
func (ev *Envelope) DecodePayload(v interface{}) error {
	if err := json.Unmarshal(ev.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", ev.EventType, err)
	}
	return nil
}
