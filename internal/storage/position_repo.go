package storage

import (
	"context"
	"errors"
	"time"

	"github.com/annel0/world-observer/internal/vec"
)

// ErrEmptySessionID - пустой идентификатор сессии
var ErrEmptySessionID = errors.New("storage: empty session id")

// SessionPosition - последняя известная позиция наблюдаемого игрока
type SessionPosition struct {
	SessionID string      `json:"session_id"`
	Position  vec.Coord3D `json:"position"`
	Chunk     vec.Coord2D `json:"chunk"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// PositionRepo хранит позиции по идентификатору сессии.
// Load возвращает false, если позиции нет.
type PositionRepo interface {
	Save(ctx context.Context, pos SessionPosition) error
	Load(ctx context.Context, sessionID string) (SessionPosition, bool, error)
	Delete(ctx context.Context, sessionID string) error
	Close() error
}
