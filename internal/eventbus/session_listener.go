package eventbus

import (
	"context"
	"time"

	"github.com/annel0/world-observer/internal/logging"
	"github.com/annel0/world-observer/internal/session"
	"github.com/annel0/world-observer/internal/vec"
)

// SessionPublisher реализует session.Listener: превращает уведомления
// состояния сессии в события шины.
type SessionPublisher struct {
	bus     EventBus
	state   *session.State
	source  string
	timeout time.Duration
	log     *logging.Logger
}

// NewSessionPublisher создает публикатор событий сессии.
// state используется для описания колонны в ChunkUpdated.
func NewSessionPublisher(bus EventBus, state *session.State, source string) *SessionPublisher {
	return &SessionPublisher{
		bus:     bus,
		state:   state,
		source:  source,
		timeout: time.Second,
		log:     logging.GetEventBusLogger(),
	}
}

func (p *SessionPublisher) ChunkUpdated(coord vec.Coord2D) {
	payload := ChunkUpdatedPayload{X: coord.X, Z: coord.Z}
	if col, ok := p.state.Column(coord); ok {
		payload.FullChunk = col.FullChunk
		payload.Sections = col.PresentSections()
		payload.Mask = col.SectionMask()
	}
	p.publish(EventChunkUpdated, payload, 3)
}

func (p *SessionPublisher) PlayerMoved(pos vec.Coord3D) {
	chunk := pos.ChunkPos()
	p.publish(EventPlayerMoved, PlayerMovedPayload{
		X: pos.X, Y: pos.Y, Z: pos.Z,
		ChunkX: chunk.X, ChunkZ: chunk.Z,
	}, 1)
}

func (p *SessionPublisher) publish(eventType string, payload interface{}, priority int) {
	ev, err := NewEnvelope(eventType, p.source, payload)
	if err != nil {
		p.log.Error("%v", err)
		return
	}
	ev.Priority = priority

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.bus.Publish(ctx, ev); err != nil {
		p.log.Warn("publish %s: %v", eventType, err)
	}
}
