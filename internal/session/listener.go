package session

import (
	"sync"

	"github.com/annel0/world-observer/internal/vec"
)

// Listener получает уведомления об изменениях состояния.
// Вызывается из потока декодирования после снятия блокировки состояния,
// поэтому реализация может читать State, но не должна надолго блокировать.
type Listener interface {
	ChunkUpdated(coord vec.Coord2D)
	PlayerMoved(pos vec.Coord3D)
}

// Listeners рассылает уведомления нескольким подписчикам
type Listeners struct {
	mu   sync.RWMutex
	list []Listener
}

// Add добавляет подписчика
func (l *Listeners) Add(listener Listener) {
	if listener == nil {
		return
	}
	l.mu.Lock()
	l.list = append(l.list, listener)
	l.mu.Unlock()
}

// Len возвращает число подписчиков
func (l *Listeners) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.list)
}

func (l *Listeners) snapshot() []Listener {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Listener(nil), l.list...)
}

func (l *Listeners) ChunkUpdated(coord vec.Coord2D) {
	for _, listener := range l.snapshot() {
		listener.ChunkUpdated(coord)
	}
}

func (l *Listeners) PlayerMoved(pos vec.Coord3D) {
	for _, listener := range l.snapshot() {
		listener.PlayerMoved(pos)
	}
}

// NopListener игнорирует все уведомления
type NopListener struct{}

func (NopListener) ChunkUpdated(vec.Coord2D) {}
func (NopListener) PlayerMoved(vec.Coord3D)  {}

// ListenerFuncs собирает Listener из функций; nil-поля пропускаются
type ListenerFuncs struct {
	OnChunkUpdated func(vec.Coord2D)
	OnPlayerMoved  func(vec.Coord3D)
}

func (f ListenerFuncs) ChunkUpdated(coord vec.Coord2D) {
	if f.OnChunkUpdated != nil {
		f.OnChunkUpdated(coord)
	}
}

func (f ListenerFuncs) PlayerMoved(pos vec.Coord3D) {
	if f.OnPlayerMoved != nil {
		f.OnPlayerMoved(pos)
	}
}
