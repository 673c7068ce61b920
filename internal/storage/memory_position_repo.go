package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryPositionRepo реализует PositionRepo в памяти.
// Используется, когда Redis выключен, и в тестах.
type MemoryPositionRepo struct {
	mu   sync.RWMutex
	data map[string]SessionPosition
}

// NewMemoryPositionRepo создает пустой репозиторий
func NewMemoryPositionRepo() *MemoryPositionRepo {
	return &MemoryPositionRepo{
		data: make(map[string]SessionPosition),
	}
}

// Save сохраняет позицию
func (r *MemoryPositionRepo) Save(ctx context.Context, pos SessionPosition) error {
	if pos.SessionID == "" {
		return ErrEmptySessionID
	}

	// Проверяем контекст на отмену
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.data[pos.SessionID] = pos
	return nil
}

// Load загружает позицию
func (r *MemoryPositionRepo) Load(ctx context.Context, sessionID string) (SessionPosition, bool, error) {
	if sessionID == "" {
		return SessionPosition{}, false, ErrEmptySessionID
	}

	select {
	case <-ctx.Done():
		return SessionPosition{}, false, ctx.Err()
	default:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	pos, exists := r.data[sessionID]
	return pos, exists, nil
}

// Delete удаляет позицию
func (r *MemoryPositionRepo) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.data[sessionID]; !exists {
		return fmt.Errorf("позиция для сессии %s не найдена", sessionID)
	}
	delete(r.data, sessionID)
	return nil
}

// Close ничего не делает
func (r *MemoryPositionRepo) Close() error { return nil }

// Sessions возвращает отсортированный список сессий (для отладки)
func (r *MemoryPositionRepo) Sessions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.data))
	for id := range r.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
