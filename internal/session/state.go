package session

import (
	"sort"
	"sync"

	"github.com/annel0/world-observer/internal/vec"
	"github.com/annel0/world-observer/internal/world"
)

// ColumnEntry - элемент снимка колонн
type ColumnEntry struct {
	Coord     vec.Coord2D
	Column    *world.Column
	Persisted bool
}

// Bounds - прямоугольник, покрывающий загруженные колонны (в координатах чанков)
type Bounds struct {
	MinX, MaxX int
	MinZ, MaxZ int
}

// Contains проверяет, попадает ли колонна в прямоугольник
func (b Bounds) Contains(c vec.Coord2D) bool {
	return c.X >= b.MinX && c.X <= b.MaxX && c.Z >= b.MinZ && c.Z <= b.MaxZ
}

// State хранит реконструированное состояние мира одной сессии.
// Пишет только диспетчер (один поток), читать можно из любого потока.
// Колонны после публикации не изменяются, поэтому снимок копирует только карту.
type State struct {
	mu sync.RWMutex

	position    vec.Coord3D
	hasPosition bool

	columns   map[vec.Coord2D]*world.Column
	persisted map[vec.Coord2D]bool // Ключ был загружен хотя бы раз; true - текущее содержимое сохранено

	bounds    Bounds
	hasBounds bool
}

// NewState создает пустое состояние сессии
func NewState() *State {
	return &State{
		columns:   make(map[vec.Coord2D]*world.Column),
		persisted: make(map[vec.Coord2D]bool),
	}
}

// SetPosition сохраняет позицию игрока
func (s *State) SetPosition(pos vec.Coord3D) {
	s.mu.Lock()
	s.position = pos
	s.hasPosition = true
	s.mu.Unlock()
}

// PutColumn публикует колонну, заменяя прежнюю с теми же координатами.
// Возвращает true, если колонна была заменена.
// Новое содержимое еще не сохранено, поэтому флаг сбрасывается.
func (s *State) PutColumn(col *world.Column) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, replaced := s.columns[col.Coords]
	s.columns[col.Coords] = col
	s.persisted[col.Coords] = false
	s.extendBounds(col.Coords)
	return replaced
}

func (s *State) extendBounds(c vec.Coord2D) {
	if !s.hasBounds {
		s.bounds = Bounds{MinX: c.X, MaxX: c.X, MinZ: c.Z, MaxZ: c.Z}
		s.hasBounds = true
		return
	}
	if c.X < s.bounds.MinX {
		s.bounds.MinX = c.X
	}
	if c.X > s.bounds.MaxX {
		s.bounds.MaxX = c.X
	}
	if c.Z < s.bounds.MinZ {
		s.bounds.MinZ = c.Z
	}
	if c.Z > s.bounds.MaxZ {
		s.bounds.MaxZ = c.Z
	}
}

// recomputeBounds пересчитывает прямоугольник после удаления колонн
func (s *State) recomputeBounds() {
	s.hasBounds = false
	for c := range s.columns {
		s.extendBounds(c)
	}
}

// CurrentPosition возвращает последнюю позицию игрока.
// false, если пакета позиции еще не было.
func (s *State) CurrentPosition() (vec.Coord3D, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position, s.hasPosition
}

// ChunkSnapshot возвращает копию списка колонн на текущий момент,
// отсортированную по (X, Z). Последующие изменения состояния на снимок не влияют.
func (s *State) ChunkSnapshot() []ColumnEntry {
	s.mu.RLock()
	entries := make([]ColumnEntry, 0, len(s.columns))
	for c, col := range s.columns {
		entries = append(entries, ColumnEntry{Coord: c, Column: col, Persisted: s.persisted[c]})
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Coord.Less(entries[j].Coord)
	})
	return entries
}

// MarkPersisted отмечает колонны как сохраненные.
// Координаты, которые никогда не загружались, пропускаются.
// Возвращает количество обновленных записей.
func (s *State) MarkPersisted(coords []vec.Coord2D) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range coords {
		if _, ok := s.persisted[c]; !ok {
			continue
		}
		s.persisted[c] = true
		n++
	}
	return n
}

// MarkSaved отмечает записи снимка, сохраненные сборщиком.
// Запись пропускается, если колонну с тех пор заменили или выгрузили:
// сохранена была старая версия.
func (s *State) MarkSaved(entries []ColumnEntry) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range entries {
		if cur, ok := s.columns[e.Coord]; !ok || cur != e.Column {
			continue
		}
		s.persisted[e.Coord] = true
		n++
	}
	return n
}

// IsPersisted возвращает флаг сохранения колонны
func (s *State) IsPersisted(c vec.Coord2D) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persisted[c]
}

// Column возвращает загруженную колонну
func (s *State) Column(c vec.Coord2D) (*world.Column, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.columns[c]
	return col, ok
}

// ColumnCount возвращает количество загруженных колонн
func (s *State) ColumnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.columns)
}

// Bounds возвращает прямоугольник загруженных колонн; false, если колонн нет
func (s *State) Bounds() (Bounds, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bounds, s.hasBounds
}

// Evict выгружает колонны. Флаги сохранения остаются и описывают
// последнюю версию до выгрузки; повторная загрузка сбрасывает флаг.
// Декодер сам никогда не выгружает колонны.
func (s *State) Evict(coords []vec.Coord2D) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range coords {
		if _, ok := s.columns[c]; ok {
			delete(s.columns, c)
			n++
		}
	}
	if n > 0 {
		s.recomputeBounds()
	}
	return n
}

// EvictOutOfRange выгружает колонны дальше radius от center
// и возвращает их координаты.
func (s *State) EvictOutOfRange(center vec.Coord2D, radius int) []vec.Coord2D {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []vec.Coord2D
	for c := range s.columns {
		if !c.IsInRange(center, radius) {
			delete(s.columns, c)
			evicted = append(evicted, c)
		}
	}
	if len(evicted) > 0 {
		s.recomputeBounds()
	}
	sort.Slice(evicted, func(i, j int) bool { return evicted[i].Less(evicted[j]) })
	return evicted
}
