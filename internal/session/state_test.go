package session

import (
	"sync"
	"testing"

	"github.com/annel0/world-observer/internal/vec"
	"github.com/annel0/world-observer/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func column(x, z int) *world.Column {
	return world.NewColumn(vec.Coord2D{X: x, Z: z}, 16)
}

func TestPositionAbsentUntilSet(t *testing.T) {
	s := NewState()
	_, ok := s.CurrentPosition()
	assert.False(t, ok)

	s.SetPosition(vec.Coord3D{X: 1, Y: 2, Z: 3})
	pos, ok := s.CurrentPosition()
	require.True(t, ok)
	assert.Equal(t, vec.Coord3D{X: 1, Y: 2, Z: 3}, pos)
}

func TestPutColumnReplaces(t *testing.T) {
	s := NewState()
	first := column(1, 2)
	second := column(1, 2)

	assert.False(t, s.PutColumn(first))
	assert.True(t, s.PutColumn(second))
	assert.Equal(t, 1, s.ColumnCount())

	got, ok := s.Column(vec.Coord2D{X: 1, Z: 2})
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestSnapshotSortedAndIsolated(t *testing.T) {
	s := NewState()
	s.PutColumn(column(2, 0))
	s.PutColumn(column(-1, 5))
	s.PutColumn(column(2, -3))

	snap := s.ChunkSnapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, vec.Coord2D{X: -1, Z: 5}, snap[0].Coord)
	assert.Equal(t, vec.Coord2D{X: 2, Z: -3}, snap[1].Coord)
	assert.Equal(t, vec.Coord2D{X: 2, Z: 0}, snap[2].Coord)
	for _, e := range snap {
		assert.False(t, e.Persisted)
		assert.Equal(t, e.Coord, e.Column.Coords)
	}

	s.PutColumn(column(9, 9))
	s.MarkPersisted([]vec.Coord2D{{X: 2, Z: 0}})
	assert.Len(t, snap, 3, "снимок не меняется после записи")
	assert.False(t, snap[2].Persisted)
}

func TestMarkPersisted(t *testing.T) {
	s := NewState()
	s.PutColumn(column(0, 0))
	s.PutColumn(column(1, 0))

	n := s.MarkPersisted([]vec.Coord2D{{X: 0, Z: 0}, {X: 7, Z: 7}})
	assert.Equal(t, 1, n)
	assert.True(t, s.IsPersisted(vec.Coord2D{X: 0, Z: 0}))
	assert.False(t, s.IsPersisted(vec.Coord2D{X: 1, Z: 0}))
	assert.False(t, s.IsPersisted(vec.Coord2D{X: 7, Z: 7}), "незагруженные координаты не отмечаются")

	// Новое содержимое еще не сохранено
	s.PutColumn(column(0, 0))
	assert.False(t, s.IsPersisted(vec.Coord2D{X: 0, Z: 0}))
}

func TestMarkSavedSkipsReplacedColumns(t *testing.T) {
	s := NewState()
	s.PutColumn(column(0, 0))
	s.PutColumn(column(1, 0))
	s.PutColumn(column(2, 0))
	snap := s.ChunkSnapshot()

	// Пока снимок сохраняется, одну колонну заменили, другую выгрузили
	s.PutColumn(column(0, 0))
	s.Evict([]vec.Coord2D{{X: 2, Z: 0}})

	assert.Equal(t, 1, s.MarkSaved(snap))
	assert.False(t, s.IsPersisted(vec.Coord2D{X: 0, Z: 0}), "сохранена старая версия")
	assert.True(t, s.IsPersisted(vec.Coord2D{X: 1, Z: 0}))
	assert.False(t, s.IsPersisted(vec.Coord2D{X: 2, Z: 0}))
}

func TestPersistedSurvivesEviction(t *testing.T) {
	s := NewState()
	s.PutColumn(column(0, 0))
	s.PutColumn(column(10, 10))
	s.MarkPersisted([]vec.Coord2D{{X: 10, Z: 10}})

	evicted := s.EvictOutOfRange(vec.Coord2D{X: 0, Z: 0}, 5)
	assert.Equal(t, []vec.Coord2D{{X: 10, Z: 10}}, evicted)
	assert.Equal(t, 1, s.ColumnCount())
	assert.True(t, s.IsPersisted(vec.Coord2D{X: 10, Z: 10}))

	// Выгруженную колонну все еще можно отметить: она была загружена
	assert.Equal(t, 1, s.MarkPersisted([]vec.Coord2D{{X: 10, Z: 10}}))

	// Повторно полученная колонна снова ждет сохранения
	s.PutColumn(column(10, 10))
	snap := s.ChunkSnapshot()
	require.Len(t, snap, 2)
	assert.False(t, snap[1].Persisted)
}

func TestBounds(t *testing.T) {
	s := NewState()
	_, ok := s.Bounds()
	assert.False(t, ok)

	s.PutColumn(column(3, -2))
	s.PutColumn(column(-4, 6))
	s.PutColumn(column(0, 0))

	b, ok := s.Bounds()
	require.True(t, ok)
	assert.Equal(t, Bounds{MinX: -4, MaxX: 3, MinZ: -2, MaxZ: 6}, b)
	assert.True(t, b.Contains(vec.Coord2D{X: 0, Z: 5}))
	assert.False(t, b.Contains(vec.Coord2D{X: 4, Z: 0}))

	assert.Equal(t, 1, s.Evict([]vec.Coord2D{{X: -4, Z: 6}, {X: 50, Z: 50}}))
	b, ok = s.Bounds()
	require.True(t, ok)
	assert.Equal(t, Bounds{MinX: 0, MaxX: 3, MinZ: -2, MaxZ: 0}, b)

	s.Evict([]vec.Coord2D{{X: 3, Z: -2}, {X: 0, Z: 0}})
	_, ok = s.Bounds()
	assert.False(t, ok)
}

func TestConcurrentReaders(t *testing.T) {
	s := NewState()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.PutColumn(column(i, -i))
			s.SetPosition(vec.Coord3D{X: float64(i)})
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				for _, e := range s.ChunkSnapshot() {
					_ = e.Column.PresentSections()
				}
				s.CurrentPosition()
				s.MarkPersisted([]vec.Coord2D{{X: i, Z: -i}})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 200, s.ColumnCount())
}
