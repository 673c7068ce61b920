package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/world-observer/internal/session"
	"github.com/annel0/world-observer/internal/vec"
	"github.com/annel0/world-observer/internal/world"
)

type recordingSaver struct {
	mu     sync.Mutex
	saved  []vec.Coord2D
	err    error
	during func() // Вызывается во время записи
}

func (r *recordingSaver) SaveColumns(cols []*world.Column) error {
	if r.during != nil {
		r.during()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	for _, c := range cols {
		r.saved = append(r.saved, c.Coords)
	}
	return nil
}

func (r *recordingSaver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

func TestPersistOnceMarksColumns(t *testing.T) {
	state := session.NewState()
	state.PutColumn(testColumn(0, 0, 1))
	state.PutColumn(testColumn(1, 0, 1))

	saver := &recordingSaver{}
	p := NewPersister(state, saver, time.Hour)

	n, err := p.PersistOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, state.IsPersisted(vec.Coord2D{X: 0, Z: 0}))
	assert.True(t, state.IsPersisted(vec.Coord2D{X: 1, Z: 0}))

	// Повторный проход ничего не пишет
	n, err = p.PersistOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, saver.count())
}

func TestPersistOnceStoreError(t *testing.T) {
	state := session.NewState()
	state.PutColumn(testColumn(0, 0, 1))

	saver := &recordingSaver{err: errors.New("disk full")}
	p := NewPersister(state, saver, time.Hour)

	_, err := p.PersistOnce(context.Background())
	require.Error(t, err)
	assert.False(t, state.IsPersisted(vec.Coord2D{}))
}

func TestPersisterWithBadger(t *testing.T) {
	state := session.NewState()
	state.PutColumn(testColumn(5, 5, 9))
	store := newTestStore(t)

	n, err := NewPersister(state, store, time.Hour).PersistOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, err := store.LoadColumn(vec.Coord2D{X: 5, Z: 5})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPersisterWritesReplacedColumn(t *testing.T) {
	state := session.NewState()
	store := newTestStore(t)
	p := NewPersister(state, store, time.Hour)
	coord := vec.Coord2D{X: 3, Z: -1}

	first := testColumn(3, -1, 1)
	first.FullChunk = false
	state.PutColumn(first)
	n, err := p.PersistOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	state.PutColumn(testColumn(3, -1, 7))
	assert.False(t, state.IsPersisted(coord))

	n, err = p.PersistOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, state.IsPersisted(coord))

	stored, ok, err := store.LoadColumn(coord)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, stored.FullChunk)
	assert.Equal(t, uint32(7), stored.Sections[3].Palette[0])
}

func TestPersistOnceColumnReplacedDuringSave(t *testing.T) {
	state := session.NewState()
	state.PutColumn(testColumn(0, 0, 1))
	state.PutColumn(testColumn(1, 0, 1))

	saver := &recordingSaver{}
	saver.during = func() {
		saver.during = nil
		state.PutColumn(testColumn(0, 0, 2))
	}
	p := NewPersister(state, saver, time.Hour)

	n, err := p.PersistOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, state.IsPersisted(vec.Coord2D{X: 0, Z: 0}), "записана старая версия")
	assert.True(t, state.IsPersisted(vec.Coord2D{X: 1, Z: 0}))

	n, err = p.PersistOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, state.IsPersisted(vec.Coord2D{X: 0, Z: 0}))
	assert.Equal(t, 3, saver.count())
}

func TestPersisterRunFinalFlush(t *testing.T) {
	state := session.NewState()
	saver := &recordingSaver{}
	p := NewPersister(state, saver, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	state.PutColumn(testColumn(2, 2, 1))
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("persister did not stop")
	}
	assert.Equal(t, 1, saver.count())
	assert.True(t, state.IsPersisted(vec.Coord2D{X: 2, Z: 2}))
}
