package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/world-observer/internal/vec"
	"github.com/annel0/world-observer/internal/world"
)

func newTestStore(t *testing.T) *ColumnStore {
	t.Helper()
	store, err := NewColumnStore("", true)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestColumnStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	col := testColumn(4, -7, 100)

	require.NoError(t, store.SaveColumns([]*world.Column{col}))

	got, ok, err := store.LoadColumn(vec.Coord2D{X: 4, Z: -7})
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, col.Coords, got.Coords)
	assert.Equal(t, col.FullChunk, got.FullChunk)
	assert.True(t, col.DecodedAt.Equal(got.DecodedAt))
	require.Len(t, got.Sections, len(col.Sections))
	for y := range col.Sections {
		assert.Equal(t, col.Sections[y], got.Sections[y], "section %d", y)
	}
}

func TestColumnStoreMissing(t *testing.T) {
	store := newTestStore(t)

	_, ok, err := store.LoadColumn(vec.Coord2D{X: 1, Z: 1})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestColumnStoreCoordsSorted(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveColumns([]*world.Column{
		testColumn(3, 0, 1),
		testColumn(-2, 9, 1),
		testColumn(3, -4, 1),
	}))

	coords, err := store.Coords()
	require.NoError(t, err)
	assert.Equal(t, []vec.Coord2D{{X: -2, Z: 9}, {X: 3, Z: -4}, {X: 3, Z: 0}}, coords)

	require.NoError(t, store.DeleteColumn(vec.Coord2D{X: 3, Z: -4}))
	coords, err = store.Coords()
	require.NoError(t, err)
	assert.Len(t, coords, 2)
}

func TestColumnStoreOverwrite(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveColumns([]*world.Column{testColumn(0, 0, 1)}))
	require.NoError(t, store.SaveColumns([]*world.Column{testColumn(0, 0, 50)}))

	got, ok, err := store.LoadColumn(vec.Coord2D{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(50), got.Sections[3].States[0])
}

func TestColumnStoreClosed(t *testing.T) {
	store, err := NewColumnStore("", true)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.SaveColumns(nil), ErrStoreClosed)
	_, _, err = store.LoadColumn(vec.Coord2D{})
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestParseColumnKey(t *testing.T) {
	c, err := parseColumnKey([]byte("column:-3:12"))
	require.NoError(t, err)
	assert.Equal(t, vec.Coord2D{X: -3, Z: 12}, c)

	_, err = parseColumnKey([]byte("column:bad"))
	assert.Error(t, err)
}
