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
)

var _ session.Listener = (*PositionSink)(nil)

// flakyRepo отказывает в записи, пока выставлен fail
type flakyRepo struct {
	*MemoryPositionRepo

	mu      sync.Mutex
	fail    bool
	indexed []vec.Coord2D
}

func (r *flakyRepo) setFail(v bool) {
	r.mu.Lock()
	r.fail = v
	r.mu.Unlock()
}

func (r *flakyRepo) Save(ctx context.Context, pos SessionPosition) error {
	r.mu.Lock()
	fail := r.fail
	r.mu.Unlock()
	if fail {
		return errors.New("redis: connection refused")
	}
	return r.MemoryPositionRepo.Save(ctx, pos)
}

func (r *flakyRepo) AddColumns(ctx context.Context, sessionID string, coords []vec.Coord2D) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("redis: connection refused")
	}
	r.indexed = append(r.indexed, coords...)
	return nil
}

func TestPositionSinkKeepsLatest(t *testing.T) {
	repo := NewMemoryPositionRepo()
	sink := NewPositionSink(repo, "sess", time.Hour)

	sink.PlayerMoved(vec.Coord3D{X: 1, Y: 64, Z: 1})
	sink.PlayerMoved(vec.Coord3D{X: 40, Y: 70, Z: -17})
	require.NoError(t, sink.Close())

	pos, ok, err := repo.Load(context.Background(), "sess")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, vec.Coord3D{X: 40, Y: 70, Z: -17}, pos.Position)
	assert.Equal(t, vec.Coord2D{X: 2, Z: -2}, pos.Chunk)

	// Повторное закрытие безопасно
	assert.NoError(t, sink.Close())
}

func TestPositionSinkPeriodicFlush(t *testing.T) {
	repo := NewMemoryPositionRepo()
	sink := NewPositionSink(repo, "sess", 10*time.Millisecond)
	defer sink.Close()

	sink.PlayerMoved(vec.Coord3D{X: 3, Y: 3, Z: 3})

	assert.Eventually(t, func() bool {
		_, ok, _ := repo.Load(context.Background(), "sess")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPositionSinkIndexesColumnsInRedis(t *testing.T) {
	repo, _ := newRedisRepo(t)
	sink := NewPositionSink(repo, "sess", time.Hour)

	sink.ChunkUpdated(vec.Coord2D{X: 1, Z: 2})
	sink.ChunkUpdated(vec.Coord2D{X: 1, Z: 2})
	sink.ChunkUpdated(vec.Coord2D{X: 0, Z: 0})
	require.NoError(t, sink.Flush(context.Background()))

	coords, err := repo.Columns(context.Background(), "sess")
	require.NoError(t, err)
	assert.Equal(t, []vec.Coord2D{{X: 0, Z: 0}, {X: 1, Z: 2}}, coords)
	require.NoError(t, sink.Close())
}

func TestPositionSinkRetriesAfterFailedWrite(t *testing.T) {
	repo := &flakyRepo{MemoryPositionRepo: NewMemoryPositionRepo(), fail: true}
	sink := NewPositionSink(repo, "sess", time.Hour)

	sink.PlayerMoved(vec.Coord3D{X: 5, Y: 64, Z: 5})
	sink.ChunkUpdated(vec.Coord2D{X: 0, Z: 0})
	require.Error(t, sink.Flush(context.Background()))

	_, ok, err := repo.Load(context.Background(), "sess")
	require.NoError(t, err)
	assert.False(t, ok)

	repo.setFail(false)
	require.NoError(t, sink.Flush(context.Background()))

	pos, ok, err := repo.Load(context.Background(), "sess")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, vec.Coord3D{X: 5, Y: 64, Z: 5}, pos.Position)
	assert.Equal(t, []vec.Coord2D{{X: 0, Z: 0}}, repo.indexed)
	require.NoError(t, sink.Close())
}

func TestPositionSinkRequeueKeepsNewerPosition(t *testing.T) {
	repo := &flakyRepo{MemoryPositionRepo: NewMemoryPositionRepo()}
	sink := NewPositionSink(repo, "sess", time.Hour)

	sink.requeue(&SessionPosition{SessionID: "sess", Position: vec.Coord3D{X: 1}}, nil)
	sink.PlayerMoved(vec.Coord3D{X: 2})
	sink.requeue(&SessionPosition{SessionID: "sess", Position: vec.Coord3D{X: 1}}, nil)
	require.NoError(t, sink.Close())

	pos, ok, err := repo.Load(context.Background(), "sess")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, vec.Coord3D{X: 2}, pos.Position)
}
