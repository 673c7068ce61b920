package storage

import (
	"context"
	"sync"
	"time"

	"github.com/annel0/world-observer/internal/logging"
	"github.com/annel0/world-observer/internal/vec"
)

// ColumnIndexer - репозиторий, который умеет вести индекс колонн сессии
type ColumnIndexer interface {
	AddColumns(ctx context.Context, sessionID string, coords []vec.Coord2D) error
}

// PositionSink - слушатель сессии, сбрасывающий позицию и новые колонны в репозиторий.
// Вызовы слушателя не блокируются на хранилище: между сбросами
// сохраняется только последняя позиция.
type PositionSink struct {
	repo      PositionRepo
	sessionID string
	interval  time.Duration
	log       *logging.Logger

	mu      sync.Mutex
	pending *SessionPosition
	columns map[vec.Coord2D]struct{}

	shutdown chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewPositionSink запускает фоновый сброс с периодом interval
func NewPositionSink(repo PositionRepo, sessionID string, interval time.Duration) *PositionSink {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	s := &PositionSink{
		repo:      repo,
		sessionID: sessionID,
		interval:  interval,
		log:       logging.GetStorageLogger(),
		columns:   make(map[vec.Coord2D]struct{}),
		shutdown:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.flusher()
	return s
}

// PlayerMoved запоминает позицию до следующего сброса
func (s *PositionSink) PlayerMoved(pos vec.Coord3D) {
	s.mu.Lock()
	s.pending = &SessionPosition{
		SessionID: s.sessionID,
		Position:  pos,
		Chunk:     pos.ChunkPos(),
		UpdatedAt: time.Now(),
	}
	s.mu.Unlock()
}

// ChunkUpdated добавляет колонну в индекс, если репозиторий его ведет
func (s *PositionSink) ChunkUpdated(c vec.Coord2D) {
	if _, ok := s.repo.(ColumnIndexer); !ok {
		return
	}
	s.mu.Lock()
	s.columns[c] = struct{}{}
	s.mu.Unlock()
}

// Flush немедленно записывает накопленное.
// При ошибке записи несохраненное возвращается в очередь до следующего сброса.
func (s *PositionSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	pos := s.pending
	s.pending = nil
	var coords []vec.Coord2D
	if len(s.columns) > 0 {
		coords = make([]vec.Coord2D, 0, len(s.columns))
		for c := range s.columns {
			coords = append(coords, c)
		}
		s.columns = make(map[vec.Coord2D]struct{})
	}
	s.mu.Unlock()

	if pos != nil {
		if err := s.repo.Save(ctx, *pos); err != nil {
			s.requeue(pos, coords)
			return err
		}
	}
	if idx, ok := s.repo.(ColumnIndexer); ok && len(coords) > 0 {
		if err := idx.AddColumns(ctx, s.sessionID, coords); err != nil {
			s.requeue(nil, coords)
			return err
		}
	}
	return nil
}

// requeue возвращает неудачно записанное; более новая позиция не затирается
func (s *PositionSink) requeue(pos *SessionPosition, coords []vec.Coord2D) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pos != nil && s.pending == nil {
		s.pending = pos
	}
	for _, c := range coords {
		s.columns[c] = struct{}{}
	}
}

func (s *PositionSink) flusher() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			if err := s.Flush(context.Background()); err != nil {
				s.log.Error("❌ Failed to flush position: %v", err)
			}
		}
	}
}

// Close останавливает фоновый сброс и записывает остаток
func (s *PositionSink) Close() error {
	var err error
	s.once.Do(func() {
		close(s.shutdown)
		s.wg.Wait()
		err = s.Flush(context.Background())
	})
	return err
}
