package storage

import (
	"context"
	"time"

	"github.com/annel0/world-observer/internal/logging"
	"github.com/annel0/world-observer/internal/session"
	"github.com/annel0/world-observer/internal/world"
)

// ColumnSaver - приемник колонн для Persister
type ColumnSaver interface {
	SaveColumns(cols []*world.Column) error
}

// Persister периодически сохраняет несохраненные колонны сессии
// и отмечает их в состоянии через MarkSaved.
type Persister struct {
	state    *session.State
	store    ColumnSaver
	interval time.Duration
	log      *logging.Logger
}

// NewPersister создает сборщик
func NewPersister(state *session.State, store ColumnSaver, interval time.Duration) *Persister {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Persister{
		state:    state,
		store:    store,
		interval: interval,
		log:      logging.GetStorageLogger(),
	}
}

// PersistOnce сохраняет все колонны, не отмеченные как сохраненные.
// Колонна, замененная во время записи, остается несохраненной до следующего прохода.
func (p *Persister) PersistOnce(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var pending []*world.Column
	var entries []session.ColumnEntry
	for _, e := range p.state.ChunkSnapshot() {
		if e.Persisted {
			continue
		}
		pending = append(pending, e.Column)
		entries = append(entries, e)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	if err := p.store.SaveColumns(pending); err != nil {
		return 0, err
	}
	n := p.state.MarkSaved(entries)
	p.log.Debug("💾 Persisted %d columns", n)
	return n, nil
}

// Run сохраняет колонны каждые interval до отмены ctx; перед выходом делает последний проход
func (p *Persister) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info("💾 Persister started, interval %s", p.interval)
	for {
		select {
		case <-ticker.C:
			if _, err := p.PersistOnce(ctx); err != nil && ctx.Err() == nil {
				p.log.Error("persist columns: %v", err)
			}
		case <-ctx.Done():
			if _, err := p.PersistOnce(context.Background()); err != nil {
				p.log.Error("final persist: %v", err)
			}
			return ctx.Err()
		}
	}
}
