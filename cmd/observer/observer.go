package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/world-observer/internal/api"
	"github.com/annel0/world-observer/internal/config"
	"github.com/annel0/world-observer/internal/eventbus"
	"github.com/annel0/world-observer/internal/logging"
	"github.com/annel0/world-observer/internal/network"
	"github.com/annel0/world-observer/internal/observability"
	"github.com/annel0/world-observer/internal/session"
	"github.com/annel0/world-observer/internal/storage"
)

// observer собирает адаптеры вокруг ядра декодирования: шину событий,
// хранилище колонн, кэш позиции, REST API, метрики и трассировку.
// Одно состояние мира на процесс; сессии (файлы или TCP-подключения) идут по очереди.
type observer struct {
	id       string
	cfg      *config.Config
	state    *session.State
	listener *session.Listeners
	metrics  *network.Metrics

	bus      eventbus.EventBus
	busLog   eventbus.Subscription
	exporter *eventbus.MetricsExporter

	store     *storage.ColumnStore
	persister *storage.Persister
	repo      storage.PositionRepo
	sink      *storage.PositionSink

	api       *api.RestServer
	telemetry observability.Shutdown

	cancel context.CancelFunc
	done   chan struct{}
}

func newObserver(ctx context.Context, cfg *config.Config, serve bool) (*observer, error) {
	o := &observer{
		id:       uuid.NewString(),
		cfg:      cfg,
		state:    session.NewState(),
		listener: &session.Listeners{},
		metrics:  network.NewMetrics(prometheus.DefaultRegisterer),
		done:     make(chan struct{}),
	}

	ok := false
	defer func() {
		if !ok {
			o.close(context.Background())
		}
	}()

	var err error
	o.telemetry, err = observability.InitTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	if err := o.initEventBus(); err != nil {
		return nil, err
	}
	if err := o.initStorage(ctx); err != nil {
		return nil, err
	}

	if serve && cfg.Server.Enabled {
		o.api = api.NewRestServer(api.Config{
			Port:       fmt.Sprintf(":%d", cfg.Server.GetRESTPort()),
			State:      o.state,
			Bus:        o.bus,
			Store:      o.storeOrNil(),
			Registerer: prometheus.DefaultRegisterer,
			Gatherer:   prometheus.DefaultGatherer,
		})
		go func() {
			if err := o.api.Start(); err != nil {
				logging.Error("❌ Ошибка запуска REST API: %v", err)
			}
		}()
	} else if serve {
		o.exporter.StartHTTP(fmt.Sprintf(":%d", cfg.Server.GetMetricsPort()), prometheus.DefaultGatherer)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	go func() {
		defer close(o.done)
		if o.persister != nil {
			o.persister.Run(runCtx)
		} else {
			<-runCtx.Done()
		}
	}()

	ok = true
	return o, nil
}

func (o *observer) initEventBus() error {
	if o.cfg.EventBus.URL != "" {
		retention := time.Duration(o.cfg.EventBus.Retention) * time.Hour
		js, err := eventbus.NewJetStreamBus(o.cfg.EventBus.URL, o.cfg.EventBus.Stream, retention)
		if err != nil {
			return fmt.Errorf("event bus: %w", err)
		}
		o.bus = js
		logging.Info("📨 JetStream event bus connected: %s stream=%s", o.cfg.EventBus.URL, o.cfg.EventBus.Stream)
	} else {
		o.bus = eventbus.NewMemoryBus(1024)
		logging.Info("📨 In-memory event bus")
	}

	sub, err := eventbus.StartLoggingListener(o.bus)
	if err != nil {
		return err
	}
	o.busLog = sub

	o.exporter = eventbus.NewMetricsExporter(o.bus, prometheus.DefaultRegisterer)
	o.exporter.Start(5 * time.Second)

	o.listener.Add(eventbus.NewSessionPublisher(o.bus, o.state, "observer "+o.id[:8]))
	return nil
}

func (o *observer) initStorage(ctx context.Context) error {
	sc := o.cfg.Storage
	if sc.Enabled {
		store, err := storage.NewColumnStore(sc.Path, sc.InMemory)
		if err != nil {
			return fmt.Errorf("column store: %w", err)
		}
		o.store = store
		o.persister = storage.NewPersister(o.state, store, time.Duration(sc.PersistEvery)*time.Second)
		logging.Info("💾 Column store at %s (in_memory=%v)", sc.Path, sc.InMemory)
	}

	if o.cfg.Redis.Enabled {
		repo, err := storage.NewRedisPositionRepo(ctx, o.cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		o.repo = repo
	} else {
		o.repo = storage.NewMemoryPositionRepo()
	}
	o.sink = storage.NewPositionSink(o.repo, o.id, 250*time.Millisecond)
	o.listener.Add(o.sink)
	return nil
}

func (o *observer) storeOrNil() api.ColumnLoader {
	if o.store == nil {
		return nil
	}
	return o.store
}

// newSession создает сессию декодирования над общим состоянием
func (o *observer) newSession() (*network.Session, error) {
	opts, err := network.OptionsFromConfig(o.cfg)
	if err != nil {
		return nil, err
	}
	opts.State = o.state
	opts.Listener = o.listener
	opts.Metrics = o.metrics
	return network.NewSession(opts)
}

// close останавливает адаптеры в обратном порядке; последний сброс колонн выполняет persister
func (o *observer) close(ctx context.Context) {
	if o.cancel != nil {
		o.cancel()
		<-o.done
	}
	if o.api != nil {
		if err := o.api.Stop(ctx); err != nil {
			logging.Error("❌ Ошибка остановки REST API: %v", err)
		}
	}
	if o.sink != nil {
		if err := o.sink.Close(); err != nil {
			logging.Error("position sink: %v", err)
		}
	}
	if o.repo != nil {
		o.repo.Close()
	}
	if o.store != nil {
		if err := o.store.Close(); err != nil {
			logging.Error("column store: %v", err)
		}
	}
	if o.busLog != nil {
		o.busLog.Unsubscribe()
	}
	if o.exporter != nil {
		o.exporter.Stop()
	}
	if o.bus != nil {
		o.bus.Close()
	}
	if o.telemetry != nil {
		o.telemetry(ctx)
	}
}

func logSummary(s network.Summary) {
	logging.Info("📊 Session %s: phase=%s frames=%d bytes=%d packets=%d skipped=%d handler_errors=%d columns=%d",
		s.ID, s.Phase, s.Frames, s.Bytes, s.Dispatch.Dispatched, s.Dispatch.Skipped, s.Dispatch.HandlerErrors, s.Columns)
	if s.HasPosition {
		logging.Info("   📍 Last position %s, chunk %s", s.LastPosition, s.LastPosition.ChunkPos())
	}
	for dir, n := range s.BufferedTail {
		if n > 0 {
			logging.Warn("   ✂️ %d bytes of an incomplete %s frame left unread", n, dir)
		}
	}
	if s.TerminalError != nil {
		logging.Error("   💥 %v", s.TerminalError)
	}
}
