package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBusClosed - публикация в закрытую шину
var ErrBusClosed = errors.New("eventbus: closed")

// Envelope описывает универсальный контейнер события.
type Envelope struct {
	ID            string            // Глобально уникальный идентификатор (UUID).
	Timestamp     time.Time         // Время создания события (UTC).
	Source        string            // Имя источника (сессия наблюдения).
	EventType     string            // Тип события (ChunkUpdated, PlayerMoved).
	Version       int               // Версия схемы полезной нагрузки.
	CorrelationID string            // Для связывания цепочек.
	Priority      int               // 0=Low … 9=Critical (для backpressure).
	Payload       []byte            // JSON полезной нагрузки.
	Metadata      map[string]string // Произвольные метаданные.
}

// Filter позволяет подписаться только на нужные события.
type Filter struct {
	Types   []string // Если пусто, все типы.
	Sources []string // Если пусто, все источники.
}

// Subscription возвращается при подписке; позволяет отписаться.
type Subscription interface {
	Unsubscribe()
}

// Handler потребляет события.
type Handler func(ctx context.Context, ev *Envelope)

// Stats агрегированные метрики шины.
type Stats struct {
	Published uint64
	Consumed  uint64
	Dropped   uint64
	InFlight  int
}

// EventBus определяет абстракцию шины событий.
type EventBus interface {
	Publish(ctx context.Context, ev *Envelope) error
	Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error)
	Metrics() Stats
	Close() error
}

//================ In-Memory implementation =================//

// memoryBus доставляет события каждому подписчику в порядке публикации
type memoryBus struct {
	mu          sync.RWMutex
	subscribers map[int]*subscriber
	nextID      int
	statsMu     sync.Mutex
	stats       Stats
	buffer      chan *Envelope
	closed      bool
	closing     chan struct{} // Закрывается до захвата mu в Close
	closeOnce   sync.Once
	done        chan struct{}
}

type subscriber struct {
	filter  Filter
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
	queue   chan *Envelope
}

// NewMemoryBus создаёт in-memory Bus с указанным буфером.
func NewMemoryBus(capacity int) EventBus {
	mb := newMemoryBus(capacity)
	go mb.dispatchLoop()
	return mb
}

func newMemoryBus(capacity int) *memoryBus {
	if capacity <= 0 {
		capacity = 1
	}
	return &memoryBus{
		subscribers: make(map[int]*subscriber),
		buffer:      make(chan *Envelope, capacity),
		closing:     make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (mb *memoryBus) Publish(ctx context.Context, ev *Envelope) error {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return ErrBusClosed
	}

	select {
	case mb.buffer <- ev:
		mb.count(func(s *Stats) { s.Published++ })
		return nil
	default:
	}

	// Буфер заполнен, дропаем низкий приоритет (<5)
	if ev.Priority < 5 {
		mb.count(func(s *Stats) { s.Dropped++ })
		return nil
	}
	// Для High-priority блокируем до освобождения места, закрытия шины или отмены контекста
	select {
	case mb.buffer <- ev:
		mb.count(func(s *Stats) { s.Published++ })
		return nil
	case <-mb.closing:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// count меняет счетчики; вызывается под RLock шины, поэтому нужен отдельный мьютекс
func (mb *memoryBus) count(fn func(*Stats)) {
	mb.statsMu.Lock()
	fn(&mb.stats)
	mb.statsMu.Unlock()
}

func (mb *memoryBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return nil, ErrBusClosed
	}

	id := mb.nextID
	mb.nextID++
	cctx, cancel := context.WithCancel(ctx)
	sub := &subscriber{filter: f, handler: h, ctx: cctx, cancel: cancel, queue: make(chan *Envelope, cap(mb.buffer))}
	mb.subscribers[id] = sub
	go mb.deliver(sub)

	return &memSub{bus: mb, id: id}, nil
}

func (mb *memoryBus) Metrics() Stats {
	mb.statsMu.Lock()
	s := mb.stats
	mb.statsMu.Unlock()
	s.InFlight = len(mb.buffer)
	return s
}

// Close прекращает прием событий и дожидается рассылки уже принятых
func (mb *memoryBus) Close() error {
	mb.closeOnce.Do(func() { close(mb.closing) })

	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return nil
	}
	mb.closed = true
	close(mb.buffer)
	mb.mu.Unlock()

	<-mb.done
	return nil
}

// dispatchLoop раскладывает события по очередям подписчиков.
func (mb *memoryBus) dispatchLoop() {
	defer close(mb.done)
	for ev := range mb.buffer {
		mb.mu.RLock()
		for _, sub := range mb.subscribers {
			if !matchFilter(ev, sub.filter) {
				continue
			}
			select {
			case sub.queue <- ev:
			default:
				mb.count(func(s *Stats) { s.Dropped++ })
			}
		}
		mb.mu.RUnlock()
	}

	mb.mu.Lock()
	for id, sub := range mb.subscribers {
		close(sub.queue)
		delete(mb.subscribers, id)
	}
	mb.mu.Unlock()
}

// deliver вызывает обработчик подписчика последовательно
func (mb *memoryBus) deliver(sub *subscriber) {
	for ev := range sub.queue {
		if sub.ctx.Err() != nil {
			continue
		}
		sub.handler(sub.ctx, ev)
		mb.count(func(s *Stats) { s.Consumed++ })
	}
	sub.cancel()
}

func matchFilter(ev *Envelope, f Filter) bool {
	match := func(val string, arr []string) bool {
		if len(arr) == 0 {
			return true
		}
		for _, v := range arr {
			if v == val {
				return true
			}
		}
		return false
	}
	return match(ev.EventType, f.Types) && match(ev.Source, f.Sources)
}

type memSub struct {
	bus *memoryBus
	id  int
}

func (s *memSub) Unsubscribe() {
	s.bus.mu.Lock()
	if sub, ok := s.bus.subscribers[s.id]; ok {
		sub.cancel()
		close(sub.queue)
		delete(s.bus.subscribers, s.id)
	}
	s.bus.mu.Unlock()
}
