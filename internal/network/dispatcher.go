package network

import (
	"fmt"
	"runtime/debug"

	"github.com/annel0/world-observer/internal/logging"
	"github.com/annel0/world-observer/internal/protocol"
	"github.com/annel0/world-observer/internal/session"
)

type route struct {
	name    string
	handler Handler
}

// PhaseDispatcher - обработчики одной фазы, индексированные по направлению и ID
type PhaseDispatcher struct {
	phase  protocol.Phase
	routes map[protocol.Direction]map[int32]route
}

// NewPhaseDispatcher строит таблицу фазы из ID пакетов и реестра обработчиков.
// Тип пакета без обработчика в реестре - ошибка конфигурации.
func NewPhaseDispatcher(phase protocol.Phase, ids map[protocol.Direction]map[string]int32, reg Registry) (*PhaseDispatcher, error) {
	pd := &PhaseDispatcher{
		phase:  phase,
		routes: make(map[protocol.Direction]map[int32]route),
	}
	for dir, names := range ids {
		routes := make(map[int32]route, len(names))
		for name, id := range names {
			h, ok := reg.Lookup(phase, dir, name)
			if !ok {
				return nil, fmt.Errorf("%w: %s/%s %q", ErrUnknownPacketType, phase, dir, name)
			}
			if prev, dup := routes[id]; dup {
				return nil, fmt.Errorf("%s/%s: id 0x%02X bound to both %s and %s", phase, dir, id, prev.name, name)
			}
			routes[id] = route{name: name, handler: h}
		}
		pd.routes[dir] = routes
	}
	return pd, nil
}

// Phase возвращает фазу диспетчера
func (pd *PhaseDispatcher) Phase() protocol.Phase {
	return pd.phase
}

func (pd *PhaseDispatcher) lookup(dir protocol.Direction, id int32) (route, bool) {
	r, ok := pd.routes[dir][id]
	return r, ok
}

// DispatchStats - счетчики диспетчера
type DispatchStats struct {
	Dispatched    int
	Skipped       int
	HandlerErrors int
}

// Dispatcher - конечный автомат фаз соединения. Направляет пакеты
// обработчикам текущей фазы. Не потокобезопасен: принадлежит горутине декодирования.
type Dispatcher struct {
	phase  protocol.Phase
	phases map[protocol.Phase]*PhaseDispatcher
	closed bool

	state    *session.State
	listener session.Listener
	log      *logging.Logger
	metrics  *Metrics
	source   string

	onCompression func(threshold int)
	stats         DispatchStats
}

// DispatcherOption настраивает Dispatcher
type DispatcherOption func(*Dispatcher)

// WithStartPhase задает начальную фазу (запись без рукопожатия)
func WithStartPhase(p protocol.Phase) DispatcherOption {
	return func(d *Dispatcher) { d.phase = p }
}

// WithListener задает получателя уведомлений об изменениях состояния
func WithListener(l session.Listener) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.listener = l
		}
	}
}

// WithLogger задает логгер
func WithLogger(l *logging.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// WithMetrics задает метрики
func WithMetrics(m *Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithCompressionHook задает реакцию на set_compression
func WithCompressionHook(fn func(threshold int)) DispatcherOption {
	return func(d *Dispatcher) { d.onCompression = fn }
}

// WithSource задает имя источника для логов
func WithSource(src string) DispatcherOption {
	return func(d *Dispatcher) { d.source = src }
}

// NewDispatcher строит диспетчеры всех фаз из таблицы ID и реестра
func NewDispatcher(table protocol.PacketTable, reg Registry, state *session.State, opts ...DispatcherOption) (*Dispatcher, error) {
	d := &Dispatcher{
		phase:    protocol.PhaseHandshake,
		phases:   make(map[protocol.Phase]*PhaseDispatcher),
		state:    state,
		listener: session.NopListener{},
		log:      logging.GetNetworkLogger(),
		source:   "session",
	}
	for _, opt := range opts {
		opt(d)
	}

	for phase, ids := range table {
		pd, err := NewPhaseDispatcher(phase, ids, reg)
		if err != nil {
			return nil, err
		}
		d.phases[phase] = pd
	}
	return d, nil
}

// Phase возвращает текущую фазу
func (d *Dispatcher) Phase() protocol.Phase {
	return d.phase
}

// Closed сообщает, получен ли пакет отключения
func (d *Dispatcher) Closed() bool {
	return d.closed
}

// Stats возвращает счетчики
func (d *Dispatcher) Stats() DispatchStats {
	return d.stats
}

func (d *Dispatcher) switchPhase(to protocol.Phase) error {
	if !legalTransition(d.phase, to) {
		return transitionError(d.phase, to)
	}
	d.log.Info("🔀 %s: phase %s -> %s", d.source, d.phase, to)
	d.phase = to
	return nil
}

// Dispatch обрабатывает пакет текущей фазы. Неизвестный ID пропускается.
// Ошибки и паники обработчика логируются и не прерывают сессию.
func (d *Dispatcher) Dispatch(dir protocol.Direction, id int32, r *protocol.Reader) Result {
	return d.dispatch(dir, id, r, -1)
}

// DispatchFrame обрабатывает кадр, выделенный FrameDecoder
func (d *Dispatcher) DispatchFrame(dir protocol.Direction, f protocol.Frame) Result {
	return d.dispatch(dir, f.ID, f.Reader(), f.Offset)
}

func (d *Dispatcher) dispatch(dir protocol.Direction, id int32, r *protocol.Reader, offset int64) (res Result) {
	if d.closed {
		return Disconnect
	}

	phase := d.phase
	var rt route
	ok := false
	if pd := d.phases[phase]; pd != nil {
		rt, ok = pd.lookup(dir, id)
	}
	if !ok {
		d.stats.Skipped++
		d.metrics.skip(phase.String(), dir.String())
		if d.log.Enabled(logging.TRACE) {
			d.log.Trace("%s: skip %s/%s 0x%02X (%d bytes)", d.source, phase, dir, id, r.Size())
		}
		return Continue
	}

	d.stats.Dispatched++
	d.metrics.packet(phase.String(), dir.String(), rt.name)

	ctx := &Context{
		Phase:     phase,
		Direction: dir,
		Packet:    rt.name,
		ID:        id,
		Offset:    offset,
		State:     d.state,
		Listener:  d.listener,
		Log:       d.log,
		d:         d,
	}

	defer func() {
		if p := recover(); p != nil {
			d.handlerFailed(ctx, r, fmt.Errorf("panic: %v\n%s", p, debug.Stack()))
			res = Continue
		}
	}()

	res, err := rt.handler(ctx, r)
	if err != nil {
		d.handlerFailed(ctx, r, err)
		// Ошибка не меняет итог: пакет отключения остается терминальным
	}
	if res == Disconnect {
		d.closed = true
		d.log.Info("🔌 %s: disconnect in %s phase (%s)", d.source, phase, rt.name)
	}
	return res
}

func (d *Dispatcher) handlerFailed(ctx *Context, r *protocol.Reader, err error) {
	d.stats.HandlerErrors++
	d.metrics.handlerError(ctx.Phase.String(), ctx.Packet)
	where := fmt.Sprintf("%s %s/%s %s (0x%02X) at offset %d", d.source, ctx.Phase, ctx.Direction, ctx.Packet, ctx.ID, ctx.Offset)
	d.log.ProtocolError(where, err, r.Bytes())
}
