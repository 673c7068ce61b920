package network

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/world-observer/internal/logging"
	"github.com/annel0/world-observer/internal/protocol"
	"github.com/annel0/world-observer/internal/session"
	"github.com/annel0/world-observer/internal/vec"
	"github.com/annel0/world-observer/internal/world"
)

// Segment - порция байт одного направления в порядке поступления
type Segment struct {
	Direction protocol.Direction
	Data      []byte
}

// Options - параметры сессии наблюдения
type Options struct {
	ID             string // пусто - новый UUID
	Table          protocol.PacketTable
	Frame          protocol.FrameConfig
	World          world.DecoderConfig
	PositionOffset vec.Coord3D
	StartPhase     protocol.Phase

	State    *session.State   // nil - новое пустое состояние
	Listener session.Listener // nil - без уведомлений
	Registry Registry         // nil - стандартные обработчики
	Logger   *logging.Logger
	Metrics  *Metrics
	Tracer   trace.Tracer
}

// Summary - итог сессии
type Summary struct {
	ID            string
	Phase         protocol.Phase
	Disconnected  bool
	Frames        int
	Bytes         int64
	Dispatch      DispatchStats
	Columns       int
	HasPosition   bool
	LastPosition  vec.Coord3D
	BufferedTail  map[protocol.Direction]int // Недочитанные байты незавершенных кадров
	TerminalError error
}

// Session декодирует поток одного соединения: кадры обоих направлений,
// общий автомат фаз и состояние мира. Методы Feed и Run вызываются из одной горутины.
type Session struct {
	id         string
	state      *session.State
	dispatcher *Dispatcher
	decoders   map[protocol.Direction]*protocol.FrameDecoder
	log        *logging.Logger
	metrics    *Metrics
	tracer     trace.Tracer

	frames int
	bytes  int64
	err    error // Ошибка уровня кадра, завершившая сессию
}

// NewSession создает сессию наблюдения
func NewSession(opts Options) (*Session, error) {
	chunks, err := world.NewDecoder(opts.World)
	if err != nil {
		return nil, fmt.Errorf("chunk decoder: %w", err)
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}

	s := &Session{
		id:      id,
		state:   opts.State,
		log:     opts.Logger,
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
		decoders: map[protocol.Direction]*protocol.FrameDecoder{
			protocol.Clientbound: protocol.NewFrameDecoder(protocol.Clientbound, opts.Frame),
			protocol.Serverbound: protocol.NewFrameDecoder(protocol.Serverbound, opts.Frame),
		},
	}
	if s.state == nil {
		s.state = session.NewState()
	}
	if s.log == nil {
		s.log = logging.GetNetworkLogger()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/annel0/world-observer/internal/network")
	}

	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry(NewHandlers(chunks, opts.PositionOffset, opts.Metrics))
	}

	s.dispatcher, err = NewDispatcher(opts.Table, reg, s.state,
		WithStartPhase(opts.StartPhase),
		WithListener(opts.Listener),
		WithLogger(s.log),
		WithMetrics(opts.Metrics),
		WithSource("session "+s.shortID()),
		WithCompressionHook(s.enableCompression),
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) shortID() string {
	if len(s.id) > 8 {
		return s.id[:8]
	}
	return s.id
}

// ID возвращает идентификатор сессии
func (s *Session) ID() string {
	return s.id
}

// State возвращает состояние мира сессии
func (s *Session) State() *session.State {
	return s.state
}

// Phase возвращает текущую фазу соединения
func (s *Session) Phase() protocol.Phase {
	return s.dispatcher.Phase()
}

func (s *Session) enableCompression(threshold int) {
	for _, d := range s.decoders {
		d.SetCompression(threshold)
	}
}

// Feed добавляет байты направления dir и синхронно обрабатывает все полные кадры.
// Возвращает Disconnect после пакета отключения; ошибка уровня кадра (*protocol.FrameError)
// завершает сессию, состояние мира при этом сохраняется.
func (s *Session) Feed(dir protocol.Direction, data []byte) (Result, error) {
	return s.feed(context.Background(), dir, data)
}

func (s *Session) feed(ctx context.Context, dir protocol.Direction, data []byte) (Result, error) {
	if s.err != nil {
		return Continue, s.err
	}
	if s.dispatcher.Closed() {
		return Disconnect, nil
	}
	dec, ok := s.decoders[dir]
	if !ok {
		return Continue, fmt.Errorf("unknown direction %s", dir)
	}

	s.bytes += int64(len(data))
	s.metrics.received(dir.String(), len(data))
	dec.Feed(data)

	for {
		if err := ctx.Err(); err != nil {
			return Continue, err
		}

		frame, err := dec.Next()
		if errors.Is(err, protocol.ErrNeedMoreData) {
			return Continue, nil
		}
		if err != nil {
			s.err = err
			s.log.Error("💥 %s: stream %s is unrecoverable: %v", s.shortID(), dir, err)
			return Continue, err
		}

		s.frames++
		s.metrics.frame(dir.String())
		if s.dispatcher.DispatchFrame(dir, frame) == Disconnect {
			return Disconnect, nil
		}
	}
}

// Run обрабатывает сегменты до закрытия канала, отключения, ошибки кадра или отмены ctx
func (s *Session) Run(ctx context.Context, segments <-chan Segment) (Summary, error) {
	ctx, span := s.tracer.Start(ctx, "observer.session",
		trace.WithAttributes(attribute.String("session.id", s.id)))
	defer span.End()

	s.log.Info("👀 Session %s started in %s phase", s.shortID(), s.Phase())

	runErr := s.run(ctx, segments)

	summary := s.Summary()
	span.SetAttributes(
		attribute.Int("session.frames", summary.Frames),
		attribute.Int("session.columns", summary.Columns),
		attribute.String("session.phase", summary.Phase.String()),
		attribute.Bool("session.disconnected", summary.Disconnected),
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}

	s.log.Info("🏁 Session %s finished: %d frames, %d columns, phase %s, disconnected=%v",
		s.shortID(), summary.Frames, summary.Columns, summary.Phase, summary.Disconnected)
	return summary, runErr
}

func (s *Session) run(ctx context.Context, segments <-chan Segment) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case seg, ok := <-segments:
			if !ok {
				return nil
			}
			res, err := s.feed(ctx, seg.Direction, seg.Data)
			if err != nil {
				return err
			}
			if res == Disconnect {
				return nil
			}
		}
	}
}

// Summary возвращает текущие итоги сессии
func (s *Session) Summary() Summary {
	pos, hasPos := s.state.CurrentPosition()
	tail := make(map[protocol.Direction]int, len(s.decoders))
	for dir, d := range s.decoders {
		tail[dir] = d.Buffered()
	}
	return Summary{
		ID:            s.id,
		Phase:         s.dispatcher.Phase(),
		Disconnected:  s.dispatcher.Closed(),
		Frames:        s.frames,
		Bytes:         s.bytes,
		Dispatch:      s.dispatcher.Stats(),
		Columns:       s.state.ColumnCount(),
		HasPosition:   hasPos,
		LastPosition:  pos,
		BufferedTail:  tail,
		TerminalError: s.err,
	}
}
