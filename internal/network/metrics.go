package network

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics - Prometheus-метрики декодирования.
// Nil-указатель допустим: все методы становятся no-op.
//
// Метрики:
// * observer_frames_total{direction}
// * observer_bytes_total{direction}
// * observer_packets_total{phase,direction,packet}
// * observer_packets_skipped_total{phase,direction}
// * observer_handler_errors_total{phase,packet}
// * observer_columns_total{result}
// * observer_column_decode_seconds
type Metrics struct {
	frames        *prometheus.CounterVec
	bytes         *prometheus.CounterVec
	packets       *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	handlerErrors *prometheus.CounterVec
	columns       *prometheus.CounterVec
	columnDecode  prometheus.Histogram
}

// NewMetrics создает метрики и регистрирует их в reg (nil - без регистрации)
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "observer",
			Name:      "frames_total",
			Help:      "Кадров выделено из потока.",
		}, []string{"direction"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "observer",
			Name:      "bytes_total",
			Help:      "Байт получено из потока.",
		}, []string{"direction"}),
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "observer",
			Name:      "packets_total",
			Help:      "Пакетов передано обработчикам.",
		}, []string{"phase", "direction", "packet"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "observer",
			Name:      "packets_skipped_total",
			Help:      "Пакетов с неизвестным ID.",
		}, []string{"phase", "direction"}),
		handlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "observer",
			Name:      "handler_errors_total",
			Help:      "Ошибок и паник в обработчиках пакетов.",
		}, []string{"phase", "packet"}),
		columns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "observer",
			Name:      "columns_total",
			Help:      "Колонн чанков по результату разбора.",
		}, []string{"result"}),
		columnDecode: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "observer",
			Name:      "column_decode_seconds",
			Help:      "Время разбора одной колонны.",
			Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
		}),
	}

	if reg != nil {
		reg.MustRegister(m.frames, m.bytes, m.packets, m.skipped, m.handlerErrors, m.columns, m.columnDecode)
	}
	return m
}

func (m *Metrics) frame(dir string) {
	if m != nil {
		m.frames.WithLabelValues(dir).Inc()
	}
}

func (m *Metrics) received(dir string, n int) {
	if m != nil {
		m.bytes.WithLabelValues(dir).Add(float64(n))
	}
}

func (m *Metrics) packet(phase, dir, name string) {
	if m != nil {
		m.packets.WithLabelValues(phase, dir, name).Inc()
	}
}

func (m *Metrics) skip(phase, dir string) {
	if m != nil {
		m.skipped.WithLabelValues(phase, dir).Inc()
	}
}

func (m *Metrics) handlerError(phase, name string) {
	if m != nil {
		m.handlerErrors.WithLabelValues(phase, name).Inc()
	}
}

func (m *Metrics) column(ok bool, took time.Duration) {
	if m == nil {
		return
	}
	if ok {
		m.columns.WithLabelValues("decoded").Inc()
		m.columnDecode.Observe(took.Seconds())
	} else {
		m.columns.WithLabelValues("malformed").Inc()
	}
}
