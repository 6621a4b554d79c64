package responder

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics собирает и экспортирует метрики автоответчика
//
// Один экземпляр разделяется всеми сессиями процесса. Все операции
// thread-safe; запись метрики на горячем пути стоит один атомарный инкремент.
type Metrics struct {
	sessionsTotal    prometheus.Counter
	sessionsActive   prometheus.Gauge
	framesProduced   prometheus.Counter
	framesPlayed     prometheus.Counter
	bargeInsTotal    prometheus.Counter
	playbackRate     prometheus.Gauge
	stateTransitions *prometheus.CounterVec
}

// NewMetrics создает сборщик метрик и регистрирует его в указанном
// registry. При nil registry используется prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "responder",
			Name:      "sessions_total",
			Help:      "Total number of auto-responder sessions created",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "responder",
			Name:      "sessions_active",
			Help:      "Number of currently active auto-responder sessions",
		}),
		framesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "responder",
			Name:      "frames_produced_total",
			Help:      "Total number of audio frames synthesized and enqueued",
		}),
		framesPlayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "responder",
			Name:      "frames_played_total",
			Help:      "Total number of audio frames delivered to transport",
		}),
		bargeInsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "responder",
			Name:      "barge_ins_total",
			Help:      "Total number of caller barge-in events",
		}),
		playbackRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "responder",
			Name:      "playback_rate",
			Help:      "Current adaptive playback rate (0.8, 1.0 or 1.2)",
		}),
		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "responder",
			Name:      "state_transitions_total",
			Help:      "Session state transitions by source and destination state",
		}, []string{"from", "to"}),
	}

	reg.MustRegister(
		m.sessionsTotal,
		m.sessionsActive,
		m.framesProduced,
		m.framesPlayed,
		m.bargeInsTotal,
		m.playbackRate,
		m.stateTransitions,
	)
	return m
}

// SessionStarted учитывает создание новой сессии
func (m *Metrics) SessionStarted() {
	m.sessionsTotal.Inc()
	m.sessionsActive.Inc()
}

// SessionStopped учитывает завершение сессии
func (m *Metrics) SessionStopped() {
	m.sessionsActive.Dec()
}

// FrameProduced учитывает закодированный и поставленный в очередь кадр
func (m *Metrics) FrameProduced() {
	m.framesProduced.Inc()
}

// FramePlayed учитывает кадр, выданный транспорту, и текущую скорость
func (m *Metrics) FramePlayed(rate float64) {
	m.framesPlayed.Inc()
	m.playbackRate.Set(rate)
}

// BargeIn учитывает перебивание воспроизведения абонентом
func (m *Metrics) BargeIn() {
	m.bargeInsTotal.Inc()
}

// StateTransition учитывает переход состояния сессии
func (m *Metrics) StateTransition(from, to string) {
	m.stateTransitions.WithLabelValues(from, to).Inc()
}
