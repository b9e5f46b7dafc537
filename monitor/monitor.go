// monitor/monitor.go
package monitor

import (
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wfunc/gamehall/state"
)

type Metrics struct {
	OnlinePlayers    prometheus.Gauge
	MessagesReceived prometheus.Counter
	MessagesDropped  prometheus.Counter
	MessageLatency   *prometheus.HistogramVec
	Tables           *prometheus.GaugeVec
	TablesByStatus   *prometheus.GaugeVec
	RoundsStarted    *prometheus.CounterVec
	RoundDuration    *prometheus.HistogramVec
	Kicks            *prometheus.CounterVec
	JoinRejections   *prometheus.CounterVec
	BackfillSeated   *prometheus.CounterVec
	QueueDepth       *prometheus.GaugeVec
	QueueWait        *prometheus.HistogramVec
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of open websocket connections",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of messages received",
		}),
		MessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Outbound messages dropped on full send buffers",
		}),
		MessageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Inbound event processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}, []string{"event"}),
		Tables: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tables",
			Help:      "Tables in each tier pool",
		}, []string{"game_type", "tier"}),
		TablesByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tables_by_status",
			Help:      "Occupied tables per status",
		}, []string{"game_type", "status"}),
		RoundsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_started_total",
			Help:      "Rounds started",
		}, []string{"game_type"}),
		RoundDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_duration_seconds",
			Help:      "Round duration",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 10),
		}, []string{"game_type"}),
		Kicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "players_kicked_total",
			Help:      "Players removed by the server",
		}, []string{"game_type", "code"}),
		JoinRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "join_rejections_total",
			Help:      "Rejected joins",
		}, []string{"game_type", "code"}),
		BackfillSeated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backfill_seated_total",
			Help:      "Non-human opponents seated",
		}, []string{"game_type"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "match_queue_depth",
			Help:      "Players waiting for auto-match",
		}, []string{"game_type"}),
		QueueWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_queue_wait_seconds",
			Help:      "Time spent queued before a match",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"game_type"}),
	}

	reg.MustRegister(
		m.OnlinePlayers,
		m.MessagesReceived,
		m.MessagesDropped,
		m.MessageLatency,
		m.Tables,
		m.TablesByStatus,
		m.RoundsStarted,
		m.RoundDuration,
		m.Kicks,
		m.JoinRejections,
		m.BackfillSeated,
		m.QueueDepth,
		m.QueueWait,
	)

	return m
}

var publishOnce sync.Once

// Monitor owns a registry of its own so several instances can coexist.
type Monitor struct {
	metrics      *Metrics
	registry     *prometheus.Registry
	startTime    time.Time
	requestCount int64
	mutex        sync.Mutex
}

func NewMonitor(namespace string) *Monitor {
	reg := prometheus.NewRegistry()
	m := &Monitor{
		metrics:   NewMetrics(namespace, reg),
		registry:  reg,
		startTime: time.Now(),
	}

	// 添加expvar指标
	publishOnce.Do(func() {
		expvar.Publish("uptime", expvar.Func(func() interface{} {
			return time.Since(m.startTime).Seconds()
		}))
		expvar.Publish("requests", expvar.Func(func() interface{} {
			m.mutex.Lock()
			defer m.mutex.Unlock()
			return m.requestCount
		}))
	})
	return m
}

func (m *Monitor) Metrics() *Metrics { return m.metrics }

func (m *Monitor) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Monitor) IncOnlinePlayers() {
	m.metrics.OnlinePlayers.Inc()
}

func (m *Monitor) DecOnlinePlayers() {
	m.metrics.OnlinePlayers.Dec()
}

func (m *Monitor) IncMessagesReceived() {
	m.metrics.MessagesReceived.Inc()
	m.mutex.Lock()
	m.requestCount++
	m.mutex.Unlock()
}

func (m *Monitor) MessageDropped(string) {
	m.metrics.MessagesDropped.Inc()
}

func (m *Monitor) ObserveMessageLatency(event string, duration time.Duration) {
	m.metrics.MessageLatency.WithLabelValues(event).Observe(duration.Seconds())
}

// --- room.Observer ---

func (m *Monitor) StatusChanged(gameType string, from, to state.Status) {
	// idle tables are counted by the pool gauge
	if from != "" && from != state.StatusIdle {
		m.metrics.TablesByStatus.WithLabelValues(gameType, string(from)).Dec()
	}
	if to != state.StatusIdle {
		m.metrics.TablesByStatus.WithLabelValues(gameType, string(to)).Inc()
	}
}

func (m *Monitor) RoundStarted(gameType string) {
	m.metrics.RoundsStarted.WithLabelValues(gameType).Inc()
}

func (m *Monitor) RoundEnded(gameType string, d time.Duration) {
	m.metrics.RoundDuration.WithLabelValues(gameType).Observe(d.Seconds())
}

func (m *Monitor) PlayerKicked(gameType, code string) {
	m.metrics.Kicks.WithLabelValues(gameType, code).Inc()
}

func (m *Monitor) JoinRejected(gameType, code string) {
	m.metrics.JoinRejections.WithLabelValues(gameType, code).Inc()
}

func (m *Monitor) BackfillSeated(gameType string) {
	m.metrics.BackfillSeated.WithLabelValues(gameType).Inc()
}

// --- hall.PoolObserver ---

func (m *Monitor) TablesChanged(gameType, tierID string, n int) {
	m.metrics.Tables.WithLabelValues(gameType, tierID).Set(float64(n))
}

// --- matchqueue.Observer ---

func (m *Monitor) QueueDepth(gameType string, n int) {
	m.metrics.QueueDepth.WithLabelValues(gameType).Set(float64(n))
}

func (m *Monitor) Matched(gameType string, waited time.Duration) {
	m.metrics.QueueWait.WithLabelValues(gameType).Observe(waited.Seconds())
}
