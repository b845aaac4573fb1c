package sim

import (
	"sort"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector accumulates the counters, timers, and heatmap data
// the FinalReport is built from. It is
// updated inline by the kernel as events dispatch; nothing here is
// safe for concurrent use since the kernel itself is single-threaded.
// The mu field is never locked; the Prometheus mirror relies on the
// prometheus package's own synchronization.
type MetricsCollector struct {
	mu sync.RWMutex

	OrdersArrived   int
	OrdersFulfilled int
	TasksCompleted  int
	TasksFailed     int

	TaskLatencies []float64 // completed-task (done - created) seconds, for percentile calc

	DeadlocksDetected  int
	DeadlocksResolved  int
	RobotFailures      int
	SlaMisses          int

	NodeBusySeconds map[NodeID]float64
	EdgeBusySeconds map[EdgeID]float64

	prom *PrometheusMetrics
}

// NewMetricsCollector returns an empty collector, optionally mirroring
// updates into prom (nil disables Prometheus entirely).
func NewMetricsCollector(prom *PrometheusMetrics) *MetricsCollector {
	return &MetricsCollector{
		NodeBusySeconds: make(map[NodeID]float64),
		EdgeBusySeconds: make(map[EdgeID]float64),
		prom:            prom,
	}
}

// RecordOrderArrival increments the arrived-orders counter.
func (m *MetricsCollector) RecordOrderArrival() {
	m.OrdersArrived++
	if m.prom != nil {
		m.prom.IncOrdersArrived()
	}
}

// RecordOrderFulfilled increments the fulfilled-orders counter.
func (m *MetricsCollector) RecordOrderFulfilled() {
	m.OrdersFulfilled++
	if m.prom != nil {
		m.prom.IncOrdersFulfilled()
	}
}

// RecordTaskCompleted appends a latency sample and increments the
// completed-task counter.
func (m *MetricsCollector) RecordTaskCompleted(latencySeconds float64, late bool) {
	m.TasksCompleted++
	m.TaskLatencies = append(m.TaskLatencies, latencySeconds)
	if late {
		m.SlaMisses++
	}
	if m.prom != nil {
		m.prom.ObserveTaskLatency(latencySeconds)
	}
}

// RecordTaskFailed increments the failed-task counter.
func (m *MetricsCollector) RecordTaskFailed() {
	m.TasksFailed++
	if m.prom != nil {
		m.prom.IncTasksFailed()
	}
}

// RecordDeadlock increments the detected-deadlocks counter, and the
// resolved counter too when resolved is true.
func (m *MetricsCollector) RecordDeadlock(resolved bool) {
	m.DeadlocksDetected++
	if resolved {
		m.DeadlocksResolved++
	}
	if m.prom != nil {
		m.prom.IncDeadlocks(resolved)
	}
}

// RecordRobotFailure increments the robot-failure counter.
func (m *MetricsCollector) RecordRobotFailure() {
	m.RobotFailures++
	if m.prom != nil {
		m.prom.IncRobotFailures()
	}
}

// AccumulateNodeBusy adds seconds of occupancy to node id's running
// total, used to build the congestion heatmap.
func (m *MetricsCollector) AccumulateNodeBusy(id NodeID, seconds float64) {
	m.NodeBusySeconds[id] += seconds
}

// AccumulateEdgeBusy adds seconds of occupancy to edge id's running
// total.
func (m *MetricsCollector) AccumulateEdgeBusy(id EdgeID, seconds float64) {
	m.EdgeBusySeconds[id] += seconds
}

// Percentile returns the p-th percentile (0..100) of recorded task
// latencies using nearest-rank interpolation, or 0 if no samples exist.
func (m *MetricsCollector) Percentile(p float64) float64 {
	if len(m.TaskLatencies) == 0 {
		return 0
	}
	sorted := append([]float64(nil), m.TaskLatencies...)
	sort.Float64s(sorted)
	idx := int(p / 100 * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Heatmap normalizes NodeBusySeconds/EdgeBusySeconds by totalSeconds
// into occupancy ratios for report rendering. Busy seconds are summed
// over every occupant, so a resource with capacity above 1 can score
// above 1; waiting time is not counted.
func (m *MetricsCollector) Heatmap(totalSeconds float64) (nodeScores map[NodeID]float64, edgeScores map[EdgeID]float64) {
	nodeScores = make(map[NodeID]float64, len(m.NodeBusySeconds))
	edgeScores = make(map[EdgeID]float64, len(m.EdgeBusySeconds))
	if totalSeconds <= 0 {
		return nodeScores, edgeScores
	}
	for id, s := range m.NodeBusySeconds {
		nodeScores[id] = s / totalSeconds
	}
	for id, s := range m.EdgeBusySeconds {
		edgeScores[id] = s / totalSeconds
	}
	return nodeScores, edgeScores
}

// PrometheusMetrics exposes scheduler and resource gauges/histograms/
// counters for the running simulation, namespaced "waremax_", all
// registered through promauto.With(registry).
type PrometheusMetrics struct {
	activeRobots  prometheus.Gauge
	queueDepth    *prometheus.GaugeVec
	taskLatency   prometheus.Histogram
	ordersArrived prometheus.Counter
	ordersDone    prometheus.Counter
	tasksFailed   prometheus.Counter
	deadlocks     *prometheus.CounterVec
	robotFailures prometheus.Counter

	registry prometheus.Registerer
	enabled  bool
}

// NewPrometheusMetrics registers the Waremax metric set against
// registry (use prometheus.DefaultRegisterer for the global registry,
// or a fresh prometheus.NewRegistry() for per-run isolation in a sweep
// driver).
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	pm := &PrometheusMetrics{registry: registry, enabled: true}

	pm.activeRobots = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "waremax",
		Name:      "active_robots",
		Help:      "Number of robots not in the idle state",
	})
	pm.queueDepth = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "waremax",
		Name:      "station_queue_depth",
		Help:      "Number of robots queued at a station",
	}, []string{"station_id"})
	pm.taskLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "waremax",
		Name:      "task_latency_seconds",
		Help:      "Task completion latency from creation to completion, in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600},
	})
	pm.ordersArrived = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "waremax",
		Name:      "orders_arrived_total",
		Help:      "Cumulative count of orders that have arrived",
	})
	pm.ordersDone = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "waremax",
		Name:      "orders_fulfilled_total",
		Help:      "Cumulative count of orders fully fulfilled",
	})
	pm.tasksFailed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "waremax",
		Name:      "tasks_failed_total",
		Help:      "Cumulative count of tasks that ended in the Failed state",
	})
	pm.deadlocks = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "waremax",
		Name:      "deadlocks_total",
		Help:      "Cumulative count of detected deadlock cycles",
	}, []string{"resolved"})
	pm.robotFailures = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "waremax",
		Name:      "robot_failures_total",
		Help:      "Cumulative count of injected robot failures",
	})

	return pm
}

func (pm *PrometheusMetrics) SetActiveRobots(n int) {
	if pm.enabled {
		pm.activeRobots.Set(float64(n))
	}
}

func (pm *PrometheusMetrics) SetStationQueueDepth(stationID StationID, depth int) {
	if pm.enabled {
		pm.queueDepth.WithLabelValues(strconv.Itoa(int(stationID))).Set(float64(depth))
	}
}

func (pm *PrometheusMetrics) ObserveTaskLatency(seconds float64) {
	if pm.enabled {
		pm.taskLatency.Observe(seconds)
	}
}

func (pm *PrometheusMetrics) IncOrdersArrived() {
	if pm.enabled {
		pm.ordersArrived.Inc()
	}
}

func (pm *PrometheusMetrics) IncOrdersFulfilled() {
	if pm.enabled {
		pm.ordersDone.Inc()
	}
}

func (pm *PrometheusMetrics) IncTasksFailed() {
	if pm.enabled {
		pm.tasksFailed.Inc()
	}
}

func (pm *PrometheusMetrics) IncDeadlocks(resolved bool) {
	if !pm.enabled {
		return
	}
	label := "false"
	if resolved {
		label = "true"
	}
	pm.deadlocks.WithLabelValues(label).Inc()
}

func (pm *PrometheusMetrics) IncRobotFailures() {
	if pm.enabled {
		pm.robotFailures.Inc()
	}
}

