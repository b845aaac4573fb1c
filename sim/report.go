package sim

// FinalReport summarizes a completed run.
// Every field here is populated from the MetricsCollector at
// SimulationEnd; nothing is recomputed by re-scanning the event log.
type FinalReport struct {
	Seed         int64
	ScenarioHash string
	EndTime      Time

	OrdersArrived   int
	OrdersFulfilled int
	TasksCompleted  int
	TasksFailed     int

	LatencyP50 float64
	LatencyP95 float64
	LatencyP99 float64

	SlaMisses    int
	SlaMissRate  float64

	DeadlocksTotal      int
	DeadlocksResolved   int
	DeadlocksUnresolved int

	RobotFailures int

	HealthScore float64

	NodeHeatmap map[NodeID]float64
	EdgeHeatmap map[EdgeID]float64

	Anomalies []Anomaly
}

// PartialReport is the shape returned by Kernel.Snapshot mid-run: the
// same aggregate fields as FinalReport but computed from whatever the
// MetricsCollector has accumulated so far, plus the current clock so a
// caller can tell how far through the configured horizon the snapshot
// falls.
type PartialReport struct {
	Clock Time
	FinalReport
}

// LiveSnapshot is the lightweight view returned by Kernel.LiveSnapshot
// for callers who want robot/task positions without the cost of
// building a full PartialReport.
type LiveSnapshot struct {
	Clock        Time
	RobotStates  map[RobotID]RobotState
	RobotNodes   map[RobotID]NodeID
	PendingTasks int
	ActiveTasks  int
}

// healthScoreParams bundles the inputs to the health_score formula,
// kept separate from FinalReport so the formula's dependencies are
// explicit and unit-testable without constructing a whole report.
type healthScoreParams struct {
	slaMissRate         float64
	deadlocksUnresolved int
	deadlocksTotal      int
	p99                 float64
	slaTarget           float64
}

// computeHealthScore implements:
//
//	health_score = 100 * (1 - clamp(0.5*sla_miss_rate
//	                 + 0.3*(deadlocks_unresolved / max(1,deadlocks_total))
//	                 + 0.2*tail_latency_ratio, 0, 1))
//	tail_latency_ratio = clamp(max(0, p99/sla_target - 1), 0, 1)
//
// sla_target defaults to the scenario's due-time offset when present,
// else 1.0 (a non-positive target is replaced by 1.0 rather than
// divided by; with that default the tail-latency term is nonzero
// whenever p99 exceeds 1 second).
func computeHealthScore(p healthScoreParams) float64 {
	target := p.slaTarget
	if target <= 0 {
		target = 1.0
	}
	tailRatio := p.p99/target - 1
	if tailRatio < 0 {
		tailRatio = 0
	}
	if tailRatio > 1 {
		tailRatio = 1
	}

	denom := p.deadlocksTotal
	if denom < 1 {
		denom = 1
	}
	deadlockRatio := float64(p.deadlocksUnresolved) / float64(denom)

	penalty := 0.5*p.slaMissRate + 0.3*deadlockRatio + 0.2*tailRatio
	if penalty < 0 {
		penalty = 0
	}
	if penalty > 1 {
		penalty = 1
	}
	return 100 * (1 - penalty)
}

// BuildFinalReport assembles a FinalReport from a MetricsCollector and
// the scenario/run identifiers, applying the health_score formula and
// normalizing the congestion heatmap over the run's elapsed time.
func BuildFinalReport(seed int64, scenarioHash string, endTime Time, mc *MetricsCollector, anomalies []Anomaly, slaTarget float64) FinalReport {
	nodeScores, edgeScores := mc.Heatmap(float64(endTime))

	slaMissRate := 0.0
	if mc.TasksCompleted > 0 {
		slaMissRate = float64(mc.SlaMisses) / float64(mc.TasksCompleted)
	}

	deadlocksUnresolved := mc.DeadlocksDetected - mc.DeadlocksResolved

	report := FinalReport{
		Seed:                seed,
		ScenarioHash:        scenarioHash,
		EndTime:             endTime,
		OrdersArrived:       mc.OrdersArrived,
		OrdersFulfilled:     mc.OrdersFulfilled,
		TasksCompleted:      mc.TasksCompleted,
		TasksFailed:         mc.TasksFailed,
		LatencyP50:          mc.Percentile(50),
		LatencyP95:          mc.Percentile(95),
		LatencyP99:          mc.Percentile(99),
		SlaMisses:           mc.SlaMisses,
		SlaMissRate:         slaMissRate,
		DeadlocksTotal:      mc.DeadlocksDetected,
		DeadlocksResolved:   mc.DeadlocksResolved,
		DeadlocksUnresolved: deadlocksUnresolved,
		RobotFailures:       mc.RobotFailures,
		NodeHeatmap:         nodeScores,
		EdgeHeatmap:         edgeScores,
		Anomalies:           anomalies,
	}
	report.HealthScore = computeHealthScore(healthScoreParams{
		slaMissRate:         slaMissRate,
		deadlocksUnresolved: deadlocksUnresolved,
		deadlocksTotal:      mc.DeadlocksDetected,
		p99:                 report.LatencyP99,
		slaTarget:           slaTarget,
	})
	return report
}
