package sim

import (
	"context"
	"fmt"

	"github.com/waremax/waremax/sim/emit"
)

// Kernel is the public surface of the Waremax simulation engine.
// It owns the event scheduler, the warehouse map, every robot/task/
// order/station, the resource manager, routing, traffic control, and
// metrics — constructed once via New and driven either to completion
// with Run or one event at a time with Step.
type Kernel struct {
	cfg *kernelConfig

	scenario *Scenario
	m        *Map
	rm       *ResourceManager
	router   *Router
	traffic  *TrafficController
	rng      *PartitionedRNG
	sched    *Scheduler
	orderGen *OrderGenerator
	metrics  *MetricsCollector
	emitter  emit.Emitter
	inventory *Inventory

	robots              map[RobotID]*Robot
	tasks               map[TaskID]*Task
	orders              map[OrderID]*Order
	stations            map[StationID]*Station
	stationsByNode      map[NodeID]*Station
	chargingStations    map[StationID]*ChargingStation
	maintenanceStations map[StationID]*MaintenanceStation

	completedByRobot map[RobotID]int

	nodeEnterTime      map[RobotID]Time
	edgeEnterTime      map[RobotID]Time
	pendingCharge      map[RobotID]StationID
	pendingMaintenance map[RobotID]StationID

	rerouteAttempts map[RobotID]int // TrafficRerouteOnWait: reroute attempts made for the current edge wait

	anomalies []Anomaly

	finished bool
	paused   bool
	result   *FinalReport

	runID string
}

// New validates scenario, applies opts, and returns a ready-to-run
// Kernel. Every configuration problem found — in the scenario or in
// the options — is aggregated into a single *ConfigError; construction
// never proceeds partially.
func New(scenario *Scenario, opts ...Option) (*Kernel, error) {
	cfg := defaultKernelConfig()
	cerr := &ConfigError{}

	if scenario == nil {
		cerr.add("scenario must not be nil")
		return nil, cerr
	}
	if err := scenario.Validate(); err != nil {
		if ce, ok := err.(*ConfigError); ok {
			cerr.Issues = append(cerr.Issues, ce.Issues...)
		} else {
			cerr.add("%v", err)
		}
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			if ce, ok := err.(*ConfigError); ok {
				cerr.Issues = append(cerr.Issues, ce.Issues...)
			} else {
				cerr.add("%v", err)
			}
		}
	}
	if !cfg.hasEndTime {
		cerr.add("WithEndTime is required: no configured horizon for the run")
	}
	if err := cerr.errOrNil(); err != nil {
		return nil, err
	}

	m := NewMap(scenario.Nodes, scenario.Edges)
	rm := NewResourceManager(m)
	router := NewRouter(m, rm, cfg.cacheRoutes && !cfg.congestionAware)
	traffic := NewTrafficController(cfg.resolver, cfg.waitAndRetryCap)
	rng := NewPartitionedRNG(scenario.Seed)
	orderGen := NewOrderGenerator(scenario.Orders, rng)
	metrics := NewMetricsCollector(cfg.metrics)
	inventory := NewInventory(scenario.Racks)

	k := &Kernel{
		cfg:                 cfg,
		scenario:            scenario,
		m:                   m,
		rm:                  rm,
		router:              router,
		traffic:             traffic,
		rng:                 rng,
		sched:               NewScheduler(),
		orderGen:            orderGen,
		metrics:             metrics,
		emitter:             cfg.emitter,
		inventory:           inventory,
		robots:              make(map[RobotID]*Robot),
		tasks:               make(map[TaskID]*Task),
		orders:              make(map[OrderID]*Order),
		stations:            make(map[StationID]*Station),
		stationsByNode:      make(map[NodeID]*Station),
		chargingStations:    make(map[StationID]*ChargingStation),
		maintenanceStations: make(map[StationID]*MaintenanceStation),
		completedByRobot:    make(map[RobotID]int),
		nodeEnterTime:       make(map[RobotID]Time),
		edgeEnterTime:       make(map[RobotID]Time),
		pendingCharge:       make(map[RobotID]StationID),
		pendingMaintenance:  make(map[RobotID]StationID),
		rerouteAttempts:     make(map[RobotID]int),
		runID:               fmt.Sprintf("%s-%d", scenario.Hash(), scenario.Seed),
	}

	for _, rs := range scenario.Robots {
		k.robots[rs.ID] = &Robot{
			ID:              rs.ID,
			State:           RobotIdle,
			Loc:             AtNode(rs.HomeNode),
			Speed:           rs.Speed,
			Battery:         rs.BatteryCapacity,
			BatteryCapacity: rs.BatteryCapacity,
			DrainPerSecond:  rs.DrainPerSecond,
			DrainPerMeter:   rs.DrainPerMeter,
			Priority:        rs.Priority,
			HomeNode:        rs.HomeNode,
		}
		k.rm.TryAcquireNode(rs.HomeNode, rs.ID)
		k.nodeEnterTime[rs.ID] = 0
	}
	for _, ss := range scenario.Stations {
		st := NewStation(ss.ID, ss.Node, ss.Kind, ss.Slots, ss.Service)
		k.stations[ss.ID] = st
		k.stationsByNode[ss.Node] = st
	}
	for _, cs := range scenario.ChargingStations {
		k.chargingStations[cs.ID] = NewChargingStation(cs.ID, cs.Node, cs.Slots, cs.ChargeRate)
	}
	for _, ms := range scenario.MaintenanceStations {
		k.maintenanceStations[ms.ID] = NewMaintenanceStation(ms.ID, ms.Node, ms.Slots, ms.Repair)
	}

	k.sched.Schedule(&Event{Time: cfg.endTime, Type: EvSimulationEnd})
	if cfg.warmupEnd > 0 {
		k.sched.Schedule(&Event{Time: cfg.warmupEnd, Type: EvWarmupEnd})
	}
	k.scheduleNextArrival(0)
	k.sched.Schedule(&Event{Time: metricsSampleInterval, Type: EvMetricsSample})
	k.sched.Schedule(&Event{Time: deadlockCheckInterval, Type: EvDeadlockCheck})

	for _, rs := range scenario.Robots {
		k.scheduleNextFailure(0, rs.ID)
		if scenario.MaintenanceEvery != nil {
			gap := scenario.MaintenanceEvery.Sample(rng.Stream(DomainRobotsMaintenance))
			k.sched.Schedule(&Event{Time: Time(gap), Type: EvMaintenanceDue, RobotID: rs.ID})
		}
	}

	if cfg.cacheRoutes && cfg.congestionAware {
		k.log(0, EvRobotWait, "", "route_cache_disabled", nil)
	}

	return k, nil
}

// Run drives the kernel to completion: every scheduled event dispatches
// in (time, type_priority, insertion_seq) order until SimulationEnd or
// the event queue empties, whichever comes first. Run may
// only be called once; a second call returns ErrAlreadyRun. A paused
// Kernel (Pause called from another goroutine's callback, e.g. an
// emit.Emitter hook) stops dispatching and returns its partial result
// without marking the run finished, so Resume followed by Run can
// continue it; ctx cancellation does the same but does mark finished,
// since a cancelled run is not expected to resume.
func (k *Kernel) Run(ctx context.Context) (FinalReport, error) {
	if k.finished {
		return FinalReport{}, ErrAlreadyRun
	}
	for !k.paused {
		select {
		case <-ctx.Done():
			return k.finish(), ctx.Err()
		default:
		}
		if k.cfg.maxEvents > 0 && k.sched.Dispatched() >= k.cfg.maxEvents {
			break
		}
		ended := false
		ok := k.sched.PopOne(func(ev *Event) {
			if ev.Time > k.cfg.endTime {
				return
			}
			k.dispatch(ev)
			ended = ev.Type == EvSimulationEnd
		})
		if !ok || ended || k.sched.Clock() > k.cfg.endTime {
			break
		}
	}
	if k.paused {
		return k.Snapshot().FinalReport, nil
	}
	return k.finish(), nil
}

// Step dispatches exactly n events (or fewer if the queue empties or
// SimulationEnd is reached first) and returns whether the run has now
// finished.
func (k *Kernel) Step(n int) (finished bool, err error) {
	if k.finished {
		return true, ErrAlreadyRun
	}
	for i := 0; i < n && !k.finished; i++ {
		ok := k.sched.PopOne(func(ev *Event) {
			if ev.Time > k.cfg.endTime {
				k.finished = true
				return
			}
			k.dispatch(ev)
			if ev.Type == EvSimulationEnd {
				k.finished = true
			}
		})
		if !ok {
			k.finished = true
		}
	}
	if k.finished && k.result == nil {
		r := k.finish()
		k.result = &r
	}
	return k.finished, nil
}

// Pause marks the kernel paused. Step still functions while paused
// (interactive single-stepping is the point of pausing); Run refuses
// to proceed past the pause until Resume is called, by blocking
// silently is inappropriate for a deterministic kernel, so Run instead
// returns immediately with the partial result when paused.
func (k *Kernel) Pause() { k.paused = true }

// Resume clears a prior Pause.
func (k *Kernel) Resume() { k.paused = false }

// Paused reports the current pause state.
func (k *Kernel) Paused() bool { return k.paused }

// SetSpeed is a no-op in this kernel: event-stepped simulation has no
// wall-clock playback rate to scale — Speed only matters to a live
// UI replaying the event log at a chosen pace, which is outside this
// package's scope. Kept as part of the public
// surface so callers built against the documented Kernel API compile
// unchanged; multiplier is validated but otherwise unused.
func (k *Kernel) SetSpeed(multiplier float64) error {
	if multiplier <= 0 {
		return &ConfigError{Issues: []string{"SetSpeed: multiplier must be > 0"}}
	}
	return nil
}

// Snapshot returns a PartialReport reflecting every event dispatched so
// far, usable mid-run without waiting for SimulationEnd.
func (k *Kernel) Snapshot() PartialReport {
	slaTarget := k.scenario.Orders.DueOffset
	report := BuildFinalReport(k.scenario.Seed, k.scenario.Hash(), k.sched.Clock(), k.metrics, k.anomalies, slaTarget)
	return PartialReport{Clock: k.sched.Clock(), FinalReport: report}
}

// LiveSnapshot returns the lightweight per-tick view of robot states
// and task counts as of the current clock.
func (k *Kernel) LiveSnapshot() LiveSnapshot {
	ls := LiveSnapshot{
		Clock:       k.sched.Clock(),
		RobotStates: make(map[RobotID]RobotState, len(k.robots)),
		RobotNodes:  make(map[RobotID]NodeID, len(k.robots)),
	}
	for id, r := range k.robots {
		ls.RobotStates[id] = r.State
		ls.RobotNodes[id] = r.CurrentNode()
	}
	for _, t := range k.tasks {
		switch t.Status {
		case TaskPending:
			ls.PendingTasks++
		case TaskAssigned, TaskInProgress:
			ls.ActiveTasks++
		}
	}
	return ls
}

// Subscribe registers fn to receive every emit.Event the kernel
// produces from this point forward, if the configured Emitter supports
// subscription (currently *emit.BufferedEmitter). Returns an
// unsubscribe function, or a no-op if the emitter does not support it.
func (k *Kernel) Subscribe(fn func(emit.Event)) func() {
	if be, ok := k.emitter.(*emit.BufferedEmitter); ok {
		return be.Subscribe(fn)
	}
	return func() {}
}

func (k *Kernel) finish() FinalReport {
	k.finished = true
	slaTarget := k.scenario.Orders.DueOffset
	report := BuildFinalReport(k.scenario.Seed, k.scenario.Hash(), k.sched.Clock(), k.metrics, k.anomalies, slaTarget)
	k.result = &report
	return report
}

func (k *Kernel) log(clock Time, evType EventType, source, msg string, meta map[string]any) {
	k.emitter.Emit(emit.Event{
		RunID:        k.runID,
		Clock:        float64(clock),
		Seq:          uint64(k.sched.Dispatched()),
		TypePriority: eventPriority(evType),
		Source:       source,
		Msg:          msg,
		Meta:         meta,
	})
}

func (k *Kernel) recordAnomaly(kind AnomalyKind, detail string, taskID TaskID, robotID RobotID) {
	k.anomalies = append(k.anomalies, Anomaly{
		Kind:    kind,
		Time:    k.sched.Clock(),
		Detail:  detail,
		TaskID:  taskID,
		RobotID: robotID,
	})
}
