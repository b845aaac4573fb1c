package sim

import (
	"github.com/waremax/waremax/sim/emit"
)

// Option configures a Kernel at construction time, a functional-options
// pattern applied to kernelConfig since Kernel.New has no reducer/store/
// emitter positional triple to thread through.
type Option func(*kernelConfig) error

// kernelConfig collects options before Kernel.New applies them,
// allowing every option to be validated together and the whole set
// rejected as one *ConfigError rather than failing on the first bad
// option.
type kernelConfig struct {
	emitter         emit.Emitter
	metrics         *PrometheusMetrics
	maxEvents       int
	warmupEnd       Time
	endTime         Time
	hasEndTime      bool
	allocation      AllocationPolicy
	stationAssign   StationAssignmentPolicy
	batching        BatchingPolicy
	priority        PriorityPolicy
	traffic         TrafficPolicy
	waitThreshold   float64 // TrafficRerouteOnWait: seconds in WaitingEdge before a reroute attempt
	maxRerouteAttempts int  // TrafficRerouteOnWait: reroute attempts before reverting to plain wait
	reservationHorizon float64 // TrafficReservation: seconds a node reservation stays live past expected arrival
	resolver        ResolverKind
	waitAndRetryCap int
	useAStar        bool
	cacheRoutes     bool
	congestionAware bool
	congestionWeight float64
	chargeThreshold float64
}

func defaultKernelConfig() *kernelConfig {
	return &kernelConfig{
		emitter:           emit.NewNullEmitter(),
		allocation:        NearestRobotPolicy{},
		stationAssign:     LeastQueuePolicy{},
		batching:          NoBatching{},
		priority:          StrictPriorityPolicy{},
		traffic:           TrafficWait,
		waitThreshold:     30,
		maxRerouteAttempts: 2,
		reservationHorizon: 15,
		resolver:          ResolverTiered,
		waitAndRetryCap:   3,
		congestionWeight:  1.0,
		chargeThreshold:   0.2,
	}
}

// WithEmitter directs every kernel log record and subscriber delta
// through e instead of the default NullEmitter.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *kernelConfig) error {
		if e == nil {
			return &ConfigError{Issues: []string{"WithEmitter: emitter must not be nil"}}
		}
		cfg.emitter = e
		return nil
	}
}

// WithMetrics registers a PrometheusMetrics to mirror every
// MetricsCollector update, for live dashboards during long or
// interactive runs.
func WithMetrics(m *PrometheusMetrics) Option {
	return func(cfg *kernelConfig) error {
		cfg.metrics = m
		return nil
	}
}

// WithMaxEvents caps total dispatched events as a safety net against a
// misconfigured scenario that never reaches SimulationEnd (0 means no
// cap).
func WithMaxEvents(n int) Option {
	return func(cfg *kernelConfig) error {
		if n < 0 {
			return &ConfigError{Issues: []string{"WithMaxEvents: n must be >= 0"}}
		}
		cfg.maxEvents = n
		return nil
	}
}

// WithWarmupEnd schedules a WarmupEnd event at t; task completions,
// order fulfilments and node/edge busy time before t are excluded from
// FinalReport aggregates. Order-arrival, robot-failure and deadlock
// counters include the warmup period.
func WithWarmupEnd(t Time) Option {
	return func(cfg *kernelConfig) error {
		if t < 0 {
			return &ConfigError{Issues: []string{"WithWarmupEnd: t must be >= 0"}}
		}
		cfg.warmupEnd = t
		return nil
	}
}

// WithEndTime schedules a SimulationEnd event at t. Required — a
// kernel with no configured end time has no way to know when a Run
// should stop short of queue exhaustion, which a steady-state order
// generator never reaches.
func WithEndTime(t Time) Option {
	return func(cfg *kernelConfig) error {
		if t <= 0 {
			return &ConfigError{Issues: []string{"WithEndTime: t must be > 0"}}
		}
		cfg.endTime = t
		cfg.hasEndTime = true
		return nil
	}
}

// WithAllocationPolicy selects the task-allocation policy.
func WithAllocationPolicy(p AllocationPolicy) Option {
	return func(cfg *kernelConfig) error {
		if p == nil {
			return &ConfigError{Issues: []string{"WithAllocationPolicy: policy must not be nil"}}
		}
		cfg.allocation = p
		return nil
	}
}

// WithStationAssignmentPolicy selects the station-assignment policy.
func WithStationAssignmentPolicy(p StationAssignmentPolicy) Option {
	return func(cfg *kernelConfig) error {
		if p == nil {
			return &ConfigError{Issues: []string{"WithStationAssignmentPolicy: policy must not be nil"}}
		}
		cfg.stationAssign = p
		return nil
	}
}

// WithBatchingPolicy selects the task-batching policy.
func WithBatchingPolicy(p BatchingPolicy) Option {
	return func(cfg *kernelConfig) error {
		if p == nil {
			return &ConfigError{Issues: []string{"WithBatchingPolicy: policy must not be nil"}}
		}
		cfg.batching = p
		return nil
	}
}

// WithPriorityPolicy selects the task-priority ordering policy.
func WithPriorityPolicy(p PriorityPolicy) Option {
	return func(cfg *kernelConfig) error {
		if p == nil {
			return &ConfigError{Issues: []string{"WithPriorityPolicy: policy must not be nil"}}
		}
		cfg.priority = p
		return nil
	}
}

// WithTrafficPolicy selects how blocked robots behave. TrafficWait
// needs no further parameters; WithRerouteOnWait/WithReservationPolicy
// select TrafficRerouteOnWait/TrafficReservation together with their
// required sub-parameters in one call.
func WithTrafficPolicy(p TrafficPolicy) Option {
	return func(cfg *kernelConfig) error {
		cfg.traffic = p
		return nil
	}
}

// WithRerouteOnWait selects TrafficRerouteOnWait: a robot that has sat
// in WaitingEdge for waitThresholdSeconds requests a fresh route with
// the blocked edge penalized, bounded by maxAttempts retries before it
// reverts to plain FIFO waiting.
func WithRerouteOnWait(waitThresholdSeconds float64, maxAttempts int) Option {
	return func(cfg *kernelConfig) error {
		if waitThresholdSeconds <= 0 {
			return &ConfigError{Issues: []string{"WithRerouteOnWait: waitThresholdSeconds must be > 0"}}
		}
		if maxAttempts < 1 {
			return &ConfigError{Issues: []string{"WithRerouteOnWait: maxAttempts must be >= 1"}}
		}
		cfg.traffic = TrafficRerouteOnWait
		cfg.waitThreshold = waitThresholdSeconds
		cfg.maxRerouteAttempts = maxAttempts
		return nil
	}
}

// WithReservationPolicy selects TrafficReservation: before departing
// onto an edge, a robot books its destination node for the expected
// travel time plus horizonSeconds of grace, and only departs if the
// booking succeeds.
func WithReservationPolicy(horizonSeconds float64) Option {
	return func(cfg *kernelConfig) error {
		if horizonSeconds <= 0 {
			return &ConfigError{Issues: []string{"WithReservationPolicy: horizonSeconds must be > 0"}}
		}
		cfg.traffic = TrafficReservation
		cfg.reservationHorizon = horizonSeconds
		return nil
	}
}

// WithDeadlockResolver selects the deadlock-resolution strategy and, for
// ResolverWaitAndRetry/ResolverTiered, how many checks elapse before a
// cycle is forced to back up.
func WithDeadlockResolver(r ResolverKind, waitAndRetryCap int) Option {
	return func(cfg *kernelConfig) error {
		if waitAndRetryCap < 1 {
			return &ConfigError{Issues: []string{"WithDeadlockResolver: waitAndRetryCap must be >= 1"}}
		}
		cfg.resolver = r
		cfg.waitAndRetryCap = waitAndRetryCap
		return nil
	}
}

// WithAStar selects A* (Euclidean heuristic) instead of plain Dijkstra
// for route computation.
func WithAStar(enabled bool) Option {
	return func(cfg *kernelConfig) error {
		cfg.useAStar = enabled
		return nil
	}
}

// WithRouteCache enables route-result caching; it is silently disabled
// whenever WithCongestionAwareRouting(true) is also set (logged once as
// a warning event rather than treated as a ConfigError, since the
// combination is a meaningful request that just can't be honored
// literally).
func WithRouteCache(enabled bool) Option {
	return func(cfg *kernelConfig) error {
		cfg.cacheRoutes = enabled
		return nil
	}
}

// WithCongestionAwareRouting enables live-occupancy-weighted routing
// with the given congestion multiplier.
func WithCongestionAwareRouting(enabled bool, weight float64) Option {
	return func(cfg *kernelConfig) error {
		if enabled && weight < 0 {
			return &ConfigError{Issues: []string{"WithCongestionAwareRouting: weight must be >= 0"}}
		}
		cfg.congestionAware = enabled
		cfg.congestionWeight = weight
		return nil
	}
}

// WithChargeThreshold sets the battery fraction (0..1) at which an idle
// robot is routed to charge.
func WithChargeThreshold(fraction float64) Option {
	return func(cfg *kernelConfig) error {
		if fraction < 0 || fraction > 1 {
			return &ConfigError{Issues: []string{"WithChargeThreshold: fraction must be in [0,1]"}}
		}
		cfg.chargeThreshold = fraction
		return nil
	}
}
