package sim

import (
	"encoding/json"
	"hash/fnv"
	"sort"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Scenario is the external configuration surface for a run: a
// warehouse map, a fleet of robots, station layout, workload generator
// parameters, and the policy selections controlling routing, traffic,
// and allocation. Kernel.New re-checks structural invariants this
// type alone cannot enforce on itself.
type Scenario struct {
	Seed int64

	Nodes []*Node
	Edges []*Edge

	Robots []RobotSpec

	Stations            []StationSpec
	ChargingStations    []ChargingStationSpec
	MaintenanceStations []MaintenanceStationSpec
	Racks               []RackSpec

	Orders OrderGeneratorConfig

	FailureRate      Distribution // draws from robots.failure: seconds between failures per robot
	MaintenanceEvery Distribution // draws from robots.maintenance: seconds between scheduled maintenance checks
}

// RobotSpec seeds one Robot's static configuration.
type RobotSpec struct {
	ID              RobotID
	HomeNode        NodeID
	Speed           float64
	BatteryCapacity float64
	DrainPerSecond  float64
	DrainPerMeter   float64
	Priority        int
}

// StationSpec seeds one Station.
type StationSpec struct {
	ID      StationID
	Node    NodeID
	Kind    StationKind
	Slots   int
	Service Distribution
}

// ChargingStationSpec seeds one ChargingStation.
type ChargingStationSpec struct {
	ID         StationID
	Node       NodeID
	Slots      int
	ChargeRate float64
}

// MaintenanceStationSpec seeds one MaintenanceStation.
type MaintenanceStationSpec struct {
	ID     StationID
	Node   NodeID
	Slots  int
	Repair Distribution
}

// Validate re-checks structural invariants the Scenario alone cannot
// self-verify: graph connectivity, station/node kind matching, and
// quantity and SKU ranges; distribution parameters are not checked.
// It aggregates every
// issue into one *ConfigError and never partially applies a scenario.
func (s *Scenario) Validate() error {
	cerr := &ConfigError{}

	m := NewMap(s.Nodes, s.Edges)
	if mapErr := m.Validate(); mapErr != nil {
		cerr.Issues = append(cerr.Issues, mapErr.Issues...)
	}

	nodeKind := make(map[NodeID]NodeKind, len(s.Nodes))
	for _, n := range s.Nodes {
		nodeKind[n.ID] = n.Kind
	}

	seenRobot := make(map[RobotID]bool)
	for _, r := range s.Robots {
		if seenRobot[r.ID] {
			cerr.add("duplicate robot id %d", r.ID)
		}
		seenRobot[r.ID] = true
		if _, ok := nodeKind[r.HomeNode]; !ok {
			cerr.add("robot %d home node %d does not exist", r.ID, r.HomeNode)
		}
		if r.Speed <= 0 {
			cerr.add("robot %d speed must be > 0, got %v", r.ID, r.Speed)
		}
		if r.BatteryCapacity <= 0 {
			cerr.add("robot %d battery capacity must be > 0, got %v", r.ID, r.BatteryCapacity)
		}
	}
	if len(s.Robots) == 0 {
		cerr.add("scenario defines no robots")
	}

	for _, st := range s.Stations {
		kind, ok := nodeKind[st.Node]
		if !ok {
			cerr.add("station %d references unknown node %d", st.ID, st.Node)
			continue
		}
		if !stationKindMatchesNode(st.Kind, kind) {
			cerr.add("station %d kind %v does not match node %d kind %v", st.ID, st.Kind, st.Node, kind)
		}
		if st.Slots < 1 {
			cerr.add("station %d must have at least 1 slot", st.ID)
		}
	}
	for _, cs := range s.ChargingStations {
		if kind, ok := nodeKind[cs.Node]; !ok || kind != NodeCharging {
			cerr.add("charging station %d must sit on a charging node", cs.ID)
		}
		if cs.Slots < 1 {
			cerr.add("charging station %d must have at least 1 slot", cs.ID)
		}
		if cs.ChargeRate <= 0 {
			cerr.add("charging station %d charge rate must be > 0", cs.ID)
		}
	}
	for _, ms := range s.MaintenanceStations {
		if kind, ok := nodeKind[ms.Node]; !ok || kind != NodeMaintenance {
			cerr.add("maintenance station %d must sit on a maintenance node", ms.ID)
		}
		if ms.Slots < 1 {
			cerr.add("maintenance station %d must have at least 1 slot", ms.ID)
		}
	}
	for _, rk := range s.Racks {
		if kind, ok := nodeKind[rk.Node]; !ok || kind != NodeRack {
			cerr.add("rack at node %d must sit on a rack node", rk.Node)
		}
		if rk.Quantity < 0 {
			cerr.add("rack at node %d sku %d quantity must be >= 0", rk.Node, rk.SKU)
		}
		if rk.Capacity > 0 && rk.Quantity > rk.Capacity {
			cerr.add("rack at node %d sku %d quantity %d exceeds capacity %d", rk.Node, rk.SKU, rk.Quantity, rk.Capacity)
		}
	}

	if s.Orders.QuantityMin < 1 || s.Orders.QuantityMax < s.Orders.QuantityMin {
		cerr.add("order quantity range [%d,%d] is invalid", s.Orders.QuantityMin, s.Orders.QuantityMax)
	}
	if s.Orders.SKUCount < 1 {
		cerr.add("order generator SKU count must be >= 1")
	}

	return cerr.errOrNil()
}

func stationKindMatchesNode(sk StationKind, nk NodeKind) bool {
	switch sk {
	case StationPick:
		return nk == NodePickStation
	case StationDrop:
		return nk == NodeDropStation
	case StationInbound:
		return nk == NodeInboundStation
	case StationOutbound:
		return nk == NodeOutboundStation
	default:
		return false
	}
}

// Hash returns a stable FNV-1a hex digest over the scenario's canonical
// JSON form, used as the persistence key prefix in sim/store alongside
// the run seed. Two Scenario values that marshal identically always
// hash identically; this is a content hash, not a structural equality
// check.
func (s *Scenario) Hash() string {
	data, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	h := fnv.New64a()
	_, _ = h.Write(data)
	return hexUint64(h.Sum64())
}

func hexUint64(v uint64) string {
	const digits = "0123456789abcdef"
	var buf [16]byte
	for i := 15; i >= 0; i-- {
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf[:])
}

// PatchScenarioJSON applies a set of (gjson-path, value) overrides to a
// base scenario JSON document without re-marshaling the whole tree —
// the narrow sweep-parameter-patching helper,
// intentionally not a general JSON/YAML parser (that remains a
// Non-goal). patches are applied in the order given, each via
// sjson.SetBytes; the result is returned unparsed so the caller decides
// whether/when to unmarshal it into a Scenario.
func PatchScenarioJSON(baseJSON []byte, patches map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(patches))
	for k := range patches {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := baseJSON
	for _, path := range keys {
		var err error
		out, err = sjson.SetBytes(out, path, patches[path])
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ScenarioJSONField reads a single field out of a scenario JSON
// document by gjson path, for sweep drivers that want to inspect one
// value (e.g. the seed) without unmarshaling the whole document.
func ScenarioJSONField(docJSON []byte, path string) gjson.Result {
	return gjson.GetBytes(docJSON, path)
}
