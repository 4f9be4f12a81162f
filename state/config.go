package state

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-yaml"
)

// Millis is a duration in milliseconds as written in scenario files.
type Millis int64

func (m Millis) Duration() time.Duration {
	return time.Duration(m) * time.Millisecond
}

func ToMillis(d time.Duration) Millis {
	return Millis(d / time.Millisecond)
}

type NodeSpec struct {
	Id       NodeId
	Prefixes []netip.Prefix `yaml:",omitempty" toml:",omitempty"` // addresses that resolve to this node for traces
}

type LinkSpec struct {
	A       NodeId
	B       NodeId
	Cost    Cost
	PortA   Port    `yaml:"port_a,omitempty" toml:"port_a,omitempty"` // 0 picks the next free port on A
	PortB   Port    `yaml:"port_b,omitempty" toml:"port_b,omitempty"`
	Latency Millis  `yaml:"latency_ms,omitempty" toml:"latency_ms,omitempty"`
	Loss    float64 `yaml:"loss,omitempty" toml:"loss,omitempty"` // probability in [0, 1) that a packet is dropped
}

type EventKind string

const (
	EventLinkUp   EventKind = "up"
	EventLinkDown EventKind = "down"
	EventTrace    EventKind = "trace"
)

type EventSpec struct {
	At   Millis `yaml:"at_ms" toml:"at_ms"`
	Kind EventKind
	A    NodeId `yaml:",omitempty"`
	B    NodeId `yaml:",omitempty"`
	Cost Cost   `yaml:",omitempty"`
	From NodeId `yaml:",omitempty"`
	To   string `yaml:",omitempty"` // node id or an address inside one of the node prefixes
}

// Scenario describes a network to simulate: its routers, the links present at start and the events
// that happen afterwards.
type Scenario struct {
	Heartbeat Millis      `yaml:"heartbeat_ms,omitempty" toml:"heartbeat_ms,omitempty"`
	Tick      Millis      `yaml:"tick_ms,omitempty" toml:"tick_ms,omitempty"`
	Duration  Millis      `yaml:"duration_ms,omitempty" toml:"duration_ms,omitempty"`
	Seed      uint64      `yaml:",omitempty"`
	Nodes     []NodeSpec
	Links     []LinkSpec  `yaml:",omitempty"`
	Mesh      []string    `yaml:",omitempty"` // see ExpandMesh
	MeshCost  Cost        `yaml:"mesh_cost,omitempty" toml:"mesh_cost,omitempty"`
	Events    []EventSpec `yaml:",omitempty"`
}

// ReadScenario reads a YAML scenario, or a TOML one when the file ends in .toml.
func ReadScenario(path string) (*Scenario, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(path) == ".toml" {
		return ParseScenarioTOML(file)
	}
	return ParseScenario(file)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	err := yaml.Unmarshal(data, &sc)
	if err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	return finishScenario(&sc)
}

func ParseScenarioTOML(data []byte) (*Scenario, error) {
	var sc Scenario
	md, err := toml.Decode(string(data), &sc)
	if err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("parse scenario: unknown key %s", undecoded[0])
	}
	return finishScenario(&sc)
}

func finishScenario(sc *Scenario) (*Scenario, error) {
	err := ExpandScenario(sc)
	if err != nil {
		return nil, err
	}
	return sc, ScenarioValidator(sc)
}

// ExpandScenario fills defaults and turns mesh lines into links.
func ExpandScenario(sc *Scenario) error {
	if sc.Heartbeat == 0 {
		sc.Heartbeat = ToMillis(DefaultHeartbeat)
	}
	if sc.Tick == 0 {
		sc.Tick = ToMillis(TickDelay)
	}
	if sc.MeshCost == 0 {
		sc.MeshCost = 1
	}
	if len(sc.Mesh) != 0 {
		pairs, err := ExpandMesh(sc.Mesh, sc.NodeIds())
		if err != nil {
			return err
		}
		for _, p := range pairs {
			if sc.HasLink(p.V1, p.V2) {
				continue // explicit links win
			}
			sc.Links = append(sc.Links, LinkSpec{A: p.V1, B: p.V2, Cost: sc.MeshCost})
		}
		sc.Mesh = nil
	}
	return nil
}

// NodeCfg is the configuration every router of the scenario starts with.
func (sc *Scenario) NodeCfg(id NodeId) NodeCfg {
	return NodeCfg{
		Id:        id,
		Heartbeat: sc.Heartbeat,
		Tick:      sc.Tick,
	}
}

func (sc *Scenario) NodeIds() []NodeId {
	ids := make([]NodeId, 0, len(sc.Nodes))
	for _, n := range sc.Nodes {
		ids = append(ids, n.Id)
	}
	return ids
}

func (sc *Scenario) HasLink(a, b NodeId) bool {
	key := MakeSortedPair(a, b)
	return slices.ContainsFunc(sc.Links, func(l LinkSpec) bool {
		return MakeSortedPair(l.A, l.B) == key
	})
}

/*
ExpandMesh turns mesh lines into undirected node pairs:

	core = a, b, c      // defines group core, it must appear before it is used
	core, d             // every member of core is linked to d, members are not linked to each other
	core, core          // every member is linked to every other member
	e, f                // e and f are linked
*/
func ExpandMesh(lines []string, nodes []NodeId) ([]Pair[NodeId, NodeId], error) {
	groups := make(map[string][]NodeId)
	pairs := make([]Pair[NodeId, NodeId], 0)

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if name, members, ok := strings.Cut(line, "="); ok {
			name = strings.TrimSpace(name)
			if slices.Contains(nodes, NodeId(name)) {
				return nil, fmt.Errorf("group name must not be a node name: %s", name)
			}
			if _, dup := groups[name]; dup {
				return nil, fmt.Errorf("duplicate group name: %s", name)
			}
			expanded, err := expandSymbols(members, nodes, groups)
			if err != nil {
				return nil, err
			}
			groups[name] = expanded
			continue
		}
		terms := strings.Split(line, ",")
		sets := make([][]NodeId, 0, len(terms))
		for _, term := range terms {
			set, err := expandSymbols(term, nodes, groups)
			if err != nil {
				return nil, err
			}
			sets = append(sets, set)
		}
		if len(sets) < 2 {
			return nil, fmt.Errorf("invalid pairing, %s", line)
		}
		for i := range sets {
			for j := i + 1; j < len(sets); j++ {
				for _, x := range sets[i] {
					for _, y := range sets[j] {
						if x != y {
							pairs = append(pairs, MakeSortedPair(x, y))
						}
					}
				}
			}
		}
	}
	SortPairs(pairs)
	return slices.Compact(pairs), nil
}

func expandSymbols(list string, nodes []NodeId, groups map[string][]NodeId) ([]NodeId, error) {
	out := make([]NodeId, 0)
	for _, s := range strings.Split(list, ",") {
		x := strings.TrimSpace(s)
		if x == "" {
			continue
		}
		if g, ok := groups[x]; ok {
			out = append(out, g...)
		} else if slices.Contains(nodes, NodeId(x)) {
			out = append(out, NodeId(x))
		} else {
			return nil, fmt.Errorf(`%s is not a valid node/group`, x)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf(`node/group list must not be empty`)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
