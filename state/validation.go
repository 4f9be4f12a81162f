package state

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
)

var namePattern, _ = regexp.Compile("^[0-9A-Za-z._-]+$")

func PathValidator(s string) error {
	_, err := os.Stat(path.Dir(s))
	if err != nil {
		return err
	}
	_, err = filepath.Abs(s)
	return err
}

func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid name, must match pattern %s", s, namePattern.String())
	}
	if len(s) > 100 {
		return fmt.Errorf("len(\"%s\") = %d > 100 is too long", s, len(s))
	}
	return nil
}

func CostValidator(c Cost) error {
	if c > MaxLinkCost {
		return fmt.Errorf("cost %d exceeds the maximum link cost %d", c, MaxLinkCost)
	}
	return nil
}

func NodeConfigValidator(node *NodeCfg) error {
	err := NameValidator(string(node.Id))
	if err != nil {
		return err
	}
	if node.Heartbeat <= 0 {
		return fmt.Errorf("node %s: heartbeat must be positive, got %dms", node.Id, node.Heartbeat)
	}
	if node.Tick <= 0 {
		return fmt.Errorf("node %s: tick must be positive, got %dms", node.Id, node.Tick)
	}
	if node.LogPath != "" {
		return PathValidator(node.LogPath)
	}
	return nil
}

func ScenarioValidator(sc *Scenario) error {
	if sc.Heartbeat <= 0 {
		return fmt.Errorf("heartbeat must be positive, got %dms", sc.Heartbeat)
	}
	if sc.Tick <= 0 {
		return fmt.Errorf("tick must be positive, got %dms", sc.Tick)
	}
	if sc.Duration < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	nodes := make([]NodeId, 0, len(sc.Nodes))
	for _, node := range sc.Nodes {
		err := NameValidator(string(node.Id))
		if err != nil {
			return err
		}
		if slices.Contains(nodes, node.Id) {
			return fmt.Errorf("duplicate node: %s", node.Id)
		}
		nodes = append(nodes, node.Id)
	}
	edges := make([]Pair[NodeId, NodeId], 0)
	ports := make(map[Pair[NodeId, Port]]struct{})
	for _, link := range sc.Links {
		if err := linkValidator(nodes, link.A, link.B, link.Cost); err != nil {
			return err
		}
		key := MakeSortedPair(link.A, link.B)
		if slices.Contains(edges, key) {
			return fmt.Errorf("duplicate link found: %s, %s", link.A, link.B)
		}
		edges = append(edges, key)
		for _, p := range []Pair[NodeId, Port]{{link.A, link.PortA}, {link.B, link.PortB}} {
			if p.V2 == 0 {
				continue
			}
			if p.V2 < 0 {
				return fmt.Errorf("node %s: port %d must be positive", p.V1, p.V2)
			}
			if _, dup := ports[p]; dup {
				return fmt.Errorf("node %s: port %d is used by more than one link", p.V1, p.V2)
			}
			ports[p] = struct{}{}
		}
		if link.Loss < 0 || link.Loss >= 1 {
			return fmt.Errorf("link %s, %s: loss must be in [0, 1)", link.A, link.B)
		}
		if link.Latency < 0 {
			return fmt.Errorf("link %s, %s: latency must not be negative", link.A, link.B)
		}
	}
	for i, ev := range sc.Events {
		if ev.At < 0 {
			return fmt.Errorf("event %d: time must not be negative", i)
		}
		switch ev.Kind {
		case EventLinkUp:
			if err := linkValidator(nodes, ev.A, ev.B, ev.Cost); err != nil {
				return fmt.Errorf("event %d: %w", i, err)
			}
		case EventLinkDown:
			if !slices.Contains(nodes, ev.A) || !slices.Contains(nodes, ev.B) {
				return fmt.Errorf("event %d: link %s, %s references an unknown node", i, ev.A, ev.B)
			}
		case EventTrace:
			if !slices.Contains(nodes, ev.From) {
				return fmt.Errorf("event %d: node %s not defined", i, ev.From)
			}
			if ev.To == "" {
				return fmt.Errorf("event %d: trace has no destination", i)
			}
		default:
			return fmt.Errorf("event %d: unknown kind %q", i, ev.Kind)
		}
	}
	return nil
}

func linkValidator(nodes []NodeId, a, b NodeId, cost Cost) error {
	if a == b {
		return fmt.Errorf("link %s, %s: a node cannot link to itself", a, b)
	}
	if !slices.Contains(nodes, a) {
		return fmt.Errorf("node %s not defined", a)
	}
	if !slices.Contains(nodes, b) {
		return fmt.Errorf("node %s not defined", b)
	}
	return CostValidator(cost)
}
