package state

import (
	"net/netip"

	"github.com/gaissmai/bart"
)

// AddressBook resolves trace destinations, written either as a node id or as an address, to nodes.
// Addresses are matched against node prefixes by longest prefix.
type AddressBook struct {
	nodes    map[NodeId]struct{}
	prefixes bart.Table[NodeId]
}

func NewAddressBook(nodes []NodeSpec) *AddressBook {
	b := &AddressBook{
		nodes:    make(map[NodeId]struct{}),
		prefixes: bart.Table[NodeId]{},
	}
	for _, n := range nodes {
		b.nodes[n.Id] = struct{}{}
		for _, p := range n.Prefixes {
			b.prefixes.Insert(p.Masked(), n.Id)
		}
	}
	return b
}

func (b *AddressBook) Resolve(dst string) (NodeId, bool) {
	if _, ok := b.nodes[NodeId(dst)]; ok {
		return NodeId(dst), true
	}
	addr, err := netip.ParseAddr(dst)
	if err != nil {
		return "", false
	}
	return b.prefixes.Lookup(addr)
}
