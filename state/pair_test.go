package state

import (
	"reflect"
	"testing"
)

func TestMakeSortedPair(t *testing.T) {
	if got := MakeSortedPair[NodeId]("b", "a"); got != (Pair[NodeId, NodeId]{"a", "b"}) {
		t.Fatalf("expected (a, b), got %v", got)
	}
	if got := MakeSortedPair[NodeId]("a", "b"); got != (Pair[NodeId, NodeId]{"a", "b"}) {
		t.Fatalf("expected (a, b), got %v", got)
	}
}

func TestSortPairsString(t *testing.T) {
	pairs := []Pair[NodeId, NodeId]{
		{V1: "b", V2: "y"},
		{V1: "a", V2: "z"},
		{V1: "a", V2: "x"},
		{V1: "c", V2: "w"},
	}
	expected := []Pair[NodeId, NodeId]{
		{V1: "a", V2: "x"},
		{V1: "a", V2: "z"},
		{V1: "b", V2: "y"},
		{V1: "c", V2: "w"},
	}
	SortPairs(pairs)
	if !reflect.DeepEqual(pairs, expected) {
		t.Fatalf("expected %v, got %v", expected, pairs)
	}
}
