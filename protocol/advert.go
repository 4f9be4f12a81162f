package protocol

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/encodeous/lsr/state"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// MaxSeqno is the largest sequence number that survives the JSON number encoding exactly.
const MaxSeqno = 1 << 53

var ErrMalformedAdvert = errors.New("malformed advertisement")

type AdvertLink struct {
	Cost state.Cost
	Port state.Port // local to the sender, receivers must not use it
}

// Advertisement is the full neighbour set of Origin at the time it was created. It is not a delta.
type Advertisement struct {
	Origin     state.NodeId
	Neighbours map[state.NodeId]AdvertLink
	Seqno      uint64
}

// Costs drops the sender-local ports, leaving what receivers need to rebuild the graph.
func (a *Advertisement) Costs() map[state.NodeId]state.Cost {
	out := make(map[state.NodeId]state.Cost, len(a.Neighbours))
	for id, l := range a.Neighbours {
		out[id] = l.Cost
	}
	return out
}

func (a *Advertisement) String() string {
	sb := strings.Builder{}
	for i, id := range slices.Sorted(maps.Keys(a.Neighbours)) {
		if i != 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%s: %d", id, a.Neighbours[id].Cost))
	}
	return fmt.Sprintf("(origin: %s, seqno: %d, neighbours: {%s})", a.Origin, a.Seqno, sb.String())
}

// EncodeAdvertisement writes the advertisement as the JSON triple [origin, {neighbour: [cost, port]}, seqno].
func EncodeAdvertisement(a *Advertisement) ([]byte, error) {
	if a.Seqno > MaxSeqno {
		return nil, fmt.Errorf("seqno %d cannot be encoded", a.Seqno)
	}
	neighs := make(map[string]any, len(a.Neighbours))
	for id, l := range a.Neighbours {
		neighs[string(id)] = []any{uint64(l.Cost), int64(l.Port)}
	}
	lv, err := structpb.NewList([]any{string(a.Origin), neighs, a.Seqno})
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(lv)
}

// DecodeAdvertisement parses an encoded advertisement. Any deviation from the expected shape is
// reported as ErrMalformedAdvert.
func DecodeAdvertisement(data []byte) (*Advertisement, error) {
	lv := &structpb.ListValue{}
	if err := protojson.Unmarshal(data, lv); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedAdvert, err)
	}
	vals := lv.GetValues()
	if len(vals) != 3 {
		return nil, fmt.Errorf("%w: expected 3 fields, got %d", ErrMalformedAdvert, len(vals))
	}

	origin, ok := vals[0].GetKind().(*structpb.Value_StringValue)
	if !ok || origin.StringValue == "" {
		return nil, fmt.Errorf("%w: origin must be a non-empty string", ErrMalformedAdvert)
	}
	neighs, ok := vals[1].GetKind().(*structpb.Value_StructValue)
	if !ok {
		return nil, fmt.Errorf("%w: neighbours must be an object", ErrMalformedAdvert)
	}
	seqno, err := asInteger(vals[2], MaxSeqno)
	if err != nil {
		return nil, fmt.Errorf("%w: seqno: %w", ErrMalformedAdvert, err)
	}

	adv := &Advertisement{
		Origin:     state.NodeId(origin.StringValue),
		Neighbours: make(map[state.NodeId]AdvertLink, len(neighs.StructValue.GetFields())),
		Seqno:      seqno,
	}
	for id, v := range neighs.StructValue.GetFields() {
		if id == "" {
			return nil, fmt.Errorf("%w: empty neighbour id", ErrMalformedAdvert)
		}
		pair, ok := v.GetKind().(*structpb.Value_ListValue)
		if !ok || len(pair.ListValue.GetValues()) == 0 || len(pair.ListValue.GetValues()) > 2 {
			return nil, fmt.Errorf("%w: neighbour %s must be [cost, port]", ErrMalformedAdvert, id)
		}
		cost, err := asInteger(pair.ListValue.Values[0], float64(state.MaxLinkCost))
		if err != nil {
			return nil, fmt.Errorf("%w: neighbour %s cost: %w", ErrMalformedAdvert, id, err)
		}
		link := AdvertLink{Cost: state.Cost(cost), Port: state.NoPort}
		if len(pair.ListValue.Values) == 2 {
			// the port is meaningless to us, but it must still be a number
			if _, ok := pair.ListValue.Values[1].GetKind().(*structpb.Value_NumberValue); !ok {
				return nil, fmt.Errorf("%w: neighbour %s port must be a number", ErrMalformedAdvert, id)
			}
			link.Port = state.Port(int64(pair.ListValue.Values[1].GetNumberValue()))
		}
		adv.Neighbours[state.NodeId(id)] = link
	}
	return adv, nil
}

func asInteger(v *structpb.Value, limit float64) (uint64, error) {
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, errors.New("not a number")
	}
	x := n.NumberValue
	if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 || x != math.Trunc(x) {
		return 0, fmt.Errorf("%v is not a non-negative integer", x)
	}
	if x > limit {
		return 0, fmt.Errorf("%v exceeds %v", x, limit)
	}
	return uint64(x), nil
}
