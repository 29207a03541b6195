// Package wire snapshots machine values to canonical CBOR and back.
// Snapshots cover the value kinds that exist independently of a state:
// nil, booleans, numbers, strings and trees of tables. Functions,
// userdata and threads are bound to their state and do not serialize;
// shared and cyclic tables are rejected rather than silently split.
package wire

import (
	"errors"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/deneb/bridge"
	"github.com/chazu/deneb/vm"
)

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
	// Each table level costs two CBOR levels, one for the snapshot map
	// and one for the entry array it nests in.
	dm, err := cbor.DecOptions{MaxNestedLevels: 2*maxDepth + 16}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

// maxDepth bounds nesting in both directions; past it a snapshot is
// either cyclic through values we cannot track or hostile input.
const maxDepth = 200

// ErrShared reports a table reachable twice, by cycle or by sharing.
var ErrShared = errors.New("wire: table is shared or cyclic")

// Snapshot kinds.
const (
	kindNil uint8 = iota
	kindBool
	kindInt
	kindFloat
	kindText
	kindTable
)

// snapshot is the wire form of one value. Exactly the fields of its
// kind are populated; table entries keep traversal order so a decoded
// image iterates like the original.
type snapshot struct {
	Kind uint8 `cbor:"k"`
	Bool bool  `cbor:"b,omitempty"`
	Int  int64 `cbor:"i,omitempty"`
	// Float holds the IEEE 754 bit pattern; raw bits keep NaN payloads
	// and negative zero exact.
	Float uint64     `cbor:"f,omitempty"`
	Text  string     `cbor:"t,omitempty"`
	Arr   []snapshot `cbor:"a,omitempty"`
	Keys  []snapshot `cbor:"K,omitempty"`
	Vals  []snapshot `cbor:"V,omitempty"`
}

// Encode snapshots the value at idx to canonical CBOR. [-0, +0]
func Encode(ctx *bridge.Context, idx int) ([]byte, error) {
	e := &encoder{ctx: ctx}
	defer e.releaseSeen()
	snap, err := e.value(idx, 0)
	if err != nil {
		return nil, err
	}
	data, err := cborEncMode.Marshal(&snap)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal snapshot: %w", err)
	}
	return data, nil
}

// Decode pushes the value a snapshot describes. [-0, +1 on success]
func Decode(ctx *bridge.Context, data []byte) error {
	var snap snapshot
	if err := cborDecMode.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("wire: unmarshal snapshot: %w", err)
	}
	return pushSnapshot(ctx, snap, 0)
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

type encoder struct {
	ctx *bridge.Context
	// seen roots every table the walk entered; a table equal to any of
	// them is reachable twice.
	seen []bridge.Reference
}

func (e *encoder) releaseSeen() {
	for _, ref := range e.seen {
		_ = bridge.ReleaseReference(e.ctx, ref)
	}
}

func (e *encoder) value(idx, depth int) (snapshot, error) {
	if depth > maxDepth {
		return snapshot{}, fmt.Errorf("wire: value nests deeper than %d", maxDepth)
	}
	s := e.ctx.S
	switch s.TypeOf(idx) {
	case vm.TypeNil:
		return snapshot{Kind: kindNil}, nil
	case vm.TypeBoolean:
		return snapshot{Kind: kindBool, Bool: s.ToBoolean(idx)}, nil
	case vm.TypeNumber:
		if s.IsInteger(idx) {
			n, _ := s.ToInteger(idx)
			return snapshot{Kind: kindInt, Int: n}, nil
		}
		f, _ := s.ToNumber(idx)
		return snapshot{Kind: kindFloat, Float: math.Float64bits(f)}, nil
	case vm.TypeString:
		str, _ := s.ToString(idx)
		return snapshot{Kind: kindText, Text: str}, nil
	case vm.TypeTable:
		return e.table(idx, depth)
	default:
		return snapshot{}, fmt.Errorf("wire: cannot snapshot a %s value", s.TypeOf(idx))
	}
}

func (e *encoder) table(idx, depth int) (snapshot, error) {
	s := e.ctx.S
	abs := s.AbsIndex(idx)

	for _, ref := range e.seen {
		if err := bridge.PushReference(e.ctx, ref); err != nil {
			return snapshot{}, err
		}
		same := s.RawEqual(-1, abs)
		s.Pop(1)
		if same {
			return snapshot{}, ErrShared
		}
	}
	s.PushValue(abs)
	e.seen = append(e.seen, bridge.NewReference(e.ctx))

	snap := snapshot{Kind: kindTable}
	n := s.RawLen(abs)
	for i := 1; i <= n; i++ {
		s.RawGetIndex(abs, int64(i))
		elem, err := e.value(-1, depth+1)
		s.Pop(1)
		if err != nil {
			return snapshot{}, err
		}
		snap.Arr = append(snap.Arr, elem)
	}

	s.PushNil()
	for s.Next(abs) {
		if s.IsInteger(-2) {
			if k, _ := s.ToInteger(-2); k >= 1 && k <= int64(n) {
				s.Pop(1)
				continue
			}
		}
		key, err := e.scalarKey(-2)
		if err != nil {
			s.Pop(2)
			return snapshot{}, err
		}
		val, err := e.value(-1, depth+1)
		if err != nil {
			s.Pop(2)
			return snapshot{}, err
		}
		snap.Keys = append(snap.Keys, key)
		snap.Vals = append(snap.Vals, val)
		s.Pop(1)
	}
	return snap, nil
}

// scalarKey snapshots a table key. Keys are scalars only; a table key
// would need identity that snapshots cannot carry.
func (e *encoder) scalarKey(idx int) (snapshot, error) {
	s := e.ctx.S
	switch s.TypeOf(idx) {
	case vm.TypeBoolean, vm.TypeNumber, vm.TypeString:
		return e.value(idx, 0)
	}
	return snapshot{}, fmt.Errorf("wire: cannot snapshot a table keyed by a %s", s.TypeOf(idx))
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

func pushSnapshot(ctx *bridge.Context, snap snapshot, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("wire: snapshot nests deeper than %d", maxDepth)
	}
	s := ctx.S
	switch snap.Kind {
	case kindNil:
		s.PushNil()
	case kindBool:
		s.PushBoolean(snap.Bool)
	case kindInt:
		s.PushInteger(snap.Int)
	case kindFloat:
		s.PushNumber(math.Float64frombits(snap.Float))
	case kindText:
		s.PushString(snap.Text)
	case kindTable:
		if len(snap.Keys) != len(snap.Vals) {
			return fmt.Errorf("wire: snapshot table has %d keys but %d values", len(snap.Keys), len(snap.Vals))
		}
		s.NewTable()
		for i, elem := range snap.Arr {
			if err := pushSnapshot(ctx, elem, depth+1); err != nil {
				s.Pop(1)
				return err
			}
			s.RawSetIndex(-2, int64(i+1))
		}
		for i := range snap.Keys {
			k := snap.Keys[i]
			if k.Kind == kindNil || k.Kind == kindTable {
				s.Pop(1)
				return errors.New("wire: snapshot table key must be a scalar")
			}
			if k.Kind == kindFloat && math.IsNaN(math.Float64frombits(k.Float)) {
				s.Pop(1)
				return errors.New("wire: snapshot table key must not be NaN")
			}
			if err := pushSnapshot(ctx, k, depth+1); err != nil {
				s.Pop(1)
				return err
			}
			if err := pushSnapshot(ctx, snap.Vals[i], depth+1); err != nil {
				s.Pop(2)
				return err
			}
			s.RawSet(-3)
		}
	default:
		return fmt.Errorf("wire: unknown snapshot kind %d", snap.Kind)
	}
	return nil
}
