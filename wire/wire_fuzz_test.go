package wire

import (
	"bytes"
	"math"
	"testing"

	"github.com/chazu/deneb/bridge"
	"github.com/chazu/deneb/vm"
)

// ---------------------------------------------------------------------------
// FuzzDecode: ensure the snapshot decoder never panics or OOMs on
// arbitrary input. Errors are expected and acceptable; panics are bugs.
// ---------------------------------------------------------------------------

// buildSnapshot encodes one real value so the fuzzer starts from
// well-formed bytes.
func buildSnapshot(t testing.TB, push func(s *vm.State)) []byte {
	t.Helper()

	s := vm.NewState()
	defer s.Close()
	ctx := bridge.NewContext(s)
	push(s)
	data, err := Encode(ctx, -1)
	if err != nil {
		t.Fatalf("Encode seed: %v", err)
	}
	return data
}

// buildHostileSnapshot marshals a snapshot shape the encoder itself
// would never produce.
func buildHostileSnapshot(t testing.TB, snap snapshot) []byte {
	t.Helper()

	data, err := cborEncMode.Marshal(&snap)
	if err != nil {
		t.Fatalf("Marshal seed: %v", err)
	}
	return data
}

// buildDeepSnapshot hand-writes CBOR for a chain of n nested tables,
// each holding the next at index 1.
func buildDeepSnapshot(n int) []byte {
	// map(2){"k": kindTable, "a": array(1){...}}
	level := []byte{0xa2, 0x61, 'k', 0x05, 0x61, 'a', 0x81}
	// map(1){"k": kindNil}
	leaf := []byte{0xa1, 0x61, 'k', 0x00}
	return append(bytes.Repeat(level, n), leaf...)
}

func FuzzDecode(f *testing.F) {
	// Seed 1: Real scalar snapshot
	f.Add(buildSnapshot(f, func(s *vm.State) { s.PushInteger(42) }))

	// Seed 2: Real table with array part, named entries and a float key
	f.Add(buildSnapshot(f, func(s *vm.State) {
		s.NewTable()
		s.PushInteger(10)
		s.RawSetIndex(-2, 1)
		s.PushString("deneb")
		s.RawSetField(-2, "name")
		s.PushNumber(2.5)
		s.PushBoolean(true)
		s.RawSet(-3)
	}))

	// Seed 3: Handcrafted CBOR for the integer 42
	f.Add([]byte{0xa2, 0x61, 'k', 0x02, 0x61, 'i', 0x18, 0x2a})

	// Seed 4: Table snapshot with mismatched key and value counts
	f.Add(buildHostileSnapshot(f, snapshot{
		Kind: kindTable,
		Keys: []snapshot{{Kind: kindText, Text: "x"}},
	}))

	// Seed 5: Table snapshot keyed by NaN
	f.Add(buildHostileSnapshot(f, snapshot{
		Kind: kindTable,
		Keys: []snapshot{{Kind: kindFloat, Float: math.Float64bits(math.NaN())}},
		Vals: []snapshot{{Kind: kindNil}},
	}))

	// Seed 6: Unknown snapshot kind
	f.Add(buildHostileSnapshot(f, snapshot{Kind: 99}))

	// Seed 7: Nesting just past the depth guard
	f.Add(buildDeepSnapshot(maxDepth + 5))

	// Seed 8: Nesting past the CBOR decoder's own limit
	f.Add(buildDeepSnapshot(300))

	// Seed 9: Empty bytes
	f.Add([]byte{})

	// Seed 10: Single zero byte
	f.Add([]byte{0})

	// Seed 11: CBOR break byte and garbage
	f.Add([]byte{0xFF, 0xDE, 0xAD})

	// Seed 12: Truncated real snapshot
	full := buildSnapshot(f, func(s *vm.State) {
		s.NewTable()
		s.PushString("truncate me")
		s.RawSetField(-2, "text")
	})
	f.Add(full[:len(full)/2])

	f.Fuzz(func(t *testing.T, data []byte) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("decoder panicked on %d bytes of input: %v", len(data), r)
			}
		}()

		s := vm.NewState()
		defer s.Close()
		ctx := bridge.NewContext(s)

		if err := Decode(ctx, data); err != nil {
			if s.Top() != 0 {
				t.Fatalf("failed decode left %d values on the stack", s.Top())
			}
			return // malformed snapshots are fine
		}
		if s.Top() != 1 {
			t.Fatalf("decode pushed %d values, want 1", s.Top())
		}

		// Whatever decoded is a scalar-and-table tree, so it must
		// snapshot again.
		if _, err := Encode(ctx, -1); err != nil {
			t.Fatalf("decoded value failed to re-encode: %v", err)
		}
	})
}
