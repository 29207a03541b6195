package bridge

import (
	"strings"
	"testing"

	"github.com/chazu/deneb/vm"
)

// TestIndexPlainTable verifies driver reads on metatable-less tables go
// straight to storage.
func TestIndexPlainTable(t *testing.T) {
	s := vm.NewState()
	defer s.Close()
	ctx := NewContext(s)

	s.NewTable()
	s.PushInteger(99)
	s.RawSetField(-2, "answer")

	s.PushString("answer")
	if err := Index(ctx, -2); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if v, _ := s.ToInteger(-1); v != 99 {
		t.Errorf("answer = %d, want 99", v)
	}
	s.Pop(1)
}

// TestIndexNonIndexable verifies indexing a scalar consumes the key and
// reports the value's type.
func TestIndexNonIndexable(t *testing.T) {
	s := vm.NewState()
	defer s.Close()
	ctx := NewContext(s)

	s.PushInteger(5)
	before := s.Top()
	s.PushString("k")
	err := Index(ctx, -2)
	if err == nil {
		t.Fatal("Expected failure")
	}
	if !strings.Contains(err.Error(), "attempt to index a number value") {
		t.Errorf("Error = %q, want the number-value complaint", err.Error())
	}
	if s.Top() != before {
		t.Errorf("Top = %d, want %d (key must be consumed)", s.Top(), before)
	}
}

// TestSetIndexPlainTable verifies driver writes land in storage and
// consume both operands.
func TestSetIndexPlainTable(t *testing.T) {
	s := vm.NewState()
	defer s.Close()
	ctx := NewContext(s)

	s.NewTable()
	before := s.Top()
	s.PushString("k")
	s.PushInteger(7)
	if err := SetIndex(ctx, -3); err != nil {
		t.Fatalf("SetIndex: %v", err)
	}
	if s.Top() != before {
		t.Errorf("Top = %d, want %d", s.Top(), before)
	}
	s.RawGetField(-1, "k")
	if v, _ := s.ToInteger(-1); v != 7 {
		t.Errorf("k = %d, want 7", v)
	}
	s.Pop(1)
}

// TestChainedIndexThroughHandlerTable verifies a table-valued handler
// is itself indexed rather than called.
func TestChainedIndexThroughHandlerTable(t *testing.T) {
	s := vm.NewState()
	defer s.Close()
	ctx := NewContext(s)

	// fallback = {x = 1}; obj = setmetatable({}, {__index = fallback})
	s.NewTable()
	fallback := s.AbsIndex(-1)
	s.PushInteger(1)
	s.RawSetField(fallback, "x")

	s.NewTable()
	obj := s.AbsIndex(-1)
	s.NewTable()
	s.PushValue(fallback)
	s.RawSetField(-2, "__index")
	s.SetMetatable(obj)

	s.PushString("x")
	if err := Index(ctx, obj); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if v, _ := s.ToInteger(-1); v != 1 {
		t.Errorf("x through handler table = %d, want 1", v)
	}
	s.Pop(1)
}

// TestPairsPlainTable verifies traversal of a plain table visits every
// pair and can stop early.
func TestPairsPlainTable(t *testing.T) {
	s := vm.NewState()
	defer s.Close()
	ctx := NewContext(s)

	s.NewTable()
	for i := int64(1); i <= 4; i++ {
		s.PushInteger(i * 10)
		s.RawSetIndex(-2, i)
	}

	sum := int64(0)
	err := Pairs(ctx, -1, func(c *Context) (bool, error) {
		v, _ := c.S.ToInteger(-1)
		sum += v
		return true, nil
	})
	if err != nil {
		t.Fatalf("Pairs: %v", err)
	}
	if sum != 100 {
		t.Errorf("Sum = %d, want 100", sum)
	}

	before := s.Top()
	visited := 0
	err = Pairs(ctx, -1, func(c *Context) (bool, error) {
		visited++
		return visited < 2, nil
	})
	if err != nil {
		t.Fatalf("Pairs: %v", err)
	}
	if visited != 2 {
		t.Errorf("Visited %d pairs, want 2", visited)
	}
	if s.Top() != before {
		t.Errorf("Top = %d, want %d after early stop", s.Top(), before)
	}
}

// TestPairsNonIterable verifies traversal of a scalar fails without
// touching the stack.
func TestPairsNonIterable(t *testing.T) {
	s := vm.NewState()
	defer s.Close()
	ctx := NewContext(s)

	s.PushInteger(3)
	before := s.Top()
	err := Pairs(ctx, -1, func(*Context) (bool, error) { return true, nil })
	if err == nil {
		t.Fatal("Expected failure")
	}
	if s.Top() != before {
		t.Errorf("Top = %d, want %d", s.Top(), before)
	}
}

// TestToDisplayLiterals verifies the fallback renderings for values
// without a display hook.
func TestToDisplayLiterals(t *testing.T) {
	s := vm.NewState()
	defer s.Close()
	ctx := NewContext(s)

	cases := []struct {
		push func()
		want string
	}{
		{func() { s.PushNil() }, "nil"},
		{func() { s.PushBoolean(true) }, "true"},
		{func() { s.PushBoolean(false) }, "false"},
		{func() { s.PushInteger(42) }, "42"},
		{func() { s.PushNumber(1.5) }, "1.5"},
		{func() { s.PushString("txt") }, "txt"},
		{func() { s.NewTable() }, "table"},
	}
	for i, c := range cases {
		c.push()
		got, err := ToDisplay(ctx, -1)
		if err != nil {
			t.Fatalf("case %d: ToDisplay: %v", i, err)
		}
		if got != c.want {
			t.Errorf("case %d: Display = %q, want %q", i, got, c.want)
		}
		s.Pop(1)
	}
}

// TestEqualsPrimitives verifies raw comparisons and type mismatches
// settle without consulting hooks.
func TestEqualsPrimitives(t *testing.T) {
	s := vm.NewState()
	defer s.Close()
	ctx := NewContext(s)

	s.PushInteger(3)
	s.PushNumber(3.0)
	s.PushString("3")

	if eq, err := Equals(ctx, 1, 2); err != nil || !eq {
		t.Errorf("3 == 3.0 = %v, %v, want true", eq, err)
	}
	if eq, err := Equals(ctx, 1, 3); err != nil || eq {
		t.Errorf("3 == \"3\" = %v, %v, want false (no cross-type equality)", eq, err)
	}
}
