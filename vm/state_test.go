package vm

import "testing"

// TestStackPushPopTop verifies basic stack discipline: pushes grow the
// stack, Pop shrinks it, and Top tracks the count.
func TestStackPushPopTop(t *testing.T) {
	s := NewState()
	defer s.Close()

	if s.Top() != 0 {
		t.Fatalf("Expected empty stack, got top %d", s.Top())
	}
	s.PushInteger(1)
	s.PushString("two")
	s.PushBoolean(true)
	if s.Top() != 3 {
		t.Fatalf("Expected top 3, got %d", s.Top())
	}
	s.Pop(2)
	if s.Top() != 1 {
		t.Fatalf("Expected top 1 after Pop(2), got %d", s.Top())
	}
	if v, ok := s.ToInteger(1); !ok || v != 1 {
		t.Errorf("Expected 1 at bottom, got %v (ok=%v)", v, ok)
	}
}

// TestStackIndexing verifies positive, negative and absolute indexing
// agree on the same slots.
func TestStackIndexing(t *testing.T) {
	s := NewState()
	defer s.Close()

	s.PushInteger(10)
	s.PushInteger(20)
	s.PushInteger(30)

	if v, _ := s.ToInteger(-1); v != 30 {
		t.Errorf("Expected 30 at -1, got %d", v)
	}
	if v, _ := s.ToInteger(-3); v != 10 {
		t.Errorf("Expected 10 at -3, got %d", v)
	}
	if got := s.AbsIndex(-1); got != 3 {
		t.Errorf("AbsIndex(-1) = %d, want 3", got)
	}
	if got := s.AbsIndex(2); got != 2 {
		t.Errorf("AbsIndex(2) = %d, want 2", got)
	}
}

// TestSetTopGrowsAndTruncates verifies SetTop pads with nil on growth
// and clears on truncation.
func TestSetTopGrowsAndTruncates(t *testing.T) {
	s := NewState()
	defer s.Close()

	s.PushInteger(1)
	s.SetTop(3)
	if s.Top() != 3 {
		t.Fatalf("Expected top 3, got %d", s.Top())
	}
	if s.TypeOf(2) != TypeNil || s.TypeOf(3) != TypeNil {
		t.Errorf("Expected nil padding, got %v and %v", s.TypeOf(2), s.TypeOf(3))
	}
	s.SetTop(0)
	if s.Top() != 0 {
		t.Errorf("Expected empty stack, got top %d", s.Top())
	}
}

// TestInsertRemoveReplace verifies the slot-shuffling operations.
func TestInsertRemoveReplace(t *testing.T) {
	s := NewState()
	defer s.Close()

	s.PushInteger(1)
	s.PushInteger(2)
	s.PushInteger(3)
	s.Insert(1) // 3 1 2
	if v, _ := s.ToInteger(1); v != 3 {
		t.Errorf("After Insert: expected 3 at 1, got %d", v)
	}
	s.Remove(1) // 1 2
	if v, _ := s.ToInteger(1); v != 1 {
		t.Errorf("After Remove: expected 1 at 1, got %d", v)
	}
	s.PushInteger(9)
	s.Replace(1) // 9 2
	if v, _ := s.ToInteger(1); v != 9 {
		t.Errorf("After Replace: expected 9 at 1, got %d", v)
	}
	if s.Top() != 2 {
		t.Errorf("Expected top 2, got %d", s.Top())
	}
}

// TestTypeOf verifies type tags for every value kind plus TypeNone past
// the top.
func TestTypeOf(t *testing.T) {
	s := NewState()
	defer s.Close()

	s.PushNil()
	s.PushBoolean(false)
	s.PushInteger(5)
	s.PushNumber(2.5)
	s.PushString("s")
	s.NewTable()
	s.PushGoFunc(func(*State) (int, error) { return 0, nil })
	s.NewUserdata(nil)

	want := []TypeTag{TypeNil, TypeBoolean, TypeNumber, TypeNumber, TypeString, TypeTable, TypeFunction, TypeUserdata}
	for i, w := range want {
		if got := s.TypeOf(i + 1); got != w {
			t.Errorf("TypeOf(%d) = %v, want %v", i+1, got, w)
		}
	}
	if got := s.TypeOf(100); got != TypeNone {
		t.Errorf("TypeOf past top = %v, want TypeNone", got)
	}
	if !s.IsInteger(3) {
		t.Errorf("Expected integer subtype at 3")
	}
	if s.IsInteger(4) {
		t.Errorf("Expected float subtype at 4")
	}
}

// TestNumericConversions verifies the conversion rules: integral floats
// and numeric strings convert to integers, fractional values do not.
func TestNumericConversions(t *testing.T) {
	s := NewState()
	defer s.Close()

	s.PushInteger(42)
	s.PushNumber(3.0)
	s.PushNumber(3.5)
	s.PushString("17")
	s.PushString("2.25")
	s.PushString("nope")

	if v, ok := s.ToInteger(1); !ok || v != 42 {
		t.Errorf("ToInteger(42) = %d, %v", v, ok)
	}
	if v, ok := s.ToInteger(2); !ok || v != 3 {
		t.Errorf("ToInteger(3.0) = %d, %v; want 3, true", v, ok)
	}
	if _, ok := s.ToInteger(3); ok {
		t.Errorf("ToInteger(3.5) succeeded, want failure")
	}
	if v, ok := s.ToInteger(4); !ok || v != 17 {
		t.Errorf("ToInteger(\"17\") = %d, %v", v, ok)
	}
	if v, ok := s.ToNumber(5); !ok || v != 2.25 {
		t.Errorf("ToNumber(\"2.25\") = %v, %v", v, ok)
	}
	if _, ok := s.ToNumber(6); ok {
		t.Errorf("ToNumber(\"nope\") succeeded, want failure")
	}
}

// TestToStringRendering verifies number-to-string coercion, including
// the trailing ".0" float marker.
func TestToStringRendering(t *testing.T) {
	s := NewState()
	defer s.Close()

	s.PushInteger(42)
	s.PushNumber(3.0)
	s.PushNumber(2.5)
	s.PushString("hi")
	s.PushBoolean(true)

	cases := []struct {
		idx  int
		want string
		ok   bool
	}{
		{1, "42", true},
		{2, "3.0", true},
		{3, "2.5", true},
		{4, "hi", true},
		{5, "", false},
	}
	for _, c := range cases {
		got, ok := s.ToString(c.idx)
		if ok != c.ok || got != c.want {
			t.Errorf("ToString(%d) = %q, %v; want %q, %v", c.idx, got, ok, c.want, c.ok)
		}
	}
}

// TestToBooleanTruthRule verifies only nil and false are falsy.
func TestToBooleanTruthRule(t *testing.T) {
	s := NewState()
	defer s.Close()

	s.PushNil()
	s.PushBoolean(false)
	s.PushInteger(0)
	s.PushString("")

	if s.ToBoolean(1) || s.ToBoolean(2) {
		t.Errorf("nil and false must be falsy")
	}
	if !s.ToBoolean(3) || !s.ToBoolean(4) {
		t.Errorf("0 and empty string must be truthy")
	}
}

// TestStateTableTracksOpenStates verifies the open-state table counts
// states through their lifecycle.
func TestStateTableTracksOpenStates(t *testing.T) {
	before := OpenStates()
	s := NewState()
	if OpenStates() != before+1 {
		t.Errorf("Expected %d open states, got %d", before+1, OpenStates())
	}
	if s.ID() == "" {
		t.Errorf("Expected a state id")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if OpenStates() != before {
		t.Errorf("Expected %d open states after close, got %d", before, OpenStates())
	}
}
