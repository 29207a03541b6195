package vm

import (
	"fmt"
	"sync"
)

// maxStack bounds the operand stack of a single state. Exceeding it
// raises a memory error inside protected calls.
const maxStack = 1_000_000

// State is one thread of execution: an operand stack plus the frame
// bookkeeping for host function calls. Main states own the registry,
// the globals table and the finalizer queue; threads created with
// NewThread share them.
//
// A State is not safe for concurrent use. One goroutine drives one
// state at a time; wrap access in external synchronization if several
// goroutines must share it.
type State struct {
	id     string
	stack  []value
	frames []frame
	shared *shared
	co     *coroutine
	closed bool
}

// frame records where a host function's stack window begins. base is
// the absolute slot of the function's first argument.
type frame struct {
	base int
}

// shared holds everything common to a main state and its threads.
type shared struct {
	registry  registry
	globals   *table
	main      *State
	pending   []*userdata
	pendingMu sync.Mutex
}

// internalError marks a stack-discipline or API-misuse violation.
// These are programmer errors: they are never converted to statuses
// and deliberately cross protected calls unchanged.
type internalError string

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// NewState creates a fresh main state with empty globals and registry.
// The caller owns it and must Close it.
func NewState() *State {
	s := &State{
		frames: []frame{{base: 0}},
	}
	s.shared = &shared{globals: newTable(), main: s}
	s.shared.registry.init()
	registerState(s)
	return s
}

// Close tears the state down: pending finalizers run (including those
// for userdata still held by live references), live references are
// reported, and the state is removed from the open-state table.
// Closing a thread state is an error; close the main state instead.
func (s *State) Close() error {
	if s.co != nil {
		return fmt.Errorf("vm: close called on a thread of state %s", s.shared.main.id)
	}
	if s.closed {
		return nil
	}
	s.closed = true

	s.shared.registry.queueAllFinalizable(s.shared)
	ran, st := s.runFinalizers(0)

	if live := s.shared.registry.live(); live > 0 {
		log.Warningf("state %s closed with %d live references", s.id, live)
	}
	unregisterState(s)

	if st == StatusFinalizerError {
		return fmt.Errorf("vm: state %s close: %s (%d finalizers ran)", s.id, st, ran)
	}
	return nil
}

// ID returns the state's unique identifier. Threads share the id of
// their main state.
func (s *State) ID() string {
	return s.id
}

// ---------------------------------------------------------------------------
// Stack discipline
// ---------------------------------------------------------------------------

func (s *State) curBase() int {
	return s.frames[len(s.frames)-1].base
}

// push appends one value, raising a memory error when the stack limit
// is hit.
func (s *State) push(v value) {
	if len(s.stack) >= maxStack {
		panic(raised{val: "stack overflow", status: StatusMemoryError})
	}
	s.stack = append(s.stack, v)
}

func (s *State) pop() value {
	if len(s.stack) <= s.curBase() {
		panic(internalError("vm: pop on empty frame"))
	}
	v := s.stack[len(s.stack)-1]
	s.stack[len(s.stack)-1] = nil
	s.stack = s.stack[:len(s.stack)-1]
	return v
}

// absIndex resolves idx to an absolute slot. Valid indices address an
// occupied slot of the current frame.
func (s *State) absIndex(idx int) int {
	base := s.curBase()
	switch {
	case idx > 0:
		i := base + idx - 1
		if i >= len(s.stack) {
			panic(internalError(fmt.Sprintf("vm: unacceptable index %d (top = %d)", idx, s.Top())))
		}
		return i
	case idx < 0:
		i := len(s.stack) + idx
		if i < base {
			panic(internalError(fmt.Sprintf("vm: unacceptable index %d (top = %d)", idx, s.Top())))
		}
		return i
	default:
		panic(internalError("vm: index 0 is not valid"))
	}
}

// valueAt reads the slot at idx. Positive indices past the top are
// acceptable and report valid=false rather than panicking, so type
// probes can distinguish "no value".
func (s *State) valueAt(idx int) (v value, valid bool) {
	base := s.curBase()
	if idx > 0 {
		i := base + idx - 1
		if i >= len(s.stack) {
			if i >= maxStack {
				panic(internalError(fmt.Sprintf("vm: unacceptable index %d", idx)))
			}
			return nil, false
		}
		return s.stack[i], true
	}
	return s.stack[s.absIndex(idx)], true
}

// Top returns the number of occupied slots in the current frame.
// Because indices are 1-based this is also the index of the topmost
// slot; 0 means the frame is empty.
func (s *State) Top() int {
	return len(s.stack) - s.curBase()
}

// AbsIndex converts an index into an equivalent absolute (positive)
// index that survives later pushes and pops.
func (s *State) AbsIndex(idx int) int {
	if idx > 0 {
		return idx
	}
	return s.Top() + idx + 1
}

// SetTop grows or truncates the frame to idx slots; new slots are nil.
// [-?, +?]
func (s *State) SetTop(idx int) {
	base := s.curBase()
	var target int
	if idx >= 0 {
		target = base + idx
		if target > maxStack {
			panic(raised{val: "stack overflow", status: StatusMemoryError})
		}
	} else {
		target = len(s.stack) + idx + 1
		if target < base {
			panic(internalError(fmt.Sprintf("vm: set top %d below frame", idx)))
		}
	}
	s.setTopAbs(target)
}

func (s *State) setTopAbs(target int) {
	for len(s.stack) < target {
		s.stack = append(s.stack, nil)
	}
	if target < len(s.stack) {
		clear(s.stack[target:])
		s.stack = s.stack[:target]
	}
}

// Pop removes the top n slots. [-n, +0]
func (s *State) Pop(n int) {
	s.SetTop(-n - 1)
}

// PushValue pushes a copy of the slot at idx. [-0, +1]
func (s *State) PushValue(idx int) {
	v, _ := s.valueAt(idx)
	s.push(v)
}

// Insert moves the top value into idx, shifting slots above it up.
// [-1, +1]
func (s *State) Insert(idx int) {
	i := s.absIndex(idx)
	top := len(s.stack) - 1
	v := s.stack[top]
	copy(s.stack[i+1:], s.stack[i:top])
	s.stack[i] = v
}

// Remove deletes the slot at idx, shifting slots above it down. [-1, +0]
func (s *State) Remove(idx int) {
	i := s.absIndex(idx)
	copy(s.stack[i:], s.stack[i+1:])
	s.stack[len(s.stack)-1] = nil
	s.stack = s.stack[:len(s.stack)-1]
}

// Replace pops the top value and writes it into idx. [-1, +0]
func (s *State) Replace(idx int) {
	i := s.absIndex(idx)
	s.stack[i] = s.pop()
}

// CheckStack reports whether n more slots can be pushed.
func (s *State) CheckStack(n int) bool {
	return len(s.stack)+n <= maxStack
}

// ---------------------------------------------------------------------------
// Pushing primitives
// ---------------------------------------------------------------------------

// PushNil pushes nil. [-0, +1]
func (s *State) PushNil() { s.push(nil) }

// PushBoolean pushes a boolean. [-0, +1]
func (s *State) PushBoolean(b bool) { s.push(b) }

// PushInteger pushes an integer number. [-0, +1]
func (s *State) PushInteger(i int64) { s.push(i) }

// PushNumber pushes a float number. [-0, +1]
func (s *State) PushNumber(f float64) { s.push(f) }

// PushString pushes a string. Strings are byte strings; arbitrary
// binary is fine. [-0, +1]
func (s *State) PushString(str string) { s.push(str) }

// PushGoFunc pushes a host function. [-0, +1]
func (s *State) PushGoFunc(fn GoFunc) {
	s.push(&goFunction{fn: fn})
}

// ---------------------------------------------------------------------------
// Reading slots
// ---------------------------------------------------------------------------

// TypeOf reports the type of the slot at idx, or TypeNone past the top.
func (s *State) TypeOf(idx int) TypeTag {
	v, valid := s.valueAt(idx)
	if !valid {
		return TypeNone
	}
	return typeOf(v)
}

// IsInteger reports whether the slot holds a number of integer subtype.
func (s *State) IsInteger(idx int) bool {
	v, _ := s.valueAt(idx)
	_, ok := v.(int64)
	return ok
}

// ToBoolean converts the slot using the machine truth rule: everything
// but nil and false is true.
func (s *State) ToBoolean(idx int) bool {
	v, _ := s.valueAt(idx)
	return isTruthy(v)
}

// ToInteger converts the slot to an integer. Integral floats and
// integer-shaped strings convert; everything else reports false.
func (s *State) ToInteger(idx int) (int64, bool) {
	v, _ := s.valueAt(idx)
	return toInteger(v)
}

// ToNumber converts the slot to a float. Numeric strings convert.
func (s *State) ToNumber(idx int) (float64, bool) {
	v, _ := s.valueAt(idx)
	return toNumber(v)
}

// ToString converts the slot to a string. Numbers convert; no
// metamethod is consulted.
func (s *State) ToString(idx int) (string, bool) {
	v, _ := s.valueAt(idx)
	return toString(v)
}

// RawLen reports the length of a string or the array-part border of a
// table, and 0 for everything else.
func (s *State) RawLen(idx int) int {
	switch v, _ := s.valueAt(idx); v := v.(type) {
	case string:
		return len(v)
	case *table:
		return v.length()
	default:
		return 0
	}
}

// RawEqual compares two slots without metamethods.
func (s *State) RawEqual(a, b int) bool {
	av, _ := s.valueAt(a)
	bv, _ := s.valueAt(b)
	return rawEqual(av, bv)
}
