package vm

import "fmt"

// MultipleReturns asks a call to keep every result the callee produced.
const MultipleReturns = -1

// GoFunc is a host-implemented callable. Arguments arrive on the stack
// in direct order at indices 1..Top(); results are pushed in direct
// order and their count returned. Returning a non-nil error is the
// raise sentinel: the machine turns it into a raised error whose object
// is the error's message.
type GoFunc func(s *State) (int, error)

// raised is the panic payload of the machine's non-local error
// transfer. It never escapes a protected call.
type raised struct {
	val    value
	status Status
}

// ---------------------------------------------------------------------------
// Raising
// ---------------------------------------------------------------------------

// Raise pops the stack top and raises it as the error object. It never
// returns normally. [-1, +0]
func (s *State) Raise() {
	panic(raised{val: s.pop(), status: StatusRuntimeError})
}

// RaiseString raises a runtime error carrying the given message.
func (s *State) RaiseString(msg string) {
	panic(raised{val: msg, status: StatusRuntimeError})
}

// ---------------------------------------------------------------------------
// Calling
// ---------------------------------------------------------------------------

// Call invokes the function at the top of the stack minus nargs, with
// the nargs values above it as arguments. Function and arguments are
// consumed; results are pushed, adjusted to nresults unless nresults is
// MultipleReturns. Raised errors propagate; use ProtectedCall to catch
// them. [-(nargs+1), +nresults]
func (s *State) Call(nargs, nresults int) {
	if nargs < 0 || s.Top() < nargs+1 {
		panic(internalError("vm: not enough values on the stack for call"))
	}
	if nresults < 0 && nresults != MultipleReturns {
		panic(internalError("vm: negative result count"))
	}
	fnAbs := len(s.stack) - nargs - 1
	fv := s.stack[fnAbs]
	f, ok := fv.(*goFunction)
	if !ok {
		s.RaiseString(fmt.Sprintf("attempt to call a %s value", typeOf(fv)))
	}

	s.frames = append(s.frames, frame{base: fnAbs + 1})
	n, err := f.fn(s)
	if err != nil {
		panic(raised{val: err.Error(), status: StatusRuntimeError})
	}
	if n < 0 || n > s.Top() {
		panic(internalError(fmt.Sprintf("vm: function returned %d results with %d values in frame", n, s.Top())))
	}

	// Move the top n results down over the function slot, then adjust
	// the count the caller asked for.
	copy(s.stack[fnAbs:], s.stack[len(s.stack)-n:])
	s.setTopAbs(fnAbs + n)
	s.frames = s.frames[:len(s.frames)-1]
	if nresults != MultipleReturns {
		s.setTopAbs(fnAbs + nresults)
	}
}

// ProtectedCall is Call with the raise boundary: any error raised while
// running is caught here, the stack is restored to its pre-call depth
// (function and arguments consumed) and exactly one error object is
// pushed in their place. The returned status tells apart runtime,
// memory and handler failures.
//
// If errHandler is nonzero it indexes a function sitting below the
// called function; on failure it is invoked with the error object and
// its result replaces the object. A handler that itself raises yields
// StatusHandlerError. [-(nargs+1), +nresults|+1]
func (s *State) ProtectedCall(nargs, nresults, errHandler int) (st Status) {
	if nargs < 0 || s.Top() < nargs+1 {
		panic(internalError("vm: not enough values on the stack for call"))
	}
	fnAbs := len(s.stack) - nargs - 1
	handlerAbs := -1
	if errHandler != 0 {
		handlerAbs = s.absIndex(errHandler)
		if handlerAbs >= fnAbs {
			panic(internalError("vm: error handler must be pushed before the function"))
		}
	}
	savedFrames := len(s.frames)

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		rv := asRaised(r)
		s.frames = s.frames[:savedFrames]
		s.setTopAbs(fnAbs)
		st = rv.status
		errObj := rv.val
		if handlerAbs >= 0 && st != StatusMemoryError {
			errObj, st = s.applyHandler(handlerAbs, errObj, st)
		}
		s.push(errObj)
	}()

	s.Call(nargs, nresults)
	return StatusOK
}

// asRaised normalizes a recovered panic value. Machine raises pass
// through; internal assertions re-panic so misuse stays loud; anything
// else came out of a host callback and becomes a runtime error.
func asRaised(r any) raised {
	switch r := r.(type) {
	case raised:
		return r
	case internalError:
		panic(r)
	default:
		return raised{val: fmt.Sprint(r), status: StatusRuntimeError}
	}
}

// applyHandler runs the error handler over the error object, itself
// protected. A failing handler replaces the outcome with
// StatusHandlerError and the conventional message.
func (s *State) applyHandler(handlerAbs int, errObj value, st Status) (value, Status) {
	h := s.stack[handlerAbs]
	savedTop := len(s.stack)
	savedFrames := len(s.frames)

	res := errObj
	ok := func() (ok bool) {
		defer func() {
			if r := recover(); r != nil {
				if _, isInternal := r.(internalError); isInternal {
					panic(r)
				}
				ok = false
			}
		}()
		s.push(h)
		s.push(errObj)
		s.Call(1, 1)
		res = s.pop()
		return true
	}()
	if !ok {
		s.frames = s.frames[:savedFrames]
		s.setTopAbs(savedTop)
		return "error in error handling", StatusHandlerError
	}
	return res, st
}
