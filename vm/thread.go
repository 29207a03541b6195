package vm

// coroutine is the rendezvous between a thread's body goroutine and
// whoever resumes it. Exactly one side runs at a time: the resumer
// blocks in Resume while the body runs, and the body blocks in Yield
// (or has finished) while the resumer runs.
type coroutine struct {
	toBody   chan int
	fromBody chan coSignal
	started  bool
	dead     bool
	running  bool
}

type coSignal struct {
	status Status
	nres   int
}

// NewThread creates a lightweight thread sharing this state's globals,
// registry and finalizer queue, pushes it, and returns it. The thread
// has its own stack: push a function and arguments onto it, then drive
// it with Resume. [-0, +1]
func (s *State) NewThread() *State {
	t := &State{
		id:     s.shared.main.id,
		frames: []frame{{base: 0}},
		shared: s.shared,
		co: &coroutine{
			toBody:   make(chan int),
			fromBody: make(chan coSignal),
		},
	}
	s.push(t)
	return t
}

// IsThread reports whether this state is a thread rather than a main
// state.
func (s *State) IsThread() bool {
	return s.co != nil
}

// Resumable reports whether Resume may be called: the thread is not
// dead and not currently running.
func (t *State) Resumable() bool {
	return t.co != nil && !t.co.dead && !t.co.running
}

// Resume starts or continues the thread, handing it the nargs values
// on top of the thread's stack. It blocks until the body yields,
// returns, or fails, and reports the status together with the number
// of values the body left on the thread's stack (yielded values, final
// results, or the single error object).
//
// The first Resume calls the function pushed beneath the arguments;
// later Resumes return from the body's pending Yield.
func (t *State) Resume(nargs int) (Status, int) {
	co := t.co
	if co == nil {
		panic(internalError("vm: resume on a main state"))
	}
	if co.running {
		panic(internalError("vm: thread is already running"))
	}
	if co.dead {
		t.push("cannot resume dead thread")
		return StatusRuntimeError, 1
	}
	if !co.started && t.Top() < nargs+1 {
		panic(internalError("vm: resume needs a function beneath its arguments"))
	}

	co.running = true
	if !co.started {
		co.started = true
		go t.runBody(nargs)
	} else {
		co.toBody <- nargs
	}
	sig := <-co.fromBody
	co.running = false
	if sig.status != StatusYield {
		co.dead = true
	}
	return sig.status, sig.nres
}

// runBody drives the thread function to completion in the thread's own
// goroutine. The protected call keeps raised errors on the thread's
// stack where the resumer can read them.
func (t *State) runBody(nargs int) {
	st := t.ProtectedCall(nargs, MultipleReturns, 0)
	t.co.fromBody <- coSignal{status: st, nres: t.Top()}
}

// Yield suspends the thread, leaving the top nresults values on the
// thread's stack for the resumer. It returns when the thread is next
// resumed, reporting how many values the resumer pushed on top. Yield
// is only meaningful inside a resumed thread body.
func (t *State) Yield(nresults int) int {
	co := t.co
	if co == nil {
		panic(internalError("vm: yield outside a thread"))
	}
	co.fromBody <- coSignal{status: StatusYield, nres: nresults}
	return <-co.toBody
}
