package bridge

import (
	"errors"
	"fmt"
	"os"

	"github.com/chazu/deneb/vm"
)

// Exception is the host-side image of a machine failure: the status of
// the failed protected entry plus the message carried by its error
// object.
type Exception struct {
	Status  vm.Status
	Message string
}

func (e *Exception) Error() string {
	return e.Message
}

// Callback is a host-implemented callable projected into the machine.
// Arguments arrive on the context's stack at indices 1..Top(); results
// are pushed in order and their count returned. A non-nil error becomes
// a raised machine error.
type Callback func(*Context) (int, error)

// ErrorConversion translates failures across the machine's raise
// boundary, in both directions. A strategy is selected per Context;
// Safe is the default. Every boundary crossing goes through exactly one
// of these operations.
type ErrorConversion interface {
	// ErrorToException consumes the single error object a failed
	// protected entry left on the stack, popping exactly one value,
	// and builds the host-side error. When no object is present the
	// status text stands in.
	ErrorToException(ctx *Context, st vm.Status) error

	// AddContext runs op and, when it fails, prepends a breadcrumb to
	// the failure's message.
	AddContext(ctx *Context, breadcrumb string, op func() error) error

	// Alternative runs first; if and only if it fails, the stack is
	// restored to its depth before the attempt and second runs in its
	// place. The error value itself is never inspected.
	Alternative(ctx *Context, first, second func() error) error

	// ProtectCallback adapts a host callable for the machine so its
	// failures become raised machine errors instead of escaping into
	// the machine's call path unconverted.
	ProtectCallback(ctx *Context, fn Callback) vm.GoFunc
}

// ---------------------------------------------------------------------------
// Safe strategy
// ---------------------------------------------------------------------------

// Safe is the default conversion strategy: failures round-trip as
// values in both directions.
type Safe struct{}

func (Safe) ErrorToException(ctx *Context, st vm.Status) error {
	msg := st.String()
	if ctx.S.Top() > 0 {
		if m, ok := ctx.S.ToString(-1); ok {
			msg = m
		} else {
			msg = fmt.Sprintf("(error object is a %s value)", ctx.S.TypeOf(-1))
		}
		ctx.S.Pop(1)
	}
	return &Exception{Status: st, Message: msg}
}

func (Safe) AddContext(ctx *Context, breadcrumb string, op func() error) error {
	err := op()
	if err == nil {
		return nil
	}
	var ex *Exception
	if errors.As(err, &ex) {
		return &Exception{Status: ex.Status, Message: breadcrumb + ": " + ex.Message}
	}
	return fmt.Errorf("%s: %w", breadcrumb, err)
}

func (Safe) Alternative(ctx *Context, first, second func() error) error {
	depth := ctx.S.Top()
	if err := first(); err == nil {
		return nil
	}
	ctx.S.SetTop(depth)
	return second()
}

func (Safe) ProtectCallback(ctx *Context, fn Callback) vm.GoFunc {
	return func(s *vm.State) (int, error) {
		c := ctx
		if s != ctx.S {
			c = ctx.Fork(s)
		}
		return fn(c)
	}
}

// ---------------------------------------------------------------------------
// Unsafe strategy
// ---------------------------------------------------------------------------

// Unsafe is the strategy for call sites where bridging failures are
// known to be impossible: a failed entry aborts the process,
// Alternative only ever takes its first branch, and callbacks pass
// through untouched.
type Unsafe struct{}

func (Unsafe) ErrorToException(ctx *Context, st vm.Status) error {
	msg := st.String()
	if ctx.S.Top() > 0 {
		if m, ok := ctx.S.ToString(-1); ok {
			msg = m
		}
	}
	log.Criticalf("failure in unsafe context: %s", msg)
	os.Exit(1)
	return nil
}

func (Unsafe) AddContext(ctx *Context, breadcrumb string, op func() error) error {
	return op()
}

func (Unsafe) Alternative(ctx *Context, first, second func() error) error {
	return first()
}

func (Unsafe) ProtectCallback(ctx *Context, fn Callback) vm.GoFunc {
	return func(s *vm.State) (int, error) {
		c := ctx
		if s != ctx.S {
			c = ctx.Fork(s)
		}
		return fn(c)
	}
}

// ---------------------------------------------------------------------------
// Helpers over the active strategy
// ---------------------------------------------------------------------------

// ProtectedCall invokes the function below nargs arguments through the
// machine's protected entry and routes any failure through the
// context's conversion. On success the results replace the function
// and arguments; on failure the stack returns to the depth it had
// before the function was pushed. [-(nargs+1), +nresults|+0]
func ProtectedCall(ctx *Context, nargs, nresults int) error {
	if st := ctx.S.ProtectedCall(nargs, nresults, 0); st.Failed() {
		return ctx.Conv.ErrorToException(ctx, st)
	}
	return nil
}

// Alt is Alternative with a result: first's value when it succeeds,
// otherwise second's.
func Alt[T any](ctx *Context, first, second func() (T, error)) (T, error) {
	var out T
	err := ctx.Conv.Alternative(ctx,
		func() error {
			v, err := first()
			if err != nil {
				return err
			}
			out = v
			return nil
		},
		func() error {
			v, err := second()
			if err != nil {
				return err
			}
			out = v
			return nil
		})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
