package bridge

import (
	"github.com/tliron/commonlog"

	"github.com/chazu/deneb/vm"
)

var log = commonlog.GetLogger("deneb.bridge")

// Context carries a machine state together with the error conversion
// strategy active for the current call. Exactly one context drives a
// state at a time; when the machine re-enters host code on another
// state (a thread), the callback runs under a fork of its context.
type Context struct {
	S    *vm.State
	Conv ErrorConversion
}

// NewContext wraps a state with the Safe conversion strategy.
func NewContext(s *vm.State) *Context {
	return &Context{S: s, Conv: Safe{}}
}

// WithConversion returns a context on the same state using a different
// conversion strategy.
func (c *Context) WithConversion(conv ErrorConversion) *Context {
	return &Context{S: c.S, Conv: conv}
}

// Fork returns a context driving another state, usually a thread of
// this one, with the same conversion strategy.
func (c *Context) Fork(s *vm.State) *Context {
	return &Context{S: s, Conv: c.Conv}
}

// Run creates a fresh state, runs fn against it inside a protected
// entry with the Safe conversion, and closes the state again. The
// state never outlives the call; hold results as Go values, not stack
// indices.
func Run[T any](fn func(*Context) (T, error)) (out T, err error) {
	s := vm.NewState()
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()
	return RunWith(s, Safe{}, fn)
}

// RunWith runs fn against an existing state inside a protected entry:
// anything the machine raises while fn runs is caught and converted
// through conv, exactly once. fn gets a fresh stack window and its net
// stack effect is discarded on the way out, so the state's stack depth
// is the same before and after.
func RunWith[T any](s *vm.State, conv ErrorConversion, fn func(*Context) (T, error)) (T, error) {
	ctx := &Context{S: s, Conv: conv}
	var out T
	var ferr error
	s.PushGoFunc(func(*vm.State) (int, error) {
		out, ferr = fn(ctx)
		return 0, nil
	})
	if st := s.ProtectedCall(0, 0, 0); st.Failed() {
		var zero T
		return zero, conv.ErrorToException(ctx, st)
	}
	return out, ferr
}

// RunEither runs fn as a nested protected entry on the context's own
// state, with the context's own conversion. Failures come back as the
// error value; the state stays usable.
func RunEither[T any](ctx *Context, fn func(*Context) (T, error)) (T, error) {
	return RunWith(ctx.S, ctx.Conv, fn)
}
