package bridge

import (
	"fmt"

	"github.com/chazu/deneb/vm"
)

// Reference is a handle to a machine value rooted in the registry,
// valid until released. It is the only sanctioned way to hold a value
// across calls; stack indices die when control returns to the machine.
type Reference vm.Ref

// Sentinels re-exported from the machine so callers can branch with
// errors.Is without importing vm.
var (
	ErrInvalidReference = vm.ErrInvalidRef
	ErrDoubleRelease    = vm.ErrDoubleRelease
)

// NewReference pops the stack top and roots it, returning its handle.
// The caller owns the reference and must release it. [-1, +0]
func NewReference(ctx *Context) Reference {
	return Reference(ctx.S.CreateRef())
}

// PushReference pushes the referenced value. A released or never-issued
// reference reports ErrInvalidReference and pushes nothing. [-0, +1|+0]
func PushReference(ctx *Context, ref Reference) error {
	if err := ctx.S.PushRef(vm.Ref(ref)); err != nil {
		return fmt.Errorf("push reference %d: %w", ref, err)
	}
	return nil
}

// ReleaseReference unroots the referenced value. Releasing twice is a
// double free and reports ErrDoubleRelease rather than being silently
// ignored.
func ReleaseReference(ctx *Context, ref Reference) error {
	if err := ctx.S.ReleaseRef(vm.Ref(ref)); err != nil {
		return fmt.Errorf("release reference %d: %w", ref, err)
	}
	return nil
}
