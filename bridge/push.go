package bridge

import (
	"cmp"
	"slices"
)

// Pusher places one host value of shape T onto the stack as exactly one
// slot. Pushers never fail.
type Pusher[T any] func(*Context, T)

// PushBool pushes a boolean. [-0, +1]
func PushBool(ctx *Context, b bool) {
	ctx.S.PushBoolean(b)
}

// PushInteger pushes an integer number. [-0, +1]
func PushInteger(ctx *Context, n int64) {
	ctx.S.PushInteger(n)
}

// PushFloat pushes a float number. [-0, +1]
func PushFloat(ctx *Context, f float64) {
	ctx.S.PushNumber(f)
}

// PushText pushes a string. [-0, +1]
func PushText(ctx *Context, s string) {
	ctx.S.PushString(s)
}

// PushBinary pushes opaque bytes as a machine string. [-0, +1]
func PushBinary(ctx *Context, b []byte) {
	ctx.S.PushString(string(b))
}

// PushNil pushes nil. [-0, +1]
func PushNil(ctx *Context) {
	ctx.S.PushNil()
}

// PushNilOr lifts a pusher over optional values: nil pushes nil,
// anything else pushes through elem. [-0, +1]
func PushNilOr[T any](elem Pusher[T]) Pusher[*T] {
	return func(ctx *Context, v *T) {
		if v == nil {
			ctx.S.PushNil()
			return
		}
		elem(ctx, *v)
	}
}

// PushSeq builds a pusher for ordered sequences: a table with the
// elements at 1..n, each pushed through elem. [-0, +1]
func PushSeq[T any](elem Pusher[T]) Pusher[[]T] {
	return func(ctx *Context, vs []T) {
		ctx.S.NewTable()
		for i, v := range vs {
			elem(ctx, v)
			ctx.S.RawSetIndex(-2, int64(i+1))
		}
	}
}

// PushMap builds a pusher for mappings. Keys are written in sorted
// order, so traversal of the resulting table is deterministic. [-0, +1]
func PushMap[K cmp.Ordered, V any](key Pusher[K], val Pusher[V]) Pusher[map[K]V] {
	return func(ctx *Context, m map[K]V) {
		ctx.S.NewTable()
		ks := make([]K, 0, len(m))
		for k := range m {
			ks = append(ks, k)
		}
		slices.Sort(ks)
		for _, k := range ks {
			key(ctx, k)
			val(ctx, m[k])
			ctx.S.RawSet(-3)
		}
	}
}
