package bridge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/deneb/vm"
)

// DecodeError reports a peeker failure: the shape that was wanted, the
// type tag that was found, and the path of the failing position inside
// a compound value, outermost segment first.
type DecodeError struct {
	Expected string
	Actual   string
	Path     []string
}

func (e *DecodeError) Error() string {
	tail := "expected " + e.Expected + ", got " + e.Actual
	if len(e.Path) == 0 {
		return tail
	}
	return strings.Join(e.Path, ": ") + ": " + tail
}

func (e *DecodeError) at(segment string) *DecodeError {
	return &DecodeError{
		Expected: e.Expected,
		Actual:   e.Actual,
		Path:     append([]string{segment}, e.Path...),
	}
}

func decodeErr(ctx *Context, idx int, expected string) *DecodeError {
	return &DecodeError{Expected: expected, Actual: ctx.S.TypeOf(idx).String()}
}

// prefixDecode prepends a path segment to a decode failure; other
// errors are wrapped with the segment as text.
func prefixDecode(err error, segment string) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.at(segment)
	}
	return fmt.Errorf("%s: %w", segment, err)
}

// Peeker reads one host value of shape T from a stack position. Peekers
// may fail with a *DecodeError and never disturb the stack.
type Peeker[T any] func(*Context, int) (T, error)

// PeekBool reads a boolean. No coercion: only the machine's boolean
// type qualifies.
func PeekBool(ctx *Context, idx int) (bool, error) {
	if ctx.S.TypeOf(idx) != vm.TypeBoolean {
		return false, decodeErr(ctx, idx, "boolean")
	}
	return ctx.S.ToBoolean(idx), nil
}

// PeekInteger reads an integer. Integer numbers, floats without a
// fractional part in range, and integer-shaped strings qualify;
// everything else fails.
func PeekInteger(ctx *Context, idx int) (int64, error) {
	switch ctx.S.TypeOf(idx) {
	case vm.TypeNumber, vm.TypeString:
		if n, ok := ctx.S.ToInteger(idx); ok {
			return n, nil
		}
	}
	return 0, decodeErr(ctx, idx, "integer")
}

// PeekFloat reads a float. Any number or numeric string qualifies.
func PeekFloat(ctx *Context, idx int) (float64, error) {
	switch ctx.S.TypeOf(idx) {
	case vm.TypeNumber, vm.TypeString:
		if f, ok := ctx.S.ToNumber(idx); ok {
			return f, nil
		}
	}
	return 0, decodeErr(ctx, idx, "number")
}

// PeekText reads a string. Numbers coerce to their rendering; no other
// type does.
func PeekText(ctx *Context, idx int) (string, error) {
	switch ctx.S.TypeOf(idx) {
	case vm.TypeString, vm.TypeNumber:
		s, _ := ctx.S.ToString(idx)
		return s, nil
	}
	return "", decodeErr(ctx, idx, "string")
}

// PeekBinary reads opaque bytes. Same coercions as PeekText.
func PeekBinary(ctx *Context, idx int) ([]byte, error) {
	switch ctx.S.TypeOf(idx) {
	case vm.TypeString, vm.TypeNumber:
		s, _ := ctx.S.ToString(idx)
		return []byte(s), nil
	}
	return nil, decodeErr(ctx, idx, "binary")
}

// PeekNilOr lifts a peeker over optional values: nil (or no value)
// reads as nil, anything else goes through elem.
func PeekNilOr[T any](elem Peeker[T]) Peeker[*T] {
	return func(ctx *Context, idx int) (*T, error) {
		switch ctx.S.TypeOf(idx) {
		case vm.TypeNone, vm.TypeNil:
			return nil, nil
		}
		v, err := elem(ctx, idx)
		if err != nil {
			return nil, err
		}
		return &v, nil
	}
}

// PeekSeq builds a peeker for ordered sequences: the table's elements
// at 1..n decoded through elem. Element failures carry their position
// ("index 4: …").
func PeekSeq[T any](elem Peeker[T]) Peeker[[]T] {
	return func(ctx *Context, idx int) ([]T, error) {
		if ctx.S.TypeOf(idx) != vm.TypeTable {
			return nil, decodeErr(ctx, idx, "sequence")
		}
		n := ctx.S.RawLen(idx)
		out := make([]T, 0, n)
		for k := 1; k <= n; k++ {
			ctx.S.RawGetIndex(idx, int64(k))
			v, err := elem(ctx, -1)
			ctx.S.Pop(1)
			if err != nil {
				return nil, prefixDecode(err, fmt.Sprintf("index %d", k))
			}
			out = append(out, v)
		}
		return out, nil
	}
}

// EachElement visits the sequence at idx one element at a time,
// decoding each only as it is reached. visit reports whether to
// continue; stopping early leaves later elements undecoded.
func EachElement[T any](ctx *Context, idx int, elem Peeker[T], visit func(i int, v T) (bool, error)) error {
	if ctx.S.TypeOf(idx) != vm.TypeTable {
		return decodeErr(ctx, idx, "sequence")
	}
	n := ctx.S.RawLen(idx)
	for k := 1; k <= n; k++ {
		ctx.S.RawGetIndex(idx, int64(k))
		v, err := elem(ctx, -1)
		ctx.S.Pop(1)
		if err != nil {
			return prefixDecode(err, fmt.Sprintf("index %d", k))
		}
		more, err := visit(k, v)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// PeekMap builds a peeker for mappings: every entry of the table at
// idx, keys through key and values through val. Failures carry the key
// as context.
func PeekMap[K comparable, V any](key Peeker[K], val Peeker[V]) Peeker[map[K]V] {
	return func(ctx *Context, idx int) (map[K]V, error) {
		s := ctx.S
		if s.TypeOf(idx) != vm.TypeTable {
			return nil, decodeErr(ctx, idx, "mapping")
		}
		t := s.AbsIndex(idx)
		out := make(map[K]V)
		s.PushNil()
		for s.Next(t) {
			k, err := key(ctx, -2)
			if err != nil {
				s.Pop(2)
				return nil, prefixDecode(err, "key")
			}
			v, err := val(ctx, -1)
			if err != nil {
				s.Pop(2)
				return nil, prefixDecode(err, fmt.Sprintf("key %v", k))
			}
			out[k] = v
			s.Pop(1)
		}
		return out, nil
	}
}

// PeekField decodes one named field of the table at idx. Failures carry
// the field name as context; record peekers compose from field peekers.
func PeekField[T any](ctx *Context, idx int, name string, field Peeker[T]) (T, error) {
	var zero T
	if ctx.S.TypeOf(idx) != vm.TypeTable {
		return zero, decodeErr(ctx, idx, "record")
	}
	ctx.S.RawGetField(idx, name)
	v, err := field(ctx, -1)
	ctx.S.Pop(1)
	if err != nil {
		return zero, prefixDecode(err, fmt.Sprintf("field %q", name))
	}
	return v, nil
}
