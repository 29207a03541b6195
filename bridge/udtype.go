package bridge

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/chazu/deneb/vm"
)

// UDType describes how a host type T is projected into the machine: a
// display name, declared members in order, optional operation hooks and
// optional list semantics. Declare one with DefType; the value is
// immutable afterwards and may serve any number of states.
type UDType[T any] struct {
	name      string
	stringify func(T) string
	eq        func(T, T) bool
	fin       func(T)
	list      *listSpec[T]
	members   []Member[T]
	byName    map[string]int
	tag       string
}

type memberKind uint8

const (
	memberProperty memberKind = iota
	memberPossible
	memberMethod
	memberAlias
	memberStringify
	memberEquality
	memberFinalizer
	memberList
)

// Member is one declared piece of a UDType: a property, possible
// property, method, alias, operation hook or list spec. Construct
// members with the functions below; the zero value is not valid.
type Member[T any] struct {
	kind memberKind
	name string
	doc  string

	// get pushes the member's current value, or pushes nothing and
	// reports false when the current variant lacks it.
	get func(ctx *Context, recv T) bool
	// set decodes the value at idx and returns the updated payload;
	// false means the current variant does not take this member.
	set       func(ctx *Context, recv T, idx int) (T, bool, error)
	hasSetter bool

	method func(ctx *Context, recv T) (int, error)
	path   []any

	stringify func(T) string
	eq        func(T, T) bool
	fin       func(T)
	list      *listSpec[T]
}

type listSpec[T any] struct {
	length  func(T) int
	element func(ctx *Context, recv T, i int)
}

// Property declares a read-only property: reads push the getter's
// result through push.
func Property[T, V any](name, doc string, push Pusher[V], get func(T) V) Member[T] {
	return Member[T]{
		kind: memberProperty,
		name: name,
		doc:  doc,
		get: func(ctx *Context, recv T) bool {
			push(ctx, get(recv))
			return true
		},
	}
}

// WritableProperty declares a read-write property. Writes decode the
// incoming value with peek and replace the payload with the setter's
// result.
func WritableProperty[T, V any](name, doc string, push Pusher[V], get func(T) V, peek Peeker[V], set func(T, V) (T, error)) Member[T] {
	m := Property(name, doc, push, get)
	m.hasSetter = true
	m.set = func(ctx *Context, recv T, idx int) (T, bool, error) {
		v, err := peek(ctx, idx)
		if err != nil {
			var zero T
			return zero, true, err
		}
		next, err := set(recv, v)
		return next, true, err
	}
	return m
}

// PossibleProperty declares a property that only some variants of T
// carry. Reading an absent one yields nil, never an error.
func PossibleProperty[T, V any](name, doc string, push Pusher[V], get func(T) (V, bool)) Member[T] {
	return Member[T]{
		kind: memberPossible,
		name: name,
		doc:  doc,
		get: func(ctx *Context, recv T) bool {
			v, ok := get(recv)
			if !ok {
				return false
			}
			push(ctx, v)
			return true
		},
	}
}

// WritablePossibleProperty is PossibleProperty with a setter. The
// setter reports false when the current variant does not take the
// member; such writes fail as unknown-property writes.
func WritablePossibleProperty[T, V any](name, doc string, push Pusher[V], get func(T) (V, bool), peek Peeker[V], set func(T, V) (T, bool)) Member[T] {
	m := PossibleProperty(name, doc, push, get)
	m.hasSetter = true
	m.set = func(ctx *Context, recv T, idx int) (T, bool, error) {
		v, err := peek(ctx, idx)
		if err != nil {
			var zero T
			return zero, true, err
		}
		next, ok := set(recv, v)
		return next, ok, nil
	}
	return m
}

// Method declares a callable member. Reading it yields a bound
// callable that expects the receiver object as its first argument;
// further arguments follow on the stack.
func Method[T any](name, doc string, fn func(ctx *Context, recv T) (int, error)) Member[T] {
	return Member[T]{kind: memberMethod, name: name, doc: doc, method: fn}
}

// Alias declares a name that resolves through a path of string keys
// and integer indices against the object's own property graph. Aliases
// are views: they hold no storage and are not enumerated.
func Alias[T any](name string, path ...any) Member[T] {
	for _, seg := range path {
		switch seg.(type) {
		case string, int:
		default:
			panic(fmt.Sprintf("bridge: alias %q: path segment %v must be a string or int", name, seg))
		}
	}
	return Member[T]{kind: memberAlias, name: name, path: path}
}

// Stringify declares the display hook used by the tostring protocol.
func Stringify[T any](fn func(T) string) Member[T] {
	return Member[T]{kind: memberStringify, stringify: fn}
}

// Equality declares the equality hook used by the eq protocol.
func Equality[T any](fn func(T, T) bool) Member[T] {
	return Member[T]{kind: memberEquality, eq: fn}
}

// Finalizer declares a hook run when a released object is finalized.
func Finalizer[T any](fn func(T)) Member[T] {
	return Member[T]{kind: memberFinalizer, fin: fn}
}

// List declares list semantics: 1-based integer reads return elements
// of the extracted sequence through elem; out-of-range reads yield nil
// and indexed writes are rejected.
func List[T, E any](elem Pusher[E], extract func(T) []E) Member[T] {
	return Member[T]{kind: memberList, list: &listSpec[T]{
		length: func(recv T) int {
			return len(extract(recv))
		},
		element: func(ctx *Context, recv T, i int) {
			elem(ctx, extract(recv)[i])
		},
	}}
}

// DefType assembles a projection for T. Member names must be unique;
// operation hooks and the list spec may each appear at most once.
// Violations are programmer errors and panic.
func DefType[T any](name string, members ...Member[T]) *UDType[T] {
	ud := &UDType[T]{
		name:   name,
		byName: make(map[string]int),
		tag:    "udtype:" + name + ":" + uuid.NewString(),
	}
	for _, m := range members {
		switch m.kind {
		case memberStringify:
			ud.stringify = m.stringify
		case memberEquality:
			ud.eq = m.eq
		case memberFinalizer:
			ud.fin = m.fin
		case memberList:
			ud.list = m.list
		default:
			if _, dup := ud.byName[m.name]; dup {
				panic(fmt.Sprintf("bridge: type %q declares member %q twice", name, m.name))
			}
			ud.byName[m.name] = len(ud.members)
			ud.members = append(ud.members, m)
		}
	}
	return ud
}

// Name returns the type's display name.
func (ud *UDType[T]) Name() string {
	return ud.name
}

// DocOf returns the doc string of a declared member.
func (ud *UDType[T]) DocOf(name string) (string, bool) {
	i, ok := ud.byName[name]
	if !ok {
		return "", false
	}
	return ud.members[i].doc, true
}

// ---------------------------------------------------------------------------
// Object construction and extraction
// ---------------------------------------------------------------------------

// udCell is the single-owner mutable cell behind each projected object.
// Setters replace val in place, which is how value-semantics payloads
// appear mutable from the machine side.
type udCell[T any] struct {
	ud  *UDType[T]
	val T
}

// Push projects v as a fresh object: opaque payload storage with the
// type's shared dispatch metatable attached. [-0, +1]
func (ud *UDType[T]) Push(ctx *Context, v T) {
	s := ctx.S
	s.NewUserdata(&udCell[T]{ud: ud, val: v})
	ud.pushMeta(ctx)
	s.SetMetatable(-2)
}

// Peek reads back the payload of an object of this type.
func (ud *UDType[T]) Peek(ctx *Context, idx int) (T, error) {
	cell, err := ud.cellAt(ctx, idx)
	if err != nil {
		var zero T
		return zero, err
	}
	return cell.val, nil
}

// Is reports whether the value at idx is an object of this type.
func (ud *UDType[T]) Is(ctx *Context, idx int) bool {
	_, err := ud.cellAt(ctx, idx)
	return err == nil
}

// Pusher adapts Push for composition with sequence and map pushers.
func (ud *UDType[T]) Pusher() Pusher[T] {
	return ud.Push
}

// Peeker adapts Peek for composition with sequence and map peekers.
func (ud *UDType[T]) Peeker() Peeker[T] {
	return ud.Peek
}

func (ud *UDType[T]) cellAt(ctx *Context, idx int) (*udCell[T], error) {
	if payload, ok := ctx.S.Userdata(idx); ok {
		if cell, ok := payload.(*udCell[T]); ok && cell.ud == ud {
			return cell, nil
		}
	}
	return nil, decodeErr(ctx, idx, ud.name)
}

// pushMeta pushes the type's dispatch metatable for the context's
// state, building it on first use. One metatable serves every object
// of the type in that state. [-0, +1]
func (ud *UDType[T]) pushMeta(ctx *Context) {
	s := ctx.S
	if s.RegistryGetField(ud.tag) {
		return
	}
	s.Pop(1)
	ud.buildMeta(ctx)
	s.PushValue(-1)
	s.RegistrySetField(ud.tag)
}

func (ud *UDType[T]) buildMeta(ctx *Context) {
	s := ctx.S
	s.NewTable()

	s.PushString(ud.name)
	s.RawSetField(-2, "__name")

	s.PushGoFunc(ctx.Conv.ProtectCallback(ctx, ud.indexCallback))
	s.RawSetField(-2, "__index")

	s.PushGoFunc(ctx.Conv.ProtectCallback(ctx, ud.newindexCallback))
	s.RawSetField(-2, "__newindex")

	s.PushGoFunc(ctx.Conv.ProtectCallback(ctx, ud.pairsCallback))
	s.RawSetField(-2, "__pairs")

	s.PushGoFunc(ctx.Conv.ProtectCallback(ctx, ud.tostringCallback))
	s.RawSetField(-2, "__tostring")

	if ud.eq != nil {
		s.PushGoFunc(ctx.Conv.ProtectCallback(ctx, ud.eqCallback))
		s.RawSetField(-2, "__eq")
	}
	if ud.fin != nil {
		s.PushGoFunc(ctx.Conv.ProtectCallback(ctx, ud.gcCallback))
		s.RawSetField(-2, "__gc")
	}
}

// ---------------------------------------------------------------------------
// Dispatch callbacks
// ---------------------------------------------------------------------------

// indexCallback reads obj[key]: methods bind, properties invoke their
// getter, aliases resolve, in-range list indices return elements, and
// everything else reads as nil.
func (ud *UDType[T]) indexCallback(ctx *Context) (int, error) {
	cell, err := ud.cellAt(ctx, 1)
	if err != nil {
		return 0, err
	}
	s := ctx.S
	if s.TypeOf(2) == vm.TypeString {
		name, _ := s.ToString(2)
		if i, ok := ud.byName[name]; ok {
			return ud.readMember(ctx, ud.members[i], cell.val)
		}
	}
	if ud.list != nil {
		if n, ok := s.ToInteger(2); ok {
			if n >= 1 && n <= int64(ud.list.length(cell.val)) {
				ud.list.element(ctx, cell.val, int(n-1))
			} else {
				s.PushNil()
			}
			return 1, nil
		}
	}
	s.PushNil()
	return 1, nil
}

func (ud *UDType[T]) readMember(ctx *Context, m Member[T], recv T) (int, error) {
	switch m.kind {
	case memberMethod:
		ud.pushBound(ctx, m)
	case memberAlias:
		var n int
		err := ctx.Conv.AddContext(ctx, "alias '"+m.name+"'", func() error {
			var err error
			n, err = ud.resolveAlias(ctx, m.path)
			return err
		})
		return n, err
	default:
		if !m.get(ctx, recv) {
			ctx.S.PushNil()
		}
	}
	return 1, nil
}

// pushBound pushes a method's bound callable. It expects the receiver
// object as its first argument when called.
func (ud *UDType[T]) pushBound(ctx *Context, m Member[T]) {
	fn := m.method
	ctx.S.PushGoFunc(ctx.Conv.ProtectCallback(ctx, func(c *Context) (int, error) {
		recv, err := ud.Peek(c, 1)
		if err != nil {
			return 0, err
		}
		return fn(c, recv)
	}))
}

// resolveAlias walks the alias path, indexing the current value with
// each segment through the general indexing protocol.
func (ud *UDType[T]) resolveAlias(ctx *Context, path []any) (int, error) {
	s := ctx.S
	s.PushValue(1)
	for _, seg := range path {
		switch k := seg.(type) {
		case string:
			s.PushString(k)
		case int:
			s.PushInteger(int64(k))
		}
		if err := Index(ctx, -2); err != nil {
			s.Pop(1)
			return 0, err
		}
		s.Remove(-2)
	}
	return 1, nil
}

// newindexCallback writes obj[key] = v. Only properties with setters
// accept writes; everything else rejects with a fixed message.
func (ud *UDType[T]) newindexCallback(ctx *Context) (int, error) {
	cell, err := ud.cellAt(ctx, 1)
	if err != nil {
		return 0, err
	}
	s := ctx.S
	if s.TypeOf(2) == vm.TypeString {
		name, _ := s.ToString(2)
		if i, ok := ud.byName[name]; ok {
			m := ud.members[i]
			if !m.hasSetter {
				return 0, fmt.Errorf("'%s' is a read-only property.", name)
			}
			next, applies, err := m.set(ctx, cell.val, 3)
			if err != nil {
				return 0, err
			}
			if !applies {
				return 0, errors.New("Cannot set unknown property.")
			}
			cell.val = next
			return 0, nil
		}
	}
	if ud.list != nil {
		if _, ok := s.ToInteger(2); ok {
			return 0, errors.New("Cannot set a numerical value.")
		}
	}
	return 0, errors.New("Cannot set unknown property.")
}

// pairsCallback starts iteration: it returns the step function, the
// object as iteration state, and nil as the first control value.
func (ud *UDType[T]) pairsCallback(ctx *Context) (int, error) {
	if _, err := ud.cellAt(ctx, 1); err != nil {
		return 0, err
	}
	s := ctx.S
	s.PushGoFunc(ctx.Conv.ProtectCallback(ctx, ud.nextCallback))
	s.PushValue(1)
	s.PushNil()
	return 3, nil
}

// nextCallback steps iteration from the control value: members in
// declaration order, methods as bound callables, absent possible
// properties and aliases skipped. A nil result ends the traversal.
func (ud *UDType[T]) nextCallback(ctx *Context) (int, error) {
	cell, err := ud.cellAt(ctx, 1)
	if err != nil {
		return 0, err
	}
	s := ctx.S
	start := 0
	if s.TypeOf(2) != vm.TypeNil {
		name, ok := s.ToString(2)
		if !ok {
			return 0, errors.New("invalid iteration control value")
		}
		i, known := ud.byName[name]
		if !known {
			return 0, fmt.Errorf("invalid iteration control value '%s'", name)
		}
		start = i + 1
	}
	for i := start; i < len(ud.members); i++ {
		m := ud.members[i]
		switch m.kind {
		case memberAlias:
			continue
		case memberMethod:
			s.PushString(m.name)
			ud.pushBound(ctx, m)
			return 2, nil
		default:
			s.PushString(m.name)
			if m.get(ctx, cell.val) {
				return 2, nil
			}
			s.Pop(1)
		}
	}
	s.PushNil()
	return 1, nil
}

// tostringCallback renders the object through the declared stringify
// hook, falling back to "Name <opaque>".
func (ud *UDType[T]) tostringCallback(ctx *Context) (int, error) {
	cell, err := ud.cellAt(ctx, 1)
	if err != nil {
		return 0, err
	}
	if ud.stringify != nil {
		ctx.S.PushString(ud.stringify(cell.val))
	} else {
		ctx.S.PushString(ud.name + " <opaque>")
	}
	return 1, nil
}

// eqCallback compares two objects with the declared equality hook. A
// second operand of another type compares unequal, never errors.
func (ud *UDType[T]) eqCallback(ctx *Context) (int, error) {
	a, err := ud.cellAt(ctx, 1)
	if err != nil {
		return 0, err
	}
	b, err := ud.cellAt(ctx, 2)
	if err != nil {
		ctx.S.PushBoolean(false)
		return 1, nil
	}
	ctx.S.PushBoolean(ud.eq(a.val, b.val))
	return 1, nil
}

// gcCallback runs the declared finalizer against the payload.
func (ud *UDType[T]) gcCallback(ctx *Context) (int, error) {
	cell, err := ud.cellAt(ctx, 1)
	if err != nil {
		return 0, err
	}
	ud.fin(cell.val)
	return 0, nil
}
