package bridge

import (
	"errors"
	"fmt"

	"github.com/chazu/deneb/vm"
)

// Protocol drivers. These perform indexing, assignment, traversal,
// display and equality the way machine code would, consulting the
// relevant metatable entries. They are what makes projected objects
// and plain tables interchangeable to host code.

// maxChain bounds handler indirection so a cyclic __index or
// __newindex chain raises instead of recursing forever.
const maxChain = 100

// Index reads obj[key] where obj sits at idx and key on top of the
// stack. The key is consumed and the result pushed. [-1, +1]
func Index(ctx *Context, idx int) error {
	return indexChain(ctx, idx, 0)
}

func indexChain(ctx *Context, idx, depth int) error {
	s := ctx.S
	objAbs := s.AbsIndex(idx)
	if depth >= maxChain {
		s.Pop(1)
		return errors.New("'__index' chain too long; possible loop")
	}
	if s.MetaField(objAbs, "__index") {
		if s.TypeOf(-1) == vm.TypeFunction {
			s.PushValue(objAbs)
			s.PushValue(-3)
			if err := ProtectedCall(ctx, 2, 1); err != nil {
				s.Pop(1)
				return err
			}
			s.Remove(-2)
			return nil
		}
		// Chained lookup through the handler value.
		s.Insert(-2)
		if err := indexChain(ctx, -2, depth+1); err != nil {
			s.Pop(1)
			return err
		}
		s.Remove(-2)
		return nil
	}
	if s.TypeOf(objAbs) == vm.TypeTable {
		s.RawGet(objAbs)
		return nil
	}
	s.Pop(1)
	return fmt.Errorf("attempt to index a %s value", s.TypeOf(objAbs))
}

// SetIndex assigns obj[key] = v where obj sits at idx and key, v on
// top of the stack. Both are consumed. [-2, +0]
func SetIndex(ctx *Context, idx int) error {
	return setIndexChain(ctx, idx, 0)
}

func setIndexChain(ctx *Context, idx, depth int) error {
	s := ctx.S
	objAbs := s.AbsIndex(idx)
	if depth >= maxChain {
		s.Pop(2)
		return errors.New("'__newindex' chain too long; possible loop")
	}
	if s.MetaField(objAbs, "__newindex") {
		if s.TypeOf(-1) == vm.TypeFunction {
			s.Insert(-3)
			s.PushValue(objAbs)
			s.Insert(-3)
			return ProtectedCall(ctx, 3, 0)
		}
		// Chained assignment through the handler value.
		s.Insert(-3)
		err := setIndexChain(ctx, -3, depth+1)
		s.Pop(1)
		return err
	}
	if s.TypeOf(objAbs) == vm.TypeTable {
		s.RawSet(objAbs)
		return nil
	}
	s.Pop(2)
	return fmt.Errorf("attempt to index a %s value", s.TypeOf(objAbs))
}

// Pairs traverses the value at idx, invoking visit once per pair with
// the key at -2 and the value at -1. visit must leave both in place;
// returning false stops the traversal early. Values with an iteration
// hook are stepped through it, plain tables directly. [-0, +0]
func Pairs(ctx *Context, idx int, visit func(ctx *Context) (bool, error)) error {
	s := ctx.S
	objAbs := s.AbsIndex(idx)
	if s.MetaField(objAbs, "__pairs") {
		s.PushValue(objAbs)
		if err := ProtectedCall(ctx, 1, 3); err != nil {
			return err
		}
		for {
			s.PushValue(-3)
			s.PushValue(-3)
			s.PushValue(-3)
			if err := ProtectedCall(ctx, 2, 2); err != nil {
				s.Pop(3)
				return err
			}
			if s.TypeOf(-2) == vm.TypeNil {
				s.Pop(5)
				return nil
			}
			cont, err := visit(ctx)
			if err != nil {
				s.Pop(5)
				return err
			}
			if !cont {
				s.Pop(5)
				return nil
			}
			s.Pop(1)
			s.Replace(-2)
		}
	}
	if s.TypeOf(objAbs) != vm.TypeTable {
		return fmt.Errorf("attempt to iterate a %s value", s.TypeOf(objAbs))
	}
	s.PushNil()
	for s.Next(objAbs) {
		cont, err := visit(ctx)
		if err != nil {
			s.Pop(2)
			return err
		}
		if !cont {
			s.Pop(2)
			return nil
		}
		s.Pop(1)
	}
	return nil
}

// ToDisplay renders the value at idx for human consumption: through
// its display hook when it has one, otherwise a literal for simple
// values and an opaque form for the rest. [-0, +0]
func ToDisplay(ctx *Context, idx int) (string, error) {
	s := ctx.S
	objAbs := s.AbsIndex(idx)
	if s.MetaField(objAbs, "__tostring") {
		s.PushValue(objAbs)
		if err := ProtectedCall(ctx, 1, 1); err != nil {
			return "", err
		}
		str, ok := s.ToString(-1)
		s.Pop(1)
		if !ok {
			return "", errors.New("'__tostring' must return a string")
		}
		return str, nil
	}
	switch s.TypeOf(objAbs) {
	case vm.TypeNil:
		return "nil", nil
	case vm.TypeBoolean:
		if s.ToBoolean(objAbs) {
			return "true", nil
		}
		return "false", nil
	case vm.TypeNumber, vm.TypeString:
		str, _ := s.ToString(objAbs)
		return str, nil
	}
	if s.MetaField(objAbs, "__name") {
		name, ok := s.ToString(-1)
		s.Pop(1)
		if ok {
			return name + " <opaque>", nil
		}
	}
	return s.TypeOf(objAbs).String(), nil
}

// Equals compares the values at a and b: raw equality first, then the
// equality hook when both operands share a type that carries one.
// [-0, +0]
func Equals(ctx *Context, a, b int) (bool, error) {
	s := ctx.S
	aa := s.AbsIndex(a)
	bb := s.AbsIndex(b)
	if s.RawEqual(aa, bb) {
		return true, nil
	}
	t := s.TypeOf(aa)
	if t != s.TypeOf(bb) {
		return false, nil
	}
	if t != vm.TypeTable && t != vm.TypeUserdata {
		return false, nil
	}
	if !s.MetaField(aa, "__eq") && !s.MetaField(bb, "__eq") {
		return false, nil
	}
	s.PushValue(aa)
	s.PushValue(bb)
	if err := ProtectedCall(ctx, 2, 1); err != nil {
		return false, err
	}
	res := s.ToBoolean(-1)
	s.Pop(1)
	return res, nil
}
