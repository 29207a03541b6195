package bridge

import (
	"errors"
	"testing"

	"github.com/chazu/deneb/vm"
)

var mathxModule = Module{
	Name: "mathx",
	Doc:  "arithmetic helpers",
	Funcs: []Fn{
		{Name: "add", Doc: "sum of two integers", F: func(ctx *Context) (int, error) {
			a, err := PeekInteger(ctx, 1)
			if err != nil {
				return 0, err
			}
			b, err := PeekInteger(ctx, 2)
			if err != nil {
				return 0, err
			}
			PushInteger(ctx, a+b)
			return 1, nil
		}},
		{Name: "fail", F: func(ctx *Context) (int, error) {
			return 0, errors.New("deliberate failure")
		}},
	},
}

// TestInstallModule verifies the module lands as a global table whose
// functions run through the protected trampoline.
func TestInstallModule(t *testing.T) {
	s := vm.NewState()
	defer s.Close()
	ctx := NewContext(s)

	mathxModule.Install(ctx)

	s.GetGlobal("mathx")
	if s.TypeOf(-1) != vm.TypeTable {
		t.Fatalf("Global mathx = %v, want table", s.TypeOf(-1))
	}
	s.RawGetField(-1, "add")
	if s.TypeOf(-1) != vm.TypeFunction {
		t.Fatalf("mathx.add = %v, want function", s.TypeOf(-1))
	}
	s.PushInteger(30)
	s.PushInteger(12)
	if err := ProtectedCall(ctx, 2, 1); err != nil {
		t.Fatalf("mathx.add: %v", err)
	}
	if v, _ := s.ToInteger(-1); v != 42 {
		t.Errorf("add(30, 12) = %d, want 42", v)
	}
	s.Pop(2)
}

// TestModuleArgumentFailure verifies decode failures inside a module
// function surface with their path through the raise boundary.
func TestModuleArgumentFailure(t *testing.T) {
	s := vm.NewState()
	defer s.Close()
	ctx := NewContext(s)

	mathxModule.Install(ctx)

	s.GetGlobal("mathx")
	s.RawGetField(-1, "add")
	s.PushInteger(1)
	s.PushBoolean(true)
	err := ProtectedCall(ctx, 2, 1)
	var ex *Exception
	if !errors.As(err, &ex) {
		t.Fatalf("Expected *Exception, got %T (%v)", err, err)
	}
	if ex.Message != "expected integer, got boolean" {
		t.Errorf("Message = %q, want %q", ex.Message, "expected integer, got boolean")
	}
	s.Pop(1)
}

// TestModuleFailurePropagates verifies an erroring function fails the
// protected call with its message.
func TestModuleFailurePropagates(t *testing.T) {
	s := vm.NewState()
	defer s.Close()
	ctx := NewContext(s)

	mathxModule.Install(ctx)

	s.GetGlobal("mathx")
	s.RawGetField(-1, "fail")
	err := ProtectedCall(ctx, 0, 0)
	if err == nil || err.Error() != "deliberate failure" {
		t.Errorf("fail() = %v, want the deliberate failure", err)
	}
	s.Pop(1)
}

// TestModuleDocOf verifies function doc strings are recoverable.
func TestModuleDocOf(t *testing.T) {
	doc, ok := mathxModule.DocOf("add")
	if !ok || doc != "sum of two integers" {
		t.Errorf("DocOf(add) = %q, %v", doc, ok)
	}
	if _, ok := mathxModule.DocOf("missing"); ok {
		t.Error("DocOf must reject unknown functions")
	}
}
