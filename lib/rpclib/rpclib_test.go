package rpclib

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"

	"github.com/chazu/deneb/bridge"
	"github.com/chazu/deneb/vm"
)

// registerFixture parses the zoo proto and plants it in the module
// registry for the duration of the test.
func registerFixture(t *testing.T) {
	t.Helper()
	fd := loadFixture(t)
	protoFiles.Lock()
	protoFiles.files[fd.GetName()] = fd
	protoFiles.Unlock()
	t.Cleanup(func() {
		protoFiles.Lock()
		delete(protoFiles.files, fd.GetName())
		protoFiles.Unlock()
	})
}

func newRPCContext(t *testing.T) *bridge.Context {
	t.Helper()
	s := vm.NewState()
	t.Cleanup(func() { s.Close() })
	ctx := bridge.NewContext(s)
	Module.Install(ctx)
	return ctx
}

// deadAddr returns an address nothing listens on.
func deadAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := lis.Addr().String()
	lis.Close()
	return addr
}

// dialClient calls rpc.dial and leaves the client at the top of the
// stack.
func dialClient(t *testing.T, ctx *bridge.Context, target string) {
	t.Helper()
	s := ctx.S
	s.GetGlobal("rpc")
	s.RawGetField(-1, "dial")
	s.Remove(-2)
	s.PushString(target)
	if err := bridge.ProtectedCall(ctx, 1, 1); err != nil {
		t.Fatalf("rpc.dial: %v", err)
	}
}

func callMethod(t *testing.T, ctx *bridge.Context, obj int, name string, nargs int, push func(), nresults int) error {
	t.Helper()
	s := ctx.S
	abs := s.AbsIndex(obj)
	s.PushValue(abs)
	s.PushString(name)
	if err := bridge.Index(ctx, -2); err != nil {
		t.Fatalf("resolving %s: %v", name, err)
	}
	s.Remove(-2)
	s.PushValue(abs)
	push()
	return bridge.ProtectedCall(ctx, nargs+1, nresults)
}

// startPetServer serves zoo.PetStore/Lookup over a real listener using
// dynamic messages, echoing the requested name back with fixed extras.
func startPetServer(t *testing.T) string {
	t.Helper()
	fd := loadFixture(t)
	svc := fd.FindService("zoo.PetStore")
	if svc == nil {
		t.Fatal("zoo.PetStore missing from fixture")
	}
	lookup := svc.FindMethodByName("Lookup")
	in, out := lookup.GetInputType(), lookup.GetOutputType()

	sd := grpc.ServiceDesc{
		ServiceName: "zoo.PetStore",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "Lookup",
			Handler: func(_ any, _ context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				req := dynamic.NewMessage(in)
				if err := dec(req); err != nil {
					return nil, err
				}
				resp := dynamic.NewMessage(out)
				resp.SetFieldByName("name", req.GetFieldByName("name"))
				resp.SetFieldByName("age", int32(7))
				resp.SetFieldByName("kind", int32(2))
				return resp, nil
			},
		}},
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := grpc.NewServer()
	srv.RegisterService(&sd, struct{}{})
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

// TestLoadCountsFiles: rpc.load parses a proto file and reports how
// many files it registered.
func TestLoadCountsFiles(t *testing.T) {
	ctx := newRPCContext(t)
	s := ctx.S

	dir := t.TempDir()
	path := filepath.Join(dir, "zoo.proto")
	if err := os.WriteFile(path, []byte(zooProto), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		protoFiles.Lock()
		delete(protoFiles.files, "zoo.proto")
		protoFiles.Unlock()
	})

	s.GetGlobal("rpc")
	s.RawGetField(-1, "load")
	s.Remove(-2)
	s.PushString(path)
	if err := bridge.ProtectedCall(ctx, 1, 1); err != nil {
		t.Fatalf("rpc.load: %v", err)
	}
	if n, _ := s.ToInteger(-1); n != 1 {
		t.Errorf("load reported %d files, want 1", n)
	}
	if findLocalService("zoo.PetStore") == nil {
		t.Error("zoo.PetStore missing from the registry after load")
	}
}

// TestLoadBadFile: a parse failure surfaces as an error and registers
// nothing.
func TestLoadBadFile(t *testing.T) {
	ctx := newRPCContext(t)
	s := ctx.S

	path := filepath.Join(t.TempDir(), "broken.proto")
	if err := os.WriteFile(path, []byte("syntax = \"proto3\"; message {"), 0o644); err != nil {
		t.Fatal(err)
	}

	s.GetGlobal("rpc")
	s.RawGetField(-1, "load")
	s.Remove(-2)
	s.PushString(path)
	err := bridge.ProtectedCall(ctx, 1, 1)
	if err == nil {
		t.Fatal("Expected a parse error")
	}
	if !strings.Contains(err.Error(), "parsing") {
		t.Errorf("error = %q, want a parsing failure", err)
	}
}

// TestResolveMethodLocal resolves against loaded descriptors without
// any connection.
func TestResolveMethodLocal(t *testing.T) {
	registerFixture(t)
	c := &Client{target: "nowhere"}

	md, err := c.resolveMethod("zoo.PetStore/Lookup")
	if err != nil {
		t.Fatalf("resolveMethod: %v", err)
	}
	if md.GetName() != "Lookup" {
		t.Errorf("method = %q, want Lookup", md.GetName())
	}

	if _, err := c.resolveMethod("zoo.PetStore/Missing"); err == nil || !strings.Contains(err.Error(), "method Missing not found in service zoo.PetStore") {
		t.Errorf("error = %v, want a missing-method failure", err)
	}
	if _, err := c.resolveMethod("zoo.Kennel/Lookup"); err == nil || !strings.Contains(err.Error(), "cannot resolve service zoo.Kennel") {
		t.Errorf("error = %v, want an unresolved service", err)
	}
}

// TestResolveMethodFormat rejects names without a service/method split.
func TestResolveMethodFormat(t *testing.T) {
	c := &Client{target: "nowhere"}
	for _, bad := range []string{"nope", "/Lookup", "zoo.PetStore/"} {
		if _, err := c.resolveMethod(bad); err == nil || !strings.Contains(err.Error(), "invalid method format") {
			t.Errorf("resolveMethod(%q) error = %v, want invalid format", bad, err)
		}
	}
}

// TestDialClientObject checks the projected client: type, target
// property, display form, idempotent close.
func TestDialClientObject(t *testing.T) {
	ctx := newRPCContext(t)
	s := ctx.S
	addr := deadAddr(t)

	dialClient(t, ctx, addr)
	if !ClientType.Is(ctx, -1) {
		t.Fatal("dial did not return an rpc.Client")
	}

	s.PushValue(-1)
	s.PushString("target")
	if err := bridge.Index(ctx, -2); err != nil {
		t.Fatalf("reading target: %v", err)
	}
	got, _ := s.ToString(-1)
	if got != addr {
		t.Errorf("target = %q, want %q", got, addr)
	}
	s.Pop(2)

	display, err := bridge.ToDisplay(ctx, -1)
	if err != nil {
		t.Fatalf("ToDisplay: %v", err)
	}
	if display != "rpc.Client "+addr {
		t.Errorf("display = %q, want %q", display, "rpc.Client "+addr)
	}

	for i := 0; i < 2; i++ {
		if err := callMethod(t, ctx, -1, "close", 0, func() {}, 0); err != nil {
			t.Fatalf("close #%d: %v", i+1, err)
		}
	}
}

// TestCallAfterClose: calling through a closed client fails cleanly.
func TestCallAfterClose(t *testing.T) {
	ctx := newRPCContext(t)
	s := ctx.S
	dialClient(t, ctx, deadAddr(t))

	if err := callMethod(t, ctx, -1, "close", 0, func() {}, 0); err != nil {
		t.Fatalf("close: %v", err)
	}
	err := callMethod(t, ctx, -1, "call", 1, func() { s.PushString("zoo.PetStore/Lookup") }, 1)
	var exc *bridge.Exception
	if !errors.As(err, &exc) || exc.Message != "client is closed" {
		t.Errorf("error = %v, want the closed-client message", err)
	}
}

// TestCallStreamingRejected: streaming methods resolve but refuse to
// run.
func TestCallStreamingRejected(t *testing.T) {
	registerFixture(t)
	ctx := newRPCContext(t)
	s := ctx.S
	dialClient(t, ctx, deadAddr(t))

	err := callMethod(t, ctx, -1, "call", 1, func() { s.PushString("zoo.PetStore/Watch") }, 1)
	if err == nil || !strings.Contains(err.Error(), "streaming") {
		t.Errorf("error = %v, want a streaming rejection", err)
	}
}

// TestCallBadFormat surfaces the method-format error through call.
func TestCallBadFormat(t *testing.T) {
	ctx := newRPCContext(t)
	s := ctx.S
	dialClient(t, ctx, deadAddr(t))

	err := callMethod(t, ctx, -1, "call", 1, func() { s.PushString("nope") }, 1)
	if err == nil || !strings.Contains(err.Error(), "invalid method format") {
		t.Errorf("error = %v, want invalid format", err)
	}
}

// TestServicesFallsBackToRegistry: with no reflection on the far end,
// services() lists what rpc.load knows.
func TestServicesFallsBackToRegistry(t *testing.T) {
	registerFixture(t)
	ctx := newRPCContext(t)
	s := ctx.S
	dialClient(t, ctx, deadAddr(t))

	if err := callMethod(t, ctx, -1, "services", 0, func() {}, 1); err != nil {
		t.Fatalf("services: %v", err)
	}
	found := false
	for i := 1; i <= s.RawLen(-1); i++ {
		s.RawGetIndex(-1, int64(i))
		name, _ := s.ToString(-1)
		s.Pop(1)
		if name == "zoo.PetStore" {
			found = true
		}
	}
	if !found {
		t.Error("zoo.PetStore missing from services()")
	}
}

// TestCallEndToEnd runs a unary call against a live in-process server,
// request and response both traveling as tables.
func TestCallEndToEnd(t *testing.T) {
	registerFixture(t)
	addr := startPetServer(t)
	ctx := newRPCContext(t)
	s := ctx.S

	dialClient(t, ctx, addr)
	err := callMethod(t, ctx, -1, "call", 2, func() {
		s.PushString("zoo.PetStore/Lookup")
		s.NewTable()
		s.PushString("rex")
		s.RawSetField(-2, "name")
	}, 1)
	if err != nil {
		t.Fatalf("call: %v", err)
	}

	if got := tableText(t, s, "name"); got != "rex" {
		t.Errorf(`name = %q, want "rex"`, got)
	}
	if got := tableInt(t, s, "age"); got != 7 {
		t.Errorf("age = %d, want 7", got)
	}
	if got := tableText(t, s, "kind"); got != "CAT" {
		t.Errorf(`kind = %q, want "CAT"`, got)
	}
}
