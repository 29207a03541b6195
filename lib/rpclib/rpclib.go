// Package rpclib exposes gRPC to embedded programs. Proto files loaded
// through rpc.load feed a process-wide descriptor registry; clients made
// by rpc.dial resolve methods there first and fall back to server
// reflection when the registry has no answer.
package rpclib

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"
	"github.com/jhump/protoreflect/grpcreflect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	rpb "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"

	"github.com/chazu/deneb/bridge"
	"github.com/chazu/deneb/vm"
)

// protoFiles holds every descriptor rpc.load has parsed, keyed by file
// name. Shared across states on purpose: descriptors are immutable.
var protoFiles = struct {
	sync.RWMutex
	files map[string]*desc.FileDescriptor
}{files: make(map[string]*desc.FileDescriptor)}

// Client wraps one gRPC connection. The closed flag is guarded by mu so
// a finalizer and an explicit close cannot race.
type Client struct {
	conn      *grpc.ClientConn
	refClient *grpcreflect.Client
	target    string

	mu     sync.Mutex
	closed bool
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.refClient != nil {
		c.refClient.Reset()
	}
	c.conn.Close()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// resolveMethod turns "package.Service/Method" into a descriptor,
// preferring loaded proto files over a reflection round trip.
func (c *Client) resolveMethod(full string) (*desc.MethodDescriptor, error) {
	cut := strings.LastIndex(full, "/")
	if cut <= 0 || cut == len(full)-1 {
		return nil, fmt.Errorf("invalid method format: %s (expected 'package.Service/Method')", full)
	}
	service, method := full[:cut], full[cut+1:]

	svc := findLocalService(service)
	if svc == nil {
		if c.refClient == nil {
			return nil, fmt.Errorf("cannot resolve service %s: no descriptor loaded", service)
		}
		remote, err := c.refClient.ResolveService(service)
		if err != nil {
			return nil, fmt.Errorf("cannot resolve service %s: %w", service, err)
		}
		svc = remote
	}
	md := svc.FindMethodByName(method)
	if md == nil {
		return nil, fmt.Errorf("method %s not found in service %s", method, service)
	}
	return md, nil
}

func findLocalService(name string) *desc.ServiceDescriptor {
	protoFiles.RLock()
	defer protoFiles.RUnlock()
	for _, fd := range protoFiles.files {
		if svc := fd.FindService(name); svc != nil {
			return svc
		}
	}
	return nil
}

func localServiceNames() []string {
	protoFiles.RLock()
	defer protoFiles.RUnlock()
	var names []string
	for _, fd := range protoFiles.files {
		for _, svc := range fd.GetServices() {
			names = append(names, svc.GetFullyQualifiedName())
		}
	}
	sort.Strings(names)
	return names
}

// ClientType projects Client into embedded programs.
var ClientType = bridge.DefType[*Client]("rpc.Client",
	bridge.Property("target", "address the client dials", bridge.PushText,
		func(c *Client) string { return c.target }),
	bridge.Method("call", "call(method, request) - unary call; request and response travel as tables", callMethod),
	bridge.Method("services", "services() - full names of the services the client can see", servicesMethod),
	bridge.Method("close", "close() - shut the connection down", closeMethod),
	bridge.Stringify(func(c *Client) string { return "rpc.Client " + c.target }),
	bridge.Finalizer(func(c *Client) { c.shutdown() }),
)

// Module is the rpc library.
var Module = bridge.Module{
	Name: "rpc",
	Doc:  "gRPC clients with proto descriptors or server reflection",
	Funcs: []bridge.Fn{
		{Name: "load", Doc: "load(path) - parse a .proto file into the descriptor registry", F: load},
		{Name: "dial", Doc: "dial(target) - connect and return an rpc.Client", F: dial},
	},
}

func load(ctx *bridge.Context) (int, error) {
	path, err := bridge.PeekText(ctx, 1)
	if err != nil {
		return 0, err
	}
	parser := protoparse.Parser{ImportPaths: []string{filepath.Dir(path), "."}}
	fds, err := parser.ParseFiles(filepath.Base(path))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}
	protoFiles.Lock()
	for _, fd := range fds {
		protoFiles.files[fd.GetName()] = fd
	}
	protoFiles.Unlock()
	bridge.PushInteger(ctx, int64(len(fds)))
	return 1, nil
}

func dial(ctx *bridge.Context) (int, error) {
	target, err := bridge.PeekText(ctx, 1)
	if err != nil {
		return 0, err
	}
	conn, err := grpc.Dial(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return 0, fmt.Errorf("connection failed: %w", err)
	}
	refClient := grpcreflect.NewClientV1Alpha(context.Background(), rpb.NewServerReflectionClient(conn))
	ClientType.Push(ctx, &Client{conn: conn, refClient: refClient, target: target})
	return 1, nil
}

func callMethod(ctx *bridge.Context, c *Client) (int, error) {
	if c.isClosed() {
		return 0, errors.New("client is closed")
	}
	full, err := bridge.PeekText(ctx, 2)
	if err != nil {
		return 0, err
	}
	md, err := c.resolveMethod(full)
	if err != nil {
		return 0, err
	}
	if md.IsClientStreaming() || md.IsServerStreaming() {
		return 0, fmt.Errorf("method %s is streaming; only unary calls are supported", full)
	}

	req := dynamic.NewMessage(md.GetInputType())
	s := ctx.S
	if t := s.TypeOf(3); t != vm.TypeNone && t != vm.TypeNil {
		if t != vm.TypeTable {
			return 0, fmt.Errorf("request must be a table, got %s", t)
		}
		req, err = tableToMessage(ctx, 3, md.GetInputType())
		if err != nil {
			return 0, err
		}
	}

	resp := dynamic.NewMessage(md.GetOutputType())
	if err := c.conn.Invoke(context.Background(), "/"+full, req, resp); err != nil {
		return 0, fmt.Errorf("call %s: %w", full, err)
	}
	if err := pushMessage(ctx, resp); err != nil {
		return 0, err
	}
	return 1, nil
}

func servicesMethod(ctx *bridge.Context, c *Client) (int, error) {
	if c.isClosed() {
		return 0, errors.New("client is closed")
	}
	var names []string
	if c.refClient != nil {
		names, _ = c.refClient.ListServices()
	}
	if names == nil {
		// No reflection on the far end; the registry still knows
		// whatever rpc.load parsed.
		names = localServiceNames()
	}
	s := ctx.S
	s.NewTable()
	n := int64(0)
	for _, name := range names {
		if strings.HasPrefix(name, "grpc.reflection") {
			continue
		}
		n++
		s.PushString(name)
		s.RawSetIndex(-2, n)
	}
	return 1, nil
}

func closeMethod(ctx *bridge.Context, c *Client) (int, error) {
	c.shutdown()
	return 0, nil
}
