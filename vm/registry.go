package vm

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Ref is an opaque handle to a registry slot. References are the only
// sanctioned way to keep a machine value alive across calls; stack
// indices die as soon as control returns to the machine.
type Ref uint32

var (
	// ErrInvalidRef is returned when a reference was never issued or
	// has been released.
	ErrInvalidRef = errors.New("vm: invalid reference")
	// ErrDoubleRelease is returned when a reference is released twice.
	// Double release is a bug in the caller and is reported, never
	// silently ignored.
	ErrDoubleRelease = errors.New("vm: reference already released")
)

// registry maps references to rooted values. Ids are issued from an
// atomic counter and never reused, so a released id stays detectably
// dead for the life of the state. The named side table roots values
// under string keys, the conventional home of shared type metatables.
type registry struct {
	mu      sync.RWMutex
	entries map[Ref]value
	named   map[string]value
	next    atomic.Uint32
}

func (r *registry) init() {
	r.entries = make(map[Ref]value)
	r.named = make(map[string]value)
}

func (r *registry) live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// CreateRef pops the stack top, roots it in the registry and returns
// its reference. [-1, +0]
func (s *State) CreateRef() Ref {
	v := s.pop()
	reg := &s.shared.registry
	id := Ref(reg.next.Add(1))
	reg.mu.Lock()
	reg.entries[id] = v
	reg.mu.Unlock()
	return id
}

// PushRef pushes the value a reference roots. Released or never-issued
// references report ErrInvalidRef and push nothing. [-0, +1|+0]
func (s *State) PushRef(r Ref) error {
	reg := &s.shared.registry
	reg.mu.RLock()
	v, ok := reg.entries[r]
	reg.mu.RUnlock()
	if !ok {
		return ErrInvalidRef
	}
	s.push(v)
	return nil
}

// ReleaseRef removes a reference, letting the value it rooted die. A
// userdata with a __gc metamethod is queued for finalization; run the
// queue with GC(GCCollect, …). Releasing twice reports
// ErrDoubleRelease; a reference that was never issued reports
// ErrInvalidRef.
func (s *State) ReleaseRef(r Ref) error {
	reg := &s.shared.registry
	reg.mu.Lock()
	v, ok := reg.entries[r]
	if !ok {
		reg.mu.Unlock()
		if r == 0 || uint32(r) > reg.next.Load() {
			return ErrInvalidRef
		}
		return ErrDoubleRelease
	}
	delete(reg.entries, r)
	reg.mu.Unlock()

	if ud, isUD := v.(*userdata); isUD && finalizable(ud) {
		s.shared.queueFinalizable(ud)
	}
	return nil
}

// LiveRefs reports how many references are currently rooted.
func (s *State) LiveRefs() int {
	return s.shared.registry.live()
}

// RegistrySetField pops the stack top and roots it in the registry
// under name, replacing any previous entry. Named entries are not
// counted as leaks at close; they die with the state. [-1, +0]
func (s *State) RegistrySetField(name string) {
	v := s.pop()
	reg := &s.shared.registry
	reg.mu.Lock()
	reg.named[name] = v
	reg.mu.Unlock()
}

// RegistryGetField pushes the value rooted under name, or nil when the
// name has no entry, and reports which. [-0, +1]
func (s *State) RegistryGetField(name string) bool {
	reg := &s.shared.registry
	reg.mu.RLock()
	v, ok := reg.named[name]
	reg.mu.RUnlock()
	s.push(v)
	return ok
}

func finalizable(ud *userdata) bool {
	return !ud.finalized && ud.meta != nil && ud.meta.get("__gc") != nil
}

// queueAllFinalizable queues every still-rooted finalizable userdata;
// used when the state closes.
func (r *registry) queueAllFinalizable(sh *shared) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.entries {
		if ud, ok := v.(*userdata); ok && finalizable(ud) {
			sh.queueFinalizable(ud)
		}
	}
	for _, v := range r.named {
		if ud, ok := v.(*userdata); ok && finalizable(ud) {
			sh.queueFinalizable(ud)
		}
	}
}

func (sh *shared) queueFinalizable(ud *userdata) {
	sh.pendingMu.Lock()
	sh.pending = append(sh.pending, ud)
	sh.pendingMu.Unlock()
}

func (sh *shared) dequeueFinalizable() (*userdata, bool) {
	sh.pendingMu.Lock()
	defer sh.pendingMu.Unlock()
	if len(sh.pending) == 0 {
		return nil, false
	}
	ud := sh.pending[0]
	sh.pending = sh.pending[1:]
	return ud, true
}

func (sh *shared) pendingCount() int {
	sh.pendingMu.Lock()
	defer sh.pendingMu.Unlock()
	return len(sh.pending)
}
