package vm

// GCOp selects what GC performs. The machine has no collector of its
// own (host garbage collection owns the memory); these operations run
// explicit finalization and expose bookkeeping counters.
type GCOp uint8

const (
	// GCCollect runs queued finalizers; arg bounds how many (0 = all).
	GCCollect GCOp = iota
	// GCCount reports the number of machine-owned cells: stack slots,
	// rooted references and queued finalizers.
	GCCount
	// GCStackTop reports the current frame's stack depth.
	GCStackTop
	// GCRefs reports the number of live references.
	GCRefs
	// GCPending reports the number of queued finalizers.
	GCPending
)

// GC performs a collection operation and returns its result.
func (s *State) GC(op GCOp, arg int) int {
	switch op {
	case GCCollect:
		n, _ := s.runFinalizers(arg)
		return n
	case GCCount:
		return len(s.stack) + s.shared.registry.live() + s.shared.pendingCount()
	case GCStackTop:
		return s.Top()
	case GCRefs:
		return s.LiveRefs()
	case GCPending:
		return s.shared.pendingCount()
	default:
		panic(internalError("vm: unknown gc op"))
	}
}

// Collect runs queued finalizers (0 = all) and reports how many ran
// together with the outcome: StatusFinalizerError when any finalizer
// raised, StatusOK otherwise. Errors raised by finalizers are logged
// and do not stop the sweep.
func (s *State) Collect(limit int) (int, Status) {
	return s.runFinalizers(limit)
}

func (s *State) runFinalizers(limit int) (int, Status) {
	st := StatusOK
	ran := 0
	for limit <= 0 || ran < limit {
		ud, ok := s.shared.dequeueFinalizable()
		if !ok {
			break
		}
		if ud.finalized {
			continue
		}
		ud.finalized = true
		fn := ud.meta.get("__gc")
		if _, isFn := fn.(*goFunction); !isFn {
			continue
		}
		s.push(fn)
		s.push(ud)
		if cst := s.ProtectedCall(1, 0, 0); cst.Failed() {
			errObj := s.pop()
			msg, _ := toString(errObj)
			log.Errorf("state %s: finalizer raised: %s", s.id, msg)
			st = StatusFinalizerError
		}
		ran++
	}
	return ran, st
}
