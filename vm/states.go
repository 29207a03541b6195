package vm

import (
	"sync"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("deneb.vm")

// stateTable tracks every open main state by id, for diagnostics and
// the bridge monitor.
var stateTable = struct {
	mu   sync.RWMutex
	open map[string]*State
}{open: make(map[string]*State)}

func registerState(s *State) {
	s.id = uuid.NewString()
	stateTable.mu.Lock()
	stateTable.open[s.id] = s
	stateTable.mu.Unlock()
	log.Debugf("state %s open", s.id)
}

func unregisterState(s *State) {
	stateTable.mu.Lock()
	delete(stateTable.open, s.id)
	stateTable.mu.Unlock()
	log.Debugf("state %s closed", s.id)
}

// OpenStates reports how many main states are currently open.
func OpenStates() int {
	stateTable.mu.RLock()
	defer stateTable.mu.RUnlock()
	return len(stateTable.open)
}

// EachState visits every open main state until fn returns false. The
// snapshot is taken under the table lock; fn runs outside it. The
// usual caveat applies: a visited state may be driven by another
// goroutine, so only call synchronized or read-only operations on it.
func EachState(fn func(s *State) bool) {
	stateTable.mu.RLock()
	snapshot := make([]*State, 0, len(stateTable.open))
	for _, s := range stateTable.open {
		snapshot = append(snapshot, s)
	}
	stateTable.mu.RUnlock()
	for _, s := range snapshot {
		if !fn(s) {
			return
		}
	}
}
