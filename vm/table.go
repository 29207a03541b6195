package vm

// ---------------------------------------------------------------------------
// Table representation
// ---------------------------------------------------------------------------

// table is the machine's associative value. Integer keys 1..n live in a
// dense array part; everything else lives in the hash part, which keeps
// insertion order so traversal is deterministic.
type table struct {
	arr    []value
	hash   map[value]value
	keys   []value
	keyPos map[value]int
	meta   *table
}

func newTable() *table {
	return &table{}
}

func (t *table) get(k value) value {
	k = normalizeKey(k)
	if i, ok := k.(int64); ok && i >= 1 && int(i) <= len(t.arr) {
		return t.arr[i-1]
	}
	if t.hash == nil {
		return nil
	}
	return t.hash[k]
}

func (t *table) set(k, v value) {
	k = normalizeKey(k)
	if i, ok := k.(int64); ok && i >= 1 {
		switch {
		case int(i) <= len(t.arr):
			t.arr[i-1] = v
			if v == nil && int(i) == len(t.arr) {
				t.shrinkArray()
			}
			return
		case int(i) == len(t.arr)+1 && v != nil:
			t.arr = append(t.arr, v)
			t.migrateFromHash()
			return
		}
	}
	if v == nil {
		t.deleteKey(k)
		return
	}
	if t.hash == nil {
		t.hash = make(map[value]value)
		t.keyPos = make(map[value]int)
	}
	if _, exists := t.hash[k]; !exists {
		t.keyPos[k] = len(t.keys)
		t.keys = append(t.keys, k)
	}
	t.hash[k] = v
}

// shrinkArray drops trailing nils so length() reports the border.
func (t *table) shrinkArray() {
	n := len(t.arr)
	for n > 0 && t.arr[n-1] == nil {
		n--
	}
	t.arr = t.arr[:n]
}

// migrateFromHash pulls keys that became contiguous with the array part
// out of the hash part after an append.
func (t *table) migrateFromHash() {
	if t.hash == nil {
		return
	}
	for {
		k := int64(len(t.arr) + 1)
		v, ok := t.hash[value(k)]
		if !ok {
			break
		}
		t.deleteKey(value(k))
		t.arr = append(t.arr, v)
	}
}

func (t *table) deleteKey(k value) {
	if t.hash == nil {
		return
	}
	if _, ok := t.hash[k]; !ok {
		return
	}
	delete(t.hash, k)
	pos := t.keyPos[k]
	delete(t.keyPos, k)
	t.keys = append(t.keys[:pos], t.keys[pos+1:]...)
	for i := pos; i < len(t.keys); i++ {
		t.keyPos[t.keys[i]] = i
	}
}

// length reports the array-part border, the machine's # operator.
func (t *table) length() int {
	return len(t.arr)
}

// next returns the pair following key k in traversal order: the array
// part first (skipping holes), then hash keys in insertion order. A nil
// k starts the traversal; ok=false ends it.
func (t *table) next(k value) (nk, nv value, ok bool) {
	k = normalizeKey(k)
	start := 0
	if k != nil {
		if i, isInt := k.(int64); isInt && i >= 1 && int(i) <= len(t.arr) {
			start = int(i)
		} else {
			pos, found := t.keyPos[k]
			if !found {
				return nil, nil, false
			}
			return t.nextHash(pos + 1)
		}
	}
	for i := start; i < len(t.arr); i++ {
		if t.arr[i] != nil {
			return int64(i + 1), t.arr[i], true
		}
	}
	return t.nextHash(0)
}

func (t *table) nextHash(pos int) (nk, nv value, ok bool) {
	if pos < len(t.keys) {
		k := t.keys[pos]
		return k, t.hash[k], true
	}
	return nil, nil, false
}

// ---------------------------------------------------------------------------
// State table operations
// ---------------------------------------------------------------------------

// NewTable pushes a fresh empty table. [-0, +1]
func (s *State) NewTable() {
	s.push(newTable())
}

// RawGet reads t[k] without metamethods, where t is at idx and k is the
// popped stack top; the result is pushed. [-1, +1]
func (s *State) RawGet(idx int) {
	t := s.tableAt(idx)
	k := s.pop()
	s.push(t.get(k))
}

// RawSet writes t[k] = v without metamethods, where t is at idx, v is
// the stack top and k sits below it; both are popped. A nil or NaN key
// raises. [-2, +0]
func (s *State) RawSet(idx int) {
	t := s.tableAt(idx)
	v := s.pop()
	k := s.pop()
	s.checkKey(k)
	t.set(k, v)
}

// RawGetIndex reads t[n] and pushes the result. [-0, +1]
func (s *State) RawGetIndex(idx int, n int64) {
	t := s.tableAt(idx)
	s.push(t.get(n))
}

// RawSetIndex writes t[n] = v where v is the popped stack top. [-1, +0]
func (s *State) RawSetIndex(idx int, n int64) {
	t := s.tableAt(idx)
	t.set(n, s.pop())
}

// RawGetField reads t[name] and pushes the result. [-0, +1]
func (s *State) RawGetField(idx int, name string) {
	t := s.tableAt(idx)
	s.push(t.get(name))
}

// RawSetField writes t[name] = v where v is the popped stack top. [-1, +0]
func (s *State) RawSetField(idx int, name string) {
	t := s.tableAt(idx)
	t.set(name, s.pop())
}

// Next pops a key and pushes the following key/value pair of the table
// at idx, returning true; at the end of traversal nothing is pushed and
// Next returns false. Start with a nil key. [-1, +2|+0]
func (s *State) Next(idx int) bool {
	t := s.tableAt(idx)
	k := s.pop()
	nk, nv, ok := t.next(k)
	if !ok {
		return false
	}
	s.push(nk)
	s.push(nv)
	return true
}

func (s *State) tableAt(idx int) *table {
	v, _ := s.valueAt(idx)
	t, ok := v.(*table)
	if !ok {
		panic(internalError("vm: table expected at index"))
	}
	return t
}

func (s *State) checkKey(k value) {
	if k == nil {
		s.RaiseString("table index is nil")
	}
	if f, ok := k.(float64); ok && f != f {
		s.RaiseString("table index is NaN")
	}
}

// ---------------------------------------------------------------------------
// Globals
// ---------------------------------------------------------------------------

// PushGlobalTable pushes the shared globals table. [-0, +1]
func (s *State) PushGlobalTable() {
	s.push(s.shared.globals)
}

// GetGlobal pushes the value of a global. [-0, +1]
func (s *State) GetGlobal(name string) {
	s.push(s.shared.globals.get(name))
}

// SetGlobal pops the stack top and stores it as a global. [-1, +0]
func (s *State) SetGlobal(name string) {
	s.shared.globals.set(name, s.pop())
}

// ---------------------------------------------------------------------------
// Metatables
// ---------------------------------------------------------------------------

// SetMetatable pops a table (or nil) and installs it as the metatable
// of the table or userdata at idx. The index counts the metatable still
// on the stack. [-1, +0]
func (s *State) SetMetatable(idx int) {
	i := s.absIndex(idx)
	mv := s.pop()
	var mt *table
	if mv != nil {
		t, ok := mv.(*table)
		if !ok {
			panic(internalError("vm: metatable must be a table or nil"))
		}
		mt = t
	}
	switch v := s.stack[i].(type) {
	case *table:
		v.meta = mt
	case *userdata:
		v.meta = mt
	default:
		panic(internalError("vm: value cannot carry a metatable"))
	}
}

// Metatable pushes the metatable of the value at idx and returns true,
// or pushes nothing and returns false. [-0, +1|+0]
func (s *State) Metatable(idx int) bool {
	if mt := s.metatableOf(idx); mt != nil {
		s.push(mt)
		return true
	}
	return false
}

// MetaField pushes the named field of idx's metatable and returns true,
// or pushes nothing and returns false. [-0, +1|+0]
func (s *State) MetaField(idx int, event string) bool {
	mt := s.metatableOf(idx)
	if mt == nil {
		return false
	}
	v := mt.get(event)
	if v == nil {
		return false
	}
	s.push(v)
	return true
}

func (s *State) metatableOf(idx int) *table {
	v, _ := s.valueAt(idx)
	switch v := v.(type) {
	case *table:
		return v.meta
	case *userdata:
		return v.meta
	default:
		return nil
	}
}

// ---------------------------------------------------------------------------
// Userdata
// ---------------------------------------------------------------------------

// NewUserdata pushes a fresh userdata holding the given payload. [-0, +1]
func (s *State) NewUserdata(payload any) {
	s.push(&userdata{payload: payload})
}

// Userdata returns the payload of the userdata at idx.
func (s *State) Userdata(idx int) (any, bool) {
	v, _ := s.valueAt(idx)
	if u, ok := v.(*userdata); ok {
		return u.payload, true
	}
	return nil, false
}

// SetUserdata replaces the payload of the userdata at idx in place.
func (s *State) SetUserdata(idx int, payload any) {
	v, _ := s.valueAt(idx)
	u, ok := v.(*userdata)
	if !ok {
		panic(internalError("vm: userdata expected at index"))
	}
	u.payload = payload
}
