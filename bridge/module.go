package bridge

// Fn is one function of a module: a name, a doc string for tooling,
// and the host callback behind it.
type Fn struct {
	Name string
	Doc  string
	F    Callback
}

// Module is a named group of host functions installed together as a
// global table. Domain modules declare one at package level and
// install it into each context that should see it.
type Module struct {
	Name  string
	Doc   string
	Funcs []Fn
}

// Install builds the module table, registers every function through
// the context's callback trampoline and sets the table as a global
// under the module's name.
func (m Module) Install(ctx *Context) {
	s := ctx.S
	s.NewTable()
	for _, fn := range m.Funcs {
		s.PushGoFunc(ctx.Conv.ProtectCallback(ctx, fn.F))
		s.RawSetField(-2, fn.Name)
	}
	s.SetGlobal(m.Name)
}

// DocOf returns the doc string of a registered function.
func (m Module) DocOf(name string) (string, bool) {
	for _, fn := range m.Funcs {
		if fn.Name == name {
			return fn.Doc, true
		}
	}
	return "", false
}
