package wrapgen

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"strings"

	"golang.org/x/tools/go/packages"
)

// Introspect loads a Go package by import path and returns the model
// of its exported struct types. include, if non-empty, restricts which
// type names are considered.
func Introspect(importPath string, include []string) (*PackageModel, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedTypes | packages.NeedSyntax,
	}

	pkgs, err := packages.Load(cfg, importPath)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", importPath, err)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages found for %s", importPath)
	}
	if len(pkgs[0].Errors) > 0 {
		return nil, fmt.Errorf("package errors: %v", pkgs[0].Errors)
	}

	pkg := pkgs[0]
	if pkg.Types == nil {
		return nil, fmt.Errorf("type information not available for %s", importPath)
	}

	var filter map[string]bool
	if len(include) > 0 {
		filter = make(map[string]bool, len(include))
		for _, name := range include {
			filter[name] = true
		}
	}

	model := &PackageModel{
		ImportPath: importPath,
		Name:       pkg.Name,
	}
	docs := collectDocs(pkg.Syntax)

	scope := pkg.Types.Scope()
	for _, name := range scope.Names() {
		if filter != nil && !filter[name] {
			continue
		}
		obj := scope.Lookup(name)
		if !obj.Exported() {
			continue
		}
		tn, ok := obj.(*types.TypeName)
		if !ok {
			continue
		}
		if tm := extractType(tn, docs); tm != nil {
			model.Types = append(model.Types, *tm)
		}
	}

	return model, nil
}

func extractType(tn *types.TypeName, docs map[string]string) *TypeModel {
	named, ok := tn.Type().(*types.Named)
	if !ok {
		return nil
	}
	st, ok := named.Underlying().(*types.Struct)
	if !ok {
		return nil
	}

	tm := &TypeModel{
		Name: tn.Name(),
		Doc:  docs[tn.Name()],
	}

	for i := 0; i < st.NumFields(); i++ {
		f := st.Field(i)
		if !f.Exported() || f.Embedded() {
			continue
		}
		fm := FieldModel{Name: f.Name(), TypeStr: f.Type().String()}
		fm.Kind, fm.Elem = classify(f.Type())
		tm.Fields = append(tm.Fields, fm)
	}

	// Pointer-receiver methods, skipping promoted ones
	mset := types.NewMethodSet(types.NewPointer(named))
	for i := 0; i < mset.Len(); i++ {
		sel := mset.At(i)
		fn, ok := sel.Obj().(*types.Func)
		if !ok || !fn.Exported() {
			continue
		}
		if sel.Index() != nil && len(sel.Index()) > 1 {
			continue
		}
		sig := fn.Type().(*types.Signature)
		mm := extractMethod(fn.Name(), sig)
		mm.Doc = docs[tn.Name()+"."+fn.Name()]
		tm.Methods = append(tm.Methods, mm)
	}

	return tm
}

func extractMethod(name string, sig *types.Signature) MethodModel {
	mm := MethodModel{Name: name}

	if sig.Variadic() {
		mm.Reason = "variadic signature"
		return mm
	}

	params := sig.Params()
	for i := 0; i < params.Len(); i++ {
		p := params.At(i)
		pm := ParamModel{Name: p.Name(), TypeStr: p.Type().String()}
		pm.Kind, pm.Elem = classify(p.Type())
		if pm.Kind == KindUnsupported || pm.Kind == KindSeq {
			mm.Reason = fmt.Sprintf("parameter %d has unsupported type %s", i+1, pm.TypeStr)
			return mm
		}
		mm.Params = append(mm.Params, pm)
	}

	results := sig.Results()
	n := results.Len()
	if n > 0 && isErrorType(results.At(n-1).Type()) {
		mm.ReturnsErr = true
		n--
	}
	switch {
	case n == 0:
	case n == 1:
		r := results.At(0)
		rm := ParamModel{Name: r.Name(), TypeStr: r.Type().String()}
		rm.Kind, rm.Elem = classify(r.Type())
		if rm.Kind == KindUnsupported {
			mm.Reason = fmt.Sprintf("result has unsupported type %s", rm.TypeStr)
			return mm
		}
		mm.Result = &rm
	default:
		mm.Reason = "more than one result"
		return mm
	}

	return mm
}

// classify maps a Go type onto a projection kind. Only exact builtin
// scalars and slices of bool/int64/float64/string qualify; named
// wrappers and everything else stay unsupported.
func classify(t types.Type) (ValueKind, ValueKind) {
	if basic, ok := t.(*types.Basic); ok {
		return scalarKind(basic), KindUnsupported
	}
	if slice, ok := t.(*types.Slice); ok {
		if basic, ok := slice.Elem().(*types.Basic); ok {
			switch basic.Kind() {
			case types.Bool, types.Int64, types.Float64, types.String:
				return KindSeq, scalarKind(basic)
			}
		}
	}
	return KindUnsupported, KindUnsupported
}

func scalarKind(basic *types.Basic) ValueKind {
	switch basic.Kind() {
	case types.Bool:
		return KindBool
	case types.Int, types.Int8, types.Int16, types.Int32, types.Int64,
		types.Uint8, types.Uint16, types.Uint32:
		return KindInt
	case types.Float32, types.Float64:
		return KindFloat
	case types.String:
		return KindString
	}
	return KindUnsupported
}

func isErrorType(t types.Type) bool {
	named, ok := t.(*types.Named)
	if !ok {
		return false
	}
	return named.Obj().Name() == "error" && named.Obj().Pkg() == nil
}

// collectDocs walks the package syntax and maps "Type" and
// "Type.Method" to the first line of their doc comments.
func collectDocs(files []*ast.File) map[string]string {
	docs := make(map[string]string)
	for _, file := range files {
		for _, decl := range file.Decls {
			switch d := decl.(type) {
			case *ast.GenDecl:
				if d.Tok != token.TYPE {
					continue
				}
				for _, spec := range d.Specs {
					ts, ok := spec.(*ast.TypeSpec)
					if !ok {
						continue
					}
					doc := ts.Doc.Text()
					if doc == "" && len(d.Specs) == 1 {
						doc = d.Doc.Text()
					}
					if doc != "" {
						docs[ts.Name.Name] = firstLine(doc)
					}
				}
			case *ast.FuncDecl:
				if d.Recv == nil || len(d.Recv.List) == 0 || d.Doc == nil {
					continue
				}
				recv := receiverTypeName(d.Recv.List[0].Type)
				if recv != "" {
					docs[recv+"."+d.Name.Name] = firstLine(d.Doc.Text())
				}
			}
		}
	}
	return docs
}

func receiverTypeName(expr ast.Expr) string {
	if star, ok := expr.(*ast.StarExpr); ok {
		expr = star.X
	}
	if ident, ok := expr.(*ast.Ident); ok {
		return ident.Name
	}
	return ""
}

func firstLine(doc string) string {
	doc = strings.TrimSpace(doc)
	if i := strings.IndexByte(doc, '\n'); i >= 0 {
		doc = doc[:i]
	}
	return doc
}
