package wrapgen

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/dave/jennifer/jen"
)

const bridgePath = "github.com/chazu/deneb/bridge"

// Options controls binding generation.
type Options struct {
	// Package is the generated package name; defaults to "bindings".
	Package string
	// Prefix is prepended to projected type tags; defaults to the
	// source package name plus a dot.
	Prefix string
}

// SkippedMember records a field or method that could not be projected.
type SkippedMember struct {
	Type   string
	Member string
	Reason string
}

// Result carries the rendered source and what was left out.
type Result struct {
	Code    string
	Skipped []SkippedMember
}

// Generate renders one Go source file declaring a bridge.DefType per
// struct in the model, a constructor module, and an Install function.
// Output is deterministic: types sort by name, members keep
// declaration order.
func Generate(model *PackageModel, opts Options) (*Result, error) {
	if opts.Package == "" {
		opts.Package = "bindings"
	}
	if opts.Prefix == "" {
		opts.Prefix = model.Name + "."
	}

	res := &Result{}
	f := jen.NewFile(opts.Package)
	f.HeaderComment("Code generated by deneb wrap. DO NOT EDIT.")

	sorted := append([]TypeModel(nil), model.Types...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for _, tm := range sorted {
		emitType(f, model, tm, opts, res)
	}
	emitModule(f, model, sorted)

	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return nil, fmt.Errorf("rendering bindings for %s: %w", model.ImportPath, err)
	}
	res.Code = buf.String()
	return res, nil
}

func emitType(f *jen.File, model *PackageModel, tm TypeModel, opts Options, res *Result) {
	recv := func() *jen.Statement {
		return jen.Op("*").Qual(model.ImportPath, tm.Name)
	}
	used := make(map[string]bool)
	members := []jen.Code{jen.Lit(opts.Prefix + tm.Name)}

	for _, fl := range tm.Fields {
		name := MemberName(fl.Name)
		switch fl.Kind {
		case KindBool, KindInt, KindFloat, KindString:
			members = append(members, propertyMember(fl, recv))
			used[name] = true
		case KindSeq:
			members = append(members, seqPropertyMember(fl, recv))
			used[name] = true
		default:
			res.Skipped = append(res.Skipped, SkippedMember{
				Type: tm.Name, Member: fl.Name,
				Reason: "unsupported field type " + fl.TypeStr,
			})
		}
	}

	for _, mm := range tm.Methods {
		name := MemberName(mm.Name)
		if mm.Reason != "" {
			res.Skipped = append(res.Skipped, SkippedMember{Type: tm.Name, Member: mm.Name, Reason: mm.Reason})
			continue
		}
		if used[name] {
			res.Skipped = append(res.Skipped, SkippedMember{
				Type: tm.Name, Member: mm.Name,
				Reason: fmt.Sprintf("name collides with member %q", name),
			})
			continue
		}
		members = append(members, methodMember(mm, recv))
		used[name] = true
	}

	varName := TypeVarName(tm.Name)
	doc := tm.Doc
	if doc == "" {
		doc = fmt.Sprintf("%s projects %s.%s.", varName, model.Name, tm.Name)
	} else {
		doc = fmt.Sprintf("%s projects %s.%s: %s", varName, model.Name, tm.Name, doc)
	}
	f.Comment(doc)
	f.Var().Id(varName).Op("=").Qual(bridgePath, "DefType").Index(recv()).Call(members...)
	f.Line()
}

// propertyMember renders a WritableProperty for a scalar field.
func propertyMember(fl FieldModel, recv func() *jen.Statement) jen.Code {
	kindType := goTypeOf(fl.Kind)

	getBody := jen.Id("r").Dot(fl.Name)
	if fl.TypeStr != kindType {
		getBody = jen.Id(kindType).Call(getBody)
	}
	setVal := jen.Id("v")
	if fl.TypeStr != kindType {
		setVal = jen.Id(fl.TypeStr).Call(setVal)
	}

	return jen.Qual(bridgePath, "WritableProperty").Call(
		jen.Lit(MemberName(fl.Name)),
		jen.Lit(""),
		jen.Qual(bridgePath, pusherOf(fl.Kind)),
		jen.Func().Params(jen.Id("r").Add(recv())).Id(kindType).Block(
			jen.Return(getBody),
		),
		jen.Qual(bridgePath, peekerOf(fl.Kind)),
		jen.Func().Params(jen.Id("r").Add(recv()), jen.Id("v").Id(kindType)).Params(recv(), jen.Error()).Block(
			jen.Id("r").Dot(fl.Name).Op("=").Add(setVal),
			jen.Return(jen.Id("r"), jen.Nil()),
		),
	)
}

// seqPropertyMember renders a read-only Property for a slice field.
func seqPropertyMember(fl FieldModel, recv func() *jen.Statement) jen.Code {
	elemType := goTypeOf(fl.Elem)
	return jen.Qual(bridgePath, "Property").Call(
		jen.Lit(MemberName(fl.Name)),
		jen.Lit(""),
		jen.Qual(bridgePath, "PushSeq").Call(jen.Qual(bridgePath, pusherOf(fl.Elem))),
		jen.Func().Params(jen.Id("r").Add(recv())).Index().Id(elemType).Block(
			jen.Return(jen.Id("r").Dot(fl.Name)),
		),
	)
}

// methodMember renders a Method whose callback peeks the arguments,
// calls through, and pushes the result.
func methodMember(mm MethodModel, recv func() *jen.Statement) jen.Code {
	var body []jen.Code
	var callArgs []jen.Code

	for i, p := range mm.Params {
		arg := fmt.Sprintf("a%d", i)
		body = append(body,
			jen.List(jen.Id(arg), jen.Err()).Op(":=").Qual(bridgePath, peekerOf(p.Kind)).Call(jen.Id("ctx"), jen.Lit(i+2)),
			jen.If(jen.Err().Op("!=").Nil()).Block(
				jen.Return(jen.Lit(0), jen.Err()),
			),
		)
		a := jen.Id(arg)
		if kindType := goTypeOf(p.Kind); p.TypeStr != kindType {
			a = jen.Id(p.TypeStr).Call(a)
		}
		callArgs = append(callArgs, a)
	}

	call := func() *jen.Statement {
		return jen.Id("recv").Dot(mm.Name).Call(callArgs...)
	}

	switch {
	case mm.Result == nil && !mm.ReturnsErr:
		body = append(body,
			call(),
			jen.Return(jen.Lit(0), jen.Nil()),
		)
	case mm.Result == nil && mm.ReturnsErr:
		body = append(body,
			jen.If(jen.Err().Op(":=").Add(call()), jen.Err().Op("!=").Nil()).Block(
				jen.Return(jen.Lit(0), jen.Err()),
			),
			jen.Return(jen.Lit(0), jen.Nil()),
		)
	case mm.ReturnsErr:
		body = append(body,
			jen.List(jen.Id("r0"), jen.Err()).Op(":=").Add(call()),
			jen.If(jen.Err().Op("!=").Nil()).Block(
				jen.Return(jen.Lit(0), jen.Err()),
			),
		)
		body = append(body, pushResult(mm.Result)...)
	default:
		body = append(body, jen.Id("r0").Op(":=").Add(call()))
		body = append(body, pushResult(mm.Result)...)
	}

	doc := mm.Doc
	return jen.Qual(bridgePath, "Method").Call(
		jen.Lit(MemberName(mm.Name)),
		jen.Lit(doc),
		jen.Func().Params(
			jen.Id("ctx").Op("*").Qual(bridgePath, "Context"),
			jen.Id("recv").Add(recv()),
		).Params(jen.Int(), jen.Error()).Block(body...),
	)
}

func pushResult(r *ParamModel) []jen.Code {
	val := jen.Id("r0")
	if r.Kind != KindSeq {
		if kindType := goTypeOf(r.Kind); r.TypeStr != kindType {
			val = jen.Id(kindType).Call(val)
		}
		return []jen.Code{
			jen.Qual(bridgePath, pusherOf(r.Kind)).Call(jen.Id("ctx"), val),
			jen.Return(jen.Lit(1), jen.Nil()),
		}
	}
	return []jen.Code{
		jen.Qual(bridgePath, "PushSeq").Call(jen.Qual(bridgePath, pusherOf(r.Elem))).Call(jen.Id("ctx"), val),
		jen.Return(jen.Lit(1), jen.Nil()),
	}
}

// emitModule renders a constructor module and the Install entry point.
func emitModule(f *jen.File, model *PackageModel, sorted []TypeModel) {
	var fns []jen.Code
	for _, tm := range sorted {
		fns = append(fns, jen.Values(jen.Dict{
			jen.Id("Name"): jen.Lit(tm.Name),
			jen.Id("Doc"):  jen.Lit(fmt.Sprintf("%s() - new zero %s", tm.Name, tm.Name)),
			jen.Id("F"): jen.Func().Params(jen.Id("ctx").Op("*").Qual(bridgePath, "Context")).Params(jen.Int(), jen.Error()).Block(
				jen.Id(TypeVarName(tm.Name)).Dot("Push").Call(jen.Id("ctx"), jen.New(jen.Qual(model.ImportPath, tm.Name))),
				jen.Return(jen.Lit(1), jen.Nil()),
			),
		}))
	}

	f.Comment("Module exposes a constructor per projected type.")
	f.Var().Id("Module").Op("=").Qual(bridgePath, "Module").Values(jen.Dict{
		jen.Id("Name"):  jen.Lit(model.Name),
		jen.Id("Doc"):   jen.Lit("generated bindings for " + model.ImportPath),
		jen.Id("Funcs"): jen.Index().Qual(bridgePath, "Fn").Values(fns...),
	})
	f.Line()

	f.Comment("Install registers the constructor module on a state.")
	f.Func().Id("Install").Params(jen.Id("ctx").Op("*").Qual(bridgePath, "Context")).Block(
		jen.Id("Module").Dot("Install").Call(jen.Id("ctx")),
	)
}

func pusherOf(k ValueKind) string {
	switch k {
	case KindBool:
		return "PushBool"
	case KindInt:
		return "PushInteger"
	case KindFloat:
		return "PushFloat"
	case KindString:
		return "PushText"
	}
	return ""
}

func peekerOf(k ValueKind) string {
	switch k {
	case KindBool:
		return "PeekBool"
	case KindInt:
		return "PeekInteger"
	case KindFloat:
		return "PeekFloat"
	case KindString:
		return "PeekText"
	}
	return ""
}

func goTypeOf(k ValueKind) string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int64"
	case KindFloat:
		return "float64"
	case KindString:
		return "string"
	}
	return ""
}
