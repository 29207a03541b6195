package wrapgen

import (
	"go/types"
	"strings"
	"testing"
)

func TestIntrospectURL(t *testing.T) {
	model, err := Introspect("net/url", nil)
	if err != nil {
		t.Fatalf("Introspect(net/url): %v", err)
	}
	if model.Name != "url" {
		t.Errorf("package name = %q, want url", model.Name)
	}

	var urlType *TypeModel
	for i := range model.Types {
		if model.Types[i].Name == "URL" {
			urlType = &model.Types[i]
		}
	}
	if urlType == nil {
		t.Fatal("expected to find the URL type")
	}
	if !strings.Contains(urlType.Doc, "URL") {
		t.Errorf("URL doc = %q, want it to mention URL", urlType.Doc)
	}

	fields := map[string]FieldModel{}
	for _, f := range urlType.Fields {
		fields[f.Name] = f
	}
	if f, ok := fields["Scheme"]; !ok || f.Kind != KindString {
		t.Errorf("Scheme field = %+v, want a string kind", f)
	}
	if f, ok := fields["ForceQuery"]; !ok || f.Kind != KindBool {
		t.Errorf("ForceQuery field = %+v, want a bool kind", f)
	}
	// User is a *Userinfo, which has no projection
	if f, ok := fields["User"]; !ok || f.Kind != KindUnsupported {
		t.Errorf("User field = %+v, want unsupported", f)
	}

	methods := map[string]MethodModel{}
	for _, m := range urlType.Methods {
		methods[m.Name] = m
	}
	if m, ok := methods["IsAbs"]; !ok || m.Reason != "" || m.Result == nil || m.Result.Kind != KindBool {
		t.Errorf("IsAbs = %+v, want a supported bool-result method", m)
	}
	if m, ok := methods["String"]; !ok || m.Reason != "" || m.Result == nil || m.Result.Kind != KindString {
		t.Errorf("String = %+v, want a supported string-result method", m)
	}
	// Parse returns *URL, which cannot be projected
	if m, ok := methods["Parse"]; !ok || m.Reason == "" {
		t.Errorf("Parse = %+v, want it skipped with a reason", m)
	}
}

func TestIntrospectWithInclude(t *testing.T) {
	model, err := Introspect("net/url", []string{"URL"})
	if err != nil {
		t.Fatalf("Introspect(net/url, [URL]): %v", err)
	}
	if len(model.Types) != 1 || model.Types[0].Name != "URL" {
		t.Errorf("types = %v, want only URL", typeNames(model))
	}
}

func TestIntrospectBadPath(t *testing.T) {
	if _, err := Introspect("nonexistent/package/path", nil); err == nil {
		t.Error("expected error for nonexistent package")
	}
}

func TestClassifyKinds(t *testing.T) {
	cases := []struct {
		typ  types.Type
		kind ValueKind
		elem ValueKind
	}{
		{types.Typ[types.Bool], KindBool, KindUnsupported},
		{types.Typ[types.Int], KindInt, KindUnsupported},
		{types.Typ[types.Int32], KindInt, KindUnsupported},
		{types.Typ[types.Uint32], KindInt, KindUnsupported},
		{types.Typ[types.Uint64], KindUnsupported, KindUnsupported},
		{types.Typ[types.Float32], KindFloat, KindUnsupported},
		{types.Typ[types.String], KindString, KindUnsupported},
		{types.NewSlice(types.Typ[types.String]), KindSeq, KindString},
		{types.NewSlice(types.Typ[types.Int64]), KindSeq, KindInt},
		{types.NewSlice(types.Typ[types.Int]), KindUnsupported, KindUnsupported},
		{types.NewPointer(types.Typ[types.Int]), KindUnsupported, KindUnsupported},
	}
	for _, c := range cases {
		kind, elem := classify(c.typ)
		if kind != c.kind || elem != c.elem {
			t.Errorf("classify(%s) = (%v, %v), want (%v, %v)", c.typ, kind, elem, c.kind, c.elem)
		}
	}
}

func TestMemberNaming(t *testing.T) {
	if got := MemberName("DistanceTo"); got != "distanceTo" {
		t.Errorf("MemberName(DistanceTo) = %q, want distanceTo", got)
	}
	if got := MemberName("X"); got != "x" {
		t.Errorf("MemberName(X) = %q, want x", got)
	}
	if got := TypeVarName("Point"); got != "PointType" {
		t.Errorf("TypeVarName(Point) = %q, want PointType", got)
	}
	if got := PackageNameFor("internal/my-bindings"); got != "mybindings" {
		t.Errorf("PackageNameFor(internal/my-bindings) = %q, want mybindings", got)
	}
	if got := PackageNameFor(""); got != "bindings" {
		t.Errorf("PackageNameFor(empty) = %q, want bindings", got)
	}
}

func typeNames(model *PackageModel) []string {
	var names []string
	for _, tm := range model.Types {
		names = append(names, tm.Name)
	}
	return names
}
