// Package wrapgen introspects Go packages and generates deneb bindings
// for their exported struct types.
package wrapgen

// ValueKind says how a Go type travels across the stack boundary.
type ValueKind int

const (
	KindUnsupported ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	// KindSeq is a slice of one of the scalar kinds above, projected
	// read-only as a sequence.
	KindSeq
)

// PackageModel is the in-memory representation of a Go package's
// exported struct API.
type PackageModel struct {
	ImportPath string
	Name       string // short package name (e.g., "geo")
	Types      []TypeModel
}

// TypeModel represents one exported struct type.
type TypeModel struct {
	Name    string
	Doc     string // first line of the type's doc comment
	Fields  []FieldModel
	Methods []MethodModel
}

// FieldModel represents an exported struct field.
type FieldModel struct {
	Name    string
	TypeStr string    // Go spelling of the field type
	Kind    ValueKind // KindSeq for supported slices
	Elem    ValueKind // element kind when Kind == KindSeq
}

// MethodModel represents an exported pointer-receiver method.
type MethodModel struct {
	Name       string
	Doc        string
	Params     []ParamModel
	Result     *ParamModel // the single non-error result, nil when none
	ReturnsErr bool        // true if the last result is error
	// Reason is non-empty when the signature cannot be projected; the
	// generator skips such methods and reports them.
	Reason string
}

// ParamModel represents a parameter or result.
type ParamModel struct {
	Name    string
	TypeStr string
	Kind    ValueKind
	Elem    ValueKind
}
