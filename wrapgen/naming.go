package wrapgen

import (
	"strings"
	"unicode"
)

// MemberName converts a Go exported name to the projected member name.
// Go uses PascalCase; projected members use camelCase.
// e.g. "DistanceTo" -> "distanceTo", "X" -> "x"
func MemberName(name string) string {
	if name == "" {
		return name
	}
	return strings.ToLower(name[:1]) + name[1:]
}

// TypeVarName names the generated package-level UDType variable.
// e.g. "Point" -> "PointType"
func TypeVarName(typeName string) string {
	return typeName + "Type"
}

// PackageNameFor derives a Go package name from an output directory,
// keeping only letters and digits. e.g. "internal/my-bindings" ->
// "mybindings"
func PackageNameFor(dir string) string {
	base := dir
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	var b strings.Builder
	for _, r := range strings.ToLower(base) {
		if unicode.IsLetter(r) || (unicode.IsDigit(r) && b.Len() > 0) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "bindings"
	}
	return b.String()
}
