package vm

// TypeTag identifies the machine-level type of a stack slot.
type TypeTag int8

const (
	// TypeNone is reported for acceptable but unoccupied indices.
	TypeNone TypeTag = iota - 1
	TypeNil
	TypeBoolean
	TypeNumber
	TypeString
	TypeTable
	TypeFunction
	TypeUserdata
	TypeThread
)

var typeNames = [...]string{
	TypeNil + 1:      "nil",
	TypeBoolean + 1:  "boolean",
	TypeNumber + 1:   "number",
	TypeString + 1:   "string",
	TypeTable + 1:    "table",
	TypeFunction + 1: "function",
	TypeUserdata + 1: "userdata",
	TypeThread + 1:   "thread",
}

func (t TypeTag) String() string {
	if t == TypeNone {
		return "no value"
	}
	if i := int(t) + 1; i >= 1 && i < len(typeNames) {
		return typeNames[i]
	}
	return "unknown"
}
