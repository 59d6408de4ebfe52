// Package reflect implements the module's reflected-type runtime: a
// process-wide Type Registry, a type-erased Any-Object value, and a
// schema-carrying binary serializer. Its API is unrelated to the
// standard library's reflect package, which it imports internally to
// bind native Go structs into the registry and to convert values
// between them and Any trees.
package reflect

// Kind tags the shape of a Type. Code switches on Kind and
// type-asserts the concrete Type implementation it expects.
type Kind int

const (
	KindInvalid Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindArray      // ordered, homogeneous, growable sequence
	KindFixedArray // ordered, homogeneous sequence of a fixed, compile-time-known length
	KindOwned      // nullable single child, exclusive ownership
	KindRawPtr     // non-owning reference to a child owned elsewhere in the object graph
	KindStruct     // ordered named members, fixed shape
	KindSwitch     // tagged union: exactly one of N named states, each carrying its own struct
	KindEnum       // named integer constants
	KindRaw        // opaque byte blob, used as an escape hatch for extension data
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindFixedArray:
		return "fixed_array"
	case KindOwned:
		return "owned"
	case KindRawPtr:
		return "raw_ptr"
	case KindStruct:
		return "struct"
	case KindSwitch:
		return "switch"
	case KindEnum:
		return "enum"
	case KindRaw:
		return "raw"
	default:
		return "invalid"
	}
}
