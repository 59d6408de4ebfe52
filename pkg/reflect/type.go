package reflect

import "fmt"

// Type is the trait every reflected type descriptor implements.
// Instead of a virtual-function table bolted onto a base class, each
// Kind gets its own concrete Type
// implementation and callers type-switch on Kind() when they need
// kind-specific data (Members, Elem, States, Values).
type Type interface {
	Name() string
	Kind() Kind
	// Zero returns a freshly constructed zero-value instance of this
	// type.
	Zero() Any
	// Fingerprint is a short structural signature used by the binary
	// serializer's schema section to detect when a decoded object's
	// recorded shape no longer matches the registry's live definition.
	Fingerprint() string
}

// Member describes one named field of a Struct or one payload field
// of a Switch state.
type Member struct {
	Name string
	Type Type
}

// BoolType is the Type for KindBool.
type BoolType struct{}

func (BoolType) Name() string        { return "Bool" }
func (BoolType) Kind() Kind          { return KindBool }
func (BoolType) Zero() Any           { return Any{typ: BoolType{}, val: false} }
func (BoolType) Fingerprint() string { return "bool" }

// IntType is the Type for KindInt; BitWidth is one of 8/16/32/64.
type IntType struct {
	TypeName string
	BitWidth int
}

func (t IntType) Name() string { return t.TypeName }
func (IntType) Kind() Kind     { return KindInt }
func (t IntType) Zero() Any    { return Any{typ: t, val: int64(0)} }
func (t IntType) Fingerprint() string {
	return fmt.Sprintf("int%d", t.BitWidth)
}

// UintType is the Type for KindUint.
type UintType struct {
	TypeName string
	BitWidth int
}

func (t UintType) Name() string { return t.TypeName }
func (UintType) Kind() Kind     { return KindUint }
func (t UintType) Zero() Any    { return Any{typ: t, val: uint64(0)} }
func (t UintType) Fingerprint() string {
	return fmt.Sprintf("uint%d", t.BitWidth)
}

// FloatType is the Type for KindFloat; BitWidth is 32 or 64.
type FloatType struct {
	TypeName string
	BitWidth int
}

func (t FloatType) Name() string { return t.TypeName }
func (FloatType) Kind() Kind     { return KindFloat }
func (t FloatType) Zero() Any    { return Any{typ: t, val: float64(0)} }
func (t FloatType) Fingerprint() string {
	return fmt.Sprintf("float%d", t.BitWidth)
}

// StringType is the Type for KindString.
type StringType struct{}

func (StringType) Name() string        { return "String" }
func (StringType) Kind() Kind          { return KindString }
func (StringType) Zero() Any           { return Any{typ: StringType{}, val: ""} }
func (StringType) Fingerprint() string { return "string" }

// RawType is the Type for KindRaw: an opaque byte blob, used for
// extension data a reader doesn't understand but must round-trip.
type RawType struct{}

func (RawType) Name() string        { return "Raw" }
func (RawType) Kind() Kind          { return KindRaw }
func (RawType) Zero() Any           { return Any{typ: RawType{}, val: []byte(nil)} }
func (RawType) Fingerprint() string { return "raw" }

// ArrayType is the Type for KindArray: an ordered, growable sequence
// of a single element Type.
type ArrayType struct {
	Elem Type
}

func (t ArrayType) Name() string { return "Array<" + t.Elem.Name() + ">" }
func (ArrayType) Kind() Kind     { return KindArray }
func (t ArrayType) Zero() Any    { return Any{typ: t, val: &[]Any{}} }
func (t ArrayType) Fingerprint() string {
	return "array:" + t.Elem.Fingerprint()
}

// FixedArrayType is the Type for KindFixedArray: an ordered sequence
// of Count elements of a single element Type, where Count is fixed at
// schema-definition time rather than growable like ArrayType. Backed
// by the same *[]Any representation as ArrayType (see Any.Array);
// callers that need to distinguish the two check Kind().
type FixedArrayType struct {
	Elem  Type
	Count int
}

func (t FixedArrayType) Name() string { return fmt.Sprintf("FixedArray<%s,%d>", t.Elem.Name(), t.Count) }
func (FixedArrayType) Kind() Kind     { return KindFixedArray }
func (t FixedArrayType) Zero() Any {
	elems := make([]Any, t.Count)
	for i := range elems {
		elems[i] = t.Elem.Zero()
	}
	return Any{typ: t, val: &elems}
}
func (t FixedArrayType) Fingerprint() string {
	return fmt.Sprintf("fixed_array:%d:%s", t.Count, t.Elem.Fingerprint())
}

// OwnedType is the Type for KindOwned: a nullable, exclusively-owned
// single child. The owner constructs and releases the pointee;
// serialization emits it inline on first encounter.
type OwnedType struct {
	Elem Type
}

func (t OwnedType) Name() string { return "Owned<" + t.Elem.Name() + ">" }
func (OwnedType) Kind() Kind     { return KindOwned }
func (t OwnedType) Zero() Any    { return Any{typ: t, val: (*Any)(nil)} }
func (t OwnedType) Fingerprint() string {
	return "owned:" + t.Elem.Fingerprint()
}

// RawPtrType is the Type for KindRawPtr: a non-owning reference to a
// child that some other Owned or array slot in the same object graph
// owns. Unlike OwnedType, a RawPtrType slot never carries the only
// reference to its target, so the serializer emits a back-reference
// into the link section instead of inlining the value a second time
// (see pkg/reflect/serialize.go's wire format doc comment).
type RawPtrType struct {
	Elem Type
}

func (t RawPtrType) Name() string { return "RawPtr<" + t.Elem.Name() + ">" }
func (RawPtrType) Kind() Kind     { return KindRawPtr }
func (t RawPtrType) Zero() Any    { return Any{typ: t, val: (*Any)(nil)} }
func (t RawPtrType) Fingerprint() string {
	return "raw_ptr:" + t.Elem.Fingerprint()
}

// StructType is the Type for KindStruct. GoType is non-nil when this
// type was registered from a compiled Go struct (a "native" type);
// it is nil for types synthesized at runtime from a Pylon schema with
// no compiled counterpart.
type StructType struct {
	TypeName string
	Members  []Member
	GoType   *NativeBinding
}

func (t StructType) Name() string { return t.TypeName }
func (StructType) Kind() Kind     { return KindStruct }

func (t StructType) Zero() Any {
	inst := &StructInstance{Fields: make(map[string]*Any, len(t.Members)), Order: make([]string, len(t.Members))}
	for i, m := range t.Members {
		v := m.Type.Zero()
		inst.Fields[m.Name] = &v
		inst.Order[i] = m.Name
	}
	return Any{typ: t, val: inst}
}

func (t StructType) Fingerprint() string {
	s := "struct{"
	for _, m := range t.Members {
		s += m.Name + ":" + m.Type.Fingerprint() + ","
	}
	return s + "}"
}

// MemberByName returns the Member with the given name, if present.
func (t StructType) MemberByName(name string) (Member, bool) {
	for _, m := range t.Members {
		if m.Name == name {
			return m, true
		}
	}
	return Member{}, false
}

// State describes one tagged-union arm of a Switch type.
type State struct {
	Name    string
	Payload Type // the struct Type carried when this state is active
}

// SwitchType is the Type for KindSwitch: a tagged union where exactly
// one State is active at a time.
type SwitchType struct {
	TypeName string
	States   []State
}

func (t SwitchType) Name() string { return t.TypeName }
func (SwitchType) Kind() Kind     { return KindSwitch }

func (t SwitchType) Zero() Any {
	if len(t.States) == 0 {
		return Any{typ: t, val: &SwitchInstance{}}
	}
	payload := t.States[0].Payload.Zero()
	return Any{typ: t, val: &SwitchInstance{StateIndex: 0, Payload: &payload}}
}

func (t SwitchType) Fingerprint() string {
	s := "switch{"
	for _, st := range t.States {
		s += st.Name + ":" + st.Payload.Fingerprint() + ","
	}
	return s + "}"
}

// StateByName returns the index and State with the given name.
func (t SwitchType) StateByName(name string) (int, State, bool) {
	for i, st := range t.States {
		if st.Name == name {
			return i, st, true
		}
	}
	return -1, State{}, false
}

// EnumValue is one named integer constant of an EnumType.
type EnumValue struct {
	Name  string
	Value int64
}

// EnumType is the Type for KindEnum.
type EnumType struct {
	TypeName string
	Values   []EnumValue
}

func (t EnumType) Name() string { return t.TypeName }
func (EnumType) Kind() Kind     { return KindEnum }

func (t EnumType) Zero() Any {
	var v int64
	if len(t.Values) > 0 {
		v = t.Values[0].Value
	}
	return Any{typ: t, val: v}
}

func (t EnumType) Fingerprint() string {
	s := "enum{"
	for _, v := range t.Values {
		s += fmt.Sprintf("%s=%d,", v.Name, v.Value)
	}
	return s + "}"
}

// NameOf returns the symbolic name for an enum integer value, or ""
// if unrecognized.
func (t EnumType) NameOf(value int64) string {
	for _, v := range t.Values {
		if v.Value == value {
			return v.Name
		}
	}
	return ""
}
