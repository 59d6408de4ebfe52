package reflect

import "github.com/plywood-build/plywood/pkg/perrors"

// Any is the type-erased object: a value paired with the Type that
// describes its shape. It is represented not as a raw pointer plus a
// type-descriptor pointer, but as a small tagged union (val's dynamic
// type is determined entirely by typ.Kind()), following the "sum type
// of type-handle variants" guidance for translating type-erased
// dispatch into Go.
type Any struct {
	typ Type
	val interface{}
}

// NewAny pairs typ with an already-constructed value val. Most callers
// should use typ.Zero() directly; NewAny exists for code (the Pylon
// bridge, the binary reader) that builds val incrementally.
func NewAny(typ Type, val interface{}) Any {
	return Any{typ: typ, val: val}
}

// Type returns the Any's type descriptor.
func (a Any) Type() Type { return a.typ }

// IsValid reports whether this Any carries a type at all.
func (a Any) IsValid() bool { return a.typ != nil }

// Bool returns the underlying bool and whether the type matched.
func (a Any) Bool() (bool, bool) { v, ok := a.val.(bool); return v, ok }

// Int returns the underlying integer as an int64 and whether the
// type matched KindInt.
func (a Any) Int() (int64, bool) {
	if a.typ == nil || a.typ.Kind() != KindInt {
		return 0, false
	}
	v, ok := a.val.(int64)
	return v, ok
}

// Uint returns the underlying integer as a uint64 and whether the
// type matched KindUint.
func (a Any) Uint() (uint64, bool) {
	if a.typ == nil || a.typ.Kind() != KindUint {
		return 0, false
	}
	v, ok := a.val.(uint64)
	return v, ok
}

// Float returns the underlying float and whether the type matched.
func (a Any) Float() (float64, bool) {
	if a.typ == nil || a.typ.Kind() != KindFloat {
		return 0, false
	}
	v, ok := a.val.(float64)
	return v, ok
}

// String returns the underlying string and whether the type matched.
func (a Any) String() (string, bool) {
	v, ok := a.val.(string)
	return v, ok
}

// Raw returns the underlying byte blob and whether the type matched.
func (a Any) Raw() ([]byte, bool) {
	v, ok := a.val.([]byte)
	return v, ok
}

// Struct returns the underlying *StructInstance and whether the type
// matched KindStruct.
func (a Any) Struct() (*StructInstance, bool) {
	v, ok := a.val.(*StructInstance)
	return v, ok
}

// Array returns the underlying element slice pointer and whether the
// type matched KindArray.
func (a Any) Array() (*[]Any, bool) {
	v, ok := a.val.(*[]Any)
	return v, ok
}

// Owned returns the underlying nullable child pointer and whether the
// type matched KindOwned. The returned *Any is nil if unset.
func (a Any) Owned() (*Any, bool) {
	v, ok := a.val.(*Any)
	return v, ok
}

// Switch returns the underlying *SwitchInstance and whether the type
// matched KindSwitch.
func (a Any) Switch() (*SwitchInstance, bool) {
	v, ok := a.val.(*SwitchInstance)
	return v, ok
}

// Enum returns the underlying enum integer value and whether the type
// matched KindEnum.
func (a Any) Enum() (int64, bool) {
	if a.typ == nil || a.typ.Kind() != KindEnum {
		return 0, false
	}
	v, ok := a.val.(int64)
	return v, ok
}

// StructInstance backs both native and synthesized Struct Anys. Order
// preserves declaration order so member iteration is deterministic,
// which stable serialization and the Pylon bridge's export ordering
// both rely on.
type StructInstance struct {
	Fields map[string]*Any
	Order  []string
}

// Get returns the field named name, or a zero Any and false if absent.
func (s *StructInstance) Get(name string) (Any, bool) {
	f, ok := s.Fields[name]
	if !ok {
		return Any{}, false
	}
	return *f, true
}

// Set replaces the field named name. It is a programmer error to Set
// a field name the StructType does not declare.
func (s *StructInstance) Set(name string, v Any) {
	f, ok := s.Fields[name]
	if !ok {
		panic(perrors.Programmer("struct instance has no field %q", name))
	}
	*f = v
}

// SwitchInstance backs a Switch Any: exactly one state is active at a
// time, identified by StateIndex into the SwitchType's States slice.
type SwitchInstance struct {
	StateIndex int
	Payload    *Any
}

// SetState switches the active arm to stateIndex, replacing Payload
// with a fresh zero value of that state's type. It is a programmer
// error to pass a state index the SwitchType does not declare.
// Callers that need to preserve overlapping fields across a switch
// should read them before calling SetState.
func (s *SwitchInstance) SetState(t SwitchType, stateIndex int) {
	if stateIndex < 0 || stateIndex >= len(t.States) {
		panic(perrors.Programmer("switch state index %d out of range for %s", stateIndex, t.TypeName))
	}
	payload := t.States[stateIndex].Payload.Zero()
	s.StateIndex = stateIndex
	s.Payload = &payload
}

// Copy produces a deep, independent copy of an Any, recursing through
// arrays, owned children, structs, and switches. Scalars copy by
// value.
func Copy(a Any) Any {
	if a.typ == nil {
		return Any{}
	}
	switch a.typ.Kind() {
	case KindArray, KindFixedArray:
		src, _ := a.Array()
		dst := make([]Any, len(*src))
		for i, e := range *src {
			dst[i] = Copy(e)
		}
		return Any{typ: a.typ, val: &dst}
	case KindOwned:
		src, _ := a.Owned()
		if src == nil {
			return Any{typ: a.typ, val: (*Any)(nil)}
		}
		c := Copy(*src)
		return Any{typ: a.typ, val: &c}
	case KindStruct:
		src, _ := a.Struct()
		dst := &StructInstance{Fields: make(map[string]*Any, len(src.Fields)), Order: append([]string(nil), src.Order...)}
		for name, f := range src.Fields {
			c := Copy(*f)
			dst.Fields[name] = &c
		}
		return Any{typ: a.typ, val: dst}
	case KindSwitch:
		src, _ := a.Switch()
		var payload *Any
		if src.Payload != nil {
			c := Copy(*src.Payload)
			payload = &c
		}
		return Any{typ: a.typ, val: &SwitchInstance{StateIndex: src.StateIndex, Payload: payload}}
	default:
		return Any{typ: a.typ, val: a.val}
	}
}
