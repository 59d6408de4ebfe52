package reflect

import (
	stdreflect "reflect"

	"github.com/plywood-build/plywood/pkg/perrors"
)

// NativeBinding remembers the compiled Go type a StructType was
// derived from, so FromNative/ToNative can convert without a second
// registry lookup.
type NativeBinding struct {
	GoType stdreflect.Type
}

// fromNativeCtx preserves Go pointer identity across FromNative's
// recursive Owned/RawPtr conversions: two struct fields that point at
// the same Go value produce Any children sharing the same *Any Go
// pointer. That shared pointer is the signal Encode's link section
// uses to detect a value reachable through more than one path and
// emit a back-reference instead of serializing it twice.
type fromNativeCtx struct {
	seen map[uintptr]*Any
}

func newFromNativeCtx() *fromNativeCtx {
	return &fromNativeCtx{seen: make(map[uintptr]*Any)}
}

// FromNative snapshots a compiled Go struct value into an Any tree
// shaped by t. ptr must be a pointer to a value of t.GoType.GoType (or
// an interface wrapping one); the same struct that was passed to
// RegisterNative.
func FromNative(t StructType, ptr interface{}) (Any, error) {
	rv := stdreflect.ValueOf(ptr)
	if rv.Kind() == stdreflect.Ptr {
		rv = rv.Elem()
	}
	return fromNativeValue(t, rv, newFromNativeCtx())
}

func fromNativeValue(t StructType, rv stdreflect.Value, ctx *fromNativeCtx) (Any, error) {
	inst := &StructInstance{Fields: make(map[string]*Any, len(t.Members)), Order: make([]string, len(t.Members))}
	for i, m := range t.Members {
		fv := rv.FieldByName(goFieldName(t, m.Name))
		if !fv.IsValid() {
			return Any{}, perrors.SchemaMismatch("native struct %s has no field for member %q", t.TypeName, m.Name)
		}
		a, err := fromNativeField(m.Type, fv, ctx)
		if err != nil {
			return Any{}, err
		}
		inst.Fields[m.Name] = &a
		inst.Order[i] = m.Name
	}
	return Any{typ: t, val: inst}, nil
}

// goFieldName reverses the `ply:"..."` tag lookup done at
// registration time. StructType doesn't keep the original Go field
// name, so this re-derives it by scanning the Go fields for the one
// whose tag-derived member name matches, falling back to the member
// name verbatim when none does.
func goFieldName(t StructType, memberName string) string {
	if t.GoType == nil {
		return memberName
	}
	gt := t.GoType.GoType
	for i := 0; i < gt.NumField(); i++ {
		f := gt.Field(i)
		if name, _ := parsePlyTag(f.Name, f.Tag); name == memberName {
			return f.Name
		}
	}
	return memberName
}

func fromNativeField(mt Type, fv stdreflect.Value, ctx *fromNativeCtx) (Any, error) {
	switch mt.Kind() {
	case KindBool:
		return Any{typ: mt, val: fv.Bool()}, nil
	case KindInt:
		return Any{typ: mt, val: fv.Int()}, nil
	case KindUint:
		return Any{typ: mt, val: fv.Uint()}, nil
	case KindFloat:
		return Any{typ: mt, val: fv.Float()}, nil
	case KindString:
		return Any{typ: mt, val: fv.String()}, nil
	case KindRaw:
		b := make([]byte, fv.Len())
		stdreflect.Copy(stdreflect.ValueOf(b), fv)
		return Any{typ: mt, val: b}, nil
	case KindArray:
		at := mt.(ArrayType)
		out := make([]Any, fv.Len())
		for i := 0; i < fv.Len(); i++ {
			e, err := fromNativeField(at.Elem, fv.Index(i), ctx)
			if err != nil {
				return Any{}, err
			}
			out[i] = e
		}
		return Any{typ: mt, val: &out}, nil
	case KindFixedArray:
		at := mt.(FixedArrayType)
		out := make([]Any, fv.Len())
		for i := 0; i < fv.Len(); i++ {
			e, err := fromNativeField(at.Elem, fv.Index(i), ctx)
			if err != nil {
				return Any{}, err
			}
			out[i] = e
		}
		return Any{typ: mt, val: &out}, nil
	case KindOwned:
		ot := mt.(OwnedType)
		return fromNativePointer(mt, ot.Elem, fv, ctx)
	case KindRawPtr:
		rt := mt.(RawPtrType)
		return fromNativePointer(mt, rt.Elem, fv, ctx)
	case KindStruct:
		st, ok := resolveStruct(mt)
		if !ok {
			return Any{}, perrors.Programmer("member type %q is not a struct", mt.Name())
		}
		return fromNativeValue(st, fv, ctx)
	default:
		return Any{}, perrors.Programmer("unsupported native member kind %s", mt.Kind())
	}
}

// fromNativePointer converts a Go pointer field shared between
// KindOwned and KindRawPtr: both carry a nullable *Any payload, and
// both consult ctx.seen by the Go pointer's address so that the same
// pointer reached through two different fields resolves to the same
// *Any Go pointer.
func fromNativePointer(mt, elemType Type, fv stdreflect.Value, ctx *fromNativeCtx) (Any, error) {
	if fv.IsNil() {
		return Any{typ: mt, val: (*Any)(nil)}, nil
	}
	ptr := fv.Pointer()
	if existing, ok := ctx.seen[ptr]; ok {
		return Any{typ: mt, val: existing}, nil
	}
	e, err := fromNativeField(elemType, fv.Elem(), ctx)
	if err != nil {
		return Any{}, err
	}
	child := &e
	ctx.seen[ptr] = child
	return Any{typ: mt, val: child}, nil
}

func resolveStruct(t Type) (StructType, bool) {
	st, ok := Resolve(t).(StructType)
	return st, ok
}

// toNativeCtx preserves Any pointer identity across ToNative's
// recursive Owned/RawPtr conversions: the same *Any slot, whichever
// field reaches it first, is materialized into exactly one Go value
// that every other reference to it shares, the inverse of
// fromNativeCtx.
type toNativeCtx struct {
	seen map[*Any]stdreflect.Value
}

// ToNative writes an Any struct instance back into a compiled Go
// struct, the inverse of FromNative. out must be a pointer to a value
// of the same Go type the StructType was registered from.
func ToNative(a Any, out interface{}) error {
	st, ok := a.Struct()
	if !ok {
		return perrors.SchemaMismatch("ToNative requires a struct Any, got %s", a.typ.Kind())
	}
	rv := stdreflect.ValueOf(out)
	if rv.Kind() != stdreflect.Ptr {
		return perrors.Programmer("ToNative requires a pointer destination")
	}
	structType := a.typ.(StructType)
	ctx := &toNativeCtx{seen: make(map[*Any]stdreflect.Value)}
	return toNativeValue(structType, st, rv.Elem(), ctx)
}

func toNativeValue(t StructType, inst *StructInstance, rv stdreflect.Value, ctx *toNativeCtx) error {
	for _, m := range t.Members {
		f := inst.Fields[m.Name]
		if f == nil {
			continue
		}
		fv := rv.FieldByName(goFieldName(t, m.Name))
		if !fv.IsValid() || !fv.CanSet() {
			continue
		}
		if err := toNativeField(*f, fv, ctx); err != nil {
			return err
		}
	}
	return nil
}

func toNativeField(a Any, fv stdreflect.Value, ctx *toNativeCtx) error {
	switch a.typ.Kind() {
	case KindBool:
		v, _ := a.Bool()
		fv.SetBool(v)
	case KindInt:
		v, _ := a.Int()
		fv.SetInt(v)
	case KindUint:
		v, _ := a.Uint()
		fv.SetUint(v)
	case KindFloat:
		v, _ := a.Float()
		fv.SetFloat(v)
	case KindString:
		v, _ := a.String()
		fv.SetString(v)
	case KindRaw:
		v, _ := a.Raw()
		fv.SetBytes(v)
	case KindArray:
		arr, _ := a.Array()
		slice := stdreflect.MakeSlice(fv.Type(), len(*arr), len(*arr))
		for i, e := range *arr {
			if err := toNativeField(e, slice.Index(i), ctx); err != nil {
				return err
			}
		}
		fv.Set(slice)
	case KindFixedArray:
		arr, _ := a.Array()
		for i, e := range *arr {
			if i >= fv.Len() {
				break
			}
			if err := toNativeField(e, fv.Index(i), ctx); err != nil {
				return err
			}
		}
	case KindOwned, KindRawPtr:
		child, _ := a.Owned()
		if child == nil {
			fv.Set(stdreflect.Zero(fv.Type()))
			return nil
		}
		if existing, ok := ctx.seen[child]; ok {
			fv.Set(existing)
			return nil
		}
		elem := stdreflect.New(fv.Type().Elem())
		ctx.seen[child] = elem
		if err := toNativeField(*child, elem.Elem(), ctx); err != nil {
			return err
		}
		fv.Set(elem)
	case KindStruct:
		st, _ := a.Struct()
		structType := a.typ.(StructType)
		if err := toNativeValue(structType, st, fv, ctx); err != nil {
			return err
		}
	default:
		return perrors.Programmer("unsupported native member kind %s", a.typ.Kind())
	}
	return nil
}
