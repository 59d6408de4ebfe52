package reflect

import (
	"fmt"
	"sync"

	stdreflect "reflect"

	"github.com/plywood-build/plywood/pkg/perrors"
)

// Registry is the process-wide type table. Every Type that
// participates in serialization or in the Pylon bridge must be
// registered before use; registration is the only way a decoded
// stream can bind back to a concrete type.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]Type
	goToName map[stdreflect.Type]string
}

// NewRegistry constructs an empty Registry; no type, scalar or
// otherwise, is registered in it yet.
func NewRegistry() *Registry {
	r := &Registry{
		byName:   make(map[string]Type),
		goToName: make(map[stdreflect.Type]string),
	}
	return r
}

func (r *Registry) register(name string, t Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byName[name]; ok {
		if existing.Fingerprint() != t.Fingerprint() {
			return perrors.Programmer("type %q already registered with a different shape", name).WithResource(name)
		}
		return nil
	}
	r.byName[name] = t
	return nil
}

// Lookup returns the registered Type with the given name.
func (r *Registry) Lookup(name string) (Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// MustLookup panics if name is not registered; used where the caller
// has already established the type must exist (e.g. resolving a
// typeRef during Zero()).
func (r *Registry) MustLookup(name string) Type {
	t, ok := r.Lookup(name)
	if !ok {
		panic(perrors.Programmer("type %q is not registered", name))
	}
	return t
}

// typeRef is a lazily-resolved Type, used for struct members that
// refer to another registered type by name. It lets RegisterNative
// build self-referential and mutually-referential struct graphs
// without needing the referenced Type fully constructed up front.
type typeRef struct {
	reg  *Registry
	name string
}

func (t typeRef) Name() string          { return t.name }
func (t typeRef) Kind() Kind            { return t.reg.MustLookup(t.name).Kind() }
func (t typeRef) Zero() Any             { return t.reg.MustLookup(t.name).Zero() }
func (t typeRef) Fingerprint() string   { return t.reg.MustLookup(t.name).Fingerprint() }
func (t typeRef) Resolve() Type         { return t.reg.MustLookup(t.name) }

// Ref returns a lazily-resolved reference to the named type, for
// building recursive or forward-referencing struct graphs.
func (r *Registry) Ref(name string) Type {
	return typeRef{reg: r, name: name}
}

// resolver is implemented by Type wrappers (typeRef, localSlotRef)
// that stand in for another Type until it's fully constructed.
type resolver interface {
	Resolve() Type
}

// Resolve unwraps any lazy Type reference (a forward reference used
// while building a recursive struct graph, or a registry reference
// used while decoding) down to the concrete underlying Type. Callers
// outside this package that need to type-switch on a Member's or
// Array/Owned element's Type should call Resolve first.
func Resolve(t Type) Type {
	for {
		r, ok := t.(resolver)
		if !ok {
			return t
		}
		t = r.Resolve()
	}
}

// RegisterScalar installs a named scalar alias (e.g. a domain-specific
// int type) backed by an existing scalar Kind.
func (r *Registry) RegisterScalar(t Type) error {
	return r.register(t.Name(), t)
}

// RegisterStruct installs a synthesized or native struct type
// directly from a pre-built StructType, e.g. one parsed from a Pylon
// schema with no compiled Go counterpart.
func (r *Registry) RegisterStruct(t StructType) (StructType, error) {
	if err := r.register(t.TypeName, t); err != nil {
		return StructType{}, err
	}
	return t, nil
}

// RegisterEnum installs an EnumType.
func (r *Registry) RegisterEnum(t EnumType) (EnumType, error) {
	if err := r.register(t.TypeName, t); err != nil {
		return EnumType{}, err
	}
	return t, nil
}

// RegisterSwitch installs a SwitchType.
func (r *Registry) RegisterSwitch(t SwitchType) (SwitchType, error) {
	if err := r.register(t.TypeName, t); err != nil {
		return SwitchType{}, err
	}
	return t, nil
}

// RegisterNative derives a StructType from a compiled Go struct value
// (not a pointer) and registers it under name, recursing into nested
// struct/slice/pointer fields. It is the entry point a module author
// calls once, at package init time, for every Go struct that should
// be reflectable.
func (r *Registry) RegisterNative(name string, sample interface{}) (StructType, error) {
	gt := stdreflect.TypeOf(sample)
	if gt.Kind() == stdreflect.Ptr {
		gt = gt.Elem()
	}
	if gt.Kind() != stdreflect.Struct {
		return StructType{}, perrors.Programmer("RegisterNative requires a struct value, got %s", gt.Kind())
	}

	r.mu.Lock()
	if existingName, ok := r.goToName[gt]; ok {
		r.mu.Unlock()
		existing, _ := r.Lookup(existingName)
		return existing.(StructType), nil
	}
	r.goToName[gt] = name
	r.mu.Unlock()

	members := make([]Member, 0, gt.NumField())
	for i := 0; i < gt.NumField(); i++ {
		f := gt.Field(i)
		if !f.IsExported() {
			continue
		}
		memberName, weak := parsePlyTag(f.Name, f.Tag)
		if memberName == "" {
			continue
		}
		mt, err := r.goFieldType(f.Type, weak)
		if err != nil {
			return StructType{}, perrors.Programmer("registering %s.%s: %v", name, f.Name, err).WithResource(name)
		}
		members = append(members, Member{Name: memberName, Type: mt})
	}

	st := StructType{TypeName: name, Members: members, GoType: &NativeBinding{GoType: gt}}
	if err := r.register(name, st); err != nil {
		return StructType{}, err
	}
	return st, nil
}

// parsePlyTag splits a `ply:"name,weak"` struct tag into the member
// name (defaulting to fallback when the tag is absent) and whether
// the "weak" option was given. A bare "-" tag (no weak option) hides
// the field, signaled by returning an empty name.
func parsePlyTag(fallback string, tag stdreflect.StructTag) (string, bool) {
	raw, ok := tag.Lookup("ply")
	if !ok || raw == "" {
		return fallback, false
	}
	parts := stringsSplit(raw, ',')
	name := parts[0]
	if name == "-" {
		return "", false
	}
	if name == "" {
		name = fallback
	}
	weak := false
	for _, opt := range parts[1:] {
		if opt == "weak" {
			weak = true
		}
	}
	return name, weak
}

func stringsSplit(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func (r *Registry) goFieldType(gt stdreflect.Type, weak bool) (Type, error) {
	switch gt.Kind() {
	case stdreflect.Bool:
		return BoolType{}, nil
	case stdreflect.Int, stdreflect.Int8, stdreflect.Int16, stdreflect.Int32, stdreflect.Int64:
		return IntType{TypeName: gt.Name(), BitWidth: intBitWidth(gt)}, nil
	case stdreflect.Uint, stdreflect.Uint8, stdreflect.Uint16, stdreflect.Uint32, stdreflect.Uint64:
		return UintType{TypeName: gt.Name(), BitWidth: uintBitWidth(gt)}, nil
	case stdreflect.Float32:
		return FloatType{TypeName: gt.Name(), BitWidth: 32}, nil
	case stdreflect.Float64:
		return FloatType{TypeName: gt.Name(), BitWidth: 64}, nil
	case stdreflect.String:
		return StringType{}, nil
	case stdreflect.Slice:
		if gt.Elem().Kind() == stdreflect.Uint8 {
			return RawType{}, nil
		}
		elem, err := r.goFieldType(gt.Elem(), false)
		if err != nil {
			return nil, err
		}
		return ArrayType{Elem: elem}, nil
	case stdreflect.Array:
		elem, err := r.goFieldType(gt.Elem(), false)
		if err != nil {
			return nil, err
		}
		return FixedArrayType{Elem: elem, Count: gt.Len()}, nil
	case stdreflect.Ptr:
		elem, err := r.goFieldType(gt.Elem(), false)
		if err != nil {
			return nil, err
		}
		if weak {
			return RawPtrType{Elem: elem}, nil
		}
		return OwnedType{Elem: elem}, nil
	case stdreflect.Struct:
		if name, ok := r.goToName[gt]; ok {
			return r.Ref(name), nil
		}
		// Forward-reference: reserve the name before recursing so
		// self-referential and mutually-referential struct graphs
		// terminate.
		name := gt.Name()
		r.goToName[gt] = name
		sub, err := r.registerNativeLocked(name, gt)
		if err != nil {
			return nil, err
		}
		return sub, nil
	default:
		return nil, fmt.Errorf("unsupported Go kind %s", gt.Kind())
	}
}

// registerNativeLocked builds and installs a StructType for a nested
// struct gt reached while RegisterNative walks its fields. r.mu is not
// held here (RegisterNative releases it before the walk); the only
// lock taken is register()'s own, around the final map insert.
func (r *Registry) registerNativeLocked(name string, gt stdreflect.Type) (Type, error) {
	members := make([]Member, 0, gt.NumField())
	for i := 0; i < gt.NumField(); i++ {
		f := gt.Field(i)
		if !f.IsExported() {
			continue
		}
		memberName, weak := parsePlyTag(f.Name, f.Tag)
		if memberName == "" {
			continue
		}
		mt, err := r.goFieldType(f.Type, weak)
		if err != nil {
			return nil, err
		}
		members = append(members, Member{Name: memberName, Type: mt})
	}
	st := StructType{TypeName: name, Members: members, GoType: &NativeBinding{GoType: gt}}
	if err := r.register(name, st); err != nil {
		return nil, err
	}
	return st, nil
}

func intBitWidth(gt stdreflect.Type) int {
	switch gt.Kind() {
	case stdreflect.Int8:
		return 8
	case stdreflect.Int16:
		return 16
	case stdreflect.Int32:
		return 32
	default:
		return 64
	}
}

func uintBitWidth(gt stdreflect.Type) int {
	switch gt.Kind() {
	case stdreflect.Uint8:
		return 8
	case stdreflect.Uint16:
		return 16
	case stdreflect.Uint32:
		return 32
	default:
		return 64
	}
}
