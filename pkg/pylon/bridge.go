package pylon

import (
	"strconv"

	"github.com/plywood-build/plywood/pkg/perrors"
	preflect "github.com/plywood-build/plywood/pkg/reflect"
)

// Warning is a recoverable import diagnostic: something in the node
// tree didn't bind (an unknown key, an unknown switch state) but the
// rest of the import carried on. Path is the dotted location inside
// the document ("options.windows[2].flags").
type Warning struct {
	Path    string
	FileOfs int
	Message string
}

// ImportInto populates dst, a struct Any, from a parsed Pylon object
// node, one mentioned key at a time. Keys the struct doesn't declare
// and switch states the type doesn't name are collected as Warnings
// rather than aborting the import; fields the node doesn't mention
// keep whatever dst already held. Structural impossibilities (a text
// node where an object is required, an unparseable number) still fail
// with an error.
func ImportInto(dst preflect.Any, n *Node) ([]Warning, error) {
	if !dst.IsValid() || dst.Type().Kind() != preflect.KindStruct {
		return nil, perrors.Programmer("ImportInto requires a struct Any, got %v", dst.Type())
	}
	inst, ok := dst.Struct()
	if !ok {
		return nil, perrors.Programmer("struct Any has no instance")
	}
	if !n.IsObject() {
		return nil, perrors.SchemaMismatch("expected an object document for struct %s", dst.Type().Name())
	}
	st, ok := resolveStruct(dst.Type())
	if !ok {
		return nil, perrors.Programmer("type %s is not a struct", dst.Type().Name())
	}
	var warns []Warning
	for _, item := range n.Items() {
		m, ok := st.MemberByName(item.Key)
		if !ok {
			warns = append(warns, Warning{
				Path:    item.Key,
				FileOfs: nodeOfs(item.Value),
				Message: "unknown field " + strconv.Quote(item.Key) + " for struct " + st.Name(),
			})
			continue
		}
		v, err := bindNode(item.Value, m.Type, item.Key, &warns)
		if err != nil {
			return warns, err
		}
		inst.Set(item.Key, v)
	}
	return warns, nil
}

// NodeToAny binds a parsed Pylon Node tree to a reflected Type,
// producing a fully-typed Any. It is the strict read half of the
// Any-Object bridge: any key or switch state the type doesn't declare
// aborts the bind with a schema mismatch. Use ImportInto for the
// lenient, warnings-collecting contract config files want.
func NodeToAny(n *Node, t preflect.Type) (preflect.Any, error) {
	return bindNode(n, t, "", nil)
}

func childPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func indexPath(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}

func nodeOfs(n *Node) int {
	if n == nil {
		return 0
	}
	return n.FileOfs
}

// bindNode is the shared binder behind NodeToAny and ImportInto. A
// nil warns means strict: unknown keys and states are errors. With
// warns set, they are recorded and skipped, leaving the affected
// field or switch default-constructed.
func bindNode(n *Node, t preflect.Type, path string, warns *[]Warning) (preflect.Any, error) {
	if !n.IsValid() {
		return preflect.Any{}, perrors.SchemaMismatch("cannot bind an invalid node").WithOperation("pylon.bind")
	}
	switch t.Kind() {
	case preflect.KindBool:
		if !n.IsText() {
			return preflect.Any{}, perrors.SchemaMismatch("expected a boolean text value at %s", path)
		}
		switch n.TextValue() {
		case "true":
			return preflect.NewAny(t, true), nil
		case "false":
			return preflect.NewAny(t, false), nil
		default:
			return preflect.Any{}, perrors.Parse("invalid boolean literal %q at %s", n.TextValue(), path)
		}
	case preflect.KindInt:
		if !n.IsText() {
			return preflect.Any{}, perrors.SchemaMismatch("expected an integer text value at %s", path)
		}
		v, err := strconv.ParseInt(n.TextValue(), 10, 64)
		if err != nil {
			return preflect.Any{}, perrors.Parse("invalid integer literal %q at %s", n.TextValue(), path)
		}
		return preflect.NewAny(t, v), nil
	case preflect.KindUint:
		if !n.IsText() {
			return preflect.Any{}, perrors.SchemaMismatch("expected an unsigned integer text value at %s", path)
		}
		v, err := strconv.ParseUint(n.TextValue(), 10, 64)
		if err != nil {
			return preflect.Any{}, perrors.Parse("invalid unsigned integer literal %q at %s", n.TextValue(), path)
		}
		return preflect.NewAny(t, v), nil
	case preflect.KindFloat:
		if !n.IsText() {
			return preflect.Any{}, perrors.SchemaMismatch("expected a floating point text value at %s", path)
		}
		v, err := strconv.ParseFloat(n.TextValue(), 64)
		if err != nil {
			return preflect.Any{}, perrors.Parse("invalid float literal %q at %s", n.TextValue(), path)
		}
		return preflect.NewAny(t, v), nil
	case preflect.KindString:
		if !n.IsText() {
			return preflect.Any{}, perrors.SchemaMismatch("expected a string text value at %s", path)
		}
		return preflect.NewAny(t, n.TextValue()), nil
	case preflect.KindEnum:
		if !n.IsText() {
			return preflect.Any{}, perrors.SchemaMismatch("expected an enum name text value at %s", path)
		}
		et, ok := resolveEnum(t)
		if !ok {
			return preflect.Any{}, perrors.Programmer("type %s is not an enum", t.Name())
		}
		for _, v := range et.Values {
			if v.Name == n.TextValue() {
				return preflect.NewAny(t, v.Value), nil
			}
		}
		return preflect.Any{}, perrors.Parse("unknown enum value %q for %s at %s", n.TextValue(), t.Name(), path)
	case preflect.KindArray:
		if !n.IsArray() {
			return preflect.Any{}, perrors.SchemaMismatch("expected an array value at %s", path)
		}
		at, ok := resolveArray(t)
		if !ok {
			return preflect.Any{}, perrors.Programmer("type %s is not an array", t.Name())
		}
		out := make([]preflect.Any, 0, n.Len())
		for i, e := range n.ArrayView() {
			ea, err := bindNode(e, at.Elem, indexPath(path, i), warns)
			if err != nil {
				return preflect.Any{}, err
			}
			out = append(out, ea)
		}
		return preflect.NewAny(t, &out), nil
	case preflect.KindOwned:
		ot, ok := resolveOwned(t)
		if !ok {
			return preflect.Any{}, perrors.Programmer("type %s is not owned", t.Name())
		}
		if !n.IsValid() {
			return preflect.NewAny(t, (*preflect.Any)(nil)), nil
		}
		child, err := bindNode(n, ot.Elem, path, warns)
		if err != nil {
			return preflect.Any{}, err
		}
		return preflect.NewAny(t, &child), nil
	case preflect.KindStruct:
		if !n.IsObject() {
			return preflect.Any{}, perrors.SchemaMismatch("expected an object value for struct %s at %s", t.Name(), path)
		}
		st, ok := resolveStruct(t)
		if !ok {
			return preflect.Any{}, perrors.Programmer("type %s is not a struct", t.Name())
		}
		zero := st.Zero()
		inst, _ := zero.Struct()
		for _, item := range n.Items() {
			m, ok := st.MemberByName(item.Key)
			if !ok {
				if warns == nil {
					return preflect.Any{}, perrors.SchemaMismatch("unknown field %q for struct %s at %s", item.Key, t.Name(), path).WithOperation("pylon.bind")
				}
				*warns = append(*warns, Warning{
					Path:    childPath(path, item.Key),
					FileOfs: nodeOfs(item.Value),
					Message: "unknown field " + strconv.Quote(item.Key) + " for struct " + t.Name(),
				})
				continue
			}
			v, err := bindNode(item.Value, m.Type, childPath(path, item.Key), warns)
			if err != nil {
				return preflect.Any{}, err
			}
			inst.Set(item.Key, v)
		}
		return zero, nil
	case preflect.KindSwitch:
		if !n.IsObject() || n.Len() != 1 {
			return preflect.Any{}, perrors.SchemaMismatch("expected a single-key object for switch %s at %s", t.Name(), path)
		}
		swt, ok := resolveSwitch(t)
		if !ok {
			return preflect.Any{}, perrors.Programmer("type %s is not a switch", t.Name())
		}
		item := n.Items()[0]
		idx, state, ok := swt.StateByName(item.Key)
		if !ok {
			if warns == nil {
				return preflect.Any{}, perrors.SchemaMismatch("unknown switch state %q for %s at %s", item.Key, t.Name(), path)
			}
			*warns = append(*warns, Warning{
				Path:    childPath(path, item.Key),
				FileOfs: nodeOfs(item.Value),
				Message: "unknown switch state " + strconv.Quote(item.Key) + " for " + t.Name(),
			})
			return t.Zero(), nil
		}
		payload, err := bindNode(item.Value, state.Payload, childPath(path, item.Key), warns)
		if err != nil {
			return preflect.Any{}, err
		}
		return preflect.NewAny(t, &preflect.SwitchInstance{StateIndex: idx, Payload: &payload}), nil
	default:
		return preflect.Any{}, perrors.Programmer("unsupported type kind %s in pylon bridge", t.Kind())
	}
}

// AnyToNode is the write half of the bridge: it projects a reflected
// Any back into a Pylon Node tree, suitable for Write.
func AnyToNode(a preflect.Any) (*Node, error) {
	if !a.IsValid() {
		return Invalid(), nil
	}
	switch a.Type().Kind() {
	case preflect.KindBool:
		v, _ := a.Bool()
		if v {
			return Text("true"), nil
		}
		return Text("false"), nil
	case preflect.KindInt:
		v, _ := a.Int()
		return Text(strconv.FormatInt(v, 10)), nil
	case preflect.KindUint:
		v, _ := a.Uint()
		return Text(strconv.FormatUint(v, 10)), nil
	case preflect.KindFloat:
		v, _ := a.Float()
		return Text(strconv.FormatFloat(v, 'g', -1, 64)), nil
	case preflect.KindString:
		v, _ := a.String()
		return Text(v), nil
	case preflect.KindEnum:
		et, _ := resolveEnum(a.Type())
		v, _ := a.Enum()
		return Text(et.NameOf(v)), nil
	case preflect.KindArray:
		arr, _ := a.Array()
		n := Array()
		for _, e := range *arr {
			child, err := AnyToNode(e)
			if err != nil {
				return nil, err
			}
			n.Append(child)
		}
		return n, nil
	case preflect.KindOwned:
		child, _ := a.Owned()
		if child == nil {
			return Invalid(), nil
		}
		return AnyToNode(*child)
	case preflect.KindStruct:
		inst, _ := a.Struct()
		n := NewObjectNode()
		for _, name := range inst.Order {
			child, err := AnyToNode(*inst.Fields[name])
			if err != nil {
				return nil, err
			}
			n.Set(name, child)
		}
		return n, nil
	case preflect.KindSwitch:
		sw, _ := a.Switch()
		swt, _ := resolveSwitch(a.Type())
		n := NewObjectNode()
		if sw.Payload != nil && sw.StateIndex < len(swt.States) {
			child, err := AnyToNode(*sw.Payload)
			if err != nil {
				return nil, err
			}
			n.Set(swt.States[sw.StateIndex].Name, child)
		}
		return n, nil
	default:
		return nil, perrors.Programmer("unsupported type kind %s in pylon bridge", a.Type().Kind())
	}
}

func resolveStruct(t preflect.Type) (preflect.StructType, bool) {
	st, ok := preflect.Resolve(t).(preflect.StructType)
	return st, ok
}

func resolveArray(t preflect.Type) (preflect.ArrayType, bool) {
	at, ok := preflect.Resolve(t).(preflect.ArrayType)
	return at, ok
}

func resolveOwned(t preflect.Type) (preflect.OwnedType, bool) {
	ot, ok := preflect.Resolve(t).(preflect.OwnedType)
	return ot, ok
}

func resolveSwitch(t preflect.Type) (preflect.SwitchType, bool) {
	swt, ok := preflect.Resolve(t).(preflect.SwitchType)
	return swt, ok
}

func resolveEnum(t preflect.Type) (preflect.EnumType, bool) {
	et, ok := preflect.Resolve(t).(preflect.EnumType)
	return et, ok
}
