package reflect

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/plywood-build/plywood/pkg/perrors"
)

func floatBitsFrom(v float64) uint64 { return math.Float64bits(v) }
func floatFromBits(b uint64) float64 { return math.Float64frombits(b) }

// Wire format:
//
//	magic (4 bytes "PLYR") | version (uvarint)
//	schema section: count (uvarint), then one wireType per entry,
//	                then the root's schema index (uvarint)
//	object section: a single encoded Any (the root)
//	link section: count (uvarint), then count * (weak slot offset, owning target offset)
//
// The schema section is a self-contained description of every Type
// reachable from the root, recorded by structural shape rather than
// by assuming the reader has the same Go types registered — this is
// the "schema travels with the data" property that lets a reader
// reconstruct (or validate against its own registry) types it has
// never seen before.
//
// In the object section, an Owned pointer's pointee is written inline
// the first time its identity is reached and as a back-reference
// index into the object section on every subsequent sighting (at-most-
// once serialization). A RawPtr slot never owns its target and may be
// reached before its owning path is written at all, so instead of
// inlining or indexing it writes only a presence byte; the link
// section, written once the whole object section is known, records
// where each such slot's target actually ended up, and the reader
// patches the in-memory pointer graph after the main decode pass.

const wireMagic = "PLYR"
const wireVersion = 1

type wireMember struct {
	Name      string
	TypeIndex int
}

type wireState struct {
	Name      string
	TypeIndex int
}

type wireType struct {
	Kind      Kind
	Name      string
	BitWidth  int
	ElemIndex int
	Count     int // element count for KindFixedArray; unused otherwise
	Members   []wireMember
	States    []wireState
	Values    []EnumValue
}

// schemaBuilder walks an Any tree collecting the distinct Types it
// references, in first-encounter order, assigning each a stable index
// used by the object section to refer back to its schema entry.
type schemaBuilder struct {
	index   map[string]int // Type.Fingerprint() -> index
	entries []wireType
}

func newSchemaBuilder() *schemaBuilder {
	return &schemaBuilder{index: make(map[string]int)}
}

func (b *schemaBuilder) intern(t Type) int {
	if ref, ok := t.(typeRef); ok {
		t = ref.Resolve()
	}
	fp := t.Fingerprint()
	if idx, ok := b.index[fp]; ok {
		return idx
	}
	idx := len(b.entries)
	b.index[fp] = idx
	b.entries = append(b.entries, wireType{}) // reserve slot for cycle safety
	b.entries[idx] = b.build(t, idx)
	return idx
}

func (b *schemaBuilder) build(t Type, selfIdx int) wireType {
	switch t.Kind() {
	case KindBool, KindString, KindRaw:
		return wireType{Kind: t.Kind(), Name: t.Name()}
	case KindInt:
		it := t.(IntType)
		return wireType{Kind: KindInt, Name: it.TypeName, BitWidth: it.BitWidth}
	case KindUint:
		it := t.(UintType)
		return wireType{Kind: KindUint, Name: it.TypeName, BitWidth: it.BitWidth}
	case KindFloat:
		ft := t.(FloatType)
		return wireType{Kind: KindFloat, Name: ft.TypeName, BitWidth: ft.BitWidth}
	case KindArray:
		at := t.(ArrayType)
		return wireType{Kind: KindArray, ElemIndex: b.intern(at.Elem)}
	case KindFixedArray:
		at := t.(FixedArrayType)
		return wireType{Kind: KindFixedArray, ElemIndex: b.intern(at.Elem), Count: at.Count}
	case KindOwned:
		ot := t.(OwnedType)
		return wireType{Kind: KindOwned, ElemIndex: b.intern(ot.Elem)}
	case KindRawPtr:
		rt := t.(RawPtrType)
		return wireType{Kind: KindRawPtr, ElemIndex: b.intern(rt.Elem)}
	case KindStruct:
		st := t.(StructType)
		members := make([]wireMember, len(st.Members))
		for i, m := range st.Members {
			members[i] = wireMember{Name: m.Name, TypeIndex: b.intern(m.Type)}
		}
		return wireType{Kind: KindStruct, Name: st.TypeName, Members: members}
	case KindSwitch:
		swt := t.(SwitchType)
		states := make([]wireState, len(swt.States))
		for i, s := range swt.States {
			states[i] = wireState{Name: s.Name, TypeIndex: b.intern(s.Payload)}
		}
		return wireType{Kind: KindSwitch, Name: swt.TypeName, States: states}
	case KindEnum:
		et := t.(EnumType)
		return wireType{Kind: KindEnum, Name: et.TypeName, Values: et.Values}
	default:
		return wireType{Kind: KindInvalid}
	}
}

// encodeLinker tracks identity during a single Encode call: owners
// maps an Owned child's *Any identity to the object-section byte
// offset where its value begins, letting a later sighting of the same
// identity emit a back-reference instead of inlining again. weakRefs
// records every RawPtr slot written, to be resolved into link-section
// entries once the whole object section (and therefore every owners
// offset) is known.
type encodeLinker struct {
	owners   map[*Any]int
	weakRefs []weakLink
}

type weakLink struct {
	slotOffset int
	target     *Any
}

func newEncodeLinker() *encodeLinker {
	return &encodeLinker{owners: make(map[*Any]int)}
}

// Encode serializes root, including a full schema section describing
// every Type it transitively references.
func Encode(root Any) ([]byte, error) {
	if !root.IsValid() {
		return nil, perrors.Programmer("cannot encode an invalid Any")
	}
	sb := newSchemaBuilder()
	rootIdx := sb.intern(root.Type())

	header := &bytes.Buffer{}
	header.WriteString(wireMagic)
	writeUvarint(header, wireVersion)
	writeUvarint(header, uint64(len(sb.entries)))
	for _, e := range sb.entries {
		if err := writeWireType(header, e); err != nil {
			return nil, err
		}
	}
	writeUvarint(header, uint64(rootIdx))

	objBuf := &bytes.Buffer{}
	linker := newEncodeLinker()
	if err := writeAnyValue(objBuf, root, linker); err != nil {
		return nil, err
	}

	type resolvedLink struct{ slotOffset, targetOffset int }
	var resolved []resolvedLink
	for _, wr := range linker.weakRefs {
		if targetOffset, ok := linker.owners[wr.target]; ok {
			resolved = append(resolved, resolvedLink{wr.slotOffset, targetOffset})
		}
		// A weak pointer whose target was never reached through an
		// owning path anywhere in this object graph stays unresolved
		// and decodes back to null, rather than emitting a dangling
		// link entry.
	}
	linkBuf := &bytes.Buffer{}
	writeUvarint(linkBuf, uint64(len(resolved)))
	for _, rl := range resolved {
		writeUvarint(linkBuf, uint64(rl.slotOffset))
		writeUvarint(linkBuf, uint64(rl.targetOffset))
	}

	out := make([]byte, 0, header.Len()+objBuf.Len()+linkBuf.Len())
	out = append(out, header.Bytes()...)
	out = append(out, objBuf.Bytes()...)
	out = append(out, linkBuf.Bytes()...)
	return out, nil
}

func writeWireType(buf *bytes.Buffer, e wireType) error {
	buf.WriteByte(byte(e.Kind))
	writeString(buf, e.Name)
	writeUvarint(buf, uint64(e.BitWidth))
	writeUvarint(buf, uint64(e.ElemIndex))
	writeUvarint(buf, uint64(e.Count))
	writeUvarint(buf, uint64(len(e.Members)))
	for _, m := range e.Members {
		writeString(buf, m.Name)
		writeUvarint(buf, uint64(m.TypeIndex))
	}
	writeUvarint(buf, uint64(len(e.States)))
	for _, s := range e.States {
		writeString(buf, s.Name)
		writeUvarint(buf, uint64(s.TypeIndex))
	}
	writeUvarint(buf, uint64(len(e.Values)))
	for _, v := range e.Values {
		writeString(buf, v.Name)
		writeUvarint(buf, uint64(v.Value))
	}
	return nil
}

func writeAnyValue(buf *bytes.Buffer, a Any, linker *encodeLinker) error {
	switch a.typ.Kind() {
	case KindBool:
		v, _ := a.Bool()
		if v {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case KindInt:
		v, _ := a.Int()
		writeVarint(buf, v)
	case KindUint:
		v, _ := a.Uint()
		writeUvarint(buf, v)
	case KindFloat:
		v, _ := a.Float()
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], floatBitsFrom(v))
		buf.Write(b[:])
	case KindString:
		v, _ := a.String()
		writeString(buf, v)
	case KindRaw:
		v, _ := a.Raw()
		writeBytes(buf, v)
	case KindEnum:
		v, _ := a.Enum()
		writeVarint(buf, v)
	case KindArray:
		arr, _ := a.Array()
		writeUvarint(buf, uint64(len(*arr)))
		for _, e := range *arr {
			if err := writeAnyValue(buf, e, linker); err != nil {
				return err
			}
		}
	case KindFixedArray:
		arr, _ := a.Array()
		for _, e := range *arr {
			if err := writeAnyValue(buf, e, linker); err != nil {
				return err
			}
		}
	case KindOwned:
		child, _ := a.Owned()
		if child == nil {
			buf.WriteByte(0)
			return nil
		}
		if offset, ok := linker.owners[child]; ok {
			buf.WriteByte(2)
			writeUvarint(buf, uint64(offset))
			return nil
		}
		buf.WriteByte(1)
		linker.owners[child] = buf.Len()
		return writeAnyValue(buf, *child, linker)
	case KindRawPtr:
		child, _ := a.Owned()
		if child == nil {
			buf.WriteByte(0)
			return nil
		}
		slotOffset := buf.Len()
		buf.WriteByte(1)
		linker.weakRefs = append(linker.weakRefs, weakLink{slotOffset: slotOffset, target: child})
	case KindStruct:
		inst, _ := a.Struct()
		for _, name := range inst.Order {
			if err := writeAnyValue(buf, *inst.Fields[name], linker); err != nil {
				return err
			}
		}
	case KindSwitch:
		sw, _ := a.Switch()
		writeUvarint(buf, uint64(sw.StateIndex))
		if sw.Payload != nil {
			return writeAnyValue(buf, *sw.Payload, linker)
		}
	default:
		return perrors.Programmer("cannot encode kind %s", a.typ.Kind())
	}
	return nil
}

// posReader wraps a *bytes.Reader with a running byte-position
// counter, so the object-section decode can record, for every Owned
// payload and RawPtr slot it reads, the exact offset writeAnyValue
// used for that same value — the coordinate space the link section's
// offset pairs are expressed in.
type posReader struct {
	r   *bytes.Reader
	pos int
}

func (p *posReader) ReadByte() (byte, error) {
	b, err := p.r.ReadByte()
	if err == nil {
		p.pos++
	}
	return b, err
}

func (p *posReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.pos += n
	return n, err
}

// byteReader is satisfied by both *bytes.Reader (used while parsing
// the schema section) and *posReader (used while parsing the object
// section), so readString/readBytes serve both without duplication.
type byteReader interface {
	io.Reader
	io.ByteReader
}

// decodeLinker is the read-side counterpart of encodeLinker: owners
// maps an Owned payload's recorded offset to the *Any decoded there
// (resolving both in-object back-references and link-section
// targets), and weakSlots maps a RawPtr slot's offset to the
// placeholder *Any returned for it, patched once the link section is
// read.
type decodeLinker struct {
	owners    map[int]*Any
	weakSlots map[int]*Any
}

func newDecodeLinker() *decodeLinker {
	return &decodeLinker{owners: make(map[int]*Any), weakSlots: make(map[int]*Any)}
}

// Decode parses a blob produced by Encode. If reg is non-nil, any
// struct/switch/enum whose recorded name matches a type already
// registered there — and whose fingerprint agrees — is reconstructed
// using the registry's Type (so the result can be fed to ToNative);
// otherwise it falls back to the type synthesized from the wire
// schema section itself, which is always sufficient to read the data
// back as a generic Any tree even when the reader has never heard of
// the type.
func Decode(data []byte, reg *Registry) (Any, error) {
	r := bytes.NewReader(data)
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != wireMagic {
		return Any{}, perrors.Parse("not a reflected-object blob").WithOperation("decode")
	}
	version, err := binary.ReadUvarint(r)
	if err != nil || version != wireVersion {
		return Any{}, perrors.Parse("unsupported reflected-object version %d", version).WithOperation("decode")
	}
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return Any{}, perrors.Parse("truncated schema section").WithOperation("decode")
	}
	wireTypes := make([]wireType, count)
	for i := range wireTypes {
		wt, err := readWireType(r)
		if err != nil {
			return Any{}, err
		}
		wireTypes[i] = wt
	}
	types, err := resolveWireTypes(wireTypes, reg)
	if err != nil {
		return Any{}, err
	}
	rootIdx, err := binary.ReadUvarint(r)
	if err != nil || int(rootIdx) >= len(types) {
		return Any{}, perrors.Parse("invalid root type index").WithOperation("decode")
	}

	pr := &posReader{r: r}
	linker := newDecodeLinker()
	root, err := readAnyValue(pr, types[rootIdx], linker)
	if err != nil {
		return Any{}, err
	}

	linkCount, err := binary.ReadUvarint(r)
	if err != nil {
		return Any{}, perrors.Parse("truncated link section").WithOperation("decode")
	}
	for i := uint64(0); i < linkCount; i++ {
		slotOffset, err := binary.ReadUvarint(r)
		if err != nil {
			return Any{}, perrors.Parse("truncated link section entry").WithOperation("decode")
		}
		targetOffset, err := binary.ReadUvarint(r)
		if err != nil {
			return Any{}, perrors.Parse("truncated link section entry").WithOperation("decode")
		}
		slot, ok := linker.weakSlots[int(slotOffset)]
		if !ok {
			continue
		}
		target, ok := linker.owners[int(targetOffset)]
		if !ok {
			return Any{}, perrors.Parse("link section references unknown object offset %d", targetOffset).WithOperation("decode")
		}
		*slot = *target
	}

	return root, nil
}

func readWireType(r *bytes.Reader) (wireType, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return wireType{}, perrors.Parse("truncated schema entry").WithOperation("decode")
	}
	e := wireType{Kind: Kind(kindByte)}
	if e.Name, err = readString(r); err != nil {
		return wireType{}, err
	}
	bw, err := binary.ReadUvarint(r)
	if err != nil {
		return wireType{}, perrors.Parse("truncated schema entry bit width").WithOperation("decode")
	}
	e.BitWidth = int(bw)
	ei, err := binary.ReadUvarint(r)
	if err != nil {
		return wireType{}, perrors.Parse("truncated schema entry elem index").WithOperation("decode")
	}
	e.ElemIndex = int(ei)
	cnt, err := binary.ReadUvarint(r)
	if err != nil {
		return wireType{}, perrors.Parse("truncated schema entry count").WithOperation("decode")
	}
	e.Count = int(cnt)

	mcount, err := binary.ReadUvarint(r)
	if err != nil {
		return wireType{}, perrors.Parse("truncated member count").WithOperation("decode")
	}
	e.Members = make([]wireMember, mcount)
	for i := range e.Members {
		name, err := readString(r)
		if err != nil {
			return wireType{}, err
		}
		idx, err := binary.ReadUvarint(r)
		if err != nil {
			return wireType{}, perrors.Parse("truncated member type index").WithOperation("decode")
		}
		e.Members[i] = wireMember{Name: name, TypeIndex: int(idx)}
	}

	scount, err := binary.ReadUvarint(r)
	if err != nil {
		return wireType{}, perrors.Parse("truncated state count").WithOperation("decode")
	}
	e.States = make([]wireState, scount)
	for i := range e.States {
		name, err := readString(r)
		if err != nil {
			return wireType{}, err
		}
		idx, err := binary.ReadUvarint(r)
		if err != nil {
			return wireType{}, perrors.Parse("truncated state type index").WithOperation("decode")
		}
		e.States[i] = wireState{Name: name, TypeIndex: int(idx)}
	}

	vcount, err := binary.ReadUvarint(r)
	if err != nil {
		return wireType{}, perrors.Parse("truncated enum value count").WithOperation("decode")
	}
	e.Values = make([]EnumValue, vcount)
	for i := range e.Values {
		name, err := readString(r)
		if err != nil {
			return wireType{}, err
		}
		v, err := binary.ReadVarint(r)
		if err != nil {
			return wireType{}, perrors.Parse("truncated enum value").WithOperation("decode")
		}
		e.Values[i] = EnumValue{Name: name, Value: v}
	}
	return e, nil
}

// localSlotRef resolves lazily against a shared slice, the same way
// typeRef resolves lazily against the Registry — needed here because
// wire schema entries may reference each other out of order (forward
// references, or cycles through Owned/Array).
type localSlotRef struct {
	slots *[]Type
	idx   int
}

func (l localSlotRef) Name() string        { return (*l.slots)[l.idx].Name() }
func (l localSlotRef) Kind() Kind          { return (*l.slots)[l.idx].Kind() }
func (l localSlotRef) Zero() Any           { return (*l.slots)[l.idx].Zero() }
func (l localSlotRef) Fingerprint() string { return (*l.slots)[l.idx].Fingerprint() }
func (l localSlotRef) Resolve() Type       { return (*l.slots)[l.idx] }

func resolveWireTypes(wireTypes []wireType, reg *Registry) ([]Type, error) {
	slots := make([]Type, len(wireTypes))
	for i, wt := range wireTypes {
		ref := localSlotRef{slots: &slots, idx: i}
		switch wt.Kind {
		case KindBool:
			slots[i] = BoolType{}
		case KindString:
			slots[i] = StringType{}
		case KindRaw:
			slots[i] = RawType{}
		case KindInt:
			slots[i] = IntType{TypeName: wt.Name, BitWidth: wt.BitWidth}
		case KindUint:
			slots[i] = UintType{TypeName: wt.Name, BitWidth: wt.BitWidth}
		case KindFloat:
			slots[i] = FloatType{TypeName: wt.Name, BitWidth: wt.BitWidth}
		case KindArray:
			slots[i] = ArrayType{Elem: localSlotRef{slots: &slots, idx: wt.ElemIndex}}
		case KindFixedArray:
			slots[i] = FixedArrayType{Elem: localSlotRef{slots: &slots, idx: wt.ElemIndex}, Count: wt.Count}
		case KindOwned:
			slots[i] = OwnedType{Elem: localSlotRef{slots: &slots, idx: wt.ElemIndex}}
		case KindRawPtr:
			slots[i] = RawPtrType{Elem: localSlotRef{slots: &slots, idx: wt.ElemIndex}}
		case KindStruct:
			members := make([]Member, len(wt.Members))
			for j, m := range wt.Members {
				members[j] = Member{Name: m.Name, Type: localSlotRef{slots: &slots, idx: m.TypeIndex}}
			}
			slots[i] = StructType{TypeName: wt.Name, Members: members}
		case KindSwitch:
			states := make([]State, len(wt.States))
			for j, s := range wt.States {
				states[j] = State{Name: s.Name, Payload: localSlotRef{slots: &slots, idx: s.TypeIndex}}
			}
			slots[i] = SwitchType{TypeName: wt.Name, States: states}
		case KindEnum:
			slots[i] = EnumType{TypeName: wt.Name, Values: wt.Values}
		default:
			return nil, perrors.Parse("unknown wire type kind %d", wt.Kind)
		}
		_ = ref
	}
	if reg != nil {
		for i, t := range slots {
			if reconciled, ok := reconcileWithRegistry(t, reg); ok {
				slots[i] = reconciled
			}
		}
	}
	return slots, nil
}

// reconcileWithRegistry swaps a wire-synthesized struct/switch/enum
// for the registry's own Type of the same name, provided their
// structural fingerprints agree. A name collision with a differing
// fingerprint is left to the caller (readAnyValue doesn't error here;
// the mismatch will surface as a SchemaMismatch if the caller attempts
// ToNative).
func reconcileWithRegistry(t Type, reg *Registry) (Type, bool) {
	switch t.Kind() {
	case KindStruct, KindSwitch, KindEnum:
	default:
		return nil, false
	}
	existing, ok := reg.Lookup(t.Name())
	if !ok {
		return nil, false
	}
	if existing.Fingerprint() != t.Fingerprint() {
		return nil, false
	}
	return existing, true
}

func readAnyValue(pr *posReader, t Type, linker *decodeLinker) (Any, error) {
	switch t.Kind() {
	case KindBool:
		b, err := pr.ReadByte()
		if err != nil {
			return Any{}, perrors.Parse("truncated bool").WithOperation("decode")
		}
		return Any{typ: t, val: b != 0}, nil
	case KindInt:
		v, err := binary.ReadVarint(pr)
		if err != nil {
			return Any{}, perrors.Parse("truncated int").WithOperation("decode")
		}
		return Any{typ: t, val: v}, nil
	case KindUint:
		v, err := binary.ReadUvarint(pr)
		if err != nil {
			return Any{}, perrors.Parse("truncated uint").WithOperation("decode")
		}
		return Any{typ: t, val: v}, nil
	case KindFloat:
		var b [8]byte
		if _, err := io.ReadFull(pr, b[:]); err != nil {
			return Any{}, perrors.Parse("truncated float").WithOperation("decode")
		}
		return Any{typ: t, val: floatFromBits(binary.LittleEndian.Uint64(b[:]))}, nil
	case KindString:
		s, err := readString(pr)
		if err != nil {
			return Any{}, err
		}
		return Any{typ: t, val: s}, nil
	case KindRaw:
		b, err := readBytes(pr)
		if err != nil {
			return Any{}, err
		}
		return Any{typ: t, val: b}, nil
	case KindEnum:
		v, err := binary.ReadVarint(pr)
		if err != nil {
			return Any{}, perrors.Parse("truncated enum").WithOperation("decode")
		}
		return Any{typ: t, val: v}, nil
	case KindArray:
		at := t.(ArrayType)
		n, err := binary.ReadUvarint(pr)
		if err != nil {
			return Any{}, perrors.Parse("truncated array length").WithOperation("decode")
		}
		out := make([]Any, n)
		for i := range out {
			e, err := readAnyValue(pr, at.Elem, linker)
			if err != nil {
				return Any{}, err
			}
			out[i] = e
		}
		return Any{typ: t, val: &out}, nil
	case KindFixedArray:
		ft := t.(FixedArrayType)
		out := make([]Any, ft.Count)
		for i := range out {
			e, err := readAnyValue(pr, ft.Elem, linker)
			if err != nil {
				return Any{}, err
			}
			out[i] = e
		}
		return Any{typ: t, val: &out}, nil
	case KindOwned:
		ot := t.(OwnedType)
		marker, err := pr.ReadByte()
		if err != nil {
			return Any{}, perrors.Parse("truncated owned presence byte").WithOperation("decode")
		}
		switch marker {
		case 0:
			return Any{typ: t, val: (*Any)(nil)}, nil
		case 1:
			payloadOffset := pr.pos
			e, err := readAnyValue(pr, ot.Elem, linker)
			if err != nil {
				return Any{}, err
			}
			child := &e
			linker.owners[payloadOffset] = child
			return Any{typ: t, val: child}, nil
		case 2:
			offset, err := binary.ReadUvarint(pr)
			if err != nil {
				return Any{}, perrors.Parse("truncated owned back-reference").WithOperation("decode")
			}
			target, ok := linker.owners[int(offset)]
			if !ok {
				return Any{}, perrors.Parse("owned back-reference to unknown offset %d", offset).WithOperation("decode")
			}
			return Any{typ: t, val: target}, nil
		default:
			return Any{}, perrors.Parse("invalid owned presence marker %d", marker).WithOperation("decode")
		}
	case KindRawPtr:
		slotOffset := pr.pos
		marker, err := pr.ReadByte()
		if err != nil {
			return Any{}, perrors.Parse("truncated raw pointer presence byte").WithOperation("decode")
		}
		if marker == 0 {
			return Any{typ: t, val: (*Any)(nil)}, nil
		}
		placeholder := &Any{}
		linker.weakSlots[slotOffset] = placeholder
		return Any{typ: t, val: placeholder}, nil
	case KindStruct:
		st := t.(StructType)
		inst := &StructInstance{Fields: make(map[string]*Any, len(st.Members)), Order: make([]string, len(st.Members))}
		for i, m := range st.Members {
			e, err := readAnyValue(pr, m.Type, linker)
			if err != nil {
				return Any{}, fmt.Errorf("reading member %s.%s: %w", st.TypeName, m.Name, err)
			}
			inst.Fields[m.Name] = &e
			inst.Order[i] = m.Name
		}
		return Any{typ: t, val: inst}, nil
	case KindSwitch:
		swt := t.(SwitchType)
		idx, err := binary.ReadUvarint(pr)
		if err != nil {
			return Any{}, perrors.Parse("truncated switch state index").WithOperation("decode")
		}
		if int(idx) >= len(swt.States) {
			return Any{}, perrors.SchemaMismatch("switch state index %d out of range for %s", idx, swt.TypeName)
		}
		payload, err := readAnyValue(pr, swt.States[idx].Payload, linker)
		if err != nil {
			return Any{}, err
		}
		return Any{typ: t, val: &SwitchInstance{StateIndex: int(idx), Payload: &payload}}, nil
	default:
		return Any{}, perrors.Parse("unsupported type kind during decode: %s", t.Kind())
	}
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeVarint(buf *bytes.Buffer, v int64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func readString(r byteReader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", perrors.Parse("truncated string length").WithOperation("decode")
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", perrors.Parse("truncated string bytes").WithOperation("decode")
	}
	return string(b), nil
}

func readBytes(r byteReader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, perrors.Parse("truncated bytes length").WithOperation("decode")
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, perrors.Parse("truncated bytes").WithOperation("decode")
	}
	return b, nil
}
