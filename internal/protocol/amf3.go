package protocol

import (
	"fmt"
	"strconv"
	"time"
)

// amf3Traits describes the shape of an AMF3 object.
type amf3Traits struct {
	className      string
	externalizable bool
	dynamic        bool
	sealed         []string
}

// amf3Decoder holds the reference tables for one AMF3 context.
type amf3Decoder struct {
	r       *wireReader
	strings []string
	objects []Value
	traits  []*amf3Traits
	depth   int
}

func newAMF3Decoder(r *wireReader) *amf3Decoder {
	return &amf3Decoder{r: r}
}

// readValue reads a marker followed by its payload.
func (d *amf3Decoder) readValue() (Value, error) {
	d.depth++
	defer func() { d.depth-- }()
	if d.depth > maxDepth {
		return nil, d.r.failf("amf3 value", "nesting deeper than %d", maxDepth)
	}

	marker, err := d.r.readByte("amf3 marker")
	if err != nil {
		return nil, err
	}

	switch marker {
	case amf3Undefined:
		return Undefined{}, nil
	case amf3Null:
		return Null{}, nil
	case amf3False:
		return Bool(false), nil
	case amf3True:
		return Bool(true), nil
	case amf3Integer:
		u, err := d.r.readU29("amf3 integer")
		if err != nil {
			return nil, err
		}
		n := int32(u)
		if u&0x10000000 != 0 {
			n = int32(u) - 0x20000000
		}
		return Int(n), nil
	case amf3Double:
		f, err := d.r.readFloat64("amf3 double")
		if err != nil {
			return nil, err
		}
		return Double(f), nil
	case amf3String:
		s, err := d.readString()
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case amf3XMLDoc, amf3XML:
		return d.readXML()
	case amf3Date:
		return d.readDate()
	case amf3Array:
		return d.readArray()
	case amf3Object:
		return d.readObject()
	case amf3ByteArray:
		return d.readByteArray()
	case amf3VectorInt, amf3VectorUint, amf3VectorDouble, amf3VectorObject:
		return d.readVector(marker)
	case amf3Dictionary:
		return d.readDictionary()
	default:
		return nil, &CodecError{Offset: d.r.pos - 1, Op: "amf3 marker", Err: fmt.Errorf("unknown marker 0x%02x", marker)}
	}
}

// readRef reads a U29 header and reports whether it is an inline value.
// For references the returned value is the table index.
func (d *amf3Decoder) readRef(op string) (uint32, bool, error) {
	u, err := d.r.readU29(op)
	if err != nil {
		return 0, false, err
	}
	return u >> 1, u&1 == 1, nil
}

func (d *amf3Decoder) objectRef(idx uint32, op string) (Value, error) {
	if int(idx) >= len(d.objects) {
		return nil, d.r.failf(op, "object reference %d out of range (%d known)", idx, len(d.objects))
	}
	return d.objects[idx], nil
}

func (d *amf3Decoder) readString() (string, error) {
	n, inline, err := d.readRef("amf3 string")
	if err != nil {
		return "", err
	}
	if !inline {
		if int(n) >= len(d.strings) {
			return "", d.r.failf("amf3 string", "string reference %d out of range (%d known)", n, len(d.strings))
		}
		return d.strings[n], nil
	}
	s, err := d.r.readString(int(n), "amf3 string")
	if err != nil {
		return "", err
	}
	if s != "" {
		d.strings = append(d.strings, s)
	}
	return s, nil
}

func (d *amf3Decoder) readXML() (Value, error) {
	n, inline, err := d.readRef("amf3 xml")
	if err != nil {
		return nil, err
	}
	if !inline {
		return d.objectRef(n, "amf3 xml")
	}
	s, err := d.r.readString(int(n), "amf3 xml")
	if err != nil {
		return nil, err
	}
	v := XML(s)
	d.objects = append(d.objects, v)
	return v, nil
}

func (d *amf3Decoder) readDate() (Value, error) {
	n, inline, err := d.readRef("amf3 date")
	if err != nil {
		return nil, err
	}
	if !inline {
		return d.objectRef(n, "amf3 date")
	}
	ms, err := d.r.readFloat64("amf3 date")
	if err != nil {
		return nil, err
	}
	v := Date{time.UnixMilli(int64(ms)).UTC()}
	d.objects = append(d.objects, v)
	return v, nil
}

func (d *amf3Decoder) readByteArray() (Value, error) {
	n, inline, err := d.readRef("amf3 bytearray")
	if err != nil {
		return nil, err
	}
	if !inline {
		return d.objectRef(n, "amf3 bytearray")
	}
	raw, err := d.r.readBytes(int(n), "amf3 bytearray")
	if err != nil {
		return nil, err
	}
	v := Bytes(raw)
	d.objects = append(d.objects, v)
	return v, nil
}

// readArray decodes a dense array as *List. An array with associative
// members decodes as *Object with dense items keyed by index.
func (d *amf3Decoder) readArray() (Value, error) {
	n, inline, err := d.readRef("amf3 array")
	if err != nil {
		return nil, err
	}
	if !inline {
		return d.objectRef(n, "amf3 array")
	}
	if int(n) > d.r.remaining() {
		return nil, d.r.failf("amf3 array", "%w: dense length %d exceeds remaining %d bytes", ErrTruncated, n, d.r.remaining())
	}

	slot := len(d.objects)
	d.objects = append(d.objects, Null{})

	var assoc *Object
	for {
		key, err := d.readString()
		if err != nil {
			return nil, err
		}
		if key == "" {
			break
		}
		if assoc == nil {
			assoc = NewObject()
			d.objects[slot] = assoc
		}
		v, err := d.readValue()
		if err != nil {
			return nil, err
		}
		assoc.Set(key, v)
	}

	if assoc != nil {
		for i := 0; i < int(n); i++ {
			v, err := d.readValue()
			if err != nil {
				return nil, err
			}
			assoc.Set(strconv.Itoa(i), v)
		}
		return assoc, nil
	}

	list := &List{Items: make([]Value, 0, n)}
	d.objects[slot] = list
	for i := 0; i < int(n); i++ {
		v, err := d.readValue()
		if err != nil {
			return nil, err
		}
		list.Items = append(list.Items, v)
	}
	return list, nil
}

func (d *amf3Decoder) readTraits(flags uint32) (*amf3Traits, error) {
	if flags&1 == 0 {
		idx := flags >> 1
		if int(idx) >= len(d.traits) {
			return nil, d.r.failf("amf3 traits", "traits reference %d out of range (%d known)", idx, len(d.traits))
		}
		return d.traits[idx], nil
	}

	t := &amf3Traits{
		externalizable: flags&2 != 0,
		dynamic:        flags&4 != 0,
	}
	count := flags >> 3
	name, err := d.readString()
	if err != nil {
		return nil, err
	}
	t.className = name
	if int(count) > d.r.remaining() {
		return nil, d.r.failf("amf3 traits", "%w: sealed member count %d exceeds remaining bytes", ErrTruncated, count)
	}
	for i := 0; i < int(count); i++ {
		member, err := d.readString()
		if err != nil {
			return nil, err
		}
		t.sealed = append(t.sealed, member)
	}
	d.traits = append(d.traits, t)
	return t, nil
}

func (d *amf3Decoder) readObject() (Value, error) {
	n, inline, err := d.readRef("amf3 object")
	if err != nil {
		return nil, err
	}
	if !inline {
		return d.objectRef(n, "amf3 object")
	}

	t, err := d.readTraits(n)
	if err != nil {
		return nil, err
	}

	if t.externalizable {
		return d.readExternal(t)
	}

	obj := NewTypedObject(t.className)
	d.objects = append(d.objects, obj)

	for _, member := range t.sealed {
		v, err := d.readValue()
		if err != nil {
			return nil, err
		}
		obj.Set(member, v)
	}
	if t.dynamic {
		for {
			key, err := d.readString()
			if err != nil {
				return nil, err
			}
			if key == "" {
				break
			}
			v, err := d.readValue()
			if err != nil {
				return nil, err
			}
			obj.Set(key, v)
		}
	}
	return obj, nil
}

// readExternal supports the Flex collection wrappers, which serialize a
// single wrapped value. The wrapper is replaced by its content.
func (d *amf3Decoder) readExternal(t *amf3Traits) (Value, error) {
	switch t.className {
	case classArrayCollection, classObjectProxy, classArrayList:
	default:
		return nil, d.r.failf("amf3 object", "unsupported externalizable class %q", t.className)
	}
	slot := len(d.objects)
	d.objects = append(d.objects, Null{})
	v, err := d.readValue()
	if err != nil {
		return nil, err
	}
	d.objects[slot] = v
	return v, nil
}

func (d *amf3Decoder) readVector(marker byte) (Value, error) {
	n, inline, err := d.readRef("amf3 vector")
	if err != nil {
		return nil, err
	}
	if !inline {
		return d.objectRef(n, "amf3 vector")
	}
	if _, err := d.r.readByte("amf3 vector"); err != nil { // fixed-length flag
		return nil, err
	}
	if int(n) > d.r.remaining() {
		return nil, d.r.failf("amf3 vector", "%w: length %d exceeds remaining %d bytes", ErrTruncated, n, d.r.remaining())
	}

	list := &List{Items: make([]Value, 0, n)}
	d.objects = append(d.objects, list)

	if marker == amf3VectorObject {
		if _, err := d.readString(); err != nil { // element type name
			return nil, err
		}
	}
	for i := 0; i < int(n); i++ {
		switch marker {
		case amf3VectorInt:
			u, err := d.r.readUint32("amf3 vector")
			if err != nil {
				return nil, err
			}
			list.Items = append(list.Items, intValue(int64(int32(u))))
		case amf3VectorUint:
			u, err := d.r.readUint32("amf3 vector")
			if err != nil {
				return nil, err
			}
			list.Items = append(list.Items, intValue(int64(u)))
		case amf3VectorDouble:
			f, err := d.r.readFloat64("amf3 vector")
			if err != nil {
				return nil, err
			}
			list.Items = append(list.Items, Double(f))
		default:
			v, err := d.readValue()
			if err != nil {
				return nil, err
			}
			list.Items = append(list.Items, v)
		}
	}
	return list, nil
}

// readDictionary decodes a Dictionary as *Object with stringified keys.
func (d *amf3Decoder) readDictionary() (Value, error) {
	n, inline, err := d.readRef("amf3 dictionary")
	if err != nil {
		return nil, err
	}
	if !inline {
		return d.objectRef(n, "amf3 dictionary")
	}
	if _, err := d.r.readByte("amf3 dictionary"); err != nil { // weak keys flag
		return nil, err
	}
	if int(n) > d.r.remaining() {
		return nil, d.r.failf("amf3 dictionary", "%w: length %d exceeds remaining %d bytes", ErrTruncated, n, d.r.remaining())
	}

	obj := NewObject()
	d.objects = append(d.objects, obj)
	for i := 0; i < int(n); i++ {
		k, err := d.readValue()
		if err != nil {
			return nil, err
		}
		v, err := d.readValue()
		if err != nil {
			return nil, err
		}
		obj.Set(keyString(k), v)
	}
	return obj, nil
}

func keyString(v Value) string {
	switch k := v.(type) {
	case String:
		return string(k)
	case Int:
		return strconv.Itoa(int(k))
	case Double:
		return strconv.FormatFloat(float64(k), 'f', -1, 64)
	case Bool:
		return strconv.FormatBool(bool(k))
	default:
		return k.Kind().String()
	}
}

// amf3Encoder holds the reference tables for one AMF3 context.
type amf3Encoder struct {
	b       *PacketBuilder
	strings map[string]int
	objects map[any]int
	traits  map[string]int
	nextObj int
	depth   int
}

func newAMF3Encoder(b *PacketBuilder) *amf3Encoder {
	return &amf3Encoder{
		b:       b,
		strings: make(map[string]int),
		objects: make(map[any]int),
		traits:  make(map[string]int),
	}
}

func (e *amf3Encoder) writeValue(v Value) error {
	e.depth++
	defer func() { e.depth-- }()
	if e.depth > maxDepth {
		return fmt.Errorf("value nesting deeper than %d", maxDepth)
	}

	switch val := v.(type) {
	case nil, Null:
		e.b.WriteByte(amf3Null)
	case Undefined:
		e.b.WriteByte(amf3Undefined)
	case Bool:
		if val {
			e.b.WriteByte(amf3True)
		} else {
			e.b.WriteByte(amf3False)
		}
	case Int:
		if int64(val) < amf3IntMin || int64(val) > amf3IntMax {
			e.b.WriteByte(amf3Double).WriteFloat64(float64(val))
			return nil
		}
		e.b.WriteByte(amf3Integer).WriteU29(uint32(val) & 0x1FFFFFFF)
	case Double:
		e.b.WriteByte(amf3Double).WriteFloat64(float64(val))
	case String:
		e.b.WriteByte(amf3String)
		e.writeString(string(val))
	case XML:
		e.b.WriteByte(amf3XML)
		e.nextObj++
		e.b.WriteU29(uint32(len(val))<<1 | 1)
		e.b.WriteBytes([]byte(val))
	case Date:
		e.b.WriteByte(amf3Date)
		e.nextObj++
		e.b.WriteU29(1)
		e.b.WriteFloat64(float64(val.UnixMilli()))
	case Bytes:
		e.b.WriteByte(amf3ByteArray)
		e.nextObj++
		e.b.WriteU29(uint32(len(val))<<1 | 1)
		e.b.WriteBytes(val)
	case *List:
		return e.writeList(val)
	case *Object:
		return e.writeObject(val)
	default:
		return fmt.Errorf("unsupported value %T", v)
	}
	return nil
}

// writeString writes a string body without marker. Empty strings are never
// added to the reference table.
func (e *amf3Encoder) writeString(s string) {
	if s == "" {
		e.b.WriteU29(1)
		return
	}
	if idx, ok := e.strings[s]; ok {
		e.b.WriteU29(uint32(idx) << 1)
		return
	}
	e.strings[s] = len(e.strings)
	e.b.WriteU29(uint32(len(s))<<1 | 1)
	e.b.WriteBytes([]byte(s))
}

func (e *amf3Encoder) writeObjectRef(key any) bool {
	if idx, ok := e.objects[key]; ok {
		e.b.WriteU29(uint32(idx) << 1)
		return true
	}
	e.objects[key] = e.nextObj
	e.nextObj++
	return false
}

func (e *amf3Encoder) writeList(l *List) error {
	e.b.WriteByte(amf3Array)
	if l == nil {
		e.nextObj++
		e.b.WriteU29(1).WriteU29(1)
		return nil
	}
	if e.writeObjectRef(l) {
		return nil
	}
	e.b.WriteU29(uint32(len(l.Items))<<1 | 1)
	e.writeString("")
	for i, item := range l.Items {
		if err := e.writeValue(item); err != nil {
			return fmt.Errorf("list index %d: %w", i, err)
		}
	}
	return nil
}

// writeObject writes a dynamic object. Anonymous objects share one traits
// entry; typed objects get one entry per class name.
func (e *amf3Encoder) writeObject(o *Object) error {
	e.b.WriteByte(amf3Object)
	if o == nil {
		o = NewObject()
	}
	if e.writeObjectRef(o) {
		return nil
	}

	if idx, ok := e.traits[o.ClassName]; ok {
		e.b.WriteU29(uint32(idx)<<2 | 1)
	} else {
		e.traits[o.ClassName] = len(e.traits)
		e.b.WriteU29(0x0B) // inline object, inline traits, dynamic, no sealed members
		e.writeString(o.ClassName)
	}

	for _, key := range o.keys {
		if key == "" {
			return fmt.Errorf("object has empty field name")
		}
		e.writeString(key)
		if err := e.writeValue(o.fields[key]); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
	}
	e.writeString("")
	return nil
}

// EncodeAMF3 serializes a single value in a fresh AMF3 context.
func EncodeAMF3(v Value) ([]byte, error) {
	b := NewPacketBuilder()
	if err := newAMF3Encoder(b).writeValue(v); err != nil {
		return nil, err
	}
	return b.Build(), nil
}

// DecodeAMF3 parses a single AMF3 value and rejects trailing bytes.
func DecodeAMF3(data []byte) (Value, error) {
	r := newWireReader(data)
	v, err := newAMF3Decoder(r).readValue()
	if err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, r.failf("amf3 value", "%d trailing bytes", r.remaining())
	}
	return v, nil
}
