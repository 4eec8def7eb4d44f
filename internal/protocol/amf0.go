package protocol

import (
	"fmt"
	"time"
)

// amf0Decoder reads one AMF0 header or body value. Each AMF3 switch starts a
// fresh AMF3 context.
type amf0Decoder struct {
	r       *wireReader
	objects []Value
	depth   int
}

func newAMF0Decoder(r *wireReader) *amf0Decoder {
	return &amf0Decoder{r: r}
}

func (d *amf0Decoder) readValue() (Value, error) {
	d.depth++
	defer func() { d.depth-- }()
	if d.depth > maxDepth {
		return nil, d.r.failf("amf0 value", "nesting deeper than %d", maxDepth)
	}

	marker, err := d.r.readByte("amf0 marker")
	if err != nil {
		return nil, err
	}

	switch marker {
	case amf0Number:
		f, err := d.r.readFloat64("amf0 number")
		if err != nil {
			return nil, err
		}
		return Double(f), nil
	case amf0Boolean:
		b, err := d.r.readByte("amf0 boolean")
		if err != nil {
			return nil, err
		}
		return Bool(b != 0), nil
	case amf0String:
		s, err := d.r.readUTF("amf0 string")
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case amf0LongString:
		s, err := d.r.readLongUTF("amf0 long string")
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case amf0XMLDocument:
		s, err := d.r.readLongUTF("amf0 xml")
		if err != nil {
			return nil, err
		}
		return XML(s), nil
	case amf0Null:
		return Null{}, nil
	case amf0Undefined, amf0Unsupported:
		return Undefined{}, nil
	case amf0Reference:
		idx, err := d.r.readUint16("amf0 reference")
		if err != nil {
			return nil, err
		}
		if int(idx) >= len(d.objects) {
			return nil, d.r.failf("amf0 reference", "reference %d out of range (%d known)", idx, len(d.objects))
		}
		return d.objects[idx], nil
	case amf0Object:
		obj := NewObject()
		d.objects = append(d.objects, obj)
		return obj, d.readMembers(obj)
	case amf0TypedObject:
		name, err := d.r.readUTF("amf0 typed object")
		if err != nil {
			return nil, err
		}
		obj := NewTypedObject(name)
		d.objects = append(d.objects, obj)
		return obj, d.readMembers(obj)
	case amf0ECMAArray:
		if _, err := d.r.readUint32("amf0 ecma array"); err != nil { // advisory count
			return nil, err
		}
		obj := NewObject()
		d.objects = append(d.objects, obj)
		return obj, d.readMembers(obj)
	case amf0StrictArray:
		n, err := d.r.readUint32("amf0 strict array")
		if err != nil {
			return nil, err
		}
		if uint64(n) > uint64(d.r.remaining()) {
			return nil, d.r.failf("amf0 strict array", "%w: length %d exceeds remaining %d bytes", ErrTruncated, n, d.r.remaining())
		}
		list := &List{Items: make([]Value, 0, n)}
		d.objects = append(d.objects, list)
		for i := uint32(0); i < n; i++ {
			v, err := d.readValue()
			if err != nil {
				return nil, err
			}
			list.Items = append(list.Items, v)
		}
		return list, nil
	case amf0Date:
		ms, err := d.r.readFloat64("amf0 date")
		if err != nil {
			return nil, err
		}
		if _, err := d.r.readUint16("amf0 date"); err != nil { // timezone, unused
			return nil, err
		}
		return Date{time.UnixMilli(int64(ms)).UTC()}, nil
	case amf0AVMPlus:
		return newAMF3Decoder(d.r).readValue()
	default:
		return nil, &CodecError{Offset: d.r.pos - 1, Op: "amf0 marker", Err: fmt.Errorf("unknown marker 0x%02x", marker)}
	}
}

// readMembers reads name/value pairs until the empty name + object-end marker.
func (d *amf0Decoder) readMembers(obj *Object) error {
	for {
		key, err := d.r.readUTF("amf0 member name")
		if err != nil {
			return err
		}
		if key == "" {
			end, err := d.r.readByte("amf0 object end")
			if err != nil {
				return err
			}
			if end != amf0ObjectEnd {
				return &CodecError{Offset: d.r.pos - 1, Op: "amf0 object end", Err: fmt.Errorf("expected 0x09, got 0x%02x", end)}
			}
			return nil
		}
		v, err := d.readValue()
		if err != nil {
			return err
		}
		obj.Set(key, v)
	}
}

// writeArguments writes a remoting argument list: an AMF0 strict array whose
// items are each switched to AMF3.
func writeArguments(b *PacketBuilder, args []Value) error {
	b.WriteByte(amf0StrictArray).WriteUint32(uint32(len(args)))
	for i, arg := range args {
		b.WriteByte(amf0AVMPlus)
		if err := newAMF3Encoder(b).writeValue(arg); err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
	}
	return nil
}
