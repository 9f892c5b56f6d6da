package jserial

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/bft-labs/serially/internal/mutf8"
)

const (
	maxLongString = 1 << 26
	maxProxyIfs   = 65535
)

// AbortedError is returned when the writer aborted the stream with
// TC_EXCEPTION. Thrown is the exception object it wrote.
type AbortedError struct {
	Thrown any
}

func (e *AbortedError) Error() string {
	if o, ok := e.Thrown.(*Object); ok && o.Class != nil {
		return "jserial: stream aborted by " + o.Class.Name
	}
	return "jserial: stream aborted"
}

// Decoder reads a serialization stream.
type Decoder struct {
	r       *bufio.Reader
	block   []byte
	handles []any
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Decoder{r: br}
}

// Unmarshal decodes the single value held by a complete stream.
func Unmarshal(b []byte) (any, error) {
	d := NewDecoder(bytes.NewReader(b))
	if err := d.ReadHeader(); err != nil {
		return nil, err
	}
	return d.ReadObject()
}

// ReadHeader reads and checks the stream magic and version.
func (d *Decoder) ReadHeader() error {
	magic, err := d.u16()
	if err != nil {
		return err
	}
	version, err := d.u16()
	if err != nil {
		return err
	}
	if magic != StreamMagic || version != StreamVersion {
		return fmt.Errorf("%w: %04x %04x", ErrBadHeader, magic, version)
	}
	return nil
}

// ReadObject reads the next content value.
func (d *Decoder) ReadObject() (any, error) {
	if len(d.block) > 0 {
		return nil, fmt.Errorf("%w: %d bytes pending", ErrOptionalData, len(d.block))
	}
	tag, err := d.u8()
	if err != nil {
		return nil, err
	}
	return d.content(tag)
}

// ReadByte reads one byte of block data.
func (d *Decoder) ReadByte() (byte, error) {
	b, err := d.blockRead(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadBoolean reads a boolean from block data.
func (d *Decoder) ReadBoolean() (bool, error) {
	b, err := d.ReadByte()
	return b != 0, err
}

// ReadShort reads a big-endian int16 from block data.
func (d *Decoder) ReadShort() (int16, error) {
	b, err := d.blockRead(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

// ReadInt reads a big-endian int32 from block data.
func (d *Decoder) ReadInt() (int32, error) {
	b, err := d.blockRead(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// ReadLong reads a big-endian int64 from block data.
func (d *Decoder) ReadLong() (int64, error) {
	b, err := d.blockRead(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// ReadUTF reads a length-prefixed modified UTF-8 string from block data.
func (d *Decoder) ReadUTF() (string, error) {
	n, err := d.blockRead(2)
	if err != nil {
		return "", err
	}
	b, err := d.blockRead(int(binary.BigEndian.Uint16(n)))
	if err != nil {
		return "", err
	}
	return mutf8.Decode(b)
}

func (d *Decoder) blockRead(n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		if len(d.block) == 0 {
			if err := d.nextBlock(); err != nil {
				return nil, err
			}
		}
		k := min(n-len(out), len(d.block))
		out = append(out, d.block[:k]...)
		d.block = d.block[k:]
	}
	return out, nil
}

func (d *Decoder) nextBlock() error {
	for {
		tag, err := d.u8()
		if err != nil {
			return err
		}
		switch tag {
		case TCReset:
			d.handles = d.handles[:0]
			continue
		case TCBlockData, TCBlockDataLong:
			b, err := d.blockBody(tag)
			if err != nil {
				return err
			}
			d.block = b
			if len(b) == 0 {
				continue
			}
			return nil
		default:
			return fmt.Errorf("%w: expected block data, got tag 0x%02x", ErrOptionalData, tag)
		}
	}
}

func (d *Decoder) blockBody(tag byte) ([]byte, error) {
	var n int
	if tag == TCBlockData {
		b, err := d.u8()
		if err != nil {
			return nil, err
		}
		n = int(b)
	} else {
		v, err := d.u32()
		if err != nil {
			return nil, err
		}
		if int32(v) < 0 {
			return nil, fmt.Errorf("%w: negative block length", ErrMalformed)
		}
		n = int(v)
	}
	return d.bytes(n)
}

func (d *Decoder) assign(v any) {
	d.handles = append(d.handles, v)
}

func (d *Decoder) content(tag byte) (any, error) {
	switch tag {
	case TCNull:
		return nil, nil
	case TCReference:
		return d.reference()
	case TCClassDesc, TCProxyClassDesc:
		return d.classDescBody(tag)
	case TCObject:
		return d.object()
	case TCString, TCLongString:
		return d.string(tag)
	case TCArray:
		return d.array()
	case TCEnum:
		return d.enum()
	case TCClass:
		desc, err := d.classDesc()
		if err != nil {
			return nil, err
		}
		c := &Class{Desc: desc}
		d.assign(c)
		return c, nil
	case TCReset:
		d.handles = d.handles[:0]
		next, err := d.u8()
		if err != nil {
			return nil, err
		}
		return d.content(next)
	case TCException:
		d.handles = d.handles[:0]
		next, err := d.u8()
		if err != nil {
			return nil, err
		}
		thrown, err := d.content(next)
		if err != nil {
			return nil, err
		}
		d.handles = d.handles[:0]
		return nil, &AbortedError{Thrown: thrown}
	case TCBlockData, TCBlockDataLong, TCEndBlockData:
		return nil, fmt.Errorf("%w: tag 0x%02x where an object was expected", ErrOptionalData, tag)
	}
	return nil, fmt.Errorf("%w: unknown tag 0x%02x", ErrMalformed, tag)
}

func (d *Decoder) reference() (any, error) {
	h, err := d.u32()
	if err != nil {
		return nil, err
	}
	idx := int64(h) - BaseWireHandle
	if idx < 0 || idx >= int64(len(d.handles)) {
		return nil, fmt.Errorf("%w: invalid handle 0x%x", ErrMalformed, h)
	}
	return d.handles[idx], nil
}

func (d *Decoder) string(tag byte) (string, error) {
	var n uint64
	if tag == TCString {
		v, err := d.u16()
		if err != nil {
			return "", err
		}
		n = uint64(v)
	} else {
		v, err := d.u64()
		if err != nil {
			return "", err
		}
		if v > maxLongString {
			return "", fmt.Errorf("%w: long string of %d bytes", ErrUnsupported, v)
		}
		n = v
	}
	b, err := d.bytes(int(n))
	if err != nil {
		return "", err
	}
	s, err := mutf8.Decode(b)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	d.assign(s)
	return s, nil
}

func (d *Decoder) stringContent() (string, error) {
	tag, err := d.u8()
	if err != nil {
		return "", err
	}
	v, err := d.content(tag)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: expected string, got %T", ErrMalformed, v)
	}
	return s, nil
}

func (d *Decoder) classDesc() (*ClassDesc, error) {
	tag, err := d.u8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case TCNull:
		return nil, nil
	case TCClassDesc, TCProxyClassDesc:
		return d.classDescBody(tag)
	case TCReference:
		v, err := d.reference()
		if err != nil {
			return nil, err
		}
		desc, ok := v.(*ClassDesc)
		if !ok {
			return nil, fmt.Errorf("%w: handle refers to %T, not a class descriptor", ErrMalformed, v)
		}
		return desc, nil
	}
	return nil, fmt.Errorf("%w: tag 0x%02x where a class descriptor was expected", ErrMalformed, tag)
}

func (d *Decoder) classDescBody(tag byte) (*ClassDesc, error) {
	desc := &ClassDesc{}
	d.assign(desc)

	var err error
	if tag == TCProxyClassDesc {
		desc.Proxy = true
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		if n > maxProxyIfs {
			return nil, fmt.Errorf("%w: %d proxy interfaces", ErrMalformed, n)
		}
		for range n {
			name, err := d.utf()
			if err != nil {
				return nil, err
			}
			desc.Interfaces = append(desc.Interfaces, name)
		}
	} else {
		if desc.Name, err = d.utf(); err != nil {
			return nil, err
		}
		suid, err := d.u64()
		if err != nil {
			return nil, err
		}
		desc.SerialVersionUID = int64(suid)
		if desc.Flags, err = d.u8(); err != nil {
			return nil, err
		}
		n, err := d.u16()
		if err != nil {
			return nil, err
		}
		for range n {
			f, err := d.fieldDesc()
			if err != nil {
				return nil, err
			}
			desc.Fields = append(desc.Fields, f)
		}
	}

	if desc.Annotation, err = d.annotation(); err != nil {
		return nil, err
	}
	if desc.Super, err = d.classDesc(); err != nil {
		return nil, err
	}
	return desc, nil
}

func (d *Decoder) fieldDesc() (FieldDesc, error) {
	var f FieldDesc
	typ, err := d.u8()
	if err != nil {
		return f, err
	}
	f.Type = typ
	if f.Name, err = d.utf(); err != nil {
		return f, err
	}
	switch typ {
	case TypeByte, TypeChar, TypeDouble, TypeFloat, TypeInt, TypeLong, TypeShort, TypeBoolean:
	case TypeObject, TypeArray:
		if f.ClassName, err = d.stringContent(); err != nil {
			return f, err
		}
	default:
		return f, fmt.Errorf("%w: field %s has type code 0x%02x", ErrMalformed, f.Name, typ)
	}
	return f, nil
}

// annotation reads contents up to and including TC_ENDBLOCKDATA.
func (d *Decoder) annotation() ([]any, error) {
	var items []any
	for {
		tag, err := d.u8()
		if err != nil {
			return nil, err
		}
		switch tag {
		case TCEndBlockData:
			return items, nil
		case TCBlockData, TCBlockDataLong:
			b, err := d.blockBody(tag)
			if err != nil {
				return nil, err
			}
			items = append(items, BlockData(b))
		default:
			v, err := d.content(tag)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
	}
}

func (d *Decoder) object() (*Object, error) {
	desc, err := d.classDesc()
	if err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, fmt.Errorf("%w: object with null class descriptor", ErrMalformed)
	}
	o := &Object{Class: desc}
	d.assign(o)

	for _, c := range desc.Hierarchy() {
		var data ClassData
		switch {
		case c.Is(SCExternalizable):
			if !c.Is(SCBlockData) {
				return nil, fmt.Errorf("%w: externalizable %s without block data", ErrUnsupported, c.Name)
			}
			if data.Annotation, err = d.annotation(); err != nil {
				return nil, err
			}
		case c.Is(SCSerializable):
			for _, f := range c.Fields {
				v, err := d.value(f.Type)
				if err != nil {
					return nil, fmt.Errorf("%s.%s: %w", c.Name, f.Name, err)
				}
				data.Values = append(data.Values, v)
			}
			if c.Is(SCWriteMethod) {
				if data.Annotation, err = d.annotation(); err != nil {
					return nil, err
				}
			}
		}
		o.Data = append(o.Data, data)
	}
	return o, nil
}

func (d *Decoder) array() (*Array, error) {
	desc, err := d.classDesc()
	if err != nil {
		return nil, err
	}
	if desc == nil || len(desc.Name) < 2 || desc.Name[0] != '[' {
		return nil, fmt.Errorf("%w: array without array class descriptor", ErrMalformed)
	}
	a := &Array{Class: desc}
	d.assign(a)

	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	if int32(n) < 0 {
		return nil, fmt.Errorf("%w: negative array length", ErrMalformed)
	}
	a.Elements = make([]any, 0, min(int(n), 1024))
	component := desc.Name[1]
	for range n {
		v, err := d.value(component)
		if err != nil {
			return nil, err
		}
		a.Elements = append(a.Elements, v)
	}
	return a, nil
}

func (d *Decoder) enum() (*Enum, error) {
	desc, err := d.classDesc()
	if err != nil {
		return nil, err
	}
	e := &Enum{Class: desc}
	d.assign(e)
	if e.Constant, err = d.stringContent(); err != nil {
		return nil, err
	}
	return e, nil
}

func (d *Decoder) value(typ byte) (any, error) {
	switch typ {
	case TypeByte:
		v, err := d.u8()
		return int8(v), err
	case TypeChar:
		v, err := d.u16()
		return v, err
	case TypeDouble:
		v, err := d.u64()
		return math.Float64frombits(v), err
	case TypeFloat:
		v, err := d.u32()
		return math.Float32frombits(v), err
	case TypeInt:
		v, err := d.u32()
		return int32(v), err
	case TypeLong:
		v, err := d.u64()
		return int64(v), err
	case TypeShort:
		v, err := d.u16()
		return int16(v), err
	case TypeBoolean:
		v, err := d.u8()
		return v != 0, err
	case TypeObject, TypeArray:
		tag, err := d.u8()
		if err != nil {
			return nil, err
		}
		return d.content(tag)
	}
	return nil, fmt.Errorf("%w: type code 0x%02x", ErrMalformed, typ)
}

func (d *Decoder) u8() (byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, unexpected(err)
	}
	return b, nil
}

func (d *Decoder) u16() (uint16, error) {
	b, err := d.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *Decoder) u32() (uint32, error) {
	b, err := d.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *Decoder) u64() (uint64, error) {
	b, err := d.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (d *Decoder) utf() (string, error) {
	n, err := d.u16()
	if err != nil {
		return "", err
	}
	b, err := d.bytes(int(n))
	if err != nil {
		return "", err
	}
	s, err := mutf8.Decode(b)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return s, nil
}

func (d *Decoder) bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil {
		return nil, unexpected(err)
	}
	return b, nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
