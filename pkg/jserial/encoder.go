package jserial

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/bft-labs/serially/internal/mutf8"
)

// Option configures an Encoder.
type Option func(*Encoder)

// WithClassAnnotations makes the encoder write a null codebase annotation
// for every class descriptor that carries none, as RMI marshal streams do.
func WithClassAnnotations() Option {
	return func(e *Encoder) { e.annotate = true }
}

type stringKey string

// Encoder writes a serialization stream. Primitive writes are buffered in
// block mode and flushed as TC_BLOCKDATA records before the next object.
// After the first error every call returns that error.
type Encoder struct {
	w        *bufio.Writer
	block    []byte
	annotate bool
	handles  map[any]int32
	err      error
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer, opts ...Option) *Encoder {
	e := &Encoder{
		w:       bufio.NewWriter(w),
		handles: make(map[any]int32),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Marshal returns a complete stream holding v.
func Marshal(v any, opts ...Option) ([]byte, error) {
	var buf bytes.Buffer
	e := NewEncoder(&buf, opts...)
	if err := e.WriteHeader(); err != nil {
		return nil, err
	}
	if err := e.WriteObject(v); err != nil {
		return nil, err
	}
	if err := e.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteHeader writes the stream magic and version.
func (e *Encoder) WriteHeader() error {
	e.raw16(StreamMagic)
	e.raw16(StreamVersion)
	return e.err
}

// WriteByte writes one byte of block data.
func (e *Encoder) WriteByte(b byte) error {
	return e.blockWrite([]byte{b})
}

// WriteBoolean writes a boolean as block data.
func (e *Encoder) WriteBoolean(v bool) error {
	if v {
		return e.WriteByte(1)
	}
	return e.WriteByte(0)
}

// WriteShort writes a big-endian int16 as block data.
func (e *Encoder) WriteShort(v int16) error {
	return e.blockWrite(binary.BigEndian.AppendUint16(nil, uint16(v)))
}

// WriteInt writes a big-endian int32 as block data.
func (e *Encoder) WriteInt(v int32) error {
	return e.blockWrite(binary.BigEndian.AppendUint32(nil, uint32(v)))
}

// WriteLong writes a big-endian int64 as block data.
func (e *Encoder) WriteLong(v int64) error {
	return e.blockWrite(binary.BigEndian.AppendUint64(nil, uint64(v)))
}

// WriteUTF writes a length-prefixed modified UTF-8 string as block data.
func (e *Encoder) WriteUTF(s string) error {
	b := mutf8.Encode(s)
	if len(b) > math.MaxUint16 {
		return e.fail(fmt.Errorf("%w: UTF string of %d bytes", ErrUnsupported, len(b)))
	}
	return e.blockWrite(append(binary.BigEndian.AppendUint16(nil, uint16(len(b))), b...))
}

// WriteObject writes v as stream content. v may be nil, a string or one of
// *Object, *Array, *Enum, *Class or *ClassDesc.
func (e *Encoder) WriteObject(v any) error {
	e.drain()
	e.content(v)
	return e.err
}

// Flush writes pending block data and buffered bytes to the underlying writer.
func (e *Encoder) Flush() error {
	e.drain()
	if e.err != nil {
		return e.err
	}
	return e.fail(e.w.Flush())
}

func (e *Encoder) fail(err error) error {
	if e.err == nil && err != nil {
		e.err = err
	}
	return e.err
}

func (e *Encoder) blockWrite(p []byte) error {
	if e.err != nil {
		return e.err
	}
	e.block = append(e.block, p...)
	for len(e.block) >= maxBlockSize {
		e.blockRecord(e.block[:maxBlockSize])
		e.block = append(e.block[:0], e.block[maxBlockSize:]...)
	}
	return e.err
}

func (e *Encoder) drain() {
	if len(e.block) == 0 {
		return
	}
	e.blockRecord(e.block)
	e.block = e.block[:0]
}

func (e *Encoder) blockRecord(p []byte) {
	if len(p) <= 0xFF {
		e.raw8(TCBlockData)
		e.raw8(byte(len(p)))
	} else {
		e.raw8(TCBlockDataLong)
		e.raw32(uint32(len(p)))
	}
	e.rawBytes(p)
}

func (e *Encoder) assign(key any) {
	e.handles[key] = BaseWireHandle + int32(len(e.handles))
}

func (e *Encoder) reference(key any) bool {
	h, ok := e.handles[key]
	if ok {
		e.raw8(TCReference)
		e.raw32(uint32(h))
	}
	return ok
}

func (e *Encoder) content(v any) {
	if e.err != nil {
		return
	}
	switch v := v.(type) {
	case nil:
		e.raw8(TCNull)
	case string:
		e.string(v)
	case *ClassDesc:
		e.classDesc(v)
	case *Object:
		e.object(v)
	case *Array:
		e.array(v)
	case *Enum:
		e.enum(v)
	case *Class:
		if e.reference(v) {
			return
		}
		e.raw8(TCClass)
		e.classDesc(v.Desc)
		e.assign(v)
	case BlockData:
		for len(v) > 0 {
			n := min(len(v), maxBlockSize)
			e.blockRecord(v[:n])
			v = v[n:]
		}
	default:
		e.fail(fmt.Errorf("%w: %T", ErrUnsupported, v))
	}
}

func (e *Encoder) string(s string) {
	if e.reference(stringKey(s)) {
		return
	}
	b := mutf8.Encode(s)
	if len(b) <= math.MaxUint16 {
		e.raw8(TCString)
		e.assign(stringKey(s))
		e.raw16(uint16(len(b)))
	} else {
		e.raw8(TCLongString)
		e.assign(stringKey(s))
		e.raw64(uint64(len(b)))
	}
	e.rawBytes(b)
}

func (e *Encoder) classDesc(d *ClassDesc) {
	if d == nil {
		e.raw8(TCNull)
		return
	}
	if e.reference(d) {
		return
	}
	if d.Proxy {
		e.raw8(TCProxyClassDesc)
		e.assign(d)
		e.raw32(uint32(len(d.Interfaces)))
		for _, name := range d.Interfaces {
			e.rawUTF(name)
		}
	} else {
		e.raw8(TCClassDesc)
		e.assign(d)
		e.rawUTF(d.Name)
		e.raw64(uint64(d.SerialVersionUID))
		e.raw8(d.Flags)
		e.raw16(uint16(len(d.Fields)))
		for _, f := range d.Fields {
			e.raw8(f.Type)
			e.rawUTF(f.Name)
			if !f.IsPrimitive() {
				e.string(f.ClassName)
			}
		}
	}
	if e.annotate && len(d.Annotation) == 0 {
		e.raw8(TCNull)
	}
	e.annotation(d.Annotation)
	e.classDesc(d.Super)
}

func (e *Encoder) annotation(items []any) {
	for _, item := range items {
		e.content(item)
	}
	e.raw8(TCEndBlockData)
}

func (e *Encoder) object(o *Object) {
	if e.reference(o) {
		return
	}
	if o.Class == nil {
		e.fail(fmt.Errorf("%w: object without class descriptor", ErrUnsupported))
		return
	}
	e.raw8(TCObject)
	e.classDesc(o.Class)
	e.assign(o)
	for i, d := range o.Class.Hierarchy() {
		var data ClassData
		if i < len(o.Data) {
			data = o.Data[i]
		}
		switch {
		case d.Is(SCExternalizable):
			if !d.Is(SCBlockData) {
				e.fail(fmt.Errorf("%w: externalizable %s without block data", ErrUnsupported, d.Name))
				return
			}
			e.annotation(data.Annotation)
		case d.Is(SCSerializable):
			for j, f := range d.Fields {
				v := ZeroValue(f.Type)
				if j < len(data.Values) {
					v = data.Values[j]
				}
				e.value(f.Type, v)
			}
			if d.Is(SCWriteMethod) {
				e.annotation(data.Annotation)
			}
		}
	}
}

func (e *Encoder) array(a *Array) {
	if e.reference(a) {
		return
	}
	if a.Class == nil || len(a.Class.Name) < 2 || a.Class.Name[0] != '[' {
		e.fail(fmt.Errorf("%w: array without array class descriptor", ErrUnsupported))
		return
	}
	e.raw8(TCArray)
	e.classDesc(a.Class)
	e.assign(a)
	e.raw32(uint32(len(a.Elements)))
	component := a.Class.Name[1]
	for _, el := range a.Elements {
		e.value(component, el)
	}
}

func (e *Encoder) enum(v *Enum) {
	if e.reference(v) {
		return
	}
	e.raw8(TCEnum)
	e.classDesc(v.Class)
	e.assign(v)
	e.string(v.Constant)
}

func (e *Encoder) value(typ byte, v any) {
	if e.err != nil {
		return
	}
	ok := true
	switch typ {
	case TypeByte:
		var x int8
		x, ok = v.(int8)
		e.raw8(byte(x))
	case TypeChar:
		var x uint16
		x, ok = v.(uint16)
		e.raw16(x)
	case TypeDouble:
		var x float64
		x, ok = v.(float64)
		e.raw64(math.Float64bits(x))
	case TypeFloat:
		var x float32
		x, ok = v.(float32)
		e.raw32(math.Float32bits(x))
	case TypeInt:
		var x int32
		x, ok = v.(int32)
		e.raw32(uint32(x))
	case TypeLong:
		var x int64
		x, ok = v.(int64)
		e.raw64(uint64(x))
	case TypeShort:
		var x int16
		x, ok = v.(int16)
		e.raw16(uint16(x))
	case TypeBoolean:
		var x bool
		x, ok = v.(bool)
		if x {
			e.raw8(1)
		} else {
			e.raw8(0)
		}
	case TypeObject, TypeArray:
		e.content(v)
	default:
		ok = false
	}
	if !ok {
		e.fail(fmt.Errorf("%w: value %T for field type %q", ErrUnsupported, v, typ))
	}
}

func (e *Encoder) raw8(b byte) {
	if e.err == nil {
		e.fail(e.w.WriteByte(b))
	}
}

func (e *Encoder) raw16(v uint16) { e.rawBytes(binary.BigEndian.AppendUint16(nil, v)) }
func (e *Encoder) raw32(v uint32) { e.rawBytes(binary.BigEndian.AppendUint32(nil, v)) }
func (e *Encoder) raw64(v uint64) { e.rawBytes(binary.BigEndian.AppendUint64(nil, v)) }

func (e *Encoder) rawUTF(s string) {
	b := mutf8.Encode(s)
	if len(b) > math.MaxUint16 {
		e.fail(fmt.Errorf("%w: UTF string of %d bytes", ErrUnsupported, len(b)))
		return
	}
	e.raw16(uint16(len(b)))
	e.rawBytes(b)
}

func (e *Encoder) rawBytes(p []byte) {
	if e.err == nil {
		_, err := e.w.Write(p)
		e.fail(err)
	}
}
