package jserial

import (
	"errors"
	"sort"
)

var (
	// ErrBadHeader is returned when a stream does not start with the magic and version.
	ErrBadHeader = errors.New("jserial: invalid stream header")

	// ErrMalformed is returned for streams that violate the grammar.
	ErrMalformed = errors.New("jserial: malformed stream")

	// ErrUnsupported is returned for values this package cannot encode or decode.
	ErrUnsupported = errors.New("jserial: unsupported content")

	// ErrOptionalData is returned when an object is read while primitive
	// block data is still pending, or the reverse.
	ErrOptionalData = errors.New("jserial: unexpected block data")
)

// Field type codes.
const (
	TypeByte    byte = 'B'
	TypeChar    byte = 'C'
	TypeDouble  byte = 'D'
	TypeFloat   byte = 'F'
	TypeInt     byte = 'I'
	TypeLong    byte = 'J'
	TypeShort   byte = 'S'
	TypeBoolean byte = 'Z'
	TypeArray   byte = '['
	TypeObject  byte = 'L'
)

// ClassDesc is a serialized class descriptor. For proxy classes Name is
// empty and Interfaces lists the proxied interfaces.
type ClassDesc struct {
	Name             string
	SerialVersionUID int64
	Flags            byte
	Fields           []FieldDesc
	Annotation       []any
	Super            *ClassDesc

	Proxy      bool
	Interfaces []string
}

// Is reports whether all bits of flag are set.
func (d *ClassDesc) Is(flag byte) bool { return d.Flags&flag == flag }

// Hierarchy returns d and its superclass descriptors, topmost first. This is
// the order in which class data appears in a stream.
func (d *ClassDesc) Hierarchy() []*ClassDesc {
	var chain []*ClassDesc
	for c := d; c != nil; c = c.Super {
		chain = append(chain, c)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// FieldDesc is one serializable field of a class descriptor. ClassName is
// the JVM type signature for object and array fields ("Ljava/lang/String;").
type FieldDesc struct {
	Type      byte
	Name      string
	ClassName string
}

// IsPrimitive reports whether the field holds a primitive value.
func (f FieldDesc) IsPrimitive() bool { return f.Type != TypeObject && f.Type != TypeArray }

// SortFields orders fields the way ObjectStreamClass does: primitives
// first, then references, each group by name.
func SortFields(fields []FieldDesc) {
	sort.SliceStable(fields, func(i, j int) bool {
		pi, pj := fields[i].IsPrimitive(), fields[j].IsPrimitive()
		if pi != pj {
			return pi
		}
		return fields[i].Name < fields[j].Name
	})
}

// Object is a serialized object. Data holds one entry per class in
// Class.Hierarchy(); a nil Data encodes zero values for every field.
type Object struct {
	Class *ClassDesc
	Data  []ClassData
}

// ClassData is the per-class content of an object. Values follow the class
// descriptor's field order. Annotation holds what a custom writeObject or
// writeExternal method wrote after the fields: BlockData and objects.
type ClassData struct {
	Values     []any
	Annotation []any
}

// Field returns the value of the named field, searching from the most
// derived class up.
func (o *Object) Field(name string) (any, bool) {
	chain := o.Class.Hierarchy()
	for i := len(chain) - 1; i >= 0; i-- {
		if i >= len(o.Data) {
			continue
		}
		for j, f := range chain[i].Fields {
			if f.Name == name && j < len(o.Data[i].Values) {
				return o.Data[i].Values[j], true
			}
		}
	}
	return nil, false
}

// ClassData returns the data written for the named class in o's hierarchy.
func (o *Object) ClassData(name string) (ClassData, bool) {
	for i, d := range o.Class.Hierarchy() {
		if d.Name == name && i < len(o.Data) {
			return o.Data[i], true
		}
	}
	return ClassData{}, false
}

// BlockData is raw primitive data written in block mode.
type BlockData []byte

// Array is a serialized array. Elements hold Go primitives for primitive
// component types and stream values otherwise.
type Array struct {
	Class    *ClassDesc
	Elements []any
}

// Enum is a serialized enum constant.
type Enum struct {
	Class    *ClassDesc
	Constant string
}

// Class is a serialized java.lang.Class reference.
type Class struct {
	Desc *ClassDesc
}

// ZeroValue returns the Go zero value for a field type code. Primitive
// fields map to int8, uint16, float64, float32, int32, int64, int16 and
// bool; references map to nil.
func ZeroValue(typ byte) any {
	switch typ {
	case TypeByte:
		return int8(0)
	case TypeChar:
		return uint16(0)
	case TypeDouble:
		return float64(0)
	case TypeFloat:
		return float32(0)
	case TypeInt:
		return int32(0)
	case TypeLong:
		return int64(0)
	case TypeShort:
		return int16(0)
	case TypeBoolean:
		return false
	}
	return nil
}
