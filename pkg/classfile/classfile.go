// Package classfile reads the parts of a JVM class file needed to describe a
// class for serialization: names, access flags, supertypes, fields with their
// constant values, and method signatures.
//
// Bytecode and most attributes are skipped. Nothing in a class file is ever
// executed.
package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/bft-labs/serially/internal/mutf8"
)

const magic = 0xCAFEBABE

// MaxMajorVersion is the newest class file major version accepted (Java 25).
const MaxMajorVersion = 69

// Access flags shared by classes, fields and methods.
const (
	AccPublic       uint16 = 0x0001
	AccPrivate      uint16 = 0x0002
	AccProtected    uint16 = 0x0004
	AccStatic       uint16 = 0x0008
	AccFinal        uint16 = 0x0010
	AccSynchronized uint16 = 0x0020
	AccSuper        uint16 = 0x0020
	AccVolatile     uint16 = 0x0040
	AccBridge       uint16 = 0x0040
	AccTransient    uint16 = 0x0080
	AccVarargs      uint16 = 0x0080
	AccNative       uint16 = 0x0100
	AccInterface    uint16 = 0x0200
	AccAbstract     uint16 = 0x0400
	AccStrict       uint16 = 0x0800
	AccSynthetic    uint16 = 0x1000
	AccAnnotation   uint16 = 0x2000
	AccEnum         uint16 = 0x4000
	AccModule       uint16 = 0x8000
)

var (
	// ErrBadMagic is returned when the input does not start with 0xCAFEBABE.
	ErrBadMagic = errors.New("classfile: bad magic")

	// ErrUnsupportedVersion is returned for class files newer than MaxMajorVersion.
	ErrUnsupportedVersion = errors.New("classfile: unsupported class file version")

	// ErrTruncated is returned when the input ends inside a structure.
	ErrTruncated = errors.New("classfile: truncated")

	// ErrMalformed is returned for structurally invalid class files.
	ErrMalformed = errors.New("classfile: malformed")
)

// Class is the parsed form of a class file.
type Class struct {
	MinorVersion uint16
	MajorVersion uint16

	// AccessFlags are the class file access flags. For nested classes the
	// flags from the InnerClasses attribute are in InnerFlags.
	AccessFlags uint16
	InnerFlags  uint16
	IsInner     bool

	// Name, SuperName and Interfaces use dotted binary names
	// (e.g. "java.util.HashMap$Node"). SuperName is empty only for
	// java.lang.Object and module-info.
	Name       string
	SuperName  string
	Interfaces []string

	Fields  []Member
	Methods []Member
}

// Member is a field or method declaration.
type Member struct {
	AccessFlags uint16
	Name        string
	Descriptor  string

	// ConstantValue holds the ConstantValue attribute of a field, if any:
	// int32, int64, float32, float64 or string.
	ConstantValue any
}

// Is reports whether all bits of flag are set.
func (m Member) Is(flag uint16) bool { return m.AccessFlags&flag == flag }

// Modifiers returns the flags reflection would report for the class:
// the InnerClasses flags for nested classes, the class file flags otherwise.
func (c *Class) Modifiers() uint16 {
	if c.IsInner {
		return c.InnerFlags
	}
	return c.AccessFlags
}

// IsInterface reports whether the class is an interface (or annotation).
func (c *Class) IsInterface() bool { return c.AccessFlags&AccInterface != 0 }

// IsAbstract reports whether the class is abstract.
func (c *Class) IsAbstract() bool { return c.AccessFlags&AccAbstract != 0 }

// IsEnum reports whether the class is an enum type.
func (c *Class) IsEnum() bool { return c.AccessFlags&AccEnum != 0 }

// Field returns the declared field with the given name.
func (c *Class) Field(name string) (Member, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Member{}, false
}

// Method returns the declared method with the given name and descriptor.
func (c *Class) Method(name, descriptor string) (Member, bool) {
	for _, m := range c.Methods {
		if m.Name == name && m.Descriptor == descriptor {
			return m, true
		}
	}
	return Member{}, false
}

// DeclaredSerialVersionUID returns the value of a declared
// "static final long serialVersionUID" constant.
func (c *Class) DeclaredSerialVersionUID() (int64, bool) {
	f, ok := c.Field("serialVersionUID")
	if !ok || f.Descriptor != "J" || !f.Is(AccStatic|AccFinal) {
		return 0, false
	}
	v, ok := f.ConstantValue.(int64)
	return v, ok
}

// Parse decodes a class file.
func Parse(b []byte) (*Class, error) {
	p := &parser{b: b}
	c, err := p.parse()
	if err != nil {
		return nil, err
	}
	return c, nil
}

type parser struct {
	b   []byte
	off int
	cp  constantPool
}

func (p *parser) need(n int) error {
	if p.off+n > len(p.b) {
		return ErrTruncated
	}
	return nil
}

func (p *parser) u1() (uint8, error) {
	if err := p.need(1); err != nil {
		return 0, err
	}
	v := p.b[p.off]
	p.off++
	return v, nil
}

func (p *parser) u2() (uint16, error) {
	if err := p.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(p.b[p.off:])
	p.off += 2
	return v, nil
}

func (p *parser) u4() (uint32, error) {
	if err := p.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(p.b[p.off:])
	p.off += 4
	return v, nil
}

func (p *parser) bytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrMalformed
	}
	if err := p.need(n); err != nil {
		return nil, err
	}
	v := p.b[p.off : p.off+n]
	p.off += n
	return v, nil
}

func (p *parser) parse() (*Class, error) {
	m, err := p.u4()
	if err != nil {
		return nil, err
	}
	if m != magic {
		return nil, ErrBadMagic
	}

	c := &Class{}
	if c.MinorVersion, err = p.u2(); err != nil {
		return nil, err
	}
	if c.MajorVersion, err = p.u2(); err != nil {
		return nil, err
	}
	if c.MajorVersion > MaxMajorVersion {
		return nil, fmt.Errorf("%w: %d.%d", ErrUnsupportedVersion, c.MajorVersion, c.MinorVersion)
	}

	if err := p.readConstantPool(); err != nil {
		return nil, err
	}

	if c.AccessFlags, err = p.u2(); err != nil {
		return nil, err
	}
	thisIdx, err := p.u2()
	if err != nil {
		return nil, err
	}
	if c.Name, err = p.cp.className(thisIdx); err != nil {
		return nil, err
	}
	superIdx, err := p.u2()
	if err != nil {
		return nil, err
	}
	if superIdx != 0 {
		if c.SuperName, err = p.cp.className(superIdx); err != nil {
			return nil, err
		}
	}

	n, err := p.u2()
	if err != nil {
		return nil, err
	}
	c.Interfaces = make([]string, 0, n)
	for i := 0; i < int(n); i++ {
		idx, err := p.u2()
		if err != nil {
			return nil, err
		}
		name, err := p.cp.className(idx)
		if err != nil {
			return nil, err
		}
		c.Interfaces = append(c.Interfaces, name)
	}

	if c.Fields, err = p.readMembers(true); err != nil {
		return nil, fmt.Errorf("fields: %w", err)
	}
	if c.Methods, err = p.readMembers(false); err != nil {
		return nil, fmt.Errorf("methods: %w", err)
	}
	if err := p.readClassAttributes(c); err != nil {
		return nil, fmt.Errorf("attributes: %w", err)
	}
	return c, nil
}

func (p *parser) readMembers(fields bool) ([]Member, error) {
	n, err := p.u2()
	if err != nil {
		return nil, err
	}
	members := make([]Member, 0, n)
	for i := 0; i < int(n); i++ {
		var m Member
		if m.AccessFlags, err = p.u2(); err != nil {
			return nil, err
		}
		nameIdx, err := p.u2()
		if err != nil {
			return nil, err
		}
		if m.Name, err = p.cp.utf8(nameIdx); err != nil {
			return nil, err
		}
		descIdx, err := p.u2()
		if err != nil {
			return nil, err
		}
		if m.Descriptor, err = p.cp.utf8(descIdx); err != nil {
			return nil, err
		}

		attrs, err := p.u2()
		if err != nil {
			return nil, err
		}
		for j := 0; j < int(attrs); j++ {
			name, body, err := p.attribute()
			if err != nil {
				return nil, err
			}
			if fields && name == "ConstantValue" && len(body) == 2 {
				v, err := p.cp.constant(binary.BigEndian.Uint16(body))
				if err != nil {
					return nil, err
				}
				m.ConstantValue = v
			}
		}
		members = append(members, m)
	}
	return members, nil
}

func (p *parser) readClassAttributes(c *Class) error {
	n, err := p.u2()
	if err != nil {
		return err
	}
	for i := 0; i < int(n); i++ {
		name, body, err := p.attribute()
		if err != nil {
			return err
		}
		if name != "InnerClasses" {
			continue
		}
		if err := p.innerClasses(c, body); err != nil {
			return err
		}
	}
	return nil
}

// innerClasses records the access flags of c when it appears as a nested class.
func (p *parser) innerClasses(c *Class, body []byte) error {
	if len(body) < 2 {
		return ErrMalformed
	}
	count := int(binary.BigEndian.Uint16(body))
	if len(body) < 2+count*8 {
		return ErrMalformed
	}
	for i := 0; i < count; i++ {
		e := body[2+i*8:]
		inner := binary.BigEndian.Uint16(e)
		if inner == 0 {
			continue
		}
		name, err := p.cp.className(inner)
		if err != nil {
			return err
		}
		if name == c.Name {
			c.IsInner = true
			c.InnerFlags = binary.BigEndian.Uint16(e[6:])
		}
	}
	return nil
}

func (p *parser) attribute() (string, []byte, error) {
	nameIdx, err := p.u2()
	if err != nil {
		return "", nil, err
	}
	name, err := p.cp.utf8(nameIdx)
	if err != nil {
		return "", nil, err
	}
	length, err := p.u4()
	if err != nil {
		return "", nil, err
	}
	if int64(length) > int64(len(p.b)) {
		return "", nil, ErrTruncated
	}
	body, err := p.bytes(int(length))
	if err != nil {
		return "", nil, err
	}
	return name, body, nil
}

// binaryName converts an internal name ("java/lang/Object") to a binary name.
func binaryName(internal string) string {
	return strings.ReplaceAll(internal, "/", ".")
}

func decodeUTF8(b []byte) (string, error) {
	s, err := mutf8.Decode(b)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return s, nil
}
