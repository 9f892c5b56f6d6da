package classfile

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"sort"
	"strings"

	"github.com/bft-labs/serially/internal/mutf8"
)

// Modifier masks applied by java.io.ObjectStreamClass when hashing.
const (
	classModMask  = AccPublic | AccFinal | AccInterface | AccAbstract
	fieldModMask  = AccPublic | AccPrivate | AccProtected | AccStatic | AccFinal | AccVolatile | AccTransient
	methodModMask = AccPublic | AccPrivate | AccProtected | AccStatic | AccFinal | AccSynchronized |
		AccNative | AccAbstract | AccStrict
)

// SerialVersionUID returns the declared serialVersionUID of c, or the
// default one computed from the class structure.
func (c *Class) SerialVersionUID() int64 {
	if v, ok := c.DeclaredSerialVersionUID(); ok {
		return v
	}
	return DefaultSerialVersionUID(c)
}

// DefaultSerialVersionUID computes the stream unique identifier the JDK
// assigns to a serializable class that does not declare one. The hash covers
// the class name and modifiers, sorted interface names, non-private fields,
// the presence of a static initializer, and non-private constructors and
// methods.
func DefaultSerialVersionUID(c *Class) int64 {
	var buf bytes.Buffer
	writeUTF(&buf, c.Name)

	var methods, ctors []Member
	hasClinit := false
	for _, m := range c.Methods {
		switch m.Name {
		case "<clinit>":
			hasClinit = true
		case "<init>":
			ctors = append(ctors, m)
		default:
			methods = append(methods, m)
		}
	}

	mods := c.Modifiers() & classModMask
	if mods&AccInterface != 0 {
		if len(methods) > 0 {
			mods |= AccAbstract
		} else {
			mods &^= AccAbstract
		}
	}
	writeInt(&buf, int32(mods))

	ifaces := append([]string(nil), c.Interfaces...)
	sort.Strings(ifaces)
	for _, name := range ifaces {
		writeUTF(&buf, name)
	}

	fields := append([]Member(nil), c.Fields...)
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	for _, f := range fields {
		m := f.AccessFlags & fieldModMask
		if m&AccPrivate == 0 || m&(AccStatic|AccTransient) == 0 {
			writeUTF(&buf, f.Name)
			writeInt(&buf, int32(m))
			writeUTF(&buf, f.Descriptor)
		}
	}

	if hasClinit {
		writeUTF(&buf, "<clinit>")
		writeInt(&buf, int32(AccStatic))
		writeUTF(&buf, "()V")
	}

	sort.SliceStable(ctors, func(i, j int) bool { return ctors[i].Descriptor < ctors[j].Descriptor })
	for _, m := range ctors {
		mods := m.AccessFlags & methodModMask
		if mods&AccPrivate == 0 {
			writeUTF(&buf, "<init>")
			writeInt(&buf, int32(mods))
			writeUTF(&buf, strings.ReplaceAll(m.Descriptor, "/", "."))
		}
	}

	sort.SliceStable(methods, func(i, j int) bool {
		if methods[i].Name != methods[j].Name {
			return methods[i].Name < methods[j].Name
		}
		return methods[i].Descriptor < methods[j].Descriptor
	})
	for _, m := range methods {
		mods := m.AccessFlags & methodModMask
		if mods&AccPrivate == 0 {
			writeUTF(&buf, m.Name)
			writeInt(&buf, int32(mods))
			writeUTF(&buf, strings.ReplaceAll(m.Descriptor, "/", "."))
		}
	}

	sum := sha1.Sum(buf.Bytes())
	var hash int64
	for i := 7; i >= 0; i-- {
		hash = hash<<8 | int64(sum[i])
	}
	return hash
}

func writeUTF(buf *bytes.Buffer, s string) {
	b := mutf8.Encode(s)
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(b)))
	buf.Write(n[:])
	buf.Write(b)
}

func writeInt(buf *bytes.Buffer, v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	buf.Write(b[:])
}
