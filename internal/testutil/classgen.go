// Package testutil builds class files and JAR archives for tests.
package testutil

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bft-labs/serially/internal/mutf8"
)

// Common class access flags.
const (
	AccPublic    uint16 = 0x0001
	AccPrivate   uint16 = 0x0002
	AccStatic    uint16 = 0x0008
	AccFinal     uint16 = 0x0010
	AccSuper     uint16 = 0x0020
	AccTransient uint16 = 0x0080
	AccInterface uint16 = 0x0200
	AccAbstract  uint16 = 0x0400
	AccEnum      uint16 = 0x4000
)

// Class describes a class file to generate. Names use dots.
type Class struct {
	Name       string
	Super      string // defaults to java.lang.Object
	Interfaces []string
	Access     uint16 // defaults to public super
	Major      uint16 // defaults to 52 (Java 8)
	Fields     []Field
	Methods    []Method
}

// Field describes a field. Constant, when set, becomes a ConstantValue
// attribute (int64 for long constants, int32 for ints, string for strings).
type Field struct {
	Name     string
	Desc     string
	Access   uint16
	Constant any
}

// Method describes a method without code.
type Method struct {
	Name   string
	Desc   string
	Access uint16
}

// Serializable returns a public class implementing java.io.Serializable.
func Serializable(name string, fields ...Field) Class {
	return Class{
		Name:       name,
		Interfaces: []string{"java.io.Serializable"},
		Fields:     fields,
		Methods:    []Method{{Name: "<init>", Desc: "()V", Access: AccPublic}},
	}
}

// Bytes renders the class file.
func (c Class) Bytes() []byte {
	if c.Super == "" && c.Name != "java.lang.Object" {
		c.Super = "java.lang.Object"
	}
	if c.Access == 0 {
		c.Access = AccPublic | AccSuper
	}
	if c.Major == 0 {
		c.Major = 52
	}

	cp := &pool{index: map[string]uint16{}}
	thisIdx := cp.class(c.Name)
	var superIdx uint16
	if c.Super != "" {
		superIdx = cp.class(c.Super)
	}
	ifaceIdx := make([]uint16, len(c.Interfaces))
	for i, name := range c.Interfaces {
		ifaceIdx[i] = cp.class(name)
	}

	var members bytes.Buffer
	put16(&members, uint16(len(c.Fields)))
	for _, f := range c.Fields {
		put16(&members, f.Access)
		put16(&members, cp.utf8(f.Name))
		put16(&members, cp.utf8(f.Desc))
		if f.Constant == nil {
			put16(&members, 0)
			continue
		}
		put16(&members, 1)
		put16(&members, cp.utf8("ConstantValue"))
		put32(&members, 2)
		put16(&members, cp.constant(f.Constant))
	}
	put16(&members, uint16(len(c.Methods)))
	for _, m := range c.Methods {
		put16(&members, m.Access)
		put16(&members, cp.utf8(m.Name))
		put16(&members, cp.utf8(m.Desc))
		put16(&members, 0)
	}

	var out bytes.Buffer
	put32(&out, 0xCAFEBABE)
	put16(&out, 0)
	put16(&out, c.Major)
	put16(&out, cp.next)
	out.Write(cp.buf.Bytes())
	put16(&out, c.Access)
	put16(&out, thisIdx)
	put16(&out, superIdx)
	put16(&out, uint16(len(ifaceIdx)))
	for _, idx := range ifaceIdx {
		put16(&out, idx)
	}
	out.Write(members.Bytes())
	put16(&out, 0) // class attributes
	return out.Bytes()
}

// EntryName returns the archive path of the class ("com/example/A.class").
func (c Class) EntryName() string {
	return strings.ReplaceAll(c.Name, ".", "/") + ".class"
}

// WriteJar writes a JAR containing the given classes and returns its path.
func WriteJar(t testing.TB, path string, classes ...Class) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create jar dir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create jar: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	manifest, err := zw.Create("META-INF/MANIFEST.MF")
	if err != nil {
		t.Fatalf("create manifest: %v", err)
	}
	manifest.Write([]byte("Manifest-Version: 1.0\r\n\r\n"))
	for _, c := range classes {
		w, err := zw.Create(c.EntryName())
		if err != nil {
			t.Fatalf("create entry %s: %v", c.Name, err)
		}
		if _, err := w.Write(c.Bytes()); err != nil {
			t.Fatalf("write entry %s: %v", c.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close jar: %v", err)
	}
	return path
}

type pool struct {
	buf   bytes.Buffer
	next  uint16
	index map[string]uint16
}

func (p *pool) add(key string, entry []byte, slots uint16) uint16 {
	if p.next == 0 {
		p.next = 1
	}
	if idx, ok := p.index[key]; ok {
		return idx
	}
	idx := p.next
	p.buf.Write(entry)
	p.next += slots
	p.index[key] = idx
	return idx
}

func (p *pool) utf8(s string) uint16 {
	b := mutf8.Encode(s)
	var e bytes.Buffer
	e.WriteByte(1)
	put16(&e, uint16(len(b)))
	e.Write(b)
	return p.add("u:"+s, e.Bytes(), 1)
}

func (p *pool) class(name string) uint16 {
	nameIdx := p.utf8(strings.ReplaceAll(name, ".", "/"))
	var e bytes.Buffer
	e.WriteByte(7)
	put16(&e, nameIdx)
	return p.add("c:"+name, e.Bytes(), 1)
}

func (p *pool) constant(v any) uint16 {
	var e bytes.Buffer
	switch v := v.(type) {
	case int64:
		e.WriteByte(5)
		binary.Write(&e, binary.BigEndian, v)
		return p.add("j:"+string(e.Bytes()), e.Bytes(), 2)
	case int32:
		e.WriteByte(3)
		binary.Write(&e, binary.BigEndian, v)
		return p.add("i:"+string(e.Bytes()), e.Bytes(), 1)
	case string:
		idx := p.utf8(v)
		e.WriteByte(8)
		put16(&e, idx)
		return p.add("s:"+v, e.Bytes(), 1)
	default:
		panic("testutil: unsupported constant type")
	}
}

func put16(b *bytes.Buffer, v uint16) {
	var x [2]byte
	binary.BigEndian.PutUint16(x[:], v)
	b.Write(x[:])
}

func put32(b *bytes.Buffer, v uint32) {
	var x [4]byte
	binary.BigEndian.PutUint32(x[:], v)
	b.Write(x[:])
}
