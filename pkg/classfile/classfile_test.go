package classfile_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bft-labs/serially/internal/testutil"
	"github.com/bft-labs/serially/pkg/classfile"
)

func TestParse(t *testing.T) {
	src := testutil.Class{
		Name:       "com.example.Gadget",
		Super:      "com.example.Base",
		Interfaces: []string{"java.io.Serializable", "java.lang.Comparable"},
		Fields: []testutil.Field{
			{Name: "serialVersionUID", Desc: "J", Access: testutil.AccPrivate | testutil.AccStatic | testutil.AccFinal, Constant: int64(42)},
			{Name: "count", Desc: "I", Access: testutil.AccPrivate},
			{Name: "name", Desc: "Ljava/lang/String;", Access: testutil.AccPublic},
		},
		Methods: []testutil.Method{
			{Name: "<init>", Desc: "()V", Access: testutil.AccPublic},
			{Name: "compareTo", Desc: "(Ljava/lang/Object;)I", Access: testutil.AccPublic},
		},
	}

	c, err := classfile.Parse(src.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if c.Name != "com.example.Gadget" {
		t.Errorf("Name = %q", c.Name)
	}
	if c.SuperName != "com.example.Base" {
		t.Errorf("SuperName = %q", c.SuperName)
	}
	if diff := cmp.Diff([]string{"java.io.Serializable", "java.lang.Comparable"}, c.Interfaces); diff != "" {
		t.Errorf("Interfaces mismatch (-want +got):\n%s", diff)
	}
	if c.MajorVersion != 52 {
		t.Errorf("MajorVersion = %d, want 52", c.MajorVersion)
	}
	if len(c.Fields) != 3 || len(c.Methods) != 2 {
		t.Fatalf("got %d fields, %d methods", len(c.Fields), len(c.Methods))
	}
	if _, ok := c.Method("compareTo", "(Ljava/lang/Object;)I"); !ok {
		t.Error("compareTo not found")
	}
	uid, ok := c.DeclaredSerialVersionUID()
	if !ok || uid != 42 {
		t.Errorf("DeclaredSerialVersionUID = %d, %v; want 42, true", uid, ok)
	}
	if c.SerialVersionUID() != 42 {
		t.Errorf("SerialVersionUID = %d, want 42", c.SerialVersionUID())
	}
}

func TestParse_Errors(t *testing.T) {
	good := testutil.Serializable("com.example.A").Bytes()
	newer := testutil.Class{Name: "com.example.B", Major: classfile.MaxMajorVersion + 1}.Bytes()

	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{name: "bad magic", in: []byte{0xCA, 0xFE, 0xBA, 0xBF, 0, 0, 0, 52}, want: classfile.ErrBadMagic},
		{name: "truncated header", in: good[:6], want: classfile.ErrTruncated},
		{name: "truncated body", in: good[:len(good)-3], want: classfile.ErrTruncated},
		{name: "unsupported version", in: newer, want: classfile.ErrUnsupportedVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := classfile.Parse(tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("Parse error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDeclaredSerialVersionUID_RequiresStaticFinalLong(t *testing.T) {
	c, err := classfile.Parse(testutil.Class{
		Name: "com.example.C",
		Fields: []testutil.Field{
			{Name: "serialVersionUID", Desc: "J", Access: testutil.AccPrivate | testutil.AccStatic, Constant: int64(7)},
		},
	}.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := c.DeclaredSerialVersionUID(); ok {
		t.Error("non-final serialVersionUID should be ignored")
	}
}

func TestDefaultSerialVersionUID(t *testing.T) {
	base := testutil.Class{
		Name:       "com.example.Widget",
		Interfaces: []string{"java.io.Serializable"},
		Fields: []testutil.Field{
			{Name: "size", Desc: "I", Access: testutil.AccPrivate},
		},
		Methods: []testutil.Method{
			{Name: "<init>", Desc: "()V", Access: testutil.AccPublic},
			{Name: "getSize", Desc: "()I", Access: testutil.AccPublic},
		},
	}
	suid := func(c testutil.Class) int64 {
		t.Helper()
		parsed, err := classfile.Parse(c.Bytes())
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		return classfile.DefaultSerialVersionUID(parsed)
	}

	want := suid(base)
	if got := suid(base); got != want {
		t.Fatalf("not deterministic: %d != %d", got, want)
	}

	privateStatic := base
	privateStatic.Fields = append(append([]testutil.Field(nil), base.Fields...),
		testutil.Field{Name: "CACHE", Desc: "Ljava/lang/Object;", Access: testutil.AccPrivate | testutil.AccStatic})
	if got := suid(privateStatic); got != want {
		t.Errorf("private static field changed the SUID: %d != %d", got, want)
	}

	privateMethod := base
	privateMethod.Methods = append(append([]testutil.Method(nil), base.Methods...),
		testutil.Method{Name: "helper", Desc: "()V", Access: testutil.AccPrivate})
	if got := suid(privateMethod); got != want {
		t.Errorf("private method changed the SUID: %d != %d", got, want)
	}

	publicMethod := base
	publicMethod.Methods = append(append([]testutil.Method(nil), base.Methods...),
		testutil.Method{Name: "reset", Desc: "()V", Access: testutil.AccPublic})
	if got := suid(publicMethod); got == want {
		t.Error("public method did not change the SUID")
	}

	reordered := base
	reordered.Interfaces = []string{"java.lang.Cloneable", "java.io.Serializable"}
	sorted := base
	sorted.Interfaces = []string{"java.io.Serializable", "java.lang.Cloneable"}
	if suid(reordered) != suid(sorted) {
		t.Error("interface order should not matter")
	}
}
