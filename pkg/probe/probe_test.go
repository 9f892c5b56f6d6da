package probe_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bft-labs/serially/internal/testutil"
	"github.com/bft-labs/serially/pkg/classpath"
	"github.com/bft-labs/serially/pkg/jserial"
	"github.com/bft-labs/serially/pkg/log"
	"github.com/bft-labs/serially/pkg/probe"
)

func fixture(t *testing.T, classes ...testutil.Class) (*classpath.Registry, string) {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteJar(t, filepath.Join(dir, "lib.jar"), classes...)
	reg := classpath.NewRegistry()
	t.Cleanup(func() { reg.Close() })
	return reg, dir
}

func TestLoader_EnsureLoaded(t *testing.T) {
	reg, dir := fixture(t, testutil.Serializable("com.example.Gadget"))
	loader := probe.NewLoader(reg, dir, log.NewNoopLogger())
	ctx := context.Background()

	if !loader.EnsureLoaded(ctx, "lib.jar") {
		t.Fatal("first EnsureLoaded = false")
	}
	if !loader.EnsureLoaded(ctx, "lib.jar") {
		t.Fatal("second EnsureLoaded = false")
	}
	if diff := cmp.Diff([]string{"com.example.Gadget"}, reg.ClassesIn(filepath.Join(dir, "lib.jar"))); diff != "" {
		t.Errorf("registered classes mismatch (-want +got):\n%s", diff)
	}
	if loader.EnsureLoaded(ctx, "missing.jar") {
		t.Error("EnsureLoaded(missing.jar) = true")
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if loader.EnsureLoaded(canceled, "lib.jar") {
		t.Error("EnsureLoaded with canceled context = true")
	}
}

func TestInstantiator(t *testing.T) {
	reg, dir := fixture(t,
		testutil.Serializable("com.example.Gadget"),
		testutil.Class{Name: "com.example.Shape", Access: testutil.AccPublic | testutil.AccAbstract},
		testutil.Class{Name: "com.example.Orphan", Super: "org.absent.Base"},
		testutil.Class{Name: "com.example.Future", Major: 99},
	)
	probe.NewLoader(reg, dir, nil).EnsureLoaded(context.Background(), "lib.jar")
	inst := probe.NewInstantiator(reg, nil)

	if got := inst.Instantiate("com.example.Gadget"); got == nil || got.Name() != "com.example.Gadget" {
		t.Errorf("Instantiate(Gadget) = %v", got)
	}
	for _, name := range []string{"com.example.Shape", "com.example.Orphan", "com.example.Future", "com.example.Missing"} {
		if got := inst.Instantiate(name); got != nil {
			t.Errorf("Instantiate(%s) = %v, want nil", name, got)
		}
	}
}

func TestDescribe(t *testing.T) {
	reg, dir := fixture(t,
		testutil.Class{
			Name:       "com.example.Base",
			Interfaces: []string{"java.io.Serializable"},
			Fields: []testutil.Field{
				{Name: "serialVersionUID", Desc: "J", Access: testutil.AccPrivate | testutil.AccStatic | testutil.AccFinal, Constant: int64(11)},
				{Name: "id", Desc: "I", Access: testutil.AccPrivate},
			},
			Methods: []testutil.Method{
				{Name: "writeObject", Desc: "(Ljava/io/ObjectOutputStream;)V", Access: testutil.AccPrivate},
			},
		},
		testutil.Class{
			Name:  "com.example.Gadget",
			Super: "com.example.Base",
			Fields: []testutil.Field{
				{Name: "serialVersionUID", Desc: "J", Access: testutil.AccPrivate | testutil.AccStatic | testutil.AccFinal, Constant: int64(22)},
				{Name: "target", Desc: "Ljava/lang/Object;", Access: testutil.AccPrivate},
				{Name: "count", Desc: "J", Access: testutil.AccPrivate},
				{Name: "cache", Desc: "Ljava/util/Map;", Access: testutil.AccPrivate | testutil.AccTransient},
				{Name: "INSTANCES", Desc: "I", Access: testutil.AccStatic},
				{Name: "data", Desc: "[B", Access: testutil.AccPrivate},
			},
		},
	)
	probe.NewLoader(reg, dir, nil).EnsureLoaded(context.Background(), "lib.jar")
	inst, err := reg.Allocate("com.example.Gadget")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	got, err := probe.Describe(inst)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	want := &jserial.Object{Class: &jserial.ClassDesc{
		Name:             "com.example.Gadget",
		SerialVersionUID: 22,
		Flags:            jserial.SCSerializable,
		Fields: []jserial.FieldDesc{
			{Type: jserial.TypeLong, Name: "count"},
			{Type: jserial.TypeArray, Name: "data", ClassName: "[B"},
			{Type: jserial.TypeObject, Name: "target", ClassName: "Ljava/lang/Object;"},
		},
		Super: &jserial.ClassDesc{
			Name:             "com.example.Base",
			SerialVersionUID: 11,
			Flags:            jserial.SCSerializable | jserial.SCWriteMethod,
			Fields:           []jserial.FieldDesc{{Type: jserial.TypeInt, Name: "id"}},
		},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Describe mismatch (-want +got):\n%s", diff)
	}
}

func TestDescribe_BuiltinSuperclass(t *testing.T) {
	reg, dir := fixture(t, testutil.Class{
		Name:  "com.example.Amount",
		Super: "java.lang.Number",
		Fields: []testutil.Field{
			{Name: "value", Desc: "D", Access: testutil.AccPrivate},
		},
	})
	probe.NewLoader(reg, dir, nil).EnsureLoaded(context.Background(), "lib.jar")
	inst, err := reg.Allocate("com.example.Amount")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	got, err := probe.Describe(inst)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	super := got.Class.Super
	if super == nil || super.Name != "java.lang.Number" || super.SerialVersionUID != -8742448824652078965 || len(super.Fields) != 0 {
		t.Errorf("Number descriptor = %+v", super)
	}
}

func TestDescribe_Failures(t *testing.T) {
	reg, dir := fixture(t,
		testutil.Class{Name: "com.example.Plain"},
		testutil.Class{Name: "com.example.Ext", Interfaces: []string{"java.io.Externalizable"}},
		testutil.Class{Name: "com.example.Color", Super: "java.lang.Enum", Access: testutil.AccPublic | testutil.AccFinal | testutil.AccSuper | testutil.AccEnum},
		testutil.Class{Name: "com.example.Cached", Super: "java.util.HashMap"},
		testutil.Class{
			Name:       "com.example.Custom",
			Interfaces: []string{"java.io.Serializable"},
			Fields: []testutil.Field{
				{Name: "serialPersistentFields", Desc: "[Ljava/io/ObjectStreamField;", Access: testutil.AccPrivate | testutil.AccStatic | testutil.AccFinal},
			},
		},
	)
	probe.NewLoader(reg, dir, nil).EnsureLoaded(context.Background(), "lib.jar")

	tests := []struct {
		class string
		want  error
	}{
		{class: "com.example.Plain", want: probe.ErrNotSerializable},
		{class: "com.example.Ext", want: probe.ErrExternalizable},
		{class: "com.example.Color", want: probe.ErrEnum},
		{class: "com.example.Cached", want: probe.ErrNotSerializable},
		{class: "com.example.Custom", want: probe.ErrUnknownLayout},
	}
	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			inst, err := reg.Allocate(tt.class)
			if err != nil {
				t.Fatalf("Allocate: %v", err)
			}
			if _, err := probe.Describe(inst); !errors.Is(err, tt.want) {
				t.Errorf("Describe error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDescribe_OpaqueSuperclass(t *testing.T) {
	reg, dir := fixture(t, testutil.Class{
		Name:       "com.example.Cached",
		Super:      "java.util.HashMap",
		Interfaces: []string{"java.io.Serializable"},
	})
	probe.NewLoader(reg, dir, nil).EnsureLoaded(context.Background(), "lib.jar")
	inst, err := reg.Allocate("com.example.Cached")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := probe.Describe(inst); !errors.Is(err, probe.ErrUnknownLayout) {
		t.Errorf("Describe error = %v, want ErrUnknownLayout", err)
	}
}

func TestSerializer_Serialize(t *testing.T) {
	reg, dir := fixture(t,
		testutil.Serializable("com.example.Gadget", testutil.Field{Name: "n", Desc: "I", Access: testutil.AccPrivate}),
		testutil.Class{Name: "com.example.Plain"},
	)
	probe.NewLoader(reg, dir, nil).EnsureLoaded(context.Background(), "lib.jar")
	inst := probe.NewInstantiator(reg, nil)
	ser := probe.NewSerializer(log.NewNoopLogger())

	gadget := inst.Instantiate("com.example.Gadget")
	first := ser.Serialize(gadget)
	if len(first) <= jserial.EmptyEncodingLen {
		t.Fatalf("Serialize(Gadget) = %x", first)
	}
	if second := ser.Serialize(gadget); !bytes.Equal(first, second) {
		t.Error("encoding is not deterministic")
	}

	decoded, err := jserial.Unmarshal(first)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	obj, ok := decoded.(*jserial.Object)
	if !ok || obj.Class.Name != "com.example.Gadget" {
		t.Fatalf("decoded %#v", decoded)
	}
	typ, err := reg.Resolve("com.example.Gadget")
	if err != nil {
		t.Fatal(err)
	}
	if suid, _ := typ.SerialVersionUID(); obj.Class.SerialVersionUID != suid {
		t.Errorf("SUID = %d, want %d", obj.Class.SerialVersionUID, suid)
	}
	if v, _ := obj.Field("n"); v != int32(0) {
		t.Errorf("field n = %v, want 0", v)
	}

	if got := ser.Serialize(inst.Instantiate("com.example.Plain")); got != nil {
		t.Errorf("Serialize(Plain) = %x, want nil", got)
	}
	if got := ser.Serialize(nil); got != nil {
		t.Errorf("Serialize(nil) = %x, want nil (empty encoding)", got)
	}
}
