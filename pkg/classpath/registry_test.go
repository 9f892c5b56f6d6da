package classpath_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bft-labs/serially/internal/testutil"
	"github.com/bft-labs/serially/pkg/classpath"
)

func TestRegistry_LoadIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	jar := testutil.WriteJar(t, filepath.Join(dir, "lib1.jar"),
		testutil.Serializable("com.example.Gadget"),
		testutil.Serializable("com.example.Other"),
	)

	r := classpath.NewRegistry()
	defer r.Close()

	added, err := r.Load(jar)
	if err != nil || !added {
		t.Fatalf("first Load = %v, %v; want true, nil", added, err)
	}

	// Same archive through a different spelling of the path.
	added, err = r.Load(filepath.Join(dir, ".", "lib1.jar"))
	if err != nil || added {
		t.Fatalf("second Load = %v, %v; want false, nil", added, err)
	}
	if diff := cmp.Diff([]string{"com.example.Gadget", "com.example.Other"}, r.ClassesIn(jar)); diff != "" {
		t.Errorf("ClassesIn mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_LoadErrors(t *testing.T) {
	dir := t.TempDir()
	notZip := filepath.Join(dir, "broken.jar")
	if err := os.WriteFile(notZip, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want error
	}{
		{name: "missing", path: filepath.Join(dir, "missing.jar"), want: classpath.ErrArtifactNotFound},
		{name: "not a zip", path: notZip, want: classpath.ErrMalformedArtifact},
		{name: "directory", path: dir, want: classpath.ErrMalformedArtifact},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := classpath.NewRegistry()
			defer r.Close()
			added, err := r.Load(tt.path)
			if !errors.Is(err, tt.want) {
				t.Errorf("Load error = %v, want %v", err, tt.want)
			}
			if added || len(r.ClassesIn(tt.path)) != 0 {
				t.Error("failed load must not register the artifact")
			}
		})
	}
}

func TestRegistry_FirstDefinitionWins(t *testing.T) {
	dir := t.TempDir()
	first := testutil.WriteJar(t, filepath.Join(dir, "a.jar"), testutil.Serializable("com.example.Dup"))
	second := testutil.WriteJar(t, filepath.Join(dir, "b.jar"), testutil.Class{Name: "com.example.Dup"})

	r := classpath.NewRegistry()
	defer r.Close()
	for _, p := range []string{first, second} {
		if _, err := r.Load(p); err != nil {
			t.Fatalf("Load %s: %v", p, err)
		}
	}

	typ, err := r.Resolve("com.example.Dup")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !typ.IsSerializable() {
		t.Error("definition from the second archive replaced the first")
	}
}

func TestRegistry_Resolve(t *testing.T) {
	dir := t.TempDir()
	jar := testutil.WriteJar(t, filepath.Join(dir, "lib.jar"),
		testutil.Class{Name: "com.example.Base", Interfaces: []string{"java.io.Serializable"}},
		testutil.Class{Name: "com.example.Child", Super: "com.example.Base"},
		testutil.Class{Name: "com.example.Num", Super: "java.lang.Number"},
		testutil.Class{Name: "com.example.Ext", Interfaces: []string{"java.io.Externalizable"}},
		testutil.Class{Name: "com.example.Orphan", Super: "org.missing.Parent"},
		testutil.Class{Name: "com.example.Task", Super: "java.util.concurrent.FutureTask"},
		testutil.Class{Name: "com.example.Iface", Access: testutil.AccPublic | testutil.AccInterface | testutil.AccAbstract},
		testutil.Class{Name: "com.example.Shape", Access: testutil.AccPublic | testutil.AccAbstract},
	)

	r := classpath.NewRegistry()
	defer r.Close()
	if _, err := r.Load(jar); err != nil {
		t.Fatalf("Load: %v", err)
	}

	child, err := r.Resolve("com.example.Child")
	if err != nil {
		t.Fatalf("Resolve Child: %v", err)
	}
	if !child.IsSerializable() {
		t.Error("Child should inherit Serializable from Base")
	}
	if child.Super.Name != "com.example.Base" || child.Super.Super.Name != "java.lang.Object" {
		t.Errorf("unexpected super chain: %s -> %s", child.Super.Name, child.Super.Super.Name)
	}

	num, err := r.Resolve("com.example.Num")
	if err != nil {
		t.Fatalf("Resolve Num: %v", err)
	}
	if num.Super.Kind != classpath.KindBuiltin || !num.IsSerializable() {
		t.Error("Num should extend the builtin serializable java.lang.Number")
	}

	ext, err := r.Resolve("com.example.Ext")
	if err != nil {
		t.Fatalf("Resolve Ext: %v", err)
	}
	if !ext.IsExternalizable() || !ext.IsSerializable() {
		t.Error("Externalizable implies Serializable")
	}

	task, err := r.Resolve("com.example.Task")
	if err != nil {
		t.Fatalf("Resolve Task: %v", err)
	}
	if task.Super.Kind != classpath.KindOpaque || task.Super.HasKnownSerialForm() {
		t.Error("unknown platform superclass should be opaque")
	}

	if _, err := r.Resolve("com.example.Orphan"); !errors.Is(err, classpath.ErrUnresolvedSupertype) {
		t.Errorf("Resolve Orphan error = %v, want ErrUnresolvedSupertype", err)
	}
	if _, err := r.Resolve("com.example.Nope"); !errors.Is(err, classpath.ErrClassNotFound) {
		t.Errorf("Resolve Nope error = %v, want ErrClassNotFound", err)
	}
	if _, err := r.Resolve("java.lang.Number"); !errors.Is(err, classpath.ErrClassNotFound) {
		t.Errorf("platform types are not resolvable by name, got %v", err)
	}

	for _, name := range []string{"com.example.Iface", "com.example.Shape"} {
		if _, err := r.Allocate(name); !errors.Is(err, classpath.ErrNotInstantiable) {
			t.Errorf("Allocate %s error = %v, want ErrNotInstantiable", name, err)
		}
	}
	inst, err := r.Allocate("com.example.Child")
	if err != nil {
		t.Fatalf("Allocate Child: %v", err)
	}
	if inst.Name() != "com.example.Child" {
		t.Errorf("Name = %q", inst.Name())
	}
}

func TestClassName(t *testing.T) {
	tests := []struct {
		entry string
		want  string
		ok    bool
	}{
		{entry: "com/example/A.class", want: "com.example.A", ok: true},
		{entry: "com/example/A$Inner.class", want: "com.example.A$Inner", ok: true},
		{entry: "META-INF/versions/11/com/example/A.class"},
		{entry: "module-info.class"},
		{entry: "com/example/package-info.class"},
		{entry: "com/example/readme.txt"},
	}
	for _, tt := range tests {
		got, ok := classpath.ClassName(tt.entry)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ClassName(%q) = %q, %v; want %q, %v", tt.entry, got, ok, tt.want, tt.ok)
		}
	}
}
