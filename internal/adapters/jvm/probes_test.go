package jvm

import (
	"path/filepath"
	"testing"

	"github.com/bft-labs/serially/internal/testutil"
	"github.com/bft-labs/serially/pkg/classpath"
	"github.com/bft-labs/serially/pkg/jserial"
)

func TestProbes(t *testing.T) {
	path := testutil.WriteJar(t, filepath.Join(t.TempDir(), "lib.jar"),
		testutil.Serializable("com.example.Gadget"),
		testutil.Class{Name: "com.example.Shape", Access: testutil.AccPublic | testutil.AccAbstract},
	)
	reg := classpath.NewRegistry()
	defer reg.Close()
	if _, err := reg.Load(path); err != nil {
		t.Fatal(err)
	}
	p := NewProbes(reg, nil)

	inst := p.Instantiate("com.example.Gadget")
	if _, ok := inst.(*classpath.Instance); !ok {
		t.Fatalf("Instantiate(Gadget) = %#v", inst)
	}
	if b := p.Serialize(inst); len(b) <= jserial.EmptyEncodingLen {
		t.Errorf("Serialize(Gadget) = %x", b)
	}

	if got := p.Instantiate("com.example.Shape"); got != nil {
		t.Errorf("Instantiate(Shape) = %#v, want untyped nil", got)
	}
	if got := p.Serialize("not an instance"); got != nil {
		t.Errorf("Serialize(string) = %x, want nil", got)
	}
}
