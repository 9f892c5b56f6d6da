package domain_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bft-labs/serially/internal/domain"
)

func TestGroupArtifacts(t *testing.T) {
	rows := []domain.CatalogRow{
		{Handle: "a1.jar", Class: "org.one.C1"},
		{Handle: "a1.jar", Class: "org.one.C2"},
		{Handle: "a2.jar", Class: "org.two.C3"},
		{Handle: "a1.jar", Class: "org.one.C1"},
		{Handle: "a3.jar", Class: "org.three.C4"},
	}

	tests := []struct {
		name   string
		filter string
		want   []domain.Artifact
	}{
		{
			name: "no filter keeps catalog order and dedupes",
			want: []domain.Artifact{
				{Handle: "a1.jar", Classes: []string{"org.one.C1", "org.one.C2"}},
				{Handle: "a2.jar", Classes: []string{"org.two.C3"}},
				{Handle: "a3.jar", Classes: []string{"org.three.C4"}},
			},
		},
		{
			name:   "filter matching one class selects one artifact",
			filter: "C3",
			want:   []domain.Artifact{{Handle: "a2.jar", Classes: []string{"org.two.C3"}}},
		},
		{
			name:   "filter keeps matching classes only",
			filter: "one.C2",
			want:   []domain.Artifact{{Handle: "a1.jar", Classes: []string{"org.one.C2"}}},
		},
		{
			name:   "filter matching nothing",
			filter: "nope",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.GroupArtifacts(rows, tt.filter)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("GroupArtifacts mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	payload := []byte{0xAC, 0xED, 0x00, 0x05, 0x73}

	tests := []struct {
		mode domain.Mode
		kind domain.OutcomeKind
		want domain.Verdict
	}{
		{domain.ModeLocal, domain.SerializationSucceeded, domain.Present},
		{domain.ModeLocal, domain.SerializationFailed, domain.Absent},
		{domain.ModeLocal, domain.NotInstantiable, domain.Absent},
		{domain.ModeRemote, domain.RemoteNoError, domain.Present},
		{domain.ModeRemote, domain.RemoteOtherError, domain.Present},
		{domain.ModeRemote, domain.RemoteClassNotFound, domain.Absent},
		{domain.ModeRemote, domain.NotInstantiable, domain.Absent},
		{domain.ModeRemote, domain.SerializationFailed, domain.Absent},
		{domain.ModeRemote, domain.RemoteConnectionError, domain.Inconclusive},
		{domain.ModeRemote, domain.RemoteUnmarshalAmbiguous, domain.Inconclusive},
		{domain.ModeRemote, domain.RemoteTargetPatched, domain.Inconclusive},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode)+"/"+tt.kind.String(), func(t *testing.T) {
			o := domain.Outcome{Kind: tt.kind}
			if tt.kind == domain.SerializationSucceeded {
				o.Payload = payload
			}
			if got := domain.Classify(tt.mode, o); got != tt.want {
				t.Errorf("Classify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassify_IsTotal(t *testing.T) {
	for _, mode := range []domain.Mode{domain.ModeLocal, domain.ModeRemote} {
		for k := domain.NotInstantiable; k <= domain.RemoteNoError; k++ {
			v := domain.Classify(mode, domain.Outcome{Kind: k})
			if v != domain.Present && v != domain.Absent && v != domain.Inconclusive {
				t.Errorf("Classify(%s, %s) = %d", mode, k, v)
			}
		}
	}
}

func TestOutcome_FatalAndSettles(t *testing.T) {
	for k := domain.NotInstantiable; k <= domain.RemoteNoError; k++ {
		o := domain.Outcome{Kind: k}
		if got, want := o.Fatal(), k == domain.RemoteTargetPatched; got != want {
			t.Errorf("%s.Fatal() = %v, want %v", k, got, want)
		}
	}

	settles := map[domain.OutcomeKind]bool{
		domain.RemoteNoError:       true,
		domain.RemoteOtherError:    true,
		domain.RemoteTargetPatched: true,
	}
	for k := domain.NotInstantiable; k <= domain.RemoteNoError; k++ {
		if got := domain.Settles(domain.ModeRemote, domain.Outcome{Kind: k}); got != settles[k] {
			t.Errorf("Settles(remote, %s) = %v, want %v", k, got, settles[k])
		}
	}
	if domain.Settles(domain.ModeRemote, domain.Outcome{Kind: domain.RemoteClassNotFound}) {
		t.Error("a class missing remotely must not settle an artifact")
	}
	if domain.Settles(domain.ModeLocal, domain.Outcome{Kind: domain.SerializationFailed}) {
		t.Error("a failed serialization must not settle an artifact")
	}
}
