package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	logadapter "github.com/bft-labs/serially/internal/adapters/log"
	"github.com/bft-labs/serially/internal/domain"
	"github.com/bft-labs/serially/internal/ports"
)

type fakeCatalog struct {
	rows []domain.CatalogRow
	err  error
}

func (c fakeCatalog) Rows(context.Context) ([]domain.CatalogRow, error) { return c.rows, c.err }

// fakeLoader loads every handle except those listed in broken.
type fakeLoader struct {
	broken map[string]bool
	loaded []string
}

func (l *fakeLoader) EnsureLoaded(_ context.Context, handle string) bool {
	l.loaded = append(l.loaded, handle)
	return !l.broken[handle]
}

// fakeProbes instantiates classes listed in payloads and serializes them to
// the listed payload. A nil payload means the instance cannot be encoded.
type fakeProbes struct {
	payloads map[string][]byte
	tried    []string
}

type fakeInstance struct{ class string }

func (p *fakeProbes) Instantiate(class string) ports.Instance {
	p.tried = append(p.tried, class)
	if _, ok := p.payloads[class]; !ok {
		return nil
	}
	return fakeInstance{class: class}
}

func (p *fakeProbes) Serialize(inst ports.Instance) []byte {
	return p.payloads[inst.(fakeInstance).class]
}

type fakeProber struct {
	kinds  map[string]domain.OutcomeKind
	probed []string
}

func (p *fakeProber) Probe(_ context.Context, inst ports.Instance) domain.Outcome {
	class := inst.(fakeInstance).class
	p.probed = append(p.probed, class)
	return domain.Outcome{Kind: p.kinds[class], Detail: "detail of " + class}
}

type record struct {
	Handle  string
	Payload string
}

type fakeSink struct {
	records []record
	err     error
}

func (s *fakeSink) Append(handle string, payload []byte) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, record{Handle: handle, Payload: string(payload)})
	return nil
}

func (s *fakeSink) Path() string { return "/tmp/enumjavalibs_20240101000000.csv" }

type fixture struct {
	loader *fakeLoader
	probes *fakeProbes
	prober *fakeProber
	sink   *fakeSink
	logger *logadapter.Recorder
}

func newFixture(payloads map[string][]byte) *fixture {
	return &fixture{
		loader: &fakeLoader{broken: map[string]bool{}},
		probes: &fakeProbes{payloads: payloads},
		prober: &fakeProber{kinds: map[string]domain.OutcomeKind{}},
		sink:   &fakeSink{},
		logger: logadapter.NewRecorder(),
	}
}

func (f *fixture) engine(t *testing.T, mode domain.Mode, filter string, rows ...domain.CatalogRow) *Engine {
	t.Helper()
	e, err := NewEngine(
		EngineConfig{Mode: mode, Filter: filter, RunID: "run-1", JarDir: "/jars"},
		EngineDeps{
			Catalog:      fakeCatalog{rows: rows},
			Loader:       f.loader,
			Instantiator: f.probes,
			Serializer:   f.probes,
			Prober:       f.prober,
			Sink:         f.sink,
			Logger:       f.logger,
		},
	)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func rows(pairs ...string) []domain.CatalogRow {
	var out []domain.CatalogRow
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, domain.CatalogRow{Handle: pairs[i], Class: pairs[i+1]})
	}
	return out
}

func TestEngine_LocalFirstSuccessPerArtifact(t *testing.T) {
	f := newFixture(map[string][]byte{
		"a.Second": []byte("payload-a2"),
		"a.Third":  []byte("payload-a3"),
		"b.Only":   []byte("payload-b"),
	})
	e := f.engine(t, domain.ModeLocal, "", rows(
		"a.jar", "a.First",
		"a.jar", "a.Second",
		"a.jar", "a.Third",
		"b.jar", "b.Only",
	)...)

	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []record{{"a.jar", "payload-a2"}, {"b.jar", "payload-b"}}
	if diff := cmp.Diff(want, f.sink.records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a.First", "a.Second", "b.Only"}, f.probes.tried); diff != "" {
		t.Errorf("tried classes mismatch (-want +got):\n%s", diff)
	}
	if summary.Found != 2 || summary.Tried != 3 || summary.Loaded != 2 || summary.Artifacts != 2 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.OutputPath != f.sink.Path() || summary.RunID != "run-1" {
		t.Errorf("summary = %+v", summary)
	}

	infos := f.logger.Messages(logadapter.LevelInfo)
	wantInfos := []string{
		"Fetching jars from /jars..",
		"Serializing classes from 2 jars..",
		"Finished",
		"See output in " + f.sink.Path(),
	}
	if diff := cmp.Diff(wantInfos, infos); diff != "" {
		t.Errorf("info messages mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_UntestableArtifact(t *testing.T) {
	f := newFixture(map[string][]byte{
		// Instantiable but encodes to nothing.
		"a.Empty": nil,
		"b.Good":  []byte("payload-b"),
	})
	e := f.engine(t, domain.ModeLocal, "", rows(
		"a.jar", "a.Missing",
		"a.jar", "a.Empty",
		"b.jar", "b.Good",
	)...)

	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]record{{"b.jar", "payload-b"}}, f.sink.records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if summary.Untestable != 1 || summary.Found != 1 {
		t.Errorf("summary = %+v", summary)
	}
	debug := f.logger.Messages(logadapter.LevelDebug)
	if !contains(debug, "No serializable classes in a.jar, this jar can not be tested") {
		t.Errorf("debug messages = %q", debug)
	}
}

func TestEngine_FilterSelectsArtifacts(t *testing.T) {
	f := newFixture(map[string][]byte{
		"com.one.C1":    []byte("1"),
		"com.one.C2":    []byte("2"),
		"org.target.C3": []byte("3"),
	})
	e := f.engine(t, domain.ModeLocal, "org.target", rows(
		"A1.jar", "com.one.C1",
		"A1.jar", "com.one.C2",
		"A2.jar", "org.target.C3",
	)...)

	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"A2.jar"}, f.loader.loaded); diff != "" {
		t.Errorf("loaded mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]record{{"A2.jar", "3"}}, f.sink.records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_SkipsUnloadableArtifacts(t *testing.T) {
	f := newFixture(map[string][]byte{"a.C": []byte("a"), "b.C": []byte("b")})
	f.loader.broken["a.jar"] = true
	e := f.engine(t, domain.ModeLocal, "", rows("a.jar", "a.C", "b.jar", "b.C")...)

	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]record{{"b.jar", "b"}}, f.sink.records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if summary.Loaded != 1 {
		t.Errorf("Loaded = %d, want 1", summary.Loaded)
	}
}

func TestEngine_SinkErrorsAreLogged(t *testing.T) {
	f := newFixture(map[string][]byte{"a.C": []byte("a")})
	f.sink.err = errors.New("disk full")
	e := f.engine(t, domain.ModeLocal, "", rows("a.jar", "a.C")...)

	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"Couldn't append to CSV file"}, f.logger.Messages(logadapter.LevelError)); diff != "" {
		t.Errorf("error messages mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_EmptyCatalog(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		rows   []domain.CatalogRow
		want   error
	}{
		{name: "no rows", want: domain.ErrEmptyCatalog},
		{name: "filter excludes all", filter: "nomatch", rows: rows("a.jar", "a.C"), want: domain.ErrNoFilterMatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(nil)
			_, err := f.engine(t, domain.ModeLocal, tt.filter, tt.rows...).Run(context.Background())
			if !errors.Is(err, tt.want) {
				t.Errorf("Run error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEngine_RemoteClassNotFoundTriesNextClass(t *testing.T) {
	f := newFixture(map[string][]byte{
		"a.C1": []byte("a1"),
		"a.C2": []byte("a2"),
		"a.C3": []byte("a3"),
		"b.C1": []byte("b1"),
	})
	f.prober.kinds["a.C1"] = domain.RemoteClassNotFound
	f.prober.kinds["a.C2"] = domain.RemoteNoError
	f.prober.kinds["b.C1"] = domain.RemoteClassNotFound
	e := f.engine(t, domain.ModeRemote, "", rows(
		"a.jar", "a.C1",
		"a.jar", "a.C2",
		"a.jar", "a.C3",
		"b.jar", "b.C1",
	)...)

	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// a.C3 is skipped once a.C2 reports the jar present.
	if diff := cmp.Diff([]string{"a.C1", "a.C2", "b.C1"}, f.prober.probed); diff != "" {
		t.Errorf("probed mismatch (-want +got):\n%s", diff)
	}
	wantFound := []string{"Library a.jar is loaded by the remote application"}
	if diff := cmp.Diff(wantFound, f.logger.Messages(logadapter.LevelFound)); diff != "" {
		t.Errorf("findings mismatch (-want +got):\n%s", diff)
	}
	if summary.Found != 1 {
		t.Errorf("Found = %d, want 1", summary.Found)
	}
	if len(f.sink.records) != 0 {
		t.Errorf("remote mode wrote records: %v", f.sink.records)
	}
}

func TestEngine_RemoteReports(t *testing.T) {
	f := newFixture(map[string][]byte{
		"a.C1": []byte("a1"),
		"a.C2": []byte("a2"),
		"b.C1": []byte("b1"),
		"c.C1": []byte("c1"),
	})
	f.prober.kinds["a.C1"] = domain.RemoteUnmarshalAmbiguous
	f.prober.kinds["a.C2"] = domain.RemoteNoError
	f.prober.kinds["b.C1"] = domain.RemoteOtherError
	f.prober.kinds["c.C1"] = domain.RemoteConnectionError
	e := f.engine(t, domain.ModeRemote, "", rows(
		"a.jar", "a.C1",
		"a.jar", "a.C2",
		"b.jar", "b.C1",
		"c.jar", "c.C1",
	)...)

	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	wantFound := []string{
		"Library a.jar is loaded by the remote application",
		"Library b.jar is loaded by the remote application",
	}
	if diff := cmp.Diff(wantFound, f.logger.Messages(logadapter.LevelFound)); diff != "" {
		t.Errorf("found mismatch (-want +got):\n%s", diff)
	}
	wantErrors := []string{
		"Something went wrong with deserialization of a.C1 at remote side, no conclusions can be drawn",
		"RMI: detail of b.C1",
		"Connection issue with RMI: detail of c.C1",
	}
	if diff := cmp.Diff(wantErrors, f.logger.Messages(logadapter.LevelError)); diff != "" {
		t.Errorf("error messages mismatch (-want +got):\n%s", diff)
	}
	if summary.Found != 2 || summary.Untestable != 0 {
		t.Errorf("summary = %+v", summary)
	}
	infos := f.logger.Messages(logadapter.LevelInfo)
	if !contains(infos, "Serializing classes from 3 jars and sending them to RMI endpoint..") || contains(infos, "See output in "+f.sink.Path()) {
		t.Errorf("info messages = %q", infos)
	}
}

func TestEngine_PatchedTargetHaltsRun(t *testing.T) {
	f := newFixture(map[string][]byte{
		"a.C1": []byte("a1"),
		"b.C1": []byte("b1"),
		"c.C1": []byte("c1"),
	})
	f.prober.kinds["a.C1"] = domain.RemoteClassNotFound
	f.prober.kinds["b.C1"] = domain.RemoteTargetPatched
	e := f.engine(t, domain.ModeRemote, "", rows("a.jar", "a.C1", "b.jar", "b.C1", "c.jar", "c.C1")...)

	_, err := e.Run(context.Background())
	if !errors.Is(err, domain.ErrTargetPatched) {
		t.Fatalf("Run error = %v, want ErrTargetPatched", err)
	}
	if diff := cmp.Diff([]string{"a.jar", "b.jar"}, f.loader.loaded); diff != "" {
		t.Errorf("loaded mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a.C1", "b.C1"}, f.prober.probed); diff != "" {
		t.Errorf("probed mismatch (-want +got):\n%s", diff)
	}
	if errs := f.logger.Messages(logadapter.LevelError); len(errs) != 1 || errs[0] != patchedTargetMsg {
		t.Errorf("error messages = %q", errs)
	}
}

func TestEngine_StopsWhenCanceled(t *testing.T) {
	f := newFixture(map[string][]byte{"a.C": []byte("a")})
	e := f.engine(t, domain.ModeLocal, "", rows("a.jar", "a.C")...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
	if len(f.loader.loaded) != 0 {
		t.Errorf("loaded %v after cancel", f.loader.loaded)
	}
}

func TestNewEngine_Validation(t *testing.T) {
	f := newFixture(nil)
	deps := EngineDeps{
		Catalog:      fakeCatalog{},
		Loader:       f.loader,
		Instantiator: f.probes,
		Serializer:   f.probes,
		Logger:       f.logger,
	}
	tests := []struct {
		name string
		mode domain.Mode
		deps EngineDeps
	}{
		{name: "local without sink", mode: domain.ModeLocal, deps: deps},
		{name: "remote without prober", mode: domain.ModeRemote, deps: deps},
		{name: "unknown mode", mode: "base64", deps: deps},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEngine(EngineConfig{Mode: tt.mode}, tt.deps); !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("NewEngine error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
