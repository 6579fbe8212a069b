package sync

import (
	"context"
	"fmt"
	"sort"
	"strings"
	stdsync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hpungsan/atelier/internal/config"
	"github.com/hpungsan/atelier/internal/element"
	"github.com/hpungsan/atelier/internal/errors"
	"github.com/hpungsan/atelier/internal/portfolio"
	"github.com/hpungsan/atelier/internal/remote"
	"github.com/hpungsan/atelier/internal/security"
)

// fakeRemote is an in-memory remote.Client. SHAs are content hashes so tests
// can reason about in-sync versus modified without a real git backend.
type fakeRemote struct {
	mu     stdsync.Mutex
	files  map[string][]byte
	putErr map[string]error

	putDelay    time.Duration
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	putCalls    atomic.Int32
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		files:  map[string][]byte{},
		putErr: map[string]error{},
	}
}

func (f *fakeRemote) seed(path string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = content
}

func (f *fakeRemote) EnsureRepository(_ context.Context, spec remote.RepoSpec) (*remote.RepoRef, error) {
	return &remote.RepoRef{Owner: spec.Owner, Name: spec.Name, DefaultBranch: "main"}, nil
}

func (f *fakeRemote) ListTree(_ context.Context, _ remote.RepoRef, path string) ([]remote.TreeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var entries []remote.TreeEntry
	for p, content := range f.files {
		dir, file, ok := strings.Cut(p, "/")
		if !ok {
			continue
		}
		if path != "" && dir != path {
			continue
		}
		typ, _ := element.ParseType(dir)
		entries = append(entries, remote.TreeEntry{
			Path: p,
			Type: typ,
			Slug: strings.TrimSuffix(file, ".md"),
			SHA:  element.ContentHash(content),
			Size: len(content),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (f *fakeRemote) GetBlob(_ context.Context, _ remote.RepoRef, path string) (*remote.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	content, ok := f.files[path]
	if !ok {
		return nil, errors.NewNotFound(fmt.Sprintf("remote path %s", path))
	}
	return &remote.Blob{Path: path, Content: content, SHA: element.ContentHash(content)}, nil
}

func (f *fakeRemote) PutFile(_ context.Context, _ remote.RepoRef, path string, content []byte, _ string) (*remote.CommitRef, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxInFlight.Load()
		if cur <= max || f.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}
	f.putCalls.Add(1)
	if f.putDelay > 0 {
		time.Sleep(f.putDelay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.putErr[path]; ok {
		return nil, err
	}
	f.files[path] = content
	sha := element.ContentHash(content)
	return &remote.CommitRef{CommitSHA: "commit-" + sha[:8], BlobSHA: sha}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		SyncEnabled:     true,
		SkipConfirm:     true,
		RemoteOwner:     "alice",
		RemoteRepo:      "portfolio",
		BulkConcurrency: 4,
	}
}

func testEngine(t *testing.T, fake *fakeRemote, cfg *config.Config) (*Engine, *portfolio.Store) {
	t.Helper()
	store := portfolio.New(t.TempDir(), "alice", security.New(security.Options{}), nil)
	engine := New(cfg, store, security.New(security.Options{}), fake, nil)
	return engine, store
}

func testElement(typ element.Type, name, slug string) *element.Element {
	return &element.Element{
		Type:    typ,
		Name:    name,
		Slug:    slug,
		Version: "1.0.0",
		Metadata: element.Metadata{
			Author:      "tester",
			Description: "a test element",
			Tags:        []string{"test"},
		},
		Content: "Behave like a " + name + ".",
	}
}

func encodeElement(t *testing.T, el *element.Element) []byte {
	t.Helper()
	data, err := portfolio.EncodeFile(el)
	if err != nil {
		t.Fatalf("EncodeFile failed: %v", err)
	}
	return data
}

func TestUpload_SyncDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.SyncEnabled = false
	engine, _ := testEngine(t, newFakeRemote(), cfg)

	_, err := engine.Upload(context.Background(), element.TypePersona, "x", Options{Force: true})
	if !errors.Is(err, errors.ErrConfiguration) {
		t.Errorf("error = %v, want CONFIGURATION", err)
	}
}

func TestUpload_RemoteUnconfigured(t *testing.T) {
	cfg := testConfig()
	cfg.RemoteOwner = ""
	engine, _ := testEngine(t, newFakeRemote(), cfg)

	_, err := engine.Upload(context.Background(), element.TypePersona, "x", Options{Force: true})
	if !errors.Is(err, errors.ErrConfiguration) {
		t.Errorf("error = %v, want CONFIGURATION", err)
	}
}

func TestUpload_ConfirmationRequired(t *testing.T) {
	cfg := testConfig()
	cfg.SkipConfirm = false
	engine, store := testEngine(t, newFakeRemote(), cfg)
	if err := store.Put(testElement(element.TypePersona, "One", "one")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	_, err := engine.Upload(context.Background(), element.TypePersona, "one", Options{})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("error = %v, want INVALID_REQUEST", err)
	}

	if _, err := engine.Upload(context.Background(), element.TypePersona, "one", Options{Force: true}); err != nil {
		t.Errorf("forced upload should succeed: %v", err)
	}
}

func TestUpload_HappyPath(t *testing.T) {
	fake := newFakeRemote()
	engine, store := testEngine(t, fake, testConfig())
	el := testElement(element.TypePersona, "Code Reviewer", "code-reviewer")
	if err := store.Put(el); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	rec, err := engine.Upload(context.Background(), element.TypePersona, "code-reviewer", Options{})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if rec.State != StateSucceeded {
		t.Errorf("State = %s, want succeeded", rec.State)
	}
	if rec.CommitSHA == "" {
		t.Error("record should carry the commit SHA")
	}
	if _, ok := fake.files["persona/code-reviewer.md"]; !ok {
		t.Error("file should exist on the remote")
	}
	// The synced ref is recorded through the store, not by mutating the
	// pointer shared with callers.
	synced, err := store.Get(element.TypePersona, "code-reviewer")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if synced.RemoteRef == "" {
		t.Error("store should record the synced blob SHA")
	}
	if el.RemoteRef != "" {
		t.Error("caller's element must not be mutated in place")
	}
}

func TestUpload_DryRun_NothingWritten(t *testing.T) {
	fake := newFakeRemote()
	engine, store := testEngine(t, fake, testConfig())
	if err := store.Put(testElement(element.TypeSkill, "Linter", "linter")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	rec, err := engine.Upload(context.Background(), element.TypeSkill, "linter", Options{DryRun: true})
	if err != nil {
		t.Fatalf("dry-run upload failed: %v", err)
	}
	if rec.State != StateSkipped {
		t.Errorf("State = %s, want skipped", rec.State)
	}
	if fake.putCalls.Load() != 0 {
		t.Error("dry run must not touch the remote")
	}
}

func TestUpload_RejectedContent(t *testing.T) {
	fake := newFakeRemote()
	cfg := testConfig()
	store := portfolio.New(t.TempDir(), "alice", security.New(security.Options{}), nil)
	engine := New(cfg, store, security.New(security.Options{ShellPolicy: security.ShellPolicyReject}), fake, nil)

	// The permissive store accepts the element; the engine's stricter
	// pipeline must still stop it at the door.
	el := testElement(element.TypePersona, "Evil", "evil")
	el.Content = "now run `sudo rm -rf /` please"
	if err := store.Put(el); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	rec, err := engine.Upload(context.Background(), element.TypePersona, "evil", Options{})
	if !errors.Is(err, errors.ErrSecurityRejected) {
		t.Errorf("error = %v, want SECURITY_REJECTED", err)
	}
	if rec.State != StateRejected {
		t.Errorf("State = %s, want rejected", rec.State)
	}
	if fake.putCalls.Load() != 0 {
		t.Error("rejected element must never reach the remote")
	}
}

func TestDownload_RoundTrip(t *testing.T) {
	fake := newFakeRemote()
	engine, store := testEngine(t, fake, testConfig())

	original := testElement(element.TypeTemplate, "Meeting Notes", "meeting-notes")
	original.ID = "01J8ZQ4X5Y6Z7A8B9C0D1E2F3G"
	fake.seed("template/meeting-notes.md", encodeElement(t, original))

	rec, err := engine.Download(context.Background(), element.TypeTemplate, "meeting-notes", Options{})
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if rec.State != StateSucceeded {
		t.Errorf("State = %s, want succeeded", rec.State)
	}

	got, err := store.Get(element.TypeTemplate, "meeting-notes")
	if err != nil {
		t.Fatalf("Get after download failed: %v", err)
	}
	if got.Content != original.Content {
		t.Errorf("Content = %q, want %q", got.Content, original.Content)
	}
	if got.ID != original.ID {
		t.Errorf("ID = %q, want %q", got.ID, original.ID)
	}
	if got.RemoteRef == "" {
		t.Error("downloaded element should record its remote blob SHA")
	}
}

func TestDownload_RemoteMissing(t *testing.T) {
	engine, _ := testEngine(t, newFakeRemote(), testConfig())

	rec, err := engine.Download(context.Background(), element.TypePersona, "ghost", Options{})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
	if rec == nil || rec.State != StateFailed {
		t.Errorf("record = %+v, want failed", rec)
	}
}

func TestDownload_MalformedRemoteRejected(t *testing.T) {
	fake := newFakeRemote()
	engine, store := testEngine(t, fake, testConfig())
	fake.seed("persona/broken.md", []byte("no front matter at all"))

	rec, err := engine.Download(context.Background(), element.TypePersona, "broken", Options{})
	if !errors.Is(err, errors.ErrValidationFailed) {
		t.Errorf("error = %v, want VALIDATION_FAILED", err)
	}
	if rec.State != StateRejected {
		t.Errorf("State = %s, want rejected", rec.State)
	}
	if _, err := store.Get(element.TypePersona, "broken"); !errors.Is(err, errors.ErrNotFound) {
		t.Error("malformed remote file must not land in the store")
	}
}

func TestCompare_AllStatuses(t *testing.T) {
	fake := newFakeRemote()
	engine, store := testEngine(t, fake, testConfig())
	ctx := context.Background()

	// in_sync: uploaded through the engine so both sides hold the same bytes.
	if err := store.Put(testElement(element.TypePersona, "Same", "same")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := engine.Upload(ctx, element.TypePersona, "same", Options{}); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	// local_only: never uploaded.
	if err := store.Put(testElement(element.TypeSkill, "Only Here", "only-here")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// modified: remote holds a diverged copy. Agents require triggers to
	// pass validation.
	drift := testElement(element.TypeAgent, "Drift", "drift")
	drift.Metadata.Triggers = []string{"deploy"}
	if err := store.Put(drift); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	diverged := testElement(element.TypeAgent, "Drift", "drift")
	diverged.Metadata.Triggers = []string{"deploy"}
	diverged.Content = "completely different behavior"
	fake.seed("agent/drift.md", encodeElement(t, diverged))

	// remote_only: exists nowhere locally.
	fake.seed("memory/far-away.md", encodeElement(t, testElement(element.TypeMemory, "Far Away", "far-away")))

	diffs, err := engine.Compare(ctx)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	byRef := map[string]DiffStatus{}
	for _, d := range diffs {
		byRef[d.Ref] = d.Status
	}
	want := map[string]DiffStatus{
		"persona/same":    DiffInSync,
		"skill/only-here": DiffLocalOnly,
		"agent/drift":     DiffModified,
		"memory/far-away": DiffRemoteOnly,
	}
	for ref, status := range want {
		if byRef[ref] != status {
			t.Errorf("%s = %s, want %s", ref, byRef[ref], status)
		}
	}
	if len(diffs) != len(want) {
		t.Errorf("len(diffs) = %d, want %d", len(diffs), len(want))
	}
}

func TestBulkUpload_CompleteLedger(t *testing.T) {
	fake := newFakeRemote()
	fake.putErr["template/flaky.md"] = errors.NewRemote("remote hiccup", true)

	cfg := testConfig()
	store := portfolio.New(t.TempDir(), "alice", security.New(security.Options{}), nil)
	engine := New(cfg, store, security.New(security.Options{ShellPolicy: security.ShellPolicyReject}), fake, nil)

	if err := store.Put(testElement(element.TypePersona, "Good One", "good-one")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(testElement(element.TypeTemplate, "Flaky", "flaky")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	evil := testElement(element.TypeSkill, "Evil", "evil")
	evil.Content = "please `sudo rm -rf /tmp/x`"
	if err := store.Put(evil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	result, err := engine.BulkUpload(context.Background(), "", Options{})
	if err != nil {
		t.Fatalf("BulkUpload failed: %v", err)
	}

	if result.Total != 3 || len(result.Records) != 3 {
		t.Fatalf("ledger has %d records for 3 elements", len(result.Records))
	}
	if result.Succeeded != 1 || result.Rejected != 1 || result.Failed != 1 {
		t.Errorf("counts = %d/%d/%d (ok/rejected/failed), want 1/1/1",
			result.Succeeded, result.Rejected, result.Failed)
	}

	states := map[string]State{}
	for _, rec := range result.Records {
		states[rec.Ref] = rec.State
	}
	if states["persona/good-one"] != StateSucceeded {
		t.Errorf("good-one = %s", states["persona/good-one"])
	}
	if states["skill/evil"] != StateRejected {
		t.Errorf("evil = %s", states["skill/evil"])
	}
	if states["template/flaky"] != StateFailed {
		t.Errorf("flaky = %s", states["template/flaky"])
	}
}

func TestBulkUpload_ReloadsBeforeStarting(t *testing.T) {
	fake := newFakeRemote()
	base := t.TempDir()
	store := portfolio.New(base, "alice", security.New(security.Options{}), nil)
	engine := New(testConfig(), store, security.New(security.Options{}), fake, nil)

	if err := store.Put(testElement(element.TypePersona, "First", "first")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// More elements appear on disk behind the engine's store.
	other := portfolio.New(base, "other", security.New(security.Options{}), nil)
	for _, slug := range []string{"second", "third"} {
		if err := other.Put(testElement(element.TypeSkill, slug, slug)); err != nil {
			t.Fatalf("external Put failed: %v", err)
		}
	}

	result, err := engine.BulkUpload(context.Background(), "", Options{})
	if err != nil {
		t.Fatalf("BulkUpload failed: %v", err)
	}
	if result.Total != 3 {
		t.Errorf("Total = %d, want 3 (bulk must see the current disk state)", result.Total)
	}
	if result.Succeeded != 3 {
		t.Errorf("Succeeded = %d, want 3", result.Succeeded)
	}
}

func TestBulkUpload_BoundedConcurrency(t *testing.T) {
	fake := newFakeRemote()
	fake.putDelay = 10 * time.Millisecond

	cfg := testConfig()
	cfg.BulkConcurrency = 2
	engine, store := testEngine(t, fake, cfg)

	for i := 0; i < 6; i++ {
		slug := fmt.Sprintf("el-%d", i)
		if err := store.Put(testElement(element.TypePersona, slug, slug)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	result, err := engine.BulkUpload(context.Background(), "", Options{})
	if err != nil {
		t.Fatalf("BulkUpload failed: %v", err)
	}
	if result.Succeeded != 6 {
		t.Errorf("Succeeded = %d, want 6", result.Succeeded)
	}
	if max := fake.maxInFlight.Load(); max > 2 {
		t.Errorf("max in-flight = %d, want <= 2", max)
	}
}

func TestBulkUpload_CancelledKeepsLedger(t *testing.T) {
	fake := newFakeRemote()
	engine, store := testEngine(t, fake, testConfig())

	for _, slug := range []string{"a", "b", "c"} {
		if err := store.Put(testElement(element.TypePersona, slug, slug)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := engine.BulkUpload(ctx, "", Options{})
	if err != nil {
		t.Fatalf("BulkUpload should return the ledger, not an error: %v", err)
	}
	if result.Total != 3 {
		t.Fatalf("Total = %d, want 3 (cancelled elements still get records)", result.Total)
	}
	for _, rec := range result.Records {
		if rec.State != StateFailed {
			t.Errorf("%s = %s, want failed", rec.Ref, rec.State)
		}
	}
}

func TestBulkDownload_HappyPath(t *testing.T) {
	fake := newFakeRemote()
	engine, store := testEngine(t, fake, testConfig())

	fake.seed("persona/p1.md", encodeElement(t, testElement(element.TypePersona, "P1", "p1")))
	fake.seed("persona/p2.md", encodeElement(t, testElement(element.TypePersona, "P2", "p2")))
	fake.seed("skill/s1.md", encodeElement(t, testElement(element.TypeSkill, "S1", "s1")))

	result, err := engine.BulkDownload(context.Background(), "", Options{})
	if err != nil {
		t.Fatalf("BulkDownload failed: %v", err)
	}
	if result.Total != 3 || result.Succeeded != 3 {
		t.Fatalf("result = %+v, want 3/3 succeeded", result)
	}

	if len(store.ListAll()) != 3 {
		t.Errorf("store holds %d elements, want 3", len(store.ListAll()))
	}
}

func TestListRemote(t *testing.T) {
	fake := newFakeRemote()
	engine, _ := testEngine(t, fake, testConfig())

	fake.seed("persona/p1.md", []byte("x"))
	fake.seed("skill/s1.md", []byte("y"))

	entries, err := engine.ListRemote(context.Background(), "")
	if err != nil {
		t.Fatalf("ListRemote failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("len(entries) = %d, want 2", len(entries))
	}
}

func TestListRemote_TypeFilter(t *testing.T) {
	fake := newFakeRemote()
	engine, _ := testEngine(t, fake, testConfig())

	fake.seed("persona/p1.md", []byte("x"))
	fake.seed("persona/p2.md", []byte("y"))
	fake.seed("skill/s1.md", []byte("z"))

	entries, err := engine.ListRemote(context.Background(), element.TypePersona)
	if err != nil {
		t.Fatalf("ListRemote failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2 personas", len(entries))
	}
	for _, entry := range entries {
		if entry.Type != element.TypePersona {
			t.Errorf("entry %s has type %s", entry.Path, entry.Type)
		}
	}
}

func TestBulkUpload_TypeFilter(t *testing.T) {
	fake := newFakeRemote()
	engine, store := testEngine(t, fake, testConfig())

	if err := store.Put(testElement(element.TypePersona, "P1", "p1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(testElement(element.TypePersona, "P2", "p2")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(testElement(element.TypeSkill, "S1", "s1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	result, err := engine.BulkUpload(context.Background(), element.TypePersona, Options{})
	if err != nil {
		t.Fatalf("BulkUpload failed: %v", err)
	}
	if result.Total != 2 || result.Succeeded != 2 {
		t.Fatalf("result = %+v, want 2/2 personas", result)
	}
	for _, rec := range result.Records {
		if !strings.HasPrefix(rec.Ref, "persona/") {
			t.Errorf("ledger record %s is outside the requested type", rec.Ref)
		}
	}
	if _, ok := fake.files["skill/s1.md"]; ok {
		t.Error("skill must not be uploaded when filtering to personas")
	}
}

func TestBulkDownload_TypeFilter(t *testing.T) {
	fake := newFakeRemote()
	engine, store := testEngine(t, fake, testConfig())

	fake.seed("persona/p1.md", encodeElement(t, testElement(element.TypePersona, "P1", "p1")))
	fake.seed("skill/s1.md", encodeElement(t, testElement(element.TypeSkill, "S1", "s1")))

	result, err := engine.BulkDownload(context.Background(), element.TypeSkill, Options{})
	if err != nil {
		t.Fatalf("BulkDownload failed: %v", err)
	}
	if result.Total != 1 || result.Succeeded != 1 {
		t.Fatalf("result = %+v, want just the one skill", result)
	}
	if _, err := store.Get(element.TypePersona, "p1"); !errors.Is(err, errors.ErrNotFound) {
		t.Error("persona must not be downloaded when filtering to skills")
	}
}

func TestCompareOne(t *testing.T) {
	fake := newFakeRemote()
	engine, store := testEngine(t, fake, testConfig())
	ctx := context.Background()

	if err := store.Put(testElement(element.TypePersona, "Same", "same")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := engine.Upload(ctx, element.TypePersona, "same", Options{}); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	t.Run("in sync", func(t *testing.T) {
		diff, err := engine.CompareOne(ctx, element.TypePersona, "same")
		if err != nil {
			t.Fatalf("CompareOne failed: %v", err)
		}
		if diff.Status != DiffInSync {
			t.Errorf("Status = %s, want in_sync", diff.Status)
		}
		if diff.Ref != "persona/same" || diff.RemoteSHA == "" {
			t.Errorf("diff = %+v", diff)
		}
	})

	t.Run("modified", func(t *testing.T) {
		diverged := testElement(element.TypePersona, "Same", "same")
		diverged.Content = "a very different behavior"
		fake.seed("persona/same.md", encodeElement(t, diverged))

		diff, err := engine.CompareOne(ctx, element.TypePersona, "same")
		if err != nil {
			t.Fatalf("CompareOne failed: %v", err)
		}
		if diff.Status != DiffModified {
			t.Errorf("Status = %s, want modified", diff.Status)
		}
	})

	t.Run("local only", func(t *testing.T) {
		if err := store.Put(testElement(element.TypeSkill, "Only Here", "only-here")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		diff, err := engine.CompareOne(ctx, element.TypeSkill, "only-here")
		if err != nil {
			t.Fatalf("CompareOne failed: %v", err)
		}
		if diff.Status != DiffLocalOnly || diff.RemoteSHA != "" {
			t.Errorf("diff = %+v, want local_only", diff)
		}
	})

	t.Run("remote only", func(t *testing.T) {
		fake.seed("memory/far-away.md", encodeElement(t, testElement(element.TypeMemory, "Far Away", "far-away")))
		diff, err := engine.CompareOne(ctx, element.TypeMemory, "far-away")
		if err != nil {
			t.Fatalf("CompareOne failed: %v", err)
		}
		if diff.Status != DiffRemoteOnly || diff.Ref != "memory/far-away" {
			t.Errorf("diff = %+v, want remote_only", diff)
		}
	})

	t.Run("missing on both sides", func(t *testing.T) {
		if _, err := engine.CompareOne(ctx, element.TypePersona, "ghost"); !errors.Is(err, errors.ErrNotFound) {
			t.Errorf("error = %v, want NOT_FOUND", err)
		}
	})
}
