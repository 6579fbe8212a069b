// Package sync implements portfolio synchronization against the remote
// repository. Every operation consults the single sync gate before touching
// the network, and every element that enters an operation leaves exactly one
// ledger record behind, whatever its fate.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	stdsync "sync"

	"github.com/hpungsan/atelier/internal/config"
	"github.com/hpungsan/atelier/internal/element"
	"github.com/hpungsan/atelier/internal/errors"
	"github.com/hpungsan/atelier/internal/portfolio"
	"github.com/hpungsan/atelier/internal/remote"
	"github.com/hpungsan/atelier/internal/security"
)

// Options controls a single sync invocation.
type Options struct {
	// Force acknowledges a mutating operation. Without it (and without the
	// skip_confirm config), uploads and downloads refuse to run.
	Force bool

	// DryRun stops every element after local validation; nothing is written
	// locally or remotely.
	DryRun bool
}

// Engine coordinates the local store and the remote client. It owns no
// element state of its own; the store is the source of truth for local
// content and the ledger carries per-operation outcomes.
type Engine struct {
	cfg      *config.Config
	store    *portfolio.Store
	pipeline *security.Pipeline
	client   remote.Client
	logger   *slog.Logger

	repoMu stdsync.Mutex
	repo   *remote.RepoRef
}

// New creates a sync engine.
func New(cfg *config.Config, store *portfolio.Store, pipeline *security.Pipeline, client remote.Client, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:      cfg,
		store:    store,
		pipeline: pipeline,
		client:   client,
		logger:   logger,
	}
}

// gate enforces the preconditions shared by every sync operation. The
// enabled check goes through the one config accessor so read-only compare
// and mutating upload can never disagree about whether sync is on.
func (e *Engine) gate() error {
	if !e.cfg.SyncIsEnabled() {
		return errors.NewConfiguration("sync is disabled; set sync_enabled in config")
	}
	if !e.cfg.RemoteConfigured() {
		return errors.NewConfiguration("remote repository is not configured; set remote_owner and remote_repo")
	}
	return nil
}

// confirm enforces the explicit-acknowledgement requirement for mutating
// operations.
func (e *Engine) confirm(opts Options) error {
	if opts.Force || opts.DryRun || e.cfg.SkipConfirm {
		return nil
	}
	return errors.NewInvalidRequest("this operation modifies data; pass force to confirm, or set skip_confirm in config")
}

// repoRef resolves the remote repository once and caches it for the life of
// the engine.
func (e *Engine) repoRef(ctx context.Context) (remote.RepoRef, error) {
	e.repoMu.Lock()
	defer e.repoMu.Unlock()

	if e.repo != nil {
		return *e.repo, nil
	}
	repo, err := e.client.EnsureRepository(ctx, remote.RepoSpec{
		Owner:   e.cfg.RemoteOwner,
		Name:    e.cfg.RemoteRepo,
		Private: true,
	})
	if err != nil {
		return remote.RepoRef{}, err
	}
	e.repo = repo
	return *repo, nil
}

// ListRemote enumerates element files in the remote repository. An empty typ
// covers every type; otherwise the listing is filtered client-side so the
// result is deterministic regardless of what the backend returns.
func (e *Engine) ListRemote(ctx context.Context, typ element.Type) ([]remote.TreeEntry, error) {
	if err := e.gate(); err != nil {
		return nil, err
	}
	repo, err := e.repoRef(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := e.client.ListTree(ctx, repo, "")
	if err != nil {
		return nil, err
	}
	entries = filterEntries(entries, typ)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// filterEntries keeps only entries of the given type; empty typ keeps all.
func filterEntries(entries []remote.TreeEntry, typ element.Type) []remote.TreeEntry {
	if typ == "" {
		return entries
	}
	filtered := entries[:0]
	for _, entry := range entries {
		if entry.Type == typ {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// Upload pushes one local element to the remote. The returned record is
// non-nil whenever the element was resolved; err mirrors the record's
// terminal error for rejected and failed states.
func (e *Engine) Upload(ctx context.Context, typ element.Type, slug string, opts Options) (*Record, error) {
	if err := e.gate(); err != nil {
		return nil, err
	}
	if err := e.confirm(opts); err != nil {
		return nil, err
	}

	el, err := e.store.Get(typ, slug)
	if err != nil {
		return nil, err
	}
	repo, err := e.repoRef(ctx)
	if err != nil {
		return nil, err
	}

	rec := e.uploadElement(ctx, repo, el, opts)
	return &rec, rec.Err
}

// uploadElement runs one element through the upload state machine.
func (e *Engine) uploadElement(ctx context.Context, repo remote.RepoRef, el *element.Element, opts Options) Record {
	rec := Record{Ref: el.Ref(), State: StatePending}

	if err := ctx.Err(); err != nil {
		rec.State = StateFailed
		rec.Detail = "cancelled before start"
		rec.Err = errors.NewRemote(fmt.Sprintf("upload %s: %v", el.Ref(), err), true)
		return rec
	}

	rec.State = StateValidating
	if e.pipeline != nil {
		if _, err := e.pipeline.Validate(el.Content, security.Context{
			ElementRef: el.Ref(),
			Operation:  "upload",
		}); err != nil {
			rec.State = StateRejected
			rec.Detail = err.Error()
			rec.Err = err
			return rec
		}
	}
	if result := element.Validate(el); !result.Valid {
		err := errors.NewValidationFailed(el.Ref(), result.ErrorMessages())
		rec.State = StateRejected
		rec.Detail = err.Error()
		rec.Err = err
		return rec
	}

	if opts.DryRun {
		rec.State = StateSkipped
		rec.Detail = "dry run"
		return rec
	}

	rec.State = StateInFlight
	data, err := portfolio.EncodeFile(el)
	if err != nil {
		rec.State = StateFailed
		rec.Err = errors.NewInternal(err)
		rec.Detail = rec.Err.Error()
		return rec
	}

	commit, err := e.client.PutFile(ctx, repo, el.RemotePath(), data,
		fmt.Sprintf("Sync %s", el.Ref()))
	if err != nil {
		rec.State = StateFailed
		rec.Detail = err.Error()
		rec.Err = err
		return rec
	}

	// The store mediates the write; bulk goroutines must not mutate an
	// element that readers can reach through the index.
	e.store.SetRemoteRef(el.Type, el.Slug, commit.BlobSHA)
	rec.State = StateSucceeded
	rec.CommitSHA = commit.CommitSHA
	return rec
}

// Download fetches one remote element and persists it through the store, so
// downloaded content passes the same security and validation gates as local
// writes.
func (e *Engine) Download(ctx context.Context, typ element.Type, slug string, opts Options) (*Record, error) {
	if err := e.gate(); err != nil {
		return nil, err
	}
	if err := e.confirm(opts); err != nil {
		return nil, err
	}
	repo, err := e.repoRef(ctx)
	if err != nil {
		return nil, err
	}

	rec := e.downloadPath(ctx, repo, typ, slug, opts)
	return &rec, rec.Err
}

// downloadPath runs one remote path through the download state machine.
func (e *Engine) downloadPath(ctx context.Context, repo remote.RepoRef, typ element.Type, slug string, opts Options) Record {
	ref := fmt.Sprintf("%s/%s", typ, slug)
	rec := Record{Ref: ref, State: StatePending}

	if err := ctx.Err(); err != nil {
		rec.State = StateFailed
		rec.Detail = "cancelled before start"
		rec.Err = errors.NewRemote(fmt.Sprintf("download %s: %v", ref, err), true)
		return rec
	}

	blob, err := e.client.GetBlob(ctx, repo, fmt.Sprintf("%s/%s.md", typ, slug))
	if err != nil {
		rec.State = StateFailed
		rec.Detail = err.Error()
		rec.Err = err
		return rec
	}

	rec.State = StateValidating
	el, err := portfolio.DecodeFile(blob.Content)
	if err != nil {
		rejErr := errors.NewValidationFailed(ref, []string{fmt.Sprintf("unparseable remote file: %v", err)})
		rec.State = StateRejected
		rec.Detail = rejErr.Error()
		rec.Err = rejErr
		return rec
	}

	// The remote path is authoritative for identity, as with local files.
	el.Type = typ
	el.Slug = slug
	el.RemoteRef = blob.SHA

	if opts.DryRun {
		if result := element.Validate(el); !result.Valid {
			err := errors.NewValidationFailed(ref, result.ErrorMessages())
			rec.State = StateRejected
			rec.Detail = err.Error()
			rec.Err = err
			return rec
		}
		rec.State = StateSkipped
		rec.Detail = "dry run"
		return rec
	}

	rec.State = StateInFlight
	if err := e.store.Put(el); err != nil {
		if errors.Is(err, errors.ErrValidationFailed) || errors.Is(err, errors.ErrSecurityRejected) {
			rec.State = StateRejected
		} else {
			rec.State = StateFailed
		}
		rec.Detail = err.Error()
		rec.Err = err
		return rec
	}

	rec.State = StateSucceeded
	return rec
}

// DiffStatus classifies one ref in a compare result.
type DiffStatus string

const (
	DiffInSync     DiffStatus = "in_sync"
	DiffModified   DiffStatus = "modified"
	DiffLocalOnly  DiffStatus = "local_only"
	DiffRemoteOnly DiffStatus = "remote_only"
)

// Diff is one ref's local-versus-remote standing.
type Diff struct {
	Ref           string     `json:"ref"`
	Status        DiffStatus `json:"status"`
	LocalRevision string     `json:"local_revision,omitempty"`
	RemoteSHA     string     `json:"remote_sha,omitempty"`
}

// Compare reports the standing of every local and remote element. The local
// view is reloaded first so the comparison reflects the disk, not a stale
// index. Results are sorted by ref.
func (e *Engine) Compare(ctx context.Context) ([]Diff, error) {
	if err := e.gate(); err != nil {
		return nil, err
	}
	if _, err := e.store.Reload(); err != nil {
		return nil, err
	}
	repo, err := e.repoRef(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := e.client.ListTree(ctx, repo, "")
	if err != nil {
		return nil, err
	}

	remoteByRef := make(map[string]remote.TreeEntry, len(entries))
	for _, entry := range entries {
		remoteByRef[fmt.Sprintf("%s/%s", entry.Type, entry.Slug)] = entry
	}

	var diffs []Diff
	for _, el := range e.store.ListAll() {
		entry, onRemote := remoteByRef[el.Ref()]
		if !onRemote {
			diffs = append(diffs, Diff{Ref: el.Ref(), Status: DiffLocalOnly, LocalRevision: el.LocalRevision})
			continue
		}
		delete(remoteByRef, el.Ref())

		blob, err := e.client.GetBlob(ctx, repo, entry.Path)
		if err != nil {
			return nil, err
		}
		status := DiffModified
		if element.ContentHash(blob.Content) == el.LocalRevision {
			status = DiffInSync
		}
		diffs = append(diffs, Diff{
			Ref:           el.Ref(),
			Status:        status,
			LocalRevision: el.LocalRevision,
			RemoteSHA:     entry.SHA,
		})
	}

	for ref, entry := range remoteByRef {
		diffs = append(diffs, Diff{Ref: ref, Status: DiffRemoteOnly, RemoteSHA: entry.SHA})
	}

	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Ref < diffs[j].Ref })
	return diffs, nil
}

// CompareOne reports the local-versus-remote standing of a single element.
// The element may exist on either side alone; only both sides missing is an
// error.
func (e *Engine) CompareOne(ctx context.Context, typ element.Type, slug string) (*Diff, error) {
	if err := e.gate(); err != nil {
		return nil, err
	}
	repo, err := e.repoRef(ctx)
	if err != nil {
		return nil, err
	}

	el, err := e.store.Get(typ, slug)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}
	ref := fmt.Sprintf("%s/%s", typ, slug)

	blob, blobErr := e.client.GetBlob(ctx, repo, fmt.Sprintf("%s/%s.md", typ, slug))
	if blobErr != nil && !errors.Is(blobErr, errors.ErrNotFound) {
		return nil, blobErr
	}

	switch {
	case el == nil && blob == nil:
		return nil, errors.NewNotFound(ref)
	case blob == nil:
		return &Diff{Ref: el.Ref(), Status: DiffLocalOnly, LocalRevision: el.LocalRevision}, nil
	case el == nil:
		return &Diff{Ref: ref, Status: DiffRemoteOnly, RemoteSHA: blob.SHA}, nil
	}

	status := DiffModified
	if element.ContentHash(blob.Content) == el.LocalRevision {
		status = DiffInSync
	}
	return &Diff{
		Ref:           el.Ref(),
		Status:        status,
		LocalRevision: el.LocalRevision,
		RemoteSHA:     blob.SHA,
	}, nil
}

// BulkUpload pushes local elements, all of them or one type. The store is
// reloaded first so the operation covers what is on disk right now, not what
// some earlier load saw. Individual element failures land in the ledger, not
// in the returned error.
func (e *Engine) BulkUpload(ctx context.Context, typ element.Type, opts Options) (*BulkResult, error) {
	if err := e.gate(); err != nil {
		return nil, err
	}
	if err := e.confirm(opts); err != nil {
		return nil, err
	}
	if _, err := e.store.Reload(); err != nil {
		return nil, err
	}
	repo, err := e.repoRef(ctx)
	if err != nil {
		return nil, err
	}

	els := e.store.ListAll()
	if typ != "" {
		els = e.store.List(typ)
	}
	records := make([]Record, len(els))

	sem := make(chan struct{}, e.cfg.EffectiveBulkConcurrency())
	var wg stdsync.WaitGroup
	for i, el := range els {
		wg.Add(1)
		go func(i int, el *element.Element) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			records[i] = e.uploadElement(ctx, repo, el, opts)
		}(i, el)
	}
	wg.Wait()

	result := summarize(records)
	e.logger.Info("bulk upload finished",
		slog.Int("total", result.Total),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("rejected", result.Rejected),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

// BulkDownload fetches remote elements, all of them or one type, through the
// store's gates. As with BulkUpload, per-element outcomes live in the ledger;
// the returned error covers only setup failures.
func (e *Engine) BulkDownload(ctx context.Context, typ element.Type, opts Options) (*BulkResult, error) {
	if err := e.gate(); err != nil {
		return nil, err
	}
	if err := e.confirm(opts); err != nil {
		return nil, err
	}
	if _, err := e.store.Reload(); err != nil {
		return nil, err
	}
	repo, err := e.repoRef(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := e.client.ListTree(ctx, repo, "")
	if err != nil {
		return nil, err
	}
	entries = filterEntries(entries, typ)

	records := make([]Record, len(entries))

	sem := make(chan struct{}, e.cfg.EffectiveBulkConcurrency())
	var wg stdsync.WaitGroup
	for i, entry := range entries {
		wg.Add(1)
		go func(i int, entry remote.TreeEntry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			records[i] = e.downloadPath(ctx, repo, entry.Type, entry.Slug, opts)
		}(i, entry)
	}
	wg.Wait()

	result := summarize(records)
	e.logger.Info("bulk download finished",
		slog.Int("total", result.Total),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("rejected", result.Rejected),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

