package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/atelier/internal/collection"
	"github.com/hpungsan/atelier/internal/config"
	"github.com/hpungsan/atelier/internal/element"
	"github.com/hpungsan/atelier/internal/errors"
	"github.com/hpungsan/atelier/internal/portfolio"
	"github.com/hpungsan/atelier/internal/remote"
	"github.com/hpungsan/atelier/internal/security"
	"github.com/hpungsan/atelier/internal/sync"
)

// fakeRemote is an in-memory remote.Client for handler tests.
type fakeRemote struct {
	mu    stdsync.Mutex
	files map[string][]byte
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{files: map[string][]byte{}}
}

func (f *fakeRemote) seed(path, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = []byte(content)
}

func (f *fakeRemote) EnsureRepository(_ context.Context, spec remote.RepoSpec) (*remote.RepoRef, error) {
	return &remote.RepoRef{Owner: spec.Owner, Name: spec.Name, DefaultBranch: "main"}, nil
}

func (f *fakeRemote) ListTree(_ context.Context, _ remote.RepoRef, _ string) ([]remote.TreeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var entries []remote.TreeEntry
	for p, content := range f.files {
		typ, slug, ok := splitRemotePath(p)
		if !ok {
			continue
		}
		entries = append(entries, remote.TreeEntry{
			Path: p,
			Type: typ,
			Slug: slug,
			SHA:  element.ContentHash(content),
			Size: len(content),
		})
	}
	return entries, nil
}

func (f *fakeRemote) GetBlob(_ context.Context, _ remote.RepoRef, path string) (*remote.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[path]
	if !ok {
		return nil, errors.NewNotFound("remote path " + path)
	}
	return &remote.Blob{Path: path, Content: content, SHA: element.ContentHash(content)}, nil
}

func (f *fakeRemote) PutFile(_ context.Context, _ remote.RepoRef, path string, content []byte, _ string) (*remote.CommitRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = content
	sha := element.ContentHash(content)
	return &remote.CommitRef{CommitSHA: "commit-" + sha[:8], BlobSHA: sha}, nil
}

func splitRemotePath(p string) (element.Type, string, bool) {
	for _, typ := range element.AllTypes {
		prefix := string(typ) + "/"
		if len(p) > len(prefix)+3 && p[:len(prefix)] == prefix && p[len(p)-3:] == ".md" {
			return typ, p[len(prefix) : len(p)-3], true
		}
	}
	return "", "", false
}

// testSetup builds handlers over a temp portfolio, a fake remote, and a
// collection cache seeded through the same fake.
func testSetup(t *testing.T) (*Handlers, *fakeRemote) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.SyncEnabled = true
	cfg.SkipConfirm = true
	cfg.RemoteOwner = "alice"
	cfg.RemoteRepo = "portfolio"

	pipeline := security.New(security.Options{})
	store := portfolio.New(t.TempDir(), "alice", pipeline, nil)
	fake := newFakeRemote()
	engine := sync.New(cfg, store, pipeline, fake, nil)
	repo := remote.RepoRef{Owner: "community", Name: "collection", DefaultBranch: "main"}
	cache := collection.New(fake, repo, "", time.Hour, nil)

	return NewHandlers(cfg, store, engine, cache), fake
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func validPutArgs(name string) map[string]any {
	return map[string]any{
		"type":        "persona",
		"name":        name,
		"description": "a test persona",
		"tags":        []any{"test"},
		"content":     "Behave like a " + name + ".",
	}
}

// TestHandlePut tests the put handler.
func TestHandlePut(t *testing.T) {
	h, _ := testSetup(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		errorCode string
	}{
		{
			name:      "put valid persona",
			args:      validPutArgs("Code Reviewer"),
			wantError: false,
		},
		{
			name: "put with unknown type",
			args: map[string]any{
				"type":    "wizard",
				"name":    "X",
				"content": "y",
			},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name: "put with bad version",
			args: map[string]any{
				"type":        "persona",
				"name":        "Broken",
				"version":     "not-a-version",
				"description": "broken",
				"content":     "x",
			},
			wantError: true,
			errorCode: "VALIDATION_FAILED",
		},
		{
			name: "put agent without triggers",
			args: map[string]any{
				"type":        "agent",
				"name":        "Runner",
				"description": "runs things",
				"content":     "run",
			},
			wantError: true,
			errorCode: "VALIDATION_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandlePut(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}

			if tt.wantError {
				if !result.IsError {
					t.Errorf("expected error result, got success")
				}
				if tt.errorCode != "" {
					assertErrorCode(t, result, tt.errorCode)
				}
			} else if result.IsError {
				t.Errorf("expected success, got error: %v", extractErrorMessage(result))
			}
		})
	}
}

// TestHandleGet tests the get handler.
func TestHandleGet(t *testing.T) {
	h, _ := testSetup(t)
	ctx := context.Background()

	if result, _ := h.HandlePut(ctx, makeRequest(validPutArgs("Code Reviewer"))); result.IsError {
		t.Fatalf("setup put failed: %v", extractErrorMessage(result))
	}

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		errorCode string
	}{
		{
			name:      "get by slug",
			args:      map[string]any{"type": "persona", "name": "code-reviewer"},
			wantError: false,
		},
		{
			name:      "get by display name",
			args:      map[string]any{"type": "persona", "name": "Code Reviewer"},
			wantError: false,
		},
		{
			name:      "get non-existent",
			args:      map[string]any{"type": "persona", "name": "ghost"},
			wantError: true,
			errorCode: "NOT_FOUND",
		},
		{
			name:      "get without name",
			args:      map[string]any{"type": "persona"},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleGet(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}

			if tt.wantError {
				if !result.IsError {
					t.Errorf("expected error result, got success")
				}
				if tt.errorCode != "" {
					assertErrorCode(t, result, tt.errorCode)
				}
			} else if result.IsError {
				t.Errorf("expected success, got error: %v", extractErrorMessage(result))
			}
		})
	}
}

// TestHandleList tests the list handler contract: summaries only, no content.
func TestHandleList(t *testing.T) {
	h, _ := testSetup(t)
	ctx := context.Background()

	for _, name := range []string{"One", "Two"} {
		if result, _ := h.HandlePut(ctx, makeRequest(validPutArgs(name))); result.IsError {
			t.Fatalf("setup put failed: %v", extractErrorMessage(result))
		}
	}
	skillArgs := validPutArgs("Skillful")
	skillArgs["type"] = "skill"
	if result, _ := h.HandlePut(ctx, makeRequest(skillArgs)); result.IsError {
		t.Fatalf("setup put failed: %v", extractErrorMessage(result))
	}

	t.Run("all types", func(t *testing.T) {
		output := parseOutput(t, mustHandle(t, h.HandleList, ctx, map[string]any{}))
		if int(output["count"].(float64)) != 3 {
			t.Errorf("count = %v, want 3", output["count"])
		}
	})

	t.Run("type filter", func(t *testing.T) {
		output := parseOutput(t, mustHandle(t, h.HandleList, ctx, map[string]any{"type": "skill"}))
		items := output["items"].([]any)
		if len(items) != 1 {
			t.Errorf("got %d items, want 1", len(items))
		}
	})

	t.Run("list never returns content", func(t *testing.T) {
		output := parseOutput(t, mustHandle(t, h.HandleList, ctx, map[string]any{}))
		for i, item := range output["items"].([]any) {
			m := item.(map[string]any)
			if m["content"] != nil {
				t.Errorf("item[%d] has content, list should never include it", i)
			}
		}
	})
}

// TestHandleDelete tests the delete handler.
func TestHandleDelete(t *testing.T) {
	h, _ := testSetup(t)
	ctx := context.Background()

	if result, _ := h.HandlePut(ctx, makeRequest(validPutArgs("Doomed"))); result.IsError {
		t.Fatalf("setup put failed: %v", extractErrorMessage(result))
	}

	result, err := h.HandleDelete(ctx, makeRequest(map[string]any{"type": "persona", "slug": "doomed"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("delete failed: %v", extractErrorMessage(result))
	}

	result, _ = h.HandleDelete(ctx, makeRequest(map[string]any{"type": "persona", "slug": "doomed"}))
	if !result.IsError {
		t.Fatal("second delete should fail")
	}
	assertErrorCode(t, result, "NOT_FOUND")
}

// TestHandleValidate tests that validation reports without gating.
func TestHandleValidate(t *testing.T) {
	h, _ := testSetup(t)
	ctx := context.Background()

	t.Run("valid element", func(t *testing.T) {
		output := parseOutput(t, mustHandle(t, h.HandleValidate, ctx, validPutArgs("Fine")))
		if output["valid"] != true {
			t.Errorf("valid = %v, want true", output["valid"])
		}
	})

	t.Run("validate and put agree when version is omitted", func(t *testing.T) {
		args := validPutArgs("Agreeable")
		delete(args, "version")

		output := parseOutput(t, mustHandle(t, h.HandleValidate, ctx, args))
		if output["valid"] != true {
			t.Fatalf("valid = %v, want true", output["valid"])
		}
		if result, _ := h.HandlePut(ctx, makeRequest(args)); result.IsError {
			t.Errorf("put of a validate-approved request failed: %v", extractErrorMessage(result))
		}
	})

	t.Run("bad version reported not gated", func(t *testing.T) {
		args := validPutArgs("Broken")
		args["version"] = "1.2.3.4"
		output := parseOutput(t, mustHandle(t, h.HandleValidate, ctx, args))
		if output["valid"] != false {
			t.Errorf("valid = %v, want false", output["valid"])
		}
		if len(output["errors"].([]any)) == 0 {
			t.Error("expected validation errors")
		}
	})

	t.Run("destructive shell surfaces as finding", func(t *testing.T) {
		args := validPutArgs("Spicy")
		args["content"] = "then run `sudo rm -rf /var/data` to clean up"
		output := parseOutput(t, mustHandle(t, h.HandleValidate, ctx, args))
		findings := output["findings"].([]any)
		if len(findings) == 0 {
			t.Fatal("expected a shell finding")
		}
		found := false
		for _, f := range findings {
			if f.(map[string]any)["code"] == "SHELL_INJECTION" {
				found = true
			}
		}
		if !found {
			t.Errorf("findings = %v, want SHELL_INJECTION", findings)
		}
	})
}

// TestHandleUpload tests the upload handler against the fake remote.
func TestHandleUpload(t *testing.T) {
	h, fake := testSetup(t)
	ctx := context.Background()

	if result, _ := h.HandlePut(ctx, makeRequest(validPutArgs("Shipped"))); result.IsError {
		t.Fatalf("setup put failed: %v", extractErrorMessage(result))
	}

	output := parseOutput(t, mustHandle(t, h.HandleUpload, ctx, map[string]any{
		"type": "persona",
		"slug": "shipped",
	}))
	record := output["record"].(map[string]any)
	if record["state"] != "succeeded" {
		t.Errorf("state = %v, want succeeded", record["state"])
	}
	if _, ok := fake.files["persona/shipped.md"]; !ok {
		t.Error("uploaded file missing from remote")
	}
}

// TestHandleUpload_SyncDisabled verifies the gate error shape.
func TestHandleUpload_SyncDisabled(t *testing.T) {
	h, _ := testSetup(t)
	h.cfg.SyncEnabled = false
	ctx := context.Background()

	result, err := h.HandleUpload(ctx, makeRequest(map[string]any{"type": "persona", "slug": "x"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	assertErrorCode(t, result, "CONFIGURATION")
}

// TestHandleBulkUpload tests that the bulk ledger comes back intact.
func TestHandleBulkUpload(t *testing.T) {
	h, _ := testSetup(t)
	ctx := context.Background()

	for _, name := range []string{"A", "B", "C"} {
		if result, _ := h.HandlePut(ctx, makeRequest(validPutArgs(name))); result.IsError {
			t.Fatalf("setup put failed: %v", extractErrorMessage(result))
		}
	}

	output := parseOutput(t, mustHandle(t, h.HandleBulkUpload, ctx, map[string]any{}))
	if int(output["total"].(float64)) != 3 {
		t.Errorf("total = %v, want 3", output["total"])
	}
	if len(output["records"].([]any)) != 3 {
		t.Errorf("records = %d, want 3", len(output["records"].([]any)))
	}
}

// TestHandleBulkUpload_TypeFilter tests that the type argument narrows the run.
func TestHandleBulkUpload_TypeFilter(t *testing.T) {
	h, fake := testSetup(t)
	ctx := context.Background()

	if result, _ := h.HandlePut(ctx, makeRequest(validPutArgs("A"))); result.IsError {
		t.Fatalf("setup put failed: %v", extractErrorMessage(result))
	}
	skillArgs := validPutArgs("Skillful")
	skillArgs["type"] = "skill"
	if result, _ := h.HandlePut(ctx, makeRequest(skillArgs)); result.IsError {
		t.Fatalf("setup put failed: %v", extractErrorMessage(result))
	}

	output := parseOutput(t, mustHandle(t, h.HandleBulkUpload, ctx, map[string]any{"type": "skill"}))
	if int(output["total"].(float64)) != 1 {
		t.Errorf("total = %v, want 1", output["total"])
	}
	if _, ok := fake.files["persona/a.md"]; ok {
		t.Error("persona must not be uploaded when filtering to skills")
	}
}

// TestHandleCompare tests both comparison shapes.
func TestHandleCompare(t *testing.T) {
	h, _ := testSetup(t)
	ctx := context.Background()

	if result, _ := h.HandlePut(ctx, makeRequest(validPutArgs("Tracked"))); result.IsError {
		t.Fatalf("setup put failed: %v", extractErrorMessage(result))
	}
	if result, _ := h.HandleUpload(ctx, makeRequest(map[string]any{"type": "persona", "slug": "tracked"})); result.IsError {
		t.Fatalf("setup upload failed: %v", extractErrorMessage(result))
	}

	t.Run("whole portfolio", func(t *testing.T) {
		output := parseOutput(t, mustHandle(t, h.HandleCompare, ctx, map[string]any{}))
		if int(output["count"].(float64)) != 1 {
			t.Errorf("count = %v, want 1", output["count"])
		}
	})

	t.Run("single element", func(t *testing.T) {
		output := parseOutput(t, mustHandle(t, h.HandleCompare, ctx, map[string]any{
			"type": "persona",
			"slug": "tracked",
		}))
		diff := output["diff"].(map[string]any)
		if diff["status"] != "in_sync" {
			t.Errorf("status = %v, want in_sync", diff["status"])
		}
		if diff["ref"] != "persona/tracked" {
			t.Errorf("ref = %v", diff["ref"])
		}
	})

	t.Run("type without slug", func(t *testing.T) {
		result, err := h.HandleCompare(ctx, makeRequest(map[string]any{"type": "persona"}))
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		if !result.IsError {
			t.Fatal("expected error result")
		}
		assertErrorCode(t, result, "INVALID_REQUEST")
	})
}

// TestHandleSearch tests the collection search handler.
func TestHandleSearch(t *testing.T) {
	h, fake := testSetup(t)
	ctx := context.Background()

	fake.seed("index.md", "## Personas\n\n- [Code Reviewer](persona/code-reviewer.md) - reviews pull requests\n")

	output := parseOutput(t, mustHandle(t, h.HandleSearch, ctx, map[string]any{"query": "reviewer"}))
	if int(output["count"].(float64)) != 1 {
		t.Errorf("count = %v, want 1", output["count"])
	}
}

// TestHandleSearch_NoCollection verifies the unconfigured-cache error.
func TestHandleSearch_NoCollection(t *testing.T) {
	h, _ := testSetup(t)
	h.cache = nil

	result, err := h.HandleSearch(context.Background(), makeRequest(map[string]any{"query": "x"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	assertErrorCode(t, result, "CONFIGURATION")
}

func TestServerRegistration(t *testing.T) {
	h, _ := testSetup(t)

	s := NewServer(h.cfg, h.store, h.engine, h.cache, "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{
		"portfolio_list",
		"portfolio_get",
		"portfolio_put",
		"portfolio_delete",
		"portfolio_reload",
		"element_validate",
		"sync_list_remote",
		"sync_upload",
		"sync_download",
		"sync_compare",
		"sync_bulk_upload",
		"sync_bulk_download",
		"collection_search",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}
	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	h, _ := testSetup(t)
	h.cfg.DisabledTools = []string{"portfolio_delete", "sync_bulk_upload"}

	s := NewServer(h.cfg, h.store, h.engine, h.cache, "test")
	tools := s.ListTools()

	if len(tools) != 11 {
		t.Errorf("registered tool count = %d, want 11", len(tools))
	}
	for _, name := range h.cfg.DisabledTools {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
	for _, name := range []string{"portfolio_get", "portfolio_put", "sync_upload"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("core tool %q should be registered", name)
		}
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{
			name:    "all valid",
			input:   []string{"portfolio_delete", "sync_bulk_upload"},
			wantLen: 0,
		},
		{
			name:    "one unknown",
			input:   []string{"portfolio_delete", "fake_tool"},
			wantLen: 1,
		},
		{
			name:    "empty list",
			input:   []string{},
			wantLen: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unknown := ValidateDisabledTools(tt.input)
			if len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	if len(names) != 13 {
		t.Errorf("AllToolNames() returned %d names, want 13", len(names))
	}
	if unknown := ValidateDisabledTools(names); len(unknown) != 0 {
		t.Errorf("AllToolNames() returned invalid names: %v", unknown)
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("open /tmp/secret/config.json: permission denied")))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj := payload["error"].(map[string]any)

	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_NonInternalIncludesDetails(t *testing.T) {
	r := errorResult(errors.NewNotFound("persona/ghost"))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj := payload["error"].(map[string]any)

	if errObj["code"] != string(errors.ErrNotFound) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}
	if _, ok := errObj["details"]; !ok {
		t.Fatal("expected non-INTERNAL errors to include details when present")
	}
}

// Helper functions

func mustHandle(t *testing.T, handler ToolHandlerFunc, ctx context.Context, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	result, err := handler(ctx, makeRequest(args))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return result
}

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if len(result.Content) == 0 {
		t.Errorf("no content in error result")
		return
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Errorf("content is not TextContent")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Errorf("failed to unmarshal error payload: %v", err)
		return
	}

	errorObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Errorf("no error object in payload")
		return
	}

	code, ok := errorObj["code"].(string)
	if !ok {
		t.Errorf("no code in error object")
		return
	}

	if code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}

	return text.Text
}
