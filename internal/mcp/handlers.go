package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/atelier/internal/collection"
	"github.com/hpungsan/atelier/internal/config"
	"github.com/hpungsan/atelier/internal/element"
	"github.com/hpungsan/atelier/internal/errors"
	"github.com/hpungsan/atelier/internal/portfolio"
	"github.com/hpungsan/atelier/internal/security"
	"github.com/hpungsan/atelier/internal/sync"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	cfg    *config.Config
	store  *portfolio.Store
	engine *sync.Engine
	cache  *collection.Cache
}

// NewHandlers creates a new Handlers instance. The cache may be nil when no
// collection repository is configured.
func NewHandlers(cfg *config.Config, store *portfolio.Store, engine *sync.Engine, cache *collection.Cache) *Handlers {
	return &Handlers{cfg: cfg, store: store, engine: engine, cache: cache}
}

// Request types for each tool

// ListRequest represents the arguments for portfolio_list.
type ListRequest struct {
	Type string `json:"type,omitempty"`
}

// GetRequest represents the arguments for portfolio_get.
type GetRequest struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// PutRequest represents the arguments for portfolio_put.
type PutRequest struct {
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	Slug        string   `json:"slug,omitempty"`
	Version     string   `json:"version,omitempty"`
	Description string   `json:"description,omitempty"`
	Author      string   `json:"author,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Triggers    []string `json:"triggers,omitempty"`
	Content     string   `json:"content"`
}

// DeleteRequest represents the arguments for portfolio_delete.
type DeleteRequest struct {
	Type string `json:"type"`
	Slug string `json:"slug"`
}

// ReloadRequest represents the arguments for portfolio_reload.
type ReloadRequest struct {
	Type string `json:"type,omitempty"`
}

// SyncElementRequest represents the arguments for sync_upload and sync_download.
type SyncElementRequest struct {
	Type   string `json:"type"`
	Slug   string `json:"slug"`
	Force  bool   `json:"force,omitempty"`
	DryRun bool   `json:"dry_run,omitempty"`
}

// BulkSyncRequest represents the arguments for the bulk sync tools.
type BulkSyncRequest struct {
	Type   string `json:"type,omitempty"`
	Force  bool   `json:"force,omitempty"`
	DryRun bool   `json:"dry_run,omitempty"`
}

// CompareRequest represents the arguments for sync_compare. With type and
// slug set the comparison covers that one element; otherwise the whole
// portfolio.
type CompareRequest struct {
	Type string `json:"type,omitempty"`
	Slug string `json:"slug,omitempty"`
}

// SearchRequest represents the arguments for collection_search.
type SearchRequest struct {
	Query string `json:"query,omitempty"`
	Type  string `json:"type,omitempty"`
}

// parseType maps a request type string to an element type.
func parseType(s string) (element.Type, error) {
	typ, ok := element.ParseType(s)
	if !ok {
		return "", errors.NewInvalidRequest("unknown element type: " + s)
	}
	return typ, nil
}

// elementSummary is the listing shape: metadata without content.
func elementSummary(el *element.Element) map[string]any {
	return map[string]any{
		"id":          el.ID,
		"type":        el.Type,
		"name":        el.Name,
		"slug":        el.Slug,
		"version":     el.Version,
		"description": el.Metadata.Description,
		"tags":        el.Metadata.Tags,
	}
}

// Handler implementations

// HandleList handles the portfolio_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	var els []*element.Element
	if input.Type == "" {
		els = h.store.ListAll()
	} else {
		typ, err := parseType(input.Type)
		if err != nil {
			return errorResult(err), nil
		}
		els = h.store.List(typ)
	}

	items := make([]map[string]any, len(els))
	for i, el := range els {
		items[i] = elementSummary(el)
	}
	return successResult(map[string]any{"items": items, "count": len(items)})
}

// HandleGet handles the portfolio_get tool call.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	typ, err := parseType(input.Type)
	if err != nil {
		return errorResult(err), nil
	}
	if input.Name == "" {
		return errorResult(errors.NewInvalidRequest("name is required")), nil
	}

	el, err := h.store.Get(typ, input.Name)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(el)
}

// HandlePut handles the portfolio_put tool call.
func (h *Handlers) HandlePut(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PutRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	typ, err := parseType(input.Type)
	if err != nil {
		return errorResult(err), nil
	}

	version := input.Version
	if version == "" {
		version = "1.0.0"
	}
	el := &element.Element{
		Type:    typ,
		Name:    input.Name,
		Slug:    input.Slug,
		Version: version,
		Metadata: element.Metadata{
			Author:      input.Author,
			Description: input.Description,
			Tags:        input.Tags,
			Triggers:    input.Triggers,
		},
		Content: input.Content,
	}

	if err := h.store.Put(el); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{
		"element": elementSummary(el),
		"path":    h.store.FilePath(el.Type, el.Slug),
	})
}

// HandleDelete handles the portfolio_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	typ, err := parseType(input.Type)
	if err != nil {
		return errorResult(err), nil
	}
	if input.Slug == "" {
		return errorResult(errors.NewInvalidRequest("slug is required")), nil
	}

	if err := h.store.Delete(typ, input.Slug); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"deleted": string(typ) + "/" + input.Slug})
}

// HandleReload handles the portfolio_reload tool call.
func (h *Handlers) HandleReload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ReloadRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	var types []element.Type
	if input.Type != "" {
		typ, err := parseType(input.Type)
		if err != nil {
			return errorResult(err), nil
		}
		types = append(types, typ)
	}

	count, err := h.store.Reload(types...)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"loaded": count})
}

// HandleValidate handles the element_validate tool call. Validation is a
// report, not a gate: security findings and rejections come back in the
// result body instead of failing the call.
func (h *Handlers) HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PutRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	typ, err := parseType(input.Type)
	if err != nil {
		return errorResult(err), nil
	}

	// Same defaults as HandlePut, so validate and put never disagree on
	// the same request.
	version := input.Version
	if version == "" {
		version = "1.0.0"
	}
	el := &element.Element{
		Type:    typ,
		Name:    input.Name,
		Slug:    input.Slug,
		Version: version,
		Metadata: element.Metadata{
			Author:      input.Author,
			Description: input.Description,
			Tags:        input.Tags,
			Triggers:    input.Triggers,
		},
		Content: input.Content,
	}
	if el.Slug == "" {
		el.Slug = element.Slugify(el.Name)
	}

	// A reporting pipeline with the flag policy, so destructive shell
	// patterns surface as findings here even when the write path rejects.
	reporter := security.New(security.Options{ExpansionLimit: h.cfg.YAMLExpansionLimit})
	findings := []security.Finding{}
	var securityErrors []string
	if screened, err := reporter.Validate(el.Content, security.Context{
		ElementRef: el.Ref(),
		Operation:  "validate",
	}); err != nil {
		securityErrors = append(securityErrors, err.Error())
	} else {
		findings = screened.Findings
		el.Content = screened.NormalizedText
	}

	result := element.Validate(el)
	valid := result.Valid && len(securityErrors) == 0

	return successResult(map[string]any{
		"valid":           valid,
		"errors":          result.Errors,
		"warnings":        result.Warnings,
		"findings":        findings,
		"security_errors": securityErrors,
	})
}

// HandleListRemote handles the sync_list_remote tool call.
func (h *Handlers) HandleListRemote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	var typ element.Type
	if input.Type != "" {
		parsed, err := parseType(input.Type)
		if err != nil {
			return errorResult(err), nil
		}
		typ = parsed
	}

	entries, err := h.engine.ListRemote(ctx, typ)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"entries": entries, "count": len(entries)})
}

// HandleUpload handles the sync_upload tool call.
func (h *Handlers) HandleUpload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.syncOne(ctx, req, h.engine.Upload)
}

// HandleDownload handles the sync_download tool call.
func (h *Handlers) HandleDownload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.syncOne(ctx, req, h.engine.Download)
}

func (h *Handlers) syncOne(
	ctx context.Context,
	req mcp.CallToolRequest,
	op func(context.Context, element.Type, string, sync.Options) (*sync.Record, error),
) (*mcp.CallToolResult, error) {
	input, err := decode[SyncElementRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	typ, err := parseType(input.Type)
	if err != nil {
		return errorResult(err), nil
	}
	if input.Slug == "" {
		return errorResult(errors.NewInvalidRequest("slug is required")), nil
	}

	rec, err := op(ctx, typ, input.Slug, sync.Options{Force: input.Force, DryRun: input.DryRun})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"record": rec})
}

// HandleCompare handles the sync_compare tool call.
func (h *Handlers) HandleCompare(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CompareRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	if input.Type != "" || input.Slug != "" {
		typ, err := parseType(input.Type)
		if err != nil {
			return errorResult(err), nil
		}
		if input.Slug == "" {
			return errorResult(errors.NewInvalidRequest("slug is required when type is set")), nil
		}
		diff, err := h.engine.CompareOne(ctx, typ, input.Slug)
		if err != nil {
			return errorResult(err), nil
		}
		return successResult(map[string]any{"diff": diff})
	}

	diffs, err := h.engine.Compare(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"diffs": diffs, "count": len(diffs)})
}

// HandleBulkUpload handles the sync_bulk_upload tool call.
func (h *Handlers) HandleBulkUpload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.syncBulk(ctx, req, h.engine.BulkUpload)
}

// HandleBulkDownload handles the sync_bulk_download tool call.
func (h *Handlers) HandleBulkDownload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.syncBulk(ctx, req, h.engine.BulkDownload)
}

func (h *Handlers) syncBulk(
	ctx context.Context,
	req mcp.CallToolRequest,
	op func(context.Context, element.Type, sync.Options) (*sync.BulkResult, error),
) (*mcp.CallToolResult, error) {
	input, err := decode[BulkSyncRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	var typ element.Type
	if input.Type != "" {
		parsed, err := parseType(input.Type)
		if err != nil {
			return errorResult(err), nil
		}
		typ = parsed
	}

	result, err := op(ctx, typ, sync.Options{Force: input.Force, DryRun: input.DryRun})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSearch handles the collection_search tool call.
func (h *Handlers) HandleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SearchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if h.cache == nil {
		return errorResult(errors.NewConfiguration("no collection repository is configured")), nil
	}

	var typ element.Type
	if input.Type != "" {
		parsed, err := parseType(input.Type)
		if err != nil {
			return errorResult(err), nil
		}
		typ = parsed
	}

	hits, err := h.cache.Search(ctx, input.Query, typ)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"entries": hits, "count": len(hits)})
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if aErr, ok := err.(*errors.AtelierError); ok {
		errorObj := map[string]any{
			"code":    aErr.Code,
			"message": aErr.Message,
			"status":  aErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths
		if aErr.Code != errors.ErrInternal && aErr.Details != nil {
			errorObj["details"] = aErr.Details
		}
		if aErr.Code == errors.ErrRemote {
			errorObj["retryable"] = aErr.Retryable
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
