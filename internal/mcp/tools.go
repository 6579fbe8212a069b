package mcp

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions. Parameter names mirror the JSON request structs in
// handlers.go exactly.

var listToolDef = mcp.NewTool("portfolio_list",
	mcp.WithDescription("List portfolio elements, optionally filtered to one type. Never returns element content."),
	mcp.WithString("type", mcp.Description("Element type filter: persona, skill, template, agent, memory, or ensemble. Omit for all types.")),
)

var getToolDef = mcp.NewTool("portfolio_get",
	mcp.WithDescription("Fetch one element by slug or display name, including its content."),
	mcp.WithString("type", mcp.Required(), mcp.Description("Element type.")),
	mcp.WithString("name", mcp.Required(), mcp.Description("Slug or display name. Ambiguous display names fail with the candidate slugs.")),
)

var putToolDef = mcp.NewTool("portfolio_put",
	mcp.WithDescription("Create or replace an element. Content is screened by the security pipeline and the element is validated before anything is written."),
	mcp.WithString("type", mcp.Required(), mcp.Description("Element type.")),
	mcp.WithString("name", mcp.Required(), mcp.Description("Display name.")),
	mcp.WithString("content", mcp.Required(), mcp.Description("Behavioral body text.")),
	mcp.WithString("slug", mcp.Description("Identity slug; derived from the name when omitted.")),
	mcp.WithString("version", mcp.Description("Semver version; two-component versions are normalized to X.Y.0. Defaults to 1.0.0.")),
	mcp.WithString("description", mcp.Description("One-line description.")),
	mcp.WithString("author", mcp.Description("Author handle.")),
	mcp.WithArray("tags", mcp.Description("Free-form tags."), mcp.Items(map[string]any{"type": "string"})),
	mcp.WithArray("triggers", mcp.Description("Activation triggers; required for agents."), mcp.Items(map[string]any{"type": "string"})),
)

var deleteToolDef = mcp.NewTool("portfolio_delete",
	mcp.WithDescription("Delete an element from the local portfolio."),
	mcp.WithString("type", mcp.Required(), mcp.Description("Element type.")),
	mcp.WithString("slug", mcp.Required(), mcp.Description("Exact slug of the element to delete.")),
)

var reloadToolDef = mcp.NewTool("portfolio_reload",
	mcp.WithDescription("Rescan the portfolio directory and rebuild the in-memory index."),
	mcp.WithString("type", mcp.Description("Limit the rescan to one element type.")),
)

var validateToolDef = mcp.NewTool("element_validate",
	mcp.WithDescription("Validate element fields and screen content without writing anything. Reports validation errors, warnings, and security findings."),
	mcp.WithString("type", mcp.Required(), mcp.Description("Element type.")),
	mcp.WithString("name", mcp.Required(), mcp.Description("Display name.")),
	mcp.WithString("content", mcp.Required(), mcp.Description("Behavioral body text.")),
	mcp.WithString("slug", mcp.Description("Identity slug; derived from the name when omitted.")),
	mcp.WithString("version", mcp.Description("Semver version.")),
	mcp.WithString("description", mcp.Description("One-line description.")),
	mcp.WithArray("tags", mcp.Description("Free-form tags."), mcp.Items(map[string]any{"type": "string"})),
	mcp.WithArray("triggers", mcp.Description("Activation triggers."), mcp.Items(map[string]any{"type": "string"})),
)

var listRemoteToolDef = mcp.NewTool("sync_list_remote",
	mcp.WithDescription("List element files in the remote portfolio repository, optionally filtered to one type."),
	mcp.WithString("type", mcp.Description("Element type filter. Omit for all types.")),
)

var uploadToolDef = mcp.NewTool("sync_upload",
	mcp.WithDescription("Upload one local element to the remote repository. The element is re-validated and re-screened first."),
	mcp.WithString("type", mcp.Required(), mcp.Description("Element type.")),
	mcp.WithString("slug", mcp.Required(), mcp.Description("Slug of the element to upload.")),
	mcp.WithBoolean("force", mcp.Description("Confirm the mutating operation.")),
	mcp.WithBoolean("dry_run", mcp.Description("Validate only; write nothing.")),
)

var downloadToolDef = mcp.NewTool("sync_download",
	mcp.WithDescription("Download one element from the remote repository through the local validation and security gates."),
	mcp.WithString("type", mcp.Required(), mcp.Description("Element type.")),
	mcp.WithString("slug", mcp.Required(), mcp.Description("Slug of the element to download.")),
	mcp.WithBoolean("force", mcp.Description("Confirm the mutating operation.")),
	mcp.WithBoolean("dry_run", mcp.Description("Validate only; write nothing.")),
)

var compareToolDef = mcp.NewTool("sync_compare",
	mcp.WithDescription("Compare local elements against the remote repository: in_sync, modified, local_only, or remote_only per ref. With type and slug set, compares that one element."),
	mcp.WithString("type", mcp.Description("Element type; pair with slug for a single-element comparison.")),
	mcp.WithString("slug", mcp.Description("Slug of the one element to compare.")),
)

var bulkUploadToolDef = mcp.NewTool("sync_bulk_upload",
	mcp.WithDescription("Upload local elements, all of them or one type. Returns one ledger record per element; individual failures do not stop the rest."),
	mcp.WithString("type", mcp.Description("Element type filter. Omit for all types.")),
	mcp.WithBoolean("force", mcp.Description("Confirm the mutating operation.")),
	mcp.WithBoolean("dry_run", mcp.Description("Validate every element; write nothing.")),
)

var bulkDownloadToolDef = mcp.NewTool("sync_bulk_download",
	mcp.WithDescription("Download remote elements, all of them or one type, through the local gates. Returns one ledger record per remote file."),
	mcp.WithString("type", mcp.Description("Element type filter. Omit for all types.")),
	mcp.WithBoolean("force", mcp.Description("Confirm the mutating operation.")),
	mcp.WithBoolean("dry_run", mcp.Description("Validate every element; write nothing.")),
)

var searchToolDef = mcp.NewTool("collection_search",
	mcp.WithDescription("Search the community collection index by name, slug, or description."),
	mcp.WithString("query", mcp.Description("Case-insensitive substring query. Empty lists everything.")),
	mcp.WithString("type", mcp.Description("Restrict results to one element type.")),
)
