package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/atelier/internal/collection"
	"github.com/hpungsan/atelier/internal/config"
	"github.com/hpungsan/atelier/internal/portfolio"
	"github.com/hpungsan/atelier/internal/sync"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"portfolio_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"portfolio_get": {
		def:     getToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGet },
	},
	"portfolio_put": {
		def:     putToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePut },
	},
	"portfolio_delete": {
		def:     deleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDelete },
	},
	"portfolio_reload": {
		def:     reloadToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReload },
	},
	"element_validate": {
		def:     validateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleValidate },
	},
	"sync_list_remote": {
		def:     listRemoteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleListRemote },
	},
	"sync_upload": {
		def:     uploadToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleUpload },
	},
	"sync_download": {
		def:     downloadToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDownload },
	},
	"sync_compare": {
		def:     compareToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCompare },
	},
	"sync_bulk_upload": {
		def:     bulkUploadToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBulkUpload },
	},
	"sync_bulk_download": {
		def:     bulkDownloadToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBulkDownload },
	},
	"collection_search": {
		def:     searchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSearch },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with Atelier tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(cfg *config.Config, store *portfolio.Store, engine *sync.Engine, cache *collection.Cache, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"atelier",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(cfg, store, engine, cache)

	disabled := make(map[string]bool)
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(cfg *config.Config, store *portfolio.Store, engine *sync.Engine, cache *collection.Cache, version string) error {
	s := NewServer(cfg, store, engine, cache, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
