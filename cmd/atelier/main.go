package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hpungsan/atelier/internal/collection"
	"github.com/hpungsan/atelier/internal/config"
	"github.com/hpungsan/atelier/internal/db"
	"github.com/hpungsan/atelier/internal/mcp"
	"github.com/hpungsan/atelier/internal/portfolio"
	"github.com/hpungsan/atelier/internal/remote"
	"github.com/hpungsan/atelier/internal/security"
	"github.com/hpungsan/atelier/internal/sync"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"list": true, "get": true, "put": true, "delete": true,
	"reload": true, "validate": true,
	"upload": true, "download": true, "compare": true,
	"bulk-upload": true, "bulk-download": true, "remote-list": true,
	"search": true, "audit": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false // Default → MCP server
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
     _  _       _ _
    /_\| |_ ___| (_)___ _ _
   / _ \  _/ -_) | / -_) '_|
  /_/ \_\__\___|_|_\___|_|

  Portfolio of AI-behavior elements

  Usage: atelier <command> [options]
         atelier --help

  MCP server mode requires piped input.`)
}

// appDeps bundles everything the CLI and the MCP server share.
type appDeps struct {
	cfg    *config.Config
	store  *portfolio.Store
	engine *sync.Engine
	cache  *collection.Cache
	audit  *db.AuditStore
}

// buildDeps wires the full application: audit database, config, security
// pipeline, portfolio store, remote client, sync engine, and (when
// configured) the collection cache.
func buildDeps(baseDir string) (*appDeps, func(), error) {
	database, err := db.Init(baseDir)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize database: %w", err)
	}
	cleanup := func() { database.Close() }

	cfg, err := config.Load(baseDir)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	// MCP speaks JSON on stdout, so logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	auditStore := db.NewAuditStore(database)
	pipeline := security.New(security.Options{
		ExpansionLimit: cfg.YAMLExpansionLimit,
		ShellPolicy:    security.ShellPolicy(cfg.ShellPolicy),
		Auditor:        security.NewAuditor(logger, auditStore),
	})

	owner := cfg.RemoteOwner
	if owner == "" {
		owner = "local"
	}
	store := portfolio.New(baseDir, owner, pipeline, logger)
	if _, err := store.Reload(); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("load portfolio: %w", err)
	}

	token := os.Getenv("ATELIER_TOKEN")
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	client := remote.NewHTTPClient(
		cfg.RemoteBaseURL,
		token,
		time.Duration(cfg.RequestTimeoutSecs)*time.Second,
		remote.WithRetryConfig(remote.RetryConfig{
			MaxAttempts:       cfg.MaxRetries,
			BackoffBase:       500 * time.Millisecond,
			BackoffMultiplier: 2.0,
			MaxBackoff:        10 * time.Second,
		}),
		remote.WithLogger(logger),
	)

	engine := sync.New(cfg, store, pipeline, client, logger)

	var cache *collection.Cache
	if cfg.CollectionConfigured() {
		repo := remote.RepoRef{
			Owner:         cfg.CollectionOwner,
			Name:          cfg.CollectionRepo,
			DefaultBranch: "main",
		}
		cache = collection.New(client, repo, "", time.Duration(cfg.CollectionTTLSecs)*time.Second, logger)
	}

	return &appDeps{
		cfg:    cfg,
		store:  store,
		engine: engine,
		cache:  cache,
		audit:  auditStore,
	}, cleanup, nil
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before any wiring (nothing is needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}
	baseDir := filepath.Join(homeDir, ".atelier")

	deps, cleanup, err := buildDeps(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(deps)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'atelier --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := mcp.Run(deps.cfg, deps.store, deps.engine, deps.cache, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
