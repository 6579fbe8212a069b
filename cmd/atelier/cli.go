package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/atelier/internal/element"
	"github.com/hpungsan/atelier/internal/errors"
	"github.com/hpungsan/atelier/internal/security"
	"github.com/hpungsan/atelier/internal/sync"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(deps *appDeps) *cli.App {
	app := &cli.App{
		Name:    "atelier",
		Usage:   "Portfolio of AI-behavior elements with remote sync",
		Version: Version,
		Commands: []*cli.Command{
			listCmd(deps),
			getCmd(deps),
			putCmd(deps),
			deleteCmd(deps),
			reloadCmd(deps),
			validateCmd(deps),
			uploadCmd(deps),
			downloadCmd(deps),
			compareCmd(deps),
			bulkUploadCmd(deps),
			bulkDownloadCmd(deps),
			remoteListCmd(deps),
			searchCmd(deps),
			auditCmd(deps),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// typeArg parses a positional or flag type value.
func typeArg(s string) (element.Type, error) {
	typ, ok := element.ParseType(s)
	if !ok {
		return "", errors.NewInvalidRequest(fmt.Sprintf("unknown element type %q (one of: %s)",
			s, strings.Join(element.TypeNames(), ", ")))
	}
	return typ, nil
}

// listCmd creates the list command.
func listCmd(deps *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List portfolio elements",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Filter by element type"},
		},
		Action: func(c *cli.Context) error {
			var els []*element.Element
			if t := c.String("type"); t != "" {
				typ, err := typeArg(t)
				if err != nil {
					return outputError(err)
				}
				els = deps.store.List(typ)
			} else {
				els = deps.store.ListAll()
			}

			items := make([]map[string]any, len(els))
			for i, el := range els {
				items[i] = map[string]any{
					"ref":         el.Ref(),
					"name":        el.Name,
					"version":     el.Version,
					"description": el.Metadata.Description,
				}
			}
			return outputJSON(map[string]any{"items": items, "count": len(items)})
		},
	}
}

// getCmd creates the get command.
func getCmd(deps *appDeps) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Fetch one element by slug or display name",
		ArgsUsage: "<type> <name-or-slug>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return outputError(errors.NewInvalidRequest("usage: atelier get <type> <name-or-slug>"))
			}
			typ, err := typeArg(c.Args().Get(0))
			if err != nil {
				return outputError(err)
			}

			el, err := deps.store.Get(typ, c.Args().Get(1))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(el)
		},
	}
}

// putCmd creates the put command.
func putCmd(deps *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "put",
		Usage: "Create or replace an element (reads content from stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Required: true, Usage: "Element type"},
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true, Usage: "Display name"},
			&cli.StringFlag{Name: "slug", Usage: "Identity slug (derived from name when omitted)"},
			&cli.StringFlag{Name: "version", Value: "1.0.0", Usage: "Semver version"},
			&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "One-line description"},
			&cli.StringFlag{Name: "author", Usage: "Author handle"},
			&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags"},
			&cli.StringFlag{Name: "triggers", Usage: "Comma-separated triggers (agents)"},
		},
		Action: func(c *cli.Context) error {
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("element content must be piped via stdin"))
			}
			content, err := readStdin()
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if content == "" {
				return outputError(errors.NewInvalidRequest("element content is required"))
			}

			typ, err := typeArg(c.String("type"))
			if err != nil {
				return outputError(err)
			}

			el := &element.Element{
				Type:    typ,
				Name:    c.String("name"),
				Slug:    c.String("slug"),
				Version: c.String("version"),
				Metadata: element.Metadata{
					Author:      c.String("author"),
					Description: c.String("description"),
					Tags:        parseCSV(c.String("tags")),
					Triggers:    parseCSV(c.String("triggers")),
				},
				Content: content,
			}

			if err := deps.store.Put(el); err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{
				"ref":     el.Ref(),
				"id":      el.ID,
				"version": el.Version,
				"path":    deps.store.FilePath(el.Type, el.Slug),
			})
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(deps *appDeps) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete an element from the local portfolio",
		ArgsUsage: "<type> <slug>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return outputError(errors.NewInvalidRequest("usage: atelier delete <type> <slug>"))
			}
			typ, err := typeArg(c.Args().Get(0))
			if err != nil {
				return outputError(err)
			}

			slug := c.Args().Get(1)
			if err := deps.store.Delete(typ, slug); err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"deleted": string(typ) + "/" + slug})
		},
	}
}

// reloadCmd creates the reload command.
func reloadCmd(deps *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "reload",
		Usage: "Rescan the portfolio directory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Limit the rescan to one element type"},
		},
		Action: func(c *cli.Context) error {
			var types []element.Type
			if t := c.String("type"); t != "" {
				typ, err := typeArg(t)
				if err != nil {
					return outputError(err)
				}
				types = append(types, typ)
			}

			count, err := deps.store.Reload(types...)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"loaded": count})
		},
	}
}

// validateCmd creates the validate command.
func validateCmd(deps *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Validate an element without writing it (reads content from stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Required: true, Usage: "Element type"},
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true, Usage: "Display name"},
			&cli.StringFlag{Name: "version", Value: "1.0.0", Usage: "Semver version"},
			&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "One-line description"},
			&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags"},
			&cli.StringFlag{Name: "triggers", Usage: "Comma-separated triggers"},
		},
		Action: func(c *cli.Context) error {
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("element content must be piped via stdin"))
			}
			content, err := readStdin()
			if err != nil {
				return outputError(errors.NewInternal(err))
			}

			typ, err := typeArg(c.String("type"))
			if err != nil {
				return outputError(err)
			}

			el := &element.Element{
				Type:    typ,
				Name:    c.String("name"),
				Slug:    element.Slugify(c.String("name")),
				Version: c.String("version"),
				Metadata: element.Metadata{
					Description: c.String("description"),
					Tags:        parseCSV(c.String("tags")),
					Triggers:    parseCSV(c.String("triggers")),
				},
				Content: content,
			}

			// Reporting pass: findings and rejections come back in the output
			// instead of failing the command.
			reporter := security.New(security.Options{ExpansionLimit: deps.cfg.YAMLExpansionLimit})
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
			return outputJSON(map[string]any{
				"valid":           result.Valid && len(securityErrors) == 0,
				"errors":          result.Errors,
				"warnings":        result.Warnings,
				"findings":        findings,
				"security_errors": securityErrors,
			})
		},
	}
}

// uploadCmd creates the upload command.
func uploadCmd(deps *appDeps) *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Upload one element to the remote repository",
		ArgsUsage: "<type> <slug>",
		Flags:     syncFlags(),
		Action: func(c *cli.Context) error {
			return runSyncOne(c, deps.engine.Upload)
		},
	}
}

// downloadCmd creates the download command.
func downloadCmd(deps *appDeps) *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "Download one element from the remote repository",
		ArgsUsage: "<type> <slug>",
		Flags:     syncFlags(),
		Action: func(c *cli.Context) error {
			return runSyncOne(c, deps.engine.Download)
		},
	}
}

// compareCmd creates the compare command.
func compareCmd(deps *appDeps) *cli.Command {
	return &cli.Command{
		Name:      "compare",
		Usage:     "Compare local elements against the remote repository",
		ArgsUsage: "[<type> <slug>]",
		Action: func(c *cli.Context) error {
			if c.NArg() >= 2 {
				typ, err := typeArg(c.Args().Get(0))
				if err != nil {
					return outputError(err)
				}
				diff, err := deps.engine.CompareOne(c.Context, typ, c.Args().Get(1))
				if err != nil {
					return outputError(err)
				}
				return outputJSON(diff)
			}

			diffs, err := deps.engine.Compare(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"diffs": diffs, "count": len(diffs)})
		},
	}
}

// bulkUploadCmd creates the bulk-upload command.
func bulkUploadCmd(deps *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "bulk-upload",
		Usage: "Upload local elements, all of them or one type",
		Flags: bulkSyncFlags(),
		Action: func(c *cli.Context) error {
			return runSyncBulk(c, deps.engine.BulkUpload)
		},
	}
}

// bulkDownloadCmd creates the bulk-download command.
func bulkDownloadCmd(deps *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "bulk-download",
		Usage: "Download remote elements, all of them or one type, through the local gates",
		Flags: bulkSyncFlags(),
		Action: func(c *cli.Context) error {
			return runSyncBulk(c, deps.engine.BulkDownload)
		},
	}
}

// remoteListCmd creates the remote-list command.
func remoteListCmd(deps *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "remote-list",
		Usage: "List element files in the remote repository",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Filter by element type"},
		},
		Action: func(c *cli.Context) error {
			typ, err := optionalTypeFlag(c)
			if err != nil {
				return outputError(err)
			}
			entries, err := deps.engine.ListRemote(c.Context, typ)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"entries": entries, "count": len(entries)})
		},
	}
}

// searchCmd creates the search command.
func searchCmd(deps *appDeps) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the community collection index",
		ArgsUsage: "[query]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Restrict to one element type"},
		},
		Action: func(c *cli.Context) error {
			if deps.cache == nil {
				return outputError(errors.NewConfiguration("no collection repository is configured"))
			}

			var typ element.Type
			if t := c.String("type"); t != "" {
				parsed, err := typeArg(t)
				if err != nil {
					return outputError(err)
				}
				typ = parsed
			}

			hits, err := deps.cache.Search(c.Context, c.Args().First(), typ)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"entries": hits, "count": len(hits)})
		},
	}
}

// auditCmd creates the audit command.
func auditCmd(deps *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Show recent security audit events",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 50, Usage: "Maximum events to return"},
		},
		Action: func(c *cli.Context) error {
			events, err := deps.audit.RecentEvents(c.Int("limit"))
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			return outputJSON(map[string]any{"events": events, "count": len(events)})
		},
	}
}

// Helper functions

func syncFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Confirm the mutating operation"},
		&cli.BoolFlag{Name: "dry-run", Usage: "Validate only; write nothing"},
	}
}

func bulkSyncFlags() []cli.Flag {
	return append(syncFlags(),
		&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Limit the operation to one element type"},
	)
}

// optionalTypeFlag parses the --type flag when present; empty means all types.
func optionalTypeFlag(c *cli.Context) (element.Type, error) {
	if t := c.String("type"); t != "" {
		return typeArg(t)
	}
	return "", nil
}

func syncOptions(c *cli.Context) sync.Options {
	return sync.Options{Force: c.Bool("force"), DryRun: c.Bool("dry-run")}
}

// runSyncOne drives a single-element sync command. The record is printed
// even when the element was rejected or the transfer failed; only gate and
// argument errors short-circuit.
func runSyncOne(c *cli.Context, op func(ctx context.Context, typ element.Type, slug string, opts sync.Options) (*sync.Record, error)) error {
	if c.NArg() < 2 {
		return outputError(errors.NewInvalidRequest("usage: atelier " + c.Command.Name + " <type> <slug>"))
	}
	typ, err := typeArg(c.Args().Get(0))
	if err != nil {
		return outputError(err)
	}

	rec, err := op(c.Context, typ, c.Args().Get(1), syncOptions(c))
	if rec == nil {
		return outputError(err)
	}
	return outputJSON(rec)
}

// runSyncBulk drives a bulk sync command.
func runSyncBulk(c *cli.Context, op func(ctx context.Context, typ element.Type, opts sync.Options) (*sync.BulkResult, error)) error {
	typ, err := optionalTypeFlag(c)
	if err != nil {
		return outputError(err)
	}
	result, err := op(c.Context, typ, syncOptions(c))
	if err != nil {
		return outputError(err)
	}
	return outputJSON(result)
}

// outputJSON writes indented JSON to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats an error as [CODE] message and returns it as a CLI
// exit error so the process exits non-zero.
func outputError(err error) error {
	if ae, ok := err.(*errors.AtelierError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", ae.Code, ae.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data available.
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all of stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// parseCSV splits a comma-separated flag value into trimmed parts.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
