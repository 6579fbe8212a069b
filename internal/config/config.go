package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// Config holds application configuration.
type Config struct {
	// SyncEnabled gates every remote operation: compare, upload, download,
	// and the bulk variants all consult this one value through SyncIsEnabled.
	SyncEnabled bool `json:"sync_enabled,omitempty"`

	// SkipConfirm disables the confirmation requirement for mutating sync
	// operations. When false (the default), upload/download require an
	// explicit force flag.
	SkipConfirm bool `json:"skip_confirm,omitempty"`

	// RemoteOwner and RemoteRepo are the user's remote repository
	// coordinates. Sync against an unset remote fails fast.
	RemoteOwner string `json:"remote_owner,omitempty"`
	RemoteRepo  string `json:"remote_repo,omitempty"`

	// RemoteBaseURL overrides the remote API endpoint (tests, self-hosted).
	RemoteBaseURL string `json:"remote_base_url,omitempty"`

	// RequestTimeoutSecs is the per-remote-call timeout in seconds.
	RequestTimeoutSecs int `json:"request_timeout_secs,omitempty"`

	// MaxRetries bounds retry attempts for transient remote failures.
	MaxRetries int `json:"max_retries,omitempty"`

	// BulkConcurrency limits in-flight elements during bulk sync; capped at
	// MaxBulkConcurrency to stay under remote rate limits.
	BulkConcurrency int `json:"bulk_concurrency,omitempty"`

	// CollectionOwner and CollectionRepo locate the community collection
	// index repository. Both empty disables collection search.
	CollectionOwner string `json:"collection_owner,omitempty"`
	CollectionRepo  string `json:"collection_repo,omitempty"`

	// CollectionTTLSecs is the collection index cache TTL in seconds.
	CollectionTTLSecs int `json:"collection_ttl_secs,omitempty"`

	// ShellPolicy selects how destructive shell patterns are treated:
	// "flag" (default) or "reject".
	ShellPolicy string `json:"shell_policy,omitempty"`

	// YAMLExpansionLimit bounds YAML anchor/alias expansion as a multiple of
	// raw content size. 0 means the pipeline default.
	YAMLExpansionLimit int `json:"yaml_expansion_limit,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// MaxBulkConcurrency is the hard cap on in-flight bulk elements.
const MaxBulkConcurrency = 8

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		RequestTimeoutSecs: 30,
		MaxRetries:         3,
		BulkConcurrency:    4,
		CollectionTTLSecs:  900,
		ShellPolicy:        "flag",
	}
}

// SyncIsEnabled is the single source of truth for the sync gate. Every code
// path that asks "is sync enabled" goes through here; compare and upload
// must never consult divergent flags.
func (c *Config) SyncIsEnabled() bool {
	return c.SyncEnabled
}

// RemoteConfigured reports whether remote repository coordinates are set.
func (c *Config) RemoteConfigured() bool {
	return c.RemoteOwner != "" && c.RemoteRepo != ""
}

// CollectionConfigured reports whether collection repository coordinates are set.
func (c *Config) CollectionConfigured() bool {
	return c.CollectionOwner != "" && c.CollectionRepo != ""
}

// EffectiveBulkConcurrency returns the configured concurrency clamped to
// [1, MaxBulkConcurrency].
func (c *Config) EffectiveBulkConcurrency() int {
	n := c.BulkConcurrency
	if n < 1 {
		n = 1
	}
	if n > MaxBulkConcurrency {
		n = MaxBulkConcurrency
	}
	return n
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.atelier.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; booleans OR together.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.SyncEnabled = base.SyncEnabled || overlay.SyncEnabled
	result.SkipConfirm = base.SkipConfirm || overlay.SkipConfirm

	result.RemoteOwner = overlayString(base.RemoteOwner, overlay.RemoteOwner)
	result.RemoteRepo = overlayString(base.RemoteRepo, overlay.RemoteRepo)
	result.RemoteBaseURL = overlayString(base.RemoteBaseURL, overlay.RemoteBaseURL)
	result.CollectionOwner = overlayString(base.CollectionOwner, overlay.CollectionOwner)
	result.CollectionRepo = overlayString(base.CollectionRepo, overlay.CollectionRepo)
	result.ShellPolicy = overlayString(base.ShellPolicy, overlay.ShellPolicy)

	result.RequestTimeoutSecs = overlayInt(base.RequestTimeoutSecs, overlay.RequestTimeoutSecs)
	result.MaxRetries = overlayInt(base.MaxRetries, overlay.MaxRetries)
	result.BulkConcurrency = overlayInt(base.BulkConcurrency, overlay.BulkConcurrency)
	result.CollectionTTLSecs = overlayInt(base.CollectionTTLSecs, overlay.CollectionTTLSecs)
	result.YAMLExpansionLimit = overlayInt(base.YAMLExpansionLimit, overlay.YAMLExpansionLimit)

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func overlayString(base, overlay string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

func overlayInt(base, overlay int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
