// Package remote adapts the remote blob/commit API (a GitHub-contents-style
// REST backend) into typed results. The one invariant that matters: no
// method ever hands the caller a bare nil on backend failure. Every path
// resolves to a typed value or a typed remote error with a specific code.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hpungsan/atelier/internal/element"
	"github.com/hpungsan/atelier/internal/errors"
)

// maxResponseSize bounds remote response bodies.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.github.com"

// RepoSpec identifies the repository to ensure.
type RepoSpec struct {
	Owner   string
	Name    string
	Private bool
}

// RepoRef is a resolved remote repository.
type RepoRef struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch"`
	HTMLURL       string `json:"html_url"`
}

// TreeEntry is one file in the remote element tree.
type TreeEntry struct {
	Path string       `json:"path"`
	Type element.Type `json:"type"`
	Slug string       `json:"slug"`
	SHA  string       `json:"sha"`
	Size int          `json:"size"`
}

// Blob is a fetched file.
type Blob struct {
	Path    string
	Content []byte
	SHA     string
}

// CommitRef is the result of a mutating put.
type CommitRef struct {
	CommitSHA string `json:"commit_sha"`
	BlobSHA   string `json:"blob_sha"`
	HTMLURL   string `json:"html_url"`
}

// Client is the remote portfolio backend. Implementations must return typed
// errors (errors.ErrRemote with Retryable, or errors.ErrNotFound) on every
// failure path.
type Client interface {
	EnsureRepository(ctx context.Context, spec RepoSpec) (*RepoRef, error)
	ListTree(ctx context.Context, repo RepoRef, path string) ([]TreeEntry, error)
	GetBlob(ctx context.Context, repo RepoRef, path string) (*Blob, error)
	PutFile(ctx context.Context, repo RepoRef, path string, content []byte, message string) (*CommitRef, error)
}

// RetryConfig holds retry configuration for remote requests.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts per call.
	MaxAttempts int

	// BackoffBase is the initial backoff duration.
	BackoffBase time.Duration

	// BackoffMultiplier is applied to backoff on each retry.
	BackoffMultiplier float64

	// MaxBackoff caps the maximum backoff duration.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        10 * time.Second,
	}
}

// HTTPClient implements Client over the REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retry      RetryConfig
	logger     *slog.Logger
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client (tests use httptest clients).
func WithHTTPClient(c *http.Client) Option {
	return func(hc *HTTPClient) { hc.httpClient = c }
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(hc *HTTPClient) { hc.retry = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(hc *HTTPClient) { hc.logger = logger }
}

// NewHTTPClient creates a client. The token is an opaque, already-valid
// credential handle; this package performs no login or refresh. An empty
// baseURL selects the production endpoint. The timeout applies per call.
func NewHTTPClient(baseURL, token string, timeout time.Duration, opts ...Option) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &HTTPClient{
		baseURL:    baseURL,
		token:      token,
		retry:      DefaultRetryConfig(),
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type repoResponse struct {
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch"`
	HTMLURL       string `json:"html_url"`
	Owner         struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// EnsureRepository resolves the repository, creating it when absent.
func (c *HTTPClient) EnsureRepository(ctx context.Context, spec RepoSpec) (*RepoRef, error) {
	if spec.Owner == "" || spec.Name == "" {
		return nil, errors.NewInvalidRequest("repository owner and name are required")
	}

	status, body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s", spec.Owner, spec.Name), nil)
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusOK:
		return decodeRepo(body)
	case status == http.StatusNotFound:
		// Fall through to create.
	default:
		return nil, errors.NewRemoteStatus(status, apiMessage(body))
	}

	createBody, _ := json.Marshal(map[string]any{
		"name":      spec.Name,
		"private":   spec.Private,
		"auto_init": true,
	})
	status, body, err = c.do(ctx, http.MethodPost, "/user/repos", createBody)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return nil, errors.NewRemoteStatus(status, apiMessage(body))
	}
	return decodeRepo(body)
}

func decodeRepo(body []byte) (*RepoRef, error) {
	var resp repoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.NewRemote(fmt.Sprintf("malformed repository response: %v", err), false)
	}
	branch := resp.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	return &RepoRef{
		Owner:         resp.Owner.Login,
		Name:          resp.Name,
		DefaultBranch: branch,
		HTMLURL:       resp.HTMLURL,
	}, nil
}

type contentEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	SHA  string `json:"sha"`
	Size int    `json:"size"`
	Type string `json:"type"` // "file" or "dir"
}

// ListTree enumerates element files. With an empty path it walks every
// element-type subdirectory; a missing type directory is normal (the user
// has no elements of that type), but any other per-directory failure fails
// the whole listing; a silently partial tree is worse than an error.
func (c *HTTPClient) ListTree(ctx context.Context, repo RepoRef, path string) ([]TreeEntry, error) {
	dirs := []string{path}
	if path == "" {
		dirs = element.TypeNames()
	}

	var entries []TreeEntry
	for _, dir := range dirs {
		status, body, err := c.do(ctx, http.MethodGet,
			fmt.Sprintf("/repos/%s/%s/contents/%s", repo.Owner, repo.Name, dir), nil)
		if err != nil {
			return nil, err
		}
		if status == http.StatusNotFound {
			continue
		}
		if status != http.StatusOK {
			return nil, errors.NewRemoteStatus(status,
				fmt.Sprintf("listing %s failed: %s", dir, apiMessage(body)))
		}

		var list []contentEntry
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, errors.NewRemote(fmt.Sprintf("malformed listing for %s: %v", dir, err), false)
		}

		typ, _ := element.ParseType(dir)
		for _, item := range list {
			if item.Type != "file" {
				continue
			}
			entries = append(entries, TreeEntry{
				Path: item.Path,
				Type: typ,
				Slug: trimMDSuffix(item.Name),
				SHA:  item.SHA,
				Size: item.Size,
			})
		}
	}

	return entries, nil
}

type blobResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	SHA      string `json:"sha"`
	Path     string `json:"path"`
}

// GetBlob fetches one file. A missing path is a typed NOT_FOUND, not a nil.
func (c *HTTPClient) GetBlob(ctx context.Context, repo RepoRef, path string) (*Blob, error) {
	status, body, err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/repos/%s/%s/contents/%s", repo.Owner, repo.Name, path), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, errors.NewNotFound(fmt.Sprintf("remote path %s", path))
	}
	if status != http.StatusOK {
		return nil, errors.NewRemoteStatus(status, apiMessage(body))
	}

	var resp blobResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.NewRemote(fmt.Sprintf("malformed blob response: %v", err), false)
	}

	content, err := base64.StdEncoding.DecodeString(stripNewlines(resp.Content))
	if err != nil {
		return nil, errors.NewRemote(fmt.Sprintf("undecodable blob content for %s: %v", path, err), false)
	}

	return &Blob{Path: path, Content: content, SHA: resp.SHA}, nil
}

type putResponse struct {
	Content *struct {
		SHA string `json:"sha"`
	} `json:"content"`
	Commit *struct {
		SHA     string `json:"sha"`
		HTMLURL string `json:"html_url"`
	} `json:"commit"`
}

// PutFile writes one file as a commit. When the path already exists its blob
// SHA is resolved first so the update is accepted. The response is decoded
// defensively: a missing commit object in an otherwise-200 response becomes
// a typed remote error, never a nil dereference downstream.
func (c *HTTPClient) PutFile(ctx context.Context, repo RepoRef, path string, content []byte, message string) (*CommitRef, error) {
	payload := map[string]any{
		"message": message,
		"content": base64.StdEncoding.EncodeToString(content),
	}

	existing, err := c.GetBlob(ctx, repo, path)
	switch {
	case err == nil:
		payload["sha"] = existing.SHA
	case errors.Is(err, errors.ErrNotFound):
		// New file.
	default:
		return nil, err
	}

	body, _ := json.Marshal(payload)
	status, respBody, err := c.do(ctx, http.MethodPut,
		fmt.Sprintf("/repos/%s/%s/contents/%s", repo.Owner, repo.Name, path), body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, errors.NewRemoteStatus(status, apiMessage(respBody))
	}

	var resp putResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, errors.NewRemote(fmt.Sprintf("malformed commit response: %v", err), false)
	}
	if resp.Commit == nil || resp.Content == nil {
		return nil, errors.NewRemote(
			fmt.Sprintf("commit response for %s is missing commit or content object", path), false)
	}

	return &CommitRef{
		CommitSHA: resp.Commit.SHA,
		BlobSHA:   resp.Content.SHA,
		HTMLURL:   resp.Commit.HTMLURL,
	}, nil
}

// do performs one HTTP call with bounded exponential backoff on transient
// failures. 4xx responses return immediately; the caller maps the status.
func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	backoff := c.retry.BackoffBase
	attempts := c.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return 0, nil, errors.NewRemote(fmt.Sprintf("%s %s: %v", method, path, ctx.Err()), true)
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * c.retry.BackoffMultiplier)
			if backoff > c.retry.MaxBackoff {
				backoff = c.retry.MaxBackoff
			}
		}

		status, respBody, err := c.doOnce(ctx, method, path, body)
		if err != nil {
			// Network-level failure or timeout: retryable.
			lastErr = errors.NewRemote(fmt.Sprintf("%s %s: %v", method, path, err), true)
			c.logger.Warn("remote call failed",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			continue
		}

		if status >= 500 {
			lastErr = errors.NewRemoteStatus(status, apiMessage(respBody))
			c.logger.Warn("remote server error",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", status),
				slog.Int("attempt", attempt),
			)
			continue
		}

		return status, respBody, nil
	}

	return 0, nil, lastErr
}

func (c *HTTPClient) doOnce(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// apiMessage extracts the backend's error message, falling back to the raw
// body so failures always carry something specific.
func apiMessage(body []byte) string {
	var resp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && resp.Message != "" {
		return resp.Message
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

func trimMDSuffix(name string) string {
	if len(name) > 3 && name[len(name)-3:] == ".md" {
		return name[:len(name)-3]
	}
	return name
}

func stripNewlines(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\n' && s[i] != '\r' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
