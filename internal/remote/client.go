// Package remote is the HTTP client for the remote store.
//
// Every non-2xx response is returned as a *StatusError and treated by callers
// exactly like a transport failure: the reconciler stops and retries later.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/mod/semver"

	"github.com/slatenotes/slate/internal/schema"
)

// APIKeyHeader carries the shared secret.
const APIKeyHeader = "X-API-Key"

// DefaultTimeout bounds a single request when no HTTPClient is supplied.
const DefaultTimeout = 30 * time.Second

// ErrIncompatible is returned by CheckCompatible when the server speaks a
// different major API version.
var ErrIncompatible = errors.New("incompatible server api version")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	if msg == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, msg)
}

// IsOffline reports whether err is a transport failure rather than a
// response from the server.
func IsOffline(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return false
	}
	var netErr net.Error
	var urlErr *url.Error
	return errors.As(err, &netErr) || errors.As(err, &urlErr) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF)
}

// Options configures a Client.
type Options struct {
	APIKey     string
	HTTPClient *http.Client
	UserAgent  string
}

// Client talks to the /api surface of a remote store.
type Client struct {
	base      *url.URL
	mu        sync.RWMutex
	apiKey    string
	http      *http.Client
	userAgent string
}

// New creates a client for the server at baseURL, e.g. "https://notes.example.com".
func New(baseURL string, opts Options) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("remote url is required")
	}
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse remote url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		base:      u,
		apiKey:    opts.APIKey,
		http:      opts.HTTPClient,
		userAgent: opts.UserAgent,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: DefaultTimeout}
	}
	if c.userAgent == "" {
		c.userAgent = "slate/" + schema.APIVersion
	}
	return c, nil
}

// SetAPIKey replaces the shared secret used on subsequent requests.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	c.apiKey = key
	c.mu.Unlock()
}

func (c *Client) currentAPIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// BaseURL returns the server root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// endpoint resolves an escaped path below /api.
func (c *Client) endpoint(path string, query url.Values) string {
	u := c.base.JoinPath("api", path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do sends a request and decodes a 2xx JSON body into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return fmt.Errorf("failed to build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := c.currentAPIKey(); key != "" {
		req.Header.Set(APIKeyHeader, key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(data)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func sinceQuery(since *time.Time) url.Values {
	q := url.Values{}
	if since != nil {
		q.Set("since", schema.FormatTime(*since))
	}
	return q
}

// ListFolders returns folders modified after since, or all folders when
// since is nil.
func (c *Client) ListFolders(ctx context.Context, since *time.Time) ([]*schema.Folder, error) {
	var folders []*schema.Folder
	if err := c.do(ctx, http.MethodGet, "folders", sinceQuery(since), nil, &folders); err != nil {
		return nil, err
	}
	return folders, nil
}

// ListNotes returns notes modified after since, optionally restricted to
// folderID.
func (c *Client) ListNotes(ctx context.Context, since *time.Time, folderID string) ([]*schema.Note, error) {
	q := sinceQuery(since)
	if folderID != "" {
		q.Set("folderId", folderID)
	}
	var notes []*schema.Note
	if err := c.do(ctx, http.MethodGet, "notes", q, nil, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

func entityPath(typ schema.EntityType, id string) string {
	return typ.Collection() + "/" + url.PathEscape(id)
}

// CreateFolder posts a folder snapshot. Creating an existing id succeeds.
func (c *Client) CreateFolder(ctx context.Context, f *schema.Folder) error {
	return c.do(ctx, http.MethodPost, schema.EntityFolder.Collection(), nil, f, nil)
}

// UpdateFolder puts the full folder snapshot, including updatedAt.
func (c *Client) UpdateFolder(ctx context.Context, f *schema.Folder) error {
	return c.do(ctx, http.MethodPut, entityPath(schema.EntityFolder, f.ID), nil, f, nil)
}

// DeleteFolder deletes a folder; the server removes its notes too.
func (c *Client) DeleteFolder(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, entityPath(schema.EntityFolder, id), nil, nil, nil)
}

// CreateNote posts a note snapshot. Creating an existing id succeeds.
func (c *Client) CreateNote(ctx context.Context, n *schema.Note) error {
	return c.do(ctx, http.MethodPost, schema.EntityNote.Collection(), nil, n, nil)
}

// UpdateNote puts the full note snapshot, including updatedAt.
func (c *Client) UpdateNote(ctx context.Context, n *schema.Note) error {
	return c.do(ctx, http.MethodPut, entityPath(schema.EntityNote, n.ID), nil, n, nil)
}

// DeleteNote deletes a note.
func (c *Client) DeleteNote(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, entityPath(schema.EntityNote, id), nil, nil, nil)
}

// Search runs a server-side note search.
func (c *Client) Search(ctx context.Context, q string) ([]*schema.SearchHit, error) {
	var hits []*schema.SearchHit
	if err := c.do(ctx, http.MethodGet, "search", url.Values{"q": {q}}, nil, &hits); err != nil {
		return nil, err
	}
	return hits, nil
}

// Status reports whether the server has a database and which API version
// it speaks.
func (c *Client) Status(ctx context.Context) (*schema.ServerStatus, error) {
	var st schema.ServerStatus
	if err := c.do(ctx, http.MethodGet, "status", nil, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// CheckCompatible verifies the server speaks the client's major API version.
// Servers that do not report a version are assumed compatible.
func (c *Client) CheckCompatible(ctx context.Context) (*schema.ServerStatus, error) {
	st, err := c.Status(ctx)
	if err != nil {
		return nil, err
	}
	if st.APIVersion == "" {
		return st, nil
	}
	if !semver.IsValid(st.APIVersion) {
		return st, fmt.Errorf("%w: server reports %q", ErrIncompatible, st.APIVersion)
	}
	if semver.Major(st.APIVersion) != semver.Major(schema.APIVersion) {
		return st, fmt.Errorf("%w: server %s, client %s", ErrIncompatible, st.APIVersion, schema.APIVersion)
	}
	return st, nil
}
