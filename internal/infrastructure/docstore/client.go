package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/roomlink-core/internal/history"
	"github.com/nerrad567/roomlink-core/internal/infrastructure/config"
)

const (
	defaultRequestTimeout = 15 * time.Second
	defaultHealthTimeout  = 5 * time.Second

	// maxResponseSize caps a single history response.
	maxResponseSize = 10 << 20 // 10 MB

	// orderField is the record field the store orders by.
	orderField = history.FieldTimestamp
)

// Client reads history entries from the document store.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	url        string
	root       string
	authToken  string
	httpClient *http.Client
}

// New creates a client for the configured store. No request is made.
//
// Parameters:
//   - cfg: document store configuration from config.yaml
//
// Returns:
//   - *Client: client ready for use
//   - error: ErrNotConfigured if the URL is empty or unparseable
func New(cfg config.DocStoreConfig) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, ErrNotConfigured
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}

	return &Client{
		url:       base,
		root:      strings.Trim(cfg.Root, "/"),
		authToken: cfg.AuthToken,
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
		},
	}, nil
}

// Latest returns up to limit of the most recent entries for deviceID.
// Entry order follows the response; callers sort as needed.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: device scope to read
//   - limit: maximum number of entries (values <= 0 request 1)
//
// Returns:
//   - []history.Entry: entries keyed by record ID; empty when the device has none
//   - error: wraps ErrRequestFailed on any failure
func (c *Client) Latest(ctx context.Context, deviceID string, limit int) ([]history.Entry, error) {
	if deviceID == "" {
		return nil, ErrInvalidDeviceID
	}

	params := url.Values{}
	params.Set("orderBy", strconv.Quote(orderField))
	params.Set("limitToLast", strconv.Itoa(max(limit, 1)))

	body, err := c.get(ctx, c.devicePath(deviceID), params)
	if err != nil {
		return nil, err
	}
	return decodeEntries(body)
}

// HealthCheck verifies the store answers a shallow read of the root.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, defaultHealthTimeout)
	defer cancel()

	params := url.Values{}
	params.Set("shallow", "true")

	if _, err := c.get(checkCtx, c.rootPath(), params); err != nil {
		return fmt.Errorf("docstore health check: %w", err)
	}
	return nil
}

func (c *Client) rootPath() string {
	if c.root == "" {
		return "/.json"
	}
	return "/" + c.root + ".json"
}

func (c *Client) devicePath(deviceID string) string {
	p := "/" + url.PathEscape(deviceID) + ".json"
	if c.root != "" {
		p = "/" + c.root + p
	}
	return p
}

// get executes a GET request and returns the raw response body.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if c.authToken != "" {
		params.Set("auth", c.authToken)
	}
	endpoint := c.url + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %w", ErrRequestFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, redact(err, c.authToken))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrRequestFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrRequestFailed, resp.StatusCode)
	}

	return body, nil
}

// decodeEntries parses an object keyed by record ID. Values that are not
// objects are skipped.
func decodeEntries(body []byte) ([]history.Entry, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrRequestFailed, err)
	}

	// A null body decodes to a nil map.
	entries := make([]history.Entry, 0, len(raw))
	for key, value := range raw {
		var fields map[string]any
		if err := json.Unmarshal(value, &fields); err != nil || fields == nil {
			continue
		}
		entries = append(entries, history.Entry{Key: key, Fields: fields})
	}
	return entries, nil
}

// redact strips the auth token from the request URL carried by
// transport errors.
func redact(err error, token string) error {
	var urlErr *url.Error
	if token == "" || !errors.As(err, &urlErr) {
		return err
	}
	urlErr.URL = strings.ReplaceAll(urlErr.URL, url.QueryEscape(token), "REDACTED")
	return err
}
