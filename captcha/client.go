package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultEndpoint is the fetch path exposed by chiral-carbon-captcha.
	DefaultEndpoint = "/chiral-carbon-captcha/getChiralCarbonCaptcha"
	// DefaultTimeout bounds a single fetch.
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 8 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL  string
	Endpoint string
	// Timeout is a hard bound on one fetch. Fetches are never retried.
	Timeout    time.Duration
	HTTPClient *http.Client
	// Fields overrides DefaultFieldTable.
	Fields *FieldTable
	// DefaultCount is the answer assumed when a response carries no count
	// signal. Zero (the default) rejects such responses instead.
	DefaultCount int
}

// Client calls the remote question provider.
type Client struct {
	url          string
	timeout      time.Duration
	http         *http.Client
	fields       FieldTable
	defaultCount int
}

// New validates opts and returns a Client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("captcha: base URL required")
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	fields := DefaultFieldTable
	if opts.Fields != nil {
		fields = *opts.Fields
	}
	return &Client{
		url:          base + endpoint,
		timeout:      timeout,
		http:         hc,
		fields:       fields,
		defaultCount: opts.DefaultCount,
	}, nil
}

// URL returns the full fetch URL.
func (c *Client) URL() string { return c.url }

// Fetch requests one question. A nil error guarantees a non-empty image.
func (c *Client) Fetch(ctx context.Context) (Question, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader([]byte("{}")))
	if err != nil {
		return Question{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Question{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return Question{}, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Question{}, fmt.Errorf("%w: read body: %v", ErrProviderUnavailable, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return Question{}, fmt.Errorf("%w: decode body: %v", ErrProviderMalformed, err)
	}
	return c.fields.Normalize(body, c.defaultCount)
}
