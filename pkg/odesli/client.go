package odesli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	// DefaultBaseURL is the public song.link API endpoint.
	DefaultBaseURL = "https://api.song.link"
	// DefaultUserAgent identifies the client to the API.
	DefaultUserAgent = "Crossfade/1.0.2 (Go; Server)"
	// DefaultRequestTimeout is the timeout for API requests.
	DefaultRequestTimeout = 15 * time.Second

	linksPath = "/v1-alpha.1/links"
	// maxErrorBodySize bounds how much of an error body is drained.
	maxErrorBodySize = 4096
)

// ErrEmptyBody is returned when a successful response carries no body.
var ErrEmptyBody = errors.New("odesli returned an empty body")

// Options configures a Client.
type Options struct {
	BaseURL      string
	UserAgent    string
	UserCountry  string // Optional ISO country passed as userCountry.
	SongIfSingle bool   // Ask the API to prefer the song over a single-track album.
	HTTPClient   *http.Client
}

// Client calls the links endpoint.
type Client struct {
	baseURL      string
	userAgent    string
	userCountry  string
	songIfSingle bool
	client       *http.Client
}

// NewClient creates a new API client. Zero options fall back to the public defaults.
func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:      opts.BaseURL,
		userAgent:    opts.UserAgent,
		userCountry:  opts.UserCountry,
		songIfSingle: opts.SongIfSingle,
		client:       opts.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: DefaultRequestTimeout}
	}
	return c
}

// Links resolves a platform URL into the cross-platform link set.
// Non-2xx answers are reported as *StatusError.
func (c *Client) Links(ctx context.Context, rawURL string) (*Response, error) {
	query := url.Values{}
	query.Set("url", rawURL)
	if c.userCountry != "" {
		query.Set("userCountry", c.userCountry)
	}
	if c.songIfSingle {
		query.Set("songIfSingle", strconv.FormatBool(true))
	}

	reqURL := c.baseURL + linksPath + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, &StatusError{Code: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read odesli response: %w", err)
	}
	if len(body) == 0 || string(body) == "null" {
		return nil, ErrEmptyBody
	}

	var links Response
	if err := json.Unmarshal(body, &links); err != nil {
		return nil, fmt.Errorf("failed to decode odesli response: %w", err)
	}
	return &links, nil
}
