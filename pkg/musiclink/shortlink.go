package musiclink

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// shortLinkHosts are share-link domains that only redirect to the canonical URL.
var shortLinkHosts = map[string]struct{}{
	"on.soundcloud.com": {},
	"spotify.link":      {},
}

// IsShortLink reports whether rawURL is a known redirecting share link.
func IsShortLink(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	_, ok := shortLinkHosts[strings.ToLower(u.Hostname())]
	return ok
}

// ShortLinkExpander follows share-link redirects to the canonical URL.
type ShortLinkExpander struct {
	client *http.Client
}

// NewShortLinkExpander creates an expander. A nil client gets the default timeout and redirect cap.
func NewShortLinkExpander(client *http.Client) *ShortLinkExpander {
	if client == nil {
		client = newHTTPClient(defaultHTTPTimeout)
	}
	return &ShortLinkExpander{client: client}
}

// Expand issues a GET for rawURL and returns the URL of the final response.
func (e *ShortLinkExpander) Expand(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", commonUserAgent)
	req.Header.Set("Accept", commonAcceptHeader)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to expand short link: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageReadSize))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("short link returned status %d", resp.StatusCode)
	}
	return resp.Request.URL.String(), nil
}
