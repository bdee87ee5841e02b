package musiclink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// commonUserAgent is the user agent string used for all page requests.
	// Some origins reject requests without a desktop browser agent.
	commonUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	// commonAcceptHeader is the accept header used for all page requests.
	commonAcceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	// expectedSplitParts is the expected number of parts when splitting title/artist strings.
	expectedSplitParts = 2
	// defaultHTTPTimeout is the default timeout for HTTP requests.
	defaultHTTPTimeout = 10 * time.Second
	// maxHTTPRedirects is the maximum number of HTTP redirects to follow.
	maxHTTPRedirects = 5
	// maxPageReadSize limits the amount of HTML we read. Metadata lives in <head>.
	maxPageReadSize = 512 * 1024
)

var (
	// ErrTooManyRedirects is returned when too many redirects are encountered.
	ErrTooManyRedirects = errors.New("too many redirects")
)

// newHTTPClient creates a new HTTP client with standard settings and redirect validation.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxHTTPRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}
}

// fetchDocument fetches an HTML page with browser headers and parses it.
func fetchDocument(
	ctx context.Context,
	client *http.Client,
	pageURL string,
	serviceName string,
) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", commonUserAgent)
	req.Header.Set("Accept", commonAcceptHeader)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", serviceName, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageReadSize))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s page: %w", serviceName, err)
	}
	return doc, nil
}

// fetchOEmbedJSON fetches and decodes JSON from an oEmbed API endpoint.
func fetchOEmbedJSON(
	ctx context.Context,
	client *http.Client,
	oembedURL string,
	targetURL string,
	dest interface{},
) error {
	reqURL := fmt.Sprintf("%s?url=%s&format=json", oembedURL, url.QueryEscape(targetURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("oEmbed API returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode oEmbed response: %w", err)
	}

	return nil
}

// metaContent returns the trimmed content of <meta property="..."> (or name="...").
func metaContent(doc *goquery.Document, property string) string {
	content, _ := doc.Find(fmt.Sprintf(`meta[property=%q]`, property)).First().Attr("content")
	if strings.TrimSpace(content) == "" {
		content, _ = doc.Find(fmt.Sprintf(`meta[name=%q]`, property)).First().Attr("content")
	}
	return strings.TrimSpace(content)
}

// titleTag returns the trimmed text of the first <title> element.
func titleTag(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// splitTitleAndArtist handles the common "Track Title by Artist on Service" page title shape.
func splitTitleAndArtist(text, serviceSuffix, separator string) (title, artist string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}

	if serviceSuffix != "" {
		text = strings.TrimSuffix(text, strings.TrimSpace(serviceSuffix))
		text = strings.TrimSpace(text)
	}

	if separator != "" && strings.Contains(text, separator) {
		parts := strings.SplitN(text, separator, expectedSplitParts)
		if len(parts) == expectedSplitParts {
			return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		}
	}

	return text, ""
}
