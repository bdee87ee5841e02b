package musiclink

import (
	"context"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// PageScrapeTimeout is the timeout for generic page scrapes.
const PageScrapeTimeout = 5 * time.Second

// PageMeta is the OpenGraph metadata of a web page.
type PageMeta struct {
	Title       string // og:title, or the <title> text when absent.
	Image       string // og:image.
	Description string // og:description.
	SiteName    string // og:site_name.
}

// ParsePageMeta extracts OpenGraph metadata from a parsed document.
func ParsePageMeta(doc *goquery.Document) *PageMeta {
	meta := &PageMeta{
		Title:       metaContent(doc, "og:title"),
		Image:       metaContent(doc, "og:image"),
		Description: metaContent(doc, "og:description"),
		SiteName:    metaContent(doc, "og:site_name"),
	}
	if meta.Title == "" {
		meta.Title = titleTag(doc)
	}
	return meta
}

// PageScraper fetches arbitrary pages and reads their OpenGraph tags.
type PageScraper struct {
	client *http.Client
}

// NewPageScraper creates a page scraper. A nil client gets the default scrape timeout.
func NewPageScraper(client *http.Client) *PageScraper {
	if client == nil {
		client = newHTTPClient(PageScrapeTimeout)
	}
	return &PageScraper{client: client}
}

// Scrape fetches pageURL and returns its metadata.
func (s *PageScraper) Scrape(ctx context.Context, pageURL string) (*PageMeta, error) {
	doc, err := fetchDocument(ctx, s.client, pageURL, "page")
	if err != nil {
		return nil, err
	}
	return ParsePageMeta(doc), nil
}
