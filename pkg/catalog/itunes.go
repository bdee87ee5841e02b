package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	// ITunesBaseURL is the public iTunes Search API host.
	ITunesBaseURL = "https://itunes.apple.com"
	// ITunesRequestTimeout is the timeout for iTunes API requests.
	ITunesRequestTimeout = 10 * time.Second
	// DefaultLimit is the number of results requested per search.
	DefaultLimit = 20

	sourceITunes = "itunes"
	unknownTitle = "Unknown"
)

// iTunesSearchResponse represents the response from the iTunes search API.
type iTunesSearchResponse struct {
	ResultCount int            `json:"resultCount"`
	Results     []iTunesResult `json:"results"`
}

type iTunesResult struct {
	WrapperType       string `json:"wrapperType"`
	Kind              string `json:"kind"`
	ArtistName        string `json:"artistName"`
	CollectionName    string `json:"collectionName"`
	TrackName         string `json:"trackName"`
	ArtworkURL100     string `json:"artworkUrl100"`
	TrackViewURL      string `json:"trackViewUrl"`
	CollectionViewURL string `json:"collectionViewUrl"`
}

// ITunesOptions configures an ITunesSearcher.
type ITunesOptions struct {
	BaseURL    string
	Country    string // Optional storefront, e.g. "US".
	Limit      int
	HTTPClient *http.Client
}

// ITunesSearcher queries the iTunes Search API.
type ITunesSearcher struct {
	baseURL string
	country string
	limit   int
	client  *http.Client
}

// NewITunesSearcher creates an iTunes searcher; zero options take the public defaults.
func NewITunesSearcher(opts ITunesOptions) *ITunesSearcher {
	s := &ITunesSearcher{
		baseURL: opts.BaseURL,
		country: opts.Country,
		limit:   opts.Limit,
		client:  opts.HTTPClient,
	}
	if s.baseURL == "" {
		s.baseURL = ITunesBaseURL
	}
	if s.limit <= 0 {
		s.limit = DefaultLimit
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: ITunesRequestTimeout}
	}
	return s
}

// iTunesEntity maps a Kind to the API's entity parameter.
func iTunesEntity(kind Kind) string {
	switch kind {
	case KindAlbum:
		return "album"
	case KindPodcast:
		return "podcast"
	case KindEpisode:
		return "podcastEpisode"
	default:
		return "song"
	}
}

// Search runs a term search. Hits without a view URL are skipped.
func (s *ITunesSearcher) Search(ctx context.Context, term string, kind Kind) ([]Result, error) {
	query := url.Values{}
	query.Set("term", term)
	query.Set("entity", iTunesEntity(kind))
	query.Set("limit", strconv.Itoa(s.limit))
	if s.country != "" {
		query.Set("country", s.country)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search?"+query.Encode(), http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("iTunes API returned status %d", resp.StatusCode)
	}

	var searchResp iTunesSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode iTunes response: %w", err)
	}

	results := make([]Result, 0, len(searchResp.Results))
	for i := range searchResp.Results {
		if result, ok := convertITunesResult(&searchResp.Results[i], kind); ok {
			results = append(results, result)
		}
	}
	return results, nil
}

func convertITunesResult(r *iTunesResult, kind Kind) (Result, bool) {
	link := firstNonEmpty(r.TrackViewURL, r.CollectionViewURL)
	if link == "" {
		return Result{}, false
	}
	return Result{
		Title:      firstNonEmpty(r.TrackName, r.CollectionName, unknownTitle),
		Artist:     r.ArtistName,
		URL:        link,
		ArtworkURL: r.ArtworkURL100,
		Kind:       kind,
		Source:     sourceITunes,
	}, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
