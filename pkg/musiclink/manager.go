package musiclink

import (
	"context"
	"net/http"
)

// Manager coordinates the platform page scrapers.
type Manager struct {
	resolvers []Resolver
}

// NewManager creates a manager with the Shazam, Amazon Music and Tidal scrapers.
// All scrapers share client; nil gives each its own default client.
func NewManager(client *http.Client) *Manager {
	return NewManagerWith(
		NewShazamResolver(client),
		NewAmazonMusicResolver(client),
		NewTidalResolver(client),
	)
}

// NewManagerWith creates a manager over the given resolvers, tried in order.
func NewManagerWith(resolvers ...Resolver) *Manager {
	return &Manager{resolvers: resolvers}
}

// Resolve attempts to resolve a music link using the first resolver that accepts it.
func (m *Manager) Resolve(ctx context.Context, url string) (*TrackInfo, error) {
	for _, resolver := range m.resolvers {
		if resolver.CanResolve(url) {
			return resolver.Resolve(ctx, url)
		}
	}

	return nil, ErrNoResolver
}

// CanResolve checks if any resolver can handle the given URL.
func (m *Manager) CanResolve(url string) bool {
	for _, resolver := range m.resolvers {
		if resolver.CanResolve(url) {
			return true
		}
	}
	return false
}
