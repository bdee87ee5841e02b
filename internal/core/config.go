// Package core holds the application configuration shared by the CLI and the HTTP surface.
package core

import (
	"time"

	"crossfade/pkg/platform"
)

const (
	DefaultServerPort          = 8080
	DefaultServerHost          = "0.0.0.0"
	DefaultStorePath           = "./crossfade.db"
	DefaultCacheSize           = 1024
	DefaultBloomFalsePositive  = 0.001
	DefaultManualAttempts      = 2
	DefaultManualRetryDelay    = 1500 * time.Millisecond
	DefaultRequestTimeout      = 15 * time.Second
	DefaultCatalogLimit        = 20
	DefaultRateLimitPerMinute  = 30
	DefaultServerTimeout       = 30 * time.Second
	DefaultShutdownGracePeriod = 5 * time.Second
)

type Config struct {
	Resolver ResolverConfig
	Store    StoreConfig
	Catalog  CatalogConfig
	Server   ServerConfig
	Log      LogConfig
	App      AppConfig
}

type ResolverConfig struct {
	OdesliBaseURL    string
	UserAgent        string
	UserCountry      string
	SongIfSingle     bool
	OEmbedExtended   bool // Also ask YouTube and SoundCloud oEmbed endpoints.
	RequestTimeout   time.Duration
	ManualAttempts   int
	ManualRetryDelay time.Duration
}

type StoreConfig struct {
	Path                   string // SQLite file; ":memory:" for an ephemeral store.
	CacheSize              int
	BloomFalsePositiveRate float64
}

type CatalogConfig struct {
	Country             string
	Limit               int
	SpotifyEnabled      bool
	SpotifyClientID     string
	SpotifyClientSecret string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type AppConfig struct {
	DefaultPlatform        string // Target for music links, see platform.All.
	DefaultPodcastPlatform string // Target for podcast links, see platform.Podcasts.
	RateLimitPerMinute     int    // Per client address on the HTTP API.
}

func DefaultConfig() *Config {
	return &Config{
		Resolver: ResolverConfig{
			SongIfSingle:     true,
			RequestTimeout:   DefaultRequestTimeout,
			ManualAttempts:   DefaultManualAttempts,
			ManualRetryDelay: DefaultManualRetryDelay,
		},
		Store: StoreConfig{
			Path:                   DefaultStorePath,
			CacheSize:              DefaultCacheSize,
			BloomFalsePositiveRate: DefaultBloomFalsePositive,
		},
		Catalog: CatalogConfig{
			Limit: DefaultCatalogLimit,
		},
		Server: ServerConfig{
			Host:         DefaultServerHost,
			Port:         DefaultServerPort,
			ReadTimeout:  DefaultServerTimeout,
			WriteTimeout: DefaultServerTimeout,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		App: AppConfig{
			DefaultPlatform:        platform.Spotify,
			DefaultPodcastPlatform: platform.PodcastWeb,
			RateLimitPerMinute:     DefaultRateLimitPerMinute,
		},
	}
}
