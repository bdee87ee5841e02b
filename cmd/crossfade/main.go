// Package main provides the crossfade CLI application entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"crossfade/internal/core"
	"crossfade/internal/flood"
	httpserver "crossfade/internal/http"
	"crossfade/internal/resolver"
	"crossfade/internal/store"
	"crossfade/pkg/catalog"
	"crossfade/pkg/musiclink"
	"crossfade/pkg/odesli"
	"crossfade/pkg/platform"
	"crossfade/pkg/text"
)

const envPrefix = "CROSSFADE"

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "crossfade",
	Short: "crossfade - open any music or podcast link on your platform",
	Long: `crossfade resolves music and podcast links from one streaming platform to the
equivalent item on another, falling back to metadata scraping when the link resolution
API has no match. Resolutions are remembered in a local history.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the resolver as a JSON API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <url or shared text>",
	Short: "Resolve a link and print the outcome",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runResolve,
}

var fixCmd = &cobra.Command{
	Use:   "fix <original url> <selected url>",
	Short: "Resolve a history entry through a manually selected link",
	Args:  cobra.ExactArgs(2),
	RunE:  runFix,
}

var saveCmd = &cobra.Command{
	Use:   "save <url>",
	Short: "Remember a link as unresolved",
	Args:  cobra.ExactArgs(1),
	RunE:  runSave,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the resolution history, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var forgetCmd = &cobra.Command{
	Use:   "forget <url>",
	Short: "Remove a link from the history",
	Args:  cobra.ExactArgs(1),
	RunE:  runForget,
}

var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search the music catalog for manual fixing",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var envExampleCmd = &cobra.Command{
	Use:   "env-example",
	Short: "Print an example .env file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := io.WriteString(cmd.OutOrStdout(), generateEnvExampleContent(rootCmd.PersistentFlags()))
		return err
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := core.DefaultConfig()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "", "config file (default is .env)")
	flags.String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")
	flags.String("log-format", defaults.Log.Format, "log format (json, console)")

	flags.String("odesli-base-url", odesli.DefaultBaseURL, "Link resolution API base URL")
	flags.String("user-agent", "", "User-Agent sent to the link resolution API")
	flags.String("user-country", "", "ISO country code passed to the link resolution API")
	flags.Bool("song-if-single", defaults.Resolver.SongIfSingle, "Prefer the song over a single-track album")
	flags.Bool("oembed-extended", defaults.Resolver.OEmbedExtended, "Also query YouTube and SoundCloud oEmbed")
	flags.Duration("request-timeout", defaults.Resolver.RequestTimeout, "Timeout for outbound HTTP requests")
	flags.Int("manual-attempts", defaults.Resolver.ManualAttempts, "Attempts for manual resolution")
	flags.Duration("manual-retry-delay", defaults.Resolver.ManualRetryDelay, "Delay between manual resolution attempts")

	flags.String("store-path", defaults.Store.Path, "SQLite history database (:memory: for ephemeral)")
	flags.Int("cache-size", defaults.Store.CacheSize, "History records kept in memory")
	flags.Float64("bloom-false-positive-rate", defaults.Store.BloomFalsePositiveRate,
		"False positive rate of the history URL filter")

	flags.String("catalog-country", "", "Storefront for catalog search")
	flags.Int("catalog-limit", defaults.Catalog.Limit, "Maximum catalog search results")
	flags.Bool("spotify-enabled", false, "Also search the Spotify catalog")
	flags.String("spotify-client-id", "", "Spotify client ID")
	flags.String("spotify-client-secret", "", "Spotify client secret")

	flags.String("server-host", defaults.Server.Host, "HTTP server host")
	flags.Int("server-port", defaults.Server.Port, "HTTP server port")
	flags.Duration("server-read-timeout", defaults.Server.ReadTimeout, "HTTP server read timeout")
	flags.Duration("server-write-timeout", defaults.Server.WriteTimeout, "HTTP server write timeout")

	flags.String("default-platform", defaults.App.DefaultPlatform, "Music platform links open on")
	flags.String("default-podcast-platform", defaults.App.DefaultPodcastPlatform, "Podcast platform links open on")
	flags.Int("rate-limit-per-minute", defaults.App.RateLimitPerMinute,
		"API requests per client and route per minute (0 disables)")

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding flags: %v\n", err)
		os.Exit(1)
	}

	resolveCmd.Flags().String("platform", "", "Target platform (default: --default-platform)")
	fixCmd.Flags().String("title", "", "Title to keep if the selected link cannot be resolved")
	fixCmd.Flags().String("artist", "", "Artist to keep if the selected link cannot be resolved")
	fixCmd.Flags().String("thumbnail", "", "Thumbnail to keep if the selected link cannot be resolved")
	historyCmd.Flags().Bool("watch", false, "Keep printing the history as it changes")
	historyCmd.Flags().Bool("clear", false, "Delete the whole history")
	searchCmd.Flags().String("kind", string(catalog.KindSong), "What to search for (song, album, pod, episode)")

	rootCmd.AddCommand(serveCmd, resolveCmd, fixCmd, saveCmd, forgetCmd, historyCmd, searchCmd, envExampleCmd)
}

func initConfig() {
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil && cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Warning: could not load %s: %v\n", envFile, err)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(config.Log)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	cfg.Log.Level = viper.GetString("log-level")
	cfg.Log.Format = viper.GetString("log-format")

	cfg.Resolver.OdesliBaseURL = viper.GetString("odesli-base-url")
	cfg.Resolver.UserAgent = viper.GetString("user-agent")
	cfg.Resolver.UserCountry = viper.GetString("user-country")
	cfg.Resolver.SongIfSingle = viper.GetBool("song-if-single")
	cfg.Resolver.OEmbedExtended = viper.GetBool("oembed-extended")
	cfg.Resolver.RequestTimeout = viper.GetDuration("request-timeout")
	cfg.Resolver.ManualAttempts = viper.GetInt("manual-attempts")
	cfg.Resolver.ManualRetryDelay = viper.GetDuration("manual-retry-delay")

	cfg.Store.Path = viper.GetString("store-path")
	cfg.Store.CacheSize = viper.GetInt("cache-size")
	cfg.Store.BloomFalsePositiveRate = viper.GetFloat64("bloom-false-positive-rate")

	cfg.Catalog.Country = viper.GetString("catalog-country")
	cfg.Catalog.Limit = viper.GetInt("catalog-limit")
	cfg.Catalog.SpotifyEnabled = viper.GetBool("spotify-enabled")
	cfg.Catalog.SpotifyClientID = viper.GetString("spotify-client-id")
	cfg.Catalog.SpotifyClientSecret = viper.GetString("spotify-client-secret")

	cfg.Server.Host = viper.GetString("server-host")
	if cfg.Server.Host == "" {
		cfg.Server.Host = core.DefaultServerHost
	}
	cfg.Server.Port = viper.GetInt("server-port")
	cfg.Server.ReadTimeout = viper.GetDuration("server-read-timeout")
	cfg.Server.WriteTimeout = viper.GetDuration("server-write-timeout")

	cfg.App.DefaultPlatform = viper.GetString("default-platform")
	cfg.App.DefaultPodcastPlatform = viper.GetString("default-podcast-platform")
	cfg.App.RateLimitPerMinute = viper.GetInt("rate-limit-per-minute")

	return cfg
}

func buildLogger(cfg core.LogConfig) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	if cfg.Format == "console" {
		zapCfg.Encoding = "console"
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	builtLogger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}

	return builtLogger
}

func validateConfig(cfg *core.Config) error {
	if info, ok := platform.ByID(cfg.App.DefaultPlatform); !ok || strings.HasPrefix(info.ID, "podcast_") {
		return fmt.Errorf("unknown music platform %q", cfg.App.DefaultPlatform)
	}
	if _, ok := platform.ByID(cfg.App.DefaultPodcastPlatform); !ok ||
		!strings.HasPrefix(cfg.App.DefaultPodcastPlatform, "podcast_") {
		return fmt.Errorf("unknown podcast platform %q", cfg.App.DefaultPodcastPlatform)
	}
	if cfg.Store.Path == "" {
		return errors.New("store path is required")
	}
	if cfg.Store.CacheSize <= 0 {
		return fmt.Errorf("cache size must be positive, got %d", cfg.Store.CacheSize)
	}
	if cfg.Store.BloomFalsePositiveRate <= 0 || cfg.Store.BloomFalsePositiveRate >= 1 {
		return fmt.Errorf("bloom false positive rate must be in (0, 1), got %v", cfg.Store.BloomFalsePositiveRate)
	}
	if cfg.Resolver.ManualAttempts < 1 {
		return fmt.Errorf("manual attempts must be at least 1, got %d", cfg.Resolver.ManualAttempts)
	}
	if cfg.Catalog.SpotifyEnabled && (cfg.Catalog.SpotifyClientID == "" || cfg.Catalog.SpotifyClientSecret == "") {
		return errors.New("spotify client ID and secret are required when Spotify search is enabled")
	}
	return nil
}

// services is everything a command needs; close releases the database.
type services struct {
	sqlite   *store.SQLiteStore
	history  *store.CachedStore
	resolver *resolver.LinkResolver
	registry *prometheus.Registry
}

func (s *services) close() {
	if err := s.sqlite.Close(); err != nil {
		logger.Debug("Failed to close history store", zap.Error(err))
	}
}

func initializeServices(ctx context.Context) (*services, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	sqlite, err := store.OpenSQLite(ctx, config.Store.Path, logger)
	if err != nil {
		return nil, err
	}

	history, err := store.NewCachedStore(ctx, sqlite, config.Store.CacheSize, config.Store.BloomFalsePositiveRate)
	if err != nil {
		_ = sqlite.Close()
		return nil, fmt.Errorf("failed to create history cache: %w", err)
	}

	searcher, err := createCatalog(ctx)
	if err != nil {
		_ = sqlite.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := resolver.NewMetrics(registry)

	client := &http.Client{Timeout: config.Resolver.RequestTimeout}
	fallback := resolver.NewFallbackResolver(resolver.FallbackDeps{
		Store:    history,
		Scrapers: musiclink.NewManager(client),
		OEmbed:   musiclink.NewOEmbedClient(client, config.Resolver.OEmbedExtended),
		Pages:    musiclink.NewPageScraper(client),
		Metrics:  metrics,
	}, logger)

	linkResolver := resolver.New(resolver.Deps{
		Store: history,
		Primary: odesli.NewClient(odesli.Options{
			BaseURL:      config.Resolver.OdesliBaseURL,
			UserAgent:    config.Resolver.UserAgent,
			UserCountry:  config.Resolver.UserCountry,
			SongIfSingle: config.Resolver.SongIfSingle,
			HTTPClient:   client,
		}),
		Fallback: fallback,
		Expander: musiclink.NewShortLinkExpander(client),
		Catalog:  searcher,
		Metrics:  metrics,
	}, resolver.Options{
		ManualAttempts:   config.Resolver.ManualAttempts,
		ManualRetryDelay: config.Resolver.ManualRetryDelay,
	}, logger)

	return &services{
		sqlite:   sqlite,
		history:  history,
		resolver: linkResolver,
		registry: registry,
	}, nil
}

func createCatalog(ctx context.Context) (catalog.Searcher, error) {
	searchers := []catalog.Searcher{
		catalog.NewITunesSearcher(catalog.ITunesOptions{
			Country:    config.Catalog.Country,
			Limit:      config.Catalog.Limit,
			HTTPClient: &http.Client{Timeout: config.Resolver.RequestTimeout},
		}),
	}

	if config.Catalog.SpotifyEnabled {
		spotifySearcher, err := catalog.NewSpotifySearcher(ctx, catalog.SpotifyOptions{
			ClientID:     config.Catalog.SpotifyClientID,
			ClientSecret: config.Catalog.SpotifyClientSecret,
			Market:       config.Catalog.Country,
			Limit:        config.Catalog.Limit,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Spotify searcher: %w", err)
		}
		searchers = append(searchers, spotifySearcher)
		logger.Info("Spotify catalog search enabled")
	}

	return catalog.NewRanked(logger, searchers...), nil
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting crossfade",
		zap.String("store", config.Store.Path),
		zap.String("default_platform", config.App.DefaultPlatform),
		zap.String("default_podcast_platform", config.App.DefaultPodcastPlatform),
		zap.Bool("spotify_search", config.Catalog.SpotifyEnabled))

	svcs, err := initializeServices(ctx)
	if err != nil {
		return err
	}
	defer svcs.close()

	gate := flood.New(config.App.RateLimitPerMinute)
	defer gate.Stop()

	server := httpserver.NewServer(&config.Server, svcs.resolver, httpserver.Options{
		App:        config.App,
		Gate:       gate,
		Registerer: svcs.registry,
		Gatherer:   svcs.registry,
		Ready:      svcs.sqlite.Ping,
	}, logger)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start(gCtx)
	})

	g.Go(func() error {
		return logHistoryChanges(gCtx, svcs.history)
	})

	logger.Info("crossfade started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("crossfade stopped with error", zap.Error(err))
		return err
	}

	logger.Info("crossfade stopped gracefully")
	return nil
}

// logHistoryChanges reports the history size whenever it changes until ctx is done.
func logHistoryChanges(ctx context.Context, history store.HistoryStore) error {
	updates, err := history.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch history: %w", err)
	}
	for records := range updates {
		unresolved := 0
		for i := range records {
			if !records[i].IsResolved {
				unresolved++
			}
		}
		logger.Debug("History changed",
			zap.Int("records", len(records)),
			zap.Int("unresolved", unresolved))
	}
	return nil
}

// commandOutcome is what resolve and fix print.
type commandOutcome struct {
	resolver.Outcome
	TargetURL string `json:"targetUrl,omitempty"`
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	link, ok := text.ExtractURL(strings.Join(args, " "))
	if !ok {
		return fmt.Errorf("no link found in %q", strings.Join(args, " "))
	}

	musicTarget, podcastTarget := config.App.DefaultPlatform, config.App.DefaultPodcastPlatform
	if p, _ := cmd.Flags().GetString("platform"); p != "" {
		if _, known := platform.ByID(p); !known {
			return fmt.Errorf("unknown platform %q", p)
		}
		if strings.HasPrefix(p, "podcast_") {
			podcastTarget = p
		} else {
			musicTarget = p
		}
	}

	svcs, err := initializeServices(ctx)
	if err != nil {
		return err
	}
	defer svcs.close()

	out := svcs.resolver.ResolveLink(ctx, link)
	if out.Kind == resolver.OutcomeError {
		if saveErr := svcs.resolver.SaveUnresolvedLink(ctx, link); saveErr != nil {
			logger.Warn("Failed to remember unresolved link", zap.String("url", link), zap.Error(saveErr))
		}
	}

	if err := printJSON(cmd.OutOrStdout(), commandOutcome{
		Outcome:   out,
		TargetURL: resolver.TargetFor(out, musicTarget, podcastTarget),
	}); err != nil {
		return err
	}
	if out.Kind == resolver.OutcomeError {
		return errors.New(out.Message)
	}
	return nil
}

func runFix(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svcs, err := initializeServices(ctx)
	if err != nil {
		return err
	}
	defer svcs.close()

	record, err := svcs.history.GetByURL(ctx, args[0])
	switch {
	case errors.Is(err, store.ErrNotFound):
		record = &store.HistoryRecord{OriginalURL: args[0]}
	case err != nil:
		return fmt.Errorf("failed to load history entry: %w", err)
	}

	req := resolver.ManualRequest{Record: *record, SelectedURL: args[1]}
	req.FallbackTitle, _ = cmd.Flags().GetString("title")
	req.FallbackArtist, _ = cmd.Flags().GetString("artist")
	req.FallbackThumbnail, _ = cmd.Flags().GetString("thumbnail")

	out := svcs.resolver.ResolveManual(ctx, req)
	if err := printJSON(cmd.OutOrStdout(), commandOutcome{
		Outcome:   out,
		TargetURL: resolver.TargetFor(out, config.App.DefaultPlatform, config.App.DefaultPodcastPlatform),
	}); err != nil {
		return err
	}
	if out.Kind == resolver.OutcomeError {
		return errors.New(out.Message)
	}
	return nil
}

func runSave(cmd *cobra.Command, args []string) error {
	link, ok := text.ExtractURL(args[0])
	if !ok {
		return fmt.Errorf("no link found in %q", args[0])
	}

	svcs, err := initializeServices(cmd.Context())
	if err != nil {
		return err
	}
	defer svcs.close()

	return svcs.resolver.SaveUnresolvedLink(cmd.Context(), link)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svcs, err := initializeServices(ctx)
	if err != nil {
		return err
	}
	defer svcs.close()

	if clearAll, _ := cmd.Flags().GetBool("clear"); clearAll {
		if err := svcs.history.ClearAll(ctx); err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		logger.Info("History cleared")
		return nil
	}

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		updates, err := svcs.history.Watch(ctx)
		if err != nil {
			return err
		}
		for records := range updates {
			if err := printJSON(cmd.OutOrStdout(), records); err != nil {
				return err
			}
		}
		return nil
	}

	records, err := svcs.resolver.History(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), records)
}

func runForget(cmd *cobra.Command, args []string) error {
	svcs, err := initializeServices(cmd.Context())
	if err != nil {
		return err
	}
	defer svcs.close()

	record, err := svcs.history.GetByURL(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to find %s: %w", args[0], err)
	}
	return svcs.history.Delete(cmd.Context(), record)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svcs, err := initializeServices(ctx)
	if err != nil {
		return err
	}
	defer svcs.close()

	kind, _ := cmd.Flags().GetString("kind")
	results, err := svcs.resolver.SearchCatalog(ctx, strings.Join(args, " "), catalog.ParseKind(kind))
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), results)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func generateEnvExampleContent(flags *pflag.FlagSet) string {
	var content strings.Builder
	content.WriteString("# crossfade configuration\n")
	content.WriteString("# Every flag can be set as " + envPrefix + "_<FLAG_NAME> in the environment or in .env\n\n")

	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		fmt.Fprintf(&content, "# %s\n%s=%s\n\n", f.Usage, flagToEnvVar(f.Name), f.DefValue)
	})

	return content.String()
}

func flagToEnvVar(flagName string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}
