package core

import (
	"testing"

	"crossfade/pkg/platform"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Resolver.ManualAttempts != DefaultManualAttempts {
		t.Errorf("Expected %d manual attempts, got %d", DefaultManualAttempts, config.Resolver.ManualAttempts)
	}

	if config.Resolver.ManualRetryDelay != DefaultManualRetryDelay {
		t.Errorf("Expected manual retry delay %v, got %v", DefaultManualRetryDelay, config.Resolver.ManualRetryDelay)
	}

	if config.Resolver.OEmbedExtended {
		t.Error("Expected extended oEmbed providers to be disabled by default")
	}

	if config.Catalog.SpotifyEnabled {
		t.Error("Expected Spotify catalog search to require explicit configuration")
	}

	if _, ok := platform.ByID(config.App.DefaultPlatform); !ok {
		t.Errorf("Default platform %q is not registered", config.App.DefaultPlatform)
	}
}

func TestConfigConstants(t *testing.T) {
	if DefaultServerPort <= 0 || DefaultServerPort > 65535 {
		t.Error("DefaultServerPort should be a valid port number")
	}

	if DefaultBloomFalsePositive <= 0 || DefaultBloomFalsePositive >= 1 {
		t.Error("DefaultBloomFalsePositive should be a probability")
	}

	if DefaultManualAttempts < 1 {
		t.Error("DefaultManualAttempts should allow at least one attempt")
	}
}
