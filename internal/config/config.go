// SPDX-License-Identifier: MIT

// Package config resolves process-wide settings for the bridge exactly once.
//
// Settings come from three layers, lowest precedence first: compiled-in
// defaults, an optional TOML file named by EXIBRIDGE_CONFIG_FILE, and
// EXIBRIDGE_* environment variables. The resolved snapshot is read-only for
// the remainder of the process.
package config

import (
	"os"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/slhost/exibridge/internal/log"
)

// Settings holds every process-wide tunable. Per-device values (paths,
// volumes, feature flags) travel in exi.Config instead.
type Settings struct {
	// GraphQLEndpoint is the remote report endpoint all delivery jobs post to.
	GraphQLEndpoint string `toml:"graphql_endpoint"`

	// LoginPageURL is opened in the user's browser on the open-login-page command.
	LoginPageURL string `toml:"login_page_url"`

	// DeliveryMaxAttempts caps how often a single job is retried before it
	// is dropped. During shutdown flush every job gets exactly one attempt.
	DeliveryMaxAttempts int `toml:"delivery_max_attempts"`

	// DeliveryBaseDelay is the first retry wait; it doubles per attempt.
	DeliveryBaseDelay time.Duration `toml:"delivery_base_delay"`

	// DeliveryMaxDelay caps the per-wait retry delay.
	DeliveryMaxDelay time.Duration `toml:"delivery_max_delay"`

	// FlushTimeout bounds how long device destruction waits for the delivery
	// queue to drain before abandoning it.
	FlushTimeout time.Duration `toml:"flush_timeout"`

	// WatcherInterval is the credential file poll interval.
	WatcherInterval time.Duration `toml:"watcher_interval"`
}

var (
	loadOnce sync.Once
	loaded   Settings
)

func defaults() Settings {
	return Settings{
		GraphQLEndpoint:     "https://internal.slippi.gg/graphql",
		LoginPageURL:        "https://slippi.gg/online/enable",
		DeliveryMaxAttempts: 5,
		DeliveryBaseDelay:   500 * time.Millisecond,
		DeliveryMaxDelay:    8 * time.Second,
		FlushTimeout:        3 * time.Second,
		WatcherInterval:     500 * time.Millisecond,
	}
}

// Load resolves the process settings exactly once and returns the snapshot.
// Subsequent calls return the same values regardless of environment changes.
func Load() Settings {
	loadOnce.Do(func() {
		loaded = resolve()
	})
	return loaded
}

// resolve builds a Settings snapshot from defaults, optional TOML file and
// environment, in that order. Extracted for testability; production code goes
// through Load.
func resolve() Settings {
	logger := log.WithComponent("config")
	s := defaults()

	if path := os.Getenv("EXIBRIDGE_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator-provided path
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("cannot read config file, continuing with defaults")
		} else if err := toml.Unmarshal(data, &s); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("cannot parse config file, continuing with defaults")
			s = defaults()
		}
	}

	s.GraphQLEndpoint = ParseString("EXIBRIDGE_GRAPHQL_ENDPOINT", s.GraphQLEndpoint)
	s.LoginPageURL = ParseString("EXIBRIDGE_LOGIN_PAGE_URL", s.LoginPageURL)
	s.DeliveryMaxAttempts = ParseInt("EXIBRIDGE_DELIVERY_MAX_ATTEMPTS", s.DeliveryMaxAttempts)
	s.DeliveryBaseDelay = ParseDuration("EXIBRIDGE_DELIVERY_BASE_DELAY", s.DeliveryBaseDelay)
	s.DeliveryMaxDelay = ParseDuration("EXIBRIDGE_DELIVERY_MAX_DELAY", s.DeliveryMaxDelay)
	s.FlushTimeout = ParseDuration("EXIBRIDGE_DELIVERY_FLUSH_TIMEOUT", s.FlushTimeout)
	s.WatcherInterval = ParseDuration("EXIBRIDGE_WATCHER_INTERVAL", s.WatcherInterval)

	if s.DeliveryMaxAttempts < 1 {
		logger.Warn().Int("value", s.DeliveryMaxAttempts).Msg("delivery max attempts below 1, clamping")
		s.DeliveryMaxAttempts = 1
	}
	if s.FlushTimeout <= 0 {
		s.FlushTimeout = defaults().FlushTimeout
	}
	if s.WatcherInterval <= 0 {
		s.WatcherInterval = defaults().WatcherInterval
	}

	return s
}
