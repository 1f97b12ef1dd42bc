// SPDX-License-Identifier: MIT

package exi

import (
	"bytes"
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/slhost/exibridge/internal/config"
	"github.com/slhost/exibridge/internal/jukebox"
	"github.com/slhost/exibridge/internal/log"
	"github.com/slhost/exibridge/internal/report"
	"github.com/slhost/exibridge/internal/slippigg"
	"github.com/slhost/exibridge/internal/user"
)

// Config carries the per-device values the host supplies at construction.
// Process-wide tunables (endpoint, retry knobs) come from config.Load.
type Config struct {
	// UserFilePath is the credential file the user service watches.
	UserFilePath string
	// MediaPath is the media container the jukebox reads songs from.
	MediaPath string
	// Semver identifies the client build toward the remote endpoint.
	Semver string

	// EnableJukebox starts the jukebox at construction with the initial
	// volumes below. The host may also toggle it later via ConfigureJukebox.
	EnableJukebox              bool
	InitialDolphinSystemVolume uint8
	InitialDolphinMusicVolume  uint8

	// JukeboxSink overrides the audio output sink. Tests inject a fake so no
	// audio device is needed.
	JukeboxSink func() (jukebox.Sink, error)

	// Settings overrides the process-wide settings snapshot. Nil means
	// config.Load().
	Settings *config.Settings
}

// Device is the per-connection aggregate: one framer/response-buffer pair,
// one delivery pipeline, one credential service and an optional jukebox.
//
// Write and Read service the host bus and must be called from the emulation
// thread; they are additionally serialized by an internal mutex so a host
// that calls from multiple threads stays safe.
type Device struct {
	cfg      Config
	settings config.Settings
	logger   zerolog.Logger

	client   *slippigg.Client
	users    *user.Service
	reporter *report.Reporter

	mu      sync.Mutex
	framer  *Framer
	readBuf bytes.Buffer
	pending *report.GameReport
	jukebox *jukebox.Jukebox

	closeOnce sync.Once
	closeErr  error
}

// New constructs a Device with full configuration and starts its background
// services: the credential watcher and the delivery worker. The jukebox is
// started only when enabled. Call Close exactly once to tear everything down.
func New(cfg Config) (*Device, error) {
	settings := config.Load()
	if cfg.Settings != nil {
		settings = *cfg.Settings
	}

	logger := log.WithComponent("device")
	logger.Info().Str("semver", cfg.Semver).Msg("starting device")

	client := slippigg.New(settings.GraphQLEndpoint, cfg.Semver)

	users := user.NewService(cfg.UserFilePath, settings.LoginPageURL, client,
		user.WithInterval(settings.WatcherInterval))
	users.Watch()

	reporter := report.New(client, users, report.Config{
		MaxAttempts: settings.DeliveryMaxAttempts,
		BaseDelay:   settings.DeliveryBaseDelay,
		MaxDelay:    settings.DeliveryMaxDelay,
	})

	d := &Device{
		cfg:      cfg,
		settings: settings,
		logger:   logger,
		client:   client,
		users:    users,
		reporter: reporter,
		framer:   NewFramer(),
	}

	if cfg.EnableJukebox {
		d.ConfigureJukebox(true, cfg.InitialDolphinSystemVolume, cfg.InitialDolphinMusicVolume)
	}

	return d, nil
}

// Write services a host bus write: bytes go through the framer and every
// completed frame is dispatched. Never blocks on network or disk except for
// the explicitly synchronous login-attempt command.
func (d *Device) Write(p []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, frame := range d.framer.Feed(p) {
		d.dispatch(frame)
	}
}

// Read services a host bus read: up to len(p) response bytes are drained in
// FIFO order and any shortfall is zero-filled. Returns the number of real
// response bytes written; reading past the available bytes is never an error.
func (d *Device) Read(p []byte) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, _ := d.readBuf.Read(p)
	for i := n; i < len(p); i++ {
		p[i] = 0
	}
	return n
}

// ConfigureJukebox starts or stops the jukebox after construction. Disabling
// joins the playback goroutine before returning. Starting while one is
// already active is a no-op.
func (d *Device) ConfigureJukebox(enabled bool, systemVolume, musicVolume uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !enabled {
		if d.jukebox != nil {
			d.jukebox.Close()
			d.jukebox = nil
		}
		return
	}

	if d.jukebox != nil {
		d.logger.Warn().Msg("jukebox is already active")
		return
	}

	jb, err := jukebox.New(jukebox.Config{
		MediaPath:           d.cfg.MediaPath,
		InitialSystemVolume: systemVolume,
		InitialMusicVolume:  musicVolume,
		NewSink:             d.cfg.JukeboxSink,
	})
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to start jukebox")
		return
	}
	d.jukebox = jb
}

// Close tears the device down exactly once: the jukebox and credential
// watcher are signalled and joined, then the delivery queue gets the
// configured flush window before being abandoned. Subsequent calls return
// the first call's result.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		d.logger.Info().Msg("stopping device")

		d.mu.Lock()
		jb := d.jukebox
		d.jukebox = nil
		d.mu.Unlock()

		if jb != nil {
			jb.Close()
		}

		d.users.Close()

		ctx, cancel := context.WithTimeout(context.Background(), d.settings.FlushTimeout)
		defer cancel()
		d.closeErr = d.reporter.Close(ctx)

		d.client.CloseIdleConnections()
	})
	return d.closeErr
}
