// SPDX-License-Identifier: MIT

// Package user owns the authenticated-user record and keeps it in sync with
// the credential file on disk. Presence of a parseable credential file is the
// authentication signal; deleting the file logs the user out.
package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/slhost/exibridge/internal/log"
)

// UserInfo is the credential record. It mirrors the JSON layout of the
// credential file written by the launcher.
type UserInfo struct {
	UID           string   `json:"uid"`
	PlayKey       string   `json:"playKey"`
	DisplayName   string   `json:"displayName"`
	ConnectCode   string   `json:"connectCode"`
	LatestVersion string   `json:"latestVersion"`
	Port          int64    `json:"port"`
	ChatMessages  []string `json:"chatMessages"`
}

// Validator checks a credential pair against the remote service and reports
// the latest known client version.
type Validator interface {
	ValidateUser(ctx context.Context, uid, playKey string) (latestVersion string, err error)
}

// Service manages the current-user record plus the background file watcher.
// All methods are safe for concurrent use; reads take a short-lived snapshot
// and writes are serialized.
type Service struct {
	path         string
	validator    Validator
	interval     time.Duration
	loginPageURL string
	openURL      func(url string) error
	logger       zerolog.Logger

	mu   sync.RWMutex
	info *UserInfo

	watchMu sync.Mutex
	quit    chan struct{}
	done    chan struct{}
}

// Option configures a Service.
type Option func(*Service)

// WithOpener overrides how the login page URL is opened. Used by tests.
func WithOpener(open func(url string) error) Option {
	return func(s *Service) { s.openURL = open }
}

// WithInterval overrides the watcher poll interval.
func WithInterval(d time.Duration) Option {
	return func(s *Service) { s.interval = d }
}

// NewService returns a credential service for the file at path. The validator
// may be nil, in which case login attempts succeed on file presence alone.
// Call Watch to start the background watcher and Close to stop it.
func NewService(path, loginPageURL string, validator Validator, opts ...Option) *Service {
	s := &Service{
		path:         path,
		validator:    validator,
		interval:     500 * time.Millisecond,
		loginPageURL: loginPageURL,
		openURL:      openBrowser,
		logger:       log.WithComponent("user"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.refresh()
	return s
}

// AttemptLogin re-reads the credential file and, when a validator is
// configured, checks the credentials against the remote service.
//
// This is the one deliberately blocking call in the command surface: the
// protocol demands a synchronous boolean, so the caller's thread waits on the
// network round trip.
func (s *Service) AttemptLogin(ctx context.Context) bool {
	s.refresh()

	info, ok := s.Get()
	if !ok {
		return false
	}

	if s.validator == nil {
		return true
	}

	latest, err := s.validator.ValidateUser(ctx, info.UID, info.PlayKey)
	if err != nil {
		s.logger.Warn().Err(err).Str("uid", info.UID).Msg("login validation failed")
		return false
	}
	if latest != "" {
		s.OverwriteLatestVersion(latest)
	}
	return true
}

// OpenLoginPage opens the login page in the user's browser.
func (s *Service) OpenLoginPage() {
	if err := s.openURL(s.loginPageURL); err != nil {
		s.logger.Error().Err(err).Str("url", s.loginPageURL).Msg("failed to open login page")
	}
}

// IsLoggedIn reports whether a credential record is currently loaded.
func (s *Service) IsLoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info != nil
}

// Get returns a snapshot of the current user record.
func (s *Service) Get() (UserInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.info == nil {
		return UserInfo{}, false
	}
	snapshot := *s.info
	snapshot.ChatMessages = append([]string(nil), s.info.ChatMessages...)
	return snapshot, true
}

// Credentials returns the uid/play-key pair for delivery payloads. Both are
// empty when nobody is logged in.
func (s *Service) Credentials() (uid, playKey string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.info == nil {
		return "", ""
	}
	return s.info.UID, s.info.PlayKey
}

// OverwriteLatestVersion force-sets the latest known client version. No-op
// when nobody is logged in.
func (s *Service) OverwriteLatestVersion(version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info != nil {
		s.info.LatestVersion = version
	}
}

// Logout deletes the credential file and clears the in-memory record.
func (s *Service) Logout() {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Error().Err(err).Str("path", s.path).Msg("failed to remove credential file")
	}

	s.mu.Lock()
	s.info = nil
	s.mu.Unlock()

	s.logger.Info().Msg("logged out")
}

// ChatMessages returns the user's customized chat catalog, falling back to
// the default catalog when none is set.
func (s *Service) ChatMessages() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.info != nil && len(s.info.ChatMessages) > 0 {
		return append([]string(nil), s.info.ChatMessages...)
	}
	return DefaultChatMessages()
}

// refresh loads the credential file state into memory. Missing file means
// logged out; a malformed file is logged and treated as no change.
func (s *Service) refresh() {
	data, err := os.ReadFile(s.path) // #nosec G304 -- path fixed at construction
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Error().Err(err).Str("path", s.path).Msg("unable to read credential file")
			return
		}

		s.mu.Lock()
		wasLoggedIn := s.info != nil
		s.info = nil
		s.mu.Unlock()

		if wasLoggedIn {
			s.logger.Info().Msg("credential file removed, user logged out")
		}
		return
	}

	var info UserInfo
	if err := json.Unmarshal(data, &info); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("malformed credential file, keeping previous state")
		return
	}
	if info.UID == "" {
		s.logger.Warn().Str("path", s.path).Msg("credential file missing uid, keeping previous state")
		return
	}

	s.mu.Lock()
	wasLoggedIn := s.info != nil
	// The file does not carry the latest-version field; it is learned from the
	// server. Keep it across reloads of the same user.
	if wasLoggedIn && info.LatestVersion == "" && s.info.UID == info.UID {
		info.LatestVersion = s.info.LatestVersion
	}
	s.info = &info
	s.mu.Unlock()

	if !wasLoggedIn {
		s.logger.Info().Str("uid", info.UID).Str("connect_code", info.ConnectCode).Msg("user logged in")
	}
}

// validatePath guards against constructing a service with an empty path,
// which would otherwise silently watch the working directory.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("credential file path is empty")
	}
	return nil
}
