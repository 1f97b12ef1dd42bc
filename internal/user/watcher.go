// SPDX-License-Identifier: MIT

package user

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch starts the background watcher goroutine that keeps the in-memory
// record in sync with the credential file. It combines fsnotify events on the
// parent directory with a poll ticker, so a change is picked up within one
// poll interval even on filesystems where notifications are unreliable.
//
// Calling Watch while a watcher is already running is a no-op.
func (s *Service) Watch() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if s.quit != nil {
		return
	}
	if err := validatePath(s.path); err != nil {
		s.logger.Error().Err(err).Msg("refusing to watch credential file")
		return
	}

	s.quit = make(chan struct{})
	s.done = make(chan struct{})

	go s.watch(s.quit, s.done)
}

// Close stops the watcher goroutine and blocks until it has exited. Safe to
// call multiple times and safe to call when Watch was never started.
func (s *Service) Close() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if s.quit == nil {
		return
	}
	close(s.quit)
	<-s.done
	s.quit = nil
	s.done = nil
}

func (s *Service) watch(quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	target := filepath.Base(s.path)

	var events chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn().Err(err).Msg("fsnotify unavailable, falling back to polling only")
	} else {
		defer func() { _ = watcher.Close() }()
		if err := watcher.Add(filepath.Dir(s.path)); err != nil {
			s.logger.Warn().Err(err).Msg("cannot watch credential directory, falling back to polling only")
		} else {
			events = watcher.Events
		}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var errors chan error
	if watcher != nil {
		errors = watcher.Errors
	}

	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			s.refresh()
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Base(event.Name) == target {
				s.refresh()
			}
		case err, ok := <-errors:
			if !ok {
				errors = nil
				continue
			}
			s.logger.Warn().Err(err).Msg("credential watcher error")
		}
	}
}
