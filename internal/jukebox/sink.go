// SPDX-License-Identifier: MIT

package jukebox

import (
	"bytes"
	"fmt"

	"github.com/ebitengine/oto/v3"
)

// Sink is the output side of the jukebox. The default implementation wraps
// the system audio device; tests substitute a recorder.
type Sink interface {
	// Play starts the given 16-bit little-endian PCM stream, replacing any
	// current one.
	Play(pcm []byte, sampleRate, channels int) error
	// Stop halts the current stream, if any.
	Stop()
	// SetGain scales output amplitude, 0 silent to 1 full.
	SetGain(gain float64)
	Close() error
}

// otoSink plays through the system audio device. The underlying context is
// created lazily on the first Play because the sample rate is not known until
// a song is decoded; it lives for the rest of the process, which is an oto
// limitation.
type otoSink struct {
	ctx      *oto.Context
	player   *oto.Player
	rate     int
	channels int
	gain     float64
}

func newOtoSink() (Sink, error) {
	return &otoSink{gain: 1.0}, nil
}

func (s *otoSink) Play(pcm []byte, sampleRate, channels int) error {
	if s.ctx == nil {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			return fmt.Errorf("open audio device: %w", err)
		}
		<-ready
		s.ctx = ctx
		s.rate = sampleRate
		s.channels = channels
	} else if sampleRate != s.rate || channels != s.channels {
		// The device context is fixed for the process lifetime; a song in a
		// different format would play at the wrong pitch.
		return fmt.Errorf("song format %dHz/%dch does not match device %dHz/%dch",
			sampleRate, channels, s.rate, s.channels)
	}

	s.Stop()
	s.player = s.ctx.NewPlayer(bytes.NewReader(pcm))
	s.player.SetVolume(s.gain)
	s.player.Play()
	return nil
}

func (s *otoSink) Stop() {
	if s.player != nil {
		_ = s.player.Close()
		s.player = nil
	}
}

func (s *otoSink) SetGain(gain float64) {
	s.gain = gain
	if s.player != nil {
		s.player.SetVolume(gain)
	}
}

func (s *otoSink) Close() error {
	s.Stop()
	return nil
}
