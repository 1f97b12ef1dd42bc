// SPDX-License-Identifier: MIT

// Package jukebox plays background music from an on-disk media container on
// its own goroutine. The owning device sends playback-control messages over a
// channel; no decode or disk I/O ever happens on the sender's thread.
package jukebox

import (
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/slhost/exibridge/internal/log"
	"github.com/slhost/exibridge/internal/metrics"
)

// Playback is slightly louder than the console's own mixer; pull the output
// down to 80% to compensate.
const volumeReductionMultiplier = 0.8

// VolumeChannel names one of the three independently tracked volume sources.
type VolumeChannel uint8

const (
	ChannelMelee VolumeChannel = iota
	ChannelDolphinSystem
	ChannelDolphinMusic
)

func (c VolumeChannel) String() string {
	switch c {
	case ChannelMelee:
		return "melee"
	case ChannelDolphinSystem:
		return "dolphin_system"
	case ChannelDolphinMusic:
		return "dolphin_music"
	default:
		return "unknown"
	}
}

type msgKind uint8

const (
	msgStartSong msgKind = iota
	msgStop
	msgSetVolume
)

type message struct {
	kind    msgKind
	offset  uint64
	length  uint32
	channel VolumeChannel
	value   uint8
}

// Config parameterizes a Jukebox.
type Config struct {
	// MediaPath is the on-disk media container songs are read from.
	MediaPath string
	// InitialSystemVolume and InitialMusicVolume seed the dolphin-side
	// volume channels, 0-100.
	InitialSystemVolume uint8
	InitialMusicVolume  uint8
	// Decoder turns a raw byte range into playable samples. Defaults to the
	// PCM passthrough decoder.
	Decoder Decoder
	// NewSink constructs the output sink. Defaults to the system audio
	// device. Tests inject a fake here.
	NewSink func() (Sink, error)
}

// Jukebox is the owning handle for the playback goroutine. All methods are
// non-blocking; Close signals the goroutine and joins it. The command queue
// is unbounded so no control message is ever lost: a dropped volume update
// would corrupt the three-channel gain product for the rest of the session.
type Jukebox struct {
	mu    sync.Mutex
	queue []message

	notify chan struct{}
	quit   chan struct{}
	done   chan struct{}
	logger zerolog.Logger
}

// New validates the media container, spawns the playback goroutine and
// returns the handle.
func New(cfg Config) (*Jukebox, error) {
	logger := log.WithComponent("jukebox")
	logger.Info().Str("media", cfg.MediaPath).Msg("starting jukebox")

	f, err := os.Open(cfg.MediaPath) // #nosec G304 -- host-provided media path
	if err != nil {
		return nil, fmt.Errorf("open media container: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat media container: %w", err)
	}

	if cfg.Decoder == nil {
		cfg.Decoder = &PCMDecoder{}
	}
	if cfg.NewSink == nil {
		cfg.NewSink = newOtoSink
	}

	j := &Jukebox{
		notify: make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}

	go j.run(f, info.Size(), cfg)
	return j, nil
}

// StartSong reads the byte range at offset/length from the media container,
// decodes it and plays it, replacing any current song.
func (j *Jukebox) StartSong(offset uint64, length uint32) {
	j.logger.Info().Uint64("offset", offset).Uint32("length", length).Msg("start song")
	j.send(message{kind: msgStartSong, offset: offset, length: length})
}

// Stop halts playback immediately.
func (j *Jukebox) Stop() {
	j.logger.Info().Msg("stop music")
	j.send(message{kind: msgStop})
}

// SetVolume updates one volume channel. The audible gain is the product of
// all three channels; the others keep their values.
func (j *Jukebox) SetVolume(channel VolumeChannel, value uint8) {
	j.logger.Info().Str("channel", channel.String()).Uint8("value", value).Msg("set volume")
	j.send(message{kind: msgSetVolume, channel: channel, value: value})
}

// Close signals the playback goroutine to stop and blocks until it has
// exited and the output stream is released. Safe to call more than once.
func (j *Jukebox) Close() {
	select {
	case <-j.quit:
		// already closed
	default:
		close(j.quit)
	}
	<-j.done
}

// send appends the command and nudges the playback goroutine. Never blocks
// and never drops: commands are processed strictly in send order.
func (j *Jukebox) send(m message) {
	j.mu.Lock()
	j.queue = append(j.queue, m)
	j.mu.Unlock()

	select {
	case j.notify <- struct{}{}:
	default:
	}
}

// pop removes the oldest queued command.
func (j *Jukebox) pop() (message, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.queue) == 0 {
		return message{}, false
	}
	m := j.queue[0]
	j.queue = j.queue[1:]
	return m, true
}

// volumes tracks the three channels, each normalized to [0,1].
type volumes struct {
	melee  float64
	system float64
	music  float64
}

func (v volumes) gain() float64 {
	return v.melee * v.system * v.music * volumeReductionMultiplier
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// run is the playback goroutine's main loop.
func (j *Jukebox) run(f *os.File, size int64, cfg Config) {
	defer close(j.done)
	defer func() { _ = f.Close() }()

	sink, err := cfg.NewSink()
	if err != nil {
		// No output device is not fatal; commands are consumed and ignored
		// so the device keeps working without music.
		j.logger.Error().Err(err).Msg("audio output unavailable, music disabled")
		metrics.IncPlaybackError("no_output_device")
		sink = nil
	}
	if sink != nil {
		defer func() { _ = sink.Close() }()
	}

	vol := volumes{
		melee:  1.0,
		system: clamp01(float64(cfg.InitialSystemVolume) / 100.0),
		music:  clamp01(float64(cfg.InitialMusicVolume) / 100.0),
	}
	if sink != nil {
		sink.SetGain(vol.gain())
	}

	for {
		select {
		case <-j.quit:
			if sink != nil {
				sink.Stop()
			}
			return
		case <-j.notify:
			for {
				m, ok := j.pop()
				if !ok {
					break
				}
				if sink == nil {
					continue
				}
				j.handle(sink, f, size, cfg.Decoder, &vol, m)
			}
		}
	}
}

// handle services one queued command.
func (j *Jukebox) handle(sink Sink, f *os.File, size int64, dec Decoder, vol *volumes, m message) {
	switch m.kind {
	case msgStartSong:
		j.play(sink, f, size, dec, m.offset, m.length)
	case msgStop:
		sink.Stop()
	case msgSetVolume:
		switch m.channel {
		case ChannelMelee:
			vol.melee = clamp01(float64(m.value) / 254.0)
		case ChannelDolphinSystem:
			vol.system = clamp01(float64(m.value) / 100.0)
		case ChannelDolphinMusic:
			vol.music = clamp01(float64(m.value) / 100.0)
		default:
			j.logger.Warn().Uint8("channel", uint8(m.channel)).Msg("unknown volume channel")
			return
		}
		sink.SetGain(vol.gain())
	}
}

// play services one StartSong message. Every failure path logs and skips
// playback; nothing propagates to the caller.
func (j *Jukebox) play(sink Sink, f *os.File, size int64, dec Decoder, offset uint64, length uint32) {
	end := offset + uint64(length)
	if length == 0 || end > uint64(size) { // #nosec G115 -- size is non-negative
		j.logger.Warn().
			Uint64("offset", offset).
			Uint32("length", length).
			Int64("media_size", size).
			Msg("song range outside media container, cannot play")
		metrics.IncPlaybackError("out_of_range")
		return
	}

	raw := make([]byte, length)
	if _, err := f.ReadAt(raw, int64(offset)); err != nil { // #nosec G115 -- bounds checked above
		j.logger.Error().Err(err).Msg("failed to read song bytes, cannot play")
		metrics.IncPlaybackError("read")
		return
	}

	pcm, rate, channels, err := dec.Decode(raw)
	if err != nil {
		j.logger.Error().Err(err).Msg("failed to decode song, cannot play")
		metrics.IncPlaybackError("decode")
		return
	}

	sink.Stop()
	if err := sink.Play(pcm, rate, channels); err != nil {
		j.logger.Error().Err(err).Msg("output sink rejected song, cannot play")
		metrics.IncPlaybackError("output")
		return
	}
	metrics.PlaybackStarts.Inc()
}
