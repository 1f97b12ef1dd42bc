// SPDX-License-Identifier: MIT

package jukebox

import "fmt"

// Decoder turns a raw byte range from the media container into a playable
// sample stream: 16-bit signed little-endian PCM plus its rate and channel
// count.
type Decoder interface {
	Decode(data []byte) (pcm []byte, sampleRate, channels int, err error)
}

// PCMDecoder is the passthrough decoder for containers that already hold
// 16-bit PCM. Zero values default to the console's native 32 kHz stereo.
type PCMDecoder struct {
	SampleRate int
	Channels   int
}

func (d *PCMDecoder) Decode(data []byte) ([]byte, int, int, error) {
	rate := d.SampleRate
	if rate == 0 {
		rate = 32000
	}
	channels := d.Channels
	if channels == 0 {
		channels = 2
	}

	frame := 2 * channels
	if len(data) < frame {
		return nil, 0, 0, fmt.Errorf("song too short: %d bytes", len(data))
	}
	// Trim a trailing partial frame rather than feed misaligned samples to
	// the output device.
	data = data[:len(data)-len(data)%frame]

	return data, rate, channels, nil
}
