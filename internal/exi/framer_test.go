// SPDX-License-Identifier: MIT

package exi

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeFrame builds the wire form of one command: opcode, length prefix for
// variable opcodes, payload.
func encodeFrame(t *testing.T, op Opcode, payload []byte) []byte {
	t.Helper()

	size, ok := payloadSizes[op]
	require.True(t, ok, "opcode %#x not in table", byte(op))

	frame := []byte{byte(op)}
	if size == variablePayload {
		var prefix [4]byte
		binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
		frame = append(frame, prefix[:]...)
	} else {
		require.Len(t, payload, size, "fixed payload for %s", op)
	}
	return append(frame, payload...)
}

func sampleFrames(t *testing.T) ([]byte, []Frame) {
	t.Helper()

	want := []Frame{
		{Opcode: OpStartNewSession, Payload: []byte{}},
		{Opcode: OpCreateGameReport, Payload: append([]byte{2}, "mode3-match"...)},
		{Opcode: OpJukeboxSetVolume, Payload: []byte{0, 127}},
		{Opcode: OpPushReplayData, Payload: []byte{0x35, 1, 2, 3, 4}},
		{Opcode: OpJukeboxStart, Payload: []byte{0, 0, 0, 0, 0, 0, 0, 64, 0, 0, 1, 0}},
	}

	var stream []byte
	for _, f := range want {
		stream = append(stream, encodeFrame(t, f.Opcode, f.Payload)...)
	}
	return stream, want
}

func TestFeedEmitsCompleteFrames(t *testing.T) {
	stream, want := sampleFrames(t)

	got := NewFramer().Feed(stream)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Opcode, got[i].Opcode)
		assert.Equal(t, want[i].Payload, got[i].Payload)
	}
}

// Frames must decode identically no matter how the stream is split across
// bus writes.
func TestChunkBoundaryIndependence(t *testing.T) {
	stream, want := sampleFrames(t)

	for chunkSize := 1; chunkSize <= len(stream); chunkSize++ {
		f := NewFramer()
		var got []Frame
		for start := 0; start < len(stream); start += chunkSize {
			end := start + chunkSize
			if end > len(stream) {
				end = len(stream)
			}
			got = append(got, f.Feed(stream[start:end])...)
		}

		require.Len(t, got, len(want), "chunk size %d", chunkSize)
		for i := range want {
			assert.Equal(t, want[i].Opcode, got[i].Opcode, "chunk size %d", chunkSize)
			assert.Equal(t, want[i].Payload, got[i].Payload, "chunk size %d", chunkSize)
		}
	}
}

func TestPartialFrameHeldAcrossFeeds(t *testing.T) {
	frame := encodeFrame(t, OpPushReplayData, []byte{9, 8, 7})

	f := NewFramer()
	assert.Empty(t, f.Feed(frame[:2]), "length prefix incomplete")
	assert.Empty(t, f.Feed(frame[2:6]), "payload incomplete")

	got := f.Feed(frame[6:])
	require.Len(t, got, 1)
	assert.Equal(t, []byte{9, 8, 7}, got[0].Payload)
}

func TestUnknownOpcodeDropsBufferedStream(t *testing.T) {
	valid := encodeFrame(t, OpJukeboxStop, nil)

	f := NewFramer()
	stream := append(append([]byte{}, valid...), 0xEE, 0xDE, 0xAD)
	got := f.Feed(stream)
	require.Len(t, got, 1, "frame ahead of the bad opcode still decodes")
	assert.Equal(t, OpJukeboxStop, got[0].Opcode)

	// Framing recovers on the next write.
	got = f.Feed(encodeFrame(t, OpJukeboxSetVolume, []byte{1, 50}))
	require.Len(t, got, 1)
	assert.Equal(t, OpJukeboxSetVolume, got[0].Opcode)
}

func TestOversizedLengthPrefixDropsBufferedStream(t *testing.T) {
	bad := []byte{byte(OpPushReplayData), 0xFF, 0xFF, 0xFF, 0xFF}

	f := NewFramer()
	assert.Empty(t, f.Feed(bad))

	got := f.Feed(encodeFrame(t, OpStartNewSession, nil))
	require.Len(t, got, 1)
	assert.Equal(t, OpStartNewSession, got[0].Opcode)
}
