// SPDX-License-Identifier: MIT

package jukebox

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeSink struct {
	mu    sync.Mutex
	plays [][]byte
	stops int
	gains []float64
}

func (s *fakeSink) Play(pcm []byte, _, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays = append(s.plays, append([]byte(nil), pcm...))
	return nil
}

func (s *fakeSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
}

func (s *fakeSink) SetGain(gain float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gains = append(s.gains, gain)
}

func (s *fakeSink) Close() error { return nil }

func (s *fakeSink) snapshot() (plays [][]byte, stops int, gains []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.plays...), s.stops, append([]float64(nil), s.gains...)
}

// eventually polls until cond is true or the deadline passes.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func writeMedia(t *testing.T, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	path := filepath.Join(t.TempDir(), "songs.bin")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func newTestJukebox(t *testing.T, sink Sink, dec Decoder) *Jukebox {
	t.Helper()
	j, err := New(Config{
		MediaPath:           writeMedia(t, 1024),
		InitialSystemVolume: 100,
		InitialMusicVolume:  100,
		Decoder:             dec,
		NewSink:             func() (Sink, error) { return sink, nil },
	})
	require.NoError(t, err)
	return j
}

func TestStartSongReadsRequestedRange(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &fakeSink{}
	j := newTestJukebox(t, sink, nil)
	defer j.Close()

	j.StartSong(16, 32)

	eventually(t, func() bool {
		plays, _, _ := sink.snapshot()
		return len(plays) == 1
	}, "song never reached the sink")

	plays, _, _ := sink.snapshot()
	want := make([]byte, 32)
	for i := range want {
		want[i] = byte(16 + i)
	}
	assert.Equal(t, want, plays[0])
}

func TestVolumeChannelsAreIndependent(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &fakeSink{}
	j := newTestJukebox(t, sink, nil)
	defer j.Close()

	j.SetVolume(ChannelMelee, 127)
	j.SetVolume(ChannelDolphinMusic, 50)

	// startup gain plus one per SetVolume
	eventually(t, func() bool {
		_, _, gains := sink.snapshot()
		return len(gains) == 3
	}, "volume updates never reached the sink")

	_, _, gains := sink.snapshot()
	assert.InDelta(t, 0.8, gains[0], 1e-9)
	assert.InDelta(t, (127.0/254.0)*0.8, gains[1], 1e-9)
	assert.InDelta(t, (127.0/254.0)*0.5*0.8, gains[2], 1e-9)
}

func TestOutOfRangeSongIsSkipped(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &fakeSink{}
	j := newTestJukebox(t, sink, nil)
	defer j.Close()

	j.StartSong(1024, 16)
	j.StartSong(1000, 100)
	// barrier: once this gain lands, both starts have been processed
	j.SetVolume(ChannelMelee, 254)

	eventually(t, func() bool {
		_, _, gains := sink.snapshot()
		return len(gains) == 2
	}, "barrier volume update never reached the sink")

	plays, _, _ := sink.snapshot()
	assert.Empty(t, plays)
}

// A burst far larger than any reasonable mailbox must not lose a single
// command; a lost volume update would skew the gain product from then on.
func TestCommandBurstLosesNothing(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &fakeSink{}
	j := newTestJukebox(t, sink, nil)
	defer j.Close()

	const burst = 100
	for i := 0; i < burst; i++ {
		j.SetVolume(ChannelMelee, uint8(i))
	}
	j.Stop()

	eventually(t, func() bool {
		_, stops, gains := sink.snapshot()
		return len(gains) == burst+1 && stops == 1
	}, "burst commands never fully reached the sink")
	_, stops, gains := sink.snapshot()
	require.Len(t, gains, burst+1, "startup gain plus one per update")
	assert.Equal(t, 1, stops, "trailing stop must survive the burst")
	assert.InDelta(t, (float64(burst-1)/254.0)*0.8, gains[burst], 1e-9)
}

type failingDecoder struct{}

func (failingDecoder) Decode([]byte) ([]byte, int, int, error) {
	return nil, 0, 0, errors.New("corrupt song")
}

func TestDecodeFailureSkipsPlayback(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &fakeSink{}
	j := newTestJukebox(t, sink, failingDecoder{})
	defer j.Close()

	j.StartSong(0, 64)
	j.SetVolume(ChannelMelee, 254)

	eventually(t, func() bool {
		_, _, gains := sink.snapshot()
		return len(gains) == 2
	}, "barrier volume update never reached the sink")

	plays, _, _ := sink.snapshot()
	assert.Empty(t, plays)
}

func TestStopHaltsPlayback(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &fakeSink{}
	j := newTestJukebox(t, sink, nil)

	j.StartSong(0, 64)
	eventually(t, func() bool {
		plays, _, _ := sink.snapshot()
		return len(plays) == 1
	}, "song never reached the sink")

	j.Stop()
	eventually(t, func() bool {
		_, stops, _ := sink.snapshot()
		return stops == 2 // one before the play, one for Stop
	}, "stop never reached the sink")

	j.Close()

	_, stops, _ := sink.snapshot()
	assert.Equal(t, 3, stops, "close stops the stream")
}

func TestCloseIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	j := newTestJukebox(t, &fakeSink{}, nil)
	j.Close()
	j.Close()
}

func TestMissingMediaContainer(t *testing.T) {
	_, err := New(Config{MediaPath: filepath.Join(t.TempDir(), "nope.bin")})
	require.Error(t, err)
}

func TestUnavailableOutputDisablesMusic(t *testing.T) {
	defer goleak.VerifyNone(t)

	j, err := New(Config{
		MediaPath: writeMedia(t, 64),
		NewSink:   func() (Sink, error) { return nil, errors.New("no device") },
	})
	require.NoError(t, err)

	// Commands are consumed and ignored.
	j.StartSong(0, 16)
	j.SetVolume(ChannelDolphinMusic, 50)
	j.Close()
}
