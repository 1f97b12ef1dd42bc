// SPDX-License-Identifier: MIT

// Package main implements the exibridge-sim harness. It stands in for the
// emulator host: it creates a device, drives scripted match sessions through
// bus writes in randomized chunk sizes, drains bus reads, and prints a JSON
// summary. Useful for exercising the full command path against a real or
// mock report endpoint.
package main

import (
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/slhost/exibridge/internal/exi"
	"github.com/slhost/exibridge/internal/log"
)

// Report is the JSON output schema for a simulation run.
type Report struct {
	Seed            int64         `json:"seed"`
	Games           int           `json:"games"`
	BytesWritten    int           `json:"bytes_written"`
	ResponseBytes   int           `json:"response_bytes"`
	LoggedIn        bool          `json:"logged_in"`
	DurationSeconds float64       `json:"duration_s"`
	FlushError      string        `json:"flush_error,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	Elapsed         time.Duration `json:"-"`
}

func main() {
	userFile := flag.String("user-file", "user.json", "credential file path")
	mediaFile := flag.String("media", "", "media container for the jukebox (empty disables audio)")
	semver := flag.String("semver", "0.0.0-sim", "client version reported upstream")
	games := flag.Int("games", 3, "number of games to simulate per session")
	players := flag.Int("players", 2, "players per game")
	seed := flag.Int64("seed", time.Now().UnixNano(), "chunking RNG seed")
	maxChunk := flag.Int("max-chunk", 32, "maximum bus write size in bytes")
	flag.Parse()

	log.Configure(log.Config{Service: "exibridge-sim"})
	logger := log.WithComponent("sim")

	device, err := exi.New(exi.Config{
		UserFilePath:               *userFile,
		MediaPath:                  *mediaFile,
		Semver:                     *semver,
		EnableJukebox:              *mediaFile != "",
		InitialDolphinSystemVolume: 100,
		InitialDolphinMusicVolume:  100,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot create device")
	}
	handle := exi.Register(device)

	rng := rand.New(rand.NewSource(*seed)) // #nosec G404 -- simulation chunking only
	started := time.Now()

	report := Report{Seed: *seed, Games: *games, StartedAt: started}

	stream := buildSessionScript(*games, *players, *mediaFile != "")
	report.BytesWritten = len(stream)

	// Feed the script in random chunk sizes, draining reads between writes
	// the way the console alternates DMA writes and reads.
	for len(stream) > 0 {
		n := 1 + rng.Intn(*maxChunk)
		if n > len(stream) {
			n = len(stream)
		}
		device.Write(stream[:n])
		stream = stream[n:]

		buf := make([]byte, 64)
		report.ResponseBytes += device.Read(buf)
	}

	// Status query at the end of the run.
	device.Write([]byte{byte(exi.OpUserLoginStatus)})
	status := make([]byte, 1)
	device.Read(status)
	report.LoggedIn = status[0] == 1

	if !exi.Release(handle) {
		logger.Error().Msg("device handle already released")
	}
	report.DurationSeconds = time.Since(started).Seconds()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildSessionScript produces the byte stream for one full session: session
// start, per-game create/players/replay/finalize, music commands when audio
// is on, then a match completion.
func buildSessionScript(games, players int, audio bool) []byte {
	var stream []byte
	matchID := fmt.Sprintf("mode3-sim-%d", time.Now().Unix())

	stream = append(stream, fixed(exi.OpStartNewSession, nil)...)

	if audio {
		start := make([]byte, 12)
		binary.BigEndian.PutUint64(start[0:8], 0)
		binary.BigEndian.PutUint32(start[8:12], 4096)
		stream = append(stream, fixed(exi.OpJukeboxStart, start)...)
		stream = append(stream, fixed(exi.OpJukeboxSetVolume, []byte{0, 200})...)
	}

	for g := 0; g < games; g++ {
		stream = append(stream, variable(exi.OpCreateGameReport, append([]byte{2}, matchID...))...)
		stream = append(stream, variable(exi.OpPushReplayData, replayChunk(g))...)

		for p := 0; p < players; p++ {
			stream = append(stream, variable(exi.OpAddPlayerReport, playerPayload(p))...)
		}

		final := make([]byte, 17)
		binary.BigEndian.PutUint32(final[0:4], 9000+uint32(g)) // #nosec G115 -- small loop index
		binary.BigEndian.PutUint32(final[4:8], uint32(g+1))    // #nosec G115
		final[12] = 0   // winner index
		final[13] = 2   // end method
		final[14] = 255 // no LRAS initiator
		binary.BigEndian.PutUint16(final[15:17], 31)
		stream = append(stream, fixed(exi.OpFinalizeGameReport, final)...)
	}

	if audio {
		stream = append(stream, fixed(exi.OpJukeboxStop, nil)...)
	}
	stream = append(stream, variable(exi.OpReportMatchCompletion, append([]byte{1}, matchID...))...)
	return stream
}

func playerPayload(slot int) []byte {
	payload := []byte{byte(slot)} // #nosec G115 -- slot < 4
	var f32 [4]byte
	binary.BigEndian.PutUint32(f32[:], math.Float32bits(float32(80+slot*20)))
	payload = append(payload, f32[:]...)
	payload = append(payload, byte(4-slot), 9, 0, 4) // #nosec G115
	binary.BigEndian.PutUint32(f32[:], 0)
	payload = append(payload, f32[:]...)
	return append(payload, fmt.Sprintf("sim-uid-%d", slot)...)
}

// replayChunk starts with the reset byte so every game's stream replaces the
// previous one, like the console's first write of a new recording.
func replayChunk(game int) []byte {
	chunk := make([]byte, 128)
	chunk[0] = 0x35
	for i := 1; i < len(chunk); i++ {
		chunk[i] = byte((game + i) % 256) // #nosec G115
	}
	return chunk
}

func fixed(op exi.Opcode, payload []byte) []byte {
	return append([]byte{byte(op)}, payload...)
}

func variable(op exi.Opcode, payload []byte) []byte {
	frame := []byte{byte(op)}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload))) // #nosec G115 -- script payloads are small
	frame = append(frame, prefix[:]...)
	return append(frame, payload...)
}
