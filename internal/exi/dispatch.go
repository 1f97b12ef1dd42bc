// SPDX-License-Identifier: MIT

package exi

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"

	"github.com/slhost/exibridge/internal/jukebox"
	"github.com/slhost/exibridge/internal/log"
	"github.com/slhost/exibridge/internal/metrics"
	"github.com/slhost/exibridge/internal/report"
	"github.com/slhost/exibridge/internal/user"
)

// dispatch routes one complete frame to its subsystem. A handler panic is a
// protocol error, not a process failure: it must never unwind across the
// host calling boundary, so it is recovered, logged and the frame dropped.
func (d *Device) dispatch(frame Frame) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.IncFrameError("handler_panic")
			d.logger.Error().
				Interface("panic", rec).
				Str("opcode", frame.Opcode.String()).
				Msg("command handler panicked, frame dropped")
		}
	}()

	switch frame.Opcode {
	case OpCreateGameReport:
		d.handleCreateGameReport(frame.Payload)
	case OpAddPlayerReport:
		d.handleAddPlayerReport(frame.Payload)
	case OpFinalizeGameReport:
		d.handleFinalizeGameReport(frame.Payload)
	case OpPushReplayData:
		d.reporter.PushReplayData(frame.Payload)
	case OpReportMatchCompletion:
		d.handleMatchCompletion(frame.Payload)
	case OpReportMatchAbandonment:
		d.reporter.ReportAbandonment(string(frame.Payload))
	case OpStartNewSession:
		d.pending = nil
		d.reporter.StartSession()

	case OpJukeboxStart:
		d.withJukebox(func(jb *jukebox.Jukebox) {
			offset := binary.BigEndian.Uint64(frame.Payload[0:8])
			length := binary.BigEndian.Uint32(frame.Payload[8:12])
			jb.StartSong(offset, length)
		})
	case OpJukeboxStop:
		d.withJukebox((*jukebox.Jukebox).Stop)
	case OpJukeboxSetVolume:
		d.withJukebox(func(jb *jukebox.Jukebox) {
			jb.SetVolume(jukebox.VolumeChannel(frame.Payload[0]), frame.Payload[1])
		})

	case OpUserAttemptLogin:
		// Deliberately synchronous: the protocol demands a boolean result
		// before the next bus read.
		d.respondBool(d.users.AttemptLogin(context.Background()))
	case OpUserOpenLoginPage:
		d.users.OpenLoginPage()
	case OpUserLoginStatus:
		d.respondBool(d.users.IsLoggedIn())
	case OpUserGetInfo:
		info, _ := d.users.Get()
		d.respondJSON(info)
	case OpUserLogout:
		d.users.Logout()
	case OpUserSetLatestVersion:
		d.users.OverwriteLatestVersion(string(frame.Payload))
	case OpUserChatMessages:
		d.respondJSON(d.users.ChatMessages())
	case OpUserDefaultChatMessages:
		d.respondJSON(user.DefaultChatMessages())

	case OpSetLogLevel:
		level := string(frame.Payload)
		if !log.SetLevel(level) {
			d.logger.Warn().Str("level", level).Msg("unknown log level, ignoring")
		}

	default:
		// The framer only emits opcodes from the table, so this is an
		// invariant violation rather than host input.
		metrics.IncFrameError("undispatched_opcode")
		d.logger.Error().Str("opcode", frame.Opcode.String()).Msg("frame with no handler")
	}
}

// handleCreateGameReport opens a fresh report aggregate.
// Payload: play mode u8, then the match id string.
func (d *Device) handleCreateGameReport(payload []byte) {
	if len(payload) < 1 {
		d.protocolError(OpCreateGameReport, "payload too short")
		return
	}
	d.pending = &report.GameReport{
		PlayMode: payload[0],
		MatchID:  string(payload[1:]),
	}
}

// handleAddPlayerReport appends one player entry to the open aggregate.
// Payload: slot type u8, damage done f32, stocks remaining u8, character id
// u8, color id u8, starting stocks u8, starting percent f32, then the
// player's uid string (all big-endian).
func (d *Device) handleAddPlayerReport(payload []byte) {
	const fixedPart = 13
	if len(payload) < fixedPart {
		d.protocolError(OpAddPlayerReport, "payload too short")
		return
	}
	if d.pending == nil {
		d.protocolError(OpAddPlayerReport, "no open game report")
		return
	}

	d.pending.AddPlayer(report.PlayerReport{
		SlotType:        payload[0],
		DamageDone:      float64(math.Float32frombits(binary.BigEndian.Uint32(payload[1:5]))),
		StocksRemaining: payload[5],
		CharacterID:     payload[6],
		ColorID:         payload[7],
		StartingStocks:  payload[8],
		StartingPercent: float64(math.Float32frombits(binary.BigEndian.Uint32(payload[9:13]))),
		UID:             string(payload[fixedPart:]),
	})
}

// handleFinalizeGameReport seals the open aggregate and hands it to the
// delivery pipeline. Payload layout is documented on payloadSizes.
func (d *Device) handleFinalizeGameReport(payload []byte) {
	if d.pending == nil {
		d.protocolError(OpFinalizeGameReport, "no open game report")
		return
	}

	g := d.pending
	d.pending = nil

	g.DurationFrames = binary.BigEndian.Uint32(payload[0:4])
	g.GameIndex = binary.BigEndian.Uint32(payload[4:8])
	g.TiebreakIndex = binary.BigEndian.Uint32(payload[8:12])
	g.WinnerIndex = int8(payload[12])
	g.GameEndMethod = payload[13]
	g.LRASInitiator = int8(payload[14])
	g.StageID = binary.BigEndian.Uint16(payload[15:17])

	// Ownership transfers here; the dispatcher never touches g again.
	d.reporter.LogReport(g)
}

// handleMatchCompletion payload: end mode u8, then the match id string.
func (d *Device) handleMatchCompletion(payload []byte) {
	if len(payload) < 1 {
		d.protocolError(OpReportMatchCompletion, "payload too short")
		return
	}
	d.reporter.ReportCompletion(string(payload[1:]), payload[0])
}

// withJukebox runs fn against the active jukebox; without one the command is
// silently serviced, matching a console that sends music commands while the
// feature is disabled.
func (d *Device) withJukebox(fn func(*jukebox.Jukebox)) {
	if d.jukebox == nil {
		d.logger.Debug().Msg("jukebox command ignored, jukebox disabled")
		return
	}
	fn(d.jukebox)
}

func (d *Device) protocolError(op Opcode, msg string) {
	metrics.IncFrameError("bad_payload")
	d.logger.Warn().Str("opcode", op.String()).Msg(msg)
}

// respondBool appends a single 0/1 response byte.
func (d *Device) respondBool(v bool) {
	b := byte(0)
	if v {
		b = 1
	}
	d.readBuf.WriteByte(b)
}

// respondJSON appends a length-prefixed JSON blob: 4-byte big-endian size,
// then the document.
func (d *Device) respondJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		// Only reachable with an unmarshalable value, which would be a bug
		// in the handler, not host input.
		d.logger.Error().Err(err).Msg("failed to encode response")
		data = []byte("{}")
	}

	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(data))) // #nosec G115 -- responses are small
	d.readBuf.Write(size[:])
	d.readBuf.Write(data)
}
