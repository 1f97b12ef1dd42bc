// SPDX-License-Identifier: MIT

// Package exi implements the virtual bus peripheral: command framing,
// dispatch, the per-connection device aggregate and the handle registry the
// host boundary uses.
package exi

// Opcode is the first byte of every command frame.
type Opcode byte

const (
	OpCreateGameReport       Opcode = 0x01
	OpAddPlayerReport        Opcode = 0x02
	OpFinalizeGameReport     Opcode = 0x03
	OpPushReplayData         Opcode = 0x04
	OpReportMatchCompletion  Opcode = 0x05
	OpReportMatchAbandonment Opcode = 0x06
	OpStartNewSession        Opcode = 0x07

	OpJukeboxStart     Opcode = 0x10
	OpJukeboxStop      Opcode = 0x11
	OpJukeboxSetVolume Opcode = 0x12

	OpUserAttemptLogin        Opcode = 0x20
	OpUserOpenLoginPage       Opcode = 0x21
	OpUserLoginStatus         Opcode = 0x22
	OpUserGetInfo             Opcode = 0x23
	OpUserLogout              Opcode = 0x24
	OpUserSetLatestVersion    Opcode = 0x25
	OpUserChatMessages        Opcode = 0x26
	OpUserDefaultChatMessages Opcode = 0x27

	OpSetLogLevel Opcode = 0x30
)

// variablePayload marks opcodes whose payload carries a 4-byte big-endian
// length prefix immediately after the opcode byte.
const variablePayload = -1

// maxPayloadSize bounds a variable payload so a corrupt length prefix cannot
// make the framer buffer forever.
const maxPayloadSize = 16 << 20

// Fixed payload layouts:
//
//	FinalizeGameReport: duration u32, game index u32, tiebreak index u32,
//	                    winner index i8, end method u8, LRAS initiator i8,
//	                    stage id u16 (all big-endian) = 17 bytes
//	JukeboxStart:       offset u64, length u32 = 12 bytes
//	JukeboxSetVolume:   channel u8, value u8 = 2 bytes
//
// Variable payload layouts are documented on their dispatch handlers.
var payloadSizes = map[Opcode]int{
	OpCreateGameReport:       variablePayload,
	OpAddPlayerReport:        variablePayload,
	OpFinalizeGameReport:     17,
	OpPushReplayData:         variablePayload,
	OpReportMatchCompletion:  variablePayload,
	OpReportMatchAbandonment: variablePayload,
	OpStartNewSession:        0,

	OpJukeboxStart:     12,
	OpJukeboxStop:      0,
	OpJukeboxSetVolume: 2,

	OpUserAttemptLogin:        0,
	OpUserOpenLoginPage:       0,
	OpUserLoginStatus:         0,
	OpUserGetInfo:             0,
	OpUserLogout:              0,
	OpUserSetLatestVersion:    variablePayload,
	OpUserChatMessages:        0,
	OpUserDefaultChatMessages: 0,

	OpSetLogLevel: variablePayload,
}

func (o Opcode) String() string {
	switch o {
	case OpCreateGameReport:
		return "create_game_report"
	case OpAddPlayerReport:
		return "add_player_report"
	case OpFinalizeGameReport:
		return "finalize_game_report"
	case OpPushReplayData:
		return "push_replay_data"
	case OpReportMatchCompletion:
		return "report_match_completion"
	case OpReportMatchAbandonment:
		return "report_match_abandonment"
	case OpStartNewSession:
		return "start_new_session"
	case OpJukeboxStart:
		return "jukebox_start"
	case OpJukeboxStop:
		return "jukebox_stop"
	case OpJukeboxSetVolume:
		return "jukebox_set_volume"
	case OpUserAttemptLogin:
		return "user_attempt_login"
	case OpUserOpenLoginPage:
		return "user_open_login_page"
	case OpUserLoginStatus:
		return "user_login_status"
	case OpUserGetInfo:
		return "user_get_info"
	case OpUserLogout:
		return "user_logout"
	case OpUserSetLatestVersion:
		return "user_set_latest_version"
	case OpUserChatMessages:
		return "user_chat_messages"
	case OpUserDefaultChatMessages:
		return "user_default_chat_messages"
	case OpSetLogLevel:
		return "set_log_level"
	default:
		return "unknown"
	}
}

// Frame is one fully assembled command: opcode plus complete payload.
type Frame struct {
	Opcode  Opcode
	Payload []byte
}
