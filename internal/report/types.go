// SPDX-License-Identifier: MIT

// Package report implements the ordered, retrying delivery pipeline for
// session telemetry. Jobs are produced on the emulation thread and consumed
// by a single background worker so that delivery order within a session is
// exactly enqueue order.
package report

import (
	"context"

	"github.com/google/uuid"

	"github.com/slhost/exibridge/internal/slippigg"
)

// PlayerReport holds one player's results for a finished game.
type PlayerReport struct {
	UID             string
	SlotType        uint8
	DamageDone      float64
	StocksRemaining uint8
	CharacterID     uint8
	ColorID         uint8
	StartingStocks  uint8
	StartingPercent float64
}

// GameReport is the mutable aggregate built up over the course of a game.
// Ownership transfers to the pipeline on LogReport; the producer must not
// touch it afterwards.
type GameReport struct {
	MatchID        string
	PlayMode       uint8
	DurationFrames uint32
	GameIndex      uint32
	TiebreakIndex  uint32
	WinnerIndex    int8
	GameEndMethod  uint8
	LRASInitiator  int8
	StageID        uint16
	Players        []PlayerReport
}

// AddPlayer appends a player entry, preserving insertion order.
func (g *GameReport) AddPlayer(p PlayerReport) {
	g.Players = append(g.Players, p)
}

// JobKind tags a unit of delivery work.
type JobKind int

const (
	KindSessionStart JobKind = iota
	KindGameReport
	KindReplayChunk
	KindMatchCompletion
	KindMatchAbandonment
)

func (k JobKind) String() string {
	switch k {
	case KindSessionStart:
		return "session_start"
	case KindGameReport:
		return "game_report"
	case KindReplayChunk:
		return "replay_chunk"
	case KindMatchCompletion:
		return "match_completion"
	case KindMatchAbandonment:
		return "match_abandonment"
	default:
		return "unknown"
	}
}

// job is one queued unit of delivery work.
type job struct {
	id       string
	kind     JobKind
	report   *GameReport // KindGameReport
	chunk    []byte      // KindReplayChunk
	matchID  string      // KindMatchCompletion / KindMatchAbandonment
	endMode  uint8       // KindMatchCompletion
	attempts int
}

func newJob(kind JobKind) *job {
	return &job{id: uuid.NewString(), kind: kind}
}

// Endpoint is the remote report service surface the worker talks to.
// *slippigg.Client satisfies it.
type Endpoint interface {
	ReportGame(ctx context.Context, payload *slippigg.GameReportPayload) (uploadURL string, err error)
	ReportMatchStatus(ctx context.Context, report slippigg.StatusReport) error
	UploadReplay(ctx context.Context, uploadURL string, gzipped []byte) error
}

// CredentialSource supplies the uid/play-key pair stamped onto outgoing
// payloads. *user.Service satisfies it.
type CredentialSource interface {
	Credentials() (uid, playKey string)
}
