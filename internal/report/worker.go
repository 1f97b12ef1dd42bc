// SPDX-License-Identifier: MIT

package report

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"

	"github.com/slhost/exibridge/internal/log"
	"github.com/slhost/exibridge/internal/metrics"
	"github.com/slhost/exibridge/internal/slippigg"
)

// replayChunkReset marks the first byte of a new game's replay stream; seeing
// it discards whatever was accumulated for the previous game.
const replayChunkReset = 0x35

// run is the worker goroutine. It drains the queue whenever nudged, performs
// one final single-attempt drain on shutdown, and exits.
func (r *Reporter) run() {
	defer close(r.done)

	// procCtx aborts in-flight work and retry sleeps the moment shutdown or
	// abandonment is signalled, so the final drain can take over promptly.
	procCtx, procCancel := context.WithCancel(r.runCtx)
	defer procCancel()
	go func() {
		<-r.shutdown
		procCancel()
	}()

	var replay replayAccumulator

	for {
		select {
		case <-r.notify:
			r.process(procCtx, &replay, false)
		case <-r.shutdown:
			r.process(r.runCtx, &replay, true)
			return
		}
	}
}

// replayAccumulator collects replay chunks between game reports.
type replayAccumulator struct {
	buf bytes.Buffer
}

func (a *replayAccumulator) push(chunk []byte) {
	if len(chunk) > 0 && chunk[0] == replayChunkReset {
		a.buf.Reset()
	}
	a.buf.Write(chunk)
}

func (a *replayAccumulator) take() []byte {
	data := append([]byte(nil), a.buf.Bytes()...)
	a.buf.Reset()
	return data
}

// process drains the queue until it is empty or the context dies. In final
// mode each job gets exactly one delivery attempt.
func (r *Reporter) process(ctx context.Context, replay *replayAccumulator, final bool) {
	for {
		j, ok := r.peek()
		if !ok {
			return
		}

		if ctx.Err() != nil {
			if !final {
				// Shutdown fired between deliveries: leave the queue intact
				// for the final single-attempt drain.
				return
			}
			// Grace window expired mid-drain.
			r.dropRemaining("abandoned")
			return
		}

		// Replay chunks and session starts never touch the network on their
		// own; they only adjust accumulation state.
		switch j.kind {
		case KindReplayChunk:
			replay.push(j.chunk)
			r.pop()
			continue
		case KindSessionStart:
			replay.buf.Reset()
		}

		uploadURL, err := r.deliver(ctx, j, final)
		switch {
		case err == nil:
			r.pop()
			metrics.IncJobDelivered(j.kind.String(), j.attempts)
			jobLogger := log.FromContext(log.ContextWithJobID(ctx, j.id))
			jobLogger.Info().
				Str("kind", j.kind.String()).
				Int("attempts", j.attempts).
				Msg("job delivered")

			if j.kind == KindGameReport && uploadURL != "" {
				r.uploadReplay(ctx, uploadURL, replay.take())
			}

		case errors.Is(err, context.Canceled) && !final:
			// Shutdown fired mid-retry; leave the job queued for the final
			// single-attempt drain.
			return

		default:
			r.pop()
			metrics.IncJobDropped(j.kind.String(), "max_attempts")
			jobLogger := log.FromContext(log.ContextWithJobID(ctx, j.id))
			jobLogger.Error().
				Err(err).
				Str("kind", j.kind.String()).
				Int("attempts", j.attempts).
				Msg("job dropped after delivery failure")
		}
	}
}

// deliver sends one job with bounded exponential backoff. Final mode limits
// the job to a single attempt so shutdown cannot stall on a dead endpoint.
func (r *Reporter) deliver(ctx context.Context, j *job, final bool) (string, error) {
	maxAttempts := r.cfg.MaxAttempts
	if final {
		maxAttempts = 1
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.cfg.BaseDelay
	expo.Multiplier = 2
	expo.MaxInterval = r.cfg.MaxDelay
	expo.RandomizationFactor = 0

	operation := func() (string, error) {
		j.attempts++
		return r.send(ctx, j)
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(maxAttempts)), // #nosec G115 -- clamped >= 1
	)
}

// send performs one delivery attempt for the job.
func (r *Reporter) send(ctx context.Context, j *job) (string, error) {
	uid, playKey := r.creds.Credentials()

	switch j.kind {
	case KindSessionStart:
		return "", r.endpoint.ReportMatchStatus(ctx, slippigg.StatusReport{
			UID:     uid,
			PlayKey: playKey,
			Status:  "SESSION_START",
		})

	case KindGameReport:
		payload := payloadFromReport(j.report, uid, playKey)
		return r.endpoint.ReportGame(ctx, payload)

	case KindMatchCompletion:
		endMode := int(j.endMode)
		return "", r.endpoint.ReportMatchStatus(ctx, slippigg.StatusReport{
			UID:     uid,
			PlayKey: playKey,
			MatchID: j.matchID,
			Status:  "COMPLETE",
			EndMode: &endMode,
		})

	case KindMatchAbandonment:
		return "", r.endpoint.ReportMatchStatus(ctx, slippigg.StatusReport{
			UID:     uid,
			PlayKey: playKey,
			MatchID: j.matchID,
			Status:  "ABANDONED",
		})

	default:
		return "", fmt.Errorf("unhandled job kind %d", j.kind)
	}
}

// uploadReplay compresses accumulated replay data and PUTs it to the signed
// URL. Best effort: failure is logged, never retried, never fatal.
func (r *Reporter) uploadReplay(ctx context.Context, uploadURL string, data []byte) {
	if len(data) == 0 {
		r.logger.Debug().Msg("no replay data accumulated, skipping upload")
		return
	}

	gzipped, err := gzipReplay(frameReplay(data))
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to compress replay data")
		return
	}

	if err := r.endpoint.UploadReplay(ctx, uploadURL, gzipped); err != nil {
		r.logger.Error().Err(err).Msg("failed to upload replay data")
		return
	}
	r.logger.Info().Int("raw_bytes", len(data)).Int("gzipped_bytes", len(gzipped)).Msg("replay uploaded")
}

// dropRemaining empties the queue, counting each job as abandoned.
func (r *Reporter) dropRemaining(reason string) {
	r.mu.Lock()
	dropped := r.queue
	r.queue = nil
	r.mu.Unlock()

	for _, j := range dropped {
		metrics.IncJobDropped(j.kind.String(), reason)
	}
	if len(dropped) > 0 {
		r.logger.Warn().Int("count", len(dropped)).Str("reason", reason).Msg("dropped queued jobs")
	}
}

// payloadFromReport flattens a GameReport into its wire form, preserving
// player insertion order.
func payloadFromReport(g *GameReport, uid, playKey string) *slippigg.GameReportPayload {
	payload := &slippigg.GameReportPayload{
		UID:            uid,
		PlayKey:        playKey,
		MatchID:        g.MatchID,
		PlayMode:       g.PlayMode,
		DurationFrames: g.DurationFrames,
		GameIndex:      g.GameIndex,
		TiebreakIndex:  g.TiebreakIndex,
		WinnerIndex:    g.WinnerIndex,
		GameEndMethod:  g.GameEndMethod,
		LRASInitiator:  g.LRASInitiator,
		StageID:        g.StageID,
		Players:        make([]slippigg.PlayerReportPayload, 0, len(g.Players)),
	}
	for _, p := range g.Players {
		payload.Players = append(payload.Players, slippigg.PlayerReportPayload{
			UID:             p.UID,
			SlotType:        p.SlotType,
			DamageDone:      p.DamageDone,
			StocksRemaining: p.StocksRemaining,
			CharacterID:     p.CharacterID,
			ColorID:         p.ColorID,
			StartingStocks:  p.StartingStocks,
			StartingPercent: p.StartingPercent,
		})
	}
	return payload
}

// frameReplay wraps raw replay data in the container header and footer the
// upload service expects.
func frameReplay(data []byte) []byte {
	header := []byte{'{', 'U', 3, 'r', 'a', 'w', '[', '$', 'U', '#', 'l'}
	footer := []byte{'U', 8, 'm', 'e', 't', 'a', 'd', 'a', 't', 'a', '{', '}', '}'}

	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(data))) // #nosec G115 -- replay sizes fit u32

	framed := make([]byte, 0, len(header)+4+len(data)+len(footer))
	framed = append(framed, header...)
	framed = append(framed, size[:]...)
	framed = append(framed, data...)
	framed = append(framed, footer...)
	return framed
}

func gzipReplay(data []byte) ([]byte, error) {
	var out bytes.Buffer
	enc := gzip.NewWriter(&out)
	if _, err := enc.Write(data); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
