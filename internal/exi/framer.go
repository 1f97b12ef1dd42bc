// SPDX-License-Identifier: MIT

package exi

import (
	"encoding/binary"

	"github.com/rs/zerolog"

	"github.com/slhost/exibridge/internal/log"
	"github.com/slhost/exibridge/internal/metrics"
)

// Framer reassembles the bus write stream into complete frames. Bus writes
// need not align with frame boundaries, so partial bytes persist across Feed
// calls. Not safe for concurrent use; the owning Device serializes access.
type Framer struct {
	logger zerolog.Logger
	buf    []byte
}

func NewFramer() *Framer {
	return &Framer{logger: log.WithComponent("framer")}
}

// Feed appends p to the pending byte stream and returns every frame that is
// now complete. Partial trailing bytes stay buffered for the next call.
//
// An unknown opcode has an unknowable payload length, so the only safe resync
// point is the end of the buffered stream: everything pending is dropped and
// framing restarts clean at the next Feed.
func (f *Framer) Feed(p []byte) []Frame {
	f.buf = append(f.buf, p...)

	var frames []Frame
	for len(f.buf) > 0 {
		op := Opcode(f.buf[0])
		size, ok := payloadSizes[op]
		if !ok {
			f.logger.Warn().
				Uint8("opcode", byte(op)).
				Int("dropped_bytes", len(f.buf)).
				Msg("unknown opcode, dropping buffered stream")
			metrics.IncFrameError("unknown_opcode")
			f.buf = nil
			break
		}

		headerLen := 1
		if size == variablePayload {
			if len(f.buf) < 5 {
				break
			}
			size = int(binary.BigEndian.Uint32(f.buf[1:5]))
			if size > maxPayloadSize {
				f.logger.Warn().
					Str("opcode", op.String()).
					Int("declared_size", size).
					Msg("payload length prefix exceeds limit, dropping buffered stream")
				metrics.IncFrameError("oversized_payload")
				f.buf = nil
				break
			}
			headerLen = 5
		}

		total := headerLen + size
		if len(f.buf) < total {
			break
		}

		frames = append(frames, Frame{
			Opcode:  op,
			Payload: append([]byte(nil), f.buf[headerLen:total]...),
		})
		f.buf = f.buf[total:]
		metrics.IncFrameDecoded(op.String())
	}

	if len(f.buf) == 0 {
		f.buf = nil
	}
	return frames
}
