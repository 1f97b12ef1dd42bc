// SPDX-License-Identifier: MIT

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(FramesDecoded.WithLabelValues("test_opcode"))
	IncFrameDecoded("test_opcode")
	after := testutil.ToFloat64(FramesDecoded.WithLabelValues("test_opcode"))
	assert.Equal(t, before+1, after)
}

func TestJobCounters(t *testing.T) {
	before := testutil.ToFloat64(JobsDropped.WithLabelValues("game_report", "max_attempts"))
	IncJobDropped("game_report", "max_attempts")
	after := testutil.ToFloat64(JobsDropped.WithLabelValues("game_report", "max_attempts"))
	assert.Equal(t, before+1, after)

	IncJobEnqueued("game_report")
	IncJobDelivered("game_report", 2)
	assert.GreaterOrEqual(t, testutil.ToFloat64(JobsDelivered.WithLabelValues("game_report")), 1.0)
}
