// SPDX-License-Identifier: MIT

// Package metrics exposes prometheus collectors for the bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesDecoded counts fully assembled command frames by opcode.
	FramesDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exibridge_frames_decoded_total",
		Help: "Command frames assembled from bus writes, by opcode",
	}, []string{"opcode"})

	// FrameErrors counts framing/dispatch protocol errors.
	FrameErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exibridge_frame_errors_total",
		Help: "Protocol errors encountered while framing or dispatching",
	}, []string{"reason"})

	// JobsEnqueued counts delivery jobs accepted by the report queue.
	JobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exibridge_delivery_jobs_enqueued_total",
		Help: "Report delivery jobs enqueued, by kind",
	}, []string{"kind"})

	// JobsDelivered counts delivery jobs that reached the remote endpoint.
	JobsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exibridge_delivery_jobs_delivered_total",
		Help: "Report delivery jobs delivered successfully, by kind",
	}, []string{"kind"})

	// JobsDropped counts delivery jobs dropped after exhausting retries or
	// abandoned at shutdown.
	JobsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exibridge_delivery_jobs_dropped_total",
		Help: "Report delivery jobs dropped, by kind and reason",
	}, []string{"kind", "reason"})

	// DeliveryAttempts tracks how many attempts a delivered job needed.
	DeliveryAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "exibridge_delivery_attempts",
		Help:    "Attempts needed before a job was delivered",
		Buckets: []float64{1, 2, 3, 4, 5},
	})

	// PlaybackStarts counts songs handed to the audio output.
	PlaybackStarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exibridge_playback_starts_total",
		Help: "Songs started on the audio output",
	})

	// PlaybackErrors counts skipped playback attempts.
	PlaybackErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exibridge_playback_errors_total",
		Help: "Playback attempts skipped due to errors, by reason",
	}, []string{"reason"})
)

// IncFrameDecoded records one assembled frame for the given opcode name.
func IncFrameDecoded(opcode string) {
	FramesDecoded.WithLabelValues(opcode).Inc()
}

// IncFrameError records one protocol error.
func IncFrameError(reason string) {
	FrameErrors.WithLabelValues(reason).Inc()
}

// IncJobEnqueued records one enqueued delivery job.
func IncJobEnqueued(kind string) {
	JobsEnqueued.WithLabelValues(kind).Inc()
}

// IncJobDelivered records one delivered job and the attempts it took.
func IncJobDelivered(kind string, attempts int) {
	JobsDelivered.WithLabelValues(kind).Inc()
	DeliveryAttempts.Observe(float64(attempts))
}

// IncJobDropped records one dropped job.
func IncJobDropped(kind, reason string) {
	JobsDropped.WithLabelValues(kind, reason).Inc()
}

// IncPlaybackError records one skipped playback attempt.
func IncPlaybackError(reason string) {
	PlaybackErrors.WithLabelValues(reason).Inc()
}
