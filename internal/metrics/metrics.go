// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

// Package metrics exposes Prometheus instrumentation for the API surface,
// the processing pipeline, clustering runs, and the AI provider client.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API metrics.
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keepstack_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "keepstack_api_active_requests",
			Help: "Number of API requests currently in flight",
		},
	)

	// Pipeline metrics.
	PipelineJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keepstack_pipeline_jobs_total",
			Help: "Content pipeline runs by outcome",
		},
		[]string{"outcome"}, // "ready", "failed", "skipped"
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keepstack_pipeline_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"}, // "ingest", "classify", "vectorise"
	)

	// Clustering metrics.
	ClusteringRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keepstack_clustering_runs_total",
			Help: "Clustering runs by outcome",
		},
		[]string{"outcome"}, // "completed", "failed"
	)

	ClustersProduced = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "keepstack_clusters_produced",
			Help:    "Clusters produced per (user, category) run",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)

	// AI provider metrics.
	AIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keepstack_ai_requests_total",
			Help: "AI provider calls by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"}, // endpoint: "embeddings", "chat"
	)

	AIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keepstack_ai_request_duration_seconds",
			Help:    "Duration of AI provider calls in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	// Queue metrics.
	QueueMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keepstack_queue_messages_total",
			Help: "Queue messages by topic and outcome",
		},
		[]string{"topic", "outcome"}, // "acked", "nacked"
	)
)

// RecordAPIRequest records one finished API request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight gauge.
func TrackActiveRequest(active bool) {
	if active {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordAIRequest records one provider call.
func RecordAIRequest(endpoint, outcome string, duration time.Duration) {
	AIRequests.WithLabelValues(endpoint, outcome).Inc()
	AIRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
