package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AllocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "allocations_total",
		Help: "Total number of allocation attempts by result (success or rejection reason)",
	}, []string{"result"})

	AllocationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "allocation_latency_seconds",
		Help:    "Latency of the allocation transaction",
		Buckets: prometheus.DefBuckets,
	})

	AllocationRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "allocation_retries_total",
		Help: "Total number of allocation transactions retried after a transient storage conflict",
	})

	CapacityRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capacity_rejections_total",
		Help: "Total number of reservations rejected for insufficient capacity",
	})

	TicketsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickets_issued_total",
		Help: "Total number of tickets issued",
	})

	CatalogCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_cache_total",
		Help: "Zone catalog cache lookups by outcome",
	}, []string{"outcome"})

	OutboxPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Total number of outbox events relayed to Kafka",
	})

	OutboxPublishFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_publish_failed_total",
		Help: "Total number of outbox relay failures",
	})

	FulfillmentEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_events_total",
		Help: "Total number of fulfillment events applied",
	}, []string{"type"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
