package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verdandi_api_webhook_requests_total",
		Help: "Webhook trigger requests by outcome",
	}, []string{"outcome"})

	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "verdandi_api_stream_clients",
		Help: "Connected execution stream websocket clients",
	})
)
