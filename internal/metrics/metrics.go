// Package metrics holds the prometheus collectors shared by the streaming packages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "streamcore"

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of playback sessions currently registered.",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP GET requests issued, by result (ok, status, transport).",
	}, []string{"result"})

	HLSSegments = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hls",
		Name:      "segments_total",
		Help:      "HLS media segments opened for reading.",
	})

	HLSPlaylistRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hls",
		Name:      "playlist_refreshes_total",
		Help:      "Live media playlist refreshes after the known segments were exhausted.",
	})

	ICYMetadataBlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "icy",
		Name:      "metadata_blocks_total",
		Help:      "Interleaved ICY metadata blocks read, by result (parsed, empty, malformed).",
	}, []string{"result"})
)
