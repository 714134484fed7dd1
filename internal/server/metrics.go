package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radview_uploads_total",
		Help: "DICOM uploads processed, by outcome.",
	}, []string{"status"})

	uploadSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "radview_upload_processing_seconds",
		Help:    "Wall time spent running the upload pipeline.",
		Buckets: prometheus.DefBuckets,
	})
)
