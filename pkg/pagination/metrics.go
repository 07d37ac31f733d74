package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	selectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artic_selections_total",
		Help: "Select-first-N runs by outcome",
	}, []string{"outcome"}) // "complete", "exhausted", "incomplete"

	selectionPagesFetched = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "artic_selection_pages_fetched",
		Help:    "Pages fetched by one select-first-N run",
		Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
	})

	selectionPageRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "artic_selection_page_retries_total",
		Help: "Page fetches repeated during select-first-N runs",
	})
)
