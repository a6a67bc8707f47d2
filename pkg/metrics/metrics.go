// Package metrics exposes Prometheus collectors for ingestion progress.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors for one run. A nil *Metrics records nothing.
type Metrics struct {
	postsDiscovered *prometheus.CounterVec
	imagesSaved     prometheus.Counter
	imagesSkipped   prometheus.Counter
	fetchAttempts   *prometheus.CounterVec
	commentsSaved   prometheus.Counter
	storeFlushes    *prometheus.CounterVec
	mirrorUploads   *prometheus.CounterVec
	phaseDuration   *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		postsDiscovered: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "igtags_posts_discovered_total",
				Help: "Posts accepted by discovery, labeled by company.",
			},
			[]string{"company"},
		),
		imagesSaved: f.NewCounter(prometheus.CounterOpts{
			Name: "igtags_images_saved_total",
			Help: "Images written and attached to a post.",
		}),
		imagesSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "igtags_images_skipped_total",
			Help: "Images skipped after exhausting retries.",
		}),
		fetchAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "igtags_fetch_attempts_total",
				Help: "Asset fetch attempts, labeled by result.",
			},
			[]string{"result"},
		),
		commentsSaved: f.NewCounter(prometheus.CounterOpts{
			Name: "igtags_comments_saved_total",
			Help: "Comments appended to posts.",
		}),
		storeFlushes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "igtags_store_flushes_total",
				Help: "Content store flushes, labeled by result.",
			},
			[]string{"result"},
		),
		mirrorUploads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "igtags_mirror_uploads_total",
				Help: "Mirror uploads, labeled by result.",
			},
			[]string{"result"},
		),
		phaseDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "igtags_phase_duration_seconds",
				Help:    "Wall time of each pipeline phase.",
				Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
			},
			[]string{"phase"},
		),
	}
}

// HandlerFor serves reg.
func HandlerFor(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (m *Metrics) PostDiscovered(company string) {
	if m == nil {
		return
	}
	m.postsDiscovered.WithLabelValues(company).Inc()
}

func (m *Metrics) ImageSaved() {
	if m == nil {
		return
	}
	m.imagesSaved.Inc()
}

func (m *Metrics) ImageSkipped() {
	if m == nil {
		return
	}
	m.imagesSkipped.Inc()
}

func (m *Metrics) FetchAttempt(ok bool) {
	if m == nil {
		return
	}
	m.fetchAttempts.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) CommentsSaved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.commentsSaved.Add(float64(n))
}

func (m *Metrics) StoreFlush(ok bool) {
	if m == nil {
		return
	}
	m.storeFlushes.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) MirrorUpload(ok bool) {
	if m == nil {
		return
	}
	m.mirrorUploads.WithLabelValues(result(ok)).Inc()
}

// ObservePhase records the time since start under phase.
func (m *Metrics) ObservePhase(phase string, start time.Time) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}
