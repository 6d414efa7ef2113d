package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Studio bundles the authoring pipeline's Prometheus metrics. A nil
// *Studio is valid and records nothing.
type Studio struct {
	PrismsFinalized prometheus.Counter
	GuardRejections *prometheus.CounterVec
	Submissions     *prometheus.CounterVec
	Uploads         *prometheus.CounterVec
	AssetLoads      *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge
	SceneSyncPasses prometheus.Counter
}

// NewStudio registers the studio metrics against reg, defaulting to the
// global registry when nil.
func NewStudio(reg prometheus.Registerer) (*Studio, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	s := &Studio{
		PrismsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studio_prisms_finalized_total",
			Help: "Polygons closed on the map and committed as prisms.",
		}),
		GuardRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studio_guard_rejections_total",
			Help: "Drawing actions rejected locally, labeled by reason.",
		}, []string{"reason"}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studio_submissions_total",
			Help: "Building create/update submissions, labeled by kind and outcome.",
		}, []string{"kind", "outcome"}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studio_uploads_total",
			Help: "Uploads issued to the upload collaborator, labeled by kind and outcome.",
		}, []string{"kind", "outcome"}),
		AssetLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studio_asset_loads_total",
			Help: "Preview mesh loads, labeled by outcome.",
		}, []string{"outcome"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "studio_active_sessions",
			Help: "Authoring sessions currently open.",
		}),
		SceneSyncPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studio_scene_sync_passes_total",
			Help: "Full preview resynchronizations.",
		}),
	}

	collectors := []struct {
		name string
		c    prometheus.Collector
	}{
		{"studio_prisms_finalized_total", s.PrismsFinalized},
		{"studio_guard_rejections_total", s.GuardRejections},
		{"studio_submissions_total", s.Submissions},
		{"studio_uploads_total", s.Uploads},
		{"studio_asset_loads_total", s.AssetLoads},
		{"studio_active_sessions", s.ActiveSessions},
		{"studio_scene_sync_passes_total", s.SceneSyncPasses},
	}
	for _, c := range collectors {
		if err := reg.Register(c.c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				return nil, fmt.Errorf("register %s: already registered", c.name)
			}
			return nil, fmt.Errorf("register %s: %w", c.name, err)
		}
	}
	return s, nil
}

func (s *Studio) PrismFinalized() {
	if s == nil {
		return
	}
	s.PrismsFinalized.Inc()
}

func (s *Studio) GuardRejected(reason string) {
	if s == nil {
		return
	}
	s.GuardRejections.WithLabelValues(reason).Inc()
}

func (s *Studio) Submitted(kind, outcome string) {
	if s == nil {
		return
	}
	s.Submissions.WithLabelValues(kind, outcome).Inc()
}

func (s *Studio) Uploaded(kind, outcome string) {
	if s == nil {
		return
	}
	s.Uploads.WithLabelValues(kind, outcome).Inc()
}

func (s *Studio) AssetLoaded(outcome string) {
	if s == nil {
		return
	}
	s.AssetLoads.WithLabelValues(outcome).Inc()
}

func (s *Studio) SessionOpened() {
	if s == nil {
		return
	}
	s.ActiveSessions.Inc()
}

func (s *Studio) SessionClosed() {
	if s == nil {
		return
	}
	s.ActiveSessions.Dec()
}

func (s *Studio) SceneSynced() {
	if s == nil {
		return
	}
	s.SceneSyncPasses.Inc()
}
