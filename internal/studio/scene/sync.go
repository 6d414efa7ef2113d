package scene

import (
	"context"
	"sync"

	"building-studio/internal/common/logging"
	"building-studio/internal/studio/metrics"
	"building-studio/internal/studio/models"
)

// DefaultPreviewScale shrinks the preview relative to real meters.
const DefaultPreviewScale = 0.1

type Config struct {
	PreviewScale float64
	Logger       logging.Logger
	Metrics      *metrics.Studio
}

// ============================================================
// Synchronizer
// ============================================================

// Synchronizer rebuilds the preview from the shape model. Each Sync starts a
// new pass; asset loads of older passes are cancelled and their results
// dropped.
type Synchronizer struct {
	rc           *RenderContext
	loader       AssetLoader
	urls         *ObjectURLStore
	previewScale float64
	logger       logging.Logger
	metrics      *metrics.Studio

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	closed bool
}

func NewSynchronizer(rc *RenderContext, loader AssetLoader, urls *ObjectURLStore, cfg Config) *Synchronizer {
	if cfg.PreviewScale <= 0 {
		cfg.PreviewScale = DefaultPreviewScale
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Noop()
	}
	if urls == nil {
		urls = NewObjectURLStore()
	}
	return &Synchronizer{
		rc:           rc,
		loader:       loader,
		urls:         urls,
		previewScale: cfg.PreviewScale,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}
}

func (s *Synchronizer) Context() *RenderContext { return s.rc }

// Sync replaces the owned nodes with the given shapes and schedules the
// asset loads. The returned channel is closed when the pass has finished
// or was superseded.
func (s *Synchronizer) Sync(shapes []models.Shape, assets []*models.MeshAsset) <-chan struct{} {
	done := make(chan struct{})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(done)
		return done
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	nodes := make([]*Node, 0, len(shapes))
	for _, sh := range shapes {
		nodes = append(nodes, shapeNode(sh, s.previewScale))
	}
	err := s.rc.RemoveOwned()
	if err == nil {
		err = s.rc.Add(nodes...)
	}
	if err == nil {
		_, err = s.rc.Frame()
	}
	s.mu.Unlock()

	s.metrics.SceneSynced()
	if err != nil {
		cancel()
		close(done)
		return done
	}

	pending := make([]*models.MeshAsset, 0, len(assets))
	for _, a := range assets {
		if len(a.Instances) > 0 {
			pending = append(pending, a.Clone())
		}
	}

	go func() {
		defer close(done)
		defer cancel()
		for _, a := range pending {
			if ctx.Err() != nil {
				return
			}
			s.loadAsset(ctx, gen, a)
		}
	}()
	return done
}

// loadAsset loads one asset and adds a node per instance if the pass is
// still current. A temporary object URL is revoked whatever the outcome.
func (s *Synchronizer) loadAsset(ctx context.Context, gen uint64, a *models.MeshAsset) {
	url := a.UploadedURL
	if url == "" {
		if a.SourceFile == nil {
			return
		}
		url = s.urls.Create(a.SourceFile)
		defer s.urls.Revoke(url)
	}

	if s.loader == nil {
		return
	}
	model, err := s.loader.Load(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.metrics.AssetLoaded("error")
		loadErr := &models.AssetLoadError{AssetID: a.ID, Err: err}
		s.logger.Warn(ctx, "preview asset skipped", logging.String("asset_id", a.ID), logging.Err(loadErr))
		return
	}
	s.metrics.AssetLoaded("ok")

	nodes := make([]*Node, 0, len(a.Instances))
	for _, inst := range a.Instances {
		nodes = append(nodes, instanceNode(a.ID, model, inst, s.previewScale))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.closed {
		return
	}
	if err := s.rc.Add(nodes...); err != nil {
		return
	}
	s.rc.Frame()
}

// Close stops any running pass. Results that arrive later are discarded.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.gen++
	if s.cancel != nil {
		s.cancel()
	}
}
