package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"building-studio/internal/common/logging"
	"building-studio/internal/studio/assembler"
	"building-studio/internal/studio/capture"
	"building-studio/internal/studio/mapview"
	"building-studio/internal/studio/metrics"
	"building-studio/internal/studio/models"
	"building-studio/internal/studio/payload"
	"building-studio/internal/studio/scene"
	"building-studio/internal/studio/shape"

	"github.com/google/uuid"
)

var ErrClosed = errors.New("session closed")

type Config struct {
	Anchor         models.GeoPoint
	CloseThreshold float64
	PreviewScale   float64
	Limits         payload.Limits
}

// Deps are the collaborators shared by every session. Loader may be nil,
// in which case each session reads models with its own GLTFLoader.
type Deps struct {
	Uploader  assembler.Uploader
	Buildings payload.BuildingService
	Loader    scene.AssetLoader
	Backend   func() scene.Backend
	Logger    logging.Logger
	Metrics   *metrics.Studio
}

// ============================================================
// Session
// ============================================================

// Session is one authoring flow. All methods are serialized by a single
// mutex, the same way a UI event loop would run them.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	closed   bool
	anchor   models.GeoPoint
	limits   payload.Limits
	model    *shape.Model
	machine  *capture.Machine
	layers   *mapview.Layers
	render   *scene.RenderContext
	syncer   *scene.Synchronizer
	builder  *payload.Builder
	logger   logging.Logger
	metrics  *metrics.Studio
	lastSync <-chan struct{}
	lastUsed atomic.Int64 // unix nanos
}

func New(cfg Config, deps Deps) *Session {
	if deps.Logger == nil {
		deps.Logger = logging.Noop()
	}
	if cfg.Limits == (payload.Limits{}) {
		cfg.Limits = payload.DefaultLimits
	}

	id := uuid.NewString()
	logger := deps.Logger.With(logging.String("session_id", id))
	ctx, cancel := context.WithCancel(context.Background())

	var backend scene.Backend
	if deps.Backend != nil {
		backend = deps.Backend()
	}
	urls := scene.NewObjectURLStore()
	loader := deps.Loader
	if loader == nil {
		loader = scene.NewGLTFLoader(urls, nil, cfg.Limits.Enforced)
	}

	s := &Session{
		ID:        id,
		CreatedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		anchor:    cfg.Anchor,
		limits:    cfg.Limits,
		model:     shape.NewModel(),
		layers:    mapview.NewLayers(cfg.Anchor),
		render:    scene.NewRenderContext(backend),
		builder:   payload.NewBuilder(deps.Uploader, deps.Buildings, logger, deps.Metrics),
		logger:    logger,
		metrics:   deps.Metrics,
	}
	s.machine = capture.New(s.layers, s.model, capture.Config{
		CloseThreshold: cfg.CloseThreshold,
		Logger:         logger,
		Metrics:        deps.Metrics,
	})
	s.syncer = scene.NewSynchronizer(s.render, loader, urls, scene.Config{
		PreviewScale: cfg.PreviewScale,
		Logger:       logger,
		Metrics:      deps.Metrics,
	})
	s.lastUsed.Store(s.CreatedAt.UnixNano())
	s.builder.SetLimits(cfg.Limits)
	// Recording the URL lets a retried submission reuse the upload. The
	// model file sent with the form is not an asset and is ignored.
	s.builder.OnMeshUploaded(func(assetID, url string) {
		s.model.SetUploadedURL(assetID, url)
	})
	s.model.OnChange(s.resync)
	s.lastSync = s.syncer.Sync(nil, nil)

	deps.Metrics.SessionOpened()
	return s
}

// resync runs with s.mu held.
func (s *Session) resync() {
	s.lastSync = s.syncer.Sync(s.model.Shapes(), s.model.Assets())
}

func (s *Session) lock() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.touch()
	return nil
}

func (s *Session) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// IdleSince reports when the session last started an operation. It does
// not wait for a running one.
func (s *Session) IdleSince() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// Synced returns a channel closed when the latest preview pass is done.
func (s *Session) Synced() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

// ============================================================
// Anchor & drawing
// ============================================================

func (s *Session) Anchor() models.GeoPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.anchor
}

// SetAnchor moves the building location. The anchor is locked while a
// footprint is being drawn.
func (s *Session) SetAnchor(p models.GeoPoint) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	if s.machine.Drawing() {
		s.metrics.GuardRejected(string(models.GuardDrawing))
		return &models.GeometryGuardError{Reason: models.GuardDrawing, Message: "the anchor cannot move while drawing"}
	}
	s.anchor = p
	s.layers.SetAnchor(p)
	return nil
}

func (s *Session) EnableDraw() error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.machine.EnableDraw()
	s.layers.SetDrawing(true)
	return nil
}

func (s *Session) DisableDraw() error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.machine.DisableDraw()
	s.layers.SetDrawing(false)
	return nil
}

func (s *Session) DoubleClick(p models.GeoPoint) (capture.Result, *models.Prism, error) {
	if err := s.lock(); err != nil {
		return capture.ResultIgnored, nil, err
	}
	defer s.mu.Unlock()

	res, prism, err := s.machine.DoubleClick(p)
	if res == capture.ResultClosed {
		s.layers.SetDrawing(false)
	}
	return res, prism, err
}

func (s *Session) RightClick() (bool, error) {
	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	return s.machine.RightClick(), nil
}

func (s *Session) DrawState() capture.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.State()
}

func (s *Session) SetDrawHeight(h float64) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.model.SetDrawHeight(h)
}

func (s *Session) SetDrawScale(v float64) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.model.SetDrawScale(v)
}

// ============================================================
// Shapes & assets
// ============================================================

func (s *Session) AddBox(p shape.BoxParams) (*models.Box, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	return s.model.AddBox(p)
}

func (s *Session) AddCylinder(p shape.CylinderParams) (*models.Cylinder, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	return s.model.AddCylinder(p)
}

func (s *Session) RemoveShape(id string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.model.RemoveShape(id)
}

func (s *Session) Shapes() []models.Shape {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model.Shapes()
}

func (s *Session) Assets() []*models.MeshAsset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model.Assets()
}

// AttachModel gates a model file and registers it as an asset with one
// instance. The warning is set when the file exceeds the advertised size.
func (s *Session) AttachModel(file *models.File) (*models.MeshAsset, string, error) {
	if err := s.lock(); err != nil {
		return nil, "", err
	}
	defer s.mu.Unlock()

	warning, err := payload.CheckModelFile(file.Name, file.Size(), s.limits)
	if err != nil {
		return nil, "", err
	}
	return s.model.AttachAsset(file), warning, nil
}

func (s *Session) AddInstance(assetID string, inst models.MeshInstance) (models.MeshInstance, error) {
	if err := s.lock(); err != nil {
		return models.MeshInstance{}, err
	}
	defer s.mu.Unlock()
	return s.model.AddInstance(assetID, inst)
}

func (s *Session) UpdateInstance(assetID string, inst models.MeshInstance) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.model.UpdateInstance(assetID, inst)
}

func (s *Session) RemoveInstance(assetID, instanceID string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.model.RemoveInstance(assetID, instanceID)
}

func (s *Session) RemoveAsset(id string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.model.RemoveAsset(id)
}

// ============================================================
// Views
// ============================================================

func (s *Session) Map() mapview.Layers {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layers.Snapshot()
}

func (s *Session) MapSVG() (string, error) {
	s.touch()
	s.mu.Lock()
	snap := s.layers.Snapshot()
	s.mu.Unlock()
	return mapview.NewRenderer().Render(&snap)
}

func (s *Session) Scene() scene.Snapshot {
	s.touch()
	return s.render.Snapshot()
}

// ============================================================
// Submission
// ============================================================

// Submit creates the building from the current shapes and assets. On
// success the session starts over with an empty model.
func (s *Session) Submit(ctx context.Context, form payload.Form) (*payload.Result, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	ctx, cancel := s.bind(ctx)
	defer cancel()

	res, err := s.builder.Create(ctx, form, s.model.Shapes(), s.model.Assets(), s.anchor)
	if err != nil {
		return nil, err
	}

	s.machine.DisableDraw()
	s.layers.Clear()
	s.model.Reset()
	return res, nil
}

func (s *Session) UpdateBuilding(ctx context.Context, id int64, form payload.Form) (*payload.UpdateResult, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	ctx, cancel := s.bind(ctx)
	defer cancel()
	return s.builder.Update(ctx, id, form)
}

// bind derives a context that is cancelled with either the caller or the
// session.
func (s *Session) bind(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Close cancels in-flight calls and disposes the preview. It is safe to
// call more than once.
func (s *Session) Close() {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.syncer.Close()
	s.render.Dispose()
	s.metrics.SessionClosed()
	s.logger.Info(context.Background(), "session closed")
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
