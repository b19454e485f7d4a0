// Package service wires recognition workers, the gallery and the attendance
// ledger together and exposes the operations the HTTP API and CLI need.
package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/okian/facegate/internal/adapters/camera"
	"github.com/okian/facegate/internal/adapters/detector"
	"github.com/okian/facegate/internal/adapters/mq/mqtt"
	eventqueue "github.com/okian/facegate/internal/adapters/mq/queue"
	publisher "github.com/okian/facegate/internal/adapters/mq/worker"
	repository "github.com/okian/facegate/internal/adapters/repository"
	"github.com/okian/facegate/internal/config"
	"github.com/okian/facegate/internal/domain/debounce"
	"github.com/okian/facegate/internal/domain/gallery"
	"github.com/okian/facegate/internal/domain/ledger"
	"github.com/okian/facegate/internal/domain/matcher"
	"github.com/okian/facegate/internal/domain/model"
	"github.com/okian/facegate/internal/domain/pacing"
	"github.com/okian/facegate/internal/enroll"
	"github.com/okian/facegate/internal/recognition"
	"github.com/okian/facegate/pkg/logger"
	"github.com/okian/facegate/pkg/metrics"
)

// ChannelConfig names the source for each channel to start. An empty id
// leaves that channel alone.
type ChannelConfig struct {
	Entry string `json:"entry,omitempty"`
	Exit  string `json:"exit,omitempty"`
}

func (c ChannelConfig) sources() []channelSource {
	var out []channelSource
	if c.Entry != "" {
		out = append(out, channelSource{model.Entry, c.Entry})
	}
	if c.Exit != "" {
		out = append(out, channelSource{model.Exit, c.Exit})
	}
	return out
}

type channelSource struct {
	channel model.Channel
	id      string
}

// GalleryInfo describes the loaded gallery.
type GalleryInfo struct {
	Path       string `json:"path"`
	Mode       string `json:"mode"`
	Identities int    `json:"identities"`
	Embeddings int    `json:"embeddings"`
	Dim        int    `json:"dim"`
}

// LedgerInfo describes the attendance ledger.
type LedgerInfo struct {
	Backend string `json:"backend"`
	Policy  string `json:"policy"`
	Records int    `json:"records"`
	Dirty   bool   `json:"dirty"`
}

// NotifyInfo describes event fan-out.
type NotifyInfo struct {
	Enabled  bool `json:"enabled"`
	Queued   int  `json:"queued"`
	Capacity int  `json:"capacity"`
	Workers  int  `json:"workers"`
}

// Report is the service-wide status.
type Report struct {
	Started       bool                                 `json:"started"`
	Channels      map[model.Channel]recognition.Status `json:"channels"`
	Gallery       GalleryInfo                          `json:"gallery"`
	Ledger        LedgerInfo                           `json:"ledger"`
	Notifications NotifyInfo                           `json:"notifications"`
}

// DetectResult is the outcome of an on-demand detection.
type DetectResult struct {
	Channel      model.Channel     `json:"channel,omitempty"`
	Faces        []model.FaceMatch `json:"faces"`
	ProcessingMs float64           `json:"processing_ms"`
}

// EnrollResult is the outcome of a dataset enrollment.
type EnrollResult struct {
	Dataset    string        `json:"dataset"`
	Report     enroll.Report `json:"report"`
	Identities []string      `json:"identities"`
	Gallery    GalleryInfo   `json:"gallery"`
}

// Service is the attendance engine: it owns the per-channel workers and the
// shared gallery and ledger.
type Service struct {
	mu sync.RWMutex

	cfg      *config.Config
	resolver *camera.Resolver
	detector recognition.Detector
	matcher  *matcher.Matcher
	gallery  *gallery.Holder
	clock    pacing.Clock

	store     repository.Store
	ownStore  bool
	publisher publisher.Publisher
	ownPub    bool

	// Set by Start.
	loc       *time.Location
	ledger    *ledger.Ledger
	queue     *eventqueue.InMemoryQueue
	pool      *publisher.Pool
	scheduler *gocron.Scheduler
	started   bool

	chMu    sync.Mutex
	workers map[model.Channel]*recognition.Worker

	enrolling atomic.Bool

	logger logger.Logger
}

// New creates a stopped Service from cfg.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{
		cfg:      cfg,
		resolver: camera.NewResolver(),
		matcher:  matcher.New(matcher.WithThreshold(cfg.MatchThreshold)),
		gallery:  gallery.NewHolder(nil),
		clock:    pacing.SystemClock{},
		ownStore: true,
		workers:  make(map[model.Channel]*recognition.Worker),
		logger:   logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.detector == nil {
		s.detector = detector.New(cfg.DetectorURL,
			detector.WithTimeout(cfg.DetectorTimeout),
			detector.WithMaxSide(cfg.DetectorMaxSide),
			detector.WithJPEGQuality(cfg.DetectorJPEGQuality),
		)
	}
	return s
}

// Start loads the ledger and gallery, starts notifications and scheduled
// jobs. Channels are started separately.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting attendance service...")

	loc, err := s.cfg.Location()
	if err != nil {
		return err
	}
	policy, err := debounce.New(s.cfg.DebouncePolicy, debounce.WithWindow(s.cfg.Cooldown))
	if err != nil {
		return err
	}

	if s.store == nil {
		store, err := repository.Open(ctx, s.cfg.LedgerBackend, s.cfg.LedgerPath, s.cfg.LedgerDSN)
		if err != nil {
			return fmt.Errorf("open ledger store: %w", err)
		}
		s.store, s.ownStore = store, true
	}

	opts := []ledger.Option{
		ledger.WithLocation(loc),
		ledger.WithPolicy(policy),
		ledger.WithBackendName(s.store.Name()),
	}
	if err := s.startNotifications(ctx); err != nil {
		s.closeStore(ctx)
		return err
	}
	if s.queue != nil {
		opts = append(opts, ledger.WithNotifier(s.queue))
	}

	led := ledger.New(s.store, opts...)
	if err := led.Load(ctx); err != nil {
		s.stopNotifications(ctx)
		s.closeStore(ctx)
		return fmt.Errorf("load ledger: %w", err)
	}
	s.ledger = led
	s.loc = loc

	if _, err := s.reloadGallery(ctx); err != nil {
		s.logger.Warn(ctx, "gallery not loaded, every face is unknown until it is reloaded", logger.Error(err))
	}

	if err := s.startScheduler(ctx, loc); err != nil {
		s.stopNotifications(ctx)
		s.closeStore(ctx)
		return err
	}

	s.started = true
	s.logger.Info(ctx, "attendance service started",
		logger.String("backend", s.store.Name()),
		logger.String("policy", policy.Name()),
		logger.Int("records", led.Len()),
		logger.Int("identities", s.gallery.Load().Len()),
	)
	return nil
}

// startNotifications builds the queue and publisher pool when a publisher is
// configured. A broker that does not answer yet is not fatal; the client
// keeps reconnecting.
func (s *Service) startNotifications(ctx context.Context) error {
	if s.publisher == nil && s.cfg.MQTTBroker != "" {
		p := mqtt.New(s.cfg.MQTTBroker,
			mqtt.WithTopic(s.cfg.MQTTTopic),
			mqtt.WithClientID(s.cfg.MQTTClientID),
			mqtt.WithQoS(s.cfg.MQTTQoS),
		)
		if err := p.Connect(ctx); err != nil {
			if !errors.Is(err, mqtt.ErrTimeout) {
				return fmt.Errorf("connect mqtt: %w", err)
			}
			s.logger.Warn(ctx, "mqtt broker not reachable yet", logger.Error(err))
		}
		s.publisher, s.ownPub = p, true
	}
	if s.publisher == nil {
		s.logger.Info(ctx, "notifications disabled, no broker configured")
		return nil
	}

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.cfg.NotifyQueueSize))
	s.pool = publisher.NewPool(s.cfg.NotifyWorkers, s.queue, s.publisher)
	s.pool.Start(context.WithoutCancel(ctx))
	return nil
}

func (s *Service) stopNotifications(ctx context.Context) {
	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "publisher pool shutdown", logger.Error(err))
		}
	}
	if s.ownPub {
		if c, ok := s.publisher.(io.Closer); ok {
			_ = c.Close()
		}
		s.publisher, s.ownPub = nil, false
	}
	s.pool, s.queue = nil, nil
}

func (s *Service) closeStore(ctx context.Context) {
	if s.store == nil || !s.ownStore {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "closing ledger store", logger.Error(err))
	}
	s.store = nil
}

// Stop stops the channels, flushes the ledger and releases everything Start
// acquired.
func (s *Service) Stop(ctx context.Context) error {
	if err := s.StopChannels(ctx); err != nil {
		s.logger.Warn(ctx, "stopping channels", logger.Error(err))
	}

	// Jobs take s.mu, so the scheduler is stopped outside it.
	s.mu.Lock()
	sched := s.scheduler
	s.scheduler = nil
	s.mu.Unlock()
	if sched != nil {
		sched.Stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping attendance service...")

	flushErr := s.ledger.Flush(ctx)
	if flushErr != nil {
		s.logger.Error(ctx, "final ledger flush failed", logger.Error(flushErr))
	}

	s.stopNotifications(ctx)
	s.closeStore(ctx)

	s.started = false
	s.logger.Info(ctx, "attendance service stopped")
	return flushErr
}

// Started reports whether Start has completed.
func (s *Service) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// DefaultChannels returns the configured source ids for both channels.
func (s *Service) DefaultChannels() ChannelConfig {
	return ChannelConfig{Entry: s.cfg.EntrySource, Exit: s.cfg.ExitSource}
}

// StartChannels starts a worker for every channel cc names. Nothing is
// started when any requested channel is already active; a failure stops the
// workers this call started.
func (s *Service) StartChannels(ctx context.Context, cc ChannelConfig) error {
	requested := cc.sources()
	if len(requested) == 0 {
		return ErrNoChannels
	}

	s.mu.RLock()
	led, started := s.ledger, s.started
	s.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}

	s.chMu.Lock()
	defer s.chMu.Unlock()

	for _, r := range requested {
		if w := s.workers[r.channel]; w != nil && w.State() != recognition.Stopped {
			return fmt.Errorf("%w: %s", ErrAlreadyActive, r.channel)
		}
	}

	deps := recognition.Deps{
		Detector: s.detector,
		Matcher:  s.matcher,
		Gallery:  s.gallery,
		Recorder: led,
	}

	var launched []*recognition.Worker
	for _, r := range requested {
		w, err := s.launch(ctx, r, deps)
		if err != nil {
			for _, prev := range launched {
				if stopErr := prev.Stop(ctx); stopErr != nil {
					s.logger.Warn(ctx, "rollback stop failed", logger.String("channel", prev.Channel().String()), logger.Error(stopErr))
				}
			}
			metrics.RecordErrorByComponent("service", "channel_start")
			return &ChannelError{Channel: r.channel, Err: err}
		}
		launched = append(launched, w)
		s.workers[r.channel] = w
	}
	return nil
}

func (s *Service) launch(ctx context.Context, r channelSource, deps recognition.Deps) (*recognition.Worker, error) {
	src, err := s.resolver.Resolve(r.id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", recognition.ErrSourceUnavailable, err)
	}

	pacer := pacing.New(
		pacing.WithTargetPeriod(s.cfg.TargetPeriod),
		pacing.WithMinSleep(s.cfg.MinSleep),
		pacing.WithWindow(s.cfg.LatencyWindow),
		pacing.WithClock(s.clock),
	)
	w := recognition.NewWorker(r.channel, src, deps,
		recognition.WithStride(s.cfg.FrameStride),
		recognition.WithMaxReadFailures(s.cfg.MaxReadFailures),
		recognition.WithReadTimeout(s.cfg.ReadTimeout),
		recognition.WithRetryBackoff(s.cfg.RetryBackoff),
		recognition.WithStopTimeout(s.cfg.StopTimeout),
		recognition.WithClock(s.clock),
		recognition.WithPacer(pacer),
	)
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// StopChannels stops every worker. Channels that never started are skipped.
func (s *Service) StopChannels(ctx context.Context) error {
	s.chMu.Lock()
	workers := make([]*recognition.Worker, 0, len(s.workers))
	for _, ch := range model.Channels() {
		if w := s.workers[ch]; w != nil {
			workers = append(workers, w)
		}
	}
	s.chMu.Unlock()

	var errs []error
	for _, w := range workers {
		if err := w.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) worker(ch model.Channel) *recognition.Worker {
	s.chMu.Lock()
	defer s.chMu.Unlock()
	return s.workers[ch]
}

// Status returns every channel's worker state.
func (s *Service) Status() map[model.Channel]recognition.Status {
	out := make(map[model.Channel]recognition.Status, len(model.Channels()))
	for _, ch := range model.Channels() {
		if w := s.worker(ch); w != nil {
			out[ch] = w.Status()
			continue
		}
		out[ch] = recognition.Status{Channel: ch, State: recognition.Stopped.String()}
	}
	return out
}

// LatestDetection returns the last processed result of a running channel.
func (s *Service) LatestDetection(ch model.Channel) (recognition.Result, error) {
	w := s.worker(ch)
	if w == nil || !w.Running() {
		return recognition.Result{}, fmt.Errorf("%w: %s", ErrNotActive, ch)
	}
	res, ok := w.LatestResult()
	if !ok {
		return recognition.Result{}, fmt.Errorf("%w: %s", ErrNoDetection, ch)
	}
	return res, nil
}

// LatestFrame returns the last frame a channel read, running or not.
func (s *Service) LatestFrame(ch model.Channel) (model.Frame, error) {
	w := s.worker(ch)
	if w == nil {
		return model.Frame{}, fmt.Errorf("%w: %s", ErrNotActive, ch)
	}
	frame, ok := w.LatestFrame()
	if !ok || frame.Image == nil {
		return model.Frame{}, fmt.Errorf("%w: %s", ErrNoFrame, ch)
	}
	return frame, nil
}

// Attendance returns ledger records matching f, sorted by date then identity.
func (s *Service) Attendance(_ context.Context, f ledger.Filter) ([]model.DayRecord, error) {
	s.mu.RLock()
	led := s.ledger
	s.mu.RUnlock()
	if led == nil {
		return nil, ErrNotStarted
	}
	return led.Snapshot(f), nil
}

// Location is the ledger's day-boundary zone.
func (s *Service) Location() *time.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.loc == nil {
		if loc, err := s.cfg.Location(); err == nil {
			return loc
		}
		return time.Local
	}
	return s.loc
}

// ReloadGallery reads the configured gallery file and swaps it in. A missing
// file installs an empty gallery; a corrupt one keeps the current gallery.
func (s *Service) ReloadGallery(ctx context.Context) (GalleryInfo, error) {
	return s.reloadGallery(ctx)
}

func (s *Service) reloadGallery(ctx context.Context) (GalleryInfo, error) {
	mode, err := gallery.ParseMode(s.cfg.GalleryMode)
	if err != nil {
		return s.galleryInfo(), err
	}

	g, err := gallery.Load(s.cfg.GalleryPath, mode)
	switch {
	case errors.Is(err, gallery.ErrNotFound):
		s.logger.Warn(ctx, "gallery file missing, using an empty gallery", logger.String("path", s.cfg.GalleryPath))
		metrics.RecordGalleryReload("missing")
		g = gallery.Empty()
	case err != nil:
		metrics.RecordGalleryReload("error")
		return s.galleryInfo(), fmt.Errorf("reload gallery: %w", err)
	default:
		metrics.RecordGalleryReload("ok")
	}

	s.gallery.Swap(g)
	metrics.UpdateGallerySize(g.Len(), g.Size())
	s.logger.Info(ctx, "gallery loaded",
		logger.String("path", s.cfg.GalleryPath),
		logger.String("mode", string(g.Mode())),
		logger.Int("identities", g.Len()),
		logger.Int("embeddings", g.Size()),
	)
	return s.galleryInfo(), nil
}

func (s *Service) galleryInfo() GalleryInfo {
	g := s.gallery.Load()
	return GalleryInfo{
		Path:       s.cfg.GalleryPath,
		Mode:       string(g.Mode()),
		Identities: g.Len(),
		Embeddings: g.Size(),
		Dim:        g.Dim(),
	}
}

// Enroll builds a gallery from the configured dataset directory, writes it to
// the gallery path and swaps it in. The current gallery stays in place when
// enrollment or the write fails. One enrollment runs at a time.
func (s *Service) Enroll(ctx context.Context) (EnrollResult, error) {
	if !s.enrolling.CompareAndSwap(false, true) {
		return EnrollResult{}, ErrEnrollBusy
	}
	defer s.enrolling.Store(false)

	out := EnrollResult{Dataset: s.cfg.DatasetDir}
	mode, err := gallery.ParseMode(s.cfg.GalleryMode)
	if err != nil {
		return out, err
	}

	g, rep, err := enroll.New(s.detector,
		enroll.WithMode(mode),
		enroll.WithLogger(s.logger.Named("enroll")),
	).Run(ctx, s.cfg.DatasetDir)
	out.Report = rep
	if err != nil {
		metrics.RecordGalleryReload("error")
		return out, fmt.Errorf("enroll %s: %w", s.cfg.DatasetDir, err)
	}
	if err := gallery.Save(s.cfg.GalleryPath, g); err != nil {
		metrics.RecordGalleryReload("error")
		return out, fmt.Errorf("save gallery: %w", err)
	}

	s.gallery.Swap(g)
	metrics.RecordGalleryReload("ok")
	metrics.UpdateGallerySize(g.Len(), g.Size())
	s.logger.Info(ctx, "gallery enrolled",
		logger.String("dataset", s.cfg.DatasetDir),
		logger.String("path", s.cfg.GalleryPath),
		logger.Int("identities", g.Len()),
		logger.Int("embeddings", g.Size()),
	)

	out.Identities = g.Identities()
	out.Gallery = s.galleryInfo()
	return out, nil
}

// Gallery returns the current gallery snapshot.
func (s *Service) Gallery() *gallery.Gallery { return s.gallery.Load() }

// Detect runs detection and matching on img without recording attendance.
// The largest face is marked as the subject.
func (s *Service) Detect(ctx context.Context, img image.Image, ch model.Channel) (DetectResult, error) {
	if img == nil {
		return DetectResult{}, ErrInvalidImage
	}
	started := time.Now()
	faces, err := s.detector.Detect(ctx, img)
	if err != nil {
		metrics.RecordDetectionFailure("api")
		return DetectResult{}, fmt.Errorf("%w: %w", recognition.ErrDetection, err)
	}

	g := s.gallery.Load()
	subject := model.LargestFace(faces)
	out := DetectResult{Channel: ch, Faces: make([]model.FaceMatch, 0, len(faces))}
	for i, f := range faces {
		out.Faces = append(out.Faces, model.FaceMatch{
			Box:     f.Box,
			Match:   s.matcher.Match(f.Embedding, g),
			Subject: i == subject,
		})
	}
	out.ProcessingMs = float64(time.Since(started).Microseconds()) / 1000
	return out, nil
}

// Report returns the service-wide status.
func (s *Service) Report() Report {
	r := Report{
		Channels: s.Status(),
		Gallery:  s.galleryInfo(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	r.Started = s.started
	if s.ledger != nil {
		r.Ledger = LedgerInfo{
			Backend: s.ledger.Backend(),
			Policy:  s.ledger.Policy(),
			Records: s.ledger.Len(),
			Dirty:   s.ledger.Dirty(),
		}
	}
	if s.queue != nil {
		r.Notifications = NotifyInfo{
			Enabled:  true,
			Queued:   s.queue.Len(context.Background()),
			Capacity: s.queue.Cap(),
			Workers:  s.pool.Size(),
		}
	}
	return r
}
