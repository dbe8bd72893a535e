// Package service composes the analysis engine with its stores and
// collaborators and implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/oratio/internal/adapters/repository"
	"github.com/okian/oratio/internal/adapters/scoringconfig"
	"github.com/okian/oratio/internal/adapters/transcription"
	"github.com/okian/oratio/internal/config"
	"github.com/okian/oratio/internal/domain/analysis"
	"github.com/okian/oratio/internal/domain/calibration"
	"github.com/okian/oratio/internal/domain/metricconfig"
	"github.com/okian/oratio/internal/domain/model"
	"github.com/okian/oratio/internal/domain/speechrate"
	"github.com/okian/oratio/pkg/logger"
	"github.com/okian/oratio/pkg/metrics"
)

// Key-value scopes.
const (
	overrideScope = "metric_config"
	deviceScope   = "device"
)

// Service implements the API dependencies for the scoring service.
type Service struct {
	mu sync.RWMutex

	// Core components
	engine       *analysis.Engine
	resolver     *metricconfig.Resolver
	cache        *metricconfig.Cache
	calibrations *calibration.Store
	pool         *pgxpool.Pool

	// Configuration
	targetLUFS           float64
	cacheTTL             time.Duration
	storageDriver        string
	storageDir           string
	postgresDSN          string
	scoringSource        string
	scoringURL           string
	transcriptionURL     string
	transcriptionTimeout time.Duration
	now                  func() time.Time

	// Injected collaborators take precedence over the configured ones.
	overrideKV  model.KeyValueStore
	deviceKV    model.KeyValueStore
	remote      metricconfig.RemoteSource
	transcriber speechrate.Transcriber
	ownsStores  bool

	// State
	started   bool
	startedAt time.Time
	analyses  atomic.Int64
	noSpeech  atomic.Int64

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTargetLUFS sets the normalization target.
func WithTargetLUFS(target float64) Option {
	return func(s *Service) { s.targetLUFS = target }
}

// WithConfigCacheTTL sets how long a remote scoring config is reused.
func WithConfigCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithStorage selects the key-value backend: memory, file (dir) or postgres (dsn).
func WithStorage(driver, dir, dsn string) Option {
	return func(s *Service) {
		s.storageDriver = driver
		s.storageDir = dir
		s.postgresDSN = dsn
	}
}

// WithScoringConfigSource selects the remote scoring-config collaborator.
func WithScoringConfigSource(kind, url string) Option {
	return func(s *Service) {
		s.scoringSource = kind
		s.scoringURL = url
	}
}

// WithTranscription enables the transcript speech-rate method.
func WithTranscription(url string, timeout time.Duration) Option {
	return func(s *Service) {
		s.transcriptionURL = url
		s.transcriptionTimeout = timeout
	}
}

// WithKeyValueStores injects the override and device stores.
func WithKeyValueStores(override, device model.KeyValueStore) Option {
	return func(s *Service) {
		s.overrideKV = override
		s.deviceKV = device
	}
}

// WithRemoteSource injects the remote scoring-config collaborator.
func WithRemoteSource(src metricconfig.RemoteSource) Option {
	return func(s *Service) { s.remote = src }
}

// WithTranscriber injects the transcription collaborator.
func WithTranscriber(t speechrate.Transcriber) Option {
	return func(s *Service) { s.transcriber = t }
}

// WithClock overrides the clock used by the config cache and calibration store.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// FromConfig maps process configuration onto options.
func FromConfig(cfg *config.Config) []Option {
	return []Option{
		WithTargetLUFS(cfg.TargetLUFS),
		WithConfigCacheTTL(cfg.ConfigCacheTTL),
		WithStorage(cfg.StorageDriver, cfg.StorageDir, cfg.PostgresDSN),
		WithScoringConfigSource(cfg.ScoringConfigSource, cfg.ScoringConfigURL),
		WithTranscription(cfg.TranscriptionURL, cfg.TranscriptionTimeout),
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		targetLUFS:    analysis.DefaultTargetLUFS,
		cacheTTL:      metricconfig.DefaultCacheTTL,
		storageDriver: config.StorageMemory,
		scoringSource: config.SourceNone,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the stores, collaborators and engine.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting scoring service...")

	if err := s.openStores(ctx); err != nil {
		s.closePool()
		return err
	}
	remote, err := s.remoteSource(ctx)
	if err != nil {
		s.closePool()
		return err
	}

	s.cache = metricconfig.NewCache(s.cacheTTL, metricconfig.WithClock(s.now))
	resolverOpts := []metricconfig.Option{
		metricconfig.WithOverrideStore(s.overrideKV),
		metricconfig.WithCache(s.cache),
		metricconfig.WithLogger(s.logger.Named("metricconfig")),
	}
	if remote != nil {
		resolverOpts = append(resolverOpts, metricconfig.WithRemoteSource(remote))
	}
	s.resolver = metricconfig.NewResolver(resolverOpts...)

	s.calibrations = calibration.NewStore(s.deviceKV,
		calibration.WithClock(s.now),
		calibration.WithLogger(s.logger.Named("calibration")),
	)

	estimatorOpts := []speechrate.Option{speechrate.WithLogger(s.logger.Named("speechrate"))}
	if t := s.transcriptionClient(); t != nil {
		estimatorOpts = append(estimatorOpts, speechrate.WithTranscriber(t))
	}

	s.engine = analysis.NewEngine(
		analysis.WithCalibrator(s.calibrations),
		analysis.WithConfigResolver(s.resolver),
		analysis.WithRateEstimator(speechrate.NewEstimator(estimatorOpts...)),
		analysis.WithTargetLUFS(s.targetLUFS),
		analysis.WithLogger(s.logger.Named("analysis")),
	)

	s.started = true
	s.startedAt = s.now()
	s.refreshProfileGauge(ctx)
	s.logger.Info(ctx, "scoring service started",
		logger.String("storage", s.storageDriver),
		logger.String("scoringConfigSource", s.scoringSource),
		logger.Bool("transcription", s.transcriber != nil || s.transcriptionURL != ""),
		logger.Float64("targetLUFS", s.targetLUFS),
	)
	return nil
}

func (s *Service) openStores(ctx context.Context) error {
	if s.overrideKV != nil && s.deviceKV != nil {
		return nil
	}
	s.ownsStores = true
	switch s.storageDriver {
	case config.StorageFile:
		override, err := repository.NewFileStore(s.storageDir, overrideScope)
		if err != nil {
			return fmt.Errorf("open override store: %w", err)
		}
		device, err := repository.NewFileStore(s.storageDir, deviceScope)
		if err != nil {
			return fmt.Errorf("open device store: %w", err)
		}
		s.overrideKV, s.deviceKV = override, device
	case config.StoragePostgres:
		pool, err := s.postgresPool(ctx)
		if err != nil {
			return err
		}
		override, err := repository.NewPostgresStore(ctx, pool, overrideScope)
		if err != nil {
			return err
		}
		device, err := repository.NewPostgresStore(ctx, pool, deviceScope)
		if err != nil {
			return err
		}
		s.overrideKV, s.deviceKV = override, device
	default:
		s.overrideKV = repository.NewMemoryStore(overrideScope)
		s.deviceKV = repository.NewMemoryStore(deviceScope)
	}
	return nil
}

func (s *Service) remoteSource(ctx context.Context) (metricconfig.RemoteSource, error) {
	if s.remote != nil {
		return s.remote, nil
	}
	switch s.scoringSource {
	case config.SourceHTTP:
		return scoringconfig.NewHTTPSource(s.scoringURL, nil, 0), nil
	case config.SourcePostgres:
		pool, err := s.postgresPool(ctx)
		if err != nil {
			return nil, err
		}
		return scoringconfig.NewPostgresSource(ctx, pool)
	default:
		return nil, nil
	}
}

func (s *Service) transcriptionClient() speechrate.Transcriber {
	if s.transcriber != nil {
		return s.transcriber
	}
	if s.transcriptionURL == "" {
		return nil
	}
	return transcription.New(s.transcriptionURL,
		transcription.WithTimeout(s.transcriptionTimeout),
		transcription.WithLogger(s.logger.Named("transcription")),
	)
}

func (s *Service) postgresPool(ctx context.Context) (*pgxpool.Pool, error) {
	if s.pool != nil {
		return s.pool, nil
	}
	pool, err := pgxpool.New(ctx, s.postgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s.pool = pool
	return pool, nil
}

func (s *Service) closePool() {
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
}

// Stop releases the database pool.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(context.Background(), "stopping scoring service...")
	s.closePool()
	if s.ownsStores {
		s.overrideKV, s.deviceKV = nil, nil
		s.ownsStores = false
	}
	s.started = false
	s.logger.Info(context.Background(), "scoring service stopped")
}

func (s *Service) running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// TargetLUFS returns the normalization target.
func (s *Service) TargetLUFS() float64 { return s.targetLUFS }

// Analyze runs one analysis and records its metrics.
func (s *Service) Analyze(ctx context.Context, in model.Input) (model.Result, error) {
	if !s.running() {
		return model.Result{}, ErrNotStarted
	}
	start := time.Now()
	r := s.engine.Analyze(ctx, in)
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	s.analyses.Add(1)
	metrics.RecordAnalysis(string(r.EmotionalFeedback), float64(r.OverallScore), elapsed)
	metrics.RecordConfigResolution(r.ConfigSource)
	if r.NoSpeech {
		s.noSpeech.Add(1)
		metrics.RecordNoSpeech()
		return r, nil
	}
	for id, score := range r.Scores() {
		metrics.RecordMetricScore(string(id), score)
	}
	if r.SpeechRate != nil {
		metrics.RecordSpeechRateMethod(string(r.SpeechRate.Method))
	}
	if r.Normalization != nil && r.Normalization.DeviceProfiled {
		metrics.RecordCalibration("apply")
	}
	return r, nil
}

// MetricConfig returns the effective configuration and where it came from.
func (s *Service) MetricConfig(ctx context.Context) (metricconfig.Resolution, error) {
	if !s.running() {
		return metricconfig.Resolution{}, ErrNotStarted
	}
	res := s.resolver.Resolve(ctx)
	metrics.RecordConfigResolution(string(res.Source))
	return res, nil
}

// SetOverride validates and stores a local override.
func (s *Service) SetOverride(ctx context.Context, raw []byte) (metricconfig.Config, error) {
	if !s.running() {
		return nil, ErrNotStarted
	}
	cfg, err := s.resolver.SetOverride(ctx, raw)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "metric override stored", logger.Int("metrics", len(cfg)))
	return cfg, nil
}

// ClearOverride removes the local override.
func (s *Service) ClearOverride(ctx context.Context) error {
	if !s.running() {
		return ErrNotStarted
	}
	if err := s.resolver.ClearOverride(ctx); err != nil {
		return err
	}
	s.logger.Info(ctx, "metric override cleared")
	return nil
}

// CreateProfile creates or replaces a device profile.
func (s *Service) CreateProfile(ctx context.Context, deviceID, label string, noiseFloor, referenceLevel, targetLevel float64) (calibration.Profile, error) {
	if !s.running() {
		return calibration.Profile{}, ErrNotStarted
	}
	p, err := s.calibrations.CreateProfile(ctx, deviceID, label, noiseFloor, referenceLevel, targetLevel)
	if err != nil {
		return calibration.Profile{}, err
	}
	metrics.RecordCalibration("create")
	s.refreshProfileGauge(ctx)
	return p, nil
}

// CalibrateFromRecording measures a calibration take and stores the profile.
func (s *Service) CalibrateFromRecording(ctx context.Context, deviceID, label string, samples []float64, sampleRate int) (calibration.Profile, error) {
	if !s.running() {
		return calibration.Profile{}, ErrNotStarted
	}
	p, err := s.calibrations.CalibrateFromRecording(ctx, deviceID, label, samples, sampleRate, s.targetLUFS)
	if err != nil {
		return calibration.Profile{}, err
	}
	metrics.RecordCalibration("recording")
	s.refreshProfileGauge(ctx)
	return p, nil
}

// Profiles lists every device profile.
func (s *Service) Profiles(ctx context.Context) ([]calibration.Profile, error) {
	if !s.running() {
		return nil, ErrNotStarted
	}
	return s.calibrations.List(ctx)
}

// Profile returns the profile of deviceID.
func (s *Service) Profile(ctx context.Context, deviceID string) (calibration.Profile, error) {
	if !s.running() {
		return calibration.Profile{}, ErrNotStarted
	}
	return s.calibrations.Get(ctx, deviceID)
}

// DeleteProfile removes the profile of deviceID.
func (s *Service) DeleteProfile(ctx context.Context, deviceID string) error {
	if !s.running() {
		return ErrNotStarted
	}
	if err := s.calibrations.Delete(ctx, deviceID); err != nil {
		return err
	}
	metrics.RecordCalibration("delete")
	s.refreshProfileGauge(ctx)
	return nil
}

// RecalibrationStatus grades whether deviceID should be recalibrated.
func (s *Service) RecalibrationStatus(ctx context.Context, deviceID string) (calibration.Status, error) {
	if !s.running() {
		return calibration.Status{}, ErrNotStarted
	}
	st, err := s.calibrations.GetRecalibrationStatus(ctx, deviceID)
	if err != nil {
		return calibration.Status{}, err
	}
	metrics.RecordRecalibrationCheck(st.Level)
	return st, nil
}

func (s *Service) refreshProfileGauge(ctx context.Context) {
	profiles, err := s.calibrations.List(ctx)
	if err != nil {
		s.logger.Warn(ctx, "count calibration profiles", logger.Error(err))
		return
	}
	metrics.UpdateCalibrationProfiles(len(profiles))
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":             s.started,
		"storage":             s.storageDriver,
		"scoringConfigSource": s.scoringSource,
		"targetLUFS":          s.targetLUFS,
		"analyses":            s.analyses.Load(),
		"noSpeech":            s.noSpeech.Load(),
	}

	if s.started {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		goroutines := runtime.NumGoroutine()
		stats["uptimeSeconds"] = s.now().Sub(s.startedAt).Seconds()
		stats["goroutines"] = goroutines
		stats["cacheTTLSeconds"] = s.cache.TTL().Seconds()
		if profiles, err := s.calibrations.List(context.Background()); err == nil {
			stats["profiles"] = len(profiles)
		}
		metrics.UpdateSystem(mem.HeapAlloc, goroutines)
	}
	return stats
}
