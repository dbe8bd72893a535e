package calibration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/oratio/internal/domain/loudness"
	"github.com/okian/oratio/internal/domain/model"
	"github.com/okian/oratio/pkg/logger"
)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithIDGenerator replaces the recording id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// Store owns every calibration profile. All profiles live as one JSON array
// under a single key of a device-scoped key-value store.
type Store struct {
	mu    sync.Mutex
	kv    model.KeyValueStore
	now   func() time.Time
	newID func() string
	log   logger.Logger
}

// NewStore creates a calibration store over kv.
func NewStore(kv model.KeyValueStore, opts ...Option) *Store {
	s := &Store{
		kv:    kv,
		now:   time.Now,
		newID: uuid.NewString,
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// load reads every profile. Missing data is an empty list and so is data
// that cannot be parsed.
func (s *Store) load(ctx context.Context) ([]Profile, error) {
	raw, err := s.kv.Get(ctx, persistenceKey)
	if errors.Is(err, model.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load calibration profiles: %w", err)
	}
	var profiles []Profile
	if err := json.Unmarshal(raw, &profiles); err != nil {
		s.log.Warn(ctx, "discarding unreadable calibration profiles", logger.Error(err))
		return nil, nil
	}
	return profiles, nil
}

func (s *Store) save(ctx context.Context, profiles []Profile) error {
	raw, err := json.Marshal(profiles)
	if err != nil {
		return fmt.Errorf("encode calibration profiles: %w", err)
	}
	if err := s.kv.Set(ctx, persistenceKey, raw); err != nil {
		return fmt.Errorf("save calibration profiles: %w", err)
	}
	return nil
}

func indexOf(profiles []Profile, deviceID string) int {
	for i := range profiles {
		if profiles[i].DeviceID == deviceID {
			return i
		}
	}
	return -1
}

func validDevice(deviceID string) error {
	if strings.TrimSpace(deviceID) == "" {
		return ErrInvalidDevice
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// CreateProfile creates or replaces the profile of deviceID. The gain moves
// referenceLevel to targetLevel and is clamped to [MinGain, MaxGain].
func (s *Store) CreateProfile(ctx context.Context, deviceID, label string, noiseFloor, referenceLevel, targetLevel float64) (Profile, error) {
	if err := validDevice(deviceID); err != nil {
		return Profile{}, err
	}
	if !finite(noiseFloor) || !finite(referenceLevel) || !finite(targetLevel) {
		return Profile{}, fmt.Errorf("%w: levels must be finite", ErrInvalidProfile)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.load(ctx)
	if err != nil {
		return Profile{}, err
	}
	now := s.now()
	p := Profile{
		DeviceID:         deviceID,
		DeviceLabel:      label,
		NoiseFloor:       noiseFloor,
		ReferenceLevel:   referenceLevel,
		GainAdjustment:   GainFor(referenceLevel, targetLevel),
		CreatedAt:        now,
		LastUsed:         now,
		RecordingHistory: []RecordingStats{},
	}
	if i := indexOf(profiles, deviceID); i >= 0 {
		profiles[i] = p
	} else {
		profiles = append(profiles, p)
	}
	if err := s.save(ctx, profiles); err != nil {
		return Profile{}, err
	}
	s.log.Info(ctx, "calibration profile created",
		logger.String("device_id", deviceID),
		logger.Float64("gain", p.GainAdjustment))
	return p, nil
}

// CalibrateFromRecording measures a calibration recording and creates the
// profile from it.
func (s *Store) CalibrateFromRecording(ctx context.Context, deviceID, label string, samples []float64, sampleRate int, targetLevel float64) (Profile, error) {
	if len(samples) == 0 || sampleRate <= 0 {
		return Profile{}, ErrEmptyRecording
	}
	noiseFloor, reference := MeasureProfile(samples, sampleRate)
	return s.CreateProfile(ctx, deviceID, label, noiseFloor, reference, targetLevel)
}

// Get returns the profile of deviceID and touches its LastUsed time.
func (s *Store) Get(ctx context.Context, deviceID string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.load(ctx)
	if err != nil {
		return Profile{}, err
	}
	i := indexOf(profiles, deviceID)
	if i < 0 {
		return Profile{}, ErrProfileNotFound
	}
	profiles[i].LastUsed = s.now()
	if err := s.save(ctx, profiles); err != nil {
		return Profile{}, err
	}
	return profiles[i], nil
}

// List returns every profile ordered by device id.
func (s *Store) List(ctx context.Context) ([]Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].DeviceID < profiles[j].DeviceID })
	if profiles == nil {
		profiles = []Profile{}
	}
	return profiles, nil
}

// Delete removes the profile of deviceID.
func (s *Store) Delete(ctx context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.load(ctx)
	if err != nil {
		return err
	}
	i := indexOf(profiles, deviceID)
	if i < 0 {
		return ErrProfileNotFound
	}
	profiles = append(profiles[:i], profiles[i+1:]...)
	if len(profiles) == 0 {
		if err := s.kv.Delete(ctx, persistenceKey); err != nil {
			return fmt.Errorf("delete calibration profiles: %w", err)
		}
		return nil
	}
	return s.save(ctx, profiles)
}

// DeviceOffset returns targetLevel minus the reference level of deviceID, or
// 0 when the device is not calibrated. It does not touch LastUsed.
func (s *Store) DeviceOffset(ctx context.Context, deviceID string, targetLevel float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.load(ctx)
	if err != nil {
		s.log.Warn(ctx, "device offset unavailable", logger.String("device_id", deviceID), logger.Error(err))
		return 0
	}
	if i := indexOf(profiles, deviceID); i >= 0 {
		return targetLevel - profiles[i].ReferenceLevel
	}
	return 0
}

// Calibrated is the outcome of CalibrateAndNormalize.
type Calibrated struct {
	Samples           []float64
	OriginalLUFS      float64
	CalibratedLUFS    float64
	FinalLUFS         float64
	DeviceGain        float64
	NormalizationGain float64
	// DeviceOffset is target minus the profile reference level, 0 without a profile.
	DeviceOffset float64
	Profiled     bool
}

// Normalization converts c into result diagnostics.
func (c Calibrated) Normalization() *model.Normalization {
	return &model.Normalization{
		OriginalLUFS:      model.LUFS(c.OriginalLUFS),
		CalibratedLUFS:    model.LUFS(c.CalibratedLUFS),
		FinalLUFS:         model.LUFS(c.FinalLUFS),
		DeviceGain:        c.DeviceGain,
		NormalizationGain: c.NormalizationGain,
		DeviceProfiled:    c.Profiled,
	}
}

// CalibrateAndNormalize applies the device gain of deviceID (when the device
// has a profile with non-unity gain) and then normalizes to targetLUFS.
// A calibrated device gets a history entry. The signal processing runs
// without holding the store lock; the history append re-reads the profile.
//
// The returned Calibrated is always usable. A non-nil error only reports that
// the profile could not be read or the history could not be persisted.
func (s *Store) CalibrateAndNormalize(ctx context.Context, samples []float64, sampleRate int, deviceID string, targetLUFS float64) (Calibrated, error) {
	s.mu.Lock()
	profiles, loadErr := s.load(ctx)
	s.mu.Unlock()

	out := Calibrated{DeviceGain: 1}
	out.OriginalLUFS = loudness.CalculateLUFS(samples, sampleRate)

	gained := samples
	if i := indexOf(profiles, deviceID); i >= 0 {
		p := profiles[i]
		out.Profiled = true
		out.DeviceOffset = targetLUFS - p.ReferenceLevel
		if p.GainAdjustment != 1 && p.GainAdjustment > 0 {
			out.DeviceGain = p.GainAdjustment
			gained = loudness.ApplyGain(samples, p.GainAdjustment)
		}
	}
	if out.DeviceGain == 1 {
		out.CalibratedLUFS = out.OriginalLUFS
	} else {
		out.CalibratedLUFS = loudness.CalculateLUFS(gained, sampleRate)
	}

	norm := loudness.NormalizeToLUFS(gained, sampleRate, targetLUFS)
	out.Samples = norm.Samples
	out.NormalizationGain = norm.GainLinear
	out.FinalLUFS = loudness.CalculateLUFS(norm.Samples, sampleRate)

	if loadErr != nil {
		return out, loadErr
	}
	if !out.Profiled {
		return out, nil
	}
	return out, s.recordHistory(ctx, deviceID, RecordingStats{
		OriginalLUFS:   model.LUFS(out.OriginalLUFS),
		CalibratedLUFS: model.LUFS(out.CalibratedLUFS),
		FinalLUFS:      model.LUFS(out.FinalLUFS),
		NoiseFloor:     MeasureNoiseFloor(samples, sampleRate),
	})
}

// recordHistory appends stats to the profile of deviceID as it is stored
// now. A profile deleted in the meantime is left alone.
func (s *Store) recordHistory(ctx context.Context, deviceID string, stats RecordingStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.load(ctx)
	if err != nil {
		return err
	}
	i := indexOf(profiles, deviceID)
	if i < 0 {
		return nil
	}
	now := s.now()
	stats.ID = s.newID()
	stats.Timestamp = now
	profiles[i].LastUsed = now
	profiles[i].appendHistory(stats)
	return s.save(ctx, profiles)
}
