package metricconfig

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/oratio/internal/domain/model"
	"github.com/okian/oratio/pkg/logger"
)

const (
	remoteFlightKey     = "remote"
	defaultFetchTimeout = 10 * time.Second
)

// Option configures a Resolver.
type Option func(*Resolver)

// WithOverrideStore sets the store holding the local override.
func WithOverrideStore(s model.KeyValueStore) Option {
	return func(r *Resolver) { r.overrides = s }
}

// WithRemoteSource sets the scoring-config collaborator.
func WithRemoteSource(src RemoteSource) Option {
	return func(r *Resolver) { r.remote = src }
}

// WithCache shares a cache owned by the caller.
func WithCache(c *Cache) Option {
	return func(r *Resolver) {
		if c != nil {
			r.cache = c
		}
	}
}

// WithFetchTimeout bounds one remote fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.fetchTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// Resolver picks the effective metric configuration.
type Resolver struct {
	overrides model.KeyValueStore
	remote    RemoteSource
	cache     *Cache
	flight    singleflight.Group
	log       logger.Logger

	fetchTimeout time.Duration
}

// NewResolver creates a resolver. With no options it always serves the
// compiled defaults.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		cache:        NewCache(DefaultCacheTTL),
		log:          logger.Nop(),
		fetchTimeout: defaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the effective configuration. It never fails: every error
// path ends in the compiled defaults.
func (r *Resolver) Resolve(ctx context.Context) Resolution {
	if cfg, ok := r.override(ctx); ok {
		return Resolution{Config: cfg, Source: SourceOverride}
	}
	if cfg, ok := r.cache.Get(); ok {
		return Resolution{Config: cfg, Source: SourceCache}
	}
	if r.remote != nil {
		if cfg, ok := r.refresh(ctx); ok {
			return Resolution{Config: cfg, Source: SourceRemote}
		}
	}
	return Resolution{Config: Defaults(), Source: SourceDefault}
}

func (r *Resolver) override(ctx context.Context) (Config, bool) {
	if r.overrides == nil {
		return nil, false
	}
	raw, err := r.overrides.Get(ctx, OverrideKey)
	if err != nil {
		if !errors.Is(err, model.ErrKeyNotFound) {
			r.log.Warn(ctx, "metric override lookup failed", logger.Error(err))
		}
		return nil, false
	}
	res := ParseOverride(raw)
	if !res.Valid {
		r.log.Warn(ctx, "ignoring stored metric override", logger.String("reason", res.Reason))
		return nil, false
	}
	return res.Config, true
}

// refresh fetches the remote configuration. Concurrent callers share one
// round trip, which is detached from the cancellation of whichever caller
// started it; each caller stops waiting when its own ctx ends. Failures are
// not cached.
func (r *Resolver) refresh(ctx context.Context) (Config, bool) {
	ch := r.flight.DoChan(remoteFlightKey, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout)
		defer cancel()
		rows, err := r.remote.FetchScoringConfig(fetchCtx)
		if err != nil {
			return nil, fmt.Errorf("fetch scoring config: %w", err)
		}
		cfg, ok := MapRemote(rows)
		if !ok {
			return nil, errors.New("remote scoring config is empty")
		}
		r.cache.Put(cfg)
		return cfg, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res.Err = ctx.Err()
	}
	if res.Err != nil {
		r.log.Warn(ctx, "using default metric config", logger.Error(res.Err))
		return nil, false
	}
	return res.Val.(Config).Clone(), true
}

// SetOverride validates raw and stores it as the local override. Any
// rejected entry fails the whole update.
func (r *Resolver) SetOverride(ctx context.Context, raw []byte) (Config, error) {
	if r.overrides == nil {
		return nil, ErrNoOverrideStore
	}
	res := ParseOverride(raw)
	if len(res.Problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOverride, strings.Join(res.Problems, "; "))
	}
	if !res.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOverride, res.Reason)
	}
	if err := r.overrides.Set(ctx, OverrideKey, raw); err != nil {
		return nil, fmt.Errorf("store metric override: %w", err)
	}
	r.log.Info(ctx, "metric override stored", logger.Int("metrics", len(res.Config)))
	return res.Config, nil
}

// ClearOverride removes the local override.
func (r *Resolver) ClearOverride(ctx context.Context) error {
	if r.overrides == nil {
		return ErrNoOverrideStore
	}
	if err := r.overrides.Delete(ctx, OverrideKey); err != nil {
		return fmt.Errorf("clear metric override: %w", err)
	}
	return nil
}
