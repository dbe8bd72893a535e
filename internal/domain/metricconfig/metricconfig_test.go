package metricconfig_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/oratio/internal/adapters/repository"
	"github.com/okian/oratio/internal/domain/metricconfig"
	"github.com/okian/oratio/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func f(v float64) *float64 { return &v }

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type countingSource struct {
	calls atomic.Int32
	rows  []metricconfig.RemoteRow
	err   error
}

func (s *countingSource) FetchScoringConfig(context.Context) ([]metricconfig.RemoteRow, error) {
	s.calls.Add(1)
	return s.rows, s.err
}

func TestDefaults(t *testing.T) {
	Convey("Given the compiled defaults", t, func() {
		cfg := metricconfig.Defaults()

		Convey("Then every metric is present and enabled in order", func() {
			So(len(cfg), ShouldEqual, len(types.AllMetrics))
			for i, id := range types.AllMetrics {
				So(cfg[i].ID, ShouldEqual, id)
				So(cfg[i].Enabled, ShouldBeTrue)
				So(cfg[i].Weight, ShouldBeGreaterThan, 0)
			}
		})

		Convey("And the ideal volume is -15 dB", func() {
			v, ok := cfg.Get(types.Volume)
			So(ok, ShouldBeTrue)
			So(v.Thresholds.Ideal, ShouldEqual, -15)
		})

		Convey("And callers cannot mutate the compiled copy", func() {
			cfg[0].Weight = 99
			So(metricconfig.Defaults()[0].Weight, ShouldNotEqual, 99)
		})
	})
}

func TestParseOverride(t *testing.T) {
	Convey("Given override documents", t, func() {
		Convey("When the document is not an array", func() {
			res := metricconfig.ParseOverride([]byte(`{"id":"volume"}`))
			So(res.Valid, ShouldBeFalse)
			So(res.Reason, ShouldContainSubstring, "array")
		})

		Convey("When the document is not JSON at all", func() {
			res := metricconfig.ParseOverride([]byte(`not json`))
			So(res.Valid, ShouldBeFalse)
		})

		Convey("When entries are mixed", func() {
			res := metricconfig.ParseOverride([]byte(`[
				{"id":"pauseManagement","weight":10,"enabled":true},
				{"id":"volume","weight":40,"enabled":true,"thresholds":{"ideal":-12}},
				{"id":"speechRate","weight":0,"enabled":true},
				{"id":"acceleration","weight":5,"enabled":false},
				{"id":"bogus","weight":5,"enabled":true},
				"string entry"
			]`))

			Convey("Then only valid entries survive, in metric order", func() {
				So(res.Valid, ShouldBeTrue)
				So(len(res.Config), ShouldEqual, 2)
				So(res.Config[0].ID, ShouldEqual, types.Volume)
				So(res.Config[1].ID, ShouldEqual, types.PauseManagement)
				So(len(res.Problems), ShouldEqual, 4)
				So(res.Problems, ShouldContain, `entry 4: unknown metric id "bogus"`)
			})

			Convey("And missing thresholds are backfilled from defaults", func() {
				vol, _ := res.Config.Get(types.Volume)
				So(vol.Thresholds.Ideal, ShouldEqual, -12)
				So(vol.Thresholds.Min, ShouldEqual, -40)
				So(vol.Thresholds.Max, ShouldEqual, -5)
				pau, _ := res.Config.Get(types.PauseManagement)
				So(pau.Thresholds.Max, ShouldEqual, 0.5)
			})
		})

		Convey("When a speech rate method is supplied", func() {
			ok := metricconfig.ParseOverride([]byte(`[{"id":"speechRate","weight":1,"enabled":true,"method":"energy-peaks"}]`))
			So(ok.Valid, ShouldBeTrue)
			So(ok.Config[0].Method, ShouldEqual, types.MethodEnergyPeaks)

			bad := metricconfig.ParseOverride([]byte(`[{"id":"speechRate","weight":1,"enabled":true,"method":"guess"}]`))
			So(bad.Valid, ShouldBeFalse)
		})

		Convey("When no entry is valid", func() {
			res := metricconfig.ParseOverride([]byte(`[]`))
			So(res.Valid, ShouldBeFalse)
		})
	})
}

func TestMapRemote(t *testing.T) {
	Convey("Given remote rows", t, func() {
		cfg, ok := metricconfig.MapRemote([]metricconfig.RemoteRow{
			{MetricName: "latency", Weight: 0.3, MinValue: f(2500)},
			{MetricName: "volume", Weight: 0.456, MinValue: f(-35), MaxValue: f(-3)},
			{MetricName: "end_intensity", Weight: 0.2},
			{MetricName: "unknown", Weight: 0.9},
		})

		Convey("Then external names map onto internal ids", func() {
			So(ok, ShouldBeTrue)
			So(len(cfg), ShouldEqual, 3)
			So(cfg[0].ID, ShouldEqual, types.Volume)
			So(cfg[1].ID, ShouldEqual, types.Acceleration)
			So(cfg[2].ID, ShouldEqual, types.ResponseTime)
		})

		Convey("And weights become rounded percentages", func() {
			vol, _ := cfg.Get(types.Volume)
			So(vol.Weight, ShouldEqual, 46)
			lat, _ := cfg.Get(types.ResponseTime)
			So(lat.Weight, ShouldEqual, 30)
		})

		Convey("And bounds are replaced while missing values take defaults", func() {
			vol, _ := cfg.Get(types.Volume)
			So(vol.Thresholds, ShouldResemble, metricconfig.Thresholds{Min: -35, Ideal: -15, Max: -3})
			lat, _ := cfg.Get(types.ResponseTime)
			So(lat.Thresholds, ShouldResemble, metricconfig.Thresholds{Min: 2500, Ideal: 1000, Max: 6000})
		})
	})

	Convey("Given only unknown rows", t, func() {
		_, ok := metricconfig.MapRemote([]metricconfig.RemoteRow{{MetricName: "tempo", Weight: 1}})
		So(ok, ShouldBeFalse)
	})
}

func TestCache(t *testing.T) {
	Convey("Given a cache with a fake clock", t, func() {
		clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
		c := metricconfig.NewCache(time.Minute, metricconfig.WithClock(clock.Now))

		So(c.TTL(), ShouldEqual, time.Minute)
		_, ok := c.Get()
		So(ok, ShouldBeFalse)

		c.Put(metricconfig.Defaults())

		Convey("Then it is fresh just before the TTL", func() {
			clock.Advance(59 * time.Second)
			_, ok := c.Get()
			So(ok, ShouldBeTrue)
		})

		Convey("Then it is stale at the TTL", func() {
			clock.Advance(60 * time.Second)
			_, ok := c.Get()
			So(ok, ShouldBeFalse)
		})

		Convey("Then Invalidate empties it", func() {
			c.Invalidate()
			_, ok := c.Get()
			So(ok, ShouldBeFalse)
		})
	})

	Convey("A non-positive TTL uses the default", t, func() {
		So(metricconfig.NewCache(0).TTL(), ShouldEqual, metricconfig.DefaultCacheTTL)
	})
}

func TestResolver(t *testing.T) {
	ctx := context.Background()

	Convey("Given a resolver with no collaborators", t, func() {
		r := metricconfig.NewResolver()
		res := r.Resolve(ctx)
		So(res.Source, ShouldEqual, metricconfig.SourceDefault)
		So(res.Config, ShouldResemble, metricconfig.Defaults())
		So(r.ClearOverride(ctx), ShouldEqual, metricconfig.ErrNoOverrideStore)
	})

	Convey("Given a resolver with an override store, remote source and cache", t, func() {
		clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
		cache := metricconfig.NewCache(time.Minute, metricconfig.WithClock(clock.Now))
		store := repository.NewMemoryStore("metric-config")
		src := &countingSource{rows: []metricconfig.RemoteRow{
			{MetricName: "volume", Weight: 0.5},
			{MetricName: "pauses", Weight: 0.5},
		}}
		r := metricconfig.NewResolver(
			metricconfig.WithOverrideStore(store),
			metricconfig.WithRemoteSource(src),
			metricconfig.WithCache(cache),
		)

		Convey("When no override exists", func() {
			first := r.Resolve(ctx)
			second := r.Resolve(ctx)

			Convey("Then the remote is fetched once and then served from cache", func() {
				So(first.Source, ShouldEqual, metricconfig.SourceRemote)
				So(second.Source, ShouldEqual, metricconfig.SourceCache)
				So(len(second.Config), ShouldEqual, 2)
				So(src.calls.Load(), ShouldEqual, 1)
			})

			Convey("And the remote is fetched again once the cache is stale", func() {
				clock.Advance(61 * time.Second)
				So(r.Resolve(ctx).Source, ShouldEqual, metricconfig.SourceRemote)
				So(src.calls.Load(), ShouldEqual, 2)
			})
		})

		Convey("When a malformed override is stored", func() {
			So(store.Set(ctx, metricconfig.OverrideKey, []byte(`{"volume":1}`)), ShouldBeNil)

			Convey("Then resolution falls back to the remote without failing", func() {
				So(r.Resolve(ctx).Source, ShouldEqual, metricconfig.SourceRemote)
			})
		})

		Convey("When a valid override is set", func() {
			cfg, err := r.SetOverride(ctx, []byte(`[{"id":"speechRate","weight":3,"enabled":true}]`))
			So(err, ShouldBeNil)
			So(len(cfg), ShouldEqual, 1)

			Convey("Then it fully replaces the remote configuration", func() {
				res := r.Resolve(ctx)
				So(res.Source, ShouldEqual, metricconfig.SourceOverride)
				So(len(res.Config), ShouldEqual, 1)
				So(res.Config[0].ID, ShouldEqual, types.SpeechRate)
				So(src.calls.Load(), ShouldEqual, 0)
			})

			Convey("And clearing it restores the remote path", func() {
				So(r.ClearOverride(ctx), ShouldBeNil)
				So(r.Resolve(ctx).Source, ShouldEqual, metricconfig.SourceRemote)
			})
		})

		Convey("When an override with a bad entry is set", func() {
			_, err := r.SetOverride(ctx, []byte(`[{"id":"volume","weight":3,"enabled":true},{"id":"x","weight":1,"enabled":true}]`))
			So(errors.Is(err, metricconfig.ErrInvalidOverride), ShouldBeTrue)
			_, getErr := store.Get(ctx, metricconfig.OverrideKey)
			So(errors.Is(getErr, repository.ErrNotFound), ShouldBeTrue)
		})
	})

	Convey("Given a failing remote source", t, func() {
		src := &countingSource{err: errors.New("connection refused")}
		r := metricconfig.NewResolver(metricconfig.WithRemoteSource(src))

		Convey("Then defaults are served and the failure is not cached", func() {
			So(r.Resolve(ctx).Source, ShouldEqual, metricconfig.SourceDefault)
			So(r.Resolve(ctx).Source, ShouldEqual, metricconfig.SourceDefault)
			So(src.calls.Load(), ShouldEqual, 2)
		})
	})

	Convey("Given a remote source returning nothing", t, func() {
		r := metricconfig.NewResolver(metricconfig.WithRemoteSource(&countingSource{}))
		res := r.Resolve(ctx)
		So(res.Source, ShouldEqual, metricconfig.SourceDefault)
		So(res.Config, ShouldResemble, metricconfig.Defaults())
	})

	Convey("Given many concurrent resolutions", t, func() {
		release := make(chan struct{})
		var calls atomic.Int32
		src := metricconfig.RemoteSourceFunc(func(context.Context) ([]metricconfig.RemoteRow, error) {
			calls.Add(1)
			<-release
			return []metricconfig.RemoteRow{{MetricName: "volume", Weight: 1}}, nil
		})
		r := metricconfig.NewResolver(metricconfig.WithRemoteSource(src))

		var wg sync.WaitGroup
		results := make([]metricconfig.Resolution, 8)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = r.Resolve(ctx)
			}(i)
		}
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		Convey("Then every caller gets a usable configuration", func() {
			for _, res := range results {
				So(len(res.Config), ShouldBeGreaterThan, 0)
			}
			So(calls.Load(), ShouldBeLessThanOrEqualTo, 8)
		})
	})

	Convey("Given a refresh started by a caller that then gives up", t, func() {
		started := make(chan struct{})
		release := make(chan struct{})
		var calls atomic.Int32
		src := metricconfig.RemoteSourceFunc(func(fctx context.Context) ([]metricconfig.RemoteRow, error) {
			if calls.Add(1) == 1 {
				close(started)
			}
			<-release
			if err := fctx.Err(); err != nil {
				return nil, err
			}
			return []metricconfig.RemoteRow{{MetricName: "latency", Weight: 1}}, nil
		})
		r := metricconfig.NewResolver(metricconfig.WithRemoteSource(src))

		leaderCtx, cancel := context.WithCancel(ctx)
		leader := make(chan metricconfig.Resolution, 1)
		go func() { leader <- r.Resolve(leaderCtx) }()
		<-started
		cancel()
		abandoned := <-leader

		follower := make(chan metricconfig.Resolution, 1)
		go func() { follower <- r.Resolve(ctx) }()
		time.Sleep(20 * time.Millisecond)
		close(release)
		res := <-follower

		Convey("Then the cancelled caller falls back without waiting", func() {
			So(abandoned.Source, ShouldEqual, metricconfig.SourceDefault)
		})

		Convey("And a caller still waiting receives the remote configuration", func() {
			So(res.Source, ShouldNotEqual, metricconfig.SourceDefault)
			So(len(res.Config), ShouldEqual, 1)
			So(res.Config[0].ID, ShouldEqual, types.ResponseTime)
			So(calls.Load(), ShouldEqual, 1)
		})
	})
}
