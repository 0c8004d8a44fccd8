// Package coordinator wires the expander, cache, pool, breaker, and usage
// meter together behind each public compute endpoint. A single Coordinator
// is constructed at boot and passed explicitly to handlers; there is no
// package-level state.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/arnauranchal/epcalc-server/internal/auth"
	"github.com/arnauranchal/epcalc-server/internal/breaker"
	"github.com/arnauranchal/epcalc-server/internal/cache"
	"github.com/arnauranchal/epcalc-server/internal/cost"
	"github.com/arnauranchal/epcalc-server/internal/kernel"
	"github.com/arnauranchal/epcalc-server/internal/metrics"
	"github.com/arnauranchal/epcalc-server/internal/paramspec"
	"github.com/arnauranchal/epcalc-server/internal/pool"
	"github.com/arnauranchal/epcalc-server/internal/usage"
)

// Config wires every collaborator the coordinator needs. Cache, Pool,
// Breaker, Meter and a positive MaxPoints are required; a zero
// KernelTimeout or MemoryLimitBytes falls back to 10s or 1 GiB, and Metrics
// and Logger are optional.
type Config struct {
	Cache   *cache.Cache
	Pool    *pool.Pool
	Breaker *breaker.Breaker
	Meter   *usage.Meter

	MaxPoints        int
	KernelTimeout    time.Duration
	MemoryLimitBytes int64

	Metrics *metrics.Registry
	Logger  *zerolog.Logger
}

// Coordinator owns the full request path between the HTTP layer and the
// compute machinery.
type Coordinator struct {
	cache   *cache.Cache
	pool    *pool.Pool
	breaker *breaker.Breaker
	meter   *usage.Meter

	maxPoints        int
	kernelTimeout    time.Duration
	memoryLimitBytes int64
	baselineCost     int64

	metrics *metrics.Registry
	logger  *zerolog.Logger

	sessions *sessionTracker
}

func New(cfg Config) *Coordinator {
	memLimit := cfg.MemoryLimitBytes
	if memLimit <= 0 {
		memLimit = 1 << 30
	}
	kernelTimeout := cfg.KernelTimeout
	if kernelTimeout <= 0 {
		kernelTimeout = 10 * time.Second
	}

	c := &Coordinator{
		cache:            cfg.Cache,
		pool:             cfg.Pool,
		breaker:          cfg.Breaker,
		meter:            cfg.Meter,
		maxPoints:        cfg.MaxPoints,
		kernelTimeout:    kernelTimeout,
		memoryLimitBytes: memLimit,
		metrics:          cfg.Metrics,
		logger:           cfg.Logger,
		sessions:         newSessionTracker(),
	}

	// The single-point baseline cost sizes the breaker's half-open
	// admission threshold.
	c.baselineCost, _ = cost.Estimate(1, kernel.Modulation{Kind: kernel.ModPAM, M: 2}, []string{kernel.MetricErrorExponent}, cost.TypeSingle)

	return c
}

// LoadSignal samples the three ratios the breaker combines. The pool's
// atomics and runtime's own memory stats make this lock-free.
func (c *Coordinator) LoadSignal() breaker.LoadSignal {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	memRatio := float64(mem.Alloc) / float64(c.memoryLimitBytes)
	if memRatio > 1 {
		memRatio = 1
	}
	signal := breaker.LoadSignal{
		WorkerUtilisation: c.pool.Utilisation(),
		QueueDepthRatio:   c.pool.QueueDepthRatio(),
		MemoryRatio:       memRatio,
	}
	if c.metrics != nil {
		c.metrics.WorkerUtilisation.Set(signal.WorkerUtilisation)
		c.metrics.QueueDepthRatio.Set(signal.QueueDepthRatio)
		c.metrics.MemoryRatio.Set(signal.MemoryRatio)
	}
	return signal
}

// classifyRequestType derives the cost calculator's type label purely from
// the expanded shape. The product of axis sizes already dominates the
// estimate, so the label mostly matters for usage events operators filter
// on.
func classifyRequestType(nonScalarAxisCount int, layout string) cost.RequestType {
	switch {
	case nonScalarAxisCount == 0:
		return cost.TypeSingle
	case nonScalarAxisCount == 1:
		return cost.TypeSweep
	case layout == "matrix":
		return cost.TypeContour
	default:
		return cost.TypeSurface
	}
}

func modulationForCost(m paramspec.ModulationInput) kernel.Modulation {
	if m.Standard != nil {
		return kernel.Modulation{Kind: m.Standard.Kind, M: m.Standard.M}
	}
	return kernel.Modulation{Custom: m.Custom}
}

// Compute serves both /compute/standard and /compute/custom: count points,
// estimate cost, ask the breaker, expand, fan out through cache and pool,
// reassemble in axis order, charge the meter. id and sessionID have already
// been established by the auth gate and the caller; endpoint names the
// request for usage accounting.
func (c *Coordinator) Compute(ctx context.Context, spec paramspec.RequestSpec, id auth.Identity, sessionID, endpoint string) (*UnifiedResult, error) {
	total, nonScalarCount, err := paramspec.CountPoints(spec)
	if err != nil {
		c.recordOutcome(endpoint, "invalid_parameter")
		return nil, &Error{Kind: ErrInvalidParameter, Message: err.Error()}
	}
	reqType := classifyRequestType(nonScalarCount, spec.Layout)

	baseCost, _ := cost.Estimate(total, modulationForCost(spec.Modulation), spec.Metrics, reqType)

	decision := c.breaker.Evaluate(time.Now(), c.LoadSignal(), baseCost, c.baselineCost)
	if c.metrics != nil {
		c.metrics.SetBreakerState([]string{string(breaker.Closed), string(breaker.HalfOpen), string(breaker.Open)}, string(decision.State))
	}
	if !decision.Allowed {
		if c.metrics != nil {
			c.metrics.BreakerRejections.WithLabelValues(string(decision.State)).Inc()
		}
		c.recordOutcome(endpoint, "over_capacity")
		return nil, &Error{
			Kind:              ErrOverCapacity,
			Message:           decision.Reason,
			RetryAfterSeconds: decision.RetryAfterSeconds,
			CircuitState:      string(decision.State),
		}
	}

	points, axes, layout, err := paramspec.Expand(spec, c.maxPoints)
	if err != nil {
		c.recordOutcome(endpoint, "invalid_parameter")
		return nil, &Error{Kind: ErrInvalidParameter, Message: err.Error()}
	}
	if axes == nil {
		axes = []paramspec.Axis{}
	}

	results := make([]ResultPoint, len(points))
	var cachedCount int64
	var totalComputeMs int64
	var cancelled, overloaded int32

	var wg sync.WaitGroup
	for i, pt := range points {
		wg.Add(1)
		go func(i int, pt paramspec.ExpandedPoint) {
			defer wg.Done()
			rp, err := c.computePoint(ctx, sessionID, pt)
			if err != nil {
				if errors.Is(err, pool.ErrQueueFull) || errors.Is(err, pool.ErrClosed) {
					atomic.StoreInt32(&overloaded, 1)
				} else {
					atomic.StoreInt32(&cancelled, 1)
				}
				return
			}
			results[i] = rp
			if rp.Cached {
				atomic.AddInt64(&cachedCount, 1)
			}
			atomic.AddInt64(&totalComputeMs, rp.ComputationTimeMs)
		}(i, pt)
	}
	wg.Wait()

	if atomic.LoadInt32(&cancelled) == 1 {
		c.recordOutcome(endpoint, "cancelled")
		return nil, &Error{Kind: ErrCancelled, Message: "session cancelled or client disconnected"}
	}
	if atomic.LoadInt32(&overloaded) == 1 {
		c.recordOutcome(endpoint, "over_capacity")
		return nil, &Error{
			Kind:              ErrOverCapacity,
			Message:           "compute queue is saturated",
			RetryAfterSeconds: 1,
			CircuitState:      string(c.breaker.State()),
		}
	}

	ur := &UnifiedResult{
		Format: layout,
		Axes:   axes,
		Meta: Meta{
			TotalPoints:            len(points),
			CachedPoints:           int(cachedCount),
			TotalComputationTimeMs: totalComputeMs,
		},
	}
	if layout == "matrix" {
		ur.ResultsMatrix = reshapeMatrix(results, len(axes[0].Values), len(axes[1].Values))
	} else {
		ur.ResultsFlat = results
	}

	meteredCost := int64(float64(baseCost) * decision.CostMultiplier)
	c.meter.Charge(ctx, id.KeyID, endpoint, meteredCost, summarizeParams(spec))
	c.recordOutcome(endpoint, "ok")

	return ur, nil
}

// recordOutcome increments the compute-requests counter for endpoint,
// labeled by a short outcome tag.
func (c *Coordinator) recordOutcome(endpoint, outcome string) {
	if c.metrics != nil {
		c.metrics.ComputeRequests.WithLabelValues(endpoint, outcome).Inc()
	}
}

func reshapeMatrix(flat []ResultPoint, rows, cols int) [][]ResultPoint {
	m := make([][]ResultPoint, rows)
	for i := 0; i < rows; i++ {
		m[i] = flat[i*cols : (i+1)*cols]
	}
	return m
}

func summarizeParams(spec paramspec.RequestSpec) string {
	return fmt.Sprintf("axes=%d metrics=%v layout=%s", len(spec.Axes), spec.Metrics, spec.Layout)
}

// computePoint runs one expanded point through the cache, pool, and kernel,
// registering its job under sessionID so a later CancelSession can abort
// it.
func (c *Coordinator) computePoint(ctx context.Context, sessionID string, pt paramspec.ExpandedPoint) (ResultPoint, error) {
	jobCtx, cancel := context.WithTimeout(context.Background(), c.kernelTimeout)
	defer cancel()

	regID := c.sessions.register(sessionID, pt.Fingerprint, cancel)
	defer c.sessions.unregister(sessionID, regID)

	start := time.Now()
	val, err, cachedHit := c.cache.LookupOrInsertCached(ctx, pt.Fingerprint, func(_ context.Context) (any, error) {
		handle, subErr := c.pool.Submit(jobCtx, func(innerCtx context.Context) (any, error) {
			return kernel.Compute(innerCtx, toKernelPoint(pt))
		})
		if subErr != nil {
			// Queue saturation is a property of the moment, not of this
			// fingerprint — it must not be negative-cached.
			return nil, cache.Transient(subErr)
		}
		return handle.Await(jobCtx)
	})
	elapsed := time.Since(start)

	if c.metrics != nil {
		if cachedHit {
			c.metrics.CacheHits.Inc()
		} else {
			c.metrics.CacheMisses.Inc()
		}
	}

	// Session cancellation and the request's own context abort the batch; a
	// jobCtx deadline is the per-kernel budget expiring, which per the error
	// contract surfaces as a NumericalFailure on that point alone.
	if err != nil && (errors.Is(err, cache.ErrCancelled) || ctx.Err() != nil) {
		return ResultPoint{}, err
	}
	if errors.Is(err, pool.ErrQueueFull) || errors.Is(err, pool.ErrClosed) {
		return ResultPoint{}, err
	}

	if err != nil {
		// A kernel-level failure never fails the whole batch: the affected
		// point's metrics surface as JSON null.
		if c.logger != nil {
			c.logger.Warn().Str("fingerprint", pt.Fingerprint).Err(err).Msg("coordinator: point failed, surfacing null metrics")
		}
		return ResultPoint{
			Params:            pt.Values,
			Metrics:           nullMetrics(pt.Metrics),
			Cached:            cachedHit,
			ComputationTimeMs: elapsed.Milliseconds(),
		}, nil
	}

	metricsVal, _ := val.(kernel.Metrics)
	return ResultPoint{
		Params:            pt.Values,
		Metrics:           floatPointers(metricsVal),
		Cached:            cachedHit,
		ComputationTimeMs: elapsed.Milliseconds(),
	}, nil
}

func nullMetrics(names []string) map[string]*float64 {
	out := make(map[string]*float64, len(names))
	for _, n := range names {
		out[n] = nil
	}
	return out
}

func floatPointers(m kernel.Metrics) map[string]*float64 {
	out := make(map[string]*float64, len(m))
	for k, v := range m {
		v := v
		out[k] = &v
	}
	return out
}

func toKernelPoint(pt paramspec.ExpandedPoint) kernel.Point {
	return kernel.Point{
		Modulation: pt.Modulation,
		SNRLinear:  pt.KernelValues["SNR"],
		Rate:       pt.KernelValues["R"],
		Diversity:  pt.KernelValues["N"],
		CodeLength: pt.KernelValues["n"],
		Threshold:  pt.KernelValues["threshold"],
		Metrics:    pt.Metrics,
	}
}

// CancelSession is the operation behind POST /session/cancel: idempotent,
// best-effort, returns how many in-flight jobs it signalled.
func (c *Coordinator) CancelSession(sessionID string) int {
	if sessionID == "" {
		return 0
	}
	return c.sessions.cancelAll(sessionID, func(fp string) {
		c.cache.Cancel(fp)
	})
}
