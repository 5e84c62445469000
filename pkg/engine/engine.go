// Package engine ties the sampler, builder, and store into a timer-driven
// collection loop and layers the process-control operations on top.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/sirupsen/logrus"

	"github.com/srodi/procscope/pkg/collector"
	"github.com/srodi/procscope/pkg/report"
	"github.com/srodi/procscope/pkg/store"
	"github.com/srodi/procscope/pkg/types"
)

const defaultInstanceTTL = time.Second

// Options configures an Engine. The zero value is usable: a 2s interval,
// no filtering, the default clamp, and the standard logger.
type Options struct {
	// Interval is the sampling cadence. Zero or negative means
	// types.DefaultInterval.
	Interval time.Duration
	// HistoryLen bounds the usage history ring.
	HistoryLen int
	// CPUClamp overrides the per-process CPU ceiling of 100 x cores.
	CPUClamp float64
	// Filter keeps only processes whose name satisfies the predicate.
	Filter func(name string) bool
	// SkipKernel drops kernel worker threads from every snapshot.
	SkipKernel bool
	// Logger receives cycle diagnostics. Nil means the logrus standard
	// logger.
	Logger logrus.FieldLogger
	// OnError observes cycle-level failures. The loop never stops on them.
	OnError func(error)
	// InstanceTTL caches InstancesOf results between drill-down refreshes.
	InstanceTTL time.Duration
}

// Engine owns one collection pipeline. Construct with New, drive with Run,
// and hand the instance to collaborators; there is no package-level state.
type Engine struct {
	interval time.Duration
	coll     *collector.Collector
	builder  *report.Builder
	store    *store.Store
	log      logrus.FieldLogger
	onError  func(error)

	instances *ttlcache.Cache[string, []types.Instance]

	// sample, terminate, and startTime are indirections over the collector
	// so tests can stub OS interaction.
	sample    func(context.Context) ([]types.ProcessSample, error)
	terminate func(pid int32) error
	startTime func(pid int32) (int64, error)

	// lastTick is owned by the loop goroutine; it anchors the elapsed wall
	// time for CPU deltas and only advances on successful cycles.
	lastTick time.Time
}

// New assembles an Engine from Options.
func New(opts Options) (*Engine, error) {
	coll, err := collector.New(collector.Options{Include: opts.Filter, SkipKernel: opts.SkipKernel})
	if err != nil {
		return nil, fmt.Errorf("initializing collector: %w", err)
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = types.DefaultInterval
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	ttl := opts.InstanceTTL
	if ttl <= 0 {
		ttl = defaultInstanceTTL
	}

	return &Engine{
		interval: interval,
		coll:     coll,
		builder:  report.NewBuilder(coll.Cores(), opts.CPUClamp),
		store:    store.New(opts.HistoryLen),
		log:      log,
		onError:  opts.OnError,
		instances: ttlcache.New[string, []types.Instance](
			ttlcache.WithTTL[string, []types.Instance](ttl),
		),
		sample:    coll.Collect,
		terminate: collector.Terminate,
		startTime: collector.StartTime,
	}, nil
}

// Store exposes the read surface (Read, ReadPrevious, Subscribe, History)
// to consumers.
func (e *Engine) Store() *store.Store { return e.store }

// Interval reports the configured sampling cadence.
func (e *Engine) Interval() time.Duration { return e.interval }

// Run drives the collection loop until ctx is cancelled. An initial cycle
// runs immediately so consumers see data before the first full interval.
// Cycles execute inline in the loop goroutine, so a cycle that outlasts the
// interval drops the ticks that fired meanwhile instead of overlapping.
// Cancellation lets the in-flight cycle finish, then returns nil.
func (e *Engine) Run(ctx context.Context) error {
	e.runCycle(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

// runCycle executes one sample -> build -> publish pass. A failed sample
// leaves the last-known snapshot current and is reported, never fatal.
func (e *Engine) runCycle(ctx context.Context) {
	now := time.Now()
	samples, err := e.sample(ctx)
	if err != nil {
		err = fmt.Errorf("sample cycle: %w", err)
		e.log.WithError(err).Warn("keeping last snapshot")
		if e.onError != nil {
			e.onError(err)
		}
		return
	}

	var elapsed time.Duration
	if !e.lastTick.IsZero() {
		elapsed = now.Sub(e.lastTick)
	}
	e.lastTick = now

	e.store.Publish(e.builder.Build(samples, now, elapsed))
}

// Terminate requests OS-level termination of pid. The pid must appear in
// the latest snapshot and still carry the same start time, so a pid the OS
// recycled since the snapshot is never killed by mistake. The OS primitive
// is not invoked for unknown pids.
func (e *Engine) Terminate(pid int32) error {
	snap, ok := e.store.Read()
	if !ok {
		return ErrProcessNotFound
	}
	inst, ok := snap.Lookup(pid)
	if !ok {
		return ErrProcessNotFound
	}

	createdMs, err := e.startTime(pid)
	if err != nil {
		return classifyTerminateError(err)
	}
	if inst.StartTime.UnixMilli() != createdMs {
		// The pid now belongs to a different process.
		return ErrProcessNotFound
	}

	return classifyTerminateError(e.terminate(pid))
}

// TerminateByName terminates every instance of an executable name from the
// latest snapshot and reports how many terminations succeeded. Instances
// that exited on their own are not counted as failures.
func (e *Engine) TerminateByName(name string) (int, error) {
	snap, ok := e.store.Read()
	if !ok {
		return 0, ErrProcessNotFound
	}
	members := snap.Instances(name)
	if len(members) == 0 {
		return 0, ErrProcessNotFound
	}

	killed := 0
	var firstErr error
	for _, inst := range members {
		switch err := e.Terminate(inst.PID); {
		case err == nil:
			killed++
		case errors.Is(err, ErrProcessNotFound):
			// Already gone; nothing to report.
		default:
			if firstErr == nil {
				firstErr = fmt.Errorf("pid %d: %w", inst.PID, err)
			}
		}
	}
	return killed, firstErr
}

// InstancesOf returns the per-pid detail for one executable name from the
// current snapshot, sorted by pid. Results are cached briefly so a
// drill-down view refreshing faster than the sampling interval does not
// recompute them.
func (e *Engine) InstancesOf(name string) ([]types.Instance, error) {
	if item := e.instances.Get(name); item != nil {
		return item.Value(), nil
	}

	snap, ok := e.store.Read()
	if !ok {
		return nil, ErrProcessNotFound
	}
	members := snap.Instances(name)
	if len(members) == 0 {
		return nil, ErrProcessNotFound
	}
	sort.Slice(members, func(i, j int) bool { return members[i].PID < members[j].PID })

	e.instances.Set(name, members, ttlcache.DefaultTTL)
	return members, nil
}
