package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/srodi/procscope/pkg/types"
)

// listProcesses and readSample allow tests to stub the gopsutil reads that
// normally hit the OS.
var (
	listProcesses = process.ProcessesWithContext
	readSample    = readSampleFromOS
	logicalCores  = cpu.Counts
)

// Options tunes which processes a Collector reports.
type Options struct {
	// Include keeps only processes whose name satisfies the predicate.
	// nil keeps everything.
	Include func(name string) bool
	// SkipKernel drops kernel worker threads such as kworker and ksoftirqd.
	SkipKernel bool
}

// Collector enumerates live processes and their cumulative resource counters.
type Collector struct {
	include    func(string) bool
	skipKernel bool
	cores      int
}

// New builds a Collector and caches the logical core count used to bound
// CPU percentages.
func New(opts Options) (*Collector, error) {
	cores, err := logicalCores(true)
	if err != nil {
		return nil, fmt.Errorf("reading logical core count: %w", err)
	}
	if cores <= 0 {
		cores = 1
	}
	return &Collector{include: opts.Include, skipKernel: opts.SkipKernel, cores: cores}, nil
}

// Cores reports the logical core count observed at construction.
func (c *Collector) Cores() int { return c.cores }

// Collect reads one sample per live process. A process that vanishes or
// refuses its counters mid-enumeration is skipped; only a failure to list
// processes at all is an error.
func (c *Collector) Collect(ctx context.Context) ([]types.ProcessSample, error) {
	procs, err := listProcesses(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerating processes: %w", err)
	}

	samples := make([]types.ProcessSample, 0, len(procs))
	for _, p := range procs {
		sample, err := readSample(ctx, p)
		if err != nil {
			continue
		}
		if c.skipKernel && isKernelThread(sample.Name) {
			continue
		}
		if c.include != nil && !c.include(sample.Name) {
			continue
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

// readSampleFromOS pulls the counters the builder needs for one pid. Name,
// CPU time, memory, and start time are mandatory; status and username are
// best-effort decorations.
func readSampleFromOS(ctx context.Context, p *process.Process) (types.ProcessSample, error) {
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return types.ProcessSample{}, err
	}
	if name == "" {
		return types.ProcessSample{}, fmt.Errorf("pid %d has no name", p.Pid)
	}
	times, err := p.TimesWithContext(ctx)
	if err != nil {
		return types.ProcessSample{}, err
	}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return types.ProcessSample{}, err
	}
	createdMs, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		return types.ProcessSample{}, err
	}

	sample := types.ProcessSample{
		PID:         p.Pid,
		Name:        name,
		CPUTime:     times.User + times.System,
		MemoryBytes: mem.RSS,
		StartTime:   time.UnixMilli(createdMs),
	}
	if statuses, err := p.StatusWithContext(ctx); err == nil && len(statuses) > 0 {
		sample.Status = statuses[0]
	}
	if user, err := p.UsernameWithContext(ctx); err == nil {
		sample.Username = user
	}
	return sample, nil
}

func isKernelThread(name string) bool {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "kworker"), strings.HasPrefix(lower, "ksoftirqd"),
		strings.HasPrefix(lower, "kthreadd"), strings.HasPrefix(lower, "migration"),
		strings.HasPrefix(lower, "watchdog"), strings.HasPrefix(lower, "rcu"),
		strings.HasPrefix(lower, "irq/"):
		return true
	}
	return false
}
