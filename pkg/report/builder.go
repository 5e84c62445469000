package report

import (
	"sort"
	"time"

	"github.com/srodi/procscope/pkg/types"
)

// Builder turns raw per-pid samples into aggregated snapshots. It owns the
// previous-cycle raw sample cache that serves as the CPU delta basis, so a
// Builder belongs to exactly one collection loop and needs no locking.
type Builder struct {
	clamp   float64
	prev    map[int32]types.ProcessSample
	lastSeq uint64
	started bool
}

// NewBuilder creates a Builder for a machine with the given logical core
// count. clamp overrides the per-process CPU ceiling; zero or negative
// means the default of 100 x cores.
func NewBuilder(cores int, clamp float64) *Builder {
	if cores <= 0 {
		cores = 1
	}
	if clamp <= 0 {
		clamp = 100 * float64(cores)
	}
	return &Builder{clamp: clamp, prev: make(map[int32]types.ProcessSample)}
}

// Build aggregates one cycle's samples by executable name and computes CPU
// percentages against the previous cycle. elapsed is the wall time since
// the previous Build; zero or negative elapsed (the first tick) yields zero
// CPU everywhere, establishing the baseline without reporting a spike.
func (b *Builder) Build(samples []types.ProcessSample, now time.Time, elapsed time.Duration) types.Snapshot {
	groups := make(map[string]*types.Row)
	members := make(map[string][]types.Instance)

	for _, s := range samples {
		pct := b.cpuPercent(s, elapsed)

		row, ok := groups[s.Name]
		if !ok {
			row = &types.Row{Name: s.Name}
			groups[s.Name] = row
		}
		row.Instances++
		row.MemoryBytes += s.MemoryBytes
		row.CPUPercent += pct
		row.PIDs = append(row.PIDs, s.PID)
		if s.Status != "" {
			row.Status = s.Status
		}
		if row.OldestStart.IsZero() || s.StartTime.Before(row.OldestStart) {
			row.OldestStart = s.StartTime
		}

		members[s.Name] = append(members[s.Name], types.Instance{
			PID:         s.PID,
			CPUPercent:  pct,
			MemoryBytes: s.MemoryBytes,
			StartTime:   s.StartTime,
		})
	}

	rows := make([]types.Row, 0, len(groups))
	for _, row := range groups {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })

	var seq uint64
	if b.started {
		seq = b.lastSeq + 1
	}
	b.lastSeq = seq
	b.started = true

	next := make(map[int32]types.ProcessSample, len(samples))
	for _, s := range samples {
		next[s.PID] = s
	}
	b.prev = next

	return types.NewSnapshot(seq, now, rows, members)
}

// cpuPercent computes the percentage of one core this pid consumed since
// the previous cycle. A pid with no prior sample, a mismatched start time
// (pid reuse), or a negative counter delta contributes zero.
func (b *Builder) cpuPercent(s types.ProcessSample, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	prev, ok := b.prev[s.PID]
	if !ok {
		return 0
	}
	if !prev.StartTime.Equal(s.StartTime) {
		return 0
	}
	delta := s.CPUTime - prev.CPUTime
	if delta <= 0 {
		return 0
	}
	pct := delta / elapsed.Seconds() * 100
	if pct > b.clamp {
		pct = b.clamp
	}
	return pct
}
