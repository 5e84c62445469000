package report

import (
	"math"
	"testing"
	"time"

	"github.com/srodi/procscope/pkg/types"
)

const mb = 1024 * 1024

func sample(pid int32, name string, cpuTime float64, memBytes uint64, start time.Time) types.ProcessSample {
	return types.ProcessSample{
		PID: pid, Name: name, CPUTime: cpuTime, MemoryBytes: memBytes, StartTime: start,
	}
}

func TestBuildAggregatesInstancesByName(t *testing.T) {
	now := time.Now()
	start := now.Add(-time.Minute)
	b := NewBuilder(4, 0)
	snap := b.Build([]types.ProcessSample{
		sample(10, "worker", 1.0, 100*mb, start),
		sample(11, "worker", 2.0, 150*mb, start),
		sample(20, "api", 0.5, 30*mb, start),
	}, now, 0)

	rows := snap.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	var worker types.Row
	for _, row := range rows {
		if row.Name == "worker" {
			worker = row
		}
	}
	if worker.Instances != 2 || worker.MemoryBytes != 250*mb {
		t.Fatalf("unexpected worker aggregate: %+v", worker)
	}
	if len(worker.PIDs) != worker.Instances {
		t.Fatalf("instance count %d != pid count %d", worker.Instances, len(worker.PIDs))
	}
	if got := snap.Instances("worker"); len(got) != 2 {
		t.Fatalf("expected 2 worker instances, got %d", len(got))
	}
}

func TestBuildPidSetCompleteness(t *testing.T) {
	now := time.Now()
	start := now.Add(-time.Hour)
	b := NewBuilder(4, 0)
	samples := []types.ProcessSample{
		sample(1, "a", 0, 1, start),
		sample(2, "a", 0, 1, start),
		sample(3, "b", 0, 1, start),
		sample(4, "c", 0, 1, start),
	}
	snap := b.Build(samples, now, 0)

	seen := make(map[int32]int)
	for _, row := range snap.Rows() {
		for _, pid := range row.PIDs {
			seen[pid]++
		}
	}
	if len(seen) != len(samples) {
		t.Fatalf("expected %d distinct pids across rows, got %d", len(samples), len(seen))
	}
	for pid, count := range seen {
		if count != 1 {
			t.Fatalf("pid %d appeared %d times", pid, count)
		}
	}
	if snap.PIDCount() != len(samples) {
		t.Fatalf("snapshot pid count %d != %d", snap.PIDCount(), len(samples))
	}
}

func TestBuildCPUDelta(t *testing.T) {
	now := time.Now()
	start := now.Add(-time.Minute)
	b := NewBuilder(4, 0)

	first := b.Build([]types.ProcessSample{sample(10, "worker", 1.0, mb, start)}, now, 0)
	if got := first.Rows()[0].CPUPercent; got != 0 {
		t.Fatalf("first observation must establish a baseline only, got %.2f%%", got)
	}

	later := now.Add(time.Second)
	second := b.Build([]types.ProcessSample{sample(10, "worker", 1.2, mb, start)}, later, time.Second)
	if got := second.Rows()[0].CPUPercent; math.Abs(got-20.0) > 1e-9 {
		t.Fatalf("expected ~20%% CPU, got %.4f%%", got)
	}
}

func TestBuildCPUSumsAcrossInstances(t *testing.T) {
	now := time.Now()
	start := now.Add(-time.Minute)
	b := NewBuilder(4, 0)
	b.Build([]types.ProcessSample{
		sample(10, "worker", 1.0, mb, start),
		sample(11, "worker", 1.0, mb, start),
	}, now, 0)
	snap := b.Build([]types.ProcessSample{
		sample(10, "worker", 1.1, mb, start),
		sample(11, "worker", 1.3, mb, start),
	}, now.Add(time.Second), time.Second)

	if got := snap.Rows()[0].CPUPercent; math.Abs(got-40.0) > 1e-9 {
		t.Fatalf("expected instances to sum to ~40%%, got %.4f%%", got)
	}
}

func TestBuildCPUNeverNegative(t *testing.T) {
	now := time.Now()
	start := now.Add(-time.Minute)
	b := NewBuilder(4, 0)
	b.Build([]types.ProcessSample{sample(10, "worker", 5.0, mb, start)}, now, 0)
	snap := b.Build([]types.ProcessSample{sample(10, "worker", 4.0, mb, start)}, now.Add(time.Second), time.Second)
	if got := snap.Rows()[0].CPUPercent; got != 0 {
		t.Fatalf("negative delta must floor to zero, got %.4f%%", got)
	}
}

func TestBuildPidReuseResetsBaseline(t *testing.T) {
	now := time.Now()
	b := NewBuilder(4, 0)
	b.Build([]types.ProcessSample{sample(10, "worker", 100.0, mb, now.Add(-time.Hour))}, now, 0)
	// Same pid, later start time: a different process reused the pid.
	snap := b.Build([]types.ProcessSample{sample(10, "worker", 50.0, mb, now)}, now.Add(time.Second), time.Second)
	if got := snap.Rows()[0].CPUPercent; got != 0 {
		t.Fatalf("reused pid must restart its baseline, got %.4f%%", got)
	}
}

func TestBuildClampsRunawayDelta(t *testing.T) {
	now := time.Now()
	start := now.Add(-time.Minute)
	b := NewBuilder(2, 0)
	b.Build([]types.ProcessSample{sample(10, "worker", 0, mb, start)}, now, 0)
	snap := b.Build([]types.ProcessSample{sample(10, "worker", 100.0, mb, start)}, now.Add(time.Second), time.Second)
	if got := snap.Rows()[0].CPUPercent; got != 200 {
		t.Fatalf("expected clamp at 100 x 2 cores, got %.4f%%", got)
	}
}

func TestBuildCustomClamp(t *testing.T) {
	now := time.Now()
	start := now.Add(-time.Minute)
	b := NewBuilder(8, 100)
	b.Build([]types.ProcessSample{sample(10, "worker", 0, mb, start)}, now, 0)
	snap := b.Build([]types.ProcessSample{sample(10, "worker", 10.0, mb, start)}, now.Add(time.Second), time.Second)
	if got := snap.Rows()[0].CPUPercent; got != 100 {
		t.Fatalf("expected override clamp of 100, got %.4f%%", got)
	}
}

func TestBuildSequenceNumbers(t *testing.T) {
	b := NewBuilder(1, 0)
	now := time.Now()
	for want := uint64(0); want < 3; want++ {
		snap := b.Build(nil, now, time.Second)
		if snap.Seq() != want {
			t.Fatalf("expected seq %d, got %d", want, snap.Seq())
		}
	}
}

func TestBuildEmptySampleSet(t *testing.T) {
	b := NewBuilder(1, 0)
	snap := b.Build(nil, time.Now(), time.Second)
	if snap.Len() != 0 || snap.PIDCount() != 0 {
		t.Fatalf("expected empty snapshot, got %d rows %d pids", snap.Len(), snap.PIDCount())
	}
}

func TestBuildForgetsVanishedPids(t *testing.T) {
	now := time.Now()
	start := now.Add(-time.Minute)
	b := NewBuilder(4, 0)
	b.Build([]types.ProcessSample{sample(10, "worker", 1.0, mb, start)}, now, 0)
	b.Build(nil, now.Add(time.Second), time.Second)
	if len(b.prev) != 0 {
		t.Fatalf("delta basis should drop vanished pids, still holds %d", len(b.prev))
	}
	// The pid coming back is a first observation again.
	snap := b.Build([]types.ProcessSample{sample(10, "worker", 2.0, mb, start)}, now.Add(2*time.Second), time.Second)
	if got := snap.Rows()[0].CPUPercent; got != 0 {
		t.Fatalf("returning pid should re-baseline, got %.4f%%", got)
	}
}

func TestBuildZeroElapsedYieldsZeroCPU(t *testing.T) {
	now := time.Now()
	start := now.Add(-time.Minute)
	b := NewBuilder(4, 0)
	b.Build([]types.ProcessSample{sample(10, "worker", 1.0, mb, start)}, now, 0)
	snap := b.Build([]types.ProcessSample{sample(10, "worker", 2.0, mb, start)}, now, 0)
	if got := snap.Rows()[0].CPUPercent; got != 0 {
		t.Fatalf("zero elapsed must yield zero CPU, got %.4f%%", got)
	}
}

func TestBuildRowMetadata(t *testing.T) {
	now := time.Now()
	old := now.Add(-time.Hour)
	recent := now.Add(-time.Minute)
	b := NewBuilder(4, 0)
	snap := b.Build([]types.ProcessSample{
		{PID: 1, Name: "svc", Status: "running", StartTime: recent},
		{PID: 2, Name: "svc", Status: "sleep", StartTime: old},
	}, now, 0)
	row := snap.Rows()[0]
	if !row.OldestStart.Equal(old) {
		t.Fatalf("expected oldest start %v, got %v", old, row.OldestStart)
	}
	if row.Status == "" {
		t.Fatalf("expected a status to be carried onto the row")
	}
}
