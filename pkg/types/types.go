package types

import "time"

// DefaultInterval is the sampling cadence used when the embedder does not
// configure one.
const DefaultInterval = 2 * time.Second

// DefaultHistoryLen bounds the usage history ring kept for graphing consumers.
const DefaultHistoryLen = 60

// DefaultTopK controls how many rows the CLI displays per table.
const DefaultTopK = 5

// ProcessSample is one raw per-pid reading taken during a single cycle.
// CPUTime is the cumulative CPU time in seconds consumed since the process
// started; it only ever grows for a live pid.
type ProcessSample struct {
	PID         int32
	Name        string
	Username    string
	Status      string
	CPUTime     float64
	MemoryBytes uint64
	StartTime   time.Time
}

// Instance is the per-pid detail retained alongside an aggregated row so
// drill-down views keep per-process resolution.
type Instance struct {
	PID         int32
	CPUPercent  float64
	MemoryBytes uint64
	StartTime   time.Time
}

// Uptime reports how long the instance has been alive relative to now.
func (i Instance) Uptime(now time.Time) time.Duration {
	if i.StartTime.IsZero() || now.Before(i.StartTime) {
		return 0
	}
	return now.Sub(i.StartTime)
}

// Row aggregates every running instance of one executable name.
// Instances always equals len(PIDs).
type Row struct {
	Name        string
	Instances   int
	MemoryBytes uint64
	CPUPercent  float64
	Status      string
	OldestStart time.Time
	PIDs        []int32
}

// Snapshot is an immutable, versioned view of one cycle's aggregated data.
// The zero value is an empty snapshot. Accessors hand out copies so no
// consumer can mutate published state.
type Snapshot struct {
	seq    uint64
	taken  time.Time
	rows   []Row
	byName map[string][]Instance
	pids   map[int32]Instance
}

// NewSnapshot assembles a snapshot from aggregated rows and the per-pid
// detail keyed by executable name. The builder is the only producer.
func NewSnapshot(seq uint64, taken time.Time, rows []Row, instances map[string][]Instance) Snapshot {
	pids := make(map[int32]Instance)
	byName := make(map[string][]Instance, len(instances))
	for name, members := range instances {
		byName[name] = members
		for _, inst := range members {
			pids[inst.PID] = inst
		}
	}
	return Snapshot{seq: seq, taken: taken, rows: rows, byName: byName, pids: pids}
}

// Seq is the publish sequence number, incremented once per cycle.
func (s Snapshot) Seq() uint64 { return s.seq }

// Taken is when the snapshot was built.
func (s Snapshot) Taken() time.Time { return s.taken }

// Len reports the number of aggregated rows.
func (s Snapshot) Len() int { return len(s.rows) }

// Rows returns a copy of the aggregated rows.
func (s Snapshot) Rows() []Row {
	rows := make([]Row, len(s.rows))
	copy(rows, s.rows)
	for i := range rows {
		pids := make([]int32, len(rows[i].PIDs))
		copy(pids, rows[i].PIDs)
		rows[i].PIDs = pids
	}
	return rows
}

// Instances returns a copy of the per-pid detail for one executable name,
// or nil when the name is absent from this snapshot.
func (s Snapshot) Instances(name string) []Instance {
	members, ok := s.byName[name]
	if !ok {
		return nil
	}
	out := make([]Instance, len(members))
	copy(out, members)
	return out
}

// Lookup returns the per-pid detail for a single pid observed this cycle.
func (s Snapshot) Lookup(pid int32) (Instance, bool) {
	inst, ok := s.pids[pid]
	return inst, ok
}

// PIDCount reports how many distinct pids the snapshot covers.
func (s Snapshot) PIDCount() int { return len(s.pids) }
