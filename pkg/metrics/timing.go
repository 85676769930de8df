// Package metrics records in-process timings and counters for tree builds.
//
// Collection is on by default and can be switched off with
// SLIDETREE_METRICS=0. Typical use:
//
//	func distribute() {
//	    defer metrics.Timer(metrics.Distribute)()
//	    // ...
//	}
package metrics

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/slidetree/pkg/debug"
)

var enabled atomic.Bool

func init() {
	enabled.Store(os.Getenv("SLIDETREE_METRICS") != "0")
}

// Enabled reports whether metrics are being collected.
func Enabled() bool { return enabled.Load() }

// SetEnabled switches collection on or off.
func SetEnabled(e bool) { enabled.Store(e) }

// TimingMetric accumulates durations for one named operation. Safe for
// concurrent use; the datasource pipeline builds sources in parallel.
type TimingMetric struct {
	name    string
	count   atomic.Int64
	totalNs atomic.Int64
	maxNs   atomic.Int64
	minNs   atomic.Int64 // 0 until the first sample
}

func newTimingMetric(name string) *TimingMetric {
	return &TimingMetric{name: name}
}

// Record adds one measurement.
func (m *TimingMetric) Record(d time.Duration) {
	if !enabled.Load() {
		return
	}
	ns := d.Nanoseconds()
	m.count.Add(1)
	m.totalNs.Add(ns)

	for {
		old := m.maxNs.Load()
		if ns <= old || m.maxNs.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.minNs.Load()
		if old != 0 && ns >= old {
			break
		}
		if m.minNs.CompareAndSwap(old, ns) {
			break
		}
	}
}

func (m *TimingMetric) Name() string { return m.name }

func (m *TimingMetric) Count() int64 { return m.count.Load() }

// Stats snapshots the metric.
func (m *TimingMetric) Stats() TimingStats {
	count := m.count.Load()
	total := m.totalNs.Load()
	var avg int64
	if count > 0 {
		avg = total / count
	}
	return TimingStats{
		Name:    m.name,
		Count:   count,
		TotalMs: float64(total) / 1e6,
		AvgMs:   float64(avg) / 1e6,
		MaxMs:   float64(m.maxNs.Load()) / 1e6,
		MinMs:   float64(m.minNs.Load()) / 1e6,
	}
}

// Reset clears all measurements.
func (m *TimingMetric) Reset() {
	m.count.Store(0)
	m.totalNs.Store(0)
	m.maxNs.Store(0)
	m.minNs.Store(0)
}

// TimingStats is a point-in-time view of a TimingMetric.
type TimingStats struct {
	Name    string  `json:"name"`
	Count   int64   `json:"count"`
	TotalMs float64 `json:"total_ms"`
	AvgMs   float64 `json:"avg_ms"`
	MaxMs   float64 `json:"max_ms"`
	MinMs   float64 `json:"min_ms,omitempty"`
}

// Timer starts a measurement and returns the function that ends it.
func Timer(m *TimingMetric) func() {
	if !enabled.Load() || m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		d := time.Since(start)
		m.Record(d)
		debug.LogTiming(m.name, d)
	}
}

// CounterMetric is a monotonically increasing count.
type CounterMetric struct {
	name  string
	value atomic.Int64
}

func newCounterMetric(name string) *CounterMetric {
	return &CounterMetric{name: name}
}

// Add increases the counter by n.
func (c *CounterMetric) Add(n int) {
	if !enabled.Load() {
		return
	}
	c.value.Add(int64(n))
}

func (c *CounterMetric) Name() string { return c.name }

func (c *CounterMetric) Value() int64 { return c.value.Load() }

func (c *CounterMetric) Reset() { c.value.Store(0) }

// Global timings.
var (
	TreeBuild    = newTimingMetric("tree_build")
	DirScan      = newTimingMetric("dir_scan")
	Graft        = newTimingMetric("graft")
	Distribute   = newTimingMetric("distribute")
	Merge        = newTimingMetric("merge")
	ListParse    = newTimingMetric("list_parse")
	SnapshotLoad = newTimingMetric("snapshot_load")
	SnapshotSave = newTimingMetric("snapshot_save")
	Export       = newTimingMetric("export")
)

// Global counters.
var (
	DirsScanned    = newCounterMetric("dirs_scanned")
	ImagesFound    = newCounterMetric("images_found")
	ScanErrors     = newCounterMetric("scan_errors")
	NodesPruned    = newCounterMetric("nodes_pruned")
	ModifierIgnore = newCounterMetric("modifiers_ignored")
)

// AllTimingMetrics returns every registered timing metric.
func AllTimingMetrics() []*TimingMetric {
	return []*TimingMetric{
		TreeBuild,
		DirScan,
		Graft,
		Distribute,
		Merge,
		ListParse,
		SnapshotLoad,
		SnapshotSave,
		Export,
	}
}

// AllCounterMetrics returns every registered counter.
func AllCounterMetrics() []*CounterMetric {
	return []*CounterMetric{
		DirsScanned,
		ImagesFound,
		ScanErrors,
		NodesPruned,
		ModifierIgnore,
	}
}

// ResetAll clears every metric.
func ResetAll() {
	for _, m := range AllTimingMetrics() {
		m.Reset()
	}
	for _, c := range AllCounterMetrics() {
		c.Reset()
	}
}

// AllTimingStats returns stats for metrics that have recorded data.
func AllTimingStats() []TimingStats {
	all := AllTimingMetrics()
	stats := make([]TimingStats, 0, len(all))
	for _, m := range all {
		if m.Count() > 0 {
			stats = append(stats, m.Stats())
		}
	}
	return stats
}

// Report is the document printed by --stats.
type Report struct {
	Timings  []TimingStats    `json:"timings"`
	Counters map[string]int64 `json:"counters"`
}

// Snapshot collects every metric into a Report.
func Snapshot() Report {
	r := Report{Timings: AllTimingStats(), Counters: make(map[string]int64)}
	for _, c := range AllCounterMetrics() {
		r.Counters[c.Name()] = c.Value()
	}
	return r
}

// WriteJSON writes Snapshot() as indented JSON.
func WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
