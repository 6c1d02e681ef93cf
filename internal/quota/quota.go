// package quota watches cache disk usage against the configured cap
package quota

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"fermata/internal/shared"
)

// Pressure thresholds in percent of the effective limit. These are fixed:
// operators size the cap, not the alarm points.
const (
	WarningPercent  = 80
	CriticalPercent = 90
)

// Level classifies how full the cache is.
type Level int

const (
	LevelOK Level = iota
	LevelWarning
	LevelCritical
)

// String returns the level name for logs and status output.
func (l Level) String() string {
	switch l {
	case LevelOK:
		return "ok"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// UsageFunc reports the bytes the cache currently occupies.
type UsageFunc func() (int64, error)

// Snapshot is one quota measurement.
type Snapshot struct {
	UsedBytes   int64     `json:"used_bytes"`
	LimitBytes  int64     `json:"limit_bytes"`
	DeviceFree  int64     `json:"device_free_bytes"`
	DeviceTotal int64     `json:"device_total_bytes"`
	Percent     float64   `json:"percent"`
	Level       Level     `json:"-"`
	CheckedAt   time.Time `json:"checked_at"`
}

// LevelName is the string form of Level for JSON output.
func (s Snapshot) LevelName() string { return s.Level.String() }

// Monitor periodically measures cache usage and raises level transitions.
type Monitor struct {
	dir      string
	capBytes int64
	usage    UsageFunc
	logger   *log.Logger

	checking atomic.Bool

	mu       sync.RWMutex
	last     Snapshot
	haveLast bool
	onChange func(Snapshot)
}

// NewMonitor creates a monitor for the filesystem holding dir. capBytes is
// the configured cache cap; zero means the device size is the only limit.
func NewMonitor(dir string, capBytes int64, usage UsageFunc, logger *log.Logger) *Monitor {
	return &Monitor{
		dir:      dir,
		capBytes: capBytes,
		usage:    usage,
		logger:   logger,
	}
}

// SetOnChange registers a callback invoked whenever the pressure level
// transitions. The callback runs on the monitor's goroutine.
func (m *Monitor) SetOnChange(fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Check measures usage and device headroom once.
func (m *Monitor) Check() (Snapshot, error) {
	used, err := m.usage()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to measure cache usage: %w", err)
	}

	var st unix.Statfs_t
	if err := unix.Statfs(m.dir, &st); err != nil {
		return Snapshot{}, fmt.Errorf("%w: statfs %s: %v", shared.ErrStorage, m.dir, err)
	}

	free := int64(st.Bavail) * int64(st.Bsize)
	total := int64(st.Blocks) * int64(st.Bsize)

	// the device bounds the limit: a 4 GB cap on a nearly full disk
	// cannot actually hold 4 GB
	limit := m.capBytes
	if limit <= 0 || used+free < limit {
		limit = used + free
	}

	snap := Snapshot{
		UsedBytes:   used,
		LimitBytes:  limit,
		DeviceFree:  free,
		DeviceTotal: total,
		CheckedAt:   time.Now(),
	}
	if limit > 0 {
		snap.Percent = float64(used) / float64(limit) * 100
	}
	snap.Level = levelFor(snap.Percent)

	m.record(snap)
	return snap, nil
}

// Last returns the most recent snapshot, if any check has completed.
func (m *Monitor) Last() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last, m.haveLast
}

// WouldExceed reports whether adding n bytes pushes usage past the critical
// threshold of the last known limit. Without a snapshot it reports false.
func (m *Monitor) WouldExceed(n int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.haveLast || m.last.LimitBytes <= 0 {
		return false
	}
	projected := float64(m.last.UsedBytes+n) / float64(m.last.LimitBytes) * 100
	return projected >= CriticalPercent
}

// Run polls until ctx is cancelled. A check runs immediately, then once per
// interval. Ticks that land while a check is still running are skipped.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	m.tick()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick runs one guarded check and reports whether it actually executed.
func (m *Monitor) tick() bool {
	if !m.checking.CompareAndSwap(false, true) {
		m.logger.Debug("quota check still running, skipping tick")
		return false
	}
	defer m.checking.Store(false)

	if _, err := m.Check(); err != nil {
		m.logger.Warn("quota check failed", "error", err)
	}
	return true
}

// record stores the snapshot and fires the change callback on transitions.
func (m *Monitor) record(snap Snapshot) {
	m.mu.Lock()
	previous := m.last
	hadPrevious := m.haveLast
	m.last = snap
	m.haveLast = true
	fn := m.onChange
	m.mu.Unlock()

	if hadPrevious && previous.Level == snap.Level {
		return
	}

	switch snap.Level {
	case LevelCritical:
		m.logger.Error("cache storage critical", "percent", fmt.Sprintf("%.1f", snap.Percent), "used", shared.HumanBytes(snap.UsedBytes), "limit", shared.HumanBytes(snap.LimitBytes))
	case LevelWarning:
		m.logger.Warn("cache storage high", "percent", fmt.Sprintf("%.1f", snap.Percent), "used", shared.HumanBytes(snap.UsedBytes), "limit", shared.HumanBytes(snap.LimitBytes))
	default:
		if hadPrevious {
			m.logger.Info("cache storage pressure cleared", "percent", fmt.Sprintf("%.1f", snap.Percent))
		}
	}

	if fn != nil {
		fn(snap)
	}
}

// levelFor maps a usage percentage onto a pressure level.
func levelFor(percent float64) Level {
	switch {
	case percent >= CriticalPercent:
		return LevelCritical
	case percent >= WarningPercent:
		return LevelWarning
	default:
		return LevelOK
	}
}
