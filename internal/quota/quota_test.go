package quota

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"fermata/internal/shared"
)

func testMonitor(t *testing.T, capBytes int64, usage UsageFunc) *Monitor {
	t.Helper()
	return NewMonitor(t.TempDir(), capBytes, usage, shared.NewLogger(io.Discard))
}

func staticUsage(n int64) UsageFunc {
	return func() (int64, error) { return n, nil }
}

func TestCheck(t *testing.T) {
	t.Run("ComputesPercentAgainstCap", func(t *testing.T) {
		m := testMonitor(t, 1000, staticUsage(250))

		snap, err := m.Check()
		if err != nil {
			t.Fatalf("check failed: %v", err)
		}

		if snap.UsedBytes != 250 {
			t.Errorf("expected 250 used bytes, got %d", snap.UsedBytes)
		}

		if snap.LimitBytes != 1000 {
			t.Errorf("expected limit 1000, got %d", snap.LimitBytes)
		}

		if snap.Percent != 25 {
			t.Errorf("expected 25 percent, got %.1f", snap.Percent)
		}

		if snap.Level != LevelOK {
			t.Errorf("expected level ok, got %s", snap.Level)
		}
	})

	t.Run("ZeroCapFallsBackToDevice", func(t *testing.T) {
		m := testMonitor(t, 0, staticUsage(100))

		snap, err := m.Check()
		if err != nil {
			t.Fatalf("check failed: %v", err)
		}

		if snap.LimitBytes != snap.UsedBytes+snap.DeviceFree {
			t.Errorf("expected device-bound limit, got %d", snap.LimitBytes)
		}

		if snap.DeviceTotal <= 0 {
			t.Errorf("expected positive device total, got %d", snap.DeviceTotal)
		}
	})

	t.Run("RecordsLastSnapshot", func(t *testing.T) {
		m := testMonitor(t, 1000, staticUsage(500))

		if _, ok := m.Last(); ok {
			t.Fatal("expected no snapshot before first check")
		}

		if _, err := m.Check(); err != nil {
			t.Fatalf("check failed: %v", err)
		}

		last, ok := m.Last()
		if !ok {
			t.Fatal("expected a snapshot after check")
		}

		if last.UsedBytes != 500 {
			t.Errorf("expected 500 used bytes, got %d", last.UsedBytes)
		}
	})

	t.Run("UsageFailure", func(t *testing.T) {
		m := testMonitor(t, 1000, func() (int64, error) {
			return 0, errors.New("table locked")
		})

		if _, err := m.Check(); err == nil {
			t.Fatal("expected error when usage cannot be measured")
		}
	})

	t.Run("StatfsFailure", func(t *testing.T) {
		m := NewMonitor("/nonexistent/fermata-quota", 1000, staticUsage(0), shared.NewLogger(io.Discard))

		_, err := m.Check()
		if !errors.Is(err, shared.ErrStorage) {
			t.Fatalf("expected storage error, got %v", err)
		}
	})
}

func TestLevels(t *testing.T) {
	tc := []struct {
		name     string
		used     int64
		expected Level
	}{
		{"WellBelow", 100, LevelOK},
		{"JustBelowWarning", 799, LevelOK},
		{"AtWarning", 800, LevelWarning},
		{"BetweenThresholds", 850, LevelWarning},
		{"AtCritical", 900, LevelCritical},
		{"Full", 1000, LevelCritical},
	}

	for _, c := range tc {
		t.Run(c.name, func(t *testing.T) {
			m := testMonitor(t, 1000, staticUsage(c.used))

			snap, err := m.Check()
			if err != nil {
				t.Fatalf("check failed: %v", err)
			}

			if snap.Level != c.expected {
				t.Errorf("expected level %s at %d bytes, got %s", c.expected, c.used, snap.Level)
			}
		})
	}
}

func TestTransitions(t *testing.T) {
	t.Run("FiresOnLevelChangeOnly", func(t *testing.T) {
		used := int64(100)
		m := testMonitor(t, 1000, func() (int64, error) { return used, nil })

		var fired []Level
		m.SetOnChange(func(s Snapshot) {
			fired = append(fired, s.Level)
		})

		steps := []struct {
			used int64
			want int
		}{
			{100, 1},  // first snapshot always reports
			{200, 1},  // still ok, no event
			{850, 2},  // ok -> warning
			{870, 2},  // warning holds
			{950, 3},  // warning -> critical
			{100, 4},  // critical -> ok
		}

		for _, s := range steps {
			used = s.used
			if _, err := m.Check(); err != nil {
				t.Fatalf("check failed: %v", err)
			}
			if len(fired) != s.want {
				t.Fatalf("after usage %d expected %d events, got %d", s.used, s.want, len(fired))
			}
		}

		expected := []Level{LevelOK, LevelWarning, LevelCritical, LevelOK}
		for i, lvl := range expected {
			if fired[i] != lvl {
				t.Errorf("event %d: expected %s, got %s", i, lvl, fired[i])
			}
		}
	})
}

func TestWouldExceed(t *testing.T) {
	t.Run("NoSnapshot", func(t *testing.T) {
		m := testMonitor(t, 1000, staticUsage(0))

		if m.WouldExceed(1 << 30) {
			t.Error("expected false before any check")
		}
	})

	t.Run("ProjectsAgainstLimit", func(t *testing.T) {
		m := testMonitor(t, 1000, staticUsage(800))

		if _, err := m.Check(); err != nil {
			t.Fatalf("check failed: %v", err)
		}

		if m.WouldExceed(50) {
			t.Error("850 of 1000 should not exceed")
		}

		if !m.WouldExceed(100) {
			t.Error("900 of 1000 should exceed")
		}
	})
}

func TestTickGuard(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	// usage runs once per executed tick; only the first call may close started
	var startedOnce sync.Once
	m := testMonitor(t, 1000, func() (int64, error) {
		startedOnce.Do(func() { close(started) })
		<-release
		return 0, nil
	})

	done := make(chan bool)
	go func() {
		done <- m.tick()
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first tick never started")
	}

	if m.tick() {
		t.Error("expected overlapping tick to be skipped")
	}

	close(release)

	select {
	case ran := <-done:
		if !ran {
			t.Error("expected first tick to run")
		}
	case <-time.After(time.Second):
		t.Fatal("first tick never finished")
	}

	if !m.tick() {
		t.Error("expected tick to run after the previous one finished")
	}
}
