package formatter

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"fermata/internal/cache"
	"fermata/internal/gateway"
	"fermata/internal/models"
	"fermata/internal/quota"
	"fermata/internal/repositories"
	"fermata/internal/shared"
	"fermata/internal/tasks"
)

func TestParseFormat(t *testing.T) {
	t.Run("Defaults To Table", func(t *testing.T) {
		f, err := ParseFormat("")
		if err != nil {
			t.Fatalf("ParseFormat failed: %v", err)
		}
		if f != FormatTable {
			t.Errorf("expected table, got %q", f)
		}
	})

	t.Run("Accepts JSON Case Insensitively", func(t *testing.T) {
		f, err := ParseFormat("JSON")
		if err != nil {
			t.Fatalf("ParseFormat failed: %v", err)
		}
		if f != FormatJSON {
			t.Errorf("expected json, got %q", f)
		}
	})

	t.Run("Rejects Unknown Values", func(t *testing.T) {
		_, err := ParseFormat("yaml")
		if !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})
}

func TestTable(t *testing.T) {
	t.Run("Renders Rows", func(t *testing.T) {
		out := Table([]string{"Kind", "Count"}, [][]string{{"audio", "12"}, {"cover", "11"}}, []Alignment{AlignLeft, AlignRight})
		if !strings.Contains(out, "audio") || !strings.Contains(out, "12") {
			t.Errorf("table missing row data, got:\n%s", out)
		}
	})

	t.Run("Pads Short Rows", func(t *testing.T) {
		out := Table([]string{"A", "B", "C"}, [][]string{{"1"}}, nil)
		if !strings.Contains(out, "1") {
			t.Errorf("table missing padded row, got:\n%s", out)
		}
	})

	t.Run("Empty Headers Render Nothing", func(t *testing.T) {
		if out := Table(nil, nil, nil); out != "" {
			t.Errorf("expected empty output, got %q", out)
		}
	})
}

func TestStatusLine(t *testing.T) {
	t.Run("Plain", func(t *testing.T) {
		line := StatusLine("Storage", StatusOK, "plenty of room", false)
		if !strings.Contains(line, "Storage:") {
			t.Errorf("line missing label: %q", line)
		}
		if !strings.Contains(line, "[OK] plenty of room") {
			t.Errorf("line missing status tag: %q", line)
		}
		if strings.Contains(line, ansiGreen) {
			t.Errorf("plain line should carry no color: %q", line)
		}
	})

	t.Run("Colorized", func(t *testing.T) {
		line := StatusLine("Upstream", StatusError, "unreachable", true)
		if !strings.HasPrefix(line, ansiRed) || !strings.HasSuffix(line, ansiReset) {
			t.Errorf("expected red wrapping, got %q", line)
		}
	})

	t.Run("Without Message", func(t *testing.T) {
		line := StatusLine("Sync", StatusWarn, "", false)
		if !strings.Contains(line, "[WARN]") {
			t.Errorf("line missing bare tag: %q", line)
		}
	})
}

func testStats() cache.Stats {
	return cache.Stats{
		Entries:    4,
		Songs:      2,
		TotalBytes: 2048,
		Generation: 3,
		Kinds: []repositories.KindStats{
			{Kind: models.EntryAudio, Count: 2, Bytes: 1536},
			{Kind: models.EntryCover, Count: 2, Bytes: 512},
		},
	}
}

func TestCacheStatus(t *testing.T) {
	t.Run("Table Form", func(t *testing.T) {
		out, err := CacheStatus(testStats(), nil, FormatTable)
		if err != nil {
			t.Fatalf("CacheStatus failed: %v", err)
		}
		if !strings.Contains(out, "Generation") || !strings.Contains(out, "2.0 KB") {
			t.Errorf("output missing cache summary:\n%s", out)
		}
		if !strings.Contains(out, "audio") || !strings.Contains(out, "1.5 KB") {
			t.Errorf("output missing kind breakdown:\n%s", out)
		}
	})

	t.Run("Appends Pressure When Known", func(t *testing.T) {
		snap := &quota.Snapshot{UsedBytes: 900, LimitBytes: 1000, Percent: 90, Level: quota.LevelCritical}
		out, err := CacheStatus(testStats(), snap, FormatTable)
		if err != nil {
			t.Fatalf("CacheStatus failed: %v", err)
		}
		if !strings.Contains(out, "[ERROR]") || !strings.Contains(out, "90.0%") {
			t.Errorf("output missing pressure line:\n%s", out)
		}
	})

	t.Run("JSON Form", func(t *testing.T) {
		out, err := CacheStatus(testStats(), nil, FormatJSON)
		if err != nil {
			t.Fatalf("CacheStatus failed: %v", err)
		}

		var decoded struct {
			Cache cache.Stats     `json:"cache"`
			Quota json.RawMessage `json:"quota"`
		}
		if err := json.Unmarshal([]byte(out), &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if decoded.Cache.Entries != 4 || decoded.Cache.Generation != 3 {
			t.Errorf("unexpected cache payload: %+v", decoded.Cache)
		}
		if len(decoded.Quota) != 0 {
			t.Errorf("expected no quota block without a snapshot, got %s", decoded.Quota)
		}
	})
}

func TestQuota(t *testing.T) {
	snap := quota.Snapshot{
		UsedBytes:  1536,
		LimitBytes: 4096,
		DeviceFree: 10240,
		Percent:    37.5,
		Level:      quota.LevelOK,
		CheckedAt:  time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}

	t.Run("Table Form", func(t *testing.T) {
		out, err := Quota(snap, FormatTable)
		if err != nil {
			t.Fatalf("Quota failed: %v", err)
		}
		for _, want := range []string{"1.5 KB", "4.0 KB", "37.5%", "ok"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("JSON Form", func(t *testing.T) {
		out, err := Quota(snap, FormatJSON)
		if err != nil {
			t.Fatalf("Quota failed: %v", err)
		}

		var decoded map[string]any
		if err := json.Unmarshal([]byte(out), &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if decoded["level"] != "ok" {
			t.Errorf("expected level ok, got %v", decoded["level"])
		}
		if decoded["used_bytes"] != float64(1536) {
			t.Errorf("expected used_bytes 1536, got %v", decoded["used_bytes"])
		}
	})

	t.Run("Watch Line Carries Pressure Kind", func(t *testing.T) {
		critical := snap
		critical.Percent = 95
		critical.Level = quota.LevelCritical
		line := QuotaLine(critical, false)
		if !strings.Contains(line, "[ERROR]") || !strings.Contains(line, "95.0%") {
			t.Errorf("unexpected watch line: %q", line)
		}
	})
}

func TestSyncOutcome(t *testing.T) {
	started := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	res := &tasks.SyncResult{
		Updated:    3,
		Unchanged:  5,
		Failed:     1,
		Deleted:    2,
		Errors:     []tasks.EntityError{{EntityID: "p9", Kind: models.KindPlaylist, Err: errors.New("upstream timeout")}},
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
	}

	t.Run("Table Form", func(t *testing.T) {
		out, err := SyncOutcome(res, FormatTable)
		if err != nil {
			t.Fatalf("SyncOutcome failed: %v", err)
		}
		for _, want := range []string{"Updated", "1.5s", "p9", "upstream timeout"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("JSON Form", func(t *testing.T) {
		out, err := SyncOutcome(res, FormatJSON)
		if err != nil {
			t.Fatalf("SyncOutcome failed: %v", err)
		}

		var decoded struct {
			Updated int `json:"updated"`
			Errors  []struct {
				EntityID string `json:"entity_id"`
				Error    string `json:"error"`
			} `json:"errors"`
		}
		if err := json.Unmarshal([]byte(out), &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if decoded.Updated != 3 {
			t.Errorf("expected updated 3, got %d", decoded.Updated)
		}
		if len(decoded.Errors) != 1 || decoded.Errors[0].Error != "upstream timeout" {
			t.Errorf("expected error detail in JSON, got %+v", decoded.Errors)
		}
	})
}

func TestSyncStates(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		out, err := SyncStates(nil, FormatTable)
		if err != nil {
			t.Fatalf("SyncStates failed: %v", err)
		}
		if !strings.Contains(out, "No sync state recorded yet") {
			t.Errorf("unexpected empty output: %q", out)
		}
	})

	t.Run("Table Form", func(t *testing.T) {
		states := []models.SyncState{
			{EntityID: "pl1", Kind: models.KindPlaylist, Revision: 7, Pending: true, LastSynced: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)},
			{EntityID: "library", Kind: models.KindLibrary, Revision: 12},
		}
		out, err := SyncStates(states, FormatTable)
		if err != nil {
			t.Fatalf("SyncStates failed: %v", err)
		}
		for _, want := range []string{"pl1", "yes", "2026-03-14 09:30:00", "never"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("JSON Form", func(t *testing.T) {
		states := []models.SyncState{{EntityID: "s1", Kind: models.KindSong, Revision: 2}}
		out, err := SyncStates(states, FormatJSON)
		if err != nil {
			t.Fatalf("SyncStates failed: %v", err)
		}

		var decoded []map[string]any
		if err := json.Unmarshal([]byte(out), &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if len(decoded) != 1 || decoded[0]["entity_id"] != "s1" || decoded[0]["kind"] != "song" {
			t.Errorf("unexpected JSON payload: %+v", decoded)
		}
	})
}

func TestCacheRun(t *testing.T) {
	res := &tasks.CacheRunResult{
		Total:     3,
		Succeeded: 1,
		Partial:   1,
		Failed:    1,
		Items: []tasks.CacheItemResult{
			{SongID: "s1", Title: "Clean Song", AudioOK: true, CoverOK: true},
			{SongID: "s2", Title: "Song Two", AudioOK: true, CoverOK: false},
			{SongID: "s3", AudioOK: false, Err: errors.New("storage quota exceeded")},
		},
	}

	t.Run("Table Form", func(t *testing.T) {
		out, err := CacheRun(res, FormatTable)
		if err != nil {
			t.Fatalf("CacheRun failed: %v", err)
		}
		for _, want := range []string{"Requested", "Song Two", "artwork missing", "storage quota exceeded"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
		if strings.Contains(out, "Clean Song") {
			t.Errorf("complete items should not be listed:\n%s", out)
		}
	})

	t.Run("JSON Form", func(t *testing.T) {
		out, err := CacheRun(res, FormatJSON)
		if err != nil {
			t.Fatalf("CacheRun failed: %v", err)
		}

		var decoded struct {
			Total int `json:"total"`
			Items []struct {
				SongID string `json:"song_id"`
				Error  string `json:"error"`
			} `json:"items"`
		}
		if err := json.Unmarshal([]byte(out), &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if decoded.Total != 3 || len(decoded.Items) != 3 {
			t.Errorf("unexpected JSON payload: %+v", decoded)
		}
		if decoded.Items[2].Error != "storage quota exceeded" {
			t.Errorf("expected item error in JSON, got %+v", decoded.Items[2])
		}
	})
}

func TestAgentStatus(t *testing.T) {
	st := gateway.Status{
		OfflineReady: true,
		NeedRefresh:  true,
		Online:       false,
		Syncing:      false,
		GuestMode:    true,
		Cache:        cache.Stats{Songs: 12, Entries: 24, TotalBytes: 4096, Generation: 2},
	}

	t.Run("Table Form", func(t *testing.T) {
		out, err := AgentStatus(st, FormatTable, false)
		if err != nil {
			t.Fatalf("AgentStatus failed: %v", err)
		}
		for _, want := range []string{
			"== Agent ==",
			"[OK] cache and gateway serving",
			"unreachable, serving from cache",
			"server update pending",
			"guest, serving pre-seeded media only",
			"4.0 KB",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("JSON Form", func(t *testing.T) {
		out, err := AgentStatus(st, FormatJSON, false)
		if err != nil {
			t.Fatalf("AgentStatus failed: %v", err)
		}

		var decoded gateway.Status
		if err := json.Unmarshal([]byte(out), &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if !decoded.NeedRefresh || !decoded.GuestMode || decoded.Cache.Songs != 12 {
			t.Errorf("unexpected JSON payload: %+v", decoded)
		}
	})
}
