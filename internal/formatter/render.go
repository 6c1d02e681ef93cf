package formatter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"fermata/internal/cache"
	"fermata/internal/gateway"
	"fermata/internal/models"
	"fermata/internal/quota"
	"fermata/internal/shared"
	"fermata/internal/tasks"
)

// quotaView adds the level name the snapshot's JSON form omits.
type quotaView struct {
	quota.Snapshot
	Level string `json:"level"`
}

func newQuotaView(snap quota.Snapshot) quotaView {
	return quotaView{Snapshot: snap, Level: snap.LevelName()}
}

// kindForLevel maps storage pressure onto a status line kind.
func kindForLevel(level quota.Level) StatusKind {
	switch level {
	case quota.LevelCritical:
		return StatusError
	case quota.LevelWarning:
		return StatusWarn
	default:
		return StatusOK
	}
}

// cacheRows builds the two-column cache summary shared by status surfaces.
func cacheRows(stats cache.Stats) [][]string {
	return [][]string{
		{"Generation", strconv.Itoa(stats.Generation)},
		{"Songs", strconv.Itoa(stats.Songs)},
		{"Entries", strconv.Itoa(stats.Entries)},
		{"Size", shared.HumanBytes(stats.TotalBytes)},
	}
}

// CacheStatus renders cache totals and the per-kind breakdown, with storage
// pressure when a snapshot is available.
func CacheStatus(stats cache.Stats, snap *quota.Snapshot, format Format) (string, error) {
	if format == FormatJSON {
		out := struct {
			Cache cache.Stats `json:"cache"`
			Quota *quotaView  `json:"quota,omitempty"`
		}{Cache: stats}
		if snap != nil {
			view := newQuotaView(*snap)
			out.Quota = &view
		}
		return toJSON(out)
	}

	var b strings.Builder
	b.WriteString(Table([]string{"Cache", "Value"}, cacheRows(stats), []Alignment{AlignLeft, AlignRight}))
	b.WriteString("\n")

	if len(stats.Kinds) > 0 {
		rows := make([][]string, 0, len(stats.Kinds))
		for _, k := range stats.Kinds {
			rows = append(rows, []string{string(k.Kind), strconv.Itoa(k.Count), shared.HumanBytes(k.Bytes)})
		}
		b.WriteString(Table([]string{"Kind", "Entries", "Size"}, rows, []Alignment{AlignLeft, AlignRight, AlignRight}))
		b.WriteString("\n")
	}

	if snap != nil {
		b.WriteString(QuotaLine(*snap, false))
		b.WriteString("\n")
	}
	return b.String(), nil
}

// Quota renders one storage snapshot.
func Quota(snap quota.Snapshot, format Format) (string, error) {
	if format == FormatJSON {
		return toJSON(newQuotaView(snap))
	}

	rows := [][]string{
		{"Used", shared.HumanBytes(snap.UsedBytes)},
		{"Limit", shared.HumanBytes(snap.LimitBytes)},
		{"Usage", fmt.Sprintf("%.1f%%", snap.Percent)},
		{"Pressure", snap.LevelName()},
		{"Device free", shared.HumanBytes(snap.DeviceFree)},
		{"Checked", snap.CheckedAt.Format(time.RFC3339)},
	}
	return Table([]string{"Storage", "Value"}, rows, []Alignment{AlignLeft, AlignRight}) + "\n", nil
}

// QuotaLine renders one status line summarizing storage pressure, for watch
// output and status footers.
func QuotaLine(snap quota.Snapshot, colorize bool) string {
	message := fmt.Sprintf("%.1f%% of %s used, %s free on device",
		snap.Percent, shared.HumanBytes(snap.LimitBytes), shared.HumanBytes(snap.DeviceFree))
	return StatusLine("Storage", kindForLevel(snap.Level), message, colorize)
}

type entityErrorView struct {
	EntityID string `json:"entity_id"`
	Kind     string `json:"kind"`
	Error    string `json:"error"`
}

func errorViews(errs []tasks.EntityError) []entityErrorView {
	if len(errs) == 0 {
		return nil
	}
	views := make([]entityErrorView, 0, len(errs))
	for _, e := range errs {
		views = append(views, entityErrorView{EntityID: e.EntityID, Kind: string(e.Kind), Error: errorCell(e.Err)})
	}
	return views
}

func errorCell(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// SyncOutcome renders the counts of one sync cycle with any per-entity
// failures.
func SyncOutcome(res *tasks.SyncResult, format Format) (string, error) {
	if format == FormatJSON {
		out := struct {
			*tasks.SyncResult
			Errors []entityErrorView `json:"errors,omitempty"`
		}{SyncResult: res, Errors: errorViews(res.Errors)}
		return toJSON(out)
	}

	var b strings.Builder
	rows := [][]string{
		{"Updated", strconv.Itoa(res.Updated)},
		{"Unchanged", strconv.Itoa(res.Unchanged)},
		{"Deleted", strconv.Itoa(res.Deleted)},
		{"Failed", strconv.Itoa(res.Failed)},
		{"Elapsed", res.Elapsed().Round(time.Millisecond).String()},
	}
	b.WriteString(Table([]string{"Sync", "Value"}, rows, []Alignment{AlignLeft, AlignRight}))
	b.WriteString("\n")

	if len(res.Errors) > 0 {
		rows := make([][]string, 0, len(res.Errors))
		for _, e := range res.Errors {
			rows = append(rows, []string{e.EntityID, string(e.Kind), errorCell(e.Err)})
		}
		b.WriteString(Table([]string{"Entity", "Kind", "Error"}, rows, []Alignment{AlignLeft, AlignLeft, AlignLeft}))
		b.WriteString("\n")
	}
	return b.String(), nil
}

type syncStateView struct {
	EntityID   string    `json:"entity_id"`
	Kind       string    `json:"kind"`
	Revision   int64     `json:"revision"`
	Pending    bool      `json:"pending"`
	LastSynced time.Time `json:"last_synced"`
}

// SyncStates renders per-entity sync bookkeeping.
func SyncStates(states []models.SyncState, format Format) (string, error) {
	if format == FormatJSON {
		views := make([]syncStateView, 0, len(states))
		for _, st := range states {
			views = append(views, syncStateView{
				EntityID:   st.EntityID,
				Kind:       string(st.Kind),
				Revision:   st.Revision,
				Pending:    st.Pending,
				LastSynced: st.LastSynced,
			})
		}
		return toJSON(views)
	}

	if len(states) == 0 {
		return "No sync state recorded yet.\n", nil
	}

	rows := make([][]string, 0, len(states))
	for _, st := range states {
		pending := ""
		if st.Pending {
			pending = "yes"
		}
		synced := "never"
		if !st.LastSynced.IsZero() {
			synced = st.LastSynced.Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []string{string(st.Kind), st.EntityID, strconv.FormatInt(st.Revision, 10), pending, synced})
	}
	headers := []string{"Kind", "Entity", "Revision", "Pending", "Last Synced"}
	aligns := []Alignment{AlignLeft, AlignLeft, AlignRight, AlignLeft, AlignLeft}
	return Table(headers, rows, aligns) + "\n", nil
}

type cacheItemView struct {
	SongID  string `json:"song_id"`
	Title   string `json:"title,omitempty"`
	AudioOK bool   `json:"audio_ok"`
	CoverOK bool   `json:"cover_ok"`
	Error   string `json:"error,omitempty"`
}

func itemViews(items []tasks.CacheItemResult) []cacheItemView {
	if len(items) == 0 {
		return nil
	}
	views := make([]cacheItemView, 0, len(items))
	for _, item := range items {
		views = append(views, cacheItemView{
			SongID:  item.SongID,
			Title:   item.Title,
			AudioOK: item.AudioOK,
			CoverOK: item.CoverOK,
			Error:   errorCell(item.Err),
		})
	}
	return views
}

// CacheRun renders the outcome of a bulk caching run with any incomplete
// songs called out.
func CacheRun(res *tasks.CacheRunResult, format Format) (string, error) {
	if format == FormatJSON {
		out := struct {
			*tasks.CacheRunResult
			Items []cacheItemView `json:"items,omitempty"`
		}{CacheRunResult: res, Items: itemViews(res.Items)}
		return toJSON(out)
	}

	var b strings.Builder
	rows := [][]string{
		{"Requested", strconv.Itoa(res.Total)},
		{"Cached", strconv.Itoa(res.Succeeded)},
		{"Partial", strconv.Itoa(res.Partial)},
		{"Failed", strconv.Itoa(res.Failed)},
	}
	b.WriteString(Table([]string{"Caching", "Count"}, rows, []Alignment{AlignLeft, AlignRight}))
	b.WriteString("\n")

	// only incomplete items earn a row; a clean run stays short
	var problems [][]string
	for _, item := range res.Items {
		if item.Complete() {
			continue
		}
		detail := "artwork missing"
		if !item.AudioOK {
			detail = errorCell(item.Err)
			if detail == "" {
				detail = "audio missing"
			}
		}
		name := item.Title
		if name == "" {
			name = item.SongID
		}
		problems = append(problems, []string{name, detail})
	}
	if len(problems) > 0 {
		b.WriteString(Table([]string{"Song", "Problem"}, problems, []Alignment{AlignLeft, AlignLeft}))
		b.WriteString("\n")
	}
	return b.String(), nil
}

// AgentStatus renders the agent flags reported by the gateway status
// endpoint alongside the cache summary.
func AgentStatus(st gateway.Status, format Format, colorize bool) (string, error) {
	if format == FormatJSON {
		return toJSON(st)
	}

	var b strings.Builder
	for _, line := range SectionHeader("Agent", colorize) {
		b.WriteString(line)
		b.WriteString("\n")
	}

	if st.OfflineReady {
		b.WriteString(StatusLine("Offline ready", StatusOK, "cache and gateway serving", colorize))
	} else {
		b.WriteString(StatusLine("Offline ready", StatusError, "agent not serving", colorize))
	}
	b.WriteString("\n")

	if st.Online {
		b.WriteString(StatusLine("Upstream", StatusOK, "reachable", colorize))
	} else {
		b.WriteString(StatusLine("Upstream", StatusWarn, "unreachable, serving from cache", colorize))
	}
	b.WriteString("\n")

	if st.NeedRefresh {
		b.WriteString(StatusLine("Update", StatusWarn, "server update pending, run 'fermata agent update'", colorize))
	} else {
		b.WriteString(StatusLine("Update", StatusOK, "up to date", colorize))
	}
	b.WriteString("\n")

	if st.Syncing {
		b.WriteString(StatusLine("Sync", StatusInfo, "cycle running", colorize))
	} else {
		b.WriteString(StatusLine("Sync", StatusInfo, "idle", colorize))
	}
	b.WriteString("\n")

	if st.GuestMode {
		b.WriteString(StatusLine("Mode", StatusInfo, "guest, serving pre-seeded media only", colorize))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(Table([]string{"Cache", "Value"}, cacheRows(st.Cache), []Alignment{AlignLeft, AlignRight}))
	b.WriteString("\n")
	return b.String(), nil
}
