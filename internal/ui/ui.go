// package ui is the bubbletea dashboard: storage gauge, catalog browsing, and
// bulk caching runs with live progress
package ui

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"fermata/internal/cache"
	"fermata/internal/models"
	"fermata/internal/quota"
	"fermata/internal/repositories"
	"fermata/internal/shared"
	"fermata/internal/tasks"
)

// dashboardRefresh is how often the dashboard re-reads local state while visible.
const dashboardRefresh = 5 * time.Second

// ViewState represents the current view in the TUI.
type ViewState int

const (
	DashboardView ViewState = iota
	PlaylistListView
	SongListView
	ConfirmView
	CachingView
	ResultView
)

// Model represents the TUI application state.
type Model struct {
	ctx       context.Context
	view      ViewState
	songs     *repositories.SongRepository
	playlists *repositories.PlaylistRepository
	state     *repositories.SyncStateRepository
	meta      *repositories.MetaRepository
	media     *cache.Engine
	monitor   *quota.Monitor
	engine    tasks.Engine

	width  int
	height int

	stats         cache.Stats
	snap          quota.Snapshot
	haveSnap      bool
	lastSync      time.Time
	pending       int
	songCount     int
	playlistCount int

	gauge        progress.Model
	playlistList list.Model
	songList     list.Model
	selected     models.Playlist
	songTotal    int
	songCached   int

	progressChan chan tasks.ProgressUpdate
	progress     tasks.ProgressUpdate
	result       *tasks.CacheRunResult
	err          error

	help help.Model
	keys keyMap
}

type statusLoadedMsg struct {
	stats         cache.Stats
	snap          quota.Snapshot
	haveSnap      bool
	lastSync      time.Time
	pending       int
	songCount     int
	playlistCount int
	err           error
}

type playlistsFetchedMsg struct {
	playlists []models.Playlist
	err       error
}

type songsFetchedMsg struct {
	playlist models.Playlist
	songs    []models.Song
	cached   map[string]bool
	err      error
}

type progressUpdateMsg tasks.ProgressUpdate

type cacheCompleteMsg struct {
	result *tasks.CacheRunResult
	err    error
}

type tickMsg time.Time

// NewModel creates a new TUI model over the given database connection, media
// cache, quota monitor, and task engine.
func NewModel(ctx context.Context, db *sql.DB, media *cache.Engine, monitor *quota.Monitor, engine tasks.Engine) *Model {
	return &Model{
		ctx:       ctx,
		view:      DashboardView,
		songs:     repositories.NewSongRepository(db),
		playlists: repositories.NewPlaylistRepository(db),
		state:     repositories.NewSyncStateRepository(db),
		meta:      repositories.NewMetaRepository(db),
		media:     media,
		monitor:   monitor,
		engine:    engine,
		gauge:     progress.New(progress.WithDefaultGradient()),
		help:      help.New(),
		keys:      newKeyMap(),
	}
}

// Init loads the dashboard state and starts the refresh tick.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.loadStatus(), tick())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		w := msg.Width - 8
		if w > 60 {
			w = 60
		}
		if w > 0 {
			m.gauge.Width = w
		}
		if m.playlistList.Width() == 0 {
			m.playlistList.SetSize(msg.Width-4, msg.Height-8)
		}
		if m.songList.Width() == 0 {
			m.songList.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case DashboardView:
			return m.handleDashboardKeys(msg)
		case PlaylistListView:
			return m.handlePlaylistListKeys(msg)
		case SongListView:
			return m.handleSongListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case CachingView:
			return m.handleCachingKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case tickMsg:
		if m.view == DashboardView {
			return m, tea.Batch(m.loadStatus(), tick())
		}
		return m, tick()

	case statusLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.stats = msg.stats
		m.snap = msg.snap
		m.haveSnap = msg.haveSnap
		m.lastSync = msg.lastSync
		m.pending = msg.pending
		m.songCount = msg.songCount
		m.playlistCount = msg.playlistCount
		return m, nil

	case playlistsFetchedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		items := make([]list.Item, len(msg.playlists))
		for i, pl := range msg.playlists {
			items[i] = playlistItem{playlist: pl}
		}
		m.playlistList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.playlistList.Title = "Playlists"
		m.playlistList.SetSize(m.width-4, m.height-8)
		m.view = PlaylistListView
		return m, nil

	case songsFetchedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.view = PlaylistListView
			return m, nil
		}
		m.selected = msg.playlist
		m.songTotal = len(msg.songs)
		m.songCached = 0
		items := make([]list.Item, len(msg.songs))
		for i, song := range msg.songs {
			cached := msg.cached[song.ID]
			if cached {
				m.songCached++
			}
			items[i] = songItem{song: song, cached: cached}
		}
		m.songList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.songList.Title = fmt.Sprintf("Songs in '%s'", msg.playlist.Name)
		m.songList.SetSize(m.width-4, m.height-8)
		m.view = SongListView
		return m, nil

	case progressUpdateMsg:
		m.progress = tasks.ProgressUpdate(msg)
		return m, m.waitForProgress()

	case cacheCompleteMsg:
		m.result = msg.result
		m.err = msg.err
		m.view = ResultView
		// the caching goroutine owns the channel close
		m.progressChan = nil
		return m, nil
	}

	return m.updateLists(msg)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view != ResultView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case DashboardView:
		return m.renderDashboard()
	case PlaylistListView:
		return m.renderPlaylistList()
	case SongListView:
		return m.renderSongList()
	case ConfirmView:
		return m.renderConfirm()
	case CachingView:
		return m.renderCaching()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleDashboardKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "p", "enter":
		return m, m.fetchPlaylists()
	case "r":
		return m, m.loadStatus()
	}
	return m, nil
}

func (m *Model) handlePlaylistListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.view = DashboardView
		return m, m.loadStatus()
	case "enter":
		selected := m.playlistList.SelectedItem()
		if selected != nil {
			if pl, ok := selected.(playlistItem); ok {
				return m, m.fetchSongs(pl.playlist)
			}
		}
	}

	var cmd tea.Cmd
	m.playlistList, cmd = m.playlistList.Update(msg)
	return m, cmd
}

func (m *Model) handleSongListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.view = PlaylistListView
		return m, nil
	case "enter":
		m.view = ConfirmView
		return m, nil
	}

	var cmd tea.Cmd
	m.songList, cmd = m.songList.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "n", "esc":
		m.view = SongListView
		return m, nil
	case "y":
		m.view = CachingView
		return m, m.startCache()
	}
	return m, nil
}

func (m *Model) handleCachingKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// the run keeps going until its context is canceled; songs already
	// committed stay cached
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r", "esc":
		m.view = DashboardView
		m.selected = models.Playlist{}
		m.songTotal = 0
		m.songCached = 0
		m.result = nil
		m.err = nil
		return m, m.loadStatus()
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case PlaylistListView:
		m.playlistList, cmd = m.playlistList.Update(msg)
	case SongListView:
		m.songList, cmd = m.songList.Update(msg)
	}
	return m, cmd
}

func tick() tea.Cmd {
	return tea.Tick(dashboardRefresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) loadStatus() tea.Cmd {
	return func() tea.Msg {
		var (
			msg statusLoadedMsg
			err error
		)
		if msg.stats, err = m.media.Stats(); err != nil {
			return statusLoadedMsg{err: err}
		}
		if msg.lastSync, err = m.meta.LastSyncAt(); err != nil {
			return statusLoadedMsg{err: err}
		}
		if msg.pending, err = m.state.PendingCount(models.KindSong); err != nil {
			return statusLoadedMsg{err: err}
		}
		if msg.songCount, err = m.songs.Count(); err != nil {
			return statusLoadedMsg{err: err}
		}
		if msg.playlistCount, err = m.playlists.Count(); err != nil {
			return statusLoadedMsg{err: err}
		}

		// the agent keeps the monitor warm; measure once when it is not running
		if snap, ok := m.monitor.Last(); ok {
			msg.snap, msg.haveSnap = snap, true
		} else if snap, cerr := m.monitor.Check(); cerr == nil {
			msg.snap, msg.haveSnap = snap, true
		}
		return msg
	}
}

func (m *Model) fetchPlaylists() tea.Cmd {
	return func() tea.Msg {
		playlists, err := m.playlists.List()
		return playlistsFetchedMsg{playlists: playlists, err: err}
	}
}

func (m *Model) fetchSongs(playlist models.Playlist) tea.Cmd {
	return func() tea.Msg {
		songs, err := m.playlists.Songs(playlist.ID)
		if err != nil {
			return songsFetchedMsg{err: err}
		}
		cached := make(map[string]bool, len(songs))
		for _, song := range songs {
			cached[song.ID] = m.media.IsCached(song.ID)
		}
		return songsFetchedMsg{playlist: playlist, songs: songs, cached: cached}
	}
}

func (m *Model) startCache() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 50)
	m.progress = tasks.ProgressUpdate{}

	go func() {
		result, err := m.engine.CachePlaylist(m.ctx, m.progressChan, m.selected.ID)
		m.result = result
		m.err = err
		close(m.progressChan)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	return func() tea.Msg {
		if m.progressChan == nil {
			return cacheCompleteMsg{result: m.result, err: m.err}
		}

		update, ok := <-m.progressChan
		if !ok {
			return cacheCompleteMsg{result: m.result, err: m.err}
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderDashboard() string {
	title := styles.title.Render("fermata status")

	var storage string
	if m.haveSnap {
		detail := fmt.Sprintf("%s of %s used, %s free on device",
			shared.HumanBytes(m.snap.UsedBytes), shared.HumanBytes(m.snap.LimitBytes), shared.HumanBytes(m.snap.DeviceFree))
		switch m.snap.Level {
		case quota.LevelCritical:
			detail = styles.err.Render(detail + " (critical)")
		case quota.LevelWarning:
			detail = styles.warn.Render(detail + " (warning)")
		}
		storage = fmt.Sprintf("%s\n%s", m.gauge.ViewAs(m.snap.Percent/100), detail)
	} else {
		storage = styles.help.Render("storage not measured yet")
	}

	info := fmt.Sprintf("Cached: %d songs, %s across %d entries (generation %d)\nCatalog: %d songs in %d playlists",
		m.stats.Songs, shared.HumanBytes(m.stats.TotalBytes), m.stats.Entries, m.stats.Generation,
		m.songCount, m.playlistCount)

	lastSync := "never"
	if !m.lastSync.IsZero() {
		lastSync = m.lastSync.Local().Format("2006-01-02 15:04")
	}
	syncLine := fmt.Sprintf("Last sync: %s", lastSync)
	if m.pending > 0 {
		syncLine = fmt.Sprintf("%s, %s", syncLine, styles.warn.Render(fmt.Sprintf("%d songs pending", m.pending)))
	}

	playlistsKey := key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "playlists"),
	)
	helpView := m.help.ShortHelpView([]key.Binding{playlistsKey, m.keys.refresh, m.keys.quit})

	return fmt.Sprintf("%s\n%s\n\n%s\n%s\n\n%s", title, storage, info, syncLine, helpView)
}

func (m *Model) renderPlaylistList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.playlistList.View(), helpView)
}

func (m *Model) renderSongList() string {
	cacheKey := key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "cache"),
	)
	helpKeys := []key.Binding{cacheKey, m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.songList.View(), helpView)
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Cache '%s' for offline playback?", m.selected.Name))
	info := fmt.Sprintf("\nPlaylist: %s\nSongs: %d (%d already cached)\n", m.selected.Name, m.songTotal, m.songCached)

	helpKeys := []key.Binding{m.keys.yes, m.keys.no, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}

func (m *Model) renderCaching() string {
	title := styles.title.Render(fmt.Sprintf("Caching '%s'", m.selected.Name))

	var line string
	switch m.progress.Phase {
	case tasks.ResolveSet:
		line = "Resolving songs..."
	case tasks.CacheItems:
		if m.progress.Total > 0 {
			line = fmt.Sprintf("%s %d/%d", m.gauge.ViewAs(float64(m.progress.Step)/float64(m.progress.Total)), m.progress.Step, m.progress.Total)
		} else {
			line = "Caching..."
		}
	default:
		line = "Working..."
	}

	return fmt.Sprintf("%s\n\n%s\n%s", title, line, m.progress.Message)
}

func (m *Model) renderResult() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Caching failed: %v\n\nPress r for the dashboard, q to quit", m.err))
	}

	if m.result == nil {
		return styles.err.Render("No result available\n\nPress r for the dashboard, q to quit")
	}

	var title string
	switch {
	case m.result.Failed == 0 && m.result.Partial == 0:
		title = styles.ok.Render("✓ Playlist Cached")
	case m.result.Succeeded+m.result.Partial > 0:
		title = styles.warn.Render("Playlist Partially Cached")
	default:
		title = styles.err.Render("✗ Caching Failed")
	}

	info := fmt.Sprintf("\nPlaylist: %s\nSongs: %d/%d complete, %d partial, %d failed",
		m.selected.Name, m.result.Succeeded, m.result.Total, m.result.Partial, m.result.Failed)

	var failed string
	if m.result.Failed > 0 || m.result.Partial > 0 {
		failed = fmt.Sprintf("\n\n%s", styles.warn.Render("Incomplete songs:"))
		for _, item := range m.result.Items {
			if item.Complete() {
				continue
			}
			name := item.SongID
			if item.Title != "" {
				name = item.Title
			}
			switch {
			case item.AudioOK:
				failed += fmt.Sprintf("\n  • %s (artwork missing)", name)
			case item.Err != nil:
				failed += fmt.Sprintf("\n  • %s: %v", name, item.Err)
			default:
				failed += fmt.Sprintf("\n  • %s", name)
			}
		}
	}

	dashboardKey := key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "dashboard"),
	)
	helpView := m.help.ShortHelpView([]key.Binding{dashboardKey, m.keys.quit})

	return fmt.Sprintf("%s\n%s%s\n\n%s", title, info, failed, helpView)
}
