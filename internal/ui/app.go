package ui

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"k8s.io/utils/clock"

	"github.com/five82/pulse/internal/logtail"
	"github.com/five82/pulse/internal/prefs"
	"github.com/five82/pulse/internal/sheets"
	"github.com/five82/pulse/internal/state"
)

// Controller is the part of the poll scheduler the dashboard drives.
type Controller interface {
	Start(ctx context.Context)
	Stop()
	Paused() bool
	ForceUpdate(ctx context.Context)
}

// Activity receives the user presence signals the dashboard observes.
type Activity interface {
	Touch()
	SetVisible(visible bool)
}

// Options configures the UI.
type Options struct {
	Context     context.Context
	Store       *state.Store
	Controller  Controller
	Activity    Activity
	PendingRule sheets.PendingRule
	Columns     []string // extra Row.Field names shown on wide terminals
	LogPath     string
	Refresh     time.Duration
	Prefs       prefs.Prefs
	PrefsPath   string
	Clock       clock.PassiveClock
}

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx         context.Context
	store       *state.Store
	ctrl        Controller
	activity    Activity
	clock       clock.PassiveClock
	pendingRule sheets.PendingRule
	columns     []string
	logPath     string
	refresh     time.Duration
	prefs       prefs.Prefs
	prefsPath   string

	theme  Theme
	keys   keyMap
	help   help.Model
	table  table.Model
	width  int
	height int
	ready  bool

	snapshot    state.Snapshot
	lastUpdated time.Time
	forcing     bool

	showLog  bool
	logLevel logtail.Level
	logView  viewport.Model
	logLines []logtail.Entry
}

// New creates the dashboard model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	refresh := opts.Refresh
	if refresh <= 0 {
		refresh = DefaultUIInterval
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	store := opts.Store
	if store == nil {
		store = &state.Store{}
	}

	m := Model{
		ctx:         ctx,
		store:       store,
		ctrl:        opts.Controller,
		activity:    opts.Activity,
		clock:       clk,
		pendingRule: opts.PendingRule,
		columns:     opts.Columns,
		logPath:     opts.LogPath,
		refresh:     refresh,
		prefs:       opts.Prefs,
		prefsPath:   opts.PrefsPath,
		theme:       GetTheme(opts.Prefs.Theme),
		keys:        DefaultKeyMap(),
		help:        help.New(),
		showLog:     opts.Prefs.ShowLog,
		logLevel:    logtail.LevelInfo,
		logView:     viewport.New(0, 0),
	}
	m.table = table.New(
		table.WithColumns(m.tableColumns(0)),
		table.WithFocused(true),
		table.WithStyles(m.theme.TableStyles()),
	)
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		fetchSnapshotCmd(m.store),
		tickCmd(m.refresh),
	}
	if m.showLog {
		cmds = append(cmds, readLogCmd(m.logPath))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.help.Width = msg.Width
		m.layout()
		return m, nil

	case tea.FocusMsg:
		if m.activity != nil {
			m.activity.SetVisible(true)
		}
		return m, nil

	case tea.BlurMsg:
		if m.activity != nil {
			m.activity.SetVisible(false)
		}
		return m, nil

	case tea.MouseMsg:
		if m.activity != nil {
			m.activity.Touch()
		}
		return m, nil

	case tea.KeyMsg:
		if m.activity != nil {
			m.activity.Touch()
		}
		return m.handleKey(msg)

	case tickMsg:
		cmds := []tea.Cmd{fetchSnapshotCmd(m.store), tickCmd(m.refresh)}
		if m.showLog {
			cmds = append(cmds, readLogCmd(m.logPath))
		}
		return m, tea.Batch(cmds...)

	case snapshotMsg:
		m.snapshot = state.Snapshot(msg)
		m.lastUpdated = m.clock.Now()
		m.updateTable()
		return m, nil

	case forceDoneMsg:
		m.forcing = false
		return m, fetchSnapshotCmd(m.store)

	case logMsg:
		m.logLines = msg.entries
		m.updateLogView()
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderRows())
	if m.showLog {
		b.WriteString("\n")
		b.WriteString(m.renderLog())
	}
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.layout()
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		if m.forcing || m.ctrl == nil {
			return m, nil
		}
		m.forcing = true
		return m, forceUpdateCmd(m.ctx, m.ctrl)

	case key.Matches(msg, m.keys.Pause):
		if m.ctrl == nil {
			return m, nil
		}
		paused := !m.ctrl.Paused()
		if paused {
			m.ctrl.Stop()
		} else {
			m.ctrl.Start(m.ctx)
		}
		m.savePrefs(func(p *prefs.Prefs) { p.StartPaused = paused })
		return m, fetchSnapshotCmd(m.store)

	case key.Matches(msg, m.keys.ToggleLog):
		m.showLog = !m.showLog
		showLog := m.showLog
		m.savePrefs(func(p *prefs.Prefs) { p.ShowLog = showLog })
		m.layout()
		if m.showLog {
			return m, readLogCmd(m.logPath)
		}
		return m, nil

	case key.Matches(msg, m.keys.LogLevel):
		m.logLevel = nextLogLevel(m.logLevel)
		m.updateLogView()
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.table.SetStyles(m.theme.TableStyles())
		theme := m.theme.Name
		m.savePrefs(func(p *prefs.Prefs) { p.Theme = theme })
		return m, nil

	case key.Matches(msg, m.keys.Top):
		m.table.GotoTop()
		return m, nil

	case key.Matches(msg, m.keys.Bottom):
		m.table.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// savePrefs applies change locally and to the prefs file.
func (m *Model) savePrefs(change func(*prefs.Prefs)) {
	change(&m.prefs)
	if m.prefsPath == "" {
		return
	}
	if _, err := prefs.Update(m.prefsPath, change); err != nil {
		slog.Warn("Failed to save preferences", "path", m.prefsPath, "error", err)
	}
}

// layout sizes the table and log panel to the terminal.
func (m *Model) layout() {
	if !m.ready {
		return
	}
	footer := 1
	if m.help.ShowAll {
		footer = 5
	}
	body := m.height - 1 - footer - 1
	if m.showLog {
		body -= LogPanelHeight
		m.logView.Width = m.width
		m.logView.Height = LogPanelHeight - 1
		m.updateLogView()
	}
	if body < 3 {
		body = 3
	}

	m.table.SetWidth(m.width)
	m.table.SetHeight(body)
	m.updateTable()
}

func nextLogLevel(l logtail.Level) logtail.Level {
	switch l {
	case logtail.LevelDebug:
		return logtail.LevelInfo
	case logtail.LevelInfo:
		return logtail.LevelWarn
	case logtail.LevelWarn:
		return logtail.LevelError
	default:
		return logtail.LevelDebug
	}
}

// Messages

type tickMsg time.Time

type snapshotMsg state.Snapshot

type forceDoneMsg struct{}

type logMsg struct {
	entries []logtail.Entry
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store *state.Store) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(store.Snapshot())
	}
}

func forceUpdateCmd(ctx context.Context, ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		ctrl.ForceUpdate(ctx)
		return forceDoneMsg{}
	}
}

func readLogCmd(path string) tea.Cmd {
	if path == "" {
		return nil
	}
	return func() tea.Msg {
		lines, err := logtail.Read(path, LogPanelLines)
		if err != nil {
			return logMsg{entries: []logtail.Entry{{Raw: err.Error(), Level: logtail.LevelError}}}
		}
		return logMsg{entries: logtail.ParseLines(lines)}
	}
}

// Run starts the Bubble Tea program and blocks until it exits or ctx is done.
func Run(opts Options) error {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	opts.Context = ctx
	p := tea.NewProgram(New(opts),
		tea.WithAltScreen(),
		tea.WithReportFocus(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
