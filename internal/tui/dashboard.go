// Package tui is the operator's terminal dashboard. It follows The Elm
// Architecture: state lives in Model, Update reacts to key presses and change
// signals, and View renders the current state.
package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/smarttraffic/console/internal/media"
	"github.com/smarttraffic/console/internal/notice"
	"github.com/smarttraffic/console/internal/traffic"
)

const (
	// commandTimeout bounds a single operator command.
	commandTimeout = 10 * time.Second
	recentNotices  = 4
)

// Traffic is the synchronizer surface the dashboard reads and commands.
type Traffic interface {
	Intersections() []traffic.Intersection
	SearchViolations(term string) []traffic.Violation
	Total() traffic.Series
	Status() traffic.Status
	SetSignal(ctx context.Context, id string, status traffic.SignalStatus) error
	SetAutoMode(ctx context.Context, id string, enabled bool) error
	CheckViolations(ctx context.Context, id string) (bool, error)
	Subscribe() (<-chan struct{}, func())
}

// Feeds is the camera feed surface the dashboard shows.
type Feeds interface {
	States() []media.FeedState
	Retry(id string) error
	Subscribe() (<-chan struct{}, func())
}

var (
	_ Traffic = (*traffic.Synchronizer)(nil)
	_ Feeds   = (*media.Controller)(nil)
)

// Config holds the dashboard's collaborators. Feeds and Notices are optional.
type Config struct {
	Traffic Traffic
	Feeds   Feeds
	Notices *notice.Center
}

type (
	trafficChangedMsg struct{}
	feedsChangedMsg   struct{}
	noticeMsg         notice.Notice
	commandDoneMsg    struct {
		action string
		err    error
	}
)

// Model is the dashboard state.
type Model struct {
	traffic Traffic
	feeds   Feeds
	notices *notice.Center

	keys   keyMap
	help   help.Model
	table  table.Model
	search textinput.Model

	intersections []traffic.Intersection
	violations    []traffic.Violation
	total         traffic.Series
	status        traffic.Status
	feedStates    []media.FeedState
	recent        []notice.Notice
	lastResult    string
	searching     bool

	trafficCh <-chan struct{}
	feedCh    <-chan struct{}
	noticeCh  <-chan notice.Notice
	stops     []func()

	width int
}

// New subscribes to cfg's sources and builds the initial state. Call Close
// when the program exits.
func New(cfg Config) *Model {
	t := table.New(
		table.WithColumns(columns(0)),
		table.WithFocused(true),
		table.WithHeight(6),
	)
	t.SetStyles(tableStyles())

	search := textinput.New()
	search.Prompt = "search: "
	search.Placeholder = "plate, location or type"
	search.CharLimit = 64

	m := &Model{
		traffic: cfg.Traffic,
		feeds:   cfg.Feeds,
		notices: cfg.Notices,
		keys:    defaultKeyMap(),
		help:    help.New(),
		table:   t,
		search:  search,
	}

	ch, stop := m.traffic.Subscribe()
	m.trafficCh = ch
	m.stops = append(m.stops, stop)
	if m.feeds != nil {
		ch, stop := m.feeds.Subscribe()
		m.feedCh = ch
		m.stops = append(m.stops, stop)
	}
	if m.notices != nil {
		ch, stop := m.notices.Subscribe(16)
		m.noticeCh = ch
		m.stops = append(m.stops, stop)
		m.recent = m.notices.Recent(recentNotices)
	}

	m.reload()
	return m
}

// Close ends all subscriptions.
func (m *Model) Close() {
	for _, stop := range m.stops {
		stop()
	}
	m.stops = nil
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		waitSignal(m.trafficCh, trafficChangedMsg{}),
		waitSignal(m.feedCh, feedsChangedMsg{}),
		waitNotice(m.noticeCh),
	)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.table.SetColumns(columns(msg.Width))
		return m, nil

	case trafficChangedMsg:
		m.reload()
		return m, waitSignal(m.trafficCh, trafficChangedMsg{})

	case feedsChangedMsg:
		m.reloadFeeds()
		return m, waitSignal(m.feedCh, feedsChangedMsg{})

	case noticeMsg:
		m.recent = append(m.recent, notice.Notice(msg))
		if len(m.recent) > recentNotices {
			m.recent = m.recent[len(m.recent)-recentNotices:]
		}
		return m, waitNotice(m.noticeCh)

	case commandDoneMsg:
		if msg.err != nil {
			m.lastResult = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
		} else {
			m.lastResult = msg.action + " done"
		}
		return m, nil

	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m *Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.searching = false
		m.search.Blur()
		m.search.SetValue("")
		m.reload()
		return m, nil
	case msg.Type == tea.KeyEnter:
		m.searching = false
		m.search.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.violations = m.traffic.SearchViolations(m.search.Value())
	return m, cmd
}

func (m *Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	id := m.selectedID()
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Search):
		m.searching = true
		return m, m.search.Focus()
	case key.Matches(msg, m.keys.Cancel):
		m.search.SetValue("")
		m.reload()
		return m, nil
	case key.Matches(msg, m.keys.Red):
		return m, m.setSignal(id, traffic.SignalRed)
	case key.Matches(msg, m.keys.Yellow):
		return m, m.setSignal(id, traffic.SignalYellow)
	case key.Matches(msg, m.keys.Green):
		return m, m.setSignal(id, traffic.SignalGreen)
	case key.Matches(msg, m.keys.Auto):
		return m, m.toggleAutoMode(id)
	case key.Matches(msg, m.keys.Scan):
		return m, m.checkViolations(id)
	case key.Matches(msg, m.keys.Retry):
		return m, m.retryFeed(id)
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) setSignal(id string, status traffic.SignalStatus) tea.Cmd {
	t := m.traffic
	return command("set "+string(status), func(ctx context.Context) error {
		return t.SetSignal(ctx, id, status)
	})
}

func (m *Model) toggleAutoMode(id string) tea.Cmd {
	in, ok := m.intersection(id)
	enabled := !(ok && in.AutoMode)
	action := "disable auto mode"
	if enabled {
		action = "enable auto mode"
	}
	t := m.traffic
	return command(action, func(ctx context.Context) error {
		return t.SetAutoMode(ctx, id, enabled)
	})
}

func (m *Model) checkViolations(id string) tea.Cmd {
	t := m.traffic
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		found, err := t.CheckViolations(ctx, id)
		if err != nil {
			return commandDoneMsg{action: "violation check", err: err}
		}
		if found {
			return commandDoneMsg{action: "violation check (violations found)"}
		}
		return commandDoneMsg{action: "violation check (none found)"}
	}
}

func (m *Model) retryFeed(id string) tea.Cmd {
	if m.feeds == nil {
		return nil
	}
	f := m.feeds
	return command("retry feed", func(context.Context) error {
		return f.Retry(id)
	})
}

// command runs fn off the UI goroutine and reports its outcome.
func command(action string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		err := fn(ctx)
		if errors.Is(err, traffic.ErrAutoModeActive) {
			err = errors.New(traffic.MsgAutoModeActive)
		}
		return commandDoneMsg{action: action, err: err}
	}
}

func waitSignal(ch <-chan struct{}, msg tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return msg
	}
}

func waitNotice(ch <-chan notice.Notice) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return noticeMsg(n)
	}
}

func (m *Model) reload() {
	m.intersections = m.traffic.Intersections()
	m.violations = m.traffic.SearchViolations(m.search.Value())
	m.total = m.traffic.Total()
	m.status = m.traffic.Status()
	m.table.SetRows(rows(m.intersections))
	m.reloadFeeds()
}

func (m *Model) reloadFeeds() {
	if m.feeds != nil {
		m.feedStates = m.feeds.States()
	}
}

// selectedID is empty when no intersection is loaded yet.
func (m *Model) selectedID() string {
	row := m.table.SelectedRow()
	if len(row) == 0 {
		return ""
	}
	return row[0]
}

func (m *Model) intersection(id string) (traffic.Intersection, bool) {
	for _, in := range m.intersections {
		if in.ID == id {
			return in, true
		}
	}
	return traffic.Intersection{}, false
}
