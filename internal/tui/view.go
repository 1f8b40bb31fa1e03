package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/smarttraffic/console/internal/media"
	"github.com/smarttraffic/console/internal/notice"
	"github.com/smarttraffic/console/internal/traffic"
)

const maxViolationRows = 8

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
)

var signalColors = map[traffic.SignalStatus]lipgloss.Color{
	traffic.SignalRed:    "#FF6B6B",
	traffic.SignalYellow: "#F5C542",
	traffic.SignalGreen:  "#4CD964",
}

// violationColors maps the violation color tokens to terminal colors.
var violationColors = map[string]lipgloss.Color{
	"destructive":                 "#FF6B6B",
	"yellow":                      "#F5C542",
	"orange":                      "#FF9F43",
	"purple":                      "#A55EEA",
	traffic.DefaultViolationColor: "#AAAAAA",
}

var noticeColors = map[notice.Level]lipgloss.Color{
	notice.LevelInfo:    "#5B8DEF",
	notice.LevelSuccess: "#4CD964",
	notice.LevelWarning: "#F5C542",
	notice.LevelError:   "#FF6B6B",
}

var phaseColors = map[media.Phase]lipgloss.Color{
	media.PhaseLoading: "#888888",
	media.PhaseReady:   "#4CD964",
	media.PhaseStale:   "#F5C542",
	media.PhaseError:   "#FF6B6B",
}

func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#3B5BA5"))
	return s
}

// columns sizes the intersection table; the name column takes what is left.
func columns(width int) []table.Column {
	name := 24
	if width > 0 {
		name = max(16, width-8-8-10-10-8-14)
	}
	return []table.Column{
		{Title: "ID", Width: 8},
		{Title: "Name", Width: name},
		{Title: "Signal", Width: 8},
		{Title: "Vehicles", Width: 10},
		{Title: "Emergency", Width: 10},
		{Title: "Auto", Width: 8},
	}
}

func rows(intersections []traffic.Intersection) []table.Row {
	out := make([]table.Row, 0, len(intersections))
	for _, in := range intersections {
		emergency := ""
		if in.Emergency {
			emergency = "YES"
		}
		auto := "manual"
		if in.AutoMode {
			auto = "auto"
		}
		out = append(out, table.Row{
			in.ID,
			in.Name,
			strings.ToUpper(string(in.Status)),
			strconv.Itoa(in.VehicleCount),
			emergency,
			auto,
		})
	}
	return out
}

// View implements tea.Model.
func (m *Model) View() string {
	sections := []string{
		m.renderHeader(),
		boxStyle.Render(m.table.View()),
		m.renderSelected(),
		boxStyle.Render(m.renderTraffic()),
		boxStyle.Render(m.renderViolations()),
	}
	if m.feeds != nil {
		sections = append(sections, boxStyle.Render(m.renderFeeds()))
	}
	if len(m.recent) > 0 {
		sections = append(sections, m.renderNotices())
	}
	if m.lastResult != "" {
		sections = append(sections, mutedStyle.Render(m.lastResult))
	}
	sections = append(sections, m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderHeader() string {
	s := m.status
	state := "stopped"
	switch {
	case s.Loading:
		state = "syncing"
	case s.Running:
		state = "live"
	}
	line := fmt.Sprintf("%s · %d intersections · %s", state, s.Intersections, formatSync(s))
	if s.Error != "" {
		line += " · " + errorStyle.Render(s.Error)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("TRAFFIC CONTROL"),
		mutedStyle.Render(line),
	)
}

func formatSync(s traffic.Status) string {
	if s.LastSyncAt.IsZero() {
		return "never synced"
	}
	return "synced " + s.LastSyncAt.Local().Format("15:04:05")
}

func (m *Model) renderSelected() string {
	in, ok := m.intersection(m.selectedID())
	if !ok {
		return mutedStyle.Render("Select an intersection")
	}
	signal := lipgloss.NewStyle().
		Bold(true).
		Foreground(signalColors[in.Status]).
		Render("● " + strings.ToUpper(string(in.Status)))
	line := fmt.Sprintf("%s  %s", in.Name, signal)
	if in.AutoMode {
		line += mutedStyle.Render("  (auto control: manual signal changes are disabled)")
	}
	if in.Emergency {
		line += errorStyle.Render("  EMERGENCY VEHICLE")
	}
	return line
}

func (m *Model) renderTraffic() string {
	counts := make([]int, len(m.total.Points))
	for i, p := range m.total.Points {
		counts[i] = p.Count
	}
	width := 60
	if m.width > 0 {
		width = max(10, m.width-6)
	}
	current := 0
	if len(counts) > 0 {
		current = counts[len(counts)-1]
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(fmt.Sprintf("Traffic · %d vehicles now", current)),
		sparkline(counts, width),
	)
}

// sparkline renders the last width values scaled to the largest of them.
func sparkline(values []int, width int) string {
	if width > 0 && len(values) > width {
		values = values[len(values)-width:]
	}
	peak := 0
	for _, v := range values {
		peak = max(peak, v)
	}
	var b strings.Builder
	for _, v := range values {
		idx := 0
		if peak > 0 && v > 0 {
			idx = v * (len(sparkBlocks) - 1) / peak
		}
		b.WriteRune(sparkBlocks[idx])
	}
	return b.String()
}

func (m *Model) renderViolations() string {
	title := fmt.Sprintf("Violations · %d", len(m.violations))
	if m.status.ViolationsLoading {
		title += " · loading"
	}
	lines := []string{titleStyle.Render(title)}
	if m.searching || m.search.Value() != "" {
		lines = append(lines, m.search.View())
	}
	if len(m.violations) == 0 {
		lines = append(lines, mutedStyle.Render("No violations"))
	}
	for i, v := range m.violations {
		if i == maxViolationRows {
			lines = append(lines, mutedStyle.Render(fmt.Sprintf("… %d more", len(m.violations)-i)))
			break
		}
		style := v.Type.Style()
		badge := lipgloss.NewStyle().Foreground(violationColors[style.Color]).Render(style.Label)
		lines = append(lines, fmt.Sprintf("%s  %-10s %s  %s",
			v.Timestamp.Local().Format("15:04:05"), v.VehicleNumber, badge, mutedStyle.Render(v.Location)))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderFeeds() string {
	lines := []string{titleStyle.Render("Camera feeds")}
	if len(m.feedStates) == 0 {
		lines = append(lines, mutedStyle.Render("No active feeds"))
	}
	for _, f := range m.feedStates {
		phase := lipgloss.NewStyle().Foreground(phaseColors[f.Phase]).Render(string(f.Phase))
		line := fmt.Sprintf("%-8s %s  %s %.1ffps", f.IntersectionID, phase, f.Quality, f.FPS)
		if f.Error != "" {
			line += "  " + errorStyle.Render(f.Error)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderNotices() string {
	lines := make([]string, 0, len(m.recent))
	for _, n := range m.recent {
		level := lipgloss.NewStyle().Foreground(noticeColors[n.Level]).Render(strings.ToUpper(string(n.Level)))
		lines = append(lines, fmt.Sprintf("%s %s %s", mutedStyle.Render(n.Time.Local().Format("15:04:05")), level, n.Message))
	}
	return strings.Join(lines, "\n")
}
