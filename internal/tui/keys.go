package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Red    key.Binding
	Yellow key.Binding
	Green  key.Binding
	Auto   key.Binding
	Scan   key.Binding
	Retry  key.Binding
	Search key.Binding
	Cancel key.Binding
	Help   key.Binding
	Quit   key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Red:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "red")),
		Yellow: key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "yellow")),
		Green:  key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "green")),
		Auto:   key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "auto mode")),
		Scan:   key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "check violations")),
		Retry:  key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "retry feed")),
		Search: key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search violations")),
		Cancel: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close search")),
		Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Red, k.Yellow, k.Green, k.Auto, k.Scan, k.Search, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Red, k.Yellow, k.Green, k.Auto},
		{k.Scan, k.Search, k.Cancel, k.Retry},
		{k.Help, k.Quit},
	}
}
