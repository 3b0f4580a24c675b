package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	analyze    key.Binding
	nextFocus  key.Binding
	attach     key.Binding
	removeLast key.Binding
	clearAll   key.Binding
	toggleHelp key.Binding
	quit       key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		analyze: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "analyze"),
		),
		nextFocus: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "text/files"),
		),
		attach: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "attach path"),
		),
		removeLast: key.NewBinding(
			key.WithKeys("ctrl+d"),
			key.WithHelp("ctrl+d", "remove last file"),
		),
		clearAll: key.NewBinding(
			key.WithKeys("ctrl+u"),
			key.WithHelp("ctrl+u", "remove all files"),
		),
		toggleHelp: key.NewBinding(
			key.WithKeys("f1"),
			key.WithHelp("f1", "help"),
		),
		quit: key.NewBinding(
			key.WithKeys("ctrl+c", "esc"),
			key.WithHelp("esc", "quit"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.analyze, k.nextFocus, k.toggleHelp, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.analyze, k.nextFocus, k.attach},
		{k.removeLast, k.clearAll},
		{k.toggleHelp, k.quit},
	}
}
