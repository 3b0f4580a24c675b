// Package tui is the interactive terminal front end. It renders
// coordinator state and turns key presses into coordinator intents; all
// analysis rules live in the coordinator.
package tui

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/straja-ai/lightning-guard/internal/attachment"
	"github.com/straja-ai/lightning-guard/internal/coordinator"
	"github.com/straja-ai/lightning-guard/internal/notify"
)

const maxNotices = 3

type focusArea int

const (
	focusText focusArea = iota
	focusFiles
)

// StateMsg carries a coordinator transition into the program.
type StateMsg coordinator.State

// NoticeMsg carries a notice into the program.
type NoticeMsg notify.Notice

type analyzeDoneMsg struct{ err error }

type filesLoadedMsg struct {
	blobs []attachment.Blob
	err   error
}

// Model is the bubbletea model.
type Model struct {
	ctx   context.Context
	coord *coordinator.Coordinator

	text      textarea.Model
	path      textinput.Model
	spinner   spinner.Model
	help      help.Model
	keys      keyMap
	renderer  *glamour.TermRenderer
	rendStyle string

	focus   focusArea
	state   coordinator.State
	notices []notify.Notice
	loadErr error
	width   int
	height  int
}

// Options configures New.
type Options struct {
	// Style is a glamour style name; empty means auto-detect.
	Style string
}

// New builds a model bound to coord.
func New(ctx context.Context, coord *coordinator.Coordinator, opts Options) Model {
	ta := textarea.New()
	ta.Placeholder = "Paste a suspicious message, email or link..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 20000
	ta.SetHeight(6)
	ta.Focus()

	ti := textinput.New()
	ti.Placeholder = "path/to/file.png, other/file.pdf"
	ti.Prompt = "attach> "

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(accent)

	m := Model{
		ctx:       ctx,
		coord:     coord,
		text:      ta,
		path:      ti,
		spinner:   sp,
		help:      help.New(),
		keys:      newKeyMap(),
		rendStyle: opts.Style,
		state:     coord.State(),
		width:     80,
	}
	m.renderer, _ = NewRenderer(m.rendStyle, m.width-4)
	return m
}

func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.text.SetWidth(msg.Width - 4)
		m.path.Width = msg.Width - 12
		m.help.Width = msg.Width
		m.renderer, _ = NewRenderer(m.rendStyle, msg.Width-4)
		return m, nil

	case StateMsg:
		m.state = coordinator.State(msg)
		if m.state.Phase == coordinator.PhaseAnalyzing {
			return m, m.spinner.Tick
		}
		return m, nil

	case NoticeMsg:
		m.pushNotice(notify.Notice(msg))
		return m, nil

	case analyzeDoneMsg:
		m.state = m.coord.State()
		return m, nil

	case filesLoadedMsg:
		m.loadErr = msg.err
		if len(msg.blobs) > 0 {
			m.coord.AddFiles(msg.blobs...)
		}
		return m, nil

	case spinner.TickMsg:
		if m.state.Phase != coordinator.PhaseAnalyzing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.toggleHelp):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		case key.Matches(msg, m.keys.analyze):
			return m, m.analyze()
		case key.Matches(msg, m.keys.nextFocus):
			m.toggleFocus()
			return m, nil
		case key.Matches(msg, m.keys.removeLast):
			if list := m.coord.Attachments(); len(list) > 0 {
				m.coord.RemoveFile(list[len(list)-1].ID)
			}
			return m, nil
		case key.Matches(msg, m.keys.clearAll):
			for _, a := range m.coord.Attachments() {
				m.coord.RemoveFile(a.ID)
			}
			return m, nil
		case m.focus == focusFiles && key.Matches(msg, m.keys.attach):
			paths := splitPaths(m.path.Value())
			m.path.Reset()
			if len(paths) == 0 {
				return m, nil
			}
			return m, loadFiles(m.ctx, paths)
		}
	}

	if m.focus == focusText {
		var cmd tea.Cmd
		before := m.text.Value()
		m.text, cmd = m.text.Update(msg)
		if after := m.text.Value(); after != before {
			m.coord.SetText(after)
		}
		cmds = append(cmds, cmd)
	} else {
		var cmd tea.Cmd
		m.path, cmd = m.path.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) toggleFocus() {
	if m.focus == focusText {
		m.focus = focusFiles
		m.text.Blur()
		m.path.Focus()
		return
	}
	m.focus = focusText
	m.path.Blur()
	m.text.Focus()
}

func (m *Model) pushNotice(n notify.Notice) {
	m.notices = append(m.notices, n)
	if len(m.notices) > maxNotices {
		m.notices = m.notices[len(m.notices)-maxNotices:]
	}
}

// analyze syncs the draft and submits it off the event loop.
func (m Model) analyze() tea.Cmd {
	m.coord.SetText(m.text.Value())
	coord, ctx := m.coord, m.ctx
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		err := coord.Analyze(ctx)
		if errors.Is(err, coordinator.ErrBusy) {
			return nil
		}
		return analyzeDoneMsg{err: err}
	})
}

func loadFiles(ctx context.Context, paths []string) tea.Cmd {
	return func() tea.Msg {
		blobs, err := attachment.LoadFiles(ctx, paths)
		return filesLoadedMsg{blobs: blobs, err: err}
	}
}

func splitPaths(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Bridge forwards coordinator callbacks into a running program. It is
// created before the program so it can be handed to coordinator.Options.
type Bridge struct {
	mu sync.Mutex
	p  *tea.Program
}

func (b *Bridge) Attach(p *tea.Program) {
	b.mu.Lock()
	b.p = p
	b.mu.Unlock()
}

func (b *Bridge) send(msg tea.Msg) {
	b.mu.Lock()
	p := b.p
	b.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// OnChange satisfies coordinator.Options.OnChange.
func (b *Bridge) OnChange(s coordinator.State) { b.send(StateMsg(s)) }

// Notify satisfies notify.Notifier.
func (b *Bridge) Notify(_ context.Context, n notify.Notice) { b.send(NoticeMsg(n)) }

// Run starts the program and blocks until the user quits.
func Run(ctx context.Context, coord *coordinator.Coordinator, bridge *Bridge, opts Options) error {
	p := tea.NewProgram(New(ctx, coord, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	if bridge != nil {
		bridge.Attach(p)
	}
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
