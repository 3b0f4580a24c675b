package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/straja-ai/lightning-guard/internal/coordinator"
	"github.com/straja-ai/lightning-guard/internal/notify"
)

func (m Model) View() string {
	var sections []string

	sections = append(sections, titleStyle.Render("⚡ Lightning Guard")+"  "+
		mutedStyle.Render("check messages and files for scams, phishing and malware"))

	textPanel := panelStyle
	filePanel := panelStyle
	if m.focus == focusText {
		textPanel = focusedPanelStyle
	} else {
		filePanel = focusedPanelStyle
	}
	sections = append(sections, textPanel.Render(m.text.View()))
	sections = append(sections, filePanel.Render(m.attachmentsView()))
	sections = append(sections, m.statusView())

	if n := m.noticesView(); n != "" {
		sections = append(sections, n)
	}
	sections = append(sections, m.help.View(m.keys))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) attachmentsView() string {
	list := m.coord.Attachments()
	var b strings.Builder
	if len(list) == 0 {
		b.WriteString(mutedStyle.Render("No files attached"))
	} else {
		fmt.Fprintf(&b, "Files (%d):\n", len(list))
	}
	for i, a := range list {
		line := fmt.Sprintf("  %d. %s  %s  %s", i+1, a.Blob.Name, mutedStyle.Render(a.Blob.MIMEType), formatSize(a.Blob.Size()))
		if a.Preview != nil {
			if w, h := a.Preview.Bounds(); w > 0 && h > 0 {
				line += mutedStyle.Render(fmt.Sprintf("  [%dx%d preview]", w, h))
			} else {
				line += mutedStyle.Render("  [preview]")
			}
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.path.View())
	if m.loadErr != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(m.loadErr.Error()))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) statusView() string {
	switch m.state.Phase {
	case coordinator.PhaseAnalyzing:
		return m.spinner.View() + " Analyzing..."
	case coordinator.PhaseFailed:
		return errorStyle.Render("Analysis failed: " + m.state.Message())
	case coordinator.PhaseSettled:
		if m.state.Result == nil {
			return ""
		}
		res := *m.state.Result
		head := ThreatBadge(res.ThreatLevel) + "  " + ConfidenceBar(res.Confidence, 30) +
			fmt.Sprintf("  %.0f%% confidence", res.Confidence)
		body := strings.TrimRight(RenderResult(m.renderer, res), "\n")
		return lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(ThreatColor(res.ThreatLevel)).
			Padding(0, 1).
			Render(head + "\n" + body)
	default:
		return mutedStyle.Render("Press ctrl+s to analyze.")
	}
}

func (m Model) noticesView() string {
	if len(m.notices) == 0 {
		return ""
	}
	var rows []string
	for _, n := range m.notices {
		style := noticeStyle.BorderForeground(muted)
		if n.Variant == notify.VariantDestructive {
			style = noticeStyle.BorderForeground(red)
		}
		rows = append(rows, style.Render(lipgloss.NewStyle().Bold(true).Render(n.Title)+"  "+n.Description))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}
