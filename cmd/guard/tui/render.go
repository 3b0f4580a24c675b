package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/straja-ai/lightning-guard/internal/verdict"
)

var (
	green  = lipgloss.Color("#22C55E")
	amber  = lipgloss.Color("#F59E0B")
	red    = lipgloss.Color("#EF4444")
	muted  = lipgloss.Color("#6B7280")
	accent = lipgloss.Color("#A78BFA")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	mutedStyle = lipgloss.NewStyle().Foreground(muted)
	errorStyle = lipgloss.NewStyle().Foreground(red)
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1)
	focusedPanelStyle = panelStyle.BorderForeground(accent)
	noticeStyle       = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
)

// ThreatColor maps a threat level to its display color.
func ThreatColor(level verdict.ThreatLevel) lipgloss.Color {
	switch level {
	case verdict.ThreatSafe:
		return green
	case verdict.ThreatDanger:
		return red
	default:
		return amber
	}
}

// ThreatBadge renders the level as a colored label.
func ThreatBadge(level verdict.ThreatLevel) string {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#0B0B0F")).
		Background(ThreatColor(level)).
		Padding(0, 1).
		Render(strings.ToUpper(string(level)))
}

// ConfidenceBar renders confidence (0..100) as a progress bar.
func ConfidenceBar(confidence float64, width int) string {
	if width <= 0 {
		width = 32
	}
	bar := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(width),
	)
	return bar.ViewAs(confidence / 100)
}

// ResultMarkdown formats a verdict as markdown.
func ResultMarkdown(res verdict.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", res.Category)
	fmt.Fprintf(&b, "**Threat level:** %s  \n", strings.ToUpper(string(res.ThreatLevel)))
	fmt.Fprintf(&b, "**Confidence:** %.0f%%\n\n", res.Confidence)
	b.WriteString(res.Details)
	b.WriteString("\n\n")

	writeList(&b, "Recommendations", res.Recommendations)
	writeList(&b, "Security recommendations", res.SecurityRecommendations)
	writeList(&b, "Services mentioned", res.Services)
	if len(res.Anomalies) > 0 {
		writeList(&b, "Response anomalies", res.Anomalies)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "### %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

// NewRenderer builds a glamour renderer. style is a glamour standard style
// name; "auto" detects the terminal background.
func NewRenderer(style string, width int) (*glamour.TermRenderer, error) {
	if width <= 0 {
		width = 80
	}
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" || style == "auto" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	return glamour.NewTermRenderer(opts...)
}

// RenderResult renders res through r, falling back to raw markdown.
func RenderResult(r *glamour.TermRenderer, res verdict.Result) string {
	md := ResultMarkdown(res)
	if r == nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
