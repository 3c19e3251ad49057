package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	NoticeBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("196")).
			Padding(1, 2)
	NoticeTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255")).Background(lipgloss.Color("196")).Padding(0, 1)
	NoticeBodyStyle  = lipgloss.NewStyle().MarginTop(1)
	CodeStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// Notice renders a boxed message for the terminal, used when the bot cannot
// start. Lines that look like config file content are highlighted.
func Notice(title, body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") || strings.Contains(trimmed, " = ") {
			lines[i] = CodeStyle.Render(line)
		}
	}
	return NoticeBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		NoticeTitleStyle.Render(title),
		NoticeBodyStyle.Render(strings.Join(lines, "\n")),
	))
}
