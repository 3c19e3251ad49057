package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/bassamadnan/replybot/review"
)

// truncate shortens s to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 0 {
		return ""
	}
	if maxLen < 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// shortFrom drops the address part of a "Name <addr>" header.
func shortFrom(from string) string {
	if idx := strings.Index(from, "<"); idx > 0 {
		return strings.TrimSpace(strings.Trim(from[:idx], ` "`))
	}
	return from
}

// formatCheck describes when the inbox was last checked.
func formatCheck(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t).Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%s (%ds ago)", t.Local().Format("15:04:05"), int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%s (%dm ago)", t.Local().Format("15:04:05"), int(d.Minutes()))
	default:
		return t.Local().Format("Jan02 15:04")
	}
}

func inboxItemText(item review.InboxItem) (string, string) {
	subject := truncate(item.Subject, 25)
	main := "[white]" + tview.Escape(subject)
	if item.Replied {
		main += " [orange](replied)"
	}
	secondary := fmt.Sprintf("[::d]%s · %s", tview.Escape(truncate(shortFrom(item.From), 15)), tview.Escape(item.Date))
	return main, secondary
}

func statusText(s review.State, interval time.Duration, now time.Time) string {
	monitoring := "[red]off[-]"
	if s.Monitoring {
		monitoring = "[green]on[-]"
	}
	return fmt.Sprintf(" Monitoring: %s (every %v) | Last check: %s | %s | %d unread | [::b]m[::-]:Monitor [::b]c[::-]:Check [::b]g[::-]:Draft [::b]s[::-]:Send [::b]r[::-]:Regenerate [::b]o[::-]:Open [::b]q[::-]:Quit",
		monitoring, interval, formatCheck(s.LastCheck, now), s.Phase(), len(s.Inbox))
}

func noticeText(n review.Notice) string {
	color := "green"
	if n.Level == review.LevelError {
		color = "red"
	}
	return fmt.Sprintf(" [%s]%s[-] | %s", color, tview.Escape(n.Text), n.Time.Local().Format("15:04:05"))
}

// replyText renders the pending draft and the history for the reply pane.
func replyText(s review.State) string {
	var b strings.Builder
	switch {
	case s.Current == nil:
		b.WriteString("[::d]No email selected. Pick one on the left and press g to draft a reply.[::-]\n")
	default:
		fmt.Fprintf(&b, "[::b]Subject:[::-] %s\n", tview.Escape(s.Current.Subject))
		fmt.Fprintf(&b, "[::b]From:[::-] %s\n\n", tview.Escape(s.Current.From))
		switch {
		case s.Drafting:
			b.WriteString("[yellow]Generating reply...[-]\n")
		case s.Draft == "":
			b.WriteString("[red]No draft. Press r to try again.[-]\n")
		default:
			b.WriteString(tview.Escape(s.Draft))
			b.WriteString("\n\n[::d]s: send  r: regenerate[::-]\n")
		}
	}

	b.WriteString("\n" + strings.Repeat("─", 40) + "\n[::b]History[::-]\n")
	if len(s.History) == 0 {
		b.WriteString("[::d]No replies sent yet.[::-]\n")
	}
	for _, h := range s.History {
		fmt.Fprintf(&b, "\n[::b]%s[::-] %s\n", h.Time.Local().Format("2006-01-02 15:04"), tview.Escape(h.Email.Subject))
		fmt.Fprintf(&b, "[::d]%s[::-]\n", tview.Escape(truncate(oneLine(h.Email.Content), 200)))
		fmt.Fprintf(&b, "> %s\n", tview.Escape(oneLine(h.Response)))
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
