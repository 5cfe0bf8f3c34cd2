package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#89b4fa"))
	sectionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#cba6f7"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#f38ba8"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7f849c"))
)

// styleTranscript colours a scenario transcript line by line. Without a
// colour terminal lipgloss renders the text unchanged.
func styleTranscript(transcript string) string {
	lines := strings.SplitAfter(transcript, "\n")
	var b strings.Builder
	for _, line := range lines {
		text, nl := strings.CutSuffix(line, "\n")
		b.WriteString(styleLine(text))
		if nl {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func styleLine(line string) string {
	switch {
	case line == "":
		return line
	case strings.HasPrefix(line, "scenario "):
		return headerStyle.Render(line)
	case line == "background" || line == "foreground":
		return sectionStyle.Render(line)
	case strings.HasPrefix(line, "step "):
		head, status, ok := strings.Cut(line, ": ")
		if !ok {
			return line
		}
		if status == "ok" {
			return head + ": " + okStyle.Render(status)
		}
		return head + ": " + failStyle.Render(status)
	case strings.HasPrefix(line, "  "):
		return line
	default:
		return mutedStyle.Render(line)
	}
}

func passLabel(pass bool) string {
	if pass {
		return okStyle.Render("PASS")
	}
	return failStyle.Render("FAIL")
}
