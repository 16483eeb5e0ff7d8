package document

import (
	"fmt"
	"regexp"
	"strings"
)

var numberedPoint = regexp.MustCompile(`^\d+\.`)

const rule = "============================================================"

// Render formats doc for terminal output under the given title. Numbered
// points and "Heading:" lines start a new paragraph; other lines are
// indented beneath them.
func Render(title string, doc Document) string {
	var b strings.Builder
	b.WriteString("\n" + rule + "\n")
	b.WriteString(strings.Repeat(" ", 20) + title + "\n")
	b.WriteString(rule + "\n")

	if doc == nil {
		b.WriteString("No data available.\n")
		b.WriteString(rule + "\n")
		return b.String()
	}

	if d, ok := doc.(Degraded); ok && d.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", d.Error)
	}

	for _, line := range strings.Split(strings.TrimSpace(doc.Text()), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case numberedPoint.MatchString(line):
			b.WriteString("\n  " + line + "\n")
		case strings.Contains(line, ":"):
			b.WriteString("\n" + line + "\n")
		default:
			b.WriteString("  " + line + "\n")
		}
	}

	if ts := doc.GeneratedAt(); !ts.IsZero() {
		fmt.Fprintf(&b, "\nGenerated: %s\n", ts.Format("2006-01-02 15:04:05"))
	}
	b.WriteString(rule + "\n")
	return b.String()
}
