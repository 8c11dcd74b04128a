package mind

import (
	"fmt"
	"strings"

	"github.com/crewdesk/crewdesk/internal/team"
)

// FormatMindPrompt renders mind entries as a prompt section. Tenant
// entries are marked so downstream readers can tell them from team
// knowledge. Returns "" with no entries.
func FormatMindPrompt(entries []team.MindEntry) string {
	if len(entries) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Team Knowledge\n")
	for _, e := range entries {
		line := e.Content
		if e.Title != "" {
			line = e.Title + ": " + line
		}
		if e.Source == "tenant" {
			fmt.Fprintf(&sb, "- [workspace] %s\n", line)
			continue
		}
		fmt.Fprintf(&sb, "- %s\n", line)
	}
	return strings.TrimRight(sb.String(), "\n")
}
