package mind

import (
	"strings"
	"testing"

	"github.com/crewdesk/crewdesk/internal/team"
)

func TestFormatMindPrompt(t *testing.T) {
	entries := []team.MindEntry{
		{Title: "Hours", Content: "Office hours are 9-5.", Source: "base"},
		{Content: "Tenant prefers email.", Source: "tenant"},
	}
	out := FormatMindPrompt(entries)

	if !strings.Contains(out, "- Hours: Office hours are 9-5.") {
		t.Errorf("base entry missing:\n%s", out)
	}
	if !strings.Contains(out, "- [workspace] Tenant prefers email.") {
		t.Errorf("tenant entry not marked:\n%s", out)
	}
	// Base-then-added order is preserved.
	if strings.Index(out, "Hours") > strings.Index(out, "[workspace]") {
		t.Errorf("entries out of order:\n%s", out)
	}
}

func TestFormatMindPromptEmpty(t *testing.T) {
	if out := FormatMindPrompt(nil); out != "" {
		t.Errorf("got %q, want empty", out)
	}
}
