package registry

import "strings"

// aliasTable maps a canonical query to additional names worth searching
// under, covering the common case where an app's process name and its
// tool-server package name diverge.
var aliasTable = map[string][]string{
	"chrome":  {"chromium", "browser", "google-chrome"},
	"code":    {"vscode", "visual-studio-code"},
	"slack":   {"slack-desktop"},
	"figma":   {"figma-desktop"},
	"notion":  {"notion-app"},
	"explorer": {"finder", "files"},
	"outlook": {"microsoft-outlook"},
	"word":    {"microsoft-word", "winword"},
	"excel":   {"microsoft-excel"},
	"terminal": {"iterm", "iterm2", "konsole"},
}

// nameVariants returns appName, its .exe-stripped form, and any aliases,
// deduplicated while preserving discovery order.
func nameVariants(appName string) []string {
	normalized := strings.ToLower(strings.TrimSpace(appName))
	candidates := []string{normalized}

	if strings.HasSuffix(normalized, ".exe") {
		candidates = append(candidates, strings.TrimSuffix(normalized, ".exe"))
	}

	for _, base := range append([]string{}, candidates...) {
		if aliases, ok := aliasTable[base]; ok {
			candidates = append(candidates, aliases...)
		}
	}

	seen := make(map[string]bool, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
