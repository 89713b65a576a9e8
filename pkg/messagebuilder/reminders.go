package messagebuilder

import (
	"os"
	"path/filepath"
	"strings"
)

const agentsFileName = "AGENTS.md"

// fileReadToolNames are tool names classified as file-read, the trigger
// for AGENTS.md system-reminder injection (spec §4.8). Grounded on the
// common tool-naming vocabulary across the retrieved pack's agent-loop
// examples (read_file / readFile / view_file variants).
var fileReadToolNames = map[string]bool{
	"read_file": true, "readFile": true, "read": true,
	"view_file": true, "viewFile": true, "cat": true,
}

func isFileReadTool(toolName string) bool {
	return fileReadToolNames[toolName]
}

// extractPathArg pulls a file path out of a tool-call input map, trying
// the argument names seen across the pack's tool schemas.
func extractPathArg(input any) (string, bool) {
	m, ok := input.(map[string]any)
	if !ok {
		return "", false
	}
	for _, key := range []string{"path", "file_path", "filePath", "file"} {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// reminderTracker deduplicates which AGENTS.md files have already been
// surfaced within a single projection, so the same directory's reminder
// is never injected twice.
type reminderTracker struct {
	shown map[string]bool
}

func newReminderTracker() *reminderTracker {
	return &reminderTracker{shown: make(map[string]bool)}
}

// collectReminders walks from filepath.Dir(targetPath) up to projectRoot
// (inclusive), reading any AGENTS.md found and returning their contents
// in nearest-first order, skipping files already shown.
func (r *reminderTracker) collectReminders(projectRoot, targetPath string) []string {
	if projectRoot == "" || targetPath == "" {
		return nil
	}
	dir := targetPath
	if fi, err := os.Stat(targetPath); err == nil && !fi.IsDir() {
		dir = filepath.Dir(targetPath)
	}
	root := filepath.Clean(projectRoot)
	dir = filepath.Clean(dir)

	var contents []string
	for {
		candidate := filepath.Join(dir, agentsFileName)
		if !r.shown[candidate] {
			if b, err := os.ReadFile(candidate); err == nil {
				r.shown[candidate] = true
				contents = append(contents, string(b))
			}
		}
		if dir == root || dir == filepath.Dir(dir) {
			break
		}
		dir = filepath.Dir(dir)
	}
	return contents
}

// appendSystemReminder appends a system-reminder block built from
// contents to a tool-result output string.
func appendSystemReminder(output string, contents []string) string {
	if len(contents) == 0 {
		return output
	}
	var b strings.Builder
	b.WriteString(output)
	b.WriteString("\n\n<system-reminder>\n")
	b.WriteString(strings.Join(contents, "\n---\n"))
	b.WriteString("\n</system-reminder>")
	return b.String()
}
