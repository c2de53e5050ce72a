package toolcall

import (
	"strings"

	"github.com/google/uuid"
)

// NormalizeName folds the tool-name aliases different remotes use onto
// one canonical lowercase name.
func NormalizeName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "read_file", "readfile":
		return "read"
	case "write_file", "writefile":
		return "write"
	case "edit_file", "editfile":
		return "edit"
	case "shell", "sh", "bash_command", "command":
		return "bash"
	case "search", "ripgrep":
		return "grep"
	default:
		return strings.ToLower(strings.TrimSpace(name))
	}
}

// EnsureID sanitizes a remote-supplied call id and synthesizes one when
// nothing usable remains. Ids are capped at 64 characters of
// [A-Za-z0-9_-].
func EnsureID(id string) string {
	clean := sanitizeID(id)
	if clean != "" {
		return clean
	}
	return "tool_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func sanitizeID(id string) string {
	if strings.TrimSpace(id) == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	clean := strings.Trim(b.String(), "_-")
	if len(clean) > 64 {
		clean = clean[:64]
	}
	return clean
}
