package toolcall

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"read_file":    "read",
		"ReadFile":     "read",
		"SHELL":        "bash",
		"bash_command": "bash",
		"ripgrep":      "grep",
		"  Edit  ":     "edit",
		"custom_tool":  "custom_tool",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeName(in), "input %q", in)
	}
}

func TestEnsureID(t *testing.T) {
	assert.Equal(t, "call-7", EnsureID("call-7"))
	assert.Equal(t, "call7", EnsureID("call 7!"))

	long := strings.Repeat("a", 80)
	assert.Len(t, EnsureID(long), 64)

	// Nothing usable left, synthesize.
	generated := EnsureID("  !!  ")
	assert.True(t, strings.HasPrefix(generated, "tool_"))
	assert.NotEqual(t, generated, EnsureID(""))
}
