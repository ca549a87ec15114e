package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildRefinePrompt(t *testing.T) {
	t.Run("with all fields", func(t *testing.T) {
		system, user := buildRefinePrompt("Fix login bug", "Sessions expire early",
			[]string{"auth/session.go", "auth/session_test.go"})

		assert.Contains(t, system, "Acceptance criteria")
		assert.Contains(t, system, "repository listing")

		assert.Contains(t, user, "Task: Fix login bug")
		assert.Contains(t, user, "Sessions expire early")
		assert.Contains(t, user, "auth/session.go")
		assert.Contains(t, user, "auth/session_test.go")
	})

	t.Run("without description", func(t *testing.T) {
		system, user := buildRefinePrompt("Add dark mode", "", nil)

		assert.Contains(t, system, "infer intent from the task name")
		assert.Contains(t, user, "Add dark mode")
		assert.NotContains(t, user, "Current description")
		assert.NotContains(t, user, "Repository files")
	})

	t.Run("large repo listing included verbatim", func(t *testing.T) {
		tree := make([]string, 500)
		for i := range tree {
			tree[i] = strings.Repeat("x", 20)
		}
		_, user := buildRefinePrompt("task", "", tree)
		assert.Contains(t, user, "Repository files")
		assert.GreaterOrEqual(t, strings.Count(user, "\n"), 500)
	})
}

func TestNewClientModel(t *testing.T) {
	c := NewClient("key", "claude-sonnet-4-5")
	assert.Equal(t, "claude-sonnet-4-5", string(c.Model()))
}
