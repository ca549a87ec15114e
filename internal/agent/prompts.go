package agent

import "strings"

// buildSystemPrompt constructs the system prompt for an agent run.
func buildSystemPrompt(repoTree []string) string {
	var sb strings.Builder
	sb.WriteString(`You are a coding agent working on a software repository. You implement one task per session by reading existing files and writing complete replacements.

Tools:
- list_files: list every file path in the repository
- read_file: read one file's current content
- write_file: stage a complete new version of one file

Rules:
- Read a file before rewriting it; never guess at existing content
- write_file stages the full file content, not a diff
- Keep changes minimal and focused on the task
- When the task is complete, reply with a short summary and stop calling tools
- If the task needs no code changes, say so and stop`)
	if len(repoTree) > 0 {
		sb.WriteString("\n\nRepository files:\n")
		sb.WriteString(strings.Join(repoTree, "\n"))
	}
	return sb.String()
}

// buildTaskPrompt constructs the opening user message for an agent run.
func buildTaskPrompt(name, description string) string {
	var sb strings.Builder
	sb.WriteString("Implement this task:\n\n")
	sb.WriteString(name)
	if description != "" {
		sb.WriteString("\n\n")
		sb.WriteString(description)
	}
	return sb.String()
}

// slugify turns a task name into a branch-safe slug: lowercase, runs of
// non-alphanumerics collapse to single hyphens, at most 40 characters.
func slugify(name string) string {
	var sb strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				sb.WriteByte('-')
				lastHyphen = true
			}
		}
		if sb.Len() >= 40 {
			break
		}
	}
	return strings.Trim(sb.String(), "-")
}
