package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Client wraps the Anthropic API for spec refinement and agent runs.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() anthropic.Model {
	return c.model
}

// NewMessage sends a raw messages request. The agent runner uses this to
// drive its tool loop with full control over the conversation.
func (c *Client) NewMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return c.api.Messages.New(ctx, params)
}

// buildRefinePrompt constructs the system and user prompts for spec refinement.
func buildRefinePrompt(name, description string, repoTree []string) (system string, user string) {
	system = `You refine task descriptions into implementation specs for an AI developer agent. Given a task name, its current description, and the repository file listing, return a refined specification as plain text (no JSON, no markdown fencing).

The refined spec must cover:
- What needs to be built or fixed, stated precisely
- Which existing files are likely affected, referencing real paths from the listing
- A suggested implementation approach in 2-5 steps
- Acceptance criteria the change must satisfy

Rules:
- Stay grounded in the repository listing; never invent files or frameworks
- Keep the spec under 400 words
- If the description is empty, infer intent from the task name alone`

	var sb strings.Builder
	sb.WriteString("Task: ")
	sb.WriteString(name)
	sb.WriteString("\n")
	if description != "" {
		sb.WriteString("\nCurrent description:\n")
		sb.WriteString(description)
		sb.WriteString("\n")
	}
	if len(repoTree) > 0 {
		sb.WriteString("\nRepository files:\n")
		sb.WriteString(strings.Join(repoTree, "\n"))
		sb.WriteString("\n")
	}
	user = sb.String()
	return
}

// RefineSpec sends a task to the LLM and returns a refined implementation spec.
func (c *Client) RefineSpec(ctx context.Context, name, description string, repoTree []string) (string, error) {
	systemPrompt, userPrompt := buildRefinePrompt(name, description, repoTree)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 2048,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}

	// Strip markdown fencing if present
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	return text, nil
}
