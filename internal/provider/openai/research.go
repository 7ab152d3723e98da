package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// GeneratePrompt turns pitch-deck text into a research plan. An empty reply is valid.
func (c *Client) GeneratePrompt(ctx context.Context, text string) (string, error) {
	out, err := c.complete(ctx, "prompt", chatRequest{
		Model:       c.cfg.PromptModel,
		Temperature: c.cfg.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: promptGenerationInstructions},
			{Role: "user", Content: "Generate a research prompt based on this text:\n\n---\n\n" + text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("generate research prompt: %w", err)
	}
	return out.Content, nil
}

// Research executes the research plan and returns markdown with a Sources section
func (c *Client) Research(ctx context.Context, prompt string) (string, error) {
	out, err := c.complete(ctx, "research", chatRequest{
		Model:       c.cfg.ResearchModel,
		Temperature: c.cfg.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: researchInstructions},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("deep research: %w", err)
	}

	text := out.Content
	if len(out.Annotations) > 0 && !hasSourcesSection(text) {
		c.log.Debug("Appending provider citations as sources section",
			slog.Int("citations", len(out.Annotations)),
		)
		text = appendSources(text, out.Annotations)
	}
	return text, nil
}

func hasSourcesSection(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "\nsources:") || strings.HasPrefix(lower, "sources:")
}

// appendSources renders url_citation annotations in the numbered Sources format
func appendSources(text string, citations []urlCitation) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(text, "\n"))
	b.WriteString("\n\nSources:\n")
	n := 0
	for _, c := range citations {
		if c.Type != "" && c.Type != "url_citation" {
			continue
		}
		n++
		fmt.Fprintf(&b, "%d. [%s] %s\n", n, c.URLCitation.Title, c.URLCitation.URL)
	}
	return b.String()
}
