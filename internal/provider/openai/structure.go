package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cuongbtq/insight-engine/internal/domain"
)

// Structure converts research text and numbered sources into a validated report
func (c *Client) Structure(ctx context.Context, researchText string, sources []domain.Source) (*domain.Report, error) {
	sourcesJSON, err := json.MarshalIndent(sources, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal sources: %w", err)
	}
	input := "**researchReportText:**\n---\n" + researchText +
		"\n---\n**sourcesList:**\n---\n" + string(sourcesJSON) + "\n---"

	out, err := c.complete(ctx, "structure", chatRequest{
		Model: c.cfg.StructureModel,
		Messages: []chatMessage{
			{Role: "system", Content: structureInstructions},
			{Role: "user", Content: input},
		},
		ResponseFormat: map[string]any{"type": "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("structure report: %w", err)
	}

	raw := []byte(extractJSONObject(out.Content))
	if err := ValidateReport(raw); err != nil {
		return nil, err
	}

	// sources are replaced by the caller with the authoritative numbered list
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	delete(doc, "sources")
	raw, err = json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}

	var report domain.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}

// extractJSONObject strips markdown fences and surrounding prose
func extractJSONObject(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return strings.TrimSpace(s)
	}
	return s[start : end+1]
}
