package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/insight-engine/internal/domain"
	"github.com/cuongbtq/insight-engine/internal/resilience"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc, exec *resilience.Executor) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{
		APIKey:      "test-key",
		BaseURL:     server.URL,
		PromptModel: "prompt-model",
		Timeout:     5 * time.Second,
	}, exec, testLogger())
}

func chatReply(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(resp))
}

func decodeRequest(t *testing.T, r *http.Request) chatRequest {
	t.Helper()
	var req chatRequest
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	return req
}

func TestGeneratePrompt(t *testing.T) {
	var captured chatRequest
	var auth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		captured = decodeRequest(t, r)
		chatReply(t, w, "  Research Acme's market  ")
	}, nil)

	prompt, err := client.GeneratePrompt(context.Background(), "Acme builds rockets")
	require.NoError(t, err)

	assert.Equal(t, "Research Acme's market", prompt)
	assert.Equal(t, "Bearer test-key", auth)
	assert.Equal(t, "prompt-model", captured.Model)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Contains(t, captured.Messages[0].Content, "expert VC analyst")
	assert.True(t, strings.HasSuffix(captured.Messages[1].Content, "Acme builds rockets"))
}

func TestGeneratePrompt_EmptyReplyIsValid(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, "")
	}, nil)

	prompt, err := client.GeneratePrompt(context.Background(), "text")
	require.NoError(t, err)
	assert.Empty(t, prompt)
}

func TestResearch_UsesResearchModel(t *testing.T) {
	var captured chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured = decodeRequest(t, r)
		chatReply(t, w, "Findings [^1^]\n\nSources:\n1. [Report] https://example.com/r")
	}, nil)
	client.cfg.ResearchModel = "research-model"

	text, err := client.Research(context.Background(), "plan")
	require.NoError(t, err)

	assert.Equal(t, "research-model", captured.Model)
	assert.Contains(t, captured.Messages[0].Content, "Sources:")
	assert.Equal(t, "plan", captured.Messages[1].Content)
	assert.Contains(t, text, "1. [Report] https://example.com/r")
}

func TestResearch_AppendsCitationAnnotations(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Body text",
			"annotations":[{"type":"url_citation","url_citation":{"title":"Filing","url":"https://sec.gov/x"}}]}}]}`))
	}, nil)

	text, err := client.Research(context.Background(), "plan")
	require.NoError(t, err)
	assert.Equal(t, "Body text\n\nSources:\n1. [Filing] https://sec.gov/x\n", text)
}

func TestStructure(t *testing.T) {
	sources := []domain.Source{{ID: 1, Title: "Report", URL: "https://example.com/r"}}
	var captured chatRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured = decodeRequest(t, r)
		chatReply(t, w, "```json\n"+`{
			"companyName": "Acme",
			"summary": "Rockets.",
			"insightScore": {"score": 72, "rationale": "Strong team"},
			"valuation": {"low": null, "high": 50, "currency": "USD", "narrative": "comps"},
			"swotAnalysis": {"strengths": [{"point": "Team", "source_ids": [1]}]},
			"marketAnalysis": {"narrative": "Big", "marketSize": [{"metric": "TAM", "value": 12.5, "year": 2024, "source_ids": [1]}]},
			"competitorLandscape": [{"competitorName": "Beta", "funding": null, "keyDifferentiator": "Price", "source_ids": []}],
			"teamAnalysis": "Experienced",
			"sources": [{"id": "one", "title": "invented", "url": "x"}]
		}`+"\n```")
	}, nil)

	report, err := client.Structure(context.Background(), "Research [^1^]", sources)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"type": "json_object"}, captured.ResponseFormat)
	assert.Contains(t, captured.Messages[1].Content, "Research [^1^]")
	assert.Contains(t, captured.Messages[1].Content, `"url": "https://example.com/r"`)

	assert.Equal(t, "Acme", report.CompanyName)
	require.NotNil(t, report.InsightScore.Score)
	assert.Equal(t, 72.0, *report.InsightScore.Score)
	assert.Nil(t, report.Valuation.Low)
	require.Len(t, report.MarketAnalysis.MarketSize, 1)
	assert.Equal(t, 2024, *report.MarketAnalysis.MarketSize[0].Year)
	assert.Nil(t, report.CompetitorLandscape[0].Funding)
	assert.Empty(t, report.Sources)
}

func TestStructure_RejectsInvalidReports(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "not json", content: "I cannot help with that"},
		{name: "missing company name", content: `{"summary": "x"}`},
		{name: "score out of range", content: `{"companyName": "A", "summary": "x", "insightScore": {"score": 250}}`},
		{name: "wrong point type", content: `{"companyName": "A", "summary": "x", "swotAnalysis": {"threats": [{"point": 3}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				chatReply(t, w, tt.content)
			}, nil)

			report, err := client.Structure(context.Background(), "text", nil)
			assert.Error(t, err)
			assert.Nil(t, report)
		})
	}
}

func TestClient_RetriesTransientStatus(t *testing.T) {
	var calls int32
	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     1,
	}, testLogger())

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		chatReply(t, w, "ok")
	}, exec)

	prompt, err := client.GeneratePrompt(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, "ok", prompt)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     1,
	}, testLogger())

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad api key", http.StatusUnauthorized)
	}, exec)

	_, err := client.Research(context.Background(), "plan")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad api key")

	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want resilience.Verdict
	}{
		{name: "rate limited", err: &HTTPStatusError{StatusCode: 429}, want: resilience.Transient},
		{name: "bad gateway", err: &HTTPStatusError{StatusCode: 502}, want: resilience.Transient},
		{name: "bad request", err: &HTTPStatusError{StatusCode: 400}, want: resilience.Refused},
		{name: "canceled", err: context.Canceled, want: resilience.Refused},
		{name: "stage deadline", err: fmt.Errorf("post: %w", context.DeadlineExceeded), want: resilience.Refused},
		{name: "dial failure", err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}, want: resilience.Transient},
		{name: "decode failure", err: errors.New("boom"), want: resilience.Fatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyError(tt.err))
		})
	}
}
