package reconciler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuongbtq/insight-engine/internal/domain"
)

// WebhookPath is the route the completion callback is served on
const WebhookPath = "/api/v1/webhook/research-complete"

// Completer hands finished research to the reconciler over some transport
type Completer interface {
	Complete(ctx context.Context, jobID, researchText string, annotations []domain.Annotation) error
}

// DirectCompleter calls the reconciler in-process
type DirectCompleter struct {
	reconciler *Reconciler
}

func NewDirectCompleter(r *Reconciler) *DirectCompleter {
	return &DirectCompleter{reconciler: r}
}

func (d *DirectCompleter) Complete(ctx context.Context, jobID, researchText string, annotations []domain.Annotation) error {
	return d.reconciler.Reconcile(ctx, jobID, researchText, annotations)
}

// ResearchContent is one research output block of the webhook body
type ResearchContent struct {
	Text        string              `json:"text"`
	Annotations []domain.Annotation `json:"annotations"`
}

// WebhookPayload mirrors the research provider output shape
type WebhookPayload struct {
	Content []ResearchContent `json:"content"`
}

// WebhookCompleter posts research output to the API service webhook
type WebhookCompleter struct {
	baseURL    string
	httpClient *http.Client
}

func NewWebhookCompleter(baseURL string, timeout time.Duration) *WebhookCompleter {
	if timeout <= 0 {
		timeout = DefaultSynthesisTimeout + 30*time.Second
	}
	return &WebhookCompleter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (w *WebhookCompleter) Complete(ctx context.Context, jobID, researchText string, annotations []domain.Annotation) error {
	if annotations == nil {
		annotations = []domain.Annotation{}
	}
	body, err := json.Marshal(WebhookPayload{
		Content: []ResearchContent{{Text: researchText, Annotations: annotations}},
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	endpoint := w.baseURL + WebhookPath + "?jobId=" + url.QueryEscape(jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call completion webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("completion webhook status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
