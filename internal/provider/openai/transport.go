package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/cuongbtq/insight-engine/internal/resilience"
)

const maxErrorBody = 4096

// HTTPStatusError is returned for non-2xx provider responses
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("openai %s status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("openai %s status %d: %s", e.Operation, e.StatusCode, strings.TrimSpace(e.Body))
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Temperature    float32        `json:"temperature,omitempty"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type urlCitation struct {
	Type        string `json:"type"`
	URLCitation struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"url_citation"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content     string        `json:"content"`
			Annotations []urlCitation `json:"annotations"`
		} `json:"message"`
	} `json:"choices"`
}

type completion struct {
	Content     string
	Annotations []urlCitation
}

// complete sends a chat completion and returns the first choice
func (c *Client) complete(ctx context.Context, operation string, req chatRequest) (completion, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"

	var raw []byte
	err := c.exec.Do(ctx, "openai."+operation, func(ctx context.Context) error {
		var postErr error
		raw, postErr = c.post(ctx, operation, endpoint, req)
		return postErr
	}, classifyError)
	if err != nil {
		return completion{}, err
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return completion{}, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return completion{}, fmt.Errorf("no choices in openai response")
	}
	msg := cc.Choices[0].Message
	return completion{Content: strings.TrimSpace(msg.Content), Annotations: msg.Annotations}, nil
}

func (c *Client) post(ctx context.Context, operation, url string, body chatRequest) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai http error: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.Warn("openai response body close error", "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPStatusError{Operation: operation, StatusCode: resp.StatusCode, Body: string(msg)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read openai response: %w", err)
	}
	return data, nil
}

// classifyError retries throttling, 5xx and network failures; other HTTP errors and
// cancellation do not count against the breaker
func classifyError(err error) resilience.Verdict {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.Refused
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if isRetryableHTTPStatus(statusErr.StatusCode) {
			return resilience.Transient
		}
		return resilience.Refused
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.Transient
	}

	return resilience.Fatal
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
