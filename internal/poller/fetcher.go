package poller

import (
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

// JobReader is the store read used by StoreFetcher
type JobReader interface {
	GetJob(ctx context.Context, id string) (*domain.Job, error)
}

// StoreFetcher reads status straight from a job store
type StoreFetcher struct {
	store JobReader
}

func NewStoreFetcher(store JobReader) *StoreFetcher {
	return &StoreFetcher{store: store}
}

func (f *StoreFetcher) FetchStatus(ctx context.Context, jobID string) (domain.StatusView, error) {
	job, err := f.store.GetJob(ctx, jobID)
	if err != nil {
		return domain.StatusView{}, err
	}
	return job.StatusView(), nil
}

// HTTPFetcher reads GET /api/v1/jobs/:job_id/status
type HTTPFetcher struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFetcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFetcher) FetchStatus(ctx context.Context, jobID string) (domain.StatusView, error) {
	endpoint := f.baseURL + "/api/v1/jobs/" + url.PathEscape(jobID) + "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.StatusView{}, err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return domain.StatusView{}, fmt.Errorf("fetch status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.StatusView{}, fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.StatusView{}, fmt.Errorf("status endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var view domain.StatusView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return domain.StatusView{}, fmt.Errorf("decode status: %w", err)
	}
	if !view.Status.IsValid() {
		return domain.StatusView{}, fmt.Errorf("unknown status %q", view.Status)
	}
	return view, nil
}
