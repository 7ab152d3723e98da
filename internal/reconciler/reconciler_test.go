package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/insight-engine/internal/domain"
	"github.com/cuongbtq/insight-engine/internal/storage"
)

type stubStructurer struct {
	report *domain.Report
	err    error
	block  bool
	calls  int
	got    []domain.Source
}

func (s *stubStructurer) Structure(ctx context.Context, text string, sources []domain.Source) (*domain.Report, error) {
	s.calls++
	s.got = sources
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	out := *s.report
	out.Sources = []domain.Source{{ID: 99, Title: "invented", URL: "https://made.up"}}
	return &out, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	complete []string
	failed   []string
	err      error
}

func (n *recordingNotifier) NotifyComplete(_ context.Context, email, jobID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.complete = append(n.complete, jobID)
	return n.err
}

func (n *recordingNotifier) NotifyError(_ context.Context, email, jobID, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, jobID+":"+message)
	return n.err
}

type fakeFiles struct {
	mu      sync.Mutex
	deleted []string
	sweeps  int
}

func (f *fakeFiles) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeFiles) Sweep(_ context.Context, _ time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	return 0, errors.New("sweep failed")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedJob(t *testing.T, store *storage.MemoryStore, id string, status domain.Status) {
	t.Helper()
	now := time.Now()
	require.NoError(t, store.CreateJob(context.Background(), &domain.Job{
		ID:        id,
		Status:    status,
		Email:     "founder@example.com",
		FilePath:  "combined-" + id + ".txt",
		MimeType:  domain.MimeTypeText,
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

func cannedReport() *domain.Report {
	score := 81.0
	return &domain.Report{
		CompanyName:  "Acme Corp",
		Summary:      "Rockets for everyone.",
		InsightScore: domain.InsightScore{Score: &score, Rationale: "Strong team"},
	}
}

var annotations = []domain.Annotation{
	{Title: "Acme Report", URL: "https://acme.com/report"},
	{Title: "Market Study", URL: "https://example.com/market"},
}

func TestReconcile_Success(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	seedJob(t, store, "job-1", domain.StatusResearching)

	structurer := &stubStructurer{report: cannedReport()}
	notifier := &recordingNotifier{}
	files := &fakeFiles{}
	r := New(store, structurer, notifier, files, nil, Config{}, testLogger())

	require.NoError(t, r.Reconcile(ctx, "job-1", "Acme [^1^]", annotations))

	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusComplete, job.Status)
	require.NotNil(t, job.FinalReport)
	assert.Nil(t, job.Error)
	assert.Equal(t, "Acme Corp", job.FinalReport.CompanyName)

	want := []domain.Source{
		{ID: 1, Title: "Acme Report", URL: "https://acme.com/report"},
		{ID: 2, Title: "Market Study", URL: "https://example.com/market"},
	}
	assert.Equal(t, want, structurer.got)
	assert.Equal(t, want, job.FinalReport.Sources)

	assert.Equal(t, []string{"job-1"}, notifier.complete)
	assert.Equal(t, []string{"combined-job-1.txt"}, files.deleted)
	assert.Equal(t, 1, files.sweeps)
}

func TestReconcile_StructuringFailure(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	seedJob(t, store, "job-1", domain.StatusResearching)

	notifier := &recordingNotifier{err: errors.New("smtp down")}
	files := &fakeFiles{}
	r := New(store, &stubStructurer{err: errors.New("bad json")}, notifier, files, nil, Config{}, testLogger())

	err := r.Reconcile(ctx, "job-1", "text", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStructuringFailed))

	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, domain.ReportFailureMessage, *job.Error)
	assert.Nil(t, job.FinalReport)

	assert.Equal(t, []string{"job-1:" + domain.ReportFailureMessage}, notifier.failed)
	assert.Equal(t, []string{"combined-job-1.txt"}, files.deleted)
}

func TestReconcile_SynthesisTimeout(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	seedJob(t, store, "job-1", domain.StatusResearching)

	r := New(store, &stubStructurer{block: true}, nil, nil, nil, Config{SynthesisTimeout: 20 * time.Millisecond}, testLogger())

	err := r.Reconcile(ctx, "job-1", "text", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "synthesizing stage timed out")

	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, job.Status)
}

func TestReconcile_RejectsFinalizedJobs(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	seedJob(t, store, "job-1", domain.StatusResearching)

	structurer := &stubStructurer{report: cannedReport()}
	notifier := &recordingNotifier{}
	r := New(store, structurer, notifier, nil, nil, Config{}, testLogger())

	require.NoError(t, r.Reconcile(ctx, "job-1", "first", annotations))
	first, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)

	structurer.err = errors.New("would overwrite")
	err = r.Reconcile(ctx, "job-1", "second", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrJobFinalized))

	second, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, structurer.calls)
	assert.Len(t, notifier.complete, 1)
}

// ctxStore fails calls made with a finished context, the way database/sql does
type ctxStore struct {
	*storage.MemoryStore
}

func (s ctxStore) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.MemoryStore.GetJob(ctx, id)
}

func (s ctxStore) UpdateJob(ctx context.Context, id string, update domain.JobUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.UpdateJob(ctx, id, update)
}

func TestReconcile_CallerCancelledDuringStructuring(t *testing.T) {
	store := storage.NewMemoryStore()
	seedJob(t, store, "job-1", domain.StatusResearching)

	r := New(ctxStore{store}, &stubStructurer{block: true}, nil, nil, nil, Config{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(20*time.Millisecond, cancel)

	err := r.Reconcile(ctx, "job-1", "text", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStructuringFailed)

	job, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, domain.ReportFailureMessage, *job.Error)
}

func TestReconcile_RejectsJobAlreadySynthesizing(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	seedJob(t, store, "job-1", domain.StatusResearching)
	require.NoError(t, store.UpdateJob(ctx, "job-1", domain.StatusUpdate(domain.StatusSynthesizing)))

	structurer := &stubStructurer{report: cannedReport()}
	r := New(store, structurer, nil, nil, nil, Config{}, testLogger())

	err := r.Reconcile(ctx, "job-1", "duplicate delivery", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, 0, structurer.calls)

	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSynthesizing, job.Status)
}

func TestReconcile_UnknownJob(t *testing.T) {
	r := New(storage.NewMemoryStore(), &stubStructurer{report: cannedReport()}, nil, nil, nil, Config{}, testLogger())

	err := r.Reconcile(context.Background(), "missing", "text", nil)
	assert.True(t, errors.Is(err, domain.ErrJobNotFound))
}

// webhookServer decodes the callback body the same way the API handler does
func webhookServer(t *testing.T, r *Reconciler) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(WebhookPath, func(w http.ResponseWriter, req *http.Request) {
		var payload WebhookPayload
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil || len(payload.Content) == 0 {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		c := payload.Content[0]
		if err := r.Reconcile(req.Context(), req.URL.Query().Get("jobId"), c.Text, c.Annotations); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestCompleters_ProduceIdenticalJobs(t *testing.T) {
	ctx := context.Background()

	run := func(t *testing.T, useWebhook bool) *domain.Job {
		store := storage.NewMemoryStore()
		seedJob(t, store, "job-1", domain.StatusResearching)
		r := New(store, &stubStructurer{report: cannedReport()}, nil, nil, nil, Config{}, testLogger())

		var c Completer = NewDirectCompleter(r)
		if useWebhook {
			c = NewWebhookCompleter(webhookServer(t, r).URL, time.Second)
		}
		require.NoError(t, c.Complete(ctx, "job-1", "Acme [^1^]", annotations))

		job, err := store.GetJob(ctx, "job-1")
		require.NoError(t, err)
		return job
	}

	direct := run(t, false)
	webhook := run(t, true)

	assert.Equal(t, direct.Status, webhook.Status)
	assert.Equal(t, direct.FinalReport, webhook.FinalReport)
	assert.Equal(t, direct.Error, webhook.Error)
}

func TestWebhookCompleter_PropagatesFailures(t *testing.T) {
	store := storage.NewMemoryStore()
	r := New(store, &stubStructurer{report: cannedReport()}, nil, nil, nil, Config{}, testLogger())
	c := NewWebhookCompleter(webhookServer(t, r).URL, time.Second)

	err := c.Complete(context.Background(), "missing", "text", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
