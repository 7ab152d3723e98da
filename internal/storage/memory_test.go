package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/insight-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(id string, createdAt time.Time) *domain.Job {
	return &domain.Job{
		ID:          id,
		Status:      domain.StatusPending,
		MimeType:    domain.MimeTypeText,
		Email:       "founder@example.com",
		TextContent: "Acme Corp pitch",
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	created := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateJob(ctx, newJob("job-1", created)))

	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, job.Status)
	assert.Equal(t, created, job.CreatedAt)

	err = store.CreateJob(ctx, newJob("job-1", created))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestMemoryStore_GetMissing(t *testing.T) {
	_, err := NewMemoryStore().GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateJob(ctx, newJob("job-1", time.Now())))

	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	job.Status = domain.StatusComplete

	again, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, again.Status)
}

func TestMemoryStore_UpdateJob(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	fixed := time.Date(2025, 1, 1, 12, 5, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }
	require.NoError(t, store.CreateJob(ctx, newJob("job-1", fixed.Add(-time.Minute))))

	require.NoError(t, store.UpdateJob(ctx, "job-1", domain.PromptUpdate("research brief")))
	require.NoError(t, store.UpdateJob(ctx, "job-1", domain.StatusUpdate(domain.StatusResearching)))

	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResearching, job.Status)
	require.NotNil(t, job.DeepResearchPrompt)
	assert.Equal(t, "research brief", *job.DeepResearchPrompt)
	assert.Equal(t, fixed, job.UpdatedAt)

	// unknown ids are a no-op
	assert.NoError(t, store.UpdateJob(ctx, "missing", domain.StatusUpdate(domain.StatusError)))
}

func TestMemoryStore_UpdateJobEnforcesTransitions(t *testing.T) {
	report := &domain.Report{CompanyName: "Acme"}

	tests := []struct {
		name    string
		from    domain.JobUpdate
		update  domain.JobUpdate
		wantErr error
	}{
		{
			name:    "stage write after completion",
			from:    domain.CompleteUpdate(report),
			update:  domain.StatusUpdate(domain.StatusResearching),
			wantErr: domain.ErrJobFinalized,
		},
		{
			name:    "error on top of a report",
			from:    domain.CompleteUpdate(report),
			update:  domain.FailUpdate("late failure"),
			wantErr: domain.ErrJobFinalized,
		},
		{
			name:    "completion after failure",
			from:    domain.FailUpdate("boom"),
			update:  domain.CompleteUpdate(report),
			wantErr: domain.ErrJobFinalized,
		},
		{
			name:    "prompt write after failure",
			from:    domain.FailUpdate("boom"),
			update:  domain.PromptUpdate("brief"),
			wantErr: domain.ErrJobFinalized,
		},
		{
			name:    "backwards move",
			from:    domain.StatusUpdate(domain.StatusSynthesizing),
			update:  domain.StatusUpdate(domain.StatusPrompting),
			wantErr: domain.ErrInvalidTransition,
		},
		{
			name:    "same status",
			from:    domain.StatusUpdate(domain.StatusSynthesizing),
			update:  domain.StatusUpdate(domain.StatusSynthesizing),
			wantErr: domain.ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := NewMemoryStore()
			require.NoError(t, store.CreateJob(ctx, newJob("job-1", time.Now())))
			require.NoError(t, store.UpdateJob(ctx, "job-1", tt.from))
			before, err := store.GetJob(ctx, "job-1")
			require.NoError(t, err)

			err = store.UpdateJob(ctx, "job-1", tt.update)
			assert.ErrorIs(t, err, tt.wantErr)

			after, err := store.GetJob(ctx, "job-1")
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestMemoryStore_ConcurrentTerminalWrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateJob(ctx, newJob("job-1", time.Now())))
	require.NoError(t, store.UpdateJob(ctx, "job-1", domain.StatusUpdate(domain.StatusSynthesizing)))

	const writers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			update := domain.FailUpdate(fmt.Sprintf("writer %d", i))
			if i%2 == 0 {
				update = domain.CompleteUpdate(&domain.Report{CompanyName: fmt.Sprintf("writer %d", i)})
			}
			if err := store.UpdateJob(ctx, "job-1", update); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, domain.ErrJobFinalized)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)

	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, job.Status.IsTerminal())
	// exactly one of report or error, matching the status
	assert.Equal(t, job.Status == domain.StatusComplete, job.FinalReport != nil)
	assert.Equal(t, job.Status == domain.StatusError, job.Error != nil)
}

func TestMemoryStore_Listing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, store.CreateJob(ctx, newJob(id, base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, store.UpdateJob(ctx, "b", domain.CompleteUpdate(&domain.Report{CompanyName: "Acme"})))

	t.Run("all jobs newest first", func(t *testing.T) {
		jobs, err := store.ListJobs(ctx)
		require.NoError(t, err)
		require.Len(t, jobs, 4)
		assert.Equal(t, []string{"d", "c", "b", "a"}, ids(jobs))
	})

	t.Run("since is exclusive", func(t *testing.T) {
		jobs, err := store.ListJobsSince(ctx, base.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, []string{"d", "c"}, ids(jobs))
	})

	t.Run("page with cursor", func(t *testing.T) {
		jobs, err := store.ListJobsPage(ctx, JobFilter{PageSize: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"d", "c"}, ids(jobs), "one extra row signals a next page")

		jobs, err = store.ListJobsPage(ctx, JobFilter{
			PageSize: 2,
			Cursor:   &JobCursor{CreatedAt: jobs[0].CreatedAt, JobID: jobs[0].ID},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "b", "a"}, ids(jobs))
	})

	t.Run("status filter", func(t *testing.T) {
		jobs, err := store.ListJobsPage(ctx, JobFilter{PageSize: 10, Status: domain.StatusComplete})
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, ids(jobs))
	})
}

func ids(jobs []*domain.Job) []string {
	out := make([]string, len(jobs))
	for i, job := range jobs {
		out[i] = job.ID
	}
	return out
}
