package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{name: "pending to parsing", from: StatusPending, to: StatusParsing, want: true},
		{name: "skip forward", from: StatusPending, to: StatusResearching, want: true},
		{name: "researching to synthesizing", from: StatusResearching, to: StatusSynthesizing, want: true},
		{name: "synthesizing to complete", from: StatusSynthesizing, to: StatusComplete, want: true},
		{name: "regress", from: StatusResearching, to: StatusParsing, want: false},
		{name: "same status", from: StatusPrompting, to: StatusPrompting, want: false},
		{name: "error from prompting", from: StatusPrompting, to: StatusError, want: true},
		{name: "error from pending", from: StatusPending, to: StatusError, want: true},
		{name: "complete is terminal", from: StatusComplete, to: StatusError, want: false},
		{name: "error is absorbing", from: StatusError, to: StatusComplete, want: false},
		{name: "unknown target", from: StatusPending, to: Status("RUNNING"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestAllowedFrom(t *testing.T) {
	assert.Equal(t, []Status{StatusPending}, AllowedFrom(StatusParsing))
	assert.Equal(t, []Status{StatusPending, StatusParsing, StatusPrompting}, AllowedFrom(StatusResearching))
	assert.Equal(t,
		[]Status{StatusPending, StatusParsing, StatusPrompting, StatusResearching, StatusSynthesizing},
		AllowedFrom(StatusError),
	)
	assert.Empty(t, AllowedFrom(StatusPending))
}

func TestJobUpdate_Permits(t *testing.T) {
	tests := []struct {
		name    string
		current Status
		update  JobUpdate
		wantErr error
	}{
		{name: "forward stage", current: StatusParsing, update: StatusUpdate(StatusPrompting)},
		{name: "prompt while prompting", current: StatusPrompting, update: PromptUpdate("brief")},
		{name: "fail while researching", current: StatusResearching, update: FailUpdate("boom")},
		{name: "backwards", current: StatusSynthesizing, update: StatusUpdate(StatusResearching), wantErr: ErrInvalidTransition},
		{name: "complete is final", current: StatusComplete, update: FailUpdate("late"), wantErr: ErrJobFinalized},
		{name: "error is final for plain fields", current: StatusError, update: PromptUpdate("brief"), wantErr: ErrJobFinalized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.update.Permits(tt.current)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("researching")
	require.NoError(t, err)
	assert.Equal(t, StatusResearching, s)

	_, err = ParseStatus("PENDING")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job status")
}

func TestJobUpdate_Apply(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	job := &Job{ID: "job-1", Status: StatusPending}

	PromptUpdate("brief").Apply(job, now)
	StatusUpdate(StatusResearching).Apply(job, now)

	require.NotNil(t, job.DeepResearchPrompt)
	assert.Equal(t, "brief", *job.DeepResearchPrompt)
	assert.Equal(t, StatusResearching, job.Status)
	assert.Nil(t, job.FinalReport)
	assert.Nil(t, job.Error)
	assert.Equal(t, now, job.UpdatedAt)

	FailUpdate("boom").Apply(job, now)
	assert.Equal(t, StatusError, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, "boom", *job.Error)
	assert.Equal(t, "brief", *job.DeepResearchPrompt, "partial progress is kept")
}

func TestJob_CloneIsDeep(t *testing.T) {
	score := 70.0
	job := &Job{
		ID:          "job-1",
		Status:      StatusComplete,
		FinalReport: &Report{CompanyName: "Acme", InsightScore: InsightScore{Score: &score}},
	}

	clone := job.Clone()
	clone.FinalReport.CompanyName = "Other"
	*clone.FinalReport.InsightScore.Score = 10

	assert.Equal(t, "Acme", job.FinalReport.CompanyName)
	assert.Equal(t, 70.0, *job.FinalReport.InsightScore.Score)
}

func TestJob_StatusView(t *testing.T) {
	msg := "boom"
	job := &Job{
		ID:          "job-1",
		Status:      StatusError,
		Email:       "founder@example.com",
		TextContent: "secret pitch",
		FilePath:    "combined-1.txt",
		Error:       &msg,
	}

	view := job.StatusView()

	assert.Equal(t, StatusError, view.Status)
	require.NotNil(t, view.Error)
	assert.Equal(t, "boom", *view.Error)
	assert.Nil(t, view.FinalReport)
}

func TestNumberSources(t *testing.T) {
	sources := NumberSources([]Annotation{
		{Title: "A", URL: "https://a.example"},
		{Title: "B", URL: "https://b.example"},
	})

	require.Len(t, sources, 2)
	assert.Equal(t, Source{ID: 1, Title: "A", URL: "https://a.example"}, sources[0])
	assert.Equal(t, 2, sources[1].ID)
}

func TestRetryableError(t *testing.T) {
	err := NewRetryableError(ErrStoreUnavailable)

	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.False(t, IsRetryable(ErrJobNotFound))
}
