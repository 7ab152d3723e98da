package domain

import (
	"fmt"
	"time"
)

// Job is a single pitch-deck analysis request and its lifecycle record
type Job struct {
	ID                 string    `json:"id"`
	Status             Status    `json:"status"`
	FilePath           string    `json:"filePath"`
	MimeType           string    `json:"mimeType"`
	Email              string    `json:"email"`
	MarketingOptIn     bool      `json:"marketingOptIn"`
	TextContent        string    `json:"textContent,omitempty"`
	DeepResearchPrompt *string   `json:"deepResearchPrompt,omitempty"`
	FinalReport        *Report   `json:"finalReport,omitempty"`
	Error              *string   `json:"error,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// JobUpdate is a partial set of fields merged into an existing job.
// Nil fields are left untouched.
type JobUpdate struct {
	Status             *Status
	DeepResearchPrompt *string
	FinalReport        *Report
	Error              *string
}

// StatusUpdate builds an update that only moves the status
func StatusUpdate(status Status) JobUpdate {
	return JobUpdate{Status: &status}
}

// PromptUpdate records the generated research prompt
func PromptUpdate(prompt string) JobUpdate {
	return JobUpdate{DeepResearchPrompt: &prompt}
}

// CompleteUpdate writes the terminal success state
func CompleteUpdate(report *Report) JobUpdate {
	status := StatusComplete
	return JobUpdate{Status: &status, FinalReport: report}
}

// FailUpdate writes the terminal failure state
func FailUpdate(message string) JobUpdate {
	status := StatusError
	return JobUpdate{Status: &status, Error: &message}
}

// IsEmpty reports whether the update carries no fields
func (u JobUpdate) IsEmpty() bool {
	return u.Status == nil && u.DeepResearchPrompt == nil && u.FinalReport == nil && u.Error == nil
}

// Permits reports whether the update may be written to a job currently in status current.
// Terminal jobs accept no writes; status changes must satisfy CanTransition.
func (u JobUpdate) Permits(current Status) error {
	if current.IsTerminal() {
		return fmt.Errorf("%w: job is %s", ErrJobFinalized, current)
	}
	if u.Status != nil && !CanTransition(current, *u.Status) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current, *u.Status)
	}
	return nil
}

// Apply merges the update into job
func (u JobUpdate) Apply(job *Job, now time.Time) {
	if u.Status != nil {
		job.Status = *u.Status
	}
	if u.DeepResearchPrompt != nil {
		prompt := *u.DeepResearchPrompt
		job.DeepResearchPrompt = &prompt
	}
	if u.FinalReport != nil {
		job.FinalReport = u.FinalReport.Clone()
	}
	if u.Error != nil {
		msg := *u.Error
		job.Error = &msg
	}
	job.UpdatedAt = now
}

// Clone returns a deep copy of the job
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	if j.DeepResearchPrompt != nil {
		prompt := *j.DeepResearchPrompt
		out.DeepResearchPrompt = &prompt
	}
	if j.Error != nil {
		msg := *j.Error
		out.Error = &msg
	}
	out.FinalReport = j.FinalReport.Clone()
	return &out
}

// StatusView is the narrowed projection returned to polling clients
type StatusView struct {
	Status      Status  `json:"status"`
	Error       *string `json:"error"`
	FinalReport *Report `json:"finalReport"`
}

// StatusView projects the job for polling clients. It never exposes input or contact fields.
func (j *Job) StatusView() StatusView {
	view := StatusView{Status: j.Status}
	if j.Error != nil {
		msg := *j.Error
		view.Error = &msg
	}
	view.FinalReport = j.FinalReport.Clone()
	return view
}

// JobMessage represents a start-analysis message from the queue
type JobMessage struct {
	JobID       string `json:"job_id"`
	DeliveryTag uint64 `json:"-"`
}

// FromQueue reports whether the message came from the broker and needs an ack
func (m *JobMessage) FromQueue() bool {
	return m.DeliveryTag != 0
}
