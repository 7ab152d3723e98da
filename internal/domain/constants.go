package domain

import "fmt"

// Status is the lifecycle state of an analysis job
type Status string

// Job status constants, in pipeline order
const (
	StatusPending      Status = "pending"
	StatusParsing      Status = "parsing"
	StatusPrompting    Status = "prompting"
	StatusResearching  Status = "researching"
	StatusSynthesizing Status = "synthesizing"
	StatusComplete     Status = "complete"
	StatusError        Status = "error"
)

// MimeTypeText is the only mime type the parsing stage reads from a file
const MimeTypeText = "text/plain"

// MaxPromptInputChars bounds the text handed to prompt generation
const MaxPromptInputChars = 12000

// ReportFailureMessage is written when structuring the final report fails
const ReportFailureMessage = "Failed to structure final report."

// activeStatuses are the non-terminal statuses in pipeline order
var activeStatuses = []Status{StatusPending, StatusParsing, StatusPrompting, StatusResearching, StatusSynthesizing}

var pipelineOrder = map[Status]int{
	StatusPending:      0,
	StatusParsing:      1,
	StatusPrompting:    2,
	StatusResearching:  3,
	StatusSynthesizing: 4,
	StatusComplete:     5,
}

// IsTerminal reports whether no further transition is allowed
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusError
}

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	if s == StatusError {
		return true
	}
	_, ok := pipelineOrder[s]
	return ok
}

func (s Status) String() string {
	return string(s)
}

// CanTransition reports whether a job may move from one status to another.
// Moves go forward along the pipeline, or into error from any non-terminal status.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() || !from.IsValid() || !to.IsValid() {
		return false
	}
	if to == StatusError {
		return true
	}
	return pipelineOrder[to] > pipelineOrder[from]
}

// AllowedFrom lists, in pipeline order, the statuses a job may move to s from
func AllowedFrom(to Status) []Status {
	var out []Status
	for _, from := range activeStatuses {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// ParseStatus converts a raw value into a Status
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown job status %q", raw)
	}
	return s, nil
}
