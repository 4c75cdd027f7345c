package model

import "time"

// JobStatus is the lifecycle state of an analysis job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"

	// JobStatusLogged is derived, never persisted: a completed job whose
	// artifact content address has been observed in a project log.
	JobStatusLogged JobStatus = "logged"
)

// IsTerminal reports whether no further store-side transition can occur.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job represents an analysis job record as persisted in the job store.
type Job struct {
	ID               string       `json:"id"`
	Status           JobStatus    `json:"status"`
	AnalysisType     AnalysisType `json:"analysisType"`
	InputDataHash    string       `json:"inputDataHash"`
	OriginalFilename string       `json:"originalFilename"`
	CreatedAt        time.Time    `json:"createdAt"`
	StartedAt        *time.Time   `json:"startedAt,omitempty"`
	CompletedAt      *time.Time   `json:"completedAt,omitempty"`
	Result           []byte       `json:"result,omitempty"` // Raw result JSON
	Error            *string      `json:"error,omitempty"`

	// ArtifactAddress is set once the job's outputs have been packaged
	// into a content-addressed artifact. It is metadata on a terminal
	// record, not a status transition.
	ArtifactAddress string `json:"artifactAddress,omitempty"`
}

// AnalysisJobPayload is the execution request handed to the work queue.
type AnalysisJobPayload struct {
	JobID          string       `json:"jobId"`
	AnalysisType   AnalysisType `json:"analysisType"`
	FileLocator    string       `json:"fileLocator"`
	CallbackSecret string       `json:"callbackSecret"`
}
