package model

import "time"

// AnalysisType identifies which numeric analysis to run on the input.
type AnalysisType string

const (
	AnalysisLD50         AnalysisType = "ld50"
	AnalysisDoseResponse AnalysisType = "dose_response"
	AnalysisSpectra      AnalysisType = "spectra"
)

var ValidAnalysisTypes = []AnalysisType{
	AnalysisLD50, AnalysisDoseResponse, AnalysisSpectra,
}

// IsValid reports whether t names a known analysis.
func (t AnalysisType) IsValid() bool {
	for _, v := range ValidAnalysisTypes {
		if t == v {
			return true
		}
	}
	return false
}

// PayloadKind selects how an analysis hashes its input: over the literal
// bytes of a text payload or of a binary payload. Submission and
// verification must use the same kind for the same analysis, with no
// re-encoding in between.
type PayloadKind string

const (
	PayloadText   PayloadKind = "text"
	PayloadBinary PayloadKind = "binary"
)

// agents maps each analysis to its agent label and payload kind. The agent
// label is recorded in artifact manifests and ledger log entries, and is
// what the verifier dispatches on.
var agents = map[AnalysisType]struct {
	Agent string
	Kind  PayloadKind
}{
	AnalysisLD50:         {"ld50-analyzer-v1", PayloadText},
	AnalysisDoseResponse: {"dose-response-analyzer-v1", PayloadText},
	AnalysisSpectra:      {"spectra-analyzer-v1", PayloadBinary},
}

// AgentFor returns the manifest agent label for an analysis type.
func AgentFor(t AnalysisType) string {
	return agents[t].Agent
}

// PayloadKindForAgent resolves the hashing mode recorded behind an agent
// label. Unknown agents report false.
func PayloadKindForAgent(agent string) (PayloadKind, bool) {
	for _, a := range agents {
		if a.Agent == agent {
			return a.Kind, true
		}
	}
	return "", false
}

// SubmitResponse is returned by POST /api/analysis/submit.
type SubmitResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// StatusResponse is returned by GET /api/analysis/status/:jobId.
type StatusResponse struct {
	JobID            string       `json:"jobId"`
	Status           JobStatus    `json:"status"`
	AnalysisType     AnalysisType `json:"analysisType"`
	InputDataHash    string       `json:"inputDataHash"`
	OriginalFilename string       `json:"originalFilename"`
	CreatedAt        time.Time    `json:"createdAt"`
	StartedAt        *time.Time   `json:"startedAt,omitempty"`
	CompletedAt      *time.Time   `json:"completedAt,omitempty"`
	Error            *string      `json:"error,omitempty"`
	ArtifactAddress  string       `json:"artifactAddress,omitempty"`
}

// AnalysisResult is what the numeric engine produces for a completed job.
type AnalysisResult struct {
	Summary   string             `json:"summary"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	ReportCSV string             `json:"reportCsv,omitempty"`
	PlotPNG   []byte             `json:"plotPng,omitempty"`
}
