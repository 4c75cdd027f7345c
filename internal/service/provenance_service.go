package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/labledger/api/internal/artifact"
	"github.com/labledger/api/internal/client"
	"github.com/labledger/api/internal/hashing"
	"github.com/labledger/api/internal/ledger"
	"github.com/labledger/api/internal/model"
	"github.com/labledger/api/internal/store"
)

// ErrTransaction marks a ledger append the network did not accept; the log
// is unchanged and the failure must reach the user.
var ErrTransaction = errors.New("ledger transaction failed")

// sealPollInterval and sealMaxWait bound the finalization poll when a
// caller asks to wait for a sealed transaction.
const (
	sealPollInterval = 2 * time.Second
	sealMaxWait      = 2 * time.Minute
)

// ProvenanceService packages completed job outputs into content-addressed
// artifacts and anchors their addresses in a project's append-only log.
type ProvenanceService struct {
	jobs    store.JobStore
	storage client.StorageClient
	ledger  ledger.Ledger
}

func NewProvenanceService(jobs store.JobStore, storage client.StorageClient, l ledger.Ledger) *ProvenanceService {
	return &ProvenanceService{
		jobs:    jobs,
		storage: storage,
		ledger:  l,
	}
}

// PackageArtifact turns a completed job's outputs into a manifest + zip
// container, stores the container content-addressed, and records the
// address on the job record.
func (s *ProvenanceService) PackageArtifact(ctx context.Context, jobID string) (*model.PackageResponse, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCompleted {
		return nil, ErrNotCompleted
	}

	var result model.AnalysisResult
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}

	payloads, err := resultPayloads(&result)
	if err != nil {
		return nil, err
	}

	agent := model.AgentFor(job.AnalysisType)
	manifest, container, err := artifact.Package(job.InputDataHash, agent, payloads)
	if err != nil {
		return nil, fmt.Errorf("failed to package artifact: %w", err)
	}

	contentAddress, err := hashing.ContentAddress(container)
	if err != nil {
		return nil, err
	}

	url := "mock://artifacts/" + contentAddress
	if s.storage != nil {
		_, url, err = s.storage.UploadContentAddressed(ctx, "artifacts", ".zip", container, "application/zip")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
	}

	job.ArtifactAddress = contentAddress
	if err := s.jobs.Set(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to record artifact address: %w", err)
	}

	return &model.PackageResponse{
		ContentAddress: contentAddress,
		URL:            url,
		Manifest:       manifest,
	}, nil
}

// resultPayloads maps an analysis result onto named artifact payloads.
func resultPayloads(result *model.AnalysisResult) ([]artifact.Payload, error) {
	resultJSON, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	payloads := []artifact.Payload{
		{Filename: "result.json", Kind: model.PayloadText, Text: string(resultJSON)},
	}
	if result.ReportCSV != "" {
		payloads = append(payloads, artifact.Payload{
			Filename: "report.csv", Kind: model.PayloadText, Text: result.ReportCSV,
		})
	}
	if len(result.PlotPNG) > 0 {
		payloads = append(payloads, artifact.Payload{
			Filename: "plots/plot.png", Kind: model.PayloadBinary, Bytes: result.PlotPNG,
		})
	}
	return payloads, nil
}

// VerifyManifest checks a candidate file against a manifest.
func (s *ProvenanceService) VerifyManifest(manifest *model.ArtifactManifest, candidate []byte) (*model.VerificationReport, error) {
	return artifact.Verify(manifest, candidate)
}

// CreateProject mints a new project asset on the ledger.
func (s *ProvenanceService) CreateProject(ctx context.Context, req *model.CreateProjectRequest) (*model.Project, error) {
	return s.ledger.CreateProject(ctx, req.Owner, req.Name, req.Summary)
}

// GetProject reads a project asset and its log.
func (s *ProvenanceService) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	return s.ledger.GetProject(ctx, projectID)
}

// ResolveProjectView resolves one of the closed set of project views.
func (s *ProvenanceService) ResolveProjectView(ctx context.Context, projectID string, kind model.ProjectViewKind) (interface{}, error) {
	project, err := s.ledger.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return ledger.ResolveView(project, kind)
}

// LogArtifact submits an append transaction anchoring a content address in
// the project's log. The log must not be treated as updated until the
// returned transaction is observed sealed; with Wait set, finalization is
// awaited here.
func (s *ProvenanceService) LogArtifact(ctx context.Context, req *model.LogAppendRequest) (*model.LogAppendResponse, error) {
	entry := model.LogEntry{
		Agent:          req.Agent,
		Title:          req.Title,
		Description:    req.Description,
		ContentAddress: req.ContentAddress,
		Timestamp:      time.Now().UTC(),
	}

	txID, err := s.ledger.AppendLog(ctx, req.ProjectID, entry)
	if err != nil {
		if errors.Is(err, ledger.ErrProjectNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrTransaction, err)
	}

	resp := &model.LogAppendResponse{TxID: txID}
	if !req.Wait {
		return resp, nil
	}

	tx, err := ledger.WaitSealed(ctx, s.ledger, txID, sealPollInterval, sealMaxWait)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransaction, err)
	}
	if tx.Status != model.TxStatusSealed {
		return nil, fmt.Errorf("%w: %s", ErrTransaction, tx.Error)
	}
	resp.Status = tx.Status
	return resp, nil
}

// GetTransaction reports a ledger transaction's status.
func (s *ProvenanceService) GetTransaction(ctx context.Context, txID string) (*model.TxStatusResponse, error) {
	return s.ledger.GetTransaction(ctx, txID)
}

// DeriveStatus layers the client-side logged state over a stored job: a
// completed job whose artifact address appears in the project log reads as
// logged. The job store itself never sees this state.
func (s *ProvenanceService) DeriveStatus(ctx context.Context, job *model.StatusResponse, artifactAddress, projectID string) (model.JobStatus, error) {
	if job.Status != model.JobStatusCompleted || artifactAddress == "" || projectID == "" {
		return job.Status, nil
	}

	project, err := s.ledger.GetProject(ctx, projectID)
	if err != nil {
		return job.Status, err
	}
	for _, entry := range project.Log {
		if entry.ContentAddress == artifactAddress {
			return model.JobStatusLogged, nil
		}
	}
	return job.Status, nil
}
