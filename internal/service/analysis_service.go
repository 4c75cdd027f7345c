package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/labledger/api/internal/client"
	"github.com/labledger/api/internal/hashing"
	"github.com/labledger/api/internal/model"
	"github.com/labledger/api/internal/store"
)

const (
	TaskTypeAnalysis = "analysis:process"
	QueueAnalysis    = "analysis"
)

var (
	// ErrValidation marks submission input the gateway refuses before any
	// state is created.
	ErrValidation = errors.New("validation failed")

	// ErrStorage marks a blob upload failure; the job record exists but no
	// executor was assigned.
	ErrStorage = errors.New("storage failure")

	// ErrNotCompleted is returned when a result is requested before the
	// job reached completed.
	ErrNotCompleted = errors.New("job not completed")

	// ErrTerminal guards the monotonic status contract: completed and
	// failed records never transition again.
	ErrTerminal = errors.New("job already terminal")
)

// AnalysisService is the job submission gateway plus the store write path
// used by the executor worker.
type AnalysisService struct {
	jobs        store.JobStore
	storage     client.StorageClient
	asynqClient *asynq.Client
}

func NewAnalysisService(jobs store.JobStore, storage client.StorageClient, asynqClient *asynq.Client) *AnalysisService {
	return &AnalysisService{
		jobs:        jobs,
		storage:     storage,
		asynqClient: asynqClient,
	}
}

// Submit validates the input, persists a queued job record, uploads the raw
// file to blob storage and enqueues an execution request. It returns as
// soon as the request is enqueued; execution is never awaited.
func (s *AnalysisService) Submit(ctx context.Context, filename string, data []byte, analysisType model.AnalysisType, inputHash string) (*model.SubmitResponse, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrValidation)
	}
	if analysisType == "" {
		return nil, fmt.Errorf("%w: analysis type is required", ErrValidation)
	}
	if !analysisType.IsValid() {
		return nil, fmt.Errorf("%w: unknown analysis type %q", ErrValidation, analysisType)
	}

	// The recorded hash must equal the digest of the exact payload bytes;
	// a client-supplied value is checked, never trusted.
	computed, err := hashing.SumBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if inputHash != "" && inputHash != computed {
		return nil, fmt.Errorf("%w: inputDataHash does not match file content", ErrValidation)
	}

	jobID := uuid.New().String()
	now := time.Now()

	job := &model.Job{
		ID:               jobID,
		Status:           model.JobStatusQueued,
		AnalysisType:     analysisType,
		InputDataHash:    computed,
		OriginalFilename: filename,
		CreatedAt:        now,
	}

	if err := s.jobs.Set(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	fileLocator, err := s.uploadInput(ctx, jobID, filename, data)
	if err != nil {
		// The queued record has no executor assigned; mark it failed so
		// pollers are not left watching an orphan.
		reason := fmt.Sprintf("input upload failed: %v", err)
		_ = s.FailJob(ctx, jobID, reason)
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	payload := &model.AnalysisJobPayload{
		JobID:          jobID,
		AnalysisType:   analysisType,
		FileLocator:    fileLocator,
		CallbackSecret: uuid.New().String(),
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	if s.asynqClient != nil {
		_, err = s.asynqClient.Enqueue(asynq.NewTask(TaskTypeAnalysis, payloadBytes),
			asynq.Queue(QueueAnalysis),
			asynq.MaxRetry(3),
			asynq.Retention(24*time.Hour),
		)
		if err != nil {
			reason := fmt.Sprintf("enqueue failed: %v", err)
			_ = s.FailJob(ctx, jobID, reason)
			return nil, fmt.Errorf("failed to enqueue task: %w", err)
		}
	} else {
		log.Printf("[Analysis] No task queue configured, job %s stays queued", jobID)
	}

	return &model.SubmitResponse{
		JobID:     jobID,
		Status:    model.JobStatusQueued,
		CreatedAt: now,
	}, nil
}

// uploadInput stores the raw input and returns its public locator. With no
// storage configured a mock locator is returned so development flows work.
func (s *AnalysisService) uploadInput(ctx context.Context, jobID, filename string, data []byte) (string, error) {
	key := fmt.Sprintf("uploads/%s/%s", jobID, filename)
	if s.storage == nil {
		return "mock://" + key, nil
	}
	return s.storage.Upload(ctx, key, bytes.NewReader(data), "application/octet-stream")
}

// GetStatus returns the stored job record by id.
func (s *AnalysisService) GetStatus(ctx context.Context, jobID string) (*model.StatusResponse, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.StatusResponse{
		JobID:            job.ID,
		Status:           job.Status,
		AnalysisType:     job.AnalysisType,
		InputDataHash:    job.InputDataHash,
		OriginalFilename: job.OriginalFilename,
		CreatedAt:        job.CreatedAt,
		StartedAt:        job.StartedAt,
		CompletedAt:      job.CompletedAt,
		Error:            job.Error,
		ArtifactAddress:  job.ArtifactAddress,
	}, nil
}

// GetResult returns the raw result of a completed job.
func (s *AnalysisService) GetResult(ctx context.Context, jobID string) (json.RawMessage, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCompleted {
		return nil, ErrNotCompleted
	}
	return json.RawMessage(job.Result), nil
}

// StartJob marks a queued job as processing (called by worker).
func (s *AnalysisService) StartJob(ctx context.Context, jobID string) error {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return ErrTerminal
	}
	if job.Status == model.JobStatusProcessing {
		return nil
	}

	job.Status = model.JobStatusProcessing
	now := time.Now()
	job.StartedAt = &now
	return s.jobs.Set(ctx, job)
}

// CompleteJob marks a job as completed with its result (called by worker).
func (s *AnalysisService) CompleteJob(ctx context.Context, jobID string, result interface{}) error {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return ErrTerminal
	}

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusCompleted
	job.Result = resultBytes
	now := time.Now()
	job.CompletedAt = &now
	return s.jobs.Set(ctx, job)
}

// FailJob marks a job as failed (called by worker).
func (s *AnalysisService) FailJob(ctx context.Context, jobID string, errMsg string) error {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return ErrTerminal
	}

	job.Status = model.JobStatusFailed
	job.Error = &errMsg
	now := time.Now()
	job.CompletedAt = &now
	return s.jobs.Set(ctx, job)
}
