package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labledger/api/internal/config"
	"github.com/labledger/api/internal/model"
)

// AnalysisEngine defines the interface to the external numeric engine. The
// engine is opaque: it receives a file reference and returns a result or an
// error.
type AnalysisEngine interface {
	Analyze(ctx context.Context, req *AnalyzeRequest) (*model.AnalysisResult, error)
	HealthCheck(ctx context.Context) error
	IsConfigured() bool
}

// EngineClient implements AnalysisEngine for the numeric engine microservice
type EngineClient struct {
	httpClient *http.Client
	baseURL    string
}

// AnalyzeRequest is the execution request sent to the engine
type AnalyzeRequest struct {
	JobID          string             `json:"job_id"`
	AnalysisType   model.AnalysisType `json:"analysis_type"`
	FileURL        string             `json:"file_url"`
	CallbackSecret string             `json:"callback_secret,omitempty"`
}

type engineError struct {
	Error string `json:"error"`
}

// NewEngineClient creates a client for the numeric engine service
func NewEngineClient(cfg *config.EngineConfig) *EngineClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if cfg.Timeout == 0 {
		timeout = 120 * time.Second
	}
	return &EngineClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.ServiceURL,
	}
}

// Analyze runs one analysis synchronously against the engine
func (c *EngineClient) Analyze(ctx context.Context, req *AnalyzeRequest) (*model.AnalysisResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analyze request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("engine request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read engine response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var engErr engineError
		if err := json.Unmarshal(data, &engErr); err == nil && engErr.Error != "" {
			return nil, fmt.Errorf("engine error (%d): %s", resp.StatusCode, engErr.Error)
		}
		return nil, fmt.Errorf("engine error: status %d", resp.StatusCode)
	}

	var result model.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse engine result: %w", err)
	}
	return &result, nil
}

// HealthCheck pings the engine service
func (c *EngineClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// IsConfigured returns true if a service URL is set
func (c *EngineClient) IsConfigured() bool {
	return c.baseURL != ""
}
