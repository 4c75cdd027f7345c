package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/labledger/api/internal/config"
	"github.com/labledger/api/internal/model"
)

// Client implements Ledger against a ledger node over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxRetries int
	retryWait  time.Duration
}

// NewClient creates a ledger node client.
func NewClient(cfg *config.LedgerConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if cfg.Timeout == 0 {
		timeout = 30 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.NodeURL,
		maxRetries: maxRetries,
		retryWait:  500 * time.Millisecond,
	}
}

// IsConfigured returns true if a node URL is set.
func (c *Client) IsConfigured() bool {
	return c.baseURL != ""
}

type appendRequest struct {
	Agent          string `json:"agent"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	ContentAddress string `json:"content_address"`
	ExpectedLength int    `json:"expected_length"`
}

type appendResponse struct {
	TxID string `json:"tx_id"`
}

type nodeError struct {
	Error string `json:"error"`
}

// CreateProject mints a project asset on the node.
func (c *Client) CreateProject(ctx context.Context, owner, name, summary string) (*model.Project, error) {
	body := map[string]string{"owner": owner, "name": name, "summary": summary}
	var p model.Project
	if err := c.do(ctx, http.MethodPost, "/v1/projects", body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProject reads a project asset and its log.
func (c *Client) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	if err := c.do(ctx, http.MethodGet, "/v1/projects/"+id, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// AppendLog submits an append transaction carrying the expected log
// position. On a position conflict the current length is re-read and the
// submission retried, up to the configured retry limit.
func (c *Client) AppendLog(ctx context.Context, projectID string, entry model.LogEntry) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("[Ledger] Append conflict on project %s, retry %d/%d", projectID, attempt, c.maxRetries)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.retryWait):
			}
		}

		project, err := c.GetProject(ctx, projectID)
		if err != nil {
			return "", err
		}

		req := appendRequest{
			Agent:          entry.Agent,
			Title:          entry.Title,
			Description:    entry.Description,
			ContentAddress: entry.ContentAddress,
			ExpectedLength: len(project.Log),
		}

		var resp appendResponse
		err = c.do(ctx, http.MethodPost, "/v1/projects/"+projectID+"/log", req, &resp)
		if err == nil {
			return resp.TxID, nil
		}
		lastErr = err
		if !errors.Is(err, ErrConflict) {
			return "", err
		}
	}

	return "", fmt.Errorf("append to %s failed after %d retries: %w", projectID, c.maxRetries, lastErr)
}

// GetTransaction reads a transaction's status by id.
func (c *Client) GetTransaction(ctx context.Context, txID string) (*model.TxStatusResponse, error) {
	var tx model.TxStatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/transactions/"+txID, nil, &tx); err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTxNotFound, txID)
		}
		return nil, err
	}
	return &tx, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ledger request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read ledger response: %w", err)
	}

	if resp.StatusCode >= 400 {
		msg := resp.Status
		var ne nodeError
		if err := json.Unmarshal(data, &ne); err == nil && ne.Error != "" {
			msg = ne.Error
		}
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrProjectNotFound, msg)
		case http.StatusConflict:
			return fmt.Errorf("%w: %s", ErrConflict, msg)
		default:
			return fmt.Errorf("%w (%d): %s", ErrTxRejected, resp.StatusCode, msg)
		}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse ledger response: %w", err)
		}
	}
	return nil
}
