package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labledger/api/internal/config"
	"github.com/labledger/api/internal/model"
)

// fakeNode is a minimal ledger node: one project, explicit sealing, and an
// optional number of forced position conflicts.
type fakeNode struct {
	mu        sync.Mutex
	project   model.Project
	txs       map[string]model.TxStatusResponse
	conflicts int // number of appends to reject with 409 before accepting
	sealDelay int // GetTransaction calls before a pending tx seals
	pending   map[string]int
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		project: model.Project{ID: "proj-1", Owner: "0xowner", Name: "Study"},
		txs:     make(map[string]model.TxStatusResponse),
		pending: make(map[string]int),
	}
}

func (n *fakeNode) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/projects/proj-1", func(w http.ResponseWriter, r *http.Request) {
		n.mu.Lock()
		defer n.mu.Unlock()
		json.NewEncoder(w).Encode(n.project)
	})
	mux.HandleFunc("/v1/projects/proj-1/log", func(w http.ResponseWriter, r *http.Request) {
		n.mu.Lock()
		defer n.mu.Unlock()

		var req struct {
			Agent          string `json:"agent"`
			Title          string `json:"title"`
			ContentAddress string `json:"content_address"`
			ExpectedLength int    `json:"expected_length"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		if n.conflicts > 0 {
			n.conflicts--
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{"error": "log position taken"})
			return
		}
		if req.ExpectedLength != len(n.project.Log) {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{"error": "stale expected_length"})
			return
		}

		n.project.Log = append(n.project.Log, model.LogEntry{
			Agent:          req.Agent,
			Title:          req.Title,
			ContentAddress: req.ContentAddress,
			Timestamp:      time.Now().UTC(),
		})
		txID := "tx-accepted"
		if n.sealDelay > 0 {
			n.txs[txID] = model.TxStatusResponse{TxID: txID, Status: model.TxStatusPending}
			n.pending[txID] = n.sealDelay
		} else {
			n.txs[txID] = model.TxStatusResponse{TxID: txID, Status: model.TxStatusSealed}
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"tx_id": txID})
	})
	mux.HandleFunc("/v1/transactions/", func(w http.ResponseWriter, r *http.Request) {
		n.mu.Lock()
		defer n.mu.Unlock()
		txID := strings.TrimPrefix(r.URL.Path, "/v1/transactions/")
		tx, ok := n.txs[txID]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "unknown transaction"})
			return
		}
		if left, pending := n.pending[txID]; pending {
			if left <= 1 {
				delete(n.pending, txID)
				tx.Status = model.TxStatusSealed
				n.txs[txID] = tx
			} else {
				n.pending[txID] = left - 1
			}
		}
		json.NewEncoder(w).Encode(tx)
	})
	return mux
}

func newTestClient(t *testing.T, n *fakeNode) *Client {
	t.Helper()
	srv := httptest.NewServer(n.handler())
	t.Cleanup(srv.Close)
	c := NewClient(&config.LedgerConfig{NodeURL: srv.URL, Timeout: 5, MaxRetries: 3})
	c.retryWait = time.Millisecond
	return c
}

func TestClientAppendLog(t *testing.T) {
	node := newFakeNode()
	c := newTestClient(t, node)
	ctx := context.Background()

	txID, err := c.AppendLog(ctx, "proj-1", model.LogEntry{
		Agent: "ld50-analyzer-v1", Title: "Batch 1", ContentAddress: "sha256:ab",
	})
	require.NoError(t, err)
	assert.Equal(t, "tx-accepted", txID)

	p, err := c.GetProject(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, p.Log, 1)
	assert.Equal(t, "Batch 1", p.Log[0].Title)
}

func TestClientAppendRetriesOnConflict(t *testing.T) {
	node := newFakeNode()
	node.conflicts = 2
	c := newTestClient(t, node)

	txID, err := c.AppendLog(context.Background(), "proj-1", model.LogEntry{
		Agent: "a", Title: "contended", ContentAddress: "sha256:cd",
	})
	require.NoError(t, err, "append should succeed once contention clears")
	assert.NotEmpty(t, txID)
}

func TestClientAppendExhaustsRetries(t *testing.T) {
	node := newFakeNode()
	node.conflicts = 10
	c := newTestClient(t, node)

	_, err := c.AppendLog(context.Background(), "proj-1", model.LogEntry{Agent: "a"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestWaitSealed(t *testing.T) {
	node := newFakeNode()
	node.sealDelay = 3
	c := newTestClient(t, node)
	ctx := context.Background()

	txID, err := c.AppendLog(ctx, "proj-1", model.LogEntry{Agent: "a", Title: "slow seal"})
	require.NoError(t, err)

	// Submission alone is not finalization.
	tx, err := c.GetTransaction(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, model.TxStatusPending, tx.Status)

	sealed, err := WaitSealed(ctx, c, txID, time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, model.TxStatusSealed, sealed.Status)
}

func TestWaitSealedCancellation(t *testing.T) {
	node := newFakeNode()
	node.sealDelay = 1000
	c := newTestClient(t, node)

	txID, err := c.AppendLog(context.Background(), "proj-1", model.LogEntry{Agent: "a"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = WaitSealed(ctx, c, txID, 50*time.Millisecond, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClientUnknownTransaction(t *testing.T) {
	node := newFakeNode()
	c := newTestClient(t, node)

	_, err := c.GetTransaction(context.Background(), "tx-bogus")
	assert.Error(t, err)
}
