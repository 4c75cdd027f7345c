package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/labledger/api/internal/model"
)

// Emulator is an in-process Ledger used when no node is configured. It
// mirrors the ledger's ownership rules: each project asset lives in exactly
// one registry slot, and moving one is a remove followed by an insert,
// never a shared reference.
type Emulator struct {
	mu     sync.Mutex
	assets map[string]*model.Project
	txs    map[string]*model.TxStatusResponse

	rejectNext string // when non-empty, the next append is rejected with this reason
}

// NewEmulator creates an empty in-process ledger.
func NewEmulator() *Emulator {
	return &Emulator{
		assets: make(map[string]*model.Project),
		txs:    make(map[string]*model.TxStatusResponse),
	}
}

// RejectNextAppend makes the next append transaction fail with reason,
// leaving the log unchanged. Used by tests and fault drills.
func (e *Emulator) RejectNextAppend(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rejectNext = reason
}

// CreateProject mints a new project asset and inserts it into the registry.
func (e *Emulator) CreateProject(_ context.Context, owner, name, summary string) (*model.Project, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := &model.Project{
		ID:        uuid.New().String(),
		Owner:     owner,
		Name:      name,
		Summary:   summary,
		CreatedAt: time.Now().UTC(),
	}
	e.assets[p.ID] = p
	return snapshot(p), nil
}

// GetProject returns a copy of the asset's current state.
func (e *Emulator) GetProject(_ context.Context, id string) (*model.Project, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.assets[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	return snapshot(p), nil
}

// Transfer moves a project asset to a new owner. The asset is removed from
// the registry and re-inserted, so no aliased reference survives the move.
func (e *Emulator) Transfer(_ context.Context, id, newOwner string) (*model.Project, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.assets[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	delete(e.assets, id)

	moved := snapshot(p)
	moved.Owner = newOwner
	e.assets[id] = moved
	return snapshot(moved), nil
}

// AppendLog submits an append. The transaction seals synchronously, but
// callers still observe finalization through GetTransaction, same as
// against a real node.
func (e *Emulator) AppendLog(_ context.Context, projectID string, entry model.LogEntry) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	txID := uuid.New().String()

	if e.rejectNext != "" {
		reason := e.rejectNext
		e.rejectNext = ""
		e.txs[txID] = &model.TxStatusResponse{TxID: txID, Status: model.TxStatusError, Error: reason}
		return txID, fmt.Errorf("%w: %s", ErrTxRejected, reason)
	}

	p, ok := e.assets[projectID]
	if !ok {
		e.txs[txID] = &model.TxStatusResponse{TxID: txID, Status: model.TxStatusError, Error: "project not found"}
		return txID, ErrProjectNotFound
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	p.Log = append(p.Log, entry)
	e.txs[txID] = &model.TxStatusResponse{TxID: txID, Status: model.TxStatusSealed}
	return txID, nil
}

// GetTransaction reports a submitted transaction's status.
func (e *Emulator) GetTransaction(_ context.Context, txID string) (*model.TxStatusResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, ok := e.txs[txID]
	if !ok {
		return nil, ErrTxNotFound
	}
	cp := *tx
	return &cp, nil
}

// snapshot copies a project so stored state never escapes the registry.
func snapshot(p *model.Project) *model.Project {
	cp := *p
	cp.Log = append([]model.LogEntry(nil), p.Log...)
	return &cp
}
