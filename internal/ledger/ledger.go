// Package ledger talks to the append-only provenance ledger. A project is a
// durable identity asset owning an ordered log; appends are submitted as
// transactions and must not be treated as applied until the transaction is
// observed sealed. When no ledger node is configured, an in-process
// emulator provides the same contract for development and tests.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/labledger/api/internal/model"
)

var (
	// ErrProjectNotFound is returned when no project exists under the id.
	ErrProjectNotFound = errors.New("ledger: project not found")

	// ErrTxNotFound is returned when the transaction id is unknown.
	ErrTxNotFound = errors.New("ledger: transaction not found")

	// ErrTxRejected is returned when the network refuses an append; the
	// log is unchanged.
	ErrTxRejected = errors.New("ledger: transaction rejected")

	// ErrConflict is returned when a concurrent appender won the position
	// this append was submitted against.
	ErrConflict = errors.New("ledger: log position conflict")

	// ErrInvalidView is returned for a view kind outside the closed set.
	ErrInvalidView = errors.New("ledger: unknown view kind")

	// ErrSealTimeout is returned when finalization was not observed in time.
	ErrSealTimeout = errors.New("ledger: timed out waiting for seal")
)

// Ledger is the append-only log surface shared by the node client and the
// embedded emulator.
type Ledger interface {
	CreateProject(ctx context.Context, owner, name, summary string) (*model.Project, error)
	GetProject(ctx context.Context, id string) (*model.Project, error)
	// AppendLog submits one append transaction and returns its id. A
	// returned id means submission only, not finalization.
	AppendLog(ctx context.Context, projectID string, entry model.LogEntry) (string, error)
	GetTransaction(ctx context.Context, txID string) (*model.TxStatusResponse, error)
}

// WaitSealed polls a transaction until it reaches a terminal status. The
// returned status is sealed or error; silence never counts as success.
func WaitSealed(ctx context.Context, l Ledger, txID string, interval, maxWait time.Duration) (*model.TxStatusResponse, error) {
	deadline := time.Now().Add(maxWait)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++
		tx, err := l.GetTransaction(ctx, txID)
		if err != nil {
			log.Printf("[Ledger] Poll tx #%d (tx=%s) — error: %v", attempt, txID, err)
			return nil, err
		}

		if tx.Status.IsTerminal() {
			return tx, nil
		}

		select {
		case <-ctx.Done():
			log.Printf("[Ledger] Poll tx (tx=%s) — context cancelled", txID)
			return nil, ctx.Err()
		case <-time.After(interval):
			continue
		}
	}

	return nil, fmt.Errorf("%w: tx %s after %v", ErrSealTimeout, txID, maxWait)
}

// ResolveView maps a project's state to one of the closed set of view
// payloads. Each kind is resolved by a pure function of the entity state.
func ResolveView(p *model.Project, kind model.ProjectViewKind) (interface{}, error) {
	switch kind {
	case model.ViewSummary:
		return map[string]interface{}{
			"id":        p.ID,
			"name":      p.Name,
			"summary":   p.Summary,
			"logLength": len(p.Log),
		}, nil
	case model.ViewLog:
		return p.Log, nil
	case model.ViewMetadata:
		return map[string]interface{}{
			"id":             p.ID,
			"owner":          p.Owner,
			"contentAddress": p.ContentAddress,
			"createdAt":      p.CreatedAt,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidView, kind)
	}
}
