package model

import "time"

// TxStatus is the lifecycle of a submitted ledger transaction. A log must
// not be treated as updated until the transaction reads sealed.
type TxStatus string

const (
	TxStatusPending TxStatus = "pending"
	TxStatusSealed  TxStatus = "sealed"
	TxStatusError   TxStatus = "error"
)

// IsTerminal reports whether the transaction can no longer change state.
func (s TxStatus) IsTerminal() bool {
	return s == TxStatusSealed || s == TxStatusError
}

// LogEntry is one record in a project's append-only log.
type LogEntry struct {
	Agent          string    `json:"agent"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	ContentAddress string    `json:"contentAddress"`
	Timestamp      time.Time `json:"timestamp"`
}

// Project is the durable identity asset owning an append-only log.
type Project struct {
	ID             string     `json:"id"`
	Owner          string     `json:"owner"`
	Name           string     `json:"name"`
	Summary        string     `json:"summary"`
	ContentAddress string     `json:"contentAddress,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	Log            []LogEntry `json:"log"`
}

// ProjectViewKind enumerates the closed set of project views.
type ProjectViewKind string

const (
	ViewSummary  ProjectViewKind = "summary"
	ViewLog      ProjectViewKind = "log"
	ViewMetadata ProjectViewKind = "metadata"
)

// CreateProjectRequest creates a new project asset.
type CreateProjectRequest struct {
	Owner   string `json:"owner" validate:"required"`
	Name    string `json:"name" validate:"required,max=200"`
	Summary string `json:"summary" validate:"max=2000"`
}

// LogAppendRequest appends one entry to a project's log.
type LogAppendRequest struct {
	ProjectID      string `json:"projectId" validate:"required"`
	Agent          string `json:"agent" validate:"required"`
	Title          string `json:"title" validate:"required,max=200"`
	Description    string `json:"description" validate:"max=2000"`
	ContentAddress string `json:"contentAddress" validate:"required"`
	Wait           bool   `json:"wait,omitempty"`
}

// LogAppendResponse reports the submitted transaction. Status is only set
// when the caller asked to wait for finalization.
type LogAppendResponse struct {
	TxID   string   `json:"txId"`
	Status TxStatus `json:"status,omitempty"`
}

// TxStatusResponse is returned by GET /api/ledger/tx/:txId.
type TxStatusResponse struct {
	TxID   string   `json:"txId"`
	Status TxStatus `json:"status"`
	Error  string   `json:"error,omitempty"`
}
