package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labledger/api/internal/model"
)

func seedProject(t *testing.T, e *Emulator) *model.Project {
	t.Helper()
	p, err := e.CreateProject(context.Background(), "0xowner", "Tox Study 12", "LD50 screening")
	require.NoError(t, err)
	return p
}

func TestEmulatorAppendGrowsLog(t *testing.T) {
	t.Parallel()

	e := NewEmulator()
	ctx := context.Background()
	p := seedProject(t, e)

	// Pre-populate three entries.
	for i := 0; i < 3; i++ {
		_, err := e.AppendLog(ctx, p.ID, model.LogEntry{
			Agent: "ld50-analyzer-v1", Title: "run", ContentAddress: "sha256:aa",
		})
		require.NoError(t, err)
	}

	entry := model.LogEntry{
		Agent:          "ld50-analyzer-v1",
		Title:          "LD50 result batch 4",
		ContentAddress: "sha256:bb",
	}
	txID, err := e.AppendLog(ctx, p.ID, entry)
	require.NoError(t, err)

	tx, err := e.GetTransaction(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, model.TxStatusSealed, tx.Status)

	got, err := e.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Log, 4)
	assert.Equal(t, entry.Title, got.Log[3].Title)
	assert.Equal(t, entry.ContentAddress, got.Log[3].ContentAddress)
	assert.False(t, got.Log[3].Timestamp.IsZero())
}

func TestEmulatorRejectedAppendLeavesLogUnchanged(t *testing.T) {
	t.Parallel()

	e := NewEmulator()
	ctx := context.Background()
	p := seedProject(t, e)

	for i := 0; i < 3; i++ {
		_, err := e.AppendLog(ctx, p.ID, model.LogEntry{Agent: "a", Title: "t", ContentAddress: "sha256:cc"})
		require.NoError(t, err)
	}

	e.RejectNextAppend("insufficient balance")
	txID, err := e.AppendLog(ctx, p.ID, model.LogEntry{Agent: "a", Title: "late", ContentAddress: "sha256:dd"})
	assert.ErrorIs(t, err, ErrTxRejected)

	tx, err := e.GetTransaction(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, model.TxStatusError, tx.Status)
	assert.Equal(t, "insufficient balance", tx.Error)

	got, err := e.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Log, 3, "rejected append must not touch the log")
}

func TestEmulatorAppendUnknownProject(t *testing.T) {
	t.Parallel()

	e := NewEmulator()
	_, err := e.AppendLog(context.Background(), "missing", model.LogEntry{Agent: "a"})
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestEmulatorTransferMovesAsset(t *testing.T) {
	t.Parallel()

	e := NewEmulator()
	ctx := context.Background()
	p := seedProject(t, e)

	moved, err := e.Transfer(ctx, p.ID, "0xnewowner")
	require.NoError(t, err)
	assert.Equal(t, "0xnewowner", moved.Owner)

	// State read back reflects the move; the pre-transfer snapshot does not
	// alias the stored asset.
	got, err := e.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xnewowner", got.Owner)
	assert.Equal(t, "0xowner", p.Owner)
}

func TestEmulatorSnapshotsDoNotAlias(t *testing.T) {
	t.Parallel()

	e := NewEmulator()
	ctx := context.Background()
	p := seedProject(t, e)

	_, err := e.AppendLog(ctx, p.ID, model.LogEntry{Agent: "a", Title: "first", ContentAddress: "sha256:ee"})
	require.NoError(t, err)

	got, err := e.GetProject(ctx, p.ID)
	require.NoError(t, err)
	got.Log[0].Title = "tampered"

	again, err := e.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", again.Log[0].Title)
}

func TestResolveView(t *testing.T) {
	t.Parallel()

	e := NewEmulator()
	ctx := context.Background()
	p := seedProject(t, e)
	_, err := e.AppendLog(ctx, p.ID, model.LogEntry{Agent: "a", Title: "t", ContentAddress: "sha256:ff"})
	require.NoError(t, err)
	got, err := e.GetProject(ctx, p.ID)
	require.NoError(t, err)

	t.Run("summary", func(t *testing.T) {
		view, err := ResolveView(got, model.ViewSummary)
		require.NoError(t, err)
		m := view.(map[string]interface{})
		assert.Equal(t, 1, m["logLength"])
		assert.Equal(t, "Tox Study 12", m["name"])
	})

	t.Run("log", func(t *testing.T) {
		view, err := ResolveView(got, model.ViewLog)
		require.NoError(t, err)
		assert.Len(t, view.([]model.LogEntry), 1)
	})

	t.Run("metadata", func(t *testing.T) {
		view, err := ResolveView(got, model.ViewMetadata)
		require.NoError(t, err)
		m := view.(map[string]interface{})
		assert.Equal(t, "0xowner", m["owner"])
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := ResolveView(got, model.ProjectViewKind("holders"))
		assert.ErrorIs(t, err, ErrInvalidView)
	})
}
