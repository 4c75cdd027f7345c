package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/labledger/api/internal/ledger"
	"github.com/labledger/api/internal/model"
	"github.com/labledger/api/internal/store"
)

func newTestProvenanceService() (*ProvenanceService, *store.MemoryStore, *ledger.Emulator) {
	jobs := store.NewMemoryStore()
	emu := ledger.NewEmulator()
	return NewProvenanceService(jobs, nil, emu), jobs, emu
}

func seedCompletedJob(t *testing.T, jobs *store.MemoryStore, id string) *model.Job {
	t.Helper()

	result := model.AnalysisResult{
		Summary:   "LD50 = 42.7 mg/kg",
		Metrics:   map[string]float64{"ld50_mg_kg": 42.7},
		ReportCSV: "dose,mortality\n10,0.1\n",
	}
	resultBytes, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}

	now := time.Now()
	job := &model.Job{
		ID:            id,
		Status:        model.JobStatusCompleted,
		AnalysisType:  model.AnalysisLD50,
		InputDataHash: "aabbcc",
		CreatedAt:     now,
		CompletedAt:   &now,
		Result:        resultBytes,
	}
	if err := jobs.Set(context.Background(), job); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job
}

func TestPackageArtifactRequiresCompletion(t *testing.T) {
	svc, jobs, _ := newTestProvenanceService()
	ctx := context.Background()

	job := &model.Job{
		ID:        "job-1",
		Status:    model.JobStatusProcessing,
		CreatedAt: time.Now(),
	}
	if err := jobs.Set(ctx, job); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	_, err := svc.PackageArtifact(ctx, "job-1")
	if !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("expected not completed, got %v", err)
	}
}

func TestPackageArtifactRecordsAddress(t *testing.T) {
	svc, jobs, _ := newTestProvenanceService()
	ctx := context.Background()
	seedCompletedJob(t, jobs, "job-1")

	resp, err := svc.PackageArtifact(ctx, "job-1")
	if err != nil {
		t.Fatalf("package failed: %v", err)
	}
	if resp.ContentAddress == "" {
		t.Fatal("expected a content address")
	}
	if resp.Manifest == nil {
		t.Fatal("expected a manifest")
	}
	if resp.Manifest.AnalysisAgent != "ld50-analyzer-v1" {
		t.Fatalf("manifest agent %q", resp.Manifest.AnalysisAgent)
	}
	if resp.Manifest.InputDataHashSHA256 != "aabbcc" {
		t.Fatalf("manifest input hash %q", resp.Manifest.InputDataHashSHA256)
	}

	job, err := jobs.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("job lookup: %v", err)
	}
	if job.ArtifactAddress != resp.ContentAddress {
		t.Fatalf("job address %q, want %q", job.ArtifactAddress, resp.ContentAddress)
	}

	// Same bytes in, same address out.
	resp2, err := svc.PackageArtifact(ctx, "job-1")
	if err != nil {
		t.Fatalf("second package failed: %v", err)
	}
	if resp2.Manifest.InputDataHashSHA256 != resp.Manifest.InputDataHashSHA256 {
		t.Fatal("repackaging changed the recorded input hash")
	}
}

func TestLogArtifactAppendsToProject(t *testing.T) {
	svc, jobs, emu := newTestProvenanceService()
	ctx := context.Background()
	seedCompletedJob(t, jobs, "job-1")

	pkg, err := svc.PackageArtifact(ctx, "job-1")
	if err != nil {
		t.Fatalf("package failed: %v", err)
	}

	project, err := svc.CreateProject(ctx, &model.CreateProjectRequest{
		Owner: "0xlab",
		Name:  "tox-screen",
	})
	if err != nil {
		t.Fatalf("create project failed: %v", err)
	}

	resp, err := svc.LogArtifact(ctx, &model.LogAppendRequest{
		ProjectID:      project.ID,
		Agent:          "ld50-analyzer-v1",
		Title:          "LD50 report",
		ContentAddress: pkg.ContentAddress,
		Wait:           true,
	})
	if err != nil {
		t.Fatalf("log failed: %v", err)
	}
	if resp.Status != model.TxStatusSealed {
		t.Fatalf("expected sealed, got %s", resp.Status)
	}

	got, err := emu.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("project lookup: %v", err)
	}
	if len(got.Log) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(got.Log))
	}
	if got.Log[0].ContentAddress != pkg.ContentAddress {
		t.Fatalf("log address %q, want %q", got.Log[0].ContentAddress, pkg.ContentAddress)
	}
}

func TestLogArtifactUnknownProject(t *testing.T) {
	svc, _, _ := newTestProvenanceService()

	_, err := svc.LogArtifact(context.Background(), &model.LogAppendRequest{
		ProjectID:      "no-such-project",
		Agent:          "ld50-analyzer-v1",
		Title:          "LD50 report",
		ContentAddress: "sha256:deadbeef",
	})
	if !errors.Is(err, ledger.ErrProjectNotFound) {
		t.Fatalf("expected project not found, got %v", err)
	}
}

func TestLogArtifactRejectedTransaction(t *testing.T) {
	svc, _, emu := newTestProvenanceService()
	ctx := context.Background()

	project, err := svc.CreateProject(ctx, &model.CreateProjectRequest{
		Owner: "0xlab",
		Name:  "tox-screen",
	})
	if err != nil {
		t.Fatalf("create project failed: %v", err)
	}

	emu.RejectNextAppend("log length conflict")

	_, err = svc.LogArtifact(ctx, &model.LogAppendRequest{
		ProjectID:      project.ID,
		Agent:          "ld50-analyzer-v1",
		Title:          "LD50 report",
		ContentAddress: "sha256:deadbeef",
	})
	if !errors.Is(err, ErrTransaction) {
		t.Fatalf("expected transaction error, got %v", err)
	}

	got, err := emu.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("project lookup: %v", err)
	}
	if len(got.Log) != 0 {
		t.Fatalf("rejected append must not grow the log, got %d entries", len(got.Log))
	}
}

func TestDeriveStatusLogged(t *testing.T) {
	svc, jobs, _ := newTestProvenanceService()
	ctx := context.Background()
	seedCompletedJob(t, jobs, "job-1")

	pkg, err := svc.PackageArtifact(ctx, "job-1")
	if err != nil {
		t.Fatalf("package failed: %v", err)
	}

	project, err := svc.CreateProject(ctx, &model.CreateProjectRequest{
		Owner: "0xlab",
		Name:  "tox-screen",
	})
	if err != nil {
		t.Fatalf("create project failed: %v", err)
	}

	status := &model.StatusResponse{
		JobID:  "job-1",
		Status: model.JobStatusCompleted,
	}

	// Not logged yet: status stays completed.
	derived, err := svc.DeriveStatus(ctx, status, pkg.ContentAddress, project.ID)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	if derived != model.JobStatusCompleted {
		t.Fatalf("expected completed before logging, got %s", derived)
	}

	_, err = svc.LogArtifact(ctx, &model.LogAppendRequest{
		ProjectID:      project.ID,
		Agent:          "ld50-analyzer-v1",
		Title:          "LD50 report",
		ContentAddress: pkg.ContentAddress,
		Wait:           true,
	})
	if err != nil {
		t.Fatalf("log failed: %v", err)
	}

	derived, err = svc.DeriveStatus(ctx, status, pkg.ContentAddress, project.ID)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	if derived != model.JobStatusLogged {
		t.Fatalf("expected logged, got %s", derived)
	}
}

func TestResolveProjectViewSummary(t *testing.T) {
	svc, _, _ := newTestProvenanceService()
	ctx := context.Background()

	project, err := svc.CreateProject(ctx, &model.CreateProjectRequest{
		Owner:   "0xlab",
		Name:    "tox-screen",
		Summary: "acute toxicity screening",
	})
	if err != nil {
		t.Fatalf("create project failed: %v", err)
	}

	view, err := svc.ResolveProjectView(ctx, project.ID, model.ViewSummary)
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
	m, ok := view.(map[string]interface{})
	if !ok {
		t.Fatalf("summary view is %T", view)
	}
	if m["name"] != "tox-screen" {
		t.Fatalf("summary name %v", m["name"])
	}

	_, err = svc.ResolveProjectView(ctx, project.ID, model.ProjectViewKind("bogus"))
	if !errors.Is(err, ledger.ErrInvalidView) {
		t.Fatalf("expected invalid view, got %v", err)
	}
}
