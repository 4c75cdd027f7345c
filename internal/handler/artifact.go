package handler

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/labledger/api/internal/model"
	"github.com/labledger/api/internal/service"
	"github.com/labledger/api/internal/store"
	"github.com/labledger/api/pkg/response"
)

type ArtifactHandler struct {
	service *service.ProvenanceService
}

func NewArtifactHandler(svc *service.ProvenanceService) *ArtifactHandler {
	return &ArtifactHandler{service: svc}
}

// Package handles POST /api/artifact/package/:jobId
func (h *ArtifactHandler) Package(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.PackageArtifact(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		if errors.Is(err, service.ErrNotCompleted) {
			return response.ValidationError(c, "Job not completed yet", nil)
		}
		if errors.Is(err, service.ErrStorage) {
			return response.StorageError(c, err.Error())
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, result)
}

// Verify handles POST /api/artifact/verify
//
// Multipart request: a "manifest" part holding the manifest JSON and a
// "file" part holding the candidate output to re-hash.
func (h *ArtifactHandler) Verify(c *fiber.Ctx) error {
	manifestJSON := c.FormValue("manifest")
	if manifestJSON == "" {
		return response.ValidationError(c, "manifest is required", nil)
	}

	var manifest model.ArtifactManifest
	if err := json.Unmarshal([]byte(manifestJSON), &manifest); err != nil {
		return response.ValidationError(c, "Invalid manifest JSON", nil)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return response.ServiceError(c, "Failed to read file")
	}

	report, err := h.service.VerifyManifest(&manifest, data)
	if err != nil {
		return response.ValidationError(c, err.Error(), nil)
	}

	return response.OK(c, report)
}
