package handler

import (
	"errors"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/labledger/api/internal/model"
	"github.com/labledger/api/internal/service"
	"github.com/labledger/api/internal/store"
	"github.com/labledger/api/pkg/response"
)

const maxInputSize = 50 * 1024 * 1024 // 50MB

type AnalysisHandler struct {
	service    *service.AnalysisService
	provenance *service.ProvenanceService

	// defaultProject is used for logged-status derivation when the caller
	// names no project.
	defaultProject string
}

func NewAnalysisHandler(svc *service.AnalysisService, prov *service.ProvenanceService, defaultProject string) *AnalysisHandler {
	return &AnalysisHandler{
		service:        svc,
		provenance:     prov,
		defaultProject: defaultProject,
	}
}

// Submit handles POST /api/analysis/submit
func (h *AnalysisHandler) Submit(c *fiber.Ctx) error {
	analysisType := c.FormValue("type")
	if analysisType == "" {
		return response.ValidationError(c, "type is required", nil)
	}

	inputHash := c.FormValue("inputDataHash")

	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	if file.Size > maxInputSize {
		return response.ValidationError(c, "File size exceeds 50MB limit", map[string]interface{}{
			"maxSize":  maxInputSize,
			"fileSize": file.Size,
		})
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

	result, err := h.service.Submit(c.Context(), file.Filename, data, model.AnalysisType(analysisType), inputHash)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			return response.ValidationError(c, err.Error(), nil)
		}
		if errors.Is(err, service.ErrStorage) {
			return response.StorageError(c, err.Error())
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/analysis/status/:jobId
func (h *AnalysisHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	// Optional projectId lets clients see a completed job as logged once
	// its artifact appears in the project log.
	projectID := c.Query("projectId")
	if projectID == "" {
		projectID = h.defaultProject
	}
	if projectID != "" {
		status, err := h.provenance.DeriveStatus(c.Context(), result, result.ArtifactAddress, projectID)
		if err == nil {
			result.Status = status
		}
	}

	return response.OK(c, result)
}

// Result handles GET /api/analysis/result/:jobId
func (h *AnalysisHandler) Result(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetResult(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		if errors.Is(err, service.ErrNotCompleted) {
			return response.ValidationError(c, "Job not completed yet", nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
