package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/labledger/api/internal/ledger"
	"github.com/labledger/api/internal/model"
	"github.com/labledger/api/internal/service"
	"github.com/labledger/api/pkg/response"
)

type LedgerHandler struct {
	service   *service.ProvenanceService
	validator *validator.Validate
}

func NewLedgerHandler(svc *service.ProvenanceService, v *validator.Validate) *LedgerHandler {
	return &LedgerHandler{
		service:   svc,
		validator: v,
	}
}

// CreateProject handles POST /api/ledger/projects
func (h *LedgerHandler) CreateProject(c *fiber.Ctx) error {
	var req model.CreateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	project, err := h.service.CreateProject(c.Context(), &req)
	if err != nil {
		return response.TransactionError(c, err.Error())
	}

	return response.Created(c, project)
}

// ProjectLog handles GET /api/ledger/projects/:projectId/log
func (h *LedgerHandler) ProjectLog(c *fiber.Ctx) error {
	projectID := c.Params("projectId")
	if projectID == "" {
		return response.ValidationError(c, "Project ID is required", nil)
	}

	project, err := h.service.GetProject(c.Context(), projectID)
	if err != nil {
		if errors.Is(err, ledger.ErrProjectNotFound) {
			return response.NotFound(c, "Project not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, fiber.Map{
		"projectId": project.ID,
		"log":       project.Log,
	})
}

// ProjectView handles GET /api/ledger/projects/:projectId/view/:kind
func (h *LedgerHandler) ProjectView(c *fiber.Ctx) error {
	projectID := c.Params("projectId")
	if projectID == "" {
		return response.ValidationError(c, "Project ID is required", nil)
	}

	kind := model.ProjectViewKind(c.Params("kind"))

	view, err := h.service.ResolveProjectView(c.Context(), projectID, kind)
	if err != nil {
		if errors.Is(err, ledger.ErrProjectNotFound) {
			return response.NotFound(c, "Project not found")
		}
		if errors.Is(err, ledger.ErrInvalidView) {
			return response.ValidationError(c, "Unknown view kind", map[string]interface{}{
				"kind": string(kind),
			})
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, view)
}

// AppendLog handles POST /api/ledger/log
func (h *LedgerHandler) AppendLog(c *fiber.Ctx) error {
	var req model.LogAppendRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.LogArtifact(c.Context(), &req)
	if err != nil {
		if errors.Is(err, ledger.ErrProjectNotFound) {
			return response.NotFound(c, "Project not found")
		}
		if errors.Is(err, service.ErrTransaction) {
			return response.TransactionError(c, err.Error())
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Transaction handles GET /api/ledger/tx/:txId
func (h *LedgerHandler) Transaction(c *fiber.Ctx) error {
	txID := c.Params("txId")
	if txID == "" {
		return response.ValidationError(c, "Transaction ID is required", nil)
	}

	result, err := h.service.GetTransaction(c.Context(), txID)
	if err != nil {
		if errors.Is(err, ledger.ErrTxNotFound) {
			return response.NotFound(c, "Transaction not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}
