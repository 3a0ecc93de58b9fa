package handlers

import (
	"log/slog"
	"strings"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/dto"
	businessflow "github.com/CHINMAYKUDALKAR/LINE-sub002/business_flow"
	"github.com/gofiber/fiber/v3"
)

// TemplateHandlerInterface defines the contract for template handlers
type TemplateHandlerInterface interface {
	Create(c fiber.Ctx) error
	Update(c fiber.Ctx) error
	Delete(c fiber.Ctx) error
	Get(c fiber.Ctx) error
	List(c fiber.Ctx) error
	History(c fiber.Ctx) error
	Preview(c fiber.Ctx) error
}

type TemplateHandler struct {
	baseHandler
	flow businessflow.TemplateFlow
}

func NewTemplateHandler(flow businessflow.TemplateFlow, logger *slog.Logger) *TemplateHandler {
	return &TemplateHandler{baseHandler: newBaseHandler(logger), flow: flow}
}

// Create stores a new template
// @Router /api/v1/templates [post]
func (h *TemplateHandler) Create(c fiber.Ctx) error {
	var req dto.CreateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.Channel = strings.ToUpper(strings.TrimSpace(req.Channel))
	req.Category = strings.ToUpper(strings.TrimSpace(req.Category))
	if ok, err := h.validate(c, &req); !ok {
		return err
	}
	tenantID, ok, err := h.tenant(c)
	if !ok {
		return err
	}
	req.TenantID = tenantID
	req.UserID = h.actingUser(c)

	ctx, cancel := h.requestContext(c, "/api/v1/templates")
	defer cancel()

	item, err := h.flow.Create(ctx, &req)
	if err != nil {
		return h.flowError(c, err, "Failed to create template", "CREATE_TEMPLATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Template created successfully", item)
}

// Update edits a template and archives the previous version
// @Router /api/v1/templates/{id} [put]
func (h *TemplateHandler) Update(c fiber.Ctx) error {
	var req dto.UpdateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if req.Category != nil {
		upper := strings.ToUpper(strings.TrimSpace(*req.Category))
		req.Category = &upper
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}
	tenantID, ok, err := h.tenant(c)
	if !ok {
		return err
	}
	id, ok, err := h.idParam(c, "id")
	if !ok {
		return err
	}
	req.TenantID = tenantID
	req.TemplateID = id
	req.UserID = h.actingUser(c)

	ctx, cancel := h.requestContext(c, "/api/v1/templates/:id")
	defer cancel()

	item, err := h.flow.Update(ctx, &req)
	if err != nil {
		return h.flowError(c, err, "Failed to update template", "UPDATE_TEMPLATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Template updated successfully", item)
}

// Delete deactivates a template
// @Router /api/v1/templates/{id} [delete]
func (h *TemplateHandler) Delete(c fiber.Ctx) error {
	tenantID, ok, err := h.tenant(c)
	if !ok {
		return err
	}
	id, ok, err := h.idParam(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.requestContext(c, "/api/v1/templates/:id")
	defer cancel()

	item, err := h.flow.Deactivate(ctx, tenantID, id)
	if err != nil {
		return h.flowError(c, err, "Failed to delete template", "DELETE_TEMPLATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Template deactivated", item)
}

// Get returns one template
// @Router /api/v1/templates/{id} [get]
func (h *TemplateHandler) Get(c fiber.Ctx) error {
	tenantID, ok, err := h.tenant(c)
	if !ok {
		return err
	}
	id, ok, err := h.idParam(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.requestContext(c, "/api/v1/templates/:id")
	defer cancel()

	item, err := h.flow.Get(ctx, tenantID, id)
	if err != nil {
		return h.flowError(c, err, "Failed to get template", "GET_TEMPLATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Template retrieved successfully", item)
}

// List returns the tenant's templates
// @Router /api/v1/templates [get]
func (h *TemplateHandler) List(c fiber.Ctx) error {
	tenantID, ok, err := h.tenant(c)
	if !ok {
		return err
	}
	req := &dto.ListTemplatesRequest{
		TenantID: tenantID,
		Channel:  queryUpper(c, "channel"),
		Category: queryUpper(c, "category"),
	}
	if req.IsActive, err = queryBool(c, "is_active"); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query", "INVALID_QUERY", err.Error())
	}
	if ok, err := h.validate(c, req); !ok {
		return err
	}

	ctx, cancel := h.requestContext(c, "/api/v1/templates")
	defer cancel()

	items, err := h.flow.List(ctx, req)
	if err != nil {
		return h.flowError(c, err, "Failed to list templates", "LIST_TEMPLATES_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Templates retrieved successfully", items)
}

// History lists archived versions of a template
// @Router /api/v1/templates/{id}/history [get]
func (h *TemplateHandler) History(c fiber.Ctx) error {
	tenantID, ok, err := h.tenant(c)
	if !ok {
		return err
	}
	id, ok, err := h.idParam(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.requestContext(c, "/api/v1/templates/:id/history")
	defer cancel()

	items, err := h.flow.History(ctx, tenantID, id)
	if err != nil {
		return h.flowError(c, err, "Failed to get template history", "TEMPLATE_HISTORY_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Template history retrieved successfully", items)
}

// Preview renders a template against sample data without sending
// @Router /api/v1/templates/preview [post]
func (h *TemplateHandler) Preview(c fiber.Ctx) error {
	var req dto.PreviewTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}
	tenantID, ok, err := h.tenant(c)
	if !ok {
		return err
	}
	req.TenantID = tenantID

	ctx, cancel := h.requestContext(c, "/api/v1/templates/preview")
	defer cancel()

	resp, err := h.flow.Preview(ctx, &req)
	if err != nil {
		return h.flowError(c, err, "Failed to preview template", "PREVIEW_TEMPLATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Template rendered", resp)
}
