package handlers

import (
	"log/slog"
	"strings"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/app/dto"
	businessflow "github.com/CHINMAYKUDALKAR/LINE-sub002/business_flow"
	"github.com/gofiber/fiber/v3"
)

// AutomationHandlerInterface defines the contract for automation handlers
type AutomationHandlerInterface interface {
	Trigger(c fiber.Ctx) error
	CreateRule(c fiber.Ctx) error
	UpdateRule(c fiber.Ctx) error
	ToggleRule(c fiber.Ctx) error
	DeleteRule(c fiber.Ctx) error
	GetRule(c fiber.Ctx) error
	ListRules(c fiber.Ctx) error
}

type AutomationHandler struct {
	baseHandler
	flow businessflow.AutomationFlow
}

func NewAutomationHandler(flow businessflow.AutomationFlow, logger *slog.Logger) *AutomationHandler {
	return &AutomationHandler{baseHandler: newBaseHandler(logger), flow: flow}
}

// Trigger evaluates the tenant's active rules for an event
// @Router /api/v1/automation/triggers [post]
func (h *AutomationHandler) Trigger(c fiber.Ctx) error {
	var req dto.ProcessTriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.Trigger = strings.ToUpper(strings.TrimSpace(req.Trigger))
	if ok, err := h.validate(c, &req); !ok {
		return err
	}
	tenantID, ok, err := h.tenant(c)
	if !ok {
		return err
	}
	req.TenantID = tenantID

	ctx, cancel := h.requestContext(c, "/api/v1/automation/triggers")
	defer cancel()

	resp, err := h.flow.ProcessTrigger(ctx, &req)
	if err != nil {
		return h.flowError(c, err, "Failed to process trigger", "PROCESS_TRIGGER_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Trigger processed", resp)
}

// CreateRule stores a new automation rule
// @Router /api/v1/automation/rules [post]
func (h *AutomationHandler) CreateRule(c fiber.Ctx) error {
	var req dto.CreateAutomationRuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.Trigger = strings.ToUpper(strings.TrimSpace(req.Trigger))
	req.Channel = strings.ToUpper(strings.TrimSpace(req.Channel))
	if ok, err := h.validate(c, &req); !ok {
		return err
	}
	tenantID, ok, err := h.tenant(c)
	if !ok {
		return err
	}
	req.TenantID = tenantID
	req.UserID = h.actingUser(c)

	ctx, cancel := h.requestContext(c, "/api/v1/automation/rules")
	defer cancel()

	item, err := h.flow.CreateRule(ctx, &req)
	if err != nil {
		return h.flowError(c, err, "Failed to create automation rule", "CREATE_RULE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Automation rule created successfully", item)
}

// UpdateRule edits an automation rule
// @Router /api/v1/automation/rules/{id} [put]
func (h *AutomationHandler) UpdateRule(c fiber.Ctx) error {
	var req dto.UpdateAutomationRuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if req.Trigger != nil {
		upper := strings.ToUpper(strings.TrimSpace(*req.Trigger))
		req.Trigger = &upper
	}
	if req.Channel != nil {
		upper := strings.ToUpper(strings.TrimSpace(*req.Channel))
		req.Channel = &upper
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
	req.RuleID = id

	ctx, cancel := h.requestContext(c, "/api/v1/automation/rules/:id")
	defer cancel()

	item, err := h.flow.UpdateRule(ctx, &req)
	if err != nil {
		return h.flowError(c, err, "Failed to update automation rule", "UPDATE_RULE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Automation rule updated successfully", item)
}

// ToggleRule flips a rule between active and inactive
// @Router /api/v1/automation/rules/{id}/toggle [post]
func (h *AutomationHandler) ToggleRule(c fiber.Ctx) error {
	tenantID, ok, err := h.tenant(c)
	if !ok {
		return err
	}
	id, ok, err := h.idParam(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.requestContext(c, "/api/v1/automation/rules/:id/toggle")
	defer cancel()

	item, err := h.flow.ToggleRule(ctx, tenantID, id)
	if err != nil {
		return h.flowError(c, err, "Failed to toggle automation rule", "TOGGLE_RULE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Automation rule toggled", item)
}

// DeleteRule removes an automation rule
// @Router /api/v1/automation/rules/{id} [delete]
func (h *AutomationHandler) DeleteRule(c fiber.Ctx) error {
	tenantID, ok, err := h.tenant(c)
	if !ok {
		return err
	}
	id, ok, err := h.idParam(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.requestContext(c, "/api/v1/automation/rules/:id")
	defer cancel()

	if err := h.flow.DeleteRule(ctx, tenantID, id); err != nil {
		return h.flowError(c, err, "Failed to delete automation rule", "DELETE_RULE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Automation rule deleted", nil)
}

// GetRule returns one automation rule
// @Router /api/v1/automation/rules/{id} [get]
func (h *AutomationHandler) GetRule(c fiber.Ctx) error {
	tenantID, ok, err := h.tenant(c)
	if !ok {
		return err
	}
	id, ok, err := h.idParam(c, "id")
	if !ok {
		return err
	}

	ctx, cancel := h.requestContext(c, "/api/v1/automation/rules/:id")
	defer cancel()

	item, err := h.flow.GetRule(ctx, tenantID, id)
	if err != nil {
		return h.flowError(c, err, "Failed to get automation rule", "GET_RULE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Automation rule retrieved successfully", item)
}

// ListRules returns the tenant's automation rules
// @Router /api/v1/automation/rules [get]
func (h *AutomationHandler) ListRules(c fiber.Ctx) error {
	tenantID, ok, err := h.tenant(c)
	if !ok {
		return err
	}
	req := &dto.ListAutomationRulesRequest{
		TenantID: tenantID,
		Trigger:  queryUpper(c, "trigger"),
		Channel:  queryUpper(c, "channel"),
	}
	if req.IsActive, err = queryBool(c, "is_active"); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query", "INVALID_QUERY", err.Error())
	}
	if ok, err := h.validate(c, req); !ok {
		return err
	}

	ctx, cancel := h.requestContext(c, "/api/v1/automation/rules")
	defer cancel()

	items, err := h.flow.ListRules(ctx, req)
	if err != nil {
		return h.flowError(c, err, "Failed to list automation rules", "LIST_RULES_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Automation rules retrieved successfully", items)
}
