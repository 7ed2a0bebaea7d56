package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/official-relay/internal/api/dto"
	"github.com/spec-kit/official-relay/internal/service"
	apperrors "github.com/spec-kit/official-relay/pkg/util/errorutil"
)

// BindingHandler issues binding codes and reports binding state.
type BindingHandler struct {
	service *service.BindingService
}

// NewBindingHandler constructs handler.
func NewBindingHandler(bindingService *service.BindingService) *BindingHandler {
	return &BindingHandler{service: bindingService}
}

// IssueCode POST /api/official/bind/codes.
func (h *BindingHandler) IssueCode(c *fiber.Ctx) error {
	var req dto.IssueBindingCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	issued, err := h.service.IssueBindingCode(c.UserContext(), req.OwnerIdentity, req.ExpireSeconds)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true, "data": dto.BindingCodeResponse{
		Code:          issued.Code,
		SceneStr:      issued.SceneStr,
		QRCodeURL:     issued.QRCode.URL,
		ExpireSeconds: issued.QRCode.ExpireSeconds,
		ExpiresAt:     issued.ExpiresAt,
	}})
}

// Status GET /api/official/bind/status.
func (h *BindingHandler) Status(c *fiber.Ctx) error {
	staff, err := h.service.BindingStatus(c.UserContext(), c.Query("owner_identity"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ok": true, "data": dto.BindingStatusResponse{
		OwnerIdentity:  staff.OwnerIdentity,
		Bound:          staff.Bound(),
		OfficialOpenID: staff.OfficialOpenID,
		UpdatedAt:      staff.UpdatedAt,
	}})
}
