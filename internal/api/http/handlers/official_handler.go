package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/official-relay/internal/api/dto"
	"github.com/spec-kit/official-relay/internal/service"
	apperrors "github.com/spec-kit/official-relay/pkg/util/errorutil"
)

// OfficialHandler exposes platform proxy endpoints.
type OfficialHandler struct {
	service *service.OfficialService
}

// NewOfficialHandler constructs handler.
func NewOfficialHandler(officialService *service.OfficialService) *OfficialHandler {
	return &OfficialHandler{service: officialService}
}

// AccessToken GET /api/official/token.
func (h *OfficialHandler) AccessToken(c *fiber.Ctx) error {
	token, err := h.service.AccessToken(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ok": true, "data": dto.AccessTokenData{AccessToken: token}})
}

// CreateQRCode POST /api/official/qrcode/create.
func (h *OfficialHandler) CreateQRCode(c *fiber.Ctx) error {
	var req dto.CreateQRCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	qr, err := h.service.CreateQRCode(c.UserContext(), req.SceneStr, req.ExpireSeconds)
	if err != nil {
		return err
	}
	return c.JSON(dto.CreateQRCodeResponse{
		OK:            true,
		QRCodeURL:     qr.URL,
		Ticket:        qr.Ticket,
		ExpireSeconds: qr.ExpireSeconds,
	})
}

// SendTemplateMessage POST /api/official/template/send.
func (h *OfficialHandler) SendTemplateMessage(c *fiber.Ctx) error {
	body, err := requestBody(c)
	if err != nil {
		return err
	}
	raw, err := h.service.SendTemplateMessage(c.UserContext(), body)
	if err != nil {
		return err
	}
	return sendRaw(c, raw)
}

// ListFollowers GET /api/official/user/get.
func (h *OfficialHandler) ListFollowers(c *fiber.Ctx) error {
	raw, err := h.service.ListFollowers(c.UserContext(), c.Query("next_openid"))
	if err != nil {
		return err
	}
	return sendRaw(c, raw)
}

// BatchGetUserInfo POST /api/official/user/batchget.
func (h *OfficialHandler) BatchGetUserInfo(c *fiber.Ctx) error {
	body, err := requestBody(c)
	if err != nil {
		return err
	}
	raw, err := h.service.BatchGetUserInfo(c.UserContext(), body)
	if err != nil {
		return err
	}
	return sendRaw(c, raw)
}

// requestBody copies the body out of the fasthttp buffer, which is reused after the handler returns.
func requestBody(c *fiber.Ctx) ([]byte, error) {
	body := append([]byte{}, c.Body()...)
	if len(body) > 0 && !json.Valid(body) {
		return nil, apperrors.NewValidationError("body must be JSON", nil)
	}
	return body, nil
}

func sendRaw(c *fiber.Ctx, raw json.RawMessage) error {
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(raw)
}
