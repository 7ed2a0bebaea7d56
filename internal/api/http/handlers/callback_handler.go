package handlers

import (
	"runtime/debug"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/official-relay/internal/official"
	"github.com/spec-kit/official-relay/internal/service"
)

const (
	callbackAck     = "success"
	handshakeFailed = "invalid"
)

// CallbackHandler serves the platform push endpoint.
type CallbackHandler struct {
	token   string
	binding *service.BindingService
	logger  *zap.Logger
}

// NewCallbackHandler constructs handler. An empty token makes every handshake fail.
func NewCallbackHandler(token string, binding *service.BindingService, logger *zap.Logger) *CallbackHandler {
	return &CallbackHandler{token: token, binding: binding, logger: logger}
}

// Verify GET /wx/callback.
func (h *CallbackHandler) Verify(c *fiber.Ctx) error {
	ok := official.VerifySignature(h.token, c.Query("timestamp"), c.Query("nonce"), c.Query("signature"))
	if !ok {
		return c.SendString(handshakeFailed)
	}
	return c.SendString(c.Query("echostr"))
}

// Receive POST /wx/callback. The platform retries and eventually disables the
// endpoint unless it reads "success", so every path ends in the ack.
func (h *CallbackHandler) Receive(c *fiber.Ctx) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("callback panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
		c.Status(fiber.StatusOK)
		err = c.SendString(callbackAck)
	}()

	payload := append([]byte(nil), c.Body()...)
	h.binding.HandleCallback(c.UserContext(), payload)
	return nil
}
