package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/official-relay/internal/config"
	"github.com/spec-kit/official-relay/internal/events"
	"github.com/spec-kit/official-relay/internal/official"
)

// NotificationService reacts to binding events.
type NotificationService struct {
	official *OfficialService
	logger   *zap.Logger
	cfg      config.NotificationConfig
}

type templateMessage struct {
	ToUser     string                   `json:"touser"`
	TemplateID string                   `json:"template_id"`
	Data       map[string]templateValue `json:"data"`
}

type templateValue struct {
	Value string `json:"value"`
}

// NewNotificationService creates the service.
func NewNotificationService(officialService *OfficialService, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		official: officialService,
		logger:   logger,
		cfg:      cfg,
	}
}

// HandleStaffBound logs the binding and, when a template is configured,
// confirms it to the newly bound follower.
func (n *NotificationService) HandleStaffBound(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.StaffBoundPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	n.logger.Info("StaffBound",
		zap.String("event_id", event.ID),
		zap.String("staff_id", payload.StaffID),
		zap.String("owner_identity", payload.OwnerIdentity))

	templateID := strings.TrimSpace(n.cfg.BindTemplateID)
	if templateID == "" || n.official == nil {
		return nil
	}

	body, err := json.Marshal(templateMessage{
		ToUser:     payload.OfficialOpenID,
		TemplateID: templateID,
		Data: map[string]templateValue{
			"code":  {Value: payload.Code},
			"time":  {Value: event.Timestamp.Format("2006-01-02 15:04:05")},
			"staff": {Value: payload.OwnerIdentity},
		},
	})
	if err != nil {
		return err
	}

	raw, err := n.official.SendTemplateMessage(ctx, body)
	if err != nil {
		return err
	}
	var apiErr official.APIError
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Code != 0 {
		return &apiErr
	}
	n.logger.Debug("bind confirmation sent", zap.String("event_id", event.ID))
	return nil
}
