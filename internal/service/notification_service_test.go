package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/official-relay/internal/config"
	"github.com/spec-kit/official-relay/internal/events"
)

func staffBoundEvent() events.Event {
	return events.NewEvent(events.EventStaffBound, time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC), events.StaffBoundPayload{
		StaffID:        "staff-1",
		OwnerIdentity:  "owner-1",
		OfficialOpenID: "openid-1",
		Code:           "ABC123",
	})
}

func TestStaffBoundWithoutTemplateOnlyLogs(t *testing.T) {
	platform := newFakePlatform(t)
	svc := NewNotificationService(newOfficialService(platform.config()), zap.NewNop(), config.NotificationConfig{})

	require.NoError(t, svc.HandleStaffBound(context.Background(), staffBoundEvent()))
	assert.Zero(t, platform.templateCalls.Load())
}

func TestStaffBoundSendsTemplate(t *testing.T) {
	platform := newFakePlatform(t)
	svc := NewNotificationService(newOfficialService(platform.config()), zap.NewNop(), config.NotificationConfig{BindTemplateID: "tmpl-1"})

	require.NoError(t, svc.HandleStaffBound(context.Background(), staffBoundEvent()))
	require.EqualValues(t, 1, platform.templateCalls.Load())

	var sent templateMessage
	require.NoError(t, json.Unmarshal([]byte(platform.templateBody[0]), &sent))
	assert.Equal(t, "openid-1", sent.ToUser)
	assert.Equal(t, "tmpl-1", sent.TemplateID)
	assert.Equal(t, "ABC123", sent.Data["code"].Value)
	assert.Equal(t, "2024-05-01 08:30:00", sent.Data["time"].Value)
}

func TestStaffBoundSurfacesPlatformError(t *testing.T) {
	platform := newFakePlatform(t)
	platform.templateReply = `{"errcode":40037,"errmsg":"invalid template_id"}`
	svc := NewNotificationService(newOfficialService(platform.config()), zap.NewNop(), config.NotificationConfig{BindTemplateID: "bad"})

	err := svc.HandleStaffBound(context.Background(), staffBoundEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "40037")
}

func TestStaffBoundRejectsForeignPayload(t *testing.T) {
	svc := NewNotificationService(nil, zap.NewNop(), config.NotificationConfig{})
	err := svc.HandleStaffBound(context.Background(), events.NewEvent(events.EventStaffBound, time.Now(), "nope"))
	assert.Error(t, err)
}
