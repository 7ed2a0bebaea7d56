package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishReachesAllHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	boom := errors.New("boom")

	var seen []string
	d.Subscribe(EventStaffBound, func(_ context.Context, e Event) error {
		seen = append(seen, "first")
		return boom
	})
	d.Subscribe(EventStaffBound, func(_ context.Context, e Event) error {
		seen = append(seen, "second:"+e.Payload.(StaffBoundPayload).Code)
		return nil
	})

	event := NewEvent(EventStaffBound, time.Now(), StaffBoundPayload{Code: "ABC"})
	err := d.Publish(context.Background(), event)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first", "second:ABC"}, seen)
	assert.NotEmpty(t, event.ID)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()
	assert.NoError(t, d.Publish(context.Background(), NewEvent(EventStaffBound, time.Now(), nil)))
}
