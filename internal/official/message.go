package official

import (
	"encoding/xml"
	"errors"
	"fmt"
	"time"

	"github.com/silenceper/wechat/v2/officialaccount/message"

	"github.com/spec-kit/official-relay/internal/domain"
)

// ErrMalformedCallback marks a push body that is not a callback XML envelope.
var ErrMalformedCallback = errors.New("malformed callback payload")

// ParseCallbackEvent decodes a plaintext push body.
func ParseCallbackEvent(payload []byte) (domain.CallbackEvent, error) {
	if len(payload) == 0 {
		return domain.CallbackEvent{}, ErrMalformedCallback
	}
	var msg message.MixMessage
	if err := xml.Unmarshal(payload, &msg); err != nil {
		return domain.CallbackEvent{}, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}

	event := domain.CallbackEvent{
		Type:           domain.ParseCallbackEventType(string(msg.Event)),
		SourceIdentity: string(msg.FromUserName),
		AccountID:      string(msg.ToUserName),
		MsgType:        string(msg.MsgType),
		EventKey:       string(msg.EventKey),
	}
	if createTime := int64(msg.CreateTime); createTime > 0 {
		event.CreateTime = time.Unix(createTime, 0)
	}
	return event, nil
}
