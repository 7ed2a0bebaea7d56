package domain

import (
	"strings"
	"time"
)

// CallbackEventType is the lowercased Event field of a platform push.
type CallbackEventType string

const (
	CallbackEventSubscribe CallbackEventType = "subscribe"
	CallbackEventScan      CallbackEventType = "scan"
	CallbackEventOther     CallbackEventType = "other"
)

// ParseCallbackEventType normalizes the raw Event field.
func ParseCallbackEventType(raw string) CallbackEventType {
	switch CallbackEventType(strings.ToLower(strings.TrimSpace(raw))) {
	case CallbackEventSubscribe:
		return CallbackEventSubscribe
	case CallbackEventScan:
		return CallbackEventScan
	default:
		return CallbackEventOther
	}
}

// CallbackEvent is a follow or scan notification pushed by the platform.
type CallbackEvent struct {
	Type           CallbackEventType
	SourceIdentity string
	AccountID      string
	MsgType        string
	EventKey       string
	CreateTime     time.Time
}

// Key classifies the event key.
func (e CallbackEvent) Key() SceneKey {
	return ClassifyEventKey(e.EventKey)
}

// BindingCode returns the binding code carried by a subscribe or scan event.
func (e CallbackEvent) BindingCode() (string, bool) {
	if e.Type != CallbackEventSubscribe && e.Type != CallbackEventScan {
		return "", false
	}
	return e.Key().BindingCode()
}
