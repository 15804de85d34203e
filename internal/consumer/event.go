package consumer

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Inbound event types written by the channel adapter.
const (
	EventFollow   = "follow"
	EventStart    = "start"
	EventMessage  = "message"
	EventPostback = "postback"
)

// InboundEvent one chat webhook event, carried as JSON in the stream's data field.
type InboundEvent struct {
	Type       string `json:"type"`
	UserID     string `json:"user_id"`
	ReplyToken string `json:"reply_token,omitempty"`
	Text       string `json:"text,omitempty"`
	Data       string `json:"data,omitempty"` // postback payload
	Timestamp  int64  `json:"timestamp,omitempty"`
}

func parseEvent(values map[string]interface{}) (*InboundEvent, error) {
	val, ok := values["data"]
	if !ok {
		return nil, fmt.Errorf("missing data field in message")
	}
	str, ok := val.(string)
	if !ok {
		return nil, fmt.Errorf("invalid data format in message")
	}
	var ev InboundEvent
	if err := json.Unmarshal([]byte(str), &ev); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message data: %w", err)
	}
	ev.Type = strings.ToLower(strings.TrimSpace(ev.Type))
	if ev.UserID == "" {
		return nil, fmt.Errorf("event without user_id")
	}
	return &ev, nil
}
