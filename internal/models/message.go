package models

import "time"

// Message types
const (
	MessageTypeText    = "text"
	MessageTypeButtons = "buttons"
)

// Button one tappable option. Data is the postback payload sent back by the channel.
type Button struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Message engine-built chat payload; transmission is done by the channel.
type Message struct {
	Type    string   `json:"type"`
	Text    string   `json:"text"`
	Buttons []Button `json:"buttons,omitempty"`
}

// TextMessage builds a plain text message.
func TextMessage(text string) *Message {
	return &Message{Type: MessageTypeText, Text: text}
}

// ButtonMessage builds a button card.
func ButtonMessage(text string, buttons ...Button) *Message {
	return &Message{Type: MessageTypeButtons, Text: text, Buttons: buttons}
}

// Message directions in the per-patient log
const (
	DirectionInbound  = "in"
	DirectionOutbound = "out"
)

// LoggedMessage one entry of the bounded per-patient message log.
type LoggedMessage struct {
	Direction string    `json:"direction"`
	Text      string    `json:"text"`
	Type      string    `json:"type,omitempty"`
	At        time.Time `json:"at"`
}
