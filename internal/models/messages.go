package models

import "time"

// Button is a selectable option attached to an outgoing message.
// Token is an opaque callback string that must come back unmodified.
type Button struct {
	Label string `json:"label"`
	Token string `json:"token"`
}

// OutgoingMessage is a message to a single chat, optionally with buttons laid out in rows.
type OutgoingMessage struct {
	To      string     `json:"to"`
	Text    string     `json:"text"`
	Buttons [][]Button `json:"buttons,omitempty"`
	HTML    bool       `json:"html,omitempty"`
}

// HasButtons reports whether the message carries at least one button.
func (m OutgoingMessage) HasButtons() bool {
	for _, row := range m.Buttons {
		if len(row) > 0 {
			return true
		}
	}
	return false
}

// Contact carries profile details reported by the transport.
type Contact struct {
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Callback is a button press.
type Callback struct {
	ID         string `json:"id"`          // transport callback id, used to acknowledge the press
	Data       string `json:"data"`        // the button token
	MessageRef string `json:"message_ref"` // message that carried the buttons
}

// InboundEvent is a text message or a button press from a prospect.
type InboundEvent struct {
	ID       string    `json:"id"` // transport-unique id, used for deduplication
	From     string    `json:"from"`
	Contact  Contact   `json:"contact"`
	Text     string    `json:"text,omitempty"`
	Callback *Callback `json:"callback,omitempty"`
	Time     time.Time `json:"time"`
}

// IsCallback reports whether the event is a button press.
func (e InboundEvent) IsCallback() bool {
	return e.Callback != nil
}
