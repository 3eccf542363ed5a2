package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"smartbudget/internal/core"
)

// EventProfileRegistered is the type of the message published on a first
// profile save.
const EventProfileRegistered = "profile.registered"

// ProfileRegisteredMessage carries the full profile so the worker does not
// need access to the local store.
type ProfileRegisteredMessage struct {
	Type      string       `json:"type"`
	Profile   core.Profile `json:"profile"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewProfileRegisteredMessage wraps p in a message stamped with the current time
func NewProfileRegisteredMessage(p core.Profile) *ProfileRegisteredMessage {
	return &ProfileRegisteredMessage{
		Type:      EventProfileRegistered,
		Profile:   p,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ProfileRegisteredMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ProfileRegisteredMessageFromJSON decodes a message and checks its type.
func ProfileRegisteredMessageFromJSON(data []byte) (*ProfileRegisteredMessage, error) {
	var msg ProfileRegisteredMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type != EventProfileRegistered {
		return nil, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	if msg.Profile.ID == "" {
		return nil, fmt.Errorf("message has no profile id")
	}
	return &msg, nil
}

// EventProfileDelivered is the type of the message the worker publishes once
// Telegram accepted an announcement.
const EventProfileDelivered = "profile.delivered"

// ProfileDeliveredMessage confirms delivery of one profile announcement.
type ProfileDeliveredMessage struct {
	Type        string    `json:"type"`
	ProfileID   string    `json:"profileId"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

func NewProfileDeliveredMessage(profileID string) *ProfileDeliveredMessage {
	return &ProfileDeliveredMessage{
		Type:        EventProfileDelivered,
		ProfileID:   profileID,
		DeliveredAt: time.Now(),
	}
}

func (m *ProfileDeliveredMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ProfileDeliveredMessageFromJSON decodes a confirmation and checks its type.
func ProfileDeliveredMessageFromJSON(data []byte) (*ProfileDeliveredMessage, error) {
	var msg ProfileDeliveredMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type != EventProfileDelivered {
		return nil, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	if msg.ProfileID == "" {
		return nil, fmt.Errorf("message has no profile id")
	}
	return &msg, nil
}
