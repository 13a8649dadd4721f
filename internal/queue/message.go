package queue

import (
	"encoding/json"
	"time"
)

// ActionAdvance asks the worker to advance an application until it suspends or finishes.
const ActionAdvance = "advance"

// MessageVersion is the current payload version.
const MessageVersion = 1

// Message is the payload sent to pipeline workers.
type Message struct {
	ApplicationID string `json:"applicationId"`
	RequestID     string `json:"requestId"`
	Action        string `json:"action"`
	EnqueuedAt    string `json:"enqueuedAt"`
	Version       int    `json:"version"`
}

// NewAdvanceMessage builds an advance message stamped with the current time.
func NewAdvanceMessage(applicationID, requestID string) Message {
	return Message{
		ApplicationID: applicationID,
		RequestID:     requestID,
		Action:        ActionAdvance,
		EnqueuedAt:    time.Now().UTC().Format(time.RFC3339),
		Version:       MessageVersion,
	}
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message. A missing action means advance.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if msg.Action == "" {
		msg.Action = ActionAdvance
	}
	return msg, nil
}
