// Package protocol defines the WebSocket message protocol between the chat client and the chat backend.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Sentinel marks the end of a streamed answer.
const Sentinel = "[DONE]"

// DefaultPath is the backend route serving the chat channel.
const DefaultPath = "/ws/chat"

// Question is the only message sent from client to backend.
type Question struct {
	Question string `json:"question"`
}

// Encode marshals the question into a single text frame payload.
func (q Question) Encode() ([]byte, error) {
	data, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("encode question: %w", err)
	}
	return data, nil
}

// DecodeQuestion parses an inbound frame on the backend side.
func DecodeQuestion(data []byte) (Question, error) {
	var q Question
	if err := json.Unmarshal(data, &q); err != nil {
		return Question{}, fmt.Errorf("decode question: %w", err)
	}
	return q, nil
}

// Empty reports whether the question carries no text.
func (q Question) Empty() bool {
	return strings.TrimSpace(q.Question) == ""
}

// IsSentinel reports whether a raw fragment terminates the current answer.
// The comparison is exact; no trimming is applied.
func IsSentinel(fragment string) bool {
	return fragment == Sentinel
}
