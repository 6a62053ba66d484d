package websocket

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// Actions understood or emitted over the admin feed.
const (
	ActionPing  = "ping"
	ActionPong  = "pong"
	ActionError = "error"
)

// Message defines the structure for websocket messages.
type Message struct {
	Action  string `json:"action"`
	Payload any    `json:"payload,omitempty"`
}

// Encode marshals a message. Payloads that cannot be encoded are logged and
// yield nil.
func Encode(action string, payload any) []byte {
	b, err := json.Marshal(Message{Action: action, Payload: payload})
	if err != nil {
		log.Error().Err(err).Str("action", action).Msg("Failed to encode websocket message")
		return nil
	}
	return b
}

// NewErrorMessage builds an error reply for a client.
func NewErrorMessage(message string) []byte {
	return Encode(ActionError, map[string]string{"message": message})
}
