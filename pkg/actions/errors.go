package actions

import "encoding/json"

// Error kinds recorded on failed action records. They are persisted as the
// action's error payload and surfaced through the API/CLI.
const (
	ErrorKindUnknownKind = "unknown_kind"
	ErrorKindTimedOut    = "timed_out"
	ErrorKindDidNotStart = "did_not_start"
	ErrorKindHandler     = "handler_error"
	ErrorKindCancelled   = "cancelled"
)

// ErrorPayload is the structured error stored on a failed action.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// NewErrorPayload encodes an error payload for persisting on an action.
func NewErrorPayload(kind, message string) json.RawMessage {
	payload, err := json.Marshal(ErrorPayload{Kind: kind, Message: message})
	if err != nil {
		// ErrorPayload only contains strings; marshalling cannot fail.
		panic(err)
	}
	return payload
}
