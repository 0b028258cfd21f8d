package conversation

import "encoding/json"

// Envelope wraps every conversations API response.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// OK returns a successful envelope around data.
func OK(data any) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{Success: true, Data: raw}, nil
}

// Fail returns a failed envelope carrying message.
func Fail(message string) *Envelope {
	return &Envelope{Message: message}
}

// MessagesPage is the data of a messages listing.
type MessagesPage struct {
	ConversationID string     `json:"conversationId"`
	Messages       []*Message `json:"messages"`
}

// DeleteResult is the data of a delete call.
type DeleteResult struct {
	Success bool `json:"success"`
}
