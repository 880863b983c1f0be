package chat

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Tyrowin/flux/internal/domain"
)

// Inbound is the frame a client sends. Content is required and must be a
// JSON string; the empty string is accepted.
type Inbound struct {
	Content *string `json:"content"`
}

// Outbound is the frame broadcast for every persisted message.
type Outbound struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	User      string    `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

// ParseInbound extracts the content of a client frame.
func ParseInbound(raw []byte) (string, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return "", fmt.Errorf("%w: %v", ErrParse, err)
	}
	if in.Content == nil {
		return "", fmt.Errorf("%w: missing content", ErrParse)
	}
	return *in.Content, nil
}

// NewOutbound projects a persisted message onto the wire shape.
func NewOutbound(msg domain.Message) Outbound {
	return Outbound{
		ID:        msg.ID,
		Content:   msg.Content,
		User:      msg.Username,
		CreatedAt: msg.CreatedAt.UTC(),
	}
}

// EncodeMessage serializes msg as an Outbound frame.
func EncodeMessage(msg domain.Message) ([]byte, error) {
	return json.Marshal(NewOutbound(msg))
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
