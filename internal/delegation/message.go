// Package delegation implements the request/response protocol head agents
// use to hand tasks to specialists over an append-only channel log, and
// the builder that derives a head agent's delegate tool from the active
// team configuration.
package delegation

import "time"

// MessageKind discriminates messages at the protocol boundary. The store
// persists it as an is-request flag; keeping an explicit variant here
// makes the matching predicate exhaustive.
type MessageKind string

const (
	KindRequest  MessageKind = "request"
	KindResponse MessageKind = "response"
	KindPlain    MessageKind = "plain"
)

// Status is the lifecycle of a delegation request. It is written on the
// request message, never on the response.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusTimeout   Status = "timeout"
	StatusError     Status = "error"
)

// Message is one entry in a channel's append-only log. RequestID links a
// response back to the request it answers; it is empty on plain messages.
type Message struct {
	ID        string      `json:"id"`
	ChannelID string      `json:"channel_id"`
	SenderID  string      `json:"sender_id"`
	Content   string      `json:"content"`
	Kind      MessageKind `json:"kind"`
	RequestID string      `json:"request_id,omitempty"`
	Status    Status      `json:"status,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
