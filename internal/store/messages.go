package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/crewdesk/crewdesk/internal/delegation"
)

// PostMessage appends a message to a channel's log. Requests carry
// is_request=true and response_status=pending; responses and plain
// messages carry neither.
func (s *Store) PostMessage(ctx context.Context, msg *delegation.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	isRequest := msg.Kind == delegation.KindRequest
	var requestID *string
	if msg.RequestID != "" {
		requestID = &msg.RequestID
	}
	var status *string
	if isRequest {
		st := string(delegation.StatusPending)
		status = &st
		msg.Status = delegation.StatusPending
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO messages (id, channel_id, sender_profile_id, content, is_request, request_id, response_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		msg.ID, msg.ChannelID, msg.SenderID, msg.Content, isRequest, requestID, status, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("post message to %s: %w", msg.ChannelID, err)
	}
	return nil
}

// UpdateRequestStatus writes a status onto the request message carrying
// the given request id. Only request messages are updated: the status of
// a delegation lives on the request, never on the response. Repeated
// writes are last-writer-wins.
func (s *Store) UpdateRequestStatus(ctx context.Context, channelID, requestID string, status delegation.Status) error {
	_, err := s.db.Exec(ctx, `
		UPDATE messages SET response_status = $1
		WHERE channel_id = $2 AND request_id = $3 AND is_request`,
		string(status), channelID, requestID,
	)
	if err != nil {
		return fmt.Errorf("update request %s status: %w", requestID, err)
	}
	return nil
}

// GetChannelMessages returns a channel's messages in append order, up to
// limit (0 means no limit).
func (s *Store) GetChannelMessages(ctx context.Context, channelID string, limit int) ([]*delegation.Message, error) {
	q := `
		SELECT id, channel_id, sender_profile_id, content, is_request,
		       COALESCE(request_id, ''), COALESCE(response_status, ''), created_at
		FROM messages WHERE channel_id = $1 ORDER BY created_at`
	args := []interface{}{channelID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages in %s: %w", channelID, err)
	}
	defer rows.Close()

	var msgs []*delegation.Message
	for rows.Next() {
		var (
			m         delegation.Message
			isRequest bool
			status    string
		)
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.SenderID, &m.Content,
			&isRequest, &m.RequestID, &status, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Kind = messageKind(isRequest, m.RequestID)
		m.Status = delegation.Status(status)
		msgs = append(msgs, &m)
	}
	return msgs, nil
}

func messageKind(isRequest bool, requestID string) delegation.MessageKind {
	switch {
	case isRequest:
		return delegation.KindRequest
	case requestID != "":
		return delegation.KindResponse
	default:
		return delegation.KindPlain
	}
}
