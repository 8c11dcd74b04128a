package delegation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageStore persists channel messages and request statuses.
type MessageStore interface {
	PostMessage(ctx context.Context, msg *Message) error
	UpdateRequestStatus(ctx context.Context, channelID, requestID string, status Status) error
}

// ChangeFeed fans out newly appended messages per channel. Subscribe
// delivers messages in append order for one channel; cancelling the
// context releases the subscription and closes the returned channel.
type ChangeFeed interface {
	Publish(ctx context.Context, msg *Message) error
	Subscribe(ctx context.Context, channelID string) <-chan *Message
}

// Directory resolves workspace-scoped agent channels and profiles. A
// missing channel or profile is reported as found=false, not an error.
type Directory interface {
	ResolveAgentChannel(ctx context.Context, workspaceID, agentSlug string) (string, bool, error)
	ResolveAgentProfile(ctx context.Context, workspaceID, agentSlug string) (string, bool, error)
}

// Broker correlates delegation requests with their responses over the
// channel log. Each outstanding request has its own id, subscription, and
// timer; there is no shared state between waiters.
type Broker struct {
	store  MessageStore
	feed   ChangeFeed
	dir    Directory
	logger *zap.Logger
}

// NewBroker creates a delegation broker.
func NewBroker(store MessageStore, feed ChangeFeed, dir Directory, logger *zap.Logger) *Broker {
	return &Broker{store: store, feed: feed, dir: dir, logger: logger}
}

// PostDelegationRequest appends a request message to the target agent's
// channel with status pending, and fans it out on the change feed.
func (b *Broker) PostDelegationRequest(ctx context.Context, channelID, senderID, content, requestID string) error {
	msg := &Message{
		ID:        uuid.New().String(),
		ChannelID: channelID,
		SenderID:  senderID,
		Content:   content,
		Kind:      KindRequest,
		RequestID: requestID,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	return b.post(ctx, msg)
}

// PostResponse appends a specialist's reply to the channel, carrying the
// request id it answers. The response itself has no status; the waiter
// marks the original request completed.
func (b *Broker) PostResponse(ctx context.Context, channelID, senderID, content, requestID string) error {
	msg := &Message{
		ID:        uuid.New().String(),
		ChannelID: channelID,
		SenderID:  senderID,
		Content:   content,
		Kind:      KindResponse,
		RequestID: requestID,
		CreatedAt: time.Now().UTC(),
	}
	return b.post(ctx, msg)
}

func (b *Broker) post(ctx context.Context, msg *Message) error {
	if err := b.store.PostMessage(ctx, msg); err != nil {
		return &TransportError{Op: "post message", Err: err}
	}
	if err := b.feed.Publish(ctx, msg); err != nil {
		return &TransportError{Op: "publish message", Err: err}
	}
	b.logger.Debug("message posted",
		zap.String("channel", msg.ChannelID),
		zap.String("kind", string(msg.Kind)),
		zap.String("request_id", msg.RequestID))
	return nil
}

// UpdateRequestStatus writes a terminal status onto the request message.
func (b *Broker) UpdateRequestStatus(ctx context.Context, channelID, requestID string, status Status) error {
	if err := b.store.UpdateRequestStatus(ctx, channelID, requestID, status); err != nil {
		return &TransportError{Op: "update request status", Err: err}
	}
	return nil
}

// AwaitResponse blocks until a message matching requestID arrives in the
// channel or the timeout elapses. A message matches iff it carries the
// same request id and is not itself a request. The first match wins; the
// subscription is released on every exit path, so a late response has no
// effect on a resolved waiter.
func (b *Broker) AwaitResponse(ctx context.Context, channelID, requestID string, timeout time.Duration) (string, Status, error) {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	feed := b.feed.Subscribe(subCtx, channelID)
	return b.awaitOn(ctx, feed, channelID, requestID, timeout)
}

func (b *Broker) awaitOn(ctx context.Context, feed <-chan *Message, channelID, requestID string, timeout time.Duration) (string, Status, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case msg, ok := <-feed:
			if !ok {
				if ctx.Err() != nil {
					return "", StatusError, ctx.Err()
				}
				return "", StatusError, &TransportError{Op: "subscribe", Err: context.Canceled}
			}
			// Id-exact matching: a request reusing a prior id, or a
			// response for a different waiter, never matches.
			if msg.RequestID != requestID || msg.Kind == KindRequest {
				continue
			}
			if err := b.store.UpdateRequestStatus(ctx, channelID, requestID, StatusCompleted); err != nil {
				b.logger.Warn("mark request completed failed",
					zap.String("request_id", requestID), zap.Error(err))
			}
			return msg.Content, StatusCompleted, nil
		case <-timer.C:
			if err := b.store.UpdateRequestStatus(ctx, channelID, requestID, StatusTimeout); err != nil {
				b.logger.Warn("mark request timeout failed",
					zap.String("request_id", requestID), zap.Error(err))
			}
			return "", StatusTimeout, &TimeoutError{RequestID: requestID, Timeout: timeout}
		case <-ctx.Done():
			// External cancellation: the caller owns the decision to
			// mark the request errored.
			return "", StatusError, ctx.Err()
		}
	}
}

// Delegate posts a request into the target agent's channel on behalf of
// the calling agent and waits for the correlated reply. It subscribes
// before posting so a fast responder cannot slip through unobserved.
// Timeouts are terminal for the minted request id; a retry posts a fresh
// request with a new id.
func (b *Broker) Delegate(ctx context.Context, workspaceID, fromSlug, toSlug, content string, timeout time.Duration) (string, error) {
	channelID, found, err := b.dir.ResolveAgentChannel(ctx, workspaceID, toSlug)
	if err != nil {
		return "", &TransportError{Op: "resolve channel", Err: err}
	}
	if !found {
		return "", ErrUnavailable
	}
	senderID, found, err := b.dir.ResolveAgentProfile(ctx, workspaceID, fromSlug)
	if err != nil {
		return "", &TransportError{Op: "resolve profile", Err: err}
	}
	if !found {
		return "", ErrUnavailable
	}

	requestID := uuid.New().String()
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	feed := b.feed.Subscribe(subCtx, channelID)

	if err := b.PostDelegationRequest(ctx, channelID, senderID, content, requestID); err != nil {
		return "", err
	}
	b.logger.Info("delegation requested",
		zap.String("workspace", workspaceID),
		zap.String("from", fromSlug),
		zap.String("to", toSlug),
		zap.String("request_id", requestID))

	reply, _, err := b.awaitOn(ctx, feed, channelID, requestID, timeout)
	return reply, err
}
