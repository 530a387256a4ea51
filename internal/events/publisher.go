// Package events announces finished chat turns to downstream consumers over
// Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ChannelMessageCreated is the channel every turn event goes to.
const ChannelMessageCreated = "chat.message.created"

const typeTurn = "turn"

// MessageCreated is published once per completed turn.
type MessageCreated struct {
	EventID        string    `json:"event_id"`
	UserID         int64     `json:"user_id"`
	ConversationID int64     `json:"conversation_id"`
	Type           string    `json:"type"`
	Intent         string    `json:"intent,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type publisherAPI interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type Publisher struct {
	client  publisherAPI
	channel string
	now     func() time.Time
}

func NewPublisher(client publisherAPI) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("events: redis client must not be nil")
	}
	return &Publisher{client: client, channel: ChannelMessageCreated, now: time.Now}, nil
}

// TurnCompleted publishes a MessageCreated event for the given turn.
func (p *Publisher) TurnCompleted(ctx context.Context, userID, conversationID int64, intent string) error {
	evt := MessageCreated{
		EventID:        uuid.NewString(),
		UserID:         userID,
		ConversationID: conversationID,
		Type:           typeTurn,
		Intent:         intent,
		OccurredAt:     p.now().UTC(),
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events: encode: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("events: publish %s: %w", p.channel, err)
	}
	return nil
}
