package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestPublisher_TurnCompleted(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sub := client.Subscribe(context.Background(), ChannelMessageCreated)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	p, err := NewPublisher(client)
	require.NoError(t, err)
	fixed := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	require.NoError(t, p.TurnCompleted(context.Background(), 7, 42, "menu"))

	select {
	case msg := <-sub.Channel():
		var evt MessageCreated
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &evt))
		require.NotEmpty(t, evt.EventID)
		require.Equal(t, int64(7), evt.UserID)
		require.Equal(t, int64(42), evt.ConversationID)
		require.Equal(t, "turn", evt.Type)
		require.Equal(t, "menu", evt.Intent)
		require.True(t, fixed.Equal(evt.OccurredAt))
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestPublisher_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	p, err := NewPublisher(client)
	require.NoError(t, err)
	err = p.TurnCompleted(context.Background(), 1, 1, "info")
	require.ErrorContains(t, err, "events: publish")
}

func TestNewPublisher_NilClient(t *testing.T) {
	_, err := NewPublisher(nil)
	require.Error(t, err)
}
