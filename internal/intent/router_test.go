package intent

import (
	"testing"

	"github.com/stretchr/testify/require"

	"restaurant-agent/internal/domain"
)

func TestRoute_TotalAndOneToOne(t *testing.T) {
	seen := map[HandlerID]domain.Intent{}
	for _, i := range domain.Intents() {
		h := Route(i)
		require.Contains(t, Handlers(), h)
		prev, dup := seen[h]
		require.False(t, dup, "%s and %s share handler %s", prev, i, h)
		seen[h] = i
	}
	require.Len(t, seen, len(Handlers()))
}

func TestRoute_Deterministic(t *testing.T) {
	for _, i := range domain.Intents() {
		require.Equal(t, Route(i), Route(i))
	}
	require.Equal(t, HandlerDelivery, Route(domain.IntentDelivery))
	require.Equal(t, HandlerReservation, Route(domain.IntentReservation))
	require.Equal(t, HandlerInfo, Route(domain.IntentInfo))
	require.Equal(t, HandlerMenu, Route(domain.IntentMenu))
}
