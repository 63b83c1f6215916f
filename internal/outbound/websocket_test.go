package outbound

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/sharpline/internal/model"
)

func TestRecommendationHub_BroadcastDeliversToSubscribers(t *testing.T) {
	hub := newRecommendationHub()
	ch := hub.subscribe()
	defer hub.unsubscribe(ch)

	hub.broadcast([]recommendationDTO{{GameID: 1, Market: "moneyline"}})

	select {
	case recs := <-ch:
		require.Len(t, recs, 1)
		require.Equal(t, int64(1), recs[0].GameID)
	case <-time.After(time.Second):
		t.Fatal("expected broadcast to be delivered")
	}
}

func TestRecommendationHub_UnsubscribeClosesChannel(t *testing.T) {
	hub := newRecommendationHub()
	ch := hub.subscribe()
	hub.unsubscribe(ch)

	_, ok := <-ch
	require.False(t, ok)
}

func TestRecommendationHub_SlowConsumerDoesNotBlockBroadcast(t *testing.T) {
	hub := newRecommendationHub()
	ch := hub.subscribe()
	defer hub.unsubscribe(ch)

	for i := 0; i < 10; i++ {
		hub.broadcast([]recommendationDTO{{GameID: int64(i)}})
	}
	// Broadcasting past the buffered channel's capacity must not deadlock
	// the caller; draining once confirms the hub kept making progress.
	<-ch
}

func TestHandleRecommendationsStream_DeliversBroadcastOverWebsocket(t *testing.T) {
	s := newTestServer(t)
	server := httptest.NewServer(s.router)
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):] + "/api/recommendations/stream"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	s.Broadcast([]model.Recommendation{{
		GameID: 1, Market: model.MarketMoneyline, Book: "draftkings", Side: model.SideHome,
		FinalConfidence: 0.7, Rank: 1,
	}})

	var payload map[string]interface{}
	require.NoError(t, wsjson.Read(ctx, conn, &payload))
	recs, ok := payload["recommendations"].([]interface{})
	require.True(t, ok)
	require.Len(t, recs, 1)
}
