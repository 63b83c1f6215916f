package outbound

import (
	"context"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// recommendationHub tracks connected streaming clients and fans out new
// Recommendations to each of them as soon as an Arbiter run completes,
// so collaborators don't have to poll.
type recommendationHub struct {
	mu      sync.Mutex
	clients map[chan []recommendationDTO]struct{}
}

func newRecommendationHub() *recommendationHub {
	return &recommendationHub{clients: make(map[chan []recommendationDTO]struct{})}
}

func (h *recommendationHub) subscribe() chan []recommendationDTO {
	ch := make(chan []recommendationDTO, 4)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *recommendationHub) unsubscribe(ch chan []recommendationDTO) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *recommendationHub) broadcast(recs []recommendationDTO) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- recs:
		default:
			// Slow consumer; drop this update rather than block the
			// broadcaster.
		}
	}
}

// handleRecommendationsStream upgrades the connection to a websocket and
// pushes every subsequent Broadcast call's payload to this client until
// it disconnects.
func (s *Server) handleRecommendationsStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.CloseNow()

	ch := s.hub.subscribe()
	defer s.hub.unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "client context done")
			return
		case recs, ok := <-ch:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, map[string]interface{}{"recommendations": recs})
			cancel()
			if err != nil {
				s.log.Debug().Err(err).Msg("websocket write failed, closing stream")
				return
			}
		}
	}
}
