package admin

import (
	"net/http"
	"time"

	"github.com/amerfu/pllm-gateway/internal/models"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventFeed is the subset of security.Engine the live feed subscribes
// to: newly persisted SecurityEvents, fanned out to every connected
// operator console.
type EventFeed interface {
	Subscribe() chan *models.SecurityEvent
	Unsubscribe(ch chan *models.SecurityEvent)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Admin routes are mounted on the main router; AdminAuth already
	// gated this request, and this handler accepts any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const securityFeedPingInterval = 30 * time.Second

// SecurityStreamHandler upgrades GET /admin/security/events/stream to
// a websocket and relays every newly persisted SecurityEvent to the
// connected operator console in real time — the one place
// gorilla/websocket is exercised under this gateway's narrower HTTP
// surface, grounded in the teacher's realtime-audio use of the same
// dependency.
type SecurityStreamHandler struct {
	baseHandler
	feed EventFeed
}

func NewSecurityStreamHandler(logger *zap.Logger, feed EventFeed) *SecurityStreamHandler {
	return &SecurityStreamHandler{baseHandler: baseHandler{logger: logger}, feed: feed}
}

func (h *SecurityStreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("admin security feed: websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ch := h.feed.Subscribe()
	defer h.feed.Unsubscribe(ch)

	ping := time.NewTicker(securityFeedPingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
