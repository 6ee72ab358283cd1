package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/example/sentinel/internal/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// HandleMonitor streams pipeline events to a websocket client: the recent history first, then
// live events until either side closes.
func HandleMonitor(hub *events.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Error().Err(err).Str("component", "monitor").Msg("failed to upgrade the websocket")
			return
		}
		defer ws.Close()

		id, ch, history := hub.Subscribe()
		defer hub.Unsubscribe(id)
		log.Info().Str("component", "monitor").Str("subscriber", id).Msg("monitor client connected")

		// Reads only serve pongs and close frames.
		done := make(chan struct{})
		ws.SetReadLimit(512)
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		go func() {
			defer close(done)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for _, evt := range history {
			if !send(ws, evt) {
				return
			}
		}

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case evt, ok := <-ch:
				if !ok {
					_ = ws.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
						time.Now().Add(writeWait))
					return
				}
				if !send(ws, evt) {
					return
				}
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-done:
				log.Info().Str("component", "monitor").Str("subscriber", id).Msg("monitor client disconnected")
				return
			case <-c.Request.Context().Done():
				return
			}
		}
	}
}

func send(ws *websocket.Conn, evt events.Event) bool {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(evt); err != nil {
		log.Warn().Err(err).Str("component", "monitor").Msg("failed to write websocket event")
		return false
	}
	return true
}
