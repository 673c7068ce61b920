package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/annel0/world-observer/internal/eventbus"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsSendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Визуализация может жить на другом origin
	},
}

// EventMessage - событие шины в формате websocket
type EventMessage struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Version   int             `json:"version"`
	Payload   json.RawMessage `json:"payload"`
}

func toEventMessage(ev *eventbus.Envelope) EventMessage {
	return EventMessage{
		ID:        ev.ID,
		Type:      ev.EventType,
		Source:    ev.Source,
		Timestamp: ev.Timestamp,
		Version:   ev.Version,
		Payload:   json.RawMessage(ev.Payload),
	}
}

// handleEvents транслирует события шины в websocket.
// ?types=ChunkUpdated,PlayerMoved ограничивает типы.
// Медленный клиент теряет события, а не тормозит шину.
func (rs *RestServer) handleEvents(c *gin.Context) {
	var filter eventbus.Filter
	if raw := c.Query("types"); raw != "" {
		filter.Types = strings.Split(raw, ",")
	}

	send := make(chan []byte, wsSendBuffer)
	done := make(chan struct{})

	sub, err := rs.bus.Subscribe(c.Request.Context(), filter, func(_ context.Context, ev *eventbus.Envelope) {
		msg, err := json.Marshal(toEventMessage(ev))
		if err != nil {
			return
		}
		select {
		case send <- msg:
		case <-done:
		default:
			rs.log.Debug("websocket client too slow, dropping %s", ev.ID)
		}
	})
	if err != nil {
		rs.log.Error("subscribe events: %v", err)
		c.JSON(http.StatusServiceUnavailable, GenericResponse{Message: "шина событий недоступна"})
		return
	}

	// Подписка оформляется до ответа на upgrade: клиент не теряет события после handshake
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sub.Unsubscribe()
		close(done)
		rs.log.Warn("websocket upgrade: %v", err)
		return
	}

	rs.log.Info("📡 Event stream opened for %s", c.ClientIP())
	go rs.writePump(conn, send, done)
	rs.readPump(conn)

	sub.Unsubscribe()
	close(done)
	rs.log.Info("📡 Event stream closed for %s", c.ClientIP())
}

// readPump читает только управляющие сообщения, пока клиент не уйдет
func (rs *RestServer) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				rs.log.Debug("websocket read: %v", err)
			}
			return
		}
	}
}

// writePump отправляет события и пинги
func (rs *RestServer) writePump(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg := <-send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
			return
		}
	}
}
