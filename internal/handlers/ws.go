// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/talespin-gg/talespin/internal/middleware"
	"github.com/talespin-gg/talespin/internal/room"
)

// maxNameLength bounds the display name accepted at handshake time.
const maxNameLength = 30

// writeTimeout bounds a single socket write so a stalled peer cannot wedge
// the pump.
const writeTimeout = 5 * time.Second

// WSHandler upgrades the connection, performs the JoinRoom handshake, seats
// the player, and pumps the session until disconnect.
//
// The first client message must be JoinRoom; anything else is a protocol
// error and terminates the connection. Seat rejections (name taken, room
// full, game started) are answered with a direct ErrorMsg before closing.
func WSHandler(logger *logrus.Logger, reg *room.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler exit")

		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		typ, data, err := c.Read(ctx)
		if err != nil {
			logger.Warnf("handshake read error: %v", err)
			return
		}
		if typ != websocket.MessageText {
			c.Close(websocket.StatusPolicyViolation, "expected a text JoinRoom message")
			return
		}

		var msg room.ClientMsg
		if err := json.Unmarshal(data, &msg); err != nil || msg.JoinRoom == nil {
			c.Close(websocket.StatusPolicyViolation, "expected a JoinRoom message")
			return
		}

		name := msg.JoinRoom.Name
		if name == "" {
			writeError(c, "Name cannot be empty")
			return
		}
		if utf8.RuneCountInString(name) > maxNameLength {
			writeError(c, "Name too long")
			return
		}

		code := strings.ToLower(msg.JoinRoom.RoomID)
		rm := reg.Lookup(code)
		if rm == nil {
			writeMsg(c, room.ServerMsg{InvalidRoomID: &room.InvalidRoomIDMsg{}})
			return
		}
		rm.Touch()

		log := logger.WithFields(logrus.Fields{
			"room":    code,
			"player":  name,
			"conn_id": uuid.New(),
		})

		sess, err := rm.Join(name, cancel)
		if err != nil {
			log.Infof("join rejected: %v", err)
			writeError(c, err.Error())
			return
		}
		log.Info("session attached")

		go writePump(ctx, c, sess, log)
		readPump(ctx, c, rm, name, log)

		rm.Leave(name)
		cancel()
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, nil)
		c.Close(websocket.StatusNormalClosure, "session ended")
	}
}

// readPump reads client messages and dispatches them into the room until the
// connection closes or the context is cancelled.
func readPump(ctx context.Context, c *websocket.Conn, rm *room.Room, name string, log *logrus.Entry) {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				log.Info("websocket closed by peer")
			} else if ctx.Err() != nil {
				log.Info("session cancelled")
			} else {
				log.Warnf("read error: %v (status %d)", err, status)
			}
			return
		}
		if typ != websocket.MessageText {
			log.Warnf("ignoring non-text message type %d", typ)
			continue
		}
		rm.HandleClientMsg(name, data)
	}
}

// writePump forwards broadcast and direct messages to the socket. Channel
// closure (the room detached the session) or a write failure ends the pump.
func writePump(ctx context.Context, c *websocket.Conn, sess *room.Session, log *logrus.Entry) {
	for {
		var (
			msg room.ServerMsg
			ok  bool
		)
		select {
		case <-ctx.Done():
			return
		case msg, ok = <-sess.Broadcast:
		case msg, ok = <-sess.Direct:
		}
		if !ok {
			return
		}
		if err := writeMsg(c, msg); err != nil {
			log.Warnf("write error: %v", err)
			return
		}
	}
}

// writeMsg marshals and sends one server message with a write timeout.
func writeMsg(c *websocket.Conn, msg room.ServerMsg) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return c.Write(writeCtx, websocket.MessageText, data)
}

func writeError(c *websocket.Conn, text string) {
	_ = writeMsg(c, room.ServerMsg{ErrorMsg: &text})
}
