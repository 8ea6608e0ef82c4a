// internal/handlers/api.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/talespin-gg/talespin/internal/room"
)

// CreateRoomHandler constructs a fresh room and returns its RoomState
// snapshot so the client can join over the websocket endpoint.
func CreateRoomHandler(logger *logrus.Logger, reg *room.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rm := reg.CreateRoom()
		writeJSON(logger, w, rm.StateSnapshot())
	}
}

// ExistsHandler reports whether a room code is live. The request body is a
// JSON-encoded string; the response is the bare text "true" or "false".
func ExistsHandler(reg *room.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var code string
		if err := json.NewDecoder(r.Body).Decode(&code); err != nil {
			http.Error(w, "expected a JSON string body", http.StatusBadRequest)
			return
		}
		if reg.Lookup(strings.ToLower(code)) != nil {
			w.Write([]byte("true"))
		} else {
			w.Write([]byte("false"))
		}
	}
}

// StatsHandler returns the registry's per-room stats snapshot.
func StatsHandler(logger *logrus.Logger, reg *room.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(logger, w, reg.Stats())
	}
}

// RootHandler is a plain-text liveness response.
func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("talespin server"))
}

func writeJSON(logger *logrus.Logger, w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("writing JSON response: %v", err)
	}
}
