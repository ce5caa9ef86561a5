package api

import (
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/tbuckley/go-chat-gateway/internal/gateway"
)

// serveWs is the gateway handshake. Every rejection happens on the plain
// HTTP response, before the protocol upgrade: a missing query parameter is
// a 400, a bad or expired token a 401, and a non-member a 403.
func (s *ChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	roomId := r.URL.Query().Get("room")
	token := r.URL.Query().Get("token")
	if roomId == "" || token == "" {
		http.Error(w, "missing room or token", http.StatusBadRequest)
		return
	}

	user, err := s.sessions.Verify(token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	member, err := s.db.IsParticipant(roomId, user.Id)
	if err != nil {
		s.log.Println("participant lookup:", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if !member {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(s.allowedOrigins, origin)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("upgrade:", err)
		return
	}

	client := gateway.NewClient(user, roomId, conn, s.gw, s.log)
	s.gw.Register(client)

	go client.Write()
	go client.Read()
}
