package ws

import (
	"log/slog"
	"net/http"

	"campus/internal/auth"

	"github.com/gorilla/websocket"
)

type Server struct {
	auth     *auth.Service
	hub      *Hub
	upgrader *websocket.Upgrader
}

func NewServer(auth *auth.Service, hub *Hub) *Server {
	return &Server{
		auth: auth,
		hub:  hub,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
	}
}

// HandleConnections authenticates the handshake and hands the upgraded
// socket to a Connection. The credential is "Bearer <token>", carried
// in the Authorization header or, for browser websocket clients that
// cannot set headers, in the token query parameter.
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	bearer := r.Header.Get("Authorization")
	if bearer == "" {
		bearer = r.URL.Query().Get("token")
	}

	claims, err := s.auth.ParseBearer(bearer)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	sess := s.hub.Register(claims.UserID, claims.Role)
	if err := NewConnection(s.hub, conn, sess).Handle(r.Context()); err != nil {
		slog.Warn("websocket session ended", "user_id", claims.UserID, "error", err)
	}
}
