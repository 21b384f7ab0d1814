package api

import (
	"meet-backend/internal/websocket"
	"net/http"

	"go.uber.org/zap"
)

// @Summary      Account events stream
// @Description  Upgrades to a websocket that receives subscription.updated events for the token's account.
// @Tags         users
// @Param        token  query  string  true  "Access token"
// @Router       /ws [get]
func (s *Server) ServeWsHandler(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		writeError(w, http.StatusUnauthorized, "token is required")
		return
	}

	claims, err := s.verifier.Verify(tokenString)
	if err != nil {
		s.log.Info("websocket token rejected", zap.Error(err))
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	conn, err := websocket.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := websocket.NewClient(s.wsHub, conn, claims.Email)
	if !s.wsHub.Attach(client) {
		conn.Close()
		return
	}

	go client.ReadPump()
	go client.WritePump()
}
