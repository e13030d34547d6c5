package websocket

import (
	"log"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/rsheldon/flatmate/internal/auth"
)

// HandleWebSocket returns an HTTP handler that upgrades connections to
// WebSocket and runs them as Hub clients for the caller's home. Callers
// without a home membership are rejected.
func HandleWebSocket(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		homeID := auth.HomeID(r.Context())
		if homeID == 0 {
			http.Error(w, "no home membership", http.StatusForbidden)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // Mobile clients connect from app origins
		})
		if err != nil {
			log.Printf("websocket: accept: %v", err)
			return
		}

		client := NewClient(hub, conn, homeID)
		client.Run(r.Context())
	}
}
