package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/ziadkadry99/compliance-rag/internal/retrieval"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsRequest is the incoming WebSocket message format.
type wsRequest struct {
	Type     string `json:"type"` // "ask"
	ID       string `json:"id,omitempty"`
	Question string `json:"question"`
	DocID    string `json:"doc_id,omitempty"`
}

// wsResponse is the outgoing WebSocket message format.
type wsResponse struct {
	Type    string               `json:"type"` // "answer" or "error"
	ID      string               `json:"id,omitempty"`
	Answer  string               `json:"answer,omitempty"`
	Sources []retrieval.Citation `json:"sources,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// handleWebSocket answers ask messages until the client disconnects. Each
// question gets its own request timeout.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read", "error", err)
			}
			return
		}

		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			s.sendWS(conn, wsResponse{Type: "error", Error: "invalid message format"})
			continue
		}
		if req.Type != "ask" {
			s.sendWS(conn, wsResponse{Type: "error", ID: req.ID, Error: "unknown message type: " + req.Type})
			continue
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
		ans, err := s.store.Ask(ctx, req.Question, req.DocID)
		cancel()
		switch {
		case err != nil:
			s.sendWS(conn, wsResponse{Type: "error", ID: req.ID, Error: err.Error()})
		case ans.NoDocuments:
			s.sendWS(conn, wsResponse{Type: "error", ID: req.ID, Error: ans.Answer})
		default:
			s.sendWS(conn, wsResponse{Type: "answer", ID: req.ID, Answer: ans.Answer, Sources: ans.Sources})
		}
	}
}

func (s *Server) sendWS(conn *websocket.Conn, resp wsResponse) {
	if err := conn.WriteJSON(resp); err != nil {
		slog.Warn("websocket write", "error", err)
	}
}
