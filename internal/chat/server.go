package chat

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"karaoke-service/internal/session"
)

var upgrader = websocket.Upgrader{
	// Identity comes from the transport layer, not the origin; the service
	// sits behind whatever gateway terminates the public edge.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server exposes the chat transport: a websocket endpoint that feeds the
// command router plus a small read-only HTTP surface over the store.
type Server struct {
	router *Router
	hub    *Hub
	store  *session.Store
}

func NewServer(router *Router, hub *Hub, store *session.Store) *Server {
	return &Server{
		router: router,
		hub:    hub,
		store:  store,
	}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWS)
	r.Get("/sessions/{code}/queue", s.handleSessionQueue)
	r.Get("/sessions/{code}/history", s.handleSessionHistory)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "karaoke-service",
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	caller := Caller{
		ID:   r.URL.Query().Get("user"),
		Name: r.URL.Query().Get("name"),
	}
	if caller.ID == "" {
		writeError(w, http.StatusBadRequest, "user query parameter is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("chat: ws upgrade: %v", err)
		return
	}

	client := &Client{
		hub:    s.hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		done:   make(chan struct{}),
		caller: caller,
		router: s.router,
	}
	s.hub.register <- client

	welcome := map[string]any{
		"type": "welcome",
		"now":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.Marshal(welcome); err == nil {
		client.send <- b
	}

	go client.writePump()
	go client.readPump()
}

func (s *Server) handleSessionQueue(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	items, ok := s.store.QueueByCode(code)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	items, ok := s.store.HistoryByCode(code)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
