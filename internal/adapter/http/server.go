package http

import (
	"net/http"

	"github.com/clipflow/clipflow/internal/adapter/http/middleware"
	"github.com/clipflow/clipflow/internal/service"
)

type Server struct {
	mux        *http.ServeMux
	handlers   *Handlers
	sseHandler *SSEHandler
}

func NewServer(handlers *Handlers, eventBus *service.EventBus) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:        mux,
		handlers:   handlers,
		sseHandler: NewSSEHandler(eventBus, handlers.queue),
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/upload", s.handlers.Upload())

	s.mux.HandleFunc("GET /api/media/{id}/status", s.handlers.Status())
	s.mux.HandleFunc("GET /api/media/{id}/events", s.sseHandler.Events())

	s.mux.HandleFunc("POST /api/media/{id}/post", s.handlers.Post())
	s.mux.HandleFunc("POST /api/media/{id}/feedback", s.handlers.Feedback())

	s.mux.HandleFunc("DELETE /api/media/{id}", s.handlers.Delete())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	middleware.SecurityHeaders(s.mux).ServeHTTP(w, r)
}
