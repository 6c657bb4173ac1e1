// Package api exposes the operational HTTP surface: publishing registry
// changes, managing hook subscriptions, and inspecting background tasks.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/hubcap/pkg/storage"
	"github.com/platinummonkey/hubcap/pkg/trigger"
)

// Server wires the API handlers onto a single router.
type Server struct {
	router *mux.Router
	log    *logrus.Logger
}

// NewServer creates an API server backed by the given store and change producer.
func NewServer(store storage.Store, producer *trigger.Producer, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	router := mux.NewRouter()

	NewChangeHandlers(producer, store, log).RegisterRoutes(router)
	NewHookHandlers(store, log).RegisterRoutes(router)
	NewTaskHandlers(store, log).RegisterRoutes(router)

	return &Server{
		router: router,
		log:    log,
	}
}

// Router returns the underlying router, useful for mounting extra routes.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
