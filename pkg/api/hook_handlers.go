package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/hubcap/pkg/hooks"
	"github.com/platinummonkey/hubcap/pkg/httputil"
	"github.com/platinummonkey/hubcap/pkg/storage"
)

// HookHandlers serves hook subscription management.
type HookHandlers struct {
	hooks storage.HookRepository
	log   *logrus.Logger
}

// NewHookHandlers creates handlers for the hook endpoints.
func NewHookHandlers(repo storage.HookRepository, log *logrus.Logger) *HookHandlers {
	if log == nil {
		log = logrus.New()
	}
	return &HookHandlers{
		hooks: repo,
		log:   log,
	}
}

// RegisterRoutes registers hook routes on the router.
func (h *HookHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/v1/hooks", h.createHook).Methods("POST")
	router.HandleFunc("/v1/hooks", h.listHooks).Methods("GET")
	router.HandleFunc("/v1/hooks/{id}", h.getHook).Methods("GET")
	router.HandleFunc("/v1/hooks/{id}", h.deleteHook).Methods("DELETE")
}

// CreateHookRequest is the body for POST /v1/hooks.
type CreateHookRequest struct {
	Type     hooks.HookType `json:"type"`
	OwnerID  string         `json:"owner_id"`
	Name     string         `json:"name"`
	Endpoint string         `json:"endpoint"`
	Secret   string         `json:"secret"`
}

func (h *HookHandlers) createHook(w http.ResponseWriter, r *http.Request) {
	var req CreateHookRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	hook, err := hooks.NewHook(req.Type, req.OwnerID, req.Name, req.Endpoint, req.Secret)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if err := h.hooks.CreateHook(r.Context(), hook); err != nil {
		h.log.WithError(err).WithField("name", hook.Name).Warn("Failed to create hook")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteCreated(w, hook)
}

func (h *HookHandlers) getHook(w http.ResponseWriter, r *http.Request) {
	hookID, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	hook, err := h.hooks.GetHook(r.Context(), hookID)
	if errors.Is(err, storage.ErrHookNotFound) {
		httputil.WriteNotFound(w, "hook not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, hook)
}

func (h *HookHandlers) listHooks(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		httputil.WriteBadRequest(w, "name query parameter is required")
		return
	}

	list, err := h.hooks.ListHooksByName(r.Context(), name)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if list == nil {
		list = []*hooks.Hook{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"name":  name,
		"hooks": list,
	})
}

func (h *HookHandlers) deleteHook(w http.ResponseWriter, r *http.Request) {
	hookID, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.hooks.DeleteHook(r.Context(), hookID); err != nil {
		if errors.Is(err, storage.ErrHookNotFound) {
			httputil.WriteNotFound(w, "hook not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
