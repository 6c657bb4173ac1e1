package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/hubcap/pkg/hooks"
	"github.com/platinummonkey/hubcap/pkg/httputil"
	"github.com/platinummonkey/hubcap/pkg/storage"
	"github.com/platinummonkey/hubcap/pkg/trigger"
)

// ChangeHandlers serves change ingestion and the change feed.
type ChangeHandlers struct {
	producer *trigger.Producer
	changes  storage.ChangeRepository
	log      *logrus.Logger
}

// NewChangeHandlers creates handlers for the change endpoints.
func NewChangeHandlers(producer *trigger.Producer, changes storage.ChangeRepository, log *logrus.Logger) *ChangeHandlers {
	if log == nil {
		log = logrus.New()
	}
	return &ChangeHandlers{
		producer: producer,
		changes:  changes,
		log:      log,
	}
}

// RegisterRoutes registers change routes on the router.
func (h *ChangeHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/v1/changes", h.produceChange).Methods("POST")
	router.HandleFunc("/v1/changes", h.listChanges).Methods("GET")
}

// ProduceChangeRequest is the body for POST /v1/changes.
type ProduceChangeRequest struct {
	Type       hooks.ChangeType `json:"type"`
	TargetName string           `json:"target_name"`
	Data       json.RawMessage  `json:"data"`
}

func (h *ChangeHandlers) produceChange(w http.ResponseWriter, r *http.Request) {
	var req ProduceChangeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.TargetName == "" {
		httputil.WriteBadRequest(w, "target_name is required")
		return
	}

	change, err := h.producer.ProduceChange(r.Context(), req.Type, req.TargetName, req.Data)
	if err != nil {
		h.log.WithError(err).WithField("target", req.TargetName).Warn("Failed to produce change")
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	httputil.WriteCreated(w, change)
}

func (h *ChangeHandlers) listChanges(w http.ResponseWriter, r *http.Request) {
	since, err := httputil.ParseQueryInt64(r, "since", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	changes, err := h.changes.ListChangesSince(r.Context(), since, limit)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if changes == nil {
		changes = []*hooks.Change{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"since":   since,
		"changes": changes,
	})
}
