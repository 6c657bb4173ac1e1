package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/hubcap/pkg/httputil"
	"github.com/platinummonkey/hubcap/pkg/storage"
)

// TaskHandlers serves read-only task inspection.
type TaskHandlers struct {
	tasks storage.TaskRepository
	log   *logrus.Logger
}

// NewTaskHandlers creates handlers for the task endpoints.
func NewTaskHandlers(repo storage.TaskRepository, log *logrus.Logger) *TaskHandlers {
	if log == nil {
		log = logrus.New()
	}
	return &TaskHandlers{
		tasks: repo,
		log:   log,
	}
}

// RegisterRoutes registers task routes on the router.
func (h *TaskHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/v1/tasks/{bizId}", h.getTask).Methods("GET")
}

func (h *TaskHandlers) getTask(w http.ResponseWriter, r *http.Request) {
	bizID, err := httputil.ParsePathString(r, "bizId")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	task, err := h.tasks.FindTaskByBizID(r.Context(), bizID)
	if errors.Is(err, storage.ErrTaskNotFound) {
		httputil.WriteNotFound(w, "task not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, task)
}
