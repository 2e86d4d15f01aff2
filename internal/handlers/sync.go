package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/xelth-com/eckpos/internal/store"
	"github.com/xelth-com/eckpos/internal/sync"
)

// SyncManager is the part of the sync manager the handlers drive
type SyncManager interface {
	Status(ctx context.Context) (*sync.Status, error)
	RunPass(ctx context.Context) (*sync.PassResult, error)
	Trigger()
	RequeueStuck(ctx context.Context) (int, error)
	Discard(ctx context.Context, id uint) error
}

// SyncHandler handles synchronization requests
type SyncHandler struct {
	manager SyncManager
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(manager SyncManager) *SyncHandler {
	return &SyncHandler{manager: manager}
}

// RegisterRoutes registers sync routes
func (sh *SyncHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/sync/status", sh.GetSyncStatus).Methods("GET")
	r.HandleFunc("/sync/trigger", sh.TriggerSync).Methods("POST")
	r.HandleFunc("/sync/requeue", sh.RequeueStuck).Methods("POST")
	r.HandleFunc("/sync/queue/{id}", sh.DiscardItem).Methods("DELETE")
}

// GetSyncStatus returns pending counts, watermarks and the last pass
func (sh *SyncHandler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := sh.manager.Status(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// TriggerSync schedules a pass. With ?wait=true it runs the pass and returns its result.
func (sh *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("wait") != "true" {
		sh.manager.Trigger()
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
		return
	}

	result, err := sh.manager.RunPass(r.Context())
	if errors.Is(err, sync.ErrSyncInProgress) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// RequeueStuck gives stuck items a fresh set of retries
func (sh *SyncHandler) RequeueStuck(w http.ResponseWriter, r *http.Request) {
	n, err := sh.manager.RequeueStuck(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"requeued": n})
}

// DiscardItem drops one queued write
func (sh *SyncHandler) DiscardItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid queue item id")
		return
	}

	err = sh.manager.Discard(r.Context(), uint(id))
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
