package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/xelth-com/eckpos/internal/buildinfo"
	"github.com/xelth-com/eckpos/internal/connectivity"
	"github.com/xelth-com/eckpos/internal/middleware"
	"github.com/xelth-com/eckpos/internal/session"
	"github.com/xelth-com/eckpos/internal/websocket"
)

// Connectivity is the read side of the connectivity monitor
type Connectivity interface {
	IsOnline() bool
	Status() connectivity.ProbeStatus
	History() []connectivity.Transition
}

// Router wraps the mux router and the services it exposes
type Router struct {
	*mux.Router
	terminalID   string
	connectivity Connectivity
	sessions     *session.Holder
	hub          *websocket.Hub
	sync         *SyncHandler
}

// NewRouter creates the local status server routes
// posHandler may be nil when the till UI talks to the backend itself.
func NewRouter(terminalID string, conn Connectivity, sessions *session.Holder, hub *websocket.Hub, syncHandler *SyncHandler, posHandler *PosHandler) *Router {
	r := &Router{
		Router:       mux.NewRouter(),
		terminalID:   terminalID,
		connectivity: conn,
		sessions:     sessions,
		hub:          hub,
		sync:         syncHandler,
	}
	r.Use(middleware.RequestLogger)

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/connectivity", r.getConnectivity).Methods("GET")
	api.HandleFunc("/session", r.setSession).Methods("PUT")
	api.HandleFunc("/session", r.clearSession).Methods("DELETE")
	syncHandler.RegisterRoutes(api)
	if posHandler != nil {
		posHandler.RegisterRoutes(api)
	}

	r.HandleFunc("/ws", r.serveWs).Methods("GET")

	return r
}

// healthCheck returns the health status of the terminal
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"terminal_id": r.terminalID,
		"online":      r.connectivity.IsOnline(),
		"build":       buildinfo.Current(),
	})
}

func (r *Router) getConnectivity(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"probe":   r.connectivity.Status(),
		"history": r.connectivity.History(),
	})
}

// setSession stores the cashier's backend token for outgoing calls
func (r *Router) setSession(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Token == "" {
		respondError(w, http.StatusBadRequest, "token is required")
		return
	}
	s := session.FromToken(body.Token)
	r.sessions.Set(s)

	resp := map[string]interface{}{"status": "ok"}
	if !s.ExpiresAt.IsZero() {
		resp["expires_at"] = s.ExpiresAt
	}
	respondJSON(w, http.StatusOK, resp)
}

func (r *Router) clearSession(w http.ResponseWriter, req *http.Request) {
	r.sessions.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) serveWs(w http.ResponseWriter, req *http.Request) {
	hello := &websocket.Message{Type: "hello"}
	if status, err := r.sync.manager.Status(req.Context()); err == nil {
		hello.Data = status
	}
	websocket.ServeWs(r.hub, w, req, hello)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
