package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xelth-com/examroom/internal/buildinfo"
	"github.com/xelth-com/examroom/internal/middleware"
	"github.com/xelth-com/examroom/internal/websocket"
)

// Pinger reports whether a backing service is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterOptions configures the relay HTTP surface
type RouterOptions struct {
	Secret string
	// Optional dependencies checked by /health
	Database Pinger
	Peers    Pinger
}

// Router wraps the mux router and the relay hub
type Router struct {
	*mux.Router
	hub  *websocket.Hub
	opts RouterOptions
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(hub *websocket.Hub, opts RouterOptions) *Router {
	r := &Router{
		Router: mux.NewRouter(),
		hub:    hub,
		opts:   opts,
	}
	r.Use(middleware.RequestLogger)

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// API routes
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", r.getStatus).Methods("GET")
	NewGraphHandler(hub).RegisterRoutes(api)

	// Relay socket
	ws := middleware.RelayAuth(opts.Secret)(http.HandlerFunc(r.serveWs))
	r.Handle("/ws", ws)

	return r
}

func (r *Router) serveWs(w http.ResponseWriter, req *http.Request) {
	websocket.ServeWs(r.hub, w, req, middleware.ClientID(req.Context()))
}

// healthCheck returns the health status of the relay
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	status := map[string]string{
		"status":   "ok",
		"instance": r.hub.InstanceID(),
	}
	code := http.StatusOK

	check := func(name string, p Pinger) {
		if p == nil {
			return
		}
		if err := p.Ping(req.Context()); err != nil {
			status[name] = err.Error()
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
			return
		}
		status[name] = "ok"
	}
	check("database", r.opts.Database)
	check("peers", r.opts.Peers)

	respondJSON(w, code, status)
}

// getStatus returns the current status
func (r *Router) getStatus(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "running",
		"instance":   r.hub.InstanceID(),
		"clients":    r.hub.ClientCount(),
		"nodes":      r.hub.Graph().Len(),
		"version":    buildinfo.Version,
		"uptime":     buildinfo.Uptime().String(),
		"buildTime":  buildinfo.BuildTime,
		"commitHash": buildinfo.CommitHash,
		"startTime":  buildinfo.StartTime,
	})
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
