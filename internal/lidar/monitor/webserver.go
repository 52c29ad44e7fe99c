package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/nearfilter/internal/lidar/nearfilter"
	"github.com/banshee-data/nearfilter/internal/lidar/pipeline"
	"github.com/banshee-data/nearfilter/internal/monitoring"
)

// Controller is the view of the pipeline the web server needs.
// *pipeline.Runtime implements it.
type Controller interface {
	Latest() *pipeline.Result
	Totals() pipeline.Totals
	StrictPolicy() bool
	SetStrictPolicy(bool)
	FilterConfig() nearfilter.Config
}

// WebServer serves the near filter JSON API and debug charts.
type WebServer struct {
	address string
	ctrl    Controller
	mux     *http.ServeMux
	server  *http.Server
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address    string
	Controller Controller
	// Mux lets callers share one ServeMux with other admin routes. A new
	// one is created when nil.
	Mux *http.ServeMux
}

// NewWebServer creates a web server and registers its routes.
func NewWebServer(config WebServerConfig) *WebServer {
	mux := config.Mux
	if mux == nil {
		mux = http.NewServeMux()
	}
	ws := &WebServer{
		address: config.Address,
		ctrl:    config.Controller,
		mux:     mux,
	}
	ws.setupRoutes()
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           ws.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws
}

// Handler returns the routed handler.
func (ws *WebServer) Handler() http.Handler { return ws.mux }

func (ws *WebServer) setupRoutes() {
	ws.mux.HandleFunc("/health", ws.handleHealth)
	ws.mux.HandleFunc("/api/nearfilter/latest", ws.handleLatest)
	ws.mux.HandleFunc("/api/nearfilter/policy", ws.handlePolicy)
	ws.mux.HandleFunc("/api/nearfilter/totals", ws.handleTotals)
	ws.attachDebugRoutes()
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}
	return nil
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("JSON encoding error: %v", err)
	}
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	ws.writeJSON(w, status, map[string]string{"error": msg})
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"service":   "nearfilter",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleLatest returns the most recent filtered revolution. The point lists
// are omitted unless points=true.
func (ws *WebServer) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	res := ws.ctrl.Latest()
	if res == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no revolution processed yet")
		return
	}
	withPoints, _ := strconv.ParseBool(r.URL.Query().Get("points"))
	if !withPoints {
		trimmed := *res
		trimmed.Kept = nil
		trimmed.Dropped = nil
		res = &trimmed
	}
	ws.writeJSON(w, http.StatusOK, res)
}

type policyResponse struct {
	Strict bool              `json:"strict"`
	Config nearfilter.Config `json:"config"`
}

type policyRequest struct {
	Strict *bool `json:"strict"`
}

// handlePolicy reports (GET) or changes (POST) the strict policy. POST
// accepts a JSON body {"strict": bool} or a form value strict=true|false.
func (ws *WebServer) handlePolicy(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		strict, err := parsePolicyRequest(r)
		if err != nil {
			ws.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		ws.ctrl.SetStrictPolicy(strict)
	default:
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	ws.writeJSON(w, http.StatusOK, policyResponse{
		Strict: ws.ctrl.StrictPolicy(),
		Config: ws.ctrl.FilterConfig(),
	})
}

func parsePolicyRequest(r *http.Request) (bool, error) {
	if r.Header.Get("Content-Type") == "application/json" {
		var req policyRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
			return false, fmt.Errorf("invalid JSON body: %v", err)
		}
		if req.Strict == nil {
			return false, fmt.Errorf("missing 'strict' field")
		}
		return *req.Strict, nil
	}

	v := r.FormValue("strict")
	if v == "" {
		return false, fmt.Errorf("missing 'strict' parameter")
	}
	strict, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid 'strict' value %q", v)
	}
	return strict, nil
}

func (ws *WebServer) handleTotals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	ws.writeJSON(w, http.StatusOK, ws.ctrl.Totals())
}
