package sqlite

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts a tailsql console over the store and a JSON
// listing of runs under the tsweb debug index.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+s.path, s.db, &tailsql.DBOptions{
		Label: "Near filter runs",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("nearfilter/runs", "Stored near filter runs with totals (JSON)", http.HandlerFunc(s.handleRuns))
	return nil
}

type runWithTotals struct {
	Run
	Totals RunTotals `json:"totals"`
}

func (s *Store) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.ListRuns(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]runWithTotals, 0, len(runs))
	for _, run := range runs {
		totals, err := s.RunTotals(r.Context(), run.RunID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out = append(out, runWithTotals{Run: run, Totals: totals})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
