package balances

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (a *App) setupServer() {
	r := mux.NewRouter()

	r.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) })).Methods("GET")
	r.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if a.running.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(200)
		}
	})).Methods("GET")
	r.HandleFunc("/run", a.handleRun).Methods("POST")

	a.Server = &http.Server{Addr: a.Cfg.Addr, Handler: r}
}

// handleRun triggers a run synchronously and reports its outcome. A trigger
// that arrives mid-run gets 409 rather than queueing: the scheduler will
// cover whatever this trigger wanted.
func (a *App) handleRun(w http.ResponseWriter, req *http.Request) {
	outcome, err := a.RunOnce(req.Context())
	if errors.Is(err, ErrRunInProgress) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		a.Logger.Error("Triggered run failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if encodeErr := json.NewEncoder(w).Encode(map[string]any{
		"startDay":        outcome.StartDay.String(),
		"lastDay":         outcome.LastDay.String(),
		"daysProcessed":   outcome.DaysProcessed,
		"terminatedEarly": outcome.TerminatedEarly,
	}); encodeErr != nil {
		a.Logger.Warn("Unable to write run response", zap.Error(encodeErr))
	}
}
