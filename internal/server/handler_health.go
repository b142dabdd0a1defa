package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/me/apron/pkg/model"
)

type healthResponse struct {
	Status    string        `json:"status"`
	Version   string        `json:"version"`
	GoVersion string        `json:"go_version"`
	Uptime    string        `json:"uptime"`
	Dispatch  string        `json:"dispatch"`
	Journal   string        `json:"journal"`
	Summary   model.Summary `json:"summary"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	dispatch := "manual"
	if s.dispatch != nil {
		dispatch = "auto"
	}
	journal := "disabled"
	if s.store != nil {
		journal = "sqlite"
	}

	respondOK(w, reqID, healthResponse{
		Status:    "healthy",
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Dispatch:  dispatch,
		Journal:   journal,
		Summary:   s.sched.Reporter().Summary(),
	})
}
