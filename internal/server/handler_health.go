package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	API       string `json:"api"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Store     string `json:"store"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storeState := "ok"
	if s.store == nil {
		storeState = "unavailable"
	}
	s.ok(w, r, healthResponse{
		Status:    "healthy",
		Version:   "0.1.0",
		API:       apiVersion,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Store:     storeState,
	})
}
