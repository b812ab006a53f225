package server

import "net/http"

const apiVersion = "v1"

type endpointInfo struct {
	Path        string   `json:"path"`
	Description string   `json:"description"`
	Query       []string `json:"query,omitempty"`
}

var endpoints = []endpointInfo{
	{Path: "/api/v1/runs", Description: "Stored runs, newest first", Query: listRunsParams},
	{Path: "/api/v1/runs/{id}", Description: "One run with its per-night summary"},
	{Path: "/api/v1/runs/{id}/timeline", Description: "Timeline entries of a run in night, site, sequence order", Query: timelineParams},
	{Path: "/api/v1/health", Description: "Server health"},
	{Path: "/metrics", Description: "Prometheus metrics"},
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	s.ok(w, r, struct {
		Name      string         `json:"name"`
		Version   string         `json:"version"`
		Methods   []string       `json:"methods"`
		Endpoints []endpointInfo `json:"endpoints"`
	}{
		Name:      "nightsched API",
		Version:   apiVersion,
		Methods:   []string{http.MethodGet},
		Endpoints: endpoints,
	})
}
