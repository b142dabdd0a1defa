package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "apron API",
		Version:     "v1",
		Description: "Runway and gate scheduling for a single airport",
		Endpoints: []endpointInfo{
			{"/api/v1/queue", []string{"GET", "POST"}, "Waiting flights; POST admits a flight"},
			{"/api/v1/schedule", []string{"POST"}, "Give the highest-priority flight a runway. Optional {\"runway\": n}, 1-based"},
			{"/api/v1/flights", []string{"GET"}, "Flights holding or waiting for a runway or gate"},
			{"/api/v1/flights/{id}", []string{"GET"}, "Any admitted flight"},
			{"/api/v1/flights/{id}/gate", []string{"POST"}, "Assign a gate to a landed arrival. Optional {\"gate\": n}, 1-based"},
			{"/api/v1/runways", []string{"GET"}, "Runway availability"},
			{"/api/v1/gates", []string{"GET"}, "Gate availability"},
			{"/api/v1/movements", []string{"GET"}, "Movement journal. Query: limit, offset, flight_id"},
			{"/api/v1/health", []string{"GET"}, "Server health, version and counts"},
		},
	})
}
