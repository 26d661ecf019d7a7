package httpapi

import (
	"encoding/json"
	"net/http"
)

// healthResponse is a minimal liveness payload: the process is up and
// able to serve requests. Nothing here checks upstream probe
// reachability, since that varies per scan config rather than per
// process.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(healthResponse{Status: "healthy", Version: s.version})
}
