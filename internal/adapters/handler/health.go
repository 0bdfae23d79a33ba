package handler

import "net/http"

// HandleHealth reports liveness and database reachability.
func (h *RelayHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			respondWithJSON(w, http.StatusServiceUnavailable, &APIError{
				Code:    "DATABASE_UNAVAILABLE",
				Message: err.Error(),
			})
			return
		}
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
