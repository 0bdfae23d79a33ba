package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ostraco/sendonce/internal/relay"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondWithJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := APIResponse{
		Success: status >= 200 && status < 300,
	}

	if response.Success {
		response.Data = data
	} else {
		if apiErr, ok := data.(*APIError); ok {
			response.Error = apiErr
		}
	}

	_ = json.NewEncoder(w).Encode(response)
}

func respondWithError(w http.ResponseWriter, err error) {
	code := "INTERNAL_ERROR"
	message := err.Error()
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, relay.ErrBusy):
		code = "REQUEST_IN_FLIGHT"
		status = http.StatusConflict
	case errors.Is(err, relay.ErrPayloadMismatch):
		code = "IDEMPOTENCY_MISMATCH"
		status = http.StatusBadRequest
	case errors.Is(err, relay.ErrJobNotFound):
		code = "NOT_FOUND"
		status = http.StatusNotFound
	}

	respondWithJSON(w, status, &APIError{
		Code:    code,
		Message: message,
	})
}
