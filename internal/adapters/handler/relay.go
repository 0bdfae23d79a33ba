package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/ostraco/sendonce/internal/relay"
)

type RelayRequest struct {
	Payload json.RawMessage `json:"payload" validate:"required"`
}

type JobResponse struct {
	RequestID     string     `json:"request_id"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastError     *string    `json:"last_error,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	ReceiptStatus *string    `json:"receipt_status,omitempty"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func jobResponse(job *relay.Job) *JobResponse {
	return &JobResponse{
		RequestID:     job.RequestID,
		Status:        string(job.Status),
		Attempts:      job.Attempts,
		LastError:     job.LastError,
		NextRetryAt:   job.NextRetryAt,
		ReceiptStatus: job.ReceiptStatus,
		DeliveredAt:   job.DeliveredAt,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
	}
}

// HandleSubmit relays a payload under the Idempotency-Key header. Repeating
// the call with the same key and payload is safe: a finished relay answers
// from its record instead of touching the wire again.
func (h *RelayHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, err)
		return
	}

	var req RelayRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, &APIError{
			Code:    "INVALID_JSON",
			Message: err.Error(),
		})
		return
	}

	requestID := r.Header.Get("Idempotency-Key")
	if requestID == "" {
		respondWithJSON(w, http.StatusBadRequest, &APIError{
			Code:    "VALIDATION_ERROR",
			Message: "Idempotency-Key header is required",
		})
		return
	}

	if err := h.validate.Struct(req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, &APIError{
			Code:    "VALIDATION_ERROR",
			Message: err.Error(),
		})
		return
	}

	job, err := h.service.Submit(r.Context(), requestID, req.Payload)
	if err != nil {
		respondWithError(w, err)
		return
	}

	switch job.Status {
	case relay.StatusPending:
		respondWithJSON(w, http.StatusAccepted, jobResponse(job))
	case relay.StatusFailed:
		message := "receiver rejected the request"
		if job.LastError != nil {
			message = *job.LastError
		}
		respondWithJSON(w, http.StatusUnprocessableEntity, &APIError{
			Code:    "RECEIVER_REJECTED",
			Message: message,
		})
	default:
		respondWithJSON(w, http.StatusOK, jobResponse(job))
	}
}

// HandleStatus returns the job record for a request identifier.
func (h *RelayHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("requestID")
	if requestID == "" {
		respondWithJSON(w, http.StatusBadRequest, &APIError{
			Code:    "MISSING_PARAMETER",
			Message: "requestID is required",
		})
		return
	}

	job, err := h.service.Status(r.Context(), requestID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, jobResponse(job))
}
