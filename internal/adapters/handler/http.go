package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator"

	"github.com/ostraco/sendonce/internal/relay"
)

// RelayService is the slice of the relay service the handlers consume.
type RelayService interface {
	Submit(ctx context.Context, requestID string, payload json.RawMessage) (*relay.Job, error)
	Status(ctx context.Context, requestID string) (*relay.Job, error)
}

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RelayHandler struct {
	service  RelayService
	db       Pinger
	validate *validator.Validate
}

func NewRelayHandler(service RelayService, db Pinger) *RelayHandler {
	return &RelayHandler{
		service:  service,
		db:       db,
		validate: validator.New(),
	}
}

func (h *RelayHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/relays", h.HandleSubmit)
	mux.HandleFunc("GET /api/v1/relays/{requestID}", h.HandleStatus)
	mux.HandleFunc("GET /healthz", h.HandleHealth)
}
