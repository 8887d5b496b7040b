// Package handlers translates HTTP requests into key-management and signing
// operations and maps the error taxonomy to HTTP statuses.
package handlers

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"frost-node/internal/keys"
	"frost-node/internal/party"
	"frost-node/internal/signing"
)

// Handler carries the node's injected dependencies for all API routes.
type Handler struct {
	keys        *keys.Manager
	coordinator *signing.Coordinator
	registry    *party.Registry
	log         *logrus.Logger
}

// New creates the API handler set.
func New(keyManager *keys.Manager, coordinator *signing.Coordinator, registry *party.Registry, log *logrus.Logger) *Handler {
	return &Handler{
		keys:        keyManager,
		coordinator: coordinator,
		registry:    registry,
		log:         log,
	}
}

// statusFor maps taxonomy errors to HTTP statuses. Unrecognized errors are
// internal failures.
func statusFor(err error) int {
	switch {
	case errors.Is(err, keys.ErrKeyNotFound),
		errors.Is(err, signing.ErrSessionNotFound),
		errors.Is(err, party.ErrPartyNotFound):
		return http.StatusNotFound
	case errors.Is(err, party.ErrAlreadyRegistered),
		errors.Is(err, signing.ErrDuplicateParticipant):
		return http.StatusConflict
	case errors.Is(err, keys.ErrKeyRevoked),
		errors.Is(err, signing.ErrSessionExpired),
		errors.Is(err, signing.ErrSessionTerminal):
		return http.StatusGone
	case errors.Is(err, party.ErrInsufficientParties),
		errors.Is(err, keys.ErrInvalidThreshold),
		errors.Is(err, signing.ErrThresholdTooLow),
		errors.Is(err, signing.ErrNoCommitment),
		errors.Is(err, signing.ErrUnknownParticipant),
		errors.Is(err, signing.ErrShareRejected):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
