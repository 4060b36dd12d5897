package api

import (
	"errors"
	"net/http"

	"github.com/samcharles93/mechpack/internal/catalogue"
	"github.com/samcharles93/mechpack/internal/cellgroup"
	"github.com/samcharles93/mechpack/internal/checkpoint"
	"github.com/samcharles93/mechpack/internal/mechanism"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// statusFor maps domain errors onto an HTTP status and error type.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, mechanism.ErrFieldSize):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, mechanism.ErrUnknownField),
		errors.Is(err, cellgroup.ErrNotFound),
		errors.Is(err, checkpoint.ErrNotFound),
		errors.Is(err, catalogue.ErrUnknown):
		return http.StatusNotFound, "not_found_error"
	case errors.Is(err, checkpoint.ErrMismatch), errors.Is(err, mechanism.ErrClosed):
		return http.StatusConflict, "conflict_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}
