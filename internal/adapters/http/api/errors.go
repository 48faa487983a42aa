package api

import (
	"errors"
	"net/http"

	"github.com/okian/booklend/internal/domain/model"
)

// ErrBadRequest marks malformed input detected at the HTTP edge.
var ErrBadRequest = errors.New("bad request")

const unexpectedError = "Unexpected error"

// statusFor maps a domain error onto an HTTP status and the message a client
// may see. Internal failures never leak their text.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, model.ErrBusinessRule),
		errors.Is(err, model.ErrInvalidArgument),
		errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, unexpectedError
	}
}

type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }
func (e badRequest) Unwrap() error { return ErrBadRequest }

func badRequestf(msg string) error { return badRequest{msg: msg} }
