package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/haskel/quorum/internal/prediction"
	"github.com/haskel/quorum/internal/server/middleware"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse = middleware.ErrorResponse

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		validation *prediction.ValidationError
		inactive   *prediction.InactiveTestError
		noViable   *prediction.NoViableModelsError
		tooLarge   *http.MaxBytesError
	)

	switch {
	case errors.Is(err, prediction.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &inactive):
		return http.StatusConflict
	case errors.As(err, &noViable):
		return http.StatusUnprocessableEntity
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	middleware.WriteError(w, r, status, err.Error())
}

// badRequest reports a malformed body or parameter.
func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	middleware.WriteError(w, r, http.StatusBadRequest, msg)
}
