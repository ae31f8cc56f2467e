// Package apierrors provides HTTP error handling utilities for the broker's
// two endpoints, adapted verbatim in shape from the teacher's
// pkg/api/errors: handlers return an error instead of writing status codes
// inline, and a single decorator translates that error into a response.
package apierrors

import (
	"net/http"

	"github.com/stacklok/loolbrokerd/pkg/errors"
	"github.com/stacklok/loolbrokerd/pkg/logger"
)

// HandlerWithError is an HTTP handler that can return an error. This
// signature lets handlers return errors instead of manually writing error
// responses, enabling centralized error handling.
type HandlerWithError func(http.ResponseWriter, *http.Request) error

// ErrorHandler wraps a HandlerWithError and converts returned errors into
// appropriate HTTP responses.
//
// The decorator:
//   - Returns early if no error is returned (handler already wrote the
//     response)
//   - Extracts the HTTP status code from the error using errors.Code()
//   - For 5xx errors: logs full error details, returns a generic message
//   - For 4xx errors: returns the error message to the client
func ErrorHandler(fn HandlerWithError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		code := errors.Code(err)
		if code >= http.StatusInternalServerError {
			logger.Errorf("internal server error: %v", err)
			http.Error(w, http.StatusText(code), code)
			return
		}
		http.Error(w, err.Error(), code)
	}
}
