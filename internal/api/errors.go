package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "github.com/emp-backend/internal/errors"
	"github.com/emp-backend/internal/logging"
)

// ErrorBody is the error payload returned to clients
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// respondError sends the categorized form of err. System errors are logged
// with their cause and reported to the client without it.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	catErr := apperrors.Categorize(err)

	if apperrors.IsSystemError(catErr) {
		logging.FromContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
			"code":   catErr.Code,
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("Request failed")
	}

	respondJSON(w, catErr.StatusCode, ErrorResponse{
		Error: ErrorBody{
			Code:    catErr.Code,
			Message: catErr.Message,
			Details: catErr.Details,
		},
	})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// maxBodyBytes caps the size of a JSON request body
const maxBodyBytes = 1 << 20

// parseJSONBody parses a single JSON value from the request body, rejecting
// unknown fields, trailing data and bodies over maxBodyBytes.
func parseJSONBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return bodyError(err)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("unexpected data after JSON value")
		}
		return bodyError(err)
	}
	return nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperrors.NewRequestTooLargeError(tooLarge.Limit)
	}
	return apperrors.NewInvalidBodyError(err)
}
