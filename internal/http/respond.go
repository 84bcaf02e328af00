package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/splax/expensetracker/internal/apperror"
)

const maxBodyBytes = 1 << 20

type failureBody struct {
	Success bool                  `json:"success"`
	Code    string                `json:"code"`
	Error   string                `json:"error"`
	Errors  []apperror.FieldError `json:"errors,omitempty"`
	Detail  string                `json:"detail,omitempty"`
}

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeFailure is the only place error responses are rendered.
func (r *Router) writeFailure(w http.ResponseWriter, req *http.Request, err error) {
	appErr := apperror.From(err)
	body := failureBody{
		Code:   appErr.Kind.Code(),
		Error:  appErr.Message,
		Errors: appErr.Fields,
	}
	switch appErr.Kind {
	case apperror.KindInternal:
		r.logger.ErrorContext(req.Context(), "request failed", "path", req.URL.Path, "error", err)
		if r.diagnostics && appErr.Err != nil {
			body.Detail = appErr.Err.Error()
		}
	case apperror.KindUnauthenticated:
		r.logger.WarnContext(req.Context(), "authentication rejected", "path", req.URL.Path, "error", err)
	default:
		r.logger.DebugContext(req.Context(), "request rejected", "path", req.URL.Path, "code", body.Code, "error", err)
	}
	writeJSON(w, appErr.Kind.Status(), body)
}

// decodeJSON decodes the request body into dst. Unknown fields are ignored.
func decodeJSON(w http.ResponseWriter, req *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.InvalidField("body", "Request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.InvalidField("body", "Request body is too large")
		}
		return apperror.InvalidField("body", "Invalid JSON body")
	}
	return nil
}
