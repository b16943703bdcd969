package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"datamarket/pkg/domain"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

var kindStatus = map[domain.Kind]int{
	domain.KindValidation:         http.StatusBadRequest,
	domain.KindAuthorization:      http.StatusForbidden,
	domain.KindStateConflict:      http.StatusConflict,
	domain.KindArithmetic:         http.StatusUnprocessableEntity,
	domain.KindExternalDependency: http.StatusBadGateway,
	domain.KindNotFound:           http.StatusNotFound,
}

// statusFor maps an operation error to its HTTP status. Uncoded errors are
// internal failures.
func statusFor(err error) int {
	if status, ok := kindStatus[domain.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	detail := errorDetail{
		Code:    string(domain.CodeOf(err)),
		Kind:    string(domain.KindOf(err)),
		Message: err.Error(),
	}
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"module", "adapters.httpapi",
			"path", r.URL.Path,
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
		detail.Message = "internal server error"
	}
	writeJSON(w, status, errorBody{Error: detail})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var syntax *json.SyntaxError
		msg := "invalid json body"
		if errors.As(err, &syntax) {
			msg = "malformed json body"
		}
		writeError(w, http.StatusBadRequest, "invalid_body", msg)
		return false
	}
	return true
}
