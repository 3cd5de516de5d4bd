package server

import (
	"encoding/json"
	"net/http"

	"github.com/agentic-research/genframe/api"
)

// Error categories reported in api.Error.Code.
const (
	codeValidation      = "validation"
	codeNotFound        = "not_found"
	codeUpstream        = "upstream"
	codeInternal        = "internal"
	codePayloadTooLarge = "payload_too_large"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger().Warn("write response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, summary string, err error) {
	body := api.Error{Code: code, Error: summary}
	if err != nil {
		body.Details = err.Error()
		if status >= http.StatusInternalServerError {
			s.logger().Error(summary, "err", err)
		}
	}
	s.writeJSON(w, status, body)
}
