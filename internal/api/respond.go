package api

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// errorResponse is the body of every non-validation error.
type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response. detail is shown to the client and
// may be empty.
func (s *Server) writeError(w http.ResponseWriter, status int, message, detail string) {
	s.writeJSON(w, status, errorResponse{Message: message, Error: detail})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// pageParams reads limit and offset, clamping limit to (0, maxLimit].
func pageParams(r *http.Request, defaultLimit, maxLimit int) (limit, offset int) {
	limit = parseIntQuery(r, "limit", defaultLimit)
	offset = parseIntQuery(r, "offset", 0)
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
