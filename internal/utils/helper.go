package utils

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

func StrPtr(s string) *string {
	return &s
}

func PtrString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ParseID parses a positive int64 identifier from a path segment.
func ParseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ParseOptionalID parses an optional positive identifier; empty input yields nil.
func ParseOptionalID(s string) (*int64, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, true
	}
	id, ok := ParseID(s)
	if !ok {
		return nil, false
	}
	return &id, true
}

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteJSONError(w http.ResponseWriter, message string, code int) {
	WriteJSON(w, code, map[string]string{"error": message})
}
