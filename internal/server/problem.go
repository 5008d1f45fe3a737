package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Problem is an RFC 7807 Problem Details body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

var problemTypes = map[int]struct {
	typeURI string
	title   string
}{
	http.StatusBadRequest:            {"urn:ulap:error:bad-request", "Bad Request"},
	http.StatusUnauthorized:          {"urn:ulap:error:unauthorized", "Unauthorized"},
	http.StatusNotFound:              {"urn:ulap:error:not-found", "Not Found"},
	http.StatusConflict:              {"urn:ulap:error:conflict", "Conflict"},
	http.StatusRequestEntityTooLarge: {"urn:ulap:error:too-large", "Payload Too Large"},
	http.StatusInternalServerError:   {"urn:ulap:error:internal-error", "Internal Server Error"},
	http.StatusBadGateway:            {"urn:ulap:error:device-error", "Bad Gateway"},
	http.StatusServiceUnavailable:    {"urn:ulap:error:service-unavailable", "Service Unavailable"},
	http.StatusGatewayTimeout:        {"urn:ulap:error:timeout", "Gateway Timeout"},
}

// writeProblem writes an RFC 7807 Problem Details response.
func writeProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	pt, ok := problemTypes[status]
	if !ok {
		pt.typeURI = "about:blank"
		pt.title = http.StatusText(status)
	}

	p := Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
