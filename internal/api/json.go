package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"cargoplan/internal/obs"
	"cargoplan/internal/planner"
	"cargoplan/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// decodeJSON reads one JSON object into dst, rejecting unknown fields. An
// empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// writeError maps planner and store errors to problem responses.
func writeError(w http.ResponseWriter, r *http.Request, title string, err error) {
	var (
		pre  *planner.PreconditionError
		ext  *planner.ExternalProviderError
		pers *planner.PersistenceError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &pre):
		status = http.StatusBadRequest
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
	case errors.As(err, &ext):
		status = http.StatusBadGateway
	case errors.As(err, &pers):
		status = http.StatusInternalServerError
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= 500 {
		obs.Logger(r.Context()).Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg(title)
	}
	writeProblem(w, status, title, err.Error(), r.URL.Path)
}
