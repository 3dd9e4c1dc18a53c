package api

import (
    "net/http"
    "time"

    "cargoplan/internal/buildinfo"
)

// DebugHandler handles GET /debug/info: build, clock and the non-secret
// runtime settings the server was started with.
func (s *Server) DebugHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    checks := make([]string, 0, len(s.Checks))
    for name := range s.Checks { checks = append(checks, name) }
    writeJSON(w, 200, map[string]any{
        "build":    buildinfo.Info(),
        "time":     time.Now().UTC().Format(time.RFC3339),
        "settings": s.Settings,
        "checks":   checks,
    })
}
