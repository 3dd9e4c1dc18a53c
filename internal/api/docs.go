package api

import (
    _ "embed"
    "encoding/json"
    "net/http"

    yaml "gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPISpec []byte

// OpenAPIHandler serves the OpenAPI document as YAML, or as JSON for
// /openapi.json.
func (s *Server) OpenAPIHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path == "/openapi.json" {
        js, err := openAPIJSON()
        if err != nil { writeProblem(w, 500, "OpenAPI parse failed", err.Error(), r.URL.Path); return }
        w.Header().Set("Content-Type", "application/json")
        _, _ = w.Write(js)
        return
    }
    w.Header().Set("Content-Type", "application/yaml")
    w.WriteHeader(200)
    _, _ = w.Write(openAPISpec)
}

func openAPIJSON() ([]byte, error) {
    var obj map[string]any
    if err := yaml.Unmarshal(openAPISpec, &obj); err != nil { return nil, err }
    return json.Marshal(obj)
}

// DocsHandler serves a minimal ReDoc page referencing /openapi.yaml
func (s *Server) DocsHandler(w http.ResponseWriter, r *http.Request) {
    w.Header().Set("Content-Type", "text/html; charset=utf-8")
    w.WriteHeader(200)
    _, _ = w.Write([]byte(`<!DOCTYPE html><html><head><title>cargoplan API</title>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <script src="https://cdn.jsdelivr.net/npm/redoc@next/bundles/redoc.standalone.js"></script>
    </head><body>
    <redoc spec-url="/openapi.yaml"></redoc>
    </body></html>`))
}
