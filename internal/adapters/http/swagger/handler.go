// Package swagger serves the OpenAPI document of the rating API.
package swagger

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Error constants.
var (
	ErrServe   = errors.New("swagger serve failed")
	ErrInvalid = errors.New("invalid openapi document")
)

// Operation is one method and path pair from the document.
type Operation struct {
	Method  string
	Path    string
	Summary string
}

type document struct {
	Info struct {
		Title   string `yaml:"title"`
		Version string `yaml:"version"`
	} `yaml:"info"`
	Paths map[string]map[string]yaml.Node `yaml:"paths"`
}

var httpMethods = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true, "patch": true, "head": true, "options": true,
}

// Operations parses doc and lists its operations sorted by path, then method.
func Operations(doc []byte) ([]Operation, error) {
	var d document
	if err := yaml.Unmarshal(doc, &d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if len(d.Paths) == 0 {
		return nil, fmt.Errorf("%w: no paths", ErrInvalid)
	}

	var ops []Operation
	for path, item := range d.Paths {
		for method, node := range item {
			if !httpMethods[method] {
				continue
			}
			var op struct {
				Summary string `yaml:"summary"`
			}
			if err := node.Decode(&op); err != nil {
				return nil, fmt.Errorf("%w: %s %s: %w", ErrInvalid, method, path, err)
			}
			ops = append(ops, Operation{Method: strings.ToUpper(method), Path: path, Summary: op.Summary})
		}
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Path != ops[j].Path {
			return ops[i].Path < ops[j].Path
		}
		return ops[i].Method < ops[j].Method
	})
	return ops, nil
}

var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html>
  <head><meta charset="utf-8"><title>periodrank API</title></head>
  <body>
    <h1>periodrank API</h1>
    <p><a href="/openapi.yaml">openapi.yaml</a></p>
    <table>
      {{range .}}<tr><td>{{.Method}}</td><td><code>{{.Path}}</code></td><td>{{.Summary}}</td></tr>
      {{end}}
    </table>
  </body>
</html>`))

// Register attaches the API docs routes to mux.
// Routes:
//
//	GET /api-docs      -> HTML index of operations
//	GET /openapi.yaml  -> embedded OpenAPI document
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	ops, err := Operations(OpenAPI)
	if err != nil {
		panic(err)
	}

	mux.HandleFunc("/api-docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := indexTemplate.Execute(w, ops); err != nil {
			http.Error(w, fmt.Errorf("%w: %w", ErrServe, err).Error(), http.StatusInternalServerError)
		}
	})

	mux.HandleFunc("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		_, _ = w.Write(OpenAPI)
	})
}
