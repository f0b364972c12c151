package server

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/morezero/device-facades/pkg/registry"
	"github.com/morezero/device-facades/pkg/rpc"
)

const httpLogPrefix = "server:http"

// routes builds the HTTP mux for health checks and procedure introspection.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/procedure/", s.handleProcedureDetail())
	mux.HandleFunc("/procedures", s.handleProcedures())
	mux.HandleFunc("/health", s.handleHealth())
	mux.HandleFunc("/ready", handleReady)
	return mux
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := s.reg.Health()
		w.Header().Set("Content-Type", "application/json")
		if h.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(h)
	}
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// handleProcedures serves the introspection listing as JSON. Query parameters
// receiver, q and name map onto DescribeInput.
func (s *Server) handleProcedures() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		out, err := s.reg.Describe(&registry.DescribeInput{
			Name:     q.Get("name"),
			Receiver: q.Get("receiver"),
			Query:    q.Get("q"),
		})
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			if rpc.IsCode(err, rpc.CodeUnknownProcedure) {
				w.WriteHeader(http.StatusNotFound)
			} else {
				w.WriteHeader(http.StatusInternalServerError)
			}
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		if err := json.NewEncoder(w).Encode(out); err != nil {
			slog.Error(fmt.Sprintf("%s - procedures json encode: %v", httpLogPrefix, err))
		}
	}
}

// homePageTemplate is the HTML for the facade home page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Device Facades</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
    .error { color: #cc0000; }
  </style>
</head>
<body>
  <h1>Device Facades</h1>
  <p class="meta">Remotely callable device procedures.</p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    <p>Registry frozen: {{if .Health.Checks.Frozen}}<span class="stat">yes</span>{{else}}<span class="error">no</span>{{end}}</p>
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  <section>
    <h2>Receivers</h2>
    {{if .DescribeError}}
    <p class="error">Could not load procedures: {{.DescribeError}}</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Receiver</th><th>Procedures</th><th>Reentrant</th><th>Description</th></tr>
      </thead>
      <tbody>
        {{range .Describe.Receivers}}
        <tr>
          <td>{{.Name}}</td>
          <td>{{len .Procedures}}</td>
          <td>{{.Reentrant}}</td>
          <td>{{.Description}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>

  <section>
    <h2>Procedures</h2>
    {{if not .DescribeError}}
    <p>Total procedures: <span class="stat">{{.Describe.Total}}</span></p>
    {{if not .Describe.Procedures}}
    <p>No procedures registered.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Procedure</th><th>Receiver</th><th>Version</th><th>Returns</th><th>Description</th></tr>
      </thead>
      <tbody>
        {{range .Describe.Procedures}}
        <tr>
          <td><a href="/procedure/{{.Name}}">{{.Name}}</a></td>
          <td>{{.Receiver}}</td>
          <td>{{.Version}}</td>
          <td>{{.Returns}}</td>
          <td>{{.Description}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
    {{end}}
  </section>
</body>
</html>
`

// procedureDetailPageTemplate is the HTML for a single procedure.
const procedureDetailPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Procedure.Name}} – Device Facades</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    a { color: #0066cc; }
    h1, h2, h3 { color: #0066cc; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; vertical-align: top; }
    th { background: #f0f4f8; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 0.5rem; }
    section { margin-bottom: 2rem; }
    pre { background: #f5f5f5; padding: 0.75rem; overflow-x: auto; font-size: 0.85rem; margin: 0.25rem 0; border: 1px solid #eee; }
    .back { margin-bottom: 1rem; }
  </style>
</head>
<body>
  <p class="back"><a href="/">← Back to procedures</a></p>
  <h1>{{.Procedure.Name}}</h1>
  {{if .Procedure.Description}}<p class="meta">{{.Procedure.Description}}</p>{{end}}

  <section>
    <h2>Details</h2>
    <table>
      <tr><th>Receiver</th><td>{{.Procedure.Receiver}}</td></tr>
      <tr><th>Version</th><td>{{.Procedure.Version}}</td></tr>
      <tr><th>Returns</th><td>{{.Procedure.Returns}}{{if .Procedure.ReturnsDescription}}: {{.Procedure.ReturnsDescription}}{{end}}</td></tr>
    </table>
  </section>

  <section>
    <h2>Parameters</h2>
    {{if not .Procedure.Params}}
    <p>No parameters.</p>
    {{else}}
    <table>
      <thead>
        <tr><th>Name</th><th>Type</th><th>Kind</th><th>Default</th><th>Description</th></tr>
      </thead>
      <tbody>
        {{range .Procedure.Params}}
        <tr>
          <td>{{.Name}}</td>
          <td>{{.Type}}</td>
          <td>{{.Kind}}</td>
          <td>{{if eq .Kind.String "default"}}{{json .Default}}{{end}}</td>
          <td>{{.Description}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>
    {{end}}
  </section>

  <section>
    <h2>Example request</h2>
    <pre>{{json .Example}}</pre>
  </section>
</body>
</html>
`

// homeData is the data passed to the home page template.
type homeData struct {
	Health        *registry.HealthOutput
	Describe      *registry.DescribeOutput
	DescribeError string
}

// handleHome returns an HTTP handler for the home page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		data := homeData{Health: s.reg.Health()}
		describe, err := s.reg.Describe(&registry.DescribeInput{})
		if err != nil {
			data.DescribeError = err.Error()
		} else {
			data.Describe = describe
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", httpLogPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

// procedureDetailData is the data passed to the procedure detail page template.
type procedureDetailData struct {
	Procedure registry.ProcedureDescription
	Example   map[string]interface{}
}

// exampleRequest builds a sample RPC envelope that passes every parameter by name.
func exampleRequest(p registry.ProcedureDescription) map[string]interface{} {
	named := make(map[string]interface{}, len(p.Params))
	for _, ps := range p.Params {
		switch {
		case ps.Default != nil:
			named[ps.Name] = ps.Default
		case ps.Kind == rpc.OptionalNullable:
			named[ps.Name] = nil
		default:
			named[ps.Name] = sampleValue(ps.Type)
		}
	}
	return map[string]interface{}{
		"id":     "1",
		"method": p.Name,
		"params": named,
	}
}

func sampleValue(t rpc.Type) interface{} {
	switch t {
	case rpc.Integer:
		return 0
	case rpc.Boolean:
		return false
	case rpc.String:
		return ""
	case rpc.Double:
		return 0.0
	case rpc.Object:
		return map[string]interface{}{}
	}
	return nil
}

// handleProcedureDetail returns an HTTP handler for /procedure/<name>. A
// trailing .json serves the description as JSON.
func (s *Server) handleProcedureDetail() http.HandlerFunc {
	tmpl := template.Must(template.New("procedureDetail").Funcs(template.FuncMap{
		"json": func(v interface{}) string {
			b, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return fmt.Sprintf("%v", v)
			}
			return string(b)
		},
	}).Parse(procedureDetailPageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/procedure/")
		if name == "" {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		if unescaped, err := url.PathUnescape(name); err == nil {
			name = unescaped
		}
		asJSON := strings.HasSuffix(name, ".json")
		name = strings.TrimSuffix(name, ".json")

		out, err := s.reg.Describe(&registry.DescribeInput{Name: name})
		if err != nil {
			if rpc.IsCode(err, rpc.CodeUnknownProcedure) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(out.Procedures) == 0 {
			http.NotFound(w, r)
			return
		}
		p := out.Procedures[0]

		if asJSON {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(p); err != nil {
				slog.Error(fmt.Sprintf("%s - procedure json encode: %v", httpLogPrefix, err))
			}
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, procedureDetailData{Procedure: p, Example: exampleRequest(p)}); err != nil {
			slog.Error(fmt.Sprintf("%s - procedure detail template execute: %v", httpLogPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
