package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/meal-sensor/internal/logic"
)

// StatusJSON is the /status response.
type StatusJSON struct {
	Status          string `json:"status"`
	StartTime       string `json:"start_time,omitempty"`
	EndTime         string `json:"end_time,omitempty"`
	Duration        string `json:"duration"`
	DurationSeconds int64  `json:"duration_seconds"`
	Overdue         bool   `json:"overdue"`
	Meals           int    `json:"meals"`
}

// NewStatusJSON converts a snapshot for the wire.
func NewStatusJSON(s Snapshot) StatusJSON {
	out := StatusJSON{
		Status:          string(s.Status),
		Duration:        s.Duration.Truncate(time.Second).String(),
		DurationSeconds: int64(s.Duration / time.Second),
		Overdue:         s.Overdue,
		Meals:           s.Meals,
	}
	if !s.StartTime.IsZero() {
		out.StartTime = s.StartTime.UTC().Format(time.RFC3339)
	}
	if !s.EndTime.IsZero() {
		out.EndTime = s.EndTime.UTC().Format(time.RFC3339)
	}
	return out
}

// Server exposes the collector HTTP API.
type Server struct {
	httpServer *http.Server
	store      *Store
	clock      func() time.Time
}

// NewServer creates the collector server. Requests are logged in Combined Log
// Format to accessLog when it is non-nil.
func NewServer(addr string, store *Store, accessLog io.Writer) *Server {
	s := &Server{store: store, clock: time.Now}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/mealStart", s.handleSignal(logic.EventMealStarted)).Methods(http.MethodGet)
	r.HandleFunc("/mealEnd", s.handleSignal(logic.EventMealEnded)).Methods(http.MethodGet)
	r.HandleFunc("/reset", s.handleReset).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	var h http.Handler = r
	if accessLog != nil {
		h = handlers.CombinedLoggingHandler(accessLog, h)
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handlers.RecoveryHandler()(h),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the root handler, including middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleSignal(event logic.EventType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.store.Apply(event, s.clock(), SourceHTTP); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "%s recorded\n", event)
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.store.Reset(s.clock())
	log.Info("status reset", "remote", r.RemoteAddr)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "status reset")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(NewStatusJSON(s.store.Snapshot(s.clock())))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, NewStatusJSON(s.store.Snapshot(s.clock()))); err != nil {
		log.Error("render dashboard", "err", err)
	}
}

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Meal Monitor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.IN_MEAL { color: green; font-weight: bold; }
.IDLE { color: #888; }
.overdue { color: red; font-weight: bold; }
</style>
</head>
<body>
<h1>Meal Monitor</h1>
<table>
<tr><th>Status</th><td id="status" class="{{.Status}}">{{.Status}}</td></tr>
<tr><th>Started</th><td id="start">{{or .StartTime "-"}}</td></tr>
<tr><th>Ended</th><td id="end">{{or .EndTime "-"}}</td></tr>
<tr><th>Duration</th><td id="duration">{{.Duration}}</td></tr>
<tr><th>Meals</th><td id="meals">{{.Meals}}</td></tr>
</table>
<p id="overdue" class="overdue">{{if .Overdue}}No meal detected within the alert window{{end}}</p>
<form method="post" action="/reset"><button type="submit">Reset</button></form>
<script>
setInterval(function() {
  fetch("/status").then(function(r) { return r.json(); }).then(function(s) {
    var el = document.getElementById("status");
    el.textContent = s.status;
    el.className = s.status;
    document.getElementById("start").textContent = s.start_time || "-";
    document.getElementById("end").textContent = s.end_time || "-";
    document.getElementById("duration").textContent = s.duration;
    document.getElementById("meals").textContent = s.meals;
    document.getElementById("overdue").textContent = s.overdue ? "No meal detected within the alert window" : "";
  }).catch(function() {});
}, 1000);
</script>
</body>
</html>
`))
