package tfhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/brutella/hc/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cloudkucooland/ifthen/registry"
	"github.com/cloudkucooland/ifthen/rule"
	"github.com/cloudkucooland/ifthen/value"
)

// RuleLister reports the installed rules
type RuleLister interface {
	Rules() []rule.Rule
}

// Server is the HTTP control channel
type Server struct {
	reg    *registry.Registry
	rules  RuleLister
	router *mux.Router
	srv    *http.Server
}

type deviceView struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Title    string                 `json:"title"`
	Platform string                 `json:"platform,omitempty"`
	Metrics  map[string]value.Value `json:"metrics"`
}

type ruleView struct {
	ID        string       `json:"id"`
	Device    string       `json:"device"`
	Metric    string       `json:"metric,omitempty"`
	Operator  string       `json:"operator,omitempty"`
	Threshold value.Value  `json:"threshold"`
	Actions   []actionView `json:"actions"`
}

type actionView struct {
	Target           string      `json:"target"`
	Type             string      `json:"type"`
	Kind             string      `json:"kind"`
	Desired          value.Value `json:"desired"`
	SendOnlyOnChange bool        `json:"sendOnlyOnChange"`
}

type setRequest struct {
	Metric string      `json:"metric"`
	Value  value.Value `json:"value"`
}

// New builds the routes; gatherer may be nil to leave out /metrics
func New(addr string, reg *registry.Registry, rules RuleLister, gatherer prometheus.Gatherer) *Server {
	s := &Server{reg: reg, rules: rules}

	r := mux.NewRouter()
	r.HandleFunc("/", homeHandler)
	r.HandleFunc("/devices", s.devicesHandler).Methods("GET")
	r.HandleFunc("/devices/{id}", s.deviceHandler).Methods("GET")
	r.HandleFunc("/devices/{id}/metrics", s.setHandler).Methods("POST")
	r.HandleFunc("/devices/{id}/command/{cmd}", s.commandHandler).Methods("POST")
	r.HandleFunc("/rules", s.rulesHandler).Methods("GET")
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	s.router = r

	s.srv = &http.Server{
		Addr:         addr,
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      r,
	}
	return s
}

// HandleFunc lets platforms register their own routes, e.g. shelly's action URLs
func (s *Server) HandleFunc(path string, f func(http.ResponseWriter, *http.Request)) {
	s.router.HandleFunc(path, f)
}

// Handler is the router, for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Debug logs every request
func (s *Server) Debug() {
	s.router.Use(debugMW)
}

// Start listens in the background
func (s *Server) Start() {
	go func() {
		log.Info.Printf("starting up HTTP control channel on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Info.Print(err)
		}
	}()
}

// Shutdown stops the listener, waiting for requests in flight
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Info.Print(err)
	}
}

func homeHandler(w http.ResponseWriter, r *http.Request) {
	log.Debug.Print("HomeHandler requested")
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	fmt.Fprint(w, "{ \"status\": \"OK\" }")
}

func (s *Server) devicesHandler(w http.ResponseWriter, r *http.Request) {
	out := []deviceView{}
	for _, d := range s.reg.Devices() {
		out = append(out, view(d))
	}
	writeJSON(w, out)
}

func (s *Server) deviceHandler(w http.ResponseWriter, r *http.Request) {
	d, ok := s.reg.Device(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}
	writeJSON(w, view(d))
}

// setHandler reports a metric, as a device integration would
func (s *Server) setHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.reg.Device(id); !ok {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}
	var req setRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Metric == "" {
		http.Error(w, "metric unset", http.StatusBadRequest)
		return
	}
	if err := s.reg.Set(id, req.Metric, req.Value); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// commandHandler sends a command as a rule would; an optional JSON body is the payload
func (s *Server) commandHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	d, ok := s.reg.Device(vars["id"])
	if !ok {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}
	payload := value.Null
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && err != io.EOF {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	d.Command(vars["cmd"], payload)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) rulesHandler(w http.ResponseWriter, r *http.Request) {
	out := []ruleView{}
	if s.rules != nil {
		for _, rl := range s.rules.Rules() {
			rv := ruleView{
				ID:        rl.ID,
				Device:    rl.Condition.DeviceID,
				Metric:    rl.Condition.Metric,
				Threshold: rl.Condition.Threshold,
				Actions:   []actionView{},
			}
			if rl.Condition.Operator != rule.None {
				rv.Operator = rl.Condition.Operator.String()
			}
			for _, a := range rl.Actions {
				rv.Actions = append(rv.Actions, actionView{
					Target:           a.Target,
					Type:             string(a.Type),
					Kind:             a.Kind.String(),
					Desired:          a.Desired,
					SendOnlyOnChange: a.SendOnlyOnChange,
				})
			}
			out = append(out, rv)
		}
	}
	writeJSON(w, out)
}

func view(d *registry.Device) deviceView {
	return deviceView{
		ID:       d.ID(),
		Type:     string(d.Type()),
		Title:    d.Title,
		Platform: d.Platform,
		Metrics:  d.Metrics(),
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Info.Print(err)
	}
}

func debugMW(next http.Handler) http.Handler {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		dump, _ := httputil.DumpRequest(req, false)
		log.Info.Print(string(dump))
		next.ServeHTTP(res, req)
	})
}
