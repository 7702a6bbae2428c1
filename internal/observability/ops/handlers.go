package ops

import (
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	logx "cctvbot/pkg/logx"
)

// Handler builds the routes for cfg. Every route is token-protected when a
// token is configured.
func (s *Server) Handler(cfg Config) http.Handler {
	mux := http.NewServeMux()
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.Handle(pattern, s.instrument(endpoint, withAuth(cfg.Token, h)))
	}

	route("/healthz", "healthz", s.handleHealth)
	route("/status", "status", s.handleStatus)
	if s.opts.Gatherer != nil {
		mh := promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})
		route("/metrics", "metrics", mh.ServeHTTP)
	}

	if cfg.Pprof {
		prefix := normalizePrefix(cfg.PprofPrefix)
		base := strings.TrimSuffix(prefix, "/")
		route(prefix, "pprof", pprofIndexAt(prefix))
		route(base+"/cmdline", "pprof", hpprof.Cmdline)
		route(base+"/profile", "pprof", hpprof.Profile)
		route(base+"/symbol", "pprof", hpprof.Symbol)
		route(base+"/trace", "pprof", hpprof.Trace)
	}
	return mux
}

type healthBody struct {
	OK    bool `json:"ok"`
	Tasks any  `json:"tasks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := healthBody{OK: true}
	if s.opts.Health != nil {
		body.Tasks = s.opts.Health()
	}
	writeJSON(w, http.StatusOK, body)
}

type errorBody struct {
	Error  string `json:"error"`
	Status any    `json:"status,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.opts.Status == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "status not available"})
		return
	}
	cache := s.statusCache()
	if b, ok := cache.get(); ok {
		s.opts.Metrics.IncCacheHits()
		writeRaw(w, http.StatusOK, b)
		return
	}
	s.opts.Metrics.IncCacheMisses()

	st, err := s.opts.Status(r.Context())
	if err != nil {
		s.log.Warn("status snapshot failed", logx.Err(err))
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error(), Status: st})
		return
	}
	b, err := json.Marshal(st)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	cache.set(b)
	writeRaw(w, http.StatusOK, b)
}

func (s *Server) statusCache() *statusCache {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeRaw(w, code, b)
}

func writeRaw(w http.ResponseWriter, code int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming pprof endpoints working through the wrapper.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) instrument(endpoint string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		h.ServeHTTP(rec, r)
		s.opts.Metrics.IncRequestsTotal(endpoint, rec.code)
		s.opts.Metrics.ObserveRequestDuration(endpoint, time.Since(start))
	})
}

func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		// Authorization: Bearer <token>, or ?token=<token>
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				h(w, r)
				return
			}
			unauthorized(w)
			return
		}
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(ah[len(p):]) == tok {
			h(w, r)
			return
		}
		unauthorized(w)
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func normalizePrefix(prefix string) string {
	p := strings.TrimSpace(prefix)
	if p == "" {
		p = "/debug/pprof/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// pprof.Index assumes /debug/pprof/; rewrite the path for custom prefixes.
func pprofIndexAt(prefix string) http.HandlerFunc {
	canon := normalizePrefix(prefix)
	return func(w http.ResponseWriter, r *http.Request) {
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/debug/pprof/" + strings.TrimPrefix(r.URL.Path, canon)
		hpprof.Index(w, r2)
	}
}
