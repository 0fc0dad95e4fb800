package http

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"income-screener/internal/domain"
	"income-screener/internal/infrastructure/logger"
)

// RouterDeps are the handlers and stores behind the HTTP surface. Test, WS
// and Metrics are optional.
type RouterDeps struct {
	Picks   *PicksHandler
	Tokens  *TokenHandler
	Test    *TestHandler
	Latest  domain.LatestPicksStore
	WS      http.Handler
	Metrics http.Handler
	Log     *logger.Logger
}

func NewRouter(d RouterDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/picks", d.Picks.GetPicks)
	mux.HandleFunc("GET /api/scanlog", d.Picks.GetScanLog)

	mux.HandleFunc("POST /api/devices", d.Tokens.HandleRegisterToken)
	mux.HandleFunc("DELETE /api/devices", d.Tokens.HandleUnregisterToken)
	mux.HandleFunc("GET /api/devices/count", d.Tokens.HandleGetTokenCount)
	if d.Test != nil {
		mux.HandleFunc("POST /api/devices/test", d.Test.SendTestNotification)
	}

	mux.HandleFunc("GET /healthz", healthz(d.Latest))
	if d.WS != nil {
		mux.Handle("GET /ws", d.WS)
	}
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics)
	}

	return withCORS(withLogging(d.Log, mux))
}

type HealthResponse struct {
	Status  string `json:"status"`
	LastRun string `json:"lastRun,omitempty"`
	Success *bool  `json:"lastRunSuccessful,omitempty"`
}

func healthz(latest domain.LatestPicksStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok"}
		snap, err := latest.LatestSnapshot(r.Context())
		switch {
		case err == nil:
			resp.LastRun = snap.AsOf.Format(domain.DateLayout)
			ok := snap.Summary.Successful
			resp.Success = &ok
		case !errors.Is(err, domain.ErrNotFound):
			resp.Status = "degraded"
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack is needed by the websocket upgrade on /ws.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func withLogging(log *logger.Logger, next http.Handler) http.Handler {
	if log == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debugw("HTTP request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
