package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"time"
)

type remediateRequest struct {
	Action  string `json:"action"`
	Service string `json:"service"`
}

type remediateResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func main() {
	var (
		addr        = flag.String("addr", ":9000", "listen address")
		successRate = flag.Float64("success-rate", 0.8, "fraction of actions that succeed")
		delay       = flag.Duration("delay", 300*time.Millisecond, "simulated action latency")
	)
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/remediate", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}

		var req remediateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Action == "" || req.Service == "" {
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, remediateResponse{Success: false, Error: "action and service are required"})
			return
		}

		time.Sleep(*delay)

		if rand.Float64() < *successRate {
			writeJSON(w, remediateResponse{Success: true})
			return
		}
		writeJSON(w, remediateResponse{
			Success: false,
			Error:   "failed to execute " + req.Action + " for " + req.Service,
		})
	})

	logger := log.New(log.Writer(), "remediator-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    *addr,
		Handler: logRequests(logger, mux),
	}

	logger.Printf("listening on %s (success rate %.2f)", *addr, *successRate)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
