package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSimulatedExecutorForcedOutcomes(t *testing.T) {
	exec := NewSimulatedExecutor(0.8, 0, nil)

	exec.randFloat = func() float64 { return 0.5 }
	if err := exec.Execute(context.Background(), "restart_service", "web-api"); err != nil {
		t.Fatalf("draw below the success rate must succeed: %v", err)
	}

	exec.randFloat = func() float64 { return 0.95 }
	err := exec.Execute(context.Background(), "restart_service", "web-api")
	if err == nil {
		t.Fatal("draw above the success rate must fail")
	}
	if !strings.Contains(err.Error(), "restart_service") {
		t.Fatalf("failure must name the action, got %v", err)
	}
}

func TestSimulatedExecutorDefaultRate(t *testing.T) {
	for _, rate := range []float64{0, -1, 1.5} {
		exec := NewSimulatedExecutor(rate, 0, nil)
		if exec.successRate != 0.8 {
			t.Fatalf("rate %g must fall back to 0.8, got %g", rate, exec.successRate)
		}
	}
	if exec := NewSimulatedExecutor(1, 0, nil); exec.successRate != 1 {
		t.Fatalf("rate 1 is valid, got %g", exec.successRate)
	}
}

func TestSimulatedExecutorHonoursCancellation(t *testing.T) {
	exec := NewSimulatedExecutor(1, time.Second, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := exec.Execute(ctx, "restart_service", "web-api")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("cancellation took too long: %s", elapsed)
	}
}

func TestHTTPExecutorSuccess(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	exec, err := NewHTTPExecutor(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("constructor: %v", err)
	}
	if err := exec.Execute(context.Background(), "clear_cache", "web-api"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotPath != "/remediate" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotBody["action"] != "clear_cache" || gotBody["service"] != "web-api" {
		t.Fatalf("unexpected payload %v", gotBody)
	}
}

func TestHTTPExecutorRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "container not found"})
	}))
	defer srv.Close()

	exec, err := NewHTTPExecutor(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("constructor: %v", err)
	}
	execErr := exec.Execute(context.Background(), "restart_service", "web-api")
	if execErr == nil || !strings.Contains(execErr.Error(), "container not found") {
		t.Fatalf("expected remote error text, got %v", execErr)
	}
}

func TestHTTPExecutorRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	exec, err := NewHTTPExecutor(srv.URL, time.Second)
	if err != nil {
		t.Fatalf("constructor: %v", err)
	}
	if err := exec.Execute(context.Background(), "restart_service", "web-api"); err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}

func TestHTTPExecutorRequiresBaseURL(t *testing.T) {
	if _, err := NewHTTPExecutor("  ", time.Second); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}
