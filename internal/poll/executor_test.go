package poll

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vigil/internal/domain"
)

func TestExecuteSuccessWithBodyCheck(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", request.Method)
		}
		if request.Header.Get("X-Probe") != "vigil" {
			t.Errorf("missing probe header")
		}
		_, _ = writer.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	executor := NewExecutor(nil)
	result := executor.Execute(context.Background(), domain.HTTPCheck{
		URL:           server.URL,
		Headers:       map[string]string{"X-Probe": "vigil"},
		BodySubstring: `"ok"`,
	})

	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.StatusCode == nil || *result.StatusCode != http.StatusOK {
		t.Fatalf("status code = %v, want 200", result.StatusCode)
	}
	if result.ResponseTimeMS <= 0 {
		t.Fatalf("response time not measured: %+v", result)
	}
}

func TestExecuteStatusMismatch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	result := NewExecutor(nil).Execute(context.Background(), domain.HTTPCheck{URL: server.URL, ExpectedStatus: 200})
	if result.Success || result.Reason != ReasonStatusMismatch {
		t.Fatalf("expected status mismatch, got %+v", result)
	}
	if result.StatusCode == nil || *result.StatusCode != http.StatusBadGateway {
		t.Fatalf("status code = %v, want 502", result.StatusCode)
	}
}

func TestExecuteExpectedNonDefaultStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	result := NewExecutor(nil).Execute(context.Background(), domain.HTTPCheck{URL: server.URL, ExpectedStatus: 204})
	if !result.Success {
		t.Fatalf("expected success for 204, got %+v", result)
	}
}

func TestExecuteBodyMismatch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		_, _ = writer.Write([]byte("degraded"))
	}))
	defer server.Close()

	result := NewExecutor(nil).Execute(context.Background(), domain.HTTPCheck{URL: server.URL, BodySubstring: "healthy"})
	if result.Success || result.Reason != ReasonBodyMismatch {
		t.Fatalf("expected body mismatch, got %+v", result)
	}
}

func TestExecuteNetworkError(t *testing.T) {
	t.Parallel()

	result := NewExecutor(nil).Execute(context.Background(), domain.HTTPCheck{URL: "http://127.0.0.1:1/nothing"})
	if result.Success || result.Reason != ReasonNetworkError {
		t.Fatalf("expected network error, got %+v", result)
	}
	if result.Error == "" {
		t.Fatalf("network error must carry error text")
	}
}

func TestExecuteTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		select {
		case <-release:
		case <-request.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	started := time.Now()
	result := NewExecutor(nil).Execute(context.Background(), domain.HTTPCheck{URL: server.URL, TimeoutSec: 1})
	if result.Success || result.Reason != ReasonTimeout {
		t.Fatalf("expected timeout, got %+v", result)
	}
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Fatalf("timeout not bounded, took %v", elapsed)
	}
}
