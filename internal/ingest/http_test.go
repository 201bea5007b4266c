package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vigil/internal/domain"
)

func newTestServer(t *testing.T, f *fixture) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	handler := NewHTTPHandler(f.recorder, 64*1024, f.recorder.logger)
	handler.Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestHTTPPingSuccessReportsRecovery(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t, domain.Monitor{ID: "m1", ProjectID: "p1", Kind: domain.KindCron, Status: domain.StatusDown, RecoveryAlert: true})
	server := newTestServer(t, f)

	response, err := http.Post(server.URL+"/ping/m1", "text/plain", strings.NewReader("done"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", response.StatusCode)
	}
	var result Result
	if err := json.NewDecoder(response.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !result.WasDown {
		t.Fatal("was_down missing from acknowledgment")
	}
	if result.EventID == "" {
		t.Fatal("event id missing from acknowledgment")
	}
}

func TestHTTPPingUnknownMonitorIs404(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	server := newTestServer(t, f)

	response, err := http.Post(server.URL+"/ping/ghost", "text/plain", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", response.StatusCode)
	}
}

func TestHTTPPingFailRouteRecordsPayload(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t, domain.Monitor{ID: "m1", ProjectID: "p1", Kind: domain.KindCron, Status: domain.StatusUp})
	server := newTestServer(t, f)

	response, err := http.Post(server.URL+"/ping/m1/fail", "text/plain", strings.NewReader("exit 1"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", response.StatusCode)
	}

	lastFail, err := f.store.LastFail(context.Background(), "m1")
	if err != nil {
		t.Fatalf("last fail: %v", err)
	}
	if lastFail.Payload != "exit 1" || lastFail.Source != "http" {
		t.Fatalf("fail event = %+v, want payload and http source", lastFail)
	}
	if kinds := f.alerter.kinds(); len(kinds) != 1 || kinds[0] != domain.EventFail {
		t.Fatalf("triggers = %v, want one fail alert", kinds)
	}
}

func TestHTTPPingStartRouteWithRunToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t, domain.Monitor{ID: "m1", ProjectID: "p1", Kind: domain.KindCron, Status: domain.StatusUp})
	server := newTestServer(t, f)

	response, err := http.Post(server.URL+"/ping/m1/start?run=run-42", "text/plain", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", response.StatusCode)
	}

	response, err = http.Post(server.URL+"/ping/m1?run=run-42", "text/plain", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	response.Body.Close()

	durations, err := f.store.LastDurations(context.Background(), "m1", 1)
	if err != nil {
		t.Fatalf("last durations: %v", err)
	}
	if len(durations) != 1 {
		t.Fatalf("durations = %v, want the paired run sample", durations)
	}
}

func TestHTTPPingRejectsOversizedBody(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t, domain.Monitor{ID: "m1", ProjectID: "p1", Kind: domain.KindCron, Status: domain.StatusUp})
	mux := http.NewServeMux()
	NewHTTPHandler(f.recorder, 8, f.recorder.logger).Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	response, err := http.Post(server.URL+"/ping/m1", "text/plain", strings.NewReader("this payload is longer than eight bytes"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", response.StatusCode)
	}
}
