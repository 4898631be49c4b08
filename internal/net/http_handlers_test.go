package net

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"spool/server/internal/hub"
	"spool/server/internal/net/proto"
	"spool/server/internal/observability"
)

func newTestHub(t *testing.T) *hub.Hub {
	t.Helper()
	h := hub.New(hub.DefaultConfig(), hub.Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func TestHTTPHealth(t *testing.T) {
	handler := NewHTTPHandler(newTestHub(t), HTTPHandlerConfig{})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))

	if resp.Code != http.StatusOK || resp.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", resp.Code, resp.Body.String())
	}
}

func TestHTTPDiagnosticsReportsHub(t *testing.T) {
	handler := NewHTTPHandler(newTestHub(t), HTTPHandlerConfig{})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/diagnostics", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.Code)
	}
	if contentType := resp.Header().Get("Content-Type"); contentType != "application/json" {
		t.Fatalf("expected Content-Type application/json, got %q", contentType)
	}

	var payload struct {
		Status string          `json:"status"`
		Hub    hub.Diagnostics `json:"hub"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode diagnostics payload: %v", err)
	}
	if payload.Status != "ok" {
		t.Fatalf("expected status ok, got %q", payload.Status)
	}
	if payload.Hub.TickRate != hub.DefaultTickRate {
		t.Fatalf("expected tick rate %d, got %d", hub.DefaultTickRate, payload.Hub.TickRate)
	}
	if payload.Hub.Codec != proto.CodecJSON {
		t.Fatalf("expected json codec, got %q", payload.Hub.Codec)
	}
}

func TestHTTPWorldResetRequiresPost(t *testing.T) {
	handler := NewHTTPHandler(newTestHub(t), HTTPHandlerConfig{})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/world/reset", nil))
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/world/reset", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestHTTPLoadingRejectsMalformedBody(t *testing.T) {
	handler := NewHTTPHandler(newTestHub(t), HTTPHandlerConfig{})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/loading", strings.NewReader("{")))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/loading", strings.NewReader(`{"loading":true}`)))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestHTTPServesClientDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>spool</html>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	handler := NewHTTPHandler(newTestHub(t), HTTPHandlerConfig{ClientDir: dir})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "spool") {
		t.Fatalf("expected index to be served, got %d %q", resp.Code, resp.Body.String())
	}
}

func TestHTTPWebsocketRoute(t *testing.T) {
	srv := httptest.NewServer(NewHTTPHandler(newTestHub(t), HTTPHandlerConfig{}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to open websocket connection: %v", err)
	}
	defer conn.Close()
	if resp != nil {
		resp.Body.Close()
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.Type != proto.TypeInit {
		t.Fatalf("expected first frame %q, got %q", proto.TypeInit, frame.Type)
	}
}

func TestHTTPPprofIsOptIn(t *testing.T) {
	h := newTestHub(t)

	resp := httptest.NewRecorder()
	NewHTTPHandler(h, HTTPHandlerConfig{}).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected pprof to be disabled by default, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	enabled := NewHTTPHandler(h, HTTPHandlerConfig{Observability: observability.Config{EnablePprofTrace: true}})
	enabled.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected pprof index, got %d", resp.Code)
	}
}
