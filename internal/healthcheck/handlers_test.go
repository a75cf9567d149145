package healthcheck

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealthHandlerHealthy(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordPing(150 * time.Millisecond)
	tracker.RecordActivity(2, 1, 3)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler := HealthHandler(tracker, 5*time.Second)
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.LastDockerPing == nil {
		t.Fatalf("expected last docker ping to be set")
	}
	if payload.PingDurationMS != 150 {
		t.Fatalf("expected ping duration 150ms, got %d", payload.PingDurationMS)
	}
	if payload.ActiveOperations != 2 || payload.ActiveStreams != 1 || payload.Connections != 3 {
		t.Fatalf("unexpected activity gauges: %+v", payload)
	}
}

func TestHealthHandlerUnhealthyWhenStale(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordPing(10 * time.Millisecond)
	tracker.lastPing = time.Now().Add(-10 * time.Second)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler := HealthHandler(tracker, 3*time.Second)
	handler(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestReadyHandler(t *testing.T) {
	tracker := NewTracker()

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	handler := ReadyHandler(tracker)
	handler(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before ready, got %d", rec.Code)
	}

	tracker.RecordPing(5 * time.Millisecond)
	rec = httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after ready, got %d", rec.Code)
	}
}

func TestNilTracker(t *testing.T) {
	var tracker *Tracker
	tracker.RecordPing(time.Second)
	tracker.RecordActivity(1, 1, 1)
	if tracker.Ready() {
		t.Fatalf("nil tracker must not be ready")
	}
	if tracker.Healthy(time.Now(), time.Second) {
		t.Fatalf("nil tracker must not be healthy")
	}
}
