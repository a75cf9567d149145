package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetrics_CollectorsExposed(t *testing.T) {
	m := New()

	m.IncOperationFinished("up", "completed")
	m.SetOperationsActive(3)
	m.SessionStarted()
	m.SessionStarted()
	m.SessionEnded()
	m.RecordStreamFailure()
	m.RecordDelivery(true)
	m.RecordDelivery(false)
	m.SetSubscribers(7)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(recorder, request)

	body := recorder.Body.String()
	expected := []string{
		`deckhand_operations_total{status="completed",type="up"} 1`,
		`deckhand_operations_active 3`,
		`deckhand_stream_sessions_active 1`,
		`deckhand_stream_failures_total 1`,
		`deckhand_broadcast_deliveries_total{result="ok"} 1`,
		`deckhand_broadcast_deliveries_total{result="dropped"} 1`,
		`deckhand_broadcast_subscribers 7`,
	}
	for _, line := range expected {
		if !strings.Contains(body, line) {
			t.Fatalf("expected metrics output to contain %q\ngot:\n%s", line, body)
		}
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.IncOperationFinished("up", "failed")
	m.SetOperationsActive(1)
	m.SessionStarted()
	m.SessionEnded()
	m.RecordStreamFailure()
	m.RecordDelivery(true)
	m.SetSubscribers(1)

	if m.Handler() == nil {
		t.Fatal("nil metrics should fall back to the default handler")
	}
}
