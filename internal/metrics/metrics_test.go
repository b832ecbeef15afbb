package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandlerServesHealthAndMetrics(t *testing.T) {
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("Failed to get /health: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		t.Errorf("Expected 200 OK, got %d %q", resp.StatusCode, body)
	}

	SignalsTotal.WithLabelValues("metrics_test").Inc()

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("Failed to get /metrics: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `beacon_signals_total{kind="metrics_test"} 1`) {
		t.Errorf("Expected signal counter in exposition, got:\n%s", body)
	}
}

func TestGaugeVecLabels(t *testing.T) {
	g := MediaEntitiesActive.WithLabelValues("metrics_test")
	g.Inc()
	g.Inc()
	g.Dec()

	if got := testutil.ToFloat64(g); got != 1 {
		t.Errorf("Expected 1, got %v", got)
	}
}
