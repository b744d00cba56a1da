package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func expectLine(t *testing.T, body, line string) {
	t.Helper()
	if !strings.Contains(body, line+"\n") {
		t.Fatalf("expected %q in output, got:\n%s", line, body)
	}
}

func TestCountersAndGauges(t *testing.T) {
	m := New()
	m.ToolCall("get_network_info", "ok")
	m.ToolCall("get_network_info", "ok")
	m.AuthRejected("token")
	done := m.StreamOpened("sse")

	body := scrape(t, m)
	expectLine(t, body, `chaimcp_tool_calls_total{operation="get_network_info",outcome="ok"} 2`)
	expectLine(t, body, `chaimcp_auth_rejections_total{reason="token"} 1`)
	expectLine(t, body, `chaimcp_active_streams{transport="sse"} 1`)

	done()
	expectLine(t, scrape(t, m), `chaimcp_active_streams{transport="sse"} 0`)
}

func TestHandlerExposesBackendLatency(t *testing.T) {
	m := New()
	m.ObserveBackend("wallet", "get_wallets", "ok", 20*time.Millisecond)
	expectLine(t, scrape(t, m), `chaimcp_backend_request_duration_seconds_count{endpoint="get_wallets",outcome="ok",service="wallet"} 1`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ToolCall("x", "ok")
	m.AuthRejected("host")
	m.ObserveBackend("wallet", "x", "ok", time.Second)
	m.StreamOpened("http")()
}
