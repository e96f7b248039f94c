package api

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/seantiz/coinpulse/internal/model"
)

func TestEventStreamsSkipLatencyHistogram(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	checkout := decode[model.CheckoutResponse](t, postJSON(t, ts.URL+"/api/sponsorship/ico", icoRequest))
	if err := srv.payments.ConfirmPayment(context.Background(), checkout.ChargeID); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}

	resp, err := http.Get(ts.URL + "/api/payments/" + checkout.PaymentID + "/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if v := testutil.ToFloat64(eventStreamsActive); v != 0 {
		t.Errorf("active streams = %v, want 0", v)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	var sawStream, sawCheckout bool
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "coinpulse_http_request_duration_seconds_count") &&
			strings.Contains(line, `path="/api/payments/{id}/events"`):
			t.Errorf("event stream recorded as request latency: %s", line)
		case strings.HasPrefix(line, "coinpulse_http_request_duration_seconds_count") &&
			strings.Contains(line, `path="/api/sponsorship/ico"`):
			sawCheckout = true
		case strings.HasPrefix(line, "coinpulse_payment_event_stream_duration_seconds_count ") &&
			!strings.HasSuffix(line, " 0"):
			sawStream = true
		}
	}
	if !sawCheckout {
		t.Error("checkout request missing from latency histogram")
	}
	if !sawStream {
		t.Error("event stream lifetime not recorded")
	}
}
