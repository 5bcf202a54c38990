package observability

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/iksnae/bob-the-lawyer/internal/reply"
)

func TestMetrics_ObserveReply(t *testing.T) {
	m := NewMetrics("test")

	m.ObserveReply(reply.Result{Backend: "remote", Outcome: reply.OutcomeSucceeded, Elapsed: 300 * time.Millisecond})
	m.ObserveReply(reply.Result{Backend: "remote", Outcome: reply.OutcomeTimedOut, Err: errors.New("slow"), Elapsed: time.Minute})
	m.ObserveReply(reply.Result{Backend: "remote", Outcome: reply.OutcomeSucceeded, Elapsed: time.Second})

	if got := testutil.ToFloat64(m.Replies.WithLabelValues("remote", "succeeded")); got != 2 {
		t.Errorf("succeeded = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Replies.WithLabelValues("remote", "timed_out")); got != 1 {
		t.Errorf("timed_out = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.ReplyLatency); got != 1 {
		t.Errorf("latency series = %d, want 1", got)
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := NewMetrics("bob")
	b := NewMetrics("bob")

	a.DiscussionsCreated.Inc()
	if got := testutil.ToFloat64(b.DiscussionsCreated); got != 0 {
		t.Errorf("second instance counter = %v, want 0", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("bob")
	m.ObserveRequest("GET", "/v1/discussions", 200, time.Millisecond)
	m.AttachmentsRejected.WithLabelValues("rar").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`bob_http_requests_total{code="200",method="GET",route="/v1/discussions"} 1`,
		`bob_attachments_rejected_total{type="rar"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
