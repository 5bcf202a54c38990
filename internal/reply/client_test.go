package reply

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type stubBackend struct {
	text  string
	err   error
	panic any
	got   Request
}

func (s *stubBackend) Name() string { return "stub" }

func (s *stubBackend) Generate(ctx context.Context, req Request) (string, error) {
	s.got = req
	if s.panic != nil {
		panic(s.panic)
	}
	return s.text, s.err
}

func TestClient_Generate_Success(t *testing.T) {
	stub := &stubBackend{text: "A contract is an agreement."}
	c := NewClient(stub)

	res := c.Generate(context.Background(), "What is a contract?")
	if !res.OK() {
		t.Fatalf("Generate() outcome = %s, err = %v", res.Outcome, res.Err)
	}
	if res.Display() != "A contract is an agreement." {
		t.Errorf("Display() = %q", res.Display())
	}
	if res.Backend != "stub" {
		t.Errorf("Backend = %q, want stub", res.Backend)
	}
	if stub.got != (Request{UserInput: "What is a contract?", MaxNewTokens: 100, Temperature: 0.7, TopP: 0.9}) {
		t.Errorf("backend request = %+v, want defaults", stub.got)
	}
}

func TestClient_Generate_Options(t *testing.T) {
	stub := &stubBackend{text: "ok"}
	c := NewClient(stub, WithDefaults(Params{MaxNewTokens: 10, Temperature: 1, TopP: 1}))

	c.Generate(context.Background(), "q", WithMaxNewTokens(50), WithTemperature(0.3), WithTopP(0.5))
	if stub.got.MaxNewTokens != 50 || stub.got.Temperature != 0.3 || stub.got.TopP != 0.5 {
		t.Errorf("backend request = %+v", stub.got)
	}

	// out-of-range values pass through uninterpreted
	c.Generate(context.Background(), "q", WithTemperature(-2), WithTopP(7))
	if stub.got.Temperature != -2 || stub.got.TopP != 7 {
		t.Errorf("backend request = %+v, want values forwarded as given", stub.got)
	}
}

func TestClient_Generate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		outcome Outcome
		want    []string
	}{
		{
			name:    "timeout",
			err:     &Error{Outcome: OutcomeTimedOut, Err: context.DeadlineExceeded},
			outcome: OutcomeTimedOut,
			want:    []string{"timed out"},
		},
		{
			name:    "connection",
			err:     &Error{Outcome: OutcomeConnectionFailed, Err: errors.New("connection refused")},
			outcome: OutcomeConnectionFailed,
			want:    []string{"Could not connect", "connection refused"},
		},
		{
			name:    "http status",
			err:     &Error{Outcome: OutcomeHTTPError, StatusCode: 503, Err: errors.New("not ready")},
			outcome: OutcomeHTTPError,
			want:    []string{"HTTP 503"},
		},
		{
			name:    "malformed",
			err:     &Error{Outcome: OutcomeMalformedResponse, Err: errors.New(`response has no "reply" field`)},
			outcome: OutcomeMalformedResponse,
			want:    []string{"Error parsing", "reply"},
		},
		{
			name:    "unclassified error",
			err:     errors.New("CUDA out of memory"),
			outcome: OutcomeInferenceFailed,
			want:    []string{"Error: CUDA out of memory"},
		},
		{
			name:    "bare deadline",
			err:     context.DeadlineExceeded,
			outcome: OutcomeTimedOut,
			want:    []string{"timed out"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(&stubBackend{err: tt.err})
			res := c.Generate(context.Background(), "What is a contract?")
			if res.OK() {
				t.Fatal("Generate() should not succeed")
			}
			if res.Outcome != tt.outcome {
				t.Errorf("Outcome = %s, want %s", res.Outcome, tt.outcome)
			}
			msg := res.Display()
			if !strings.HasPrefix(msg, WarningMarker) {
				t.Errorf("Display() = %q, want warning marker prefix", msg)
			}
			for _, w := range tt.want {
				if !strings.Contains(msg, w) {
					t.Errorf("Display() = %q, should contain %q", msg, w)
				}
			}
			if res.Text != "" {
				t.Errorf("Text = %q, want empty on failure", res.Text)
			}
		})
	}
}

func TestClient_Generate_RecoversPanic(t *testing.T) {
	c := NewClient(&stubBackend{panic: "tokenizer exploded"})

	var res Result
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("Generate() panicked: %v", r)
			}
		}()
		res = c.Generate(context.Background(), "hi")
	}()

	if res.Outcome != OutcomeInferenceFailed {
		t.Errorf("Outcome = %s, want inference_failed", res.Outcome)
	}
	if !strings.Contains(res.Display(), "tokenizer exploded") {
		t.Errorf("Display() = %q", res.Display())
	}
}

func TestClient_Observer(t *testing.T) {
	var mu sync.Mutex
	var seen []Result
	c := NewClient(&stubBackend{text: "ok"}, WithObserver(func(r Result) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, r)
	}))

	c.Generate(context.Background(), "one")
	c.GenerateReply(context.Background(), "two")

	if len(seen) != 2 {
		t.Fatalf("observer saw %d results, want 2", len(seen))
	}
	if seen[0].Backend != "stub" || !seen[0].OK() {
		t.Errorf("observed %+v", seen[0])
	}
}

func TestClient_GenerateReply_RemoteTimeout(t *testing.T) {
	srv := newSlowServer(t, 500*time.Millisecond)
	b, err := NewHTTPBackend([]string{srv.URL}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewHTTPBackend() error = %v", err)
	}

	got := NewClient(b).GenerateReply(context.Background(), "What is a contract?")
	if !strings.HasPrefix(got, WarningMarker) || !strings.Contains(got, "timed out") {
		t.Errorf("GenerateReply() = %q, want a timed out warning", got)
	}
}

func TestIsWarning(t *testing.T) {
	if !IsWarning(WarningMarker + " Error: x") {
		t.Error("IsWarning() should detect the marker")
	}
	if IsWarning("A contract is an agreement.") {
		t.Error("IsWarning() should not flag a normal reply")
	}
}
