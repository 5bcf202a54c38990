package cmd

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthcheckCommand(t *testing.T) {
	dir := setupEnv(t)
	mustRun(t, dir, "new")

	out := mustRun(t, dir, "healthcheck", "-V", "--probe")
	for _, want := range []string{
		"sqlite store accessible",
		"1 discussion, 0 messages",
		"Last discussion number: 1",
		"Using mock replies",
		"Test reply received",
		"Health check passed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("healthcheck output missing %q:\n%s", want, out)
		}
	}
}

func TestHealthcheckCommand_RemoteProbe(t *testing.T) {
	dir := setupEnv(t)

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
		want    string
	}{
		{name: "healthy endpoint", status: http.StatusOK, body: `{"reply":"OK"}`, want: "Reply backend: remote"},
		{name: "failing endpoint", status: http.StatusServiceUnavailable, body: `{"detail":"Model service is not ready. Please try again later."}`, wantErr: true, want: "Test reply failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()
			t.Setenv("BOB_REPLY_BACKEND", "remote")
			t.Setenv("BOB_REPLY_ENDPOINTS", ts.URL)

			out, err := run(t, dir, "", "healthcheck", "--probe")
			if (err != nil) != tt.wantErr {
				t.Fatalf("healthcheck error = %v, wantErr %v\n%s", err, tt.wantErr, out)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("healthcheck output missing %q:\n%s", tt.want, out)
			}
		})
	}
}

func TestHealthcheckCommand_BadConfig(t *testing.T) {
	dir := setupEnv(t)
	t.Setenv("BOB_REPLY_BACKEND", "oracle")

	out, err := run(t, dir, "", "healthcheck")
	if err != errUnhealthy {
		t.Fatalf("error = %v, want errUnhealthy", err)
	}
	if !strings.Contains(out, "Failed to load configuration") {
		t.Errorf("output:\n%s", out)
	}
}
