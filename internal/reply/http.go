package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// HTTPBackend POSTs requests to a remote inference endpoint.
type HTTPBackend struct {
	endpoints []string
	next      atomic.Uint64
	client    *http.Client
}

// NewHTTPBackend builds a backend over one or more equivalent endpoints. The
// endpoint is chosen round-robin once per call, before sending.
func NewHTTPBackend(endpoints []string, timeout time.Duration) (*HTTPBackend, error) {
	var clean []string
	for _, ep := range endpoints {
		if ep = strings.TrimSpace(ep); ep != "" {
			clean = append(clean, ep)
		}
	}
	if len(clean) == 0 {
		return nil, errors.New("remote backend requires at least one endpoint")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPBackend{
		endpoints: clean,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

func (b *HTTPBackend) Name() string { return "remote" }

func (b *HTTPBackend) pick() string {
	i := b.next.Add(1) - 1
	return b.endpoints[i%uint64(len(b.endpoints))]
}

func (b *HTTPBackend) Generate(ctx context.Context, req Request) (string, error) {
	endpoint := b.pick()

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", &Error{Outcome: OutcomeConnectionFailed, Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := b.client.Do(httpReq)
	if err != nil {
		return "", classifyTransport(err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", &Error{
			Outcome:    OutcomeHTTPError,
			StatusCode: res.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(body))),
		}
	}

	var body struct {
		Reply *string `json:"reply"`
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 4<<20)).Decode(&body); err != nil {
		if isTimeout(err) {
			return "", &Error{Outcome: OutcomeTimedOut, Err: err}
		}
		return "", &Error{Outcome: OutcomeMalformedResponse, Err: err}
	}
	if body.Reply == nil {
		return "", &Error{Outcome: OutcomeMalformedResponse, Err: errors.New(`response has no "reply" field`)}
	}
	return *body.Reply, nil
}

func classifyTransport(err error) error {
	if isTimeout(err) {
		return &Error{Outcome: OutcomeTimedOut, Err: err}
	}
	return &Error{Outcome: OutcomeConnectionFailed, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
