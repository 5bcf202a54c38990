// Package reply turns a prompt into an assistant reply through one of several
// interchangeable backends. Callers always get a Result back; backend failures
// and panics are normalized into a displayable warning.
package reply

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/iksnae/bob-the-lawyer/internal"
)

// WarningMarker prefixes every user-visible failure message.
const WarningMarker = "⚠️"

// Params are the sampling controls forwarded to the backend uninterpreted.
type Params struct {
	MaxNewTokens int     `json:"max_new_tokens" yaml:"max_new_tokens"`
	Temperature  float64 `json:"temperature" yaml:"temperature"`
	TopP         float64 `json:"top_p" yaml:"top_p"`
}

// DefaultParams returns the generation defaults
func DefaultParams() Params {
	return Params{MaxNewTokens: 100, Temperature: 0.7, TopP: 0.9}
}

// Request is the generation request; its JSON form is the remote wire body.
type Request struct {
	UserInput    string  `json:"user_input"`
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
	TopP         float64 `json:"top_p"`
}

// Params returns the sampling controls carried by the request
func (r Request) Params() Params {
	return Params{MaxNewTokens: r.MaxNewTokens, Temperature: r.Temperature, TopP: r.TopP}
}

// Backend produces reply text for a request.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// Outcome is the terminal state of one generation call
type Outcome string

const (
	OutcomeSucceeded         Outcome = "succeeded"
	OutcomeTimedOut          Outcome = "timed_out"
	OutcomeConnectionFailed  Outcome = "connection_failed"
	OutcomeHTTPError         Outcome = "http_error"
	OutcomeMalformedResponse Outcome = "malformed_response"
	OutcomeInferenceFailed   Outcome = "inference_failed"
)

// Error is a classified backend failure
type Error struct {
	Outcome    Outcome
	StatusCode int // set for OutcomeHTTPError
	Err        error
}

func (e *Error) Error() string {
	switch e.Outcome {
	case OutcomeTimedOut:
		return fmt.Sprintf("model service timed out: %v", e.Err)
	case OutcomeConnectionFailed:
		return fmt.Sprintf("could not connect to model service: %v", e.Err)
	case OutcomeHTTPError:
		return fmt.Sprintf("model service returned HTTP %d: %v", e.StatusCode, e.Err)
	case OutcomeMalformedResponse:
		return fmt.Sprintf("malformed model service response: %v", e.Err)
	default:
		return fmt.Sprintf("%v", e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Result is the explicit outcome of a generation call.
type Result struct {
	Text    string // reply text; empty unless OK
	Outcome Outcome
	Err     error
	Backend string
	Elapsed time.Duration
}

// OK reports whether a reply was produced
func (r Result) OK() bool {
	return r.Outcome == OutcomeSucceeded
}

// Display returns the reply on success, otherwise the warning message
func (r Result) Display() string {
	if r.OK() {
		return r.Text
	}
	return warningFor(r.Outcome, r.Err)
}

func warningFor(outcome Outcome, err error) string {
	var re *Error
	if errors.As(err, &re) && re.Err != nil {
		err = re.Err
	}
	switch outcome {
	case OutcomeTimedOut:
		return WarningMarker + " The model service timed out. Please try again."
	case OutcomeConnectionFailed:
		return fmt.Sprintf("%s Could not connect to the model service: %v", WarningMarker, err)
	case OutcomeHTTPError:
		code := 0
		if re != nil {
			code = re.StatusCode
		}
		return fmt.Sprintf("%s The model service returned HTTP %d", WarningMarker, code)
	case OutcomeMalformedResponse:
		return fmt.Sprintf("%s Error parsing the model service response: %v", WarningMarker, err)
	default:
		return fmt.Sprintf("%s Error: %v", WarningMarker, err)
	}
}

// Option adjusts the sampling controls for one call
type Option func(*Params)

func WithMaxNewTokens(n int) Option { return func(p *Params) { p.MaxNewTokens = n } }

func WithTemperature(t float64) Option { return func(p *Params) { p.Temperature = t } }

func WithTopP(v float64) Option { return func(p *Params) { p.TopP = v } }

// ClientOption configures a Client
type ClientOption func(*Client)

// WithDefaults sets the sampling controls used when a call passes no options
func WithDefaults(p Params) ClientOption {
	return func(c *Client) { c.defaults = p }
}

// WithObserver registers a callback invoked with every Result
func WithObserver(fn func(Result)) ClientOption {
	return func(c *Client) { c.observer = fn }
}

// Client is the non-throwing boundary over a Backend.
type Client struct {
	backend  Backend
	defaults Params
	observer func(Result)
}

// NewClient wraps backend
func NewClient(backend Backend, opts ...ClientOption) *Client {
	c := &Client{backend: backend, defaults: DefaultParams()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BackendName reports which backend serves this client
func (c *Client) BackendName() string {
	return c.backend.Name()
}

// Generate makes exactly one attempt. It never panics and never returns a
// raw error; failures are classified into the Result.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...Option) (res Result) {
	params := c.defaults
	for _, opt := range opts {
		opt(&params)
	}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			internal.LogError("Reply backend %s panicked: %v", c.backend.Name(), r)
			res = Result{
				Outcome: OutcomeInferenceFailed,
				Err:     &Error{Outcome: OutcomeInferenceFailed, Err: fmt.Errorf("panic: %v", r)},
			}
		}
		res.Backend = c.backend.Name()
		res.Elapsed = time.Since(start)
		if c.observer != nil {
			c.observer(res)
		}
	}()

	text, err := c.backend.Generate(ctx, Request{
		UserInput:    prompt,
		MaxNewTokens: params.MaxNewTokens,
		Temperature:  params.Temperature,
		TopP:         params.TopP,
	})
	if err != nil {
		outcome := classify(ctx, err)
		internal.LogWarn("Reply from %s failed (%s): %v", c.backend.Name(), outcome, err)
		return Result{Outcome: outcome, Err: err}
	}
	return Result{Text: text, Outcome: OutcomeSucceeded}
}

// GenerateReply returns the reply text or a warning string
func (c *Client) GenerateReply(ctx context.Context, prompt string, opts ...Option) string {
	return c.Generate(ctx, prompt, opts...).Display()
}

// Close releases backend resources such as a loaded pipeline
func (c *Client) Close() error {
	if closer, ok := c.backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func classify(ctx context.Context, err error) Outcome {
	var re *Error
	if errors.As(err, &re) {
		return re.Outcome
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return OutcomeTimedOut
	}
	return OutcomeInferenceFailed
}

// IsWarning reports whether text is a normalized failure message
func IsWarning(text string) bool {
	return strings.HasPrefix(text, WarningMarker)
}
