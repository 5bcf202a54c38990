package reply

import (
	"context"
	"fmt"
	"strings"
)

// MockBackend provides deterministic replies when no model is available.
type MockBackend struct{}

func NewMockBackend() *MockBackend { return &MockBackend{} }

func (b *MockBackend) Name() string { return "mock" }

func (b *MockBackend) Generate(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	base := strings.TrimSpace(req.UserInput)
	if base == "" {
		base = "I am listening."
	}
	if i := strings.Index(base, "\n"); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	return fmt.Sprintf("I heard you: %s", base), nil
}
