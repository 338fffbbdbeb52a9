package governance

import (
	"context"
	"fmt"
	"sync"
)

// Request is the provider-facing operation payload. The core treats it
// as opaque beyond the operation identity.
type Request struct {
	// OperationID identifies the operation type.
	OperationID string

	// Payload is the opaque operation input.
	Payload []byte
}

// Usage is the actual usage a provider reports for one call.
type Usage struct {
	// InputUnits and OutputUnits are the metered usage (e.g. tokens).
	InputUnits  int64
	OutputUnits int64
}

// Result is one completed provider invocation.
type Result struct {
	// Usage is the metered usage, reported whether or not the call
	// succeeded.
	Usage Usage

	// Output is the opaque operation output.
	Output []byte

	// Succeeded reports whether the provider call succeeded.
	Succeeded bool
}

// ProviderClient invokes a model backend. Implementations live outside
// the core; the core only needs usage metrics back.
type ProviderClient interface {
	Invoke(ctx context.Context, backend string, req Request) (*Result, error)
}

// MockProvider is a ProviderClient for tests and dry runs. Responses
// are scripted per backend; unscripted backends fail.
type MockProvider struct {
	mu        sync.Mutex
	responses map[string]*Result
	errs      map[string]error
	calls     []MockCall
}

// MockCall records one MockProvider invocation.
type MockCall struct {
	Backend string
	Request Request
}

// NewMockProvider creates an empty mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		responses: make(map[string]*Result),
		errs:      make(map[string]error),
	}
}

// Respond scripts the result returned for a backend.
func (m *MockProvider) Respond(backend string, result Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := result
	m.responses[backend] = &copied
}

// Fail scripts an invocation error for a backend.
func (m *MockProvider) Fail(backend string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[backend] = err
}

// Calls returns the invocations recorded so far.
func (m *MockProvider) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// Invoke implements ProviderClient.
func (m *MockProvider) Invoke(ctx context.Context, backend string, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{Backend: backend, Request: req})

	if err, ok := m.errs[backend]; ok {
		return nil, err
	}
	if result, ok := m.responses[backend]; ok {
		copied := *result
		return &copied, nil
	}
	return nil, fmt.Errorf("mock provider: no response scripted for backend %q", backend)
}
