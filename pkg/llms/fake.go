package llms

import (
	"context"
	"fmt"
	"sync"
)

// FakeProvider returns scripted responses in order. Node and orchestrator
// tests drive the loop with it instead of a live API.
type FakeProvider struct {
	mu        sync.Mutex
	model     string
	responses []Response
	next      int

	// Err, when set, is returned by every Generate call.
	Err error

	// Requests records everything dispatched, in order.
	Requests []Request
}

// NewFakeProvider scripts the given responses.
func NewFakeProvider(model string, responses ...Response) *FakeProvider {
	return &FakeProvider{model: model, responses: responses}
}

func (f *FakeProvider) Generate(ctx context.Context, req Request) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Requests = append(f.Requests, req)
	if f.Err != nil {
		return Response{}, f.Err
	}
	if f.next >= len(f.responses) {
		return Response{}, fmt.Errorf("fake provider %q: no scripted response for call %d", f.model, f.next+1)
	}
	resp := f.responses[f.next]
	f.next++
	return resp, nil
}

func (f *FakeProvider) Model() string {
	return f.model
}

func (f *FakeProvider) Close() error {
	return nil
}

// Calls reports how many requests reached the provider.
func (f *FakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Requests)
}
