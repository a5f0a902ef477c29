package testsupport

import (
	"context"
	"fmt"
	"sync"

	"atelier/internal/services"
	"atelier/internal/services/generation"
)

// GenerateFunc answers one fake generation call.
type GenerateFunc func(ctx context.Context, req generation.Request) (generation.Result, error)

// FakeGenerator records requests and answers them with a scripted function.
// By default every call succeeds with a fake:// handle.
type FakeGenerator struct {
	mu      sync.Mutex
	respond GenerateFunc
	calls   []generation.Request
	hold    chan struct{}
	started chan generation.Request
}

// NewFakeGenerator returns a generator that succeeds immediately.
func NewFakeGenerator() *FakeGenerator {
	return &FakeGenerator{started: make(chan generation.Request, 64)}
}

// Respond replaces the answer for subsequent calls.
func (f *FakeGenerator) Respond(fn GenerateFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respond = fn
}

// FailWith makes subsequent calls return err.
func (f *FakeGenerator) FailWith(err error) {
	f.Respond(func(context.Context, generation.Request) (generation.Result, error) {
		return generation.Result{}, err
	})
}

// Hold blocks subsequent calls until the returned release func runs or the
// call's context ends. A context that ends first yields a transport failure.
func (f *FakeGenerator) Hold() (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.hold = ch
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() { close(ch) })
	}
}

// Started delivers each request as its call begins.
func (f *FakeGenerator) Started() <-chan generation.Request {
	return f.started
}

// Calls returns the requests seen so far.
func (f *FakeGenerator) Calls() []generation.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]generation.Request(nil), f.calls...)
}

// Generate implements generation.Generator.
func (f *FakeGenerator) Generate(ctx context.Context, req generation.Request) (generation.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	respond := f.respond
	hold := f.hold
	f.mu.Unlock()

	select {
	case f.started <- req:
	default:
	}

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return generation.Result{}, services.Wrap(services.ErrTransport, "fake", "generate", "deadline", ctx.Err())
		}
	}
	if respond != nil {
		return respond(ctx, req)
	}
	return generation.Result{ResultRef: fmt.Sprintf("fake://%s/%d", req.JobID, req.Attempt), DurationSeconds: 4}, nil
}
