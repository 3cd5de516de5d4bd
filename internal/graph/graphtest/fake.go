// Package graphtest provides an in-memory graph.SessionFactory for tests.
package graphtest

import (
	"context"
	"sync"

	"github.com/agentic-research/genframe/internal/graph"
)

// Factory returns canned records per query and counts session lifecycles.
type Factory struct {
	Results map[graph.Query][]graph.Record
	Errors  map[graph.Query]error
	// ConnectErr is returned by VerifyConnectivity and NewSession.
	ConnectErr error

	mu     sync.Mutex
	opened int
	closed int
	runs   map[graph.Query]int
}

// New returns a Factory serving results.
func New(results map[graph.Query][]graph.Record) *Factory {
	return &Factory{Results: results, Errors: map[graph.Query]error{}}
}

func (f *Factory) NewSession(context.Context) (graph.Session, error) {
	if f.ConnectErr != nil {
		return nil, f.ConnectErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
	return &session{f: f}, nil
}

func (f *Factory) VerifyConnectivity(context.Context) error { return f.ConnectErr }

func (f *Factory) Close(context.Context) error { return nil }

// Opened and Closed report how many sessions were created and released.
func (f *Factory) Opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

func (f *Factory) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Runs reports how many times q was executed.
func (f *Factory) Runs(q graph.Query) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[q]
}

type session struct {
	f *Factory
}

func (s *session) Run(ctx context.Context, q graph.Query) ([]graph.Record, error) {
	s.f.mu.Lock()
	if s.f.runs == nil {
		s.f.runs = make(map[graph.Query]int)
	}
	s.f.runs[q]++
	s.f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.f.Errors[q]; err != nil {
		return nil, err
	}
	return s.f.Results[q], nil
}

func (s *session) Close(context.Context) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	s.f.closed++
	return nil
}
