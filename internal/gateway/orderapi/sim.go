package orderapi

import (
	"context"
	"sync"

	"condor/internal/model"

	"github.com/google/uuid"
)

// Simulated is an in-process placer for market.source=sim runs and tests:
// it accepts everything (or fails the first N submits when scripted).
type Simulated struct {
	mu       sync.Mutex
	failures int
	errFn    func() error
	accepted []string
}

func NewSimulated() *Simulated { return &Simulated{} }

// FailNext makes the next n submits fail with err.
func (s *Simulated) FailNext(n int, err error) {
	s.mu.Lock()
	s.failures = n
	s.errFn = func() error { return err }
	s.mu.Unlock()
}

func (s *Simulated) SubmitOrder(_ context.Context, _ *model.AutoOrder) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return "", s.errFn()
	}
	id := uuid.NewString()
	s.accepted = append(s.accepted, id)
	return id, nil
}

// Accepted returns the external ids of accepted submissions.
func (s *Simulated) Accepted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.accepted...)
}
