// ABOUTME: Stub Client returning canned responses for tests.
// ABOUTME: Records every request so tests can assert on prompt content.
package llm

import (
	"context"
	"sync"
)

// Stub is a Client that replays canned responses in order, repeating the
// last one once exhausted. If Err is set every call fails with it.
type Stub struct {
	Responses []string
	Err       error

	mu    sync.Mutex
	next  int
	Calls []Request
}

// Complete returns the next canned response.
func (s *Stub) Complete(ctx context.Context, req Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls = append(s.Calls, req)
	if s.Err != nil {
		return "", s.Err
	}
	if len(s.Responses) == 0 {
		return "", nil
	}
	i := s.next
	if i >= len(s.Responses) {
		i = len(s.Responses) - 1
	}
	s.next++
	return s.Responses[i], nil
}
