package gen

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// StubClient is a deterministic Client for tests and offline runs. Responses
// are matched by prompt substring in registration order; unmatched prompts
// fail.
type StubClient struct {
	mu        sync.Mutex
	responses []stubResponse
	calls     int
}

type stubResponse struct {
	match    string
	response string
	err      error
}

func NewStubClient() *StubClient { return &StubClient{} }

// On registers a response for prompts containing match.
func (s *StubClient) On(match, response string) *StubClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, stubResponse{match: match, response: response})
	return s
}

// OnErr registers an error for prompts containing match.
func (s *StubClient) OnErr(match string, err error) *StubClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, stubResponse{match: match, err: err})
	return s
}

// Calls reports how many Generate calls have been made.
func (s *StubClient) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *StubClient) Generate(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	for _, r := range s.responses {
		if strings.Contains(prompt, r.match) {
			return r.response, r.err
		}
	}
	return "", errors.New("stub: no response registered for prompt")
}
