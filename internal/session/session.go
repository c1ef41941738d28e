package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/shyim/carbon-analyzer/internal/client"
	"github.com/shyim/carbon-analyzer/internal/models"
	"github.com/shyim/carbon-analyzer/internal/recommend"
)

type Analyzer interface {
	Analyze(ctx context.Context, url string) (*models.AnalysisResult, error)
}

type Observer func(State)

type Session struct {
	analyzer Analyzer
	logger   *zap.Logger

	mu        sync.Mutex
	state     State
	nextToken uint64
	observers []Observer
}

type Option func(*Session)

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithObserver registers fn to receive every new state. Observers run
// synchronously and must not call back into the session.
func WithObserver(fn Observer) Option {
	return func(s *Session) {
		s.observers = append(s.observers, fn)
	}
}

func New(analyzer Analyzer, opts ...Option) *Session {
	s := &Session{
		analyzer: analyzer,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Recommendations are recomputed from the current result on every call.
func (s *Session) Recommendations() []models.Recommendation {
	return recommend.ForResult(s.State().Result)
}

// Analyze runs one analysis for url. It returns ErrInFlight without
// contacting the API when another analysis is still running. Failures of
// the analysis itself are recorded in the returned state, not as an error.
func (s *Session) Analyze(ctx context.Context, url string) (State, error) {
	s.mu.Lock()
	token := s.nextToken + 1
	if err := s.apply(Submitted{Token: token, URL: url}); err != nil {
		st := s.state
		s.mu.Unlock()
		s.logger.Debug("submission rejected", zap.String("url", url), zap.Error(err))
		return st, err
	}
	s.nextToken = token
	s.mu.Unlock()

	result, err := s.analyzer.Analyze(ctx, url)
	if err == nil && result == nil {
		err = client.ErrMalformedResponse
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.logger.Debug("analysis failed", zap.String("url", url), zap.Error(err))
		if aerr := s.apply(Errored{Token: token, Message: client.UserMessage(err)}); aerr != nil {
			return s.state, aerr
		}
		return s.state, nil
	}
	if aerr := s.apply(Completed{Token: token, Result: result}); aerr != nil {
		return s.state, aerr
	}
	return s.state, nil
}

// apply must be called with mu held.
func (s *Session) apply(e Event) error {
	next, err := Transition(s.state, e)
	if err != nil {
		return err
	}
	s.state = next
	for _, fn := range s.observers {
		fn(next)
	}
	return nil
}
