package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shyim/carbon-analyzer/internal/client"
	"github.com/shyim/carbon-analyzer/internal/models"
)

func sampleResult(co2 float64) *models.AnalysisResult {
	return &models.AnalysisResult{
		TotalCO2: co2,
		Metrics:  &models.Metrics{ImagesSize: 2, JSSize: 1, Caching: "Poor"},
	}
}

func TestTransition_HappyPath(t *testing.T) {
	s, err := Transition(State{}, Submitted{Token: 1, URL: "https://a.test"})
	require.NoError(t, err)
	assert.Equal(t, Loading, s.Phase)
	assert.Equal(t, "https://a.test", s.URL)

	res := sampleResult(1)
	s, err = Transition(s, Completed{Token: 1, Result: res})
	require.NoError(t, err)
	assert.Equal(t, Succeeded, s.Phase)
	assert.Same(t, res, s.Result)
	assert.Empty(t, s.Message)
}

func TestTransition_RejectsOverlap(t *testing.T) {
	loading := State{Phase: Loading, Token: 3, URL: "https://a.test"}
	s, err := Transition(loading, Submitted{Token: 4, URL: "https://b.test"})
	assert.ErrorIs(t, err, ErrInFlight)
	assert.Equal(t, loading, s)
}

func TestTransition_StaleCompletion(t *testing.T) {
	loading := State{Phase: Loading, Token: 2}

	s, err := Transition(loading, Completed{Token: 1, Result: sampleResult(1)})
	assert.ErrorIs(t, err, ErrStaleToken)
	assert.Equal(t, loading, s)

	_, err = Transition(State{Phase: Idle}, Errored{Token: 0, Message: "x"})
	assert.ErrorIs(t, err, ErrStaleToken)
}

func TestTransition_ErrorKeepsPreviousResult(t *testing.T) {
	prev := sampleResult(0.7)
	s, err := Transition(State{Phase: Succeeded, Token: 1, Result: prev}, Submitted{Token: 2, URL: "u"})
	require.NoError(t, err)
	assert.Same(t, prev, s.Result)

	s, err = Transition(s, Errored{Token: 2, Message: "Analysis failed"})
	require.NoError(t, err)
	assert.Equal(t, Failed, s.Phase)
	assert.Equal(t, "Analysis failed", s.Message)
	assert.Same(t, prev, s.Result)

	// a new submission clears the error
	s, err = Transition(s, Submitted{Token: 3, URL: "u"})
	require.NoError(t, err)
	assert.Empty(t, s.Message)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "loading", Loading.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "succeeded", Succeeded.String())
}

type fakeAnalyzer struct {
	result *models.AnalysisResult
	err    error
	// release, when set, blocks Analyze until closed
	release chan struct{}
	started chan struct{}
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, url string) (*models.AnalysisResult, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	return f.result, f.err
}

func TestSession_Success(t *testing.T) {
	var phases []Phase
	s := New(&fakeAnalyzer{result: sampleResult(1.2)}, WithObserver(func(st State) {
		phases = append(phases, st.Phase)
	}))

	st, err := s.Analyze(context.Background(), "https://a.test")
	require.NoError(t, err)
	assert.Equal(t, Succeeded, st.Phase)
	assert.Equal(t, []Phase{Loading, Succeeded}, phases)
	assert.Len(t, s.Recommendations(), 4)
}

func TestSession_FailureMessage(t *testing.T) {
	s := New(&fakeAnalyzer{err: &client.RequestError{StatusCode: 500}})

	st, err := s.Analyze(context.Background(), "https://a.test")
	require.NoError(t, err)
	assert.Equal(t, Failed, st.Phase)
	assert.Equal(t, "Analysis failed", st.Message)
	assert.Empty(t, s.Recommendations())

	s = New(&fakeAnalyzer{err: &client.TransportError{Err: errors.New("connection refused")}})
	st, _ = s.Analyze(context.Background(), "https://a.test")
	assert.Equal(t, "connection refused", st.Message)
}

func TestSession_NilResultIsFailure(t *testing.T) {
	s := New(&fakeAnalyzer{})
	st, err := s.Analyze(context.Background(), "https://a.test")
	require.NoError(t, err)
	assert.Equal(t, Failed, st.Phase)
}

func TestSession_RejectsWhileInFlight(t *testing.T) {
	fa := &fakeAnalyzer{
		result:  sampleResult(1),
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
	s := New(fa)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		st, err := s.Analyze(context.Background(), "https://first.test")
		assert.NoError(t, err)
		assert.Equal(t, Succeeded, st.Phase)
	}()

	<-fa.started
	st, err := s.Analyze(context.Background(), "https://second.test")
	assert.ErrorIs(t, err, ErrInFlight)
	assert.Equal(t, Loading, st.Phase)
	assert.Equal(t, "https://first.test", st.URL)

	close(fa.release)
	wg.Wait()

	assert.Equal(t, Succeeded, s.State().Phase)
	assert.Equal(t, uint64(1), s.State().Token)
}
