// Package session tracks one user's analysis: what was asked, whether it
// is still running, and what came back.
package session

import (
	"errors"
	"fmt"

	"github.com/shyim/carbon-analyzer/internal/models"
)

type Phase int

const (
	Idle Phase = iota
	Loading
	Failed
	Succeeded
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Failed:
		return "failed"
	case Succeeded:
		return "succeeded"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

var (
	// ErrInFlight rejects a submission while another analysis is running.
	ErrInFlight = errors.New("analysis already in progress")
	// ErrStaleToken rejects a completion that does not belong to the running analysis.
	ErrStaleToken = errors.New("stale analysis token")
)

// State is a value; Transition never mutates its input.
//
// Result holds the last successful analysis. It survives Loading and Failed
// so a previous report stays on screen next to a new error.
type State struct {
	Phase   Phase
	Token   uint64
	URL     string
	Message string
	Result  *models.AnalysisResult
}

type Event interface {
	event()
}

type Submitted struct {
	Token uint64
	URL   string
}

type Completed struct {
	Token  uint64
	Result *models.AnalysisResult
}

type Errored struct {
	Token   uint64
	Message string
}

func (Submitted) event() {}
func (Completed) event() {}
func (Errored) event()   {}

// Transition applies e to s. On error the returned state equals s.
func Transition(s State, e Event) (State, error) {
	switch ev := e.(type) {
	case Submitted:
		if s.Phase == Loading {
			return s, ErrInFlight
		}
		return State{
			Phase:  Loading,
			Token:  ev.Token,
			URL:    ev.URL,
			Result: s.Result,
		}, nil

	case Completed:
		if s.Phase != Loading || ev.Token != s.Token {
			return s, ErrStaleToken
		}
		if ev.Result == nil {
			return s, errors.New("completed without a result")
		}
		return State{
			Phase:  Succeeded,
			Token:  s.Token,
			URL:    s.URL,
			Result: ev.Result,
		}, nil

	case Errored:
		if s.Phase != Loading || ev.Token != s.Token {
			return s, ErrStaleToken
		}
		return State{
			Phase:   Failed,
			Token:   s.Token,
			URL:     s.URL,
			Message: ev.Message,
			Result:  s.Result,
		}, nil

	default:
		return s, fmt.Errorf("unknown event %T", e)
	}
}
