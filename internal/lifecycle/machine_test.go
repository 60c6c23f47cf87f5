package lifecycle

import (
	"errors"
	"testing"
	"time"

	"grid-maker-go/internal/clock"
)

var allStates = []State{StateInit, StateActive, StatePaused, StateError, StateClosed}

func TestTransitionTable(t *testing.T) {
	allowed := map[State][]State{
		StateInit:   {StateActive, StateError, StateClosed},
		StateActive: {StatePaused, StateError, StateClosed},
		StatePaused: {StateActive, StateError, StateClosed},
		StateError:  {StateActive, StatePaused, StateClosed},
	}
	for _, from := range allStates {
		for _, to := range allStates {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			if got := CanTransition(from, to); got != want {
				t.Fatalf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestClosedRejectsEverything(t *testing.T) {
	m := New(nil)
	if _, err := m.Transition(StateClosed, "shutdown"); err != nil {
		t.Fatalf("close: %v", err)
	}

	for _, to := range allStates {
		_, err := m.Transition(to, "again")
		var ite *InvalidTransitionError
		if !errors.As(err, &ite) {
			t.Fatalf("to %s: expected InvalidTransitionError, got %v", to, err)
		}
		if ite.From != StateClosed || m.State() != StateClosed {
			t.Fatalf("to %s: from %s state %s", to, ite.From, m.State())
		}
	}
	if n := len(m.History()); n != 1 {
		t.Fatalf("history has %d entries", n)
	}
}

func TestInvalidTransitionKeepsState(t *testing.T) {
	m := New(nil)
	if _, err := m.Transition(StatePaused, ""); err == nil {
		t.Fatalf("INIT -> PAUSED must be rejected")
	}
	if m.State() != StateInit || len(m.History()) != 0 {
		t.Fatalf("state %s history %d", m.State(), len(m.History()))
	}
}

func TestPauseResumeAndErrorRecovery(t *testing.T) {
	clk := clock.NewManual(time.Unix(1700000000, 0))
	m := New(clk)

	for _, s := range []State{StateActive, StatePaused, StateActive, StateError} {
		if _, err := m.Transition(s, "step"); err != nil {
			t.Fatalf("to %s: %v", s, err)
		}
	}
	if m.LastError() != "step" {
		t.Fatalf("last error %q", m.LastError())
	}
	if m.CanRetry(0) {
		t.Fatalf("retry must wait for the default interval")
	}

	clk.Advance(31 * time.Second)
	if !m.CanRetry(0) || !m.Summary().CanRetry {
		t.Fatalf("retry must be allowed after 31s")
	}

	tr, err := m.Transition(StateActive, "operator resume")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if tr.From != StateError || !tr.At.Equal(clk.Now()) {
		t.Fatalf("transition %+v", tr)
	}
	if m.CanRetry(0) {
		t.Fatalf("active machine cannot retry")
	}
	if !m.Is(StateActive, StatePaused) {
		t.Fatalf("Is must match any of the given states")
	}
}

func TestDispatchHooks(t *testing.T) {
	var seen, critical, cleanup []Transition
	rec := Funcs{
		Transition: func(tr Transition) { seen = append(seen, tr) },
		Critical:   func(tr Transition) { critical = append(critical, tr) },
		Cleanup:    func(tr Transition) { cleanup = append(cleanup, tr) },
	}
	var second int
	obs := Observers{rec, Funcs{Transition: func(Transition) { second++ }}}

	m := New(nil)
	for _, s := range []State{StateActive, StateError, StateClosed} {
		tr, err := m.Transition(s, "msg-"+string(s))
		if err != nil {
			t.Fatalf("to %s: %v", s, err)
		}
		Dispatch(obs, tr)
	}

	if len(seen) != 3 || seen[0].From != StateInit || seen[1].Message != "msg-ERROR" {
		t.Fatalf("seen %+v", seen)
	}
	if len(critical) != 1 || critical[0].To != StateError {
		t.Fatalf("critical %+v", critical)
	}
	if len(cleanup) != 1 || cleanup[0].To != StateClosed {
		t.Fatalf("cleanup %+v", cleanup)
	}
	if second != 3 {
		t.Fatalf("second observer saw %d transitions", second)
	}

	Dispatch(nil, seen[0])
}
