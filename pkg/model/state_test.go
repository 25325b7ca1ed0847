package model

import "testing"

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		state    AtomState
		terminal bool
	}{
		{AtomStateUnscheduled, false},
		{AtomStateRunnable, false},
		{AtomStateExecuting, false},
		{AtomStateWaitingSemaphore, false},
		{AtomStateCompleted, true},
		{AtomStateTimedOut, true},
		{AtomStateCancelled, true},
		{AtomStateSemaphoreTimeout, true},
	}
	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.terminal {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.state, got, tt.terminal)
		}
	}
}

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to AtomState
		want     bool
	}{
		{AtomStateUnscheduled, AtomStateRunnable, true},
		{AtomStateUnscheduled, AtomStateCancelled, true},
		{AtomStateUnscheduled, AtomStateExecuting, false},
		{AtomStateRunnable, AtomStateExecuting, true},
		{AtomStateRunnable, AtomStateCompleted, false},
		{AtomStateExecuting, AtomStateCompleted, true},
		{AtomStateExecuting, AtomStateTimedOut, true},
		{AtomStateExecuting, AtomStateCancelled, true},
		{AtomStateCompleted, AtomStateRunnable, false},
		{AtomStateExecuting, AtomStateRunnable, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCanSoftTransitionTo(t *testing.T) {
	tests := []struct {
		from, to AtomState
		want     bool
	}{
		{AtomStateUnscheduled, AtomStateWaitingSemaphore, true},
		{AtomStateUnscheduled, AtomStateCompleted, true},
		{AtomStateUnscheduled, AtomStateExecuting, false},
		{AtomStateWaitingSemaphore, AtomStateCompleted, true},
		{AtomStateWaitingSemaphore, AtomStateSemaphoreTimeout, true},
		{AtomStateWaitingSemaphore, AtomStateExecuting, false},
		{AtomStateCompleted, AtomStateWaitingSemaphore, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanSoftTransitionTo(tt.to); got != tt.want {
			t.Errorf("soft %s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestResultCodeString(t *testing.T) {
	if got := ResultSuccess.String(); got != "SUCCESS" {
		t.Errorf("ResultSuccess.String() = %q", got)
	}
	if got := ResultCode(200).String(); got != "RESULT(200)" {
		t.Errorf("unknown result String() = %q", got)
	}
}

func TestResultCodeOK(t *testing.T) {
	if !ResultSuccess.OK() {
		t.Error("ResultSuccess.OK() = false")
	}
	for _, r := range []ResultCode{ResultJobFault, ResultTimedOut, ResultCancelled, ResultSemaphoreTimedOut, ResultDependencyFailed, ResultUnknownFault} {
		if r.OK() {
			t.Errorf("%s.OK() = true", r)
		}
	}
}
