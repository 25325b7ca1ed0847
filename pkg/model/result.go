package model

import "fmt"

// ResultCode is the outcome of an atom, as reported by the hardware through
// JobCompleted or synthesized by the scheduler for atoms that never ran.
type ResultCode uint32

const (
	ResultSuccess ResultCode = iota + 1
	ResultJobFault
	ResultTimedOut
	ResultCancelled
	ResultSemaphoreTimedOut
	ResultDependencyFailed
	ResultUnknownFault
)

// String returns the string representation of the result code.
func (r ResultCode) String() string {
	switch r {
	case ResultSuccess:
		return "SUCCESS"
	case ResultJobFault:
		return "JOB_FAULT"
	case ResultTimedOut:
		return "TIMED_OUT"
	case ResultCancelled:
		return "CANCELLED"
	case ResultSemaphoreTimedOut:
		return "SEMAPHORE_TIMED_OUT"
	case ResultDependencyFailed:
		return "DEPENDENCY_FAILED"
	case ResultUnknownFault:
		return "UNKNOWN_FAULT"
	}
	return fmt.Sprintf("RESULT(%d)", uint32(r))
}

// OK returns true for a successful completion.
func (r ResultCode) OK() bool {
	return r == ResultSuccess
}
