package judge

import "fmt"

// Judge status identifiers as reported by the remote execution backend.
// Identifiers below Accepted mean the submission is still being processed.
const (
	StatusInQueue             = 1
	StatusProcessing          = 2
	StatusAccepted            = 3
	StatusWrongAnswer         = 4
	StatusTimeLimitExceeded   = 5
	StatusCompilationError    = 6
	StatusRuntimeErrorSIGSEGV = 7
	StatusMemoryLimitExceeded = 8
	StatusRuntimeErrorSIGXFSZ = 9
	StatusRuntimeErrorSIGFPE  = 10
	StatusRuntimeErrorSIGABRT = 11
	StatusRuntimeErrorNZEC    = 12
	StatusInternalError       = 13
	StatusExecFormatError     = 14
)

// Verdict is the domain-level outcome for a single test case.
type Verdict string

const (
	VerdictAccepted            Verdict = "accepted"
	VerdictWrongAnswer         Verdict = "wrong_answer"
	VerdictTimeLimitExceeded   Verdict = "time_limit_exceeded"
	VerdictCompilationError    Verdict = "compilation_error"
	VerdictRuntimeError        Verdict = "runtime_error"
	VerdictMemoryLimitExceeded Verdict = "memory_limit_exceeded"
	VerdictInternalError       Verdict = "internal_error"
	VerdictExecutionError      Verdict = "execution_error"
)

// Result is the decoded terminal response for one judged run.
type Result struct {
	Token         string
	StatusID      int
	StatusName    string
	Stdout        string
	Stderr        string
	CompileOutput string
	Message       string
	TimeSec       float64
	MemoryKB      int64
}

// Terminal reports whether the judge considers this run finished.
func (r Result) Terminal() bool {
	return r.StatusID >= StatusAccepted
}

// ErrNotConfigured is returned when the client has no judge endpoint to talk to.
var ErrNotConfigured = fmt.Errorf("judge: base url not configured")

// ConnectionError indicates the judge could not be reached or rejected the request.
type ConnectionError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("judge: %s failed with status %d: %s", e.Op, e.Status, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("judge: %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("judge: %s failed with status %d", e.Op, e.Status)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TimeoutError indicates polling exhausted every attempt without a terminal status.
type TimeoutError struct {
	Token    string
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("judge: submission %s still pending after %d polls", e.Token, e.Attempts)
}
