package judge

import (
	"encoding/base64"
	"strings"
)

// CaseResult is the graded outcome for a single test case.
type CaseResult struct {
	Input        string  `json:"input"`
	Expected     string  `json:"expected"`
	Actual       string  `json:"actual"`
	Passed       bool    `json:"passed"`
	ErrorMessage string  `json:"error_message,omitempty"`
	TimeMS       int64   `json:"time_ms"`
	MemoryKB     int64   `json:"memory_kb"`
	StatusID     int     `json:"status_id"`
	Verdict      Verdict `json:"verdict"`
}

// DecodeField decodes a transport-encoded judge field. Fields arrive base64
// encoded; anything that fails to decode is treated as plain text.
func DecodeField(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	decoded, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return value
	}
	return string(decoded)
}

// NormalizeOutput canonicalises program output before comparison: line
// endings become LF, every line is trimmed, and so is the whole string.
func NormalizeOutput(output string) string {
	normalized := strings.ReplaceAll(output, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	lines := strings.Split(normalized, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// OutputsMatch reports whether two outputs are equal after normalization.
func OutputsMatch(actual, expected string) bool {
	return NormalizeOutput(actual) == NormalizeOutput(expected)
}

// VerdictForStatus maps a judge status id to a domain verdict.
func VerdictForStatus(statusID int) Verdict {
	switch statusID {
	case StatusAccepted:
		return VerdictAccepted
	case StatusWrongAnswer:
		return VerdictWrongAnswer
	case StatusTimeLimitExceeded:
		return VerdictTimeLimitExceeded
	case StatusCompilationError:
		return VerdictCompilationError
	case StatusMemoryLimitExceeded:
		return VerdictMemoryLimitExceeded
	case StatusRuntimeErrorSIGSEGV, StatusRuntimeErrorSIGXFSZ, StatusRuntimeErrorSIGFPE,
		StatusRuntimeErrorSIGABRT, StatusRuntimeErrorNZEC:
		return VerdictRuntimeError
	default:
		return VerdictInternalError
	}
}

// Grade turns a terminal judge result plus the expected output into a graded
// case record. The output comparison always wins over the judge's own
// verdict: a judge-side accepted run with mismatching output is a wrong
// answer.
func Grade(result Result, input, expected string) CaseResult {
	verdict := VerdictForStatus(result.StatusID)
	matched := OutputsMatch(result.Stdout, expected)

	if verdict == VerdictAccepted && !matched {
		verdict = VerdictWrongAnswer
	}

	graded := CaseResult{
		Input:    input,
		Expected: expected,
		Actual:   result.Stdout,
		Passed:   verdict == VerdictAccepted,
		TimeMS:   int64(result.TimeSec * 1000),
		MemoryKB: result.MemoryKB,
		StatusID: result.StatusID,
		Verdict:  verdict,
	}

	switch verdict {
	case VerdictCompilationError:
		graded.ErrorMessage = firstNonEmpty(result.CompileOutput, result.Message)
	case VerdictRuntimeError, VerdictMemoryLimitExceeded, VerdictTimeLimitExceeded, VerdictInternalError:
		graded.ErrorMessage = firstNonEmpty(result.Stderr, result.Message, result.StatusName)
	}

	return graded
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
