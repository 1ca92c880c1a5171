package judge

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeFieldFallsBackToPlainText(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("hello\n"))
	require.Equal(t, "hello\n", DecodeField(encoded))
	require.Equal(t, "", DecodeField(""))
	require.Equal(t, "not base64!!", DecodeField("not base64!!"))
}

func TestNormalizeOutput(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{"crlf", "a\r\nb\r\n", "a\nb"},
		{"bare cr", "a\rb", "a\nb"},
		{"trailing spaces per line", "  1  \n 2 \n", "1\n2"},
		{"surrounding whitespace", "\n\n  result  \n\n", "result"},
		{"empty", "   ", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, NormalizeOutput(tc.input))
		})
	}
}

func TestGradeAcceptedRequiresMatchingOutput(t *testing.T) {
	result := Result{StatusID: StatusAccepted, Stdout: "4\r\n", TimeSec: 0.1, MemoryKB: 2048}

	graded := Grade(result, "2 2", "4")
	require.True(t, graded.Passed)
	require.Equal(t, VerdictAccepted, graded.Verdict)
	require.Equal(t, int64(100), graded.TimeMS)

	// A judge-side accepted run never overrides a literal mismatch.
	graded = Grade(Result{StatusID: StatusAccepted, Stdout: "5"}, "2 2", "4")
	require.False(t, graded.Passed)
	require.Equal(t, VerdictWrongAnswer, graded.Verdict)
}

func TestGradeMapsFailureStatuses(t *testing.T) {
	cases := []struct {
		statusID int
		verdict  Verdict
	}{
		{StatusWrongAnswer, VerdictWrongAnswer},
		{StatusTimeLimitExceeded, VerdictTimeLimitExceeded},
		{StatusCompilationError, VerdictCompilationError},
		{StatusMemoryLimitExceeded, VerdictMemoryLimitExceeded},
		{StatusRuntimeErrorSIGSEGV, VerdictRuntimeError},
		{StatusRuntimeErrorNZEC, VerdictRuntimeError},
		{StatusInternalError, VerdictInternalError},
		{StatusExecFormatError, VerdictInternalError},
	}

	for _, tc := range cases {
		graded := Grade(Result{StatusID: tc.statusID, Stdout: "4"}, "in", "4")
		require.Equal(t, tc.verdict, graded.Verdict, "status %d", tc.statusID)
		require.False(t, graded.Passed)
	}
}

func TestGradeCapturesErrorMessages(t *testing.T) {
	graded := Grade(Result{StatusID: StatusCompilationError, CompileOutput: "main.c:1: error"}, "", "4")
	require.Equal(t, "main.c:1: error", graded.ErrorMessage)

	graded = Grade(Result{StatusID: StatusRuntimeErrorNZEC, Stderr: "panic: index out of range"}, "", "4")
	require.Equal(t, "panic: index out of range", graded.ErrorMessage)

	graded = Grade(Result{StatusID: StatusInternalError, StatusName: "Internal Error"}, "", "4")
	require.Equal(t, "Internal Error", graded.ErrorMessage)
}
