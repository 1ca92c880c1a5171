package judge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func instantSleep(recorded *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		if recorded != nil {
			*recorded = append(*recorded, d)
		}
		return nil
	}
}

func encode(value string) string {
	return base64.StdEncoding.EncodeToString([]byte(value))
}

func TestSubmitRequiresConfiguration(t *testing.T) {
	client := NewHTTPClient(Config{}, zerolog.Nop())

	_, err := client.Submit(context.Background(), "print(1)", 71, "")
	require.ErrorIs(t, err, ErrNotConfigured)

	_, err = client.Wait(context.Background(), "tok")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestSubmitSendsEncodedPayload(t *testing.T) {
	var received submitPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "secret", r.Header.Get("X-RapidAPI-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(submitResponse{Token: "abc-123"})
	}))
	defer server.Close()

	client := NewHTTPClient(Config{BaseURL: server.URL, APIKey: "secret"}, zerolog.Nop())

	token, err := client.Submit(context.Background(), "print('hi')", 71, "5\n")
	require.NoError(t, err)
	require.Equal(t, "abc-123", token)
	require.Equal(t, encode("print('hi')"), received.SourceCode)
	require.Equal(t, encode("5\n"), received.Stdin)
	require.Equal(t, 71, received.LanguageID)
}

func TestSubmitSurfacesJudgeErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"language_id is invalid"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(Config{BaseURL: server.URL}, zerolog.Nop())

	_, err := client.Submit(context.Background(), "x", 999, "")
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, http.StatusUnprocessableEntity, connErr.Status)
	require.Contains(t, connErr.Body, "language_id is invalid")
}

func TestWaitPollsUntilTerminal(t *testing.T) {
	polls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls++
		status := statusBody{ID: StatusProcessing, Description: "Processing"}
		stdout := ""
		if polls >= 3 {
			status = statusBody{ID: StatusAccepted, Description: "Accepted"}
			stdout = encode("42\n")
		}
		json.NewEncoder(w).Encode(resultResponse{
			Token:  "tok",
			Status: status,
			Stdout: stdout,
			Time:   "0.021",
			Memory: 1024,
		})
	}))
	defer server.Close()

	var sleeps []time.Duration
	client := NewHTTPClient(Config{
		BaseURL:         server.URL,
		PollInterval:    100 * time.Millisecond,
		PollMaxInterval: time.Second,
		PollBackoff:     2,
		PollMaxAttempts: 5,
	}, zerolog.Nop(), WithSleep(instantSleep(&sleeps)))

	result, err := client.Wait(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, result.StatusID)
	require.Equal(t, "42\n", result.Stdout)
	require.InDelta(t, 0.021, result.TimeSec, 0.0001)
	require.Equal(t, int64(1024), result.MemoryKB)
	require.Equal(t, 3, polls)
	require.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, sleeps)
}

func TestWaitToleratesMalformedTimeField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(resultResponse{
			Token:  "tok",
			Status: statusBody{ID: StatusAccepted, Description: "Accepted"},
			Stdout: encode("ok"),
			Time:   "not-a-number",
			Memory: 512,
		})
	}))
	defer server.Close()

	client := NewHTTPClient(Config{
		BaseURL:         server.URL,
		PollInterval:    time.Millisecond,
		PollMaxAttempts: 3,
	}, zerolog.Nop(), WithSleep(instantSleep(nil)))

	// A time field the judge mangled must not fail the wait; the timing
	// simply stays unreported.
	result, err := client.Wait(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, result.StatusID)
	require.Zero(t, result.TimeSec)
	require.Equal(t, int64(512), result.MemoryKB)
}

func TestWaitDoublesIntervalOnRateLimit(t *testing.T) {
	polls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls++
		if polls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(resultResponse{
			Token:  "tok",
			Status: statusBody{ID: StatusAccepted, Description: "Accepted"},
			Stdout: encode("ok"),
		})
	}))
	defer server.Close()

	var sleeps []time.Duration
	client := NewHTTPClient(Config{
		BaseURL:         server.URL,
		PollInterval:    time.Second,
		PollMaxInterval: 10 * time.Second,
		PollBackoff:     1.5,
		PollMaxAttempts: 5,
	}, zerolog.Nop(), WithSleep(instantSleep(&sleeps)))

	_, err := client.Wait(context.Background(), "tok")
	require.NoError(t, err)
	// The 429 answer doubles the one-second interval before the next poll.
	require.Equal(t, []time.Duration{2 * time.Second}, sleeps)
}

func TestWaitTimesOutAfterMaxAttempts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(resultResponse{
			Token:  "tok",
			Status: statusBody{ID: StatusInQueue, Description: "In Queue"},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(Config{
		BaseURL:         server.URL,
		PollInterval:    time.Millisecond,
		PollMaxAttempts: 3,
	}, zerolog.Nop(), WithSleep(instantSleep(nil)))

	_, err := client.Wait(context.Background(), "tok")
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Equal(t, 3, timeoutErr.Attempts)
	require.Equal(t, "tok", timeoutErr.Token)
}

func TestWaitStopsWhenContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(resultResponse{
			Token:  "tok",
			Status: statusBody{ID: StatusProcessing, Description: "Processing"},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(Config{
		BaseURL:         server.URL,
		PollInterval:    time.Millisecond,
		PollMaxAttempts: 10,
	}, zerolog.Nop(), WithSleep(func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}))

	_, err := client.Wait(context.Background(), "tok")
	require.True(t, errors.Is(err, context.Canceled))
}

func TestNextIntervalHonoursCap(t *testing.T) {
	require.Equal(t, 2*time.Second, nextInterval(time.Second, 2, 10*time.Second))
	require.Equal(t, 10*time.Second, nextInterval(8*time.Second, 2, 10*time.Second))
}
