package githubapi_test

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/helmbump/internal/githubapi"
)

func quotaResponse(request *http.Request, remaining string, reset time.Time) *http.Response {
	header := http.Header{}
	header.Set(githubapi.HeaderRateLimitRemaining, remaining)
	header.Set(githubapi.HeaderRateLimitReset, strconv.FormatInt(reset.Unix(), 10))
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader("{}")),
		Request:    request,
	}
}

func TestRateLimitTransportPausesUntilReset(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	resetAt := fakeClock.Now().Add(10 * time.Second)

	calls := 0
	base := roundTripperFunc(func(request *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return quotaResponse(request, "0", resetAt), nil
		}
		return quotaResponse(request, "4999", resetAt.Add(time.Hour)), nil
	})

	observerCore, observerLogs := observer.New(zap.WarnLevel)
	transport := githubapi.NewRateLimitTransport(zap.New(observerCore), base, githubapi.RateLimitConfiguration{Clock: fakeClock})

	firstRequest, _ := http.NewRequest(http.MethodGet, "https://api.github.com/users/bot/repos", nil)
	_, err := transport.RoundTrip(firstRequest)
	require.NoError(t, err)
	require.Equal(t, 1, observerLogs.Len())

	done := make(chan error, 1)
	go func() {
		secondRequest, _ := http.NewRequest(http.MethodGet, "https://api.github.com/users/bot/repos", nil)
		_, roundTripError := transport.RoundTrip(secondRequest)
		done <- roundTripError
	}()

	waitContext, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, fakeClock.BlockUntilContext(waitContext, 1))
	require.Equal(t, 1, calls)

	fakeClock.Advance(10 * time.Second)

	select {
	case roundTripError := <-done:
		require.NoError(t, roundTripError)
	case <-time.After(5 * time.Second):
		t.Fatal("request was not released after the reset time")
	}
	require.Equal(t, 2, calls)
}

func TestRateLimitTransportDoesNotWaitForDistantReset(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	base := roundTripperFunc(func(request *http.Request) (*http.Response, error) {
		return quotaResponse(request, "0", fakeClock.Now().Add(time.Hour)), nil
	})
	transport := githubapi.NewRateLimitTransport(nil, base, githubapi.RateLimitConfiguration{Clock: fakeClock})

	for attempt := 0; attempt < 2; attempt++ {
		request, _ := http.NewRequest(http.MethodGet, "https://api.github.com/users/bot/repos", nil)
		_, err := transport.RoundTrip(request)
		require.NoError(t, err)
	}
}

func TestRateLimitTransportHonorsCancellationWhilePaused(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	base := roundTripperFunc(func(request *http.Request) (*http.Response, error) {
		return quotaResponse(request, "0", fakeClock.Now().Add(30*time.Second)), nil
	})
	transport := githubapi.NewRateLimitTransport(nil, base, githubapi.RateLimitConfiguration{Clock: fakeClock})

	firstRequest, _ := http.NewRequest(http.MethodGet, "https://api.github.com/users/bot/repos", nil)
	_, err := transport.RoundTrip(firstRequest)
	require.NoError(t, err)

	cancelledContext, cancel := context.WithCancel(context.Background())
	cancel()
	secondRequest, _ := http.NewRequestWithContext(cancelledContext, http.MethodGet, "https://api.github.com/users/bot/repos", nil)
	_, err = transport.RoundTrip(secondRequest)
	require.ErrorIs(t, err, context.Canceled)
}
