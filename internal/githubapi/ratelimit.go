package githubapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// GitHub rate limit headers in canonical form.
const (
	HeaderRateLimitRemaining = "X-Ratelimit-Remaining"
	HeaderRateLimitReset     = "X-Ratelimit-Reset"
)

const (
	// MaximumRateLimitPauseConstant bounds how long requests are held back after the quota is exhausted.
	MaximumRateLimitPauseConstant = time.Minute

	rateLimitBurstConstant                 = 1
	exhaustedRemainingValueConstant        = "0"
	logMessageRateLimitExhaustedConstant   = "GitHub rate limit exhausted, pausing requests until reset"
	logMessageRateLimitResetTooFarConstant = "GitHub rate limit exhausted and reset is too far away to wait for"
	logFieldResetAtConstant                = "reset_at"
	logFieldPauseConstant                  = "pause"
)

// RateLimitConfiguration tunes the proactive limiter.
// A non-positive RequestsPerSecond disables proactive throttling.
type RateLimitConfiguration struct {
	RequestsPerSecond float64
	Clock             clockwork.Clock
}

// RateLimitTransport throttles outgoing requests and holds further requests
// back once a response reports an exhausted quota.
type RateLimitTransport struct {
	base     http.RoundTripper
	logger   *zap.Logger
	limiter  *rate.Limiter
	clock    clockwork.Clock
	mutex    sync.Mutex
	resumeAt time.Time
}

// NewRateLimitTransport wraps base with rate limiting.
func NewRateLimitTransport(logger *zap.Logger, base http.RoundTripper, configuration RateLimitConfiguration) *RateLimitTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if base == nil {
		base = http.DefaultTransport
	}
	clock := configuration.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	limit := rate.Inf
	if configuration.RequestsPerSecond > 0 {
		limit = rate.Limit(configuration.RequestsPerSecond)
	}

	return &RateLimitTransport{
		base:    base,
		logger:  logger,
		limiter: rate.NewLimiter(limit, rateLimitBurstConstant),
		clock:   clock,
	}
}

// RoundTrip implements http.RoundTripper.
func (transport *RateLimitTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	requestContext := request.Context()

	if pause := transport.remainingPause(); pause > 0 {
		select {
		case <-requestContext.Done():
			return nil, requestContext.Err()
		case <-transport.clock.After(pause):
		}
	}

	if waitError := transport.limiter.Wait(requestContext); waitError != nil {
		return nil, waitError
	}

	response, roundTripError := transport.base.RoundTrip(request)
	if roundTripError != nil {
		return response, roundTripError
	}

	transport.observeQuota(response)
	return response, nil
}

func (transport *RateLimitTransport) remainingPause() time.Duration {
	transport.mutex.Lock()
	defer transport.mutex.Unlock()
	return transport.resumeAt.Sub(transport.clock.Now())
}

func (transport *RateLimitTransport) observeQuota(response *http.Response) {
	if response.Header.Get(HeaderRateLimitRemaining) != exhaustedRemainingValueConstant {
		return
	}

	resetSeconds, parseError := strconv.ParseInt(response.Header.Get(HeaderRateLimitReset), 10, 64)
	if parseError != nil {
		return
	}
	resetAt := time.Unix(resetSeconds, 0)
	pause := resetAt.Sub(transport.clock.Now())
	if pause <= 0 {
		return
	}
	if pause > MaximumRateLimitPauseConstant {
		transport.logger.Warn(logMessageRateLimitResetTooFarConstant, zap.Time(logFieldResetAtConstant, resetAt))
		return
	}

	transport.mutex.Lock()
	if resetAt.After(transport.resumeAt) {
		transport.resumeAt = resetAt
	}
	transport.mutex.Unlock()

	transport.logger.Warn(logMessageRateLimitExhaustedConstant, zap.Time(logFieldResetAtConstant, resetAt), zap.Duration(logFieldPauseConstant, pause))
}
