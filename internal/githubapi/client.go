package githubapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v75/github"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/temirov/helmbump/internal/githubauth"
)

const (
	// DefaultBaseURLConstant is the public GitHub REST endpoint.
	DefaultBaseURLConstant = "https://api.github.com/"

	tokenNotConfiguredMessageConstant        = "github api token not configured"
	invalidInputErrorTemplateConstant        = "%s: %s"
	requestFailedErrorTemplateConstant       = "%s %s failed with status %d: %s"
	requestTransportErrorTemplateConstant    = "%s %s failed: %s"
	responseDecodingErrorTemplateConstant    = "%s %s response decoding failed: %s"
	requestConstructionErrorTemplateConstant = "%s %s request construction failed: %w"
	requiredValueMessageConstant             = "value required"
	invalidBaseURLMessageTemplateConstant    = "invalid base url: %s"
	resourceFieldNameConstant                = "resource"
	baseURLFieldNameConstant                 = "base_url"
	urlPathSeparatorConstant                 = "/"
	logMessageRequestCompletedConstant       = "GitHub API request completed"
	logMessageRequestAcceptedConstant        = "GitHub API request accepted for asynchronous processing"
	logMessageRequestFailedConstant          = "GitHub API request failed"
	logFieldMethodConstant                   = "method"
	logFieldURLConstant                      = "url"
	logFieldStatusCodeConstant               = "status_code"
	unknownStatusMessageConstant             = "unexpected response"
	minimumSuccessfulStatusCodeConstant      = 200
	maximumSuccessfulStatusCodeConstant      = 299
	transportFailureStatusCodeConstant       = 0
)

// ErrTokenNotConfigured indicates the client was constructed without a token.
var ErrTokenNotConfigured = errors.New(tokenNotConfiguredMessageConstant)

// TransportDecorator wraps the innermost HTTP transport, typically to record metrics.
type TransportDecorator func(next http.RoundTripper) http.RoundTripper

// ClientConfiguration describes how to reach and authenticate against the GitHub API.
type ClientConfiguration struct {
	BaseURL           string
	Token             string
	RequestsPerSecond float64
	BaseTransport     http.RoundTripper
	Clock             clockwork.Clock
	Decorators        []TransportDecorator
}

// InvalidInputError surfaces validation issues for client inputs.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// RequestFailedError reports a request that did not yield a 2xx response.
// StatusCode is zero when the request never produced a response.
type RequestFailedError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
	Cause      error
}

// Error describes the failed request.
func (requestError RequestFailedError) Error() string {
	if requestError.StatusCode == transportFailureStatusCodeConstant {
		return fmt.Sprintf(requestTransportErrorTemplateConstant, requestError.Method, requestError.URL, requestError.Message)
	}
	return fmt.Sprintf(requestFailedErrorTemplateConstant, requestError.Method, requestError.URL, requestError.StatusCode, requestError.Message)
}

// Unwrap exposes the underlying go-github or transport error.
func (requestError RequestFailedError) Unwrap() error {
	return requestError.Cause
}

// ResponseDecodingError reports a successful response whose payload could not be decoded.
type ResponseDecodingError struct {
	Method string
	URL    string
	Cause  error
}

// Error describes the decoding failure.
func (decodingError ResponseDecodingError) Error() string {
	return fmt.Sprintf(responseDecodingErrorTemplateConstant, decodingError.Method, decodingError.URL, decodingError.Cause)
}

// Unwrap exposes the JSON error.
func (decodingError ResponseDecodingError) Unwrap() error {
	return decodingError.Cause
}

// Client issues authenticated JSON requests against the GitHub REST API.
type Client struct {
	logger       *zap.Logger
	githubClient *github.Client
}

// NewClient builds a client whose transport stack is, outermost first:
// token authentication, rate limiting, then the configured decorators.
func NewClient(logger *zap.Logger, configuration ClientConfiguration) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	trimmedToken := strings.TrimSpace(configuration.Token)
	if len(trimmedToken) == 0 {
		return nil, ErrTokenNotConfigured
	}

	baseURL, baseURLError := parseBaseURL(configuration.BaseURL)
	if baseURLError != nil {
		return nil, baseURLError
	}

	transport := configuration.BaseTransport
	if transport == nil {
		transport = http.DefaultTransport
	}
	for _, decorator := range configuration.Decorators {
		if decorator == nil {
			continue
		}
		transport = decorator(transport)
	}

	rateLimitedTransport := NewRateLimitTransport(logger, transport, RateLimitConfiguration{
		RequestsPerSecond: configuration.RequestsPerSecond,
		Clock:             configuration.Clock,
	})

	authenticatedTransport := &oauth2.Transport{
		Source: githubauth.NewTokenSource(trimmedToken),
		Base:   rateLimitedTransport,
	}

	githubClient := github.NewClient(&http.Client{Transport: authenticatedTransport})
	githubClient.BaseURL = baseURL

	return &Client{logger: logger, githubClient: githubClient}, nil
}

// Get decodes the JSON body of a GET request into target.
func (client *Client) Get(executionContext context.Context, resource string, target any) error {
	return client.execute(executionContext, http.MethodGet, resource, nil, target)
}

// Post sends body as JSON and decodes the response into target when target is non-nil.
func (client *Client) Post(executionContext context.Context, resource string, body any, target any) error {
	return client.execute(executionContext, http.MethodPost, resource, body, target)
}

// Delete issues a DELETE request and discards the response body.
func (client *Client) Delete(executionContext context.Context, resource string) error {
	return client.execute(executionContext, http.MethodDelete, resource, nil, nil)
}

func (client *Client) execute(executionContext context.Context, method string, resource string, body any, target any) error {
	trimmedResource := strings.TrimSpace(resource)
	if len(trimmedResource) == 0 {
		return InvalidInputError{FieldName: resourceFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if executionContext == nil {
		executionContext = context.Background()
	}

	request, requestError := client.githubClient.NewRequest(method, strings.TrimPrefix(trimmedResource, urlPathSeparatorConstant), body)
	if requestError != nil {
		return fmt.Errorf(requestConstructionErrorTemplateConstant, method, trimmedResource, requestError)
	}
	requestURL := request.URL.String()

	response, doError := client.githubClient.Do(executionContext, request, target)
	if doError == nil {
		client.logger.Debug(
			logMessageRequestCompletedConstant,
			zap.String(logFieldMethodConstant, method),
			zap.String(logFieldURLConstant, requestURL),
			zap.Int(logFieldStatusCodeConstant, response.StatusCode),
		)
		return nil
	}

	var acceptedError *github.AcceptedError
	if errors.As(doError, &acceptedError) {
		client.logger.Debug(
			logMessageRequestAcceptedConstant,
			zap.String(logFieldMethodConstant, method),
			zap.String(logFieldURLConstant, requestURL),
		)
		if target == nil || len(acceptedError.Raw) == 0 {
			return nil
		}
		if decodingError := json.Unmarshal(acceptedError.Raw, target); decodingError != nil {
			return ResponseDecodingError{Method: method, URL: requestURL, Cause: decodingError}
		}
		return nil
	}

	translatedError := translateError(method, requestURL, response, doError)
	client.logger.Debug(
		logMessageRequestFailedConstant,
		zap.String(logFieldMethodConstant, method),
		zap.String(logFieldURLConstant, requestURL),
		zap.Error(translatedError),
	)
	return translatedError
}

func translateError(method string, requestURL string, response *github.Response, doError error) error {
	statusCode := transportFailureStatusCodeConstant
	if response != nil && response.Response != nil {
		statusCode = response.StatusCode
	}

	var (
		errorResponse  *github.ErrorResponse
		rateLimitError *github.RateLimitError
		abuseError     *github.AbuseRateLimitError
	)

	message := doError.Error()
	switch {
	case errors.As(doError, &errorResponse):
		message = errorResponse.Message
	case errors.As(doError, &rateLimitError):
		message = rateLimitError.Message
	case errors.As(doError, &abuseError):
		message = abuseError.Message
	case statusCode >= minimumSuccessfulStatusCodeConstant && statusCode <= maximumSuccessfulStatusCodeConstant:
		return ResponseDecodingError{Method: method, URL: requestURL, Cause: doError}
	}

	if len(strings.TrimSpace(message)) == 0 {
		message = http.StatusText(statusCode)
	}
	if len(message) == 0 {
		message = unknownStatusMessageConstant
	}

	return RequestFailedError{
		Method:     method,
		URL:        requestURL,
		StatusCode: statusCode,
		Message:    message,
		Cause:      doError,
	}
}

func parseBaseURL(rawBaseURL string) (*url.URL, error) {
	trimmedBaseURL := strings.TrimSpace(rawBaseURL)
	if len(trimmedBaseURL) == 0 {
		trimmedBaseURL = DefaultBaseURLConstant
	}
	if !strings.HasSuffix(trimmedBaseURL, urlPathSeparatorConstant) {
		trimmedBaseURL += urlPathSeparatorConstant
	}

	parsedURL, parseError := url.Parse(trimmedBaseURL)
	if parseError != nil || len(parsedURL.Scheme) == 0 || len(parsedURL.Host) == 0 {
		return nil, InvalidInputError{FieldName: baseURLFieldNameConstant, Message: fmt.Sprintf(invalidBaseURLMessageTemplateConstant, trimmedBaseURL)}
	}
	return parsedURL, nil
}
