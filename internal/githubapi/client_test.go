package githubapi_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/helmbump/internal/githubapi"
)

const (
	testTokenConstant          = "secret-token"
	testAuthorizationConstant  = "token secret-token"
	testAuthorizationHeaderKey = "Authorization"
)

type recordedRequest struct {
	method        string
	path          string
	rawQuery      string
	authorization string
	body          string
}

func newRecordingServer(t *testing.T, handler func(http.ResponseWriter, *http.Request)) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	requests := &[]recordedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		bodyBytes, _ := io.ReadAll(request.Body)
		*requests = append(*requests, recordedRequest{
			method:        request.Method,
			path:          request.URL.Path,
			rawQuery:      request.URL.RawQuery,
			authorization: request.Header.Get(testAuthorizationHeaderKey),
			body:          string(bodyBytes),
		})
		handler(responseWriter, request)
	}))
	t.Cleanup(server.Close)
	return server, requests
}

func newTestClient(t *testing.T, server *httptest.Server, decorators ...githubapi.TransportDecorator) *githubapi.Client {
	t.Helper()
	client, creationError := githubapi.NewClient(zap.NewNop(), githubapi.ClientConfiguration{
		BaseURL:    server.URL,
		Token:      testTokenConstant,
		Decorators: decorators,
	})
	require.NoError(t, creationError)
	return client
}

func TestNewClientValidation(t *testing.T) {
	testCases := []struct {
		name          string
		configuration githubapi.ClientConfiguration
		verify        func(t *testing.T, err error)
	}{
		{
			name:          "MissingToken",
			configuration: githubapi.ClientConfiguration{Token: "  "},
			verify: func(t *testing.T, err error) {
				require.ErrorIs(t, err, githubapi.ErrTokenNotConfigured)
			},
		},
		{
			name:          "InvalidBaseURL",
			configuration: githubapi.ClientConfiguration{Token: testTokenConstant, BaseURL: "not a url"},
			verify: func(t *testing.T, err error) {
				var inputError githubapi.InvalidInputError
				require.ErrorAs(t, err, &inputError)
				require.Equal(t, "base_url", inputError.FieldName)
			},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			client, err := githubapi.NewClient(nil, testCase.configuration)
			require.Error(t, err)
			require.Nil(t, client)
			testCase.verify(t, err)
		})
	}
}

func TestClientGetDecodesResponseAndAuthenticates(t *testing.T) {
	server, requests := newRecordingServer(t, func(responseWriter http.ResponseWriter, request *http.Request) {
		responseWriter.Header().Set("Content-Type", "application/json")
		_, _ = responseWriter.Write([]byte(`[{"name":"example"},{"name":"other"}]`))
	})
	client := newTestClient(t, server)

	var repositories []struct {
		Name string `json:"name"`
	}
	require.NoError(t, client.Get(context.Background(), "users/HelmUpgradeBot/repos?per_page=100", &repositories))

	require.Len(t, repositories, 2)
	require.Equal(t, "example", repositories[0].Name)
	require.Len(t, *requests, 1)
	require.Equal(t, http.MethodGet, (*requests)[0].method)
	require.Equal(t, "/users/HelmUpgradeBot/repos", (*requests)[0].path)
	require.Equal(t, "per_page=100", (*requests)[0].rawQuery)
	require.Equal(t, testAuthorizationConstant, (*requests)[0].authorization)
}

func TestClientPostAcceptsAsynchronousResponses(t *testing.T) {
	server, requests := newRecordingServer(t, func(responseWriter http.ResponseWriter, request *http.Request) {
		responseWriter.Header().Set("Content-Type", "application/json")
		responseWriter.WriteHeader(http.StatusAccepted)
		_, _ = responseWriter.Write([]byte(`{"full_name":"HelmUpgradeBot/example"}`))
	})
	client := newTestClient(t, server)

	var fork struct {
		FullName string `json:"full_name"`
	}
	require.NoError(t, client.Post(context.Background(), "/repos/owner/example/forks", nil, &fork))

	require.Equal(t, "HelmUpgradeBot/example", fork.FullName)
	require.Equal(t, "/repos/owner/example/forks", (*requests)[0].path)
}

func TestClientPostAcceptsAbsoluteURLs(t *testing.T) {
	server, requests := newRecordingServer(t, func(responseWriter http.ResponseWriter, request *http.Request) {
		responseWriter.Header().Set("Content-Type", "application/json")
		_, _ = responseWriter.Write([]byte(`[]`))
	})
	client := newTestClient(t, server)

	payload := map[string][]string{"labels": {"dependencies"}}
	require.NoError(t, client.Post(context.Background(), server.URL+"/repos/owner/example/issues/7/labels", payload, nil))

	require.Len(t, *requests, 1)
	require.Equal(t, "/repos/owner/example/issues/7/labels", (*requests)[0].path)

	var decodedBody map[string][]string
	require.NoError(t, json.Unmarshal([]byte((*requests)[0].body), &decodedBody))
	require.Equal(t, payload, decodedBody)
}

func TestClientReportsRequestFailures(t *testing.T) {
	server, _ := newRecordingServer(t, func(responseWriter http.ResponseWriter, request *http.Request) {
		responseWriter.Header().Set("Content-Type", "application/json")
		responseWriter.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = responseWriter.Write([]byte(`{"message":"Validation Failed"}`))
	})
	client := newTestClient(t, server)

	err := client.Post(context.Background(), "repos/owner/example/pulls", map[string]string{"title": "x"}, nil)
	require.Error(t, err)

	var requestError githubapi.RequestFailedError
	require.ErrorAs(t, err, &requestError)
	require.Equal(t, http.MethodPost, requestError.Method)
	require.Equal(t, http.StatusUnprocessableEntity, requestError.StatusCode)
	require.Equal(t, "Validation Failed", requestError.Message)
	require.Contains(t, requestError.URL, "/repos/owner/example/pulls")
	require.NotContains(t, err.Error(), testTokenConstant)
}

func TestClientDeleteAndDecorators(t *testing.T) {
	server, requests := newRecordingServer(t, func(responseWriter http.ResponseWriter, request *http.Request) {
		responseWriter.WriteHeader(http.StatusNoContent)
	})

	decoratedRequests := 0
	countingDecorator := func(next http.RoundTripper) http.RoundTripper {
		return roundTripperFunc(func(request *http.Request) (*http.Response, error) {
			decoratedRequests++
			return next.RoundTrip(request)
		})
	}
	client := newTestClient(t, server, countingDecorator)

	require.NoError(t, client.Delete(context.Background(), "repos/HelmUpgradeBot/example"))
	require.Equal(t, 1, decoratedRequests)
	require.Equal(t, http.MethodDelete, (*requests)[0].method)
	require.Equal(t, testAuthorizationConstant, (*requests)[0].authorization)
}

func TestClientRejectsEmptyResource(t *testing.T) {
	server, requests := newRecordingServer(t, func(http.ResponseWriter, *http.Request) {})
	client := newTestClient(t, server)

	err := client.Get(context.Background(), " ", nil)
	var inputError githubapi.InvalidInputError
	require.ErrorAs(t, err, &inputError)
	require.Empty(t, *requests)
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (function roundTripperFunc) RoundTrip(request *http.Request) (*http.Response, error) {
	return function(request)
}
