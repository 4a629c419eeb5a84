package pullrequests_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/helmbump/internal/githubapi"
	"github.com/temirov/helmbump/internal/pullrequests"
	"github.com/temirov/helmbump/internal/repos/shared"
)

const (
	testBotAccountConstant      = "HelmUpgradeBot"
	testPullsPathConstant       = "/repos/jupyterhub/mybinder.org-deploy/pulls"
	testIssuePathConstant       = "/repos/jupyterhub/mybinder.org-deploy/issues/42"
	testLabelsPathConstant      = "/repos/jupyterhub/mybinder.org-deploy/issues/42/labels"
	testPullRequestHTMLConstant = "https://github.com/jupyterhub/mybinder.org-deploy/pull/42"
)

type capturedRequest struct {
	method string
	path   string
	body   map[string]any
}

type fakeGitHub struct {
	server       *httptest.Server
	requests     []capturedRequest
	labelsStatus int
	createStatus int
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()
	fake := &fakeGitHub{labelsStatus: http.StatusOK, createStatus: http.StatusCreated}
	fake.server = httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		bodyBytes, _ := io.ReadAll(request.Body)
		decoded := map[string]any{}
		if len(bodyBytes) > 0 {
			_ = json.Unmarshal(bodyBytes, &decoded)
		}
		fake.requests = append(fake.requests, capturedRequest{method: request.Method, path: request.URL.Path, body: decoded})

		responseWriter.Header().Set("Content-Type", "application/json")
		switch request.URL.Path {
		case testPullsPathConstant:
			responseWriter.WriteHeader(fake.createStatus)
			if fake.createStatus >= http.StatusBadRequest {
				_, _ = io.WriteString(responseWriter, `{"message":"Validation Failed"}`)
				return
			}
			_, _ = fmt.Fprintf(responseWriter, `{"number":42,"html_url":%q,"issue_url":%q}`, testPullRequestHTMLConstant, fake.server.URL+testIssuePathConstant)
		case testLabelsPathConstant:
			responseWriter.WriteHeader(fake.labelsStatus)
			if fake.labelsStatus >= http.StatusBadRequest {
				_, _ = io.WriteString(responseWriter, `{"message":"Label creation failed"}`)
				return
			}
			_, _ = io.WriteString(responseWriter, `[{"name":"dependencies"}]`)
		default:
			responseWriter.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(responseWriter, `{"message":"Not Found"}`)
		}
	}))
	t.Cleanup(fake.server.Close)
	return fake
}

func (fake *fakeGitHub) countPath(path string) int {
	count := 0
	for _, request := range fake.requests {
		if request.path == path {
			count++
		}
	}
	return count
}

func newService(t *testing.T, fake *fakeGitHub) *pullrequests.Service {
	t.Helper()
	client, clientError := githubapi.NewClient(zap.NewNop(), githubapi.ClientConfiguration{BaseURL: fake.server.URL, Token: "secret"})
	require.NoError(t, clientError)
	service, serviceError := pullrequests.NewService(pullrequests.Configuration{BotAccount: testBotAccountConstant}, pullrequests.ServiceDependencies{GitHubAPI: client})
	require.NoError(t, serviceError)
	return service
}

func buildCreateRequest(t *testing.T, labels []string) pullrequests.CreateRequest {
	t.Helper()
	upstream, upstreamError := shared.ParseRepositoryRef("jupyterhub/mybinder.org-deploy")
	require.NoError(t, upstreamError)
	baseBranch, baseError := shared.NewBranchName("main")
	require.NoError(t, baseError)
	targetBranch, targetError := shared.NewBranchName("helm_chart_bump")
	require.NoError(t, targetError)
	return pullrequests.CreateRequest{Upstream: upstream, BaseBranch: baseBranch, TargetBranch: targetBranch, Labels: labels}
}

func TestNewServiceValidation(t *testing.T) {
	_, missingAPIError := pullrequests.NewService(pullrequests.Configuration{BotAccount: testBotAccountConstant}, pullrequests.ServiceDependencies{})
	require.ErrorIs(t, missingAPIError, pullrequests.ErrGitHubAPINotConfigured)

	fake := newFakeGitHub(t)
	client, clientError := githubapi.NewClient(zap.NewNop(), githubapi.ClientConfiguration{BaseURL: fake.server.URL, Token: "secret"})
	require.NoError(t, clientError)
	_, missingBotError := pullrequests.NewService(pullrequests.Configuration{}, pullrequests.ServiceDependencies{GitHubAPI: client})
	require.ErrorIs(t, missingBotError, pullrequests.ErrBotAccountNotConfigured)
}

func TestCreateRequestCounts(t *testing.T) {
	testCases := []struct {
		name                  string
		labels                []string
		expectedLabelRequests int
		expectedLabels        []string
	}{
		{name: "NoLabels", labels: nil, expectedLabelRequests: 0},
		{name: "EmptyLabelList", labels: []string{}, expectedLabelRequests: 0},
		{name: "BlankLabelsOnly", labels: []string{" ", ""}, expectedLabelRequests: 0},
		{name: "WithLabels", labels: []string{"dependencies", " automerge "}, expectedLabelRequests: 1, expectedLabels: []string{"dependencies", "automerge"}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			fake := newFakeGitHub(t)
			service := newService(t, fake)

			pullRequest, createError := service.Create(context.Background(), buildCreateRequest(t, testCase.labels))
			require.NoError(t, createError)
			require.Equal(t, 42, pullRequest.Number)
			require.Equal(t, testPullRequestHTMLConstant, pullRequest.HTMLURL)
			require.Equal(t, testCase.expectedLabels, pullRequest.Labels)

			require.Equal(t, 1, fake.countPath(testPullsPathConstant))
			require.Equal(t, testCase.expectedLabelRequests, fake.countPath(testLabelsPathConstant))
			require.Len(t, fake.requests, 1+testCase.expectedLabelRequests)
		})
	}
}

func TestCreateSendsPullRequestPayload(t *testing.T) {
	fake := newFakeGitHub(t)
	service := newService(t, fake)

	_, createError := service.Create(context.Background(), buildCreateRequest(t, []string{"dependencies"}))
	require.NoError(t, createError)

	require.Equal(t, http.MethodPost, fake.requests[0].method)
	require.Equal(t, map[string]any{
		"title": pullrequests.TitleConstant,
		"body":  pullrequests.BodyConstant,
		"base":  "main",
		"head":  "HelmUpgradeBot:helm_chart_bump",
	}, fake.requests[0].body)
	require.Equal(t, map[string]any{"labels": []any{"dependencies"}}, fake.requests[1].body)
}

func TestCreateReportsLabelFailureWithPullRequest(t *testing.T) {
	fake := newFakeGitHub(t)
	fake.labelsStatus = http.StatusUnprocessableEntity
	service := newService(t, fake)

	pullRequest, createError := service.Create(context.Background(), buildCreateRequest(t, []string{"dependencies"}))

	var labelError pullrequests.LabelAttachmentError
	require.ErrorAs(t, createError, &labelError)
	require.Equal(t, 42, labelError.PullRequest.Number)
	require.Equal(t, 42, pullRequest.Number)
	require.Empty(t, pullRequest.Labels)

	var requestError githubapi.RequestFailedError
	require.ErrorAs(t, createError, &requestError)
	require.Equal(t, http.StatusUnprocessableEntity, requestError.StatusCode)
	require.Equal(t, 1, fake.countPath(testLabelsPathConstant))
}

func TestCreateFailureSkipsLabels(t *testing.T) {
	fake := newFakeGitHub(t)
	fake.createStatus = http.StatusUnprocessableEntity
	service := newService(t, fake)

	_, createError := service.Create(context.Background(), buildCreateRequest(t, []string{"dependencies"}))

	var stepError shared.StepError
	require.ErrorAs(t, createError, &stepError)
	require.Equal(t, pullrequests.StepCreatePullRequest, stepError.Step)
	require.Equal(t, 0, fake.countPath(testLabelsPathConstant))
}

func TestAddLabelsValidation(t *testing.T) {
	fake := newFakeGitHub(t)
	service := newService(t, fake)

	var inputError pullrequests.InvalidInputError
	require.ErrorAs(t, service.AddLabels(context.Background(), []string{"a"}, " "), &inputError)
	require.Equal(t, "issue_url", inputError.FieldName)

	require.ErrorAs(t, service.AddLabels(context.Background(), nil, fake.server.URL+testIssuePathConstant), &inputError)
	require.Equal(t, "labels", inputError.FieldName)
	require.Empty(t, fake.requests)
}

func TestAddLabelsIssuesSingleRequest(t *testing.T) {
	fake := newFakeGitHub(t)
	service := newService(t, fake)

	require.NoError(t, service.AddLabels(context.Background(), []string{"a", "b"}, fake.server.URL+testIssuePathConstant+"/"))
	require.Len(t, fake.requests, 1)
	require.Equal(t, testLabelsPathConstant, fake.requests[0].path)
	require.Equal(t, map[string]any{"labels": []any{"a", "b"}}, fake.requests[0].body)
}
