package pullrequests

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-github/v75/github"
	"go.uber.org/zap"

	"github.com/temirov/helmbump/internal/repos/shared"
)

// Steps reported through shared.StepError.
const (
	StepCreatePullRequest shared.StepName = "create_pull_request"
	StepAddLabels         shared.StepName = "add_labels"
)

const (
	// TitleConstant is the title of every upgrade pull request.
	TitleConstant = "Logging Helm Chart version upgrade"
	// BodyConstant is the body of every upgrade pull request.
	BodyConstant = "This PR is updating the local Helm Chart to the most recent Chart dependency versions."

	createPullRequestResourceTemplateConstant = "repos/%s/%s/pulls"
	labelsResourceTemplateConstant            = "%s/labels"
	headReferenceTemplateConstant             = "%s:%s"
	githubAPIMissingMessageConstant           = "github api not configured"
	botAccountMissingMessageConstant          = "bot account not configured"
	requiredValueMessageConstant              = "value required"
	invalidInputErrorTemplateConstant         = "%s: %s"
	labelAttachmentErrorTemplateConstant      = "pull request %s created without labels: %v"
	issueURLFieldNameConstant                 = "issue_url"
	labelsFieldNameConstant                   = "labels"
	logMessagePullRequestCreatedConstant      = "Pull request created"
	logMessageLabelsAddedConstant             = "Labels added to pull request"
	logFieldRepositoryConstant                = "repository"
	logFieldHeadConstant                      = "head"
	logFieldBaseConstant                      = "base"
	logFieldPullRequestURLConstant            = "pull_request_url"
	logFieldIssueURLConstant                  = "issue_url"
	logFieldLabelsConstant                    = "labels"
)

var (
	// ErrGitHubAPINotConfigured indicates the GitHub API dependency was missing.
	ErrGitHubAPINotConfigured = errors.New(githubAPIMissingMessageConstant)
	// ErrBotAccountNotConfigured indicates the bot account was empty.
	ErrBotAccountNotConfigured = errors.New(botAccountMissingMessageConstant)
)

// InvalidInputError describes request validation failures.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// PullRequest summarizes the created pull request.
type PullRequest struct {
	Number   int
	HTMLURL  string
	IssueURL string
	Head     string
	Base     string
	Labels   []string
}

// LabelAttachmentError reports a pull request that was opened but could not be
// labelled. PullRequest remains valid.
type LabelAttachmentError struct {
	PullRequest PullRequest
	Cause       error
}

// Error describes the labelling failure.
func (labelError LabelAttachmentError) Error() string {
	return fmt.Sprintf(labelAttachmentErrorTemplateConstant, labelError.PullRequest.HTMLURL, labelError.Cause)
}

// Unwrap exposes the underlying cause.
func (labelError LabelAttachmentError) Unwrap() error {
	return labelError.Cause
}

// Configuration identifies the account whose fork provides the head branch.
type Configuration struct {
	BotAccount string
}

// ServiceDependencies enumerates collaborators required by the service.
type ServiceDependencies struct {
	Logger    *zap.Logger
	GitHubAPI shared.GitHubAPI
}

// CreateRequest describes the pull request to open against upstream.
type CreateRequest struct {
	Upstream     shared.RepositoryRef
	BaseBranch   shared.BranchName
	TargetBranch shared.BranchName
	Labels       []string
}

type labelsPayload struct {
	Labels []string `json:"labels"`
}

// Service opens upgrade pull requests and labels them.
type Service struct {
	logger     *zap.Logger
	api        shared.GitHubAPI
	botAccount string
}

// NewService constructs a Service from the provided configuration and dependencies.
func NewService(configuration Configuration, dependencies ServiceDependencies) (*Service, error) {
	if dependencies.GitHubAPI == nil {
		return nil, ErrGitHubAPINotConfigured
	}
	botAccount := strings.TrimSpace(configuration.BotAccount)
	if len(botAccount) == 0 {
		return nil, ErrBotAccountNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{logger: logger, api: dependencies.GitHubAPI, botAccount: botAccount}, nil
}

// Create opens the pull request from the bot's target branch into the upstream
// base branch. Non-empty labels are attached with exactly one follow-up request;
// when that request fails the created pull request is returned together with a
// LabelAttachmentError.
func (service *Service) Create(executionContext context.Context, request CreateRequest) (PullRequest, error) {
	head := fmt.Sprintf(headReferenceTemplateConstant, service.botAccount, request.TargetBranch.String())
	resource := fmt.Sprintf(createPullRequestResourceTemplateConstant, request.Upstream.Owner().String(), request.Upstream.Name().String())

	var created github.PullRequest
	if createError := service.api.Post(executionContext, resource, &github.NewPullRequest{
		Title: github.Ptr(TitleConstant),
		Body:  github.Ptr(BodyConstant),
		Base:  github.Ptr(request.BaseBranch.String()),
		Head:  github.Ptr(head),
	}, &created); createError != nil {
		return PullRequest{}, shared.StepError{Step: StepCreatePullRequest, Cause: createError}
	}

	pullRequest := PullRequest{
		Number:   created.GetNumber(),
		HTMLURL:  created.GetHTMLURL(),
		IssueURL: created.GetIssueURL(),
		Head:     head,
		Base:     request.BaseBranch.String(),
	}
	service.logger.Info(
		logMessagePullRequestCreatedConstant,
		zap.String(logFieldRepositoryConstant, request.Upstream.FullName()),
		zap.String(logFieldHeadConstant, head),
		zap.String(logFieldBaseConstant, pullRequest.Base),
		zap.String(logFieldPullRequestURLConstant, pullRequest.HTMLURL),
	)

	labels := normalizeLabels(request.Labels)
	if len(labels) == 0 {
		return pullRequest, nil
	}
	if labelError := service.AddLabels(executionContext, labels, pullRequest.IssueURL); labelError != nil {
		return pullRequest, LabelAttachmentError{PullRequest: pullRequest, Cause: labelError}
	}
	pullRequest.Labels = labels
	return pullRequest, nil
}

// AddLabels attaches labels to the issue behind a pull request with a single request.
func (service *Service) AddLabels(executionContext context.Context, labels []string, issueURL string) error {
	trimmedIssueURL := strings.TrimRight(strings.TrimSpace(issueURL), "/")
	if len(trimmedIssueURL) == 0 {
		return InvalidInputError{FieldName: issueURLFieldNameConstant, Message: requiredValueMessageConstant}
	}
	normalized := normalizeLabels(labels)
	if len(normalized) == 0 {
		return InvalidInputError{FieldName: labelsFieldNameConstant, Message: requiredValueMessageConstant}
	}

	var applied []*github.Label
	resource := fmt.Sprintf(labelsResourceTemplateConstant, trimmedIssueURL)
	if postError := service.api.Post(executionContext, resource, labelsPayload{Labels: normalized}, &applied); postError != nil {
		return shared.StepError{Step: StepAddLabels, Cause: postError}
	}

	service.logger.Info(logMessageLabelsAddedConstant, zap.String(logFieldIssueURLConstant, trimmedIssueURL), zap.Strings(logFieldLabelsConstant, normalized))
	return nil
}

func normalizeLabels(labels []string) []string {
	normalized := make([]string, 0, len(labels))
	for _, label := range labels {
		trimmed := strings.TrimSpace(label)
		if len(trimmed) == 0 {
			continue
		}
		normalized = append(normalized, trimmed)
	}
	return normalized
}
