package publish

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/helmbump/internal/execshell"
	"github.com/temirov/helmbump/internal/repos/shared"
)

// Steps reported through shared.StepError.
const (
	StepStageFile  shared.StepName = "stage_file"
	StepCommit     shared.StepName = "commit"
	StepPushBranch shared.StepName = "push_branch"
)

const (
	// DefaultGitHostConstant is the host that receives the authenticated push.
	DefaultGitHostConstant = "github.com"

	pushURLSchemeConstant               = "https"
	gitAddSubcommandConstant            = "add"
	gitCommitSubcommandConstant         = "commit"
	gitMessageFlagConstant              = "-m"
	gitPushSubcommandConstant           = "push"
	gitExecutorMissingMessageConstant   = "git executor not configured"
	botAccountMissingMessageConstant    = "bot account not configured"
	tokenMissingMessageConstant         = "push token not configured"
	requiredValueMessageConstant        = "value required"
	chartVersionMismatchMessageConstant = "chart names and versions must have the same length"
	repositoryPathFieldNameConstant     = "repository_path"
	filePathFieldNameConstant           = "file_path"
	chartNamesFieldNameConstant         = "chart_names"
	chartVersionsFieldNameConstant      = "chart_versions"
	invalidInputErrorTemplateConstant   = "%s: %s"
	logMessageStagedConstant            = "Staged manifest file"
	logMessageCommittedConstant         = "Committed manifest update"
	logMessagePushedConstant            = "Pushed target branch to fork"
	logFieldFileConstant                = "file"
	logFieldBranchConstant              = "branch"
	logFieldRepositoryConstant          = "repository"
	logFieldCommitMessageConstant       = "commit_message"
	logFieldRepositoryPathConstant      = "repository_path"
	pushRepositoryPathTemplateConstant  = "/%s/%s"
	commitMessageTemplateConstant       = "Bump chart dependencies %s to versions %s, respectively"
)

var (
	// ErrGitExecutorNotConfigured indicates the git executor dependency was missing.
	ErrGitExecutorNotConfigured = errors.New(gitExecutorMissingMessageConstant)
	// ErrBotAccountNotConfigured indicates the bot account was empty.
	ErrBotAccountNotConfigured = errors.New(botAccountMissingMessageConstant)
	// ErrTokenNotConfigured indicates no token was supplied for the authenticated push.
	ErrTokenNotConfigured = errors.New(tokenMissingMessageConstant)
)

// InvalidInputError describes publish request validation failures.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// Configuration identifies the fork that receives pushes.
type Configuration struct {
	BotAccount string
	GitHost    string
	Token      string
}

// ServiceDependencies enumerates collaborators required by the service.
type ServiceDependencies struct {
	Logger      *zap.Logger
	GitExecutor shared.GitExecutor
}

// PublishRequest describes the edited file and the charts it bumps.
type PublishRequest struct {
	RepositoryPath string
	FilePath       string
	RepositoryName shared.RepositoryName
	TargetBranch   shared.BranchName
	ChartNames     []string
	ChartVersions  []string
}

// Service stages, commits and pushes a manifest update to the bot's fork.
type Service struct {
	logger     *zap.Logger
	executor   shared.GitExecutor
	botAccount string
	gitHost    string
	token      string
}

// NewService constructs a Service from the provided configuration and dependencies.
func NewService(configuration Configuration, dependencies ServiceDependencies) (*Service, error) {
	if dependencies.GitExecutor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	botAccount := strings.TrimSpace(configuration.BotAccount)
	if len(botAccount) == 0 {
		return nil, ErrBotAccountNotConfigured
	}
	token := strings.TrimSpace(configuration.Token)
	if len(token) == 0 {
		return nil, ErrTokenNotConfigured
	}
	gitHost := strings.TrimSpace(configuration.GitHost)
	if len(gitHost) == 0 {
		gitHost = DefaultGitHostConstant
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		logger:     logger,
		executor:   dependencies.GitExecutor,
		botAccount: botAccount,
		gitHost:    gitHost,
		token:      token,
	}, nil
}

// AddCommitPush runs git add, git commit and git push in that order. The first
// failing step stops the sequence; completed steps are left in place.
func (service *Service) AddCommitPush(executionContext context.Context, request PublishRequest) error {
	if validationError := validateRequest(request); validationError != nil {
		return validationError
	}
	repositoryPath := strings.TrimSpace(request.RepositoryPath)

	if _, addError := service.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitAddSubcommandConstant, request.FilePath},
		WorkingDirectory: repositoryPath,
	}); addError != nil {
		return shared.StepError{Step: StepStageFile, Cause: addError}
	}
	service.logger.Info(logMessageStagedConstant, zap.String(logFieldFileConstant, request.FilePath), zap.String(logFieldRepositoryPathConstant, repositoryPath))

	commitMessage := BuildCommitMessage(request.ChartNames, request.ChartVersions)
	if _, commitError := service.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitCommitSubcommandConstant, gitMessageFlagConstant, commitMessage},
		WorkingDirectory: repositoryPath,
	}); commitError != nil {
		return shared.StepError{Step: StepCommit, Cause: commitError}
	}
	service.logger.Info(logMessageCommittedConstant, zap.String(logFieldCommitMessageConstant, commitMessage))

	if _, pushError := service.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitPushSubcommandConstant, service.pushURL(request.RepositoryName), request.TargetBranch.String()},
		WorkingDirectory: repositoryPath,
	}); pushError != nil {
		return shared.StepError{Step: StepPushBranch, Cause: pushError}
	}
	service.logger.Info(
		logMessagePushedConstant,
		zap.String(logFieldRepositoryConstant, service.botAccount+"/"+request.RepositoryName.String()),
		zap.String(logFieldBranchConstant, request.TargetBranch.String()),
	)
	return nil
}

// pushURL embeds the bot credentials in the fork URL. The executor redacts the
// password component before anything is logged.
func (service *Service) pushURL(repositoryName shared.RepositoryName) string {
	pushURL := url.URL{
		Scheme: pushURLSchemeConstant,
		User:   url.UserPassword(service.botAccount, service.token),
		Host:   service.gitHost,
		Path:   fmt.Sprintf(pushRepositoryPathTemplateConstant, service.botAccount, repositoryName.String()),
	}
	return pushURL.String()
}

// BuildCommitMessage renders the chart names and versions as Python-style list
// literals, in the order given.
func BuildCommitMessage(chartNames []string, chartVersions []string) string {
	return fmt.Sprintf(commitMessageTemplateConstant, formatListLiteral(chartNames), formatListLiteral(chartVersions))
}

func validateRequest(request PublishRequest) error {
	if len(strings.TrimSpace(request.RepositoryPath)) == 0 {
		return InvalidInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(request.FilePath)) == 0 {
		return InvalidInputError{FieldName: filePathFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(request.ChartNames) == 0 {
		return InvalidInputError{FieldName: chartNamesFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(request.ChartNames) != len(request.ChartVersions) {
		return InvalidInputError{FieldName: chartVersionsFieldNameConstant, Message: chartVersionMismatchMessageConstant}
	}
	return nil
}
