package upgrade

import (
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/temirov/helmbump/internal/branches"
	"github.com/temirov/helmbump/internal/charts"
	"github.com/temirov/helmbump/internal/execshell"
	"github.com/temirov/helmbump/internal/forks"
	"github.com/temirov/helmbump/internal/githubapi"
	"github.com/temirov/helmbump/internal/githubauth"
	"github.com/temirov/helmbump/internal/publish"
	"github.com/temirov/helmbump/internal/pullrequests"
	"github.com/temirov/helmbump/internal/telemetry"
	"github.com/temirov/helmbump/internal/ui"
	"github.com/temirov/helmbump/internal/workingcopy"
)

const (
	resolverErrorTemplateConstant       = "unable to construct %s: %w"
	componentGitHubAPIClientConstant    = "github api client"
	componentGitExecutorConstant        = "git executor"
	componentForkManagerConstant        = "fork manager"
	componentBranchManagerConstant      = "branch manager"
	componentWorkingCopyConstant        = "working copy"
	componentPublisherConstant          = "publisher"
	componentPullRequestManagerConstant = "pull request manager"
)

// DefaultServiceResolver wires the production collaborators: the GitHub API
// client, the git executor, and a telemetry recorder shared by both. Console
// progress messages are added when the configuration asks for them.
type DefaultServiceResolver struct {
	Environment   map[string]string
	BaseTransport http.RoundTripper
	CommandRunner execshell.CommandRunner
	Clock         clockwork.Clock
}

// Resolve builds a Service for configuration. The token comes from the
// environment only.
func (resolver *DefaultServiceResolver) Resolve(logger *zap.Logger, configuration CommandConfiguration) (ResolvedService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := resolver.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	commandRunner := resolver.CommandRunner
	if commandRunner == nil {
		commandRunner = execshell.NewOSCommandRunner()
	}

	token, tokenError := githubauth.RequireToken(resolver.Environment)
	if tokenError != nil {
		return ResolvedService{}, tokenError
	}

	recorder := telemetry.NewRecorder()

	apiClient, apiError := githubapi.NewClient(logger, githubapi.ClientConfiguration{
		BaseURL:           configuration.GitHub.APIURL,
		Token:             token,
		RequestsPerSecond: configuration.GitHub.RequestsPerSecond,
		BaseTransport:     resolver.BaseTransport,
		Clock:             clock,
		Decorators:        []githubapi.TransportDecorator{recorder.InstrumentTransport},
	})
	if apiError != nil {
		return ResolvedService{}, fmt.Errorf(resolverErrorTemplateConstant, componentGitHubAPIClientConstant, apiError)
	}

	gitExecutor, stepObservers, executorError := newGitExecutor(logger, commandRunner, recorder, configuration.HumanReadableLogging)
	if executorError != nil {
		return ResolvedService{}, fmt.Errorf(resolverErrorTemplateConstant, componentGitExecutorConstant, executorError)
	}

	forkService, forkError := forks.NewService(forks.Configuration{
		BotAccount:   configuration.GitHub.BotAccount,
		SettleDelay:  configuration.GitHub.SettleDelay,
		PollInterval: configuration.GitHub.PollInterval,
		PollAttempts: configuration.GitHub.PollAttempts,
	}, forks.Dependencies{Logger: logger, API: apiClient, Clock: clock})
	if forkError != nil {
		return ResolvedService{}, fmt.Errorf(resolverErrorTemplateConstant, componentForkManagerConstant, forkError)
	}

	branchService, branchError := branches.NewService(branches.Configuration{
		BotAccount: configuration.GitHub.BotAccount,
		GitHost:    configuration.GitHub.GitHost,
	}, branches.ServiceDependencies{Logger: logger, GitExecutor: gitExecutor, GitHubAPI: apiClient, ForkInspector: forkService})
	if branchError != nil {
		return ResolvedService{}, fmt.Errorf(resolverErrorTemplateConstant, componentBranchManagerConstant, branchError)
	}

	workingCopyService, workingCopyError := workingcopy.NewService(workingcopy.Configuration{
		BotAccount: configuration.GitHub.BotAccount,
		GitHost:    configuration.GitHub.GitHost,
	}, workingcopy.ServiceDependencies{Logger: logger, GitExecutor: gitExecutor})
	if workingCopyError != nil {
		return ResolvedService{}, fmt.Errorf(resolverErrorTemplateConstant, componentWorkingCopyConstant, workingCopyError)
	}

	publishService, publishError := publish.NewService(publish.Configuration{
		BotAccount: configuration.GitHub.BotAccount,
		GitHost:    configuration.GitHub.GitHost,
		Token:      token,
	}, publish.ServiceDependencies{Logger: logger, GitExecutor: gitExecutor})
	if publishError != nil {
		return ResolvedService{}, fmt.Errorf(resolverErrorTemplateConstant, componentPublisherConstant, publishError)
	}

	pullRequestService, pullRequestError := pullrequests.NewService(pullrequests.Configuration{
		BotAccount: configuration.GitHub.BotAccount,
	}, pullrequests.ServiceDependencies{Logger: logger, GitHubAPI: apiClient})
	if pullRequestError != nil {
		return ResolvedService{}, fmt.Errorf(resolverErrorTemplateConstant, componentPullRequestManagerConstant, pullRequestError)
	}

	service, serviceError := NewService(Dependencies{
		Logger:             logger,
		Clock:              clock,
		Forks:              forkService,
		Branches:           branchService,
		WorkingCopy:        workingCopyService,
		ManifestEditor:     ManifestEditorFunc(charts.ApplyPlan),
		Publisher:          publishService,
		PullRequestCreator: pullRequestService,
		StepObserver:       stepObservers,
	})
	if serviceError != nil {
		return ResolvedService{}, serviceError
	}

	return ResolvedService{Runner: service, Metrics: recorder}, nil
}

// newGitExecutor wires the git executor and the workflow step observers. In
// console mode the progress logger is the only writer of command lines, so the
// executor itself logs nothing.
func newGitExecutor(logger *zap.Logger, commandRunner execshell.CommandRunner, recorder *telemetry.Recorder, humanReadable bool) (*execshell.ShellExecutor, StepObservers, error) {
	executorLogger := logger
	commandObservers := []execshell.CommandEventObserver{recorder}
	stepObservers := StepObservers{recorder}
	if humanReadable {
		progress := ui.NewProgressLogger(logger)
		commandObservers = append(commandObservers, progress)
		stepObservers = append(stepObservers, progress)
		executorLogger = zap.NewNop()
	}

	gitExecutor, executorError := execshell.NewShellExecutor(executorLogger, commandRunner, commandObservers...)
	return gitExecutor, stepObservers, executorError
}
