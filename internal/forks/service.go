package forks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v75/github"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/temirov/helmbump/internal/repos/shared"
)

const (
	// DefaultSettleDelayConstant is how long Remove waits before re-checking the listing.
	DefaultSettleDelayConstant = 5 * time.Second
	// DefaultPollIntervalConstant separates consecutive existence checks.
	DefaultPollIntervalConstant = 2 * time.Second
	// DefaultPollAttemptsConstant bounds the number of existence checks per wait.
	DefaultPollAttemptsConstant = 10

	listRepositoriesResourceTemplateConstant = "users/%s/repos?per_page=100"
	createForkResourceTemplateConstant       = "repos/%s/%s/forks"
	repositoryResourceTemplateConstant       = "repos/%s/%s"
	apiNotConfiguredMessageConstant          = "fork service GitHub API not configured"
	botAccountNotConfiguredMessageConstant   = "fork service bot account not configured"
	operationErrorTemplateConstant           = "%s %s failed: %s"
	listOperationNameConstant                = OperationName("ListRepositories")
	createOperationNameConstant              = OperationName("CreateFork")
	deleteOperationNameConstant              = OperationName("DeleteFork")
	waitOperationNameConstant                = OperationName("AwaitFork")
	logMessageForkCreationRequestedConstant  = "Fork creation requested"
	logMessageForkDeletionRequestedConstant  = "Fork deletion requested"
	logMessageNoForkToRemoveConstant         = "No fork to remove"
	logMessageForkGoneConstant               = "Fork no longer listed"
	logMessageForkStillListedConstant        = "Fork still listed after deletion; continuing"
	logMessageForkAvailableConstant          = "Fork available"
	logMessageForkNotYetAvailableConstant    = "Fork not listed yet; waiting"
	logFieldRepositoryConstant               = "repository"
	logFieldUpstreamConstant                 = "upstream"
	logFieldAttemptConstant                  = "attempt"
	logFieldDelayConstant                    = "delay"
)

// OperationName identifies a fork operation in errors.
type OperationName string

var (
	// ErrGitHubAPINotConfigured indicates the service was constructed without an API client.
	ErrGitHubAPINotConfigured = errors.New(apiNotConfiguredMessageConstant)
	// ErrBotAccountNotConfigured indicates the bot account is missing.
	ErrBotAccountNotConfigured = errors.New(botAccountNotConfiguredMessageConstant)
)

// OperationError wraps a failed fork operation.
type OperationError struct {
	Operation  OperationName
	Repository string
	Cause      error
}

// Error describes the failure.
func (operationError OperationError) Error() string {
	return fmt.Sprintf(operationErrorTemplateConstant, operationError.Operation, operationError.Repository, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// Configuration tunes fork management.
type Configuration struct {
	BotAccount   string
	SettleDelay  time.Duration
	PollInterval time.Duration
	PollAttempts int
}

// Dependencies holds the collaborators required by Service.
type Dependencies struct {
	Logger *zap.Logger
	API    shared.GitHubAPI
	Clock  clockwork.Clock
}

// Service queries and mutates the bot account's fork of an upstream repository.
// Existence is always re-queried; nothing is cached between calls.
type Service struct {
	logger       *zap.Logger
	api          shared.GitHubAPI
	clock        clockwork.Clock
	botAccount   string
	settleDelay  time.Duration
	pollInterval time.Duration
	pollAttempts int
}

// NewService validates dependencies and applies configuration defaults.
func NewService(configuration Configuration, dependencies Dependencies) (*Service, error) {
	if dependencies.API == nil {
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
	clock := dependencies.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	settleDelay := configuration.SettleDelay
	if settleDelay <= 0 {
		settleDelay = DefaultSettleDelayConstant
	}
	pollInterval := configuration.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollIntervalConstant
	}
	pollAttempts := configuration.PollAttempts
	if pollAttempts <= 0 {
		pollAttempts = DefaultPollAttemptsConstant
	}

	return &Service{
		logger:       logger,
		api:          dependencies.API,
		clock:        clock,
		botAccount:   botAccount,
		settleDelay:  settleDelay,
		pollInterval: pollInterval,
		pollAttempts: pollAttempts,
	}, nil
}

// BotAccount returns the account that owns the forks.
func (service *Service) BotAccount() string {
	return service.botAccount
}

// Exists reports whether the bot account lists a repository with exactly this name.
// Only the first page of the listing is consulted.
func (service *Service) Exists(executionContext context.Context, repositoryName shared.RepositoryName) (bool, error) {
	var repositories []*github.Repository
	resource := fmt.Sprintf(listRepositoriesResourceTemplateConstant, service.botAccount)
	if listError := service.api.Get(executionContext, resource, &repositories); listError != nil {
		return false, OperationError{Operation: listOperationNameConstant, Repository: service.botAccount, Cause: listError}
	}

	for _, repository := range repositories {
		if repository.GetName() == repositoryName.String() {
			return true, nil
		}
	}
	return false, nil
}

// Create asks GitHub to fork upstream into the bot account. It reports true
// whenever the request is accepted; the fork may still be provisioning.
func (service *Service) Create(executionContext context.Context, upstream shared.RepositoryRef) (bool, error) {
	resource := fmt.Sprintf(createForkResourceTemplateConstant, upstream.Owner().String(), upstream.Name().String())
	var fork github.Repository
	if createError := service.api.Post(executionContext, resource, nil, &fork); createError != nil {
		return false, OperationError{Operation: createOperationNameConstant, Repository: upstream.FullName(), Cause: createError}
	}

	service.logger.Info(logMessageForkCreationRequestedConstant, zap.String(logFieldUpstreamConstant, upstream.FullName()), zap.String(logFieldRepositoryConstant, fork.GetFullName()))
	return true, nil
}

// Remove deletes the bot's fork when one is listed, waits the settle delay and
// then polls until the fork disappears or the poll budget is spent. The result
// is always false ("fork no longer present"), whether or not a deletion ran.
func (service *Service) Remove(executionContext context.Context, repositoryName shared.RepositoryName) (bool, error) {
	exists, existsError := service.Exists(executionContext, repositoryName)
	if existsError != nil {
		return false, existsError
	}
	if !exists {
		service.logger.Info(logMessageNoForkToRemoveConstant, zap.String(logFieldRepositoryConstant, service.forkFullName(repositoryName)))
		return false, nil
	}

	resource := fmt.Sprintf(repositoryResourceTemplateConstant, service.botAccount, repositoryName.String())
	if deleteError := service.api.Delete(executionContext, resource); deleteError != nil {
		return false, OperationError{Operation: deleteOperationNameConstant, Repository: service.forkFullName(repositoryName), Cause: deleteError}
	}
	service.logger.Info(logMessageForkDeletionRequestedConstant, zap.String(logFieldRepositoryConstant, service.forkFullName(repositoryName)), zap.Duration(logFieldDelayConstant, service.settleDelay))

	if waitError := service.wait(executionContext, service.settleDelay); waitError != nil {
		return false, OperationError{Operation: waitOperationNameConstant, Repository: service.forkFullName(repositoryName), Cause: waitError}
	}

	for attempt := 1; attempt <= service.pollAttempts; attempt++ {
		stillListed, pollError := service.Exists(executionContext, repositoryName)
		if pollError != nil {
			return false, pollError
		}
		if !stillListed {
			service.logger.Info(logMessageForkGoneConstant, zap.String(logFieldRepositoryConstant, service.forkFullName(repositoryName)), zap.Int(logFieldAttemptConstant, attempt))
			return false, nil
		}
		if attempt == service.pollAttempts {
			break
		}
		if waitError := service.wait(executionContext, service.pollInterval); waitError != nil {
			return false, OperationError{Operation: waitOperationNameConstant, Repository: service.forkFullName(repositoryName), Cause: waitError}
		}
	}

	service.logger.Warn(logMessageForkStillListedConstant, zap.String(logFieldRepositoryConstant, service.forkFullName(repositoryName)))
	return false, nil
}

// WaitUntilPresent polls the listing until the fork appears or the poll budget is spent.
func (service *Service) WaitUntilPresent(executionContext context.Context, repositoryName shared.RepositoryName) (bool, error) {
	for attempt := 1; attempt <= service.pollAttempts; attempt++ {
		exists, existsError := service.Exists(executionContext, repositoryName)
		if existsError != nil {
			return false, existsError
		}
		if exists {
			service.logger.Info(logMessageForkAvailableConstant, zap.String(logFieldRepositoryConstant, service.forkFullName(repositoryName)), zap.Int(logFieldAttemptConstant, attempt))
			return true, nil
		}
		if attempt == service.pollAttempts {
			break
		}
		service.logger.Debug(logMessageForkNotYetAvailableConstant, zap.String(logFieldRepositoryConstant, service.forkFullName(repositoryName)), zap.Int(logFieldAttemptConstant, attempt))
		if waitError := service.wait(executionContext, service.pollInterval); waitError != nil {
			return false, OperationError{Operation: waitOperationNameConstant, Repository: service.forkFullName(repositoryName), Cause: waitError}
		}
	}
	return false, nil
}

func (service *Service) wait(executionContext context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-executionContext.Done():
		return executionContext.Err()
	case <-service.clock.After(delay):
		return nil
	}
}

func (service *Service) forkFullName(repositoryName shared.RepositoryName) string {
	return service.botAccount + "/" + repositoryName.String()
}
