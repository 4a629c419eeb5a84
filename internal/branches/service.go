package branches

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-github/v75/github"
	"go.uber.org/zap"

	"github.com/temirov/helmbump/internal/execshell"
	"github.com/temirov/helmbump/internal/repos/shared"
)

// Steps reported through shared.StepError.
const (
	StepListBranches       shared.StepName = "list_branches"
	StepInspectFork        shared.StepName = "inspect_fork"
	StepDeleteRemoteBranch shared.StepName = "delete_remote_branch"
	StepInspectLocalBranch shared.StepName = "inspect_local_branch"
	StepDeleteLocalBranch  shared.StepName = "delete_local_branch"
	StepPullBase           shared.StepName = "pull_base"
	StepCheckoutBranch     shared.StepName = "checkout_branch"
)

const (
	// DefaultGitHostConstant is the host used to build upstream pull URLs.
	DefaultGitHostConstant = "github.com"

	listBranchesResourceTemplateConstant  = "repos/%s/%s/branches?per_page=100"
	upstreamURLTemplateConstant           = "https://%s/%s/%s.git"
	originRemoteNameConstant              = "origin"
	gitPushSubcommandConstant             = "push"
	gitDeleteFlagConstant                 = "--delete"
	gitBranchSubcommandConstant           = "branch"
	gitBranchDeleteFlagConstant           = "-d"
	gitBranchListFlagConstant             = "--list"
	gitPullSubcommandConstant             = "pull"
	gitCheckoutSubcommandConstant         = "checkout"
	gitCreateBranchFlagConstant           = "-b"
	gitExecutorMissingMessageConstant     = "git executor not configured"
	githubAPIMissingMessageConstant       = "github api not configured"
	forkInspectorMissingMessageConstant   = "fork inspector not configured"
	botAccountMissingMessageConstant      = "bot account not configured"
	repositoryPathRequiredMessageConstant = "repository path must be provided"
	logMessageBranchAbsentConstant        = "Target branch not present on fork; nothing to delete"
	logMessageBranchDeletedConstant       = "Deleted stale target branch"
	logMessageLocalBranchAbsentConstant   = "Target branch not present in working copy; skipping local deletion"
	logMessageForkAbsentConstant          = "Fork not found; skipping base branch pull"
	logMessageCheckedOutConstant          = "Checked out target branch"
	logFieldRepositoryConstant            = "repository"
	logFieldBranchConstant                = "branch"
	logFieldBaseBranchConstant            = "base_branch"
	logFieldRepositoryPathConstant        = "repository_path"
)

var (
	// ErrGitExecutorNotConfigured indicates the git executor dependency was missing.
	ErrGitExecutorNotConfigured = errors.New(gitExecutorMissingMessageConstant)
	// ErrGitHubAPINotConfigured indicates the GitHub API dependency was missing.
	ErrGitHubAPINotConfigured = errors.New(githubAPIMissingMessageConstant)
	// ErrForkInspectorNotConfigured indicates the fork inspector dependency was missing.
	ErrForkInspectorNotConfigured = errors.New(forkInspectorMissingMessageConstant)
	// ErrBotAccountNotConfigured indicates the bot account was empty.
	ErrBotAccountNotConfigured = errors.New(botAccountMissingMessageConstant)
	// ErrRepositoryPathRequired indicates the working copy path was empty.
	ErrRepositoryPathRequired = errors.New(repositoryPathRequiredMessageConstant)
)

// Configuration identifies the fork owner and the host used for upstream URLs.
type Configuration struct {
	BotAccount string
	GitHost    string
}

// ServiceDependencies enumerates collaborators required by the service.
type ServiceDependencies struct {
	Logger        *zap.Logger
	GitExecutor   shared.GitExecutor
	GitHubAPI     shared.GitHubAPI
	ForkInspector shared.ForkInspector
}

// DeleteRequest names the stale branch to remove from the fork and the working copy.
type DeleteRequest struct {
	RepositoryPath string
	RepositoryName shared.RepositoryName
	TargetBranch   shared.BranchName
}

// CheckoutRequest describes the clean branch to prepare in the working copy.
type CheckoutRequest struct {
	RepositoryPath string
	Upstream       shared.RepositoryRef
	BaseBranch     shared.BranchName
	TargetBranch   shared.BranchName
}

// CheckoutResult records which optional steps ran.
type CheckoutResult struct {
	ForkExisted        bool
	StaleBranchDeleted bool
	BasePulled         bool
}

// Service prepares a fresh target branch locally and on the bot's fork.
type Service struct {
	logger        *zap.Logger
	executor      shared.GitExecutor
	api           shared.GitHubAPI
	forkInspector shared.ForkInspector
	botAccount    string
	gitHost       string
}

// NewService constructs a Service from the provided configuration and dependencies.
func NewService(configuration Configuration, dependencies ServiceDependencies) (*Service, error) {
	if dependencies.GitExecutor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	if dependencies.GitHubAPI == nil {
		return nil, ErrGitHubAPINotConfigured
	}
	if dependencies.ForkInspector == nil {
		return nil, ErrForkInspectorNotConfigured
	}
	botAccount := strings.TrimSpace(configuration.BotAccount)
	if len(botAccount) == 0 {
		return nil, ErrBotAccountNotConfigured
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
		logger:        logger,
		executor:      dependencies.GitExecutor,
		api:           dependencies.GitHubAPI,
		forkInspector: dependencies.ForkInspector,
		botAccount:    botAccount,
		gitHost:       gitHost,
	}, nil
}

// RemoteBranchExists reports whether the fork lists the branch.
func (service *Service) RemoteBranchExists(executionContext context.Context, repositoryName shared.RepositoryName, branch shared.BranchName) (bool, error) {
	var remoteBranches []*github.Branch
	resource := fmt.Sprintf(listBranchesResourceTemplateConstant, service.botAccount, repositoryName.String())
	if listError := service.api.Get(executionContext, resource, &remoteBranches); listError != nil {
		return false, shared.StepError{Step: StepListBranches, Cause: listError}
	}

	for _, remoteBranch := range remoteBranches {
		if remoteBranch.GetName() == branch.String() {
			return true, nil
		}
	}
	return false, nil
}

// DeleteOldBranch removes the target branch from the fork and then from the
// working copy when the fork lists it. An absent branch is a logged no-op, and
// the local deletion is skipped when the working copy has no such branch.
// It reports whether a deletion ran.
func (service *Service) DeleteOldBranch(executionContext context.Context, request DeleteRequest) (bool, error) {
	repositoryPath := strings.TrimSpace(request.RepositoryPath)
	if len(repositoryPath) == 0 {
		return false, ErrRepositoryPathRequired
	}

	present, presenceError := service.RemoteBranchExists(executionContext, request.RepositoryName, request.TargetBranch)
	if presenceError != nil {
		return false, presenceError
	}
	if !present {
		service.logger.Info(
			logMessageBranchAbsentConstant,
			zap.String(logFieldRepositoryConstant, request.RepositoryName.String()),
			zap.String(logFieldBranchConstant, request.TargetBranch.String()),
		)
		return false, nil
	}

	if _, pushError := service.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitPushSubcommandConstant, gitDeleteFlagConstant, originRemoteNameConstant, request.TargetBranch.String()},
		WorkingDirectory: repositoryPath,
	}); pushError != nil {
		return false, shared.StepError{Step: StepDeleteRemoteBranch, Cause: pushError}
	}

	listing, listError := service.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitBranchSubcommandConstant, gitBranchListFlagConstant, request.TargetBranch.String()},
		WorkingDirectory: repositoryPath,
	})
	if listError != nil {
		return false, shared.StepError{Step: StepInspectLocalBranch, Cause: listError}
	}

	if len(strings.TrimSpace(listing.StandardOutput)) == 0 {
		service.logger.Info(
			logMessageLocalBranchAbsentConstant,
			zap.String(logFieldRepositoryPathConstant, repositoryPath),
			zap.String(logFieldBranchConstant, request.TargetBranch.String()),
		)
	} else if _, branchError := service.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitBranchSubcommandConstant, gitBranchDeleteFlagConstant, request.TargetBranch.String()},
		WorkingDirectory: repositoryPath,
	}); branchError != nil {
		return false, shared.StepError{Step: StepDeleteLocalBranch, Cause: branchError}
	}

	service.logger.Info(
		logMessageBranchDeletedConstant,
		zap.String(logFieldRepositoryConstant, request.RepositoryName.String()),
		zap.String(logFieldBranchConstant, request.TargetBranch.String()),
	)
	return true, nil
}

// Checkout leaves the working copy on a freshly created target branch. When
// the fork exists it first deletes a stale target branch and pulls the
// upstream base branch; without a fork the pull is skipped and the branch is
// created from the current local state.
func (service *Service) Checkout(executionContext context.Context, request CheckoutRequest) (CheckoutResult, error) {
	repositoryPath := strings.TrimSpace(request.RepositoryPath)
	if len(repositoryPath) == 0 {
		return CheckoutResult{}, ErrRepositoryPathRequired
	}

	result := CheckoutResult{}
	forkExists, inspectionError := service.forkInspector.Exists(executionContext, request.Upstream.Name())
	if inspectionError != nil {
		return result, shared.StepError{Step: StepInspectFork, Cause: inspectionError}
	}
	result.ForkExisted = forkExists

	if forkExists {
		deleted, deleteError := service.DeleteOldBranch(executionContext, DeleteRequest{
			RepositoryPath: repositoryPath,
			RepositoryName: request.Upstream.Name(),
			TargetBranch:   request.TargetBranch,
		})
		if deleteError != nil {
			return result, deleteError
		}
		result.StaleBranchDeleted = deleted

		upstreamURL := fmt.Sprintf(upstreamURLTemplateConstant, service.gitHost, request.Upstream.Owner().String(), request.Upstream.Name().String())
		if _, pullError := service.executor.ExecuteGit(executionContext, execshell.CommandDetails{
			Arguments:        []string{gitPullSubcommandConstant, upstreamURL, request.BaseBranch.String()},
			WorkingDirectory: repositoryPath,
		}); pullError != nil {
			return result, shared.StepError{Step: StepPullBase, Cause: pullError}
		}
		result.BasePulled = true
	} else {
		service.logger.Info(logMessageForkAbsentConstant, zap.String(logFieldRepositoryConstant, request.Upstream.FullName()))
	}

	if _, checkoutError := service.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitCheckoutSubcommandConstant, gitCreateBranchFlagConstant, request.TargetBranch.String()},
		WorkingDirectory: repositoryPath,
	}); checkoutError != nil {
		return result, shared.StepError{Step: StepCheckoutBranch, Cause: checkoutError}
	}

	service.logger.Info(
		logMessageCheckedOutConstant,
		zap.String(logFieldRepositoryPathConstant, repositoryPath),
		zap.String(logFieldBranchConstant, request.TargetBranch.String()),
		zap.String(logFieldBaseBranchConstant, request.BaseBranch.String()),
	)
	return result, nil
}
