package workingcopy

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"

	"github.com/temirov/helmbump/internal/execshell"
	"github.com/temirov/helmbump/internal/repos/shared"
)

// Steps reported through shared.StepError.
const (
	StepConfigureIdentity shared.StepName = "configure_identity"
	StepCloneFork         shared.StepName = "clone_fork"
	StepReadHead          shared.StepName = "read_head"
	StepSwitchBranch      shared.StepName = "switch_branch"
	StepDropBranch        shared.StepName = "drop_branch"
)

const (
	// DefaultGitHostConstant is the host the fork is cloned from.
	DefaultGitHostConstant = "github.com"

	cloneURLTemplateConstant             = "https://%s/%s/%s.git"
	gitConfigSubcommandConstant          = "config"
	gitGlobalFlagConstant                = "--global"
	gitUserNameKeyConstant               = "user.name"
	gitUserEmailKeyConstant              = "user.email"
	gitCloneSubcommandConstant           = "clone"
	gitCheckoutSubcommandConstant        = "checkout"
	gitBranchSubcommandConstant          = "branch"
	gitForceDeleteFlagConstant           = "-D"
	branchReadErrorTemplateConstant      = "unable to read branch %s of %s: %w"
	gitExecutorMissingMessageConstant    = "git executor not configured"
	botAccountMissingMessageConstant     = "bot account not configured"
	detachedHeadMessageConstant          = "HEAD is detached"
	requiredValueMessageConstant         = "value required"
	invalidInputErrorTemplateConstant    = "%s: %s"
	headReadErrorTemplateConstant        = "unable to read HEAD of %s: %w"
	identityNameFieldNameConstant        = "identity_name"
	identityEmailFieldNameConstant       = "identity_email"
	directoryFieldNameConstant           = "directory"
	logMessageIdentityConfiguredConstant = "Configured global git identity"
	logMessageForkClonedConstant         = "Cloned fork"
	logMessageBranchReleasedConstant     = "Dropped local target branch left by a previous run"
	logFieldBaseBranchConstant           = "base_branch"
	logFieldBranchConstant               = "branch"
	logFieldNameConstant                 = "name"
	logFieldEmailConstant                = "email"
	logFieldRepositoryConstant           = "repository"
	logFieldDirectoryConstant            = "directory"
)

var (
	// ErrGitExecutorNotConfigured indicates the git executor dependency was missing.
	ErrGitExecutorNotConfigured = errors.New(gitExecutorMissingMessageConstant)
	// ErrBotAccountNotConfigured indicates the bot account was empty.
	ErrBotAccountNotConfigured = errors.New(botAccountMissingMessageConstant)
	// ErrDetachedHead indicates the working copy is not on a branch.
	ErrDetachedHead = errors.New(detachedHeadMessageConstant)
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

// Configuration identifies the account that owns the cloned fork.
type Configuration struct {
	BotAccount string
	GitHost    string
}

// ServiceDependencies enumerates collaborators required by the service.
type ServiceDependencies struct {
	Logger      *zap.Logger
	GitExecutor shared.GitExecutor
}

// Service manages the local working copy of the bot's fork.
type Service struct {
	logger     *zap.Logger
	executor   shared.GitExecutor
	botAccount string
	gitHost    string
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
	gitHost := strings.TrimSpace(configuration.GitHost)
	if len(gitHost) == 0 {
		gitHost = DefaultGitHostConstant
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{logger: logger, executor: dependencies.GitExecutor, botAccount: botAccount, gitHost: gitHost}, nil
}

// ConfigureIdentity sets the global git author identity used for commits.
func (service *Service) ConfigureIdentity(executionContext context.Context, name string, email string) error {
	trimmedName := strings.TrimSpace(name)
	if len(trimmedName) == 0 {
		return InvalidInputError{FieldName: identityNameFieldNameConstant, Message: requiredValueMessageConstant}
	}
	trimmedEmail := strings.TrimSpace(email)
	if len(trimmedEmail) == 0 {
		return InvalidInputError{FieldName: identityEmailFieldNameConstant, Message: requiredValueMessageConstant}
	}

	for _, setting := range [][2]string{{gitUserNameKeyConstant, trimmedName}, {gitUserEmailKeyConstant, trimmedEmail}} {
		if _, configError := service.executor.ExecuteGit(executionContext, execshell.CommandDetails{
			Arguments: []string{gitConfigSubcommandConstant, gitGlobalFlagConstant, setting[0], setting[1]},
		}); configError != nil {
			return shared.StepError{Step: StepConfigureIdentity, Cause: configError}
		}
	}

	service.logger.Info(logMessageIdentityConfiguredConstant, zap.String(logFieldNameConstant, trimmedName), zap.String(logFieldEmailConstant, trimmedEmail))
	return nil
}

// CloneFork clones the bot's fork into directory. The parent of directory is
// used as the working directory of the clone command.
func (service *Service) CloneFork(executionContext context.Context, repositoryName shared.RepositoryName, directory string) error {
	trimmedDirectory := strings.TrimSpace(directory)
	if len(trimmedDirectory) == 0 {
		return InvalidInputError{FieldName: directoryFieldNameConstant, Message: requiredValueMessageConstant}
	}

	cloneURL := fmt.Sprintf(cloneURLTemplateConstant, service.gitHost, service.botAccount, repositoryName.String())
	if _, cloneError := service.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitCloneSubcommandConstant, cloneURL, filepath.Base(trimmedDirectory)},
		WorkingDirectory: filepath.Dir(trimmedDirectory),
	}); cloneError != nil {
		return shared.StepError{Step: StepCloneFork, Cause: cloneError}
	}

	service.logger.Info(logMessageForkClonedConstant, zap.String(logFieldRepositoryConstant, service.botAccount+"/"+repositoryName.String()), zap.String(logFieldDirectoryConstant, trimmedDirectory))
	return nil
}

// IsRepository reports whether path holds a git working copy.
func (service *Service) IsRepository(path string) (bool, error) {
	_, openError := git.PlainOpen(path)
	if openError == nil {
		return true, nil
	}
	if errors.Is(openError, git.ErrRepositoryNotExists) {
		return false, nil
	}
	return false, openError
}

// CurrentBranch returns the short name of the branch HEAD points to.
func (service *Service) CurrentBranch(path string) (string, error) {
	repository, openError := git.PlainOpen(path)
	if openError != nil {
		return "", shared.StepError{Step: StepReadHead, Cause: fmt.Errorf(headReadErrorTemplateConstant, path, openError)}
	}

	head, headError := repository.Head()
	if headError != nil {
		return "", shared.StepError{Step: StepReadHead, Cause: fmt.Errorf(headReadErrorTemplateConstant, path, headError)}
	}
	if !head.Name().IsBranch() {
		return "", shared.StepError{Step: StepReadHead, Cause: fmt.Errorf(headReadErrorTemplateConstant, path, ErrDetachedHead)}
	}
	return head.Name().Short(), nil
}

// ReleaseBranch drops a local target branch left behind by a previous run so
// the branch can be recreated from the base branch. When HEAD is on the target
// branch the working copy is first switched to the base branch. It touches
// only the working copy and reports whether the target branch was dropped.
func (service *Service) ReleaseBranch(executionContext context.Context, path string, baseBranch shared.BranchName, targetBranch shared.BranchName) (bool, error) {
	trimmedPath := strings.TrimSpace(path)
	if len(trimmedPath) == 0 {
		return false, InvalidInputError{FieldName: directoryFieldNameConstant, Message: requiredValueMessageConstant}
	}

	repository, openError := git.PlainOpen(trimmedPath)
	if openError != nil {
		return false, shared.StepError{Step: StepReadHead, Cause: fmt.Errorf(headReadErrorTemplateConstant, trimmedPath, openError)}
	}

	_, referenceError := repository.Reference(plumbing.NewBranchReferenceName(targetBranch.String()), false)
	if errors.Is(referenceError, plumbing.ErrReferenceNotFound) {
		return false, nil
	}
	if referenceError != nil {
		return false, shared.StepError{Step: StepReadHead, Cause: fmt.Errorf(branchReadErrorTemplateConstant, targetBranch.String(), trimmedPath, referenceError)}
	}

	currentBranch, branchError := service.CurrentBranch(trimmedPath)
	if branchError != nil && !errors.Is(branchError, ErrDetachedHead) {
		return false, branchError
	}
	if currentBranch == targetBranch.String() {
		if _, switchError := service.executor.ExecuteGit(executionContext, execshell.CommandDetails{
			Arguments:        []string{gitCheckoutSubcommandConstant, baseBranch.String()},
			WorkingDirectory: trimmedPath,
		}); switchError != nil {
			return false, shared.StepError{Step: StepSwitchBranch, Cause: switchError}
		}
	}

	if _, dropError := service.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitBranchSubcommandConstant, gitForceDeleteFlagConstant, targetBranch.String()},
		WorkingDirectory: trimmedPath,
	}); dropError != nil {
		return false, shared.StepError{Step: StepDropBranch, Cause: dropError}
	}

	service.logger.Info(
		logMessageBranchReleasedConstant,
		zap.String(logFieldDirectoryConstant, trimmedPath),
		zap.String(logFieldBranchConstant, targetBranch.String()),
		zap.String(logFieldBaseBranchConstant, baseBranch.String()),
	)
	return true, nil
}
