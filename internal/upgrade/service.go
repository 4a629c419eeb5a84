package upgrade

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/temirov/helmbump/internal/branches"
	"github.com/temirov/helmbump/internal/charts"
	"github.com/temirov/helmbump/internal/publish"
	"github.com/temirov/helmbump/internal/pullrequests"
	"github.com/temirov/helmbump/internal/repos/shared"
)

// Workflow steps reported through shared.StepError.
const (
	StepInspectWorkingCopy shared.StepName = "inspect_working_copy"
	StepConfigureIdentity  shared.StepName = "configure_identity"
	StepRemoveFork         shared.StepName = "remove_fork"
	StepEnsureFork         shared.StepName = "ensure_fork"
	StepCloneFork          shared.StepName = "clone_fork"
	StepCheckoutBranch     shared.StepName = "checkout_branch"
	StepVerifyBranch       shared.StepName = "verify_branch"
	StepApplyManifest      shared.StepName = "apply_manifest"
	StepPublish            shared.StepName = "publish"
	StepOpenPullRequest    shared.StepName = "open_pull_request"
	StepCleanup            shared.StepName = "cleanup"
)

const (
	forkManagerMissingMessageConstant        = "fork manager not configured"
	branchManagerMissingMessageConstant      = "branch manager not configured"
	workingCopyMissingMessageConstant        = "working copy not configured"
	manifestEditorMissingMessageConstant     = "manifest editor not configured"
	publisherMissingMessageConstant          = "publisher not configured"
	pullRequestCreatorMissingMessageConstant = "pull request creator not configured"
	forkNotAvailableMessageConstant          = "fork was requested but never became available"
	requiredValueMessageConstant             = "value required"
	invalidInputErrorTemplateConstant        = "%s: %s"
	branchMismatchErrorTemplateConstant      = "working copy is on branch %q, expected %q"
	staleWorkingCopyTemplateConstant         = "%s already exists; remove it before recreating the fork"
	forkReferenceTemplateConstant            = "fork %s/%s"
	localBranchReferenceTemplateConstant     = "local branch %s in %s"
	unpushedCommitReferenceTemplateConstant  = "unpushed commit on %s in %s"
	remoteBranchReferenceTemplateConstant    = "remote branch %s on %s/%s"
	upstreamFieldNameConstant                = "upstream"
	baseBranchFieldNameConstant              = "base_branch"
	targetBranchFieldNameConstant            = "target_branch"
	workingDirectoryFieldNameConstant        = "working_directory"
	manifestFileFieldNameConstant            = "manifest_file"
	identityFieldNameConstant                = "identity"
	logMessageRunStartedConstant             = "Starting chart upgrade"
	logMessageRunCompletedConstant           = "Chart upgrade pull request opened"
	logMessageStepFailedConstant             = "Workflow step failed"
	logMessageManualCleanupConstant          = "Manual cleanup required"
	logMessageForkReadyConstant              = "Fork ready"
	logMessageCloneSkippedConstant           = "Working copy already present; skipping clone"
	logMessageCleanupCompletedConstant       = "Fork cleanup completed"
	logFieldStepConstant                     = "step"
	logFieldUpstreamConstant                 = "upstream"
	logFieldRepositoryConstant               = "repository"
	logFieldBranchConstant                   = "branch"
	logFieldRepositoryPathConstant           = "repository_path"
	logFieldLeftoversConstant                = "leftovers"
	logFieldForkCreatedConstant              = "fork_created"
	logFieldPullRequestURLConstant           = "pull_request_url"
	logFieldChartsConstant                   = "charts"
)

var (
	// ErrForkManagerNotConfigured indicates the fork manager dependency was missing.
	ErrForkManagerNotConfigured = errors.New(forkManagerMissingMessageConstant)
	// ErrBranchManagerNotConfigured indicates the branch manager dependency was missing.
	ErrBranchManagerNotConfigured = errors.New(branchManagerMissingMessageConstant)
	// ErrWorkingCopyNotConfigured indicates the working copy dependency was missing.
	ErrWorkingCopyNotConfigured = errors.New(workingCopyMissingMessageConstant)
	// ErrManifestEditorNotConfigured indicates the manifest editor dependency was missing.
	ErrManifestEditorNotConfigured = errors.New(manifestEditorMissingMessageConstant)
	// ErrPublisherNotConfigured indicates the publisher dependency was missing.
	ErrPublisherNotConfigured = errors.New(publisherMissingMessageConstant)
	// ErrPullRequestCreatorNotConfigured indicates the pull request creator dependency was missing.
	ErrPullRequestCreatorNotConfigured = errors.New(pullRequestCreatorMissingMessageConstant)
	// ErrForkNotAvailable indicates a created fork never appeared in the listing.
	ErrForkNotAvailable = errors.New(forkNotAvailableMessageConstant)
)

// InvalidInputError describes run option validation failures.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// BranchMismatchError reports a checkout that left the working copy on another branch.
type BranchMismatchError struct {
	Expected string
	Actual   string
}

// Error describes the mismatch.
func (mismatch BranchMismatchError) Error() string {
	return fmt.Sprintf(branchMismatchErrorTemplateConstant, mismatch.Actual, mismatch.Expected)
}

// Identity is the git author configured before any commit.
type Identity struct {
	Name  string
	Email string
}

// Dependencies holds the collaborators sequenced by Service.
type Dependencies struct {
	Logger             *zap.Logger
	Clock              clockwork.Clock
	Forks              ForkManager
	Branches           BranchManager
	WorkingCopy        WorkingCopy
	ManifestEditor     ManifestEditor
	Publisher          Publisher
	PullRequestCreator PullRequestCreator
	StepObserver       StepObserver
}

// RunOptions configures one upgrade run.
type RunOptions struct {
	Upstream         shared.RepositoryRef
	BaseBranch       shared.BranchName
	TargetBranch     shared.BranchName
	WorkingDirectory string
	ManifestFile     string
	Plan             charts.Plan
	Labels           []string
	Identity         Identity
	RecreateFork     bool
}

// RunResult captures the observable outcomes of a run.
type RunResult struct {
	ForkCreated    bool
	ForkRecreated  bool
	Cloned         bool
	BranchReleased bool
	RepositoryPath string
	Checkout       branches.CheckoutResult
	PullRequest    pullrequests.PullRequest
}

// Service sequences the fork, branch, manifest, commit and pull request steps.
// A failing step aborts the run; nothing already done is undone.
type Service struct {
	logger             *zap.Logger
	clock              clockwork.Clock
	forks              ForkManager
	branches           BranchManager
	workingCopy        WorkingCopy
	manifestEditor     ManifestEditor
	publisher          Publisher
	pullRequestCreator PullRequestCreator
	stepObserver       StepObserver
}

// NewService validates dependencies.
func NewService(dependencies Dependencies) (*Service, error) {
	if dependencies.Forks == nil {
		return nil, ErrForkManagerNotConfigured
	}
	if dependencies.Branches == nil {
		return nil, ErrBranchManagerNotConfigured
	}
	if dependencies.WorkingCopy == nil {
		return nil, ErrWorkingCopyNotConfigured
	}
	if dependencies.ManifestEditor == nil {
		return nil, ErrManifestEditorNotConfigured
	}
	if dependencies.Publisher == nil {
		return nil, ErrPublisherNotConfigured
	}
	if dependencies.PullRequestCreator == nil {
		return nil, ErrPullRequestCreatorNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := dependencies.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	stepObserver := dependencies.StepObserver
	if stepObserver == nil {
		stepObserver = noopStepObserver{}
	}

	return &Service{
		logger:             logger,
		clock:              clock,
		forks:              dependencies.Forks,
		branches:           dependencies.Branches,
		workingCopy:        dependencies.WorkingCopy,
		manifestEditor:     dependencies.ManifestEditor,
		publisher:          dependencies.Publisher,
		pullRequestCreator: dependencies.PullRequestCreator,
		stepObserver:       stepObserver,
	}, nil
}

// runState tracks what a run has changed so a failure can name what is left behind.
type runState struct {
	botAccount      string
	options         RunOptions
	repositoryPath  string
	forkCreated     bool
	branchCreated   bool
	commitPending   bool
	branchPublished bool
}

// Run performs one upgrade. On failure the returned error is a shared.StepError
// naming the workflow step; a pull request opened without its labels is still
// reported in the result.
func (service *Service) Run(executionContext context.Context, options RunOptions) (RunResult, error) {
	if validationError := validateOptions(options); validationError != nil {
		return RunResult{}, validationError
	}

	repositoryName := options.Upstream.Name()
	repositoryPath := filepath.Join(strings.TrimSpace(options.WorkingDirectory), repositoryName.String())
	state := &runState{botAccount: service.forks.BotAccount(), options: options, repositoryPath: repositoryPath}
	result := RunResult{RepositoryPath: repositoryPath}

	service.logger.Info(
		logMessageRunStartedConstant,
		zap.String(logFieldUpstreamConstant, options.Upstream.FullName()),
		zap.String(logFieldBranchConstant, options.TargetBranch.String()),
		zap.Strings(logFieldChartsConstant, options.Plan.ChartsToUpdate),
	)

	present := false
	if stepError := service.runStep(state, StepInspectWorkingCopy, func() error {
		isRepository, inspectError := service.workingCopy.IsRepository(repositoryPath)
		if inspectError != nil {
			return inspectError
		}
		present = isRepository
		if !present {
			return nil
		}
		if options.RecreateFork {
			return InvalidInputError{FieldName: workingDirectoryFieldNameConstant, Message: fmt.Sprintf(staleWorkingCopyTemplateConstant, repositoryPath)}
		}
		released, releaseError := service.workingCopy.ReleaseBranch(executionContext, repositoryPath, options.BaseBranch, options.TargetBranch)
		result.BranchReleased = released
		return releaseError
	}); stepError != nil {
		return result, stepError
	}

	if stepError := service.runStep(state, StepConfigureIdentity, func() error {
		return service.workingCopy.ConfigureIdentity(executionContext, options.Identity.Name, options.Identity.Email)
	}); stepError != nil {
		return result, stepError
	}

	if options.RecreateFork {
		if stepError := service.runStep(state, StepRemoveFork, func() error {
			_, removeError := service.forks.Remove(executionContext, repositoryName)
			return removeError
		}); stepError != nil {
			return result, stepError
		}
		result.ForkRecreated = true
	}

	if stepError := service.runStep(state, StepEnsureFork, func() error {
		created, ensureError := service.ensureFork(executionContext, options.Upstream)
		result.ForkCreated = created
		state.forkCreated = created
		return ensureError
	}); stepError != nil {
		return result, stepError
	}

	if present {
		service.logger.Info(logMessageCloneSkippedConstant, zap.String(logFieldRepositoryPathConstant, repositoryPath))
	} else if stepError := service.runStep(state, StepCloneFork, func() error {
		if cloneError := service.workingCopy.CloneFork(executionContext, repositoryName, repositoryPath); cloneError != nil {
			return cloneError
		}
		result.Cloned = true
		return nil
	}); stepError != nil {
		return result, stepError
	}

	if stepError := service.runStep(state, StepCheckoutBranch, func() error {
		checkoutResult, checkoutError := service.branches.Checkout(executionContext, branches.CheckoutRequest{
			RepositoryPath: repositoryPath,
			Upstream:       options.Upstream,
			BaseBranch:     options.BaseBranch,
			TargetBranch:   options.TargetBranch,
		})
		result.Checkout = checkoutResult
		if checkoutError != nil {
			return checkoutError
		}
		state.branchCreated = true
		return nil
	}); stepError != nil {
		return result, stepError
	}

	if stepError := service.runStep(state, StepVerifyBranch, func() error {
		currentBranch, branchError := service.workingCopy.CurrentBranch(repositoryPath)
		if branchError != nil {
			return branchError
		}
		if currentBranch != options.TargetBranch.String() {
			return BranchMismatchError{Expected: options.TargetBranch.String(), Actual: currentBranch}
		}
		return nil
	}); stepError != nil {
		return result, stepError
	}

	if stepError := service.runStep(state, StepApplyManifest, func() error {
		return service.manifestEditor.ApplyPlan(filepath.Join(repositoryPath, options.ManifestFile), options.Plan)
	}); stepError != nil {
		return result, stepError
	}

	if stepError := service.runStep(state, StepPublish, func() error {
		publishError := service.publisher.AddCommitPush(executionContext, publish.PublishRequest{
			RepositoryPath: repositoryPath,
			FilePath:       options.ManifestFile,
			RepositoryName: repositoryName,
			TargetBranch:   options.TargetBranch,
			ChartNames:     options.Plan.ChartsToUpdate,
			ChartVersions:  options.Plan.Versions(),
		})
		var publishStepError shared.StepError
		if errors.As(publishError, &publishStepError) && publishStepError.Step == publish.StepPushBranch {
			state.commitPending = true
		}
		if publishError != nil {
			return publishError
		}
		state.branchPublished = true
		return nil
	}); stepError != nil {
		return result, stepError
	}

	if stepError := service.runStep(state, StepOpenPullRequest, func() error {
		pullRequest, createError := service.pullRequestCreator.Create(executionContext, pullrequests.CreateRequest{
			Upstream:     options.Upstream,
			BaseBranch:   options.BaseBranch,
			TargetBranch: options.TargetBranch,
			Labels:       options.Labels,
		})
		result.PullRequest = pullRequest
		return createError
	}); stepError != nil {
		return result, stepError
	}

	service.logger.Info(
		logMessageRunCompletedConstant,
		zap.String(logFieldUpstreamConstant, options.Upstream.FullName()),
		zap.String(logFieldPullRequestURLConstant, result.PullRequest.HTMLURL),
		zap.Bool(logFieldForkCreatedConstant, result.ForkCreated),
	)
	return result, nil
}

// Cleanup removes the bot's fork of the repository.
func (service *Service) Cleanup(executionContext context.Context, repositoryName shared.RepositoryName) error {
	state := &runState{}
	if stepError := service.runStep(state, StepCleanup, func() error {
		_, removeError := service.forks.Remove(executionContext, repositoryName)
		return removeError
	}); stepError != nil {
		return stepError
	}
	service.logger.Info(logMessageCleanupCompletedConstant, zap.String(logFieldRepositoryConstant, service.forks.BotAccount()+"/"+repositoryName.String()))
	return nil
}

func (service *Service) ensureFork(executionContext context.Context, upstream shared.RepositoryRef) (bool, error) {
	exists, existsError := service.forks.Exists(executionContext, upstream.Name())
	if existsError != nil {
		return false, existsError
	}
	if exists {
		service.logger.Info(logMessageForkReadyConstant, zap.String(logFieldUpstreamConstant, upstream.FullName()), zap.Bool(logFieldForkCreatedConstant, false))
		return false, nil
	}

	if _, createError := service.forks.Create(executionContext, upstream); createError != nil {
		return false, createError
	}
	available, waitError := service.forks.WaitUntilPresent(executionContext, upstream.Name())
	if waitError != nil {
		return true, waitError
	}
	if !available {
		return true, ErrForkNotAvailable
	}
	service.logger.Info(logMessageForkReadyConstant, zap.String(logFieldUpstreamConstant, upstream.FullName()), zap.Bool(logFieldForkCreatedConstant, true))
	return true, nil
}

// runStep times a step, reports it to the step observer and wraps its failure.
func (service *Service) runStep(state *runState, step shared.StepName, action func() error) error {
	startedAt := service.clock.Now()
	actionError := action()
	service.stepObserver.ObserveStep(string(step), service.clock.Since(startedAt), actionError)
	if actionError == nil {
		return nil
	}

	service.logger.Error(logMessageStepFailedConstant, zap.String(logFieldStepConstant, string(step)), zap.Error(actionError))
	if leftovers := state.leftovers(); len(leftovers) > 0 {
		service.logger.Warn(logMessageManualCleanupConstant, zap.String(logFieldStepConstant, string(step)), zap.Strings(logFieldLeftoversConstant, leftovers))
	}
	return shared.StepError{Step: step, Cause: actionError}
}

// leftovers names the state a failed run leaves for manual cleanup.
func (state *runState) leftovers() []string {
	var leftovers []string
	repositoryName := state.options.Upstream.Name().String()
	branchName := state.options.TargetBranch.String()
	if state.forkCreated {
		leftovers = append(leftovers, fmt.Sprintf(forkReferenceTemplateConstant, state.botAccount, repositoryName))
	}
	if state.branchCreated {
		leftovers = append(leftovers, fmt.Sprintf(localBranchReferenceTemplateConstant, branchName, state.repositoryPath))
	}
	if state.commitPending {
		leftovers = append(leftovers, fmt.Sprintf(unpushedCommitReferenceTemplateConstant, branchName, state.repositoryPath))
	}
	if state.branchPublished {
		leftovers = append(leftovers, fmt.Sprintf(remoteBranchReferenceTemplateConstant, branchName, state.botAccount, repositoryName))
	}
	return leftovers
}

func validateOptions(options RunOptions) error {
	if options.Upstream.IsZero() {
		return InvalidInputError{FieldName: upstreamFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(options.BaseBranch.String()) == 0 {
		return InvalidInputError{FieldName: baseBranchFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(options.TargetBranch.String()) == 0 {
		return InvalidInputError{FieldName: targetBranchFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(options.WorkingDirectory)) == 0 {
		return InvalidInputError{FieldName: workingDirectoryFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(options.ManifestFile)) == 0 {
		return InvalidInputError{FieldName: manifestFileFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(options.Identity.Name)) == 0 || len(strings.TrimSpace(options.Identity.Email)) == 0 {
		return InvalidInputError{FieldName: identityFieldNameConstant, Message: requiredValueMessageConstant}
	}
	return options.Plan.Validate()
}
