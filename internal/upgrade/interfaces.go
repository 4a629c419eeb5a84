package upgrade

import (
	"context"
	"time"

	"github.com/temirov/helmbump/internal/branches"
	"github.com/temirov/helmbump/internal/charts"
	"github.com/temirov/helmbump/internal/publish"
	"github.com/temirov/helmbump/internal/pullrequests"
	"github.com/temirov/helmbump/internal/repos/shared"
)

// ForkManager ensures the bot's fork exists or is removed.
type ForkManager interface {
	BotAccount() string
	Exists(executionContext context.Context, repositoryName shared.RepositoryName) (bool, error)
	Create(executionContext context.Context, upstream shared.RepositoryRef) (bool, error)
	Remove(executionContext context.Context, repositoryName shared.RepositoryName) (bool, error)
	WaitUntilPresent(executionContext context.Context, repositoryName shared.RepositoryName) (bool, error)
}

// BranchManager prepares the target branch.
type BranchManager interface {
	Checkout(executionContext context.Context, request branches.CheckoutRequest) (branches.CheckoutResult, error)
}

// WorkingCopy manages the local clone of the fork.
type WorkingCopy interface {
	ConfigureIdentity(executionContext context.Context, name string, email string) error
	CloneFork(executionContext context.Context, repositoryName shared.RepositoryName, directory string) error
	IsRepository(path string) (bool, error)
	CurrentBranch(path string) (string, error)
	ReleaseBranch(executionContext context.Context, path string, baseBranch shared.BranchName, targetBranch shared.BranchName) (bool, error)
}

// ManifestEditor applies a chart plan to a manifest file.
type ManifestEditor interface {
	ApplyPlan(manifestPath string, plan charts.Plan) error
}

// Publisher stages, commits and pushes the edited manifest.
type Publisher interface {
	AddCommitPush(executionContext context.Context, request publish.PublishRequest) error
}

// PullRequestCreator opens the upgrade pull request.
type PullRequestCreator interface {
	Create(executionContext context.Context, request pullrequests.CreateRequest) (pullrequests.PullRequest, error)
}

// StepObserver receives the duration and outcome of every workflow step.
type StepObserver interface {
	ObserveStep(step string, duration time.Duration, failure error)
}

// StepObservers fans a step event out to every member.
type StepObservers []StepObserver

// ObserveStep forwards the event to each non-nil observer in order.
func (observers StepObservers) ObserveStep(step string, duration time.Duration, failure error) {
	for _, observer := range observers {
		if observer != nil {
			observer.ObserveStep(step, duration, failure)
		}
	}
}

// ManifestEditorFunc adapts a function to ManifestEditor.
type ManifestEditorFunc func(manifestPath string, plan charts.Plan) error

// ApplyPlan calls the wrapped function.
func (editor ManifestEditorFunc) ApplyPlan(manifestPath string, plan charts.Plan) error {
	return editor(manifestPath, plan)
}

type noopStepObserver struct{}

func (noopStepObserver) ObserveStep(string, time.Duration, error) {}
