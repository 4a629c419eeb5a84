package shared

import (
	"context"

	"github.com/temirov/helmbump/internal/execshell"
)

// GitExecutor exposes the subset of shell execution used by repository services.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// GitHubAPI exposes the JSON REST calls used by repository services.
type GitHubAPI interface {
	Get(executionContext context.Context, resource string, target any) error
	Post(executionContext context.Context, resource string, body any, target any) error
	Delete(executionContext context.Context, resource string) error
}

// ForkInspector answers whether the bot account currently lists a fork.
type ForkInspector interface {
	Exists(executionContext context.Context, repositoryName RepositoryName) (bool, error)
}
