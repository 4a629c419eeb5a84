// Package branches prepares the target branch for a helmbump run.
//
// Service removes a stale target branch from the bot's fork and the working
// copy, pulls the upstream base branch and creates the target branch with a
// branch-creating checkout. Every failed step is reported as a
// shared.StepError; earlier steps are never undone.
package branches
