// Package upgrade sequences a chart upgrade run: git identity, fork, clone,
// target branch, manifest edit, commit and push, then the pull request.
//
// A failing step aborts the run with a shared.StepError. Work already done is
// never rolled back; instead the service logs what is left for manual cleanup.
package upgrade
