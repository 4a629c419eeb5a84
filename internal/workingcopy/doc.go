// Package workingcopy configures the global git identity, clones the bot's fork
// and inspects the local working copy with go-git.
package workingcopy
