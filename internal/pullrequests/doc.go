// Package pullrequests opens the upgrade pull request from the bot's fork and
// attaches labels to it through the issue endpoint.
package pullrequests
