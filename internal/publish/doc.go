// Package publish stages the edited manifest, commits it with a message naming
// the bumped charts and pushes the target branch to the bot's fork over an
// authenticated HTTPS URL.
package publish
