// Package cli builds the helmbump command-line interface: a Cobra root with
// persistent configuration and logging flags, and the upgrade and cleanup
// commands from the upgrade package.
package cli
