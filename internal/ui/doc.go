// Package ui renders helmbump progress for people watching a console.
//
// ProgressLogger turns git command lifecycle events and workflow step
// outcomes into short messages, while the structured logger and telemetry
// keep the machine-readable record.
package ui
