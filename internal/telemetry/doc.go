// Package telemetry records per-run Prometheus metrics for GitHub requests,
// git commands and workflow steps, and can write them to a textfile for the
// node exporter.
package telemetry
