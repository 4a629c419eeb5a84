// Package execshell runs git as an external process for helmbump.
//
// OSCommandRunner executes a process and reports its exit status without
// treating non-zero codes as errors. ShellExecutor layers logging, observer
// notifications and credential redaction on top of a runner and turns a
// non-zero exit into CommandFailedError so callers can abort a workflow step.
package execshell
