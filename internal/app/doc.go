// Package app runs one test session end to end: discover the suite, build
// and analyze every test, schedule the batches and execute them in the
// emulator. It owns the run's logger, console and metrics and turns every
// fatal error into a diagnosis with remediation advice. It is decoupled from
// any specific entrypoint like a CLI.
package app
