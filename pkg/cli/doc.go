// Package cli provides output formatting, error types, and signal
// handling shared by the outpost command.
package cli
