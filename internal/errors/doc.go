// Package errors defines error types for the llama bridge.
//
// This package provides structured error types for the failure modes of a
// supervised llama-cli process: launch failures, unexpected exits, broken
// input pipes and terminated output streams. All error types support
// unwrapping and can be checked using errors.Is, errors.As, and errors.AsType.
package errors
