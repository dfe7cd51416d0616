package models

import (
	"time"

	"github.com/spboyer/rmbsgrade/internal/rating"
)

// ErrorKind classifies why a candidate interaction did not produce a usable rating.
type ErrorKind string

const (
	ErrorKindNone              ErrorKind = ""
	ErrorKindNoEntryPoint      ErrorKind = "no_entry_point"
	ErrorKindImportFailure     ErrorKind = "import_failure"
	ErrorKindInvocationFailure ErrorKind = "invocation_failure"
	ErrorKindTimeout           ErrorKind = "timeout"
	ErrorKindMalformedOutput   ErrorKind = "malformed_output"

	// ErrorKindMissingResult marks a fixture or tier for which no
	// ExecutionResult was recorded. It is scored as a worst-case failure.
	ErrorKindMissingResult ErrorKind = "missing_result"
)

// ResultKind tags the variant held by an ExecutionResult.
type ResultKind string

const (
	ResultSuccess ResultKind = "success"
	ResultFailure ResultKind = "failure"
	ResultTimeout ResultKind = "timeout"
)

// ExecutionResult is the outcome of one invocation of candidate code. Build it
// with NewSuccess, NewFailure or NewTimeout; the fields are not meant to be
// modified afterwards.
type ExecutionResult struct {
	Kind      ResultKind    `json:"kind"`
	Rating    rating.Rating `json:"rating,omitempty"`
	Elapsed   time.Duration `json:"elapsed_ns,omitempty"`
	ErrorKind ErrorKind     `json:"error_kind,omitempty"`
	Message   string        `json:"message,omitempty"`
}

// NewSuccess records a recognised rating and the time the call took.
func NewSuccess(r rating.Rating, elapsed time.Duration) ExecutionResult {
	return ExecutionResult{Kind: ResultSuccess, Rating: r, Elapsed: elapsed}
}

// NewFailure records a candidate fault.
func NewFailure(kind ErrorKind, message string) ExecutionResult {
	return ExecutionResult{Kind: ResultFailure, ErrorKind: kind, Message: message}
}

// NewTimeout records a call abandoned at the wall-clock bound.
func NewTimeout(elapsed time.Duration) ExecutionResult {
	return ExecutionResult{
		Kind:      ResultTimeout,
		Elapsed:   elapsed,
		ErrorKind: ErrorKindTimeout,
		Message:   "execution exceeded " + elapsed.Round(time.Millisecond).String(),
	}
}

// MissingResult stands in for an ExecutionResult that was never recorded.
func MissingResult() ExecutionResult {
	return NewFailure(ErrorKindMissingResult, "no execution result was recorded")
}

func (r ExecutionResult) Succeeded() bool { return r.Kind == ResultSuccess }
func (r ExecutionResult) TimedOut() bool  { return r.Kind == ResultTimeout }
