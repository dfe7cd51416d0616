package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess         = 0 // Every candidate was graded
	ExitCandidateFailed = 1 // --fail-on-zero and at least one candidate scored zero
	ExitError           = 2 // Configuration or runtime error
)

// CandidateFailureError indicates that the run completed but at least one
// candidate earned no algorithm credit.
type CandidateFailureError struct {
	Message string
}

func (e *CandidateFailureError) Error() string {
	return e.Message
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var candidateErr *CandidateFailureError
		if errors.As(err, &candidateErr) {
			os.Exit(ExitCandidateFailed)
		}
		os.Exit(ExitError)
	}
}
