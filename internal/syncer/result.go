// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package syncer

import (
	"fmt"

	"github.com/tomtom215/regsync/internal/models"
)

// Outcome classifies a finished task.
type Outcome int

const (
	// OutcomePushed means the registry now reflects the record.
	OutcomePushed Outcome = iota

	// OutcomeSkipped means there was nothing to do.
	OutcomeSkipped

	// OutcomeRetry means a prerequisite is missing. The prerequisites listed
	// in Enqueued were scheduled and the task should be re-delivered later.
	OutcomeRetry

	// OutcomeFatal means the task can never succeed as configured.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomePushed:
		return "pushed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeRetry:
		return "retry"
	case OutcomeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is what a synchronizer reports for one task.
type Result struct {
	Outcome  Outcome
	Reason   string
	Enqueued []models.Task
	Err      error
}

// Settled reports whether the task is done and should be acknowledged.
func (r Result) Settled() bool {
	return r.Outcome == OutcomePushed || r.Outcome == OutcomeSkipped
}

func (r Result) String() string {
	if r.Reason == "" {
		return r.Outcome.String()
	}
	return r.Outcome.String() + ": " + r.Reason
}

func pushed(reason string) Result {
	return Result{Outcome: OutcomePushed, Reason: reason}
}

func skipped(reason string) Result {
	return Result{Outcome: OutcomeSkipped, Reason: reason}
}

func retry(err error, enqueued ...models.Task) Result {
	return Result{Outcome: OutcomeRetry, Reason: err.Error(), Enqueued: enqueued, Err: err}
}

func fatal(err error) Result {
	return Result{Outcome: OutcomeFatal, Reason: err.Error(), Err: err}
}
