// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync/atomic"

	"github.com/flemzord/qaindex/internal/cron"
)

// Job is a cron.Job that counts its runs and returns Err.
type Job struct {
	JobName string
	Expr    string
	Err     error

	// Release, when non-nil, holds each run until it is closed or the
	// context ends.
	Release chan struct{}

	started chan struct{}
	runs    atomic.Int32
}

var _ cron.Job = (*Job)(nil)

// Name implements cron.Job.
func (j *Job) Name() string { return j.JobName }

// Schedule implements cron.Job. An empty Expr means hourly.
func (j *Job) Schedule() string {
	if j.Expr == "" {
		return "0 * * * *"
	}
	return j.Expr
}

// Run implements cron.Job.
func (j *Job) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.started != nil {
		select {
		case j.started <- struct{}{}:
		default:
		}
	}
	if j.Release != nil {
		select {
		case <-j.Release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.Err
}

// Runs returns how many times Run was entered.
func (j *Job) Runs() int { return int(j.runs.Load()) }

// Started returns a channel signalled each time a run begins. Call it
// before the job can run.
func (j *Job) Started() <-chan struct{} {
	if j.started == nil {
		j.started = make(chan struct{}, 1)
	}
	return j.started
}
