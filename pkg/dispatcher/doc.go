// Package dispatcher drives the task pipeline: worker loops that claim
// runnable tasks from the store and execute the registered stage handler,
// an exponential backoff retry policy, and a cron-scheduled reaper that
// recovers tasks orphaned by crashed workers.
//
// Exclusion relies entirely on the store's atomic waiting->processing claim;
// workers hold no locks and coordinate through task state only.
package dispatcher
