// Package trigger implements the two stages of the notification pipeline.
//
// The fan-out stage (CreateHookTrigger) consumes one "change occurred" task,
// matches the change's target against the hook registry, and enqueues one
// delivery task per matching hook. Re-processing the same fan-out task is
// safe: the deterministic delivery biz_id makes the enqueue a no-op.
//
// The delivery stage (TriggerHook) consumes one delivery task, builds the
// signed callback, POSTs it to the hook's endpoint, and reports the outcome.
// A 2xx response is success; anything else is a retryable failure. A deleted
// subscription or malformed payload is a permanent failure, never retried.
//
// The Producer ties the pipeline to the change log: it appends a Change and
// enqueues the fan-out task that every registry mutation turns into.
package trigger
