// Package tasks runs upstream work on a bounded, rate-limited worker pool.
//
// # Pool
//
// [Pool] starts a fixed number of workers that share one [rate.Limiter]. [Pool.Submit] hands a job to a free
// worker and waits for its result:
//
//   - The caller's context bounds only the wait for a free worker. Once a worker picks the job up, it runs to
//     completion with [context.WithoutCancel], so a cancelled client never leaves playlist edits half applied.
//   - A panicking job is recovered and reported as [shared.ErrInternal]; the worker keeps serving.
//   - Jobs are never retried.
//
// [Pool.Close] stops accepting jobs and waits for running ones to finish.
package tasks
