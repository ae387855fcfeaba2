// Package retry runs a fallible operation a bounded number of times with an
// exponentially growing pause between attempts.
//
// Features:
//   - Attempt limit, initial delay and backoff factor per executor
//   - Per-call overrides that never mutate the executor's configuration
//   - Failure kinds that stop the loop immediately (see pkg/errors)
//   - A callback that can veto further retries
//   - Context support for cancellation, both before attempts and during delays
//   - Terminal errors that carry the number of retries performed
//
// Basic usage:
//
//	exec := retry.NewExecutor(&retry.Config{
//		Name:          "ntp.query",
//		MaxAttempts:   5,
//		InitialDelay:  time.Second,
//		BackoffFactor: 2.0,
//		NonRetryable:  []errors.ErrorType{errors.ErrorTypeNotFound},
//		Logger:        log,
//	})
//
//	resp, err := retry.DoWithResult(ctx, exec, func(ctx context.Context) (*ntp.Response, error) {
//		return client.Query(ctx, host)
//	})
//	if n, ok := retry.RetryCountOf(err); ok {
//		log.WithField("retries", n).Error("query failed")
//	}
//
//	// Override the attempt count for one call only
//	err = exec.Do(ctx, op, retry.WithMaxAttempts(1))
//
// With the defaults of three attempts, a 1s initial delay and a factor of 2 an
// operation that keeps failing is retried after 1s and 2s before the last
// failure is returned. The returned *RetryError reports the message of the
// original error and unwraps to it, so errors.Is and errors.As keep working.
package retry
