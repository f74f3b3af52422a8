// Package retry runs fallible operations with exponential backoff and jitter.
//
// An operation is invoked up to Policy.MaxAttempts times. After a failed
// attempt n the executor sleeps
//
//	min(BaseDelay * 2^(n-1) + jitter, MaxDelay)
//
// with jitter drawn uniformly from [0, 200ms). Errors rejected by
// Policy.IsRetryable are returned immediately without sleeping. When all
// attempts fail an *ExhaustedError carrying the last cause is returned.
//
// The executor does not make operations idempotent. Callers that create
// things (folders, files) check for existence first; that check is not
// atomic with the create, so concurrent retries can still produce duplicates.
//
// There is no way to cancel an operation once Execute has been called; it
// runs until it succeeds or the attempt budget is spent.
package retry
