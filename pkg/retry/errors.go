package retry

import "errors"

// Reason records why a retry loop stopped
type Reason string

const (
	// ReasonConfiguration: the retry parameters were invalid; nothing ran
	ReasonConfiguration Reason = "configuration"
	// ReasonNonRetryable: the failure kind is listed in Config.NonRetryable
	ReasonNonRetryable Reason = "non_retryable"
	// ReasonCallback: the retry callback itself failed
	ReasonCallback Reason = "callback"
	// ReasonVetoed: the retry callback declined another attempt
	ReasonVetoed Reason = "vetoed"
	// ReasonExhausted: every attempt failed
	ReasonExhausted Reason = "exhausted"
	// ReasonCancelled: the context ended before the loop finished
	ReasonCancelled Reason = "cancelled"
)

// RetryError is the terminal failure of a retry loop. Its message is that of
// Err, so callers see the original failure text unchanged.
type RetryError struct {
	// Err is the failure being propagated
	Err error
	// RetryCount is the number of retries performed, one less than the attempts
	RetryCount int
	// Attempts is the number of times the operation ran
	Attempts int
	// Reason explains why the loop stopped
	Reason Reason
	// Last is the most recent operation failure, which differs from Err for
	// callback failures and cancellations
	Last error
}

func (e *RetryError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return e.Err.Error()
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

// RetryCountOf extracts the retry count from err, if err came out of a retry loop
func RetryCountOf(err error) (int, bool) {
	var re *RetryError
	if errors.As(err, &re) {
		return re.RetryCount, true
	}
	return 0, false
}

// ReasonOf returns why the retry loop producing err stopped, or "" if err did
// not come from a retry loop
func ReasonOf(err error) Reason {
	var re *RetryError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}
