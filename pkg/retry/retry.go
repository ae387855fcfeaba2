package retry

import (
	"context"
	"fmt"
	"time"

	errs "ntpdate/pkg/errors"
	"ntpdate/pkg/logger"
)

// Operation is a function that performs an operation that might need retrying
type Operation func(ctx context.Context) error

// OperationWithResult is a function that returns a result and might need retrying
type OperationWithResult[T any] func(ctx context.Context) (T, error)

// RetryCallback is consulted after a retryable failure. Returning false stops
// the loop with the original failure; returning an error stops it with that
// error instead.
type RetryCallback func(err error) (bool, error)

// Classifier maps an error to the kind checked against Config.NonRetryable
type Classifier func(err error) errs.ErrorType

// Config holds retry configuration
type Config struct {
	// Name identifies the operation in log output
	Name string
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int
	// InitialDelay is the pause between the first and second attempt
	InitialDelay time.Duration
	// BackoffFactor multiplies the delay after every failed attempt
	BackoffFactor float64
	// MaxDelay caps the delay; zero means no cap
	MaxDelay time.Duration
	// NonRetryable lists error kinds that end the loop on first sight
	NonRetryable []errs.ErrorType
	// RetryCallback, if set, may veto a retry
	RetryCallback RetryCallback
	// Classify determines the kind of a failure (defaults to errors.KindOf)
	Classify Classifier
	// Sleep pauses between attempts (defaults to Wait)
	Sleep SleepFunc
	// Logger for retry attempts (defaults to a no-op logger)
	Logger logger.Logger
}

// DefaultConfig returns a retry configuration with sensible defaults:
// three attempts, waiting 1s and then 2s.
func DefaultConfig() *Config {
	return &Config{
		Name:          "operation",
		MaxAttempts:   3,
		InitialDelay:  1 * time.Second,
		BackoffFactor: 2.0,
		Classify:      errs.KindOf,
		Sleep:         Wait,
		Logger:        logger.Nop(),
	}
}

// Validate checks the parameters that matter once retries are enabled
func (c *Config) Validate() error {
	if c.MaxAttempts < 1 {
		return errs.New(errs.ErrorTypeConfig, c.Name, fmt.Sprintf("max attempts must be at least 1, got %d", c.MaxAttempts))
	}
	if c.MaxAttempts == 1 {
		return nil
	}
	// written as a negation so NaN is rejected too
	if !(c.BackoffFactor > 1) {
		return errs.New(errs.ErrorTypeConfig, c.Name, fmt.Sprintf("backoff factor must be greater than 1, got %v", c.BackoffFactor))
	}
	if c.InitialDelay < 0 {
		return errs.New(errs.ErrorTypeConfig, c.Name, fmt.Sprintf("initial delay must not be negative, got %s", c.InitialDelay))
	}
	if c.MaxDelay < 0 {
		return errs.New(errs.ErrorTypeConfig, c.Name, fmt.Sprintf("max delay must not be negative, got %s", c.MaxDelay))
	}
	return nil
}

// clone returns a copy that per-call options can modify freely
func (c *Config) clone() *Config {
	cp := *c
	cp.NonRetryable = append([]errs.ErrorType(nil), c.NonRetryable...)
	return &cp
}

// withDefaults fills in missing collaborators
func (c *Config) withDefaults() *Config {
	if c.Name == "" {
		c.Name = "operation"
	}
	if c.Classify == nil {
		c.Classify = errs.KindOf
	}
	if c.Sleep == nil {
		c.Sleep = Wait
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	return c
}

func (c *Config) nonRetryableSet() map[errs.ErrorType]struct{} {
	set := make(map[errs.ErrorType]struct{}, len(c.NonRetryable))
	for _, kind := range c.NonRetryable {
		set[kind] = struct{}{}
	}
	return set
}

// Option overrides a Config field for a single call
type Option func(*Config)

// WithName overrides the operation name used in logs
func WithName(name string) Option {
	return func(c *Config) { c.Name = name }
}

// WithMaxAttempts overrides the total number of attempts
func WithMaxAttempts(n int) Option {
	return func(c *Config) { c.MaxAttempts = n }
}

// WithInitialDelay overrides the first delay
func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) { c.InitialDelay = d }
}

// WithBackoffFactor overrides the delay multiplier
func WithBackoffFactor(f float64) Option {
	return func(c *Config) { c.BackoffFactor = f }
}

// WithRetryCallback overrides the retry callback
func WithRetryCallback(cb RetryCallback) Option {
	return func(c *Config) { c.RetryCallback = cb }
}

// WithNonRetryable overrides the set of non-retryable kinds
func WithNonRetryable(kinds ...errs.ErrorType) Option {
	return func(c *Config) { c.NonRetryable = kinds }
}

// Executor provides a reusable retry mechanism. It holds no per-call state
// and is safe for concurrent use.
type Executor struct {
	config *Config
}

// NewExecutor creates a new executor with the given configuration
func NewExecutor(cfg *Config) *Executor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Executor{config: cfg.clone().withDefaults()}
}

// Config returns a copy of the executor's base configuration
func (e *Executor) Config() Config {
	return *e.config.clone()
}

// With returns a new executor whose base configuration has opts applied
func (e *Executor) With(opts ...Option) *Executor {
	return &Executor{config: e.resolve(opts)}
}

func (e *Executor) resolve(opts []Option) *Config {
	cfg := e.config.clone()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg.withDefaults()
}

// attempt is the state of one Do call
type attempt struct {
	current int
	delay   time.Duration
	last    error
}

// Do executes an operation with retry logic. On failure the returned error is
// a *RetryError wrapping the failure that ended the loop.
func (e *Executor) Do(ctx context.Context, op Operation, opts ...Option) error {
	cfg := e.resolve(opts)
	log := cfg.Logger.WithField("operation", cfg.Name)

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Error("invalid retry configuration")
		return &RetryError{Err: err, Reason: ReasonConfiguration}
	}

	nonRetryable := cfg.nonRetryableSet()
	rec := &attempt{current: 1, delay: cfg.InitialDelay}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return rec.cancelled(log, cfg, rec.current-1, ctxErr)
		}

		if rec.current > 1 {
			log.DebugWithFields("retrying operation", map[string]interface{}{
				"try": fmt.Sprintf("%d of %d", rec.current, cfg.MaxAttempts),
			})
		}

		err := op(ctx)
		if err == nil {
			if rec.current > 1 {
				log.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": rec.current,
				})
			}
			return nil
		}

		rec.last = err
		kind := cfg.Classify(err)

		log.WarnWithFields("operation failed", map[string]interface{}{
			"attempt":    rec.current,
			"tries_left": cfg.MaxAttempts - rec.current,
			"kind":       string(kind),
			"error":      err.Error(),
		})

		if _, ok := nonRetryable[kind]; ok {
			log.ErrorWithFields("error kind is not retryable, giving up", map[string]interface{}{
				"kind":    string(kind),
				"attempt": rec.current,
			})
			return rec.fail(ReasonNonRetryable, err)
		}

		if rec.current >= cfg.MaxAttempts {
			log.ErrorWithFields(fmt.Sprintf("failed after %d of %d attempts", rec.current, cfg.MaxAttempts), map[string]interface{}{
				"error": err.Error(),
			})
			return rec.fail(ReasonExhausted, err)
		}

		if cfg.RetryCallback != nil {
			retryable, cbErr := cfg.RetryCallback(err)
			if cbErr != nil {
				// the callback error replaces err, which would otherwise be lost
				log.ErrorWithFields("retry callback failed", map[string]interface{}{
					"callback_error": cbErr.Error(),
					"error":          err.Error(),
					"attempt":        rec.current,
				})
				return &RetryError{
					Err:        cbErr,
					RetryCount: rec.current,
					Attempts:   rec.current,
					Reason:     ReasonCallback,
					Last:       err,
				}
			}

			log.DebugWithFields("retry callback decided", map[string]interface{}{
				"may_retry": retryable,
			})
			if !retryable {
				log.ErrorWithFields("retry declined by callback", map[string]interface{}{
					"attempt": rec.current,
					"error":   err.Error(),
				})
				return rec.fail(ReasonVetoed, err)
			}
		}

		if rec.delay > 0 {
			log.DebugWithFields("sleeping before retry", map[string]interface{}{
				"delay": rec.delay,
			})
			if sleepErr := cfg.Sleep(ctx, rec.delay); sleepErr != nil {
				return rec.cancelled(log, cfg, rec.current, sleepErr)
			}
		}

		rec.delay = nextDelay(rec.delay, cfg.BackoffFactor, cfg.MaxDelay)
		rec.current++
	}
}

// fail builds the terminal error for a failure of the current attempt
func (a *attempt) fail(reason Reason, err error) *RetryError {
	return &RetryError{
		Err:        err,
		RetryCount: a.current - 1,
		Attempts:   a.current,
		Reason:     reason,
		Last:       err,
	}
}

// cancelled builds the terminal error when the loop is interrupted after
// attempts completed attempts
func (a *attempt) cancelled(log logger.Logger, cfg *Config, attempts int, cause error) *RetryError {
	retries := attempts - 1
	if retries < 0 {
		retries = 0
	}
	log.ErrorWithFields("retry cancelled", map[string]interface{}{
		"attempts": attempts,
		"reason":   cause.Error(),
	})
	return &RetryError{
		Err:        errs.Wrap(errs.ErrorTypeCancelled, cfg.Name, cause),
		RetryCount: retries,
		Attempts:   attempts,
		Reason:     ReasonCancelled,
		Last:       a.last,
	}
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](ctx context.Context, e *Executor, op OperationWithResult[T], opts ...Option) (T, error) {
	var result T

	err := e.Do(ctx, func(ctx context.Context) error {
		v, opErr := op(ctx)
		if opErr != nil {
			return opErr
		}
		result = v
		return nil
	}, opts...)

	return result, err
}

// Wrap binds op to e and returns a function that runs it with retries.
// Options passed to the returned function take precedence over e's config.
func Wrap[T any](e *Executor, op OperationWithResult[T]) func(ctx context.Context, opts ...Option) (T, error) {
	return func(ctx context.Context, opts ...Option) (T, error) {
		return DoWithResult(ctx, e, op, opts...)
	}
}

// Do runs op with a fresh executor built from cfg (nil means DefaultConfig)
func Do(ctx context.Context, op Operation, cfg *Config) error {
	return NewExecutor(cfg).Do(ctx, op)
}
