package syncer

import (
	"context"
	"fmt"
	"time"

	"ntpdate/pkg/clock"
	"ntpdate/pkg/config"
	errs "ntpdate/pkg/errors"
	"ntpdate/pkg/logger"
	"ntpdate/pkg/ntp"
	"ntpdate/pkg/retry"
)

// Options selects the server and which clocks to set
type Options struct {
	Host       string
	SetSystem  bool
	SetHWClock bool
}

// Result describes one completed sync
type Result struct {
	Host     string
	Stratum  uint8
	Offset   time.Duration
	Time     time.Time
	Synced   bool
	HWClock  bool
	Attempts int
}

// Summary renders the line printed after a sync
func (r *Result) Summary() string {
	synced := ""
	if r.Synced {
		synced = "synced OK, "
	}
	return fmt.Sprintf("%s: %sstratum %d reports offset %.4f seconds",
		r.Host, synced, r.Stratum, r.Offset.Seconds())
}

// Syncer queries a time server with retries and applies the answer
type Syncer struct {
	querier  ntp.Querier
	clock    clock.Setter
	executor *retry.Executor
	logger   logger.Logger
}

// New creates a Syncer
func New(querier ntp.Querier, setter clock.Setter, executor *retry.Executor, log logger.Logger) *Syncer {
	if log == nil {
		log = logger.Nop()
	}
	if executor == nil {
		executor = retry.NewExecutor(&retry.Config{
			MaxAttempts:   1,
			BackoffFactor: 2,
			Logger:        log,
		})
	}
	return &Syncer{
		querier:  querier,
		clock:    setter,
		executor: executor,
		logger:   log,
	}
}

// RetryConfig converts the retry section of cfg into an executor configuration.
// Retries counts attempts after the first, so MaxAttempts is Retries+1.
func RetryConfig(cfg *config.Config, log logger.Logger) (*retry.Config, error) {
	kinds := make([]errs.ErrorType, 0, len(cfg.Retry.NonRetryable))
	for _, name := range cfg.Retry.NonRetryable {
		kind, err := errs.ParseErrorType(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}

	return &retry.Config{
		Name:          "ntp.query",
		MaxAttempts:   cfg.Retry.Retries + 1,
		InitialDelay:  cfg.Retry.InitialDelay,
		BackoffFactor: cfg.Retry.BackoffFactor,
		MaxDelay:      cfg.Retry.MaxDelay,
		NonRetryable:  kinds,
		Logger:        log,
	}, nil
}

// Run queries opts.Host and, if asked, sets the system and hardware clocks
func (s *Syncer) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.SetHWClock && !opts.SetSystem {
		return nil, errs.New(errs.ErrorTypeConfig, "sync",
			"to set the hardware clock you must also set the system clock, as its value is taken from the system clock")
	}
	if opts.Host == "" {
		opts.Host = config.DefaultHost
	}

	log := s.logger.WithField("host", opts.Host)

	attempts := 0
	query := retry.Wrap(s.executor, func(ctx context.Context) (*ntp.Response, error) {
		attempts++
		return s.querier.Query(ctx, opts.Host)
	})

	resp, err := query(ctx, retry.WithName("ntp.query "+opts.Host))
	if err != nil {
		return nil, err
	}

	result := &Result{
		Host:     opts.Host,
		Stratum:  resp.Stratum,
		Offset:   resp.Offset,
		Time:     resp.Time,
		Attempts: attempts,
	}

	if opts.SetSystem {
		if err := s.clock.SetSystem(ctx, resp.Time); err != nil {
			log.WithError(err).Error("failed to set system clock")
			return nil, err
		}
		result.Synced = true
		log.InfoWithFields("system clock set", map[string]interface{}{
			"time": resp.Time.UTC(),
		})

		if opts.SetHWClock {
			if !s.clock.HasHWClock(ctx) {
				log.Warn("hwclock from util-linux not found, hardware clock left unchanged")
			} else if err := s.clock.SetHWClock(ctx); err != nil {
				log.WithError(err).Error("failed to set hardware clock")
				return nil, err
			} else {
				result.HWClock = true
			}
		}
	}

	return result, nil
}
