package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ntpdate/pkg/config"
	errs "ntpdate/pkg/errors"
	"ntpdate/pkg/logger"
	"ntpdate/pkg/ntp"
	"ntpdate/pkg/retry"
)

var remoteTime = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

// scriptedQuerier returns errs in order, then a good response
type scriptedQuerier struct {
	failures []error
	calls    int
	hosts    []string
}

func (q *scriptedQuerier) Query(ctx context.Context, host string) (*ntp.Response, error) {
	q.calls++
	q.hosts = append(q.hosts, host)
	if q.calls <= len(q.failures) {
		return nil, q.failures[q.calls-1]
	}
	return &ntp.Response{
		Host:    host,
		Time:    remoteTime,
		Offset:  -250 * time.Millisecond,
		Stratum: 3,
	}, nil
}

type fakeClock struct {
	setSystemErr error
	hasHW        bool
	setHWErr     error
	systemSetTo  time.Time
	hwSet        bool
}

func (c *fakeClock) SetSystem(ctx context.Context, t time.Time) error {
	if c.setSystemErr != nil {
		return c.setSystemErr
	}
	c.systemSetTo = t
	return nil
}

func (c *fakeClock) HasHWClock(ctx context.Context) bool { return c.hasHW }

func (c *fakeClock) SetHWClock(ctx context.Context) error {
	if c.setHWErr != nil {
		return c.setHWErr
	}
	c.hwSet = true
	return nil
}

func newExecutor(t *testing.T, maxAttempts int, nonRetryable ...errs.ErrorType) *retry.Executor {
	t.Helper()
	return retry.NewExecutor(&retry.Config{
		MaxAttempts:   maxAttempts,
		InitialDelay:  0,
		BackoffFactor: 2,
		NonRetryable:  nonRetryable,
		Logger:        logger.NewTestLogger(),
	})
}

func TestRunReportOnly(t *testing.T) {
	q := &scriptedQuerier{}
	clk := &fakeClock{}
	s := New(q, clk, newExecutor(t, 3), nil)

	res, err := s.Run(context.Background(), Options{Host: "time.example.org"})
	require.NoError(t, err)

	assert.False(t, res.Synced)
	assert.True(t, clk.systemSetTo.IsZero())
	assert.Equal(t, uint8(3), res.Stratum)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "time.example.org: stratum 3 reports offset -0.2500 seconds", res.Summary())
}

func TestRunDefaultsHost(t *testing.T) {
	q := &scriptedQuerier{}
	_, err := New(q, nil, nil, nil).Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"pool.ntp.org"}, q.hosts)
}

func TestRunRetriesTransientFailures(t *testing.T) {
	q := &scriptedQuerier{failures: []error{
		errs.New(errs.ErrorTypeTimeout, "ntp.query", "i/o timeout"),
		errs.New(errs.ErrorTypeRateLimit, "ntp.query", "kiss of death: RATE"),
	}}
	clk := &fakeClock{hasHW: true}
	s := New(q, clk, newExecutor(t, 5, errs.ErrorTypeNotFound), logger.NewTestLogger())

	res, err := s.Run(context.Background(), Options{Host: "pool.ntp.org", SetSystem: true, SetHWClock: true})
	require.NoError(t, err)

	assert.Equal(t, 3, q.calls)
	assert.Equal(t, 3, res.Attempts)
	assert.True(t, res.Synced)
	assert.True(t, res.HWClock)
	assert.Equal(t, remoteTime, clk.systemSetTo)
	assert.True(t, clk.hwSet)
	assert.Equal(t, "pool.ntp.org: synced OK, stratum 3 reports offset -0.2500 seconds", res.Summary())
}

func TestRunGivesUpOnUnknownHost(t *testing.T) {
	notFound := errs.New(errs.ErrorTypeNotFound, "ntp.query", "no such host")
	q := &scriptedQuerier{failures: []error{notFound, notFound, notFound}}
	s := New(q, &fakeClock{}, newExecutor(t, 5, errs.ErrorTypeNotFound), nil)

	_, err := s.Run(context.Background(), Options{Host: "nope.invalid"})
	require.Error(t, err)

	assert.Equal(t, 1, q.calls)
	assert.Equal(t, retry.ReasonNonRetryable, retry.ReasonOf(err))
	assert.ErrorIs(t, err, notFound)
}

func TestRunExhaustsRetries(t *testing.T) {
	down := errs.New(errs.ErrorTypeNetwork, "ntp.query", "connection refused")
	q := &scriptedQuerier{failures: []error{down, down, down, down}}
	s := New(q, &fakeClock{}, newExecutor(t, 3), nil)

	_, err := s.Run(context.Background(), Options{Host: "pool.ntp.org"})
	require.Error(t, err)

	n, ok := retry.RetryCountOf(err)
	require.True(t, ok)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, q.calls)
}

func TestRunHWClockRequiresSystem(t *testing.T) {
	q := &scriptedQuerier{}
	_, err := New(q, &fakeClock{}, nil, nil).Run(context.Background(), Options{SetHWClock: true})

	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeConfig, errs.KindOf(err))
	assert.Equal(t, 0, q.calls)
}

func TestRunWithoutHWClockBinary(t *testing.T) {
	clk := &fakeClock{hasHW: false}
	tl := logger.NewTestLogger()
	res, err := New(&scriptedQuerier{}, clk, nil, tl).Run(context.Background(),
		Options{SetSystem: true, SetHWClock: true})

	require.NoError(t, err)
	assert.True(t, res.Synced)
	assert.False(t, res.HWClock)
	assert.False(t, clk.hwSet)
	assert.Len(t, tl.GetMessagesByLevel("WARN"), 1)
}

func TestRunSetSystemFailure(t *testing.T) {
	denied := errs.New(errs.ErrorTypePermission, "date", "are you root?")
	clk := &fakeClock{setSystemErr: denied}

	_, err := New(&scriptedQuerier{}, clk, nil, nil).Run(context.Background(), Options{SetSystem: true})
	assert.ErrorIs(t, err, denied)
}

func TestRunSetHWClockFailure(t *testing.T) {
	broken := errors.New("hwclock: cannot access the hardware clock")
	clk := &fakeClock{hasHW: true, setHWErr: broken}

	_, err := New(&scriptedQuerier{}, clk, nil, nil).Run(context.Background(),
		Options{SetSystem: true, SetHWClock: true})
	assert.ErrorIs(t, err, broken)
}

func TestRetryConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Retry.Retries = 4
	cfg.Retry.InitialDelay = 500 * time.Millisecond
	cfg.Retry.BackoffFactor = 1.5
	cfg.Retry.NonRetryable = []string{"not_found", "permission"}

	rc, err := RetryConfig(cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, 5, rc.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, rc.InitialDelay)
	assert.Equal(t, 1.5, rc.BackoffFactor)
	assert.Equal(t, []errs.ErrorType{errs.ErrorTypeNotFound, errs.ErrorTypePermission}, rc.NonRetryable)

	cfg.Retry.NonRetryable = []string{"sometimes"}
	_, err = RetryConfig(cfg, nil)
	assert.Error(t, err)
}

func TestRetryConfigZeroRetriesIsSingleAttempt(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Retry.Retries = 0
	cfg.Retry.BackoffFactor = 0

	rc, err := RetryConfig(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, rc.MaxAttempts)
	assert.NoError(t, rc.Validate())
}
