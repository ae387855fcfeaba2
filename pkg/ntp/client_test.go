package ntp

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/beevik/ntp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "ntpdate/pkg/errors"
	"ntpdate/pkg/logger"
)

func goodResponse(now time.Time) *ntp.Response {
	return &ntp.Response{
		Time:          now,
		ClockOffset:   1500 * time.Microsecond,
		RTT:           20 * time.Millisecond,
		Stratum:       2,
		ReferenceID:   0x47505300,
		ReferenceTime: now.Add(-time.Minute),
		Leap:          ntp.LeapNoWarning,
	}
}

func fakeClient(q queryFunc) *Client {
	c := NewClient(2*time.Second, 4, logger.NewTestLogger())
	c.query = q
	return c
}

func TestQuerySuccess(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	var gotHost string
	var gotOpts ntp.QueryOptions

	c := fakeClient(func(host string, opt ntp.QueryOptions) (*ntp.Response, error) {
		gotHost, gotOpts = host, opt
		return goodResponse(now), nil
	})

	resp, err := c.Query(context.Background(), "pool.ntp.org")
	require.NoError(t, err)

	assert.Equal(t, "pool.ntp.org", gotHost)
	assert.Equal(t, 2*time.Second, gotOpts.Timeout)
	assert.Equal(t, 4, gotOpts.Version)
	assert.Equal(t, "pool.ntp.org", resp.Host)
	assert.Equal(t, now, resp.Time)
	assert.Equal(t, uint8(2), resp.Stratum)
	assert.Equal(t, 1500*time.Microsecond, resp.Offset)
}

func TestQueryTimeoutFollowsContextDeadline(t *testing.T) {
	var gotOpts ntp.QueryOptions
	c := fakeClient(func(host string, opt ntp.QueryOptions) (*ntp.Response, error) {
		gotOpts = opt
		return goodResponse(time.Now()), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := c.Query(ctx, "pool.ntp.org")
	require.NoError(t, err)
	assert.LessOrEqual(t, gotOpts.Timeout, 500*time.Millisecond)
	assert.Greater(t, gotOpts.Timeout, time.Duration(0))
}

func TestQueryClassifiesTransportErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrorType
	}{
		{"unknown host", &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}, errs.ErrorTypeNotFound},
		{"read timeout", &net.OpError{Op: "read", Net: "udp", Err: &net.DNSError{IsTimeout: true}}, errs.ErrorTypeTimeout},
		{"anything else", errors.New("connection refused"), errs.ErrorTypeNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := fakeClient(func(string, ntp.QueryOptions) (*ntp.Response, error) {
				return nil, tt.err
			})

			_, err := c.Query(context.Background(), "example.invalid")
			require.Error(t, err)
			assert.Equal(t, tt.want, errs.KindOf(err))
			assert.ErrorIs(t, err, tt.err)
			assert.Contains(t, err.Error(), "ntp.query example.invalid")
		})
	}
}

func TestQueryKissOfDeath(t *testing.T) {
	tests := []struct {
		code string
		want errs.ErrorType
	}{
		{"RATE", errs.ErrorTypeRateLimit},
		{"DENY", errs.ErrorTypePermission},
		{"RSTR", errs.ErrorTypePermission},
		{"INIT", errs.ErrorTypeNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			c := fakeClient(func(string, ntp.QueryOptions) (*ntp.Response, error) {
				r := goodResponse(time.Now())
				r.Stratum = 0
				r.KissCode = tt.code
				return r, nil
			})

			_, err := c.Query(context.Background(), "pool.ntp.org")
			require.Error(t, err)
			assert.Equal(t, tt.want, errs.KindOf(err))
			assert.Contains(t, err.Error(), tt.code)
		})
	}
}

func TestQueryRejectsUnsynchronisedServer(t *testing.T) {
	c := fakeClient(func(string, ntp.QueryOptions) (*ntp.Response, error) {
		r := goodResponse(time.Now())
		r.Leap = ntp.LeapNotInSync
		return r, nil
	})

	_, err := c.Query(context.Background(), "pool.ntp.org")
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeNetwork, errs.KindOf(err))
}

func TestQueryCancelled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	c := fakeClient(func(string, ntp.QueryOptions) (*ntp.Response, error) {
		<-release
		return nil, errors.New("too late")
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := c.Query(ctx, "pool.ntp.org")
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeCancelled, errs.KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueryExpiredDeadline(t *testing.T) {
	called := false
	c := fakeClient(func(string, ntp.QueryOptions) (*ntp.Response, error) {
		called = true
		return nil, nil
	})

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := c.Query(ctx, "pool.ntp.org")
	assert.False(t, called)
	assert.Equal(t, errs.ErrorTypeTimeout, errs.KindOf(err))
}
