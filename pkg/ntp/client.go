package ntp

import (
	"context"
	"time"

	"github.com/beevik/ntp"

	errs "ntpdate/pkg/errors"
	"ntpdate/pkg/logger"
)

// Response is the subset of a server reply ntpdate reports on
type Response struct {
	Host        string
	Time        time.Time
	Offset      time.Duration
	RTT         time.Duration
	Stratum     uint8
	ReferenceID uint32
}

// Querier asks a remote server for the time
type Querier interface {
	Query(ctx context.Context, host string) (*Response, error)
}

// queryFunc matches ntp.QueryWithOptions
type queryFunc func(host string, opt ntp.QueryOptions) (*ntp.Response, error)

// Client queries NTP servers using github.com/beevik/ntp
type Client struct {
	timeout time.Duration
	version int
	query   queryFunc
	logger  logger.Logger
}

// NewClient creates a client. A zero timeout or version selects the library default.
func NewClient(timeout time.Duration, version int, log logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		timeout: timeout,
		version: version,
		query:   ntp.QueryWithOptions,
		logger:  log,
	}
}

type queryResult struct {
	resp *ntp.Response
	err  error
}

// Query sends one request to host and validates the reply. Failures are
// *errors.Error values tagged network, timeout, not_found, rate_limit,
// permission or cancelled.
func (c *Client) Query(ctx context.Context, host string) (*Response, error) {
	op := "ntp.query " + host

	opts := ntp.QueryOptions{Timeout: c.timeout, Version: c.version}
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, errs.Wrap(errs.ErrorTypeTimeout, op, context.DeadlineExceeded)
		}
		if opts.Timeout == 0 || remaining < opts.Timeout {
			opts.Timeout = remaining
		}
	}

	c.logger.DebugWithFields("sending ntp request", map[string]interface{}{
		"host":    host,
		"timeout": opts.Timeout,
	})

	// the library call is not context aware; the buffered channel lets it
	// finish on its own timeout if we stop waiting
	ch := make(chan queryResult, 1)
	go func() {
		resp, err := c.query(host, opts)
		ch <- queryResult{resp: resp, err: err}
	}()

	var res queryResult
	select {
	case <-ctx.Done():
		return nil, errs.Wrap(errs.KindOf(ctx.Err()), op, ctx.Err())
	case res = <-ch:
	}

	if res.err != nil {
		kind := errs.KindOf(res.err)
		if kind == errs.ErrorTypeUnknown {
			kind = errs.ErrorTypeNetwork
		}
		return nil, errs.Wrap(kind, op, res.err)
	}

	if verr := validate(res.resp); verr != nil {
		verr.Op = op
		return nil, verr
	}

	resp := &Response{
		Host:        host,
		Time:        res.resp.Time,
		Offset:      res.resp.ClockOffset,
		RTT:         res.resp.RTT,
		Stratum:     res.resp.Stratum,
		ReferenceID: res.resp.ReferenceID,
	}

	c.logger.DebugWithFields("ntp response received", map[string]interface{}{
		"host":    host,
		"stratum": resp.Stratum,
		"offset":  resp.Offset,
		"rtt":     resp.RTT,
	})

	return resp, nil
}

// validate rejects unusable replies. Kiss-o'-death codes are classified so a
// rate limit can be retried while an access denial cannot.
func validate(r *ntp.Response) *errs.Error {
	if r == nil {
		return errs.New(errs.ErrorTypeNetwork, "", "empty response")
	}

	if r.Stratum == 0 && r.KissCode != "" {
		switch r.KissCode {
		case "RATE":
			return errs.New(errs.ErrorTypeRateLimit, "", "kiss of death: RATE")
		case "DENY", "RSTR":
			return errs.New(errs.ErrorTypePermission, "", "kiss of death: "+r.KissCode)
		default:
			return errs.New(errs.ErrorTypeNetwork, "", "kiss of death: "+r.KissCode)
		}
	}

	if err := r.Validate(); err != nil {
		return errs.Wrap(errs.ErrorTypeNetwork, "", err)
	}
	return nil
}
