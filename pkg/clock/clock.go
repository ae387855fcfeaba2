package clock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	errs "ntpdate/pkg/errors"
	"ntpdate/pkg/logger"
)

// dateLayouts maps the synopsis printed by `date --help` on each platform to
// the Go layout of the argument that platform's date(1) accepts for setting
// the clock.
var dateLayouts = []struct {
	synopsis string
	layout   string
}{
	{"MMDDhhmm[[CC]YY][.ss]", "010215042006.05"},         // gnu
	{"[[[mm]dd]HH]MM[[cc]yy][.ss]]", "010215042006.05"},  // osx
	{"[[[[[[cc]yy]mm]dd]HH]MM[.SS]]", "200601021504.05"}, // openbsd
}

// Runner executes an external command and returns what it printed
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec from the root directory
type ExecRunner struct{}

// Run executes name with args
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = "/"
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Setter is what the syncer needs from the local clocks
type Setter interface {
	SetSystem(ctx context.Context, t time.Time) error
	HasHWClock(ctx context.Context) bool
	SetHWClock(ctx context.Context) error
}

// System sets the local clocks through date(1) and hwclock(8)
type System struct {
	runner Runner
	logger logger.Logger
}

// NewSystem creates a System. A nil runner uses ExecRunner.
func NewSystem(runner Runner, log logger.Logger) *System {
	if runner == nil {
		runner = ExecRunner{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &System{runner: runner, logger: log}
}

// DateLayout works out which argument format the local date(1) expects
func (s *System) DateLayout(ctx context.Context) (string, error) {
	stdout, stderr, _ := s.runner.Run(ctx, "date", "--help")
	help := string(stdout) + string(stderr)

	for _, dl := range dateLayouts {
		if strings.Contains(help, dl.synopsis) {
			return dl.layout, nil
		}
	}

	return "", errs.New(errs.ErrorTypeCommand, "date --help",
		fmt.Sprintf("could not determine date(1) argument format, please file a bug report with this output: %q", help))
}

// SetSystem sets the system clock to t, interpreted in UTC
func (s *System) SetSystem(ctx context.Context, t time.Time) error {
	layout, err := s.DateLayout(ctx)
	if err != nil {
		return err
	}

	args := []string{"-u", t.UTC().Format(layout)}
	s.logger.DebugWithFields("setting system clock", map[string]interface{}{
		"command": "date " + strings.Join(args, " "),
	})

	stdout, stderr, err := s.runner.Run(ctx, "date", args...)
	if err != nil {
		return &errs.Error{
			Type: commandErrorType(err),
			Op:   "date " + strings.Join(args, " "),
			Message: fmt.Sprintf("%v\n\nstdout: %s\nstderr: %s\n\nare you root?",
				err, bytes.TrimSpace(stdout), bytes.TrimSpace(stderr)),
			Err: err,
		}
	}
	return nil
}

// HasHWClock reports whether a util-linux hwclock is installed
func (s *System) HasHWClock(ctx context.Context) bool {
	stdout, stderr, err := s.runner.Run(ctx, "hwclock", "--version")
	if err != nil && errors.Is(err, exec.ErrNotFound) {
		return false
	}
	out := string(stdout) + string(stderr)
	return strings.HasPrefix(out, "hwclock from util-linux")
}

// SetHWClock copies the system clock into the hardware clock
func (s *System) SetHWClock(ctx context.Context) error {
	s.logger.Debug("setting hardware clock from system clock")

	stdout, stderr, err := s.runner.Run(ctx, "hwclock", "--systohc")
	if err != nil {
		return &errs.Error{
			Type: commandErrorType(err),
			Op:   "hwclock --systohc",
			Message: fmt.Sprintf("%v\n\nstdout: %s\nstderr: %s",
				err, bytes.TrimSpace(stdout), bytes.TrimSpace(stderr)),
			Err: err,
		}
	}
	return nil
}

// commandErrorType tags a command that ran and exited non-zero as a
// permission problem; failing to start it at all is a command error
func commandErrorType(err error) errs.ErrorType {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return errs.ErrorTypePermission
	}
	if kind := errs.KindOf(err); kind == errs.ErrorTypeCancelled || kind == errs.ErrorTypeTimeout {
		return kind
	}
	return errs.ErrorTypeCommand
}
