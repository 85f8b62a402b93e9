// Package submit drives one generation job from file validation through the
// server response.
package submit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"seqgen/internal/api"
	"seqgen/internal/validate"
)

// ErrInFlight is returned when a submission is started while another one
// has not settled.
var ErrInFlight = errors.New("a submission is already in progress")

type Generator interface {
	Generate(ctx context.Context, req api.GenerateRequest) (*api.JobResult, error)
}

// SelectionSource supplies the selected_recommendations payload. The bool
// reports whether the field should be sent.
type SelectionSource interface {
	Payload() (string, bool)
}

type Options struct {
	MaxBytes int64
	Allowed  validate.AllowedMIME
	Logger   *slog.Logger
	// OnTransition observes every state change. It runs under the
	// controller's lock and must not call back into the controller.
	OnTransition func(from, to State)
}

// Controller is the single submission state machine. Busy is set on entry
// to submitting and cleared on every way out of it.
type Controller struct {
	mu       sync.Mutex
	state    State
	busy     bool
	maxBytes int64
	allowed  validate.AllowedMIME
	logger   *slog.Logger
	observe  func(from, to State)

	result  *api.JobResult
	lastErr error
	banner  Banner
}

func NewController(opts Options) *Controller {
	c := &Controller{
		state:    StateIdle,
		maxBytes: opts.MaxBytes,
		allowed:  opts.Allowed,
		logger:   opts.Logger,
		observe:  opts.OnTransition,
	}
	if c.maxBytes <= 0 {
		c.maxBytes = validate.DefaultMaxBytes
	}
	if c.allowed.Layout == nil {
		c.allowed = validate.DefaultAllowedMIME()
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// CanSubmit is false while a submission is outstanding; the submit control
// should be disabled from it.
func (c *Controller) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateIdle && !c.busy
}

func (c *Controller) Result() *api.JobResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

func (c *Controller) LastErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) Banner() Banner {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.banner
}

func (c *Controller) move(to State) {
	if err := transition(c.state, to); err != nil {
		panic(err)
	}
	from := c.state
	c.state = to
	c.logger.Debug("submission state", "from", string(from), "to", string(to))
	if c.observe != nil {
		c.observe(from, to)
	}
}

// Begin validates files and, when they pass, enters submitting with busy
// set. A validation failure returns *validate.Error and leaves the
// controller idle with the reason on the banner.
func (c *Controller) Begin(files validate.Files) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle || c.busy {
		return ErrInFlight
	}

	c.move(StateValidating)
	if err := validate.Validate(files, c.maxBytes, c.allowed); err != nil {
		c.lastErr = err
		c.banner = ErrorBanner(err)
		c.move(StateIdle)
		return err
	}

	c.move(StateSubmitting)
	c.busy = true
	c.lastErr = nil
	c.banner = InfoBanner("Generating sequence...")
	return nil
}

// Finish settles the outstanding submission and returns to idle. A nil
// result with a nil error counts as a failure.
func (c *Controller) Finish(res *api.JobResult, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateSubmitting {
		return fmt.Errorf("finish submission: not submitting (state %s)", c.state)
	}
	defer func() {
		c.busy = false
		c.move(StateIdle)
	}()

	if err == nil && res == nil {
		err = errors.New("server returned no result")
	}
	if err != nil {
		c.move(StateFailed)
		c.lastErr = err
		c.banner = ErrorBanner(err)
		c.logger.Warn("submission failed", "error", err)
		return err
	}

	c.move(StateSucceeded)
	c.result = res
	c.lastErr = nil
	c.banner = InfoBanner("Sequence ready.")
	c.logger.Info("submission succeeded", "job", res.JobID)
	return nil
}

// Submit runs one submission end to end. When sel is non-nil its payload
// replaces req.Selection, read once right before the request is sent.
func (c *Controller) Submit(ctx context.Context, gen Generator, req api.GenerateRequest, sel SelectionSource) (res *api.JobResult, err error) {
	if err := c.Begin(req.Files); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = c.Finish(nil, fmt.Errorf("submission panicked: %v", r))
			panic(r)
		}
		err = c.Finish(res, err)
		if err != nil {
			res = nil
		}
	}()

	if sel != nil {
		req.Selection = ""
		if payload, ok := sel.Payload(); ok {
			req.Selection = payload
		}
	}
	return gen.Generate(ctx, req)
}
