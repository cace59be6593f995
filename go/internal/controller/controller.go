// Package controller drives one participant through a session. A Controller
// observes the shared document, runs the handler for the observed phase, and
// applies local actions. Every event is processed on a single goroutine.
package controller

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/scoring"
)

const DefaultTickInterval = 200 * time.Millisecond

type request struct {
	action Action
	reply  chan error
}

// Controller owns the local state of one participant.
type Controller struct {
	client   *SessionClient
	handlers map[models.Phase]PhaseHandler
	views    ViewSink
	frames   FrameSink
	tick     time.Duration
	logger   zerolog.Logger

	inbox    chan request
	seedDone chan error
	stopped  chan struct{}

	// Loop-owned state.
	snap    *models.Session
	stage   models.Stage
	entered bool
	local   Inputs
	status  string
	host    hostState
}

type Option func(*Controller)

// WithViewSink receives a token whenever the observed stage changes.
func WithViewSink(s ViewSink) Option {
	return func(c *Controller) { c.views = s }
}

// WithFrameSink receives render state.
func WithFrameSink(s FrameSink) Option {
	return func(c *Controller) { c.frames = s }
}

func WithTickInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.tick = d
		}
	}
}

func New(client *SessionClient, opts ...Option) *Controller {
	c := &Controller{
		client:   client,
		handlers: handlers(),
		tick:     DefaultTickInterval,
		inbox:    make(chan request),
		seedDone: make(chan error),
		stopped:  make(chan struct{}),
		logger: log.With().
			Str("session_id", client.SessionID).
			Str("role", string(client.Role)).
			Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run processes snapshots, ticks and actions until ctx is done. It returns
// an error only when the first subscription fails.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.stopped)

	sub, err := c.client.Store.Subscribe(ctx, c.client.SessionID)
	if err != nil {
		return err
	}
	defer func() {
		if sub != nil {
			sub.Unsubscribe()
		}
	}()

	ticker := c.client.Clock.NewTicker(c.tick)
	defer ticker.Stop()

	c.logger.Info().Msg("controller started")
	for {
		var (
			snaps <-chan *models.Session
			ended <-chan struct{}
		)
		if sub != nil {
			snaps, ended = sub.C(), sub.Done()
		}

		select {
		case <-ctx.Done():
			c.logger.Info().Msg("controller stopped")
			return nil

		case s := <-snaps:
			c.onSnapshot(ctx, s)

		case <-ended:
			if err := sub.Err(); err != nil {
				c.logger.Warn().Err(err).Msg("subscription ended, resubscribing")
			}
			sub.Unsubscribe()
			sub = nil

		case <-ticker.Chan():
			if sub == nil {
				if sub, err = c.client.Store.Subscribe(ctx, c.client.SessionID); err != nil {
					c.logger.Warn().Err(err).Msg("resubscribe failed")
					sub = nil
				}
			}
			c.onTick(ctx)

		case req := <-c.inbox:
			req.reply <- c.onAction(ctx, req.action)

		case err := <-c.seedDone:
			c.host.seeding = false
			if err != nil {
				c.host.seedFailedAt = c.client.now()
				c.logger.Error().Err(err).Msg("seeding failed")
			}
		}
	}
}

// Do applies a local action and returns once it has been handled.
func (c *Controller) Do(ctx context.Context, a Action) error {
	req := request{action: a, reply: make(chan error, 1)}
	select {
	case c.inbox <- req:
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) turn() *Turn {
	return &Turn{
		Client:  c.client,
		Session: c.snap,
		Now:     c.client.now(),
		Local:   &c.local,
		status:  c.status,
		host:    &c.host,
		seed:    c.startSeeding,
	}
}

func (c *Controller) onSnapshot(ctx context.Context, s *models.Session) {
	if s == nil {
		return
	}
	if c.snap != nil && s.Revision != 0 && s.Revision < c.snap.Revision {
		return
	}
	prev := c.snap
	c.snap = s
	c.local.sync(s)

	if st := s.Stage(); !c.entered || st != c.stage {
		if c.entered && prev != nil {
			if h := c.handlers[c.stage.Phase]; h != nil {
				t := c.turn()
				t.Session = prev
				c.report(h.OnExit(ctx, t), "exit")
			}
		}
		c.logger.Debug().Str("stage", st.String()).Msg("stage observed")
		c.stage, c.entered, c.status = st, true, ""
		c.emitView(ctx)
		c.dispatch(ctx, "enter", PhaseHandler.OnEnter)
	}
	c.dispatch(ctx, "snapshot", PhaseHandler.OnSnapshot)
	c.emitFrame(ctx)
}

func (c *Controller) onTick(ctx context.Context) {
	if c.snap == nil {
		return
	}
	c.dispatch(ctx, "tick", PhaseHandler.OnTick)
	if c.snap.Phase.Timed() {
		c.emitFrame(ctx)
	}
}

func (c *Controller) onAction(ctx context.Context, a Action) error {
	if c.snap == nil {
		return ErrNotReady
	}
	h := c.handlers[c.snap.Phase]
	if h == nil {
		return ErrWrongPhase
	}
	t := c.turn()
	err := h.HandleAction(ctx, t, a)
	c.status = t.status
	c.emitFrame(ctx)
	return err
}

func (c *Controller) dispatch(ctx context.Context, hook string, fn func(PhaseHandler, context.Context, *Turn) error) {
	h := c.handlers[c.snap.Phase]
	if h == nil {
		c.logger.Error().Str("phase", string(c.snap.Phase)).Msg("no handler for phase")
		return
	}
	t := c.turn()
	c.report(fn(h, ctx, t), hook)
	c.status = t.status
}

// report logs handler failures. Handlers are retried on the next tick.
func (c *Controller) report(err error, hook string) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	c.logger.Warn().Err(err).Str("hook", hook).Str("stage", c.stage.String()).Msg("phase handler failed")
}

func (c *Controller) startSeeding(ctx context.Context) {
	if c.host.seeding || c.client.Seeder == nil {
		return
	}
	c.host.seeding = true
	go func() {
		err := c.client.Seeder.Seed(ctx, c.client.SessionID)
		select {
		case c.seedDone <- err:
		case <-c.stopped:
		}
	}()
}

func (c *Controller) emitView(ctx context.Context) {
	if c.views != nil {
		c.views.View(ctx, TokenFor(c.snap))
	}
}

func (c *Controller) emitFrame(ctx context.Context) {
	if c.frames == nil {
		return
	}
	now := c.client.now()
	f := Frame{
		Session: c.snap.Redacted(c.client.Role),
		Role:    c.client.Role,
		View:    TokenFor(c.snap),
		Scores:  scoring.ComputeScores(c.snap),
		Status:  c.status,
		Local:   c.local.copy(),
	}
	if c.snap.Phase == models.PhaseQuestions {
		f.Choices = c.snap.ChoicesFor(c.client.Role, c.snap.Round)
	}
	if c.snap.Phase.Timed() {
		f.RemainingMs = c.client.Windows.Remaining(c.snap, now).Milliseconds()
	}
	c.frames.Frame(ctx, f)
}
