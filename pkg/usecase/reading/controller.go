package reading

import (
	"context"
	"log/slog"
	"time"

	"github.com/m-mizutani/arcana/pkg/metrics"
	"github.com/m-mizutani/arcana/pkg/model"
	"github.com/m-mizutani/arcana/pkg/repository"
	"github.com/m-mizutani/arcana/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Interpreter streams an interpretation for a reading. The channel yields
// cumulative text and ends with exactly one terminal chunk before closing.
type Interpreter interface {
	Interpret(ctx context.Context, req *model.InterpretationRequest) <-chan model.Chunk
}

// Controller runs reading generations against one session State
type Controller struct {
	state       *State
	interpreter Interpreter
	repo        repository.Repository
	metrics     metrics.Recorder
	now         func() time.Time
}

// Option is a functional option for Controller
type Option func(*Controller)

// WithMetrics sets the metrics recorder
func WithMetrics(m metrics.Recorder) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithClock replaces time.Now for reading timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithState shares an existing State
func WithState(state *State) Option {
	return func(c *Controller) {
		c.state = state
	}
}

// New creates a new Controller
func New(interpreter Interpreter, repo repository.Repository, opts ...Option) *Controller {
	c := &Controller{
		interpreter: interpreter,
		repo:        repo,
		metrics:     metrics.Noop{},
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.state == nil {
		c.state = NewState()
	}

	return c
}

func (c *Controller) State() *State {
	return c.state
}

// Generate interprets cards on spread and appends the completed reading to
// history. Starting a generation cancels the one in flight, which then
// returns model.ErrSuperseded.
func (c *Controller) Generate(ctx context.Context, spread model.SpreadType, cards []model.Card, query string) (*model.Reading, error) {
	req, err := model.NewInterpretationRequest(spread, cards, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build interpretation request")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	gen := c.state.begin(cancel)
	draft := model.NewReadingDraft(spread, req.Cards, c.now())
	logger := logging.From(ctx).With("reading_id", draft.ID, "generation", gen)
	logger.Info("start generation", "spread", spread, "cards", len(cards))

	started := time.Now()
	observe := func(outcome string) {
		c.metrics.ObserveGeneration(string(spread), outcome, time.Since(started))
	}

	var (
		final    string
		finished bool
		failure  error
	)
	for chunk := range c.interpreter.Interpret(ctx, req) {
		switch {
		case chunk.Err != nil:
			failure = chunk.Err
		case chunk.Final:
			final = chunk.Text
			finished = true
		default:
			c.metrics.IncChunks(string(spread))
			c.state.setStreaming(gen, chunk.Text)
		}
	}

	if !c.state.isCurrent(gen) {
		return nil, c.superseded(logger, observe)
	}

	if failure == nil && !finished {
		if ctx.Err() != nil {
			failure = goerr.Wrap(ctx.Err(), "interpretation canceled")
		} else {
			failure = goerr.Wrap(model.ErrTransport, "interpretation ended without a result")
		}
	}
	if failure != nil {
		if !c.state.fail(gen, model.Describe(failure)) {
			return nil, c.superseded(logger, observe)
		}
		logger.Error("generation failed", "error", failure)
		observe(metrics.OutcomeFailed)
		return nil, goerr.Wrap(failure, "failed to generate reading", goerr.V("reading_id", draft.ID))
	}

	reading := draft.Complete(final)
	if !c.state.complete(gen, reading) {
		return nil, c.superseded(logger, observe)
	}
	observe(metrics.OutcomeCompleted)

	// A newer generation may cancel ctx; the completed reading is still saved
	if err := c.repo.PutReading(context.WithoutCancel(ctx), reading); err != nil {
		c.metrics.IncHistoryWrites("error")
		logger.Error("failed to save reading", "error", err)
		c.state.fail(gen, "Failed to save reading to history")
		return reading, goerr.Wrap(err, "failed to save reading", goerr.V("reading_id", reading.ID))
	}
	c.metrics.IncHistoryWrites("ok")

	logger.Info("generation completed", "length", len(reading.Interpretation))
	return reading, nil
}

func (c *Controller) superseded(logger *slog.Logger, observe func(string)) error {
	logger.Info("discard superseded generation")
	observe(metrics.OutcomeSuperseded)
	return goerr.Wrap(model.ErrSuperseded, "generation discarded")
}

// ToggleFavorite flips the favorite flag in history and on the current
// reading when it is the same record
func (c *Controller) ToggleFavorite(ctx context.Context, id model.ReadingID) (*model.Reading, error) {
	reading, err := c.repo.ToggleFavorite(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to toggle favorite", goerr.V("id", id))
	}
	c.state.mirrorFavorite(id, reading.Favorite)

	return reading, nil
}

// Clear resets the session for a fresh spread
func (c *Controller) Clear() {
	c.state.Clear()
}
