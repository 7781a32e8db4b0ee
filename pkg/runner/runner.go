package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/authtree/internal/logging"
	"github.com/aretw0/authtree/internal/presentation/tui"
	"github.com/aretw0/authtree/pkg/domain"
)

// ErrInterrupted is returned when an interrupt stops the run while it waits for input.
var ErrInterrupted = errors.New("authentication interrupted")

// interruptGrace is how long a failed read waits for a pending interrupt.
// Some terminals close stdin on Ctrl+C slightly before the signal arrives.
const interruptGrace = 100 * time.Millisecond

// AdvanceFunc performs one round-trip of an authentication. An empty authID starts
// a new one; the returned authID must be sent with the next answers.
type AdvanceFunc func(ctx context.Context, authID string, answers map[string]any) (step *domain.Step, nextAuthID string, err error)

// Runner drives an authentication interactively until it completes.
type Runner struct {
	advance    AdvanceFunc
	in         io.Reader
	out        io.Writer
	logger     *slog.Logger
	interrupts []os.Signal
}

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithIO sets where answers are read from and prompts are written to.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(r *Runner) {
		r.in = in
		r.out = out
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithInterrupts makes the given signals abort the run with ErrInterrupted.
// Without arguments it listens for SIGINT and SIGTERM.
func WithInterrupts(sigs ...os.Signal) Option {
	return func(r *Runner) {
		if len(sigs) == 0 {
			sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
		}
		r.interrupts = sigs
	}
}

// New creates a Runner using Stdin/Stdout by default.
func New(advance AdvanceFunc, opts ...Option) *Runner {
	r := &Runner{
		advance: advance,
		in:      os.Stdin,
		out:     os.Stdout,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts a new authentication and prompts for every pending node.
// It returns the final result, or the error that stopped the flow.
func (r *Runner) Run(ctx context.Context) (*domain.FlowResult, error) {
	if len(r.interrupts) > 0 {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, r.interrupts...)
		defer stop()
	}

	prompter := tui.NewPrompter(r.in, r.out)
	printer := tui.NewPrinter(r.out)

	step, authID, err := r.advance(ctx, "", nil)
	for {
		if err != nil {
			if step != nil && step.Result != nil {
				printer.Failure("%s", step.Result.FinalOutcome)
				return step.Result, err
			}
			return nil, err
		}

		if step.Result != nil {
			if step.Result.FinalOutcome == domain.OutcomeSuccess {
				printer.Success("%s", step.Result.FinalOutcome)
			} else {
				printer.Failure("%s", step.Result.FinalOutcome)
			}
			return step.Result, nil
		}

		pending := step.Pending
		printer.Faint("%s (%s)", pending.NodeType, pending.NodeID)
		r.logger.Debug("awaiting input", "node_id", pending.NodeID, "callbacks", len(pending.Callbacks))

		answers, askErr := prompter.Ask(pending.Callbacks)
		if askErr != nil {
			return nil, r.inputError(ctx, askErr)
		}

		step, authID, err = r.advance(ctx, authID, answers)
	}
}

// inputError explains why no answers could be read. A read failure that races an
// interrupt is reported as the interrupt.
func (r *Runner) inputError(ctx context.Context, err error) error {
	if len(r.interrupts) > 0 && ctx.Err() == nil {
		select {
		case <-ctx.Done():
		case <-time.After(interruptGrace):
		}
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
	}
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("input closed before the flow completed: %w", err)
	}
	return err
}
