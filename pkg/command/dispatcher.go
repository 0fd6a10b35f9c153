package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/questbot/questbot/pkg/layout"
	"github.com/questbot/questbot/pkg/ledger"
)

var (
	// ErrUnknownCommand means the command name is not bound to any column.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrNotPrivileged means a non-staff issuer tried to change points.
	ErrNotPrivileged = errors.New("issuer is not privileged")
)

// OutcomeChannel is the pub/sub channel applied outcomes are published on.
const OutcomeChannel = "questbot:ledger.applied"

// Ledger is the part of the ledger updater the dispatcher drives.
type Ledger interface {
	Apply(ctx context.Context, participants []ledger.Identity, target string, delta int, opts ...ledger.ApplyOption) (*ledger.Result, error)
	Standings(ctx context.Context, participants []ledger.Identity) ([]ledger.Standing, error)
}

// Locker serializes ledger mutations across processes.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// Publisher fans applied outcomes out to live subscribers. Publishing is best effort.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{})
}

// Event is one inbound chat invocation, already resolved by the transport.
type Event struct {
	Issuer           ledger.Identity   `json:"issuer"`
	IssuerPrivileged bool              `json:"issuerPrivileged"`
	Command          string            `json:"command"`
	Args             []string          `json:"args"`
	Participants     []ledger.Identity `json:"participants"`
}

// Outcome is the single result of an invocation, ready to be rendered by the transport.
type Outcome struct {
	Command   string            `json:"command"`
	Column    string            `json:"column,omitempty"`
	Delta     int               `json:"delta"`
	Affected  []ledger.Identity `json:"affected"`
	Created   []ledger.Identity `json:"created,omitempty"`
	Standings []ledger.Standing `json:"standings,omitempty"`
	Summary   string            `json:"summary"`
	Err       error             `json:"-"`
}

// OK reports whether the invocation succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Config configures a Dispatcher. Locker and Publisher are optional.
type Config struct {
	Ledger    Ledger
	Layout    *layout.Layout
	Locker    Locker
	Publisher Publisher
	Logger    *zap.Logger
	// Timeout bounds one ledger operation including the wait for the worker. Zero means 30s.
	Timeout time.Duration
}

// Dispatcher maps chat invocations onto ledger operations. All ledger work runs on a
// single worker, so invocations against the ledger never interleave within a process.
type Dispatcher struct {
	ledger    Ledger
	layout    *layout.Layout
	locker    Locker
	publisher Publisher
	logger    *zap.Logger
	timeout   time.Duration
	pool      pond.Pool
}

// NewDispatcher creates a Dispatcher. Call Stop to drain its worker.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if cfg.Layout == nil {
		return nil, errors.New("layout is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		ledger:    cfg.Ledger,
		layout:    cfg.Layout,
		locker:    cfg.Locker,
		publisher: cfg.Publisher,
		logger:    logger,
		timeout:   timeout,
		pool:      pond.NewPool(1, pond.WithQueueSize(256)),
	}, nil
}

// Stop waits for queued ledger operations and stops the worker.
func (d *Dispatcher) Stop() {
	d.pool.StopAndWait()
}

// Handle runs one chat command and returns its outcome.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) Outcome {
	name := strings.ToLower(strings.TrimSpace(ev.Command))
	out := Outcome{Command: name}

	if name == layout.PointsCommand {
		return d.finish(ctx, d.standings(ctx, ev, out))
	}

	column, ok := d.layout.CommandColumn(name)
	if !ok {
		out.Err = fmt.Errorf("%w: %q", ErrUnknownCommand, name)
		return d.finish(ctx, out)
	}
	out.Column = column

	if !ev.IssuerPrivileged {
		out.Err = ErrNotPrivileged
		return d.finish(ctx, out)
	}

	in, err := Parse(ev.Args, ev.Participants)
	if err != nil {
		out.Err = err
		return d.finish(ctx, out)
	}
	out.Delta = in.Delta

	return d.finish(ctx, d.apply(ctx, out, in.Participants, ledger.ClampAtZero))
}

// Award grants one point in the reaction column to author. It is the reaction
// path: increment only, so no clamping is applied.
func (d *Dispatcher) Award(ctx context.Context, issuerPrivileged bool, author ledger.Identity) Outcome {
	out := Outcome{Command: "reaction", Column: d.layout.ReactionColumn, Delta: 1}
	if !issuerPrivileged {
		out.Err = ErrNotPrivileged
		return d.finish(ctx, out)
	}
	if author.Key() == "" {
		out.Err = ErrNoTargets
		return d.finish(ctx, out)
	}
	return d.finish(ctx, d.apply(ctx, out, []ledger.Identity{author}, ledger.NoClamp))
}

func (d *Dispatcher) apply(ctx context.Context, out Outcome, participants []ledger.Identity, floor ledger.Floor) Outcome {
	start := time.Now()
	defer func() {
		applyDuration.WithLabelValues(out.Command).Observe(time.Since(start).Seconds())
	}()

	var res *ledger.Result
	err := d.run(ctx, func(ctx context.Context) error {
		var err error
		res, err = d.ledger.Apply(ctx, participants, out.Column, out.Delta, ledger.WithFloor(floor))
		return err
	})
	if err != nil {
		out.Err = err
		return out
	}

	out.Affected = res.Affected
	out.Created = res.Created
	if res.Applied {
		cellWritesTotal.WithLabelValues(out.Column).Add(float64(res.Writes))
		rowsCreatedTotal.Add(float64(len(res.Created)))
	}
	return out
}

func (d *Dispatcher) standings(ctx context.Context, ev Event, out Outcome) Outcome {
	participants := ev.Participants
	if len(participants) == 0 && ev.Issuer.Key() != "" {
		participants = []ledger.Identity{ev.Issuer}
	}
	if len(participants) == 0 {
		out.Err = ErrNoTargets
		return out
	}

	err := d.run(ctx, func(ctx context.Context) error {
		var err error
		out.Standings, err = d.ledger.Standings(ctx, participants)
		return err
	})
	if err != nil {
		out.Err = err
	}
	return out
}

// run executes fn on the ledger worker, holding the cross-process lock when configured.
func (d *Dispatcher) run(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	task := d.pool.SubmitErr(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.locker != nil {
			unlock, err := d.locker.Lock(ctx)
			if err != nil {
				return fmt.Errorf("acquire ledger lock: %w", err)
			}
			defer unlock()
		}
		return fn(ctx)
	})
	return task.Wait()
}

func (d *Dispatcher) finish(ctx context.Context, out Outcome) Outcome {
	out.Summary = Summarize(out)
	result := "ok"
	if out.Err != nil {
		result = errorKind(out.Err)
		d.logger.Warn("Command failed",
			zap.String("command", out.Command),
			zap.String("column", out.Column),
			zap.String("result", result),
			zap.Error(out.Err))
	} else if len(out.Affected) > 0 && d.publisher != nil {
		d.publisher.Publish(ctx, OutcomeChannel, NewFeedMessage(out))
	}
	label := out.Command
	if result == "unknown_command" {
		label = "unknown"
	}
	commandsTotal.WithLabelValues(label, result).Inc()
	return out
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ledger.ErrColumnNotFound):
		return "column_not_found"
	case errors.Is(err, ErrNoTargets):
		return "no_targets"
	case errors.Is(err, ErrMagnitudeOutOfRange):
		return "bad_magnitude"
	case errors.Is(err, ledger.ErrWriteBatchFailed):
		return "write_failed"
	case errors.Is(err, ErrNotPrivileged):
		return "not_privileged"
	case errors.Is(err, ErrUnknownCommand):
		return "unknown_command"
	default:
		return "error"
	}
}
