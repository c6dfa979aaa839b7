// Package command contains the progression write operations (CQRS commands).
// Every command runs the same cycle: lock the profile, load or create it,
// apply one engine operation, store it with a version check, then publish
// the resulting events. A version conflict repeats the whole cycle.
package command

import (
	"context"
	"errors"
	"time"

	"github.com/cardquest/progression/internal/domain/progression"
	"github.com/cardquest/progression/internal/domain/shared"
	"github.com/cardquest/progression/pkg/logger"
	"github.com/cardquest/progression/pkg/retry"
	"github.com/cardquest/progression/pkg/tracing"
)

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATORS
// ══════════════════════════════════════════════════════════════════════════════

// Recorder receives command statistics. *metrics.Metrics implements it.
type Recorder interface {
	ObserveCommand(command string, started time.Time, err error)
	ConflictRetry(command string)
	ProfileCreated()
	RecordEvents(events []shared.Event)
}

// FeatureGate answers feature flag checks. *config.FeatureFlags implements it.
type FeatureGate interface {
	IsEnabled(feature, userID string) bool
}

// Feature names consulted by the commands.
const (
	FeatureEventsPublish     = "events.publish"
	FeatureStreakSkewWarning = "streak.clock_skew_alert"
)

// Options configures the shared write cycle.
type Options struct {
	// Locker serializes writers of one profile; nil relies on version checks alone
	Locker progression.Locker

	// Publisher receives the events of every committed command; optional
	Publisher shared.EventPublisher

	Recorder Recorder
	Features FeatureGate
	Logger   *logger.Logger

	// Clock defaults to time.Now
	Clock func() time.Time

	LockTTL            time.Duration
	MaxConflictRetries int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		LockTTL:            5 * time.Second,
		MaxConflictRetries: 5,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE WRITER
// ══════════════════════════════════════════════════════════════════════════════

// ProfileWriter runs the read-modify-write cycle shared by all commands.
type ProfileWriter struct {
	repo   progression.Repository
	engine *progression.Engine
	opts   Options
	log    *logger.Logger
}

// NewProfileWriter creates a ProfileWriter.
func NewProfileWriter(repo progression.Repository, engine *progression.Engine, opts Options) *ProfileWriter {
	defaults := DefaultOptions()
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaults.LockTTL
	}
	if opts.MaxConflictRetries <= 0 {
		opts.MaxConflictRetries = defaults.MaxConflictRetries
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}

	return &ProfileWriter{
		repo:   repo,
		engine: engine,
		opts:   opts,
		log:    opts.Logger.With(logger.Component("command")),
	}
}

// Engine returns the engine the writer applies.
func (w *ProfileWriter) Engine() *progression.Engine {
	return w.engine
}

// mutation applies one engine operation to p and returns the command result
// plus the events it produced.
type mutation[R any] func(p *progression.Profile, now time.Time) (R, []shared.Event, error)

// commit is the outcome of a successful write cycle.
type commit[R any] struct {
	Profile *progression.Profile
	Result  R
	Events  []shared.Event
	Created bool
}

// write runs mutate inside the lock and conflict-retry loop. The clock is read
// once so every attempt of the cycle sees the same instant.
func write[R any](ctx context.Context, w *ProfileWriter, command, rawUserID string, mutate mutation[R]) (c commit[R], err error) {
	started := w.opts.Clock()
	ctx, span := tracing.Start(ctx, "command."+command, tracing.UserID(rawUserID))
	defer func() {
		tracing.End(span, err)
		if w.opts.Recorder != nil {
			w.opts.Recorder.ObserveCommand(command, started, err)
		}
	}()

	userID, err := shared.NewUserID(rawUserID)
	if err != nil {
		return c, err
	}
	id := userID.String()
	log := w.log.With(logger.Operation(command), logger.UserID(id))

	if w.opts.Locker != nil {
		unlock, err := w.opts.Locker.Lock(ctx, id, w.opts.LockTTL)
		if err != nil {
			return c, err
		}
		defer unlock()
	}

	retrier := retry.ConflictRetrier(w.opts.MaxConflictRetries, shared.IsConflict,
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			if w.opts.Recorder != nil {
				w.opts.Recorder.ConflictRetry(command)
			}
			log.Debug("profile changed underneath, retrying", logger.Attempt(attempt), logger.Duration("delay", delay))
		}),
	)

	c, err = retry.DoWithData(ctx, retrier, func(ctx context.Context) (commit[R], error) {
		p, created, err := w.loadOrCreate(ctx, id, started)
		if err != nil {
			return commit[R]{}, err
		}

		result, events, err := mutate(p, started)
		if err != nil {
			return commit[R]{}, err
		}
		// A profile that breaks its invariants is never stored.
		if err := p.Validate(); err != nil {
			log.Error("computed profile is invalid", logger.Err(err))
			return commit[R]{}, retry.Permanent(err)
		}
		if err := w.repo.Save(ctx, p); err != nil {
			return commit[R]{}, err
		}

		return commit[R]{
			Profile: p,
			Result:  result,
			Events:  stampEvents(p, events, created, started),
			Created: created,
		}, nil
	})
	if err != nil {
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			log.Warn("gave up after repeated conflicts", logger.Attempt(exhausted.Attempts))
		}
		return commit[R]{}, err
	}

	w.afterCommit(log, c.Profile, c.Events, c.Created)
	return c, nil
}

func (w *ProfileWriter) loadOrCreate(ctx context.Context, userID string, now time.Time) (*progression.Profile, bool, error) {
	p, err := w.repo.Get(ctx, userID)
	if err == nil {
		return p, false, nil
	}
	if !shared.IsNotFound(err) {
		return nil, false, err
	}

	p, err = progression.NewProfile(userID, now)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// stampEvents fills in the storage sequence, which is known only after the
// first save, and announces a new profile ahead of its other events.
func stampEvents(p *progression.Profile, events []shared.Event, created bool, now time.Time) []shared.Event {
	out := make([]shared.Event, 0, len(events)+1)
	if created {
		out = append(out, shared.ProfileCreatedEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventProfileCreated, p.UserID, now.UTC()),
			Level:     p.Level,
			TotalXP:   p.TotalXP,
			Seq:       p.Seq,
		})
	}
	for _, e := range events {
		if xp, ok := e.(shared.XPGainedEvent); ok {
			xp.Seq = p.Seq
			e = xp
		}
		out = append(out, e)
	}
	return out
}

func (w *ProfileWriter) afterCommit(log *logger.Logger, p *progression.Profile, events []shared.Event, created bool) {
	if w.opts.Recorder != nil {
		if created {
			w.opts.Recorder.ProfileCreated()
		}
		w.opts.Recorder.RecordEvents(events)
	}

	if w.opts.Publisher != nil && w.enabled(FeatureEventsPublish, p.UserID) {
		for _, e := range events {
			if err := w.opts.Publisher.Publish(e); err != nil {
				log.Error("failed to publish event",
					logger.String("event_type", string(e.EventType())),
					logger.Err(err),
				)
			}
		}
	}

	log.Debug("profile stored",
		logger.ProfileLevel(p.Level),
		logger.Int("total_xp", p.TotalXP),
		logger.Int64("version", p.Version),
		logger.Int("events", len(events)),
	)
}

func (w *ProfileWriter) enabled(feature, userID string) bool {
	return w.opts.Features == nil || w.opts.Features.IsEnabled(feature, userID)
}

// applyTimezone stores tz on p when given. The engine rejects unknown zones.
func applyTimezone(p *progression.Profile, tz string) {
	if tz != "" {
		p.Timezone = tz
	}
}
