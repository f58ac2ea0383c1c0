package screening

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/screening-service/internal/domain"
	"github.com/helixir/screening-service/internal/events"
	"github.com/helixir/screening-service/internal/observability"
	"github.com/helixir/screening-service/internal/repository"
)

// DecisionPublisher notifies downstream consumers of committed decisions.
// *events.Publisher satisfies this; a nil publisher disables notifications.
type DecisionPublisher interface {
	PublishDecision(ctx context.Context, event events.DecisionEvent) error
}

// Committer applies screening transitions against the store. Each commit is a
// load-apply-save cycle; optimistic version conflicts are resolved by
// reloading the unit and revalidating the transition against the fresh state.
type Committer struct {
	units      repository.UnitRepository
	machine    *Machine
	publisher  DecisionPublisher
	metrics    *observability.Metrics
	logger     zerolog.Logger
	maxRetries int
}

// NewCommitter creates a committer. publisher and metrics may be nil.
func NewCommitter(
	units repository.UnitRepository,
	machine *Machine,
	publisher DecisionPublisher,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	maxRetries int,
) *Committer {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Committer{
		units:      units,
		machine:    machine,
		publisher:  publisher,
		metrics:    metrics,
		logger:     logger.With().Str("component", "committer").Logger(),
		maxRetries: maxRetries,
	}
}

// Machine returns the underlying state machine.
func (c *Committer) Machine() *Machine { return c.machine }

// Commit validates the transition against the unit's stored state, appends it
// to the decision history, and saves. On a version conflict the unit is
// reloaded and the transition revalidated: a transition that is no longer
// legal against the fresh state fails rather than being forced through.
// Returns the updated unit on success.
func (c *Committer) Commit(ctx context.Context, unitID uuid.UUID, t Transition) (*domain.ReviewUnit, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if c.metrics != nil {
				c.metrics.RecordStaleWriteRetry()
			}
			c.logger.Debug().
				Str("unit_id", unitID.String()).
				Int("attempt", attempt).
				Msg("retrying commit after stale write")
		}

		unit, err := c.units.Get(ctx, unitID)
		if err != nil {
			return nil, err
		}

		if err := c.machine.Apply(unit, t, time.Now()); err != nil {
			return nil, err
		}

		if err := c.units.Save(ctx, unit); err != nil {
			if errors.Is(err, domain.ErrStaleWrite) {
				lastErr = err
				continue
			}
			return nil, err
		}

		c.afterCommit(ctx, unit, t)
		return unit, nil
	}

	return nil, fmt.Errorf("commit on unit %s: retries exhausted: %w", unitID, lastErr)
}

// SkipPass1 records an explicit pass-1 bypass on the unit, with the same
// conflict handling as Commit.
func (c *Committer) SkipPass1(ctx context.Context, unitID uuid.UUID) (*domain.ReviewUnit, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		unit, err := c.units.Get(ctx, unitID)
		if err != nil {
			return nil, err
		}
		if unit.Pass1Satisfied() {
			return unit, nil
		}

		c.machine.SkipPass1(unit, time.Now())

		if err := c.units.Save(ctx, unit); err != nil {
			if errors.Is(err, domain.ErrStaleWrite) {
				if c.metrics != nil {
					c.metrics.RecordStaleWriteRetry()
				}
				lastErr = err
				continue
			}
			return nil, err
		}
		return unit, nil
	}

	return nil, fmt.Errorf("skip pass 1 on unit %s: retries exhausted: %w", unitID, lastErr)
}

// afterCommit records metrics and publishes the decision event. The decision
// is already durable; failures here are logged, never propagated.
func (c *Committer) afterCommit(ctx context.Context, unit *domain.ReviewUnit, t Transition) {
	entry := unit.History[len(unit.History)-1]

	if c.metrics != nil {
		c.metrics.RecordDecision(
			strconv.Itoa(int(entry.Pass)),
			string(entry.Origin),
			string(entry.Decision),
		)
		if entry.Origin == domain.OriginAutomated &&
			entry.Decision == domain.DecisionUncertain && t.Decision != domain.DecisionUncertain {
			c.metrics.RecordDecisionClamped()
		}
	}

	c.logger.Info().
		Str("unit_id", unit.ID.String()).
		Int("pass", int(entry.Pass)).
		Str("origin", string(entry.Origin)).
		Str("decision", string(entry.Decision)).
		Str("state", string(unit.State)).
		Msg("screening decision committed")

	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishDecision(ctx, events.NewDecisionEvent(unit, entry)); err != nil {
		c.logger.Warn().Err(err).
			Str("unit_id", unit.ID.String()).
			Msg("failed to publish decision event")
	}
}
