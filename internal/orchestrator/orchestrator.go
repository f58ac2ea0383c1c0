// Package orchestrator drives automated screening batches: it fans units out
// to the judgment service under a concurrency cap and rate limit, applies the
// retry policy, and commits accepted verdicts through the screening engine.
package orchestrator

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/helixir/screening-service/internal/domain"
	"github.com/helixir/screening-service/internal/judge"
	"github.com/helixir/screening-service/internal/observability"
	"github.com/helixir/screening-service/internal/repository"
	"github.com/helixir/screening-service/internal/screening"
)

// Refusal sentinels. These mark units a batch declines to judge; they are
// reported per unit, never as a batch failure.
var (
	// ErrReferenceUnit marks a unit excluded from blind screening because it
	// is a known seed paper.
	ErrReferenceUnit = errors.New("reference unit excluded from screening")

	// ErrNoAbstract marks a unit refused for pass 2 because no constituent
	// record carries an abstract.
	ErrNoAbstract = errors.New("no abstract available for pass 2")
)

// Judge produces a verdict for one unit at one pass. *judge.Client satisfies this.
type Judge interface {
	Screen(ctx context.Context, pass domain.Pass, unit *domain.ReviewUnit) (*judge.Result, error)
	Model() string
}

// Committer applies accepted verdicts to the store. *screening.Committer
// satisfies this.
type Committer interface {
	Commit(ctx context.Context, unitID uuid.UUID, t screening.Transition) (*domain.ReviewUnit, error)
}

// Config holds orchestrator settings.
type Config struct {
	// MaxInFlight caps concurrent judgment calls.
	MaxInFlight int
	// RateLimitRPS is the judgment request rate in requests per second.
	RateLimitRPS float64
	// RateLimitBurst is the rate limiter burst size.
	RateLimitBurst int
	// MaxRetries is the number of extra attempts after a transient failure.
	MaxRetries int
	// RetryDelay is the base delay between retries; it doubles per attempt.
	RetryDelay time.Duration
}

// Outcome reports the result of screening one unit within a batch.
type Outcome struct {
	// UnitID identifies the unit.
	UnitID uuid.UUID

	// Unit is the updated unit after a committed decision, nil on failure.
	Unit *domain.ReviewUnit

	// Verdict is the accepted verdict, nil on failure.
	Verdict *judge.Verdict

	// Attempts is the number of judgment calls made for this unit.
	Attempts int

	// Err is non-nil when no decision was committed. Refusal sentinels and
	// ordering errors mean the unit was not judged; other errors mean
	// judgment or commit failed.
	Err error
}

// Orchestrator screens batches of units through the judgment service.
type Orchestrator struct {
	units       repository.UnitRepository
	judgmentLog repository.JudgmentLogRepository
	judge       Judge
	committer   Committer
	limiter     *rate.Limiter
	metrics     *observability.Metrics
	logger      zerolog.Logger
	cfg         Config
}

// New creates an orchestrator. judgmentLog and metrics may be nil.
func New(
	units repository.UnitRepository,
	judgmentLog repository.JudgmentLogRepository,
	j Judge,
	committer Committer,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	cfg Config,
) *Orchestrator {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 1
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	return &Orchestrator{
		units:       units,
		judgmentLog: judgmentLog,
		judge:       j,
		committer:   committer,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		metrics:     metrics,
		logger:      logger.With().Str("component", "orchestrator").Logger(),
		cfg:         cfg,
	}
}

// ScreenBatch screens the given units at the given pass. Units are admitted
// in order but outcomes stream in completion order; the channel closes once
// every unit has an outcome. Cancelling the context stops admission and turns
// the remaining units into failure outcomes.
func (o *Orchestrator) ScreenBatch(ctx context.Context, pass domain.Pass, unitIDs []uuid.UUID) <-chan Outcome {
	out := make(chan Outcome, len(unitIDs))

	passLabel := strconv.Itoa(int(pass))
	if o.metrics != nil {
		o.metrics.RecordBatchStarted(passLabel)
	}
	logger := observability.WithBatchContext(o.logger, uuid.NewString(), int(pass), len(unitIDs))
	logger.Info().Msg("screening batch started")

	go func() {
		defer close(out)

		var wg sync.WaitGroup
		sem := make(chan struct{}, o.cfg.MaxInFlight)

		for _, id := range unitIDs {
			select {
			case <-ctx.Done():
				out <- Outcome{UnitID: id, Err: ctx.Err()}
				continue
			case sem <- struct{}{}:
			}

			wg.Add(1)
			go func(id uuid.UUID) {
				defer wg.Done()
				defer func() { <-sem }()

				outcome := o.screenOne(ctx, pass, id)
				if o.metrics != nil {
					o.metrics.RecordBatchUnit(passLabel, outcomeResult(outcome))
				}
				out <- outcome
			}(id)
		}

		wg.Wait()
		logger.Info().Msg("screening batch finished")
	}()

	return out
}

// screenOne screens a single unit: pre-flight checks, the judgment call with
// retries, then the commit.
func (o *Orchestrator) screenOne(ctx context.Context, pass domain.Pass, unitID uuid.UUID) Outcome {
	unit, err := o.units.Get(ctx, unitID)
	if err != nil {
		return Outcome{UnitID: unitID, Err: err}
	}

	// Refuse before spending a judgment call.
	if unit.Reference {
		return Outcome{UnitID: unitID, Err: ErrReferenceUnit}
	}
	if unit.State.IsTerminal() {
		return Outcome{UnitID: unitID, Err: &domain.OutOfOrderTransitionError{UnitID: unitID, State: unit.State, Pass: pass}}
	}
	if pass == domain.Pass2 {
		if !unit.Pass2Eligible() {
			return Outcome{UnitID: unitID, Err: &domain.OutOfOrderTransitionError{UnitID: unitID, State: unit.State, Pass: pass}}
		}
		if unit.Abstract == "" {
			return Outcome{UnitID: unitID, Err: ErrNoAbstract}
		}
	}

	result, attempts, err := o.judgeWithRetry(ctx, pass, unit)
	if err != nil {
		return Outcome{UnitID: unitID, Attempts: attempts, Err: err}
	}

	if o.metrics != nil {
		o.metrics.RecordJudgeConfidence(strconv.Itoa(int(pass)), result.Verdict.Confidence)
	}

	updated, err := o.committer.Commit(ctx, unitID, screening.Transition{
		Pass:           pass,
		Origin:         domain.OriginAutomated,
		Decision:       result.Verdict.Decision,
		Confidence:     result.Verdict.Confidence,
		Reasoning:      result.Verdict.Reasoning,
		ExclusionCodes: result.Verdict.ExclusionCodes,
		Domain:         result.Verdict.Domain,
		Model:          result.Model,
		ResponseTime:   result.ResponseTime,
	})
	if err != nil {
		return Outcome{UnitID: unitID, Verdict: result.Verdict, Attempts: attempts, Err: err}
	}

	return Outcome{UnitID: unitID, Unit: updated, Verdict: result.Verdict, Attempts: attempts}
}

// judgeWithRetry calls the judgment service under the retry policy: transient
// API failures get up to MaxRetries extra attempts with exponential backoff,
// a contract violation gets exactly one same-prompt retry, and anything else
// fails immediately. Every attempt is recorded in the judgment audit log.
func (o *Orchestrator) judgeWithRetry(ctx context.Context, pass domain.Pass, unit *domain.ReviewUnit) (*judge.Result, int, error) {
	passLabel := strconv.Itoa(int(pass))

	attempts := 0
	transientLeft := o.cfg.MaxRetries
	contractLeft := 1
	delay := o.cfg.RetryDelay

	for {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, attempts, err
		}

		attempts++
		result, err := o.judge.Screen(ctx, pass, unit)
		o.logAttempt(ctx, pass, unit.ID, attempts, result, err)

		if err == nil {
			if o.metrics != nil {
				o.metrics.RecordJudgeRequest(passLabel, result.Model, result.ResponseTime.Seconds())
			}
			return result, attempts, nil
		}

		var apiErr *judge.APIError
		var contractErr *judge.ContractViolationError
		switch {
		case errors.As(err, &apiErr) && apiErr.IsTransient() && transientLeft > 0:
			if o.metrics != nil {
				o.metrics.RecordJudgeRequestFailed(passLabel, o.judge.Model(), "transient")
			}
			transientLeft--
			select {
			case <-ctx.Done():
				return nil, attempts, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2

		case errors.As(err, &contractErr) && contractLeft > 0:
			if o.metrics != nil {
				o.metrics.RecordJudgeContractViolation(o.judge.Model())
			}
			contractLeft--

		default:
			if o.metrics != nil {
				o.metrics.RecordJudgeRequestFailed(passLabel, o.judge.Model(), errorType(err))
			}
			return nil, attempts, err
		}
	}
}

// logAttempt records one judgment call in the audit log, best effort.
func (o *Orchestrator) logAttempt(ctx context.Context, pass domain.Pass, unitID uuid.UUID, attempt int, result *judge.Result, callErr error) {
	if o.judgmentLog == nil {
		return
	}

	entry := &domain.JudgmentLog{
		UnitID:      unitID,
		Pass:        pass,
		Model:       o.judge.Model(),
		Attempt:     attempt,
		RequestedAt: time.Now().UTC(),
	}
	if result != nil {
		entry.Model = result.Model
		entry.ThinkingMode = result.ThinkingMode
		entry.SystemPrompt = result.SystemPrompt
		entry.UserPrompt = result.UserPrompt
		entry.RawResponse = result.RawResponse
		entry.ResponseTime = result.ResponseTime
		entry.RequestedAt = result.RequestedAt
		if result.Verdict != nil {
			entry.Decision = result.Verdict.Decision
			confidence := result.Verdict.Confidence
			entry.Confidence = &confidence
			entry.Reasoning = result.Verdict.Reasoning
			entry.Codes = result.Verdict.ExclusionCodes
			entry.Domain = result.Verdict.Domain
		}
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	}

	if err := o.judgmentLog.Insert(ctx, entry); err != nil {
		o.logger.Warn().Err(err).
			Str("unit_id", unitID.String()).
			Msg("failed to write judgment log entry")
	}
}

// outcomeResult maps an outcome to a batch metric label.
func outcomeResult(outcome Outcome) string {
	switch {
	case outcome.Err == nil:
		return "decided"
	case errors.Is(outcome.Err, ErrReferenceUnit),
		errors.Is(outcome.Err, ErrNoAbstract),
		errors.Is(outcome.Err, domain.ErrOutOfOrderTransition):
		return "skipped"
	default:
		return "failed"
	}
}

// errorType maps an error to a metric label.
func errorType(err error) string {
	var apiErr *judge.APIError
	var contractErr *judge.ContractViolationError
	switch {
	case errors.As(err, &contractErr):
		return "contract_violation"
	case errors.As(err, &apiErr) && apiErr.IsTransient():
		return "transient"
	case errors.As(err, &apiErr):
		return "api_error"
	default:
		return "internal"
	}
}
