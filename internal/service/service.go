package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"hotpool/internal/alerting"
	"hotpool/internal/cooldown"
	"hotpool/internal/fetcher"
	"hotpool/internal/metrics"
	"hotpool/internal/model"
	"hotpool/internal/normalize"
	"hotpool/internal/rules"
	"hotpool/internal/scheduler"
	"hotpool/internal/storage"
)

// Deps bundles the collaborators of a Service. Scheduler, AlertStore, Locker
// and Metrics are optional.
type Deps struct {
	Scheduler  *scheduler.Scheduler
	Pools      fetcher.PoolSource
	Market     fetcher.MarketSource
	Evaluator  *rules.Evaluator
	Ledger     *cooldown.Ledger
	Notifier   alerting.Notifier
	AlertStore storage.AlertStore
	Locker     storage.AdvisoryLocker
	Metrics    *metrics.Recorder
	Logger     zerolog.Logger
}

// Options tune a Service.
type Options struct {
	// SendInterval is waited after every send attempt, successful or not.
	SendInterval    time.Duration
	AdvisoryLockKey int64
	// AuditRetention drops audit rows older than this at the end of a cycle; zero keeps them.
	AuditRetention time.Duration
}

// CycleReport summarises one polling cycle.
type CycleReport struct {
	PoolsSeen   int
	Shortlisted int
	CoolingDown int
	Suppressed  int
	Sent        int
	Failed      int
	Decisions   []model.Decision
}

// candidate is a pool that passed the first pass and is not on cooldown.
type candidate struct {
	record  model.PoolRecord
	metrics model.Metrics
	first   rules.FirstPass
}

// Service runs the poll, evaluate and notify cycle.
type Service struct {
	deps   Deps
	opts   Options
	logger zerolog.Logger

	now   func() time.Time
	pause func(ctx context.Context, d time.Duration) error
	rng   *rand.Rand
}

// New constructs the monitoring service.
func New(deps Deps, opts Options) *Service {
	if deps.Ledger == nil {
		deps.Ledger = cooldown.NewLedger(cooldown.DefaultCapacity)
	}
	if deps.Locker == nil && deps.AlertStore != nil {
		if l, ok := deps.AlertStore.(storage.AdvisoryLocker); ok {
			deps.Locker = l
		}
	}

	return &Service{
		deps:   deps,
		opts:   opts,
		logger: deps.Logger.With().Str("component", "service").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
		pause:  pause,
		rng:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x686f74)),
	}
}

// Run begins the polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.deps.Scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.deps.Scheduler.Run(ctx, func(ctx context.Context, at time.Time) error {
		_, err := s.ProcessCycle(ctx, at)
		return err
	})
}

// Ledger exposes the cooldown ledger owned by this service.
func (s *Service) Ledger() *cooldown.Ledger {
	return s.deps.Ledger
}

// ProcessCycle runs one complete cycle. A pool source failure ends the cycle
// with no candidates; it is logged and reported but never retried here.
func (s *Service) ProcessCycle(ctx context.Context, now time.Time) (CycleReport, error) {
	var report CycleReport

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return report, err
	}
	if !proceed {
		s.logger.Debug().Time("at", now).Msg("skip cycle because advisory lock held elsewhere")
		return report, nil
	}
	if unlock != nil {
		defer unlock()
	}

	started := time.Now()
	s.deps.Metrics.CycleStarted()
	defer func() { s.deps.Metrics.CycleFinished(time.Since(started)) }()

	candidates, err := s.shortlist(ctx, now, &report)
	if err != nil {
		s.deps.Metrics.CycleFailed()
		s.logger.Warn().Int("pools_seen", report.PoolsSeen).Msg("pool source failed, no candidates this cycle")
		s.housekeeping(ctx, now)
		return report, fmt.Errorf("stream pools: %w", err)
	}

	for _, c := range candidates {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		s.evaluateCandidate(ctx, c, &report)
	}

	s.housekeeping(ctx, now)

	s.logger.Info().
		Int("pools_seen", report.PoolsSeen).
		Int("shortlisted", report.Shortlisted).
		Int("cooling_down", report.CoolingDown).
		Int("suppressed", report.Suppressed).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Msg("cycle complete")
	return report, nil
}

// shortlist streams the pool source through the normalizer, the first pass and
// the cooldown check. Only the survivors need a market lookup.
func (s *Service) shortlist(ctx context.Context, now time.Time, report *CycleReport) ([]candidate, error) {
	var candidates []candidate
	err := s.deps.Pools.StreamPools(ctx, func(rec model.PoolRecord) {
		report.PoolsSeen++

		m := normalize.Normalize(rec)
		first := s.deps.Evaluator.FirstPass(m)
		if !first.ShouldAlert {
			return
		}
		report.Shortlisted++
		s.deps.Metrics.Candidate(metrics.StageShortlisted)

		if s.deps.Ledger.IsOnCooldown(rec.Address, now) {
			report.CoolingDown++
			s.deps.Metrics.Candidate(metrics.StageCoolingDown)
			return
		}
		candidates = append(candidates, candidate{record: rec, metrics: m, first: first})
	})
	s.deps.Metrics.PoolsSeen(report.PoolsSeen)
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

func (s *Service) evaluateCandidate(ctx context.Context, c candidate, report *CycleReport) {
	log := s.logger.With().Str("pool", c.record.Address).Str("name", c.record.Name).Logger()

	snap, err := s.deps.Market.FetchSnapshot(ctx, c.record.MintX)
	if err != nil {
		s.deps.Metrics.MarketFallback()
		log.Warn().Err(err).Str("token", c.record.MintX).Msg("market snapshot unavailable, using fallback")
		snap = model.FallbackSnapshot()
	} else if snap.Source == model.SnapshotSourceFallback {
		s.deps.Metrics.MarketFallback()
	}

	decision := s.deps.Evaluator.SecondPass(c.record.Address, c.metrics, snap, c.first.Tier)
	report.Decisions = append(report.Decisions, decision)
	if !decision.ShouldNotify {
		report.Suppressed++
		s.deps.Metrics.Candidate(metrics.StageSuppressed)
		log.Debug().
			Str("suppressed", decision.Suppressed).
			Float64("organic_score", snap.OrganicScore).
			Float64("price_change_5m_pct", snap.PriceChange5mPct).
			Msg("candidate suppressed")
		return
	}
	s.deps.Metrics.Candidate(metrics.StageApproved)

	s.dispatch(ctx, c, decision, report)
}

// dispatch sends one alert, audits the attempt, and records the cooldown only
// when delivery succeeded. The pacing delay follows every attempt.
func (s *Service) dispatch(ctx context.Context, c candidate, decision model.Decision, report *CycleReport) {
	alert := alerting.Alert{
		PoolAddress:        c.record.Address,
		PoolName:           c.record.Name,
		Tier:               decision.Tier,
		Metrics:            decision.Metrics,
		Snapshot:           decision.Snapshot,
		Holders:            rules.PlaceholderHolderCount(decision.Metrics.TVLUSD, s.rng),
		FeeTVLThresholdPct: s.deps.Evaluator.Thresholds().FeeTVLThresholdPct,
		DetectedAt:         s.now(),
	}

	sendErr := s.deps.Notifier.Notify(ctx, alert)
	if sendErr != nil {
		report.Failed++
		s.deps.Metrics.SendFailed()
		s.logger.Error().Err(sendErr).Str("pool", alert.PoolAddress).Msg("failed to send alert")
	} else {
		report.Sent++
		s.deps.Ledger.RecordAlert(alert.PoolAddress, s.now())
		s.deps.Metrics.AlertSent(alert.Tier.String())
		s.logger.Info().
			Str("pool", alert.PoolAddress).
			Str("name", alert.PoolName).
			Str("tier", alert.Tier.String()).
			Strs("reasons", c.first.Reasons).
			Msg("alert sent")
	}

	s.audit(ctx, alert, sendErr)

	if s.opts.SendInterval > 0 {
		if err := s.pause(ctx, s.opts.SendInterval); err != nil {
			s.logger.Debug().Err(err).Msg("pacing delay interrupted")
		}
	}
}

func (s *Service) audit(ctx context.Context, alert alerting.Alert, sendErr error) {
	if s.deps.AlertStore == nil {
		return
	}
	record := storage.AlertRecord{
		PoolAddress:      alert.PoolAddress,
		PoolName:         alert.PoolName,
		Tier:             alert.Tier.String(),
		TVLUSD:           decimal.NewFromFloat(alert.Metrics.TVLUSD),
		FeeTVLRatioPct:   decimal.NewFromFloat(alert.Metrics.FeeTVLRatioPct),
		APRPct:           decimal.NewFromFloat(alert.Metrics.APRPct),
		OrganicScore:     decimal.NewFromFloat(alert.Snapshot.OrganicScore),
		PriceChange5mPct: decimal.NewFromFloat(alert.Snapshot.PriceChange5mPct),
		Delivered:        sendErr == nil,
		CreatedAt:        alert.DetectedAt,
	}
	if sendErr != nil {
		record.Error = lo.ToPtr(sendErr.Error())
	}
	if _, err := s.deps.AlertStore.InsertAlert(ctx, record); err != nil {
		s.logger.Error().Err(err).Str("pool", alert.PoolAddress).Msg("failed to persist alert record")
	}
}

func (s *Service) housekeeping(ctx context.Context, now time.Time) {
	if pruned := s.deps.Ledger.Prune(now); pruned > 0 {
		s.logger.Debug().Int("pruned", pruned).Msg("cooldown ledger pruned")
	}
	s.deps.Metrics.LedgerSize(s.deps.Ledger.Len())

	if s.deps.AlertStore == nil || s.opts.AuditRetention <= 0 {
		return
	}
	deleted, err := s.deps.AlertStore.DeleteAlertsBefore(ctx, now.Add(-s.opts.AuditRetention))
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to prune alert audit")
		return
	}
	if deleted > 0 {
		s.logger.Debug().Int64("deleted", deleted).Msg("alert audit pruned")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.AdvisoryLockKey == 0 || s.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.deps.Locker.TryAdvisoryLock(ctx, s.opts.AdvisoryLockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
