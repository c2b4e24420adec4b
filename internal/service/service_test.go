package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotpool/internal/alerting"
	"hotpool/internal/cooldown"
	"hotpool/internal/metrics"
	"hotpool/internal/model"
	"hotpool/internal/rules"
	"hotpool/internal/storage"
)

type fakePools struct {
	records []model.PoolRecord
	err     error
}

func (f *fakePools) StreamPools(ctx context.Context, yield func(model.PoolRecord)) error {
	for _, rec := range f.records {
		yield(rec)
	}
	return f.err
}

type fakeMarket struct {
	snapshots map[string]model.MarketSnapshot
	err       error
	calls     []string
}

func (f *fakeMarket) FetchSnapshot(ctx context.Context, token string) (model.MarketSnapshot, error) {
	f.calls = append(f.calls, token)
	if f.err != nil {
		return model.FallbackSnapshot(), f.err
	}
	if snap, ok := f.snapshots[token]; ok {
		return snap, nil
	}
	return model.FallbackSnapshot(), nil
}

type fakeNotifier struct {
	sent []alerting.Alert
	fail map[string]bool
}

func (f *fakeNotifier) Notify(ctx context.Context, a alerting.Alert) error {
	if f.fail[a.PoolAddress] {
		return errors.New("telegram down")
	}
	f.sent = append(f.sent, a)
	return nil
}

type fakeAudit struct {
	records   []storage.AlertRecord
	deletedAt []time.Time
}

func (f *fakeAudit) EnsureSchema(context.Context) error { return nil }
func (f *fakeAudit) InsertAlert(_ context.Context, r storage.AlertRecord) (storage.AlertRecord, error) {
	f.records = append(f.records, r)
	return r, nil
}
func (f *fakeAudit) ListRecentAlerts(context.Context, int) ([]storage.AlertRecord, error) {
	return f.records, nil
}
func (f *fakeAudit) DeleteAlertsBefore(_ context.Context, t time.Time) (int64, error) {
	f.deletedAt = append(f.deletedAt, t)
	return 0, nil
}
func (f *fakeAudit) Close() {}

type fakeLocker struct{ acquired bool }

func (f *fakeLocker) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	return func() {}, f.acquired, nil
}

func pool(address string, tvl, ratio, apr string) model.PoolRecord {
	return model.PoolRecord{
		Address:     address,
		Name:        address + "-SOL",
		Liquidity:   model.RawNumber(tvl),
		FeeTVLRatio: model.WindowValues{Min30: model.RawNumber(ratio)},
		APR:         model.RawNumber(apr),
		MintX:       "mint-" + address,
	}
}

type harness struct {
	svc      *Service
	pools    *fakePools
	market   *fakeMarket
	notifier *fakeNotifier
	audit    *fakeAudit
	ledger   *cooldown.Ledger
	pauses   []time.Duration
	clock    time.Time
}

func newHarness(records ...model.PoolRecord) *harness {
	h := &harness{
		pools:    &fakePools{records: records},
		market:   &fakeMarket{snapshots: map[string]model.MarketSnapshot{}},
		notifier: &fakeNotifier{fail: map[string]bool{}},
		audit:    &fakeAudit{},
		ledger:   cooldown.NewLedger(100),
		clock:    time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	h.svc = New(Deps{
		Pools:      h.pools,
		Market:     h.market,
		Evaluator:  rules.NewEvaluator(rules.Thresholds{MinTVLUSD: 5000, FeeTVLThresholdPct: 5}),
		Ledger:     h.ledger,
		Notifier:   h.notifier,
		AlertStore: h.audit,
		Metrics:    metrics.NewRecorder(),
		Logger:     zerolog.Nop(),
	}, Options{SendInterval: 4 * time.Second, AuditRetention: time.Hour})
	h.svc.now = func() time.Time { return h.clock }
	h.svc.pause = func(_ context.Context, d time.Duration) error {
		h.pauses = append(h.pauses, d)
		return nil
	}
	h.svc.rng = rand.New(rand.NewPCG(1, 2))
	return h
}

func TestProcessCycleSendsAndRecordsCooldown(t *testing.T) {
	h := newHarness(
		pool("hot", "10000", "22", "50"),
		pool("shallow", "1000", "50", "900"),
		pool("quiet", "10000", "1", "5"),
	)
	h.market.snapshots["mint-hot"] = model.MarketSnapshot{OrganicScore: 90, PriceChange5mPct: 1}

	report, err := h.svc.ProcessCycle(context.Background(), h.clock)
	require.NoError(t, err)

	assert.Equal(t, 3, report.PoolsSeen)
	assert.Equal(t, 1, report.Shortlisted)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, []string{"mint-hot"}, h.market.calls)

	require.Len(t, h.notifier.sent, 1)
	sent := h.notifier.sent[0]
	assert.Equal(t, model.TierInstantAlert, sent.Tier)
	assert.Equal(t, 5.0, sent.FeeTVLThresholdPct)
	assert.GreaterOrEqual(t, sent.Holders, 110)

	assert.True(t, h.ledger.IsOnCooldown("hot", h.clock.Add(time.Minute)))
	assert.Equal(t, []time.Duration{4 * time.Second}, h.pauses)

	require.Len(t, h.audit.records, 1)
	assert.True(t, h.audit.records[0].Delivered)
	assert.Equal(t, "INSTANT_ALERT", h.audit.records[0].Tier)
	assert.Equal(t, []time.Time{h.clock.Add(-time.Hour)}, h.audit.deletedAt)
}

func TestProcessCycleSkipsPoolsOnCooldown(t *testing.T) {
	h := newHarness(pool("hot", "10000", "22", "50"))
	h.ledger.RecordAlert("hot", h.clock.Add(-299*time.Second))

	report, err := h.svc.ProcessCycle(context.Background(), h.clock)
	require.NoError(t, err)

	assert.Equal(t, 1, report.CoolingDown)
	assert.Empty(t, h.market.calls)
	assert.Empty(t, h.notifier.sent)
	assert.Empty(t, h.pauses)

	h.clock = h.clock.Add(time.Second)
	report, err = h.svc.ProcessCycle(context.Background(), h.clock)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
}

func TestSendFailureLeavesPoolOffCooldown(t *testing.T) {
	h := newHarness(pool("hot", "10000", "22", "50"), pool("warm", "10000", "8", "0"))
	h.notifier.fail["hot"] = true

	report, err := h.svc.ProcessCycle(context.Background(), h.clock)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Sent)
	assert.False(t, h.ledger.IsOnCooldown("hot", h.clock))
	assert.True(t, h.ledger.IsOnCooldown("warm", h.clock))
	assert.Len(t, h.pauses, 2, "pacing applies after failed sends too")

	require.Len(t, h.audit.records, 2)
	assert.False(t, h.audit.records[0].Delivered)
	require.NotNil(t, h.audit.records[0].Error)
	assert.Contains(t, *h.audit.records[0].Error, "telegram down")
}

func TestOutOfRangeFieldsDoNotBreakCycle(t *testing.T) {
	h := newHarness(pool("overflow", "10000", "22", "1e400"), pool("huge", "1e2000000000", "1e-20000000", "50"))

	start := time.Now()
	report, err := h.svc.ProcessCycle(context.Background(), h.clock)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)

	assert.Equal(t, 2, report.PoolsSeen)
	assert.Equal(t, 1, report.Sent)
	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, "overflow", h.notifier.sent[0].PoolAddress)
	assert.Zero(t, h.notifier.sent[0].Metrics.APRPct)
	assert.NotEmpty(t, alerting.RenderMessage(h.notifier.sent[0]))
	require.Len(t, h.audit.records, 1)
	assert.True(t, h.audit.records[0].APRPct.IsZero())
}

func TestMarketErrorUsesFallbackSnapshot(t *testing.T) {
	h := newHarness(pool("hot", "10000", "22", "50"))
	h.market.err = errors.New("dexscreener timeout")

	report, err := h.svc.ProcessCycle(context.Background(), h.clock)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Sent)
	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, model.NeutralOrganicScore, h.notifier.sent[0].Snapshot.OrganicScore)
}

func TestSecondPassSuppression(t *testing.T) {
	h := newHarness(pool("dumping", "10000", "2", "50"), pool("lowscore", "10000", "8", "50"))
	h.market.snapshots["mint-dumping"] = model.MarketSnapshot{OrganicScore: 90, PriceChange5mPct: -5}
	h.market.snapshots["mint-lowscore"] = model.MarketSnapshot{OrganicScore: 60}

	report, err := h.svc.ProcessCycle(context.Background(), h.clock)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Suppressed)
	assert.Empty(t, h.notifier.sent)
	assert.Empty(t, h.pauses)
	require.Len(t, report.Decisions, 2)
	assert.Equal(t, rules.SuppressedVolatility, report.Decisions[0].Suppressed)
	assert.Equal(t, rules.SuppressedOrganicScore, report.Decisions[1].Suppressed)
}

func TestPoolSourceFailureDropsCycle(t *testing.T) {
	h := newHarness(pool("hot", "10000", "22", "50"))
	h.pools.err = errors.New("connection reset")

	report, err := h.svc.ProcessCycle(context.Background(), h.clock)
	require.Error(t, err)
	assert.Equal(t, 1, report.PoolsSeen)
	assert.Empty(t, h.notifier.sent)
	assert.Empty(t, h.market.calls)
}

func TestAdvisoryLockHeldElsewhereSkipsCycle(t *testing.T) {
	h := newHarness(pool("hot", "10000", "22", "50"))
	h.svc.deps.Locker = &fakeLocker{acquired: false}
	h.svc.opts.AdvisoryLockKey = 42

	report, err := h.svc.ProcessCycle(context.Background(), h.clock)
	require.NoError(t, err)
	assert.Zero(t, report.PoolsSeen)
	assert.Empty(t, h.notifier.sent)
}

func TestHousekeepingPrunesLedger(t *testing.T) {
	h := newHarness()
	h.ledger.RecordAlert("old", h.clock.Add(-time.Hour))
	h.ledger.RecordAlert("recent", h.clock.Add(-time.Minute))

	_, err := h.svc.ProcessCycle(context.Background(), h.clock)
	require.NoError(t, err)
	assert.Equal(t, 1, h.ledger.Len())
}
