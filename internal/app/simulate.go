package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hotpool/internal/alerting"
	"hotpool/internal/fetcher"
	"hotpool/internal/model"
	"hotpool/internal/normalize"
	"hotpool/internal/rules"
	"hotpool/internal/service"
)

const simulatedAddress = "SimulatedPoo1111111111111111111111111111111"

// Simulate pushes one synthetic pool through both passes, prints the decision
// and, when it would notify, the rendered message. With opts.Send the alert is
// delivered through Telegram.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	rec := opts.record()
	snap := model.MarketSnapshot{
		PriceChange5mPct: opts.PriceChange5mPct,
		MarketCapUSD:     opts.MarketCapUSD,
		OrganicScore:     opts.OrganicScore,
		Source:           model.SnapshotSourceStatic,
	}

	evaluator := a.newEvaluator()
	metrics := normalize.Normalize(rec)
	first := evaluator.FirstPass(metrics)
	decision := evaluator.Evaluate(rec.Address, metrics, snap, false)

	fmt.Fprintf(a.Out, "pool: %s (%s)\n", rec.Name, rec.Address)
	fmt.Fprintf(a.Out, "tvl=%.2f fee_tvl_pct=%.2f apr_pct=%.2f organic=%.1f price_change_5m=%.2f\n",
		metrics.TVLUSD, metrics.FeeTVLRatioPct, metrics.APRPct, snap.OrganicScore, snap.PriceChange5mPct)
	fmt.Fprintf(a.Out, "first pass: alert=%t tier=%s reasons=%s\n", first.ShouldAlert, first.Tier, strings.Join(first.Reasons, ","))

	if !decision.ShouldNotify {
		fmt.Fprintf(a.Out, "decision: suppressed (%s)\n", decision.Suppressed)
		return nil
	}
	fmt.Fprintf(a.Out, "decision: notify tier=%s\n\n", decision.Tier)
	fmt.Fprintln(a.Out, alerting.RenderMessage(alerting.Alert{
		PoolAddress:        rec.Address,
		PoolName:           rec.Name,
		Tier:               decision.Tier,
		Metrics:            metrics,
		Snapshot:           snap,
		Holders:            rules.PlaceholderHolderCount(metrics.TVLUSD, nil),
		FeeTVLThresholdPct: evaluator.Thresholds().FeeTVLThresholdPct,
		DetectedAt:         time.Now().UTC(),
	}))

	if !opts.Send {
		return nil
	}

	notifier, err := a.newNotifier(true)
	if err != nil {
		return err
	}
	svc := a.newService(service.Deps{
		Pools:     &staticPoolSource{records: []model.PoolRecord{rec}},
		Market:    &staticMarketSource{snapshot: snap},
		Evaluator: evaluator,
		Notifier:  notifier,
	}, false)

	report, err := svc.ProcessCycle(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("simulated alert was not delivered")
	}
	fmt.Fprintln(a.Out, "\nsimulated alert delivered")
	return nil
}

func (o SimulateOptions) record() model.PoolRecord {
	address := o.Address
	if address == "" {
		address = simulatedAddress
	}
	name := o.Name
	if name == "" {
		name = "SIM-SOL"
	}
	return model.PoolRecord{
		Address:     address,
		Name:        name,
		Liquidity:   rawNumber(o.TVLUSD),
		Fees:        model.WindowValues{Min30: rawNumber(o.Fees30mUSD)},
		Volume:      model.WindowValues{Min5: rawNumber(o.Volume5mUSD), Min30: rawNumber(o.Volume30mUSD)},
		FeeTVLRatio: model.WindowValues{Min30: rawNumber(o.FeeTVLRatio)},
		APR:         rawNumber(o.APRPct),
		MintX:       address,
	}
}

func rawNumber(v float64) model.RawNumber {
	return model.RawNumber(strconv.FormatFloat(v, 'f', -1, 64))
}

type staticPoolSource struct {
	records []model.PoolRecord
}

func (s *staticPoolSource) StreamPools(ctx context.Context, yield func(model.PoolRecord)) error {
	for _, rec := range s.records {
		yield(rec)
	}
	return nil
}

type staticMarketSource struct {
	snapshot model.MarketSnapshot
}

func (s *staticMarketSource) FetchSnapshot(ctx context.Context, tokenAddress string) (model.MarketSnapshot, error) {
	return s.snapshot, nil
}

var _ fetcher.PoolSource = (*staticPoolSource)(nil)
var _ fetcher.MarketSource = (*staticMarketSource)(nil)
