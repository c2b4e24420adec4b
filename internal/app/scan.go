package app

import (
	"context"
	"fmt"
	"time"

	"hotpool/internal/service"
)

// Scan runs a single cycle against the live sources. Alerts are only logged
// unless opts.Send is set.
func (a *App) Scan(ctx context.Context, opts ScanOptions) error {
	notifier, err := a.newNotifier(opts.Send)
	if err != nil {
		return err
	}

	var deps service.Deps
	deps.Pools = a.newPoolSource()
	deps.Market = a.newMarketSource()
	deps.Notifier = notifier

	if opts.Send {
		store, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if store != nil {
			defer store.Close()
			deps.AlertStore = store
		}
	}

	svc := a.newService(deps, opts.Send)
	report, err := svc.ProcessCycle(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	fmt.Fprintf(a.Out, "pools=%d shortlisted=%d cooling_down=%d suppressed=%d sent=%d failed=%d\n",
		report.PoolsSeen, report.Shortlisted, report.CoolingDown, report.Suppressed, report.Sent, report.Failed)
	for _, d := range report.Decisions {
		status := "notify"
		if !d.ShouldNotify {
			status = "suppressed:" + d.Suppressed
		}
		fmt.Fprintf(a.Out, "%s\t%s\t%s\n", d.PoolAddress, d.Tier, status)
	}
	return nil
}
