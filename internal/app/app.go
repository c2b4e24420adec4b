package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"hotpool/internal/alerting"
	"hotpool/internal/config"
	"hotpool/internal/cooldown"
	"hotpool/internal/fetcher"
	"hotpool/internal/metrics"
	"hotpool/internal/rules"
	"hotpool/internal/scheduler"
	"hotpool/internal/service"
	"hotpool/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives human-readable command output.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newPoolSource() fetcher.PoolSource {
	return fetcher.NewMeteora(fetcher.MeteoraOptions{
		BaseURL:   a.Config.Meteora.BaseURL,
		Timeout:   a.Config.Meteora.RequestTimeout,
		UserAgent: a.Config.Meteora.UserAgent,
	}, a.Logger)
}

func (a *App) newMarketSource() fetcher.MarketSource {
	return fetcher.NewDexScreener(fetcher.DexScreenerOptions{
		BaseURL:   a.Config.DexScreener.BaseURL,
		ChainID:   a.Config.DexScreener.ChainID,
		Timeout:   a.Config.DexScreener.RequestTimeout,
		UserAgent: a.Config.DexScreener.UserAgent,
	}, a.Logger)
}

func (a *App) newEvaluator() *rules.Evaluator {
	return rules.NewEvaluator(rules.Thresholds{
		MinTVLUSD:          a.Config.Rules.MinTVLUSD,
		FeeTVLThresholdPct: a.Config.Rules.FeeTVLThresholdPct,
	})
}

func (a *App) newTelegram() *alerting.TelegramNotifier {
	cfg := a.Config.Alerting.Telegram
	return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.RequestTimeout, a.Logger)
}

// newNotifier returns the Telegram notifier when send is requested, otherwise
// a notifier that only logs.
func (a *App) newNotifier(send bool) (alerting.Notifier, error) {
	if !send {
		return alerting.NewLogNotifier(a.Logger), nil
	}
	if err := a.Config.RequireTelegram(); err != nil {
		return nil, err
	}
	return a.newTelegram(), nil
}

// openStore returns nil without error when no database is configured.
func (a *App) openStore(ctx context.Context) (storage.AlertStore, error) {
	store, err := storage.Open(ctx, a.Config.Database)
	if errors.Is(err, storage.ErrNotConfigured) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open alert store: %w", err)
	}
	return store, nil
}

func (a *App) newService(deps service.Deps, paced bool) *service.Service {
	deps.Logger = a.Logger
	if deps.Evaluator == nil {
		deps.Evaluator = a.newEvaluator()
	}
	if deps.Ledger == nil {
		deps.Ledger = cooldown.NewLedger(a.Config.Rules.LedgerCapacity)
	}

	opts := service.Options{
		AdvisoryLockKey: a.Config.Scheduler.AdvisoryLockKey,
		AuditRetention:  a.Config.Database.Retention,
	}
	if paced {
		opts.SendInterval = a.Config.Alerting.SendInterval
	}
	return service.New(deps, opts)
}

// Run executes the long-running watcher until SIGINT or SIGTERM.
func (a *App) Run(ctx context.Context) error {
	delivery := a.Config.DeliveryEnabled()
	notifier, err := a.newNotifier(delivery)
	if err != nil {
		return err
	}
	if !delivery {
		a.Logger.Warn().Msg("alert delivery disabled; alerts will only be logged")
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; alert audit disabled")
	} else {
		defer store.Close()
	}

	recorder := metrics.NewRecorder()

	sched := scheduler.New(scheduler.Options{
		Interval:       a.Config.Scheduler.Interval,
		RunImmediately: a.Config.Scheduler.RunImmediately,
		AlignToStart:   a.Config.Scheduler.AlignToBucket,
		StartupDelay:   a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc := a.newService(service.Deps{
		Scheduler:  sched,
		Pools:      a.newPoolSource(),
		Market:     a.newMarketSource(),
		Notifier:   notifier,
		AlertStore: store,
		Metrics:    recorder,
	}, true)

	a.Logger.Info().
		Dur("interval", a.Config.Scheduler.Interval).
		Float64("min_tvl_usd", a.Config.Rules.MinTVLUSD).
		Float64("fee_tvl_threshold_pct", a.Config.Rules.FeeTVLThresholdPct).
		Float64("fee_threshold_usd", a.Config.Rules.FeeThresholdUSD).
		Dur("cooldown", svc.Ledger().Window()).
		Msg("starting hot pool watcher")

	g, gctx := errgroup.WithContext(ctx)

	if addr := a.Config.Metrics.ListenAddr; addr != "" {
		g.Go(func() error {
			return recorder.Serve(gctx, addr, a.Logger)
		})
	}

	if delivery && a.Config.Alerting.Telegram.Commands {
		if tg, ok := notifier.(*alerting.TelegramNotifier); ok {
			listener := alerting.NewCommandListener(tg, a.Config.Alerting.Telegram.PollTimeout, a.Logger)
			g.Go(func() error {
				return listener.Run(gctx)
			})
		}
	}

	g.Go(func() error {
		return svc.Run(gctx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watcher terminated with error")
		return err
	}

	a.Logger.Info().Msg("hot pool watcher stopped")
	return nil
}

// ScanOptions configure the scan command.
type ScanOptions struct {
	Send bool
}

// SimulateOptions describe a synthetic pool and market snapshot.
type SimulateOptions struct {
	Address          string
	Name             string
	TVLUSD           float64
	FeeTVLRatio      float64
	APRPct           float64
	Fees30mUSD       float64
	Volume5mUSD      float64
	Volume30mUSD     float64
	OrganicScore     float64
	PriceChange5mPct float64
	MarketCapUSD     float64
	Send             bool
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
