package alerting

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes alerts to the log instead of delivering them. Dry runs use it.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify never fails.
func (n *LogNotifier) Notify(ctx context.Context, alert Alert) error {
	n.logger.Info().
		Str("pool", alert.PoolAddress).
		Str("name", alert.PoolName).
		Str("tier", alert.Tier.String()).
		Float64("fee_tvl_pct", alert.Metrics.FeeTVLRatioPct).
		Float64("apr_pct", alert.Metrics.APRPct).
		Float64("organic_score", alert.Snapshot.OrganicScore).
		Str("message", RenderMessage(alert)).
		Msg("alert (dry run)")
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
