package alerting

import (
	"context"
	"time"

	"hotpool/internal/model"
)

// Alert carries everything needed to present one hot-pool notification.
type Alert struct {
	PoolAddress string
	PoolName    string
	Tier        model.Tier
	Metrics     model.Metrics
	Snapshot    model.MarketSnapshot

	// Holders is a display placeholder, see rules.PlaceholderHolderCount.
	Holders            int
	FeeTVLThresholdPct float64
	DetectedAt         time.Time
}

// Notifier delivers alerts to a destination.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}
