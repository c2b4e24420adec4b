package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertRecord captures one alert delivery attempt for auditing.
type AlertRecord struct {
	ID               int64
	PoolAddress      string
	PoolName         string
	Tier             string
	TVLUSD           decimal.Decimal
	FeeTVLRatioPct   decimal.Decimal
	APRPct           decimal.Decimal
	OrganicScore     decimal.Decimal
	PriceChange5mPct decimal.Decimal
	Delivered        bool
	Error            *string
	CreatedAt        time.Time
}
