package fetcher

import (
	"context"

	"hotpool/internal/model"
)

// PoolSource lists the pools observed in one polling cycle.
type PoolSource interface {
	// StreamPools calls yield for each pool as it is decoded. Every call starts
	// a fresh listing.
	StreamPools(ctx context.Context, yield func(model.PoolRecord)) error
}

// MarketSource looks up market data for a pool's base token.
type MarketSource interface {
	// FetchSnapshot always returns a usable snapshot. When the token is unknown
	// it returns model.FallbackSnapshot and a nil error; when the lookup fails
	// it returns the fallback snapshot together with the error.
	FetchSnapshot(ctx context.Context, tokenAddress string) (model.MarketSnapshot, error)
}
