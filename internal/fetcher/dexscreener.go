package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"hotpool/internal/model"
)

const (
	dexScreenerTokensPath     = "/latest/dex/tokens/"
	defaultDexScreenerBaseURL = "https://api.dexscreener.com"
)

// DexScreenerOptions parameterise the market-data source.
type DexScreenerOptions struct {
	BaseURL   string
	ChainID   string
	Timeout   time.Duration
	UserAgent string
}

// DexScreener resolves market snapshots from the DexScreener token endpoint.
type DexScreener struct {
	opts    DexScreenerOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewDexScreener constructs a market source.
func NewDexScreener(opts DexScreenerOptions, logger zerolog.Logger) *DexScreener {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultDexScreenerBaseURL
	}

	return &DexScreener{
		opts:    opts,
		logger:  logger.With().Str("component", "dexscreener_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchSnapshot looks up the most liquid pair trading tokenAddress.
func (d *DexScreener) FetchSnapshot(ctx context.Context, tokenAddress string) (model.MarketSnapshot, error) {
	tokenAddress = strings.TrimSpace(tokenAddress)
	if tokenAddress == "" {
		return model.FallbackSnapshot(), nil
	}

	endpoint := d.baseURL + dexScreenerTokensPath + url.PathEscape(tokenAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.FallbackSnapshot(), err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent(d.opts.UserAgent))

	resp, err := d.client.Do(req)
	if err != nil {
		return model.FallbackSnapshot(), fmt.Errorf("request token %s: %w", tokenAddress, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return model.FallbackSnapshot(), nil
	}
	if resp.StatusCode != http.StatusOK {
		return model.FallbackSnapshot(), parseHTTPError("dexscreener", resp.StatusCode, resp.Body)
	}

	var payload tokenPairsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return model.FallbackSnapshot(), fmt.Errorf("decode token %s: %w", tokenAddress, err)
	}

	pairs := payload.Pairs
	if chain := strings.TrimSpace(d.opts.ChainID); chain != "" {
		pairs = lo.Filter(pairs, func(p dexPair, _ int) bool {
			return strings.EqualFold(p.ChainID, chain)
		})
	}
	if len(pairs) == 0 {
		d.logger.Debug().Str("token", tokenAddress).Msg("token unknown to dexscreener; using fallback snapshot")
		return model.FallbackSnapshot(), nil
	}

	best := lo.MaxBy(pairs, func(a, b dexPair) bool {
		return a.Liquidity.USD > b.Liquidity.USD
	})

	marketCap := best.MarketCap
	if marketCap <= 0 {
		marketCap = best.FDV
	}

	return model.MarketSnapshot{
		PriceChange5mPct: best.PriceChange.M5,
		MarketCapUSD:     marketCap,
		OrganicScore:     OrganicScore(best.Txns.H1.Buys, best.Txns.H1.Sells),
		Source:           model.SnapshotSourceDexScreener,
	}, nil
}

type tokenPairsResponse struct {
	Pairs []dexPair `json:"pairs"`
}

type dexPair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	PriceChange struct {
		M5  float64 `json:"m5"`
		H1  float64 `json:"h1"`
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	Txns struct {
		M5  txnCount `json:"m5"`
		H1  txnCount `json:"h1"`
		H24 txnCount `json:"h24"`
	} `json:"txns"`
	MarketCap float64 `json:"marketCap"`
	FDV       float64 `json:"fdv"`
}

type txnCount struct {
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
}

var _ MarketSource = (*DexScreener)(nil)
