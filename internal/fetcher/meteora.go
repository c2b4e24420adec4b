package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hotpool/internal/model"
)

const (
	meteoraPairsPath      = "/pair/all"
	defaultMeteoraBaseURL = "https://dlmm-api.meteora.ag"
	defaultUserAgent      = "hotpool/1.0"
)

// MeteoraOptions parameterise the Meteora DLMM pool source.
type MeteoraOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Meteora streams DLMM pairs from the Meteora API.
type Meteora struct {
	opts    MeteoraOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewMeteora constructs a pool source.
func NewMeteora(opts MeteoraOptions, logger zerolog.Logger) *Meteora {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultMeteoraBaseURL
	}

	return &Meteora{
		opts:    opts,
		logger:  logger.With().Str("component", "meteora_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// StreamPools decodes the pair list element by element, so the full listing is
// never held in memory. Elements that are not pool objects are skipped.
func (m *Meteora) StreamPools(ctx context.Context, yield func(model.PoolRecord)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+meteoraPairsPath, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent(m.opts.UserAgent))

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("request pools: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseHTTPError("meteora", resp.StatusCode, resp.Body)
	}

	dec := json.NewDecoder(resp.Body)
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read pool list: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		m.logger.Warn().Msg("pool list is not an array; treating as empty")
		return nil
	}

	var decoded, skipped int
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode pool %d: %w", decoded+skipped, err)
		}

		var rec model.PoolRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			skipped++
			continue
		}
		yield(rec)
		decoded++
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("read pool list end: %w", err)
	}

	m.logger.Debug().Int("decoded", decoded).Int("skipped", skipped).Msg("pool list streamed")
	return nil
}

// FetchPools returns the whole listing at once.
func (m *Meteora) FetchPools(ctx context.Context) ([]model.PoolRecord, error) {
	pools := make([]model.PoolRecord, 0, 1024)
	err := m.StreamPools(ctx, func(rec model.PoolRecord) {
		pools = append(pools, rec)
	})
	if err != nil {
		return nil, err
	}
	return pools, nil
}

func userAgent(configured string) string {
	if ua := strings.TrimSpace(configured); ua != "" {
		return ua
	}
	return defaultUserAgent
}

var _ PoolSource = (*Meteora)(nil)
