package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotpool/internal/config"
	"hotpool/internal/storage"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Scheduler.Interval = time.Minute
	cfg.Rules = config.RulesConfig{MinTVLUSD: 5000, FeeTVLThresholdPct: 5, FeeThresholdUSD: 2000, LedgerCapacity: 100}
	cfg.Alerting.Enabled = true
	cfg.Alerting.SendInterval = 0
	cfg.Alerting.Telegram.Enabled = true
	cfg.Alerting.Telegram.RequestTimeout = time.Second
	cfg.Meteora.RequestTimeout = time.Second
	cfg.DexScreener.RequestTimeout = time.Second
	cfg.DexScreener.ChainID = "solana"
	return cfg
}

func testApp(cfg *config.Config) (*App, *bytes.Buffer) {
	out := &bytes.Buffer{}
	a := NewApp(cfg, zerolog.Nop())
	a.Out = out
	return a, out
}

func TestSimulatePrintsDecisionAndMessage(t *testing.T) {
	a, out := testApp(testConfig())

	err := a.Simulate(context.Background(), SimulateOptions{
		Name:         "BONK-SOL",
		TVLUSD:       10000,
		FeeTVLRatio:  22,
		APRPct:       50,
		OrganicScore: 90,
	})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "decision: notify tier=INSTANT_ALERT")
	assert.Contains(t, out.String(), "🔴 INSTANT ALERT")
	assert.Contains(t, out.String(), "BONK-SOL")
}

func TestSimulateSuppressed(t *testing.T) {
	a, out := testApp(testConfig())

	err := a.Simulate(context.Background(), SimulateOptions{
		TVLUSD:       10000,
		FeeTVLRatio:  8,
		APRPct:       50,
		OrganicScore: 70,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "decision: suppressed (organic_score)")
	assert.NotContains(t, out.String(), "<b>")
}

func TestSimulateSendRequiresCredentials(t *testing.T) {
	a, _ := testApp(testConfig())

	err := a.Simulate(context.Background(), SimulateOptions{TVLUSD: 10000, FeeTVLRatio: 22, OrganicScore: 90, Send: true})
	assert.True(t, errors.Is(err, config.ErrMissingTelegramCredentials))
}

func TestSimulateSendDelivers(t *testing.T) {
	var calls int
	tg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer tg.Close()

	cfg := testConfig()
	cfg.Alerting.Telegram.BotToken = "token"
	cfg.Alerting.Telegram.ChatID = "chat"
	cfg.Alerting.Telegram.APIBase = tg.URL
	a, out := testApp(cfg)

	err := a.Simulate(context.Background(), SimulateOptions{TVLUSD: 10000, FeeTVLRatio: 22, OrganicScore: 90, Send: true})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, out.String(), "simulated alert delivered")
}

func TestScanDryRun(t *testing.T) {
	meteora := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"address":"HotPool","name":"HOT-SOL","liquidity":"10000","fee_tvl_ratio":{"min_30":"0.22"},"apr":50,"mint_x":"HotMint"},
			{"address":"ColdPool","name":"COLD-SOL","liquidity":"10000","fee_tvl_ratio":{"min_30":"0.001"},"apr":1,"mint_x":"ColdMint"}
		]`))
	}))
	defer meteora.Close()
	dex := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer dex.Close()

	cfg := testConfig()
	cfg.Meteora.BaseURL = meteora.URL
	cfg.DexScreener.BaseURL = dex.URL
	a, out := testApp(cfg)

	require.NoError(t, a.Scan(context.Background(), ScanOptions{}))
	assert.Contains(t, out.String(), "pools=2 shortlisted=1 cooling_down=0 suppressed=0 sent=1 failed=0")
	assert.Contains(t, out.String(), "HotPool\tINSTANT_ALERT\tnotify")
}

func TestShowListsAuditRows(t *testing.T) {
	cfg := testConfig()
	cfg.Database = config.DatabaseConfig{Driver: storage.DriverSQLite, DSN: filepath.Join(t.TempDir(), "alerts.db")}

	store, err := storage.Open(context.Background(), cfg.Database)
	require.NoError(t, err)
	_, err = store.InsertAlert(context.Background(), storage.AlertRecord{
		PoolAddress:    "PoolA",
		PoolName:       "A-SOL",
		Tier:           "HIGH_PRIORITY",
		TVLUSD:         decimal.NewFromInt(12000),
		FeeTVLRatioPct: decimal.NewFromFloat(8.5),
		Delivered:      true,
		CreatedAt:      time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)
	store.Close()

	a, out := testApp(cfg)
	require.NoError(t, a.Show(context.Background(), ShowOptions{Limit: 5}))
	assert.Contains(t, out.String(), "2025-01-02T03:04:05Z")
	assert.Contains(t, out.String(), "PoolA")
	assert.Contains(t, out.String(), "8.50")
}

func TestShowWithoutDatabase(t *testing.T) {
	a, _ := testApp(testConfig())
	assert.Error(t, a.Show(context.Background(), ShowOptions{Limit: 5}))
}

func TestRunFailsFastWithoutCredentials(t *testing.T) {
	a, _ := testApp(testConfig())
	err := a.Run(context.Background())
	assert.True(t, errors.Is(err, config.ErrMissingTelegramCredentials))
}
