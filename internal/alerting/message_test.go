package alerting

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"hotpool/internal/model"
)

func TestRenderMessage(t *testing.T) {
	a := sampleAlert()
	a.PoolName = "<script>"
	a.Metrics.PriceUSD = 0.000123456
	a.Metrics.BaseFeePct = 0.25
	a.Snapshot.MarketCapUSD = 2_500_000
	a.Snapshot.PriceChange5mPct = -4.256
	a.Holders = 1234567

	msg := RenderMessage(a)

	for _, want := range []string{
		"🚨 <b>🔴 INSTANT ALERT</b>",
		"• Name: &lt;script&gt;",
		"<code>PoolAddr111</code>",
		"• Fee/TVL Ratio: 22.00% ⚡",
		"• Threshold: 5%",
		"• TVL: $10.0K",
		"• 30m Fees: $2.2K",
		"• 30m Volume: $880.0K",
		"• Holders (est.): 1,234,567",
		"• APR: 50.00%",
		"• Base Fee: 0.25%",
		"• Market Cap: $2.5M",
		"• 5m Price Change: 📉 -4.26%",
		"• Organic Score: 90.0",
		"1.2346e-04",
		`<a href="https://app.meteora.ag/dlmm/PoolAddr111">Meteora</a>`,
		`<a href="https://dexscreener.com/solana/PoolAddr111">Chart</a>`,
	} {
		assert.Contains(t, msg, want)
	}
	assert.NotContains(t, msg, "<script>")
}

func TestRenderMessageDefaults(t *testing.T) {
	msg := RenderMessage(Alert{PoolAddress: "P", Tier: model.TierStandard, Snapshot: model.MarketSnapshot{PriceChange5mPct: 3}})
	assert.True(t, strings.HasPrefix(msg, "🚨 <b>🟢 STANDARD ALERT</b>"))
	assert.Contains(t, msg, "• Name: Unknown")
	assert.Contains(t, msg, "• TVL: N/A")
	assert.Contains(t, msg, "• Unknown: N/A")
	assert.Contains(t, msg, "📈 +3.00%")
}

func TestPriorityTag(t *testing.T) {
	assert.Equal(t, "🟡 HIGH PRIORITY", PriorityTag(model.TierHighPriority))
}

func TestFormatCompact(t *testing.T) {
	assert.Equal(t, "12.3K", FormatCompact(12_345))
	assert.Equal(t, "2.5M", FormatCompact(2_500_000))
	assert.Equal(t, "1.0K", FormatCompact(1_000))
	assert.Equal(t, "999.50", FormatCompact(999.5))
	assert.Equal(t, "0.00", FormatCompact(0))
}

func TestGroupThousands(t *testing.T) {
	assert.Equal(t, "0", groupThousands(0))
	assert.Equal(t, "999", groupThousands(999))
	assert.Equal(t, "1,000", groupThousands(1000))
	assert.Equal(t, "12,345", groupThousands(12345))
	assert.Equal(t, "-1,234,567", groupThousands(-1234567))
}
