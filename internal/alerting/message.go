package alerting

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"hotpool/internal/model"
)

const (
	meteoraPoolURL     = "https://app.meteora.ag/dlmm/"
	dexScreenerPoolURL = "https://dexscreener.com/solana/"
)

var (
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
)

// PriorityTag is the headline shown for a tier.
func PriorityTag(tier model.Tier) string {
	switch tier {
	case model.TierInstantAlert:
		return "🔴 INSTANT ALERT"
	case model.TierHighPriority:
		return "🟡 HIGH PRIORITY"
	default:
		return "🟢 STANDARD ALERT"
	}
}

// RenderMessage formats an alert as Telegram HTML.
func RenderMessage(a Alert) string {
	name := a.PoolName
	if strings.TrimSpace(name) == "" {
		name = "Unknown"
	}
	name = html.EscapeString(name)
	address := html.EscapeString(a.PoolAddress)
	m := a.Metrics
	snap := a.Snapshot

	tvl := "N/A"
	if m.TVLUSD != 0 {
		tvl = "$" + FormatCompact(m.TVLUSD)
	}
	price := "N/A"
	if m.PriceUSD != 0 {
		price = strconv.FormatFloat(m.PriceUSD, 'e', 4, 64)
	}
	trend := lo.Ternary(snap.PriceChange5mPct < 0, "📉", "📈")
	sign := lo.Ternary(snap.PriceChange5mPct > 0, "+", "")

	b := strings.Builder{}
	fmt.Fprintf(&b, "🚨 <b>%s</b>\n\n", PriorityTag(a.Tier))

	b.WriteString("📊 <b>Pool Info</b>\n")
	fmt.Fprintf(&b, "• Name: %s\n", name)
	fmt.Fprintf(&b, "• Address:\n<code>%s</code>\n", address)
	fmt.Fprintf(&b, "• Fee/TVL Ratio: %s%% ⚡\n", decimal.NewFromFloat(m.FeeTVLRatioPct).StringFixed(2))
	fmt.Fprintf(&b, "• Threshold: %s%%\n\n", strconv.FormatFloat(a.FeeTVLThresholdPct, 'f', -1, 64))

	b.WriteString("💰 <b>Financial Data</b>\n")
	fmt.Fprintf(&b, "• TVL: %s\n", tvl)
	fmt.Fprintf(&b, "• 30m Fees: $%s\n", FormatCompact(m.Fees30mUSD))
	fmt.Fprintf(&b, "• 30m Volume: $%s\n", FormatCompact(m.Volume30mUSD))
	fmt.Fprintf(&b, "• Holders (est.): %s\n", groupThousands(a.Holders))
	fmt.Fprintf(&b, "• APR: %s%%\n", FormatCompact(m.APRPct))
	fmt.Fprintf(&b, "• Base Fee: %s%%\n\n", strconv.FormatFloat(m.BaseFeePct, 'f', -1, 64))

	b.WriteString("📈 <b>Market Performance</b>\n")
	fmt.Fprintf(&b, "• Market Cap: $%s\n", FormatCompact(snap.MarketCapUSD))
	fmt.Fprintf(&b, "• 5m Price Change: %s %s%s%%\n", trend, sign, decimal.NewFromFloat(snap.PriceChange5mPct).StringFixed(2))
	fmt.Fprintf(&b, "• Organic Score: %s\n\n", decimal.NewFromFloat(snap.OrganicScore).StringFixed(1))

	b.WriteString("💰 <b>Price</b>\n")
	fmt.Fprintf(&b, "• %s: %s\n\n", name, price)

	fmt.Fprintf(&b, "🔗 <a href=\"%s%s\">Meteora</a> | <a href=\"%s%s\">Chart</a>", meteoraPoolURL, address, dexScreenerPoolURL, address)
	return b.String()
}

// FormatCompact renders amounts as 1.2M, 3.4K or 12.34.
func FormatCompact(v float64) string {
	d := decimal.NewFromFloat(v)
	switch {
	case v >= 1e6:
		return d.Div(million).StringFixed(1) + "M"
	case v >= 1e3:
		return d.Div(thousand).StringFixed(1) + "K"
	default:
		return d.StringFixed(2)
	}
}

func groupThousands(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= 3 {
		return lo.Ternary(neg, "-"+s, s)
	}

	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return lo.Ternary(neg, "-"+b.String(), b.String())
}
