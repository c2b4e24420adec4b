package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"hotpool/internal/app"
)

var simulateOpts app.SimulateOptions

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Evaluate a synthetic pool and print the resulting alert",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateOpts.TVLUSD < 0 {
			return errors.New("--tvl cannot be negative")
		}
		if simulateOpts.OrganicScore < 0 || simulateOpts.OrganicScore > 100 {
			return errors.New("--organic must be between 0 and 100")
		}
		return getApp().Simulate(cmd.Context(), simulateOpts)
	},
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simulateOpts.Address, "address", "", "Pool address")
	f.StringVar(&simulateOpts.Name, "name", "", "Pool display name")
	f.Float64Var(&simulateOpts.TVLUSD, "tvl", 10000, "Pool liquidity in USD")
	f.Float64Var(&simulateOpts.FeeTVLRatio, "fee-tvl", 22, "30m fee/TVL ratio, as a fraction (<1) or percent")
	f.Float64Var(&simulateOpts.APRPct, "apr", 50, "APR percent")
	f.Float64Var(&simulateOpts.Fees30mUSD, "fees-30m", 0, "30m fees in USD")
	f.Float64Var(&simulateOpts.Volume5mUSD, "volume-5m", 0, "5m volume in USD")
	f.Float64Var(&simulateOpts.Volume30mUSD, "volume-30m", 0, "30m volume in USD")
	f.Float64Var(&simulateOpts.OrganicScore, "organic", 85, "Organic score 0-100")
	f.Float64Var(&simulateOpts.PriceChange5mPct, "price-change-5m", 0, "5m price change percent")
	f.Float64Var(&simulateOpts.MarketCapUSD, "market-cap", 0, "Market cap in USD")
	f.BoolVar(&simulateOpts.Send, "send", false, "Deliver the alert to Telegram")
}
