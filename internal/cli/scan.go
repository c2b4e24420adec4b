package cli

import (
	"github.com/spf13/cobra"

	"hotpool/internal/app"
)

var scanSend bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single polling cycle now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Scan(cmd.Context(), app.ScanOptions{Send: scanSend})
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanSend, "send", false, "Deliver alerts to Telegram instead of logging them")
}
