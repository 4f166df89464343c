package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Show the most recent notification log entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		entries, err := app.NotifyLog.List(cmd.Context(), limit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tRECIPIENT\tTEMPLATE\tSTATUS\tERROR")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				e.CreatedAt.Local().Format(time.DateTime), e.Recipient, e.Template, e.Status, e.Error)
		}
		return tw.Flush()
	},
}

func init() {
	notificationsCmd.Flags().IntP("limit", "n", 20, "number of entries to show")
}
