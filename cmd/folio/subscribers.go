package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var subscribersCmd = &cobra.Command{
	Use:   "subscribers",
	Short: "Manage the subscriber list",
}

var subscribersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List subscribers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		subs, err := app.Registry.List(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "EMAIL\tNAME\tACTIVE\tSINCE")
		for _, s := range subs {
			fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", s.Email, s.Name, s.Active, s.CreatedAt.Format(time.DateOnly))
		}
		return tw.Flush()
	},
}

var subscribersAddCmd = &cobra.Command{
	Use:   "add <email> [name]",
	Short: "Subscribe an address and send the welcome email",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 2 {
			name = args[1]
		}
		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		added, err := app.Publisher.Subscribe(cmd.Context(), args[0], name)
		if err != nil {
			return err
		}
		if added {
			fmt.Fprintf(cmd.OutOrStdout(), "subscribed %s\n", args[0])
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is already subscribed\n", args[0])
		}
		return nil
	},
}

var subscribersRemoveCmd = &cobra.Command{
	Use:   "remove <email>",
	Short: "Unsubscribe an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		removed, err := app.Publisher.Unsubscribe(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if removed {
			fmt.Fprintf(cmd.OutOrStdout(), "unsubscribed %s\n", args[0])
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s was not subscribed\n", args[0])
		}
		return nil
	},
}

func init() {
	subscribersCmd.AddCommand(subscribersListCmd, subscribersAddCmd, subscribersRemoveCmd)
}
