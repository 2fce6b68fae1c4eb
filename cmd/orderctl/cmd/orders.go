package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"orderflow/internal/orders"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <order-id>",
	Short: "Cancel an order by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid order id %q", args[0])
		}

		ctx, cancel := context.WithTimeout(context.Background(), reqTimeout)
		defer cancel()

		resp, err := newClient().Cancel(ctx, id)
		if resp != nil {
			if jsonOutput {
				if perr := printJSON(cmd.OutOrStdout(), resp); perr != nil {
					return perr
				}
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "order %d: %s\n", resp.OrderID, resp.Outcome)
			}
		}
		if err != nil {
			if resp != nil && resp.Outcome == orders.CancelNotFound {
				return fmt.Errorf("order %d not found", id)
			}
			return fmt.Errorf("cancel: %w", err)
		}
		return nil
	},
}

var openRefresh bool

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "List open orders",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), reqTimeout)
		defer cancel()

		resp, err := newClient().OpenOrders(ctx, openRefresh)
		if err != nil {
			return fmt.Errorf("open orders: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), resp)
		}

		tw := newTable(cmd.OutOrStdout(), "ID", "SYMBOL", "ACTION", "QTY", "TYPE", "STATUS")
		for _, o := range resp.Orders {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%g\t%s\t%s\n",
				o.OrderID, o.Symbol(), o.Action(), o.Order.TotalQuantity, o.Order.OrderType, o.State.Status)
		}
		return tw.Flush()
	},
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show the ticker order ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), reqTimeout)
		defer cancel()

		resp, err := newClient().Ledger(ctx)
		if err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), resp)
		}

		tw := newTable(cmd.OutOrStdout(), "KEY", "TICKER", "PERM", "STATUS", "UPDATED")
		for _, r := range resp.Records {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n",
				r.Key, r.TickerID, r.PermID, r.Status, r.UpdatedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show submission queue state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), reqTimeout)
		defer cancel()

		stats, err := newClient().Stats(ctx)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), stats)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "active:         %t\n", stats.Active)
		fmt.Fprintf(out, "queue state:    %s\n", stats.QueueState)
		fmt.Fprintf(out, "queued:         %d\n", stats.Queued)
		fmt.Fprintf(out, "open orders:    %d\n", stats.OpenOrders)
		fmt.Fprintf(out, "ledger records: %d\n", stats.LedgerRecords)
		fmt.Fprintf(out, "last ticker id: %d\n", stats.LastTickerID)
		return nil
	},
}

var (
	eventsOrderID int64
	eventsLimit   int
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the order event journal",
	Long: `Events prints journal entries: the history of one order with --order,
otherwise the most recent events. Requires the server journal to be enabled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), reqTimeout)
		defer cancel()

		resp, err := newClient().Events(ctx, eventsOrderID, eventsLimit)
		if err != nil {
			return fmt.Errorf("events: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), resp)
		}

		tw := newTable(cmd.OutOrStdout(), "TIME", "KIND", "ORDER", "SYMBOL", "STATUS", "FILLED", "AVG", "DETAIL")
		for _, e := range resp.Events {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%g\t%g\t%s\n",
				e.CreatedAt.Format(time.RFC3339), e.Kind, e.OrderID, e.Symbol, e.Status, e.Filled, e.AvgPrice, e.Detail)
		}
		return tw.Flush()
	},
}

func init() {
	openCmd.Flags().BoolVar(&openRefresh, "refresh", false, "query the gateway instead of the local table")
	eventsCmd.Flags().Int64Var(&eventsOrderID, "order", 0, "order id")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 100, "number of recent events")

	rootCmd.AddCommand(cancelCmd, openCmd, ledgerCmd, statsCmd, eventsCmd)
}

func newTable(out io.Writer, headers ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, h := range headers {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, h)
	}
	fmt.Fprintln(tw)
	return tw
}

func printJSON(out io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
