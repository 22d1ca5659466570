package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/rustyeddy/tradedesk/journal"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the order and fill journal",
	Long: `Query order and fill records from a SQLite or PostgreSQL journal.

Subcommands:
  order  - Get the latest record of an order by ID
  today  - List fills from today
  day    - List fills from a specific day

Examples:
  tradedesk journal order <order-id>
  tradedesk journal today
  tradedesk journal day 2024-01-15 --dsn postgres://localhost/tradedesk`,
}

var journalOrderCmd = &cobra.Command{
	Use:   "order <order-id>",
	Short: "Get the latest record of an order",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalOrder,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List fills from today",
	Args:  cobra.NoArgs,
	RunE:  runJournalToday,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List fills from a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalDSN string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalOrderCmd)
	journalCmd.AddCommand(journalTodayCmd)
	journalCmd.AddCommand(journalDayCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDSN, "dsn", "d", "", "journal DSN (defaults to journal.dsn from the config)")
}

// openQuerier opens the journal and checks that it can be queried.
func openQuerier() (journal.Journal, journal.Querier, *time.Location, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	dsn := journalDSN
	if dsn == "" {
		dsn = cfg.Journal.DSN
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, nil, err
	}

	j, err := journal.Open(dsn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open journal: %w", err)
	}
	q, ok := j.(journal.Querier)
	if !ok {
		j.Close()
		return nil, nil, nil, fmt.Errorf("journal %q cannot be queried; use a sqlite: or postgres:// DSN", dsn)
	}
	return j, q, loc, nil
}

func runJournalOrder(cmd *cobra.Command, args []string) error {
	j, q, _, err := openQuerier()
	if err != nil {
		return err
	}
	defer j.Close()

	rec, err := q.GetOrder(args[0])
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Order %s\n", rec.OrderID)
	fmt.Fprintf(w, "  %s %s %.4f %s\n", rec.Side, rec.Symbol, rec.Quantity, rec.Type)
	fmt.Fprintf(w, "  Status: %s", rec.Status)
	if rec.Reason != "" {
		fmt.Fprintf(w, " (%s)", rec.Reason)
	}
	fmt.Fprintln(w)
	if rec.LimitPrice > 0 {
		fmt.Fprintf(w, "  Limit: %.4f\n", rec.LimitPrice)
	}
	if rec.StopPrice > 0 {
		fmt.Fprintf(w, "  Stop: %.4f\n", rec.StopPrice)
	}
	if rec.FilledQuantity > 0 {
		fmt.Fprintf(w, "  Filled: %.4f @ %.4f\n", rec.FilledQuantity, rec.AvgFillPrice)
	}
	fmt.Fprintf(w, "  Created: %s\n", rec.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "  Updated: %s\n", rec.UpdatedAt.Format(time.RFC3339))
	return nil
}

func runJournalToday(cmd *cobra.Command, args []string) error {
	j, q, loc, err := openQuerier()
	if err != nil {
		return err
	}
	defer j.Close()

	return listDay(cmd.OutOrStdout(), q, loc, time.Now().In(loc).Format("2006-01-02"))
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	j, q, loc, err := openQuerier()
	if err != nil {
		return err
	}
	defer j.Close()

	return listDay(cmd.OutOrStdout(), q, loc, args[0])
}

func listDay(w io.Writer, q journal.Querier, loc *time.Location, day string) error {
	start, end, err := dayBounds(loc, day)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	fills, err := q.ListFillsBetween(start, end)
	if err != nil {
		return fmt.Errorf("query fills: %w", err)
	}

	fmt.Fprintf(w, "Fills on %s (%d)\n", day, len(fills))
	for _, f := range fills {
		fmt.Fprintf(w, "  %s  %-4s %-6s %10.4f @ %10.4f  P/L %10.2f  %s\n",
			f.Time.In(loc).Format("15:04:05"), f.Side, f.Symbol, f.Quantity, f.Price, f.RealizedPL, f.OrderID)
	}
	pnl, wins, losses := journal.Realized(fills)
	fmt.Fprintf(w, "Realized P/L: %.2f (%d wins, %d losses)\n", pnl, wins, losses)
	return nil
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start, end, nil
}
