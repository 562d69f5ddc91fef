package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradebot/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the trade journal",
	Long: `Query and display records from the SQLite trade journal.

Subcommands:
  outcome - Show one trade by id
  today   - List trades closed today
  day     - List trades closed on a specific day
  stats   - Show the performance snapshots of a day
  run     - Show a stored session summary

Days are calendar days in session.timezone.

Examples:
  tradebot journal outcome 01HQ3Z6J8W0C3M7K1S2Y4N5P6R
  tradebot journal today
  tradebot journal day 2024-01-15`,
}

var journalOutcomeCmd = &cobra.Command{
	Use:   "outcome <trade-id>",
	Short: "Show one trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalOutcome,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List trades closed today",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJournalDay(cmd, nil)
	},
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades closed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalStatsCmd = &cobra.Command{
	Use:   "stats [YYYY-MM-DD]",
	Short: "Show performance snapshots of a day (default today)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJournalStats,
}

var journalRunCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Show a stored session summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalRun,
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalOutcomeCmd)
	journalCmd.AddCommand(journalTodayCmd)
	journalCmd.AddCommand(journalDayCmd)
	journalCmd.AddCommand(journalStatsCmd)
	journalCmd.AddCommand(journalRunCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "", "path to SQLite journal DB (default journal.db_path)")
}

// openJournalDB opens the journal and returns the location days are
// measured in.
func openJournalDB(cmd *cobra.Command) (*journal.SQLite, *time.Location, error) {
	cfg, err := loadConfig(cmd.Context(), envconfig.OsLookuper())
	if err != nil {
		return nil, nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}
	path := journalDBPath
	if path == "" {
		path = cfg.Journal.DBPath
	}
	if path == "" {
		return nil, nil, fmt.Errorf("no journal database: set --db or journal.db_path")
	}
	j, err := journal.NewSQLite(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	return j, loc, nil
}

func runJournalOutcome(cmd *cobra.Command, args []string) error {
	j, _, err := openJournalDB(cmd)
	if err != nil {
		return err
	}
	defer j.Close()

	rec, err := j.GetTrade(args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(rec))
	return nil
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	j, loc, err := openJournalDB(cmd)
	if err != nil {
		return err
	}
	defer j.Close()

	start, end, err := dayBounds(loc, dayArg(args, loc))
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	recs, err := j.ListTradesClosedBetween(start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradesOrg(recs))
	return nil
}

func runJournalStats(cmd *cobra.Command, args []string) error {
	j, loc, err := openJournalDB(cmd)
	if err != nil {
		return err
	}
	defer j.Close()

	start, end, err := dayBounds(loc, dayArg(args, loc))
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	snaps, err := j.ListStatsBetween(start, end)
	if err != nil {
		return fmt.Errorf("query stats: %w", err)
	}
	printStats(cmd.OutOrStdout(), snaps)
	return nil
}

func runJournalRun(cmd *cobra.Command, args []string) error {
	j, _, err := openJournalDB(cmd)
	if err != nil {
		return err
	}
	defer j.Close()

	r, err := j.GetRun(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:        %s (%s)\n", r.RunID, r.Created.Format(time.RFC3339))
	fmt.Fprintf(out, "Asset:      %s\n", r.Asset)
	fmt.Fprintf(out, "Strategy:   %s\n", r.Strategy)
	fmt.Fprintf(out, "Mode:       %s\n", r.Mode)
	fmt.Fprintf(out, "Dataset:    %s\n", r.Dataset)
	fmt.Fprintf(out, "Period:     %s .. %s (%d candles)\n", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339), r.Candles)
	fmt.Fprintf(out, "Trades:     %d (W %d / L %d / D %d)\n", r.Trades, r.Wins, r.Losses, r.Draws)
	fmt.Fprintf(out, "Win Rate:   %.2f%%\n", r.WinRate*100)
	fmt.Fprintf(out, "Net Profit: %s\n", r.NetProfit.StringFixed(2))
	return nil
}

func printStats(w io.Writer, snaps []journal.StatsSnapshot) {
	if len(snaps) == 0 {
		fmt.Fprintln(w, "no stats recorded")
		return
	}
	fmt.Fprintf(w, "%-20s %-8s %5s %6s %5s %7s %12s %8s\n", "TIME", "ASSET", "WINS", "LOSSES", "DRAWS", "UNKNOWN", "PROFIT", "WIN%")
	for _, s := range snaps {
		fmt.Fprintf(w, "%-20s %-8s %5d %6d %5d %7d %12s %7.2f%%\n",
			s.Time.UTC().Format(time.RFC3339), s.Asset, s.Wins, s.Losses, s.Draws, s.Unknown,
			s.TotalProfit.StringFixed(2), s.WinRate*100)
	}
}

func dayArg(args []string, loc *time.Location) string {
	if len(args) > 0 {
		return args[0]
	}
	return time.Now().In(loc).Format("2006-01-02")
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
