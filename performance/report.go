package performance

import (
	"fmt"
	"io"
	"time"
)

// Report is a session summary suitable for printing at the end of a run.
type Report struct {
	Asset    string
	Strategy string
	Mode     string
	Start    time.Time
	End      time.Time
	Candles  int
	Signals  int
	Denied   map[string]int
	Stats    Stats
}

func PrintReport(w io.Writer, r Report) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Session Result")
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintf(w, "Asset:         %s\n", r.Asset)
	fmt.Fprintf(w, "Strategy:      %s\n", r.Strategy)
	fmt.Fprintf(w, "Mode:          %s\n", r.Mode)

	if !r.Start.IsZero() {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Period")
		fmt.Fprintln(w, "--------------------------------------------------")
		fmt.Fprintf(w, "Start:         %s\n", r.Start.Format(time.RFC3339))
		fmt.Fprintf(w, "End:           %s\n", r.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Candles:       %d\n", r.Candles)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Signals")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Actionable:    %d\n", r.Signals)
	for _, code := range []string{"TRADE_LIMIT_REACHED", "DAILY_LOSS_CAP_HIT", "RISK_REWARD_TOO_LOW", "WEAK_SIGNAL"} {
		if n := r.Denied[code]; n > 0 {
			fmt.Fprintf(w, "Denied %-20s %d\n", code+":", n)
		}
	}

	s := r.Stats
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Trades:        %d\n", s.Trades())
	fmt.Fprintf(w, "Wins:          %d\n", s.Wins)
	fmt.Fprintf(w, "Losses:        %d\n", s.Losses)
	fmt.Fprintf(w, "Draws:         %d\n", s.Draws)
	if s.Unknown > 0 {
		fmt.Fprintf(w, "Unsettled:     %d\n", s.Unknown)
	}
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", s.WinRate*100)
	fmt.Fprintf(w, "Net Profit:    %s\n", s.TotalProfit.StringFixed(2))
}
