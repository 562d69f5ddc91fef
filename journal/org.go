package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatTradeOrg renders a TradeRecord as an Org-mode block. Structured facts
// go in a PROPERTIES drawer for search; the narrative headings are left for
// the reader to fill in.
func FormatTradeOrg(t TradeRecord) string {
	heading := fmt.Sprintf("** %s %s %s (%s)", t.Result, t.Direction, t.Asset, shortID(t.TradeID))
	open := t.OpenTime.UTC().Format(time.RFC3339)
	close := t.CloseTime.UTC().Format(time.RFC3339)

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(fmt.Sprintf(":TRADE_ID: %s\n", t.TradeID))
	b.WriteString(fmt.Sprintf(":ASSET: %s\n", t.Asset))
	b.WriteString(fmt.Sprintf(":DIRECTION: %s\n", t.Direction))
	b.WriteString(fmt.Sprintf(":MODE: %s\n", t.Mode))
	b.WriteString(fmt.Sprintf(":AMOUNT: %s\n", t.Amount.StringFixed(2)))
	b.WriteString(fmt.Sprintf(":ENTRY_PRICE: %.5f\n", t.EntryPrice))
	b.WriteString(fmt.Sprintf(":EXIT_PRICE: %.5f\n", t.ExitPrice))
	b.WriteString(fmt.Sprintf(":OPEN_TIME: %s\n", open))
	b.WriteString(fmt.Sprintf(":CLOSE_TIME: %s\n", close))
	b.WriteString(fmt.Sprintf(":RESULT: %s\n", t.Result))
	b.WriteString(fmt.Sprintf(":PROFIT: %s\n", t.Profit.StringFixed(2)))
	b.WriteString(fmt.Sprintf(":STRENGTH: %.2f\n", t.Strength))
	b.WriteString(":END:\n")
	b.WriteString("\n")
	b.WriteString("*** Signal\n")
	b.WriteString(fmt.Sprintf("- %s\n", t.Reason))
	b.WriteString(fmt.Sprintf("- %s\n\n", t.Indicators))
	b.WriteString("*** Review\n- \n")

	return b.String()
}

// FormatTradesOrg renders multiple trades separated by blank lines.
func FormatTradesOrg(trades []TradeRecord) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[len(full)-8:]
}
