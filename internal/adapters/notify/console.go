// Package notify renders ledger and P&L state for the operator.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/polysim/engine/internal/domain"
)

// Console implements ports.Notifier on a writer, stdout by default.
type Console struct {
	out io.Writer
}

// NewConsole creates a notifier that writes to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// TradeOpened prints a one-line summary of a newly accepted trade.
func (c *Console) TradeOpened(_ context.Context, t domain.Trade) {
	now := time.Now().Format("15:04:05")
	label := tradeLabel(t)
	if t.IsArbitrage() {
		fmt.Fprintf(c.out, "[%s] OPEN  %s %s | %d legs | cost $%.2f\n",
			now, t.Strategy, label, len(t.Legs), t.TotalCost)
		return
	}
	fmt.Fprintf(c.out, "[%s] OPEN  %s %s | %s @ $%.3f × %.1f | cost $%.2f\n",
		now, t.Strategy, label,
		t.Legs[0].Outcome, t.Legs[0].EntryPrice, t.Legs[0].Shares, t.TotalCost)
}

// TradeSettled prints the outcome of a resolved or failed trade.
func (c *Console) TradeSettled(_ context.Context, t domain.Trade) {
	now := time.Now().Format("15:04:05")
	switch t.Status {
	case domain.TradeFailed:
		fmt.Fprintf(c.out, "[%s] STALE %s %s | lost $%.2f\n",
			now, t.Strategy, tradeLabel(t), -t.RealizedPnL)
	default:
		sign := "+"
		if t.RealizedPnL < 0 {
			sign = "-"
		}
		fmt.Fprintf(c.out, "[%s] SETTLE %s %s | %s won | payout $%.2f | %s$%.2f\n",
			now, t.Strategy, tradeLabel(t), t.ResolutionOutcome,
			t.Payout, sign, abs(t.RealizedPnL))
	}
}

// Status renders the bankroll, the open positions table and the per-strategy
// P&L table.
func (c *Console) Status(_ context.Context, state domain.LedgerState, open []domain.Trade, report domain.PnLReport) {
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "\n[%s] balance $%.2f | reserved $%.2f | equity $%.2f | realized %+.2f | fees $%.2f",
		now, state.TotalBalance, state.ReservedCapital, state.Equity(),
		state.RealizedPnL, state.TotalFeesPaid)
	if state.Halted {
		fmt.Fprintf(c.out, " | !! HALTED")
	}
	fmt.Fprintln(c.out)

	if len(open) > 0 {
		fmt.Fprintf(c.out, "\n  Open positions (%d):\n", len(open))
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Strategy", "Market", "Side", "Entry", "Shares", "Cost", "Age")
		for _, t := range open {
			for _, leg := range t.Legs {
				tbl.Append(
					string(t.Strategy),
					domain.TruncateQuestion(leg.MarketName, leg.MarketID, 32),
					leg.Outcome,
					fmt.Sprintf("$%.3f", leg.EntryPrice),
					fmt.Sprintf("%.1f", leg.Shares),
					fmt.Sprintf("$%.2f", leg.Cost+leg.Fee),
					formatAge(time.Since(t.OpenedAt)),
				)
			}
		}
		tbl.Render()
	}

	fmt.Fprintf(c.out, "\n  Strategy P&L:\n")
	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Strategy", "Trades", "W", "L", "Win%", "PnL", "Avg", "Fees")
	for _, s := range report.Strategies {
		tbl.Append(
			string(s.Strategy),
			fmt.Sprintf("%d", s.Trades),
			fmt.Sprintf("%d", s.Wins),
			fmt.Sprintf("%d", s.Losses),
			fmt.Sprintf("%.0f%%", s.WinRate*100),
			fmt.Sprintf("%+.2f", s.RealizedPnL),
			fmt.Sprintf("%+.2f", s.AvgPnLPerTrade),
			fmt.Sprintf("$%.4f", s.FeesPaid),
		)
	}
	tbl.Render()
	fmt.Fprintln(c.out)
}

func tradeLabel(t domain.Trade) string {
	if len(t.Legs) == 0 {
		return t.ID
	}
	leg := t.Legs[0]
	return domain.TruncateQuestion(leg.MarketName, leg.MarketID, 40)
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.0fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%.0fm", d.Minutes())
	default:
		return fmt.Sprintf("%.1fh", d.Hours())
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
