package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"poplift/internal/analytics"
)

var (
	statsUser string
	statsDays int
	statsJSON bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print an account's analytics dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := parseUserFlag(statsUser)
		if err != nil {
			return err
		}
		if !validDays(statsDays) {
			return fmt.Errorf("--days must be one of %v", analytics.AllowedDays)
		}

		_, _, manager, err := openDatabase()
		if err != nil {
			return err
		}
		defer manager.Close()

		db, err := manager.Connect()
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}

		report, err := analytics.Dashboard(db.WithContext(cmd.Context()), userID, statsDays, time.Now())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if statsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		renderReport(out, report, isTerminal(out))
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsUser, "user", "", "account UUID")
	statsCmd.Flags().IntVar(&statsDays, "days", analytics.DefaultDays, "window in days (7, 30 or 90)")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print the raw report as JSON")
}

func validDays(days int) bool {
	for _, d := range analytics.AllowedDays {
		if d == days {
			return true
		}
	}
	return false
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func renderReport(w io.Writer, report *analytics.Report, styled bool) {
	summary := table.NewWriter()
	summary.SetOutputMirror(w)
	summary.SetTitle(fmt.Sprintf("Last %d days (%s to %s)", report.Days, report.From, report.To))
	summary.AppendHeader(table.Row{"Impressions", "Clicks", "Closes", "Conversions", "Visitors", "CTR", "Conv."})
	summary.AppendRow(table.Row{
		report.Totals.Impressions,
		report.Totals.Clicks,
		report.Totals.Closes,
		report.Totals.Conversions,
		report.Totals.UniqueVisitors,
		pct(report.Rates.ClickThrough),
		pct(report.Rates.Conversion),
	})

	breakdown := table.NewWriter()
	breakdown.SetOutputMirror(w)
	breakdown.AppendHeader(table.Row{"Popup", "Impressions", "Clicks", "Conversions", "CTR", "Share"})
	for _, p := range report.Popups {
		breakdown.AppendRow(table.Row{p.Name, p.Impressions, p.Clicks, p.Conversions, pct(p.Rates.ClickThrough), pct(p.Share)})
	}
	if len(report.Popups) == 0 {
		breakdown.AppendRow(table.Row{"(no events)", 0, 0, 0, pct(0), pct(0)})
	}
	breakdown.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})

	style := table.StyleRounded
	if styled {
		style = table.StyleColoredDark
	}
	summary.SetStyle(style)
	breakdown.SetStyle(style)

	summary.Render()
	breakdown.Render()
}

func pct(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}
