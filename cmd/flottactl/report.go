package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"flotta/internal/report"
)

type reportOutput struct {
	Year    int           `json:"year"`
	Month   int           `json:"month"`
	Dropped int           `json:"dropped"`
	Groups  []reportGroup `json:"groups"`
}

type reportGroup struct {
	Driver   string `json:"driver"`
	Plate    string `json:"plate"`
	DayCount int    `json:"day_count"`
	Days     []int  `json:"days"`
}

func newReportCmd() *cobra.Command {
	var month, year int
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the monthly usage report",
		Example: `  flottactl report --month 3 --year 2024
  flottactl report --backend sheets --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			now := time.Now().In(a.cfg.Location())
			if month == 0 {
				month = int(now.Month())
			}
			if year == 0 {
				year = now.Year()
			}

			res, _, err := a.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer res.Close()

			rep, err := report.NewService(res.Store).Generate(cmd.Context(), month, year)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !jsonOutput {
				_, err = fmt.Fprintln(out, rep.Text)
				if err == nil && rep.Dropped > 0 {
					_, err = fmt.Fprintf(out, "\n%d rows dropped\n", rep.Dropped)
				}
				return err
			}
			o := reportOutput{Year: rep.Year, Month: rep.Month, Dropped: rep.Dropped, Groups: []reportGroup{}}
			for _, g := range rep.Groups {
				o.Groups = append(o.Groups, reportGroup{Driver: g.Driver, Plate: g.Plate, DayCount: g.DayCount, Days: g.Days})
			}
			return printJSON(out, o)
		},
	}
	cmd.Flags().IntVar(&month, "month", 0, "Month 1-12 (default: current month)")
	cmd.Flags().IntVar(&year, "year", 0, "Year (default: current year)")
	return cmd
}
