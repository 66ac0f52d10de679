package report

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"churn-history/pkg/models"
)

var header = []string{
	"Date",
	"Customers", "Churned",
	"Churn\n(%)", "Change\n(pts)", "7-day avg\n(%)",
	"High risk", "High risk\nchurn (%)",
	"Revenue\nlost",
}

// History écrit les entrées sous forme de tableau, une ligne par date.
func History(w io.Writer, entries []models.ChurnHistoryEntry) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetBorder(true)
	table.SetHeader(header)

	for _, e := range entries {
		table.Append([]string{
			e.AnalysisDate.Format(models.DateLayout),
			strconv.FormatInt(e.TotalCustomers, 10),
			strconv.FormatInt(e.ChurnedCustomers, 10),
			e.ChurnRate.StringFixed(2),
			signed(e.ChurnRateChange.StringFixed(2)),
			e.ChurnRate7DayAvg.StringFixed(2),
			strconv.FormatInt(e.HighRiskCustomers, 10),
			e.HighRiskChurnRate.StringFixed(2),
			e.RevenueLost.StringFixed(2),
		})
	}
	table.Render()
}

func signed(s string) string {
	if s == "" || s[0] == '-' || s == "0.00" {
		return s
	}
	return "+" + s
}
