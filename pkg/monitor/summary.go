package monitor

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/NotCoffee418/battery_schedule_exchange/pkg/issuerdb"
)

// FormatSummary renders the delivery summary as an aligned text table.
func FormatSummary(rows []issuerdb.SummaryRow) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCHEDULE\tDEVICE\tSTATUS\tMAX KW\tTIMESTAMP\tREASON")
	for _, r := range rows {
		limit := "-"
		if r.MaxPowerKWApplied != nil {
			limit = fmt.Sprintf("%.1f", *r.MaxPowerKWApplied)
		}
		reason := r.ErrorReason
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ScheduleID, r.DeviceID, r.Status, limit, r.Timestamp.UTC().Format(time.RFC3339), reason)
	}
	w.Flush()

	counts := CountByStatus(rows)
	statuses := make([]string, 0, len(counts))
	for status := range counts {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	parts := make([]string, 0, len(statuses))
	for _, status := range statuses {
		parts = append(parts, fmt.Sprintf("%s=%d", status, counts[status]))
	}
	fmt.Fprintf(&b, "total=%d %s\n", len(rows), strings.Join(parts, " "))
	return b.String()
}

func CountByStatus(rows []issuerdb.SummaryRow) map[string]int {
	counts := make(map[string]int)
	for _, r := range rows {
		counts[r.Status]++
	}
	return counts
}
