// Package report renders audit results as a text table, an XLSX workbook or
// a PNG chart.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fieldwater/irrigaudit/internal/audit"
)

// ErrNoData is returned by renderers that need at least one balance row.
var ErrNoData = errors.New("no water balance data")

const dateLayout = "Mon 02 Jan"

// LocationName returns the request's location label, or its coordinate.
func LocationName(res *audit.Result) string {
	if res.Request.Location != "" {
		return res.Request.Location
	}
	return res.Request.Coordinate.String()
}

// WriteText prints the weekly water audit table followed by the
// recommendation. When weather was unavailable only the advisory is printed.
func WriteText(w io.Writer, res *audit.Result) error {
	var b strings.Builder
	fmt.Fprintf(&b, "WEEKLY WATER AUDIT: %s\n", LocationName(res))
	b.WriteString(strings.Repeat("-", 72) + "\n")
	fmt.Fprintf(&b, "Crop: %s %s, stage %s (Kc: %.2f", res.Request.Category, res.Request.Crop, res.Request.Stage, res.Kc)
	if res.KcDefaulted {
		b.WriteString(", default")
	}
	b.WriteString(")\n")
	fmt.Fprintf(&b, "Pump: %.0f L/min, field: %.2f acres\n\n", res.Request.Field.PumpCapacityLPM, res.Request.Field.FieldSizeAcres)

	if !res.Available() {
		fmt.Fprintf(&b, "%s\n", res.Advisory)
		_, err := io.WriteString(w, b.String())
		return err
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Date\tETo (mm)\tRain (mm)\tCrop Need (mm)\tIrrigation (mm)\tVolume (L)\tPump (h)\t\t")
	for i, d := range res.Balances {
		marker := ""
		if i == res.Series.TodayIndex {
			marker = "<- today"
		}
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.0f\t%.2f\t%s\t\n",
			d.Date.Format(dateLayout), d.EToMM, d.RainMM, d.CropNeedMM, d.IrrigationNeedMM, d.VolumeLiters, d.PumpHours, marker)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := res.Summary
	_, err := fmt.Fprintf(w, "\n%s\nOutlook (%d days from today): %.1f mm irrigation, %.0f L, %.1f pump hours, %.1f mm rain\n",
		s.Recommendation, s.Totals.Days, s.Totals.IrrigationNeedMM, s.Totals.VolumeLiters, s.Totals.PumpHours, s.Totals.RainMM)
	return err
}
