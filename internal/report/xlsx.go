package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/fieldwater/irrigaudit/internal/audit"
)

const (
	SummarySheet = "Audit"
	DailySheet   = "Daily"
)

var dailyHeader = []any{
	"Date", "ETo (mm)", "Rain (mm)", "Crop Need (mm)", "Irrigation (mm)", "Volume (L)", "Pump (h)", "Today",
}

// WriteXLSX writes a workbook with a summary sheet and, when weather was
// available, a daily balance sheet.
func WriteXLSX(w io.Writer, res *audit.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	rows := [][]any{
		{"Location", LocationName(res)},
		{"Latitude", res.Request.Coordinate.Latitude},
		{"Longitude", res.Request.Coordinate.Longitude},
		{"Crop", fmt.Sprintf("%s / %s", res.Request.Category, res.Request.Crop)},
		{"Stage", res.Request.Stage},
		{"Kc", res.Kc},
		{"Kc defaulted", res.KcDefaulted},
		{"Pump capacity (L/min)", res.Request.Field.PumpCapacityLPM},
		{"Field size (acres)", res.Request.Field.FieldSizeAcres},
	}
	if res.Available() {
		s := res.Summary
		rows = append(rows,
			[]any{"Status", s.Status.Label()},
			[]any{"Pump runtime", s.PumpRuntime()},
			[]any{"Volume today (L)", s.Today.VolumeLiters},
			[]any{"Recommendation", s.Recommendation},
			[]any{"Outlook days", s.Totals.Days},
			[]any{"Outlook irrigation (mm)", s.Totals.IrrigationNeedMM},
			[]any{"Outlook volume (L)", s.Totals.VolumeLiters},
			[]any{"Outlook pump hours", s.Totals.PumpHours},
		)
	} else {
		rows = append(rows, []any{"Advisory", res.Advisory})
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(1, len(rows))
	if err := f.SetCellStyle(SummarySheet, "A1", last, bold); err != nil {
		return err
	}
	if err := f.SetColWidth(SummarySheet, "A", "A", 26); err != nil {
		return err
	}
	if err := f.SetColWidth(SummarySheet, "B", "B", 60); err != nil {
		return err
	}

	if res.Available() {
		if err := writeDaily(f, res); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeDaily(f *excelize.File, res *audit.Result) error {
	if _, err := f.NewSheet(DailySheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#2E7D32"}},
	})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	today, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#FFF3CD"}},
	})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	if err := f.SetSheetRow(DailySheet, "A1", &dailyHeader); err != nil {
		return err
	}
	if err := f.SetCellStyle(DailySheet, "A1", "H1", header); err != nil {
		return err
	}

	for i, d := range res.Balances {
		row := []any{
			d.Date.Format("2006-01-02"),
			round2(d.EToMM), round2(d.RainMM), round2(d.CropNeedMM), round2(d.IrrigationNeedMM),
			round2(d.VolumeLiters), round2(d.PumpHours), "",
		}
		if i == res.Series.TodayIndex {
			row[7] = "today"
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(DailySheet, cell, &row); err != nil {
			return fmt.Errorf("write daily row: %w", err)
		}
		if i == res.Series.TodayIndex {
			end, _ := excelize.CoordinatesToCellName(len(dailyHeader), i+2)
			if err := f.SetCellStyle(DailySheet, cell, end, today); err != nil {
				return err
			}
		}
	}

	if err := f.SetColWidth(DailySheet, "A", "H", 16); err != nil {
		return err
	}
	return f.SetPanes(DailySheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
