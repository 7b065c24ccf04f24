package report

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/fieldwater/irrigaudit/internal/audit"
	"github.com/fieldwater/irrigaudit/internal/models"
)

const (
	ChartWidth  = 1000
	ChartHeight = 600

	marginLeft   = 70
	marginRight  = 30
	marginTop    = 80
	marginBottom = 60
)

var (
	colorBackground = color.RGBA{255, 255, 255, 255}
	colorAxis       = color.RGBA{60, 60, 60, 255}
	colorGrid       = color.RGBA{210, 210, 210, 255}
	colorText       = color.RGBA{30, 30, 30, 255}
	colorMuted      = color.RGBA{120, 120, 120, 255}
	colorCropNeed   = color.NRGBA{255, 140, 0, 179}
	colorRain       = color.NRGBA{30, 144, 255, 179}
	colorIrrigation = color.RGBA{220, 20, 60, 255}
	colorToday      = color.RGBA{120, 120, 120, 255}
)

// ChartTitle builds the two chart title lines.
func ChartTitle(res *audit.Result) (string, string) {
	return "Smart Irrigation Schedule: " + LocationName(res),
		fmt.Sprintf("Crop: %s (%s, Kc %.2f)", res.Request.Crop, res.Request.Stage, res.Kc)
}

// WriteChart renders the result's daily balance as a PNG.
func WriteChart(w io.Writer, res *audit.Result) error {
	title, subtitle := ChartTitle(res)
	data, err := Chart(res.Balances, res.Series.TodayIndex, title, subtitle)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Chart draws grouped crop need and rain bars per day with the irrigation
// requirement as a line on top. todayIndex marks the current day; pass -1
// to omit the marker.
func Chart(balances []models.DailyBalance, todayIndex int, title, subtitle string) ([]byte, error) {
	if len(balances) == 0 {
		return nil, ErrNoData
	}

	img := image.NewRGBA(image.Rect(0, 0, ChartWidth, ChartHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{colorBackground}, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	plot := image.Rect(marginLeft, marginTop, ChartWidth-marginRight, ChartHeight-marginBottom)

	drawText(img, title, centerX(title, face, ChartWidth/2), 28, colorText, face)
	drawText(img, subtitle, centerX(subtitle, face, ChartWidth/2), 48, colorMuted, face)

	maxV := 0.0
	for _, b := range balances {
		maxV = math.Max(maxV, math.Max(b.CropNeedMM, math.Max(b.RainMM, b.IrrigationNeedMM)))
	}
	step := niceStep(maxV / 5)
	yMax := step * math.Ceil(maxV/step)
	if yMax == 0 {
		yMax = step
	}
	yPos := func(v float64) int {
		return plot.Max.Y - int(math.Round(v/yMax*float64(plot.Dy())))
	}

	// Y grid and tick labels.
	for v := 0.0; v <= yMax+step/2; v += step {
		y := yPos(v)
		dashedHLine(img, plot.Min.X, plot.Max.X, y, colorGrid)
		label := formatTick(v, step)
		drawText(img, label, plot.Min.X-8-textWidth(label, face), y+4, colorText, face)
	}
	yLabel := "Water (mm)"
	drawText(img, yLabel, 8, plot.Min.Y-12, colorText, face)

	slot := float64(plot.Dx()) / float64(len(balances))
	barW := int(slot * 0.35)
	centers := make([]int, len(balances))

	for i, b := range balances {
		cx := plot.Min.X + int(slot*float64(i)+slot/2)
		centers[i] = cx

		fillRect(img, image.Rect(cx-barW, yPos(b.CropNeedMM), cx, plot.Max.Y), colorCropNeed)
		fillRect(img, image.Rect(cx, yPos(b.RainMM), cx+barW, plot.Max.Y), colorRain)

		label := b.Date.Format("Jan 02")
		drawText(img, label, centerX(label, face, cx), plot.Max.Y+20, colorText, face)
		if i == todayIndex {
			drawText(img, "today", centerX("today", face, cx), plot.Max.Y+36, colorToday, face)
		}
	}

	if todayIndex >= 0 && todayIndex < len(balances) {
		dashedVLine(img, centers[todayIndex]-barW-4, plot.Min.Y, plot.Max.Y, colorToday)
	}

	for i := 1; i < len(balances); i++ {
		thickLine(img,
			centers[i-1], yPos(balances[i-1].IrrigationNeedMM),
			centers[i], yPos(balances[i].IrrigationNeedMM),
			colorIrrigation)
	}
	for i, b := range balances {
		fillCircle(img, centers[i], yPos(b.IrrigationNeedMM), 5, colorIrrigation)
	}

	// Axes.
	fillRect(img, image.Rect(plot.Min.X, plot.Min.Y, plot.Min.X+1, plot.Max.Y+1), colorAxis)
	fillRect(img, image.Rect(plot.Min.X, plot.Max.Y, plot.Max.X, plot.Max.Y+1), colorAxis)

	drawLegend(img, face, plot)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode chart: %w", err)
	}
	return buf.Bytes(), nil
}

func drawLegend(img *image.RGBA, face font.Face, plot image.Rectangle) {
	entries := []struct {
		label string
		col   color.Color
		line  bool
	}{
		{"Crop Water Need (ETc)", colorCropNeed, false},
		{"Rainfall", colorRain, false},
		{"Irrigation Required", colorIrrigation, true},
	}
	x := plot.Max.X - 190
	y := plot.Min.Y + 10
	fillRect(img, image.Rect(x-10, y-8, plot.Max.X-5, y+3*20), color.NRGBA{255, 255, 255, 220})
	for i, e := range entries {
		ey := y + i*20
		if e.line {
			thickLine(img, x, ey+5, x+20, ey+5, e.col)
			fillCircle(img, x+10, ey+5, 3, e.col)
		} else {
			fillRect(img, image.Rect(x, ey, x+20, ey+10), e.col)
		}
		drawText(img, e.label, x+28, ey+10, colorText, face)
	}
}

func drawText(img *image.RGBA, text string, x, y int, col color.Color, face font.Face) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

func textWidth(text string, face font.Face) int {
	return font.MeasureString(face, text).Ceil()
}

func centerX(text string, face font.Face, cx int) int {
	return cx - textWidth(text, face)/2
}

func fillRect(img *image.RGBA, r image.Rectangle, col color.Color) {
	draw.Draw(img, r.Canon(), &image.Uniform{col}, image.Point{}, draw.Over)
}

func dashedHLine(img *image.RGBA, x0, x1, y int, col color.Color) {
	for x := x0; x < x1; x++ {
		if (x-x0)%8 < 4 {
			img.Set(x, y, col)
		}
	}
}

func dashedVLine(img *image.RGBA, x, y0, y1 int, col color.Color) {
	for y := y0; y < y1; y++ {
		if (y-y0)%10 < 6 {
			img.Set(x, y, col)
			img.Set(x+1, y, col)
		}
	}
}

// thickLine draws a 3px line using Bresenham's algorithm.
func thickLine(img *image.RGBA, x0, y0, x1, y1 int, col color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		fillRect(img, image.Rect(x0-1, y0-1, x0+2, y0+2), col)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func fillCircle(img *image.RGBA, cx, cy, r int, col color.Color) {
	for y := -r; y <= r; y++ {
		for x := -r; x <= r; x++ {
			if x*x+y*y <= r*r {
				img.Set(cx+x, cy+y, col)
			}
		}
	}
}

// niceStep rounds raw up to 1, 2 or 5 times a power of ten.
func niceStep(raw float64) float64 {
	if raw <= 0 {
		return 1
	}
	exp := math.Pow(10, math.Floor(math.Log10(raw)))
	switch f := raw / exp; {
	case f <= 1:
		return exp
	case f <= 2:
		return 2 * exp
	case f <= 5:
		return 5 * exp
	default:
		return 10 * exp
	}
}

func formatTick(v, step float64) string {
	if step >= 1 {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
