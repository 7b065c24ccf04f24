package api

import (
	"embed"
	"fmt"
	"html/template"
	"time"
)

//go:embed templates/*
var templateFS embed.FS

// newTemplates parses the HTML templates with the formatting helpers they use.
func newTemplates() *template.Template {
	funcs := template.FuncMap{
		"mm": func(f float64) string {
			return fmt.Sprintf("%.1f", f)
		},
		"liters": func(f float64) string {
			return fmt.Sprintf("%.0f", f)
		},
		"hours": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
		"day": func(t time.Time) string {
			return t.Format("Mon 02 Jan")
		},
	}
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}
