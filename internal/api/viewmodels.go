package api

import (
	"html/template"
	"strconv"

	"github.com/fieldwater/irrigaudit/internal/audit"
	"github.com/fieldwater/irrigaudit/internal/crops"
	"github.com/fieldwater/irrigaudit/internal/models"
)

// DashboardData is the view model for the dashboard page.
type DashboardData struct {
	Schemes    []models.Scheme
	CropGroups []CropGroup
	Stages     []string
	Form       FormValues
	Result     *audit.Result
	TodayIndex int
	Query      template.URL
	Error      string
}

type CropGroup struct {
	Category string
	Crops    []string
}

// FormValues echoes the submitted form back into the inputs.
type FormValues struct {
	Scheme   string
	Lat      string
	Lon      string
	Category string
	Crop     string
	Stage    string
	Pump     string
	Field    string
}

// Custom reports whether the custom coordinate inputs should be shown.
func (f FormValues) Custom() bool {
	return f.Scheme == CustomLocationName
}

func cropGroups(t *crops.Table) []CropGroup {
	cats := t.Categories()
	groups := make([]CropGroup, 0, len(cats))
	for _, cat := range cats {
		groups = append(groups, CropGroup{Category: cat, Crops: t.Crops(cat)})
	}
	return groups
}

// allStages lists every stage key in the table, FAO stages first.
func allStages(t *crops.Table) []string {
	seen := map[string]bool{}
	var out []string
	for _, cat := range t.Categories() {
		for _, crop := range t.Crops(cat) {
			for _, st := range t.Stages(cat, crop) {
				if !seen[st] {
					seen[st] = true
					out = append(out, st)
				}
			}
		}
	}
	return out
}

func (s *Server) defaultForm(groups []CropGroup) FormValues {
	f := FormValues{
		Stage: string(crops.StageMid),
		Pump:  strconv.FormatFloat(s.defaults.PumpCapacityLPM, 'f', -1, 64),
		Field: strconv.FormatFloat(s.defaults.FieldSizeAcres, 'f', -1, 64),
	}
	if len(s.schemes) > 0 {
		f.Scheme = s.schemes[0].Name
	}
	if len(groups) > 0 && len(groups[0].Crops) > 0 {
		f.Category = groups[0].Category
		f.Crop = groups[0].Crops[0]
	}
	return f
}
