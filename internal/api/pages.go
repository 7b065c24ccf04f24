package api

import (
	"bytes"
	"html/template"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// handleIndex renders the dashboard. The audit only runs once the form has
// been submitted, which is signalled by a crop in the query.
func (s *Server) handleIndex(c *fiber.Ctx) error {
	table := s.svc.Crops()
	data := DashboardData{
		Schemes:    s.schemes,
		CropGroups: cropGroups(table),
		Stages:     allStages(table),
		TodayIndex: -1,
	}
	data.Form = s.defaultForm(data.CropGroups)

	status := fiber.StatusOK
	if c.Query("crop") != "" {
		data.Form = FormValues{
			Scheme:   c.Query("scheme", data.Form.Scheme),
			Lat:      c.Query("lat"),
			Lon:      c.Query("lon"),
			Category: c.Query("category"),
			Crop:     c.Query("crop"),
			Stage:    c.Query("stage"),
			Pump:     c.Query("pump_capacity", data.Form.Pump),
			Field:    c.Query("field_size", data.Form.Field),
		}
		data.Query = template.URL(c.Request().URI().QueryString())

		res, code, err := s.runAudit(c)
		if err != nil {
			status = code
			data.Error = err.Error()
			if code >= fiber.StatusInternalServerError {
				s.log.Error("dashboard audit failed", zap.Error(err))
			}
		} else {
			data.Result = res
			if res.Available() {
				data.TodayIndex = res.Series.TodayIndex
			}
		}
	}

	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, "dashboard.html", data); err != nil {
		s.log.Error("template error", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).SendString("template error")
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Status(status).Send(buf.Bytes())
}
