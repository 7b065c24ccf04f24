package api

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fieldwater/irrigaudit/internal/report"
	"github.com/fieldwater/irrigaudit/internal/store"
)

const (
	defaultFetchLimit  = 20
	maxFetchLimit      = 200
	defaultHealthSince = 24 * time.Hour

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func (s *Server) fail(c *fiber.Ctx, status int, err error) error {
	if status >= fiber.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Error(err))
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error()})
}

func (s *Server) handleAPIAudit(c *fiber.Ctx) error {
	res, status, err := s.runAudit(c)
	if err != nil {
		return s.fail(c, status, err)
	}
	return c.JSON(res)
}

func (s *Server) handleChart(c *fiber.Ctx) error {
	res, status, err := s.runAudit(c)
	if err != nil {
		return s.fail(c, status, err)
	}
	if !res.Available() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error:    "weather data unavailable",
			Advisory: res.Advisory,
		})
	}

	var buf bytes.Buffer
	if err := report.WriteChart(&buf, res); err != nil {
		return s.fail(c, fiber.StatusInternalServerError, fmt.Errorf("render chart: %w", err))
	}
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	return c.Send(buf.Bytes())
}

func (s *Server) handleXLSX(c *fiber.Ctx) error {
	res, status, err := s.runAudit(c)
	if err != nil {
		return s.fail(c, status, err)
	}

	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, res); err != nil {
		return s.fail(c, fiber.StatusInternalServerError, fmt.Errorf("write workbook: %w", err))
	}
	c.Attachment(fmt.Sprintf("irrigation-audit-%s.xlsx", time.Now().Format("2006-01-02")))
	c.Set(fiber.HeaderContentType, xlsxContentType)
	return c.Send(buf.Bytes())
}

// handleAPICrops returns the coefficient table as category → crop → stage → Kc.
func (s *Server) handleAPICrops(c *fiber.Ctx) error {
	table := s.svc.Crops()
	out := make(map[string]map[string]map[string]float64)
	for _, cat := range table.Categories() {
		out[cat] = make(map[string]map[string]float64)
		for _, crop := range table.Crops(cat) {
			stages := make(map[string]float64)
			for _, st := range table.Stages(cat, crop) {
				if kc, err := table.Lookup(cat, crop, st); err == nil {
					stages[st] = kc
				}
			}
			out[cat][crop] = stages
		}
	}
	return c.JSON(out)
}

func (s *Server) handleAPISchemes(c *fiber.Ctx) error {
	return c.JSON(s.schemes)
}

func (s *Server) handleAPIFetches(c *fiber.Ctx) error {
	if s.fetches == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "fetch history requires a cache database"})
	}
	limit := c.QueryInt("limit", defaultFetchLimit)
	if limit < 1 || limit > maxFetchLimit {
		return s.fail(c, fiber.StatusBadRequest, fmt.Errorf("limit must be between 1 and %d", maxFetchLimit))
	}
	runs, err := s.fetches.RecentFetches(c.UserContext(), limit)
	if err != nil {
		return s.fail(c, fiber.StatusInternalServerError, err)
	}
	return c.JSON(runs)
}

// FetchHealthResponse is the body of /api/fetches/health.
type FetchHealthResponse struct {
	Since    time.Time           `json:"since"`
	Outcomes []store.FetchHealth `json:"outcomes"`
}

func (s *Server) handleAPIFetchHealth(c *fiber.Ctx) error {
	if s.fetches == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "fetch history requires a cache database"})
	}
	window := defaultHealthSince
	if raw := c.Query("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return s.fail(c, fiber.StatusBadRequest, fmt.Errorf("since must be a positive duration such as 24h, got %q", raw))
		}
		window = d
	}
	since := time.Now().Add(-window).UTC().Truncate(time.Second)
	outcomes, err := s.fetches.FetchHealthSince(c.UserContext(), since)
	if err != nil {
		return s.fail(c, fiber.StatusInternalServerError, err)
	}
	if outcomes == nil {
		outcomes = []store.FetchHealth{}
	}
	return c.JSON(FetchHealthResponse{Since: since, Outcomes: outcomes})
}

func (s *Server) archiveMissing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "payload archive requires a cache database"})
}

func (s *Server) handleAPIPayloadStats(c *fiber.Ctx) error {
	if s.archive == nil {
		return s.archiveMissing(c)
	}
	stats, err := s.archive.GetRawPayloadStats(c.UserContext())
	if err != nil {
		return s.fail(c, fiber.StatusInternalServerError, err)
	}
	return c.JSON(stats)
}

// handleAPILatestPayload returns the newest archived response for a cache
// key exactly as the provider sent it.
func (s *Server) handleAPILatestPayload(c *fiber.Ctx) error {
	if s.archive == nil {
		return s.archiveMissing(c)
	}
	key := c.Query("key")
	if key == "" {
		return s.fail(c, fiber.StatusBadRequest, errors.New("key is required"))
	}
	p, err := s.archive.LatestRawPayload(c.UserContext(), key)
	if err != nil {
		return s.fail(c, fiber.StatusInternalServerError, err)
	}
	if p == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: fmt.Sprintf("no payload archived for %q", key)})
	}
	body, err := p.Decompress()
	if err != nil {
		return s.fail(c, fiber.StatusInternalServerError, fmt.Errorf("decompress payload %d: %w", p.ID, err))
	}
	c.Set("X-Payload-Id", strconv.FormatInt(p.ID, 10))
	c.Set("X-Payload-Source", p.Source)
	c.Set("X-Payload-Fetched-At", p.FetchedAt().Format(time.RFC3339))
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}

func (s *Server) handleAPIPayload(c *fiber.Ctx) error {
	if s.archive == nil {
		return s.archiveMissing(c)
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return s.fail(c, fiber.StatusBadRequest, err)
	}
	body, err := s.archive.GetRawPayload(c.UserContext(), int64(id))
	if errors.Is(err, sql.ErrNoRows) {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: fmt.Sprintf("payload %d not found", id)})
	}
	if err != nil {
		return s.fail(c, fiber.StatusInternalServerError, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}
