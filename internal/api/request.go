package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/fieldwater/irrigaudit/internal/audit"
	"github.com/fieldwater/irrigaudit/internal/balance"
	"github.com/fieldwater/irrigaudit/internal/config"
	"github.com/fieldwater/irrigaudit/internal/crops"
	"github.com/fieldwater/irrigaudit/internal/ingest"
	"github.com/fieldwater/irrigaudit/internal/models"
)

// CustomLocationName is the scheme value that selects explicit coordinates.
const CustomLocationName = "Custom Location"

// ErrorResponse is the JSON body of every failed API call.
type ErrorResponse struct {
	Error    string `json:"error"`
	Advisory string `json:"advisory,omitempty"`
}

type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

// parseAuditRequest reads the audit parameters from the query string:
// scheme or lat/lon, category, crop, stage, pump_capacity and field_size.
func (s *Server) parseAuditRequest(c *fiber.Ctx) (audit.Request, error) {
	req := audit.Request{
		Category: strings.TrimSpace(c.Query("category")),
		Crop:     strings.TrimSpace(c.Query("crop")),
		Field:    s.defaults,
	}
	for _, p := range []struct{ name, value string }{
		{"category", req.Category},
		{"crop", req.Crop},
		{"stage", c.Query("stage")},
	} {
		if strings.TrimSpace(p.value) == "" {
			return req, badRequest("missing required parameter: %s", p.name)
		}
	}
	req.Stage = string(crops.ParseStage(c.Query("stage")))

	coord, name, err := s.resolveLocation(c.Query("scheme"), c.Query("lat"), c.Query("lon"))
	if err != nil {
		return req, err
	}
	req.Coordinate = coord
	req.Location = name

	if req.Field.PumpCapacityLPM, err = floatParam(c, "pump_capacity", req.Field.PumpCapacityLPM); err != nil {
		return req, err
	}
	if req.Field.FieldSizeAcres, err = floatParam(c, "field_size", req.Field.FieldSizeAcres); err != nil {
		return req, err
	}
	return req, nil
}

func (s *Server) resolveLocation(scheme, lat, lon string) (models.Coordinate, string, error) {
	scheme = strings.TrimSpace(scheme)
	custom := strings.EqualFold(scheme, CustomLocationName)

	if !custom && (lat != "" || lon != "") {
		if scheme != "" {
			return models.Coordinate{}, "", badRequest("use either scheme or lat/lon, not both")
		}
		custom = true
	}

	if !custom {
		if scheme == "" {
			return models.Coordinate{}, "", badRequest("missing required parameter: scheme or lat/lon")
		}
		for _, sc := range s.schemes {
			if strings.EqualFold(sc.Name, scheme) {
				return sc.Coordinate, sc.Name, nil
			}
		}
		return models.Coordinate{}, "", badRequest("unknown scheme %q", scheme)
	}

	coord := config.CustomLocation
	if lat != "" || lon != "" {
		if lat == "" || lon == "" {
			return models.Coordinate{}, "", badRequest("lat and lon must be given together")
		}
		var err error
		if coord.Latitude, err = strconv.ParseFloat(lat, 64); err != nil {
			return models.Coordinate{}, "", badRequest("invalid latitude format")
		}
		if coord.Longitude, err = strconv.ParseFloat(lon, 64); err != nil {
			return models.Coordinate{}, "", badRequest("invalid longitude format")
		}
	}
	if !coord.Valid() {
		return models.Coordinate{}, "", badRequest("coordinate %s out of range", coord)
	}
	return coord, CustomLocationName, nil
}

func floatParam(c *fiber.Ctx, name string, def float64) (float64, error) {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, badRequest("invalid %s: %q", name, v)
	}
	return f, nil
}

// statusFor maps an audit failure to an HTTP status.
func statusFor(err error) int {
	var bad *badRequestError
	var statusErr *ingest.StatusError
	switch {
	case errors.As(err, &bad),
		errors.Is(err, ingest.ErrInvalidCoordinate),
		errors.Is(err, ingest.ErrInvalidWindow):
		return fiber.StatusBadRequest
	case errors.Is(err, balance.ErrInvalidConfig):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, ingest.ErrMalformedResponse), errors.As(err, &statusErr):
		return fiber.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// runAudit parses the request and runs it. The returned status is only
// meaningful when err is non-nil. The chart and workbook endpoints call it
// again instead of sharing the dashboard's result; the weather cache keeps
// that to one provider call per key.
func (s *Server) runAudit(c *fiber.Ctx) (*audit.Result, int, error) {
	req, err := s.parseAuditRequest(c)
	if err != nil {
		return nil, statusFor(err), err
	}
	res, err := s.svc.Run(c.UserContext(), req)
	if err != nil {
		return nil, statusFor(err), err
	}
	return res, fiber.StatusOK, nil
}
