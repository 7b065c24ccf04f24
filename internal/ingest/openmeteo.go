package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/fieldwater/irrigaudit/internal/httputil"
	"github.com/fieldwater/irrigaudit/internal/logging"
	"github.com/fieldwater/irrigaudit/internal/metrics"
	"github.com/fieldwater/irrigaudit/internal/models"
)

const (
	DefaultBaseURL  = "https://api.open-meteo.com/v1/forecast"
	DefaultTimezone = "GMT"

	SourceOpenMeteo = "open_meteo"

	fieldTime    = "time"
	fieldETo     = "et0_fao_evapotranspiration"
	fieldRain    = "precipitation_sum"
	fieldTempMax = "temperature_2m_max"

	// UnavailableAdvisory is shown when the provider could not be reached
	// after every attempt.
	UnavailableAdvisory = "Weather data unavailable: the forecast service could not be reached. Try again shortly."
)

// PayloadArchive keeps raw provider responses for later inspection.
type PayloadArchive interface {
	ArchivePayload(ctx context.Context, source, requestKey string, fetchedAt time.Time, body []byte) error
}

// FetchRecorder logs the outcome of each provider request.
type FetchRecorder interface {
	RecordFetch(ctx context.Context, run models.FetchRun) error
}

// Client fetches daily reference evapotranspiration and rainfall from
// Open-Meteo.
type Client struct {
	baseURL    string
	timezone   string
	httpClient *http.Client
	retry      RetryPolicy
	cache      Cache
	archive    PayloadArchive
	recorder   FetchRecorder
	metrics    *metrics.Metrics
	log        *zap.Logger
	todayIndex int
	maxTemp    bool
	now        func() time.Time
}

type Option func(*Client)

func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = u } }

func WithTimezone(tz string) Option { return func(c *Client) { c.timezone = tz } }

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.httpClient = h } }

func WithRetryPolicy(p RetryPolicy) Option { return func(c *Client) { c.retry = p } }

func WithCache(cache Cache) Option { return func(c *Client) { c.cache = cache } }

func WithArchive(a PayloadArchive) Option { return func(c *Client) { c.archive = a } }

func WithRecorder(r FetchRecorder) Option { return func(c *Client) { c.recorder = r } }

func WithMetrics(m *metrics.Metrics) Option { return func(c *Client) { c.metrics = m } }

func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// WithTodayIndex pins the row treated as today. Negative means PastDays.
func WithTodayIndex(i int) Option { return func(c *Client) { c.todayIndex = i } }

// WithMaxTemperature also requests the daily maximum temperature.
func WithMaxTemperature(on bool) Option { return func(c *Client) { c.maxTemp = on } }

func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		timezone:   DefaultTimezone,
		retry:      DefaultRetryPolicy,
		todayIndex: -1,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = httputil.NewClient(httputil.DefaultTimeout)
	}
	c.log = logging.OrNop(c.log)
	return c
}

// Fetch returns the cleaned daily series for coord over window. When every
// attempt fails transiently the result is an empty series carrying an
// advisory, with a nil error.
func (c *Client) Fetch(ctx context.Context, coord models.Coordinate, window models.Window) (models.WeatherSeries, error) {
	if !coord.Valid() {
		return models.WeatherSeries{}, fmt.Errorf("%w: %s", ErrInvalidCoordinate, coord)
	}
	if window.PastDays < 0 || window.ForecastDays < 1 {
		return models.WeatherSeries{}, fmt.Errorf("%w: past=%d forecast=%d", ErrInvalidWindow, window.PastDays, window.ForecastDays)
	}
	today := c.resolveToday(window)
	if today >= window.Days() {
		return models.WeatherSeries{}, fmt.Errorf("%w: today index %d outside %d days", ErrInvalidWindow, today, window.Days())
	}

	key := CacheKey(coord, window)
	if c.cache != nil {
		if s, ok := c.cache.Get(key); ok {
			c.metrics.CacheLookup(true)
			c.log.Debug("weather cache hit", zap.String("key", key))
			return s, nil
		}
		c.metrics.CacheLookup(false)
	}

	reqURL := c.buildURL(coord, window)
	log := c.log.With(zap.Float64("lat", coord.Latitude), zap.Float64("lon", coord.Longitude))

	var body []byte
	attempt := 0
	op := func() error {
		attempt++
		b, err := c.get(ctx, reqURL, attempt)
		if err != nil {
			return err
		}
		body = b
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.metrics.Retry()
		log.Warn("weather fetch failed, retrying",
			zap.Error(err), zap.Int("attempt", attempt), zap.Duration("wait", wait))
	}

	fetchedAt := c.now().UTC()
	run := models.FetchRun{Source: SourceOpenMeteo, RequestKey: key, StartedAt: fetchedAt}
	start := time.Now()
	if err := c.retry.Do(ctx, op, notify); err != nil {
		run.Attempts, run.Duration, run.Error = attempt, time.Since(start), err.Error()
		if errors.Is(err, ErrTransient) {
			run.Outcome = models.FetchUnavailable
			c.record(ctx, run)
			c.metrics.Unavailable()
			log.Warn("weather provider unavailable", zap.Error(err), zap.Int("attempts", attempt))
			return models.WeatherSeries{
				Coordinate: coord,
				Window:     window,
				Timezone:   c.timezone,
				TodayIndex: today,
				FetchedAt:  fetchedAt,
				Advisory:   UnavailableAdvisory,
			}, nil
		}
		run.Outcome = models.FetchError
		c.record(ctx, run)
		return models.WeatherSeries{}, fmt.Errorf("fetch weather: %w", err)
	}
	run.Attempts, run.Duration = attempt, time.Since(start)

	if c.archive != nil {
		if err := c.archive.ArchivePayload(ctx, SourceOpenMeteo, key, fetchedAt, body); err != nil {
			log.Warn("archive weather payload", zap.Error(err))
		}
	}

	parsed, err := parseDaily(body, c.location(), c.maxTemp)
	if err != nil {
		run.Outcome, run.Error = models.FetchError, err.Error()
		c.record(ctx, run)
		return models.WeatherSeries{}, err
	}
	days, quality := clean(parsed)
	run.Outcome, run.Days = models.FetchOK, len(days)
	c.record(ctx, run)
	c.metrics.Filled("eto", "interpolated", quality.InterpolatedETo)
	c.metrics.Filled("eto", "default", quality.DefaultedETo)
	c.metrics.Filled("rain", "default", quality.DefaultedRain)
	if quality.Filled() > 0 {
		log.Info("filled weather gaps",
			zap.Int("interpolated_eto", quality.InterpolatedETo),
			zap.Int("defaulted_eto", quality.DefaultedETo),
			zap.Int("defaulted_rain", quality.DefaultedRain))
	}

	series := models.WeatherSeries{
		Coordinate: coord,
		Window:     window,
		Timezone:   c.timezone,
		Days:       days,
		TodayIndex: today,
		FetchedAt:  fetchedAt,
		Quality:    quality,
	}
	if c.cache != nil && !series.Empty() {
		c.cache.Set(key, series)
	}
	log.Debug("fetched weather", zap.Int("days", len(days)), zap.Int("attempts", attempt))
	return series, nil
}

func (c *Client) record(ctx context.Context, run models.FetchRun) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordFetch(context.WithoutCancel(ctx), run); err != nil {
		c.log.Warn("record weather fetch", zap.Error(err))
	}
}

func (c *Client) resolveToday(w models.Window) int {
	if c.todayIndex < 0 {
		return w.PastDays
	}
	return c.todayIndex
}

func (c *Client) location() *time.Location {
	loc, err := time.LoadLocation(c.timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Client) buildURL(coord models.Coordinate, w models.Window) string {
	daily := []string{fieldETo, fieldRain}
	if c.maxTemp {
		daily = append(daily, fieldTempMax)
	}
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(coord.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(coord.Longitude, 'f', -1, 64))
	q.Set("daily", strings.Join(daily, ","))
	q.Set("timezone", c.timezone)
	q.Set("past_days", strconv.Itoa(w.PastDays))
	q.Set("forecast_days", strconv.Itoa(w.ForecastDays))
	return c.baseURL + "?" + q.Encode()
}

// get performs one attempt. Errors are either *TransientFetchError or wrapped
// in backoff.Permanent.
func (c *Client) get(ctx context.Context, reqURL string, attempt int) ([]byte, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		c.metrics.ObserveAPICall("transient", time.Since(start).Seconds())
		return nil, &TransientFetchError{Attempt: attempt, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		c.metrics.ObserveAPICall("transient", time.Since(start).Seconds())
		return nil, &TransientFetchError{
			Attempt:    attempt,
			StatusCode: resp.StatusCode,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		c.metrics.ObserveAPICall("error", time.Since(start).Seconds())
		return nil, backoff.Permanent(&StatusError{StatusCode: resp.StatusCode, Reason: errorReason(b)})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		c.metrics.ObserveAPICall("transient", time.Since(start).Seconds())
		return nil, &TransientFetchError{Attempt: attempt, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	c.metrics.ObserveAPICall("ok", time.Since(start).Seconds())
	return body, nil
}

// errorReason extracts Open-Meteo's {"error":true,"reason":"..."} message,
// falling back to the trimmed body.
func errorReason(b []byte) string {
	var e struct {
		Reason string `json:"reason"`
	}
	if json.Unmarshal(b, &e) == nil && e.Reason != "" {
		return e.Reason
	}
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

type parsedDaily struct {
	dates   []time.Time
	eto     []*float64
	rain    []*float64
	tempMax []*float64
}

func parseDaily(body []byte, loc *time.Location, wantTempMax bool) (parsedDaily, error) {
	var envelope struct {
		Daily map[string]json.RawMessage `json:"daily"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return parsedDaily{}, &MalformedResponseError{Reason: "invalid JSON", Err: err}
	}
	if envelope.Daily == nil {
		return parsedDaily{}, &MalformedResponseError{Reason: `missing "daily" object`}
	}

	var p parsedDaily
	var rawDates []string
	if err := decodeColumn(envelope.Daily, fieldTime, &rawDates); err != nil {
		return parsedDaily{}, err
	}
	if err := decodeColumn(envelope.Daily, fieldETo, &p.eto); err != nil {
		return parsedDaily{}, err
	}
	if err := decodeColumn(envelope.Daily, fieldRain, &p.rain); err != nil {
		return parsedDaily{}, err
	}
	if len(rawDates) == 0 {
		return parsedDaily{}, &MalformedResponseError{Reason: "no daily rows"}
	}
	if len(p.eto) != len(rawDates) || len(p.rain) != len(rawDates) {
		return parsedDaily{}, &MalformedResponseError{Reason: fmt.Sprintf(
			"column lengths differ: time=%d %s=%d %s=%d",
			len(rawDates), fieldETo, len(p.eto), fieldRain, len(p.rain))}
	}
	if wantTempMax {
		if _, ok := envelope.Daily[fieldTempMax]; ok {
			if err := decodeColumn(envelope.Daily, fieldTempMax, &p.tempMax); err != nil {
				return parsedDaily{}, err
			}
		}
	}

	p.dates = make([]time.Time, len(rawDates))
	for i, s := range rawDates {
		d, err := time.ParseInLocation("2006-01-02", s, loc)
		if err != nil {
			return parsedDaily{}, &MalformedResponseError{Reason: fmt.Sprintf("bad date at row %d", i), Err: err}
		}
		if i > 0 && !d.After(p.dates[i-1]) {
			return parsedDaily{}, &MalformedResponseError{Reason: fmt.Sprintf("dates not ascending at row %d", i)}
		}
		p.dates[i] = d
	}
	return p, nil
}

func decodeColumn(daily map[string]json.RawMessage, key string, dst any) error {
	raw, ok := daily[key]
	if !ok {
		return &MalformedResponseError{Reason: fmt.Sprintf("missing daily.%s", key)}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &MalformedResponseError{Reason: fmt.Sprintf("decode daily.%s", key), Err: err}
	}
	return nil
}
