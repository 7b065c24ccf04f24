package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/fieldwater/irrigaudit/internal/api"
	"github.com/fieldwater/irrigaudit/internal/audit"
	"github.com/fieldwater/irrigaudit/internal/crops"
	"github.com/fieldwater/irrigaudit/internal/ingest"
	"github.com/fieldwater/irrigaudit/internal/metrics"
	"github.com/fieldwater/irrigaudit/internal/models"
	"github.com/fieldwater/irrigaudit/internal/store"
)

type stubWeather struct {
	series models.WeatherSeries
	err    error
	coords []models.Coordinate
}

func (s *stubWeather) Fetch(_ context.Context, coord models.Coordinate, _ models.Window) (models.WeatherSeries, error) {
	s.coords = append(s.coords, coord)
	if s.err != nil {
		return models.WeatherSeries{}, s.err
	}
	out := s.series
	out.Coordinate = coord
	return out, nil
}

func weekSeries() models.WeatherSeries {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	eto := []float64{4.1, 4.5, 5.0, 3.8, 2.9, 4.2, 4.6}
	rain := []float64{0, 2.0, 0, 6.5, 12.0, 0, 1.0}
	s := models.WeatherSeries{
		Window:     models.Window{PastDays: 2, ForecastDays: 5},
		Timezone:   "GMT",
		TodayIndex: 2,
	}
	for i := range eto {
		s.Days = append(s.Days, models.WeatherDay{Date: start.AddDate(0, 0, i), EToMM: eto[i], RainMM: rain[i]})
	}
	return s
}

type fakeFetchLog struct {
	runs   []models.FetchRun
	health []store.FetchHealth
	since  time.Time
}

func (f *fakeFetchLog) FetchHealthSince(_ context.Context, since time.Time) ([]store.FetchHealth, error) {
	f.since = since
	return f.health, nil
}

func (f *fakeFetchLog) RecentFetches(_ context.Context, limit int) ([]models.FetchRun, error) {
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func newTestServer(t *testing.T, weather audit.WeatherSource, opts ...api.Option) *api.Server {
	t.Helper()
	svc := audit.NewService(weather, crops.Default())
	return api.NewServer(svc, opts...)
}

func do(t *testing.T, srv *api.Server, target string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return b
}

const maizeQuery = "scheme=Tono+Dam+(Navrongo)&category=Cereals&crop=Maize&stage=mid"

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, &stubWeather{series: weekSeries()})
	assert.Equal(t, http.StatusOK, do(t, srv, "/manage/health").StatusCode)
	assert.Equal(t, http.StatusOK, do(t, srv, "/manage/ready").StatusCode)

	failing := newTestServer(t, &stubWeather{series: weekSeries()},
		api.WithReadiness(func() error { return errors.New("database is locked") }))
	assert.Equal(t, http.StatusServiceUnavailable, do(t, failing, "/manage/ready").StatusCode)
	assert.Equal(t, http.StatusOK, do(t, failing, "/manage/health").StatusCode)
}

func TestAPIAudit(t *testing.T) {
	weather := &stubWeather{series: weekSeries()}
	srv := newTestServer(t, weather)

	resp := do(t, srv, "/api/audit?"+maizeQuery)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		Kc       float64               `json:"kc"`
		Balances []models.DailyBalance `json:"balances"`
		Summary  *models.AuditSummary  `json:"summary"`
		Advisory string                `json:"advisory"`
	}
	require.NoError(t, json.Unmarshal(readBody(t, resp), &got))

	assert.Equal(t, 1.2, got.Kc)
	assert.Len(t, got.Balances, 7)
	require.NotNil(t, got.Summary)
	assert.Equal(t, models.StatusWaterStress, got.Summary.Status)
	assert.InDelta(t, 6.0, got.Summary.Today.IrrigationNeedMM, 1e-9)
	assert.Equal(t, "Status: WATER STRESS. Run pump for 2h 1m. Apply 24281 liters.", got.Summary.Recommendation)
	assert.Empty(t, got.Advisory)

	require.Len(t, weather.coords, 1)
	assert.Equal(t, models.Coordinate{Latitude: 10.866, Longitude: -1.166}, weather.coords[0])
}

func TestAPIAuditCustomLocationAndField(t *testing.T) {
	weather := &stubWeather{series: weekSeries()}
	srv := newTestServer(t, weather)

	resp := do(t, srv, "/api/audit?lat=5.5&lon=-0.2&category=Cereals&crop=Maize&stage=mid-season&pump_capacity=400&field_size=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got audit.Result
	require.NoError(t, json.Unmarshal(readBody(t, resp), &got))
	assert.Equal(t, api.CustomLocationName, got.Request.Location)
	assert.Equal(t, "mid", got.Request.Stage)
	assert.Equal(t, models.FieldConfig{PumpCapacityLPM: 400, FieldSizeAcres: 2}, got.Request.Field)
	assert.Equal(t, models.Coordinate{Latitude: 5.5, Longitude: -0.2}, weather.coords[0])
	assert.Equal(t, "2h 1m", got.Summary.PumpRuntime())
}

func TestAPIAuditErrors(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		err     error
		status  int
		message string
	}{
		{"missing crop", "scheme=Tono+Dam+(Navrongo)&category=Cereals&stage=mid", nil, http.StatusBadRequest, "missing required parameter: crop"},
		{"missing location", "category=Cereals&crop=Maize&stage=mid", nil, http.StatusBadRequest, "scheme or lat/lon"},
		{"unknown scheme", "scheme=Atlantis&category=Cereals&crop=Maize&stage=mid", nil, http.StatusBadRequest, "unknown scheme"},
		{"latitude out of range", "lat=95&lon=0&category=Cereals&crop=Maize&stage=mid", nil, http.StatusBadRequest, "out of range"},
		{"lat without lon", "lat=5&category=Cereals&crop=Maize&stage=mid", nil, http.StatusBadRequest, "together"},
		{"bad field size", maizeQuery + "&field_size=big", nil, http.StatusBadRequest, "invalid field_size"},
		{"zero pump", maizeQuery + "&pump_capacity=0", nil, http.StatusUnprocessableEntity, "pump"},
		{"negative field", maizeQuery + "&field_size=-1", nil, http.StatusUnprocessableEntity, "field"},
		{"malformed provider response", maizeQuery,
			fmt.Errorf("fetch weather: %w", &ingest.MalformedResponseError{Reason: "missing daily block"}),
			http.StatusBadGateway, "missing daily block"},
		{"provider rejected request", maizeQuery,
			fmt.Errorf("fetch weather: %w", &ingest.StatusError{StatusCode: 400, Reason: "bad latitude"}),
			http.StatusBadGateway, "bad latitude"},
		{"unexpected failure", maizeQuery, errors.New("boom"), http.StatusInternalServerError, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &stubWeather{series: weekSeries(), err: tt.err})
			resp := do(t, srv, "/api/audit?"+tt.query)
			assert.Equal(t, tt.status, resp.StatusCode)

			var body api.ErrorResponse
			require.NoError(t, json.Unmarshal(readBody(t, resp), &body))
			assert.Contains(t, strings.ToLower(body.Error), strings.ToLower(tt.message))
		})
	}
}

func TestAPIAuditUnavailable(t *testing.T) {
	weather := &stubWeather{series: models.WeatherSeries{Advisory: ingest.UnavailableAdvisory}}
	srv := newTestServer(t, weather)

	resp := do(t, srv, "/api/audit?"+maizeQuery)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string]any
	require.NoError(t, json.Unmarshal(readBody(t, resp), &got))
	assert.Equal(t, ingest.UnavailableAdvisory, got["advisory"])
	assert.NotContains(t, got, "summary")
	assert.Empty(t, got["balances"])

	chart := do(t, srv, "/chart.png?"+maizeQuery)
	assert.Equal(t, http.StatusServiceUnavailable, chart.StatusCode)
	var body api.ErrorResponse
	require.NoError(t, json.Unmarshal(readBody(t, chart), &body))
	assert.Equal(t, ingest.UnavailableAdvisory, body.Advisory)
}

func TestChartPNG(t *testing.T) {
	srv := newTestServer(t, &stubWeather{series: weekSeries()})
	resp := do(t, srv, "/chart.png?"+maizeQuery)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 1000, img.Bounds().Dx())
}

func TestReportXLSX(t *testing.T) {
	srv := newTestServer(t, &stubWeather{series: weekSeries()})
	resp := do(t, srv, "/report.xlsx?"+maizeQuery)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Audit", "Daily"}, f.GetSheetList())
}

func TestAPICropsAndSchemes(t *testing.T) {
	srv := newTestServer(t, &stubWeather{})

	resp := do(t, srv, "/api/crops")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var table map[string]map[string]map[string]float64
	require.NoError(t, json.Unmarshal(readBody(t, resp), &table))
	assert.Equal(t, 1.2, table["Cereals"]["Maize"]["mid"])
	assert.Equal(t, 0.3, table["Roots & Tubers"]["Cassava"]["init"])

	resp = do(t, srv, "/api/schemes")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var schemes []models.Scheme
	require.NoError(t, json.Unmarshal(readBody(t, resp), &schemes))
	require.Len(t, schemes, 7)
	assert.Equal(t, "Tono Dam (Navrongo)", schemes[0].Name)
}

func TestAPIFetches(t *testing.T) {
	srv := newTestServer(t, &stubWeather{})
	assert.Equal(t, http.StatusNotFound, do(t, srv, "/api/fetches").StatusCode)

	log := &fakeFetchLog{runs: []models.FetchRun{
		{ID: 2, Source: ingest.SourceOpenMeteo, Attempts: 1, Outcome: models.FetchOK, Days: 7},
		{ID: 1, Source: ingest.SourceOpenMeteo, Attempts: 3, Outcome: models.FetchUnavailable},
	}}
	srv = newTestServer(t, &stubWeather{}, api.WithFetchLog(log))

	resp := do(t, srv, "/api/fetches?limit=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var runs []models.FetchRun
	require.NoError(t, json.Unmarshal(readBody(t, resp), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, int64(2), runs[0].ID)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, "/api/fetches?limit=0").StatusCode)
}

func TestAPIFetchHealth(t *testing.T) {
	srv := newTestServer(t, &stubWeather{})
	assert.Equal(t, http.StatusNotFound, do(t, srv, "/api/fetches/health").StatusCode)

	log := &fakeFetchLog{health: []store.FetchHealth{
		{Outcome: models.FetchOK, Runs: 4, AvgAttempts: 1.25},
		{Outcome: models.FetchUnavailable, Runs: 1, AvgAttempts: 3},
	}}
	srv = newTestServer(t, &stubWeather{}, api.WithFetchLog(log))

	resp := do(t, srv, "/api/fetches/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body api.FetchHealthResponse
	require.NoError(t, json.Unmarshal(readBody(t, resp), &body))
	require.Len(t, body.Outcomes, 2)
	assert.Equal(t, 4, body.Outcomes[0].Runs)
	assert.WithinDuration(t, time.Now().Add(-24*time.Hour), log.since, time.Minute)
	assert.True(t, body.Since.Equal(log.since))

	resp = do(t, srv, "/api/fetches/health?since=90m")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.WithinDuration(t, time.Now().Add(-90*time.Minute), log.since, time.Minute)

	for _, q := range []string{"soon", "-1h", "0s"} {
		assert.Equal(t, http.StatusBadRequest, do(t, srv, "/api/fetches/health?since="+q).StatusCode, q)
	}

	log.health = nil
	resp = do(t, srv, "/api/fetches/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(readBody(t, resp)), `"outcomes":[]`)
}

func TestAPIPayloadArchive(t *testing.T) {
	srv := newTestServer(t, &stubWeather{})
	assert.Equal(t, http.StatusNotFound, do(t, srv, "/api/payloads/stats").StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, srv, "/api/payloads/1").StatusCode)

	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := store.New(db, nil)
	require.NoError(t, st.Migrate())

	ctx := context.Background()
	key := ingest.CacheKey(models.Coordinate{Latitude: 10.866, Longitude: -1.166}, models.Window{PastDays: 2, ForecastDays: 5})
	fetched := time.Date(2024, 6, 3, 6, 0, 0, 0, time.UTC)
	older := []byte(`{"daily":{"time":["2024-06-02"]}}`)
	newer := []byte(`{"daily":{"time":["2024-06-03"]}}`)
	_, err = st.StoreRawPayload(ctx, ingest.SourceOpenMeteo, key, fetched.Add(-time.Hour), older)
	require.NoError(t, err)
	id, err := st.StoreRawPayload(ctx, ingest.SourceOpenMeteo, key, fetched, newer)
	require.NoError(t, err)

	srv = newTestServer(t, &stubWeather{}, api.WithPayloadArchive(st))

	resp := do(t, srv, "/api/payloads/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats store.RawPayloadStats
	require.NoError(t, json.Unmarshal(readBody(t, resp), &stats))
	assert.Equal(t, 2, stats.TotalCount)
	assert.Equal(t, 2, stats.CountBySource[ingest.SourceOpenMeteo])
	assert.Equal(t, fetched, stats.NewestFetchedAt)

	resp = do(t, srv, "/api/payloads/latest?key="+url.QueryEscape(key))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, fmt.Sprint(id), resp.Header.Get("X-Payload-Id"))
	assert.Equal(t, "2024-06-03T06:00:00Z", resp.Header.Get("X-Payload-Fetched-At"))
	assert.Equal(t, newer, readBody(t, resp))

	assert.Equal(t, http.StatusNotFound, do(t, srv, "/api/payloads/latest?key=nowhere").StatusCode)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, "/api/payloads/latest").StatusCode)

	resp = do(t, srv, fmt.Sprintf("/api/payloads/%d", id))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, newer, readBody(t, resp))

	assert.Equal(t, http.StatusNotFound, do(t, srv, "/api/payloads/9999").StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	svc := audit.NewService(&stubWeather{series: weekSeries()}, crops.Default(), audit.WithMetrics(m))
	srv := api.NewServer(svc, api.WithGatherer(reg))

	require.Equal(t, http.StatusOK, do(t, srv, "/api/audit?"+maizeQuery).StatusCode)

	resp := do(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := string(readBody(t, resp))
	assert.Contains(t, body, `irrigaudit_audits_total{outcome="water_stress"} 1`)
}

func TestDashboard(t *testing.T) {
	srv := newTestServer(t, &stubWeather{series: weekSeries()})

	resp := do(t, srv, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := string(readBody(t, resp))
	assert.Contains(t, body, "<h1>Irrigation Water Audit</h1>")
	assert.Contains(t, body, "Tono Dam (Navrongo)")
	assert.Contains(t, body, `<optgroup label="Roots &amp; Tubers">`)
	assert.NotContains(t, body, "Run pump for")

	resp = do(t, srv, "/?"+maizeQuery)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = string(readBody(t, resp))
	assert.Contains(t, body, "Status: WATER STRESS. Run pump for 2h 1m. Apply 24281 liters.")
	assert.Contains(t, body, `class="today"`)
	assert.Contains(t, body, "/chart.png?scheme=Tono")
	assert.Equal(t, 1, strings.Count(body, `class="today"`))
}

func TestDashboardShowsErrors(t *testing.T) {
	srv := newTestServer(t, &stubWeather{series: weekSeries()})
	resp := do(t, srv, "/?"+maizeQuery+"&pump_capacity=0")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(readBody(t, resp)), `class="status error"`)
}
