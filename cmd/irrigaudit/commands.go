package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/fieldwater/irrigaudit/internal/api"
	"github.com/fieldwater/irrigaudit/internal/audit"
	"github.com/fieldwater/irrigaudit/internal/config"
	"github.com/fieldwater/irrigaudit/internal/crops"
	"github.com/fieldwater/irrigaudit/internal/ingest"
	"github.com/fieldwater/irrigaudit/internal/logging"
	"github.com/fieldwater/irrigaudit/internal/models"
	"github.com/fieldwater/irrigaudit/internal/report"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

type AuditCmd struct {
	Scheme       string   `default:"Tono Dam (Navrongo)" help:"Irrigation scheme preset; a unique prefix is enough."`
	Lat          *float64 `help:"Latitude of a custom location (overrides --scheme)."`
	Lon          *float64 `help:"Longitude of a custom location (overrides --scheme)."`
	Category     string   `default:"Cereals" help:"Crop category."`
	Crop         string   `default:"Maize" help:"Crop name."`
	Stage        string   `default:"mid" help:"Growth stage: init, mid or end."`
	PumpCapacity float64  `default:"200" help:"Pump capacity in litres per minute."`
	FieldSize    float64  `default:"1" help:"Field size in acres."`
	Chart        string   `type:"path" help:"Also write the water balance chart to this PNG file."`
	XLSX         string   `name:"xlsx" type:"path" help:"Also write the audit workbook to this file."`
	JSON         bool     `name:"json" help:"Print the result as JSON instead of a table."`
}

func (c *AuditCmd) request() (audit.Request, error) {
	req := audit.Request{
		Category: c.Category,
		Crop:     c.Crop,
		Stage:    string(crops.ParseStage(c.Stage)),
		Field:    models.FieldConfig{PumpCapacityLPM: c.PumpCapacity, FieldSizeAcres: c.FieldSize},
	}

	if c.Lat != nil || c.Lon != nil {
		if c.Lat == nil || c.Lon == nil {
			return req, errors.New("--lat and --lon must be given together")
		}
		req.Coordinate = models.Coordinate{Latitude: *c.Lat, Longitude: *c.Lon}
		if !req.Coordinate.Valid() {
			return req, fmt.Errorf("coordinate %s out of range", req.Coordinate)
		}
		req.Location = api.CustomLocationName
		return req, nil
	}

	scheme, err := config.FindScheme(c.Scheme)
	if err != nil {
		return req, err
	}
	req.Coordinate = scheme.Coordinate
	req.Location = scheme.Name
	return req, nil
}

func (c *AuditCmd) Run(cfg *config.Config) error {
	a, err := newApp(*cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()
	return c.run(ctx, a, os.Stdout)
}

func (c *AuditCmd) run(ctx context.Context, a *app, out io.Writer) error {
	req, err := c.request()
	if err != nil {
		return err
	}
	res, err := a.svc.Run(ctx, req)
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else if err := report.WriteText(out, res); err != nil {
		return err
	}

	if c.Chart != "" {
		if res.Available() {
			if err := writeFile(c.Chart, func(w io.Writer) error { return report.WriteChart(w, res) }); err != nil {
				return fmt.Errorf("write chart: %w", err)
			}
			a.log.Info("chart written", zap.String("path", c.Chart))
		} else {
			a.log.Warn("chart skipped, no weather data", zap.String("path", c.Chart))
		}
	}
	if c.XLSX != "" {
		if err := writeFile(c.XLSX, func(w io.Writer) error { return report.WriteXLSX(w, res) }); err != nil {
			return fmt.Errorf("write workbook: %w", err)
		}
		a.log.Info("workbook written", zap.String("path", c.XLSX))
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type ServeCmd struct {
	Port         int           `default:"8080" env:"PORT" help:"HTTP port."`
	WarmInterval time.Duration `default:"0s" env:"WARM_INTERVAL" help:"Refresh the scheme presets' weather on this interval; 0 disables warming."`
	Retention    time.Duration `default:"720h" env:"ARCHIVE_RETENTION" help:"Drop archived provider payloads older than this at startup; 0 keeps everything."`
}

func (c *ServeCmd) Run(cfg *config.Config) error {
	a, err := newApp(*cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()

	opts := []api.Option{
		api.WithGatherer(a.reg),
		api.WithLogger(a.log),
	}
	if a.store != nil {
		opts = append(opts, api.WithFetchLog(a.store), api.WithPayloadArchive(a.store), api.WithReadiness(a.store.Ping))
		if c.Retention > 0 {
			n, err := a.store.CleanupOldRawPayloads(ctx, time.Now().Add(-c.Retention))
			if err != nil {
				a.log.Warn("cleanup raw payloads", zap.Error(err))
			} else if n > 0 {
				a.log.Info("old raw payloads removed", zap.Int64("count", n))
			}
		}
	}

	if c.WarmInterval > 0 {
		sched := ingest.NewScheduler(a.client, config.Schemes(), cfg.Weather.Window(), c.WarmInterval, a.log)
		if a.pruner != nil {
			sched.SetPruner(a.pruner)
		}
		go sched.Run(ctx)
	}

	srv := api.NewServer(a.svc, opts...)
	return srv.Run(ctx, fmt.Sprintf(":%d", c.Port))
}

type CropsCmd struct {
	Category string `arg:"" optional:"" help:"Only list this category."`
}

func (c *CropsCmd) Run(cfg *config.Config) error {
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Sync()
	return c.print(os.Stdout, loadCropTable(cfg.Crops.Path, log))
}

func (c *CropsCmd) print(out io.Writer, table *crops.Table) error {
	cats := table.Categories()
	if c.Category != "" {
		cats = []string{c.Category}
		if len(table.Crops(c.Category)) == 0 {
			return fmt.Errorf("unknown category %q", c.Category)
		}
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tCROP\tSTAGE\tKC")
	for _, cat := range cats {
		for _, crop := range table.Crops(cat) {
			for _, st := range table.Stages(cat, crop) {
				kc, err := table.Lookup(cat, crop, st)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\n", cat, crop, st, kc)
			}
		}
	}
	return tw.Flush()
}

type SchemesCmd struct{}

func (c *SchemesCmd) Run(*config.Config) error {
	return c.print(os.Stdout)
}

func (c *SchemesCmd) print(out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCHEME\tLATITUDE\tLONGITUDE")
	for _, s := range config.Schemes() {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\n", s.Name, s.Coordinate.Latitude, s.Coordinate.Longitude)
	}
	fmt.Fprintf(tw, "%s\t%.4f\t%.4f\n", api.CustomLocationName+" (default)", config.CustomLocation.Latitude, config.CustomLocation.Longitude)
	return tw.Flush()
}
