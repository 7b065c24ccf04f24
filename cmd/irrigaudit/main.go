package main

import (
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/fieldwater/irrigaudit/internal/config"
)

type CLI struct {
	config.Config `embed:""`

	Audit    AuditCmd   `cmd:"" default:"withargs" help:"Run a weekly water audit and print the irrigation plan."`
	Serve    ServeCmd   `cmd:"" help:"Serve the irrigation dashboard and JSON API."`
	CropList CropsCmd   `cmd:"" name:"crops" help:"List the crop coefficient table."`
	Schemes  SchemesCmd `cmd:"" help:"List the irrigation scheme presets."`
}

func main() {
	// A missing .env is fine; the environment and flags still apply.
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("irrigaudit"),
		kong.Description("FAO-56 irrigation water audit for smallholder schemes."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Config))
}
